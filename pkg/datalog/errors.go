package datalog

import (
	"errors"
	"fmt"
)

var (
	// ErrRunning indicates a session is already running.
	ErrRunning = errors.New("session already running")
	// ErrNotRunning indicates no session is running.
	ErrNotRunning = errors.New("session not running")
	// ErrNoFreeName indicates every session file name is taken.
	ErrNoFreeName = errors.New("no free session file name")
	// ErrNoStorage indicates logging was requested without mounted storage.
	ErrNoStorage = errors.New("storage not available")
	// ErrBadMagic indicates the data is not a session file.
	ErrBadMagic = errors.New("bad magic")
	// ErrShortRecord indicates fewer bytes than the record layout needs.
	ErrShortRecord = errors.New("short record")
	// ErrBadLength indicates a declared length above 8.
	ErrBadLength = errors.New("declared length out of range")
)

// VersionError reports an unsupported format version.
type VersionError struct {
	Version byte
}

// Error implements error.
func (e *VersionError) Error() string {
	return fmt.Sprintf("unsupported format version %d", e.Version)
}

// UnknownRecordError reports a type tag with no known layout.
type UnknownRecordError struct {
	Tag    byte
	Offset int64
}

// Error implements error.
func (e *UnknownRecordError) Error() string {
	return fmt.Sprintf("unknown record type 0x%02x at offset %d", e.Tag, e.Offset)
}
