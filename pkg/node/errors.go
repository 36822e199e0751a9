package node

import (
	"errors"
	"fmt"
)

var (
	// ErrSnifferMode indicates a transmission refused in sniffer mode.
	ErrSnifferMode = errors.New("transmit disabled in sniffer mode")
	// ErrInvalidEncoder indicates an encoder id outside 3..6.
	ErrInvalidEncoder = errors.New("invalid encoder id (use 3..6)")
	// ErrNotRunning indicates a command sent while the node loop is stopped.
	ErrNotRunning = errors.New("node not running")
)

// ModeError reports an unknown mode name.
type ModeError struct {
	Name string
}

// Error implements error.
func (e *ModeError) Error() string {
	return fmt.Sprintf("unknown mode %q (use normal or sniffer)", e.Name)
}
