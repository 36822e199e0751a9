// Package canbus provides the CAN frame type and bus transports used by the
// node: an in-memory loopback bus and Linux SocketCAN.
package canbus

import (
	"context"
	"errors"
)

// Bus sends and receives CAN frames.
// Implementations are safe for concurrent use.
type Bus interface {
	// Send transmits a frame, blocking until it is queued or ctx is done.
	Send(ctx context.Context, frame Frame) error
	// Receive waits for the next frame or until ctx is done.
	Receive(ctx context.Context) (Frame, error)
	// Close releases the bus.
	Close() error
}

var (
	// ErrClosed indicates the bus or endpoint has been closed.
	ErrClosed = errors.New("canbus: closed")
	// ErrInvalidID indicates the identifier is out of range.
	ErrInvalidID = errors.New("canbus: invalid identifier")
	// ErrInvalidLen indicates a data length above 8.
	ErrInvalidLen = errors.New("canbus: invalid data length")
)
