// Package encoder speaks the request/response protocol of the rotary
// encoders measuring suspension travel, and keeps their scaled readings.
package encoder

import (
	"encoding/binary"
	"fmt"

	"github.com/robotalks/canlog/pkg/canbus"
)

// Encoder ids on the bus. Each encoder listens on its own id.
const (
	FirstID = 3
	LastID  = 6
	Count   = LastID - FirstID + 1
)

// Func is a protocol function code.
type Func uint8

// Function codes.
const (
	FuncRead Func = 0x01
	FuncZero Func = 0x06
)

func (f Func) String() string {
	switch f {
	case FuncRead:
		return "read"
	case FuncZero:
		return "zero"
	}
	return fmt.Sprintf("func(0x%02x)", uint8(f))
}

// ValidID reports whether id addresses a known encoder.
func ValidID(id uint8) bool {
	return id >= FirstID && id <= LastID
}

// Request builds the request frame for function fn to encoder id. The first
// data byte is the command length: itself, the id and the function.
func Request(id uint8, fn Func) canbus.Frame {
	return canbus.MustFrame(uint32(id), []byte{0x03, id, byte(fn)})
}

// ReadRequest asks encoder id for its position.
func ReadRequest(id uint8) canbus.Frame {
	return Request(id, FuncRead)
}

// ZeroRequest sets the current position of encoder id as zero.
func ZeroRequest(id uint8) canbus.Frame {
	return Request(id, FuncZero)
}

// Reading is a decoded read response.
type Reading struct {
	ID  uint8
	Raw int32
}

// ParseReadResponse decodes a read response. ok is false for any other
// frame: shorter than 7 bytes or carrying a different function code.
func ParseReadResponse(f canbus.Frame) (r Reading, ok bool) {
	if f.Len < 7 || f.Len > canbus.MaxLen || Func(f.Data[2]) != FuncRead {
		return r, false
	}
	r.ID = f.Data[1]
	r.Raw = int32(binary.LittleEndian.Uint32(f.Data[3:7]))
	return r, true
}
