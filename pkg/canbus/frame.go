package canbus

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Frame is a classical CAN 2.0A/2.0B data frame.
type Frame struct {
	ID       uint32 // 11-bit or 29-bit identifier
	Extended bool
	RTR      bool
	Len      uint8 // 0..8
	Data     [8]byte
}

// Identifier limits.
const (
	MaxStdID = 0x7FF
	MaxExtID = 0x1FFFFFFF

	// MaxLen is the maximum payload of a classical frame.
	MaxLen = 8
)

// NewFrame builds a frame from id and payload. Identifiers above MaxStdID
// select the extended format.
func NewFrame(id uint32, data []byte) (Frame, error) {
	f := Frame{ID: id, Extended: id > MaxStdID}
	if len(data) > MaxLen {
		return f, ErrInvalidLen
	}
	f.Len = uint8(len(data))
	copy(f.Data[:], data)
	return f, f.Validate()
}

// MustFrame is NewFrame which panics on error.
func MustFrame(id uint32, data []byte) Frame {
	f, err := NewFrame(id, data)
	if err != nil {
		panic(err)
	}
	return f
}

// Validate checks identifier range and length.
func (f Frame) Validate() error {
	if f.Len > MaxLen {
		return ErrInvalidLen
	}
	max := uint32(MaxStdID)
	if f.Extended {
		max = MaxExtID
	}
	if f.ID > max {
		return ErrInvalidID
	}
	return nil
}

// Payload returns the meaningful bytes of the frame.
func (f *Frame) Payload() []byte {
	n := f.Len
	if n > MaxLen {
		n = MaxLen
	}
	return f.Data[:n]
}

// String formats the frame like candump: "123 [2] DE AD".
func (f Frame) String() string {
	var sb strings.Builder
	if f.Extended {
		fmt.Fprintf(&sb, "%08X", f.ID)
	} else {
		fmt.Fprintf(&sb, "%03X", f.ID)
	}
	fmt.Fprintf(&sb, " [%d]", f.Len)
	if f.RTR {
		sb.WriteString(" RTR")
		return sb.String()
	}
	for _, b := range f.Payload() {
		fmt.Fprintf(&sb, " %02X", b)
	}
	return sb.String()
}

// Linux struct can_frame flags.
const (
	canEffFlag = 0x80000000
	canRtrFlag = 0x40000000
	canEffMask = 0x1FFFFFFF
	canStdMask = 0x7FF

	// WireSize is the size of struct can_frame.
	WireSize = 16
)

// MarshalBinary encodes the frame in the Linux struct can_frame layout:
// id with EFF/RTR flags (LE u32), dlc, 3 bytes padding, 8 data bytes.
func (f Frame) MarshalBinary() ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	id := f.ID
	if f.Extended {
		id |= canEffFlag
	}
	if f.RTR {
		id |= canRtrFlag
	}
	buf := make([]byte, WireSize)
	binary.LittleEndian.PutUint32(buf[0:4], id)
	buf[4] = f.Len
	copy(buf[8:], f.Payload())
	return buf, nil
}

// UnmarshalBinary decodes the struct can_frame layout.
func (f *Frame) UnmarshalBinary(data []byte) error {
	if len(data) < WireSize {
		return fmt.Errorf("canbus: need %d bytes, got %d", WireSize, len(data))
	}
	id := binary.LittleEndian.Uint32(data[0:4])
	f.Extended = id&canEffFlag != 0
	f.RTR = id&canRtrFlag != 0
	if f.Extended {
		f.ID = id & canEffMask
	} else {
		f.ID = id & canStdMask
	}
	f.Len = data[4]
	f.Data = [8]byte{}
	if f.Len <= MaxLen {
		copy(f.Data[:f.Len], data[8:8+int(f.Len)])
	}
	return f.Validate()
}
