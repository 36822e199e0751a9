package datalog

import (
	"encoding/binary"
	"fmt"

	"github.com/robotalks/canlog/pkg/canbus"
)

// Format constants.
const (
	Magic   = "SDLG"
	Version = 0x01

	HeaderSize       = 5
	FrameRecordSize  = 22
	SensorRecordSize = 9 // tag and timestamp, no payload in version 1
	MaxDataLen       = 8
)

// RecordType is the type tag leading every record.
type RecordType uint8

// Record types.
const (
	RecordSensor  RecordType = 0x01 // suspension, IMU and future sensors
	RecordVehicle RecordType = 0x02 // decoded CAN frame
	RecordSniff   RecordType = 0x03 // raw CAN frame
)

func (t RecordType) String() string {
	switch t {
	case RecordSensor:
		return "sensor"
	case RecordVehicle:
		return "vehicle"
	case RecordSniff:
		return "sniff"
	}
	return fmt.Sprintf("type(0x%02x)", uint8(t))
}

// FixedSize returns the on-disk size of a record of this type in the current
// format version. Sensor records carry no payload in version 1.
func (t RecordType) FixedSize() (int, bool) {
	switch t {
	case RecordSensor:
		return SensorRecordSize, true
	case RecordVehicle, RecordSniff:
		return FrameRecordSize, true
	}
	return 0, false
}

// Record is a decoded record of any type.
type Record interface {
	Type() RecordType
	Micros() uint64
	Size() int
	MarshalTo(b []byte) int
}

// Header is the session file header.
type Header struct {
	Version byte
}

// EncodeHeader returns the header for the current format version.
func EncodeHeader() [HeaderSize]byte {
	var b [HeaderSize]byte
	copy(b[:4], Magic)
	b[4] = Version
	return b
}

// DecodeHeader checks the magic and returns the header. The caller decides
// whether the version is acceptable.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrShortRecord
	}
	if string(b[:4]) != Magic {
		return Header{}, ErrBadMagic
	}
	return Header{Version: b[4]}, nil
}

// FrameRecord is a vehicle or sniff record.
type FrameRecord struct {
	Tag  RecordType
	TS   uint64 // capture time in microseconds
	ID   uint32
	Len  uint8
	Data [8]byte
}

// NewFrameRecord captures frame f. Only the declared bytes are copied and the
// length is clamped to 8.
func NewFrameRecord(typ RecordType, ts uint64, f canbus.Frame) FrameRecord {
	rec := FrameRecord{Tag: typ, TS: ts, ID: f.ID, Len: f.Len}
	if rec.Len > MaxDataLen {
		rec.Len = MaxDataLen
	}
	copy(rec.Data[:rec.Len], f.Data[:rec.Len])
	return rec
}

// Type implements Record.
func (r *FrameRecord) Type() RecordType { return r.Tag }

// Micros implements Record.
func (r *FrameRecord) Micros() uint64 { return r.TS }

// Size implements Record.
func (r *FrameRecord) Size() int { return FrameRecordSize }

// Payload returns the meaningful data bytes.
func (r *FrameRecord) Payload() []byte {
	n := r.Len
	if n > MaxDataLen {
		n = MaxDataLen
	}
	return r.Data[:n]
}

// MarshalTo encodes the record into b, which must hold FrameRecordSize bytes.
// Data bytes past the declared length are written as zero whatever r.Data
// holds there.
func (r *FrameRecord) MarshalTo(b []byte) int {
	b = b[:FrameRecordSize]
	payload := r.Payload()
	b[0] = byte(r.Tag)
	binary.LittleEndian.PutUint64(b[1:9], r.TS)
	binary.LittleEndian.PutUint32(b[9:13], r.ID)
	b[13] = uint8(len(payload))
	n := copy(b[14:], payload)
	clear(b[14+n:])
	return FrameRecordSize
}

// DecodeFrameRecord decodes a vehicle or sniff record. The tag is taken as
// is; callers pick this decoder from the tag they read first.
func DecodeFrameRecord(b []byte) (FrameRecord, error) {
	var rec FrameRecord
	if len(b) < FrameRecordSize {
		return rec, ErrShortRecord
	}
	rec.Tag = RecordType(b[0])
	rec.TS = binary.LittleEndian.Uint64(b[1:9])
	rec.ID = binary.LittleEndian.Uint32(b[9:13])
	rec.Len = b[13]
	if rec.Len > MaxDataLen {
		return rec, ErrBadLength
	}
	copy(rec.Data[:rec.Len], b[14:14+int(rec.Len)])
	return rec, nil
}

// SensorRecord is reserved for on-board sensors.
type SensorRecord struct {
	TS      uint64
	Payload []byte
}

// Type implements Record.
func (r *SensorRecord) Type() RecordType { return RecordSensor }

// Micros implements Record.
func (r *SensorRecord) Micros() uint64 { return r.TS }

// Size implements Record.
func (r *SensorRecord) Size() int { return SensorRecordSize + len(r.Payload) }

// MarshalTo encodes the record into b, which must hold Size() bytes.
func (r *SensorRecord) MarshalTo(b []byte) int {
	b = b[:r.Size()]
	b[0] = byte(RecordSensor)
	binary.LittleEndian.PutUint64(b[1:9], r.TS)
	copy(b[SensorRecordSize:], r.Payload)
	return len(b)
}

// DecodeSensorRecord decodes a sensor record; every byte after the
// timestamp is payload.
func DecodeSensorRecord(b []byte) (SensorRecord, error) {
	var rec SensorRecord
	if len(b) < SensorRecordSize {
		return rec, ErrShortRecord
	}
	rec.TS = binary.LittleEndian.Uint64(b[1:9])
	if len(b) > SensorRecordSize {
		rec.Payload = append([]byte(nil), b[SensorRecordSize:]...)
	}
	return rec, nil
}
