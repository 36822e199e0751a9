package datalog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/canlog/pkg/canbus"
)

func TestHeader(t *testing.T) {
	hdr := EncodeHeader()
	require.Equal(t, []byte{'S', 'D', 'L', 'G', 0x01}, hdr[:])

	h, err := DecodeHeader(hdr[:])
	require.NoError(t, err)
	require.Equal(t, byte(Version), h.Version)

	_, err = DecodeHeader([]byte("SDLX\x01"))
	require.Equal(t, ErrBadMagic, err)
	_, err = DecodeHeader([]byte("SDL"))
	require.Equal(t, ErrShortRecord, err)
}

func TestFrameRecordLayout(t *testing.T) {
	f := canbus.MustFrame(0x1abcdef, []byte{0xaa, 0xbb, 0xcc})
	rec := NewFrameRecord(RecordVehicle, 0x0102030405060708, f)
	var b [FrameRecordSize]byte
	require.Equal(t, FrameRecordSize, rec.MarshalTo(b[:]))
	require.Equal(t, []byte{
		0x02,
		0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01,
		0xef, 0xcd, 0xab, 0x01,
		0x03,
		0xaa, 0xbb, 0xcc, 0, 0, 0, 0, 0,
	}, b[:])
}

func TestFrameRecordRoundTrip(t *testing.T) {
	for n := 0; n <= MaxDataLen; n++ {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(0xf0 + i)
		}
		f := canbus.MustFrame(0x123, data)
		// stale bytes past the declared length must not leak
		for i := n; i < MaxDataLen; i++ {
			f.Data[i] = 0x5a
		}
		for _, typ := range []RecordType{RecordVehicle, RecordSniff} {
			rec := NewFrameRecord(typ, uint64(n)*1000, f)
			var b [FrameRecordSize]byte
			for i := range b {
				b[i] = 0xff
			}
			rec.MarshalTo(b[:])
			for i := 14 + n; i < FrameRecordSize; i++ {
				require.Zero(t, b[i], "len %d byte %d", n, i)
			}
			got, err := DecodeFrameRecord(b[:])
			require.NoError(t, err)
			require.Equal(t, rec, got)
			require.Equal(t, data, got.Payload())
		}
	}
}

func TestFrameRecordClampsLength(t *testing.T) {
	rec := FrameRecord{Tag: RecordSniff, Len: 12, Data: [8]byte{1, 2, 3, 4, 5, 6, 7, 8}}
	var b [FrameRecordSize]byte
	rec.MarshalTo(b[:])
	require.Equal(t, byte(8), b[13])

	b[13] = 9
	_, err := DecodeFrameRecord(b[:])
	require.Equal(t, ErrBadLength, err)
	_, err = DecodeFrameRecord(b[:FrameRecordSize-1])
	require.Equal(t, ErrShortRecord, err)
}

func TestSensorRecord(t *testing.T) {
	rec := SensorRecord{TS: 42, Payload: []byte{9, 8, 7}}
	b := make([]byte, rec.Size())
	require.Equal(t, 12, rec.MarshalTo(b))
	require.Equal(t, byte(RecordSensor), b[0])
	got, err := DecodeSensorRecord(b)
	require.NoError(t, err)
	require.Equal(t, rec, got)

	empty := SensorRecord{TS: 7}
	b = make([]byte, empty.Size())
	empty.MarshalTo(b)
	got, err = DecodeSensorRecord(b)
	require.NoError(t, err)
	require.Equal(t, empty, got)
}

func TestRecordTypeSize(t *testing.T) {
	testCases := []struct {
		typ  RecordType
		size int
		ok   bool
	}{
		{RecordSensor, SensorRecordSize, true},
		{RecordVehicle, FrameRecordSize, true},
		{RecordSniff, FrameRecordSize, true},
		{RecordType(0), 0, false},
		{RecordType(0x7f), 0, false},
	}
	for _, tc := range testCases {
		t.Run(tc.typ.String(), func(t *testing.T) {
			size, ok := tc.typ.FixedSize()
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.size, size)
		})
	}
}
