package datalog

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/canlog/pkg/canbus"
)

func encodeSession(recs ...Record) []byte {
	hdr := EncodeHeader()
	out := append([]byte(nil), hdr[:]...)
	for _, rec := range recs {
		b := make([]byte, rec.Size())
		rec.MarshalTo(b)
		out = append(out, b...)
	}
	return out
}

func TestReaderDecodesSession(t *testing.T) {
	vehicle := NewFrameRecord(RecordVehicle, 1000, canbus.MustFrame(0x123, []byte{1, 2, 3}))
	sniff := NewFrameRecord(RecordSniff, 1500, canbus.MustFrame(0x18ff0001, nil))
	sensor := SensorRecord{TS: 2000}
	data := encodeSession(&vehicle, &sensor, &sniff)

	rd, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, byte(Version), rd.Header.Version)
	require.Equal(t, int64(HeaderSize), rd.Offset())

	rec, err := rd.Next()
	require.NoError(t, err)
	require.Equal(t, &vehicle, rec)
	rec, err = rd.Next()
	require.NoError(t, err)
	require.Equal(t, &sensor, rec)
	rec, err = rd.Next()
	require.NoError(t, err)
	require.Equal(t, RecordSniff, rec.Type())
	require.Equal(t, uint64(1500), rec.Micros())
	require.Empty(t, rec.(*FrameRecord).Payload())

	_, err = rd.Next()
	require.Equal(t, io.EOF, err)
	require.Equal(t, int64(len(data)), rd.Offset())
}

func TestReaderErrors(t *testing.T) {
	good := NewFrameRecord(RecordVehicle, 1, canbus.MustFrame(1, []byte{1}))
	session := encodeSession(&good)

	t.Run("empty", func(t *testing.T) {
		_, err := NewReader(bytes.NewReader(nil))
		require.Equal(t, ErrBadMagic, err)
	})

	t.Run("magic", func(t *testing.T) {
		_, err := NewReader(bytes.NewReader([]byte("CANL\x01")))
		require.Equal(t, ErrBadMagic, err)
	})

	t.Run("version", func(t *testing.T) {
		_, err := NewReader(bytes.NewReader([]byte("SDLG\x02")))
		var verr *VersionError
		require.ErrorAs(t, err, &verr)
		require.Equal(t, byte(2), verr.Version)
	})

	t.Run("unknown tag", func(t *testing.T) {
		data := append(append([]byte(nil), session...), 0x09, 0, 0)
		rd, err := NewReader(bytes.NewReader(data))
		require.NoError(t, err)
		_, err = rd.Next()
		require.NoError(t, err)
		_, err = rd.Next()
		var uerr *UnknownRecordError
		require.ErrorAs(t, err, &uerr)
		require.Equal(t, byte(0x09), uerr.Tag)
		require.Equal(t, int64(HeaderSize+FrameRecordSize), uerr.Offset)
	})

	t.Run("truncated", func(t *testing.T) {
		rd, err := NewReader(bytes.NewReader(session[:len(session)-3]))
		require.NoError(t, err)
		_, err = rd.Next()
		require.Equal(t, io.ErrUnexpectedEOF, err)
	})
}
