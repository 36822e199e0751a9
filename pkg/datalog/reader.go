package datalog

import (
	"bufio"
	"errors"
	"io"
)

// Reader decodes a session file.
type Reader struct {
	Header Header

	r      *bufio.Reader
	offset int64
	buf    [FrameRecordSize]byte
}

// NewReader reads and validates the header. It fails with ErrBadMagic for
// foreign data and *VersionError for a format it cannot decode.
func NewReader(r io.Reader) (*Reader, error) {
	rd := &Reader{r: bufio.NewReader(r)}
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(rd.r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrBadMagic
		}
		return nil, err
	}
	h, err := DecodeHeader(hdr[:])
	if err != nil {
		return nil, err
	}
	if h.Version != Version {
		return nil, &VersionError{Version: h.Version}
	}
	rd.Header, rd.offset = h, HeaderSize
	return rd, nil
}

// Offset returns the file offset of the next record.
func (r *Reader) Offset() int64 {
	return r.offset
}

// Next decodes the next record. It returns io.EOF at the end of the file and
// io.ErrUnexpectedEOF for a truncated trailing record.
func (r *Reader) Next() (Record, error) {
	tag, err := r.r.ReadByte()
	if err != nil {
		return nil, err
	}
	size, ok := RecordType(tag).FixedSize()
	if !ok {
		return nil, &UnknownRecordError{Tag: tag, Offset: r.offset}
	}
	b := r.buf[:size]
	b[0] = tag
	if _, err = io.ReadFull(r.r, b[1:]); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	r.offset += int64(size)

	switch RecordType(tag) {
	case RecordSensor:
		rec, err := DecodeSensorRecord(b)
		return &rec, err
	default:
		rec, err := DecodeFrameRecord(b)
		return &rec, err
	}
}
