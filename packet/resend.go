package packet

import (
	"encoding/binary"
	"errors"
)

const RESEND_FIXED_LEN = 8

var ErrShortBody = errors.New("resend body shorter than announced")

// ResendBody is the body of a RESEND_SEGMENTS message:
// u32 segment size, u32 count, count * u32 segment index.
type ResendBody struct {
	SegmentSize uint32
	Segments    []uint32
}

func (rb *ResendBody) Len() int {
	return RESEND_FIXED_LEN + 4*len(rb.Segments)
}

func (rb *ResendBody) Pack(buf []byte) error {
	if len(buf) < rb.Len() {
		return ErrShortBody
	}
	binary.BigEndian.PutUint32(buf[0:4], rb.SegmentSize)
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(rb.Segments)))
	for i, v := range rb.Segments {
		off := RESEND_FIXED_LEN + 4*i
		binary.BigEndian.PutUint32(buf[off:off+4], v)
	}
	return nil
}

func (rb *ResendBody) Unpack(buf []byte) error {
	if len(buf) < RESEND_FIXED_LEN {
		return ErrShortBody
	}
	segSize := binary.BigEndian.Uint32(buf[0:4])
	count := binary.BigEndian.Uint32(buf[4:8])
	// Check before allocating, count comes from the wire
	if uint64(len(buf)-RESEND_FIXED_LEN) < 4*uint64(count) {
		return ErrShortBody
	}
	segments := make([]uint32, count)
	for i := range segments {
		off := RESEND_FIXED_LEN + 4*i
		segments[i] = binary.BigEndian.Uint32(buf[off : off+4])
	}
	rb.SegmentSize = segSize
	rb.Segments = segments
	return nil
}

func EncodeResendBody(segSize uint32, segments []uint32) []byte {
	rb := ResendBody{SegmentSize: segSize, Segments: segments}
	buf := make([]byte, rb.Len())
	rb.Pack(buf)
	return buf
}

func DecodeResendBody(body []byte) (uint32, []uint32, error) {
	rb := ResendBody{}
	if err := rb.Unpack(body); err != nil {
		return 0, nil, err
	}
	return rb.SegmentSize, rb.Segments, nil
}
