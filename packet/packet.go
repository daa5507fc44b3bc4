package packet

import (
	"sync"

	"github.com/netsys-lab/akhftp/shared"
	"github.com/pkg/errors"
)

var bufPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, shared.PACKET_SIZE)
		return &b
	},
}

// Packet is one PDU. Packets created by BuildPacket own a pooled wire
// buffer until Release is called.
type Packet struct {
	Header Header
	Body   []byte
	buf    *[]byte
	n      int
}

// BuildPacket serializes header followed by body. A nil body results in
// an empty body.
func BuildPacket(h Header, body []byte) *Packet {
	n := HEADER_LEN + len(body)
	var buf *[]byte
	if n <= shared.PACKET_SIZE {
		buf = bufPool.Get().(*[]byte)
	} else {
		b := make([]byte, n)
		buf = &b
	}
	h.Pack(*buf)
	copy((*buf)[HEADER_LEN:n], body)
	return &Packet{
		Header: h,
		Body:   (*buf)[HEADER_LEN:n],
		buf:    buf,
		n:      n,
	}
}

// Bytes returns the serialized packet. Not valid after Release.
func (p *Packet) Bytes() []byte {
	if p.buf == nil {
		return nil
	}
	return (*p.buf)[:p.n]
}

func (p *Packet) Len() int {
	return p.n
}

// Release hands the wire buffer back. Calling it again, or on a decoded
// packet, does nothing.
func (p *Packet) Release() {
	if p.buf == nil {
		return
	}
	if cap(*p.buf) == shared.PACKET_SIZE {
		bufPool.Put(p.buf)
	}
	p.buf = nil
	p.Body = nil
	p.n = 0
}

// Decode parses a received datagram. The body is copied, so buf may be
// reused by the caller.
func Decode(buf []byte) (*Packet, error) {
	p := &Packet{}
	if err := p.Header.Unpack(buf); err != nil {
		return nil, errors.Wrapf(err, "decode %d bytes", len(buf))
	}
	p.Body = make([]byte, len(buf)-HEADER_LEN)
	copy(p.Body, buf[HEADER_LEN:])
	return p, nil
}

func (p *Packet) MsgType() uint8 {
	return p.Header.MsgType()
}
