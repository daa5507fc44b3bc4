package packet

import (
	"crypto/rand"
	"encoding/binary"
	"errors"

	"github.com/netsys-lab/akhftp/shared"
)

const HEADER_LEN = 8

var ErrShortPacket = errors.New("packet shorter than header")

// Header is the fixed part of every PDU: flags (message type and
// version) followed by the transaction id, both big endian.
type Header struct {
	Flags         uint32
	TransactionId uint32
}

func BuildHeader(msgType uint8, txnId uint32) Header {
	return Header{
		Flags:         shared.NewFlags(msgType),
		TransactionId: txnId,
	}
}

func (h *Header) MsgType() uint8 {
	return shared.MsgType(h.Flags)
}

func (h *Header) Len() int {
	return HEADER_LEN
}

func (h *Header) Pack(buf []byte) error {
	if len(buf) < HEADER_LEN {
		return ErrShortPacket
	}
	binary.BigEndian.PutUint32(buf[0:4], h.Flags)
	binary.BigEndian.PutUint32(buf[4:8], h.TransactionId)
	return nil
}

func (h *Header) Unpack(buf []byte) error {
	if len(buf) < HEADER_LEN {
		return ErrShortPacket
	}
	h.Flags = binary.BigEndian.Uint32(buf[0:4])
	h.TransactionId = binary.BigEndian.Uint32(buf[4:8])
	return nil
}

// NewTransactionId returns a random 32 bit transaction id.
func NewTransactionId() uint32 {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand only fails if the system source is broken
		panic(err)
	}
	return binary.BigEndian.Uint32(b)
}
