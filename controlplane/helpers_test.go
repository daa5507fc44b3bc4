package controlplane

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/netsys-lab/akhftp/dataplane"
	"github.com/netsys-lab/akhftp/packet"
	"github.com/netsys-lab/akhftp/shared"
	"github.com/stretchr/testify/require"
)

var testPeer = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}

// recordingSender keeps a copy of everything written.
type recordingSender struct {
	sync.Mutex
	packets [][]byte
	addrs   []net.Addr
	err     error
}

func (s *recordingSender) WriteTo(b []byte, addr net.Addr) (int, error) {
	s.Lock()
	defer s.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	c := make([]byte, len(b))
	copy(c, b)
	s.packets = append(s.packets, c)
	s.addrs = append(s.addrs, addr)
	return len(b), nil
}

func (s *recordingSender) decoded(t *testing.T) []*packet.Packet {
	s.Lock()
	defer s.Unlock()
	res := make([]*packet.Packet, 0, len(s.packets))
	for _, b := range s.packets {
		p, err := packet.Decode(b)
		require.NoError(t, err)
		res = append(res, p)
	}
	return res
}

var errSendFailed = errors.New("send failed")

func queueWith(packets ...*packet.Packet) chan dataplane.Datagram {
	queue := make(chan dataplane.Datagram, len(packets)+1)
	for _, p := range packets {
		b := make([]byte, p.Len())
		copy(b, p.Bytes())
		p.Release()
		queue <- dataplane.Datagram{Data: b, Len: len(b), Addr: testPeer}
	}
	return queue
}

func resendPacket(segSize uint32, segments []uint32) *packet.Packet {
	return packet.BuildPacket(
		packet.BuildHeader(shared.MSG_RESEND_SEGMENTS, packet.NewTransactionId()),
		packet.EncodeResendBody(segSize, segments),
	)
}

func acceptPacket() *packet.Packet {
	return packet.BuildPacket(packet.BuildHeader(shared.MSG_ACCEPT_CLOSE, packet.NewTransactionId()), nil)
}

func fastQueueReceiver(queue chan dataplane.Datagram) *dataplane.QueueReceiver {
	return dataplane.NewQueueReceiver(queue, 20*time.Millisecond, 3)
}
