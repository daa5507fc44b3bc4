package dataplane

import (
	"errors"
	"net"
)

var (
	ErrTimeout     = errors.New("no datagram within timeout")
	ErrQueueClosed = errors.New("delivery queue closed")
)

// Datagram is one received packet together with the peer it came from.
type Datagram struct {
	Data []byte
	Len  int
	Addr net.Addr
}

// Receiver is a blocking receive bounded by a per-attempt timeout and a
// number of attempts. Implementations must return ErrTimeout once all
// attempts elapsed without a datagram.
type Receiver interface {
	Receive(buf []byte) (int, net.Addr, error)
}

// Sender writes a serialized packet to a peer. net.PacketConn satisfies it.
type Sender interface {
	WriteTo(buf []byte, addr net.Addr) (int, error)
}

// Ensuring interface compatability at compile time.
var _ Receiver = &SocketReceiver{}
var _ Receiver = &QueueReceiver{}
var _ Sender = (net.PacketConn)(nil)
