package dispatch

import (
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/netsys-lab/akhftp/dataplane"
	"github.com/netsys-lab/akhftp/packet"
	log "github.com/sirupsen/logrus"
)

// ClientContext is handed to the worker serving one peer. It carries
// everything the worker needs: its delivery queue and the peer address.
type ClientContext struct {
	SessionId uuid.UUID
	Peer      net.Addr
	Log       *log.Entry
	queue     chan dataplane.Datagram
	key       string
	d         *Dispatcher
}

func newClientContext(d *Dispatcher, peer net.Addr, queueLen int) *ClientContext {
	id := uuid.New()
	return &ClientContext{
		SessionId: id,
		Peer:      peer,
		Log: log.WithFields(log.Fields{
			"session": id.String(),
			"peer":    peer.String(),
		}),
		queue: make(chan dataplane.Datagram, queueLen),
		key:   peer.String(),
		d:     d,
	}
}

// Receiver returns a bounded receive on this client's queue.
func (cc *ClientContext) Receiver(timeout time.Duration, numTry int) *dataplane.QueueReceiver {
	qr := dataplane.NewQueueReceiver(cc.queue, timeout, numTry)
	qr.Metrics = cc.d.Metrics
	return qr
}

// Send writes p to the peer over the shared socket. p is released.
func (cc *ClientContext) Send(p *packet.Packet) error {
	return cc.d.Send(cc.Peer, p)
}

// WriteTo lets a ClientContext be used wherever a dataplane.Sender is
// expected.
func (cc *ClientContext) WriteTo(buf []byte, addr net.Addr) (int, error) {
	n, err := cc.d.Conn.WriteTo(buf, addr)
	if err == nil {
		cc.d.Metrics.AddTx(n)
	}
	return n, err
}

// Close ends the session: the peer is unrouted and the queue closed.
// Datagrams from the same peer afterwards start a new session.
func (cc *ClientContext) Close() {
	cc.d.remove(cc)
}

var _ dataplane.Sender = &ClientContext{}
