package dispatch

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/netsys-lab/akhftp/dataplane"
	"github.com/netsys-lab/akhftp/packet"
	"github.com/netsys-lab/akhftp/shared"
	log "github.com/sirupsen/logrus"
)

// Handler serves a single client. It runs in its own goroutine and the
// session is closed when it returns.
type Handler func(cc *ClientContext)

// Dispatcher reads a socket shared by many clients and routes every
// datagram into the queue of the worker serving its peer address.
type Dispatcher struct {
	sync.RWMutex
	Conn     net.PacketConn
	QueueLen int
	Metrics  *dataplane.Metrics
	clients  map[string]*ClientContext
	handler  Handler
	wg       sync.WaitGroup
}

func NewDispatcher(conn net.PacketConn, queueLen int, handler Handler) *Dispatcher {
	if queueLen <= 0 {
		queueLen = shared.DEFAULT_QUEUE_LEN
	}
	return &Dispatcher{
		Conn:     conn,
		QueueLen: queueLen,
		Metrics:  dataplane.NewMetrics(time.Second),
		clients:  make(map[string]*ClientContext),
		handler:  handler,
	}
}

// Run reads until ctx is cancelled or the socket fails. On return all
// queues are closed and all workers have finished.
func (d *Dispatcher) Run(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			// Unblock the pending ReadFrom
			d.Conn.SetReadDeadline(time.Now())
		case <-stop:
		}
	}()

	defer func() {
		d.closeAll()
		d.wg.Wait()
		d.Conn.SetReadDeadline(time.Time{})
	}()

	buf := make([]byte, shared.MAX_BUFFER_SIZE)
	for {
		n, addr, err := d.Conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		d.Metrics.AddRx(n)
		data := make([]byte, n)
		copy(data, buf[:n])
		d.route(dataplane.Datagram{Data: data, Len: n, Addr: addr})
	}
}

func (d *Dispatcher) route(dg dataplane.Datagram) {
	key := dg.Addr.String()
	d.RLock()
	cc, ok := d.clients[key]
	if !ok {
		d.RUnlock()
		cc = d.add(dg.Addr)
		d.RLock()
		// the new worker may already have finished
		if d.clients[key] != cc {
			d.RUnlock()
			return
		}
	}
	// Holding the read lock keeps remove from closing the queue meanwhile
	select {
	case cc.queue <- dg:
	default:
		d.Metrics.AddDropped()
		cc.Log.Debugf("Queue full, dropping %d bytes", dg.Len)
	}
	d.RUnlock()
}

func (d *Dispatcher) add(peer net.Addr) *ClientContext {
	cc := newClientContext(d, peer, d.QueueLen)
	d.Lock()
	d.clients[cc.key] = cc
	d.Unlock()
	cc.Log.Infof("New client")

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cc.Close()
		d.handler(cc)
	}()
	return cc
}

func (d *Dispatcher) remove(cc *ClientContext) {
	d.Lock()
	defer d.Unlock()
	if d.clients[cc.key] != cc {
		return
	}
	delete(d.clients, cc.key)
	close(cc.queue)
	cc.Log.Debugf("Session closed")
}

func (d *Dispatcher) closeAll() {
	d.Lock()
	defer d.Unlock()
	for key, cc := range d.clients {
		delete(d.clients, key)
		close(cc.queue)
	}
}

// NumClients returns the number of active sessions.
func (d *Dispatcher) NumClients() int {
	d.RLock()
	defer d.RUnlock()
	return len(d.clients)
}

// Send writes p to peer and releases it.
func (d *Dispatcher) Send(peer net.Addr, p *packet.Packet) error {
	defer p.Release()
	n, err := d.Conn.WriteTo(p.Bytes(), peer)
	if err != nil {
		return err
	}
	d.Metrics.AddTx(n)
	log.Debugf("Sent %s (%d bytes) to %s", shared.MsgName(p.MsgType()), n, peer)
	return nil
}
