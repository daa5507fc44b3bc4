package dataplane

import (
	"net"
	"time"

	log "github.com/sirupsen/logrus"
)

// SocketReceiver reads straight from a socket. It does not demultiplex,
// so it fits a single connection only.
type SocketReceiver struct {
	Conn    net.PacketConn
	Timeout time.Duration
	NumTry  int
	Metrics *Metrics
}

func NewSocketReceiver(conn net.PacketConn, timeout time.Duration, numTry int) *SocketReceiver {
	return &SocketReceiver{
		Conn:    conn,
		Timeout: timeout,
		NumTry:  numTry,
	}
}

func (sr *SocketReceiver) Receive(buf []byte) (int, net.Addr, error) {
	defer sr.Conn.SetReadDeadline(time.Time{})
	for i := 0; i < sr.NumTry; i++ {
		err := sr.Conn.SetReadDeadline(time.Now().Add(sr.Timeout))
		if err != nil {
			return 0, nil, err
		}
		n, addr, err := sr.Conn.ReadFrom(buf)
		if err == nil {
			sr.Metrics.AddRx(n)
			return n, addr, nil
		}
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			log.Debugf("Receive attempt %d/%d timed out after %s", i+1, sr.NumTry, sr.Timeout)
			sr.Metrics.AddTimeout()
			continue
		}
		return 0, nil, err
	}
	return 0, nil, ErrTimeout
}

// QueueReceiver pulls from a worker's private delivery queue instead of
// the shared socket.
type QueueReceiver struct {
	Queue   <-chan Datagram
	Timeout time.Duration
	NumTry  int
	Metrics *Metrics
}

func NewQueueReceiver(queue <-chan Datagram, timeout time.Duration, numTry int) *QueueReceiver {
	return &QueueReceiver{
		Queue:   queue,
		Timeout: timeout,
		NumTry:  numTry,
	}
}

func (qr *QueueReceiver) Receive(buf []byte) (int, net.Addr, error) {
	timer := time.NewTimer(qr.Timeout)
	defer timer.Stop()
	for i := 0; i < qr.NumTry; i++ {
		if i > 0 {
			timer.Reset(qr.Timeout)
		}
		select {
		case d, ok := <-qr.Queue:
			if !ok {
				return 0, nil, ErrQueueClosed
			}
			n := copy(buf, d.Data[:d.Len])
			return n, d.Addr, nil
		case <-timer.C:
			log.Debugf("Queue attempt %d/%d timed out after %s", i+1, qr.NumTry, qr.Timeout)
			qr.Metrics.AddTimeout()
		}
	}
	return 0, nil, ErrTimeout
}
