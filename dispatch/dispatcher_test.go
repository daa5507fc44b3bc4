package dispatch

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/netsys-lab/akhftp/dataplane"
	"github.com/netsys-lab/akhftp/packet"
	"github.com/netsys-lab/akhftp/shared"
	"github.com/stretchr/testify/require"
)

func listen(t *testing.T) net.PacketConn {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	return conn
}

func startDispatcher(t *testing.T, queueLen int, handler Handler) (*Dispatcher, func()) {
	conn := listen(t)
	d := NewDispatcher(conn, queueLen, handler)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- d.Run(ctx)
	}()
	return d, func() {
		cancel()
		require.NoError(t, <-done)
		conn.Close()
	}
}

func TestDispatcherRoutesByPeer(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string][]string)
	crossed := false

	d, stop := startDispatcher(t, 8, func(cc *ClientContext) {
		r := cc.Receiver(50*time.Millisecond, 4)
		buf := make([]byte, 64)
		for {
			n, addr, err := r.Receive(buf)
			if err != nil {
				return
			}
			mu.Lock()
			if addr.String() != cc.Peer.String() {
				crossed = true
			}
			seen[cc.Peer.String()] = append(seen[cc.Peer.String()], string(buf[:n]))
			mu.Unlock()
		}
	})
	defer stop()

	clients := []net.PacketConn{listen(t), listen(t), listen(t)}
	for i, c := range clients {
		defer c.Close()
		for j := 0; j < 3; j++ {
			_, err := c.WriteTo([]byte(fmt.Sprintf("c%d-%d", i, j)), d.Conn.LocalAddr())
			require.NoError(t, err)
		}
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		total := 0
		for _, v := range seen {
			total += len(v)
		}
		return total == 9
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.False(t, crossed)
	require.Len(t, seen, 3)
	for i, c := range clients {
		msgs := seen[c.LocalAddr().String()]
		require.Len(t, msgs, 3)
		for _, m := range msgs {
			require.Contains(t, m, fmt.Sprintf("c%d-", i))
		}
	}
}

func TestDispatcherSendReachesPeer(t *testing.T) {
	d, stop := startDispatcher(t, 8, func(cc *ClientContext) {
		r := cc.Receiver(50*time.Millisecond, 2)
		buf := make([]byte, 64)
		if _, _, err := r.Receive(buf); err != nil {
			return
		}
		cc.Send(packet.BuildPacket(packet.BuildHeader(shared.MSG_ACCEPT_CLOSE, 42), nil))
	})
	defer stop()

	client := listen(t)
	defer client.Close()
	_, err := client.WriteTo([]byte("hi"), d.Conn.LocalAddr())
	require.NoError(t, err)

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, _, err := client.ReadFrom(buf)
	require.NoError(t, err)
	p, err := packet.Decode(buf[:n])
	require.NoError(t, err)
	require.Equal(t, uint8(shared.MSG_ACCEPT_CLOSE), p.MsgType())
	require.Equal(t, uint32(42), p.Header.TransactionId)
	require.GreaterOrEqual(t, d.Metrics.Snapshot().TxPackets, uint64(1))
}

func TestDispatcherSessionEndsWithHandler(t *testing.T) {
	started := make(chan *ClientContext, 4)
	d, stop := startDispatcher(t, 8, func(cc *ClientContext) {
		started <- cc
	})
	defer stop()

	client := listen(t)
	defer client.Close()
	client.WriteTo([]byte("a"), d.Conn.LocalAddr())
	first := <-started

	require.Eventually(t, func() bool {
		return d.NumClients() == 0
	}, time.Second, 5*time.Millisecond)

	// same peer again opens a new session
	client.WriteTo([]byte("b"), d.Conn.LocalAddr())
	second := <-started
	require.NotEqual(t, first.SessionId, second.SessionId)
	require.Equal(t, first.Peer.String(), second.Peer.String())
}

func TestDispatcherCancelClosesQueues(t *testing.T) {
	errs := make(chan error, 1)
	d, stop := startDispatcher(t, 8, func(cc *ClientContext) {
		r := cc.Receiver(time.Hour, 1)
		buf := make([]byte, 64)
		// first datagram
		r.Receive(buf)
		_, _, err := r.Receive(buf)
		errs <- err
	})

	client := listen(t)
	defer client.Close()
	client.WriteTo([]byte("a"), d.Conn.LocalAddr())
	require.Eventually(t, func() bool {
		return d.NumClients() == 1
	}, time.Second, 5*time.Millisecond)

	stop()
	require.ErrorIs(t, <-errs, dataplane.ErrQueueClosed)
	require.Equal(t, 0, d.NumClients())
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	release := make(chan struct{})
	d, stop := startDispatcher(t, 1, func(cc *ClientContext) {
		<-release
	})
	defer stop()
	defer close(release)

	client := listen(t)
	defer client.Close()
	for i := 0; i < 5; i++ {
		client.WriteTo([]byte("x"), d.Conn.LocalAddr())
	}

	require.Eventually(t, func() bool {
		s := d.Metrics.Snapshot()
		return s.RxPackets == 5 && s.Dropped == 4
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDispatcherRunsAgainAfterCancel(t *testing.T) {
	conn := listen(t)
	defer conn.Close()
	got := make(chan string, 2)
	handler := func(cc *ClientContext) {
		r := cc.Receiver(50*time.Millisecond, 2)
		buf := make([]byte, 64)
		n, _, err := r.Receive(buf)
		if err == nil {
			got <- string(buf[:n])
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, NewDispatcher(conn, 8, handler).Run(ctx))

	d := NewDispatcher(conn, 8, handler)
	ctx, cancel = context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- d.Run(ctx)
	}()

	client := listen(t)
	defer client.Close()
	_, err := client.WriteTo([]byte("again"), conn.LocalAddr())
	require.NoError(t, err)

	select {
	case m := <-got:
		require.Equal(t, "again", m)
	case <-time.After(2 * time.Second):
		t.Fatal("second run did not deliver")
	}
	cancel()
	require.NoError(t, <-done)
}
