package akhftp

import (
	"bytes"
	"context"
	"io/ioutil"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/netsys-lab/akhftp/config"
	"github.com/netsys-lab/akhftp/controlplane"
	"github.com/netsys-lab/akhftp/packet"
	"github.com/netsys-lab/akhftp/shared"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Timeout = config.Duration(100 * time.Millisecond)
	cfg.NumTry = 3
	cfg.SegmentSize = 1024
	return cfg
}

func writeSource(t *testing.T, dir string, size int) (string, []byte) {
	data := make([]byte, size)
	rand.New(rand.NewSource(42)).Read(data)
	path := filepath.Join(dir, "source")
	require.NoError(t, ioutil.WriteFile(path, data, 0644))
	return path, data
}

// lossyConn drops the first DATA packet of every segment in drop.
type lossyConn struct {
	net.PacketConn
	sync.Mutex
	drop    map[uint32]bool
	dropped int
}

func (c *lossyConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	p, err := packet.Decode(b)
	if err == nil && p.MsgType() == shared.MSG_DATA {
		index, _, err := DecodeData(p.Body)
		c.Lock()
		if err == nil && c.drop[index] {
			delete(c.drop, index)
			c.dropped++
			c.Unlock()
			return len(b), nil
		}
		c.Unlock()
	}
	return c.PacketConn.WriteTo(b, addr)
}

type transfer struct {
	receiver *Receiver
	results  chan SessionResult
	served   chan error
	cancel   context.CancelFunc
}

func startReceiver(t *testing.T, info controlplane.FileInfo, cfg *config.Config) *transfer {
	r, err := Listen("127.0.0.1:0", StaticFile(info), cfg)
	require.NoError(t, err)
	tr := &transfer{
		receiver: r,
		results:  make(chan SessionResult, 4),
		served:   make(chan error, 1),
	}
	r.OnSession = func(res SessionResult) {
		tr.results <- res
	}
	var ctx context.Context
	ctx, tr.cancel = context.WithCancel(context.Background())
	go func() {
		tr.served <- r.Serve(ctx)
	}()
	return tr
}

func (tr *transfer) stop(t *testing.T) {
	tr.cancel()
	require.NoError(t, <-tr.served)
	tr.receiver.Close()
}

func (tr *transfer) result(t *testing.T) SessionResult {
	select {
	case res := <-tr.results:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("no session result")
	}
	return SessionResult{}
}

func TestTransferAndClose(t *testing.T) {
	dir, err := ioutil.TempDir("", "akhftp-api")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	cfg := testConfig()
	src, data := writeSource(t, dir, 10000)
	dst := filepath.Join(dir, "target")
	tr := startReceiver(t, controlplane.FileInfo{Path: dst, ExpectedSize: uint64(len(data)), SegmentSize: cfg.SegmentSize}, cfg)
	defer tr.stop(t)

	s, err := Dial("", tr.receiver.LocalAddr().String(), cfg)
	require.NoError(t, err)
	require.NoError(t, s.SendFile(src))
	require.NoError(t, s.Close(context.Background()))
	require.Equal(t, 1, s.ControlPlane.Rounds())
	require.Equal(t, controlplane.CP_STATE_CLOSED, s.ControlPlane.State())

	res := tr.result(t)
	require.NoError(t, res.Err)
	require.Equal(t, 1, res.Rounds)
	require.Equal(t, uint64(len(data)), res.Written)

	got, err := ioutil.ReadFile(dst)
	require.NoError(t, err)
	require.True(t, bytes.Equal(data, got))
}

func TestTransferResendsTail(t *testing.T) {
	dir, err := ioutil.TempDir("", "akhftp-api")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	cfg := testConfig()
	src, data := writeSource(t, dir, 10000)
	dst := filepath.Join(dir, "target")
	tr := startReceiver(t, controlplane.FileInfo{Path: dst, ExpectedSize: uint64(len(data)), SegmentSize: cfg.SegmentSize}, cfg)
	defer tr.stop(t)

	conn, err := net.ListenUDP("udp", nil)
	require.NoError(t, err)
	lossy := &lossyConn{PacketConn: conn, drop: map[uint32]bool{8: true, 9: true}}
	s := NewSender(lossy, tr.receiver.LocalAddr(), cfg)

	require.NoError(t, s.SendFile(src))
	require.NoError(t, s.Close(context.Background()))
	require.Equal(t, 2, lossy.dropped)
	require.Equal(t, 2, s.ControlPlane.Rounds())

	res := tr.result(t)
	require.NoError(t, res.Err)
	require.Equal(t, 2, res.Rounds)

	got, err := ioutil.ReadFile(dst)
	require.NoError(t, err)
	require.True(t, bytes.Equal(data, got))
}

func TestCloseWithoutReceiverGivesUp(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = config.Duration(10 * time.Millisecond)
	cfg.NumTry = 1
	cfg.MaxCloseRounds = 2

	silent, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer silent.Close()

	s, err := Dial("", silent.LocalAddr().String(), cfg)
	require.NoError(t, err)
	err = s.Close(context.Background())
	require.ErrorIs(t, err, ErrCloseGaveUp)
	require.Equal(t, 2, s.ControlPlane.Rounds())
}

func TestCloseWithoutFileCannotResend(t *testing.T) {
	dir, err := ioutil.TempDir("", "akhftp-api")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	cfg := testConfig()
	cfg.MaxCloseRounds = 1
	tr := startReceiver(t, controlplane.FileInfo{Path: filepath.Join(dir, "target"), ExpectedSize: 100, SegmentSize: 10}, cfg)
	defer tr.stop(t)

	s, err := Dial("", tr.receiver.LocalAddr().String(), cfg)
	require.NoError(t, err)
	require.ErrorIs(t, s.Close(context.Background()), ErrNoFile)

	// the receiver keeps waiting for a close request and gives up
	res := tr.result(t)
	require.ErrorIs(t, res.Err, controlplane.ErrCloseGaveUp)
}

func TestListenMP(t *testing.T) {
	_, err := ListenMP("localhost", StaticFile(controlplane.FileInfo{}), testConfig(), &MPOptions{NumConns: 2})
	require.Error(t, err)

	dir, err := ioutil.TempDir("", "akhftp-api")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	cfg := testConfig()
	src, data := writeSource(t, dir, 3000)
	dst := filepath.Join(dir, "target")
	mr, err := ListenMP("127.0.0.1:0", StaticFile(controlplane.FileInfo{Path: dst, ExpectedSize: uint64(len(data)), SegmentSize: cfg.SegmentSize}), cfg, nil)
	require.NoError(t, err)
	require.Len(t, mr.Receivers, 1)
	defer mr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() {
		served <- mr.Serve(ctx)
	}()

	s, err := Dial("", mr.Receivers[0].LocalAddr().String(), cfg)
	require.NoError(t, err)
	require.NoError(t, s.SendFile(src))
	require.NoError(t, s.Close(context.Background()))

	cancel()
	require.NoError(t, <-served)
	got, err := ioutil.ReadFile(dst)
	require.NoError(t, err)
	require.True(t, bytes.Equal(data, got))
}

func TestCloseGivesUpOnStaleTarget(t *testing.T) {
	dir, err := ioutil.TempDir("", "akhftp-api")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	cfg := testConfig()
	cfg.SegmentSize = 300
	cfg.MaxCloseRounds = 2
	src, data := writeSource(t, dir, 1000)
	dst := filepath.Join(dir, "target")
	// left over from an earlier run, reaches into the last segment
	require.NoError(t, ioutil.WriteFile(dst, make([]byte, 950), 0644))
	tr := startReceiver(t, controlplane.FileInfo{Path: dst, ExpectedSize: uint64(len(data)), SegmentSize: cfg.SegmentSize}, cfg)
	defer tr.stop(t)

	conn, err := net.ListenUDP("udp", nil)
	require.NoError(t, err)
	lossy := &lossyConn{PacketConn: conn, drop: map[uint32]bool{3: true}}
	s := NewSender(lossy, tr.receiver.LocalAddr(), cfg)

	require.NoError(t, s.SendFile(src))
	require.ErrorIs(t, s.Close(context.Background()), ErrCloseGaveUp)
	require.Equal(t, 2, s.ControlPlane.Rounds())
	require.Equal(t, 1, lossy.dropped)
}
