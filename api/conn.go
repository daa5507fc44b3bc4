package akhftp

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/netsys-lab/akhftp/config"
	"github.com/netsys-lab/akhftp/controlplane"
	"github.com/netsys-lab/akhftp/dataplane"
	"github.com/netsys-lab/akhftp/socket"
	pkgerrors "github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var ErrCloseGaveUp = controlplane.ErrCloseGaveUp

// Sender is the sending end of a transfer. It owns its socket.
type Sender struct {
	sync.Mutex
	Conn         net.PacketConn
	Remote       net.Addr
	Config       *config.Config
	Metrics      *dataplane.Metrics
	ControlPlane *controlplane.ControlPlane
	segments     *FileSegmentSender
}

var _ dataplane.Sender = &Sender{}

// Dial opens a socket on localAddr (may be empty) for talking to remote.
func Dial(localAddr, remote string, cfg *config.Config) (*Sender, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	conn, remoteAddr, err := socket.Dial(cfg.Network, localAddr, remote)
	if err != nil {
		return nil, err
	}
	return NewSender(conn, remoteAddr, cfg), nil
}

// NewSender builds a Sender on an already opened socket.
func NewSender(conn net.PacketConn, remote net.Addr, cfg *config.Config) *Sender {
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Sender{
		Conn:    conn,
		Remote:  remote,
		Config:  cfg,
		Metrics: dataplane.NewMetrics(time.Second),
	}
	receiver := dataplane.NewSocketReceiver(conn, cfg.TimeoutDuration(), cfg.NumTry)
	receiver.Metrics = s.Metrics
	s.ControlPlane = controlplane.NewControlPlane(s, receiver, remote)
	s.ControlPlane.MaxRounds = cfg.MaxCloseRounds
	s.ControlPlane.SetState(controlplane.CP_STATE_SENDING)
	return s
}

// WriteTo sends over the sender's socket and counts the bytes.
func (s *Sender) WriteTo(b []byte, addr net.Addr) (int, error) {
	n, err := s.Conn.WriteTo(b, addr)
	if err == nil {
		s.Metrics.AddTx(n)
	}
	return n, err
}

// SendFile pushes every segment of the file at path to the receiver once.
// Segments the receiver misses are resent from the same file during Close.
func (s *Sender) SendFile(path string) error {
	fs, err := NewFileSegmentSender(path, s.Config.SegmentSize, s, s.Remote)
	if err != nil {
		return err
	}
	if s.Config.MaxSpeed > 0 {
		fs.RateControl = dataplane.NewRateControl(100*time.Millisecond, s.Config.MaxSpeed)
	}
	s.Lock()
	if s.segments != nil {
		s.segments.Close()
	}
	s.segments = fs
	s.Unlock()
	return fs.SendAll()
}

// Close negotiates the end of the transfer with the receiver and closes
// the socket, whether the negotiation succeeded or not.
func (s *Sender) Close(ctx context.Context) error {
	s.Lock()
	var resender controlplane.SegmentResender = nopResender{}
	if s.segments != nil {
		resender = s.segments
	}
	s.Unlock()

	err := s.ControlPlane.NegotiateClose(ctx, resender)
	if err != nil {
		err = pkgerrors.Wrap(err, "close negotiation")
	}
	return s.shutdown(err)
}

func (s *Sender) shutdown(err error) error {
	s.Lock()
	defer s.Unlock()
	if s.segments != nil {
		s.segments.Close()
		s.segments = nil
	}
	if cerr := s.Conn.Close(); err == nil && cerr != nil {
		err = cerr
	}
	m := s.Metrics.Snapshot()
	log.Debugf("Sender closed: tx %d packets/%d bytes, rx %d packets, %d timeouts", m.TxPackets, m.TxBytes, m.RxPackets, m.Timeouts)
	return err
}

func (s *Sender) LocalAddr() net.Addr {
	return s.Conn.LocalAddr()
}

func (s *Sender) RemoteAddr() net.Addr {
	return s.Remote
}
