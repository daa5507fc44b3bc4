package akhftp

import (
	"context"
	"net"

	"github.com/netsys-lab/akhftp/config"
	"github.com/netsys-lab/akhftp/controlplane"
	"github.com/netsys-lab/akhftp/dispatch"
	"github.com/netsys-lab/akhftp/socket"
	pkgerrors "github.com/pkg/errors"
)

// FileLookup tells the receiver which file a peer is sending.
type FileLookup func(peer net.Addr) (controlplane.FileInfo, error)

// StaticFile serves every peer with the same target file.
func StaticFile(info controlplane.FileInfo) FileLookup {
	return func(net.Addr) (controlplane.FileInfo, error) {
		return info, nil
	}
}

// SessionResult is reported once per finished client session.
type SessionResult struct {
	Peer    net.Addr
	File    controlplane.FileInfo
	Written uint64
	Rounds  int
	Err     error
}

// Receiver is the receiving end. A single socket serves any number of
// senders, each in its own session.
type Receiver struct {
	Conn       net.PacketConn
	Config     *config.Config
	Files      FileLookup
	Dispatcher *dispatch.Dispatcher
	// OnSession is called from the session's goroutine when it ends.
	OnSession func(SessionResult)
}

// Listen opens the receiving socket on localAddr.
func Listen(localAddr string, files FileLookup, cfg *config.Config) (*Receiver, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	conn, err := socket.Listen(cfg.Network, localAddr)
	if err != nil {
		return nil, err
	}
	return NewReceiver(conn, files, cfg), nil
}

func NewReceiver(conn net.PacketConn, files FileLookup, cfg *config.Config) *Receiver {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Receiver{
		Conn:   conn,
		Config: cfg,
		Files:  files,
	}
}

// Serve runs until ctx is cancelled or the socket fails. Every session has
// finished when it returns.
func (r *Receiver) Serve(ctx context.Context) error {
	r.Dispatcher = dispatch.NewDispatcher(r.Conn, r.Config.QueueLen, func(cc *dispatch.ClientContext) {
		res := r.serveClient(ctx, cc)
		if r.OnSession != nil {
			r.OnSession(res)
		}
	})
	r.Dispatcher.Metrics.Collect()
	defer r.Dispatcher.Metrics.Stop()
	return r.Dispatcher.Run(ctx)
}

func (r *Receiver) serveClient(ctx context.Context, cc *dispatch.ClientContext) SessionResult {
	res := SessionResult{Peer: cc.Peer}
	info, err := r.Files(cc.Peer)
	if err != nil {
		cc.Log.Warnf("No file for peer: %v", err)
		res.Err = err
		return res
	}
	res.File = info

	writer, err := NewSegmentWriter(info.Path, info.SegmentSize)
	if err != nil {
		res.Err = err
		return res
	}
	defer writer.Close()
	writer.Log = cc.Log

	cc.Log.Infof("New session for %s", info.Path)
	cp := controlplane.NewControlPlane(cc, cc.Receiver(r.Config.TimeoutDuration(), r.Config.NumTry), cc.Peer)
	cp.MaxRounds = r.Config.MaxCloseRounds
	cp.Log = cc.Log

	err = cp.ServeClose(ctx, info, controlplane.OSFileSizer{}, writer.Handle)
	if err != nil {
		cc.Log.Warnf("Session ended: %v", err)
		res.Err = pkgerrors.Wrap(err, "serve close")
	} else {
		cc.Log.Infof("Session closed after %d rounds", cp.Rounds())
	}
	res.Written = writer.Written()
	res.Rounds = cp.Rounds()
	return res
}

func (r *Receiver) Close() error {
	return r.Conn.Close()
}

func (r *Receiver) LocalAddr() net.Addr {
	return r.Conn.LocalAddr()
}
