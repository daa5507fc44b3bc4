package controlplane

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/netsys-lab/akhftp/dataplane"
	"github.com/netsys-lab/akhftp/packet"
	"github.com/netsys-lab/akhftp/shared"
	pkgerrors "github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	CP_STATE_SENDING    = 100
	CP_STATE_RETRANSFER = 101
	CP_STATE_CLOSING    = 102
	CP_STATE_PENDING    = 200
	CP_STATE_RECEIVING  = 300
	CP_STATE_CLOSED     = 400
)

var ErrCloseGaveUp = errors.New("close negotiation gave up")

// SegmentResender sends the given segments of the file again. It is the
// hook into the bulk transfer.
type SegmentResender interface {
	ResendSegments(segmentSize uint32, segments []uint32) error
}

// DataHandler gets every packet that is not part of the close
// negotiation while the receiver waits for a close request.
type DataHandler func(p *packet.Packet) error

// FileInfo describes the file a receiver expects from one peer.
type FileInfo struct {
	Path         string
	ExpectedSize uint64
	SegmentSize  uint64
}

// ControlPlane drives the close negotiation of one connection, either as
// sender (NegotiateClose) or as receiver (ServeClose).
type ControlPlane struct {
	sync.Mutex
	Sender    dataplane.Sender
	Receiver  dataplane.Receiver
	Peer      net.Addr
	MaxRounds int
	Log       *log.Entry
	state     int
	rounds    int
}

func NewControlPlane(sender dataplane.Sender, receiver dataplane.Receiver, peer net.Addr) *ControlPlane {
	return &ControlPlane{
		Sender:    sender,
		Receiver:  receiver,
		Peer:      peer,
		MaxRounds: shared.MAX_CLOSE_ROUNDS,
		Log:       log.WithField("peer", peer.String()),
		state:     CP_STATE_PENDING,
	}
}

func (cp *ControlPlane) SetState(state int) {
	cp.Lock()
	cp.state = state
	cp.Unlock()
}

func (cp *ControlPlane) State() int {
	cp.Lock()
	defer cp.Unlock()
	return cp.state
}

// Rounds returns how many close requests were sent or answered.
func (cp *ControlPlane) Rounds() int {
	cp.Lock()
	defer cp.Unlock()
	return cp.rounds
}

func (cp *ControlPlane) nextRound() int {
	cp.Lock()
	defer cp.Unlock()
	cp.rounds++
	return cp.rounds
}

// NegotiateClose requests closing until the receiver accepts. Missing
// segments are handed to resender before asking again. Rounds without
// progress count against MaxRounds: time-outs and requests to resend
// nothing.
func (cp *ControlPlane) NegotiateClose(ctx context.Context, resender SegmentResender) error {
	cp.SetState(CP_STATE_CLOSING)
	resp := &DisconnectResponse{}
	stalled := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		round := cp.nextRound()

		req, err := RequestClose(cp.Sender, cp.Peer)
		if err != nil {
			return err
		}

		outcome, err := WaitForCloseResponse(cp.Receiver, resp)
		if errors.Is(err, packet.ErrShortPacket) || errors.Is(err, packet.ErrShortBody) {
			cp.Log.Warnf("Dropping malformed close response: %v", err)
			outcome = OUTCOME_UNRECOGNIZED
		} else if err != nil {
			return err
		}
		cp.Log.Debugf("Close round %d: %s (request txn %d, response txn %d)", round, outcome, req.TransactionId, resp.TransactionId)

		switch outcome {
		case OUTCOME_ACCEPTED:
			cp.SetState(CP_STATE_CLOSED)
			cp.Log.Infof("Connection closed after %d rounds", round)
			return nil
		case OUTCOME_MUST_RESEND:
			if len(resp.MissingSegments) == 0 {
				stalled++
				if stalled >= cp.MaxRounds {
					cp.Log.Warnf("Receiver still incomplete after %d rounds without segments to resend", stalled)
					return ErrCloseGaveUp
				}
				continue
			}
			stalled = 0
			cp.SetState(CP_STATE_RETRANSFER)
			if err := resender.ResendSegments(resp.SegmentSize, resp.MissingSegments); err != nil {
				return pkgerrors.Wrap(err, "resend segments")
			}
			resp.Reset()
			cp.SetState(CP_STATE_CLOSING)
		case OUTCOME_UNRECOGNIZED:
			// leave it to the next round
		case OUTCOME_TIMED_OUT:
			stalled++
			if stalled >= cp.MaxRounds {
				cp.Log.Warnf("No close response after %d rounds", stalled)
				return ErrCloseGaveUp
			}
		}
	}
}

// ServeClose waits for close requests from the peer and answers them
// until the whole file is there. Other packets go to onData.
func (cp *ControlPlane) ServeClose(ctx context.Context, info FileInfo, sizer FileSizer, onData DataHandler) error {
	cp.SetState(CP_STATE_RECEIVING)
	responder := &Responder{
		Sender: cp.Sender,
		Peer:   cp.Peer,
		Sizer:  sizer,
		Log:    cp.Log,
	}
	buf := make([]byte, shared.MAX_BUFFER_SIZE)
	timeouts := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, _, err := cp.Receiver.Receive(buf)
		if errors.Is(err, dataplane.ErrTimeout) {
			timeouts++
			if timeouts >= cp.MaxRounds {
				cp.Log.Warnf("Peer silent for %d rounds", timeouts)
				return ErrCloseGaveUp
			}
			continue
		}
		if err != nil {
			return err
		}
		timeouts = 0

		p, err := packet.Decode(buf[:n])
		if err != nil {
			cp.Log.Warnf("Dropping malformed packet: %v", err)
			continue
		}

		if p.MsgType() != shared.MSG_CLOSE_REQUEST {
			if onData == nil {
				cp.Log.Debugf("Ignoring %s packet", shared.MsgName(p.MsgType()))
				continue
			}
			if err := onData(p); err != nil {
				return pkgerrors.Wrapf(err, "handle %s packet", shared.MsgName(p.MsgType()))
			}
			continue
		}

		round := cp.nextRound()
		cp.Log.Infof("Receive close request, txn %d, round %d", p.Header.TransactionId, round)
		cp.SetState(CP_STATE_CLOSING)
		decision, err := responder.HandleCloseRequestFile(info.ExpectedSize, info.SegmentSize, info.Path)
		if err != nil {
			return err
		}
		if decision.Accepted {
			cp.SetState(CP_STATE_CLOSED)
			return nil
		}
		cp.SetState(CP_STATE_RECEIVING)
	}
}
