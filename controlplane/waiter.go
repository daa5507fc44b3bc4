package controlplane

import (
	"github.com/netsys-lab/akhftp/dataplane"
	"github.com/netsys-lab/akhftp/packet"
	"github.com/netsys-lab/akhftp/shared"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// WaitForCloseResponse reads one response to a close request and
// classifies it. The previous contents of resp are dropped first.
// Running out of attempts is reported as OUTCOME_TIMED_OUT, not as error.
// Which transport is used depends only on r.
func WaitForCloseResponse(r dataplane.Receiver, resp *DisconnectResponse) (Outcome, error) {
	resp.Reset()

	buf := make([]byte, shared.MAX_BUFFER_SIZE)
	n, addr, err := r.Receive(buf)
	if errors.Is(err, dataplane.ErrTimeout) {
		log.Info("Time-out waiting for close response")
		return OUTCOME_TIMED_OUT, nil
	}
	if err != nil {
		return OUTCOME_TIMED_OUT, errors.Wrap(err, "receive close response")
	}

	p, err := packet.Decode(buf[:n])
	if err != nil {
		return OUTCOME_UNRECOGNIZED, err
	}
	resp.ResponseType = p.MsgType()
	resp.TransactionId = p.Header.TransactionId
	resp.Peer = addr
	// TODO: compare against the transaction id of the close request once
	// the receiver echoes it back. Until then a delayed RESEND from an
	// earlier round is taken as the answer to the current one.
	log.Debugf("Close response %s txn %d from %s", shared.MsgName(resp.ResponseType), resp.TransactionId, addr)

	switch resp.ResponseType {
	case shared.MSG_ACCEPT_CLOSE:
		log.Info("Receive accept close")
		return OUTCOME_ACCEPTED, nil
	case shared.MSG_RESEND_SEGMENTS:
		segSize, segments, err := packet.DecodeResendBody(p.Body)
		if err != nil {
			return OUTCOME_UNRECOGNIZED, errors.Wrap(err, "decode resend segments")
		}
		resp.Replace(segSize, segments)
		log.Infof("Receive request segments, segment size %d, %d missing", segSize, len(segments))
		log.Debugf("Missing segments %v", segments)
		return OUTCOME_MUST_RESEND, nil
	}

	log.Warnf("Receive other message type %#x", resp.ResponseType)
	return OUTCOME_UNRECOGNIZED, nil
}
