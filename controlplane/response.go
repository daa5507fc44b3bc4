package controlplane

import (
	"fmt"
	"net"
)

type Outcome int

const (
	OUTCOME_TIMED_OUT Outcome = iota
	OUTCOME_ACCEPTED
	OUTCOME_MUST_RESEND
	OUTCOME_UNRECOGNIZED
)

func (o Outcome) String() string {
	switch o {
	case OUTCOME_TIMED_OUT:
		return "TimedOut"
	case OUTCOME_ACCEPTED:
		return "Accepted"
	case OUTCOME_MUST_RESEND:
		return "MustResend"
	case OUTCOME_UNRECOGNIZED:
		return "Unrecognized"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// DisconnectResponse holds the last response to a close request.
// MissingSegments is only set for RESEND_SEGMENTS responses and
// len(MissingSegments) == SegmentCount in that case.
type DisconnectResponse struct {
	ResponseType  uint8
	TransactionId uint32
	Peer          net.Addr
	SegmentSize   uint32
	SegmentCount  uint32
	// The caller owns this slice until the next Reset or Replace
	MissingSegments []uint32
}

// Reset drops everything from the previous response.
func (dr *DisconnectResponse) Reset() {
	*dr = DisconnectResponse{}
}

// Replace stores a new missing segment list, dropping the old one.
func (dr *DisconnectResponse) Replace(segmentSize uint32, segments []uint32) {
	dr.SegmentSize = segmentSize
	dr.SegmentCount = uint32(len(segments))
	dr.MissingSegments = segments
}
