package controlplane

import (
	"errors"
	"math"
	"net"

	"github.com/netsys-lab/akhftp/dataplane"
	"github.com/netsys-lab/akhftp/packet"
	"github.com/netsys-lab/akhftp/shared"
	"github.com/netsys-lab/akhftp/utils"
	pkgerrors "github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var (
	ErrZeroSegmentSize  = errors.New("segment size must be greater than zero")
	ErrTooManySegments  = errors.New("segment index does not fit into 32 bit")
	MAX_RESEND_SEGMENTS = (shared.MAX_BUFFER_SIZE - packet.HEADER_LEN - packet.RESEND_FIXED_LEN) / 4
)

type Decision struct {
	Accepted      bool
	Missing       []uint32
	TransactionId uint32
}

// Responder answers close requests on the receiving side.
type Responder struct {
	Sender dataplane.Sender
	Peer   net.Addr
	Sizer  FileSizer
	Log    *log.Entry
}

func NewResponder(sender dataplane.Sender, peer net.Addr) *Responder {
	return &Responder{
		Sender: sender,
		Peer:   peer,
		Sizer:  OSFileSizer{},
		Log:    log.WithField("peer", peer.String()),
	}
}

// MissingSegments returns the indices of the segments from the first one
// not (even partially) on disk up to the last segment of the file.
func MissingSegments(expectedSize, segmentSize, localFileSize uint64) ([]uint32, error) {
	if segmentSize == 0 {
		return nil, ErrZeroSegmentSize
	}
	if localFileSize >= expectedSize {
		return []uint32{}, nil
	}
	current := utils.CeilDiv(localFileSize, segmentSize)
	last := utils.CeilDiv(expectedSize, segmentSize)
	if last > math.MaxUint32+1 {
		return nil, ErrTooManySegments
	}
	missing := make([]uint32, 0, last-current)
	for i := current; i < last; i++ {
		missing = append(missing, uint32(i))
	}
	return missing, nil
}

// HandleCloseRequest accepts the close if the local file is complete,
// otherwise it requests the missing segments. Exactly one datagram is
// sent, nothing is retried.
func (r *Responder) HandleCloseRequest(expectedSize, segmentSize, localFileSize uint64) (Decision, error) {
	if segmentSize == 0 {
		return Decision{}, ErrZeroSegmentSize
	}
	txnId := packet.NewTransactionId()

	if localFileSize >= expectedSize {
		p := packet.BuildPacket(packet.BuildHeader(shared.MSG_ACCEPT_CLOSE, txnId), nil)
		defer p.Release()
		if _, err := r.Sender.WriteTo(p.Bytes(), r.Peer); err != nil {
			return Decision{}, pkgerrors.Wrap(err, "send accept close")
		}
		r.Log.Infof("Send accept close, txn %d, have %s of %s", txnId,
			utils.ByteCountSI(int64(localFileSize)), utils.ByteCountSI(int64(expectedSize)))
		return Decision{Accepted: true, TransactionId: txnId}, nil
	}

	missing, err := MissingSegments(expectedSize, segmentSize, localFileSize)
	if err != nil {
		return Decision{}, err
	}
	if len(missing) > MAX_RESEND_SEGMENTS {
		// The sender asks again after resending, the rest follows in the next round
		r.Log.Warnf("Requesting %d of %d missing segments, rest does not fit into one datagram", MAX_RESEND_SEGMENTS, len(missing))
		missing = missing[:MAX_RESEND_SEGMENTS]
	}

	body := packet.EncodeResendBody(uint32(segmentSize), missing)
	p := packet.BuildPacket(packet.BuildHeader(shared.MSG_RESEND_SEGMENTS, txnId), body)
	defer p.Release()
	if _, err := r.Sender.WriteTo(p.Bytes(), r.Peer); err != nil {
		return Decision{}, pkgerrors.Wrap(err, "send resend segments")
	}
	r.Log.Infof("Send request segments, txn %d, segment size %d, %d missing", txnId, segmentSize, len(missing))
	r.Log.Debugf("Missing segments %v", missing)
	return Decision{Missing: missing, TransactionId: txnId}, nil
}

// HandleCloseRequestFile looks up the local size of path first.
func (r *Responder) HandleCloseRequestFile(expectedSize, segmentSize uint64, path string) (Decision, error) {
	localFileSize, err := r.Sizer.FileSize(path)
	if err != nil {
		return Decision{}, pkgerrors.Wrapf(err, "size of %s", path)
	}
	return r.HandleCloseRequest(expectedSize, segmentSize, localFileSize)
}
