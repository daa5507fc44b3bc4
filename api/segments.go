package akhftp

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"os"
	"sync"

	"github.com/netsys-lab/akhftp/controlplane"
	"github.com/netsys-lab/akhftp/dataplane"
	"github.com/netsys-lab/akhftp/packet"
	"github.com/netsys-lab/akhftp/shared"
	"github.com/netsys-lab/akhftp/utils"
	pkgerrors "github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	SEGMENT_INDEX_LEN = 4
)

var (
	ErrSegmentTooLarge = errors.New("segment does not fit into one datagram")
	ErrShortData       = errors.New("data packet shorter than segment index")
	ErrNoFile          = errors.New("no file to resend segments from")
)

// EncodeData builds the body of a DATA packet: [u32 index][payload].
func EncodeData(index uint32, payload []byte) []byte {
	body := make([]byte, SEGMENT_INDEX_LEN+len(payload))
	binary.BigEndian.PutUint32(body, index)
	copy(body[SEGMENT_INDEX_LEN:], payload)
	return body
}

func DecodeData(body []byte) (uint32, []byte, error) {
	if len(body) < SEGMENT_INDEX_LEN {
		return 0, nil, ErrShortData
	}
	return binary.BigEndian.Uint32(body), body[SEGMENT_INDEX_LEN:], nil
}

// FileSegmentSender reads segments of a local file and sends them to the
// peer as DATA packets.
type FileSegmentSender struct {
	sync.Mutex
	File        *os.File
	Size        uint64
	SegmentSize uint64
	Sender      dataplane.Sender
	Peer        net.Addr
	RateControl *dataplane.RateControl
	Log         *log.Entry
	sent        int
}

var _ controlplane.SegmentResender = &FileSegmentSender{}

func NewFileSegmentSender(path string, segmentSize uint64, sender dataplane.Sender, peer net.Addr) (*FileSegmentSender, error) {
	if segmentSize == 0 {
		return nil, controlplane.ErrZeroSegmentSize
	}
	if segmentSize > shared.MAX_SEGMENT_SIZE {
		return nil, ErrSegmentTooLarge
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "open source file")
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, pkgerrors.Wrap(err, "stat source file")
	}
	return &FileSegmentSender{
		File:        f,
		Size:        uint64(fi.Size()),
		SegmentSize: segmentSize,
		Sender:      sender,
		Peer:        peer,
		Log:         log.WithField("peer", peer.String()),
	}, nil
}

// NumSegments is the number of segments the whole file is split into.
func (fs *FileSegmentSender) NumSegments() uint64 {
	return utils.CeilDiv(fs.Size, fs.SegmentSize)
}

// SendAll sends every segment of the file once.
func (fs *FileSegmentSender) SendAll() error {
	num := fs.NumSegments()
	if num > uint64(^uint32(0)) {
		return controlplane.ErrTooManySegments
	}
	fs.Log.Infof("Sending %s in %d segments", utils.ByteCountSI(int64(fs.Size)), num)
	for i := uint64(0); i < num; i++ {
		if err := fs.sendSegment(uint32(i), fs.SegmentSize); err != nil {
			return err
		}
	}
	return nil
}

// ResendSegments sends the requested segments again, cut with the
// segment size the receiver asked with.
func (fs *FileSegmentSender) ResendSegments(segmentSize uint32, segments []uint32) error {
	if segmentSize == 0 {
		return controlplane.ErrZeroSegmentSize
	}
	if uint64(segmentSize) > shared.MAX_SEGMENT_SIZE {
		return ErrSegmentTooLarge
	}
	fs.Log.Infof("Resending %d segments of %d bytes", len(segments), segmentSize)
	for _, idx := range segments {
		if err := fs.sendSegment(idx, uint64(segmentSize)); err != nil {
			return err
		}
	}
	return nil
}

func (fs *FileSegmentSender) sendSegment(index uint32, segmentSize uint64) error {
	start := uint64(index) * segmentSize
	if start >= fs.Size {
		fs.Log.Debugf("Segment %d is past the end of the file, skipping", index)
		return nil
	}
	payload := make([]byte, utils.Min(int(segmentSize), int(fs.Size-start)))
	if _, err := fs.File.ReadAt(payload, int64(start)); err != nil && err != io.EOF {
		return pkgerrors.Wrapf(err, "read segment %d", index)
	}

	p := packet.BuildPacket(packet.BuildHeader(shared.MSG_DATA, packet.NewTransactionId()), EncodeData(index, payload))
	defer p.Release()
	fs.RateControl.Add(p.Len())
	if _, err := fs.Sender.WriteTo(p.Bytes(), fs.Peer); err != nil {
		return pkgerrors.Wrapf(err, "send segment %d", index)
	}
	fs.Lock()
	fs.sent++
	fs.Unlock()
	return nil
}

// Sent returns how many segments went out so far.
func (fs *FileSegmentSender) Sent() int {
	fs.Lock()
	defer fs.Unlock()
	return fs.sent
}

func (fs *FileSegmentSender) Close() error {
	return fs.File.Close()
}

// nopResender is used when Close is called without a file being sent.
type nopResender struct{}

func (nopResender) ResendSegments(segmentSize uint32, segments []uint32) error {
	return ErrNoFile
}

// SegmentWriter stores received DATA packets at their place in the target
// file. An existing file is kept so a transfer can be resumed.
type SegmentWriter struct {
	sync.Mutex
	File        *os.File
	SegmentSize uint64
	Log         *log.Entry
	written     uint64
}

func NewSegmentWriter(path string, segmentSize uint64) (*SegmentWriter, error) {
	if segmentSize == 0 {
		return nil, controlplane.ErrZeroSegmentSize
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "open target file")
	}
	return &SegmentWriter{
		File:        f,
		SegmentSize: segmentSize,
		Log:         log.WithField("file", path),
	}, nil
}

// Handle is a controlplane.DataHandler. Packets other than DATA are
// ignored.
func (sw *SegmentWriter) Handle(p *packet.Packet) error {
	if p.MsgType() != shared.MSG_DATA {
		sw.Log.Debugf("Ignoring %s packet", shared.MsgName(p.MsgType()))
		return nil
	}
	index, payload, err := DecodeData(p.Body)
	if err != nil {
		return err
	}
	if uint64(len(payload)) > sw.SegmentSize {
		return pkgerrors.Wrapf(ErrSegmentTooLarge, "segment %d has %d bytes", index, len(payload))
	}
	sw.Lock()
	defer sw.Unlock()
	if _, err := sw.File.WriteAt(payload, int64(uint64(index)*sw.SegmentSize)); err != nil {
		return pkgerrors.Wrapf(err, "write segment %d", index)
	}
	sw.written += uint64(len(payload))
	return nil
}

// Written returns the number of payload bytes stored.
func (sw *SegmentWriter) Written() uint64 {
	sw.Lock()
	defer sw.Unlock()
	return sw.written
}

func (sw *SegmentWriter) Close() error {
	return sw.File.Close()
}

var _ controlplane.DataHandler = (&SegmentWriter{}).Handle
