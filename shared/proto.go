package shared

import "time"

// Message types carried in the low byte of the header flags.
// Data, handshake and ack belong to the transfer phase and are only
// passed through by the close negotiation.
const (
	MSG_DATA            = 0x01 // Data packet
	MSG_HANDSHAKE       = 0x02 // Handshake packet
	MSG_ACK             = 0x03 // Data Acknowledgement packet
	MSG_CLOSE_REQUEST   = 0x10 // Sender asks to close the connection
	MSG_ACCEPT_CLOSE    = 0x11 // Receiver has the whole file
	MSG_RESEND_SEGMENTS = 0x12 // Receiver asks for missing segments
)

const (
	MASK_FLAGS_MSG     = 0b11111111
	MASK_FLAGS_VERSION = 0b11111111 << 16
)

const (
	AKH_VERSION = 1 << 16
)

const (
	TIMEOUT              = 3 * time.Second // per-attempt wait
	NUM_TRY              = 3               // attempts per bounded receive
	MAX_BUFFER_SIZE      = 65507           // largest datagram accepted
	PACKET_SIZE          = 1400            // pooled wire buffer size
	DEFAULT_SEGMENT_SIZE = 1024
	MAX_SEGMENT_SIZE     = MAX_BUFFER_SIZE - 8 - 4 // header and segment index
	DEFAULT_QUEUE_LEN    = 64
	MAX_CLOSE_ROUNDS     = 5
)

func NewFlags(msgType uint8) uint32 {
	var flags uint32 = 0
	flags = AddVersionFlag(flags, AKH_VERSION)
	return AddMsgFlag(flags, uint32(msgType))
}

func AddMsgFlag(val, flag uint32) uint32 {
	return val | (flag & MASK_FLAGS_MSG)
}

func AddVersionFlag(val, flag uint32) uint32 {
	return val | (flag & MASK_FLAGS_VERSION)
}

func MsgType(flags uint32) uint8 {
	return uint8(flags & MASK_FLAGS_MSG)
}

func Version(flags uint32) uint32 {
	return flags & MASK_FLAGS_VERSION
}

// MsgName is used for logging only.
func MsgName(msgType uint8) string {
	switch msgType {
	case MSG_DATA:
		return "DATA"
	case MSG_HANDSHAKE:
		return "HANDSHAKE"
	case MSG_ACK:
		return "ACK"
	case MSG_CLOSE_REQUEST:
		return "CLOSE_REQUEST"
	case MSG_ACCEPT_CLOSE:
		return "ACCEPT_CLOSE"
	case MSG_RESEND_SEGMENTS:
		return "RESEND_SEGMENTS"
	}
	return "UNKNOWN"
}
