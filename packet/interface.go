package packet

// Packer is implemented by every fixed-layout part of a PDU.
type Packer interface {
	// Number of bytes Pack writes
	Len() int
	// buf must hold at least Len() bytes
	Pack(buf []byte) error
	// Reads the fields from buf, validating its length first
	Unpack(buf []byte) error
}

// Ensuring interface compatability at compile time.
var _ Packer = &Header{}
var _ Packer = &ResendBody{}
