// Package trace holds the in-memory trace store: frames, conversations,
// capture files and the conversation lookup index.
package trace

// TCP flag bits as they appear in the flags byte at header offset 13.
const (
	FlagFIN = byte(0x01)
	FlagSYN = byte(0x02)
	FlagRST = byte(0x04)
	FlagPSH = byte(0x08)
	FlagACK = byte(0x10)
	FlagURG = byte(0x20)
)

// Link types normalized across readers. NetMon MacType values; pcap DLTs
// are mapped onto these by the readers.
const (
	LinkTypeEthernet = uint16(1)
	LinkTypeWiFi     = uint16(6)
	LinkTypeNetEvent = uint16(0xFFE0)
)

// Frame is one decoded packet. Frames are created during ingest and
// afterwards touched only by the three post-processing passes, which set
// IsFromClient (direction fixup), IsRetransmit and IsContinuation.
type Frame struct {
	FrameNo        uint32
	Ticks          int64
	File           *CaptureFile
	FrameLength    uint32
	CapturedLength uint32

	// LastByteOffset is the index of the final valid byte in the raw
	// buffer as bounded by the IP payload length, clamped to the
	// captured bytes.
	LastByteOffset int

	LinkType     uint16
	IsFromClient bool

	SeqNo      uint32
	AckNo      uint32
	Flags      byte
	WindowSize uint16

	// SMPSession is the MARS session id, or -1 when the segment carried
	// no SMP shim.
	SMPSession int

	Payload []byte

	IsUDP          bool
	IsRetransmit   bool
	IsContinuation bool

	Conversation *Conversation
}

// PayloadLen returns the number of extracted payload bytes.
func (f *Frame) PayloadLen() int { return len(f.Payload) }

// HasFlag reports whether every bit in mask is set.
func (f *Frame) HasFlag(mask byte) bool { return f.Flags&mask == mask }
