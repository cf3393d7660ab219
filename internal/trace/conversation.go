package trace

import (
	"fmt"
	"net/netip"
)

// Conversation is the set of frames sharing a directional 5-tuple.
// Source is the client side once direction fixup has run.
type Conversation struct {
	SourceIP netip.Addr
	DestIP   netip.Addr

	SourcePort uint16
	DestPort   uint16

	IsIPV6        bool
	IsUDP         bool
	IsMARSEnabled bool

	NextProtocol uint8

	StartTicks int64
	EndTicks   int64

	SourceFrames uint32
	DestFrames   uint32
	TotalBytes   uint64

	SynCount       uint32
	AckCount       uint32
	FinCount       uint32
	ResetCount     uint32
	PushCount      uint32
	KeepAliveCount uint32

	RawRetransmits uint32
	SigRetransmits uint32

	TruncationErrors uint32

	FirstFinTicks   int64
	FirstResetTicks int64

	SourceMAC [6]byte
	DestMAC   [6]byte

	// TruncatedFrameLength is the captured length of the first truncated
	// frame seen, 0 while no truncation occurred.
	TruncatedFrameLength uint32

	// Frames in insertion (capture-time) order.
	Frames []*Frame
}

// AddFrame appends f, binds the back-reference and updates the time
// window, per-direction frame counts and byte total.
func (c *Conversation) AddFrame(f *Frame) {
	f.Conversation = c
	c.Frames = append(c.Frames, f)

	if c.StartTicks == 0 || f.Ticks < c.StartTicks {
		c.StartTicks = f.Ticks
	}
	if f.Ticks > c.EndTicks {
		c.EndTicks = f.Ticks
	}

	if f.IsFromClient {
		c.SourceFrames++
	} else {
		c.DestFrames++
	}
	c.TotalBytes += uint64(f.FrameLength)
}

// Reverse swaps the client and server ends: addresses, ports, MACs,
// per-direction frame counts and every frame's IsFromClient bit.
// The port-XOR bucket is direction-symmetric so the index needs no update.
func (c *Conversation) Reverse() {
	c.SourceIP, c.DestIP = c.DestIP, c.SourceIP
	c.SourcePort, c.DestPort = c.DestPort, c.SourcePort
	c.SourceMAC, c.DestMAC = c.DestMAC, c.SourceMAC
	c.SourceFrames, c.DestFrames = c.DestFrames, c.SourceFrames
	for _, f := range c.Frames {
		f.IsFromClient = !f.IsFromClient
	}
}

// LastFrame returns the most recently appended frame, nil when empty.
func (c *Conversation) LastFrame() *Frame {
	if len(c.Frames) == 0 {
		return nil
	}
	return c.Frames[len(c.Frames)-1]
}

// String renders the endpoints, e.g. "10.0.0.1:50123 -> 10.0.0.2:1433".
func (c *Conversation) String() string {
	return fmt.Sprintf("%s:%d -> %s:%d", c.SourceIP, c.SourcePort, c.DestIP, c.DestPort)
}
