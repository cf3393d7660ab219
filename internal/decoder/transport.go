package decoder

import (
	"encoding/binary"

	"sqltrace.xyz/sqlna/internal/trace"
)

const (
	tcpHeaderMinLen = 20
	udpHeaderLen    = 8

	// SMP shim used by MARS to multiplex TDS sessions over one socket.
	smpHeaderLen = 16
	smpSMID      = 0x53
)

// decodeTCP parses the TCP header at offset, resolves the conversation
// (splitting it on port rollover), extracts the payload with an optional
// SMP shim removed, and updates the conversation counters.
func (d *Decoder) decodeTCP(f *trace.Frame, data []byte, offset int, key trace.Key) bool {
	if offset+tcpHeaderMinLen > len(data) {
		d.dropTruncated(f, "tcp header")
		return false
	}

	key.SrcPort = binary.BigEndian.Uint16(data[offset:])
	key.DstPort = binary.BigEndian.Uint16(data[offset+2:])

	f.SeqNo = binary.BigEndian.Uint32(data[offset+4:])
	f.AckNo = binary.BigEndian.Uint32(data[offset+8:])
	headerLen := int(data[offset+12]>>4) * 4
	f.Flags = data[offset+13]
	f.WindowSize = binary.BigEndian.Uint16(data[offset+14:])

	c := d.attachTCP(f, key)
	c.NextProtocol = protoTCP

	payloadOffset := offset + headerLen
	payloadLen := f.LastByteOffset - payloadOffset + 1

	if f.LastByteOffset > len(data)-1 {
		f.LastByteOffset = len(data) - 1
	}

	if payloadLen >= smpHeaderLen {
		if payloadOffset >= len(data) {
			d.countTruncation(f, c)
			d.updateTCPCounters(f, c)
			return true
		}
		if data[payloadOffset] == smpSMID {
			c.IsMARSEnabled = true
			if payloadOffset+4 > len(data) {
				d.countTruncation(f, c)
				d.updateTCPCounters(f, c)
				return true
			}
			f.SMPSession = int(binary.LittleEndian.Uint16(data[payloadOffset+2:]))
			payloadOffset += smpHeaderLen
		}
	}

	if f.LastByteOffset > len(data)-1 {
		f.LastByteOffset = len(data) - 1
	}

	if payloadLen = f.LastByteOffset - payloadOffset + 1; payloadLen > 0 {
		f.Payload = append([]byte(nil), data[payloadOffset:payloadOffset+payloadLen]...)
	}

	d.updateTCPCounters(f, c)
	return true
}

// attachTCP finds or creates the conversation for key and appends f. A
// SYN on a 5-tuple whose conversation already closed (FIN seen, or RST
// followed by a long enough gap) starts a replacement conversation.
func (d *Decoder) attachTCP(f *trace.Frame, key trace.Key) *trace.Conversation {
	c, fromClient, found := d.trace.Lookup(key)
	if !found {
		c = d.trace.Create(key)
		fromClient = true
	} else if f.Flags&trace.FlagSYN != 0 && d.portReused(c, f) {
		c = d.trace.Rollover(c)
	}
	f.IsFromClient = fromClient
	c.AddFrame(f)
	return c
}

func (d *Decoder) portReused(c *trace.Conversation, f *trace.Frame) bool {
	if c.FinCount >= 1 {
		return true
	}
	if c.ResetCount >= 1 {
		if last := c.LastFrame(); last != nil && f.Ticks-last.Ticks > d.rolloverGapTicks {
			return true
		}
	}
	return false
}

func (d *Decoder) updateTCPCounters(f *trace.Frame, c *trace.Conversation) {
	if f.HasFlag(trace.FlagFIN) {
		c.FinCount++
		if c.FirstFinTicks == 0 {
			c.FirstFinTicks = f.Ticks
		}
	}
	if f.HasFlag(trace.FlagSYN) {
		c.SynCount++
	}
	if f.HasFlag(trace.FlagRST) {
		c.ResetCount++
		if c.FirstResetTicks == 0 {
			c.FirstResetTicks = f.Ticks
		}
	}
	if f.HasFlag(trace.FlagPSH) {
		c.PushCount++
	}
	if f.HasFlag(trace.FlagACK) {
		c.AckCount++
	}
	if len(f.Payload) == 1 && f.Payload[0] == 0 &&
		f.HasFlag(trace.FlagACK) &&
		f.Flags&(trace.FlagFIN|trace.FlagSYN|trace.FlagRST|trace.FlagPSH) == 0 {
		c.KeepAliveCount++
	}
}

// decodeUDP parses the fixed 8-byte UDP header at offset and copies the
// datagram payload.
func (d *Decoder) decodeUDP(f *trace.Frame, data []byte, offset int, key trace.Key) bool {
	if offset+udpHeaderLen > len(data) {
		d.dropTruncated(f, "udp header")
		return false
	}

	key.SrcPort = binary.BigEndian.Uint16(data[offset:])
	key.DstPort = binary.BigEndian.Uint16(data[offset+2:])

	c, fromClient, found := d.trace.Lookup(key)
	if !found {
		c = d.trace.Create(key)
		fromClient = true
	}
	f.IsFromClient = fromClient
	f.IsUDP = true
	c.IsUDP = true
	c.NextProtocol = protoUDP
	c.AddFrame(f)

	if f.LastByteOffset > len(data)-1 {
		f.LastByteOffset = len(data) - 1
	}

	payloadOffset := offset + udpHeaderLen
	if n := f.LastByteOffset - payloadOffset + 1; n > 0 {
		f.Payload = append([]byte(nil), data[payloadOffset:payloadOffset+n]...)
	}
	return true
}
