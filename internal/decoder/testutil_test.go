package decoder

import (
	"encoding/binary"

	"sqltrace.xyz/sqlna/internal/log"
	"sqltrace.xyz/sqlna/internal/trace"
)

// Frame builders shared by the decoder tests. All lengths are filled in
// so the buffers are self-consistent unless a test corrupts them.

func ethernetHeader(etherType uint16) []byte {
	b := []byte{
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55, // dst MAC
		0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, // src MAC
		0x00, 0x00,
	}
	binary.BigEndian.PutUint16(b[12:], etherType)
	return b
}

func vlanTag(id uint16, etherType uint16) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint16(b[0:], id)
	binary.BigEndian.PutUint16(b[2:], etherType)
	return b
}

func ipv4Header(proto byte, payloadLen int, src, dst [4]byte) []byte {
	b := make([]byte, 20)
	b[0] = 0x45
	binary.BigEndian.PutUint16(b[2:], uint16(20+payloadLen))
	b[8] = 64
	b[9] = proto
	copy(b[12:16], src[:])
	copy(b[16:20], dst[:])
	return b
}

func ipv6Header(next byte, payloadLen int, src, dst [16]byte) []byte {
	b := make([]byte, 40)
	b[0] = 0x60
	binary.BigEndian.PutUint16(b[4:], uint16(payloadLen))
	b[6] = next
	b[7] = 64
	copy(b[8:24], src[:])
	copy(b[24:40], dst[:])
	return b
}

type tcpOpts struct {
	srcPort, dstPort uint16
	seq, ack         uint32
	flags            byte
	window           uint16
	payload          []byte
}

func tcpSegment(o tcpOpts) []byte {
	b := make([]byte, 20, 20+len(o.payload))
	binary.BigEndian.PutUint16(b[0:], o.srcPort)
	binary.BigEndian.PutUint16(b[2:], o.dstPort)
	binary.BigEndian.PutUint32(b[4:], o.seq)
	binary.BigEndian.PutUint32(b[8:], o.ack)
	b[12] = 5 << 4
	b[13] = o.flags
	if o.window == 0 {
		o.window = 0x2000
	}
	binary.BigEndian.PutUint16(b[14:], o.window)
	return append(b, o.payload...)
}

func udpDatagram(srcPort, dstPort uint16, payload []byte) []byte {
	b := make([]byte, 8, 8+len(payload))
	binary.BigEndian.PutUint16(b[0:], srcPort)
	binary.BigEndian.PutUint16(b[2:], dstPort)
	binary.BigEndian.PutUint16(b[4:], uint16(8+len(payload)))
	return append(b, payload...)
}

// tcpFrame assembles Ethernet+IPv4+TCP into one buffer.
func tcpFrame(src, dst [4]byte, o tcpOpts) []byte {
	seg := tcpSegment(o)
	buf := ethernetHeader(etherTypeIPv4)
	buf = append(buf, ipv4Header(protoTCP, len(seg), src, dst)...)
	return append(buf, seg...)
}

type harness struct {
	trace *trace.Trace
	dec   *Decoder
	ticks int64
	frame uint32
}

func newHarness() *harness {
	t := trace.New()
	return &harness{
		trace: t,
		dec:   New(t, log.NewNop()),
		ticks: 630_000_000_000_000_000,
	}
}

// ingest decodes data as the next frame, one millisecond after the
// previous one, and appends it on success.
func (h *harness) ingest(linkType uint16, data []byte) *trace.Frame {
	h.frame++
	h.ticks += 10_000
	f := &trace.Frame{
		FrameNo:        h.frame,
		Ticks:          h.ticks,
		FrameLength:    uint32(len(data)),
		CapturedLength: uint32(len(data)),
		LinkType:       linkType,
		SMPSession:     -1,
	}
	if h.dec.DecodeFrame(f, data) {
		h.trace.AppendFrame(f)
		return f
	}
	return nil
}
