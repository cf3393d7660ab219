package decoder

import (
	"bytes"
	"testing"

	"sqltrace.xyz/sqlna/internal/trace"
)

var (
	clientIP6 = [16]byte{0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}
	serverIP6 = [16]byte{0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 2}
)

func TestDecodeIPv4PayloadBounds(t *testing.T) {
	h := newHarness()

	payload := []byte("SELECT 1 FROM sys.objects")
	f := h.ingest(trace.LinkTypeEthernet, tcpFrame(clientIP, serverIP, tcpOpts{
		srcPort: 50123, dstPort: 1433, seq: 1, ack: 1,
		flags: trace.FlagPSH | trace.FlagACK, payload: payload,
	}))
	if f == nil {
		t.Fatal("frame was not attached")
	}
	if !bytes.Equal(f.Payload, payload) {
		t.Errorf("payload = %q, want %q", f.Payload, payload)
	}
	// Last valid byte is the final payload byte.
	want := ethernetHeaderLen + 20 + 20 + len(payload) - 1
	if f.LastByteOffset != want {
		t.Errorf("LastByteOffset = %d, want %d", f.LastByteOffset, want)
	}
}

func TestDecodeIPv4ZeroTotalLength(t *testing.T) {
	h := newHarness()

	buf := tcpFrame(clientIP, serverIP, tcpOpts{
		srcPort: 50123, dstPort: 1433, flags: trace.FlagACK,
		payload: []byte("abcdefgh"),
	})
	// TSO-offloaded captures record total length 0; the whole buffer is
	// then taken as valid.
	buf[ethernetHeaderLen+2] = 0
	buf[ethernetHeaderLen+3] = 0

	f := h.ingest(trace.LinkTypeEthernet, buf)
	if f == nil {
		t.Fatal("frame was not attached")
	}
	if f.LastByteOffset != len(buf)-1 {
		t.Errorf("LastByteOffset = %d, want %d", f.LastByteOffset, len(buf)-1)
	}
	if string(f.Payload) != "abcdefgh" {
		t.Errorf("payload = %q", f.Payload)
	}
}

func TestDecodeIPv6Basic(t *testing.T) {
	h := newHarness()

	seg := tcpSegment(tcpOpts{
		srcPort: 49000, dstPort: 1433, seq: 7, flags: trace.FlagSYN,
	})
	buf := ethernetHeader(etherTypeIPv6)
	buf = append(buf, ipv6Header(protoTCP, len(seg), clientIP6, serverIP6)...)
	buf = append(buf, seg...)

	f := h.ingest(trace.LinkTypeEthernet, buf)
	if f == nil {
		t.Fatal("frame was not attached")
	}
	c := f.Conversation
	if !c.IsIPV6 {
		t.Error("conversation should be IPv6")
	}
	if c.SourcePort != 49000 || c.DestPort != 1433 {
		t.Errorf("ports = %d->%d", c.SourcePort, c.DestPort)
	}
	if c.SynCount != 1 {
		t.Errorf("SynCount = %d, want 1", c.SynCount)
	}
}

func TestDecodeIPv6ExtensionHeaderDropped(t *testing.T) {
	h := newHarness()

	for _, next := range []byte{protoHopByHop, protoRouting, protoFragment, protoDestOptions, protoMobility} {
		buf := ethernetHeader(etherTypeIPv6)
		buf = append(buf, ipv6Header(next, 16, clientIP6, serverIP6)...)
		buf = append(buf, make([]byte, 16)...)
		if f := h.ingest(trace.LinkTypeEthernet, buf); f != nil {
			t.Errorf("next-header %d should drop the frame", next)
		}
	}
}

func TestDecodeIPv4SixInFour(t *testing.T) {
	h := newHarness()

	seg := tcpSegment(tcpOpts{
		srcPort: 50124, dstPort: 1433, flags: trace.FlagSYN,
	})
	inner := ipv6Header(protoTCP, len(seg), clientIP6, serverIP6)
	buf := ethernetHeader(etherTypeIPv4)
	buf = append(buf, ipv4Header(protoIPv6InIPv4, len(inner)+len(seg), clientIP, serverIP)...)
	buf = append(buf, inner...)
	buf = append(buf, seg...)

	f := h.ingest(trace.LinkTypeEthernet, buf)
	if f == nil {
		t.Fatal("6in4 frame was not attached")
	}
	// The outer IPv4 addresses key the conversation.
	c := f.Conversation
	if c.IsIPV6 {
		t.Error("conversation should use the outer IPv4 addresses")
	}
	if c.SourcePort != 50124 {
		t.Errorf("SourcePort = %d, want 50124", c.SourcePort)
	}
}

func TestDecodeIPv4AuthHeader(t *testing.T) {
	h := newHarness()

	seg := tcpSegment(tcpOpts{
		srcPort: 50125, dstPort: 1433, flags: trace.FlagSYN,
	})
	// AH: next=TCP, payload length field 4 -> total header 4*4+8 = 24.
	ah := make([]byte, 24)
	ah[0] = protoTCP
	ah[1] = 4
	buf := ethernetHeader(etherTypeIPv4)
	buf = append(buf, ipv4Header(protoAH, len(ah)+len(seg), clientIP, serverIP)...)
	buf = append(buf, ah...)
	buf = append(buf, seg...)

	f := h.ingest(trace.LinkTypeEthernet, buf)
	if f == nil {
		t.Fatal("AH frame was not attached")
	}
	if f.Conversation.SourcePort != 50125 {
		t.Errorf("SourcePort = %d, want 50125", f.Conversation.SourcePort)
	}
}

// espPayload wraps seg in an 8-byte ESP header and a trailer with the
// given pad length and integrity blob.
func espPayload(seg []byte, padLen int, blob []byte) []byte {
	out := make([]byte, 0, 8+len(seg)+padLen+2+len(blob))
	out = append(out, 1, 2, 3, 4, 5, 6, 7, 8) // SPI + sequence
	out = append(out, seg...)
	for i := 1; i <= padLen; i++ {
		out = append(out, byte(i))
	}
	out = append(out, byte(padLen), protoTCP)
	return append(out, blob...)
}

func TestDecodeIPv4ESP(t *testing.T) {
	for _, tc := range []struct {
		name    string
		blobLen int
	}{
		{"blob12", 12},
		{"blob16", 16},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness()

			seg := tcpSegment(tcpOpts{
				srcPort: 50200, dstPort: 1433, seq: 5, ack: 9,
				flags: trace.FlagPSH | trace.FlagACK, payload: []byte("esp payload"),
			})
			blob := bytes.Repeat([]byte{0xAA}, tc.blobLen)
			esp := espPayload(seg, 2, blob)
			buf := ethernetHeader(etherTypeIPv4)
			buf = append(buf, ipv4Header(protoESP, len(esp), clientIP, serverIP)...)
			buf = append(buf, esp...)

			f := h.ingest(trace.LinkTypeEthernet, buf)
			if f == nil {
				t.Fatal("ESP frame was not attached")
			}
			if f.Conversation.SourcePort != 50200 {
				t.Errorf("SourcePort = %d, want 50200", f.Conversation.SourcePort)
			}
			if string(f.Payload) != "esp payload" {
				t.Errorf("payload = %q, want %q", f.Payload, "esp payload")
			}
		})
	}
}

func TestDecodeIPv4ESPUnknownTrailer(t *testing.T) {
	h := newHarness()

	// No valid pad pattern at either blob length.
	esp := append([]byte{1, 2, 3, 4, 5, 6, 7, 8}, bytes.Repeat([]byte{0xAA}, 40)...)
	buf := ethernetHeader(etherTypeIPv4)
	buf = append(buf, ipv4Header(protoESP, len(esp), clientIP, serverIP)...)
	buf = append(buf, esp...)

	if f := h.ingest(trace.LinkTypeEthernet, buf); f != nil {
		t.Fatal("frame with unrecognized ESP trailer should be skipped")
	}
}
