package decoder

import (
	"encoding/binary"
	"net/netip"

	"sqltrace.xyz/sqlna/internal/core"
	"sqltrace.xyz/sqlna/internal/trace"
)

const (
	ipv4HeaderMinLen = 20
	ipv6HeaderLen    = 40
	espHeaderLen     = 8

	protoHopByHop    = 0
	protoTCP         = 6
	protoUDP         = 17
	protoIPv6InIPv4  = 41
	protoRouting     = 43
	protoFragment    = 44
	protoESP         = 50
	protoAH          = 51
	protoDestOptions = 60
	protoMobility    = 135
)

// decodeIPv4 parses the IPv4 header at offset, unwraps 6in4, ESP and AH,
// and hands TCP/UDP payloads to the transport decoder.
func (d *Decoder) decodeIPv4(f *trace.Frame, data []byte, offset int) bool {
	if offset+ipv4HeaderMinLen > len(data) {
		d.dropTruncated(f, "ipv4 header")
		return false
	}

	headerLen := int(data[offset]&0x0F) * 4
	totalLen := int(binary.BigEndian.Uint16(data[offset+2:]))
	proto := data[offset+9]

	var src, dst netip.Addr
	src, _ = netip.AddrFromSlice(data[offset+12 : offset+16])
	dst, _ = netip.AddrFromSlice(data[offset+16 : offset+20])

	// The IP total length bounds the valid bytes; a zero total length
	// (TSO-offloaded captures) means the whole buffer is valid.
	if totalLen == 0 {
		f.LastByteOffset = len(data) - 1
	} else {
		f.LastByteOffset = offset + totalLen - 1
	}

	if proto == protoIPv6InIPv4 {
		// 6in4: take the next-header of the inner IPv6 header and skip
		// its fixed 40 bytes. Inner extension headers are not walked.
		inner := offset + headerLen
		if inner+7 > len(data) {
			d.dropTruncated(f, "6in4 inner header")
			return false
		}
		proto = data[inner+6]
		headerLen += ipv6HeaderLen
	}

	if proto == protoESP {
		proto, headerLen = d.unwrapESP(f, data, headerLen)
	}

	if proto == protoAH {
		var ok bool
		proto, headerLen, ok = d.unwrapAH(f, data, offset, headerLen)
		if !ok {
			return false
		}
	}

	key := trace.Key{SrcIP: src, DstIP: dst}
	switch proto {
	case protoTCP:
		return d.decodeTCP(f, data, offset+headerLen, key)
	case protoUDP:
		return d.decodeUDP(f, data, offset+headerLen, key)
	}
	return false
}

// decodeIPv6 parses the fixed 40-byte IPv6 header at offset. Only ESP
// and AH are unwrapped; other extension headers drop the frame.
func (d *Decoder) decodeIPv6(f *trace.Frame, data []byte, offset int) bool {
	if offset+ipv6HeaderLen > len(data) {
		d.dropTruncated(f, "ipv6 header")
		return false
	}

	payloadLen := int(binary.BigEndian.Uint16(data[offset+4:]))
	proto := data[offset+6]

	var src, dst netip.Addr
	src, _ = netip.AddrFromSlice(data[offset+8 : offset+24])
	dst, _ = netip.AddrFromSlice(data[offset+24 : offset+40])

	if payloadLen == 0 {
		f.LastByteOffset = len(data) - 1
	} else {
		f.LastByteOffset = offset + ipv6HeaderLen + payloadLen - 1
	}

	headerLen := ipv6HeaderLen

	if proto == protoESP {
		proto, headerLen = d.unwrapESP(f, data, headerLen)
	}

	if proto == protoAH {
		var ok bool
		proto, headerLen, ok = d.unwrapAH(f, data, offset, headerLen)
		if !ok {
			return false
		}
	}

	key := trace.Key{SrcIP: src, DstIP: dst, IsIPV6: true}
	switch proto {
	case protoTCP:
		return d.decodeTCP(f, data, offset+headerLen, key)
	case protoUDP:
		return d.decodeUDP(f, data, offset+headerLen, key)
	case protoHopByHop, protoRouting, protoFragment, protoDestOptions, protoMobility:
		d.log.WithFields(map[string]interface{}{
			"file":        d.file,
			"frame":       f.FrameNo,
			"next_header": proto,
		}).WithError(core.ErrUnsupportedExtensionHeader).Warn("frame dropped")
		return false
	}
	return false
}

// unwrapESP probes the ESP trailer and strips the 8-byte ESP header.
// The encrypted body stays in place; only the boundaries move. On an
// unrecognized trailer the protocol is zeroed so the frame is skipped.
func (d *Decoder) unwrapESP(f *trace.Frame, data []byte, headerLen int) (uint8, int) {
	next, trailerLen, err := espTrailer(data, f.LastByteOffset)
	if err != nil {
		d.log.WithFields(map[string]interface{}{
			"file":  d.file,
			"frame": f.FrameNo,
		}).WithError(err).Warn("esp trailer not recognized, frame skipped")
		return 0, headerLen
	}
	f.LastByteOffset -= trailerLen
	return next, headerLen + espHeaderLen
}

// unwrapAH reads the next-header and payload-length fields of an
// Authentication Header and skips it.
func (d *Decoder) unwrapAH(f *trace.Frame, data []byte, offset, headerLen int) (uint8, int, bool) {
	p := offset + headerLen
	if p+1 >= len(data) {
		d.dropTruncated(f, "auth header")
		return 0, headerLen, false
	}
	next := data[p]
	headerLen += int(data[p+1])*4 + 8
	return next, headerLen, true
}

// espTrailer locates the ESP trailer working back from the last valid
// byte. The integrity blob is 12 or 16 bytes; the shorter one is probed
// first and validated against the monotonic pad pattern 1,2,...,padLen.
func espTrailer(data []byte, last int) (next uint8, trailerLen int, err error) {
	for _, blobLen := range []int{12, 16} {
		if next, trailerLen, ok := probeESPTrailer(data, last, blobLen); ok {
			return next, trailerLen, nil
		}
	}
	return 0, 0, core.ErrESPUnknown
}

func probeESPTrailer(data []byte, last, blobLen int) (uint8, int, bool) {
	if last >= len(data) {
		return 0, 0, false
	}
	npPos := last - blobLen
	plPos := npPos - 1
	if plPos < 0 {
		return 0, 0, false
	}
	padLen := int(data[plPos])
	if plPos-padLen < 0 {
		return 0, 0, false
	}
	for i := 1; i <= padLen; i++ {
		if data[plPos-padLen+i-1] != byte(i) {
			return 0, 0, false
		}
	}
	return data[npPos], blobLen + 2 + padLen, true
}

func (d *Decoder) dropTruncated(f *trace.Frame, what string) {
	d.log.WithFields(map[string]interface{}{
		"file":  d.file,
		"frame": f.FrameNo,
	}).WithError(core.ErrTruncatedFrame).Warnf("%s ends past captured bytes, frame dropped", what)
}
