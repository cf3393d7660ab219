package decoder

import (
	"encoding/binary"

	"sqltrace.xyz/sqlna/internal/trace"
)

const (
	macLen            = 6
	ethernetHeaderLen = 14
	vlanTagLen        = 4

	etherTypeIPv4 = 0x0800
	etherTypeIPv6 = 0x86DD
	etherTypeVLAN = 0x8100
)

// decodeEthernet strips the Ethernet header plus any stack of 802.1Q
// tags, dispatches on the final EtherType and, once the frame is
// attached, copies the MAC addresses onto its conversation.
func (d *Decoder) decodeEthernet(f *trace.Frame, data []byte) bool {
	if len(data) < ethernetHeaderLen {
		d.log.WithFields(map[string]interface{}{
			"file":  d.file,
			"frame": f.FrameNo,
		}).Warn("frame shorter than an ethernet header, dropped")
		return false
	}

	var dstMAC, srcMAC [6]byte
	copy(dstMAC[:], data[0:6])
	copy(srcMAC[:], data[6:12])

	etOffset := 2 * macLen
	etherType := binary.BigEndian.Uint16(data[etOffset:])
	for etherType == etherTypeVLAN {
		etOffset += vlanTagLen
		if etOffset+2 > len(data) {
			d.log.WithFields(map[string]interface{}{
				"file":  d.file,
				"frame": f.FrameNo,
			}).Warn("frame ends inside a vlan tag, dropped")
			return false
		}
		etherType = binary.BigEndian.Uint16(data[etOffset:])
	}
	offset := etOffset + 2

	var ok bool
	switch etherType {
	case etherTypeIPv4:
		ok = d.decodeIPv4(f, data, offset)
	case etherTypeIPv6:
		ok = d.decodeIPv6(f, data, offset)
	default:
		d.warnEtherType(etherType)
		return false
	}
	if !ok || f.Conversation == nil {
		return false
	}

	c := f.Conversation
	if f.IsFromClient {
		c.SourceMAC = srcMAC
		c.DestMAC = dstMAC
	} else {
		c.SourceMAC = dstMAC
		c.DestMAC = srcMAC
	}
	return true
}
