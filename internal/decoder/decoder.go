// Package decoder implements L2-L4 protocol decoding against the trace
// store: Ethernet with VLAN stripping, IPv4/IPv6 with ESP/AH unwrapping,
// and TCP/UDP payload extraction with conversation bookkeeping.
package decoder

import (
	"time"

	"sqltrace.xyz/sqlna/internal/log"
	"sqltrace.xyz/sqlna/internal/trace"
)

const (
	// DefaultRolloverGap is the minimum idle gap after an RST before a new
	// SYN on the same 5-tuple starts a fresh conversation.
	DefaultRolloverGap = 20 * time.Second
)

// Decoder decodes raw frames and attaches them to conversations in the
// trace store. One Decoder serves the whole ingest run; StartFile resets
// the once-per-file diagnostic latches.
type Decoder struct {
	trace *trace.Trace
	log   log.Logger

	rolloverGapTicks int64

	file            string
	warnedLinkTypes map[uint16]bool
	warnedEtherType bool
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithRolloverGap overrides the RST port-rollover gap.
func WithRolloverGap(gap time.Duration) Option {
	return func(d *Decoder) {
		if gap > 0 {
			d.rolloverGapTicks = int64(gap / 100)
		}
	}
}

// New returns a Decoder appending into t.
func New(t *trace.Trace, logger log.Logger, opts ...Option) *Decoder {
	d := &Decoder{
		trace:            t,
		log:              logger,
		rolloverGapTicks: int64(DefaultRolloverGap / 100),
		warnedLinkTypes:  make(map[uint16]bool),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// StartFile marks the beginning of a new capture file and re-arms the
// once-per-file diagnostics.
func (d *Decoder) StartFile(path string) {
	d.file = path
	d.warnedLinkTypes = make(map[uint16]bool)
	d.warnedEtherType = false
}

// DecodeFrame decodes one raw frame and reports whether it was attached
// to a conversation. Frames that are not attached must not enter the
// trace; the reason has already been logged.
func (d *Decoder) DecodeFrame(f *trace.Frame, data []byte) bool {
	switch f.LinkType {
	case trace.LinkTypeEthernet:
		return d.decodeEthernet(f, data)
	case trace.LinkTypeWiFi:
		d.warnLinkType(f.LinkType, "wifi capture is not supported")
		return false
	case trace.LinkTypeNetEvent:
		d.warnLinkType(f.LinkType, "netevent capture is not supported")
		return false
	default:
		d.warnLinkType(f.LinkType, "unsupported link type")
		return false
	}
}

func (d *Decoder) warnLinkType(linkType uint16, msg string) {
	if d.warnedLinkTypes[linkType] {
		return
	}
	d.warnedLinkTypes[linkType] = true
	d.log.WithFields(map[string]interface{}{
		"file":      d.file,
		"link_type": linkType,
	}).Warn(msg)
}

func (d *Decoder) warnEtherType(etherType uint16) {
	if d.warnedEtherType {
		return
	}
	d.warnedEtherType = true
	d.log.WithFields(map[string]interface{}{
		"file":       d.file,
		"ether_type": etherType,
	}).Warn("non-IP ethertype ignored")
}

// countTruncation records a decode that indexed past the captured bytes
// of an already attached frame. The frame stays in its conversation.
func (d *Decoder) countTruncation(f *trace.Frame, c *trace.Conversation) {
	c.TruncationErrors++
	if c.TruncatedFrameLength == 0 {
		c.TruncatedFrameLength = f.CapturedLength
	}
	d.log.WithFields(map[string]interface{}{
		"file":  d.file,
		"frame": f.FrameNo,
	}).Debug("frame truncated before payload end")
}
