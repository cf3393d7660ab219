package engine

import "sqltrace.xyz/sqlna/internal/trace"

// FixDirections reverses conversations whose first observed frame
// contradicts SYN-from-client: a bare SYN recorded as from-server, or a
// SYN+ACK recorded as from-client. Only the SYN and ACK bits are
// inspected; ECN bits in the flags byte are ignored.
func (e *Engine) FixDirections(t *trace.Trace) {
	for _, c := range t.Conversations {
		if c.IsUDP || len(c.Frames) == 0 {
			continue
		}
		f := c.Frames[0]
		syn := f.Flags&trace.FlagSYN != 0
		ack := f.Flags&trace.FlagACK != 0
		if (syn && !ack && !f.IsFromClient) || (syn && ack && f.IsFromClient) {
			c.Reverse()
		}
	}
}

// MarkRetransmits scans each TCP conversation marking segments that
// duplicate or overlap an earlier same-direction segment of equal
// payload length. Counters are recomputed from scratch so the pass is
// idempotent.
func (e *Engine) MarkRetransmits(t *trace.Trace) {
	limit := e.cfg.BackScanLimit
	for _, c := range t.Conversations {
		if c.IsUDP {
			continue
		}
		c.RawRetransmits = 0
		c.SigRetransmits = 0
		for i, f := range c.Frames {
			if f.PayloadLen() < 8 {
				continue
			}
			scanned := 0
			for j := i - 1; j >= 0 && scanned < limit; j-- {
				p := c.Frames[j]
				if p.IsFromClient != f.IsFromClient {
					continue
				}
				scanned++
				if p.PayloadLen() != f.PayloadLen() {
					continue
				}
				// Equal sequence number, or a sequence that starts
				// inside the prior segment. uint32 arithmetic keeps the
				// comparison valid across sequence wraparound.
				if f.SeqNo-p.SeqNo < uint32(p.PayloadLen()) {
					f.IsRetransmit = true
					c.RawRetransmits++
					if f.PayloadLen() > 1 {
						c.SigRetransmits++
					}
					break
				}
			}
		}
	}
}

// MarkContinuations runs after MarkRetransmits and marks segments that
// extend a logical message whose earlier same-direction segments carry
// the same acknowledgement number and no PUSH. A PUSH on a predecessor
// bounds the message and ends the scan.
func (e *Engine) MarkContinuations(t *trace.Trace) {
	limit := e.cfg.BackScanLimit
	for _, c := range t.Conversations {
		if c.IsUDP {
			continue
		}
		for i, f := range c.Frames {
			if f.PayloadLen() == 0 {
				continue
			}
			scanned := 0
			for j := i - 1; j >= 0 && scanned < limit; j-- {
				p := c.Frames[j]
				if p.IsFromClient != f.IsFromClient {
					continue
				}
				scanned++
				if p.Flags&trace.FlagPSH != 0 {
					break
				}
				if p.AckNo == f.AckNo && !p.IsRetransmit && p.PayloadLen() > 0 {
					f.IsContinuation = true
					break
				}
			}
		}
	}
}
