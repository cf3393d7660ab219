package trace

import "net/netip"

// Sizing heuristics for initial slice capacity, derived from total input
// bytes. Performance hint only.
const (
	bytesPerFrame        = 200
	bytesPerConversation = 50_000
)

// Key is the directional 5-tuple a conversation is indexed on.
type Key struct {
	SrcIP   netip.Addr
	DstIP   netip.Addr
	SrcPort uint16
	DstPort uint16
	IsIPV6  bool
}

// Reverse returns the key for the opposite direction.
func (k Key) Reverse() Key {
	return Key{
		SrcIP:   k.DstIP,
		DstIP:   k.SrcIP,
		SrcPort: k.DstPort,
		DstPort: k.SrcPort,
		IsIPV6:  k.IsIPV6,
	}
}

// bucket is direction-symmetric so a lookup works regardless of packet
// direction.
func (k Key) bucket() uint16 { return k.SrcPort ^ k.DstPort }

// Trace is the mutable in-memory store the pipeline appends to.
type Trace struct {
	Frames        []*Frame
	Conversations []*Conversation
	Files         []*CaptureFile

	buckets map[uint16][]*Conversation
}

// New returns an empty trace.
func New() *Trace {
	return NewSized(0)
}

// NewSized pre-sizes the frame and conversation slices from the total
// input byte count.
func NewSized(totalBytes int64) *Trace {
	return &Trace{
		Frames:        make([]*Frame, 0, totalBytes/bytesPerFrame+1),
		Conversations: make([]*Conversation, 0, totalBytes/bytesPerConversation+1),
		buckets:       make(map[uint16][]*Conversation),
	}
}

// Lookup finds the conversation for k, first as-given and then reversed.
// fromClient reports which direction matched; found is false when neither
// did.
func (t *Trace) Lookup(k Key) (c *Conversation, fromClient, found bool) {
	for _, cand := range t.buckets[k.bucket()] {
		if cand.matches(k) {
			return cand, true, true
		}
	}
	rev := k.Reverse()
	for _, cand := range t.buckets[k.bucket()] {
		if cand.matches(rev) {
			return cand, false, true
		}
	}
	return nil, false, false
}

// Create allocates a conversation for k with the as-given direction as
// client -> server and registers it in the index.
func (t *Trace) Create(k Key) *Conversation {
	c := &Conversation{
		SourceIP:   k.SrcIP,
		DestIP:     k.DstIP,
		SourcePort: k.SrcPort,
		DestPort:   k.DstPort,
		IsIPV6:     k.IsIPV6,
	}
	t.Conversations = append(t.Conversations, c)
	t.buckets[k.bucket()] = append(t.buckets[k.bucket()], c)
	return c
}

// Rollover allocates the replacement conversation for a reused TCP port
// pair. The new conversation inherits the 5-tuple and MACs of old and
// takes old's place in the lookup index; old keeps its historical frames
// and stays listed in Conversations.
func (t *Trace) Rollover(old *Conversation) *Conversation {
	c := &Conversation{
		SourceIP:   old.SourceIP,
		DestIP:     old.DestIP,
		SourcePort: old.SourcePort,
		DestPort:   old.DestPort,
		IsIPV6:     old.IsIPV6,
		SourceMAC:  old.SourceMAC,
		DestMAC:    old.DestMAC,
	}
	t.Conversations = append(t.Conversations, c)

	b := old.SourcePort ^ old.DestPort
	for i, cand := range t.buckets[b] {
		if cand == old {
			t.buckets[b][i] = c
			return c
		}
	}
	// Old was never indexed; register the replacement normally.
	t.buckets[b] = append(t.buckets[b], c)
	return c
}

// AppendFrame records a fully attached frame in capture order.
func (t *Trace) AppendFrame(f *Frame) {
	t.Frames = append(t.Frames, f)
}

func (c *Conversation) matches(k Key) bool {
	return c.IsIPV6 == k.IsIPV6 &&
		c.SourcePort == k.SrcPort &&
		c.DestPort == k.DstPort &&
		c.SourceIP == k.SrcIP &&
		c.DestIP == k.DstIP
}
