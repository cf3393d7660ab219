package trace

import (
	"net/netip"
	"testing"
)

func testKey() Key {
	return Key{
		SrcIP:   netip.MustParseAddr("10.0.0.1"),
		DstIP:   netip.MustParseAddr("10.0.0.2"),
		SrcPort: 50123,
		DstPort: 1433,
	}
}

func TestLookupBothDirections(t *testing.T) {
	tr := New()
	c := tr.Create(testKey())

	got, fromClient, found := tr.Lookup(testKey())
	if !found || got != c || !fromClient {
		t.Fatalf("as-given lookup: found=%v fromClient=%v", found, fromClient)
	}

	got, fromClient, found = tr.Lookup(testKey().Reverse())
	if !found || got != c || fromClient {
		t.Fatalf("reversed lookup: found=%v fromClient=%v", found, fromClient)
	}
}

func TestLookupBucketIsDirectionSymmetric(t *testing.T) {
	k := testKey()
	if k.bucket() != k.Reverse().bucket() {
		t.Fatal("bucket must not depend on packet direction")
	}
}

func TestLookupMiss(t *testing.T) {
	tr := New()
	tr.Create(testKey())

	other := testKey()
	other.DstPort = 1434
	if _, _, found := tr.Lookup(other); found {
		t.Fatal("lookup on a different 5-tuple should miss")
	}
}

func TestRolloverReplacesIndexEntry(t *testing.T) {
	tr := New()
	old := tr.Create(testKey())
	old.SourceMAC = [6]byte{1, 2, 3, 4, 5, 6}
	old.DestMAC = [6]byte{6, 5, 4, 3, 2, 1}

	fresh := tr.Rollover(old)
	if fresh == old {
		t.Fatal("rollover must allocate a new conversation")
	}
	if fresh.SourceMAC != old.SourceMAC || fresh.DestMAC != old.DestMAC {
		t.Error("rollover must inherit the MACs")
	}

	got, _, found := tr.Lookup(testKey())
	if !found || got != fresh {
		t.Error("lookup should now resolve to the replacement")
	}
	if len(tr.Conversations) != 2 {
		t.Errorf("both conversations must stay listed, got %d", len(tr.Conversations))
	}
}

func TestAddFrameBookkeeping(t *testing.T) {
	tr := New()
	c := tr.Create(testKey())

	c.AddFrame(&Frame{Ticks: 200, IsFromClient: true, FrameLength: 60})
	c.AddFrame(&Frame{Ticks: 100, IsFromClient: false, FrameLength: 40})
	c.AddFrame(&Frame{Ticks: 300, IsFromClient: true, FrameLength: 80})

	if c.StartTicks != 100 || c.EndTicks != 300 {
		t.Errorf("window = [%d, %d], want [100, 300]", c.StartTicks, c.EndTicks)
	}
	if c.SourceFrames != 2 || c.DestFrames != 1 {
		t.Errorf("frames = %d/%d, want 2/1", c.SourceFrames, c.DestFrames)
	}
	if c.TotalBytes != 180 {
		t.Errorf("TotalBytes = %d, want 180", c.TotalBytes)
	}
	if len(c.Frames) != int(c.SourceFrames+c.DestFrames) {
		t.Error("frame list length must equal the direction counters")
	}
	for _, f := range c.Frames {
		if f.Ticks < c.StartTicks || f.Ticks > c.EndTicks {
			t.Errorf("frame tick %d outside [%d, %d]", f.Ticks, c.StartTicks, c.EndTicks)
		}
		if f.Conversation != c {
			t.Error("frame must back-reference its conversation")
		}
	}
}

func TestReverseSwapsEverything(t *testing.T) {
	tr := New()
	c := tr.Create(testKey())
	c.SourceMAC = [6]byte{1, 1, 1, 1, 1, 1}
	c.DestMAC = [6]byte{2, 2, 2, 2, 2, 2}
	c.AddFrame(&Frame{IsFromClient: true})
	c.AddFrame(&Frame{IsFromClient: false})

	c.Reverse()

	if c.SourceIP != netip.MustParseAddr("10.0.0.2") || c.SourcePort != 1433 {
		t.Errorf("source after reverse = %s:%d", c.SourceIP, c.SourcePort)
	}
	if c.SourceMAC != [6]byte{2, 2, 2, 2, 2, 2} {
		t.Error("MACs must swap")
	}
	if c.SourceFrames != 1 || c.DestFrames != 1 {
		t.Errorf("frame counts = %d/%d", c.SourceFrames, c.DestFrames)
	}
	if c.Frames[0].IsFromClient || !c.Frames[1].IsFromClient {
		t.Error("per-frame direction bits must flip")
	}

	// Reversed conversations stay reachable through the symmetric index.
	if _, _, found := tr.Lookup(testKey()); !found {
		t.Error("reversed conversation must remain indexed")
	}
}
