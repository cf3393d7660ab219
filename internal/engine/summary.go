package engine

import (
	"fmt"
	"io"
	"time"

	"sqltrace.xyz/sqlna/internal/core"
	"sqltrace.xyz/sqlna/internal/trace"
)

// Summary is the report emitted after a run, ready for YAML output.
type Summary struct {
	Files         []FileSummary         `yaml:"files"`
	Conversations []ConversationSummary `yaml:"conversations"`
	Totals        Totals                `yaml:"totals"`
}

// FileSummary is the per-file slice of the report.
type FileSummary struct {
	Path       string    `yaml:"path"`
	SizeBytes  int64     `yaml:"size_bytes"`
	ModTime    time.Time `yaml:"mod_time"`
	FirstFrame time.Time `yaml:"first_frame"`
	LastFrame  time.Time `yaml:"last_frame"`
	Frames     uint32    `yaml:"frames"`
}

// ConversationSummary is the per-conversation slice of the report.
type ConversationSummary struct {
	Client       string        `yaml:"client"`
	Server       string        `yaml:"server"`
	Protocol     string        `yaml:"protocol"`
	NextProtocol uint8         `yaml:"next_protocol"`
	IPv6         bool          `yaml:"ipv6"`
	MARS         bool          `yaml:"mars,omitempty"`
	Frames       int           `yaml:"frames"`
	ClientFrames uint32        `yaml:"client_frames"`
	ServerFrames uint32        `yaml:"server_frames"`
	Bytes        uint64        `yaml:"bytes"`
	Duration     time.Duration `yaml:"duration"`
	Syn          uint32        `yaml:"syn"`
	Fin          uint32        `yaml:"fin"`
	Rst          uint32        `yaml:"rst"`
	Push         uint32        `yaml:"push"`
	Ack          uint32        `yaml:"ack"`
	KeepAlives   uint32        `yaml:"keep_alives"`
	Retransmits  uint32        `yaml:"retransmits"`
	SigRetrans   uint32        `yaml:"significant_retransmits"`
	Truncations  uint32        `yaml:"truncation_errors,omitempty"`
}

// Totals aggregates the run.
type Totals struct {
	Files         int    `yaml:"files"`
	Frames        int    `yaml:"frames"`
	Conversations int    `yaml:"conversations"`
	Bytes         uint64 `yaml:"bytes"`
}

// Summarize flattens a finished trace into a Summary.
func Summarize(t *trace.Trace) Summary {
	s := Summary{
		Files:         make([]FileSummary, 0, len(t.Files)),
		Conversations: make([]ConversationSummary, 0, len(t.Conversations)),
	}
	for _, cf := range t.Files {
		s.Files = append(s.Files, FileSummary{
			Path:       cf.Path,
			SizeBytes:  cf.Size,
			ModTime:    cf.ModTime,
			FirstFrame: core.TimeFromTicks(cf.StartTicks),
			LastFrame:  core.TimeFromTicks(cf.EndTicks),
			Frames:     cf.FrameCount,
		})
	}
	for _, c := range t.Conversations {
		proto := "tcp"
		if c.IsUDP {
			proto = "udp"
		}
		s.Conversations = append(s.Conversations, ConversationSummary{
			Client:       fmt.Sprintf("%s:%d", c.SourceIP, c.SourcePort),
			Server:       fmt.Sprintf("%s:%d", c.DestIP, c.DestPort),
			Protocol:     proto,
			NextProtocol: c.NextProtocol,
			IPv6:         c.IsIPV6,
			MARS:         c.IsMARSEnabled,
			Frames:       len(c.Frames),
			ClientFrames: c.SourceFrames,
			ServerFrames: c.DestFrames,
			Bytes:        c.TotalBytes,
			Duration:     core.DurationFromTicks(c.EndTicks - c.StartTicks),
			Syn:          c.SynCount,
			Fin:          c.FinCount,
			Rst:          c.ResetCount,
			Push:         c.PushCount,
			Ack:          c.AckCount,
			KeepAlives:   c.KeepAliveCount,
			Retransmits:  c.RawRetransmits,
			SigRetrans:   c.SigRetransmits,
			Truncations:  c.TruncationErrors,
		})
		s.Totals.Bytes += c.TotalBytes
	}
	s.Totals.Files = len(t.Files)
	s.Totals.Frames = len(t.Frames)
	s.Totals.Conversations = len(t.Conversations)
	return s
}

// WriteText renders the summary as a human-readable listing.
func (s Summary) WriteText(w io.Writer) error {
	for _, f := range s.Files {
		if _, err := fmt.Fprintf(w, "file %s  frames=%d  %s .. %s\n",
			f.Path, f.Frames,
			f.FirstFrame.Format(time.RFC3339Nano),
			f.LastFrame.Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}
	for _, c := range s.Conversations {
		mars := ""
		if c.MARS {
			mars = "  mars"
		}
		if _, err := fmt.Fprintf(w,
			"%s %s -> %s  frames=%d bytes=%d dur=%s syn=%d fin=%d rst=%d push=%d keepalive=%d retrans=%d/%d%s\n",
			c.Protocol, c.Client, c.Server, c.Frames, c.Bytes, c.Duration,
			c.Syn, c.Fin, c.Rst, c.Push, c.KeepAlives,
			c.Retransmits, c.SigRetrans, mars); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "total: %d files, %d frames, %d conversations, %d bytes\n",
		s.Totals.Files, s.Totals.Frames, s.Totals.Conversations, s.Totals.Bytes)
	return err
}
