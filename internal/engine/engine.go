// Package engine drives the capture pipeline: ordered file ingest
// through the decoder, followed by the direction, retransmit and
// continuation passes over the completed trace.
package engine

import (
	"errors"
	"io"
	"time"

	"sqltrace.xyz/sqlna/internal/core"
	"sqltrace.xyz/sqlna/internal/decoder"
	"sqltrace.xyz/sqlna/internal/log"
	"sqltrace.xyz/sqlna/internal/reader"
	"sqltrace.xyz/sqlna/internal/trace"
)

// Config carries the engine tunables.
type Config struct {
	// BackScanLimit caps how many same-direction predecessors the
	// retransmit and continuation passes examine per frame.
	BackScanLimit int `mapstructure:"back_scan_limit"`

	// RolloverGap is the minimum idle gap after an RST before a SYN on
	// the same 5-tuple starts a replacement conversation.
	RolloverGap time.Duration `mapstructure:"rollover_gap"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		BackScanLimit: 20,
		RolloverGap:   decoder.DefaultRolloverGap,
	}
}

func (c Config) withDefaults() Config {
	if c.BackScanLimit <= 0 {
		c.BackScanLimit = 20
	}
	if c.RolloverGap <= 0 {
		c.RolloverGap = decoder.DefaultRolloverGap
	}
	return c
}

// Engine runs the pipeline. It is single-threaded: ingest appends to the
// conversation index and the global frame sequence in one causal chain,
// and the passes run serially afterwards.
type Engine struct {
	cfg Config
	log log.Logger
}

// New returns an Engine writing diagnostics to logger.
func New(cfg Config, logger log.Logger) *Engine {
	return &Engine{cfg: cfg.withDefaults(), log: logger}
}

// Analyze ingests every capture file matching fileSpec in first-frame
// order and runs the post-processing passes. Per-file and per-frame
// faults are contained; the returned trace holds whatever decoded.
func (e *Engine) Analyze(fileSpec string) (*trace.Trace, error) {
	files, err := reader.OrderFiles(fileSpec, e.log)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		e.log.WithField("spec", fileSpec).Warn("no readable capture files matched")
	}

	var totalBytes int64
	for _, fe := range files {
		totalBytes += fe.Size
	}

	t := trace.NewSized(totalBytes)
	dec := decoder.New(t, e.log, decoder.WithRolloverGap(e.cfg.RolloverGap))
	for _, fe := range files {
		e.ingestFile(t, dec, fe)
	}

	e.FixDirections(t)
	e.MarkRetransmits(t)
	e.MarkContinuations(t)
	return t, nil
}

// ingestFile reads every frame of one capture file through the decoder.
// Read errors end the file; the remaining files still process.
func (e *Engine) ingestFile(t *trace.Trace, dec *decoder.Decoder, fe reader.FileEntry) {
	r, err := reader.Open(fe.Path)
	if err != nil {
		e.log.WithField("file", fe.Path).WithError(err).Warn("capture file skipped")
		return
	}
	defer r.Close()

	dec.StartFile(fe.Path)
	cf := &trace.CaptureFile{
		Path:       fe.Path,
		Size:       fe.Size,
		ModTime:    fe.ModTime,
		StartTicks: fe.FirstTicks,
	}
	t.Files = append(t.Files, cf)

	flog := e.log.WithField("file", fe.Path)
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		if errors.Is(err, core.ErrBadTimestamp) {
			flog.WithField("frame", rec.FrameNo).Warn("frame with unrepresentable timestamp dropped")
			continue
		}
		if err != nil {
			flog.WithError(err).Warn("capture file abandoned mid-read")
			return
		}

		cf.FrameCount++
		if cf.StartTicks == 0 || rec.Ticks < cf.StartTicks {
			cf.StartTicks = rec.Ticks
		}
		if rec.Ticks > cf.EndTicks {
			cf.EndTicks = rec.Ticks
		}

		f := &trace.Frame{
			FrameNo:        rec.FrameNo,
			Ticks:          rec.Ticks,
			File:           cf,
			FrameLength:    rec.FrameLength,
			CapturedLength: rec.CapturedLength,
			LinkType:       rec.LinkType,
			SMPSession:     -1,
		}
		if dec.DecodeFrame(f, rec.Data) {
			t.AppendFrame(f)
		}
	}
}
