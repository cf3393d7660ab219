package trace

import "time"

// CaptureFile records one ingested capture file.
type CaptureFile struct {
	Path       string
	Size       int64
	ModTime    time.Time
	StartTicks int64
	EndTicks   int64
	FrameCount uint32
}
