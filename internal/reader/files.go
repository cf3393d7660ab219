package reader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"sqltrace.xyz/sqlna/internal/core"
	"sqltrace.xyz/sqlna/internal/log"
)

// FileEntry is one capture file scheduled for ingest.
type FileEntry struct {
	Path       string
	Size       int64
	ModTime    time.Time
	FirstTicks int64
}

// OrderFiles expands a file spec (with * and ? wildcards) and returns the
// matching capture files sorted by the timestamp of their first frame.
// First-frame order is used instead of mtime because capture files get
// re-touched by copy and archive tools. Files that cannot be opened or
// sniffed are logged and skipped.
func OrderFiles(spec string, logger log.Logger) ([]FileEntry, error) {
	paths, err := filepath.Glob(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: bad file spec %q: %v", core.ErrFileAccess, spec, err)
	}
	if len(paths) == 0 {
		// No wildcard hit; treat the spec as a literal path so the
		// open failure is reported against it.
		paths = []string{spec}
	}
	sort.Strings(paths)

	entries := make([]FileEntry, 0, len(paths))
	for _, p := range paths {
		e, err := peekFile(p)
		if err != nil {
			logger.WithField("file", p).WithError(err).Warn("capture file skipped")
			continue
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].FirstTicks < entries[j].FirstTicks
	})
	return entries, nil
}

// peekFile sniffs the format of path and reads exactly one frame to
// learn its timestamp.
func peekFile(path string) (FileEntry, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return FileEntry{}, fmt.Errorf("%w: %s: %v", core.ErrFileAccess, path, err)
	}

	r, err := Open(path)
	if err != nil {
		return FileEntry{}, err
	}
	defer r.Close()

	rec, err := r.Next()
	if errors.Is(err, io.EOF) {
		return FileEntry{}, fmt.Errorf("%w: %s: no frames", core.ErrFileAccess, path)
	}
	if err != nil {
		return FileEntry{}, err
	}

	return FileEntry{
		Path:       path,
		Size:       fi.Size(),
		ModTime:    fi.ModTime(),
		FirstTicks: rec.Ticks,
	}, nil
}
