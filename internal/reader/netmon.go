package reader

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"sqltrace.xyz/sqlna/internal/core"
)

// NetMon 2.x capture file layout. The header carries the capture start
// time as a SYSTEMTIME and points at a table of absolute frame offsets;
// each frame record stores its time as microseconds since capture start.
const (
	netmonHeaderLen      = 32
	netmonFrameHeaderLen = 16
)

type netMonReader struct {
	f          *os.File
	offsets    []uint32
	idx        int
	macType    uint16
	startTicks int64
}

func newNetMonReader(path string) (FrameReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrFileAccess, path, err)
	}

	hdr := make([]byte, netmonHeaderLen)
	if _, err := io.ReadFull(f, hdr); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: short netmon header: %v", core.ErrFileAccess, path, err)
	}
	if binary.LittleEndian.Uint32(hdr[0:4]) != magicNetMon {
		f.Close()
		return nil, fmt.Errorf("%w: %s", core.ErrUnsupportedFormat, path)
	}

	macType := binary.LittleEndian.Uint16(hdr[6:8])
	startTicks, err := systemTimeTicks(hdr[8:24])
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: capture start time: %w", path, err)
	}

	tableOffset := binary.LittleEndian.Uint32(hdr[24:28])
	tableLength := binary.LittleEndian.Uint32(hdr[28:32])
	if tableLength%4 != 0 {
		f.Close()
		return nil, fmt.Errorf("%w: %s: frame table length %d not a multiple of 4",
			core.ErrUnsupportedFormat, path, tableLength)
	}

	table := make([]byte, tableLength)
	if _, err := f.ReadAt(table, int64(tableOffset)); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: frame table: %v", core.ErrFileAccess, path, err)
	}
	offsets := make([]uint32, tableLength/4)
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint32(table[i*4:])
	}

	return &netMonReader{
		f:          f,
		offsets:    offsets,
		macType:    macType,
		startTicks: startTicks,
	}, nil
}

func (n *netMonReader) Next() (Record, error) {
	if n.idx >= len(n.offsets) {
		return Record{}, io.EOF
	}
	off := int64(n.offsets[n.idx])
	n.idx++

	hdr := make([]byte, netmonFrameHeaderLen)
	if _, err := n.f.ReadAt(hdr, off); err != nil {
		return Record{}, fmt.Errorf("%w: frame %d: %v", core.ErrFileAccess, n.idx, err)
	}

	micros := binary.LittleEndian.Uint64(hdr[0:8])
	frameLen := binary.LittleEndian.Uint32(hdr[8:12])
	captured := binary.LittleEndian.Uint32(hdr[12:16])

	data := make([]byte, captured)
	if _, err := n.f.ReadAt(data, off+netmonFrameHeaderLen); err != nil {
		return Record{}, fmt.Errorf("%w: frame %d data: %v", core.ErrFileAccess, n.idx, err)
	}

	rec := Record{
		FrameNo:        uint32(n.idx),
		LinkType:       n.macType,
		FrameLength:    frameLen,
		CapturedLength: captured,
		Data:           data,
	}

	ticks := n.startTicks + int64(micros)*10
	if ticks < 0 || ticks > core.MaxTicks {
		return rec, core.ErrBadTimestamp
	}
	rec.Ticks = ticks
	return rec, nil
}

func (n *netMonReader) Close() error { return n.f.Close() }

// systemTimeTicks converts a Windows SYSTEMTIME (8 little-endian uint16
// fields) to ticks.
func systemTimeTicks(b []byte) (int64, error) {
	year := int(binary.LittleEndian.Uint16(b[0:2]))
	month := int(binary.LittleEndian.Uint16(b[2:4]))
	// b[4:6] is day-of-week, unused
	day := int(binary.LittleEndian.Uint16(b[6:8]))
	hour := int(binary.LittleEndian.Uint16(b[8:10]))
	minute := int(binary.LittleEndian.Uint16(b[10:12]))
	second := int(binary.LittleEndian.Uint16(b[12:14]))
	millis := int(binary.LittleEndian.Uint16(b[14:16]))

	if year < 1 || year > 9999 || month < 1 || month > 12 || day < 1 || day > 31 {
		return 0, core.ErrBadTimestamp
	}
	t := time.Date(year, time.Month(month), day, hour, minute, second, millis*int(time.Millisecond), time.UTC)
	return core.TicksFromTime(t)
}
