// Package reader opens capture files of heterogeneous formats behind one
// frame iterator. Format is selected by the four leading bytes, except
// Event Trace Logs which carry no magic and are matched on extension.
package reader

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	"sqltrace.xyz/sqlna/internal/core"
)

// Record is one raw frame yielded by a FrameReader.
type Record struct {
	FrameNo        uint32
	Ticks          int64
	LinkType       uint16
	FrameLength    uint32
	CapturedLength uint32
	Data           []byte
}

// FrameReader yields the records of one capture file in file order.
// Next returns io.EOF when the file is exhausted and core.ErrBadTimestamp
// for a record whose timestamp cannot be represented; the caller may keep
// reading after the latter.
type FrameReader interface {
	Next() (Record, error)
	Close() error
}

// Format is a detected capture file format.
type Format int

const (
	FormatUnknown Format = iota
	FormatNetMon
	FormatPcap
	FormatPcapNG
	FormatETL
)

func (f Format) String() string {
	switch f {
	case FormatNetMon:
		return "netmon"
	case FormatPcap:
		return "pcap"
	case FormatPcapNG:
		return "pcapng"
	case FormatETL:
		return "etl"
	default:
		return "unknown"
	}
}

// Leading magic values, read little-endian.
const (
	magicNetMon    = uint32(0x55424D47) // "GMBU"
	magicPcapLE    = uint32(0xA1B2C3D4)
	magicPcapBE    = uint32(0xD4C3B2A1)
	magicPcapNsLE  = uint32(0xA1B23C4D)
	magicPcapNsBE  = uint32(0x4D3CB2A1)
	magicPcapNGSHB = uint32(0x0A0D0D0A)
)

// DetectFormat sniffs the leading magic of the file at path.
func DetectFormat(path string) (Format, error) {
	if strings.HasSuffix(strings.ToLower(path), ".etl") {
		return FormatETL, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, fmt.Errorf("%w: %s: %v", core.ErrFileAccess, path, err)
	}
	defer f.Close()

	var head [4]byte
	if _, err := io.ReadFull(f, head[:]); err != nil {
		return FormatUnknown, fmt.Errorf("%w: %s: %v", core.ErrFileAccess, path, err)
	}

	switch binary.LittleEndian.Uint32(head[:]) {
	case magicNetMon:
		return FormatNetMon, nil
	case magicPcapLE, magicPcapBE, magicPcapNsLE, magicPcapNsBE:
		return FormatPcap, nil
	case magicPcapNGSHB:
		return FormatPcapNG, nil
	}
	return FormatUnknown, fmt.Errorf("%w: %s", core.ErrUnsupportedFormat, path)
}

// Open detects the format of path and returns the matching reader.
func Open(path string) (FrameReader, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatNetMon:
		return newNetMonReader(path)
	case FormatPcap:
		return newPcapReader(path)
	case FormatPcapNG:
		return newPcapNGReader(path)
	case FormatETL:
		return newETLReader(path)
	}
	return nil, fmt.Errorf("%w: %s", core.ErrUnsupportedFormat, path)
}
