package reader

import (
	"bufio"
	"fmt"
	"os"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"sqltrace.xyz/sqlna/internal/core"
	"sqltrace.xyz/sqlna/internal/trace"
)

// pcapReader wraps pcapgo.Reader, which handles all four classic pcap
// magic variants (both byte orders, microsecond and nanosecond).
type pcapReader struct {
	f       *os.File
	r       *pcapgo.Reader
	link    uint16
	frameNo uint32
}

func newPcapReader(path string) (FrameReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrFileAccess, path, err)
	}
	r, err := pcapgo.NewReader(bufio.NewReader(f))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: %v", core.ErrFileAccess, path, err)
	}
	return &pcapReader{f: f, r: r, link: normalizeLinkType(r.LinkType())}, nil
}

func (p *pcapReader) Next() (Record, error) {
	data, ci, err := p.r.ReadPacketData()
	if err != nil {
		return Record{}, err
	}
	p.frameNo++
	rec := Record{
		FrameNo:        p.frameNo,
		LinkType:       p.link,
		FrameLength:    uint32(ci.Length),
		CapturedLength: uint32(ci.CaptureLength),
		Data:           data,
	}
	rec.Ticks, err = core.TicksFromTime(ci.Timestamp)
	if err != nil {
		return rec, err
	}
	return rec, nil
}

func (p *pcapReader) Close() error { return p.f.Close() }

// normalizeLinkType maps pcap DLT values onto the NetMon-style link types
// the decoder dispatches on.
func normalizeLinkType(lt layers.LinkType) uint16 {
	switch lt {
	case layers.LinkTypeEthernet:
		return trace.LinkTypeEthernet
	case layers.LinkTypeIEEE802_11:
		return trace.LinkTypeWiFi
	default:
		return uint16(lt)
	}
}
