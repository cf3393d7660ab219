package reader

import (
	"bufio"
	"fmt"
	"os"

	"github.com/google/gopacket/pcapgo"

	"sqltrace.xyz/sqlna/internal/core"
)

// pcapNGReader wraps pcapgo.NgReader over the section/interface/packet
// block structure.
type pcapNGReader struct {
	f       *os.File
	r       *pcapgo.NgReader
	link    uint16
	frameNo uint32
}

func newPcapNGReader(path string) (FrameReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrFileAccess, path, err)
	}
	r, err := pcapgo.NewNgReader(bufio.NewReader(f), pcapgo.DefaultNgReaderOptions)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: %v", core.ErrFileAccess, path, err)
	}
	return &pcapNGReader{f: f, r: r, link: normalizeLinkType(r.LinkType())}, nil
}

func (p *pcapNGReader) Next() (Record, error) {
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

func (p *pcapNGReader) Close() error { return p.f.Close() }
