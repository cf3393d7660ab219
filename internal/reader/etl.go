package reader

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"sqltrace.xyz/sqlna/internal/core"
	"sqltrace.xyz/sqlna/internal/trace"
)

// Event Trace Log support is best-effort: the reader walks the WMI
// buffers of an .etl file and yields the packet fragments logged by the
// NDIS-PacketCapture provider. Events of other providers, and events
// carrying extended data, are skipped.
const (
	etlBufferHeaderLen = 0x48
	etlEventHeaderLen  = 0x50

	// EVENT_HEADER types for 32- and 64-bit crimson events.
	etlHeaderTypeEvent32 = 0x14
	etlHeaderTypeEvent64 = 0x15

	etlFlagExtendedInfo = 0x0001

	// Event timestamps are FILETIME: 100-ns units since 1601-01-01.
	ticksAt1601 = int64(504_911_232_000_000_000)
)

// ndisPacketCaptureGUID is Microsoft-Windows-NDIS-PacketCapture
// {2ED6006E-4729-4609-B423-3EE7BCD678EF} in on-disk byte order.
var ndisPacketCaptureGUID = [16]byte{
	0x6E, 0x00, 0xD6, 0x2E, 0x29, 0x47, 0x09, 0x46,
	0xB4, 0x23, 0x3E, 0xE7, 0xBC, 0xD6, 0x78, 0xEF,
}

type etlReader struct {
	f        *os.File
	size     int64
	bufSize  uint32
	bufStart int64  // file offset of the current buffer
	bufEnd   uint32 // SavedOffset of the current buffer
	buf      []byte
	eventOff uint32
	frameNo  uint32
}

func newETLReader(path string) (FrameReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrFileAccess, path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: %v", core.ErrFileAccess, path, err)
	}

	var head [etlBufferHeaderLen]byte
	if _, err := io.ReadFull(f, head[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: short etl header: %v", core.ErrFileAccess, path, err)
	}
	bufSize := binary.LittleEndian.Uint32(head[0:4])
	if bufSize < etlBufferHeaderLen || int64(bufSize) > fi.Size() {
		f.Close()
		return nil, fmt.Errorf("%w: %s: implausible etl buffer size %d",
			core.ErrUnsupportedFormat, path, bufSize)
	}

	r := &etlReader{f: f, size: fi.Size(), bufSize: bufSize}
	// The first buffer holds the trace logfile header, not packet
	// events; start with the second.
	if err := r.loadBuffer(int64(bufSize)); err != nil && err != io.EOF {
		f.Close()
		return nil, err
	}
	return r, nil
}

// loadBuffer reads the WMI buffer starting at off. io.EOF means the file
// is exhausted.
func (r *etlReader) loadBuffer(off int64) error {
	if off+int64(etlBufferHeaderLen) > r.size {
		return io.EOF
	}
	if r.buf == nil {
		r.buf = make([]byte, r.bufSize)
	}
	n, err := r.f.ReadAt(r.buf, off)
	if err != nil && (err != io.EOF || n < etlBufferHeaderLen) {
		return fmt.Errorf("%w: etl buffer at %d: %v", core.ErrFileAccess, off, err)
	}
	r.bufStart = off
	saved := binary.LittleEndian.Uint32(r.buf[4:8])
	if saved < etlBufferHeaderLen || saved > uint32(n) {
		saved = etlBufferHeaderLen
	}
	r.bufEnd = saved
	r.eventOff = etlBufferHeaderLen
	return nil
}

func (r *etlReader) Next() (Record, error) {
	for {
		if r.eventOff+4 > r.bufEnd {
			if err := r.loadBuffer(r.bufStart + int64(r.bufSize)); err != nil {
				return Record{}, err
			}
			continue
		}

		off := r.eventOff
		size := uint32(binary.LittleEndian.Uint16(r.buf[off : off+2]))
		headerType := r.buf[off+2]
		if size < 4 || off+size > r.bufEnd {
			// Corrupt or padding; move to the next buffer.
			r.eventOff = r.bufEnd
			continue
		}
		// Events are 8-byte aligned within a buffer.
		r.eventOff = off + (size+7)&^7

		if headerType != etlHeaderTypeEvent32 && headerType != etlHeaderTypeEvent64 {
			continue
		}
		if size < etlEventHeaderLen {
			continue
		}
		flags := binary.LittleEndian.Uint16(r.buf[off+4 : off+6])
		if flags&etlFlagExtendedInfo != 0 {
			continue
		}
		if [16]byte(r.buf[off+24:off+40]) != ndisPacketCaptureGUID {
			continue
		}

		payload := r.buf[off+etlEventHeaderLen : off+size]
		// MiniportIfIndex, LowerIfIndex, FragmentSize, Fragment.
		if len(payload) < 12 {
			continue
		}
		fragLen := binary.LittleEndian.Uint32(payload[8:12])
		if int(fragLen) > len(payload)-12 {
			continue
		}

		r.frameNo++
		rec := Record{
			FrameNo:        r.frameNo,
			LinkType:       trace.LinkTypeEthernet,
			FrameLength:    fragLen,
			CapturedLength: fragLen,
			Data:           append([]byte(nil), payload[12:12+fragLen]...),
		}

		fileTime := int64(binary.LittleEndian.Uint64(r.buf[off+16 : off+24]))
		ticks := fileTime + ticksAt1601
		if fileTime < 0 || ticks < 0 || ticks > core.MaxTicks {
			return rec, core.ErrBadTimestamp
		}
		rec.Ticks = ticks
		return rec, nil
	}
}

func (r *etlReader) Close() error { return r.f.Close() }
