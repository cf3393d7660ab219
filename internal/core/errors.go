// Package core defines sentinel errors and tick conversions shared by every stage.
package core

import "errors"

var (
	// Capture file errors
	ErrUnsupportedFormat = errors.New("sqlna: unsupported capture file format")
	ErrFileAccess        = errors.New("sqlna: capture file open or read failed")
	ErrBadTimestamp      = errors.New("sqlna: frame timestamp outside representable range")

	// Packet decoding errors
	ErrTruncatedFrame             = errors.New("sqlna: decode reaches past captured bytes")
	ErrESPUnknown                 = errors.New("sqlna: esp trailer not recognized at either blob length")
	ErrUnsupportedLinkType        = errors.New("sqlna: unsupported link type")
	ErrUnsupportedExtensionHeader = errors.New("sqlna: unsupported ipv6 extension header")
)
