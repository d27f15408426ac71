// Package wire implements the DLNK datagram header codec and the
// length-prefixed JSON signaling frame codec described by the protocol.
// Both codecs are pure encode/decode: they know nothing about sockets,
// fragmentation policy, or session state.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Magic is the four-byte DLNK datagram magic, ASCII "DLNK".
const Magic uint32 = 0x444C4E4B

// HeaderSize is the fixed size in bytes of a DLNK datagram header.
const HeaderSize = 20

// KeyframeFlag is bit 0 of the flags byte.
const KeyframeFlag uint8 = 1 << 0

// MaxDisplayIndex is the highest valid display index (8 displays, 0..7).
const MaxDisplayIndex = 7

var (
	// ErrBadMagic indicates the datagram does not start with the DLNK magic.
	ErrBadMagic = errors.New("wire: bad magic")
	// ErrTooShort indicates the datagram is shorter than HeaderSize.
	ErrTooShort = errors.New("wire: datagram shorter than header")
	// ErrZeroFragCount indicates frag_count was zero.
	ErrZeroFragCount = errors.New("wire: frag_count is zero")
	// ErrFragIdxOutOfRange indicates frag_idx >= frag_count.
	ErrFragIdxOutOfRange = errors.New("wire: frag_idx out of range")
	// ErrDisplayIndexOutOfRange indicates display_index exceeds the session's range.
	ErrDisplayIndexOutOfRange = errors.New("wire: display_index out of range")
)

// Header is the fixed 20-byte DLNK datagram header, decoded into native
// types. Field order and sizes are bit-exact with the wire layout: see
// Encode for the byte offsets.
type Header struct {
	FrameSeq      uint32
	FragIdx       uint16
	FragCount     uint16
	PTSMillis     uint32
	IsKeyframe    bool
	DisplayIndex  uint8
}

// Encode writes the 20-byte wire representation of h into buf, which must
// be at least HeaderSize bytes long. Reserved bytes are written as zero.
func Encode(h Header, buf []byte) {
	binary.BigEndian.PutUint32(buf[0:4], Magic)
	binary.BigEndian.PutUint32(buf[4:8], h.FrameSeq)
	binary.BigEndian.PutUint16(buf[8:10], h.FragIdx)
	binary.BigEndian.PutUint16(buf[10:12], h.FragCount)
	binary.BigEndian.PutUint32(buf[12:16], h.PTSMillis)
	var flags uint8
	if h.IsKeyframe {
		flags |= KeyframeFlag
	}
	buf[16] = flags
	buf[17] = h.DisplayIndex
	buf[18] = 0
	buf[19] = 0
}

// Decode parses a DLNK datagram header from buf. maxDisplayIndex bounds
// the session's valid display_index range (typically display_count-1).
// It returns the decoded header; on success the header occupies the first
// HeaderSize bytes of buf.
func Decode(buf []byte, maxDisplayIndex uint8) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrTooShort
	}
	if binary.BigEndian.Uint32(buf[0:4]) != Magic {
		return Header{}, ErrBadMagic
	}

	h := Header{
		FrameSeq:     binary.BigEndian.Uint32(buf[4:8]),
		FragIdx:      binary.BigEndian.Uint16(buf[8:10]),
		FragCount:    binary.BigEndian.Uint16(buf[10:12]),
		PTSMillis:    binary.BigEndian.Uint32(buf[12:16]),
		IsKeyframe:   buf[16]&KeyframeFlag != 0,
		DisplayIndex: buf[17],
	}

	if h.FragCount == 0 {
		return Header{}, ErrZeroFragCount
	}
	if h.FragIdx >= h.FragCount {
		return Header{}, ErrFragIdxOutOfRange
	}
	if h.DisplayIndex > maxDisplayIndex {
		return Header{}, ErrDisplayIndexOutOfRange
	}

	return h, nil
}

func (h Header) String() string {
	return fmt.Sprintf("frame=%d frag=%d/%d pts=%dms key=%v display=%d",
		h.FrameSeq, h.FragIdx, h.FragCount, h.PTSMillis, h.IsKeyframe, h.DisplayIndex)
}
