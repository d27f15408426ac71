// Package fragment implements the sender-side Fragmenter and receiver-side
// Reassembler described in §4.2 and §4.3: splitting an access unit into
// MTU-sized DLNK datagrams and recovering access units from the datagrams
// that arrive.
package fragment

import (
	"fmt"

	"github.com/duallink/duallink/internal/wire"
)

// PayloadBudget is the maximum access-unit bytes carried in one datagram
// after the 20-byte header, chosen to fit a 1500-byte-MTU Ethernet link
// after IP+UDP overhead.
const PayloadBudget = 1384

// DatagramSize is the full size of one DLNK datagram: header + payload.
const DatagramSize = wire.HeaderSize + PayloadBudget

// Fragmenter splits access units into MTU-sized datagrams for one display.
// It is not safe for concurrent use by multiple goroutines; a pipeline owns
// exactly one Fragmenter per display, matching the Reassembler's ownership
// model on the other end.
type Fragmenter struct {
	displayIndex uint8
	nextFrameSeq uint32
}

// NewFragmenter creates a Fragmenter for the given display index, starting
// frame_seq at zero.
func NewFragmenter(displayIndex uint8) *Fragmenter {
	return &Fragmenter{displayIndex: displayIndex}
}

// Datagram is one wire-ready DLNK datagram: a header plus its fragment of
// the access unit.
type Datagram struct {
	Header  wire.Header
	Payload []byte
}

// Bytes renders the datagram into a single contiguous buffer (header then
// payload), ready to hand to a UDP socket.
func (d Datagram) Bytes() []byte {
	buf := make([]byte, wire.HeaderSize+len(d.Payload))
	wire.Encode(d.Header, buf)
	copy(buf[wire.HeaderSize:], d.Payload)
	return buf
}

// Fragment splits accessUnit into an ordered sequence of datagrams sharing
// one frame_seq, incrementing the Fragmenter's internal counter (with
// uint32 wraparound) on return. accessUnit must be non-empty.
//
// The caller MUST transmit the returned datagrams in order (increasing
// frag_idx) and MUST finish transmitting one frame's datagrams before
// starting the next — see §4.2.
func (f *Fragmenter) Fragment(accessUnit []byte, ptsMillis uint32, isKeyframe bool) ([]Datagram, error) {
	if len(accessUnit) == 0 {
		return nil, fmt.Errorf("fragment: access unit must be non-empty")
	}

	fragCount := (len(accessUnit) + PayloadBudget - 1) / PayloadBudget
	if fragCount > int(^uint16(0)) {
		return nil, fmt.Errorf("fragment: access unit of %d bytes needs %d fragments, exceeds uint16 frag_count", len(accessUnit), fragCount)
	}

	frameSeq := f.nextFrameSeq
	datagrams := make([]Datagram, 0, fragCount)

	for idx := 0; idx < fragCount; idx++ {
		start := idx * PayloadBudget
		end := start + PayloadBudget
		if end > len(accessUnit) {
			end = len(accessUnit)
		}

		datagrams = append(datagrams, Datagram{
			Header: wire.Header{
				FrameSeq:     frameSeq,
				FragIdx:      uint16(idx),
				FragCount:    uint16(fragCount),
				PTSMillis:    ptsMillis,
				IsKeyframe:   isKeyframe,
				DisplayIndex: f.displayIndex,
			},
			Payload: accessUnit[start:end],
		})
	}

	f.nextFrameSeq++
	return datagrams, nil
}

// NextFrameSeq returns the frame_seq that will be assigned to the next
// Fragment call, for diagnostics and tests.
func (f *Fragmenter) NextFrameSeq() uint32 { return f.nextFrameSeq }

// Reset restarts frame_seq at zero. Used by the session pipeline on
// decoder hot-reload when the "restart at 0" choice is in effect — see
// DESIGN.md's resolution on the frame_seq-continuity open question.
func (f *Fragmenter) Reset() { f.nextFrameSeq = 0 }
