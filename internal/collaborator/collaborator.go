// Package collaborator defines the narrow interfaces the core streaming
// pipeline depends on but never implements: GPU capture/encode, hardware
// decode/presentation, and per-OS input injection are all out of scope
// (§1, §6) and live behind these contracts.
package collaborator

import (
	"context"

	"github.com/duallink/duallink/internal/wire"
)

// AccessUnit is one encoded video frame handed across the collaborator
// boundary, in Annex-B byte-stream form for h264.
type AccessUnit struct {
	Data       []byte
	PTSMillis  uint32
	IsKeyframe bool
}

// FrameSource produces a lazy, potentially infinite sequence of encoded
// access units for one display. Implementations MUST begin the sequence
// with a keyframe and emit a new keyframe at least every 2 seconds or on
// explicit demand via RequestKeyframe (§6).
type FrameSource interface {
	// Next blocks until the next access unit is ready or ctx is cancelled.
	Next(ctx context.Context) (AccessUnit, error)
	// RequestKeyframe asks the encoder to emit a keyframe at the next
	// opportunity. The session pipelines in this module do not call it.
	RequestKeyframe()
}

// FrameSink consumes reassembled access units in the order the Reassembler
// completes them (not necessarily frame_seq order) and presents them. It
// may drop frames preceding the most recent keyframe after loss (§6).
type FrameSink interface {
	Present(displayIndex uint8, au AccessUnit) error
	// Reconfigure re-initialises decode state for a new resolution. Called
	// only when a config_update changes width/height (§4.6).
	Reconfigure(displayIndex uint8, width, height int) error
}

// InputSource produces a lazy sequence of normalised input events on the
// receiver side, to be forwarded to the sender over signaling (§6).
type InputSource interface {
	Next(ctx context.Context) (wire.InputEvent, error)
}

// InputSink consumes input events on the sender side and replays them
// against the local desktop, mapping platform-neutral keycodes to local
// virtual keycodes (§6).
type InputSink interface {
	Handle(ev wire.InputEvent) error
}
