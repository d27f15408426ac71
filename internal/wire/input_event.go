package wire

import (
	"encoding/json"
	"fmt"
)

// InputEventKind discriminates the input event tagged union (§3). The wire
// layout is internally tagged: {"type":"input_event","kind":"<variant>", ...}.
type InputEventKind string

const (
	KindMouseMove       InputEventKind = "mouse_move"
	KindMouseDown       InputEventKind = "mouse_down"
	KindMouseUp         InputEventKind = "mouse_up"
	KindMouseScroll     InputEventKind = "mouse_scroll"
	KindKeyDown         InputEventKind = "key_down"
	KindKeyUp           InputEventKind = "key_up"
	KindGesturePinch    InputEventKind = "gesture_pinch"
	KindGestureRotation InputEventKind = "gesture_rotation"
	KindGestureSwipe    InputEventKind = "gesture_swipe"
	KindScrollSmooth    InputEventKind = "scroll_smooth"
)

// MouseButton identifies which button a mouse_down/mouse_up event refers to.
type MouseButton string

const (
	ButtonLeft   MouseButton = "left"
	ButtonRight  MouseButton = "right"
	ButtonMiddle MouseButton = "middle"
)

// GesturePhase tags the lifecycle of a multi-update gesture or smooth-scroll
// sequence.
type GesturePhase string

const (
	PhaseBegin     GesturePhase = "begin"
	PhaseChanged   GesturePhase = "changed"
	PhaseEnd       GesturePhase = "end"
	PhaseCancelled GesturePhase = "cancelled"
)

// InputEvent is the normalised, platform-neutral representation of one
// input back-channel event. Coordinates and deltas are doubles normalised
// to [0,1] against the content area of the target display; keycodes are
// platform-neutral identifiers mapped to local virtual keycodes by the
// input sink collaborator.
type InputEvent struct {
	Type MessageType    `json:"type"`
	Kind InputEventKind `json:"kind"`

	X float64 `json:"x,omitempty"`
	Y float64 `json:"y,omitempty"`

	DX float64 `json:"dx,omitempty"`
	DY float64 `json:"dy,omitempty"`

	Button MouseButton `json:"button,omitempty"`

	Keycode int    `json:"keycode,omitempty"`
	Text    string `json:"text,omitempty"`

	Phase GesturePhase `json:"phase,omitempty"`

	// Scale and Rotation carry the gesture_pinch/gesture_rotation magnitude.
	Scale    float64 `json:"scale,omitempty"`
	Rotation float64 `json:"rotation,omitempty"`

	DisplayIndex int `json:"display_index,omitempty"`
}

// NewInputEvent wraps a populated event with its envelope type for encoding.
func NewInputEvent(e InputEvent) InputEvent {
	e.Type = MsgInputEvent
	return e
}

// UnmarshalJSON accepts both snake_case and camelCase aliases for every
// field, per the legacy-compatibility rule in §6.
func (e *InputEvent) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	type plain InputEvent
	var p plain
	p.Type = MsgInputEvent

	assign := func(dst any, keys ...string) error {
		for _, k := range keys {
			v, ok := raw[k]
			if !ok {
				continue
			}
			return json.Unmarshal(v, dst)
		}
		return nil
	}

	if err := assign(&p.Kind, "kind"); err != nil {
		return err
	}
	if err := assign(&p.X, "x"); err != nil {
		return err
	}
	if err := assign(&p.Y, "y"); err != nil {
		return err
	}
	if err := assign(&p.DX, "dx"); err != nil {
		return err
	}
	if err := assign(&p.DY, "dy"); err != nil {
		return err
	}
	if err := assign(&p.Button, "button"); err != nil {
		return err
	}
	if err := assign(&p.Keycode, "keycode"); err != nil {
		return err
	}
	if err := assign(&p.Text, "text"); err != nil {
		return err
	}
	if err := assign(&p.Phase, "phase"); err != nil {
		return err
	}
	if err := assign(&p.Scale, "scale"); err != nil {
		return err
	}
	if err := assign(&p.Rotation, "rotation"); err != nil {
		return err
	}
	if err := assign(&p.DisplayIndex, "display_index", "displayIndex"); err != nil {
		return err
	}

	*e = InputEvent(p)
	return nil
}

// Validate checks coordinate/delta normalisation and variant-specific
// required fields.
func (e InputEvent) Validate() error {
	inRange := func(v float64) bool { return v >= 0.0 && v <= 1.0 }

	switch e.Kind {
	case KindMouseMove:
		if !inRange(e.X) || !inRange(e.Y) {
			return fmt.Errorf("wire: mouse_move coordinates out of [0,1]: x=%v y=%v", e.X, e.Y)
		}
	case KindMouseDown, KindMouseUp:
		if !inRange(e.X) || !inRange(e.Y) {
			return fmt.Errorf("wire: %s coordinates out of [0,1]: x=%v y=%v", e.Kind, e.X, e.Y)
		}
		switch e.Button {
		case ButtonLeft, ButtonRight, ButtonMiddle:
		default:
			return fmt.Errorf("wire: %s has invalid button %q", e.Kind, e.Button)
		}
	case KindMouseScroll:
		if !inRange(e.X) || !inRange(e.Y) {
			return fmt.Errorf("wire: mouse_scroll coordinates out of [0,1]: x=%v y=%v", e.X, e.Y)
		}
	case KindKeyDown, KindKeyUp:
		// keycode 0 is a valid platform-neutral identifier in some maps; no
		// further validation is mandated by the wire contract.
	case KindGesturePinch, KindGestureRotation, KindGestureSwipe, KindScrollSmooth:
		switch e.Phase {
		case PhaseBegin, PhaseChanged, PhaseEnd, PhaseCancelled:
		default:
			return fmt.Errorf("wire: %s has invalid phase %q", e.Kind, e.Phase)
		}
	default:
		return fmt.Errorf("wire: unknown input event kind %q", e.Kind)
	}
	return nil
}
