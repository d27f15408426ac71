package wire

import (
	"encoding/json"
	"testing"
)

func TestInputEventUnmarshalAliases(t *testing.T) {
	raw := []byte(`{"type":"input_event","kind":"mouse_move","x":0.5,"y":0.25,"displayIndex":2}`)

	var ev InputEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if ev.Kind != KindMouseMove || ev.X != 0.5 || ev.Y != 0.25 || ev.DisplayIndex != 2 {
		t.Fatalf("unexpected decode: %+v", ev)
	}
	if ev.Type != MsgInputEvent {
		t.Fatalf("expected Type to be stamped MsgInputEvent, got %q", ev.Type)
	}
}

func TestInputEventValidateMouseMove(t *testing.T) {
	ok := InputEvent{Kind: KindMouseMove, X: 0.1, Y: 0.9}
	if err := ok.Validate(); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}

	bad := InputEvent{Kind: KindMouseMove, X: 1.5, Y: 0.5}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected out-of-range coordinate to fail validation")
	}
}

func TestInputEventValidateMouseButton(t *testing.T) {
	ok := InputEvent{Kind: KindMouseDown, X: 0.1, Y: 0.1, Button: ButtonLeft}
	if err := ok.Validate(); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}

	bad := InputEvent{Kind: KindMouseDown, X: 0.1, Y: 0.1, Button: "wheel"}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected invalid button to fail validation")
	}
}

func TestInputEventValidateGesturePhase(t *testing.T) {
	ok := InputEvent{Kind: KindGesturePinch, Phase: PhaseBegin, Scale: 1.2}
	if err := ok.Validate(); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}

	bad := InputEvent{Kind: KindGesturePinch, Phase: "unknown"}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected invalid phase to fail validation")
	}
}

func TestInputEventValidateUnknownKind(t *testing.T) {
	bad := InputEvent{Kind: "warp_drive"}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected unknown kind to fail validation")
	}
}

func TestInputEventRoundTripKeyEvents(t *testing.T) {
	ev := NewInputEvent(InputEvent{Kind: KindKeyDown, Keycode: 65, Text: "a"})

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got InputEvent
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != ev {
		t.Fatalf("got %+v, want %+v", got, ev)
	}
}
