package wire

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	msg := NewKeepalive(1700000000000)

	if err := WriteFrame(&buf, msg); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	payload, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}

	var got Keepalive
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != msg {
		t.Fatalf("got %+v, want %+v", got, msg)
	}
}

func TestReadFrameRejectsOversizeDeclaration(t *testing.T) {
	var buf bytes.Buffer
	var lenBuf [4]byte
	n := uint32(MaxSignalingFrameBytes)
	lenBuf[0] = byte(n >> 24)
	lenBuf[1] = byte(n >> 16)
	lenBuf[2] = byte(n >> 8)
	lenBuf[3] = byte(n)
	lenBuf[3]++ // one byte over the cap
	buf.Write(lenBuf[:])

	if _, err := ReadFrame(&buf); err == nil {
		t.Fatal("expected error for oversize frame declaration")
	}
}

func TestHelloUnmarshalAcceptsCamelCaseAliases(t *testing.T) {
	raw := []byte(`{"type":"hello","sessionId":"abc-123","deviceName":"MacBook","config":{"width":1920,"height":1080,"targetFps":30,"maxBitrateBps":8000000,"codec":"h264","lowLatency":true,"displayIndex":0},"pairingPin":"123456"}`)

	var h Hello
	if err := json.Unmarshal(raw, &h); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	want := NewHello("abc-123", "MacBook", StreamConfig{
		Width: 1920, Height: 1080, TargetFPS: 30, MaxBitrateBPS: 8000000,
		Codec: CodecH264, LowLatency: true, DisplayIndex: 0,
	}, "123456")
	if h != want {
		t.Fatalf("got %+v, want %+v", h, want)
	}
}

func TestHelloUnmarshalAcceptsSnakeCase(t *testing.T) {
	raw := []byte(`{"type":"hello","session_id":"abc-123","device_name":"MacBook","config":{"width":1920,"height":1080,"target_fps":30,"max_bitrate_bps":8000000,"codec":"h264","low_latency":true,"display_index":0},"pairing_pin":"123456"}`)

	var h Hello
	if err := json.Unmarshal(raw, &h); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if h.SessionID != "abc-123" || h.DeviceName != "MacBook" || h.PairingPIN != "123456" {
		t.Fatalf("snake_case fields not decoded: %+v", h)
	}
}

func TestStreamConfigValidate(t *testing.T) {
	valid := StreamConfig{Width: 1920, Height: 1080, TargetFPS: 30, MaxBitrateBPS: 8000000, Codec: CodecH264, DisplayIndex: 0}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid config to pass, got %v", err)
	}

	cases := []StreamConfig{
		{Width: 1921, Height: 1080, TargetFPS: 30, MaxBitrateBPS: 1, Codec: CodecH264},
		{Width: 1920, Height: 1081, TargetFPS: 30, MaxBitrateBPS: 1, Codec: CodecH264},
		{Width: 1920, Height: 1080, TargetFPS: 25, MaxBitrateBPS: 1, Codec: CodecH264},
		{Width: 1920, Height: 1080, TargetFPS: 30, MaxBitrateBPS: 0, Codec: CodecH264},
		{Width: 1920, Height: 1080, TargetFPS: 30, MaxBitrateBPS: 1, Codec: "vp9"},
		{Width: 1920, Height: 1080, TargetFPS: 30, MaxBitrateBPS: 1, Codec: CodecH264, DisplayIndex: 8},
	}
	for i, c := range cases {
		if err := c.Validate(); err == nil {
			t.Errorf("case %d: expected validation error for %+v", i, c)
		}
	}
}

func TestStreamConfigSameResolution(t *testing.T) {
	a := StreamConfig{Width: 1920, Height: 1080}
	b := StreamConfig{Width: 1920, Height: 1080, TargetFPS: 60}
	c := StreamConfig{Width: 2560, Height: 1440}

	if !a.SameResolution(b) {
		t.Fatal("expected same resolution regardless of fps difference")
	}
	if a.SameResolution(c) {
		t.Fatal("expected different resolution to be detected")
	}
}

func TestConfigUpdateRoundTrip(t *testing.T) {
	cu := NewConfigUpdate("sess-1", StreamConfig{Width: 2560, Height: 1440, TargetFPS: 60, MaxBitrateBPS: 12000000, Codec: CodecH265, DisplayIndex: 1})

	data, err := json.Marshal(cu)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got ConfigUpdate
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != cu {
		t.Fatalf("got %+v, want %+v", got, cu)
	}
}
