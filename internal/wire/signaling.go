package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// MaxSignalingFrameBytes is the upper bound on a single length-prefixed
// signaling JSON frame. Frames larger than this are a protocol error that
// terminates the connection.
const MaxSignalingFrameBytes = 64 * 1024

// WriteFrame marshals v to JSON and writes it as a 4-byte big-endian
// length prefix followed by the payload. Callers are responsible for
// serialising concurrent writers (the signaling connection's write lock).
func WriteFrame(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("wire: marshal signaling frame: %w", err)
	}
	if len(payload) > MaxSignalingFrameBytes {
		return fmt.Errorf("wire: signaling frame too large (%d bytes)", len(payload))
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))

	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("wire: write frame length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("wire: write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed JSON frame from r. A frame whose
// declared length exceeds MaxSignalingFrameBytes is a protocol error.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxSignalingFrameBytes {
		return nil, fmt.Errorf("wire: signaling frame declares %d bytes, exceeds cap of %d", n, MaxSignalingFrameBytes)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("wire: read frame payload: %w", err)
	}
	return payload, nil
}

// MessageType is the discriminant carried in every signaling JSON frame's
// "type" field.
type MessageType string

const (
	MsgHello         MessageType = "hello"
	MsgHelloAck      MessageType = "hello_ack"
	MsgConfigUpdate  MessageType = "config_update"
	MsgKeepalive     MessageType = "keepalive"
	MsgStop          MessageType = "stop"
	MsgInputEvent    MessageType = "input_event"
)

// Envelope is decoded first to dispatch on Type before parsing the
// type-specific payload. Unknown types are ignored by callers for forward
// compatibility, per the wire contract.
type Envelope struct {
	Type MessageType `json:"type"`
}

// Codec identified by config; "h264" is the baseline-H264-equivalent codec,
// "h265" the main-HEVC-equivalent codec.
type Codec string

const (
	CodecH264 Codec = "h264"
	CodecH265 Codec = "h265"
)

// StreamConfig mirrors the stream config data model (§3). JSON field names
// are canonically snake_case; camelCase aliases are accepted on decode for
// one version to allow mixed-version deployments (see DESIGN.md).
type StreamConfig struct {
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	TargetFPS     int    `json:"target_fps"`
	MaxBitrateBPS int    `json:"max_bitrate_bps"`
	Codec         Codec  `json:"codec"`
	LowLatency    bool   `json:"low_latency"`
	DisplayIndex  int    `json:"display_index"`
}

// UnmarshalJSON accepts both snake_case and camelCase spellings of every
// field. See DESIGN.md's internal/wire section.
func (c *StreamConfig) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	type plain StreamConfig
	var p plain

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

	if err := assign(&p.Width, "width"); err != nil {
		return err
	}
	if err := assign(&p.Height, "height"); err != nil {
		return err
	}
	if err := assign(&p.TargetFPS, "target_fps", "targetFps"); err != nil {
		return err
	}
	if err := assign(&p.MaxBitrateBPS, "max_bitrate_bps", "maxBitrateBps"); err != nil {
		return err
	}
	if err := assign(&p.Codec, "codec"); err != nil {
		return err
	}
	if err := assign(&p.LowLatency, "low_latency", "lowLatency"); err != nil {
		return err
	}
	if err := assign(&p.DisplayIndex, "display_index", "displayIndex"); err != nil {
		return err
	}

	*c = StreamConfig(p)
	return nil
}

// Validate checks the stream config invariants from §3: positive even
// width/height, target_fps in {30,60}, positive bitrate, display_index in
// range.
func (c StreamConfig) Validate() error {
	if c.Width <= 0 || c.Width%2 != 0 {
		return fmt.Errorf("wire: width must be a positive even integer, got %d", c.Width)
	}
	if c.Height <= 0 || c.Height%2 != 0 {
		return fmt.Errorf("wire: height must be a positive even integer, got %d", c.Height)
	}
	if c.TargetFPS != 30 && c.TargetFPS != 60 {
		return fmt.Errorf("wire: target_fps must be 30 or 60, got %d", c.TargetFPS)
	}
	if c.MaxBitrateBPS <= 0 {
		return fmt.Errorf("wire: max_bitrate_bps must be positive, got %d", c.MaxBitrateBPS)
	}
	if c.Codec != CodecH264 && c.Codec != CodecH265 {
		return fmt.Errorf("wire: unknown codec %q", c.Codec)
	}
	if c.DisplayIndex < 0 || c.DisplayIndex > MaxDisplayIndex {
		return fmt.Errorf("wire: display_index out of range [0,%d], got %d", MaxDisplayIndex, c.DisplayIndex)
	}
	return nil
}

// SameResolution reports whether two configs share width and height,
// used to decide whether a config_update requires decoder re-init.
func (c StreamConfig) SameResolution(o StreamConfig) bool {
	return c.Width == o.Width && c.Height == o.Height
}

// Hello is the first message sent on a new signaling connection.
type Hello struct {
	Type        MessageType  `json:"type"`
	SessionID   string       `json:"session_id"`
	DeviceName  string       `json:"device_name"`
	Config      StreamConfig `json:"config"`
	PairingPIN  string       `json:"pairing_pin"`
}

// UnmarshalJSON accepts the camelCase aliases sessionId, deviceName and
// pairingPin alongside session_id, device_name and pairing_pin.
func (h *Hello) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	type plain Hello
	var p plain
	p.Type = MsgHello

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

	if err := assign(&p.SessionID, "session_id", "sessionId"); err != nil {
		return err
	}
	if err := assign(&p.DeviceName, "device_name", "deviceName"); err != nil {
		return err
	}
	if v, ok := raw["config"]; ok {
		if err := json.Unmarshal(v, &p.Config); err != nil {
			return err
		}
	}
	if err := assign(&p.PairingPIN, "pairing_pin", "pairingPin"); err != nil {
		return err
	}

	*h = Hello(p)
	return nil
}

// NewHello builds a well-typed Hello message.
func NewHello(sessionID, deviceName string, cfg StreamConfig, pin string) Hello {
	return Hello{Type: MsgHello, SessionID: sessionID, DeviceName: deviceName, Config: cfg, PairingPIN: pin}
}

// HelloAck is the receiver's response to Hello.
type HelloAck struct {
	Type     MessageType `json:"type"`
	Accepted bool        `json:"accepted"`
	Reason   string      `json:"reason,omitempty"`
}

// NewHelloAck builds an accepted/rejected acknowledgement.
func NewHelloAck(accepted bool, reason string) HelloAck {
	return HelloAck{Type: MsgHelloAck, Accepted: accepted, Reason: reason}
}

// ConfigUpdate announces a new stream config mid-session.
type ConfigUpdate struct {
	Type      MessageType  `json:"type"`
	SessionID string       `json:"session_id"`
	Config    StreamConfig `json:"config"`
}

func (c *ConfigUpdate) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	type plain ConfigUpdate
	var p plain
	p.Type = MsgConfigUpdate
	if v, ok := raw["session_id"]; ok {
		if err := json.Unmarshal(v, &p.SessionID); err != nil {
			return err
		}
	} else if v, ok := raw["sessionId"]; ok {
		if err := json.Unmarshal(v, &p.SessionID); err != nil {
			return err
		}
	}
	if v, ok := raw["config"]; ok {
		if err := json.Unmarshal(v, &p.Config); err != nil {
			return err
		}
	}
	*c = ConfigUpdate(p)
	return nil
}

// NewConfigUpdate builds a config_update message.
func NewConfigUpdate(sessionID string, cfg StreamConfig) ConfigUpdate {
	return ConfigUpdate{Type: MsgConfigUpdate, SessionID: sessionID, Config: cfg}
}

// Keepalive is sent by the sender once per second during session_active.
type Keepalive struct {
	Type         MessageType `json:"type"`
	TimestampMS  uint64      `json:"timestamp_ms"`
}

// NewKeepalive builds a keepalive message stamped with the given time.
func NewKeepalive(timestampMS uint64) Keepalive {
	return Keepalive{Type: MsgKeepalive, TimestampMS: timestampMS}
}

// Stop requests graceful teardown of the session.
type Stop struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

// NewStop builds a stop message.
func NewStop(sessionID string) Stop {
	return Stop{Type: MsgStop, SessionID: sessionID}
}
