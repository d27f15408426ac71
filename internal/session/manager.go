package session

import (
	"crypto/tls"
	"fmt"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/duallink/duallink/internal/certs"
	"github.com/duallink/duallink/internal/collaborator"
	"github.com/duallink/duallink/internal/transport"
	"github.com/duallink/duallink/internal/wire"
)

// SenderSessionManager owns every display pipeline for one outbound
// session. Only pipeline 0's state changes drive the session-level state
// reported by State(); the remaining pipelines inherit it (§4.9).
type SenderSessionManager struct {
	sessionID  string
	pipelines  []*SenderPipeline
	onStatus   func(StatusEvent)

	mu    sync.Mutex
	state State
}

// SenderConfig is the input to ConnectAndStream: one stream config and collaborator
// pair per display, keyed by display index.
type SenderConfig struct {
	DeviceName      string
	PeerIP          net.IP
	PeerFingerprint string
	PairingPIN      string
	SessionID       string
	Displays        []DisplaySenderConfig
}

// DisplaySenderConfig configures one display's SenderPipeline.
type DisplaySenderConfig struct {
	DisplayIndex int
	StreamConfig wire.StreamConfig
	FrameSource  collaborator.FrameSource
	InputSink    collaborator.InputSink
}

// ConnectAndStream brings up all of a session's pipelines against a
// TOFU-pinned receiver, per the single connect_and_stream entry point
// described in §4.9.
func ConnectAndStream(cfg SenderConfig, onStatus func(StatusEvent)) (*SenderSessionManager, error) {
	if len(cfg.Displays) == 0 {
		return nil, fmt.Errorf("session: at least one display is required")
	}

	tlsConfig := certs.TOFUClientTLSConfig(cfg.PeerFingerprint)

	m := &SenderSessionManager{
		sessionID: cfg.SessionID,
		onStatus:  onStatus,
		state:     StateIdle,
	}

	for _, d := range cfg.Displays {
		idx := d.DisplayIndex
		p := NewSenderPipeline(idx, cfg.SessionID, cfg.DeviceName, cfg.PairingPIN, cfg.PeerIP, tlsConfig, d.StreamConfig, d.FrameSource, d.InputSink, m.handlePipelineStatus(idx))
		m.pipelines = append(m.pipelines, p)
	}

	for _, p := range m.pipelines {
		go p.Run()
	}
	return m, nil
}

func (m *SenderSessionManager) handlePipelineStatus(displayIndex int) func(StatusEvent) {
	return func(ev StatusEvent) {
		if m.onStatus != nil {
			m.onStatus(ev)
		}
		if displayIndex != 0 {
			return
		}

		m.mu.Lock()
		m.state = ev.State
		m.mu.Unlock()

		if ev.State == StateFailed {
			m.StopAll()
		}
	}
}

// State returns the session-level state, mirrored from pipeline 0.
func (m *SenderSessionManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Pipeline returns the pipeline for a given display index, if present.
func (m *SenderSessionManager) Pipeline(displayIndex int) *SenderPipeline {
	for _, p := range m.pipelines {
		if p.displayIndex == displayIndex {
			return p
		}
	}
	return nil
}

// StopAll tears down pipelines in index order (§4.9).
func (m *SenderSessionManager) StopAll() {
	for _, p := range m.pipelines {
		p.Stop()
	}
}

// ReceiverSessionManager owns every display pipeline for one inbound
// session, one signaling listener per display.
type ReceiverSessionManager struct {
	pipelines []*ReceiverPipeline
	listeners []*transport.SignalingListener
	onStatus  func(StatusEvent)

	mu    sync.Mutex
	state State
}

// ReceiverConfig is the input to Listen: one collaborator pair per display.
type ReceiverConfig struct {
	PairingPIN string
	Identity   *tls.Config
	Displays   []DisplayReceiverConfig
}

// DisplayReceiverConfig configures one display's ReceiverPipeline.
type DisplayReceiverConfig struct {
	DisplayIndex int
	FrameSink    collaborator.FrameSink
	InputSource  collaborator.InputSource
}

// Listen binds a signaling listener and starts a ReceiverPipeline for
// every configured display.
func Listen(cfg ReceiverConfig, onStatus func(StatusEvent)) (*ReceiverSessionManager, error) {
	if len(cfg.Displays) == 0 {
		return nil, fmt.Errorf("session: at least one display is required")
	}

	m := &ReceiverSessionManager{onStatus: onStatus, state: StateIdle}

	// Binding N TLS listeners is pure I/O (socket + cert handshake setup)
	// with no cross-display ordering requirement, so the displays are
	// bound concurrently rather than one port at a time.
	listeners := make([]*transport.SignalingListener, len(cfg.Displays))
	var g errgroup.Group
	for i, d := range cfg.Displays {
		i, d := i, d
		g.Go(func() error {
			ln, err := transport.ListenSignaling(d.DisplayIndex, cfg.Identity)
			if err != nil {
				return fmt.Errorf("session: bind display %d: %w", d.DisplayIndex, err)
			}
			listeners[i] = ln
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, ln := range listeners {
			if ln != nil {
				ln.Close()
			}
		}
		return nil, err
	}

	for i, d := range cfg.Displays {
		ln := listeners[i]
		m.listeners = append(m.listeners, ln)

		idx := d.DisplayIndex
		p := NewReceiverPipeline(idx, cfg.PairingPIN, ln, d.FrameSink, d.InputSource, m.handlePipelineStatus(idx))
		m.pipelines = append(m.pipelines, p)
	}

	for _, p := range m.pipelines {
		go p.Run()
	}
	return m, nil
}

func (m *ReceiverSessionManager) handlePipelineStatus(displayIndex int) func(StatusEvent) {
	return func(ev StatusEvent) {
		if m.onStatus != nil {
			m.onStatus(ev)
		}
		if displayIndex != 0 {
			return
		}
		m.mu.Lock()
		m.state = ev.State
		m.mu.Unlock()
	}
}

// State returns the session-level state, mirrored from pipeline 0.
func (m *ReceiverSessionManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// StopAll tears down pipelines and listeners in index order (§4.9).
func (m *ReceiverSessionManager) StopAll() {
	for _, p := range m.pipelines {
		p.Stop()
	}
}
