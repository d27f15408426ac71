package session

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/duallink/duallink/internal/collaborator"
	"github.com/duallink/duallink/internal/fragment"
	"github.com/duallink/duallink/internal/logging"
	"github.com/duallink/duallink/internal/stats"
	"github.com/duallink/duallink/internal/transport"
	"github.com/duallink/duallink/internal/wire"
)

var log = logging.L("session")

// errAckWaitFailed marks a handshake failure that happened while already
// waiting for hello_ack (a read error or the peer closing the TLS
// connection): §4.6 treats this as authentication failure, terminal, no
// reconnect — unlike a failure to even send hello, which is transient and
// still worth a backoff-and-retry.
var errAckWaitFailed = errors.New("session: hello_ack not received")

// SenderPipeline drives one display's outbound stream: it dials the
// receiver's signaling and video endpoints, performs the hello/ack
// handshake, and then pumps encoded access units and input-event replies
// until stopped or the session fails.
//
// The stop signal is a closed channel, not a one-shot handle drop: every
// goroutine select!s on done and exits cleanly, which is awaitable by many
// readers without the races a single-consumer handle would invite (§9).
type SenderPipeline struct {
	displayIndex int
	sessionID    string
	deviceName   string
	pairingPIN   string
	peerIP       net.IP
	tlsConfig    *tls.Config

	frameSource collaborator.FrameSource
	inputSink   collaborator.InputSink

	stats *stats.Pipeline

	mu         sync.Mutex
	cfg        wire.StreamConfig
	state      State
	attempt    int
	fragmenter *fragment.Fragmenter
	conn       *transport.SignalingConn

	done     chan struct{}
	stopOnce sync.Once
	runWG    sync.WaitGroup
	onStatus func(StatusEvent)
}

// NewSenderPipeline constructs a pipeline for one display. onStatus may be
// nil; frameSource may be nil, in which case no video is sent; inputSink
// may be nil if the sender process does not support remote input injection.
func NewSenderPipeline(displayIndex int, sessionID, deviceName, pin string, peerIP net.IP, tlsConfig *tls.Config, cfg wire.StreamConfig, frameSource collaborator.FrameSource, inputSink collaborator.InputSink, onStatus func(StatusEvent)) *SenderPipeline {
	p := &SenderPipeline{
		displayIndex: displayIndex,
		sessionID:    sessionID,
		deviceName:   deviceName,
		pairingPIN:   pin,
		peerIP:       peerIP,
		tlsConfig:    tlsConfig,
		cfg:          cfg,
		frameSource:  frameSource,
		inputSink:    inputSink,
		stats:        stats.NewPipeline(),
		fragmenter:   fragment.NewFragmenter(uint8(displayIndex)),
		done:         make(chan struct{}),
		state:        StateIdle,
		onStatus:     onStatus,
	}
	// Counted here, not inside Run, so Stop can safely race a Stop-before-
	// Run-scheduled caller without Wait returning early on an empty group.
	p.runWG.Add(1)
	return p
}

// Stats returns the pipeline's live counters.
func (p *SenderPipeline) Stats() stats.Snapshot { return p.stats.Snapshot() }

func (p *SenderPipeline) setState(s State, reason FailReason, detail string) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	if p.onStatus != nil {
		p.onStatus(StatusEvent{DisplayIndex: p.displayIndex, State: s, Reason: reason, Detail: detail})
	}
}

func (p *SenderPipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Run drives the connect/handshake/stream/reconnect lifecycle until Stop
// is called or the pipeline reaches a terminal failed state.
func (p *SenderPipeline) Run() {
	defer p.runWG.Done()

	for {
		select {
		case <-p.done:
			p.setState(StateIdle, ReasonStopped, "")
			return
		default:
		}

		p.setState(StateConnecting, "", "")
		conn, err := transport.DialSignaling(p.peerIP, p.displayIndex, p.tlsConfig)
		if err != nil {
			if !p.backoffOrFail() {
				return
			}
			continue
		}

		p.setState(StateWaitingForAck, "", "")
		accepted, reason, err := p.handshake(conn)
		if err != nil {
			conn.Close()
			if errors.Is(err, errAckWaitFailed) {
				// A read failure or close while waiting for hello_ack is
				// terminal, not transient: §4.6 forbids reconnecting out
				// of waiting_for_ack.
				p.setState(StateFailed, ReasonAuthFailure, err.Error())
				return
			}
			if !p.backoffOrFail() {
				return
			}
			continue
		}
		if !accepted {
			conn.Close()
			p.setState(StateFailed, ReasonAuthFailure, reason)
			return
		}

		p.mu.Lock()
		p.conn = conn
		p.attempt = 0
		p.mu.Unlock()
		p.setState(StateSessionActive, "", "")

		disconnected := p.runActive(conn)
		conn.Close()

		select {
		case <-p.done:
			p.setState(StateIdle, ReasonStopped, "")
			return
		default:
		}
		if !disconnected {
			continue
		}

		if !canReconnect(p.State()) {
			p.setState(StateFailed, ReasonCollaborator, "disconnect from a non-reconnectable state")
			return
		}
		p.setState(StateReconnecting, "", "")
		if !p.backoffOrFail() {
			return
		}
	}
}

// backoffOrFail increments the reconnect attempt counter, sleeps the
// corresponding backoff (unless stopped first), and reports whether the
// caller should retry (false means a terminal failed(max_reconnect) was
// reached, or Stop fired during the wait).
func (p *SenderPipeline) backoffOrFail() bool {
	p.mu.Lock()
	p.attempt++
	attempt := p.attempt
	p.mu.Unlock()

	if attempt > MaxReconnectAttempts {
		p.setState(StateFailed, ReasonMaxReconnects, fmt.Sprintf("exceeded %d reconnect attempts", MaxReconnectAttempts))
		return false
	}

	backoff := ReconnectBackoff(attempt)
	select {
	case <-p.done:
		p.setState(StateIdle, ReasonStopped, "")
		return false
	case <-time.After(backoff):
		return true
	}
}

func (p *SenderPipeline) handshake(conn *transport.SignalingConn) (accepted bool, reason string, err error) {
	p.mu.Lock()
	cfg := p.cfg
	p.mu.Unlock()

	hello := wire.NewHello(p.sessionID, p.deviceName, cfg, p.pairingPIN)
	if err := conn.WriteMessage(hello); err != nil {
		return false, "", fmt.Errorf("session: send hello: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(transport.HandshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	raw, err := conn.ReadMessage()
	if err != nil {
		return false, "", fmt.Errorf("%w: %v", errAckWaitFailed, err)
	}

	var ack wire.HelloAck
	if err := json.Unmarshal(raw, &ack); err != nil {
		return false, "", fmt.Errorf("%w: decode hello_ack: %v", errAckWaitFailed, err)
	}
	return ack.Accepted, ack.Reason, nil
}

// runActive runs the keepalive, video-send, and signaling-read pumps
// until one of them observes a disconnect or the pipeline is stopped. It
// returns true if the disconnect warrants a reconnect attempt.
func (p *SenderPipeline) runActive(conn *transport.SignalingConn) bool {
	disconnect := make(chan struct{})
	var disconnectOnce sync.Once
	signalDisconnect := func() { disconnectOnce.Do(func() { close(disconnect) }) }

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		p.keepalivePump(conn, disconnect)
	}()
	go func() {
		defer wg.Done()
		p.videoSendPump(disconnect)
	}()
	go func() {
		defer wg.Done()
		if err := p.signalingReadPump(conn); err != nil {
			log.Debug("signaling read pump exited", "display", p.displayIndex, "error", err)
		}
		signalDisconnect()
	}()

	select {
	case <-p.done:
	case <-disconnect:
	}
	signalDisconnect()
	wg.Wait()

	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *SenderPipeline) keepalivePump(conn *transport.SignalingConn, disconnect <-chan struct{}) {
	ticker := time.NewTicker(KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-disconnect:
			return
		case now := <-ticker.C:
			if err := conn.WriteMessage(wire.NewKeepalive(uint64(now.UnixMilli()))); err != nil {
				return
			}
		}
	}
}

func (p *SenderPipeline) videoSendPump(disconnect <-chan struct{}) {
	if p.frameSource == nil {
		return
	}

	videoConn, err := transport.DialVideoSender(p.peerIP, p.displayIndex)
	if err != nil {
		log.Error("video sender dial failed", "display", p.displayIndex, "error", err)
		return
	}
	defer videoConn.Close()

	ctx, cancel := contextFromChannels(p.done, disconnect)
	defer cancel()

	for {
		au, err := p.frameSource.Next(ctx)
		if err != nil {
			return
		}

		p.mu.Lock()
		f := p.fragmenter
		p.mu.Unlock()

		datagrams, err := f.Fragment(au.Data, au.PTSMillis, au.IsKeyframe)
		if err != nil {
			p.stats.Errors.Add(1)
			continue
		}
		for _, d := range datagrams {
			if err := videoConn.Send(d.Bytes()); err != nil {
				p.stats.Errors.Add(1)
				continue
			}
			p.stats.AddBytes(len(d.Payload))
		}
		p.stats.FramesSent.Add(1)
	}
}

func (p *SenderPipeline) signalingReadPump(conn *transport.SignalingConn) error {
	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env wire.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}

		switch env.Type {
		case wire.MsgInputEvent:
			if p.inputSink == nil {
				continue
			}
			var ev wire.InputEvent
			if err := json.Unmarshal(raw, &ev); err != nil {
				continue
			}
			if err := ev.Validate(); err != nil {
				continue
			}
			if err := p.inputSink.Handle(ev); err != nil {
				p.stats.Errors.Add(1)
			}
		case wire.MsgStop:
			return fmt.Errorf("session: peer requested stop")
		default:
			// Unknown or non-sender-bound message types are ignored for
			// forward compatibility (§6).
		}
	}
}

// UpdateConfig announces a new stream config to the receiver, restarting
// the fragmenter's frame_seq sequence only when the resolution changes
// (the open question in §9 is resolved here: frame_seq restarts at 0 on
// every resolution change, since the receiver's reassembler tracks
// partials per frame_seq and a fresh sequence avoids any stale-partial
// collision across the reinit boundary).
func (p *SenderPipeline) UpdateConfig(cfg wire.StreamConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	changedResolution := !p.cfg.SameResolution(cfg)
	p.cfg = cfg
	conn := p.conn
	if changedResolution {
		p.fragmenter.Reset()
	}
	p.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.WriteMessage(wire.NewConfigUpdate(p.sessionID, cfg))
}

// Stop requests pipeline shutdown and waits for Run's goroutine to exit.
// Safe to call multiple times and from multiple goroutines.
func (p *SenderPipeline) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
	})
	p.runWG.Wait()
}
