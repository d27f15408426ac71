package session

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/duallink/duallink/internal/collaborator"
	"github.com/duallink/duallink/internal/fragment"
	"github.com/duallink/duallink/internal/input"
	"github.com/duallink/duallink/internal/pairing"
	"github.com/duallink/duallink/internal/stats"
	"github.com/duallink/duallink/internal/transport"
	"github.com/duallink/duallink/internal/wire"
)

// ReceiverPipeline accepts one display's inbound signaling connections,
// verifies the pairing PIN, and then reassembles and presents the video
// stream while forwarding locally captured input back to the sender.
//
// Unlike SenderPipeline, a receiver does not drive reconnect backoff
// itself — the sender is the active reconnecting party (§4.9); the
// receiver simply returns to accepting a fresh connection after any
// disconnect.
type ReceiverPipeline struct {
	displayIndex int
	pin          string

	frameSink   collaborator.FrameSink
	inputSource collaborator.InputSource

	listener *transport.SignalingListener
	reasm    *fragment.Reassembler
	stats    *stats.Pipeline

	mu    sync.Mutex
	state State
	cfg   wire.StreamConfig

	done     chan struct{}
	stopOnce sync.Once
	onStatus func(StatusEvent)
}

// NewReceiverPipeline constructs a receiver-side pipeline bound to a
// signaling listener already created for this display. frameSink may be
// nil, in which case completed frames are counted but not presented;
// inputSource may be nil if this receiver does not originate input events.
func NewReceiverPipeline(displayIndex int, pin string, listener *transport.SignalingListener, frameSink collaborator.FrameSink, inputSource collaborator.InputSource, onStatus func(StatusEvent)) *ReceiverPipeline {
	return &ReceiverPipeline{
		displayIndex: displayIndex,
		pin:          pin,
		listener:     listener,
		frameSink:    frameSink,
		inputSource:  inputSource,
		reasm:        fragment.NewReassembler(uint8(wire.MaxDisplayIndex)),
		stats:        stats.NewPipeline(),
		done:         make(chan struct{}),
		state:        StateIdle,
		onStatus:     onStatus,
	}
}

// Stats returns the pipeline's live counters.
func (p *ReceiverPipeline) Stats() stats.Snapshot { return p.stats.Snapshot() }

// State returns the pipeline's current FSM state.
func (p *ReceiverPipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *ReceiverPipeline) setState(s State, reason FailReason, detail string) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	if p.onStatus != nil {
		p.onStatus(StatusEvent{DisplayIndex: p.displayIndex, State: s, Reason: reason, Detail: detail})
	}
}

// Run accepts signaling connections and serves each in turn until Stop is
// called.
func (p *ReceiverPipeline) Run() {
	videoReceiver, err := transport.ListenVideoReceiver(p.displayIndex)
	if err != nil {
		p.setState(StateFailed, ReasonCollaborator, err.Error())
		return
	}
	defer videoReceiver.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.videoReceivePump(videoReceiver)
	}()
	go func() {
		defer wg.Done()
		p.evictionPump()
	}()

	for {
		select {
		case <-p.done:
			wg.Wait()
			p.setState(StateIdle, ReasonStopped, "")
			return
		default:
		}

		conn, err := p.listener.Accept()
		if err != nil {
			select {
			case <-p.done:
				wg.Wait()
				p.setState(StateIdle, ReasonStopped, "")
				return
			default:
				continue
			}
		}

		p.serveConnection(conn)
	}
}

func (p *ReceiverPipeline) serveConnection(conn *transport.SignalingConn) {
	p.setState(StateWaitingForAck, "", "")

	conn.SetReadDeadline(time.Now().Add(transport.HandshakeTimeout))
	raw, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		p.setState(StateIdle, "", "")
		return
	}

	var hello wire.Hello
	if err := json.Unmarshal(raw, &hello); err != nil {
		conn.Close()
		p.setState(StateIdle, "", "")
		return
	}

	if !pairing.Verify(p.pin, hello.PairingPIN) {
		conn.WriteMessage(wire.NewHelloAck(false, "Invalid pairing PIN"))
		conn.Close()
		p.setState(StateFailed, ReasonAuthFailure, "Invalid pairing PIN")
		return
	}

	if err := hello.Config.Validate(); err != nil {
		conn.WriteMessage(wire.NewHelloAck(false, err.Error()))
		conn.Close()
		p.setState(StateFailed, ReasonAuthFailure, err.Error())
		return
	}

	if err := conn.WriteMessage(wire.NewHelloAck(true, "")); err != nil {
		conn.Close()
		return
	}

	p.mu.Lock()
	p.cfg = hello.Config
	p.mu.Unlock()
	p.setState(StateSessionActive, "", "")

	p.serveActive(conn)
	conn.Close()

	select {
	case <-p.done:
	default:
		p.setState(StateIdle, "", "")
	}
}

func (p *ReceiverPipeline) serveActive(conn *transport.SignalingConn) {
	disconnect := make(chan struct{})
	var disconnectOnce sync.Once
	signalDisconnect := func() { disconnectOnce.Do(func() { close(disconnect) }) }

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := p.signalingReadPump(conn); err != nil {
			log.Debug("receiver signaling read pump exited", "display", p.displayIndex, "error", err)
		}
		signalDisconnect()
	}()
	go func() {
		defer wg.Done()
		p.inputForwardPump(conn, disconnect)
	}()

	select {
	case <-p.done:
	case <-disconnect:
	}
	signalDisconnect()
	wg.Wait()
}

// signalingReadPump dispatches incoming frames and enforces the
// keepalive-silence disconnect rule: no message for more than
// KeepaliveSilenceTimeout is treated as a disconnect.
func (p *ReceiverPipeline) signalingReadPump(conn *transport.SignalingConn) error {
	for {
		conn.SetReadDeadline(time.Now().Add(KeepaliveSilenceTimeout))
		raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env wire.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}

		switch env.Type {
		case wire.MsgKeepalive:
			// Silence detection only; no reply required (§4.6).
		case wire.MsgConfigUpdate:
			var cu wire.ConfigUpdate
			if err := json.Unmarshal(raw, &cu); err != nil {
				continue
			}
			if err := cu.Config.Validate(); err != nil {
				continue
			}

			p.mu.Lock()
			changedResolution := !p.cfg.SameResolution(cu.Config)
			p.cfg = cu.Config
			p.mu.Unlock()

			if changedResolution && p.frameSink != nil {
				if err := p.frameSink.Reconfigure(uint8(p.displayIndex), cu.Config.Width, cu.Config.Height); err != nil {
					p.stats.Errors.Add(1)
				}
			}
		case wire.MsgStop:
			return fmt.Errorf("session: peer requested stop")
		default:
		}
	}
}

func (p *ReceiverPipeline) inputForwardPump(conn *transport.SignalingConn, disconnect <-chan struct{}) {
	if p.inputSource == nil {
		return
	}

	q := input.NewQueue(input.DefaultCapacity)
	ctx, cancel := contextFromChannels(p.done, disconnect)
	defer cancel()

	go func() {
		for {
			ev, err := p.inputSource.Next(ctx)
			if err != nil {
				return
			}
			q.Push(wire.NewInputEvent(ev))
		}
	}()

	for {
		select {
		case <-p.done:
			return
		case <-disconnect:
			return
		case <-q.Signal():
			for {
				ev, ok := q.TryPop()
				if !ok {
					break
				}
				if err := conn.WriteMessage(ev); err != nil {
					return
				}
			}
		}
	}
}

func (p *ReceiverPipeline) videoReceivePump(videoReceiver *transport.VideoReceiver) {
	buf := make([]byte, 65536)
	for {
		select {
		case <-p.done:
			return
		default:
		}

		n, err := videoReceiver.ReadInto(buf)
		if err != nil {
			select {
			case <-p.done:
				return
			default:
				continue
			}
		}

		au, completed := p.reasm.Push(buf[:n])
		if !completed {
			continue
		}

		p.stats.FramesReceived.Add(1)
		p.stats.AddBytes(len(au.Data))

		if p.frameSink == nil {
			continue
		}
		if err := p.frameSink.Present(uint8(p.displayIndex), collaborator.AccessUnit{
			Data:       au.Data,
			PTSMillis:  au.PTSMillis,
			IsKeyframe: au.IsKeyframe,
		}); err != nil {
			p.stats.Errors.Add(1)
			continue
		}
		p.stats.FramesDecoded.Add(1)
	}
}

func (p *ReceiverPipeline) evictionPump() {
	ticker := time.NewTicker(fragment.PartialTimeout / 5)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			if n := p.reasm.Evict(); n > 0 {
				p.stats.FramesEvicted.Add(uint64(n))
			}
		}
	}
}

// Stop requests shutdown of the listener loop and any active connection.
func (p *ReceiverPipeline) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		p.listener.Close()
	})
}
