// Package stats tracks the per-pipeline counters the core exposes over its
// CLI/GUI surface: frame counts, error counts, and a rolling byte rate
// (§4.3, §8).
package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// Pipeline is a per-display set of cumulative counters and a 1-second
// rolling byte rate, safe for concurrent use.
type Pipeline struct {
	FramesSent      atomic.Uint64
	FramesReceived  atomic.Uint64
	FramesDecoded   atomic.Uint64
	FramesEvicted   atomic.Uint64
	Errors          atomic.Uint64
	ReconnectCount  atomic.Uint64

	mu          sync.Mutex
	windowStart time.Time
	windowBytes uint64
	rateBPS     uint64
	now         func() time.Time
}

// NewPipeline creates a zeroed stats block with its rate window starting now.
func NewPipeline() *Pipeline {
	p := &Pipeline{now: time.Now}
	p.windowStart = p.now()
	return p
}

// AddBytes records n bytes for the rolling byte-rate computation. The
// receiver pipeline calls it once per completed frame, the sender pipeline
// once per sent datagram.
func (p *Pipeline) AddBytes(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	elapsed := now.Sub(p.windowStart)
	if elapsed >= time.Second {
		p.rateBPS = uint64(float64(p.windowBytes) / elapsed.Seconds())
		p.windowBytes = 0
		p.windowStart = now
	}
	p.windowBytes += uint64(n)
}

// RateBPS returns the most recently computed rolling byte rate.
func (p *Pipeline) RateBPS() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rateBPS
}

// Snapshot is an immutable point-in-time copy of a Pipeline's counters,
// convenient for logging and status surfaces.
type Snapshot struct {
	FramesSent     uint64
	FramesReceived uint64
	FramesDecoded  uint64
	FramesEvicted  uint64
	Errors         uint64
	ReconnectCount uint64
	RateBPS        uint64
}

// Snapshot reads all counters without blocking concurrent writers for long.
func (p *Pipeline) Snapshot() Snapshot {
	return Snapshot{
		FramesSent:     p.FramesSent.Load(),
		FramesReceived: p.FramesReceived.Load(),
		FramesDecoded:  p.FramesDecoded.Load(),
		FramesEvicted:  p.FramesEvicted.Load(),
		Errors:         p.Errors.Load(),
		ReconnectCount: p.ReconnectCount.Load(),
		RateBPS:        p.RateBPS(),
	}
}
