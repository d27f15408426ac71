package stats

import (
	"testing"
	"time"
)

func TestPipelineSnapshotCounters(t *testing.T) {
	p := NewPipeline()
	p.FramesSent.Add(5)
	p.Errors.Add(1)

	snap := p.Snapshot()
	if snap.FramesSent != 5 || snap.Errors != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestPipelineRollingByteRate(t *testing.T) {
	p := NewPipeline()
	start := time.Unix(0, 0)
	p.now = func() time.Time { return start }
	p.windowStart = start

	p.AddBytes(1000)
	if p.RateBPS() != 0 {
		t.Fatalf("expected no rate computed before window elapses, got %d", p.RateBPS())
	}

	p.now = func() time.Time { return start.Add(1100 * time.Millisecond) }
	p.AddBytes(0)
	if p.RateBPS() == 0 {
		t.Fatal("expected a non-zero rate once the 1-second window elapses")
	}
}
