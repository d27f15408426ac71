package fragment

import (
	"bytes"
	"testing"
	"time"

	"github.com/duallink/duallink/internal/wire"
)

func TestFragmenterSingleFragmentBoundary(t *testing.T) {
	f := NewFragmenter(0)

	au := bytes.Repeat([]byte{0xAB}, PayloadBudget)
	datagrams, err := f.Fragment(au, 1000, true)
	if err != nil {
		t.Fatalf("Fragment: %v", err)
	}
	if len(datagrams) != 1 {
		t.Fatalf("expected 1 fragment for exactly PayloadBudget bytes, got %d", len(datagrams))
	}

	au2 := bytes.Repeat([]byte{0xAB}, PayloadBudget+1)
	datagrams2, err := f.Fragment(au2, 1000, true)
	if err != nil {
		t.Fatalf("Fragment: %v", err)
	}
	if len(datagrams2) != 2 {
		t.Fatalf("expected 2 fragments for PayloadBudget+1 bytes, got %d", len(datagrams2))
	}
}

func TestFragmenterAssignsIncreasingFrameSeq(t *testing.T) {
	f := NewFragmenter(2)
	au := []byte("hello")

	d1, err := f.Fragment(au, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	d2, err := f.Fragment(au, 10, false)
	if err != nil {
		t.Fatal(err)
	}
	if d1[0].Header.FrameSeq != 0 || d2[0].Header.FrameSeq != 1 {
		t.Fatalf("expected frame_seq 0 then 1, got %d then %d", d1[0].Header.FrameSeq, d2[0].Header.FrameSeq)
	}
	for _, d := range d1 {
		if d.Header.DisplayIndex != 2 {
			t.Fatalf("expected display_index 2, got %d", d.Header.DisplayIndex)
		}
	}
}

func TestFragmenterRejectsEmptyAccessUnit(t *testing.T) {
	f := NewFragmenter(0)
	if _, err := f.Fragment(nil, 0, false); err == nil {
		t.Fatal("expected error for empty access unit")
	}
}

func TestReassemblerRoundTrip(t *testing.T) {
	for _, size := range []int{1, PayloadBudget, PayloadBudget + 1, PayloadBudget*100 + 37} {
		f := NewFragmenter(0)
		au := make([]byte, size)
		for i := range au {
			au[i] = byte(i)
		}

		datagrams, err := f.Fragment(au, 4242, true)
		if err != nil {
			t.Fatalf("size %d: Fragment: %v", size, err)
		}

		r := NewReassembler(wire.MaxDisplayIndex)
		var got AccessUnit
		var completed bool
		for _, d := range datagrams {
			au2, ok := r.Push(d.Bytes())
			if ok {
				got, completed = au2, true
			}
		}
		if !completed {
			t.Fatalf("size %d: frame never completed", size)
		}
		if !bytes.Equal(got.Data, au) {
			t.Fatalf("size %d: reassembled data mismatch", size)
		}
		if got.PTSMillis != 4242 || !got.IsKeyframe {
			t.Fatalf("size %d: header fields lost in reassembly", size)
		}
	}
}

func TestReassemblerCompletesWithLastFragmentFirst(t *testing.T) {
	f := NewFragmenter(1)
	au := bytes.Repeat([]byte{0x42}, PayloadBudget*3+10)

	datagrams, err := f.Fragment(au, 0, false)
	if err != nil {
		t.Fatal(err)
	}

	reversed := make([]Datagram, len(datagrams))
	for i, d := range datagrams {
		reversed[len(datagrams)-1-i] = d
	}

	r := NewReassembler(wire.MaxDisplayIndex)
	var completed bool
	var got AccessUnit
	for _, d := range reversed {
		if au2, ok := r.Push(d.Bytes()); ok {
			got, completed = au2, true
		}
	}
	if !completed {
		t.Fatal("frame did not complete when fragments arrived in reverse order")
	}
	if !bytes.Equal(got.Data, au) {
		t.Fatal("reassembled data mismatch with out-of-order arrival")
	}
}

func TestReassemblerDuplicateFragmentIsIdempotent(t *testing.T) {
	f := NewFragmenter(0)
	au := bytes.Repeat([]byte{0x01}, PayloadBudget*2)
	datagrams, err := f.Fragment(au, 0, false)
	if err != nil {
		t.Fatal(err)
	}

	r := NewReassembler(wire.MaxDisplayIndex)
	r.Push(datagrams[0].Bytes())
	r.Push(datagrams[0].Bytes())
	au2, ok := r.Push(datagrams[1].Bytes())
	if !ok {
		t.Fatal("expected frame to complete after duplicate + final fragment")
	}
	if !bytes.Equal(au2.Data, au) {
		t.Fatal("duplicate fragment corrupted reassembly")
	}
	if r.Stats().DuplicateFragments != 1 {
		t.Fatalf("expected 1 duplicate counted, got %d", r.Stats().DuplicateFragments)
	}
}

func TestReassemblerEvictsStalePartials(t *testing.T) {
	f := NewFragmenter(0)
	au := bytes.Repeat([]byte{0x01}, PayloadBudget*2)
	datagrams, err := f.Fragment(au, 0, false)
	if err != nil {
		t.Fatal(err)
	}

	r := NewReassembler(wire.MaxDisplayIndex)
	start := time.Now()
	r.now = func() time.Time { return start }
	r.Push(datagrams[0].Bytes())

	if n := r.Evict(); n != 0 {
		t.Fatalf("expected no eviction before timeout, got %d", n)
	}

	r.now = func() time.Time { return start.Add(PartialTimeout + time.Millisecond) }
	if n := r.Evict(); n != 1 {
		t.Fatalf("expected 1 eviction after timeout, got %d", n)
	}
	if r.InFlight() != 0 {
		t.Fatalf("expected 0 in-flight partials after eviction, got %d", r.InFlight())
	}
	if r.Stats().FramesEvicted != 1 {
		t.Fatalf("expected FramesEvicted=1, got %d", r.Stats().FramesEvicted)
	}
}

func TestReassemblerDropsMalformedDatagram(t *testing.T) {
	r := NewReassembler(wire.MaxDisplayIndex)
	garbage := bytes.Repeat([]byte{0xFF}, wire.HeaderSize+10)
	if _, ok := r.Push(garbage); ok {
		t.Fatal("expected malformed datagram to be dropped, not completed")
	}
	if r.Stats().MalformedDatagrams != 1 {
		t.Fatalf("expected MalformedDatagrams=1, got %d", r.Stats().MalformedDatagrams)
	}
}

func TestReassemblerSoftCapEvictsOldest(t *testing.T) {
	r := NewReassembler(wire.MaxDisplayIndex)
	base := time.Now()

	for i := 0; i < MaxInFlightPartials+5; i++ {
		r.now = func(t time.Time) func() time.Time {
			return func() time.Time { return t }
		}(base.Add(time.Duration(i) * time.Millisecond))

		f := NewFragmenter(0)
		au := bytes.Repeat([]byte{byte(i)}, PayloadBudget*2)
		datagrams, err := f.Fragment(au, 0, false)
		if err != nil {
			t.Fatal(err)
		}
		// Only push the first fragment so the frame stays partial, using a
		// distinct frame_seq per iteration isn't guaranteed since each
		// Fragmenter restarts at 0; force uniqueness via the header.
		d := datagrams[0]
		d.Header.FrameSeq = uint32(i)
		r.Push(d.Bytes())
	}

	if r.InFlight() > MaxInFlightPartials {
		t.Fatalf("expected in-flight partials capped at %d, got %d", MaxInFlightPartials, r.InFlight())
	}
	for seq := uint32(0); seq < 5; seq++ {
		if _, ok := r.partials[seq]; ok {
			t.Fatalf("expected oldest partial frame_seq %d to have been evicted", seq)
		}
	}
	if _, ok := r.partials[5]; !ok {
		t.Fatal("expected frame_seq 5 to survive the soft-cap evictions")
	}
}
