package division_test

import (
	"math/rand"
	"testing"

	"github.com/nightjar-organ/virga/division"
	"github.com/nightjar-organ/virga/engine"
	"github.com/nightjar-organ/virga/harmonic"
	"github.com/nightjar-organ/virga/rank"
)

type fakeSink struct {
	buf [division.NChan][]float32
}

func newFakeSink() *fakeSink {
	s := &fakeSink{}
	for i := range s.buf {
		s.buf[i] = make([]float32, 64)
	}
	return s
}

func (s *fakeSink) WritePtr() [division.NChan][]float32 { return s.buf }

func newTestRank(t *testing.T, n0, n1 int) *rank.Rank {
	t.Helper()
	var d harmonic.Addsynth
	d.Reset()
	d.N0, d.N1 = n0, n1
	d.HLev.SetV(0, 5, 1.0)
	r := rank.New(n0, n1)
	r.Addsynth = &d
	rng := rand.New(rand.NewSource(1))
	if err := r.GenWaves(44100, 440, [12]float32{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}, rng, nil); err != nil {
		t.Fatalf("GenWaves: %v", err)
	}
	return r
}

func TestSetRankInstallsAndFollowsDivision(t *testing.T) {
	sink := newFakeSink()
	d := division.New(sink, 44100)
	r := newTestRank(t, engine.NoteMin, engine.NoteMin+4)

	old := d.SetRank(0, r, harmonic.PanWide, 0)
	if old != nil {
		t.Fatalf("SetRank into empty slot 0 returned non-nil old rank")
	}
	if d.NRank() != 1 {
		t.Fatalf("NRank() = %d, want 1", d.NRank())
	}
	if r.Nmask&rank.FollowDivision == 0 {
		t.Fatalf("freshly installed rank's Nmask should default to FollowDivision")
	}
}

func TestSetDivMaskPropagatesToFollowingRanks(t *testing.T) {
	sink := newFakeSink()
	d := division.New(sink, 44100)
	r := newTestRank(t, engine.NoteMin, engine.NoteMin+4)
	d.SetRank(0, r, harmonic.PanWide, 0)

	d.SetDivMask(0x03)
	if r.Nmask&0x03 != 0x03 {
		t.Fatalf("Nmask = %#x, want low bits 0x03 set", r.Nmask)
	}
	d.ClrDivMask(0x01)
	if r.Nmask&0x01 != 0 {
		t.Fatalf("Nmask = %#x, want bit 0 cleared", r.Nmask)
	}
}

func TestUpdateKeymapBringsRankInLineWithMask(t *testing.T) {
	sink := newFakeSink()
	d := division.New(sink, 44100)
	r := newTestRank(t, engine.NoteMin, engine.NoteMin+4)
	d.SetRank(0, r, harmonic.PanWide, 0)
	d.SetDivMask(0x01)

	keymap := make([]byte, engine.NNotes)
	keymap[0] = 0x01 // note engine.NoteMin is down on keyboard bit 0

	d.UpdateKeymap(keymap, engine.NoteMin)
	if !r.Pipes[0].Active() {
		t.Fatalf("expected note %d to be sounding after UpdateKeymap", engine.NoteMin)
	}
	if r.Pipes[1].Active() {
		t.Fatalf("expected note %d to stay silent", engine.NoteMin+1)
	}
}
