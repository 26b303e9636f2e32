package pipe_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/nightjar-organ/virga/harmonic"
	"github.com/nightjar-organ/virga/pipe"
	"github.com/nightjar-organ/virga/wavetable"
)

func buildTable(t *testing.T) *wavetable.Table {
	t.Helper()
	var d harmonic.Addsynth
	d.Reset()
	d.N0, d.N1 = 36, 96
	d.HLev.SetV(0, 5, 1.0)
	rng := rand.New(rand.NewSource(1))
	return wavetable.Build(&d, 40, 44100, 440, rng, nil)
}

func TestIdlePipeIsInactive(t *testing.T) {
	out := make([]float32, wavetable.Block)
	p := pipe.New(buildTable(t), out, rand.New(rand.NewSource(1)))
	if p.Active() {
		t.Fatal("freshly created pipe should be inactive")
	}
}

func TestNoteOnMakesPipeActiveAndRendersFiniteSamples(t *testing.T) {
	out := make([]float32, wavetable.Block)
	p := pipe.New(buildTable(t), out, rand.New(rand.NewSource(1)))
	p.NoteOn(1)
	if !p.Active() {
		t.Fatal("pipe should be active immediately after NoteOn")
	}
	for block := 0; block < 20; block++ {
		p.Render(block%2 == 0)
	}
	for i, v := range out {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			t.Fatalf("sample %d is non-finite: %v", i, v)
		}
	}
}

func TestNoteOffEventuallyReturnsToIdle(t *testing.T) {
	out := make([]float32, wavetable.Block)
	p := pipe.New(buildTable(t), out, rand.New(rand.NewSource(1)))
	p.NoteOn(1)
	for block := 0; block < 10; block++ {
		p.Render(block%2 == 0)
	}
	p.NoteOff()
	for block := 0; block < 4000; block++ {
		p.Render(block%2 == 0)
	}
	// The release lasts Kr blocks (about 70 at 44.1 kHz with the default
	// 0.1 s release), far fewer than the 4000 rendered here.
	if p.Active() {
		t.Fatal("pipe still active long after NoteOff; want idle")
	}
	for i, v := range out {
		if math.IsNaN(float64(v)) {
			t.Fatalf("sample %d is NaN after release", i)
		}
	}
}
