package wavetable_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/nightjar-organ/virga/harmonic"
	"github.com/nightjar-organ/virga/wavetable"
)

func TestLoopLenApproximatesTargetFrequency(t *testing.T) {
	const fsamp = 44100.0
	for _, f := range []float32{110, 220, 440, 880} {
		l1, nc := wavetable.LoopLen(f, fsamp, 2000)
		if l1 <= 0 {
			t.Fatalf("LoopLen(%v) returned non-positive l1=%d", f, l1)
		}
		got := fsamp * float32(nc) / float32(l1)
		if rel := math.Abs(float64(got-f) / float64(f)); rel > 1e-3 {
			t.Fatalf("LoopLen(%v): fsamp*nc/l1 = %v, relative error %v too large", f, got, rel)
		}
	}
}

func TestLoopLenRespectsMax(t *testing.T) {
	l1, _ := wavetable.LoopLen(30, 44100, 100)
	if l1 > 100 {
		t.Fatalf("LoopLen returned l1=%d exceeding lmax=100", l1)
	}
}

func TestAttGainIsMonotoneAndReachesUnity(t *testing.T) {
	att := make([]float32, 256)
	wavetable.AttGain(att, len(att), 1.0)
	if att[0] < 0 {
		t.Fatalf("att[0] = %v, want >= 0", att[0])
	}
	if math.Abs(float64(att[len(att)-1]-1)) > 0.05 {
		t.Fatalf("att[last] = %v, want close to 1", att[len(att)-1])
	}
	for i := 1; i < len(att); i++ {
		if att[i] < att[i-1]-1e-3 {
			t.Fatalf("att not monotone at %d: %v -> %v", i, att[i-1], att[i])
		}
	}
}

func TestBuildProducesNonEmptyTable(t *testing.T) {
	var d harmonic.Addsynth
	d.Reset()
	d.N0, d.N1 = 36, 96
	d.HLev.SetV(0, 5, 1.0)
	rng := rand.New(rand.NewSource(1))
	table := wavetable.Build(&d, 40, 44100, 440, rng, nil)
	if table == nil {
		t.Fatal("Build returned nil")
	}
	if len(table.Samples) == 0 {
		t.Fatal("Build produced an empty sample buffer")
	}
	if table.L0 <= 0 {
		t.Fatalf("table.L0 = %d, want > 0", table.L0)
	}
}
