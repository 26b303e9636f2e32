package asection_test

import (
	"math"
	"testing"

	"github.com/nightjar-organ/virga/asection"
	"github.com/nightjar-organ/virga/wavetable"
)

func TestProcessIsSilentOnSilentInput(t *testing.T) {
	s := asection.New(44100)
	w, x, y, r := make([]float32, wavetable.Block), make([]float32, wavetable.Block), make([]float32, wavetable.Block), make([]float32, wavetable.Block)

	s.Process(1.0, w, x, y, r)

	for i := range w {
		if w[i] != 0 || x[i] != 0 || y[i] != 0 || r[i] != 0 {
			t.Fatalf("expected silence at %d, got w=%v x=%v y=%v r=%v", i, w[i], x[i], y[i], r[i])
		}
	}
}

func TestProcessProducesFiniteOutputForWrittenBlock(t *testing.T) {
	s := asection.New(44100)
	ptrs := s.WritePtr()
	for ch := range ptrs {
		for i := range ptrs[ch] {
			ptrs[ch][i] = 1.0
		}
	}

	w, x, y, r := make([]float32, wavetable.Block), make([]float32, wavetable.Block), make([]float32, wavetable.Block), make([]float32, wavetable.Block)
	s.Process(1.0, w, x, y, r)

	for i := range w {
		for _, buf := range [][]float32{w, x, y, r} {
			if math.IsNaN(float64(buf[i])) || math.IsInf(float64(buf[i]), 0) {
				t.Fatalf("non-finite sample at %d: %v", i, buf[i])
			}
		}
	}
}

func TestParamReturnsAdjustableDefaults(t *testing.T) {
	s := asection.New(44100)
	p := s.Param(asection.Azimuth)
	if p.Value != 0 || p.Min != -1 || p.Max != 1 {
		t.Fatalf("Azimuth default = %+v, want {0 -1 1}", *p)
	}
	p.Value = 0.5
	if s.Param(asection.Azimuth).Value != 0.5 {
		t.Fatal("Param should return a pointer into the live section, not a copy")
	}
}

func TestSetSizeRebuildsDiffusersWithoutPanicking(t *testing.T) {
	s := asection.New(44100)
	s.SetSize(0.01)
	s.SetSize(3.0)

	ptrs := s.WritePtr()
	for ch := range ptrs {
		for i := range ptrs[ch] {
			ptrs[ch][i] = 0.3
		}
	}
	w, x, y, r := make([]float32, wavetable.Block), make([]float32, wavetable.Block), make([]float32, wavetable.Block), make([]float32, wavetable.Block)
	s.Process(1.0, w, x, y, r)
	for i := range r {
		if math.IsNaN(float64(r[i])) {
			t.Fatalf("NaN reverb-send sample at %d after SetSize", i)
		}
	}
}
