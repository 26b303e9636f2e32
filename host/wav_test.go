package host_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/nightjar-organ/virga/division"
	"github.com/nightjar-organ/virga/engine"
	"github.com/nightjar-organ/virga/harmonic"
	"github.com/nightjar-organ/virga/host"
	"github.com/nightjar-organ/virga/rank"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng := engine.New(host.SampleRate, 2, 1)

	var d harmonic.Addsynth
	d.Reset()
	d.N0, d.N1 = engine.NoteMin, engine.NoteMin+4
	d.HLev.SetV(0, 5, 1.0)

	r := rank.New(d.N0, d.N1)
	r.Addsynth = &d
	rng := rand.New(rand.NewSource(1))
	scale := [12]float32{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}
	if err := r.GenWaves(host.SampleRate, 440, scale, rng, nil); err != nil {
		t.Fatalf("GenWaves: %v", err)
	}

	div := division.New(eng.Section(0), host.SampleRate)
	div.SetDivMask(0x01)
	eng.AddDivision(div)
	div.SetRank(0, r, harmonic.PanWide, 0)
	div.SetRankMask(0, rank.FollowDivision)

	return eng
}

func TestRenderToBufferIsSilentWithoutAKeyOn(t *testing.T) {
	eng := newTestEngine(t)
	buf := host.RenderToBuffer(eng, 256)
	if len(buf) != 512 {
		t.Fatalf("len(buf) = %d, want 512 (256 stereo frames)", len(buf))
	}
	// The reverb's 1e-10 anti-denormal offset leaves a residue far below 1e-6.
	for i, v := range buf {
		if !(math.Abs(float64(v)) < 1e-6) {
			t.Fatalf("buf[%d] = %v, want silence (|v| < 1e-6) with no key held on", i, v)
		}
	}
}

func TestRenderToBufferProducesSoundAfterKeyOn(t *testing.T) {
	eng := newTestEngine(t)
	eng.KeyOn(0, 0x01)
	buf := host.RenderToBuffer(eng, 512)
	nonzero := false
	for _, v := range buf {
		if v != 0 {
			nonzero = true
			break
		}
	}
	if !nonzero {
		t.Fatal("expected non-silent output after KeyOn")
	}
}

func TestWavHeaderMatchesFormatAndLength(t *testing.T) {
	buf := []float32{0.1, -0.2, 0.3, -0.4}

	pcm, err := host.Wav(buf, true)
	if err != nil {
		t.Fatalf("Wav(pcm16): %v", err)
	}
	if string(pcm[0:4]) != "RIFF" || string(pcm[8:12]) != "WAVE" {
		t.Fatalf("missing RIFF/WAVE markers in pcm16 header")
	}
	wantPCMLen := 44 + len(buf)*2 // canonical 44-byte header + int16 samples
	if len(pcm) != wantPCMLen {
		t.Fatalf("len(pcm16 wav) = %d, want %d", len(pcm), wantPCMLen)
	}

	flt, err := host.Wav(buf, false)
	if err != nil {
		t.Fatalf("Wav(float32): %v", err)
	}
	if string(flt[0:4]) != "RIFF" || string(flt[8:12]) != "WAVE" {
		t.Fatalf("missing RIFF/WAVE markers in float32 header")
	}
	wantFloatLen := 58 + len(buf)*4 // extended fmt chunk + fact chunk + float32 samples
	if len(flt) != wantFloatLen {
		t.Fatalf("len(float32 wav) = %d, want %d", len(flt), wantFloatLen)
	}
}

func TestRawOmitsHeader(t *testing.T) {
	buf := []float32{1, -1, 0.5, -0.5}
	raw, err := host.Raw(buf, true)
	if err != nil {
		t.Fatalf("Raw: %v", err)
	}
	if len(raw) != len(buf)*2 {
		t.Fatalf("len(raw) = %d, want %d", len(raw), len(buf)*2)
	}
}
