// Package wavetable builds the per-pipe attack/loop wavetables consumed by
// package pipe from a harmonic.Addsynth voicing description.
package wavetable

import (
	"math"
	"math/rand"

	"github.com/viterin/vek/vek32"

	"github.com/nightjar-organ/virga/harmonic"
)

// Block is the audio engine's fixed render block size, in frames.
const Block = 64

// Table is a built pipe wavetable: a single contiguous buffer split into
// an attack region [0, L0), a loop region [L0, L0+L1), and a guard region
// of duplicated loop-head samples used so interpolation at the loop seam
// never needs a branch.
type Table struct {
	Samples []float32
	L0, L1  int // attack length, loop length, in samples
	Ks      int // loop sample stride (oversampling factor, 1..3)
	Kr      int // release duration, in Blocks
	Mr      float32
	Dr      float32 // release detune, scaled by Ks
	Dp      float32 // instability, in cents
}

// P0 is the start of the attack region.
func (t *Table) P0() int { return 0 }

// P1 is the start of the loop region.
func (t *Table) P1() int { return t.L0 }

// P2 is the end of the loop region (start of the guard region).
func (t *Table) P2() int { return t.L0 + t.L1 }

// Scratch holds the three working buffers Build needs while generating one
// pipe's wavetable: the phase accumulator, the attack envelope, and the
// per-harmonic partial buffer. A rank build calls Build once per pipe;
// reusing one Scratch across all of them (and, via a pool, across rank
// builds) avoids three allocations per pipe on the worker's hot path.
type Scratch struct {
	arg, att, harmBuf []float32
}

// NewScratch returns an empty Scratch ready for Build to grow on demand.
func NewScratch() *Scratch { return &Scratch{} }

func grow(buf []float32, n int) []float32 {
	if cap(buf) < n {
		return make([]float32, n)
	}
	return buf[:n]
}

// Build computes the wavetable for one pipe at keyboard offset n (0-based
// from the rank's lowest note) and target frequency fpipe (Hz), following
// the reference additive-synthesis algorithm: an attack segment generated
// by sweeping from a detuned onset frequency to the true pitch, followed by
// a loop segment whose length is chosen so it contains an integer number of
// cycles while tracking fpipe as closely as an integer loop length allows.
// sc supplies the working buffers; pass nil to have Build allocate its own
// (fine for a one-off build, wasteful for a rank's worth of pipes).
func Build(d *harmonic.Addsynth, n int, fsamp, fpipe float32, rng *rand.Rand, sc *Scratch) *Table {
	if sc == nil {
		sc = &Scratch{}
	}
	t := &Table{}

	m := d.NAtt.Vi(n)
	for h := 0; h < harmonic.NHarm; h++ {
		if a := d.HAtt.Vi(h, n); a > m {
			m = a
		}
	}
	l0 := int(fsamp*m + 0.5)
	l0 = (l0 + Block - 1) &^ (Block - 1)
	t.L0 = l0

	f1 := (fpipe + d.NOff.Vi(n) + d.NRan.Vi(n)*(2*rng.Float32()-1)) / fsamp
	f0 := f1 * exp2ap(d.NAtd.Vi(n)/1200.0)

	h := harmonic.NHarm - 1
	var f float32
	for ; h >= 0; h-- {
		f = float32(h+1) * f1
		if f < 0.45 && d.HLev.Vi(h, n) >= -40.0 {
			break
		}
	}
	switch {
	case f > 0.250:
		t.Ks = 3
	case f > 0.125:
		t.Ks = 2
	default:
		t.Ks = 1
	}

	l1, nc := LoopLen(f1*fsamp, float32(t.Ks)*fsamp, int(fsamp/6.0))
	if l1 < t.Ks*Block {
		k := (t.Ks*Block-1)/l1 + 1
		l1 *= k
		nc *= k
	}
	t.L1 = l1

	total := l0 + l1 + t.Ks*(Block+4)
	t.Samples = make([]float32, total)

	t.Kr = int(math.Ceil(float64(d.NDct.Vi(n)*fsamp/Block))) + 1
	t.Mr = 1.0 - float32(math.Pow(0.1, 1.0/float64(t.Kr)))
	t.Dr = float32(t.Ks) * (exp2ap(d.NDcd.Vi(n)/1200.0) - 1.0)
	t.Dp = d.NIns.Vi(n)

	sc.arg = grow(sc.arg, l0+l1+1)
	arg := sc.arg
	var tt float32
	k := int(fsamp*d.NAtt.Vi(n) + 0.5)
	for i := 0; i <= l0; i++ {
		arg[i] = tt - floorHalf(tt)
		if i < k && k > 0 {
			tt += (float32(k-i)*f0 + float32(i)*f1) / float32(k)
		} else {
			tt += f1
		}
	}
	for i := 1; i < l1; i++ {
		tc := arg[l0] + float32(i)*float32(nc)/float32(l1)
		arg[i+l0] = tc - floorHalf(tc)
	}

	v0 := exp2ap(0.1661 * d.NVol.Vi(n))
	sc.att = grow(sc.att, int(0.5*fsamp)+1)
	att := sc.att
	sc.harmBuf = grow(sc.harmBuf, l0+l1)
	harmBuf := sc.harmBuf
	for h := 0; h < harmonic.NHarm; h++ {
		if float32(h+1)*f1 > 0.45 {
			break
		}
		lv := d.HLev.Vi(h, n)
		if lv < -80.0 {
			continue
		}
		v := v0 * exp2ap(0.1661*(lv+d.HRan.Vi(h, n)*(2*rng.Float32()-1)))
		ak := int(fsamp*d.HAtt.Vi(h, n) + 0.5)
		AttGain(att, ak, d.HAtp.Vi(h, n))

		hf := float32(h + 1)
		for i := range harmBuf {
			tc := arg[i] * hf
			tc -= float32(math.Floor(float64(tc)))
			harmBuf[i] = v * float32(math.Sin(2*math.Pi*float64(tc)))
		}
		for i := 0; i < ak && i < len(harmBuf); i++ {
			harmBuf[i] *= att[i]
		}
		vek32.Add_Inplace(t.Samples[:l0+l1], harmBuf)
	}

	guard := t.Ks * (Block + 4)
	copy(t.Samples[l0+l1:l0+l1+guard], t.Samples[:guard])

	return t
}

func floorHalf(t float32) float32 {
	return float32(math.Floor(float64(t) + 0.5))
}

// exp2ap returns 2^x, computed with math.Exp2; it is named after the
// reference implementation's exp2ap helper, which used a fast polynomial
// approximation instead.
func exp2ap(x float32) float32 {
	return float32(math.Exp2(float64(x)))
}

// Exp2Ap exports exp2ap for callers outside this package that need to
// reproduce the same detune/instability formulas build.go derives from an
// Addsynth (the .ae1 cache loader recomputing release-detune and
// instability, which the cache format itself does not persist).
func Exp2Ap(x float32) float32 { return exp2ap(x) }

// LoopLen picks integers (l1, nc) so that fsamp*nc/l1 approximates the
// target period f (both in the same units, typically samples/sec), subject
// to l1 <= lmax, using continued-fraction convergents of fsamp/f. This is
// the same search the reference pipe-loop generator performs so that a
// looped pipe's pitch, once quantized to an integer sample count, still
// matches its nominal frequency to within 0.1 Hz or 3e-4 of f, whichever
// is looser.
func LoopLen(f, fsamp float32, lmax int) (l1, nc int) {
	g := float64(fsamp) / float64(f)
	var z [8]int
	a, b := 0, 1
	for i := 0; i < 8; i++ {
		av := int(math.Floor(g + 0.5))
		z[i] = av
		g -= float64(av)
		a = av
		bb := 1
		for j := i; j > 0; {
			j--
			t := a
			a = z[j]*a + bb
			bb = t
		}
		b = bb
		if a < 0 {
			a = -a
			b = -b
		}
		if a <= lmax {
			d := float64(fsamp)*float64(b)/float64(a) - float64(f)
			if math.Abs(d) < 0.1 || math.Abs(d) < 3e-4*float64(f) {
				break
			}
			if math.Abs(g) < 1e-6 {
				g = 1e6
			} else {
				g = 1.0 / g
			}
		} else {
			b = int(float64(lmax) * float64(f) / float64(fsamp))
			a = int(float64(b)*float64(fsamp)/float64(f) + 0.5)
			break
		}
	}
	if a <= 0 {
		a = 1
	}
	return a, b
}

// AttGain fills att[:n] with a monotone 0-to-1 attack envelope whose
// overshoot grows with p, computed in 24 piecewise-integrated segments.
func AttGain(att []float32, n int, p float32) {
	if n <= 0 {
		return
	}
	w := float32(0.05)
	y := float32(0.6)
	if p > 0 {
		y += 0.11 * p
	}
	z := float32(0)
	j := 0
	for i := 1; i <= 24; i++ {
		k := n * i / 24
		x := 1.0 - z - 1.5*y
		y += w * x
		denom := k - j
		if denom <= 0 {
			continue
		}
		d := w * y * p / float32(denom)
		for j < k {
			mm := float32(j) / float32(n)
			att[j] = (1.0-mm)*z + mm
			j++
			z += d
		}
	}
}
