// Package asection spatializes one division's output into an
// ambisonic-like B-format contribution (omni, front-back, left-right) plus
// a diffused send to the global reverb.
package asection

import "github.com/nightjar-organ/virga/wavetable"

// MixLen is the depth, in blocks, of the section's rolling write buffer.
const MixLen = 64

// NChan is the number of channels in the rolling write buffer (matches
// division.NChan).
const NChan = 4

// Param indexes a section's five positional controls.
type Param int

const (
	Azimuth Param = iota
	StWidth
	Direct
	Reflect
	Revb
	nParam
)

// Fparm is one bounded positional parameter: a current value with min/max
// limits, mirroring the reference implementation's Fparm.
type Fparm struct {
	Value, Min, Max float32
}

// reflTable gives the four diffusers' nominal buffer lengths in samples at
// a 1-second "size"; short, mutually prime so their combined impulse
// response has no audible periodicity.
var reflTable = [4]int{773, 557, 401, 251}

type diffuser struct {
	data []float32
	i    int
	c    float32
}

func (d *diffuser) init(size int, c float32) {
	d.data = make([]float32, size)
	d.i = 0
	d.c = c
}

func (d *diffuser) process(x float32) float32 {
	w := x - d.c*d.data[d.i]
	y := d.data[d.i] + d.c*w
	d.data[d.i] = w
	d.i++
	if d.i == len(d.data) {
		d.i = 0
	}
	return y
}

// Asection spatializes one division's rendered block.
type Asection struct {
	fsam float32
	base [NChan * MixLen * wavetable.Block]float32
	offs int // rolling write offset, in samples, within base

	sw, sx, sy float32 // smoothed omni / front-back / left-right

	diff [4]diffuser
	apar [nParam]Fparm
}

// New creates a section at sample rate fsam with default diffuser sizing
// and mid-range positional parameters.
func New(fsam float32) *Asection {
	s := &Asection{fsam: fsam}
	s.apar[Azimuth] = Fparm{0, -1, 1}
	s.apar[StWidth] = Fparm{1, 0, 1}
	s.apar[Direct] = Fparm{1, 0, 1}
	s.apar[Reflect] = Fparm{0.2, 0, 1}
	s.apar[Revb] = Fparm{0.2, 0, 1}
	s.SetSize(1.0)
	return s
}

// Param returns a pointer to positional parameter p for in-place
// adjustment (e.g. from a model-thread command).
func (s *Asection) Param(p Param) *Fparm { return &s.apar[p] }

// SetSize reinitializes the four diffusers with buffer lengths drawn from
// reflTable scaled by size (seconds).
func (s *Asection) SetSize(size float32) {
	for i := range s.diff {
		n := int(float32(reflTable[i]) * size)
		if n < 1 {
			n = 1
		}
		c := float32(0.5)
		if i%2 == 1 {
			c = -0.5
		}
		s.diff[i].init(n, c)
	}
}

// WritePtr returns the four channel slices of this block's write slot
// within the section's rolling buffer, for a division to accumulate into.
func (s *Asection) WritePtr() [NChan][]float32 {
	block := wavetable.Block
	var out [NChan][]float32
	for ch := 0; ch < NChan; ch++ {
		start := ch*MixLen*block + s.offs
		out[ch] = s.base[start : start+block]
	}
	return out
}

// Process reads the current write slot, downmixes it to omni/front-back/
// left-right, diffuses it for the reverb send, and accumulates scaled
// contributions into W, X, Y, and R. It then advances the rolling offset.
func (s *Asection) Process(vol float32, w, x, y, r []float32) {
	block := wavetable.Block
	azimuth := s.apar[Azimuth].Value
	width := s.apar[StWidth].Value
	direct := s.apar[Direct].Value
	reflect := s.apar[Reflect].Value
	reverb := s.apar[Revb].Value

	for i := 0; i < block; i++ {
		var d float32
		for ch := 0; ch < NChan; ch++ {
			start := ch*MixLen*block + s.offs
			d += s.base[start+i]
		}
		d *= 0.25
		xch := s.base[0*MixLen*block+s.offs+i] - s.base[2*MixLen*block+s.offs+i]
		ych := s.base[1*MixLen*block+s.offs+i] - s.base[3*MixLen*block+s.offs+i]

		s.sw += 0.05 * (d - s.sw)
		s.sx += 0.05 * (xch*width - s.sx)
		s.sy += 0.05 * (ych*width - s.sy)

		rr := s.diff[0].process(s.sw)
		rr = s.diff[1].process(rr)
		rr = s.diff[2].process(rr)
		rr = s.diff[3].process(rr)

		w[i] += vol * direct * s.sw
		x[i] += vol * direct * s.sx * (1 + azimuth)
		y[i] += vol * direct * s.sy
		r[i] += vol * (reflect + reverb) * rr
	}

	s.offs += block
	if s.offs >= MixLen*block {
		s.offs -= MixLen * block
	}
}
