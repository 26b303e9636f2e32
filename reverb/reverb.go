// Package reverb implements an eight-lane FDN-style reverberator with
// Walsh-Hadamard lane mixing and per-lane low/high shelving so T60 can
// differ by frequency band.
package reverb

import "math"

// sizes gives the 16 delay-element lengths (paired comb+allpass per lane)
// in samples at a nominal rate; doubled at sample rates >= 64kHz.
var sizes = [16]int{
	839, 6732 - 839,
	1181, 7339 - 1181,
	1229, 8009 - 1229,
	2477, 8731 - 2477,
	2731, 9521 - 2731,
	1361, 10381 - 1361,
	3203, 11321 - 3203,
	1949, 12347 - 1949,
}

// feedb gives the matching 16 feedback coefficients.
var feedb = [16]float32{
	-0.6, 0.1,
	0.6, 0.1,
	0.6, 0.1,
	-0.6, 0.1,
	0.6, 0.1,
	-0.6, 0.1,
	-0.6, 0.1,
	0.6, 0.1,
}

// delelm is one frequency-shelved delay line.
type delelm struct {
	line     []float32
	i        int
	fb       float32
	gmf      float32
	glo, wlo float32
	whi      float32
	slo, shi float32
}

func (d *delelm) init(size int, fb float32) {
	d.line = make([]float32, size)
	d.fb = fb
}

func (d *delelm) setT60mf(tmf float32) {
	d.gmf = float32(math.Pow(0.001, float64(len(d.line))/float64(tmf)))
}

func (d *delelm) setT60lo(tlo, wlo float32) {
	d.glo = float32(math.Pow(0.001, float64(len(d.line))/float64(tlo)))/d.gmf - 1.0
	d.wlo = wlo
}

func (d *delelm) setT60hi(thi, chi float32) {
	g := float32(math.Pow(0.001, float64(len(d.line))/float64(thi))) / d.gmf
	t := (1 - g*g) / (2 * g * g * chi)
	d.whi = (float32(math.Sqrt(float64(1+4*t))) - 1) / (2 * t)
}

func (d *delelm) process(x float32) float32 {
	t := d.line[d.i] * d.gmf
	d.slo += d.wlo * (t - d.slo)
	t += d.glo * d.slo
	d.shi += d.whi * (t - d.shi)
	t = x - d.fb*d.shi + 1e-10
	d.line[d.i] = t
	d.i++
	if d.i == len(d.line) {
		d.i = 0
	}
	return d.shi + d.fb*t
}

// Reverb is the global reverberator: a pre-delay line feeding eight lanes
// of paired delay elements mixed with an 8-point Walsh-Hadamard transform.
type Reverb struct {
	rate float32
	line []float32
	i    int
	idel int

	delm [16]delelm

	x0, x1, x2, x3, x4, x5, x6, x7, z float32

	tmf, tlo, flo, thi, fhi float32
	gain                    float32
}

// New creates a reverb at sample rate fsamp with the reference
// implementation's default settings: 50ms pre-delay, 4s mid-band T60 with
// a longer low shelf below 250Hz and a shorter high shelf above 4kHz.
func New(fsamp float32) *Reverb {
	r := &Reverb{rate: fsamp}
	r.line = make([]float32, int(0.15*fsamp))
	m := 1
	if fsamp >= 64e3 {
		m = 2
	}
	for i := range r.delm {
		r.delm[i].init(m*sizes[i], feedb[i])
	}
	r.SetDelay(0.05)
	r.SetT60Mid(4.0)
	r.SetT60Lo(5.0, 250.0)
	r.SetT60Hi(2.0, 4e3)
	return r
}

// SetDelay sets the pre-delay, in seconds, clamped to [0.01s, buffer size].
func (r *Reverb) SetDelay(del float32) {
	if del < 0.01 {
		del = 0.01
	}
	r.idel = int(r.rate * del)
	if r.idel > len(r.line) {
		r.idel = len(r.line)
	}
}

// SetT60Mid sets the reverb's mid-band decay time, in seconds.
func (r *Reverb) SetT60Mid(tmf float32) {
	r.tmf = tmf
	t := tmf * r.rate
	for i := range r.delm {
		r.delm[i].setT60mf(t)
	}
	r.gain = 1.0 / float32(math.Sqrt(float64(tmf)))
}

// SetT60Lo sets the low-shelf decay time (seconds) and corner frequency
// (Hz).
func (r *Reverb) SetT60Lo(tlo, flo float32) {
	r.tlo, r.flo = tlo, flo
	t := tlo * r.rate
	w := 2 * math.Pi * flo / r.rate
	for i := range r.delm {
		r.delm[i].setT60lo(t, w)
	}
}

// SetT60Hi sets the high-shelf decay time (seconds) and corner frequency
// (Hz).
func (r *Reverb) SetT60Hi(thi, fhi float32) {
	r.thi, r.fhi = thi, fhi
	t := thi * r.rate
	c := float32(1 - math.Cos(2*math.Pi*float64(fhi)/float64(r.rate)))
	for i := range r.delm {
		r.delm[i].setT60hi(t, c)
	}
}

// Process reverberates n samples of R (the summed reflect+reverb send from
// every audio section), scaled by gain, accumulating the result into the
// W/X/Y/Z B-format buses.
func (r *Reverb) Process(n int, gain float32, in, w, x, y, z []float32) {
	g := float32(math.Sqrt(0.125))
	gain *= r.gain
	i := r.i
	for k := 0; k < n; k++ {
		j := i - r.idel
		if j < 0 {
			j += len(r.line)
		}
		xv := r.line[j]

		r.z += 0.6*(in[k]-r.z) + 1e-10
		r.line[i] = r.z
		i++
		if i == len(r.line) {
			i = 0
		}

		r.x0 = r.delm[0].process(g*r.x0 + xv)
		r.x1 = r.delm[2].process(g*r.x1 + xv)
		r.x2 = r.delm[4].process(g*r.x2 + xv)
		r.x3 = r.delm[6].process(g*r.x3 + xv)
		r.x4 = r.delm[8].process(g*r.x4 + xv)
		r.x5 = r.delm[10].process(g*r.x5 + xv)
		r.x6 = r.delm[12].process(g*r.x6 + xv)
		r.x7 = r.delm[14].process(g*r.x7 + xv)

		t := r.x0 - r.x1
		r.x0 += r.x1
		r.x1 = t
		t = r.x2 - r.x3
		r.x2 += r.x3
		r.x3 = t
		t = r.x4 - r.x5
		r.x4 += r.x5
		r.x5 = t
		t = r.x6 - r.x7
		r.x6 += r.x7
		r.x7 = t

		t = r.x0 - r.x2
		r.x0 += r.x2
		r.x2 = t
		t = r.x1 - r.x3
		r.x1 += r.x3
		r.x3 = t
		t = r.x4 - r.x6
		r.x4 += r.x6
		r.x6 = t
		t = r.x5 - r.x7
		r.x5 += r.x7
		r.x7 = t

		t = r.x0 - r.x4
		r.x0 += r.x4
		r.x4 = t
		t = r.x1 - r.x5
		r.x1 += r.x5
		r.x5 = t
		t = r.x2 - r.x6
		r.x2 += r.x6
		r.x6 = t
		t = r.x3 - r.x7
		r.x3 += r.x7
		r.x7 = t

		w[k] += 1.25 * gain * r.x0
		x[k] += gain * (r.x1 - 0.05*r.x2)
		y[k] += gain * r.x2
		z[k] += gain * r.x4

		r.x0 = r.delm[1].process(r.x0)
		r.x1 = r.delm[3].process(r.x1)
		r.x2 = r.delm[5].process(r.x2)
		r.x3 = r.delm[7].process(r.x3)
		r.x4 = r.delm[9].process(r.x4)
		r.x5 = r.delm[11].process(r.x5)
		r.x6 = r.delm[13].process(r.x6)
		r.x7 = r.delm[15].process(r.x7)
	}
	r.i = i
}
