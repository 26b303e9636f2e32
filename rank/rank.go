// Package rank groups the pipes spanning one rank's note range and owns the
// routing masks that decide which of a division's keyboards feed it.
package rank

import (
	"math"
	"math/rand"

	"github.com/nightjar-organ/virga/harmonic"
	"github.com/nightjar-organ/virga/pipe"
	"github.com/nightjar-organ/virga/wavetable"
)

// FollowDivision is the sentinel high bit of Nmask/Cmask: when set, the
// division's SetDivMask/ClrDivMask also set and clear the rank's low 7
// routing bits, so the rank follows its division's default mask.
const FollowDivision = 0x80

// Rank is one voiced rank: a contiguous array of pipes for notes
// [N0, N1], an active-pipe list, and the two routing masks that gate which
// keyboard(s) currently sound it.
type Rank struct {
	Addsynth *harmonic.Addsynth
	N0, N1   int

	Pipes []pipe.Pipe
	list  *pipe.Pipe

	Sbit  uint32 // rank's startup-delay activation bit, 1<<del
	Cmask byte   // routing currently applied
	Nmask byte   // routing about to take effect

	modified bool
}

// New allocates an empty rank for the given note range. Wavetables are
// filled in later by GenWaves.
func New(n0, n1 int) *Rank {
	return &Rank{
		N0:    n0,
		N1:    n1,
		Pipes: make([]pipe.Pipe, n1-n0+1),
	}
}

// SetParam assigns every pipe's rank-wide activation bit, startup delay
// (in block units, 0..31), and output channel placement within a
// division's 4*Block mix buffer. pan selects which channel group the rank
// writes to; within that group, adjacent notes are staggered across
// channels to diffuse beating between close unisons.
func (r *Rank) SetParam(mix []float32, del int, pan harmonic.Pan) {
	r.Sbit = 1 << uint(del)
	var a, b int
	switch pan {
	case harmonic.PanLeft:
		a, b = 2, 0
	case harmonic.PanCenter:
		a, b = 2, 1
	case harmonic.PanRight:
		a, b = 2, 2
	default:
		a, b = 4, 0
	}
	block := wavetable.Block
	for i, n := 0, r.N0; n <= r.N1; n, i = n+1, i+1 {
		start := ((n % a) + b) * block
		r.Pipes[i].Out = mix[start : start+block]
	}
}

// GenWaves builds every pipe's wavetable from the rank's Addsynth
// description. fbase is the instrument's base tuning frequency (Hz) for
// the scale's reference note, and scale holds 12 per-semitone frequency
// ratios (a temperament). Repetition points embedded in the rank's
// Comments field (see ParseRepetitions) reset the pitch multiplier at the
// notes they name, giving a rank that "breaks back" an octave or a fifth
// partway up the keyboard. sc supplies Build's working buffers, reused
// across every pipe in the rank; pass nil for a one-off build.
func (r *Rank) GenWaves(fsamp, fbase float32, scale [12]float32, rng *rand.Rand, sc *wavetable.Scratch) error {
	d := r.Addsynth
	points, err := ParseRepetitions(d.Comments)
	if err != nil {
		return err
	}
	fn, fd := d.Fn, d.Fd
	fbaseAdj := fbase * float32(fn) / (float32(fd) * scale[9])
	pi := 0
	for i, n := 0, r.N0; n <= r.N1; n, i = n+1, i+1 {
		if pi < len(points) && n == points[pi].Note {
			fbaseAdj = 0
			fn = points[pi].Den * 8
			fd = points[pi].Num
			if fn > 0 && fd > 0 {
				fbaseAdj = fbase * float32(fn) / (float32(fd) * scale[9])
			}
			pi++
		}
		if fbaseAdj <= 0 {
			continue
		}
		freq := fbaseAdj * scale[n%12] * pow2(n/12-5)
		table := wavetable.Build(d, i, fsamp, freq, rng, sc)
		out := r.Pipes[i].Out
		r.Pipes[i] = *pipe.New(table, out, rng)
	}
	r.modified = true
	return nil
}

// pow2 computes 2^e for small integer e, matching the reference
// implementation's ldexp-based scaling of a rank's per-octave frequencies.
func pow2(e int) float32 {
	return float32(math.Ldexp(1, e))
}

// Play advances every active pipe by one block. If shift is true (once per
// audio block), each pipe's startup/stop delay register advances. Pipes
// that become fully idle are unlinked from the active list.
func (r *Rank) Play(shift bool) {
	var prev *pipe.Pipe
	p := r.list
	for p != nil {
		next := p.Next
		p.Render(shift)
		if p.Active() {
			prev = p
		} else if prev != nil {
			prev.Next = next
		} else {
			r.list = next
		}
		p = next
	}
}

// NoteOn activates the pipe for MIDI note n (absolute), pushing it onto
// the active list if it was previously idle.
func (r *Rank) NoteOn(n int) {
	i := n - r.N0
	if i < 0 || i >= len(r.Pipes) {
		return
	}
	p := &r.Pipes[i]
	wasActive := p.Active()
	p.NoteOn(r.Sbit)
	if !wasActive {
		p.Next = r.list
		r.list = p
	}
}

// NoteOff deactivates the pipe for MIDI note n.
func (r *Rank) NoteOff(n int) {
	i := n - r.N0
	if i < 0 || i >= len(r.Pipes) {
		return
	}
	r.Pipes[i].NoteOff()
}

// AllOff immediately silences every pipe in the rank (used when a rank's
// mask is cleared entirely, rather than toggled note by note).
func (r *Rank) AllOff() {
	for i := range r.Pipes {
		if r.Pipes[i].Active() {
			r.Pipes[i].AllOff()
		}
	}
}

// Modified reports whether GenWaves has run since the rank was last saved.
func (r *Rank) Modified() bool { return r.modified }

// ClearModified marks the rank as saved.
func (r *Rank) ClearModified() { r.modified = false }
