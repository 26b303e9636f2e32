// Package pipe implements the per-note oscillator state machine that walks
// a wavetable.Table through attack, loop, and release playback.
package pipe

import (
	"math/rand"

	"github.com/nightjar-organ/virga/wavetable"
)

// Pipe is one sounding (or potentially sounding) note of a rank. Pipes form
// an intrusive singly-linked active list inside their owning rank via Next,
// so no allocation is needed on note-on.
type Pipe struct {
	Table *wavetable.Table
	Out   []float32 // destination slice within the division's mix buffer

	playPos    int  // index into Table.Samples, -1 when idle
	relPos     int  // index into Table.Samples, -1 when not releasing
	yPlay      float32
	yRel       float32
	zPlay      float32 // instability accumulator
	gRel       float32
	iRel       int
	sdel       uint32 // delayed-start/stop shift register, low bit = desired on/off
	sbit       uint32 // this pipe's rank-assigned activation bit
	rng        *rand.Rand
	Next       *Pipe
}

// New returns an idle pipe bound to table, rendering into out, using rng
// for its instability jitter (the caller should give every pipe in a rank
// its own *rand.Rand, or share one guarded by the audio thread's single
// render goroutine).
func New(table *wavetable.Table, out []float32, rng *rand.Rand) *Pipe {
	return &Pipe{Table: table, Out: out, playPos: -1, relPos: -1, rng: rng}
}

// Active reports whether the pipe belongs in its rank's active list:
// either its delay/stop register is non-zero, or it is currently playing
// or releasing.
func (p *Pipe) Active() bool {
	return p.sdel != 0 || p.playPos >= 0 || p.relPos >= 0
}

// NoteOn requests the pipe start sounding (after its rank's configured
// startup delay has elapsed in block units). A pipe that is already
// active (still sounding or releasing from a previous note-on) does not
// re-arm its delay register immediately; it only starts again once the
// pending release/shift has cleared it, matching the reference
// implementation's delayed re-trigger.
func (p *Pipe) NoteOn(sbit uint32) {
	wasActive := p.Active()
	p.sbit = sbit
	if !wasActive {
		p.sdel |= sbit
	}
}

// NoteOff requests the pipe stop sounding. Any startup still pending is
// aborted; a currently sounding pipe begins releasing on its next render.
func (p *Pipe) NoteOff() {
	p.sdel >>= 4
	p.sbit = 0
}

// AllOff immediately clears the pipe's activation bit, causing it to
// release on the next render without waiting for NoteOff's shift.
func (p *Pipe) AllOff() {
	p.sbit = 0
	p.sdel &^= 1
}

// Render advances the pipe by one block, accumulating into Out, and shifts
// its delay register by one bit if shift is true (once per audio block).
func (p *Pipe) Render(shift bool) {
	t := p.Table
	block := len(p.Out)

	if p.sdel&1 != 0 {
		if p.playPos < 0 {
			p.playPos = t.P0()
			p.yPlay = 0
			p.zPlay = 0
		}
	} else if p.relPos < 0 && p.playPos >= 0 {
		p.relPos = p.playPos
		p.playPos = -1
		p.gRel = 1
		p.yRel = p.yPlay
		p.iRel = t.Kr
	}

	if p.relPos >= 0 {
		p.renderRelease(block)
	}
	if p.playPos >= 0 {
		p.renderPlay(block)
	}

	if shift {
		p.sdel = (p.sdel >> 1) | p.sbit
	}
}

func (p *Pipe) renderRelease(block int) {
	t := p.Table
	samples := t.Samples
	r := p.relPos
	g := p.gRel
	i := p.iRel - 1
	dg := g / float32(block)
	if i > 0 {
		dg *= t.Mr
	}

	if r < t.P1() {
		for k := 0; k < block; k++ {
			p.Out[k] += g * samples[r]
			r++
			g -= dg
		}
	} else {
		y := p.yRel
		dy := t.Dr
		for k := 0; k < block; k++ {
			y += dy
			if y > 1.0 {
				y -= 1.0
				r++
			} else if y < 0.0 {
				y += 1.0
				r--
			}
			p.Out[k] += g * (samples[r] + y*(samples[r+1]-samples[r]))
			g -= dg
			r += t.Ks
			if r >= t.P2() {
				r -= t.L1
			}
		}
		p.yRel = y
	}

	if i > 0 {
		p.gRel = g
		p.iRel = i
		p.relPos = r
	} else {
		p.relPos = -1
	}
}

func (p *Pipe) renderPlay(block int) {
	t := p.Table
	samples := t.Samples
	pp := p.playPos

	if pp < t.P1() {
		for k := 0; k < block; k++ {
			p.Out[k] += samples[pp]
			pp++
		}
	} else {
		y := p.yPlay
		p.zPlay += t.Dp * 0.0005 * (0.05*t.Dp*(p.rng.Float32()-0.5) - p.zPlay)
		dy := p.zPlay * float32(t.Ks)
		for k := 0; k < block; k++ {
			y += dy
			if y > 1.0 {
				y -= 1.0
				pp++
			} else if y < 0.0 {
				y += 1.0
				pp--
			}
			p.Out[k] += samples[pp] + y*(samples[pp+1]-samples[pp])
			pp += t.Ks
			if pp >= t.P2() {
				pp -= t.L1
			}
		}
		p.yPlay = y
	}
	p.playPos = pp
}
