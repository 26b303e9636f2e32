// Package division aggregates a set of ranks behind one keyboard-facing
// mix buffer, applying tremulant modulation and swell gain before handing
// off to an audio section.
package division

import (
	"math"

	"github.com/nightjar-organ/virga/harmonic"
	"github.com/nightjar-organ/virga/rank"
	"github.com/nightjar-organ/virga/wavetable"
)

// NChan is the number of channels in a division's interleaved mix buffer.
const NChan = 4

// MaxRanks bounds how many ranks a single division may hold.
const MaxRanks = 32

// Sink is where a division writes its rendered block: an audio section's
// rolling write pointer, one slice per channel.
type Sink interface {
	WritePtr() [NChan][]float32
}

// Division mixes a set of ranks, applies tremulant and swell, and feeds an
// audio section.
type Division struct {
	Ranks [MaxRanks]*rank.Rank
	nrank int
	Dmask byte

	buf [NChan * wavetable.Block]float32

	trem int // 0 off, 1 on, 2 releasing
	fsam float32
	w    float32 // tremulant angular increment
	c, s float32 // tremulant phasor
	m    float32 // tremulant depth

	swell      float32
	gain       float32
	paramGain  float32

	sect Sink
}

// New creates a division rendering into the given audio section at sample
// rate fsam.
func New(sect Sink, fsam float32) *Division {
	return &Division{
		fsam:      fsam,
		swell:     1.0,
		gain:      0.1,
		paramGain: 1.0,
		c:         1.0,
		sect:      sect,
	}
}

// Mix returns the division's interleaved 4-channel mix buffer, one block
// of samples per channel, for use by rank.SetParam.
func (d *Division) Mix() []float32 { return d.buf[:] }

// SetRank installs rank w at slot ind, handing the previous occupant's
// current mask forward as w's new-mask so a hot-swapped rank preserves
// which keyboards should keep sounding it. A rank installed into an empty
// slot follows the division: its Nmask is FollowDivision plus the
// division's current default mask. delMs is the rank's configured
// startup delay in milliseconds, converted here to block units (clamped to
// the 5-bit shift register's range). Returns the previous occupant of the
// slot, if any, so the caller can hand it off for disposal.
func (d *Division) SetRank(ind int, w *rank.Rank, pan harmonic.Pan, delMs int) *rank.Rank {
	old := d.Ranks[ind]
	if old != nil {
		w.Nmask = old.Cmask
	} else {
		w.Nmask = rank.FollowDivision | d.Dmask
	}
	w.Cmask = 0
	d.Ranks[ind] = w
	del := int(1e-3 * float32(delMs) * d.fsam / float32(wavetable.Block))
	if del > 31 {
		del = 31
	}
	w.SetParam(d.buf[:], del, pan)
	d.bumpNRank(ind)
	return old
}

// Process clears the mix buffer, renders every rank into it, applies
// tremulant and swell, and accumulates the result into the audio section's
// current write slot.
func (d *Division) Process() {
	for i := range d.buf {
		d.buf[i] = 0
	}
	for i := 0; i < d.nrank; i++ {
		d.Ranks[i].Play(true)
	}

	g := d.swell
	if d.trem != 0 {
		d.s += d.w * d.c
		d.c -= d.w * d.s
		t := float32(math.Sqrt(float64(d.c*d.c + d.s*d.s)))
		d.c /= t
		d.s /= t
		if d.trem == 2 && float32(math.Abs(float64(d.s))) < 0.05 {
			d.trem = 0
			d.c, d.s = 1, 0
		}
		g *= 1.0 + d.m*d.s
	}

	if hi := 1.05 * d.gain; g > hi {
		g = hi
	}
	if lo := 0.95 * d.gain; g < lo {
		g = lo
	}

	block := wavetable.Block
	delta := (g - d.gain) / float32(block)
	g = d.gain
	wptr := d.sect.WritePtr()
	for i := 0; i < block; i++ {
		g += delta
		for ch := 0; ch < NChan; ch++ {
			wptr[ch][i] += d.buf[ch*block+i] * g * d.paramGain
		}
	}
	d.gain = g
}

// SetParamGain sets the division's fixed per-block gain multiplier
// (a UI-facing "division volume" control, independent of swell/tremulant).
func (d *Division) SetParamGain(g float32) {
	if g < 0 {
		g = -g
	}
	d.paramGain = g
}

// ParamGain returns the division's fixed gain multiplier.
func (d *Division) ParamGain() float32 { return d.paramGain }

// NRank returns how many rank slots are in use.
func (d *Division) NRank() int { return d.nrank }

// bumpNRank records that slot ind (0-based) is now occupied.
func (d *Division) bumpNRank(ind int) {
	if d.nrank < ind+1 {
		d.nrank = ind + 1
	}
}

// Update propagates a single note's keymap change (bit 7 of the keymap
// byte having just flipped) to every rank currently routed to at least one
// keyboard, i.e. every rank whose low 7 Cmask bits are non-zero.
func (d *Division) Update(note int, mask byte) {
	for i := 0; i < d.nrank; i++ {
		r := d.Ranks[i]
		if r.Cmask&0x7F != 0 {
			if mask&r.Cmask != 0 {
				r.NoteOn(note)
			} else {
				r.NoteOff(note)
			}
		}
	}
}

// UpdateKeymap is the coarse pass run once per block: for every rank whose
// Cmask differs from its Nmask in the low 7 bits, re-scan the full keymap
// and bring the rank's sounding notes in line with its new mask, then
// commit Cmask = Nmask.
func (d *Division) UpdateKeymap(keymap []byte, keyBase int) {
	for i := 0; i < d.nrank; i++ {
		r := d.Ranks[i]
		if (r.Cmask^r.Nmask)&0x7F == 0 {
			continue
		}
		m := r.Nmask & 0x7F
		if m != 0 {
			for n := r.N0; n <= r.N1; n++ {
				idx := n - keyBase
				if idx < 0 || idx >= len(keymap) {
					continue
				}
				if keymap[idx]&m != 0 {
					r.NoteOn(n)
				} else {
					r.NoteOff(n)
				}
			}
		} else {
			r.AllOff()
		}
		r.Cmask = r.Nmask
	}
}

// SetDivMask sets bits (masked to 7 bits) in the division's default mask,
// and for every rank currently set to follow the division (Nmask bit 7
// set), ORs those bits into the rank's Nmask too.
func (d *Division) SetDivMask(bits byte) {
	bits &= 0x7F
	d.Dmask |= bits
	for i := 0; i < d.nrank; i++ {
		r := d.Ranks[i]
		if r.Nmask&rank.FollowDivision != 0 {
			r.Nmask |= bits
		}
	}
}

// ClrDivMask clears bits (masked to 7 bits) in the division's default
// mask and in every rank currently following the division.
func (d *Division) ClrDivMask(bits byte) {
	bits &= 0x7F
	d.Dmask &^= bits
	for i := 0; i < d.nrank; i++ {
		r := d.Ranks[i]
		if r.Nmask&rank.FollowDivision != 0 {
			r.Nmask &^= bits
		}
	}
}

// SetRankMask ORs bits into rank ind's Nmask. Bits == FollowDivision also
// pulls in the division's current default mask.
func (d *Division) SetRankMask(ind int, bits byte) {
	r := d.Ranks[ind]
	if bits == rank.FollowDivision {
		bits |= d.Dmask
	}
	r.Nmask |= bits
}

// ClrRankMask clears bits in rank ind's Nmask. Bits == FollowDivision also
// clears the division's current default mask bits.
func (d *Division) ClrRankMask(ind int, bits byte) {
	r := d.Ranks[ind]
	if bits == rank.FollowDivision {
		bits |= d.Dmask
	}
	r.Nmask &^= bits
}

// SetSwell sets the division's swell gain, clamped to [0.2, 1].
func (d *Division) SetSwell(v float32) {
	if v < 0.2 {
		v = 0.2
	}
	if v > 1 {
		v = 1
	}
	d.swell = v
}

// SetTremulant sets the tremulant's angular frequency (Hz) and modulation
// depth.
func (d *Division) SetTremulant(freqHz, depth float32) {
	d.w = 2 * math.Pi * freqHz / d.fsam * float32(wavetable.Block)
	d.m = depth
}

// TremulantOn starts the tremulant (or cancels a pending release).
func (d *Division) TremulantOn() { d.trem = 1 }

// TremulantOff begins releasing the tremulant: it keeps modulating until
// its phasor returns near zero crossing, then stops cleanly.
func (d *Division) TremulantOff() {
	if d.trem == 1 {
		d.trem = 2
	}
}
