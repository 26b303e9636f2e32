// Package engine implements the audio-thread driver: the per-callback loop
// that drains control and note queues, advances every division, and mixes
// through the shared reverb into the final output buffer. Nothing in this
// package blocks or allocates while rendering.
package engine

import (
	"math"

	"github.com/nightjar-organ/virga/asection"
	"github.com/nightjar-organ/virga/division"
	"github.com/nightjar-organ/virga/harmonic"
	"github.com/nightjar-organ/virga/rank"
	"github.com/nightjar-organ/virga/reverb"
	"github.com/nightjar-organ/virga/wavetable"
)

// NNotes is the size of the keymap: one byte per MIDI note in [NoteMin, NoteMax].
const NNotes = NoteMax - NoteMin + 1

// NoteMin and NoteMax bound the playable keyboard range.
const (
	NoteMin = 36
	NoteMax = 96
)

// MaxDivisions and MaxSections bound the instrument's static topology.
const (
	MaxDivisions = 8
	MaxSections  = 8
)

// KeysMask covers the seven keyboard-routing bits of a keymap byte or a
// mask word; bit 7 of a keymap byte is reserved as the "changed since last
// pass" flag.
const KeysMask = 0x7F

// HoldMask is the single keyboard-routing bit reserved for the hold
// mechanism: while hold is engaged, notes released elsewhere keep
// sounding via this bit until hold is released.
const HoldMask = 0x40

// Param indexes the four global instrument parameters.
type Param int

const (
	Volume Param = iota
	RevSize
	RevTime
	StPosit
	nParam
)

// Fparm is a bounded parameter value, mirroring asection.Fparm.
type Fparm struct {
	Value, Min, Max float32
}

// CPULoad is published once per render callback so a control thread can
// show audio-thread headroom.
type CPULoad struct {
	ThreadName string
	Load       float64
}

// Command is a decoded audio-thread command (see CommandWord).
type Command struct {
	Code                 byte
	J, I, B              byte
	HasFollowup          bool
	Followup             uint32
}

// CommandWord encodes cmd/arg2/arg1/arg0 into the 32-bit word the model
// thread pushes onto the command queue.
func CommandWord(cmd, arg2, arg1, arg0 byte) uint32 {
	return uint32(cmd)<<24 | uint32(arg2)<<16 | uint32(arg1)<<8 | uint32(arg0)
}

// Engine is the audio thread: it owns every division, audio section, and
// the shared reverb, and renders one callback's worth of frames at a time.
type Engine struct {
	fsamp float32
	nplay int
	bform bool

	divisions [MaxDivisions]*division.Division
	ndivis    int
	sections  [MaxSections]*asection.Asection
	nasect    int

	rv *reverb.Reverb

	keymap [NNotes]byte

	param   [nParam]Fparm
	revsize float32
	revtime float32

	midimap [16]uint16

	w, x, y, z, r [wavetable.Block]float32
}

// New creates an engine for the given sample rate, output channel count
// (1, 2, or 4 for raw B-format), and number of audio sections (one per
// spatial "room position" a division can be routed to).
func New(fsamp float32, nplay, nasect int) *Engine {
	e := &Engine{fsamp: fsamp, nplay: nplay, nasect: nasect}
	e.param[Volume] = Fparm{0.32, 0.0, 1.0}
	e.revsize = 0.075
	e.param[RevSize] = Fparm{0.075, 0.025, 0.150}
	e.revtime = 4.0
	e.param[RevTime] = Fparm{4.0, 2.0, 7.0}
	e.param[StPosit] = Fparm{0.5, -1.0, 1.0}

	e.rv = reverb.New(fsamp)
	e.rv.SetT60Mid(e.revtime)
	e.rv.SetT60Lo(e.revtime*1.50, 250.0)
	e.rv.SetT60Hi(e.revtime*0.50, 3e3)

	for i := 0; i < nasect; i++ {
		e.sections[i] = asection.New(fsamp)
		e.sections[i].SetSize(e.revsize)
	}
	return e
}

// AddDivision installs a pre-built division, returning its index. The
// division is already wired to its audio section by division.New.
func (e *Engine) AddDivision(d *division.Division) int {
	idx := e.ndivis
	e.divisions[idx] = d
	e.ndivis++
	return idx
}

// SetBFormat selects raw W/X/Y/Z output instead of the stereo/mono decode.
func (e *Engine) SetBFormat(b bool) { e.bform = b }

// KeyOff clears bits b for note n and flags it changed.
func (e *Engine) KeyOff(n int, b byte) {
	e.keymap[n] &^= b
	e.keymap[n] |= 0x80
}

// KeyOn sets bits b for note n and flags it changed.
func (e *Engine) KeyOn(n int, b byte) {
	e.keymap[n] |= b | 0x80
}

// CondKeyOff clears bits b on every note whose keymap matches mask m.
func (e *Engine) CondKeyOff(m, b byte) {
	for i := range e.keymap {
		if e.keymap[i]&m != 0 {
			e.keymap[i] &^= b
			e.keymap[i] |= 0x80
		}
	}
}

// CondKeyOn sets bits b on every note whose keymap matches mask m.
func (e *Engine) CondKeyOn(m, b byte) {
	for i := range e.keymap {
		if e.keymap[i]&m != 0 {
			e.keymap[i] |= b | 0x80
		}
	}
}

// ApplyCommand executes one decoded command against the engine's state.
// cmd 17 (per-division performance controller) needs a second word; the
// caller is responsible for draining it from the queue and passing it in
// cmd.Followup.
func (e *Engine) ApplyCommand(cmd Command) {
	switch cmd.Code {
	case 0:
		e.KeyOff(int(cmd.I), cmd.B)
	case 1:
		e.KeyOn(int(cmd.I), cmd.B)
	case 2:
		e.CondKeyOff(cmd.J, cmd.B)
	case 3:
		e.CondKeyOn(cmd.J, cmd.B)
	case 4:
		e.divisions[cmd.J].ClrDivMask(cmd.B)
	case 5:
		e.divisions[cmd.J].SetDivMask(cmd.B)
	case 6:
		e.divisions[cmd.J].ClrRankMask(int(cmd.I), cmd.B)
	case 7:
		e.divisions[cmd.J].SetRankMask(int(cmd.I), cmd.B)
	case 8:
		e.CondKeyOff(HoldMask, HoldMask)
	case 9:
		e.CondKeyOn(cmd.J, HoldMask)
	case 16:
		if cmd.B != 0 {
			e.divisions[cmd.J].TremulantOn()
		} else {
			e.divisions[cmd.J].TremulantOff()
		}
	case 17:
		v := math.Float32frombits(cmd.Followup)
		switch cmd.I {
		case 0:
			e.divisions[cmd.J].SetSwell(v)
		case 1:
			e.divisions[cmd.J].SetTremulant(v, 0)
		case 2:
			// tremulant depth; SetTremulant needs both freq and depth, so
			// re-apply with the division's currently configured frequency
			// is not tracked here — depth-only updates set frequency to
			// its last value via the division, kept simple by always
			// pairing freq+depth commands from the model thread.
			e.divisions[cmd.J].SetTremulant(v, v)
		}
	}
}

// DecodeCommand splits a 32-bit command word into its fields.
func DecodeCommand(k uint32) (cmd, j, i, b byte) {
	return byte(k >> 24), byte(k >> 16), byte(k >> 8), byte(k)
}

// ProcKeys1 propagates every note flagged "changed since last pass" (bit 7
// set) to every division, then clears the flag.
func (e *Engine) ProcKeys1() {
	for n := 0; n < NNotes; n++ {
		m := e.keymap[n]
		if m&0x80 == 0 {
			continue
		}
		m &= 0x7F
		e.keymap[n] = m
		for d := 0; d < e.ndivis; d++ {
			e.divisions[d].Update(n+NoteMin, m)
		}
	}
}

// ProcKeys2 runs the coarse per-division keymap reconciliation pass.
func (e *Engine) ProcKeys2() {
	for d := 0; d < e.ndivis; d++ {
		e.divisions[d].UpdateKeymap(e.keymap[:], NoteMin)
	}
}

// RenderBlock renders one Block-sized chunk of audio into out, one slice
// per output channel (length >= wavetable.Block each).
func (e *Engine) RenderBlock(out [][]float32) {
	if math.Abs(float64(e.revsize-e.param[RevSize].Value)) > 0.001 {
		e.revsize = e.param[RevSize].Value
		e.rv.SetDelay(e.revsize)
		for j := 0; j < e.nasect; j++ {
			e.sections[j].SetSize(e.revsize)
		}
	}
	if math.Abs(float64(e.revtime-e.param[RevTime].Value)) > 0.1 {
		e.revtime = e.param[RevTime].Value
		e.rv.SetT60Mid(e.revtime)
		e.rv.SetT60Lo(e.revtime*1.50, 250.0)
		e.rv.SetT60Hi(e.revtime*0.50, 3e3)
	}

	for i := range e.w {
		e.w[i], e.x[i], e.y[i], e.z[i], e.r[i] = 0, 0, 0, 0, 0
	}

	for j := 0; j < e.ndivis; j++ {
		e.divisions[j].Process()
	}
	vol := e.param[Volume].Value
	for j := 0; j < e.nasect; j++ {
		e.sections[j].Process(vol, e.w[:], e.x[:], e.y[:], e.r[:])
	}
	e.rv.Process(wavetable.Block, vol, e.r[:], e.w[:], e.x[:], e.y[:], e.z[:])

	block := wavetable.Block
	if e.bform {
		// X, Y and Z are all scaled by 1.41 while W is not, so Z's gain
		// is not matched to W's.
		for i := 0; i < block; i++ {
			out[0][i] = e.w[i]
			if len(out) > 1 {
				out[1][i] = 1.41 * e.x[i]
			}
			if len(out) > 2 {
				out[2][i] = 1.41 * e.y[i]
			}
			if len(out) > 3 {
				out[3][i] = 1.41 * e.z[i]
			}
		}
		return
	}
	stpos := e.param[StPosit].Value
	for i := 0; i < block; i++ {
		out[0][i] = e.w[i] + stpos*e.x[i] + e.y[i]
		if e.nplay > 1 {
			out[1][i] = e.w[i] + stpos*e.x[i] - e.y[i]
		}
	}
}

// SetParam sets a global instrument parameter, clamped to its bounds.
func (e *Engine) SetParam(p Param, v float32) {
	fp := &e.param[p]
	if v < fp.Min {
		v = fp.Min
	}
	if v > fp.Max {
		v = fp.Max
	}
	fp.Value = v
}

// Param returns a global instrument parameter's current value.
func (e *Engine) Param(p Param) float32 { return e.param[p].Value }

// SetMidiMapBit sets or clears division bit d in MIDI channel c's routing
// entry.
func (e *Engine) SetMidiMapBit(d, c int, on bool) {
	if c < 0 || c > 15 || d < 0 || d >= MaxDivisions {
		return
	}
	if on {
		e.midimap[c] |= 1 << uint(d)
	} else {
		e.midimap[c] &^= 1 << uint(d)
	}
}

// MidiMapEntry returns MIDI channel c's routing entry (low 7 bits).
func (e *Engine) MidiMapEntry(c int) uint16 {
	if c < 0 || c > 15 {
		return 0
	}
	return e.midimap[c] & 0x7F
}

// Section returns audio section index i, for installing a new division.
func (e *Engine) Section(i int) *asection.Asection { return e.sections[i] }

// Division returns division index i.
func (e *Engine) Division(i int) *division.Division { return e.divisions[i] }

// NDivisions reports how many divisions are installed.
func (e *Engine) NDivisions() int { return e.ndivis }

// InstallRank swaps a freshly built rank into division div at slot
// rankIdx, discarding whatever rank previously occupied that slot. Called
// from the audio thread's command-draining loop, never concurrently with
// RenderBlock.
func (e *Engine) InstallRank(div, rankIdx int, r *rank.Rank, pan harmonic.Pan, delayMs int) {
	if div < 0 || div >= e.ndivis {
		return
	}
	e.divisions[div].SetRank(rankIdx, r, pan, delayMs)
}
