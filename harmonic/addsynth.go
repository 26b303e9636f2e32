package harmonic

// Pan selects which channels of a division's mix buffer a rank's pipes
// write into.
type Pan byte

const (
	PanLeft   Pan = 'L'
	PanCenter Pan = 'C'
	PanRight  Pan = 'R'
	PanWide   Pan = 'W'
)

// Addsynth is the voicing description for one rank: the harmonic model
// plus the metadata needed to place it in the instrument.
type Addsynth struct {
	Filename string
	Stopname string
	Mnemonic string
	Comments string

	N0, N1 int // first, last MIDI note
	Fn, Fd int // frequency multiplier numerator/denominator, e.g. 1/2 for 16'

	NVol NFunc // pipe amplitude in dB
	NOff NFunc // pipe offset in Hz
	NRan NFunc // random pipe offset amplitude in Hz
	NIns NFunc // instability in cents
	NAtt NFunc // attack duration in s
	NAtd NFunc // attack detune in cents
	NDct NFunc // release time in s
	NDcd NFunc // release detune in cents

	HLev HNFunc // harmonic amplitude level in dB
	HRan HNFunc // harmonic random amplitude variation in dB
	HAtt HNFunc // harmonic attack duration in s
	HAtp HNFunc // harmonic attack peak in dB

	Pan Pan `yaml:"-"`
	Del int // startup delay in ms
}

// Reset restores default voicing values matching a flue stop with a modest
// attack and no instability, mirroring the defaults of the reference
// implementation this package's math is grounded on.
func (a *Addsynth) Reset() {
	a.N0, a.N1 = 36, 96
	a.Fn, a.Fd = 1, 1
	a.NVol.Reset(0)
	a.NOff.Reset(0)
	a.NRan.Reset(0)
	a.NIns.Reset(1)
	a.NAtt.Reset(0.05)
	a.NAtd.Reset(0)
	a.NDct.Reset(0.1)
	a.NDcd.Reset(0)
	a.HLev.Reset(-80)
	a.HRan.Reset(0)
	a.HAtt.Reset(0)
	a.HAtp.Reset(0)
	a.Pan = PanWide
	a.Del = 0
}
