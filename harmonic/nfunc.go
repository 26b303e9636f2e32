// Package harmonic implements the piecewise-linear parameter functions used
// to describe how a rank's voicing changes across the keyboard.
package harmonic

// NNote is the number of explicit support points an NFunc interpolates
// between, spaced six semitones apart.
const NNote = 11

// NHarm is the number of harmonics an HNFunc carries one NFunc per.
const NHarm = 64

// NFunc holds NNote support values and a bitmask of which of them were set
// explicitly (as opposed to filled in by interpolation or extension). Vi
// interpolates linearly between support points spaced six semitones apart,
// extrapolating linearly outside [0, 60].
type NFunc struct {
	v [NNote]float32
	b uint16
}

// Reset sets every support point to v and marks only the middle point
// (index 5) as explicitly set.
func (f *NFunc) Reset(v float32) {
	for i := range f.v {
		f.v[i] = v
	}
	f.b = 1 << 5
}

// Vs returns the raw stored value at support index i.
func (f *NFunc) Vs(i int) float32 { return f.v[i] }

// St reports whether support index i was set explicitly.
func (f *NFunc) St(i int) bool { return f.b&(1<<uint(i)) != 0 }

// SetV sets support index i to v, extending or interpolating the
// neighbouring unset indices to keep the function piecewise-linear.
func (f *NFunc) SetV(i int, v float32) {
	lo := -1
	for j := i - 1; j >= 0; j-- {
		if f.St(j) {
			lo = j
			break
		}
	}
	if lo < 0 {
		for j := 0; j < i; j++ {
			f.v[j] = v
		}
	} else {
		v0 := f.v[lo]
		for j := lo + 1; j < i; j++ {
			t := float32(j-lo) / float32(i-lo)
			f.v[j] = v0 + t*(v-v0)
		}
	}
	hi := -1
	for j := i + 1; j < NNote; j++ {
		if f.St(j) {
			hi = j
			break
		}
	}
	if hi < 0 {
		for j := i + 1; j < NNote; j++ {
			f.v[j] = v
		}
	} else {
		v1 := f.v[hi]
		for j := i + 1; j < hi; j++ {
			t := float32(j-i) / float32(hi-i)
			f.v[j] = v + t*(v1-v)
		}
	}
	f.v[i] = v
	f.b |= 1 << uint(i)
}

// ClrV clears the explicit-set bit at i, if any, and re-interpolates the
// span it used to anchor. A no-op if i is unset or the only point set.
func (f *NFunc) ClrV(i int) {
	if !f.St(i) {
		return
	}
	if f.b&^(1<<uint(i)) == 0 {
		return
	}
	f.b &^= 1 << uint(i)
	lo := -1
	for j := i - 1; j >= 0; j-- {
		if f.St(j) {
			lo = j
			break
		}
	}
	hi := -1
	for j := i + 1; j < NNote; j++ {
		if f.St(j) {
			hi = j
			break
		}
	}
	switch {
	case lo < 0 && hi < 0:
		// unreachable: b != 0 guaranteed above
	case lo < 0:
		v1 := f.v[hi]
		for j := 0; j < hi; j++ {
			f.v[j] = v1
		}
	case hi < 0:
		v0 := f.v[lo]
		for j := lo + 1; j < NNote; j++ {
			f.v[j] = v0
		}
	default:
		v0, v1 := f.v[lo], f.v[hi]
		for j := lo + 1; j < hi; j++ {
			t := float32(j-lo) / float32(hi-lo)
			f.v[j] = v0 + t*(v1-v0)
		}
	}
}

// Vi returns the value interpolated at MIDI offset n, scaled by dividing by
// six to land between support points.
func (f *NFunc) Vi(n int) float32 {
	i := n / 6
	k := n - 6*i
	if i < 0 {
		i = 0
		k = n
	}
	if i >= NNote-1 {
		i = NNote - 2
		k = n - 6*i
	}
	v := f.v[i]
	if k != 0 {
		v += float32(k) * (f.v[i+1] - v) / 6
	}
	return v
}

// HNFunc is NHarm independent NFuncs, one per harmonic.
type HNFunc struct {
	h [NHarm]NFunc
}

// Reset sets every harmonic's support points to v.
func (f *HNFunc) Reset(v float32) {
	for i := range f.h {
		f.h[i].Reset(v)
	}
}

// SetV sets harmonic h's support point i to v.
func (f *HNFunc) SetV(h, i int, v float32) { f.h[h].SetV(i, v) }

// ClrV clears harmonic h's support point i.
func (f *HNFunc) ClrV(h, i int) { f.h[h].ClrV(i) }

// Vs returns the raw value at harmonic h, support index i.
func (f *HNFunc) Vs(h, i int) float32 { return f.h[h].Vs(i) }

// St reports whether harmonic h's support index i is explicitly set.
func (f *HNFunc) St(h, i int) bool { return f.h[h].St(i) }

// Vi returns harmonic h's value interpolated at MIDI offset n.
func (f *HNFunc) Vi(h, n int) float32 { return f.h[h].Vi(n) }
