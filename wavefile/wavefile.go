// Package wavefile reads and writes the .ae1 wavetable cache format: one
// file per rank, holding every pipe's built wavetable plus enough of the
// build parameters (note range, sample rate, tuning, temperament) to
// detect a stale cache and force a rebuild instead of serving corrupt
// audio.
package wavefile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/nightjar-organ/virga/harmonic"
	"github.com/nightjar-organ/virga/pipe"
	"github.com/nightjar-organ/virga/rank"
	"github.com/nightjar-organ/virga/wavetable"
)

const magic = "ae1"
const version = 1

// headerSize is the fixed 16-byte file tag (magic + version + padding).
const headerSize = 16

// recordSize is the fixed 64-byte parameter record following the header.
const recordSize = 64

// pipeHeaderSize is the fixed 32-byte per-pipe record preceding its
// sample data.
const pipeHeaderSize = 32

// PathFor derives a rank's cache file path from its source filename,
// replacing any extension with .ae1 (or appending it if there is none).
func PathFor(dir, sourceFilename string) string {
	base := filepath.Base(sourceFilename)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return filepath.Join(dir, base+".ae1")
}

// Save writes r's built wavetables to dir, named after d.Filename.
func Save(dir string, r *rank.Rank, d *harmonic.Addsynth, fsamp, fbase float32, scale [12]float32) error {
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return fmt.Errorf("wavefile: creating cache directory %s: %w", dir, err)
	}
	path := PathFor(dir, d.Filename)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("wavefile: creating %s: %w", path, err)
	}
	defer f.Close()

	var header [headerSize]byte
	copy(header[:], magic)
	header[4] = version
	if _, err := f.Write(header[:]); err != nil {
		return err
	}

	var rec [recordSize]byte
	rec[4] = byte(r.N0)
	rec[5] = byte(r.N1)
	binary.LittleEndian.PutUint32(rec[8:], math.Float32bits(fsamp))
	binary.LittleEndian.PutUint32(rec[12:], math.Float32bits(fbase))
	for i, s := range scale {
		binary.LittleEndian.PutUint32(rec[16+4*i:], math.Float32bits(s))
	}
	if _, err := f.Write(rec[:]); err != nil {
		return err
	}

	for i := range r.Pipes {
		if err := writePipe(f, &r.Pipes[i]); err != nil {
			return err
		}
	}
	return nil
}

func writePipe(w io.Writer, p *pipe.Pipe) error {
	t := p.Table
	var h [pipeHeaderSize]byte
	binary.LittleEndian.PutUint32(h[0:], uint32(t.L0))
	binary.LittleEndian.PutUint32(h[4:], uint32(t.L1))
	binary.LittleEndian.PutUint16(h[8:], uint16(t.Ks))
	binary.LittleEndian.PutUint16(h[10:], uint16(t.Kr))
	binary.LittleEndian.PutUint32(h[12:], math.Float32bits(t.Mr))
	if _, err := w.Write(h[:]); err != nil {
		return err
	}
	buf := make([]byte, 4*len(t.Samples))
	for i, s := range t.Samples {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(s))
	}
	_, err := w.Write(buf)
	return err
}

// Load reads a cache file for r (already allocated with the right note
// range via rank.New) from dir, validating that it matches d's filename
// and the build parameters fsamp/fbase/scale exactly as the original
// rank build would have produced. A mismatch (missing file, wrong
// version, wrong note range, different sample rate/tuning/temperament)
// returns a non-nil error so the caller falls back to GenWaves.
func Load(dir string, r *rank.Rank, d *harmonic.Addsynth, fsamp, fbase float32, scale [12]float32, rngOut func() *rand.Rand) error {
	path := PathFor(dir, d.Filename)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("wavefile: reading %s: %w", path, err)
	}
	br := bytes.NewReader(data)

	var header [headerSize]byte
	if _, err := io.ReadFull(br, header[:]); err != nil {
		return fmt.Errorf("wavefile: %s: %w", path, err)
	}
	if string(bytes.TrimRight(header[:4], "\x00")) != magic {
		return fmt.Errorf("wavefile: %s is not an ae1 file", path)
	}
	if header[4] != version {
		return fmt.Errorf("wavefile: %s has incompatible version %d", path, header[4])
	}

	var rec [recordSize]byte
	if _, err := io.ReadFull(br, rec[:]); err != nil {
		return fmt.Errorf("wavefile: %s: %w", path, err)
	}
	if int(rec[4]) != r.N0 || int(rec[5]) != r.N1 {
		return fmt.Errorf("wavefile: %s has incompatible note range (%d %d), expected (%d %d)", path, rec[4], rec[5], r.N0, r.N1)
	}
	gotFsamp := math.Float32frombits(binary.LittleEndian.Uint32(rec[8:]))
	if f32abs(gotFsamp-fsamp) > 0.1 {
		return fmt.Errorf("wavefile: %s has a different sample rate (%v)", path, gotFsamp)
	}
	gotFbase := math.Float32frombits(binary.LittleEndian.Uint32(rec[12:]))
	if f32abs(gotFbase-fbase) > 0.1 {
		return fmt.Errorf("wavefile: %s has a different tuning (%v)", path, gotFbase)
	}
	for i := 0; i < 12; i++ {
		f := math.Float32frombits(binary.LittleEndian.Uint32(rec[16+4*i:]))
		if f32abs(f/scale[i]-1.0) > 6e-5 {
			return fmt.Errorf("wavefile: %s has a different temperament", path)
		}
	}

	for i := range r.Pipes {
		if err := readPipe(br, &r.Pipes[i], d, i, rngOut()); err != nil {
			return fmt.Errorf("wavefile: %s: %w", path, err)
		}
	}
	return nil
}

// readPipe reconstructs one pipe's wavetable. offset is the pipe's index
// within the rank (note - r.N0), matching the argument wavetable.Build is
// called with on a fresh build, not the absolute MIDI note.
func readPipe(rd io.Reader, p *pipe.Pipe, d *harmonic.Addsynth, offset int, rng *rand.Rand) error {
	var h [pipeHeaderSize]byte
	if _, err := io.ReadFull(rd, h[:]); err != nil {
		return err
	}
	t := &wavetable.Table{
		L0: int(binary.LittleEndian.Uint32(h[0:])),
		L1: int(binary.LittleEndian.Uint32(h[4:])),
		Ks: int(binary.LittleEndian.Uint16(h[8:])),
		Kr: int(binary.LittleEndian.Uint16(h[10:])),
		Mr: math.Float32frombits(binary.LittleEndian.Uint32(h[12:])),
	}
	k := t.L0 + t.L1 + t.Ks*(wavetable.Block+4)
	buf := make([]byte, 4*k)
	if _, err := io.ReadFull(rd, buf); err != nil {
		return err
	}
	t.Samples = make([]float32, k)
	for i := range t.Samples {
		t.Samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	// The cache format does not persist release-detune or instability;
	// recompute them from the voicing exactly as a fresh build would.
	t.Dr = float32(t.Ks) * (wavetable.Exp2Ap(d.NDcd.Vi(offset)/1200.0) - 1.0)
	t.Dp = d.NIns.Vi(offset)

	out := p.Out
	*p = *pipe.New(t, out, rng)
	return nil
}

func f32abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
