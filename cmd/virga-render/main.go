// Command virga-render loads an instrument file, holds a fixed set of
// notes on for a fixed duration, and renders the result straight to a
// .wav file without touching an audio device — useful for regression
// listening and for capturing a patch's sound outside a live session.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/nightjar-organ/virga/control"
	"github.com/nightjar-organ/virga/division"
	"github.com/nightjar-organ/virga/engine"
	"github.com/nightjar-organ/virga/harmonic"
	"github.com/nightjar-organ/virga/host"
	"github.com/nightjar-organ/virga/instrument"
	"github.com/nightjar-organ/virga/rank"
	"github.com/nightjar-organ/virga/version"
	"github.com/nightjar-organ/virga/wavefile"
)

func main() {
	seconds := flag.Float64("seconds", 3.0, "duration to render, in seconds")
	notes := flag.String("notes", "60", "comma-separated MIDI note numbers to hold for the entire render")
	out := flag.String("out", "out.wav", "output .wav path")
	pcm16 := flag.Bool("pcm16", true, "write 16-bit PCM instead of float32")
	nasect := flag.Int("sections", 2, "number of audio sections (spatial positions)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] instrument-file\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if *showVersion {
		fmt.Println(version.VersionOrHash)
		return
	}
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fail(err)
	}
	f, err := instrument.Parse(data)
	if err != nil {
		fail(err)
	}
	patch, err := f.ToPatch(host.SampleRate)
	if err != nil {
		fail(err)
	}

	eng := engine.New(host.SampleRate, 2, *nasect)
	rng := rand.New(rand.NewSource(1))
	for _, dd := range patch.Divisions {
		div := division.New(eng.Section(dd.Section), host.SampleRate)
		if dd.Swell != 0 {
			div.SetSwell(dd.Swell)
		}
		if dd.TremFreq != 0 {
			div.SetTremulant(dd.TremFreq, dd.TremDepth)
		}
		if dd.DefaultMask != 0 {
			div.SetDivMask(dd.DefaultMask)
		}
		eng.AddDivision(div)
		for ri, rd := range dd.Ranks {
			r := buildRank(patch, rd.Addsynth, rng)
			div.SetRank(ri, r, rd.Pan, rd.DelayMs)
			div.SetRankMask(ri, rank.FollowDivision)
		}
	}

	for _, ns := range strings.Split(*notes, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(ns))
		if err != nil {
			fail(fmt.Errorf("bad note %q: %w", ns, err))
		}
		if n < engine.NoteMin || n > engine.NoteMax {
			fail(fmt.Errorf("note %d out of range [%d,%d]", n, engine.NoteMin, engine.NoteMax))
		}
		eng.KeyOn(n-engine.NoteMin, 0x01)
	}

	nframes := int(*seconds * host.SampleRate)
	buf := host.RenderToBuffer(eng, nframes)
	wavBytes, err := host.Wav(buf, *pcm16)
	if err != nil {
		fail(err)
	}
	if err := os.WriteFile(*out, wavBytes, 0o644); err != nil {
		fail(err)
	}
	fmt.Printf("wrote %d frames to %s\n", nframes, *out)
}

// buildRank builds one rank synchronously, trying the .ae1 cache first
// exactly as worker.Pool.buildRank does, but inline: a one-shot render
// has no audio thread to keep unblocked, so there's no need for the
// worker/broker machinery a live session uses.
func buildRank(patch control.Patch, d *harmonic.Addsynth, rng *rand.Rand) *rank.Rank {
	r := rank.New(d.N0, d.N1)
	r.Addsynth = d
	if patch.CacheDir != "" {
		if err := wavefile.Load(patch.CacheDir, r, d, patch.Fsamp, patch.Fbase, patch.Scale, func() *rand.Rand { return rng }); err == nil {
			return r
		}
	}
	if err := r.GenWaves(patch.Fsamp, patch.Fbase, patch.Scale, rng, nil); err != nil {
		fail(err)
	}
	return r
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "virga-render: %v\n", err)
	os.Exit(1)
}
