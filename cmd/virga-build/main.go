// Command virga-build precomputes an instrument's .ae1 wavetable cache
// without opening an audio device or MIDI input, so a large instrument
// loads instantly the first time virga-play runs against it.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/nightjar-organ/virga/control"
	"github.com/nightjar-organ/virga/harmonic"
	"github.com/nightjar-organ/virga/instrument"
	"github.com/nightjar-organ/virga/rank"
	"github.com/nightjar-organ/virga/version"
	"github.com/nightjar-organ/virga/wavefile"
)

func main() {
	fsamp := flag.Float64("fsamp", 44100, "sample rate to build wavetables for")
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
		fmt.Fprintf(os.Stderr, "virga-build: %v\n", err)
		os.Exit(1)
	}
	f, err := instrument.Parse(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "virga-build: %v\n", err)
		os.Exit(1)
	}
	patch, err := f.ToPatch(float32(*fsamp))
	if err != nil {
		fmt.Fprintf(os.Stderr, "virga-build: %v\n", err)
		os.Exit(1)
	}
	if patch.CacheDir == "" {
		fmt.Fprintln(os.Stderr, "virga-build: instrument file has no cachedir set, nothing to build")
		os.Exit(1)
	}

	rng := rand.New(rand.NewSource(1))
	retval := 0
	for di, dd := range patch.Divisions {
		for ri, rd := range dd.Ranks {
			if err := buildOne(patch, rd.Addsynth, rng); err != nil {
				fmt.Fprintf(os.Stderr, "virga-build: division %d rank %d (%s): %v\n", di, ri, rd.Addsynth.Stopname, err)
				retval = 1
				continue
			}
			fmt.Printf("built %s\n", rd.Addsynth.Stopname)
		}
	}
	os.Exit(retval)
}

func buildOne(patch control.Patch, d *harmonic.Addsynth, rng *rand.Rand) error {
	r := rank.New(d.N0, d.N1)
	r.Addsynth = d
	if err := r.GenWaves(patch.Fsamp, patch.Fbase, patch.Scale, rng, nil); err != nil {
		return err
	}
	return wavefile.Save(patch.CacheDir, r, d, patch.Fsamp, patch.Fbase, patch.Scale)
}
