// Command virga-play loads an instrument file and plays it live, reading
// MIDI events from an rtmidi input and rendering through the default
// audio output device.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/nightjar-organ/virga/control"
	"github.com/nightjar-organ/virga/division"
	"github.com/nightjar-organ/virga/engine"
	"github.com/nightjar-organ/virga/host"
	"github.com/nightjar-organ/virga/instrument"
	"github.com/nightjar-organ/virga/midi"
	"github.com/nightjar-organ/virga/version"
	"github.com/nightjar-organ/virga/worker"
)

// newDivisionFor builds an empty division (ranks arrive asynchronously
// from the worker, each installed into its slot as it finishes building)
// wired to the instrument file's chosen audio section and default
// swell/tremulant settings.
func newDivisionFor(eng *engine.Engine, dd control.DivisionDef) *division.Division {
	d := division.New(eng.Section(dd.Section), host.SampleRate)
	if dd.Swell != 0 {
		d.SetSwell(dd.Swell)
	}
	if dd.TremFreq != 0 {
		d.SetTremulant(dd.TremFreq, dd.TremDepth)
	}
	if dd.DefaultMask != 0 {
		d.SetDivMask(dd.DefaultMask)
	}
	return d
}

func main() {
	midiPort := flag.String("midi", "", "MIDI input port name prefix (default: first available)")
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
		fmt.Fprintf(os.Stderr, "virga-play: %v\n", err)
		os.Exit(1)
	}
	f, err := instrument.Parse(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "virga-play: %v\n", err)
		os.Exit(1)
	}
	patch, err := f.ToPatch(host.SampleRate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "virga-play: %v\n", err)
		os.Exit(1)
	}

	eng := engine.New(host.SampleRate, 2, *nasect)
	for _, dd := range patch.Divisions {
		div := newDivisionFor(eng, dd)
		eng.AddDivision(div)
	}

	broker := control.NewBroker()
	model := control.NewModel(broker, patch)
	pool := worker.New(broker, 0)
	go pool.Run()
	go model.Run()
	model.Start()

	in := midi.NewInput(broker)
	defer in.Close()
	if err := in.Open(*midiPort, *midiPort == ""); err != nil {
		fmt.Fprintf(os.Stderr, "virga-play: midi: %v (continuing without MIDI input)\n", err)
	}

	ctx, out, err := host.NewOtoOutput(eng, broker)
	if err != nil {
		fmt.Fprintf(os.Stderr, "virga-play: %v\n", err)
		os.Exit(1)
	}
	player := ctx.NewPlayer(out)
	player.Play()
	host.WaitForPlayer()

	fmt.Fprintln(os.Stderr, "virga-play: running, press Ctrl+C to stop")
	select {}
}
