//go:build plugin

// vst2.go exposes the engine as a VST2 instrument plugin: incoming MIDI
// events are decoded straight from the host's event buffer (bypassing the
// midi package's rtmidi input entirely, since the host is the MIDI
// source) and queued to the model thread, and ProcessFloatFunc renders
// one host buffer at a time directly from the engine.
package host

import (
	"time"

	"github.com/nightjar-organ/virga/control"
	"github.com/nightjar-organ/virga/engine"
	"github.com/nightjar-organ/virga/wavetable"
	"pipelined.dev/audio/vst2"
)

// pluginVendor identifies this instrument's vendor to a VST2 host.
const pluginVendor = "nightjar-organ/virga"

// NewPlugin builds a vst2.Plugin/vst2.Dispatcher pair around eng and
// broker. uniqueID and name are supplied by the cmd/ package that embeds
// this plugin (each plugin build picks its own four-character ID).
func NewPlugin(uniqueID [4]byte, name string, eng *engine.Engine, broker *control.Broker) (vst2.Plugin, vst2.Dispatcher) {
	var (
		events      []vst2.MIDIEvent
		left, right [wavetable.Block]float32
		block       = [][]float32{left[:], right[:]}
		staged      int // samples already rendered into left/right but not yet copied out
	)

	plugin := vst2.Plugin{
		UniqueID:       int32(uniqueID[0])<<24 | int32(uniqueID[1])<<16 | int32(uniqueID[2])<<8 | int32(uniqueID[3]),
		Version:        100,
		InputChannels:  0,
		OutputChannels: 2,
		Name:           name,
		Vendor:         pluginVendor,
		Category:       vst2.PluginCategorySynth,
		Flags:          vst2.PluginIsSynth,
		ProcessFloatFunc: func(in, out vst2.FloatBuffer) {
			for _, ev := range events {
				status := ev.Data[0]
				switch {
				case status >= 0x80 && status < 0x90:
					control.TrySend(broker.ToModel, control.MsgToModel{HasNote: true, Channel: int(status - 0x80), Note: int(ev.Data[1])})
				case status >= 0x90 && status < 0xA0:
					if ev.Data[2] == 0 {
						control.TrySend(broker.ToModel, control.MsgToModel{HasNote: true, Channel: int(status - 0x90), Note: int(ev.Data[1])})
					} else {
						control.TrySend(broker.ToModel, control.MsgToModel{NoteOn: true, HasNote: true, Channel: int(status - 0x90), Note: int(ev.Data[1]), Velocity: int(ev.Data[2])})
					}
				}
			}
			events = events[:0]

			outL := out.Channel(0)
			outR := out.Channel(1)
			n := 0
			for n < out.Frames {
				if staged == 0 {
					start := time.Now()
					drainCommandQueues(broker, eng)
					eng.ProcKeys1()
					eng.ProcKeys2()
					eng.RenderBlock(block)
					staged = len(left)
					load := float64(time.Since(start)) / float64(nominalBlockDuration)
					control.TrySend(broker.ToModel, control.MsgToModel{
						CPULoad: &engine.CPULoad{ThreadName: "audio", Load: load},
					})
				}
				c := copy(outL[n:], left[len(left)-staged:])
				copy(outR[n:], right[len(right)-staged:])
				staged -= c
				n += c
			}
		},
	}

	dispatcher := vst2.Dispatcher{
		CanDoFunc: func(pcds vst2.PluginCanDoString) vst2.CanDoResponse {
			switch pcds {
			case vst2.PluginCanReceiveEvents, vst2.PluginCanReceiveMIDIEvent:
				return vst2.YesCanDo
			}
			return vst2.NoCanDo
		},
		ProcessEventsFunc: func(ev *vst2.EventsPtr) {
			for i := 0; i < ev.NumEvents(); i++ {
				if v, ok := ev.Event(i).(*vst2.MIDIEvent); ok {
					events = append(events, *v)
				}
			}
		},
	}

	return plugin, dispatcher
}
