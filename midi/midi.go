// Package midi implements the MIDI thread: it opens an rtmidi input,
// listens for short messages on their own callback goroutine, and pushes
// their raw bytes onto the model thread's lock-free MIDI queue. Decoding
// note-on/note-off/control-change happens on the model thread, which is
// the sole reader of that queue; the MIDI thread never touches the audio
// thread directly.
package midi

import (
	"fmt"
	"strings"

	"github.com/nightjar-organ/virga/control"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// Input owns one open rtmidi input port and relays its events onto a
// control.Broker's MidiQueue. gomidi invokes handleMessage from its own
// internal callback goroutine, so it only ever stages a non-blocking,
// lock-free queue write — it must never be the one to block the model
// thread.
type Input struct {
	broker *control.Broker

	driver    *rtmididrv.Driver
	currentIn drivers.In
}

// NewInput opens the rtmidi driver without selecting a port yet. If the
// driver can't be created (no backend available on this platform), Input
// is still returned but every subsequent call is a no-op.
func NewInput(broker *control.Broker) *Input {
	in := &Input{broker: broker}
	in.driver, _ = rtmididrv.New()
	return in
}

// Ports lists the available input port names.
func (in *Input) Ports() []string {
	if in.driver == nil {
		return nil
	}
	ins, err := in.driver.Ins()
	if err != nil {
		return nil
	}
	names := make([]string, len(ins))
	for i, p := range ins {
		names[i] = p.String()
	}
	return names
}

// Open opens the named input port (or the first available port if
// takeFirst is set), closing any previously open port.
func (in *Input) Open(namePrefix string, takeFirst bool) error {
	if in.driver == nil {
		return fmt.Errorf("midi: no driver available")
	}
	ins, err := in.driver.Ins()
	if err != nil {
		return err
	}
	for _, p := range ins {
		if !takeFirst && !strings.HasPrefix(p.String(), namePrefix) {
			continue
		}
		return in.openPort(p)
	}
	return fmt.Errorf("midi: no matching input port for %q", namePrefix)
}

func (in *Input) openPort(p drivers.In) error {
	if in.currentIn != nil && in.currentIn.IsOpen() {
		in.currentIn.Close()
	}
	if err := p.Open(); err != nil {
		return fmt.Errorf("midi: opening input failed: %w", err)
	}
	in.currentIn = p
	_, err := midi.ListenTo(p, in.handleMessage)
	if err != nil {
		p.Close()
		in.currentIn = nil
		return err
	}
	return nil
}

// Close closes the currently open port and the driver.
func (in *Input) Close() {
	if in.driver == nil {
		return
	}
	if in.currentIn != nil && in.currentIn.IsOpen() {
		in.currentIn.Close()
	}
	in.driver.Close()
}

// handleMessage runs on gomidi's internal reader goroutine. It only
// recognizes the three-byte short messages the model thread's decoder
// understands (note-on, note-off, control-change); anything else (sysex,
// realtime bytes) is dropped here rather than on the queue. The push never
// blocks: a full MidiQueue (the model thread falling behind) simply drops
// the message, matching every other producer's backpressure behavior in
// this system.
func (in *Input) handleMessage(msg midi.Message, timestampms int32) {
	if len(msg) < 3 {
		return
	}
	status := msg[0] & 0xF0
	if status != 0x80 && status != 0x90 && status != 0xB0 {
		return
	}
	control.PushWords(in.broker.MidiQueue, msg[0], msg[1], msg[2])
}
