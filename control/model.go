package control

import (
	"math"
	"time"

	"github.com/nightjar-organ/virga/engine"
	"github.com/nightjar-organ/virga/harmonic"
)

// RankDef describes one rank's placement within a division, as read from
// an instrument file: which voicing to use, how it pans, and its startup
// delay.
type RankDef struct {
	Addsynth *harmonic.Addsynth
	Pan      harmonic.Pan
	DelayMs  int
}

// DivisionDef describes one division: which audio section it feeds, its
// default mask, and its tremulant/swell defaults.
type DivisionDef struct {
	Section     int
	DefaultMask byte
	Swell       float32
	TremFreq    float32
	TremDepth   float32
	Ranks       []RankDef
}

// Patch is the full instrument description: divisions, their ranks, and
// the tuning/temperament they're built against.
type Patch struct {
	Fsamp       float32
	Fbase       float32
	Scale       [12]float32
	Divisions   []DivisionDef
	CacheDir    string
}

// Model owns the logical instrument state: the patch, the MIDI-to-keyboard
// map, per-division performance settings, and the hold flag. It turns
// incoming messages into audio-thread commands and worker jobs, never
// touching the engine directly — the audio thread is the sole owner of
// engine.Engine.
type Model struct {
	broker *Broker
	patch  Patch

	midiMap [16]uint16
	hold    bool

	rankBuildsPending int
}

// NewModel creates a model around broker for the given patch.
func NewModel(broker *Broker, patch Patch) *Model {
	m := &Model{broker: broker, patch: patch}
	for c := range m.midiMap {
		m.midiMap[c] = 0
	}
	return m
}

// Start dispatches MT_NEW_DIVIS-equivalent setup and rank-build requests
// for every division/rank in the patch, mirroring the reference
// implementation's model-thread startup sequence (create divisions, then
// request each rank be loaded or computed).
func (m *Model) Start() {
	for di, dd := range m.patch.Divisions {
		PushWords(m.broker.CmdQueue, newDivisionWord(di, dd))
		for ri, rd := range dd.Ranks {
			m.rankBuildsPending++
			TrySend(m.broker.ToWorker, MsgToWorker{BuildRank: &BuildRankMsg{
				Division:  di,
				RankIndex: ri,
				Addsynth:  rd.Addsynth,
				Fsamp:     m.patch.Fsamp,
				Fbase:     m.patch.Fbase,
				Scale:     m.patch.Scale,
				CacheDir:  m.patch.CacheDir,
			}})
		}
	}
}

// newDivisionWord is a placeholder encoding for a future MT_NEW_DIVIS
// analogue; division creation in this Go port happens synchronously on the
// audio thread via engine.Engine.AddDivision rather than over the command
// queue, since Go's GC makes heap-allocated divisions safe to hand across
// goroutines directly. Kept as a documented no-op command (0xFF) so the
// command-word numbering in SetRankMask/ClrRankMask and friends stays
// stable if a future revision does move division creation onto the queue.
func newDivisionWord(div int, dd DivisionDef) uint32 {
	return engine.CommandWord(0xFF, byte(div), 0, dd.DefaultMask)
}

// HandleNoteOn applies the MIDI-to-keyboard map to a note-on and emits the
// corresponding key-on command(s) to the audio thread.
func (m *Model) HandleNoteOn(channel, note, velocity int) {
	if channel < 0 || channel > 15 {
		return
	}
	mask := byte(m.midiMap[channel] & engine.KeysMask)
	if mask == 0 {
		return
	}
	n := note - engine.NoteMin
	if n < 0 || n >= engine.NNotes {
		return
	}
	PushWords(m.broker.NoteQueue, engine.CommandWord(1, 0, byte(n), mask))
}

// HandleNoteOff applies the MIDI-to-keyboard map to a note-off. While hold
// is engaged, only the non-hold bits of the mask are cleared.
func (m *Model) HandleNoteOff(channel, note int) {
	if channel < 0 || channel > 15 {
		return
	}
	mask := byte(m.midiMap[channel] & engine.KeysMask)
	if mask == 0 {
		return
	}
	if m.hold {
		mask &^= engine.HoldMask
	}
	n := note - engine.NoteMin
	if n < 0 || n >= engine.NNotes {
		return
	}
	PushWords(m.broker.NoteQueue, engine.CommandWord(0, 0, byte(n), mask))
}

// SetHold toggles hold mode, issuing the conditional key-on/off pair that
// makes currently sounding notes stick (or releases them).
func (m *Model) SetHold(on bool) {
	m.hold = on
	if on {
		PushWords(m.broker.CmdQueue, engine.CommandWord(9, engine.KeysMask, 0, 0))
	} else {
		PushWords(m.broker.CmdQueue, engine.CommandWord(8, 0, 0, 0))
	}
}

// SetMidiMapBit sets or clears division bit d in MIDI channel c's routing
// entry, mirroring the reference implementation's setMidiMapBit.
func (m *Model) SetMidiMapBit(division, channel int, on bool) {
	if channel < 0 || channel > 15 || division < 0 || division >= engine.MaxDivisions {
		return
	}
	if on {
		m.midiMap[channel] |= 1 << uint(division)
	} else {
		m.midiMap[channel] &^= 1 << uint(division)
	}
}

// MidiMapEntry returns MIDI channel c's routing entry.
func (m *Model) MidiMapEntry(channel int) uint16 {
	if channel < 0 || channel > 15 {
		return 0
	}
	return m.midiMap[channel] & engine.KeysMask
}

// SetDivisionMask sends a set/clear-division-mask command.
func (m *Model) SetDivisionMask(division int, bits byte, set bool) {
	cmd := byte(4)
	if set {
		cmd = 5
	}
	PushWords(m.broker.CmdQueue, engine.CommandWord(cmd, byte(division), 0, bits))
}

// SetRankMask sends a set/clear-rank-mask command.
func (m *Model) SetRankMask(division, rankIdx int, bits byte, set bool) {
	cmd := byte(6)
	if set {
		cmd = 7
	}
	PushWords(m.broker.CmdQueue, engine.CommandWord(cmd, byte(division), byte(rankIdx), bits))
}

// SetTremulant sends tremulant on/off for a division.
func (m *Model) SetTremulant(division int, on bool) {
	var b byte
	if on {
		b = 1
	}
	PushWords(m.broker.CmdQueue, engine.CommandWord(16, byte(division), 0, b))
}

// SetDivisionParam sends a per-division performance controller update
// (swell, tremulant frequency, or tremulant depth).
func (m *Model) SetDivisionParam(division int, which byte, value float32) {
	word := engine.CommandWord(17, byte(division), which, 0)
	PushWords(m.broker.CmdQueue, word, math.Float32bits(value))
}

// midiPollInterval is how often Run drains broker.MidiQueue. MIDI short
// messages have no wakeup of their own the way a channel send does, so the
// model thread polls for them at roughly UI-refresh granularity rather
// than spinning.
const midiPollInterval = 2 * time.Millisecond

// Run drains broker.ToModel and broker.MidiQueue, translating MIDI and
// worker messages into engine commands and bookkeeping, until
// broker.CloseUI (reused here as the model thread's own shutdown signal,
// since the model has no other dedicated owner to ask) fires.
func (m *Model) Run() {
	ticker := time.NewTicker(midiPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.broker.CloseUI:
			return
		case msg := <-m.broker.ToModel:
			m.dispatch(msg)
		case <-ticker.C:
			m.drainMidiQueue()
		}
	}
}

// drainMidiQueue decodes every complete 3-byte short message currently
// queued by the MIDI driver's callback goroutine. It never blocks: if the
// queue's producer is mid-write on the last message, that partial triple
// is simply picked up on the next tick.
func (m *Model) drainMidiQueue() {
	q := m.broker.MidiQueue
	for q.ReadAvail() >= 3 {
		status, data1, data2 := q.Read(0), q.Read(1), q.Read(2)
		q.ReadCommit(3)
		m.decodeMidiShort(status, data1, data2)
	}
}

func (m *Model) decodeMidiShort(status, data1, data2 uint8) {
	channel := int(status & 0x0F)
	switch status & 0xF0 {
	case 0x80:
		m.HandleNoteOff(channel, int(data1))
	case 0x90:
		if data2 == 0 {
			m.HandleNoteOff(channel, int(data1))
		} else {
			m.HandleNoteOn(channel, int(data1), int(data2))
		}
	case 0xB0:
		m.handleControlChange(channel, int(data1), int(data2))
	}
}

func (m *Model) dispatch(msg MsgToModel) {
	switch {
	case msg.CPULoad != nil:
		TrySend[any](m.broker.ToUI, msg.CPULoad)
	case msg.RankBuilt != nil:
		m.rankBuildsPending--
		rb := msg.RankBuilt
		if rb.Err != nil {
			TrySend[any](m.broker.ToUI, &Alert{
				Name:     "rank build",
				Message:  rb.Err.Error(),
				Priority: AlertError,
			})
			break
		}
		rd := m.patch.Divisions[rb.Division].Ranks[rb.RankIndex]
		TrySend(m.broker.ToAudio, MsgToAudio{InstallRank: &InstallRankMsg{
			Division:  rb.Division,
			RankIndex: rb.RankIndex,
			Rank:      rb.Rank,
			Pan:       rd.Pan,
			DelayMs:   rd.DelayMs,
		}})
	case msg.HasNote && msg.NoteOn:
		m.HandleNoteOn(msg.Channel, msg.Note, msg.Velocity)
	case msg.HasNote:
		m.HandleNoteOff(msg.Channel, msg.Note)
	case msg.ControlChg:
		m.handleControlChange(msg.Channel, msg.Controller, msg.Value)
	}
}

// handleControlChange maps a handful of well-known CC numbers to
// instrument-wide toggles; anything else is forwarded to the UI as data
// for display or custom binding.
func (m *Model) handleControlChange(channel, controller, value int) {
	const sustainPedal = 64
	switch controller {
	case sustainPedal:
		m.SetHold(value >= 64)
	default:
		TrySend[any](m.broker.ToUI, MsgToModel{ControlChg: true, Channel: channel, Controller: controller, Value: value})
	}
}
