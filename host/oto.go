// Package host adapts the engine to platform audio backends. oto.go wires
// it to github.com/ebitengine/oto/v3, pulling rendered blocks through an
// io.Reader the player calls back into on its own callback goroutine.
package host

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/nightjar-organ/virga/control"
	"github.com/nightjar-organ/virga/engine"
	"github.com/nightjar-organ/virga/wavetable"
)

// SampleRate is the fixed output sample rate the engine and oto context
// both run at.
const SampleRate = 44100

// OtoOutput streams an engine's stereo output through an oto player. It
// implements io.Reader: Read is called from oto's internal playback
// goroutine and renders one engine block at a time, feeding bytes out of
// a small staging buffer until it runs dry.
type OtoOutput struct {
	eng    *engine.Engine
	broker *control.Broker
	left   [wavetable.Block]float32
	right  [wavetable.Block]float32
	block  [][]float32

	buf    [wavetable.Block * 8]byte // reusable render scratch, no per-block alloc
	staged []byte                    // little-endian float32 stereo frames not yet delivered
}

// NewOtoOutput creates an oto context and a ready-to-play output driven by
// eng. eng must render to SampleRate and 2 channels. broker's command/note
// queues (and the rank-installation channel) are drained once per
// rendered block, the one point where the audio thread touches shared
// state.
func NewOtoOutput(eng *engine.Engine, broker *control.Broker) (*oto.Context, *OtoOutput, error) {
	opts := &oto.NewContextOptions{
		SampleRate:   SampleRate,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
	}
	ctx, ready, err := oto.NewContext(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("host: cannot create oto context: %w", err)
	}
	<-ready

	out := &OtoOutput{eng: eng, broker: broker}
	out.block = [][]float32{out.left[:], out.right[:]}
	return ctx, out, nil
}

// Read renders engine blocks on demand and serves them as little-endian
// float32 stereo frames, the wire format oto.FormatFloat32LE expects.
func (o *OtoOutput) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if len(o.staged) == 0 {
			o.renderBlock()
		}
		c := copy(p[n:], o.staged)
		o.staged = o.staged[c:]
		n += c
	}
	return n, nil
}

// nominalBlockDuration is how long one rendered block represents at
// SampleRate, the denominator of the CPU-load fraction published each
// callback.
const nominalBlockDuration = time.Duration(wavetable.Block) * time.Second / SampleRate

func (o *OtoOutput) renderBlock() {
	start := time.Now()

	drainCommandQueues(o.broker, o.eng)
	o.eng.ProcKeys1()
	o.eng.ProcKeys2()
	o.eng.RenderBlock(o.block)

	for i := range o.left {
		binary.LittleEndian.PutUint32(o.buf[i*8:], math.Float32bits(o.left[i]))
		binary.LittleEndian.PutUint32(o.buf[i*8+4:], math.Float32bits(o.right[i]))
	}
	o.staged = o.buf[:]

	load := float64(time.Since(start)) / float64(nominalBlockDuration)
	control.TrySend(o.broker.ToModel, control.MsgToModel{
		CPULoad: &engine.CPULoad{ThreadName: "audio", Load: load},
	})
}

// WaitForPlayer blocks briefly to let oto's player warm up before the
// caller starts feeding MIDI/control events, mirroring the teacher's
// startup ordering.
func WaitForPlayer() { time.Sleep(20 * time.Millisecond) }

// drainCommandQueues applies every command and note pending on broker's
// lock-free queues without blocking or allocating, the one point where the
// audio thread touches shared state. Commands are drained before notes,
// matching proc_queue's per-callback ordering: a mask change takes effect
// before the note-on/off that follows it in the same block is applied.
// InstallRank still arrives over broker.ToAudio's channel — it carries a
// heap pointer, not a fixed-width word — so it's drained opportunistically
// alongside the queues, never blocking if nothing is pending.
func drainCommandQueues(broker *control.Broker, eng *engine.Engine) {
	q := broker.CmdQueue
	for q.ReadAvail() > 0 {
		word := q.Read(0)
		cmd, j, i, b := engine.DecodeCommand(word)
		n := 1
		var follow uint32
		hasFollowup := cmd == 17
		if hasFollowup {
			if q.ReadAvail() < 2 {
				break // follow-up word not committed yet; try again next callback
			}
			follow = q.Read(1)
			n = 2
		}
		eng.ApplyCommand(engine.Command{Code: cmd, J: j, I: i, B: b, HasFollowup: hasFollowup, Followup: follow})
		q.ReadCommit(n)
	}

	nq := broker.NoteQueue
	for nq.ReadAvail() > 0 {
		word := nq.Read(0)
		cmd, j, i, b := engine.DecodeCommand(word)
		eng.ApplyCommand(engine.Command{Code: cmd, J: j, I: i, B: b})
		nq.ReadCommit(1)
	}

	for {
		select {
		case msg := <-broker.ToAudio:
			if msg.InstallRank != nil {
				ir := msg.InstallRank
				eng.InstallRank(ir.Division, ir.RankIndex, ir.Rank, ir.Pan, ir.DelayMs)
			}
		default:
			return
		}
	}
}
