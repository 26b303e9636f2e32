package control_test

import (
	"testing"
	"time"

	"github.com/nightjar-organ/virga/control"
	"github.com/nightjar-organ/virga/engine"
	"github.com/nightjar-organ/virga/harmonic"
	"github.com/nightjar-organ/virga/rank"
)

func testPatch() control.Patch {
	return control.Patch{
		Fsamp: 44100,
		Fbase: 440,
		Scale: [12]float32{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
		Divisions: []control.DivisionDef{
			{
				Section:     0,
				DefaultMask: 0x01,
				Ranks: []control.RankDef{
					{Addsynth: &harmonic.Addsynth{}, Pan: harmonic.PanWide, DelayMs: 0},
				},
			},
		},
	}
}

func TestStartRequestsOneBuildPerRank(t *testing.T) {
	broker := control.NewBroker()
	m := control.NewModel(broker, testPatch())
	m.Start()

	select {
	case msg := <-broker.ToWorker:
		if msg.BuildRank == nil {
			t.Fatal("expected a BuildRank request")
		}
		if msg.BuildRank.Division != 0 || msg.BuildRank.RankIndex != 0 {
			t.Fatalf("BuildRank = %+v, want division 0 rank 0", msg.BuildRank)
		}
	default:
		t.Fatal("expected a message on ToWorker after Start")
	}
}

func TestHandleNoteOnRequiresMidiMapBit(t *testing.T) {
	broker := control.NewBroker()
	m := control.NewModel(broker, testPatch())

	m.HandleNoteOn(0, engine.NoteMin, 100)
	if broker.NoteQueue.ReadAvail() != 0 {
		t.Fatal("expected no command: channel 0 has no division routed yet")
	}

	m.SetMidiMapBit(0, 0, true)
	m.HandleNoteOn(0, engine.NoteMin, 100)
	if broker.NoteQueue.ReadAvail() != 1 {
		t.Fatal("expected a key-on command after routing channel 0 to division 0")
	}
	cmd, _, i, b := engine.DecodeCommand(broker.NoteQueue.Read(0))
	if cmd != 1 || i != 0 || b != 0x01 {
		t.Fatalf("DecodeCommand = (%d,_,%d,%#x), want (1,0,0x01)", cmd, i, b)
	}
}

func TestSetHoldEmitsConditionalCommands(t *testing.T) {
	broker := control.NewBroker()
	m := control.NewModel(broker, testPatch())

	m.SetHold(true)
	if broker.CmdQueue.ReadAvail() != 1 {
		t.Fatal("expected a command after SetHold(true)")
	}
	cmd, _, _, _ := engine.DecodeCommand(broker.CmdQueue.Read(0))
	broker.CmdQueue.ReadCommit(1)
	if cmd != 9 {
		t.Fatalf("cmd = %d, want 9 for hold-on", cmd)
	}

	m.SetHold(false)
	if broker.CmdQueue.ReadAvail() != 1 {
		t.Fatal("expected a command after SetHold(false)")
	}
	cmd, _, _, _ = engine.DecodeCommand(broker.CmdQueue.Read(0))
	if cmd != 8 {
		t.Fatalf("cmd = %d, want 8 for hold-off", cmd)
	}
}

func TestSetDivisionParamCommitsWordAndFollowupTogether(t *testing.T) {
	broker := control.NewBroker()
	m := control.NewModel(broker, testPatch())

	m.SetDivisionParam(0, 1, 0.5)
	if broker.CmdQueue.ReadAvail() != 2 {
		t.Fatalf("ReadAvail = %d, want 2: word and follow-up commit atomically", broker.CmdQueue.ReadAvail())
	}
	cmd, j, i, _ := engine.DecodeCommand(broker.CmdQueue.Read(0))
	if cmd != 17 || j != 0 || i != 1 {
		t.Fatalf("DecodeCommand = (%d,%d,%d,_), want (17,0,1,_)", cmd, j, i)
	}
}

func TestMidiQueueShortMessageReachesNoteQueue(t *testing.T) {
	broker := control.NewBroker()
	m := control.NewModel(broker, testPatch())
	m.SetMidiMapBit(0, 0, true)

	control.PushWords(broker.MidiQueue, byte(0x90), byte(engine.NoteMin), byte(100))

	go m.Run()
	defer func() { broker.CloseUI <- struct{}{} }()

	deadline := time.After(time.Second)
	for {
		if broker.NoteQueue.ReadAvail() > 0 {
			cmd, _, i, b := engine.DecodeCommand(broker.NoteQueue.Read(0))
			if cmd != 1 || i != 0 || b != 0x01 {
				t.Fatalf("DecodeCommand = (%d,_,%d,%#x), want (1,0,0x01)", cmd, i, b)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the model thread to decode the queued MIDI short message")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestDispatchRankBuiltSendsInstallRank(t *testing.T) {
	broker := control.NewBroker()
	m := control.NewModel(broker, testPatch())
	m.Start()
	<-broker.ToWorker // drain the BuildRank request issued by Start

	r := rank.New(engine.NoteMin, engine.NoteMin+1)
	broker.ToModel <- control.MsgToModel{RankBuilt: &control.RankBuiltMsg{
		Division: 0, RankIndex: 0, Rank: r,
	}}

	go m.Run()
	defer func() { broker.CloseUI <- struct{}{} }()

	select {
	case msg := <-broker.ToAudio:
		if msg.InstallRank == nil || msg.InstallRank.Rank != r {
			t.Fatal("expected InstallRank carrying the built rank")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for InstallRank")
	}
}
