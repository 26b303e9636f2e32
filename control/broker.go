// Package control implements the model thread: the owner of logical
// instrument state (divisions, ranks, the MIDI map, hold) that turns UI and
// MIDI control messages into low-level commands for the audio thread and
// rank-build jobs for the background worker.
package control

import (
	"sync"
	"time"

	"github.com/nightjar-organ/virga/engine"
	"github.com/nightjar-organ/virga/harmonic"
	"github.com/nightjar-organ/virga/queue"
	"github.com/nightjar-organ/virga/rank"
	"github.com/nightjar-organ/virga/wavetable"
)

// Broker centralizes the wiring between the model, the MIDI thread, the
// background worker, and a UI. Each recipient gets its own channel so a
// slow reader cannot stall a faster sender; the model and worker only ever
// try to send, never block. Command and note words bound for the audio
// thread instead travel over lock-free SPSC queues: CmdQueue and NoteQueue
// are written only by the model thread and read only by the audio thread,
// so the audio callback never touches a channel's runtime mutex on its hot
// path. MidiQueue carries raw 3-byte MIDI short messages from the driver's
// callback goroutine to the model thread the same way. A sync.Pool of
// wavetable build scratch buffers avoids repeated allocation on the
// worker's hot path.
type Broker struct {
	ToModel  chan MsgToModel
	ToWorker chan MsgToWorker
	ToAudio  chan MsgToAudio
	ToUI     chan any

	CmdQueue  *queue.Queue[uint32]
	NoteQueue *queue.Queue[uint32]
	MidiQueue *queue.Queue[uint8]

	CloseWorker chan struct{}
	CloseUI     chan struct{}

	FinishedWorker chan struct{}
	FinishedUI     chan struct{}

	scratchPool sync.Pool
}

// MsgToModel is sent by the MIDI thread, a UI, or the worker.
type MsgToModel struct {
	NoteOn      bool
	HasNote     bool
	Channel     int
	Note        int
	Velocity    int
	ControlChg  bool
	Controller  int
	Value       int

	RankBuilt *RankBuiltMsg

	Alert *Alert

	CPULoad *engine.CPULoad

	Data any
}

// MsgToWorker asks the background worker to build or load/save a rank.
type MsgToWorker struct {
	BuildRank *BuildRankMsg
	SaveRank  *SaveRankMsg
}

// MsgToAudio hands a freshly built rank to the audio thread over
// broker.ToAudio. It is the one payload that still travels by channel
// rather than through CmdQueue/NoteQueue: a rank carries a heap pointer,
// not a fixed-width word, so it doesn't fit a value-typed ring buffer. The
// audio thread only ever reads InstallRank.Rank and swaps it into its
// division, never allocating or blocking to do so.
type MsgToAudio struct {
	InstallRank *InstallRankMsg
}

// InstallRankMsg hands a freshly built rank to the audio thread for
// installation into a division, replacing whatever rank (if any)
// previously occupied that slot.
type InstallRankMsg struct {
	Division  int
	RankIndex int
	Rank      *rank.Rank
	Pan       harmonic.Pan
	DelayMs   int
}

// BuildRankMsg requests the worker (re)build a rank's wavetables.
type BuildRankMsg struct {
	Division  int
	RankIndex int
	Addsynth  *harmonic.Addsynth
	Fsamp     float32
	Fbase     float32
	Scale     [12]float32
	CacheDir  string
}

// SaveRankMsg requests the worker persist a built rank to its cache file.
type SaveRankMsg struct {
	Division  int
	RankIndex int
}

// RankBuiltMsg is returned by the worker once a rank build completes. Rank
// is nil if Err is set.
type RankBuiltMsg struct {
	Division  int
	RankIndex int
	Err       error
	Rank      *rank.Rank
}

// Alert is a user-facing configuration or build problem, surfaced to a UI
// instead of logged, mirroring the teacher's alert channel pattern.
type Alert struct {
	Name     string
	Message  string
	Priority AlertPriority
}

// AlertPriority ranks an Alert's severity.
type AlertPriority int

const (
	AlertInfo AlertPriority = iota
	AlertWarning
	AlertError
)

// NewBroker allocates a Broker with generously buffered channels (sized
// for worst-case fan-in so no producer ever needs to block) and the
// lock-free queues the audio and model threads poll.
func NewBroker() *Broker {
	return &Broker{
		ToModel:        make(chan MsgToModel, 1024),
		ToWorker:       make(chan MsgToWorker, 64),
		ToAudio:        make(chan MsgToAudio, 1024),
		ToUI:           make(chan any, 1024),
		CmdQueue:       queue.New[uint32](256),
		NoteQueue:      queue.New[uint32](256),
		MidiQueue:      queue.New[uint8](4096),
		CloseWorker:    make(chan struct{}, 1),
		CloseUI:        make(chan struct{}, 1),
		FinishedWorker: make(chan struct{}),
		FinishedUI:     make(chan struct{}),
		scratchPool:    sync.Pool{New: func() any { return wavetable.NewScratch() }},
	}
}

// GetScratch returns a reusable wavetable build scratch from the pool.
func (b *Broker) GetScratch() *wavetable.Scratch {
	return b.scratchPool.Get().(*wavetable.Scratch)
}

// PutScratch returns sc to the pool.
func (b *Broker) PutScratch(sc *wavetable.Scratch) {
	b.scratchPool.Put(sc)
}

// PushWords stages words onto q and commits them as a single unit,
// returning false without writing anything if q doesn't currently have
// room for all of them. Committing as one unit keeps a command and its
// command-17 follow-up word (or a MIDI short message's three bytes) from
// ever being visible to the reader separately.
func PushWords[T any](q *queue.Queue[T], words ...T) bool {
	if q.WriteAvail() < len(words) {
		return false
	}
	for i, w := range words {
		q.Write(i, w)
	}
	q.WriteCommit(len(words))
	return true
}

// TrySend sends v on c without blocking, returning false if c is full.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
		return true
	default:
		return false
	}
}

// TimeoutReceive receives from c, giving up after t. ok is false on
// timeout or if c is closed.
func TimeoutReceive[T any](c <-chan T, t time.Duration) (v T, ok bool) {
	select {
	case v, ok = <-c:
		return v, ok
	case <-time.After(t):
		return v, false
	}
}
