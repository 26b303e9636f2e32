// Package worker implements the background thread: a small pool of
// goroutines that build rank wavetables (loading them from, or saving them
// to, the .ae1 wavetable cache) off the audio thread's critical path, reporting
// completion back to the model through the broker.
package worker

import (
	"math/rand"
	"runtime"

	"github.com/nightjar-organ/virga/control"
	"github.com/nightjar-organ/virga/rank"
	"github.com/nightjar-organ/virga/wavefile"
)

// Pool is a fixed-size set of goroutines draining control.Broker.ToWorker
// and posting results to control.Broker.ToModel. Rank builds are pure CPU
// work with no shared mutable state between jobs, so a plain worker pool
// (rather than one goroutine per division) keeps build latency low on
// multicore machines without needing per-division affinity.
type Pool struct {
	broker *control.Broker
	n      int
}

// New creates a worker pool around broker. n <= 0 selects GOMAXPROCS.
func New(broker *control.Broker, n int) *Pool {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	return &Pool{broker: broker, n: n}
}

// Run starts the pool's goroutines and blocks until broker.CloseWorker is
// signaled, then closes broker.FinishedWorker. Run is meant to be called
// from its own goroutine by the process that owns the broker's lifetime.
func (p *Pool) Run() {
	jobs := make(chan control.MsgToWorker, p.n)

	for i := 0; i < p.n; i++ {
		go p.runOne(jobs)
	}

	for {
		select {
		case <-p.broker.CloseWorker:
			close(jobs)
			close(p.broker.FinishedWorker)
			return
		case msg := <-p.broker.ToWorker:
			jobs <- msg
		}
	}
}

func (p *Pool) runOne(jobs <-chan control.MsgToWorker) {
	rng := rand.New(rand.NewSource(1))
	for msg := range jobs {
		if msg.BuildRank != nil {
			p.buildRank(msg.BuildRank, rng)
		}
	}
}

// buildRank tries the .ae1 cache first (when a cache directory is
// configured) and only falls back to regenerating wavetables from
// scratch when no cache entry matches; a freshly generated rank is then
// written back to the cache so the next build is cheap.
func (p *Pool) buildRank(req *control.BuildRankMsg, rng *rand.Rand) {
	// SetParam (channel placement, startup delay) is applied later by
	// division.SetRank when the division installs this rank; it needs the
	// division's live mix buffer, which isn't available here.
	r := rank.New(req.Addsynth.N0, req.Addsynth.N1)
	r.Addsynth = req.Addsynth

	var err error
	cached := false
	if req.CacheDir != "" {
		loadErr := wavefile.Load(req.CacheDir, r, req.Addsynth, req.Fsamp, req.Fbase, req.Scale, func() *rand.Rand { return rng })
		cached = loadErr == nil
	}
	if !cached {
		sc := p.broker.GetScratch()
		err = r.GenWaves(req.Fsamp, req.Fbase, req.Scale, rng, sc)
		p.broker.PutScratch(sc)
		if err == nil && req.CacheDir != "" {
			if saveErr := wavefile.Save(req.CacheDir, r, req.Addsynth, req.Fsamp, req.Fbase, req.Scale); saveErr != nil {
				control.TrySend(p.broker.ToModel, control.MsgToModel{
					Alert: &control.Alert{Name: "rank cache", Message: saveErr.Error(), Priority: control.AlertWarning},
				})
			}
		}
	}

	if err != nil {
		r = nil
	}
	control.TrySend(p.broker.ToModel, control.MsgToModel{
		RankBuilt: &control.RankBuiltMsg{
			Division:  req.Division,
			RankIndex: req.RankIndex,
			Err:       err,
			Rank:      r,
		},
	})
}
