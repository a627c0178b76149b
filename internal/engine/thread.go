package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/emberforge/audiocore/internal/logging"
)

// JobPolicy selects PostJobOrRun's dispatch behavior.
type JobPolicy int

const (
	// PolicyEnqueue always enqueues, even when the caller is already on the
	// audio thread.
	PolicyEnqueue JobPolicy = iota
	// PolicyRunNow invokes the job inline when the caller is already on the
	// audio thread, and enqueues otherwise.
	PolicyRunNow
)

type job struct {
	fn  func()
	tag string
}

// AudioThread is the single dedicated worker described in §4.1: a
// lock-protected FIFO job queue plus a fixed-rate update tick. A job that
// panics is recovered and logged; the tick continues.
type AudioThread struct {
	logger *slog.Logger

	jobs   chan job
	quit   chan struct{}
	done   chan struct{}
	update func(dt time.Duration)

	runningOnThread atomic.Bool
	lastTickSeconds atomic.Uint64 // last tick duration in nanoseconds, for telemetry

	wg         sync.WaitGroup
	fenceGroup singleflight.Group
}

// NewAudioThread creates a thread bound to the given per-tick update
// callback. Start must be called to begin pumping.
func NewAudioThread(update func(dt time.Duration)) *AudioThread {
	logger := logging.ForService("audiocore")
	if logger == nil {
		logger = slog.Default()
	}
	return &AudioThread{
		logger: logger.With("component", "audio_thread"),
		jobs:   make(chan job, jobQueueCapacity),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		update: update,
	}
}

// Start launches the worker goroutine. tickInterval is the fixed update
// period (e.g. the device's natural block period).
func (t *AudioThread) Start(tickInterval time.Duration) {
	t.wg.Add(1)
	go t.run(tickInterval)
}

// Stop drains the job queue once and joins the worker, per §5's shutdown
// discipline.
func (t *AudioThread) Stop() {
	close(t.quit)
	t.wg.Wait()
}

func (t *AudioThread) run(tickInterval time.Duration) {
	defer t.wg.Done()
	defer close(t.done)

	t.runningOnThread.Store(true)
	defer t.runningOnThread.Store(false)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-t.quit:
			t.drainOnce()
			return
		case j := <-t.jobs:
			t.runJob(j)
		case now := <-ticker.C:
			t.drainOnce()
			dt := now.Sub(last)
			last = now
			t.runTick(dt)
		}
	}
}

func (t *AudioThread) drainOnce() {
	for {
		select {
		case j := <-t.jobs:
			t.runJob(j)
		default:
			return
		}
	}
}

func (t *AudioThread) runJob(j job) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("job panicked, continuing tick", "tag", j.tag, "recovered", r)
		}
	}()
	j.fn()
}

func (t *AudioThread) runTick(dt time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("update callback panicked, continuing", "recovered", r)
		}
	}()
	start := time.Now()
	if t.update != nil {
		t.update(dt)
	}
	elapsed := time.Since(start)
	t.lastTickSeconds.Store(uint64(elapsed.Seconds() * 1e9)) // nanosecond-resolution gauge
}

// LastTickDuration returns the most recently measured update() duration,
// published as an atomic for telemetry reads from any thread.
func (t *AudioThread) LastTickDuration() time.Duration {
	return time.Duration(t.lastTickSeconds.Load())
}

// PostJob enqueues a closure to run on the audio thread. Never blocks the
// caller beyond the channel send (game threads must not block on audio
// work; keep jobs cheap to enqueue).
func (t *AudioThread) PostJob(fn func(), tag string) {
	select {
	case t.jobs <- job{fn: fn, tag: tag}:
	case <-t.quit:
	}
}

// PostJobOrRun invokes fn inline if the caller is already on the audio
// thread and policy is PolicyRunNow; otherwise it enqueues as PostJob does.
func (t *AudioThread) PostJobOrRun(policy JobPolicy, fn func(), tag string) {
	if policy == PolicyRunNow && t.runningOnThread.Load() {
		fn()
		return
	}
	t.PostJob(fn, tag)
}

// Fence blocks the caller until every job enqueued before this call has
// executed. A burst of concurrent Fence calls (e.g. several game threads
// fencing around the same frame boundary) is coalesced through fenceGroup
// into a single posted job rather than one per caller; each caller still
// bounds its own wait on ctx independently of the others.
func (t *AudioThread) Fence(ctx context.Context) error {
	resultCh := t.fenceGroup.DoChan("fence", func() (any, error) {
		reached := make(chan struct{})
		t.PostJob(func() { close(reached) }, "fence")
		select {
		case <-reached:
			return nil, nil
		case <-t.done:
			return nil, nil
		}
	})

	select {
	case res := <-resultCh:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return nil
	}
}
