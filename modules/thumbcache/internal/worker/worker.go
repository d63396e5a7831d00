// Package worker runs one decode job at a time on a dedicated goroutine.
//
// A Worker is a tiny state machine driven by its owner (the supervisor):
//
//	Idle --Submit--> Busy --decode done--> Done --TakeResult--> Idle
//
// Completion is announced on a shared notify channel so the owner can block
// instead of polling.
package worker

import (
	"log/slog"
	"sync"
	"sync/atomic"

	platformerrors "github.com/jmgilman/go/errors"

	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache/internal/thumb"
)

// State is the lifecycle state of a Worker.
type State int32

const (
	// Idle accepts a job.
	Idle State = iota
	// Busy is decoding.
	Busy
	// Done holds a result waiting for TakeResult.
	Done
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Busy:
		return "busy"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

var (
	// ErrNotIdle is returned by Submit when the worker already has a job.
	ErrNotIdle = platformerrors.New(platformerrors.CodeConflict, "worker: not idle")

	// ErrNoResult is returned by TakeResult before the job finished.
	ErrNoResult = platformerrors.New(platformerrors.CodeConflict, "worker: no result ready")

	// ErrStopped is returned by Submit after Shutdown.
	ErrStopped = platformerrors.New(platformerrors.CodeUnavailable, "worker: stopped")
)

// Stats is a snapshot of worker counters.
type Stats struct {
	ID      string
	State   State
	Job     string
	Decodes uint64
	Faults  uint64
}

// Worker decodes one file at a time.
//
// Thread-safety: Submit/TakeResult/probes are safe to call from the owner
// goroutine while the worker goroutine runs; all shared fields sit behind mu.
type Worker struct {
	id      string
	decoder thumb.Decoder
	notify  chan<- struct{}
	logger  *slog.Logger

	mu       sync.Mutex
	state    State
	job      string
	result   thumb.Result
	stopping bool

	jobs    chan string // cap 1: at most one outstanding job
	quit    chan struct{}
	stopped chan struct{}
	once    sync.Once

	decodes atomic.Uint64
	faults  atomic.Uint64
}

// New creates a worker and starts its goroutine.
//
// notify receives a non-blocking signal every time a job completes; it may be
// shared between workers (signals coalesce, the owner rescans all workers).
func New(id string, decoder thumb.Decoder, notify chan<- struct{}, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}

	w := &Worker{
		id:      id,
		decoder: decoder,
		notify:  notify,
		logger:  logger,
		jobs:    make(chan string, 1),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	go w.run()

	return w
}

// ID returns the worker ID.
func (w *Worker) ID() string {
	return w.id
}

// Submit hands path to the worker. Precondition: the worker is Idle.
func (w *Worker) Submit(path string) error {
	w.mu.Lock()
	if w.stopping {
		w.mu.Unlock()
		return ErrStopped
	}
	if w.state != Idle {
		w.mu.Unlock()
		return ErrNotIdle
	}
	w.state = Busy
	w.job = path
	// Never blocks: jobs is empty whenever the worker is Idle. Sending under
	// mu orders the job before a concurrent Shutdown closes quit.
	w.jobs <- path
	w.mu.Unlock()

	return nil
}

// IsIdle reports whether the worker accepts a job.
func (w *Worker) IsIdle() bool {
	return w.State() == Idle
}

// HasResult reports whether a finished result is waiting.
func (w *Worker) HasResult() bool {
	return w.State() == Done
}

// State returns the current state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Job returns the filename being decoded or held as a result ("" when Idle).
func (w *Worker) Job() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.job
}

// TakeResult returns the finished result and resets the worker to Idle.
func (w *Worker) TakeResult() (thumb.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != Done {
		return thumb.Result{}, ErrNoResult
	}

	res := w.result
	w.result = thumb.Result{}
	w.job = ""
	w.state = Idle

	return res, nil
}

// Shutdown stops the worker goroutine. A job already submitted is allowed to
// finish first; its result stays available through TakeResult.
//
// Blocks until the goroutine exits. Idempotent.
func (w *Worker) Shutdown() {
	w.once.Do(func() {
		w.mu.Lock()
		w.stopping = true
		w.mu.Unlock()
		close(w.quit)
	})
	<-w.stopped
}

// Stopped is closed once the worker goroutine has exited.
func (w *Worker) Stopped() <-chan struct{} {
	return w.stopped
}

// Stats returns a snapshot of the worker counters.
func (w *Worker) Stats() Stats {
	w.mu.Lock()
	state, job := w.state, w.job
	w.mu.Unlock()

	return Stats{
		ID:      w.id,
		State:   state,
		Job:     job,
		Decodes: w.decodes.Load(),
		Faults:  w.faults.Load(),
	}
}

func (w *Worker) run() {
	defer close(w.stopped)

	for {
		select {
		case path := <-w.jobs:
			w.process(path)

		case <-w.quit:
			// Cooperative stop: finish a job that was already handed over.
			select {
			case path := <-w.jobs:
				w.process(path)
			default:
			}
			return
		}
	}
}

func (w *Worker) process(path string) {
	res := w.decode(path)

	w.mu.Lock()
	w.result = res
	w.state = Done
	w.mu.Unlock()

	if w.notify != nil {
		select {
		case w.notify <- struct{}{}:
		default:
			// A wake-up is already pending; the owner rescans every worker.
		}
	}
}

// decode runs the decoder and converts every failure, panics included, into
// the unavailable marker.
func (w *Worker) decode(path string) (res thumb.Result) {
	defer func() {
		if r := recover(); r != nil {
			w.faults.Add(1)
			err := platformerrors.Newf(thumb.CodeWorkerFault, "decoder panic on %s: %v", path, r)
			w.logger.Error("worker fault while decoding",
				"worker_id", w.id,
				"path", path,
				"panic", r,
				"action", "returning unavailable marker")
			res = thumb.UnavailableFrom(path, err)
		}
	}()

	w.decodes.Add(1)

	t, err := w.decoder.Decode(path)
	if err != nil {
		w.logger.Warn("decode failed",
			"worker_id", w.id,
			"path", path,
			"code", thumb.CodeOf(err),
			"error", err)
		return thumb.UnavailableFrom(path, err)
	}
	if t == nil {
		err := platformerrors.Newf(thumb.CodeDecodeFailed, "decoder returned no thumbnail for %s", path)
		w.logger.Warn("decode failed", "worker_id", w.id, "path", path, "error", err)
		return thumb.UnavailableFrom(path, err)
	}
	if t.Path == "" {
		t.Path = path
	}

	w.logger.Debug("decoded", "worker_id", w.id, "path", path, "width", t.Width, "height", t.Height)
	res = thumb.Available(t)
	res.Path = path
	return res
}
