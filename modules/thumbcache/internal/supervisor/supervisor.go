// Package supervisor implements the coordination loop that owns the worker
// pool, the preload queue and the eviction store.
//
// This package is INTERNAL - clients MUST use the public API in the parent
// package (or speak the protocol to a `thumbcache serve` process).
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	platformerrors "github.com/jmgilman/go/errors"

	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache/internal/protocol"
	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache/internal/store"
	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache/internal/thumb"
	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache/internal/worker"
)

// Defaults applied by Options.withDefaults.
const (
	DefaultWorkers       = 16
	DefaultMaxCacheSize  = 32
	DefaultIdleTick      = 50 * time.Millisecond
	DefaultNegativeTTL   = 30 * time.Second
	DefaultNegativeLimit = 256
)

// ErrStopped is the reason attached to fetches that could not be served
// because the supervisor was shutting down.
var ErrStopped = platformerrors.New(platformerrors.CodeUnavailable, "supervisor stopped before the fetch was served")

// NegativeOptions configures caching of unavailable results.
type NegativeOptions struct {
	Policy     store.NegativePolicy
	TTL        time.Duration
	MaxEntries int
}

// Options configures a Supervisor. Zero values take the defaults above.
type Options struct {
	// Workers is the preload pool size (the on-demand worker is extra).
	Workers int

	// MaxCacheSize bounds the eviction store.
	MaxCacheSize int

	// IdleTick bounds how long an idle loop sleeps without a wake-up.
	IdleTick time.Duration

	// Decoder turns a filename into a thumbnail. Default: thumb.FileDecoder.
	Decoder thumb.Decoder

	Negative NegativeOptions

	Logger *slog.Logger

	// Now is the requested_at clock. Default: time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Workers < 1 {
		o.Workers = DefaultWorkers
	}
	if o.MaxCacheSize < 1 {
		o.MaxCacheSize = DefaultMaxCacheSize
	}
	if o.IdleTick <= 0 {
		o.IdleTick = DefaultIdleTick
	}
	if o.Decoder == nil {
		o.Decoder = thumb.FileDecoder{}
	}
	if o.Negative.TTL <= 0 {
		o.Negative.TTL = DefaultNegativeTTL
	}
	if o.Negative.MaxEntries < 1 {
		o.Negative.MaxEntries = DefaultNegativeLimit
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Supervisor is the single coordinating loop.
//
// Goroutine topology:
//   - 1 loop goroutine (spawned by Start, exits on Quit, ctx or violation)
//   - N pool workers + 1 on-demand worker (spawned by Start, joined on exit)
//
// Every field below the mailboxes is owned by the loop goroutine. Clients
// reach them only through Send/Receive, which is the synchronization
// boundary; no other locking is involved.
type Supervisor struct {
	opts   Options
	logger *slog.Logger

	// --- Protocol channels ---

	inbox  *protocol.Mailbox[protocol.Request]
	outbox *protocol.Mailbox[protocol.Response]

	// --- Workers ---

	notify   chan struct{} // cap 1, shared by every worker
	pool     []*worker.Worker
	onDemand *worker.Worker

	// --- Loop-owned state ---

	queue     []string                  // preload queue, served from the end
	store     *store.Store              // eviction store
	negatives *store.NegativeCache      // unavailable results
	inflight  map[string]*worker.Worker // path → worker decoding it
	waiters   map[string][]string       // path → Fetch IDs awaiting its result
	pending   []string                  // fetch paths waiting for the on-demand worker
	running   bool
	counters  counters

	// --- Lifecycle ---

	startedMu sync.Mutex
	started   bool
	done      chan struct{}
	err       error // terminal error, written before done is closed
}

// counters are lifetime totals reported in Status.
type counters struct {
	hits         uint64
	misses       uint64
	negativeHits uint64
}

// New creates a supervisor. Call Start to run it.
func New(opts Options) *Supervisor {
	opts = opts.withDefaults()

	return &Supervisor{
		opts:      opts,
		logger:    opts.Logger.With("component", "supervisor"),
		inbox:     protocol.NewMailbox[protocol.Request](),
		outbox:    protocol.NewMailbox[protocol.Response](),
		notify:    make(chan struct{}, 1),
		store:     store.New(opts.MaxCacheSize),
		negatives: store.NewNegativeCache(opts.Negative.Policy, opts.Negative.MaxEntries, opts.Negative.TTL),
		inflight:  make(map[string]*worker.Worker),
		waiters:   make(map[string][]string),
		done:      make(chan struct{}),
	}
}

// Start spawns the workers and the loop goroutine, then returns.
//
// The loop runs until a Quit request, ctx cancellation or a protocol
// violation; Done is closed once every worker has been joined.
func (s *Supervisor) Start(ctx context.Context) error {
	s.startedMu.Lock()
	defer s.startedMu.Unlock()

	if s.started {
		return fmt.Errorf("supervisor already started")
	}
	s.started = true

	s.pool = make([]*worker.Worker, s.opts.Workers)
	for i := range s.pool {
		id := fmt.Sprintf("pool-%d", i)
		s.pool[i] = worker.New(id, s.opts.Decoder, s.notify, s.opts.Logger)
	}
	s.onDemand = worker.New("on-demand", s.opts.Decoder, s.notify, s.opts.Logger)
	s.running = true

	s.logger.Info("supervisor started",
		"workers", s.opts.Workers,
		"max_cache_size", s.opts.MaxCacheSize,
		"negative_policy", s.negatives.Policy().String())

	go s.loop(ctx)

	return nil
}

// Send delivers a request to the loop. Never blocks; returns
// protocol.ErrClosed once the supervisor stopped accepting requests.
func (s *Supervisor) Send(req protocol.Request) error {
	if req == nil {
		return protocol.Violation("nil request")
	}
	return s.inbox.Send(req)
}

// Receive blocks for the next response. After shutdown, responses already
// queued are still delivered before protocol.ErrClosed.
func (s *Supervisor) Receive(ctx context.Context) (protocol.Response, error) {
	return s.outbox.Receive(ctx)
}

// Stop sends Quit and waits for full teardown. Idempotent.
func (s *Supervisor) Stop() error {
	s.startedMu.Lock()
	started := s.started
	s.startedMu.Unlock()

	if !started {
		s.inbox.Close()
		s.outbox.Close()
		return nil
	}

	_ = s.inbox.Send(protocol.Quit{}) // ErrClosed: already stopping
	<-s.done

	return s.err
}

// Done is closed after the loop exited and every worker terminated.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// Err returns why the loop exited: nil after Quit, a wrapped
// protocol.ErrProtocolViolation or the context error. Valid after Done.
func (s *Supervisor) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// loop is the coordination goroutine.
//
// Algorithm, per iteration:
//  1. Intake: drain pending requests without blocking
//  2. Dispatch: hand queued paths to idle workers (LIFO)
//  3. Collect: move finished results into the store, answer waiting fetches
//  4. Evict: trim the store back to capacity
//  5. Idle: block on a request, a worker completion, ctx or the idle tick
func (s *Supervisor) loop(ctx context.Context) {
	defer close(s.done)

	tick := time.NewTimer(s.opts.IdleTick)
	defer tick.Stop()

	for s.running {
		s.intake()
		if !s.running {
			break
		}

		s.dispatch()
		s.collect()
		s.evict()

		tick.Reset(s.opts.IdleTick)
		select {
		case <-s.inbox.Ready():
		case <-s.notify:
		case <-tick.C:
		case <-ctx.Done():
			s.logger.Info("supervisor context cancelled", "error", ctx.Err())
			s.err = ctx.Err()
			s.running = false
		}
	}

	s.shutdown()
}

// shutdown joins every worker, answers whatever is still outstanding and
// releases the store and queue.
func (s *Supervisor) shutdown() {
	s.inbox.Close()

	// Cooperative: each Shutdown lets the in-flight decode finish. Signal
	// every worker first, then join them.
	workers := s.workers()
	for _, w := range workers {
		go w.Shutdown()
	}
	for _, w := range workers {
		<-w.Stopped()
	}

	// Fetches waiting on a job that finished during shutdown still get the
	// real result.
	s.collect()

	for path, ids := range s.waiters {
		res := thumb.UnavailableFrom(path, ErrStopped)
		for _, id := range ids {
			s.reply(protocol.Result{ID: id, Entry: res})
		}
	}
	s.waiters = map[string][]string{}
	s.pending = nil
	s.queue = nil

	// Requests that raced with Quit are answered rather than left hanging.
	for _, req := range s.inbox.Drain() {
		s.reject(req)
	}

	stats := s.status()
	for _, e := range s.store.Entries() {
		s.logger.Debug("releasing entry", "path", e.Thumb.Path, "requested_at", e.RequestedAt)
	}
	s.store.Clear()
	s.negatives.Purge()
	s.outbox.Close()

	s.logger.Info("supervisor stopped",
		"hits", stats.Hits,
		"misses", stats.Misses,
		"decodes", stats.Decodes,
		"evictions", stats.Evictions)
}

// reply queues a response; the outbox only rejects after shutdown closes it.
func (s *Supervisor) reply(resp protocol.Response) {
	if err := s.outbox.Send(resp); err != nil {
		s.logger.Warn("dropping response", "request_id", resp.RequestID(), "error", err)
	}
}
