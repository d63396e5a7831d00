package supervisor

import (
	"time"

	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache/internal/protocol"
	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache/internal/thumb"
)

// intake handles every queued request without blocking. Requests drained
// after a Quit are rejected.
func (s *Supervisor) intake() {
	for _, req := range s.inbox.Drain() {
		if !s.running {
			s.reject(req)
			continue
		}
		s.handle(req)
	}
}

// reject answers a request that arrived after Quit: fetches get the
// unavailable marker, status checks the current snapshot.
func (s *Supervisor) reject(req protocol.Request) {
	switch r := req.(type) {
	case protocol.Fetch:
		s.reply(protocol.Result{ID: r.ID, Entry: thumb.UnavailableFrom(r.Path, ErrStopped)})
	case protocol.CheckStatus:
		s.reply(protocol.StatusReport{ID: r.ID, Status: s.status()})
	}
}

func (s *Supervisor) handle(req protocol.Request) {
	switch r := req.(type) {
	case protocol.Fetch:
		s.fetch(r)
	case protocol.Preload:
		s.preload(r.Paths)
	case protocol.CheckStatus:
		s.reply(protocol.StatusReport{ID: r.ID, Status: s.status()})
	case protocol.Quit:
		s.logger.Info("quit requested",
			"queue_depth", len(s.queue),
			"in_flight", len(s.inflight),
			"unread_requests", s.inbox.Len())
		s.running = false
	default:
		err := protocol.Violation("unrecognized request %T", req)
		s.logger.Error("protocol violation on request channel",
			"request", req,
			"error", err,
			"action", "stopping supervisor")
		s.err = err
		s.running = false
	}
}

// fetch answers a hit immediately; a miss is decoded by the on-demand worker
// unless the path is already being decoded, in which case the fetch waits on
// that job.
func (s *Supervisor) fetch(f protocol.Fetch) {
	now := s.opts.Now()

	if th, ok := s.store.Get(f.Path, now); ok {
		s.counters.hits++
		s.reply(protocol.Result{ID: f.ID, Entry: thumb.Available(th)})
		return
	}

	if res, ok := s.negatives.Lookup(f.Path); ok {
		s.counters.negativeHits++
		s.reply(protocol.Result{ID: f.ID, Entry: res})
		return
	}

	s.counters.misses++
	s.dequeue(f.Path)
	s.store.Stamp(f.Path, now)
	s.waiters[f.Path] = append(s.waiters[f.Path], f.ID)

	if _, ok := s.inflight[f.Path]; ok {
		s.logger.Debug("fetch joins in-flight decode", "path", f.Path, "request_id", f.ID)
		return
	}
	for _, p := range s.pending {
		if p == f.Path {
			return
		}
	}

	if !s.submit(s.onDemand, f.Path) {
		s.pending = append(s.pending, f.Path)
	}
}

// preload replaces the queue. Later entries in paths are more recent: they
// are dispatched first and, stamped later, evicted last.
func (s *Supervisor) preload(paths []string) {
	now := s.opts.Now()
	base := now.Add(-time.Duration(len(paths)) * time.Nanosecond)

	s.queue = s.queue[:0]
	for i, path := range paths {
		at := base.Add(time.Duration(i+1) * time.Nanosecond)

		if s.store.Contains(path) {
			s.store.Stamp(path, at)
			continue
		}
		if _, ok := s.inflight[path]; ok {
			s.store.Stamp(path, at)
			continue
		}
		if _, ok := s.waiters[path]; ok {
			// A fetch waiting for the on-demand worker owns the decode.
			s.store.Stamp(path, at)
			continue
		}
		if _, ok := s.negatives.Lookup(path); ok {
			continue
		}

		s.store.Stamp(path, at)
		s.queue = append(s.queue, path)
	}

	queued := make(map[string]struct{}, len(s.queue))
	for _, path := range s.queue {
		queued[path] = struct{}{}
	}
	s.store.PruneStamps(func(path string) bool {
		if _, ok := queued[path]; ok {
			return true
		}
		if _, ok := s.inflight[path]; ok {
			return true
		}
		_, ok := s.waiters[path]
		return ok
	})

	s.logger.Debug("preload queue replaced", "requested", len(paths), "queued", len(s.queue))
}

// dequeue removes path from the preload queue.
func (s *Supervisor) dequeue(path string) {
	for i, p := range s.queue {
		if p == path {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}
