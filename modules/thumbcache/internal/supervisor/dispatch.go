package supervisor

import (
	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache/internal/protocol"
	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache/internal/worker"
)

// dispatch hands work to idle workers: pending fetches to the on-demand
// worker, the preload queue (LIFO) to the pool.
func (s *Supervisor) dispatch() {
	for len(s.pending) > 0 {
		path := s.pending[0]

		// Already decoding elsewhere (its waiters join that job) or already
		// answered: nothing left to submit.
		_, running := s.inflight[path]
		_, awaited := s.waiters[path]
		if running || !awaited {
			s.pending = s.pending[1:]
			continue
		}

		if !s.onDemand.IsIdle() || !s.submit(s.onDemand, path) {
			break
		}
		s.pending = s.pending[1:]
	}

	for _, w := range s.pool {
		if !w.IsIdle() {
			continue
		}
		for len(s.queue) > 0 {
			path := s.queue[len(s.queue)-1]
			s.queue = s.queue[:len(s.queue)-1]

			if s.skip(path) {
				continue
			}
			if s.submit(w, path) {
				break
			}
		}
	}
}

// skip reports whether a queued path no longer needs decoding, or is
// owned by a fetch (in flight or waiting for the on-demand worker).
func (s *Supervisor) skip(path string) bool {
	if s.store.Contains(path) {
		return true
	}
	if _, ok := s.inflight[path]; ok {
		return true
	}
	if _, ok := s.waiters[path]; ok {
		return true
	}
	_, ok := s.negatives.Lookup(path)
	return ok
}

// submit hands path to w and records it as in flight.
func (s *Supervisor) submit(w *worker.Worker, path string) bool {
	if err := w.Submit(path); err != nil {
		s.logger.Debug("worker rejected job",
			"worker_id", w.ID(),
			"path", path,
			"current_job", w.Job(),
			"error", err)
		return false
	}
	s.inflight[path] = w
	return true
}

// collect moves every finished result into the store (or the negative cache)
// and answers the fetches waiting on it.
func (s *Supervisor) collect() {
	for _, w := range s.workers() {
		s.collectFrom(w)
	}
}

func (s *Supervisor) collectFrom(w *worker.Worker) {
	if !w.HasResult() {
		return
	}
	res, err := w.TakeResult()
	if err != nil {
		return
	}
	if s.inflight[res.Path] == w {
		delete(s.inflight, res.Path)
	}

	if res.Unavailable() {
		s.negatives.Record(res)
	} else {
		s.negatives.Forget(res.Path)
		s.store.Insert(res.Thumb, s.opts.Now())
	}

	ids := s.waiters[res.Path]
	delete(s.waiters, res.Path)
	for _, id := range ids {
		s.reply(protocol.Result{ID: id, Entry: res})
	}
}

// evict trims the store back to capacity.
func (s *Supervisor) evict() {
	for _, path := range s.store.Evict() {
		s.logger.Debug("evicted", "path", path)
	}
}

// activeWorkers counts workers decoding or holding an uncollected result.
func (s *Supervisor) activeWorkers() int {
	active := 0
	for _, w := range s.workers() {
		if !w.IsIdle() {
			active++
		}
	}
	return active
}
