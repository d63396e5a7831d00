package supervisor

import (
	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache/internal/protocol"
	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache/internal/worker"
)

// status builds the snapshot reported to CheckStatus.
//
// Runs on the loop goroutine, so it is consistent with the store and queue;
// worker states are read under each worker's lock and may advance a moment
// later (a Busy worker becoming Done is still counted as active).
func (s *Supervisor) status() protocol.Status {
	active := s.activeWorkers()
	depth := len(s.queue)

	return protocol.Status{
		ActiveWorkers:      active,
		QueueDepth:         depth,
		CacheSize:          s.store.Len(),
		Capacity:           s.store.Capacity(),
		CapacityRemaining:  s.store.Remaining(),
		Done:               depth == 0 && active == 0,
		NegativeEntries:    s.negatives.Len(),
		Hits:               s.counters.hits,
		Misses:             s.counters.misses,
		Decodes:            s.decodes(),
		Evictions:          s.store.Evictions(),
		NegativeHits:       s.counters.negativeHits,
		PreloadsSuperseded: s.inbox.Superseded(),
	}
}

// decodes sums decode attempts across every worker.
func (s *Supervisor) decodes() uint64 {
	var total uint64
	for _, w := range s.workers() {
		total += w.Stats().Decodes
	}
	return total
}

// workers returns the pool followed by the on-demand worker.
func (s *Supervisor) workers() []*worker.Worker {
	all := make([]*worker.Worker, 0, len(s.pool)+1)
	all = append(all, s.pool...)
	if s.onDemand != nil {
		all = append(all, s.onDemand)
	}
	return all
}
