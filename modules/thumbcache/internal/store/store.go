// Package store implements the bounded filename → thumbnail mapping with
// least-recently-requested eviction, plus the separate negative cache for
// files that failed to decode.
//
// Neither type is safe for concurrent use: both are owned by the supervisor
// goroutine, and the message protocol serializes every client access.
package store

import (
	"sort"
	"time"

	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache/internal/thumb"
)

// Entry is a resident thumbnail and the last time it was requested.
type Entry struct {
	Thumb       *thumb.Thumbnail
	RequestedAt time.Time
}

// Store is the Eviction Store.
//
// requested_at stamps are tracked separately from residency: a preload
// stamps a path before its decode finishes, and that stamp (not the
// collection time) decides its eviction priority once it lands.
type Store struct {
	capacity  int
	entries   map[string]*thumb.Thumbnail
	stamps    map[string]time.Time
	evictions uint64
}

// New creates a Store holding at most capacity entries (capacity >= 1).
func New(capacity int) *Store {
	if capacity < 1 {
		capacity = 1
	}
	return &Store{
		capacity: capacity,
		entries:  make(map[string]*thumb.Thumbnail),
		stamps:   make(map[string]time.Time),
	}
}

// Stamp records that path was requested at t (resident or not).
func (s *Store) Stamp(path string, t time.Time) {
	s.stamps[path] = t
}

// Get returns the resident thumbnail for path and refreshes its stamp to t
// (a cache hit counts as a request).
func (s *Store) Get(path string, t time.Time) (*thumb.Thumbnail, bool) {
	th, ok := s.entries[path]
	if ok {
		s.stamps[path] = t
	}
	return th, ok
}

// Contains reports residency without touching the stamp.
func (s *Store) Contains(path string) bool {
	_, ok := s.entries[path]
	return ok
}

// Insert makes th resident. A path without a stamp is stamped with t;
// an existing stamp (set when the path was requested) is kept.
//
// Insert may leave the store over capacity; call Evict afterwards.
func (s *Store) Insert(th *thumb.Thumbnail, t time.Time) {
	s.entries[th.Path] = th
	if _, ok := s.stamps[th.Path]; !ok {
		s.stamps[th.Path] = t
	}
}

// Evict removes least-recently-requested entries until Len() <= Capacity()
// and returns the evicted paths in eviction order.
//
// Ties on requested_at are broken by filename so eviction is deterministic.
// O(capacity) per removed entry.
func (s *Store) Evict() []string {
	var evicted []string

	for len(s.entries) > s.capacity {
		var (
			victim string
			oldest time.Time
			found  bool
		)

		for path := range s.entries {
			stamp := s.stamps[path]
			if !found || stamp.Before(oldest) || (stamp.Equal(oldest) && path < victim) {
				victim, oldest, found = path, stamp, true
			}
		}

		delete(s.entries, victim)
		delete(s.stamps, victim)
		s.evictions++
		evicted = append(evicted, victim)
	}

	return evicted
}

// PruneStamps drops stamps of non-resident paths for which keep returns false.
// Stamps of resident entries are never dropped.
func (s *Store) PruneStamps(keep func(path string) bool) {
	for path := range s.stamps {
		if _, resident := s.entries[path]; resident {
			continue
		}
		if !keep(path) {
			delete(s.stamps, path)
		}
	}
}

// Len returns the number of resident entries.
func (s *Store) Len() int {
	return len(s.entries)
}

// Capacity returns max_cache_size.
func (s *Store) Capacity() int {
	return s.capacity
}

// Remaining returns how many more entries fit before eviction starts.
func (s *Store) Remaining() int {
	if r := s.capacity - len(s.entries); r > 0 {
		return r
	}
	return 0
}

// Evictions returns the lifetime eviction count.
func (s *Store) Evictions() uint64 {
	return s.evictions
}

// Entries returns the resident entries ordered by requested_at (oldest first).
func (s *Store) Entries() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for path, th := range s.entries {
		out = append(out, Entry{Thumb: th, RequestedAt: s.stamps[path]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].Thumb.Path < out[j].Thumb.Path
		}
		return out[i].RequestedAt.Before(out[j].RequestedAt)
	})
	return out
}

// Clear releases every entry and stamp.
func (s *Store) Clear() {
	s.entries = make(map[string]*thumb.Thumbnail)
	s.stamps = make(map[string]time.Time)
}
