package store

import (
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache/internal/thumb"
)

// NegativePolicy decides whether unavailable results are remembered.
type NegativePolicy int

const (
	// NegativeTTL remembers unavailable results for a bounded time, so a
	// repeated fetch of a missing file does not decode again until expiry.
	NegativeTTL NegativePolicy = iota
	// NegativeNever retries the decode on every request.
	NegativeNever
)

// String returns the config spelling of the policy.
func (p NegativePolicy) String() string {
	switch p {
	case NegativeTTL:
		return "ttl"
	case NegativeNever:
		return "never"
	default:
		return "unknown"
	}
}

// ParseNegativePolicy parses "ttl" or "never".
func ParseNegativePolicy(s string) (NegativePolicy, error) {
	switch s {
	case "ttl", "":
		return NegativeTTL, nil
	case "never":
		return NegativeNever, nil
	default:
		return 0, fmt.Errorf("unknown negative cache mode %q (must be 'ttl' or 'never')", s)
	}
}

// NegativeCache remembers unavailable results outside the Eviction Store, so
// failed files never take capacity from real thumbnails.
type NegativeCache struct {
	policy NegativePolicy
	lru    *expirable.LRU[string, thumb.Result]
}

// NewNegativeCache creates a negative cache. maxEntries bounds memory; ttl
// is the per-entry lifetime. Both are ignored under NegativeNever.
func NewNegativeCache(policy NegativePolicy, maxEntries int, ttl time.Duration) *NegativeCache {
	n := &NegativeCache{policy: policy}
	if policy == NegativeTTL {
		if maxEntries < 1 {
			maxEntries = 1
		}
		n.lru = expirable.NewLRU[string, thumb.Result](maxEntries, nil, ttl)
	}
	return n
}

// Policy returns the configured policy.
func (n *NegativeCache) Policy() NegativePolicy {
	return n.policy
}

// Record remembers an unavailable result. Available results are ignored.
func (n *NegativeCache) Record(res thumb.Result) {
	if n.lru == nil || !res.Unavailable() {
		return
	}
	n.lru.Add(res.Path, res)
}

// Lookup returns the remembered unavailable result for path, if unexpired.
func (n *NegativeCache) Lookup(path string) (thumb.Result, bool) {
	if n.lru == nil {
		return thumb.Result{}, false
	}
	return n.lru.Get(path)
}

// Forget drops path (e.g. after it decoded successfully).
func (n *NegativeCache) Forget(path string) {
	if n.lru != nil {
		n.lru.Remove(path)
	}
}

// Len returns the number of remembered failures.
func (n *NegativeCache) Len() int {
	if n.lru == nil {
		return 0
	}
	return n.lru.Len()
}

// Purge drops every remembered failure.
func (n *NegativeCache) Purge() {
	if n.lru != nil {
		n.lru.Purge()
	}
}
