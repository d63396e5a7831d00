// Package protocol defines the tagged request/response contract between a
// cache handle and its supervisor, the mailboxes that carry it in-process and
// the msgpack framing that carries it between processes.
//
// Requests and responses are closed sets: each concrete type implements an
// unexported marker method, so a switch over them is exhaustive within this
// module and anything else arriving off the wire is a protocol violation.
package protocol

import (
	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache/internal/thumb"
)

// Tag names a message variant on the wire.
type Tag string

const (
	TagFetch        Tag = "fetch"
	TagPreload      Tag = "preload"
	TagCheckStatus  Tag = "check_status"
	TagQuit         Tag = "quit"
	TagResult       Tag = "result"
	TagStatusReport Tag = "status_report"
)

// Message is any protocol message.
type Message interface {
	Tag() Tag
}

// Request is a client → supervisor message.
type Request interface {
	Message
	isRequest()
}

// Response is a supervisor → client message. RequestID echoes the ID of the
// request it answers.
type Response interface {
	Message
	RequestID() string
	isResponse()
}

// Fetch asks for one thumbnail; answered by exactly one Result.
type Fetch struct {
	ID   string `msgpack:"id"`
	Path string `msgpack:"path"`
}

// Preload replaces the preload queue. No response.
type Preload struct {
	Paths []string `msgpack:"paths"`
}

// CheckStatus asks for a status snapshot; answered by exactly one StatusReport.
type CheckStatus struct {
	ID string `msgpack:"id"`
}

// Quit stops the supervisor. No response.
type Quit struct{}

// Result answers a Fetch.
type Result struct {
	ID    string       `msgpack:"id"`
	Entry thumb.Result `msgpack:"entry"`
}

// StatusReport answers a CheckStatus.
type StatusReport struct {
	ID     string `msgpack:"id"`
	Status Status `msgpack:"status"`
}

func (Fetch) Tag() Tag        { return TagFetch }
func (Preload) Tag() Tag      { return TagPreload }
func (CheckStatus) Tag() Tag  { return TagCheckStatus }
func (Quit) Tag() Tag         { return TagQuit }
func (Result) Tag() Tag       { return TagResult }
func (StatusReport) Tag() Tag { return TagStatusReport }

func (Fetch) isRequest()       {}
func (Preload) isRequest()     {}
func (CheckStatus) isRequest() {}
func (Quit) isRequest()        {}

func (Result) isResponse()       {}
func (StatusReport) isResponse() {}

// RequestID returns the ID of the Fetch being answered.
func (r Result) RequestID() string { return r.ID }

// RequestID returns the ID of the CheckStatus being answered.
func (r StatusReport) RequestID() string { return r.ID }

// Status is a snapshot of supervisor state.
type Status struct {
	// ActiveWorkers counts workers decoding or holding an uncollected result,
	// the on-demand worker included.
	ActiveWorkers int `msgpack:"active_workers" json:"active_workers"`

	// QueueDepth is the number of preload paths not yet dispatched.
	QueueDepth int `msgpack:"queue_depth" json:"queue_depth"`

	// CacheSize is the number of resident entries.
	CacheSize int `msgpack:"cache_size" json:"cache_size"`

	// Capacity is max_cache_size.
	Capacity int `msgpack:"capacity" json:"capacity"`

	// CapacityRemaining is Capacity - CacheSize (never negative).
	CapacityRemaining int `msgpack:"capacity_remaining" json:"capacity_remaining"`

	// Done is QueueDepth == 0 && ActiveWorkers == 0.
	Done bool `msgpack:"done" json:"done"`

	// NegativeEntries is the number of remembered unavailable files.
	NegativeEntries int `msgpack:"negative_entries" json:"negative_entries"`

	// Lifetime counters.
	Hits               uint64 `msgpack:"hits" json:"hits"`
	Misses             uint64 `msgpack:"misses" json:"misses"`
	Decodes            uint64 `msgpack:"decodes" json:"decodes"`
	Evictions          uint64 `msgpack:"evictions" json:"evictions"`
	NegativeHits       uint64 `msgpack:"negative_hits" json:"negative_hits"`
	PreloadsSuperseded uint64 `msgpack:"preloads_superseded" json:"preloads_superseded"`
}
