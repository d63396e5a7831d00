package thumbcache

import (
	"context"
	"log/slog"
	"time"

	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache/internal/ipc"
	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache/internal/protocol"
	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache/internal/store"
	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache/internal/supervisor"
	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache/internal/thumb"
)

// Thumbnail is re-exported from the internal thumb package.
// See internal/thumb/thumbnail.go for full documentation.
type Thumbnail = thumb.Thumbnail

// Result is a Thumbnail or the unavailable marker (Thumb == nil, Code and
// Reason set).
type Result = thumb.Result

// Status is a supervisor snapshot. Done is QueueDepth == 0 && ActiveWorkers == 0.
type Status = protocol.Status

// Decoder turns a filename into a Thumbnail. Inject one to count, slow or
// fake decodes.
type Decoder = thumb.Decoder

// DecoderFunc adapts a function to Decoder.
type DecoderFunc = thumb.DecoderFunc

// FileDecoder is the default Decoder (image file → 600×600 RGB canvas).
type FileDecoder = thumb.FileDecoder

// NegativePolicy selects how unavailable results are cached.
type NegativePolicy = store.NegativePolicy

const (
	// NegativeTTL remembers unavailable files for NegativeTTL (default).
	NegativeTTL = store.NegativeTTL
	// NegativeNever re-decodes unavailable files on every request.
	NegativeNever = store.NegativeNever
)

// CanvasSize is the width and height of every thumbnail canvas.
const CanvasSize = thumb.CanvasSize

// Codes carried by unavailable results.
const (
	CodeFileMissing  = string(thumb.CodeFileMissing)
	CodeDecodeFailed = string(thumb.CodeDecodeFailed)
	CodeWorkerFault  = string(thumb.CodeWorkerFault)
)

var (
	// ErrClosed is returned by every call after Quit or once the supervisor
	// is gone.
	ErrClosed = protocol.ErrClosed

	// ErrProtocolViolation is returned when an unknown tag or an unmatched
	// response was seen. The handle is unusable afterwards; call Quit.
	ErrProtocolViolation = protocol.ErrProtocolViolation
)

// Cache is the client-facing handle to a supervisor.
//
// Lifecycle: New()/Spawn() → Fetch/Preload/CheckStatus → Quit()
//
// Thread-safety: all methods are safe for concurrent use. Fetch and
// CheckStatus are strict request/response pairs, so concurrent callers are
// serialized (one request in flight per handle).
type Cache interface {
	// Fetch returns the thumbnail for path, decoding it on a dedicated
	// worker on a cache miss. Blocks for at most one decode; never waits
	// behind preload work.
	//
	// A file that cannot be decoded yields an unavailable Result, not an
	// error. Errors are reserved for ctx cancellation, ErrClosed and
	// ErrProtocolViolation. A fetch abandoned through ctx still completes
	// in the supervisor and warms the cache.
	Fetch(ctx context.Context, path string) (Result, error)

	// Preload replaces the preload queue with paths; the last path is
	// decoded first. Never blocks. An unconsumed earlier Preload is
	// superseded.
	Preload(paths []string) error

	// CheckStatus returns a snapshot of the supervisor.
	CheckStatus(ctx context.Context) (Status, error)

	// Quit stops the supervisor and every worker, letting in-flight decodes
	// finish, and blocks until teardown completes. Idempotent.
	Quit() error
}

// Options configures an in-process cache. Zero values take defaults:
// 16 workers, 32 entries, 50ms idle tick, FileDecoder, 30s/256 negatives.
type Options struct {
	Workers            int
	MaxCacheSize       int
	IdleTick           time.Duration
	Decoder            Decoder
	NegativePolicy     NegativePolicy
	NegativeTTL        time.Duration
	NegativeMaxEntries int
	Logger             *slog.Logger
}

// New starts an in-process supervisor and returns a handle to it.
//
// The supervisor runs until Quit or ctx cancellation.
func New(ctx context.Context, opts Options) (Cache, error) {
	sup := supervisor.New(supervisor.Options{
		Workers:      opts.Workers,
		MaxCacheSize: opts.MaxCacheSize,
		IdleTick:     opts.IdleTick,
		Decoder:      opts.Decoder,
		Negative: supervisor.NegativeOptions{
			Policy:     opts.NegativePolicy,
			TTL:        opts.NegativeTTL,
			MaxEntries: opts.NegativeMaxEntries,
		},
		Logger: opts.Logger,
	})
	if err := sup.Start(ctx); err != nil {
		return nil, err
	}
	return newHandle(localTransport{sup}, opts.Logger), nil
}

// SpawnOptions is re-exported from the internal ipc package.
// See internal/ipc/client.go for full documentation.
type SpawnOptions = ipc.SpawnOptions

// Spawn starts `thumbcache serve` as a child process and returns a handle
// speaking the protocol over its stdin/stdout. Child logs are forwarded to
// opts.Logger. Quit waits for the child to exit.
func Spawn(ctx context.Context, opts SpawnOptions) (Cache, error) {
	client, err := ipc.Spawn(ctx, opts)
	if err != nil {
		return nil, err
	}
	return newHandle(client, opts.Logger), nil
}

// localTransport adapts an in-process supervisor.
type localTransport struct {
	*supervisor.Supervisor
}

func (l localTransport) Close() error {
	return l.Stop()
}
