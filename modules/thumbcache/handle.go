package thumbcache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache/internal/protocol"
)

// transport carries requests to a supervisor and responses back.
type transport interface {
	Send(protocol.Request) error
	Receive(context.Context) (protocol.Response, error)
	Close() error
}

// handle implements Cache on top of a transport.
//
// Correlation: every Fetch/CheckStatus carries a fresh UUID and responses
// echo it. A response for a request abandoned through ctx is discarded; any
// other mismatch is a protocol violation that breaks the handle and stops
// the supervisor.
type handle struct {
	t      transport
	logger *slog.Logger

	mu        sync.Mutex // held for a whole round trip
	abandoned map[string]struct{}
	broken    error

	closed   atomic.Bool
	quitOnce sync.Once
	quitErr  error
}

func newHandle(t transport, logger *slog.Logger) *handle {
	if logger == nil {
		logger = slog.Default()
	}
	return &handle{
		t:         t,
		logger:    logger.With("component", "thumbcache"),
		abandoned: make(map[string]struct{}),
	}
}

func (h *handle) Fetch(ctx context.Context, path string) (Result, error) {
	id := uuid.NewString()

	resp, err := h.roundTrip(ctx, protocol.Fetch{ID: id, Path: path}, id, protocol.TagResult)
	if err != nil {
		return Result{}, err
	}
	return resp.(protocol.Result).Entry, nil
}

func (h *handle) Preload(paths []string) error {
	if h.closed.Load() {
		return ErrClosed
	}
	return h.t.Send(protocol.Preload{Paths: append([]string(nil), paths...)})
}

func (h *handle) CheckStatus(ctx context.Context) (Status, error) {
	id := uuid.NewString()

	resp, err := h.roundTrip(ctx, protocol.CheckStatus{ID: id}, id, protocol.TagStatusReport)
	if err != nil {
		return Status{}, err
	}
	return resp.(protocol.StatusReport).Status, nil
}

func (h *handle) Quit() error {
	h.quitOnce.Do(func() {
		h.closed.Store(true)

		// Wait for an in-flight round trip; its response is still delivered.
		h.mu.Lock()
		defer h.mu.Unlock()

		if err := h.t.Send(protocol.Quit{}); err != nil && !errors.Is(err, ErrClosed) {
			h.logger.Debug("quit not delivered", "error", err)
		}
		h.quitErr = h.t.Close()
	})
	return h.quitErr
}

// roundTrip sends req and waits for the response carrying id and tag want.
func (h *handle) roundTrip(ctx context.Context, req protocol.Request, id string, want protocol.Tag) (protocol.Response, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed.Load() {
		return nil, ErrClosed
	}
	if h.broken != nil {
		return nil, h.broken
	}

	if err := h.t.Send(req); err != nil {
		return nil, err
	}

	for {
		resp, err := h.t.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				h.abandoned[id] = struct{}{}
				return nil, ctx.Err()
			}
			if errors.Is(err, ErrProtocolViolation) {
				h.broken = err
			}
			return nil, err
		}

		rid := resp.RequestID()
		if rid == id && resp.Tag() == want {
			return resp, nil
		}
		if _, ok := h.abandoned[rid]; ok && rid != id {
			delete(h.abandoned, rid)
			h.logger.Debug("discarding response to abandoned request", "request_id", rid, "tag", resp.Tag())
			continue
		}

		err = protocol.Violation("%s for request %q while awaiting %s for %q", resp.Tag(), rid, want, id)
		h.logger.Error("protocol violation on response channel",
			"request_id", id,
			"expected_tag", want,
			"response_id", rid,
			"response_tag", resp.Tag(),
			"error", err,
			"action", "stopping supervisor")
		h.broken = err
		_ = h.t.Send(protocol.Quit{})
		return nil, err
	}
}
