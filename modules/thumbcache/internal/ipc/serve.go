// Package ipc carries the message protocol between processes: Serve runs on
// the supervisor side of a pair of byte streams, Client on the handle side.
//
// Wire format (both directions):
//
//	[4 bytes big-endian length][msgpack envelope {tag, body}]
//
// Stream layout when spawned: requests on the child's stdin, responses on
// its stdout, slog output on its stderr.
package ipc

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache/internal/protocol"
	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache/internal/supervisor"
)

// Serve forwards requests decoded from r to sup and encodes its responses
// to w, until the supervisor stops.
//
// Stop conditions:
//   - Quit request: forwarded, Serve returns nil once teardown completes
//   - EOF on r: the client is gone, treated as Quit
//   - unknown tag or malformed frame: logged, supervisor stopped, the
//     wrapped protocol.ErrProtocolViolation is returned
//   - ctx cancelled: the supervisor's own context handling applies
//
// sup must already be started. Serve does not close r or w.
func Serve(ctx context.Context, sup *supervisor.Supervisor, r io.Reader, w io.Writer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	readErr := make(chan error, 1)
	go func() { readErr <- readRequests(sup, r, logger) }()

	writeErr := make(chan error, 1)
	go func() { writeErr <- writeResponses(sup, protocol.NewEncoder(w), logger) }()

	var err error
	select {
	case err = <-readErr:
		if err != nil {
			_ = sup.Stop()
		}
	case <-sup.Done():
	case <-ctx.Done():
		_ = sup.Stop()
	}

	<-sup.Done()

	if werr := <-writeErr; err == nil {
		err = werr
	}
	if err == nil {
		err = sup.Err()
	}
	return err
}

// readRequests decodes requests until Quit, EOF or a violation. The reader
// goroutine may outlive Serve when r blocks (e.g. os.Stdin after Quit).
func readRequests(sup *supervisor.Supervisor, r io.Reader, logger *slog.Logger) error {
	dec := protocol.NewDecoder(r)

	for {
		req, err := dec.DecodeRequest()
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Info("request stream closed, stopping supervisor")
				_ = sup.Send(protocol.Quit{})
				return nil
			}
			logger.Error("protocol violation on request stream",
				"error", err,
				"action", "stopping supervisor")
			return err
		}

		if err := sup.Send(req); err != nil {
			// ErrClosed: the supervisor already stopped on its own.
			return nil
		}
		if _, quit := req.(protocol.Quit); quit {
			return nil
		}
	}
}

// writeResponses encodes every response until the supervisor closes its
// outbox.
func writeResponses(sup *supervisor.Supervisor, enc *protocol.Encoder, logger *slog.Logger) error {
	for {
		resp, err := sup.Receive(context.Background())
		if err != nil {
			if errors.Is(err, protocol.ErrClosed) {
				return nil
			}
			return err
		}

		if err := enc.Encode(resp); err != nil {
			logger.Error("failed to write response",
				"tag", resp.Tag(),
				"request_id", resp.RequestID(),
				"error", err,
				"action", "stopping supervisor")
			_ = sup.Stop()
			// Keep draining so the outbox closes and Serve can return.
			drain(sup)
			return err
		}
	}
}

func drain(sup *supervisor.Supervisor) {
	for {
		if _, err := sup.Receive(context.Background()); err != nil {
			return
		}
	}
}
