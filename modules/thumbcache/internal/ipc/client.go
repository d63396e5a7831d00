package ipc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache/internal/protocol"
)

// stopTimeout bounds how long Close waits for the child after the request
// stream is closed before killing it.
const stopTimeout = 5 * time.Second

// SpawnOptions configures a supervisor child process.
type SpawnOptions struct {
	// Path is the thumbcache binary. Default: the running executable.
	Path string

	// Args are passed to the binary. Default: ["serve"].
	Args []string

	// Env is appended to the parent's environment.
	Env []string

	Logger *slog.Logger
}

// Client is the handle side of the protocol over a pair of byte streams.
//
// Goroutines:
//   - readResponses: decodes frames into the response mailbox
//   - logStderr, waitProcess: only when spawned
//
// Thread-safety: Send and Receive may be called concurrently.
type Client struct {
	enc       *protocol.Encoder
	w         io.WriteCloser
	responses *protocol.Mailbox[protocol.Response]
	logger    *slog.Logger

	readDone chan struct{}
	readErr  error // set before readDone is closed

	// Spawned child only.
	cmd     *exec.Cmd
	exited  chan struct{}
	waitErr error // set before exited is closed

	closeOnce sync.Once
	closeErr  error
}

// NewClient speaks the protocol over r (responses) and w (requests).
func NewClient(r io.Reader, w io.WriteCloser, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		enc:       protocol.NewEncoder(w),
		w:         w,
		responses: protocol.NewMailbox[protocol.Response](),
		logger:    logger,
		readDone:  make(chan struct{}),
	}

	go c.readResponses(r)

	return c
}

// Spawn starts a supervisor child process and connects a Client to it.
func Spawn(ctx context.Context, opts SpawnOptions) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	path := opts.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve thumbcache binary: %w", err)
		}
		path = exe
	}
	args := opts.Args
	if len(args) == 0 {
		args = []string{"serve"}
	}

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Env = append(os.Environ(), opts.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start supervisor process: %w", err)
	}

	logger.Info("supervisor process spawned", "path", path, "pid", cmd.Process.Pid)

	c := NewClient(stdout, stdin, logger)
	c.cmd = cmd
	c.exited = make(chan struct{})

	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		c.logStderr(stderr)
	}()
	go c.waitProcess(stderrDone)

	return c, nil
}

// Send encodes one request. Returns protocol.ErrClosed after Close or once
// the response stream ended.
func (c *Client) Send(req protocol.Request) error {
	select {
	case <-c.readDone:
		return c.terminalError()
	default:
	}

	if err := c.enc.Encode(req); err != nil {
		if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed) {
			return protocol.ErrClosed
		}
		return err
	}
	return nil
}

// Receive blocks for the next response. A protocol violation on the
// response stream is returned once, after queued responses were delivered.
func (c *Client) Receive(ctx context.Context) (protocol.Response, error) {
	resp, err := c.responses.Receive(ctx)
	if errors.Is(err, protocol.ErrClosed) {
		return nil, c.terminalError()
	}
	return resp, err
}

// Close ends the request stream, waits for the response stream to end and,
// for a spawned child, for the process to exit (killing it after a
// timeout). Idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		_ = c.w.Close()

		if c.cmd != nil {
			select {
			case <-c.exited:
			case <-time.After(stopTimeout):
				c.logger.Warn("supervisor process stop timeout, killing", "pid", c.cmd.Process.Pid)
				if err := c.cmd.Process.Kill(); err != nil {
					c.logger.Error("failed to kill supervisor process", "pid", c.cmd.Process.Pid, "error", err)
				}
				<-c.exited
			}
			c.closeErr = c.waitErr
		}

		<-c.readDone
		if c.closeErr == nil && c.readErr != nil {
			c.closeErr = c.readErr
		}
	})
	return c.closeErr
}

func (c *Client) terminalError() error {
	<-c.readDone
	if c.readErr != nil {
		return c.readErr
	}
	return protocol.ErrClosed
}

func (c *Client) readResponses(r io.Reader) {
	defer close(c.readDone)
	defer c.responses.Close()

	dec := protocol.NewDecoder(r)
	for {
		resp, err := dec.DecodeResponse()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
				c.logger.Debug("response stream closed")
				return
			}
			c.logger.Error("protocol violation on response stream", "error", err)
			c.readErr = err
			return
		}
		_ = c.responses.Send(resp)
	}
}

// logStderr forwards the child's log lines, keeping their severity.
func (c *Client) logStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.Contains(line, `"level":"ERROR"`), strings.Contains(line, "level=ERROR"):
			c.logger.Error("supervisor process error", "log", line)
		case strings.Contains(line, `"level":"WARN"`), strings.Contains(line, "level=WARN"):
			c.logger.Warn("supervisor process warning", "log", line)
		default:
			c.logger.Debug("supervisor process log", "log", line)
		}
	}

	if err := scanner.Err(); err != nil {
		c.logger.Debug("error reading supervisor stderr", "error", err)
	}
}

// waitProcess reaps the child once both of its output pipes hit EOF (Wait
// closes them, so reads must finish first).
func (c *Client) waitProcess(stderrDone <-chan struct{}) {
	defer close(c.exited)

	<-c.readDone
	<-stderrDone

	err := c.cmd.Wait()
	if err != nil {
		c.logger.Error("supervisor process exited with error", "pid", c.cmd.Process.Pid, "error", err)
	} else {
		c.logger.Info("supervisor process exited cleanly", "pid", c.cmd.Process.Pid)
	}
	c.waitErr = err
}
