package worker

import (
	"testing"
	"time"

	platformerrors "github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache/internal/thumb"
)

func okDecoder(path string) (*thumb.Thumbnail, error) {
	return &thumb.Thumbnail{Path: path, Width: 10, Height: 20}, nil
}

func waitNotify(t *testing.T, notify <-chan struct{}) {
	t.Helper()
	select {
	case <-notify:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never signalled completion")
	}
}

func TestWorker_Lifecycle(t *testing.T) {
	notify := make(chan struct{}, 1)
	w := New("w0", thumb.DecoderFunc(okDecoder), notify, nil)
	defer w.Shutdown()

	assert.True(t, w.IsIdle())
	require.NoError(t, w.Submit("a.png"))

	waitNotify(t, notify)
	require.True(t, w.HasResult())
	assert.Equal(t, "a.png", w.Job())

	res, err := w.TakeResult()
	require.NoError(t, err)
	assert.False(t, res.Unavailable())
	assert.Equal(t, "a.png", res.Path)
	assert.Equal(t, 20, res.Thumb.Height)

	assert.True(t, w.IsIdle())
	assert.Equal(t, "", w.Job())
	assert.Equal(t, uint64(1), w.Stats().Decodes)
}

func TestWorker_SubmitWhileBusy(t *testing.T) {
	release := make(chan struct{})
	notify := make(chan struct{}, 1)
	w := New("w0", thumb.DecoderFunc(func(path string) (*thumb.Thumbnail, error) {
		<-release
		return okDecoder(path)
	}), notify, nil)
	defer w.Shutdown()

	require.NoError(t, w.Submit("a.png"))
	assert.ErrorIs(t, w.Submit("b.png"), ErrNotIdle)

	_, err := w.TakeResult()
	assert.ErrorIs(t, err, ErrNoResult)

	close(release)
	waitNotify(t, notify)

	// Done still refuses a new job until the result is collected.
	assert.ErrorIs(t, w.Submit("b.png"), ErrNotIdle)
	_, err = w.TakeResult()
	require.NoError(t, err)
	assert.NoError(t, w.Submit("b.png"))
}

func TestWorker_DecodeErrorBecomesUnavailable(t *testing.T) {
	notify := make(chan struct{}, 1)
	w := New("w0", thumb.DecoderFunc(func(path string) (*thumb.Thumbnail, error) {
		return nil, platformerrors.Newf(thumb.CodeFileMissing, "expected file %s is missing", path)
	}), notify, nil)
	defer w.Shutdown()

	require.NoError(t, w.Submit("gone.png"))
	waitNotify(t, notify)

	res, err := w.TakeResult()
	require.NoError(t, err)
	assert.True(t, res.Unavailable())
	assert.Equal(t, string(thumb.CodeFileMissing), res.Code)
}

func TestWorker_PanicIsContained(t *testing.T) {
	notify := make(chan struct{}, 1)
	w := New("w0", thumb.DecoderFunc(func(string) (*thumb.Thumbnail, error) {
		panic("corrupt huffman table")
	}), notify, nil)
	defer w.Shutdown()

	require.NoError(t, w.Submit("bad.jpg"))
	waitNotify(t, notify)

	res, err := w.TakeResult()
	require.NoError(t, err)
	assert.True(t, res.Unavailable())
	assert.Equal(t, string(thumb.CodeWorkerFault), res.Code)
	assert.Equal(t, uint64(1), w.Stats().Faults)

	// The worker survives the fault.
	require.NoError(t, w.Submit("next.jpg"))
	waitNotify(t, notify)
}

func TestWorker_ShutdownLetsJobFinish(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	w := New("w0", thumb.DecoderFunc(func(path string) (*thumb.Thumbnail, error) {
		close(started)
		<-release
		return okDecoder(path)
	}), nil, nil)

	require.NoError(t, w.Submit("slow.png"))
	<-started

	returned := make(chan struct{})
	go func() {
		w.Shutdown()
		close(returned)
	}()

	select {
	case <-returned:
		t.Fatal("Shutdown returned while a decode was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown never returned")
	}

	assert.True(t, w.HasResult())
	assert.ErrorIs(t, w.Submit("late.png"), ErrStopped)

	// Idempotent.
	w.Shutdown()
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "busy", Busy.String())
	assert.Equal(t, "done", Done.String())
	assert.Equal(t, "unknown", State(42).String())
}
