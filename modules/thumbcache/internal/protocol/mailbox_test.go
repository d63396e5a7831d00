package protocol

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailbox_PreloadSupersedesUnconsumedPreload(t *testing.T) {
	m := NewMailbox[Request]()

	require.NoError(t, m.Send(Preload{Paths: []string{"a"}}))
	require.NoError(t, m.Send(Fetch{ID: "1", Path: "x"}))
	require.NoError(t, m.Send(CheckStatus{ID: "2"}))
	require.NoError(t, m.Send(Preload{Paths: []string{"b", "c"}}))

	// The newer preload takes the older one's place in send order.
	got := m.Drain()
	require.Len(t, got, 3)
	assert.Equal(t, Preload{Paths: []string{"b", "c"}}, got[0])
	assert.Equal(t, Fetch{ID: "1", Path: "x"}, got[1])
	assert.Equal(t, CheckStatus{ID: "2"}, got[2])
	assert.Equal(t, uint64(1), m.Superseded())
	assert.Equal(t, 0, m.Len())
}

func TestMailbox_SendNeverBlocks(t *testing.T) {
	m := NewMailbox[Request]()

	start := time.Now()
	for i := 0; i < 1000; i++ {
		require.NoError(t, m.Send(Preload{Paths: []string{"p"}}))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, 1, m.Len())
}

func TestMailbox_ReceiveBlocksUntilSend(t *testing.T) {
	m := NewMailbox[Response]()

	got := make(chan Response, 1)
	go func() {
		resp, err := m.Receive(context.Background())
		if err == nil {
			got <- resp
		}
	}()

	select {
	case <-got:
		t.Fatal("Receive returned before anything was sent")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, m.Send(StatusReport{ID: "s1"}))

	select {
	case resp := <-got:
		assert.Equal(t, "s1", resp.RequestID())
	case <-time.After(time.Second):
		t.Fatal("Receive never returned")
	}
}

func TestMailbox_CloseWakesReceiverAndRejectsSend(t *testing.T) {
	m := NewMailbox[Response]()
	require.NoError(t, m.Send(Result{ID: "r1"}))

	errc := make(chan error, 1)
	go func() {
		// First receive gets the queued item, the second observes Close.
		if _, err := m.Receive(context.Background()); err != nil {
			errc <- err
			return
		}
		_, err := m.Receive(context.Background())
		errc <- err
	}()

	time.Sleep(10 * time.Millisecond)
	m.Close()
	m.Close()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Close did not wake the receiver")
	}

	assert.ErrorIs(t, m.Send(Result{ID: "r2"}), ErrClosed)
}

func TestMailbox_ReceiveHonoursContext(t *testing.T) {
	m := NewMailbox[Response]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := m.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
