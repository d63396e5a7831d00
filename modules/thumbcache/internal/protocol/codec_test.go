package protocol

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	platformerrors "github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache/internal/thumb"
)

func frame(t *testing.T, env envelope) []byte {
	t.Helper()
	data, err := msgpack.Marshal(env)
	require.NoError(t, err)
	out := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(out, uint32(len(data)))
	copy(out[4:], data)
	return out
}

func TestCodec_StreamOfMessages(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	canvas := make([]byte, thumb.CanvasSize*thumb.CanvasSize*3)
	canvas[0], canvas[len(canvas)-1] = 7, 9

	sent := []Message{
		Preload{Paths: []string{"/a.png", "/b.png"}},
		Fetch{ID: "f-1", Path: "/a.png"},
		Result{ID: "f-1", Entry: thumb.Result{
			Path:  "/a.png",
			Thumb: &thumb.Thumbnail{Path: "/a.png", Width: 1920, Height: 1080, FileSize: 4242, Canvas: canvas},
		}},
		Result{ID: "f-2", Entry: thumb.Result{Path: "/gone.png", Code: "NOT_FOUND", Reason: "missing"}},
		CheckStatus{ID: "s-1"},
		StatusReport{ID: "s-1", Status: Status{QueueDepth: 3, CacheSize: 2, Capacity: 32, CapacityRemaining: 30}},
		Quit{},
	}
	for _, msg := range sent {
		require.NoError(t, enc.Encode(msg))
	}

	dec := NewDecoder(&buf)
	for i := range sent {
		msg, err := dec.Decode()
		require.NoError(t, err, "message %d", i)
		assert.Equal(t, sent[i].Tag(), msg.Tag())
	}

	_, err := dec.Decode()
	assert.ErrorIs(t, err, io.EOF)
}

func TestCodec_ResultCanvasSurvives(t *testing.T) {
	var buf bytes.Buffer
	canvas := bytes.Repeat([]byte{1, 2, 3}, thumb.CanvasSize*thumb.CanvasSize)
	require.NoError(t, NewEncoder(&buf).Encode(Result{ID: "x", Entry: thumb.Result{
		Path:  "/p",
		Thumb: &thumb.Thumbnail{Path: "/p", Width: 3, Height: 4, FileSize: 5, Canvas: canvas},
	}}))

	resp, err := NewDecoder(&buf).DecodeResponse()
	require.NoError(t, err)

	res, ok := resp.(Result)
	require.True(t, ok)
	require.NotNil(t, res.Entry.Thumb)
	assert.Equal(t, "x", res.RequestID())
	assert.Equal(t, 3, res.Entry.Thumb.Width)
	assert.True(t, bytes.Equal(canvas, res.Entry.Thumb.Canvas))
}

func TestCodec_UnknownTagIsViolation(t *testing.T) {
	r := bytes.NewReader(frame(t, envelope{Tag: "delete_everything"}))

	_, err := NewDecoder(r).Decode()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.Equal(t, CodeProtocolViolation, platformerrors.GetCode(err))
}

func TestCodec_WrongDirectionIsViolation(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(StatusReport{ID: "s"}))

	_, err := NewDecoder(&buf).DecodeRequest()
	assert.ErrorIs(t, err, ErrProtocolViolation)

	buf.Reset()
	require.NoError(t, NewEncoder(&buf).Encode(Quit{}))
	_, err = NewDecoder(&buf).DecodeResponse()
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestCodec_MalformedFrames(t *testing.T) {
	t.Run("truncated header", func(t *testing.T) {
		_, err := NewDecoder(bytes.NewReader([]byte{0, 0})).Decode()
		assert.ErrorIs(t, err, ErrProtocolViolation)
	})

	t.Run("truncated body", func(t *testing.T) {
		data := frame(t, envelope{Tag: TagQuit})
		_, err := NewDecoder(bytes.NewReader(data[:len(data)-1])).Decode()
		assert.ErrorIs(t, err, ErrProtocolViolation)
	})

	t.Run("oversized", func(t *testing.T) {
		header := make([]byte, 4)
		binary.BigEndian.PutUint32(header, MaxFrameSize+1)
		_, err := NewDecoder(bytes.NewReader(header)).Decode()
		assert.ErrorIs(t, err, ErrProtocolViolation)
	})

	t.Run("garbage envelope", func(t *testing.T) {
		data := []byte{0, 0, 0, 2, 0xc1, 0xc1}
		_, err := NewDecoder(bytes.NewReader(data)).Decode()
		assert.ErrorIs(t, err, ErrProtocolViolation)
	})
}
