package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// MaxFrameSize bounds a single frame (a canvas is ~1 MiB).
const MaxFrameSize = 64 << 20

// envelope is the wire form of every message: a tag plus the msgpack body of
// the concrete variant.
type envelope struct {
	Tag  Tag                `msgpack:"tag"`
	Body msgpack.RawMessage `msgpack:"body"`
}

// Encoder writes length-prefixed msgpack frames:
//
//	[4 bytes big-endian length][msgpack envelope]
//
// Thread-safety: Encode may be called concurrently.
type Encoder struct {
	mu sync.Mutex
	w  io.Writer
}

// NewEncoder creates an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes one message frame.
func (e *Encoder) Encode(msg Message) error {
	body, err := msgpack.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal %s body: %w", msg.Tag(), err)
	}

	data, err := msgpack.Marshal(envelope{Tag: msg.Tag(), Body: body})
	if err != nil {
		return fmt.Errorf("failed to marshal %s envelope: %w", msg.Tag(), err)
	}
	if len(data) > MaxFrameSize {
		return fmt.Errorf("frame too large: %d bytes (max %d)", len(data), MaxFrameSize)
	}

	frame := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[4:], data)

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.w.Write(frame); err != nil {
		return fmt.Errorf("failed to write %s frame: %w", msg.Tag(), err)
	}
	return nil
}

// Decoder reads frames written by Encoder.
type Decoder struct {
	r      io.Reader
	header [4]byte
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Decode reads one message. Returns io.EOF on a clean end of stream and a
// wrapped ErrProtocolViolation for unknown tags or malformed frames.
func (d *Decoder) Decode() (Message, error) {
	if _, err := io.ReadFull(d.r, d.header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, Violation("truncated frame header")
		}
		return nil, err
	}

	size := binary.BigEndian.Uint32(d.header[:])
	if size > MaxFrameSize {
		return nil, Violation("frame length %d exceeds %d", size, MaxFrameSize)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(d.r, data); err != nil {
		return nil, Violation("truncated frame body (%d bytes expected): %v", size, err)
	}

	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, Violation("malformed envelope: %v", err)
	}

	msg, err := decodeBody(env)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// DecodeRequest reads one message and requires it to be a Request.
func (d *Decoder) DecodeRequest() (Request, error) {
	msg, err := d.Decode()
	if err != nil {
		return nil, err
	}
	req, ok := msg.(Request)
	if !ok {
		return nil, Violation("unexpected %s on the request channel", msg.Tag())
	}
	return req, nil
}

// DecodeResponse reads one message and requires it to be a Response.
func (d *Decoder) DecodeResponse() (Response, error) {
	msg, err := d.Decode()
	if err != nil {
		return nil, err
	}
	resp, ok := msg.(Response)
	if !ok {
		return nil, Violation("unexpected %s on the response channel", msg.Tag())
	}
	return resp, nil
}

func decodeBody(env envelope) (Message, error) {
	var (
		msg Message
		err error
	)

	switch env.Tag {
	case TagFetch:
		var m Fetch
		err = msgpack.Unmarshal(env.Body, &m)
		msg = m
	case TagPreload:
		var m Preload
		err = msgpack.Unmarshal(env.Body, &m)
		msg = m
	case TagCheckStatus:
		var m CheckStatus
		err = msgpack.Unmarshal(env.Body, &m)
		msg = m
	case TagQuit:
		msg = Quit{}
	case TagResult:
		var m Result
		err = msgpack.Unmarshal(env.Body, &m)
		msg = m
	case TagStatusReport:
		var m StatusReport
		err = msgpack.Unmarshal(env.Body, &m)
		msg = m
	default:
		return nil, Violation("unrecognized tag %q", env.Tag)
	}

	if err != nil {
		return nil, Violation("malformed %s body: %v", env.Tag, err)
	}
	return msg, nil
}
