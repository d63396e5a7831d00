// Package thumb holds the decoded thumbnail types and the decode algorithm
// that turns an image file into a fixed-size canvas.
package thumb

import (
	"image"
	"time"
)

// CanvasSize is the edge length of every canvas in pixels.
const CanvasSize = 600

// canvasBytes is the length of an RGB canvas buffer (3 bytes/pixel).
const canvasBytes = CanvasSize * CanvasSize * 3

// Thumbnail is a decoded image scaled onto a CanvasSize×CanvasSize white canvas.
//
// IMMUTABILITY CONTRACT:
//   - The decoding worker is the only writer, before the Thumbnail is published.
//   - Store, supervisor and clients share the same pointer (zero-copy).
//   - Nobody modifies Canvas after publication.
//
// Sharing the pointer is what pins an entry for a Fetch: eviction drops the
// store's reference, never the bytes a client already holds.
type Thumbnail struct {
	// Path is the filename the thumbnail was decoded from.
	Path string `msgpack:"path"`

	// Width of the original image in pixels.
	Width int `msgpack:"width"`

	// Height of the original image in pixels.
	Height int `msgpack:"height"`

	// FileSize is the size of the source file in bytes.
	FileSize int64 `msgpack:"filesize"`

	// Canvas is the RGB pixel buffer, row-major, CanvasSize*CanvasSize*3 bytes.
	Canvas []byte `msgpack:"canvas"`

	// DecodedAt is when the worker finished decoding.
	DecodedAt time.Time `msgpack:"decoded_at"`
}

// Image returns an RGBA copy of the canvas (alpha 255).
func (t *Thumbnail) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, CanvasSize, CanvasSize))
	if len(t.Canvas) != canvasBytes {
		return img
	}
	for y := 0; y < CanvasSize; y++ {
		for x := 0; x < CanvasSize; x++ {
			i := img.PixOffset(x, y)
			img.Pix[i+0], img.Pix[i+1], img.Pix[i+2] = t.RGBAt(x, y)
			img.Pix[i+3] = 255
		}
	}
	return img
}

// RGBAt returns the canvas pixel at (x, y). Out-of-range coordinates and
// a malformed canvas read as black.
func (t *Thumbnail) RGBAt(x, y int) (r, g, b uint8) {
	if x < 0 || y < 0 || x >= CanvasSize || y >= CanvasSize || len(t.Canvas) != canvasBytes {
		return 0, 0, 0
	}
	i := (y*CanvasSize + x) * 3
	return t.Canvas[i], t.Canvas[i+1], t.Canvas[i+2]
}

// Result is the outcome of decoding one file: either a Thumbnail or the
// "unavailable" marker with the reason it could not be produced.
type Result struct {
	// Path is the requested filename (set for both outcomes).
	Path string `msgpack:"path"`

	// Thumb is nil when the file is unavailable.
	Thumb *Thumbnail `msgpack:"thumb,omitempty"`

	// Code classifies why the file is unavailable (empty on success).
	Code string `msgpack:"code,omitempty"`

	// Reason is the human-readable failure message (empty on success).
	Reason string `msgpack:"reason,omitempty"`
}

// Unavailable reports whether the result is the unavailable marker.
func (r Result) Unavailable() bool {
	return r.Thumb == nil
}

// Available wraps a decoded thumbnail.
func Available(t *Thumbnail) Result {
	return Result{Path: t.Path, Thumb: t}
}

// UnavailableFrom builds the unavailable marker for path from a decode error.
func UnavailableFrom(path string, err error) Result {
	return Result{
		Path:   path,
		Code:   string(CodeOf(err)),
		Reason: err.Error(),
	}
}
