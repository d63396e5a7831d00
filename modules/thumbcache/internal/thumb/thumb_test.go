package thumb

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"testing/quick"

	platformerrors "github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, dir, name string, w, h int, c color.Color) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

// TestFit_AspectPreserved checks the fitted rectangle for arbitrary sizes:
// inside the canvas, longest side == CanvasSize, aspect within one pixel of
// rounding, centered.
func TestFit_AspectPreserved(t *testing.T) {
	property := func(a, b uint16) bool {
		w, h := int(a%5000)+1, int(b%5000)+1
		r := Fit(w, h)

		if !r.In(image.Rect(0, 0, CanvasSize, CanvasSize)) {
			return false
		}
		sw, sh := r.Dx(), r.Dy()
		if max(sw, sh) != CanvasSize {
			return false
		}
		// sw/sh ≈ w/h with the short side rounded up by < 1px
		diff := sw*h - sh*w
		if diff < 0 {
			diff = -diff
		}
		if diff >= max(w, h) {
			return false
		}
		return r.Min.X == (CanvasSize-sw)/2 && r.Min.Y == (CanvasSize-sh)/2
	}

	if err := quick.Check(property, &quick.Config{MaxCount: 2000}); err != nil {
		t.Error(err)
	}
}

func TestFit_KnownSizes(t *testing.T) {
	tests := []struct {
		name string
		w, h int
		want image.Rectangle
	}{
		{"landscape 2:1", 1200, 600, image.Rect(0, 150, 600, 450)},
		{"portrait 1:3", 100, 300, image.Rect(200, 0, 400, 600)},
		{"square", 50, 50, image.Rect(0, 0, 600, 600)},
		{"rounded up", 700, 3, image.Rect(0, 298, 600, 301)},
		{"degenerate", 0, 10, image.Rectangle{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Fit(tt.w, tt.h))
		})
	}
}

func TestFileDecoder_DecodesCenteredOnWhite(t *testing.T) {
	dir := t.TempDir()
	path := writePNG(t, dir, "wide.png", 1200, 600, color.RGBA{R: 255, A: 255})

	thumb, err := FileDecoder{}.Decode(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)

	assert.Equal(t, path, thumb.Path)
	assert.Equal(t, 1200, thumb.Width)
	assert.Equal(t, 600, thumb.Height)
	assert.Equal(t, info.Size(), thumb.FileSize)
	require.Len(t, thumb.Canvas, CanvasSize*CanvasSize*3)

	// Band above the scaled image stays white.
	r, g, b := thumb.RGBAt(300, 10)
	assert.Equal(t, [3]uint8{255, 255, 255}, [3]uint8{r, g, b})

	// Center is red.
	r, g, b = thumb.RGBAt(300, 300)
	assert.GreaterOrEqual(t, r, uint8(250))
	assert.LessOrEqual(t, g, uint8(5))
	assert.LessOrEqual(t, b, uint8(5))

	rgba := thumb.Image()
	assert.Equal(t, uint8(255), rgba.RGBAAt(300, 300).A)
}

func TestFileDecoder_MissingFile(t *testing.T) {
	_, err := FileDecoder{}.Decode(filepath.Join(t.TempDir(), "missing.png"))
	require.Error(t, err)
	assert.Equal(t, CodeFileMissing, platformerrors.GetCode(err))
}

func TestFileDecoder_NotAnImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.png")
	require.NoError(t, os.WriteFile(path, []byte("definitely not pixels"), 0o644))

	_, err := FileDecoder{}.Decode(path)
	require.Error(t, err)
	assert.Equal(t, CodeDecodeFailed, platformerrors.GetCode(err))
}

func TestFileDecoder_TruncatedImage(t *testing.T) {
	dir := t.TempDir()
	path := writePNG(t, dir, "cut.png", 64, 64, color.White)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)/2], 0o644))

	_, err = FileDecoder{}.Decode(path)
	require.Error(t, err)
	assert.Equal(t, CodeDecodeFailed, CodeOf(err))
}

func TestThumbnail_RGBAtMalformedCanvas(t *testing.T) {
	for _, th := range []*Thumbnail{
		{Path: "empty"},
		{Path: "short", Canvas: []byte{1, 2, 3}},
	} {
		r, g, b := th.RGBAt(0, 0)
		assert.Equal(t, [3]uint8{}, [3]uint8{r, g, b}, th.Path)
		assert.Equal(t, image.Rect(0, 0, CanvasSize, CanvasSize), th.Image().Bounds(), th.Path)
	}

	full := &Thumbnail{Canvas: make([]byte, canvasBytes)}
	full.Canvas[0], full.Canvas[1], full.Canvas[2] = 9, 8, 7
	r, g, b := full.RGBAt(0, 0)
	assert.Equal(t, [3]uint8{9, 8, 7}, [3]uint8{r, g, b})
	r, g, b = full.RGBAt(CanvasSize, -1)
	assert.Equal(t, [3]uint8{}, [3]uint8{r, g, b})
}

func TestUnavailableFrom(t *testing.T) {
	res := UnavailableFrom("/x.png", platformerrors.New(CodeFileMissing, "gone"))
	assert.True(t, res.Unavailable())
	assert.Equal(t, "/x.png", res.Path)
	assert.Equal(t, string(CodeFileMissing), res.Code)
	assert.Contains(t, res.Reason, "gone")
}
