package thumb

import (
	"bufio"
	"errors"
	"image"
	_ "image/gif"  // register GIF
	_ "image/jpeg" // register JPEG
	_ "image/png"  // register PNG
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/h2non/filetype"
	platformerrors "github.com/jmgilman/go/errors"
	_ "golang.org/x/image/bmp" // register BMP
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // register TIFF
	_ "golang.org/x/image/webp" // register WebP
)

// sniffLen is how many header bytes filetype needs to recognise a format.
const sniffLen = 262

// Decoder turns one image file into a Thumbnail.
//
// Implementations report FileMissing / DecodeFailure through error codes
// (see CodeOf); they may panic, the worker boundary recovers.
type Decoder interface {
	Decode(path string) (*Thumbnail, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(path string) (*Thumbnail, error)

// Decode calls f(path).
func (f DecoderFunc) Decode(path string) (*Thumbnail, error) {
	return f(path)
}

// FileDecoder decodes images from the local filesystem.
//
// The zero value is ready to use and resamples with Catmull-Rom.
type FileDecoder struct {
	// Interpolator overrides the resampling kernel (nil = draw.CatmullRom).
	Interpolator draw.Interpolator
}

// Decode opens path, sniffs its type, decodes it and paints it centered on a
// white canvas.
func (d FileDecoder) Decode(path string) (*Thumbnail, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, openError(path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, openError(path, err)
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, platformerrors.Wrapf(err, CodeDecodeFailed, "read header of %s", path)
	}
	if !filetype.IsImage(head[:n]) {
		return nil, platformerrors.Newf(CodeDecodeFailed, "unsupported file type: %s", path)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, platformerrors.Wrapf(err, CodeDecodeFailed, "rewind %s", path)
	}

	src, _, err := image.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, platformerrors.Wrapf(err, CodeDecodeFailed, "decode %s", path)
	}

	bounds := src.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, platformerrors.Newf(CodeDecodeFailed, "empty image: %s", path)
	}

	return &Thumbnail{
		Path:      path,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		FileSize:  info.Size(),
		Canvas:    Render(src, d.interpolator()),
		DecodedAt: time.Now(),
	}, nil
}

func (d FileDecoder) interpolator() draw.Interpolator {
	if d.Interpolator != nil {
		return d.Interpolator
	}
	return draw.CatmullRom
}

// Render scales src onto a white canvas and returns the RGB buffer.
func Render(src image.Image, interp draw.Interpolator) []byte {
	bounds := src.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, CanvasSize, CanvasSize))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)
	interp.Scale(canvas, Fit(bounds.Dx(), bounds.Dy()), src, bounds, draw.Over, nil)

	rgb := make([]byte, canvasBytes)
	for i := 0; i < CanvasSize*CanvasSize; i++ {
		rgb[i*3+0] = canvas.Pix[i*4+0]
		rgb[i*3+1] = canvas.Pix[i*4+1]
		rgb[i*3+2] = canvas.Pix[i*4+2]
	}
	return rgb
}

func openError(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return platformerrors.Wrapf(err, CodeFileMissing, "expected file %s is missing", path)
	}
	return platformerrors.Wrapf(err, CodeDecodeFailed, "open %s", path)
}
