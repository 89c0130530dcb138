// Package imagepipe implements the decode → downscale → alpha-flatten →
// encode → atomic-save sequence applied to every fetched image.
package imagepipe

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"

	"github.com/HugoSmits86/nativewebp"
	ximage "golang.org/x/image/draw"

	"github.com/APTlantis/rskachka/internal/barrier"
)

// DecodeError wraps a failure to parse the source bytes as an image.
type DecodeError struct{ Err error }

func (e *DecodeError) Error() string { return fmt.Sprintf("decode image: %v", e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError wraps a failure during the final encode+write stage.
type EncodeError struct{ Err error }

func (e *EncodeError) Error() string { return fmt.Sprintf("encode image: %v", e.Err) }
func (e *EncodeError) Unwrap() error { return e.Err }

// UnsupportedExtensionError is returned when the configured extension has
// no matching encoder. Argument validation at startup should make this
// unreachable at runtime.
type UnsupportedExtensionError struct{ Extension string }

func (e *UnsupportedExtensionError) Error() string {
	return fmt.Sprintf("unsupported output extension: %q", e.Extension)
}

// ErrShutdown is returned when a cooperative shutdown poll fires between
// pipeline stages.
var ErrShutdown = errors.New("shutdown requested")

// ShouldStop is polled between every stage of Save. Returning true aborts
// the pipeline cooperatively without writing anything.
type ShouldStop func() bool

// Options configures a single Save invocation.
type Options struct {
	MaxSize    uint
	Extension  string
	Quality    int
	ShouldStop ShouldStop
	Barrier    *barrier.Barrier
}

func (o Options) poll() error {
	if o.ShouldStop != nil && o.ShouldStop() {
		return ErrShutdown
	}
	return nil
}

// Save runs raw through decode, downscale, alpha-flatten, and encode,
// writing the result to path. path's parent directory must already exist.
func Save(raw []byte, path string, opts Options) error {
	if err := opts.poll(); err != nil {
		return err
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return &DecodeError{Err: err}
	}
	rgba := toRGBA(img)

	if err := opts.poll(); err != nil {
		return err
	}
	rgba = downscale(rgba, opts.MaxSize)

	if err := opts.poll(); err != nil {
		return err
	}
	flattenAlpha(rgba)

	if err := opts.poll(); err != nil {
		return err
	}
	return encodeAndWrite(rgba, path, opts)
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(b)
	draw.Draw(rgba, b, img, b.Min, draw.Src)
	return rgba
}

// downscale resizes img so its largest edge is at most maxSize, preserving
// aspect ratio, using a Catmull-Rom (cubic) resampling filter. Images that
// are not bigger than maxSize pass through unchanged.
func downscale(img *image.RGBA, maxSize uint) *image.RGBA {
	if maxSize == 0 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	largest := w
	if h > largest {
		largest = h
	}
	if uint(largest) <= maxSize {
		return img
	}

	scale := float64(maxSize) / float64(largest)
	newW := int(float64(w) * scale)
	newH := int(float64(h) * scale)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	ximage.CatmullRom.Scale(dst, dst.Bounds(), img, b, ximage.Over, nil)
	return dst
}

// flattenAlpha composites every pixel over opaque white, treating alpha as
// a 0..1 coefficient, and leaves the alpha channel itself unchanged in
// memory (output encoders ignore it). image.RGBA stores alpha-premultiplied
// channels, which already hold channel*a, so only the white term
// 255*(1-a) = 255-alpha is added.
func flattenAlpha(img *image.RGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := img.PixOffset(x, y)
			px := img.Pix[i : i+4 : i+4]
			white := 255 - int(px[3])
			for c := 0; c < 3; c++ {
				v := int(px[c]) + white
				if v > 255 {
					v = 255
				}
				px[c] = uint8(v)
			}
		}
	}
}

// encodeAndWrite brackets the create-and-encode region with the saving
// barrier so the interrupt handler can wait for it to finish before the
// process exits.
func encodeAndWrite(img *image.RGBA, path string, opts Options) error {
	release := opts.Barrier.Guard()
	defer release()

	f, err := os.Create(path)
	if err != nil {
		return &EncodeError{Err: err}
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	switch extensionKind(opts.Extension) {
	case "jpg":
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: clampQuality(opts.Quality)})
	case "webp":
		err = nativewebp.Encode(w, img, nil)
	default:
		return &UnsupportedExtensionError{Extension: opts.Extension}
	}
	if err != nil {
		return &EncodeError{Err: err}
	}
	if err := w.Flush(); err != nil {
		return &EncodeError{Err: err}
	}
	return nil
}

func clampQuality(q int) int {
	if q < 0 {
		return 0
	}
	if q > 100 {
		return 100
	}
	return q
}

func extensionKind(ext string) string {
	switch ext {
	case "jpg", "jpeg":
		return "jpg"
	case "webp":
		return "webp"
	default:
		return ""
	}
}
