// Package imageprep normalizes scanned images before upload: grayscale,
// contrast stretch, bounded size, re-encoded as JPEG.
package imageprep

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"
	"math"

	"github.com/rotisserie/eris"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

// Options controls the transform.
type Options struct {
	// MaxDimension bounds the longer side in pixels; zero disables resizing.
	MaxDimension int
	// Contrast multiplies the distance from mid-grey; 1 leaves it unchanged.
	Contrast float64
	// Quality is the JPEG quality, 1-100.
	Quality int
}

// DefaultOptions mirrors the configured defaults.
func DefaultOptions() Options {
	return Options{MaxDimension: 2000, Contrast: 1.2, Quality: 85}
}

// Result is a prepared image.
type Result struct {
	Data   []byte
	Width  int
	Height int
	// Hash is the hex sha256 of Data, sent so the backend can spot
	// duplicate uploads.
	Hash string
}

// Decode reads png, jpeg or webp.
func Decode(raw []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err == nil {
		return img, nil
	}
	if decoded, webpErr := webp.Decode(bytes.NewReader(raw)); webpErr == nil {
		return decoded, nil
	}
	return nil, eris.Wrap(err, "imageprep: decode")
}

// Prepare decodes raw and applies the transform.
func Prepare(raw []byte, opts Options) (*Result, error) {
	src, err := Decode(raw)
	if err != nil {
		return nil, err
	}

	src = resize(src, opts.MaxDimension)
	gray := grayscale(src, opts.Contrast)

	q := opts.Quality
	if q <= 0 || q > 100 {
		q = jpeg.DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gray, &jpeg.Options{Quality: q}); err != nil {
		return nil, eris.Wrap(err, "imageprep: encode jpeg")
	}

	b := gray.Bounds()
	return &Result{
		Data:   buf.Bytes(),
		Width:  b.Dx(),
		Height: b.Dy(),
		Hash:   Hash(buf.Bytes()),
	}, nil
}

// Hash returns the hex sha256 of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// resize scales src down so its longer side is at most maxDim.
func resize(src image.Image, maxDim int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return src
	}
	scale := math.Min(float64(maxDim)/float64(w), float64(maxDim)/float64(h))
	nw := max(int(math.Round(float64(w)*scale)), 1)
	nh := max(int(math.Round(float64(h)*scale)), 1)

	dst := image.NewNRGBA(image.Rect(0, 0, nw, nh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)
	return dst
}

// grayscale converts src to grey and stretches contrast around mid-grey.
func grayscale(src image.Image, contrast float64) *image.Gray {
	if contrast <= 0 {
		contrast = 1
	}
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.GrayModel.Convert(src.At(x, y)).(color.Gray)
			v := (float64(g.Y)-128)*contrast + 128
			dst.SetGray(x-b.Min.X, y-b.Min.Y, color.Gray{Y: clamp(v)})
		}
	}
	return dst
}

func clamp(v float64) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return uint8(math.Round(v))
	}
}
