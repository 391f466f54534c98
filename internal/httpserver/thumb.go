package httpserver

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"strconv"

	// decoders
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	defaultThumbSize = 160
	minThumbSize     = 16
	maxThumbSize     = 1024

	// maxThumbPixels bounds the decoded source. Decoders allocate the whole
	// pixel buffer from header dimensions, so this is checked before decoding.
	maxThumbPixels = 40_000_000
	thumbQuality   = 82
)

var (
	errNotImage      = errors.New("not a decodable image")
	errImageTooLarge = errors.New("image dimensions exceed the thumbnail budget")
)

// thumbSize parses the ?thumb= value. An empty or non-numeric value gets the
// default; anything else is clamped.
func thumbSize(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultThumbSize
	}
	return min(max(n, minThumbSize), maxThumbSize)
}

// renderThumb scales the image at absPath so its longer side is at most
// size pixels and returns it as JPEG. Nothing is cached on disk.
func renderThumb(absPath string, size int) ([]byte, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return nil, errNotImage
	}
	if err := checkPixels(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind: %w", err)
	}
	src, _, err := image.Decode(f)
	if err != nil {
		return nil, errNotImage
	}

	sb := src.Bounds()
	// the decoded bounds may disagree with the header; trust neither blindly
	if err := checkPixels(sb.Dx(), sb.Dy()); err != nil {
		return nil, err
	}
	dst := image.NewRGBA(fitWithin(sb.Dx(), sb.Dy(), size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, sb, draw.Over, nil)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: thumbQuality}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func checkPixels(w, h int) error {
	if w <= 0 || h <= 0 {
		return errNotImage
	}
	if int64(w)*int64(h) > maxThumbPixels {
		return errImageTooLarge
	}
	return nil
}

// fitWithin returns the rectangle for a w x h image scaled so its longer side
// is at most size, rounding the shorter side and never dropping below 1px.
// Images already small enough keep their dimensions.
func fitWithin(w, h, size int) image.Rectangle {
	long := max(w, h)
	if long <= size {
		return image.Rect(0, 0, w, h)
	}
	scale := func(n int) int {
		return max(int((int64(n)*int64(size)+int64(long)/2)/int64(long)), 1)
	}
	return image.Rect(0, 0, scale(w), scale(h))
}
