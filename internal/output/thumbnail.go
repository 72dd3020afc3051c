// Package output renders captured windows for consumers: scaled thumbnails,
// PNG files and a labelled contact sheet.
package output

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	"github.com/bryanchriswhite/SharePicker/internal/catalog"
)

// Fit scales img down to fit inside maxWidth x maxHeight, keeping its aspect
// ratio. Images that already fit are returned unchanged. A non-positive
// bound leaves that dimension unconstrained.
func Fit(img image.Image, maxWidth, maxHeight int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return img
	}

	scale := 1.0
	if maxWidth > 0 && w > maxWidth {
		scale = float64(maxWidth) / float64(w)
	}
	if maxHeight > 0 && float64(h)*scale > float64(maxHeight) {
		scale = float64(maxHeight) / float64(h)
	}
	if scale >= 1 {
		return img
	}

	dw := max(1, int(float64(w)*scale+0.5))
	dh := max(1, int(float64(h)*scale+0.5))
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Image returns the thumbnail as an image sharing its pixels.
func Image(t *catalog.Thumbnail) *image.RGBA {
	return &image.RGBA{
		Pix:    t.RGBA,
		Stride: t.Width * 4,
		Rect:   image.Rect(0, 0, t.Width, t.Height),
	}
}

// EncodePNG encodes img as PNG
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// ThumbnailPNG fits the entry's thumbnail and encodes it as PNG.
func ThumbnailPNG(e catalog.Entry, maxWidth, maxHeight int) ([]byte, error) {
	if e.Thumbnail == nil {
		return nil, fmt.Errorf("window %d has no thumbnail", e.ID)
	}
	return EncodePNG(Fit(Image(e.Thumbnail), maxWidth, maxHeight))
}

// WriteThumbnails writes <id>.png into dir for every entry with a thumbnail
// and returns the paths written.
func WriteThumbnails(dir string, entries []catalog.Entry, maxWidth, maxHeight int) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var written []string
	for _, e := range entries {
		if !e.HasThumbnail() {
			continue
		}
		data, err := ThumbnailPNG(e, maxWidth, maxHeight)
		if err != nil {
			return written, err
		}
		path := filepath.Join(dir, fmt.Sprintf("%d.png", e.ID))
		if err := os.WriteFile(path, data, 0644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}
