package capture

import (
	"encoding/binary"
	"fmt"
	"image"

	"github.com/bryanchriswhite/SharePicker/internal/wayland"
)

// Supported reports whether Convert can decode format
func Supported(format wayland.ShmFormat) bool {
	return format == wayland.FormatARGB8888 || format == wayland.FormatXRGB8888
}

// Convert decodes a captured shm buffer into tightly packed RGBA rows ordered
// top to bottom. Bytes past width*4 in each source row are ignored. When
// invert is set the first source row is the bottom of the image.
func Convert(src []byte, width, height, stride int, format wayland.ShmFormat, invert bool) ([]byte, error) {
	if !Supported(format) {
		return nil, fmt.Errorf("%w: %s (%d)", ErrUnsupportedFormat, format, uint32(format))
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: empty frame %dx%d", ErrProtocolViolation, width, height)
	}
	rowBytes := width * 4
	if stride < rowBytes {
		return nil, fmt.Errorf("%w: stride %d shorter than row of %d bytes", ErrProtocolViolation, stride, rowBytes)
	}
	if need := (height-1)*stride + rowBytes; need > len(src) {
		return nil, fmt.Errorf("%w: buffer holds %d bytes, frame needs %d", ErrProtocolViolation, len(src), need)
	}

	opaque := format == wayland.FormatXRGB8888
	dst := make([]byte, rowBytes*height)

	for y := 0; y < height; y++ {
		srcY := y
		if invert {
			srcY = height - 1 - y
		}
		row := src[srcY*stride : srcY*stride+rowBytes]
		out := dst[y*rowBytes : (y+1)*rowBytes]

		for x := 0; x < rowBytes; x += 4 {
			px := binary.NativeEndian.Uint32(row[x:])
			out[x] = byte(px >> 16)
			out[x+1] = byte(px >> 8)
			out[x+2] = byte(px)
			if opaque {
				out[x+3] = 0xff
			} else {
				out[x+3] = byte(px >> 24)
			}
		}
	}

	return dst, nil
}

// Image wraps converted pixels without copying them.
func Image(rgba []byte, width, height int) *image.RGBA {
	return &image.RGBA{
		Pix:    rgba,
		Stride: width * 4,
		Rect:   image.Rect(0, 0, width, height),
	}
}
