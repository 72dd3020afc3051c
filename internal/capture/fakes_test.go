package capture

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/bryanchriswhite/SharePicker/internal/event"
	"github.com/bryanchriswhite/SharePicker/internal/wayland"
)

type fakeCompositor struct {
	nextFrame  uint32
	captureErr error
	copyErr    error

	captured  map[uint32]uint32 // frame -> toplevel
	copies    map[uint32]uint32 // frame -> buffer
	destroyed []uint32
}

func newFakeCompositor() *fakeCompositor {
	return &fakeCompositor{
		nextFrame: 100,
		captured:  make(map[uint32]uint32),
		copies:    make(map[uint32]uint32),
	}
}

func (c *fakeCompositor) CaptureToplevel(toplevel uint32, overlayCursor bool) (uint32, error) {
	if c.captureErr != nil {
		return 0, c.captureErr
	}
	c.nextFrame++
	c.captured[c.nextFrame] = toplevel
	return c.nextFrame, nil
}

func (c *fakeCompositor) CopyFrame(frame, buffer uint32) error {
	if c.copyErr != nil {
		return c.copyErr
	}
	c.copies[frame] = buffer
	return nil
}

func (c *fakeCompositor) DestroyFrame(frame uint32) {
	c.destroyed = append(c.destroyed, frame)
}

func (c *fakeCompositor) frameFor(toplevel uint32) uint32 {
	for frame, tl := range c.captured {
		if tl == toplevel {
			return frame
		}
	}
	return 0
}

type fakeBuffer struct {
	offset, width, height, stride int
}

type fakeBacking struct {
	data      []byte
	resizeErr error
	resizes   []int
	nextBuf   uint32
	buffers   map[uint32]fakeBuffer
	destroyed []uint32
}

func newFakeBacking() *fakeBacking {
	return &fakeBacking{nextBuf: 500, buffers: make(map[uint32]fakeBuffer)}
}

func (b *fakeBacking) Resize(size int) error {
	if b.resizeErr != nil {
		return b.resizeErr
	}
	grown := make([]byte, size)
	copy(grown, b.data)
	b.data = grown
	b.resizes = append(b.resizes, size)
	return nil
}

func (b *fakeBacking) Bytes() []byte { return b.data }

func (b *fakeBacking) NewBuffer(offset, width, height, stride int, format wayland.ShmFormat) (uint32, error) {
	if offset+stride*height > len(b.data) {
		return 0, errors.New("buffer outside backing")
	}
	b.nextBuf++
	b.buffers[b.nextBuf] = fakeBuffer{offset, width, height, stride}
	return b.nextBuf, nil
}

func (b *fakeBacking) DestroyBuffer(id uint32) {
	delete(b.buffers, id)
	b.destroyed = append(b.destroyed, id)
}

// fill writes word into every pixel of buffer id, as the compositor would
// on copy.
func (b *fakeBacking) fill(id uint32, word uint32) error {
	buf, ok := b.buffers[id]
	if !ok {
		return fmt.Errorf("no buffer %d", id)
	}
	for y := 0; y < buf.height; y++ {
		for x := 0; x < buf.width; x++ {
			binary.NativeEndian.PutUint32(b.data[buf.offset+y*buf.stride+x*4:], word)
		}
	}
	return nil
}

type recorder struct {
	events []event.Event
}

func (r *recorder) Emit(ev event.Event) { r.events = append(r.events, ev) }

func (r *recorder) thumbnails() []event.ThumbnailReady {
	var out []event.ThumbnailReady
	for _, ev := range r.events {
		if th, ok := ev.(event.ThumbnailReady); ok {
			out = append(out, th)
		}
	}
	return out
}

func (r *recorder) errors() int {
	n := 0
	for _, ev := range r.events {
		if _, ok := ev.(event.ProtocolError); ok {
			n++
		}
	}
	return n
}
