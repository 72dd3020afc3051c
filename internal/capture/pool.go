package capture

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/SharePicker/internal/logger"
	"github.com/bryanchriswhite/SharePicker/internal/wayland"
)

// Backing is the shared memory a Pool carves buffers out of.
// *wayland.ShmArena implements it.
type Backing interface {
	Resize(size int) error
	Bytes() []byte
	NewBuffer(offset, width, height, stride int, format wayland.ShmFormat) (uint32, error)
	DestroyBuffer(id uint32)
}

// Slot is a region of the pool bound to one protocol buffer. A slot is only
// valid until it is released; its bytes must be read through Pool.Bytes
// since growing the pool remaps the memory.
type Slot struct {
	Buffer uint32
	Width  int
	Height int
	Stride int
	Format wayland.ShmFormat

	offset   int
	size     int
	released bool
}

// Pool is the single growable shared-memory region capture buffers live in.
// Its capacity never decreases. It is not safe for concurrent use.
type Pool struct {
	backing  Backing
	capacity int
	slots    []*Slot // sorted by offset
	log      *zerolog.Logger
}

// NewPool creates an empty pool; no memory is allocated until it is needed.
func NewPool(backing Backing) *Pool {
	return &Pool{
		backing: backing,
		log:     logger.WithComponent("buffer-pool"),
	}
}

// Capacity returns the current size of the pool in bytes
func (p *Pool) Capacity() int {
	return p.capacity
}

// Live returns the number of slots not yet released
func (p *Pool) Live() int {
	return len(p.slots)
}

// EnsureCapacity creates the pool with n bytes, or grows it to exactly n
// bytes if it is smaller. A failure leaves the pool as it was.
func (p *Pool) EnsureCapacity(n int) error {
	if n <= p.capacity {
		return nil
	}
	if err := p.backing.Resize(n); err != nil {
		return fmt.Errorf("%w: grow pool from %d to %d bytes: %w", ErrAllocation, p.capacity, n, err)
	}

	p.log.Debug().
		Int("from", p.capacity).
		Int("to", n).
		Msg("Buffer pool grown")
	p.capacity = n
	return nil
}

// Allocate carves a buffer of stride*height bytes out of the first gap
// between live slots, growing the pool when no gap is large enough.
func (p *Pool) Allocate(width, height, stride int, format wayland.ShmFormat) (*Slot, error) {
	size, err := bufferSize(width, height, stride)
	if err != nil {
		return nil, err
	}

	offset := 0
	at := len(p.slots)
	for i, s := range p.slots {
		if s.offset-offset >= size {
			at = i
			break
		}
		offset = s.offset + s.size
	}

	if offset > math.MaxInt32-size {
		return nil, fmt.Errorf("%w: no room for %d bytes past offset %d", ErrAllocation, size, offset)
	}
	if err := p.EnsureCapacity(offset + size); err != nil {
		return nil, err
	}

	buf, err := p.backing.NewBuffer(offset, width, height, stride, format)
	if err != nil {
		return nil, fmt.Errorf("%w: create buffer at offset %d: %w", ErrAllocation, offset, err)
	}

	slot := &Slot{
		Buffer: buf,
		Width:  width,
		Height: height,
		Stride: stride,
		Format: format,
		offset: offset,
		size:   size,
	}
	p.slots = append(p.slots, nil)
	copy(p.slots[at+1:], p.slots[at:])
	p.slots[at] = slot
	return slot, nil
}

// bufferSize validates buffer geometry and returns stride*height. Offsets and
// sizes travel as int32 on the wire, so larger buffers are rejected.
func bufferSize(width, height, stride int) (int, error) {
	if width <= 0 || height <= 0 || stride < width*4 ||
		int64(stride)*int64(height) > math.MaxInt32 {
		return 0, fmt.Errorf("%w: invalid buffer %dx%d stride %d", ErrProtocolViolation, width, height, stride)
	}
	return stride * height, nil
}

// Bytes returns the slot's region of the current mapping.
func (p *Pool) Bytes(s *Slot) ([]byte, error) {
	if s.released {
		return nil, fmt.Errorf("buffer %d already released", s.Buffer)
	}
	data := p.backing.Bytes()
	if s.offset+s.size > len(data) {
		return nil, fmt.Errorf("buffer %d [%d, %d) outside mapping of %d bytes", s.Buffer, s.offset, s.offset+s.size, len(data))
	}
	return data[s.offset : s.offset+s.size], nil
}

// Release frees the slot and destroys its protocol buffer. Releasing twice
// does nothing.
func (p *Pool) Release(s *Slot) {
	if s == nil || s.released {
		return
	}
	s.released = true

	i := sort.Search(len(p.slots), func(i int) bool { return p.slots[i].offset >= s.offset })
	if i < len(p.slots) && p.slots[i] == s {
		p.slots = append(p.slots[:i], p.slots[i+1:]...)
	}
	p.backing.DestroyBuffer(s.Buffer)
}
