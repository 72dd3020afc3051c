package capture

import (
	"errors"
	"testing"

	"github.com/bryanchriswhite/SharePicker/internal/wayland"
)

func TestEnsureCapacityIsRunningMax(t *testing.T) {
	sizes := []int{64, 32, 256, 256, 16, 1024, 512}

	p := NewPool(newFakeBacking())
	largest, prev := 0, 0
	for i, n := range sizes {
		if err := p.EnsureCapacity(n); err != nil {
			t.Fatalf("EnsureCapacity(%d): %v", n, err)
		}
		if n > largest {
			largest = n
		}
		if p.Capacity() != largest {
			t.Errorf("after %v expected capacity %d, got %d", sizes[:i+1], largest, p.Capacity())
		}
		if p.Capacity() < prev {
			t.Errorf("capacity shrank from %d to %d", prev, p.Capacity())
		}
		prev = p.Capacity()
	}
}

func TestEnsureCapacityFailureKeepsPool(t *testing.T) {
	b := newFakeBacking()
	p := NewPool(b)
	if err := p.EnsureCapacity(128); err != nil {
		t.Fatal(err)
	}

	b.resizeErr = errors.New("memfd full")
	err := p.EnsureCapacity(4096)
	if !errors.Is(err, ErrAllocation) {
		t.Fatalf("expected ErrAllocation, got %v", err)
	}
	if p.Capacity() != 128 || len(b.data) != 128 {
		t.Errorf("expected pool to stay at 128 bytes, got %d", p.Capacity())
	}
}

func TestAllocateFirstFitAndGrowth(t *testing.T) {
	b := newFakeBacking()
	p := NewPool(b)

	a, err := p.Allocate(4, 4, 16, wayland.FormatARGB8888) // 64 bytes at 0
	if err != nil {
		t.Fatal(err)
	}
	c, err := p.Allocate(2, 2, 8, wayland.FormatARGB8888) // 16 bytes at 64
	if err != nil {
		t.Fatal(err)
	}
	if p.Capacity() != 80 {
		t.Errorf("expected pool grown to 80, got %d", p.Capacity())
	}
	if b.buffers[c.Buffer].offset != 64 {
		t.Errorf("expected second slot at 64, got %d", b.buffers[c.Buffer].offset)
	}

	p.Release(a)
	d, err := p.Allocate(2, 2, 8, wayland.FormatXRGB8888)
	if err != nil {
		t.Fatal(err)
	}
	if b.buffers[d.Buffer].offset != 0 {
		t.Errorf("expected freed gap to be reused, got offset %d", b.buffers[d.Buffer].offset)
	}
	if p.Capacity() != 80 {
		t.Errorf("expected no growth when a gap fits, got %d", p.Capacity())
	}
	if p.Live() != 2 {
		t.Errorf("expected 2 live slots, got %d", p.Live())
	}
}

func TestBytesFollowsRemap(t *testing.T) {
	b := newFakeBacking()
	p := NewPool(b)

	s, err := p.Allocate(1, 1, 4, wayland.FormatARGB8888)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.EnsureCapacity(4096); err != nil {
		t.Fatal(err)
	}
	b.data[0] = 0x42

	data, err := p.Bytes(s)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 4 || data[0] != 0x42 {
		t.Errorf("expected slot bytes from the new mapping, got %v", data)
	}
}

func TestReleaseDestroysBufferOnce(t *testing.T) {
	b := newFakeBacking()
	p := NewPool(b)

	s, err := p.Allocate(1, 1, 4, wayland.FormatARGB8888)
	if err != nil {
		t.Fatal(err)
	}
	p.Release(s)
	p.Release(s)
	p.Release(nil)

	if len(b.destroyed) != 1 {
		t.Errorf("expected one destroy, got %v", b.destroyed)
	}
	if _, err := p.Bytes(s); err == nil {
		t.Error("expected Bytes on a released slot to fail")
	}
}

func TestAllocateRejectsBadGeometry(t *testing.T) {
	p := NewPool(newFakeBacking())

	if _, err := p.Allocate(4, 4, 8, wayland.FormatARGB8888); !errors.Is(err, ErrProtocolViolation) {
		t.Errorf("expected ErrProtocolViolation for short stride, got %v", err)
	}
	if _, err := p.Allocate(0, 4, 8, wayland.FormatARGB8888); !errors.Is(err, ErrProtocolViolation) {
		t.Errorf("expected ErrProtocolViolation for zero width, got %v", err)
	}
	if _, err := p.Allocate(0x10000, 0x10000, 0x40000, wayland.FormatARGB8888); !errors.Is(err, ErrProtocolViolation) {
		t.Errorf("expected ErrProtocolViolation for a buffer past 2GiB, got %v", err)
	}
	if p.Capacity() != 0 {
		t.Errorf("expected no allocation, got capacity %d", p.Capacity())
	}
}
