package wayland

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// ShmArena is a memfd-backed region shared with the compositor through a
// single wl_shm_pool. It only ever grows.
type ShmArena struct {
	c    *Client
	fd   int
	data []byte
	pool uint32
}

// NewShmArena returns an arena that allocates nothing until the first Resize.
func (c *Client) NewShmArena() *ShmArena {
	return &ShmArena{c: c, fd: -1}
}

// Resize creates the arena on first use and grows it afterwards. A failed
// resize leaves the existing mapping and pool untouched.
func (a *ShmArena) Resize(size int) error {
	if size <= len(a.data) {
		return nil
	}

	if a.fd < 0 {
		fd, err := unix.MemfdCreate("sharepicker-capture", unix.MFD_CLOEXEC)
		if err != nil {
			return fmt.Errorf("memfd_create: %w", err)
		}
		a.fd = fd
	}

	if err := unix.Ftruncate(a.fd, int64(size)); err != nil {
		return fmt.Errorf("grow shm file to %d bytes: %w", size, err)
	}
	data, err := unix.Mmap(a.fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("map %d bytes of shm: %w", size, err)
	}

	if a.pool == 0 {
		pool, err := a.c.createShmPool(a.fd, size)
		if err != nil {
			unix.Munmap(data)
			return fmt.Errorf("create shm pool: %w", err)
		}
		a.pool = pool
	} else if err := a.c.resizeShmPool(a.pool, size); err != nil {
		unix.Munmap(data)
		return fmt.Errorf("resize shm pool: %w", err)
	}

	if a.data != nil {
		unix.Munmap(a.data)
	}
	a.data = data

	a.c.log.Debug().Int("bytes", size).Msg("Shared memory arena resized")
	return nil
}

// Bytes returns the current mapping. It is invalidated by the next Resize.
func (a *ShmArena) Bytes() []byte {
	return a.data
}

// NewBuffer creates a wl_buffer over a region of the arena.
func (a *ShmArena) NewBuffer(offset, width, height, stride int, format ShmFormat) (uint32, error) {
	if a.pool == 0 {
		return 0, fmt.Errorf("shm arena has no pool yet")
	}
	if offset < 0 || offset+stride*height > len(a.data) {
		return 0, fmt.Errorf("buffer [%d, %d) outside arena of %d bytes", offset, offset+stride*height, len(a.data))
	}
	return a.c.createBuffer(a.pool, offset, width, height, stride, format)
}

// DestroyBuffer releases a buffer created by NewBuffer.
func (a *ShmArena) DestroyBuffer(id uint32) {
	a.c.destroyBuffer(id)
}

// Close unmaps the arena and closes its file.
func (a *ShmArena) Close() error {
	if a.data != nil {
		unix.Munmap(a.data)
		a.data = nil
	}
	if a.fd >= 0 {
		err := unix.Close(a.fd)
		a.fd = -1
		return err
	}
	return nil
}
