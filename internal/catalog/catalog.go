// Package catalog keeps the consumer's view of the open windows, built by
// applying domain events in the order they arrive.
package catalog

import (
	"sync"

	"github.com/bryanchriswhite/SharePicker/internal/event"
)

// Thumbnail is a captured window image in tightly packed RGBA.
type Thumbnail struct {
	Width  int
	Height int
	RGBA   []byte
}

// Entry is one window as the consumer sees it.
type Entry struct {
	ID        uint32     `json:"id"`
	Title     string     `json:"title"`
	AppID     string     `json:"app_id"`
	Thumbnail *Thumbnail `json:"-"`
}

// HasThumbnail reports whether a capture has arrived for the entry
func (e Entry) HasThumbnail() bool {
	return e.Thumbnail != nil
}

// Catalog is safe for concurrent use.
type Catalog struct {
	mu      sync.RWMutex
	order   []uint32
	entries map[uint32]*Entry
}

// New creates an empty catalog
func New() *Catalog {
	return &Catalog{entries: make(map[uint32]*Entry)}
}

// Apply folds ev into the catalog and reports whether anything changed.
// Thumbnails for unknown windows are ignored.
func (c *Catalog) Apply(ev event.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev := ev.(type) {
	case event.WindowUpserted:
		e, ok := c.entries[ev.ID]
		if !ok {
			e = &Entry{ID: ev.ID}
			c.entries[ev.ID] = e
			c.order = append(c.order, ev.ID)
		}
		e.Title = ev.Title
		e.AppID = ev.AppID
		return true

	case event.ThumbnailReady:
		e, ok := c.entries[ev.ID]
		if !ok {
			return false
		}
		e.Title = ev.Title
		e.AppID = ev.AppID
		e.Thumbnail = &Thumbnail{Width: ev.Width, Height: ev.Height, RGBA: ev.RGBA}
		return true

	case event.WindowRemoved:
		if _, ok := c.entries[ev.ID]; !ok {
			return false
		}
		delete(c.entries, ev.ID)
		for i, id := range c.order {
			if id == ev.ID {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
		return true
	}

	return false
}

// Snapshot returns the entries in discovery order. Thumbnail pixels are
// shared and must not be modified.
func (c *Catalog) Snapshot() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Entry, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.entries[id])
	}
	return out
}

// Get returns the entry for id
func (c *Catalog) Get(id uint32) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Len returns the number of windows
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// Complete reports whether there is at least one window and every window
// has a thumbnail.
func (c *Catalog) Complete() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.order) == 0 {
		return false
	}
	for _, e := range c.entries {
		if e.Thumbnail == nil {
			return false
		}
	}
	return true
}
