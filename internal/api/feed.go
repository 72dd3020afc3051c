package api

import (
	"context"
	"sync"

	"github.com/bryanchriswhite/SharePicker/internal/catalog"
	"github.com/bryanchriswhite/SharePicker/internal/event"
	"github.com/bryanchriswhite/SharePicker/internal/logger"
	"github.com/bryanchriswhite/SharePicker/internal/output"
)

// Message is the JSON form of a domain event sent to websocket clients
type Message struct {
	Type    string `json:"type"`
	ID      uint32 `json:"id,omitempty"`
	Title   string `json:"title"`
	AppID   string `json:"app_id"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	PNG     []byte `json:"png,omitempty"`
	Message string `json:"message,omitempty"`
}

// Feed applies domain events to the catalog and fans them out to
// subscribers. Slow subscribers miss messages instead of stalling the feed.
type Feed struct {
	catalog   *catalog.Catalog
	maxWidth  int
	maxHeight int

	// seq orders Publish against Join
	seq       sync.Mutex
	mu        sync.RWMutex
	listeners []chan Message
	closed    bool
}

// NewFeed creates a feed over cat; thumbnails are fitted to maxWidth x maxHeight
func NewFeed(cat *catalog.Catalog, maxWidth, maxHeight int) *Feed {
	return &Feed{
		catalog:   cat,
		maxWidth:  maxWidth,
		maxHeight: maxHeight,
	}
}

// Consume applies events until the channel closes or ctx is done, then
// closes every subscriber.
func (f *Feed) Consume(ctx context.Context, events <-chan event.Event) {
	defer f.close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			f.Publish(ev)
		}
	}
}

// Publish applies ev to the catalog and notifies subscribers
func (f *Feed) Publish(ev event.Event) {
	f.seq.Lock()
	defer f.seq.Unlock()

	f.catalog.Apply(ev)

	msg, ok := f.message(ev)
	if !ok {
		return
	}
	f.notify(msg)
}

func (f *Feed) message(ev event.Event) (Message, bool) {
	switch ev := ev.(type) {
	case event.WindowUpserted:
		return Message{Type: ev.Kind(), ID: ev.ID, Title: ev.Title, AppID: ev.AppID}, true
	case event.WindowRemoved:
		return Message{Type: ev.Kind(), ID: ev.ID}, true
	case event.ProtocolError:
		return Message{Type: ev.Kind(), Message: ev.Message}, true
	case event.ThumbnailReady:
		entry := catalog.Entry{
			ID:        ev.ID,
			Title:     ev.Title,
			AppID:     ev.AppID,
			Thumbnail: &catalog.Thumbnail{Width: ev.Width, Height: ev.Height, RGBA: ev.RGBA},
		}
		return f.thumbnailMessage(entry)
	}
	return Message{}, false
}

func (f *Feed) thumbnailMessage(e catalog.Entry) (Message, bool) {
	img := output.Fit(output.Image(e.Thumbnail), f.maxWidth, f.maxHeight)
	data, err := output.EncodePNG(img)
	if err != nil {
		logger.WithComponent("api").Warn().Err(err).Uint32("id", e.ID).Msg("Failed to encode thumbnail")
		return Message{}, false
	}
	return Message{
		Type:   "thumbnail",
		ID:     e.ID,
		Title:  e.Title,
		AppID:  e.AppID,
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
		PNG:    data,
	}, true
}

// Join subscribes and returns the messages that bring the new subscriber up
// to date. Every published event lands in exactly one of the two.
func (f *Feed) Join() (chan Message, []Message) {
	f.seq.Lock()
	entries := f.catalog.Snapshot()
	ch := f.Subscribe()
	f.seq.Unlock()

	return ch, f.replay(entries)
}

func (f *Feed) replay(entries []catalog.Entry) []Message {
	var msgs []Message
	for _, e := range entries {
		msgs = append(msgs, Message{Type: "upsert", ID: e.ID, Title: e.Title, AppID: e.AppID})
		if e.HasThumbnail() {
			if msg, ok := f.thumbnailMessage(e); ok {
				msgs = append(msgs, msg)
			}
		}
	}
	return msgs
}

// Subscribe adds a listener. The channel is closed by Unsubscribe or when
// the feed ends.
func (f *Feed) Subscribe() chan Message {
	ch := make(chan Message, 64)
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		close(ch)
		return ch
	}
	f.listeners = append(f.listeners, ch)
	return ch
}

// Unsubscribe removes a listener
func (f *Feed) Unsubscribe(ch chan Message) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, listener := range f.listeners {
		if listener == ch {
			f.listeners = append(f.listeners[:i], f.listeners[i+1:]...)
			close(ch)
			break
		}
	}
}

// Subscribers returns the number of listeners
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.listeners)
}

func (f *Feed) notify(msg Message) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, listener := range f.listeners {
		select {
		case listener <- msg:
		default:
			// Skip if channel is full
		}
	}
}

func (f *Feed) close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	for _, listener := range f.listeners {
		close(listener)
	}
	f.listeners = nil
}
