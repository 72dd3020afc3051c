// Package window tracks the toplevel windows the compositor reports.
package window

import (
	"github.com/bryanchriswhite/SharePicker/internal/event"
	"github.com/bryanchriswhite/SharePicker/internal/logger"
)

// Window is the registry's view of one toplevel.
type Window struct {
	ID    uint32
	Title string
	AppID string
	// Captured is set once a capture has been requested for the window.
	Captured bool
	// Serial is unique for the life of the process, unlike ID which the
	// compositor may reuse after a close.
	Serial uint64
}

// Registry holds the open windows keyed by compositor id. It is owned by the
// dispatch goroutine and is not safe for concurrent use.
type Registry struct {
	windows map[uint32]*Window
	serial  uint64
	emit    event.Emitter
}

// NewRegistry creates an empty registry that reports changes to emit
func NewRegistry(emit event.Emitter) *Registry {
	return &Registry{
		windows: make(map[uint32]*Window),
		emit:    emit,
	}
}

// Discover inserts a window with empty metadata and emits its first upsert.
// A second discovery of a live id replaces the entry with a fresh serial.
func (r *Registry) Discover(id uint32) Window {
	if _, ok := r.windows[id]; ok {
		logger.WithComponent("window-registry").Warn().
			Uint32("id", id).
			Msg("Window discovered twice, replacing entry")
	}

	r.serial++
	w := &Window{ID: id, Serial: r.serial}
	r.windows[id] = w

	r.upsert(w)
	return *w
}

// SetTitle updates the title of id and re-emits the full window state
func (r *Registry) SetTitle(id uint32, title string) {
	w, ok := r.windows[id]
	if !ok {
		r.unknown(id, "title")
		return
	}
	w.Title = title
	r.upsert(w)
}

// SetAppID updates the app id of id and re-emits the full window state
func (r *Registry) SetAppID(id uint32, appID string) {
	w, ok := r.windows[id]
	if !ok {
		r.unknown(id, "app_id")
		return
	}
	w.AppID = appID
	r.upsert(w)
}

// MarkCaptured records that a capture was requested for id
func (r *Registry) MarkCaptured(id uint32) {
	if w, ok := r.windows[id]; ok {
		w.Captured = true
	}
}

// Close removes id and emits WindowRemoved. Closing an absent id does nothing.
func (r *Registry) Close(id uint32) {
	if _, ok := r.windows[id]; !ok {
		return
	}
	delete(r.windows, id)
	r.emit.Emit(event.WindowRemoved{ID: id})
}

// Lookup returns a copy of the window with the given id
func (r *Registry) Lookup(id uint32) (Window, bool) {
	w, ok := r.windows[id]
	if !ok {
		return Window{}, false
	}
	return *w, true
}

// Len returns the number of open windows
func (r *Registry) Len() int {
	return len(r.windows)
}

func (r *Registry) upsert(w *Window) {
	r.emit.Emit(event.WindowUpserted{ID: w.ID, Title: w.Title, AppID: w.AppID})
}

func (r *Registry) unknown(id uint32, field string) {
	logger.WithComponent("window-registry").Debug().
		Uint32("id", id).
		Str("field", field).
		Msg("Metadata for unknown window ignored")
}
