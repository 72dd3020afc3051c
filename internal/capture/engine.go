package capture

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/SharePicker/internal/event"
	"github.com/bryanchriswhite/SharePicker/internal/logger"
	"github.com/bryanchriswhite/SharePicker/internal/wayland"
	"github.com/bryanchriswhite/SharePicker/internal/window"
)

// Compositor issues the capture requests. *wayland.Client implements it.
type Compositor interface {
	CaptureToplevel(toplevel uint32, overlayCursor bool) (uint32, error)
	CopyFrame(frame, buffer uint32) error
	DestroyFrame(frame uint32)
}

// State is the position of a frame in the capture handshake.
type State int

const (
	StateRequested State = iota
	StateBufferNegotiated
	StateCopyInFlight
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRequested:
		return "requested"
	case StateBufferNegotiated:
		return "buffer-negotiated"
	case StateCopyInFlight:
		return "copy-in-flight"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PendingFrame is one capture request that has not resolved yet. Window and
// Serial identify the window it was requested for; the window may be gone by
// the time the frame resolves.
type PendingFrame struct {
	ID     uint32
	Window uint32
	Serial uint64
	State  State

	Width  int
	Height int
	Stride int
	Format wayland.ShmFormat
	Invert bool

	negotiated bool
	slot       *Slot
}

// Options tune capture requests.
type Options struct {
	OverlayCursor bool
}

// Engine ties the window registry, pending frames and the buffer pool
// together. It implements wayland.Handler and runs entirely on the dispatch
// goroutine.
type Engine struct {
	comp    Compositor
	pool    *Pool
	windows *window.Registry
	frames  map[uint32]*PendingFrame
	emit    event.Emitter
	opts    Options
	log     *zerolog.Logger
}

var _ wayland.Handler = (*Engine)(nil)

// NewEngine creates an engine that captures through comp into memory from
// backing and reports to emit.
func NewEngine(comp Compositor, backing Backing, emit event.Emitter, opts Options) *Engine {
	return &Engine{
		comp:    comp,
		pool:    NewPool(backing),
		windows: window.NewRegistry(emit),
		frames:  make(map[uint32]*PendingFrame),
		emit:    emit,
		opts:    opts,
		log:     logger.WithComponent("capture"),
	}
}

// Windows exposes the registry for inspection
func (e *Engine) Windows() *window.Registry {
	return e.windows
}

// Pool exposes the buffer pool for inspection
func (e *Engine) Pool() *Pool {
	return e.pool
}

// Pending returns the number of unresolved frames
func (e *Engine) Pending() int {
	return len(e.frames)
}

// Frame returns a copy of a pending frame
func (e *Engine) Frame(id uint32) (PendingFrame, bool) {
	f, ok := e.frames[id]
	if !ok {
		return PendingFrame{}, false
	}
	return *f, true
}

// ToplevelCreated registers the window and requests its one capture.
func (e *Engine) ToplevelCreated(id uint32) {
	w := e.windows.Discover(id)
	e.windows.MarkCaptured(id)

	frame, err := e.comp.CaptureToplevel(id, e.opts.OverlayCursor)
	if err != nil {
		e.log.Warn().Err(err).Uint32("window", id).Msg("Capture request failed, window listed without thumbnail")
		return
	}

	e.frames[frame] = &PendingFrame{
		ID:     frame,
		Window: id,
		Serial: w.Serial,
		State:  StateRequested,
	}
	e.log.Debug().Uint32("window", id).Uint32("frame", frame).Msg("Capture requested")
}

// ToplevelTitle updates the window title
func (e *Engine) ToplevelTitle(id uint32, title string) {
	e.windows.SetTitle(id, title)
}

// ToplevelAppID updates the window app id
func (e *Engine) ToplevelAppID(id uint32, appID string) {
	e.windows.SetAppID(id, appID)
}

// ToplevelClosed removes the window. A frame still pending for it resolves
// normally and its result is dropped.
func (e *Engine) ToplevelClosed(id uint32) {
	e.windows.Close(id)
}

// FrameBuffer records a buffer format the compositor offers for the frame.
// Later offers replace earlier ones until a buffer is attached.
func (e *Engine) FrameBuffer(frame uint32, format wayland.ShmFormat, width, height, stride uint32) {
	f := e.pending(frame, "buffer")
	if f == nil {
		return
	}
	if f.slot != nil {
		e.log.Debug().Uint32("frame", frame).Msg("Buffer offer after attach ignored")
		return
	}

	f.Format = format
	f.Width = int(width)
	f.Height = int(height)
	f.Stride = int(stride)
	f.negotiated = true
}

// FrameFlags records the row order of the frame
func (e *Engine) FrameFlags(frame uint32, flags wayland.FrameFlags) {
	f := e.pending(frame, "flags")
	if f == nil {
		return
	}
	f.Invert = flags&wayland.FlagYInvert != 0
}

// FrameBufferDone attaches a pool buffer and starts the copy. Repeats after
// a buffer is attached are ignored.
func (e *Engine) FrameBufferDone(frame uint32) {
	f := e.pending(frame, "buffer_done")
	if f == nil || f.slot != nil {
		return
	}
	log := e.log.With().Uint32("frame", frame).Uint32("window", f.Window).Logger()

	if !f.negotiated {
		log.Warn().Msg("Buffer negotiation finished without a shm buffer offer")
		e.finish(f, StateFailed)
		return
	}
	if !Supported(f.Format) {
		log.Debug().Stringer("format", f.Format).Msg("Unsupported pixel format, abandoning capture")
		e.finish(f, StateFailed)
		return
	}
	f.State = StateBufferNegotiated

	size, err := bufferSize(f.Width, f.Height, f.Stride)
	if err != nil {
		log.Warn().Err(err).Msg("Compositor offered an unusable buffer")
		e.finish(f, StateFailed)
		return
	}
	if err := e.pool.EnsureCapacity(size); err != nil {
		log.Error().Err(err).Msg("Failed to grow buffer pool")
		e.finish(f, StateFailed)
		return
	}
	slot, err := e.pool.Allocate(f.Width, f.Height, f.Stride, f.Format)
	if err != nil {
		if errors.Is(err, ErrAllocation) {
			log.Error().Err(err).Msg("Failed to allocate capture buffer")
		} else {
			log.Warn().Err(err).Msg("Compositor offered an unusable buffer")
		}
		e.finish(f, StateFailed)
		return
	}
	f.slot = slot

	if err := e.comp.CopyFrame(f.ID, slot.Buffer); err != nil {
		log.Error().Err(err).Msg("Failed to request copy")
		e.finish(f, StateFailed)
		return
	}
	f.State = StateCopyInFlight
}

// FrameReady converts the copied pixels and emits a thumbnail if the window
// that requested it is still open.
func (e *Engine) FrameReady(frame uint32) {
	f := e.pending(frame, "ready")
	if f == nil {
		return
	}
	log := e.log.With().Uint32("frame", frame).Uint32("window", f.Window).Logger()

	if f.State != StateCopyInFlight {
		log.Warn().Stringer("state", f.State).Msg("Frame ready before a copy was requested")
		e.finish(f, StateFailed)
		return
	}

	var rgba []byte
	data, err := e.pool.Bytes(f.slot)
	if err == nil {
		rgba, err = Convert(data, f.Width, f.Height, f.Stride, f.Format, f.Invert)
	}
	if err != nil {
		log.Warn().Err(err).Msg("Failed to convert captured frame")
		e.finish(f, StateFailed)
		return
	}
	e.finish(f, StateReady)

	w, ok := e.windows.Lookup(f.Window)
	if !ok || w.Serial != f.Serial {
		log.Debug().Msg("Window closed before its capture finished, dropping thumbnail")
		return
	}

	e.emit.Emit(event.ThumbnailReady{
		ID:     w.ID,
		Title:  w.Title,
		AppID:  w.AppID,
		Width:  f.Width,
		Height: f.Height,
		RGBA:   rgba,
	})
	log.Debug().Int("width", f.Width).Int("height", f.Height).Msg("Thumbnail ready")
}

// FrameFailed drops the frame. Captures are never retried.
func (e *Engine) FrameFailed(frame uint32) {
	f := e.pending(frame, "failed")
	if f == nil {
		return
	}
	e.log.Debug().Uint32("frame", frame).Uint32("window", f.Window).Msg("Compositor failed capture")
	e.finish(f, StateFailed)
}

func (e *Engine) pending(frame uint32, ev string) *PendingFrame {
	f, ok := e.frames[frame]
	if !ok {
		e.log.Debug().Uint32("frame", frame).Str("event", ev).Msg("Event for unknown frame ignored")
		return nil
	}
	return f
}

// finish releases everything the frame holds. The frame record is removed.
func (e *Engine) finish(f *PendingFrame, state State) {
	f.State = state
	e.pool.Release(f.slot)
	f.slot = nil
	e.comp.DestroyFrame(f.ID)
	delete(e.frames, f.ID)
}
