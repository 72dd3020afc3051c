// Package event defines the domain events the capture engine produces and the
// bridge that carries them from the engine goroutine to a consumer.
package event

// Event is one of WindowUpserted, WindowRemoved, ThumbnailReady or
// ProtocolError.
type Event interface {
	Kind() string
}

// WindowUpserted carries the full current metadata of a window.
type WindowUpserted struct {
	ID    uint32
	Title string
	AppID string
}

// WindowRemoved reports that a window closed.
type WindowRemoved struct {
	ID uint32
}

// ThumbnailReady carries a captured window image as tightly packed,
// top-to-bottom RGBA bytes. Title and AppID are the values current when the
// capture completed.
type ThumbnailReady struct {
	ID     uint32
	Title  string
	AppID  string
	Width  int
	Height int
	RGBA   []byte
}

// ProtocolError reports a failure that stopped the engine.
type ProtocolError struct {
	Message string
}

func (WindowUpserted) Kind() string { return "upsert" }
func (WindowRemoved) Kind() string  { return "remove" }
func (ThumbnailReady) Kind() string { return "thumbnail" }
func (ProtocolError) Kind() string  { return "error" }

// Emitter accepts events from the engine. Emit must not block.
type Emitter interface {
	Emit(ev Event)
}
