package wayland

import (
	"errors"
	"fmt"
	"testing"

	"github.com/bryanchriswhite/SharePicker/internal/wire"
)

type fakeTransport struct {
	sent    []*wire.Message
	batches [][]*wire.Message
	closed  bool
}

func (f *fakeTransport) Enqueue(r *wire.Request) error {
	b, err := r.Bytes()
	if err != nil {
		return err
	}
	msgs, _, err := wire.Parse(append([]byte{}, b...))
	if err != nil {
		return err
	}
	f.sent = append(f.sent, msgs...)
	return nil
}

func (f *fakeTransport) Flush() error { return nil }

func (f *fakeTransport) ReadMessages() ([]*wire.Message, error) {
	if len(f.batches) == 0 {
		return nil, errors.New("no more events")
	}
	b := f.batches[0]
	f.batches = f.batches[1:]
	return b, nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

type recordingHandler struct {
	calls []string
}

func (h *recordingHandler) record(format string, args ...any) {
	h.calls = append(h.calls, fmt.Sprintf(format, args...))
}

func (h *recordingHandler) ToplevelCreated(id uint32) { h.record("created %d", id) }
func (h *recordingHandler) ToplevelTitle(id uint32, t string) { h.record("title %d %s", id, t) }
func (h *recordingHandler) ToplevelAppID(id uint32, a string) { h.record("app_id %d %s", id, a) }
func (h *recordingHandler) ToplevelClosed(id uint32) { h.record("closed %d", id) }
func (h *recordingHandler) FrameFlags(id uint32, f FrameFlags) { h.record("flags %d %d", id, f) }
func (h *recordingHandler) FrameBufferDone(id uint32) { h.record("buffer_done %d", id) }
func (h *recordingHandler) FrameReady(id uint32) { h.record("ready %d", id) }
func (h *recordingHandler) FrameFailed(id uint32) { h.record("failed %d", id) }
func (h *recordingHandler) FrameBuffer(id uint32, f ShmFormat, w, hh, s uint32) {
	h.record("buffer %d %s %dx%d/%d", id, f, w, hh, s)
}

func event(t *testing.T, r *wire.Request) *wire.Message {
	t.Helper()
	b, err := r.Bytes()
	if err != nil {
		t.Fatalf("encode event: %v", err)
	}
	msgs, _, err := wire.Parse(b)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("parse event: %v", err)
	}
	return msgs[0]
}

func global(t *testing.T, registry, name uint32, iface string, version uint32) *wire.Message {
	return event(t, wire.NewRequest(registry, registryEventGlobal).PutUint(name).PutString(iface).PutUint(version))
}

// setupClient returns a client whose registry advertised the given export
// manager version, already attached to a recording handler.
func setupClient(t *testing.T, exportVersion uint32) (*Client, *fakeTransport, *recordingHandler) {
	t.Helper()
	ft := &fakeTransport{}
	c := newClient(ft)
	c.registry = c.newObject(KindRegistry, 1)

	for _, m := range []*wire.Message{
		global(t, c.registry, 1, InterfaceShm, 1),
		global(t, c.registry, 2, InterfaceToplevelManager, 3),
		global(t, c.registry, 3, InterfaceExportManager, exportVersion),
		global(t, c.registry, 4, "wl_seat", 9),
	} {
		if err := c.dispatch(m); err != nil {
			t.Fatalf("dispatch global: %v", err)
		}
	}

	h := &recordingHandler{}
	if err := c.Attach(h); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	return c, ft, h
}

func TestAttachBindsRequiredGlobals(t *testing.T) {
	c, ft, _ := setupClient(t, 2)

	binds := map[string]uint32{}
	for _, m := range ft.sent {
		if m.Sender != c.registry || m.Opcode != registryBind {
			continue
		}
		m.Uint()
		iface, _ := m.Str()
		version, _ := m.Uint()
		binds[iface] = version
	}

	want := map[string]uint32{
		InterfaceShm:             1,
		InterfaceToplevelManager: 3,
		InterfaceExportManager:   2,
	}
	for iface, v := range want {
		if binds[iface] != v {
			t.Errorf("expected %s bound at v%d, got v%d", iface, v, binds[iface])
		}
	}
	if _, ok := binds["wl_seat"]; ok {
		t.Error("did not expect wl_seat to be bound")
	}
}

func TestAttachMissingGlobal(t *testing.T) {
	c := newClient(&fakeTransport{})
	c.registry = c.newObject(KindRegistry, 1)
	if err := c.dispatch(global(t, c.registry, 1, InterfaceShm, 1)); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	err := c.Attach(&recordingHandler{})
	if !errors.Is(err, ErrMissingGlobal) {
		t.Fatalf("expected ErrMissingGlobal, got %v", err)
	}
}

func TestToplevelLifecycleRouting(t *testing.T) {
	c, ft, h := setupClient(t, 2)
	const handle = 0xff000001

	events := []*wire.Message{
		event(t, wire.NewRequest(c.toplevelManager, toplevelManagerEventToplevel).PutUint(handle)),
		event(t, wire.NewRequest(handle, toplevelEventTitle).PutString("Inbox")),
		event(t, wire.NewRequest(handle, toplevelEventAppID).PutString("thunderbird")),
		event(t, wire.NewRequest(handle, toplevelEventState).PutArray(nil)),
		event(t, wire.NewRequest(handle, toplevelEventDone)),
		event(t, wire.NewRequest(handle, toplevelEventClosed)),
		// Anything after close targets a forgotten id.
		event(t, wire.NewRequest(handle, toplevelEventTitle).PutString("late")),
	}
	for _, m := range events {
		if err := c.dispatch(m); err != nil {
			t.Fatalf("dispatch: %v", err)
		}
	}

	want := []string{
		"created 4278190081",
		"title 4278190081 Inbox",
		"app_id 4278190081 thunderbird",
		"closed 4278190081",
	}
	if len(h.calls) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, h.calls)
	}
	for i := range want {
		if h.calls[i] != want[i] {
			t.Errorf("call %d: expected %q, got %q", i, want[i], h.calls[i])
		}
	}

	last := ft.sent[len(ft.sent)-1]
	if last.Sender != handle || last.Opcode != toplevelHandleDestroy {
		t.Errorf("expected handle destroy request, got object %d opcode %d", last.Sender, last.Opcode)
	}
	if _, ok := c.objects[handle]; ok {
		t.Error("expected server-created handle to be forgotten after close")
	}
}

func TestFrameEventsAndIDRecycling(t *testing.T) {
	c, ft, h := setupClient(t, 2)

	frame, err := c.CaptureToplevel(0xff000001, false)
	if err != nil {
		t.Fatalf("CaptureToplevel: %v", err)
	}
	req := ft.sent[len(ft.sent)-1]
	if req.Sender != c.exportManager || req.Opcode != exportCaptureWithHandle {
		t.Fatalf("expected capture request on export manager, got object %d opcode %d", req.Sender, req.Opcode)
	}

	for _, m := range []*wire.Message{
		event(t, wire.NewRequest(frame, frameEventBuffer).PutUint(uint32(FormatXRGB8888)).PutUint(4).PutUint(2).PutUint(16)),
		event(t, wire.NewRequest(frame, frameEventFlags).PutUint(uint32(FlagYInvert))),
		event(t, wire.NewRequest(frame, frameEventBufferDone)),
	} {
		if err := c.dispatch(m); err != nil {
			t.Fatalf("dispatch: %v", err)
		}
	}

	c.DestroyFrame(frame)
	if err := c.dispatch(event(t, wire.NewRequest(frame, frameEventReady).PutUint(0).PutUint(0).PutUint(0))); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	want := []string{
		fmt.Sprintf("buffer %d xrgb8888 4x2/16", frame),
		fmt.Sprintf("flags %d 1", frame),
		fmt.Sprintf("buffer_done %d", frame),
	}
	if len(h.calls) != len(want) {
		t.Fatalf("expected %v, got %v", want, h.calls)
	}

	if err := c.dispatch(event(t, wire.NewRequest(displayObjectID, displayEventDeleteID).PutUint(frame))); err != nil {
		t.Fatalf("dispatch delete_id: %v", err)
	}
	if next := c.newObject(KindCallback, 1); next != frame {
		t.Errorf("expected id %d to be recycled after delete_id, got %d", frame, next)
	}
}

func TestMalformedFrameEventFailsFrame(t *testing.T) {
	c, _, h := setupClient(t, 2)
	frame, _ := c.CaptureToplevel(0xff000001, true)

	// buffer event carrying only two of its four arguments
	if err := c.dispatch(event(t, wire.NewRequest(frame, frameEventBuffer).PutUint(0).PutUint(4))); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(h.calls) != 1 || h.calls[0] != fmt.Sprintf("failed %d", frame) {
		t.Errorf("expected the frame to be failed, got %v", h.calls)
	}
}

func TestCaptureNeedsHandleCapableExportManager(t *testing.T) {
	c, _, _ := setupClient(t, 1)

	_, err := c.CaptureToplevel(0xff000001, false)
	if !errors.Is(err, ErrUnsupportedRequest) {
		t.Fatalf("expected ErrUnsupportedRequest, got %v", err)
	}
}

func TestDisplayErrorIsFatal(t *testing.T) {
	c, _, _ := setupClient(t, 2)

	err := c.dispatch(event(t, wire.NewRequest(displayObjectID, displayEventError).PutUint(3).PutUint(1).PutString("invalid arguments")))
	var displayErr *DisplayError
	if !errors.As(err, &displayErr) {
		t.Fatalf("expected DisplayError, got %v", err)
	}
	if displayErr.ObjectID != 3 || displayErr.Message != "invalid arguments" {
		t.Errorf("unexpected error contents: %+v", displayErr)
	}
}

func TestUnknownObjectIsSkipped(t *testing.T) {
	c, _, h := setupClient(t, 2)

	if err := c.dispatch(event(t, wire.NewRequest(999, 0).PutUint(1))); err != nil {
		t.Fatalf("expected unknown object to be skipped, got %v", err)
	}
	if len(h.calls) != 0 {
		t.Errorf("expected no handler calls, got %v", h.calls)
	}
}

func TestRoundtripWaitsForCallback(t *testing.T) {
	ft := &fakeTransport{}
	c := newClient(ft)
	c.registry = c.newObject(KindRegistry, 1)
	cbID := c.nextID

	ft.batches = [][]*wire.Message{
		{global(t, c.registry, 1, InterfaceShm, 1)},
		{
			event(t, wire.NewRequest(cbID, callbackEventDone).PutUint(0)),
			event(t, wire.NewRequest(displayObjectID, displayEventDeleteID).PutUint(cbID)),
		},
	}

	if err := c.Roundtrip(); err != nil {
		t.Fatalf("Roundtrip: %v", err)
	}
	if len(c.Globals()) != 1 {
		t.Errorf("expected 1 global collected, got %d", len(c.Globals()))
	}
	if len(ft.batches) != 0 {
		t.Errorf("expected all batches consumed, %d left", len(ft.batches))
	}
}

func TestSocketPath(t *testing.T) {
	tests := []struct {
		name    string
		display string
		runtime string
		want    string
		wantErr bool
	}{
		{name: "default display", runtime: "/run/user/1000", want: "/run/user/1000/wayland-0"},
		{name: "named display", display: "wayland-1", runtime: "/run/user/1000", want: "/run/user/1000/wayland-1"},
		{name: "absolute display", display: "/tmp/wl.sock", want: "/tmp/wl.sock"},
		{name: "missing runtime dir", display: "wayland-1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("WAYLAND_DISPLAY", tt.display)
			t.Setenv("XDG_RUNTIME_DIR", tt.runtime)

			got, err := SocketPath()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected an error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("SocketPath: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
