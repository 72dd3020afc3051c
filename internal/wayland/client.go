// Package wayland is the compositor side of the capture engine: it owns the
// socket, binds the globals the engine needs, tracks protocol objects and
// routes incoming events to a Handler through a table keyed by object kind.
package wayland

import (
	"context"
	"errors"
	"fmt"

	"github.com/bryanchriswhite/SharePicker/internal/logger"
	"github.com/bryanchriswhite/SharePicker/internal/wire"
	"github.com/rs/zerolog"
)

var (
	// ErrMissingGlobal is returned when the compositor does not advertise an
	// interface the engine requires, or advertises it at too low a version.
	ErrMissingGlobal = errors.New("required global not available")

	// ErrUnsupportedRequest is returned when a request needs a newer version
	// of an interface than the one bound.
	ErrUnsupportedRequest = errors.New("request not supported by bound interface version")

	// ErrMalformedEvent wraps decode failures of incoming events.
	ErrMalformedEvent = errors.New("malformed event")
)

// DisplayError is a fatal protocol error reported by the compositor.
type DisplayError struct {
	ObjectID uint32
	Code     uint32
	Message  string
}

func (e *DisplayError) Error() string {
	return fmt.Sprintf("compositor error on object %d (code %d): %s", e.ObjectID, e.Code, e.Message)
}

// Handler receives the events the capture engine cares about. All methods are
// called from the goroutine running Client.Run.
type Handler interface {
	ToplevelCreated(id uint32)
	ToplevelTitle(id uint32, title string)
	ToplevelAppID(id uint32, appID string)
	ToplevelClosed(id uint32)

	FrameBuffer(frame uint32, format ShmFormat, width, height, stride uint32)
	FrameFlags(frame uint32, flags FrameFlags)
	FrameBufferDone(frame uint32)
	FrameReady(frame uint32)
	FrameFailed(frame uint32)
}

type object struct {
	kind      Kind
	version   uint32
	destroyed bool
}

// transport is the part of wire.Conn the client uses.
type transport interface {
	Enqueue(r *wire.Request) error
	Flush() error
	ReadMessages() ([]*wire.Message, error)
	Close() error
}

// Client is a connection to the compositor. It is not safe for concurrent
// use: every method must be called from the goroutine that runs the loop.
type Client struct {
	conn transport
	log  *zerolog.Logger

	objects map[uint32]*object
	free    []uint32
	nextID  uint32
	done    map[uint32]bool

	globals map[uint32]Global
	formats map[ShmFormat]bool
	handler Handler

	registry        uint32
	shm             uint32
	toplevelManager uint32
	exportManager   uint32
}

// Connect opens the compositor socket named by the environment and collects
// the registry globals.
func Connect() (*Client, error) {
	conn, err := dialEnv()
	if err != nil {
		return nil, err
	}

	c := newClient(conn)
	c.registry = c.newObject(KindRegistry, 1)
	if err := c.enqueue(wire.NewRequest(displayObjectID, displayGetRegistry).PutUint(c.registry)); err != nil {
		conn.Close()
		return nil, err
	}
	if err := c.Roundtrip(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initial roundtrip: %w", err)
	}

	c.log.Debug().Int("globals", len(c.globals)).Msg("Connected to compositor")
	return c, nil
}

func newClient(conn transport) *Client {
	c := &Client{
		conn:    conn,
		log:     logger.WithComponent("wayland"),
		objects: make(map[uint32]*object),
		nextID:  displayObjectID + 1,
		done:    make(map[uint32]bool),
		globals: make(map[uint32]Global),
		formats: make(map[ShmFormat]bool),
	}
	c.objects[displayObjectID] = &object{kind: KindDisplay, version: 1}
	return c
}

// Globals returns the interfaces the compositor advertised.
func (c *Client) Globals() []Global {
	out := make([]Global, 0, len(c.globals))
	for _, g := range c.globals {
		out = append(out, g)
	}
	return out
}

// Attach binds the required globals and starts routing events to h. The
// export manager is bound before the toplevel manager so it is available
// when the first toplevel is announced.
func (c *Client) Attach(h Handler) error {
	c.handler = h

	var err error
	if c.shm, err = c.bind(InterfaceShm, KindShm); err != nil {
		return err
	}
	if c.exportManager, err = c.bind(InterfaceExportManager, KindExportManager); err != nil {
		return err
	}
	if c.toplevelManager, err = c.bind(InterfaceToplevelManager, KindToplevelManager); err != nil {
		return err
	}
	return nil
}

func (c *Client) bind(iface string, kind Kind) (uint32, error) {
	want := Required[iface]

	var global *Global
	for _, g := range c.globals {
		if g.Interface == iface {
			global = &g
			break
		}
	}
	if global == nil {
		return 0, fmt.Errorf("%w: %s", ErrMissingGlobal, iface)
	}
	if global.Version < want.Min {
		return 0, fmt.Errorf("%w: %s version %d below minimum %d", ErrMissingGlobal, iface, global.Version, want.Min)
	}

	version := min(global.Version, want.Max)
	id := c.newObject(kind, version)
	req := wire.NewRequest(c.registry, registryBind).
		PutUint(global.Name).
		PutString(iface).
		PutUint(version).
		PutUint(id)
	if err := c.enqueue(req); err != nil {
		return 0, err
	}

	c.log.Debug().
		Str("interface", iface).
		Uint32("version", version).
		Uint32("id", id).
		Msg("Bound global")
	return id, nil
}

// Roundtrip blocks until the compositor has processed every request sent so
// far, dispatching events that arrive in the meantime.
func (c *Client) Roundtrip() error {
	cb := c.newObject(KindCallback, 1)
	if err := c.enqueue(wire.NewRequest(displayObjectID, displaySync).PutUint(cb)); err != nil {
		return err
	}
	for !c.done[cb] {
		if err := c.conn.Flush(); err != nil {
			return err
		}
		msgs, err := c.conn.ReadMessages()
		if err != nil {
			return err
		}
		for _, msg := range msgs {
			if err := c.dispatch(msg); err != nil {
				return err
			}
		}
	}
	delete(c.done, cb)
	return nil
}

// Run is the dispatch loop: flush outgoing requests, block for the next batch
// of events, dispatch it. It returns when the connection fails or ctx is
// cancelled; cancellation closes the socket without a protocol teardown.
func (c *Client) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		c.conn.Close()
	})
	defer stop()

	for {
		if err := c.conn.Flush(); err != nil {
			return c.loopErr(ctx, err)
		}
		msgs, err := c.conn.ReadMessages()
		if err != nil {
			return c.loopErr(ctx, err)
		}
		for _, msg := range msgs {
			if err := c.dispatch(msg); err != nil {
				return err
			}
		}
	}
}

func (c *Client) loopErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// Close shuts the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) enqueue(r *wire.Request) error {
	return c.conn.Enqueue(r)
}

func (c *Client) newObject(kind Kind, version uint32) uint32 {
	var id uint32
	if n := len(c.free); n > 0 {
		id = c.free[n-1]
		c.free = c.free[:n-1]
	} else {
		id = c.nextID
		c.nextID++
	}
	c.objects[id] = &object{kind: kind, version: version}
	return id
}

// destroyObject marks a client object dead. Its id is recycled once the
// compositor acknowledges with delete_id; server-created ids are forgotten
// immediately.
func (c *Client) destroyObject(id uint32) {
	obj, ok := c.objects[id]
	if !ok {
		return
	}
	if id >= serverIDStart {
		delete(c.objects, id)
		return
	}
	obj.destroyed = true
}

func (c *Client) deleteID(id uint32) {
	if _, ok := c.objects[id]; !ok {
		c.log.Warn().Uint32("id", id).Msg("delete_id for unknown object")
		return
	}
	delete(c.objects, id)
	if id < serverIDStart {
		c.free = append(c.free, id)
	}
}

// CaptureToplevel requests a one-shot export of the toplevel's contents and
// returns the new frame's id.
func (c *Client) CaptureToplevel(toplevel uint32, overlayCursor bool) (uint32, error) {
	mgr, ok := c.objects[c.exportManager]
	if !ok || c.exportManager == 0 {
		return 0, fmt.Errorf("%w: export manager not bound", ErrMissingGlobal)
	}
	if mgr.version < exportHandleCaptureSince {
		return 0, fmt.Errorf("%w: capture by toplevel handle needs %s v%d, bound v%d",
			ErrUnsupportedRequest, InterfaceExportManager, exportHandleCaptureSince, mgr.version)
	}

	var cursor int32
	if overlayCursor {
		cursor = 1
	}
	frame := c.newObject(KindExportFrame, mgr.version)
	req := wire.NewRequest(c.exportManager, exportCaptureWithHandle).
		PutUint(frame).
		PutInt(cursor).
		PutUint(toplevel)
	if err := c.enqueue(req); err != nil {
		c.destroyObject(frame)
		return 0, err
	}
	return frame, nil
}

// CopyFrame asks the compositor to copy the frame into buffer.
func (c *Client) CopyFrame(frame, buffer uint32) error {
	return c.enqueue(wire.NewRequest(frame, exportFrameCopy).PutUint(buffer).PutInt(0))
}

// DestroyFrame releases the protocol side of a frame.
func (c *Client) DestroyFrame(frame uint32) {
	if obj, ok := c.objects[frame]; !ok || obj.destroyed {
		return
	}
	if err := c.enqueue(wire.NewRequest(frame, exportFrameDestroy)); err != nil {
		c.log.Warn().Err(err).Uint32("frame", frame).Msg("Failed to queue frame destroy")
	}
	c.destroyObject(frame)
}

func (c *Client) releaseToplevel(id uint32) {
	if err := c.enqueue(wire.NewRequest(id, toplevelHandleDestroy)); err != nil {
		c.log.Warn().Err(err).Uint32("toplevel", id).Msg("Failed to queue toplevel destroy")
	}
	c.destroyObject(id)
}

func (c *Client) createShmPool(fd int, size int) (uint32, error) {
	if c.shm == 0 {
		return 0, fmt.Errorf("%w: %s not bound", ErrMissingGlobal, InterfaceShm)
	}
	pool := c.newObject(KindShmPool, 1)
	req := wire.NewRequest(c.shm, shmCreatePool).
		PutUint(pool).
		PutFD(fd).
		PutInt(int32(size))
	if err := c.enqueue(req); err != nil {
		c.destroyObject(pool)
		return 0, err
	}
	return pool, nil
}

func (c *Client) resizeShmPool(pool uint32, size int) error {
	return c.enqueue(wire.NewRequest(pool, shmPoolResize).PutInt(int32(size)))
}

func (c *Client) createBuffer(pool uint32, offset, width, height, stride int, format ShmFormat) (uint32, error) {
	buf := c.newObject(KindBuffer, 1)
	req := wire.NewRequest(pool, shmPoolCreateBuffer).
		PutUint(buf).
		PutInt(int32(offset)).
		PutInt(int32(width)).
		PutInt(int32(height)).
		PutInt(int32(stride)).
		PutUint(uint32(format))
	if err := c.enqueue(req); err != nil {
		c.destroyObject(buf)
		return 0, err
	}
	return buf, nil
}

func (c *Client) destroyBuffer(buf uint32) {
	if obj, ok := c.objects[buf]; !ok || obj.destroyed {
		return
	}
	if err := c.enqueue(wire.NewRequest(buf, bufferDestroy)); err != nil {
		c.log.Warn().Err(err).Uint32("buffer", buf).Msg("Failed to queue buffer destroy")
	}
	c.destroyObject(buf)
}
