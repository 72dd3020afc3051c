package wayland

import (
	"fmt"

	"github.com/bryanchriswhite/SharePicker/internal/wire"
)

// eventFunc decodes one event for an object of a given kind. A returned error
// is fatal to the connection; malformed or unexpected events are logged and
// dropped inside the function instead.
type eventFunc func(c *Client, id uint32, obj *object, msg *wire.Message) error

var dispatchTable = map[Kind]eventFunc{
	KindDisplay:         displayEvent,
	KindRegistry:        registryEvent,
	KindCallback:        callbackEvent,
	KindShm:             shmEvent,
	KindShmPool:         noEvents,
	KindBuffer:          bufferEvent,
	KindToplevelManager: toplevelManagerEvent,
	KindToplevel:        toplevelEvent,
	KindExportManager:   noEvents,
	KindExportFrame:     exportFrameEvent,
}

func (c *Client) dispatch(msg *wire.Message) error {
	obj, ok := c.objects[msg.Sender]
	if !ok {
		c.log.Warn().
			Uint32("object", msg.Sender).
			Uint16("opcode", msg.Opcode).
			Msg("Event for unknown object, dropping")
		return nil
	}
	if obj.destroyed {
		// Events can still be in flight for objects we destroyed before the
		// compositor saw the request.
		return nil
	}

	fn, ok := dispatchTable[obj.kind]
	if !ok {
		c.log.Warn().Stringer("kind", obj.kind).Msg("No dispatcher for object kind")
		return nil
	}
	return fn(c, msg.Sender, obj, msg)
}

func (c *Client) malformed(id uint32, obj *object, msg *wire.Message, err error) {
	c.log.Warn().
		Err(fmt.Errorf("%w: %v", ErrMalformedEvent, err)).
		Stringer("kind", obj.kind).
		Uint32("object", id).
		Uint16("opcode", msg.Opcode).
		Msg("Dropping malformed event")
}

func (c *Client) unexpected(id uint32, obj *object, msg *wire.Message) {
	c.log.Warn().
		Stringer("kind", obj.kind).
		Uint32("object", id).
		Uint16("opcode", msg.Opcode).
		Msg("Unknown event opcode, dropping")
}

func noEvents(c *Client, id uint32, obj *object, msg *wire.Message) error {
	c.unexpected(id, obj, msg)
	return nil
}

func displayEvent(c *Client, id uint32, obj *object, msg *wire.Message) error {
	switch msg.Opcode {
	case displayEventError:
		objID, err1 := msg.Uint()
		code, err2 := msg.Uint()
		text, err3 := msg.Str()
		if err := firstErr(err1, err2, err3); err != nil {
			return fmt.Errorf("%w: wl_display.error: %v", ErrMalformedEvent, err)
		}
		return &DisplayError{ObjectID: objID, Code: code, Message: text}
	case displayEventDeleteID:
		deleted, err := msg.Uint()
		if err != nil {
			c.malformed(id, obj, msg, err)
			return nil
		}
		c.deleteID(deleted)
	default:
		c.unexpected(id, obj, msg)
	}
	return nil
}

func registryEvent(c *Client, id uint32, obj *object, msg *wire.Message) error {
	switch msg.Opcode {
	case registryEventGlobal:
		name, err1 := msg.Uint()
		iface, err2 := msg.Str()
		version, err3 := msg.Uint()
		if err := firstErr(err1, err2, err3); err != nil {
			c.malformed(id, obj, msg, err)
			return nil
		}
		c.globals[name] = Global{Name: name, Interface: iface, Version: version}
	case registryEventGlobalRemove:
		name, err := msg.Uint()
		if err != nil {
			c.malformed(id, obj, msg, err)
			return nil
		}
		if g, ok := c.globals[name]; ok {
			if _, required := Required[g.Interface]; required {
				c.log.Warn().Str("interface", g.Interface).Msg("Required global removed by compositor")
			}
			delete(c.globals, name)
		}
	default:
		c.unexpected(id, obj, msg)
	}
	return nil
}

func callbackEvent(c *Client, id uint32, obj *object, msg *wire.Message) error {
	if msg.Opcode != callbackEventDone {
		c.unexpected(id, obj, msg)
		return nil
	}
	c.done[id] = true
	return nil
}

func shmEvent(c *Client, id uint32, obj *object, msg *wire.Message) error {
	if msg.Opcode != shmEventFormat {
		c.unexpected(id, obj, msg)
		return nil
	}
	format, err := msg.Uint()
	if err != nil {
		c.malformed(id, obj, msg, err)
		return nil
	}
	c.formats[ShmFormat(format)] = true
	return nil
}

func bufferEvent(c *Client, id uint32, obj *object, msg *wire.Message) error {
	if msg.Opcode != bufferEventRelease {
		c.unexpected(id, obj, msg)
	}
	// Buffers live until their capture resolves; release needs no action.
	return nil
}

func toplevelManagerEvent(c *Client, id uint32, obj *object, msg *wire.Message) error {
	switch msg.Opcode {
	case toplevelManagerEventToplevel:
		handle, err := msg.Uint()
		if err != nil {
			c.malformed(id, obj, msg, err)
			return nil
		}
		if _, exists := c.objects[handle]; exists {
			c.log.Warn().Uint32("toplevel", handle).Msg("Compositor announced an id that is still in use")
		}
		c.objects[handle] = &object{kind: KindToplevel, version: obj.version}
		if c.handler != nil {
			c.handler.ToplevelCreated(handle)
		}
	case toplevelManagerEventFinished:
		c.log.Info().Msg("Toplevel manager finished, no further windows will be reported")
	default:
		c.unexpected(id, obj, msg)
	}
	return nil
}

func toplevelEvent(c *Client, id uint32, obj *object, msg *wire.Message) error {
	switch msg.Opcode {
	case toplevelEventTitle:
		title, err := msg.Str()
		if err != nil {
			c.malformed(id, obj, msg, err)
			return nil
		}
		if c.handler != nil {
			c.handler.ToplevelTitle(id, title)
		}
	case toplevelEventAppID:
		appID, err := msg.Str()
		if err != nil {
			c.malformed(id, obj, msg, err)
			return nil
		}
		if c.handler != nil {
			c.handler.ToplevelAppID(id, appID)
		}
	case toplevelEventClosed:
		if c.handler != nil {
			c.handler.ToplevelClosed(id)
		}
		c.releaseToplevel(id)
	case toplevelEventOutputEnter, toplevelEventOutputLeave, toplevelEventState,
		toplevelEventDone, toplevelEventParent:
		// Not needed for thumbnails.
	default:
		c.unexpected(id, obj, msg)
	}
	return nil
}

// exportFrameEvent forwards frame events. A frame whose events cannot be
// decoded is reported as failed so the engine drops just that capture.
func exportFrameEvent(c *Client, id uint32, obj *object, msg *wire.Message) error {
	if c.handler == nil {
		return nil
	}
	switch msg.Opcode {
	case frameEventBuffer:
		format, err1 := msg.Uint()
		width, err2 := msg.Uint()
		height, err3 := msg.Uint()
		stride, err4 := msg.Uint()
		if err := firstErr(err1, err2, err3, err4); err != nil {
			c.malformed(id, obj, msg, err)
			c.handler.FrameFailed(id)
			return nil
		}
		c.handler.FrameBuffer(id, ShmFormat(format), width, height, stride)
	case frameEventFlags:
		flags, err := msg.Uint()
		if err != nil {
			c.malformed(id, obj, msg, err)
			c.handler.FrameFailed(id)
			return nil
		}
		c.handler.FrameFlags(id, FrameFlags(flags))
	case frameEventBufferDone:
		c.handler.FrameBufferDone(id)
	case frameEventReady:
		c.handler.FrameReady(id)
	case frameEventFailed:
		c.handler.FrameFailed(id)
	case frameEventDamage, frameEventLinuxDmabuf:
		// Whole-buffer shm copies only.
	default:
		c.unexpected(id, obj, msg)
	}
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
