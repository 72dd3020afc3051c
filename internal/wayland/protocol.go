package wayland

// Interface names as advertised by the compositor registry.
const (
	InterfaceShm              = "wl_shm"
	InterfaceToplevelManager  = "zwlr_foreign_toplevel_manager_v1"
	InterfaceExportManager    = "hyprland_toplevel_export_manager_v1"
	interfaceToplevelHandle   = "zwlr_foreign_toplevel_handle_v1"
	interfaceExportFrame      = "hyprland_toplevel_export_frame_v1"
	displayObjectID           = 1
	serverIDStart             = 0xff000000
	exportHandleCaptureSince  = 2
	toplevelManagerMaxVersion = 3
)

// Kind identifies the protocol interface an object implements. Incoming
// events are routed through the dispatch table by kind.
type Kind uint8

const (
	KindDisplay Kind = iota
	KindRegistry
	KindCallback
	KindShm
	KindShmPool
	KindBuffer
	KindToplevelManager
	KindToplevel
	KindExportManager
	KindExportFrame
)

func (k Kind) String() string {
	switch k {
	case KindDisplay:
		return "wl_display"
	case KindRegistry:
		return "wl_registry"
	case KindCallback:
		return "wl_callback"
	case KindShm:
		return InterfaceShm
	case KindShmPool:
		return "wl_shm_pool"
	case KindBuffer:
		return "wl_buffer"
	case KindToplevelManager:
		return InterfaceToplevelManager
	case KindToplevel:
		return interfaceToplevelHandle
	case KindExportManager:
		return InterfaceExportManager
	case KindExportFrame:
		return interfaceExportFrame
	default:
		return "unknown"
	}
}

// Request opcodes.
const (
	displaySync        = 0
	displayGetRegistry = 1

	registryBind = 0

	shmCreatePool = 0

	shmPoolCreateBuffer = 0
	shmPoolDestroy      = 1
	shmPoolResize       = 2

	bufferDestroy = 0

	toplevelHandleDestroy = 7

	exportCaptureWithHandle = 2

	exportFrameCopy    = 0
	exportFrameDestroy = 1
)

// Event opcodes.
const (
	displayEventError    = 0
	displayEventDeleteID = 1

	registryEventGlobal       = 0
	registryEventGlobalRemove = 1

	callbackEventDone = 0

	shmEventFormat = 0

	bufferEventRelease = 0

	toplevelManagerEventToplevel = 0
	toplevelManagerEventFinished = 1

	toplevelEventTitle       = 0
	toplevelEventAppID       = 1
	toplevelEventOutputEnter = 2
	toplevelEventOutputLeave = 3
	toplevelEventState       = 4
	toplevelEventDone        = 5
	toplevelEventClosed      = 6
	toplevelEventParent      = 7

	frameEventBuffer      = 0
	frameEventDamage      = 1
	frameEventFlags       = 2
	frameEventReady       = 3
	frameEventFailed      = 4
	frameEventLinuxDmabuf = 5
	frameEventBufferDone  = 6
)

// ShmFormat is a wl_shm pixel format code.
type ShmFormat uint32

const (
	// FormatARGB8888 is a packed 32-bit word with alpha in the top byte.
	FormatARGB8888 ShmFormat = 0
	// FormatXRGB8888 is the same layout with the top byte unused.
	FormatXRGB8888 ShmFormat = 1
)

func (f ShmFormat) String() string {
	switch f {
	case FormatARGB8888:
		return "argb8888"
	case FormatXRGB8888:
		return "xrgb8888"
	default:
		return "unknown"
	}
}

// FrameFlags are the flags reported for an export frame.
type FrameFlags uint32

// FlagYInvert marks a buffer whose first row is the visual bottom.
const FlagYInvert FrameFlags = 1

// VersionRange bounds the version a global is bound at.
type VersionRange struct {
	Min uint32
	Max uint32
}

// Required lists the globals the capture engine binds and the versions it
// understands.
var Required = map[string]VersionRange{
	InterfaceShm:             {Min: 1, Max: 1},
	InterfaceToplevelManager: {Min: 1, Max: toplevelManagerMaxVersion},
	InterfaceExportManager:   {Min: 1, Max: 2},
}

// Global is a registry advertisement.
type Global struct {
	Name      uint32
	Interface string
	Version   uint32
}
