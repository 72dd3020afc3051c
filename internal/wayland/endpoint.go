package wayland

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/bryanchriswhite/SharePicker/internal/wire"
)

const defaultDisplay = "wayland-0"

// SocketPath resolves the compositor socket from WAYLAND_DISPLAY and
// XDG_RUNTIME_DIR the same way libwayland does.
func SocketPath() (string, error) {
	name := os.Getenv("WAYLAND_DISPLAY")
	if name == "" {
		name = defaultDisplay
	}
	if filepath.IsAbs(name) {
		return name, nil
	}

	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		return "", fmt.Errorf("XDG_RUNTIME_DIR is not set, cannot locate %s", name)
	}
	return filepath.Join(runtimeDir, name), nil
}

// dialEnv connects through an inherited WAYLAND_SOCKET if present, otherwise
// through the socket path.
func dialEnv() (*wire.Conn, error) {
	if v := os.Getenv("WAYLAND_SOCKET"); v != "" {
		fd, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid WAYLAND_SOCKET %q: %w", v, err)
		}
		// The descriptor belongs to us now; children must not inherit it.
		os.Unsetenv("WAYLAND_SOCKET")
		return wire.FromFD(fd)
	}

	path, err := SocketPath()
	if err != nil {
		return nil, err
	}
	return wire.Dial(path)
}
