// Package capture drives one-shot window captures: it negotiates a buffer
// for every discovered window, copies the window into shared memory and turns
// the result into an RGBA thumbnail.
package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/bryanchriswhite/SharePicker/internal/event"
	"github.com/bryanchriswhite/SharePicker/internal/logger"
	"github.com/bryanchriswhite/SharePicker/internal/wayland"
)

// Run connects to the compositor and dispatches until ctx is cancelled or
// the connection fails. A connection failure is reported on bridge as a
// single ProtocolError and returned wrapping ErrConnection. The bridge is
// closed when Run returns.
func Run(ctx context.Context, opts Options, bridge *event.Bridge) error {
	defer bridge.Close()
	log := logger.WithComponent("capture")

	client, err := wayland.Connect()
	if err != nil {
		return connectionFailed(bridge, fmt.Errorf("connect: %w", err))
	}
	defer client.Close()

	arena := client.NewShmArena()
	defer arena.Close()

	engine := NewEngine(client, arena, bridge, opts)
	if err := client.Attach(engine); err != nil {
		return connectionFailed(bridge, fmt.Errorf("bind globals: %w", err))
	}

	log.Info().Bool("overlay_cursor", opts.OverlayCursor).Msg("Capture engine started")

	err = client.Run(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		log.Info().
			Int("windows", engine.Windows().Len()).
			Int("pending", engine.Pending()).
			Msg("Capture engine stopped")
		return nil
	}
	return connectionFailed(bridge, err)
}

func connectionFailed(bridge event.Emitter, err error) error {
	logger.WithComponent("capture").Error().Err(err).Msg("Compositor connection lost")
	bridge.Emit(event.ProtocolError{Message: err.Error()})
	return fmt.Errorf("%w: %w", ErrConnection, err)
}
