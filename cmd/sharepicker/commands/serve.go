package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/SharePicker/internal/api"
	"github.com/bryanchriswhite/SharePicker/internal/capture"
	"github.com/bryanchriswhite/SharePicker/internal/catalog"
	"github.com/bryanchriswhite/SharePicker/internal/event"
	"github.com/bryanchriswhite/SharePicker/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the SharePicker server",
	Long: `Start the capture engine and an HTTP server that publishes the open
windows and their thumbnails.

A picker connects to /api/events to receive the current window list followed
by every change, or polls /api/windows and /api/windows/{id}/thumbnail.png.`,
	Example: `  # Start server on default port (8686)
  sharepicker serve

  # Start server on custom port
  sharepicker serve --port 9090

  # Start with debug logging
  sharepicker serve --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := configMgr.Get()
	log := logger.WithComponent("serve")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bridge := event.NewBridge(cfg.EventBuffer)
	cat := catalog.New()
	feed := api.NewFeed(cat, cfg.Thumbnail.MaxWidth, cfg.Thumbnail.MaxHeight)
	server := api.NewServer(cat, feed, bridge, cfg.Thumbnail.MaxWidth, cfg.Thumbnail.MaxHeight)

	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(func(ctx context.Context) error {
		return capture.Run(ctx, capture.Options{OverlayCursor: cfg.OverlayCursor}, bridge)
	})
	p.Go(func(ctx context.Context) error {
		defer bridge.Detach()
		feed.Consume(ctx, bridge.Events())
		return nil
	})
	p.Go(func(ctx context.Context) error {
		return server.Start(ctx, cfg.ServerPort)
	})

	log.Info().
		Str("config", configMgr.GetConfigPath()).
		Str("events", fmt.Sprintf("ws://localhost:%d/api/events", cfg.ServerPort)).
		Msg("SharePicker is running, press Ctrl+C to stop")

	if err := p.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Shut down")
	return nil
}
