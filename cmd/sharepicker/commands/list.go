package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/SharePicker/internal/capture"
	"github.com/bryanchriswhite/SharePicker/internal/catalog"
	"github.com/bryanchriswhite/SharePicker/internal/event"
	"github.com/bryanchriswhite/SharePicker/internal/logger"
	"github.com/bryanchriswhite/SharePicker/internal/output"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List open windows",
	Long: `List the windows currently open on the compositor.

The capture engine runs until every window has a thumbnail or the list
timeout passes, then the windows are printed. Thumbnails can be written to a
directory or combined into one labelled contact sheet.`,
	Example: `  # List windows in table format (default)
  sharepicker list

  # List windows in JSON format
  sharepicker list --format json

  # Save a PNG thumbnail per window
  sharepicker list --save-dir /tmp/thumbs

  # Write every thumbnail into one image
  sharepicker list --sheet /tmp/windows.png`,
	RunE: runList,
}

var (
	listFormat  string
	listSaveDir string
	listSheet   string
	listColumns int
	listTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listFormat, "format", "f", "table", "output format (table or json)")
	listCmd.Flags().StringVar(&listSaveDir, "save-dir", "", "write <id>.png thumbnails into this directory")
	listCmd.Flags().StringVar(&listSheet, "sheet", "", "write a contact sheet of all windows to this PNG file")
	listCmd.Flags().IntVar(&listColumns, "columns", 4, "tiles per row in the contact sheet")
	listCmd.Flags().DurationVarP(&listTimeout, "timeout", "t", 0, "how long to wait for thumbnails (default is list_timeout from config)")
}

func runList(cmd *cobra.Command, args []string) error {
	if listFormat != "table" && listFormat != "json" {
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", listFormat)
	}

	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := configMgr.Get()

	timeout := cfg.ListTimeout
	if listTimeout > 0 {
		timeout = listTimeout
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	bridge := event.NewBridge(cfg.EventBuffer)
	runErr := make(chan error, 1)
	go func() {
		runErr <- capture.Run(ctx, capture.Options{OverlayCursor: cfg.OverlayCursor}, bridge)
	}()

	cat := collect(bridge.Events(), cancel)
	if err := <-runErr; err != nil {
		return err
	}

	entries := cat.Snapshot()
	logger.WithComponent("list").Debug().
		Int("windows", len(entries)).
		Int("dropped", bridge.Dropped()).
		Msg("Window list collected")

	if listSaveDir != "" {
		written, err := output.WriteThumbnails(listSaveDir, entries, cfg.Thumbnail.MaxWidth, cfg.Thumbnail.MaxHeight)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Saved %d thumbnails to %s\n", len(written), listSaveDir)
	}
	if listSheet != "" {
		data, err := output.EncodePNG(output.Sheet(entries, cfg.Thumbnail.MaxWidth, cfg.Thumbnail.MaxHeight, listColumns))
		if err != nil {
			return err
		}
		if err := os.WriteFile(listSheet, data, 0644); err != nil {
			return fmt.Errorf("failed to write sheet: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Saved contact sheet to %s\n", listSheet)
	}

	return printWindows(os.Stdout, entries, listFormat)
}

// collect applies events until the stream closes. done is called once every
// listed window has a thumbnail.
func collect(events <-chan event.Event, done func()) *catalog.Catalog {
	cat := catalog.New()
	for ev := range events {
		cat.Apply(ev)
		if cat.Complete() {
			done()
		}
	}
	return cat
}

type windowRow struct {
	ID     uint32 `json:"id"`
	Title  string `json:"title"`
	AppID  string `json:"app_id"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

func printWindows(w io.Writer, entries []catalog.Entry, format string) error {
	rows := make([]windowRow, 0, len(entries))
	for _, e := range entries {
		row := windowRow{ID: e.ID, Title: e.Title, AppID: e.AppID}
		if e.HasThumbnail() {
			row.Width = e.Thumbnail.Width
			row.Height = e.Thumbnail.Height
		}
		rows = append(rows, row)
	}

	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(rows)
	case "table":
		return printWindowsTable(w, rows)
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", format)
	}
}

func printWindowsTable(out io.Writer, rows []windowRow) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "ID\tTITLE\tAPP ID\tTHUMBNAIL")
	fmt.Fprintln(w, "--\t-----\t------\t---------")

	for _, r := range rows {
		thumb := "-"
		if r.Width > 0 {
			thumb = fmt.Sprintf("%dx%d", r.Width, r.Height)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", r.ID, r.Title, r.AppID, thumb)
	}

	return nil
}
