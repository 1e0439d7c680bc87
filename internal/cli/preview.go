package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/webextended/ga4-tracking/internal/logging"
	"github.com/webextended/ga4-tracking/internal/store"
	"github.com/webextended/ga4-tracking/internal/tracking"
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Render an event payload",
	Long: `Render the payload an event would push, without emitting it.
Previewing a purchase does not mark the order as tracked.`,
}

var previewViewItemCmd = &cobra.Command{
	Use:   "view-item <product-id>",
	Short: "Render the view_item payload for a product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPreview(cmd, args[0], func(a *app, id int64) (tracking.Event, error) {
			return a.tracker.PreviewViewItem(cmd.Context(), id)
		})
	},
}

var previewPurchaseCmd = &cobra.Command{
	Use:   "purchase <order-id>",
	Short: "Render the purchase payload for an order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPreview(cmd, args[0], func(a *app, id int64) (tracking.Event, error) {
			return a.tracker.PreviewPurchase(cmd.Context(), id)
		})
	},
}

func init() {
	previewCmd.AddCommand(previewViewItemCmd, previewPurchaseCmd)
	rootCmd.AddCommand(previewCmd)
}

func runPreview(cmd *cobra.Command, rawID string, render func(*app, int64) (tracking.Event, error)) error {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid id %q", rawID)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// Keep stdout for the payload
	log := logging.NewWithWriter(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signalContext(cmd)
	defer stop()
	cmd.SetContext(ctx)

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	ev, err := render(a, id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%d not found", id)
	}
	if err != nil {
		return err
	}

	if err := tracking.ValidateEvent(ev); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(ev)
}
