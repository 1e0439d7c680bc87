package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/webextended/ga4-tracking/internal/logging"
	"github.com/webextended/ga4-tracking/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the ga4t HTTP server.

The server provides:
  - Storefront pages with the tracking snippet and ecommerce events
  - Async product data endpoint at /wp-admin/admin-ajax.php
  - Admin settings page at /admin/settings
  - Health check endpoint

Example:
  ga4t serve --port 8080`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(server.Options{
		Store:      a.store,
		Tracker:    a.tracker,
		Currency:   a.currency,
		Nonces:     a.nonces,
		Ecommerce:  cfg.Ecommerce,
		Ajax:       cfg.Ajax,
		Addr:       cfg.Server.Addr(),
		TokenFile:  cfg.Server.TokenFile,
		TrustProxy: cfg.Server.TrustProxy,
		Logger:     log,
	})

	printStartup(cmd, cfg.Server.BaseURL(), srv.Token(), cfg.Ecommerce.Enabled)
	return srv.Start(ctx)
}

func printStartup(cmd *cobra.Command, baseURL, token string, ecommerce bool) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Storefront: %s/\n", baseURL)
	fmt.Fprintf(out, "Settings:   %s/admin/settings?token=%s\n", baseURL, token)
	if !ecommerce {
		fmt.Fprintln(out, "Ecommerce platform not active: only the tracking snippet is output.")
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("-", 60))
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  settings         Show or change tracking settings")
	fmt.Fprintln(out, "  orders           List orders and their purchase tracking state")
	fmt.Fprintln(out, "  preview          Render an event payload")
	fmt.Fprintln(out, "  token            Show the settings URL")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Press Ctrl+C to stop")
}

// signalContext is used by commands that do not run the server.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
