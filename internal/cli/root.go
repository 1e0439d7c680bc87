package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/webextended/ga4-tracking/internal/config"
)

var (
	dbPath     string
	configPath string
	port       int
)

var rootCmd = &cobra.Command{
	Use:   "ga4t",
	Short: "GA4 Ecommerce Tracking - server side GA4 Enhanced Ecommerce events for a storefront",
	Long: `ga4t injects a GA4 tracking snippet into storefront pages and emits
Enhanced Ecommerce events (view_item, add_to_cart, begin_checkout, purchase)
as dataLayer pushes.

Running without a subcommand starts the server (same as 'ga4t serve').`,
	SilenceUsage: true,
	RunE:         runServe, // Default action is to start server
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides config)")
}

// loadConfig resolves the service config: file, then .env and environment,
// then explicitly set flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("db") {
		cfg.Database.Path = dbPath
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = port
	}
	if cfg.Server.TokenFile == "" {
		// Token file lives alongside the database
		cfg.Server.TokenFile = filepath.Join(filepath.Dir(cfg.Database.Path), ".ga4t-token")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Server.Port)
	}
	return cfg, nil
}
