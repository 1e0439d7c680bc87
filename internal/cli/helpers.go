package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/webextended/ga4-tracking/internal/store"
)

// withStore opens the configured database, executes the function, and handles cleanup.
func withStore(cmd *cobra.Command, fn func(*store.SQLiteStore) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	s, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	return fn(s)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
