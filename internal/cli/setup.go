package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/webextended/ga4-tracking/internal/config"
	"github.com/webextended/ga4-tracking/internal/store"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Configure tracking interactively",
	Long: `Walk through the tracking settings: the snippet file, where and how
early it is injected, and which ecommerce events are emitted.

Example:
  ga4t setup`,
	Args: cobra.NoArgs,
	RunE: runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	return withStore(cmd, func(s *store.SQLiteStore) error {
		ctx := cmd.Context()

		cfg, err := s.LoadTrackingConfig(ctx)
		if err != nil {
			return err
		}

		if cfg, err = promptSettings(cfg); err != nil {
			if errors.Is(err, promptui.ErrInterrupt) {
				os.Exit(0)
			}
			return err
		}

		if err := s.SaveTrackingConfig(ctx, cfg); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout())
		fmt.Fprintln(cmd.OutOrStdout(), "Settings saved.")
		fmt.Fprintln(cmd.OutOrStdout())
		printSettings(cmd.OutOrStdout(), cfg)
		return nil
	})
}

func promptSettings(cfg config.TrackingConfig) (config.TrackingConfig, error) {
	snippetPrompt := promptui.Prompt{
		Label: "Tracking snippet file (empty keeps the current one)",
		Validate: func(input string) error {
			input = strings.TrimSpace(input)
			if input == "" {
				return nil
			}
			if _, err := os.Stat(input); err != nil {
				return fmt.Errorf("cannot read %s", input)
			}
			return nil
		},
	}
	path, err := snippetPrompt.Run()
	if err != nil {
		return cfg, err
	}
	if path = strings.TrimSpace(path); path != "" {
		if cfg.Snippet, err = readSnippet(path, nil); err != nil {
			return cfg, err
		}
	}

	placements := []config.Placement{config.PlacementHeader, config.PlacementFooter, config.PlacementAfterBody}
	labels := make([]string, len(placements))
	cursor := 0
	for i, p := range placements {
		labels[i] = p.Label()
		if p == cfg.Placement {
			cursor = i
		}
	}
	placementPrompt := promptui.Select{
		Label:     "Code placement",
		Items:     labels,
		CursorPos: cursor,
		Size:      len(labels),
	}
	idx, _, err := placementPrompt.Run()
	if err != nil {
		return cfg, err
	}
	cfg.Placement = placements[idx]

	labels = make([]string, len(config.Priorities))
	cursor = 0
	for i, p := range config.Priorities {
		labels[i] = config.PriorityLabel(p)
		if p == cfg.Priority {
			cursor = i
		}
	}
	priorityPrompt := promptui.Select{
		Label:     "Loading priority",
		Items:     labels,
		CursorPos: cursor,
		Size:      len(labels),
	}
	if idx, _, err = priorityPrompt.Run(); err != nil {
		return cfg, err
	}
	cfg.Priority = config.Priorities[idx]

	toggles := []struct {
		label string
		dst   *bool
	}{
		{"Track view_item on product pages", &cfg.ViewItem},
		{"Track add_to_cart clicks", &cfg.AddToCart},
		{"Track begin_checkout on the checkout page", &cfg.BeginCheckout},
		{"Track purchase on the order received page", &cfg.Purchase},
	}
	for _, t := range toggles {
		if *t.dst, err = promptYesNo(t.label, *t.dst); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func promptYesNo(label string, current bool) (bool, error) {
	cursor := 1
	if current {
		cursor = 0
	}
	prompt := promptui.Select{
		Label:     label,
		Items:     []string{"Yes", "No"},
		CursorPos: cursor,
		Size:      2,
	}
	idx, _, err := prompt.Run()
	if err != nil {
		return current, err
	}
	return idx == 0, nil
}
