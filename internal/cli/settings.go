package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/webextended/ga4-tracking/internal/config"
	"github.com/webextended/ga4-tracking/internal/store"
)

var settingsFlags struct {
	snippetFile   string
	clearSnippet  bool
	placement     string
	priority      int
	viewItem      bool
	addToCart     bool
	beginCheckout bool
	purchase      bool
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change tracking settings",
	Long: `Show the stored tracking settings, or change them with flags.
Only the flags given are changed.

Examples:
  ga4t settings
  ga4t settings --snippet-file gtag.html --placement footer --priority 10
  ga4t settings --purchase=false`,
	Args: cobra.NoArgs,
	RunE: runSettings,
}

func init() {
	f := settingsCmd.Flags()
	f.StringVar(&settingsFlags.snippetFile, "snippet-file", "", "file holding the tracking snippet ('-' for stdin)")
	f.BoolVar(&settingsFlags.clearSnippet, "clear-snippet", false, "remove the tracking snippet")
	f.StringVar(&settingsFlags.placement, "placement", "", "snippet placement: header, footer or after_body")
	f.IntVar(&settingsFlags.priority, "priority", 0, "snippet priority, lower loads first")
	f.BoolVar(&settingsFlags.viewItem, "view-item", true, "emit view_item on product pages")
	f.BoolVar(&settingsFlags.addToCart, "add-to-cart", true, "emit add_to_cart on add to cart clicks")
	f.BoolVar(&settingsFlags.beginCheckout, "begin-checkout", true, "emit begin_checkout on the checkout page")
	f.BoolVar(&settingsFlags.purchase, "purchase", true, "emit purchase on the order received page")
	rootCmd.AddCommand(settingsCmd)
}

func runSettings(cmd *cobra.Command, args []string) error {
	return withStore(cmd, func(s *store.SQLiteStore) error {
		ctx := cmd.Context()

		cfg, err := s.LoadTrackingConfig(ctx)
		if err != nil {
			return err
		}

		changed, err := applySettingsFlags(cmd, &cfg, cmd.InOrStdin())
		if err != nil {
			return err
		}
		if changed {
			if err := s.SaveTrackingConfig(ctx, cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Settings saved.")
			fmt.Fprintln(cmd.OutOrStdout())
		}

		printSettings(cmd.OutOrStdout(), cfg)
		return nil
	})
}

// applySettingsFlags copies the explicitly set flags onto cfg and reports
// whether anything was set.
func applySettingsFlags(cmd *cobra.Command, cfg *config.TrackingConfig, stdin io.Reader) (bool, error) {
	f := cmd.Flags()
	changed := false

	if f.Changed("snippet-file") && f.Changed("clear-snippet") {
		return false, fmt.Errorf("--snippet-file and --clear-snippet are mutually exclusive")
	}
	if f.Changed("snippet-file") {
		snippet, err := readSnippet(settingsFlags.snippetFile, stdin)
		if err != nil {
			return false, err
		}
		cfg.Snippet = snippet
		changed = true
	}
	if f.Changed("clear-snippet") && settingsFlags.clearSnippet {
		cfg.Snippet = ""
		changed = true
	}
	if f.Changed("placement") {
		p, err := config.ParsePlacement(settingsFlags.placement)
		if err != nil {
			return false, err
		}
		cfg.Placement = p
		changed = true
	}
	if f.Changed("priority") {
		if settingsFlags.priority <= 0 {
			return false, fmt.Errorf("invalid priority %d: must be positive", settingsFlags.priority)
		}
		cfg.Priority = settingsFlags.priority
		changed = true
	}

	toggles := []struct {
		flag string
		dst  *bool
		val  bool
	}{
		{"view-item", &cfg.ViewItem, settingsFlags.viewItem},
		{"add-to-cart", &cfg.AddToCart, settingsFlags.addToCart},
		{"begin-checkout", &cfg.BeginCheckout, settingsFlags.beginCheckout},
		{"purchase", &cfg.Purchase, settingsFlags.purchase},
	}
	for _, t := range toggles {
		if f.Changed(t.flag) {
			*t.dst = t.val
			changed = true
		}
	}
	return changed, nil
}

func readSnippet(path string, stdin io.Reader) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read snippet: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func printSettings(w io.Writer, cfg config.TrackingConfig) {
	snippet := "(not set - nothing is output)"
	if cfg.HasSnippet() {
		snippet = fmt.Sprintf("%d bytes", len(cfg.Snippet))
	}

	fmt.Fprintf(w, "Tracking code:  %s\n", snippet)
	fmt.Fprintf(w, "Placement:      %s\n", cfg.Placement.Label())
	fmt.Fprintf(w, "Priority:       %s\n", config.PriorityLabel(cfg.Priority))
	fmt.Fprintln(w, "Events:")
	fmt.Fprintf(w, "  view_item       %s\n", yesNo(cfg.ViewItem))
	fmt.Fprintf(w, "  add_to_cart     %s\n", yesNo(cfg.AddToCart))
	fmt.Fprintf(w, "  begin_checkout  %s\n", yesNo(cfg.BeginCheckout))
	fmt.Fprintf(w, "  purchase        %s\n", yesNo(cfg.Purchase))
}
