package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/webextended/ga4-tracking/internal/currency"
	"github.com/webextended/ga4-tracking/internal/store"
)

var ordersFormat string

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "List orders and their purchase tracking state",
	Long: `List orders with whether their purchase event has been emitted.

Examples:
  ga4t orders
  ga4t orders --format csv > orders.csv
  ga4t orders --format json`,
	Args: cobra.NoArgs,
	RunE: runOrders,
}

func init() {
	ordersCmd.Flags().StringVarP(&ordersFormat, "format", "f", "table", "output format (table, csv or json)")
	rootCmd.AddCommand(ordersCmd)
}

func runOrders(cmd *cobra.Command, args []string) error {
	if ordersFormat != "table" && ordersFormat != "csv" && ordersFormat != "json" {
		return fmt.Errorf("invalid format: must be 'table', 'csv' or 'json'")
	}

	return withStore(cmd, func(s *store.SQLiteStore) error {
		orders, err := s.ListOrders(cmd.Context())
		if err != nil {
			return err
		}
		return writeOrders(cmd.OutOrStdout(), ordersFormat, orders)
	})
}

func writeOrders(w io.Writer, format string, orders []store.OrderSummary) error {
	switch format {
	case "csv":
		return writeOrdersCSV(w, orders)
	case "json":
		return writeOrdersJSON(w, orders)
	}

	if len(orders) == 0 {
		fmt.Fprintln(w, "No orders yet.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNUMBER\tTOTAL\tITEMS\tTRACKED\tCREATED")
	for _, o := range orders {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n",
			o.ID,
			o.Number,
			currency.Format(o.Currency, o.Total),
			o.Items,
			yesNo(o.Tracked),
			o.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	return tw.Flush()
}

func writeOrdersCSV(w io.Writer, orders []store.OrderSummary) error {
	cw := csv.NewWriter(w)

	// Write header
	if err := cw.Write([]string{"id", "number", "currency", "total", "items", "tracked", "created_at"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, o := range orders {
		row := []string{
			strconv.FormatInt(o.ID, 10),
			o.Number,
			o.Currency,
			strconv.FormatFloat(o.Total, 'f', currency.Scale(o.Currency), 64),
			strconv.Itoa(o.Items),
			strconv.FormatBool(o.Tracked),
			strconv.FormatInt(o.CreatedAt.Unix(), 10),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

type ordersExport struct {
	Orders []store.OrderSummary `json:"orders"`
}

func writeOrdersJSON(w io.Writer, orders []store.OrderSummary) error {
	if orders == nil {
		orders = []store.OrderSummary{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(ordersExport{Orders: orders})
}
