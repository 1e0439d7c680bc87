package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/webextended/ga4-tracking/internal/commerce"
	"github.com/webextended/ga4-tracking/internal/store"
)

var seedCmd = &cobra.Command{
	Use:   "seed <catalog.yaml>",
	Short: "Load products into the storefront catalog",
	Long: `Load products and their variations from a YAML catalog file.
Existing products with the same id are replaced.

Example catalog:
  products:
    - id: 10
      sku: TSHIRT
      name: T-Shirt
      price: 19.99
      categories: [Clothing]
    - id: 20
      name: Hoodie
      price: 45
      variations:
        - id: 21
          sku: HOOD-BLU-L
          attributes:
            - {name: color, value: Blue}
            - {name: size, value: Large}`,
	Args: cobra.ExactArgs(1),
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

type catalogFile struct {
	Products []catalogProduct `yaml:"products"`
}

type catalogProduct struct {
	ID         int64              `yaml:"id"`
	SKU        string             `yaml:"sku"`
	Name       string             `yaml:"name"`
	Price      float64            `yaml:"price"`
	Categories []string           `yaml:"categories"`
	Variations []catalogVariation `yaml:"variations"`
}

type catalogVariation struct {
	ID         int64                `yaml:"id"`
	SKU        string               `yaml:"sku"`
	Name       string               `yaml:"name"`
	Price      *float64             `yaml:"price"` // defaults to the parent price
	Attributes []commerce.Attribute `yaml:"attributes"`
}

func runSeed(cmd *cobra.Command, args []string) error {
	products, err := loadCatalog(args[0])
	if err != nil {
		return err
	}

	return withStore(cmd, func(s *store.SQLiteStore) error {
		n, err := seedProducts(cmd.Context(), s, products)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d products.\n", n)
		return nil
	})
}

// loadCatalog parses a catalog file into products, variations following
// their parent.
func loadCatalog(path string) ([]*commerce.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	seen := make(map[int64]bool)
	claim := func(id int64, name string) error {
		if id <= 0 {
			return fmt.Errorf("product %q: id must be positive", name)
		}
		if seen[id] {
			return fmt.Errorf("duplicate product id %d", id)
		}
		seen[id] = true
		return nil
	}

	var products []*commerce.Product
	for _, cp := range file.Products {
		if err := claim(cp.ID, cp.Name); err != nil {
			return nil, err
		}
		if strings.TrimSpace(cp.Name) == "" {
			return nil, fmt.Errorf("product %d: name is required", cp.ID)
		}

		parent := &commerce.Product{
			ID:         cp.ID,
			SKU:        cp.SKU,
			Name:       cp.Name,
			Type:       commerce.ProductSimple,
			Price:      cp.Price,
			Categories: cp.Categories,
		}
		if len(cp.Variations) > 0 {
			parent.Type = commerce.ProductVariable
		}
		products = append(products, parent)

		for _, cv := range cp.Variations {
			if err := claim(cv.ID, cv.Name); err != nil {
				return nil, err
			}
			v := &commerce.Product{
				ID:         cv.ID,
				ParentID:   cp.ID,
				SKU:        cv.SKU,
				Name:       cv.Name,
				Type:       commerce.ProductVariation,
				Price:      cp.Price,
				Attributes: cv.Attributes,
			}
			if cv.Price != nil {
				v.Price = *cv.Price
			}
			if v.Name == "" {
				v.Name = variationName(cp.Name, cv.Attributes)
			}
			products = append(products, v)
		}
	}
	return products, nil
}

func variationName(parent string, attrs []commerce.Attribute) string {
	values := make([]string, 0, len(attrs))
	for _, a := range attrs {
		if a.Value != "" {
			values = append(values, a.Value)
		}
	}
	if len(values) == 0 {
		return parent
	}
	return parent + " - " + strings.Join(values, ", ")
}

func seedProducts(ctx context.Context, s store.Store, products []*commerce.Product) (int, error) {
	for i, p := range products {
		if err := s.UpsertProduct(ctx, p); err != nil {
			return i, fmt.Errorf("failed to seed product %d: %w", p.ID, err)
		}
	}
	return len(products), nil
}
