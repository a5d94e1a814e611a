package memory

import (
	"context"
	"strings"

	"github.com/quotecraft/drew/pkg/domain"
)

// Catalog implements ports.ProductSearcher with a case-insensitive word match
// over product names. It is meant for tests and demos; use the sqlite catalog
// for real product data.
type Catalog struct {
	products []domain.Product
}

// NewCatalog creates a catalog holding products in the given order.
func NewCatalog(products ...domain.Product) *Catalog {
	return &Catalog{products: append([]domain.Product(nil), products...)}
}

// Search returns products whose name contains every word of term. When
// category is set, products tagged with another category are skipped.
func (c *Catalog) Search(ctx context.Context, term, category string, limit int) ([]domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	words := strings.Fields(strings.ToLower(term))
	if len(words) == 0 {
		return nil, nil
	}

	var out []domain.Product
	for _, p := range c.products {
		if category != "" && p.Category != "" && !strings.EqualFold(p.Category, category) {
			continue
		}
		if !containsAll(strings.ToLower(p.Name), words) {
			continue
		}
		out = append(out, p)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func containsAll(s string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(s, w) {
			return false
		}
	}
	return true
}
