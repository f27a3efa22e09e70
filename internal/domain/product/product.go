package product

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a candle available for purchase. Slug is the stable
// identifier referenced by carts and promotion restrictions.
type Product struct {
	Slug       string
	Name       string
	PriceCents int64
	Category   string
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetBySlug(ctx context.Context, slug string) (*Product, error)
	GetBySlugs(ctx context.Context, slugs []string) ([]Product, error)
}
