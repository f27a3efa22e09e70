package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/candleshop/internal/domain/product"
)

const (
	listProductsSQL = `SELECT slug, name, price_cents, category FROM products ORDER BY slug`

	getProductBySlugSQL = `SELECT slug, name, price_cents, category FROM products WHERE slug = $1`

	getProductsBySlugsSQL = `SELECT slug, name, price_cents, category FROM products WHERE slug = ANY($1)`

	upsertProductSQL = `INSERT INTO products (slug, name, price_cents, category)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name, price_cents = EXCLUDED.price_cents,
		category = EXCLUDED.category`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns the catalog ordered by slug.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetBySlug returns a single product.
func (r *ProductRepository) GetBySlug(ctx context.Context, slug string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductBySlugSQL, slug)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", slug, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", slug, err)
	}
	return &p, nil
}

// GetBySlugs returns the products matching any of slugs. Unknown slugs are
// absent from the result.
func (r *ProductRepository) GetBySlugs(ctx context.Context, slugs []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsBySlugsSQL, slugs)
	if err != nil {
		return nil, fmt.Errorf("getting products by slugs: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Upsert inserts p or updates the product with the same slug.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	if _, err := r.pool.Exec(ctx, upsertProductSQL, p.Slug, p.Name, p.PriceCents, p.Category); err != nil {
		return fmt.Errorf("upserting product %q: %w", p.Slug, err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.Slug, &p.Name, &p.PriceCents, &p.Category)
	return p, err
}
