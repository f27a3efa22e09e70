package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/candleshop/internal/domain/customer"
	"github.com/xenking/candleshop/internal/domain/order"
)

const orderColumns = `id, COALESCE(user_id, ''), status, items, subtotal_cents, discount_cents, total_cents,
	COALESCE(promotion_id, ''), COALESCE(promotion_code, ''), created_at, completed_at`

const (
	createOrderSQL = `INSERT INTO orders (id, user_id, status, items, subtotal_cents, discount_cents,
		total_cents, promotion_id, promotion_code, created_at)
	VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	completeOrderSQL = `UPDATE orders SET status = 'completed', completed_at = $2
	WHERE id = $1 AND status = 'pending'
	RETURNING ` + orderColumns
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. Line items are stored in the JSONB column.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	_, err := r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.UserID, string(o.Status), encodeOrderItems(o.Items),
		o.SubtotalCents, o.DiscountCents, o.TotalCents,
		o.PromotionID, o.PromotionCode, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// Get returns the order or order.ErrNotFound.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// Complete moves a pending order to completed.
func (r *OrderRepository) Complete(ctx context.Context, id string, at time.Time) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, completeOrderSQL, id, at)
	if err != nil {
		return nil, fmt.Errorf("completing order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// Either missing or not pending.
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, order.ErrNotPending
	case err != nil:
		return nil, fmt.Errorf("completing order %q: %w", id, err)
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
		items  []byte
	)
	if err := row.Scan(
		&o.ID, &o.UserID, &status, &items, &o.SubtotalCents, &o.DiscountCents, &o.TotalCents,
		&o.PromotionID, &o.PromotionCode, &o.CreatedAt, &o.CompletedAt,
	); err != nil {
		return o, err
	}
	o.Status = customer.OrderStatus(status)

	decoded, err := decodeOrderItems(items)
	if err != nil {
		return o, fmt.Errorf("decoding items of order %q: %w", o.ID, err)
	}
	o.Items = decoded
	return o, nil
}

func encodeOrderItems(items []order.Item) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, it := range items {
		e.ObjStart()
		e.FieldStart("product_slug")
		e.Str(it.ProductSlug)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("unit_price_cents")
		e.Int64(it.UnitPriceCents)
		e.ObjEnd()
	}
	e.ArrEnd()
	return e.Bytes()
}

func decodeOrderItems(data []byte) ([]order.Item, error) {
	var items []order.Item
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var it order.Item
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "product_slug":
				it.ProductSlug, err = d.Str()
			case "quantity":
				it.Quantity, err = d.Int()
			case "unit_price_cents":
				it.UnitPriceCents, err = d.Int64()
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		items = append(items, it)
		return nil
	})
	return items, err
}
