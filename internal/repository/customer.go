package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/candleshop/internal/domain/customer"
)

const (
	getUserByIDSQL = `SELECT id, email, created_at FROM users WHERE id = $1`

	getUserOrdersSQL = `SELECT id, COALESCE(user_id, ''), status, COALESCE(promotion_id, ''), total_cents, created_at
	FROM orders WHERE user_id = $1 ORDER BY created_at`

	upsertUserSQL = `INSERT INTO users (id, email, created_at)
	VALUES ($1, $2, $3)
	ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email`

	importOrderSQL = `INSERT INTO orders (id, user_id, status, promotion_id, subtotal_cents, total_cents, created_at, completed_at)
	VALUES ($1, NULLIF($2, ''), $3, NULLIF($4, ''), $5, $5, $6,
		CASE WHEN $3 = 'completed' THEN $6::timestamptz END)
	ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, promotion_id = EXCLUDED.promotion_id,
		total_cents = EXCLUDED.total_cents`
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// GetUserByID returns the user or customer.ErrUserNotFound.
func (r *CustomerRepository) GetUserByID(ctx context.Context, id string) (*customer.User, error) {
	var u customer.User
	err := r.pool.QueryRow(ctx, getUserByIDSQL, id).Scan(&u.ID, &u.Email, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user %q: %w", id, err)
	}
	return &u, nil
}

// GetUserOrders returns every order of the user regardless of status,
// oldest first.
func (r *CustomerRepository) GetUserOrders(ctx context.Context, userID string) ([]customer.Order, error) {
	rows, err := r.pool.Query(ctx, getUserOrdersSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("getting orders of user %q: %w", userID, err)
	}
	orders, err := pgx.CollectRows(rows, scanCustomerOrder)
	if err != nil {
		return nil, fmt.Errorf("getting orders of user %q: %w", userID, err)
	}
	return orders, nil
}

// UpsertUser inserts u or updates the email of the user with the same id.
func (r *CustomerRepository) UpsertUser(ctx context.Context, u customer.User) error {
	if _, err := r.pool.Exec(ctx, upsertUserSQL, u.ID, u.Email, u.CreatedAt); err != nil {
		return fmt.Errorf("upserting user %q: %w", u.ID, err)
	}
	return nil
}

// ImportOrder stores a historical order without line items.
func (r *CustomerRepository) ImportOrder(ctx context.Context, o customer.Order) error {
	_, err := r.pool.Exec(ctx, importOrderSQL,
		o.ID, o.UserID, string(o.Status), o.PromotionID, o.TotalCents, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("importing order %q: %w", o.ID, err)
	}
	return nil
}

func scanCustomerOrder(row pgx.CollectableRow) (customer.Order, error) {
	var (
		o      customer.Order
		status string
	)
	err := row.Scan(&o.ID, &o.UserID, &status, &o.PromotionID, &o.TotalCents, &o.CreatedAt)
	o.Status = customer.OrderStatus(status)
	return o, err
}
