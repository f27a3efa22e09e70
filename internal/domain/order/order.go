package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/candleshop/internal/domain/customer"
)

var (
	// ErrNotFound is returned when an order id does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrNotPending is returned when completing an order that is not pending.
	ErrNotPending = errors.New("order is not pending")
)

// Order is a placed order with its pricing frozen at checkout.
type Order struct {
	ID            string
	UserID        string
	Items         []Item
	SubtotalCents int64
	DiscountCents int64
	TotalCents    int64
	PromotionID   string
	PromotionCode string
	Status        customer.OrderStatus
	CreatedAt     time.Time
	CompletedAt   *time.Time
}

// Item is an order line priced at checkout time.
type Item struct {
	ProductSlug    string
	Quantity       int
	UnitPriceCents int64
}

// LineItem is a requested cart line before pricing.
type LineItem struct {
	ProductSlug string
	Quantity    int
}

// AppliedPromotion describes the promotion used by a quote.
type AppliedPromotion struct {
	ID              string
	Code            string
	Name            string
	Automatic       bool
	DiscountCents   int64
	DiscountPercent decimal.NullDecimal
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// Complete moves a pending order to completed. It returns ErrNotFound or
	// ErrNotPending when the transition does not apply.
	Complete(ctx context.Context, id string, at time.Time) (*Order, error)
}
