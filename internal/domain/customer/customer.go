package customer

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrUserNotFound is returned when a user id does not resolve to an account.
var ErrUserNotFound = errors.New("user not found")

// OrderStatus is the lifecycle state of a stored order.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusCompleted OrderStatus = "completed"
	StatusCancelled OrderStatus = "cancelled"
	StatusRefunded  OrderStatus = "refunded"
)

// User is a registered shopper.
type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// Order is the historical view of an order used for promotion targeting.
// PromotionID is empty when the order did not use a promotion.
type Order struct {
	ID          string
	UserID      string
	Status      OrderStatus
	PromotionID string
	TotalCents  int64
	CreatedAt   time.Time
}

// Repository provides read-only access to users and their order history.
type Repository interface {
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserOrders(ctx context.Context, userID string) ([]Order, error)
}
