package promotion

import (
	"github.com/xenking/candleshop/internal/domain/customer"
)

// Item is a cart line. PriceCents is the unit price.
type Item struct {
	ProductSlug string
	Quantity    int
	PriceCents  int64
}

// Cart is the per-evaluation cart context. The caller guarantees that
// SubtotalCents equals the sum of Quantity*PriceCents over Items.
type Cart struct {
	// UserID is empty for guest checkouts.
	UserID        string
	IsGuest       bool
	Items         []Item
	SubtotalCents int64
}

// NewCart builds a Cart and computes its subtotal. Callers bound quantities
// and prices so the subtotal fits in int64.
func NewCart(userID string, items []Item) Cart {
	var subtotal int64
	for _, it := range items {
		subtotal += int64(it.Quantity) * it.PriceCents
	}
	return Cart{
		UserID:        userID,
		IsGuest:       userID == "",
		Items:         items,
		SubtotalCents: subtotal,
	}
}

// TotalQuantity returns the number of units across all lines.
func (c Cart) TotalQuantity() int {
	total := 0
	for _, it := range c.Items {
		total += it.Quantity
	}
	return total
}

func (c Cart) guest() bool {
	return c.IsGuest || c.UserID == ""
}

// History is a signed-in user's resolved order history. Only completed
// orders count.
type History struct {
	CompletedOrders    int
	LifetimeSpendCents int64
	redemptions        map[string]int
}

// NewHistory summarizes the completed orders among orders.
func NewHistory(orders []customer.Order) *History {
	h := &History{redemptions: make(map[string]int)}
	for _, o := range orders {
		if o.Status != customer.StatusCompleted {
			continue
		}
		h.CompletedOrders++
		h.LifetimeSpendCents += o.TotalCents
		if o.PromotionID != "" {
			h.redemptions[o.PromotionID]++
		}
	}
	return h
}

// Redemptions returns how many completed orders used the promotion id.
func (h *History) Redemptions(promotionID string) int {
	if h == nil {
		return 0
	}
	return h.redemptions[promotionID]
}
