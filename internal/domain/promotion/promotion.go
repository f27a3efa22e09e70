// Package promotion decides whether a promotion applies to a cart and
// computes the discount it grants.
//
// Validate, Calculate and Rank are pure functions of their arguments. Service
// adds the repository lookups and order history resolution around them.
package promotion

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a promotion id or code does not exist.
	ErrNotFound = errors.New("promotion not found")
	// ErrRedemptionCapReached is returned by a RedemptionCounter when the
	// conditional increment finds the promotion already at its cap.
	ErrRedemptionCapReached = errors.New("promotion redemption cap reached")
)

// Kind enumerates the discount algorithms.
type Kind string

const (
	KindPercentage       Kind = "percentage"
	KindFixedAmount      Kind = "fixed_amount"
	KindQuantityDiscount Kind = "quantity_discount"
	KindBOGO             Kind = "bogo"
)

// Trigger controls how a promotion reaches the cart.
type Trigger string

const (
	// TriggerCodeRequired promotions apply only when the shopper enters the code.
	TriggerCodeRequired Trigger = "code_required"
	// TriggerAutomatic promotions are considered for every cart.
	TriggerAutomatic Trigger = "automatic"
)

// Discount is one of Percentage, FixedAmount, QuantityDiscount or BOGO.
// Each variant carries only the parameters its algorithm reads.
type Discount interface {
	Kind() Kind
	isDiscount()
}

// Percentage takes Percent percent off the subtotal.
type Percentage struct {
	Percent decimal.Decimal
}

// FixedAmount takes AmountCents off the subtotal, never more than the subtotal.
type FixedAmount struct {
	AmountCents int64
}

// QuantityDiscount takes Percent percent off once the cart holds at least
// MinQuantity units.
type QuantityDiscount struct {
	Percent     decimal.Decimal
	MinQuantity int
}

// BOGO makes ApplyToQuantity of the cheapest qualifying units free for every
// MinQuantity qualifying units in the cart.
type BOGO struct {
	MinQuantity     int
	ApplyToQuantity int
}

func (Percentage) Kind() Kind       { return KindPercentage }
func (FixedAmount) Kind() Kind      { return KindFixedAmount }
func (QuantityDiscount) Kind() Kind { return KindQuantityDiscount }
func (BOGO) Kind() Kind             { return KindBOGO }

func (Percentage) isDiscount()       {}
func (FixedAmount) isDiscount()      {}
func (QuantityDiscount) isDiscount() {}
func (BOGO) isDiscount()             {}

// TargetMode names the class of customers a promotion is offered to.
type TargetMode string

const (
	TargetModeAll           TargetMode = "all"
	TargetModeFirstTime     TargetMode = "first_time"
	TargetModeReturning     TargetMode = "returning"
	TargetModeSpecificUsers TargetMode = "specific_users"
	TargetModeOrderCount    TargetMode = "order_count"
	TargetModeLifetimeSpend TargetMode = "lifetime_spend"
)

// Targeting is one of TargetAll, TargetFirstTime, TargetReturning,
// TargetSpecificUsers, TargetOrderCount or TargetLifetimeSpend.
type Targeting interface {
	Mode() TargetMode
	isTargeting()
}

type (
	// TargetAll offers the promotion to everyone, guests included.
	TargetAll struct{}
	// TargetFirstTime offers the promotion to users without completed orders.
	TargetFirstTime struct{}
	// TargetReturning offers the promotion to users with completed orders.
	TargetReturning struct{}
	// TargetSpecificUsers offers the promotion to a fixed list of user ids.
	TargetSpecificUsers struct {
		UserIDs []string
	}
	// TargetOrderCount requires at least MinOrders completed orders.
	TargetOrderCount struct {
		MinOrders int
	}
	// TargetLifetimeSpend requires completed orders totalling MinSpendCents.
	TargetLifetimeSpend struct {
		MinSpendCents int64
	}
)

func (TargetAll) Mode() TargetMode           { return TargetModeAll }
func (TargetFirstTime) Mode() TargetMode     { return TargetModeFirstTime }
func (TargetReturning) Mode() TargetMode     { return TargetModeReturning }
func (TargetSpecificUsers) Mode() TargetMode { return TargetModeSpecificUsers }
func (TargetOrderCount) Mode() TargetMode    { return TargetModeOrderCount }
func (TargetLifetimeSpend) Mode() TargetMode { return TargetModeLifetimeSpend }

func (TargetAll) isTargeting()           {}
func (TargetFirstTime) isTargeting()     {}
func (TargetReturning) isTargeting()     {}
func (TargetSpecificUsers) isTargeting() {}
func (TargetOrderCount) isTargeting()    {}
func (TargetLifetimeSpend) isTargeting() {}

// Restrictions are the cart and usage limits shared by every discount kind.
// A zero value means the restriction is not set.
type Restrictions struct {
	MinOrderAmountCents       int64
	MaxRedemptions            int
	MaxRedemptionsPerCustomer int
	ApplicableProductSlugs    []string
}

// Promotion is a read-only snapshot of a discount rule.
type Promotion struct {
	ID          string
	Code        string
	Name        string
	Trigger     Trigger
	Discount    Discount
	Targeting   Targeting
	Restriction Restrictions
	// StartsAt and ExpiresAt are open-ended when nil.
	StartsAt  *time.Time
	ExpiresAt *time.Time
	Active    bool
	// CurrentRedemptions is a point-in-time read of the counter owned by the
	// store. It may be stale by the time the order completes.
	CurrentRedemptions int
}

// MinQuantity returns the unit threshold of quantity-based discounts, or zero.
func (p Promotion) MinQuantity() int {
	switch d := p.Discount.(type) {
	case QuantityDiscount:
		return d.MinQuantity
	case BOGO:
		return d.MinQuantity
	default:
		return 0
	}
}

// TargetMode returns the targeting mode, treating a nil Targeting as all.
func (p Promotion) TargetMode() TargetMode {
	if p.Targeting == nil {
		return TargetModeAll
	}
	return p.Targeting.Mode()
}

// needsHistory reports whether validating p for a signed-in user requires
// their completed order history.
func (p Promotion) needsHistory() bool {
	return p.TargetMode() != TargetModeAll || p.Restriction.MaxRedemptionsPerCustomer > 0
}

// Repository provides read access to promotion snapshots.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Promotion, error)
	// GetByCode matches codes case-insensitively.
	GetByCode(ctx context.Context, code string) (*Promotion, error)
	List(ctx context.Context) ([]Promotion, error)
}

// RedemptionCounter performs the atomic "increment if below cap" update run
// once per completed order that used a promotion.
type RedemptionCounter interface {
	IncrementRedemptions(ctx context.Context, id string) error
}
