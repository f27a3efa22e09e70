package promotion

import (
	"github.com/shopspring/decimal"
)

// Reason is a stable machine-readable rejection code.
type Reason string

const (
	ReasonInactive             Reason = "inactive"
	ReasonNotStarted           Reason = "not_started"
	ReasonExpired              Reason = "expired"
	ReasonExhausted            Reason = "exhausted"
	ReasonBelowMinimum         Reason = "below_minimum"
	ReasonInsufficientQuantity Reason = "insufficient_quantity"
	ReasonNotApplicable        Reason = "not_applicable"
	ReasonSignInRequired       Reason = "sign_in_required"
	ReasonFirstTimeOnly        Reason = "first_time_only"
	ReasonReturningOnly        Reason = "returning_only"
	ReasonNotTargeted          Reason = "not_targeted"
	ReasonOrderCount           Reason = "order_count"
	ReasonLifetimeSpend        Reason = "lifetime_spend"
	ReasonCustomerLimit        Reason = "customer_limit"
)

// Amount is the output of Calculate. Percent is set for percentage-based
// discounts.
type Amount struct {
	Cents   int64
	Percent decimal.NullDecimal
}

// Result is the outcome of validating a promotion against a cart.
//
// On success DiscountAmountCents (and, for percentage-based kinds,
// DiscountPercent) are set. On failure Reason and Error describe why.
type Result struct {
	Valid               bool
	PromotionID         string
	DiscountAmountCents int64
	DiscountPercent     decimal.NullDecimal
	Reason              Reason
	Error               string
}

func reject(p Promotion, reason Reason, msg string) Result {
	return Result{
		PromotionID: p.ID,
		Reason:      reason,
		Error:       msg,
	}
}

func accept(p Promotion, a Amount) Result {
	return Result{
		Valid:               true,
		PromotionID:         p.ID,
		DiscountAmountCents: a.Cents,
		DiscountPercent:     a.Percent,
	}
}
