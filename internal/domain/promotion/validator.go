package promotion

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Validate checks p against the cart and returns the discount it grants.
//
// Checks run in a fixed order and stop at the first failure, so the reason
// reported for a given input never changes. history is the resolved
// completed order history of cart.UserID; nil means it could not be resolved.
func Validate(p Promotion, cart Cart, history *History, now time.Time) Result {
	if !p.Active {
		return reject(p, ReasonInactive, "This promotion is no longer active")
	}
	if p.StartsAt != nil && now.Before(*p.StartsAt) {
		return reject(p, ReasonNotStarted, "This promotion has not started yet")
	}
	if p.ExpiresAt != nil && now.After(*p.ExpiresAt) {
		return reject(p, ReasonExpired, "This promotion has expired")
	}

	r := p.Restriction
	if r.MaxRedemptions > 0 && p.CurrentRedemptions >= r.MaxRedemptions {
		return reject(p, ReasonExhausted, "This promotion has reached its usage limit")
	}
	if r.MinOrderAmountCents > 0 && cart.SubtotalCents < r.MinOrderAmountCents {
		return reject(p, ReasonBelowMinimum,
			fmt.Sprintf("Minimum order amount of %s required", formatDollars(r.MinOrderAmountCents)))
	}
	if minQty := p.MinQuantity(); minQty > 0 && cart.TotalQuantity() < minQty {
		return reject(p, ReasonInsufficientQuantity,
			fmt.Sprintf("Add at least %d items to use this promotion", minQty))
	}
	if len(r.ApplicableProductSlugs) > 0 && !containsApplicable(cart.Items, r.ApplicableProductSlugs) {
		return reject(p, ReasonNotApplicable, "This promotion is not applicable to your cart contents")
	}

	if res, ok := checkTargeting(p, cart, history); !ok {
		return res
	}

	return accept(p, Calculate(p, cart))
}

// checkTargeting applies the customer-targeting rules and the per-customer
// redemption cap. Guests can only use promotions targeted at everyone and
// skip the per-customer cap, since they have no history to count against.
func checkTargeting(p Promotion, cart Cart, history *History) (Result, bool) {
	mode := p.TargetMode()
	if mode != TargetModeAll && (cart.guest() || history == nil) {
		return reject(p, ReasonSignInRequired, "Please sign in to use this promotion"), false
	}

	switch t := p.Targeting.(type) {
	case TargetFirstTime:
		if history.CompletedOrders > 0 {
			return reject(p, ReasonFirstTimeOnly, "This promotion is only available on your first order"), false
		}
	case TargetReturning:
		if history.CompletedOrders == 0 {
			return reject(p, ReasonReturningOnly, "This promotion is only available to returning customers"), false
		}
	case TargetSpecificUsers:
		if !slices.Contains(t.UserIDs, cart.UserID) {
			return reject(p, ReasonNotTargeted, "This promotion is not available for your account"), false
		}
	case TargetOrderCount:
		if history.CompletedOrders < t.MinOrders {
			return reject(p, ReasonOrderCount,
				fmt.Sprintf("This promotion requires at least %d completed orders", t.MinOrders)), false
		}
	case TargetLifetimeSpend:
		if history.LifetimeSpendCents < t.MinSpendCents {
			return reject(p, ReasonLifetimeSpend,
				fmt.Sprintf("This promotion requires lifetime purchases of at least %s",
					formatDollars(t.MinSpendCents))), false
		}
	}

	if limit := p.Restriction.MaxRedemptionsPerCustomer; limit > 0 && history != nil && !cart.guest() {
		if history.Redemptions(p.ID) >= limit {
			return reject(p, ReasonCustomerLimit,
				"You have already used this promotion the maximum number of times"), false
		}
	}

	return Result{}, true
}

func containsApplicable(items []Item, slugs []string) bool {
	for _, it := range items {
		if slices.Contains(slugs, it.ProductSlug) {
			return true
		}
	}
	return false
}

// formatDollars renders cents as "$12.34".
func formatDollars(cents int64) string {
	return "$" + decimal.New(cents, -2).StringFixed(2)
}
