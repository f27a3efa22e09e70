package promotion

import (
	"sort"
	"time"
)

// Ranked pairs an eligible promotion with the discount it grants.
type Ranked struct {
	Promotion Promotion
	Amount    Amount
}

// Rank validates every automatic promotion against the cart and returns the
// eligible ones ordered by discount, largest first. Equal discounts are
// ordered by ascending promotion id.
//
// Whether more than one of the returned promotions may be applied to the same
// order is up to the caller.
func Rank(promotions []Promotion, cart Cart, history *History, now time.Time) []Ranked {
	var ranked []Ranked
	for _, p := range promotions {
		if p.Trigger != TriggerAutomatic {
			continue
		}
		if res := Validate(p, cart, history, now); !res.Valid {
			continue
		}
		ranked = append(ranked, Ranked{
			Promotion: p,
			Amount:    Calculate(p, cart),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Amount.Cents != b.Amount.Cents {
			return a.Amount.Cents > b.Amount.Cents
		}
		return a.Promotion.ID < b.Promotion.ID
	})
	return ranked
}

// SelectApplicable returns the automatic promotions that apply to the cart,
// best first. See Rank for the ordering.
func SelectApplicable(promotions []Promotion, cart Cart, history *History, now time.Time) []Promotion {
	ranked := Rank(promotions, cart, history, now)
	out := make([]Promotion, len(ranked))
	for i, r := range ranked {
		out[i] = r.Promotion
	}
	return out
}
