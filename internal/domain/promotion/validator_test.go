package promotion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/candleshop/internal/domain/customer"
)

var fixedNow = time.Date(2025, 11, 20, 12, 0, 0, 0, time.UTC)

func timePtr(t time.Time) *time.Time { return &t }

func percentPromo(id string, pct string) Promotion {
	return Promotion{
		ID:       id,
		Code:     "SAVE" + pct,
		Trigger:  TriggerCodeRequired,
		Discount: Percentage{Percent: d(pct)},
		Active:   true,
	}
}

func completed(id, promotionID string, total int64) customer.Order {
	return customer.Order{ID: id, UserID: "u1", Status: customer.StatusCompleted, PromotionID: promotionID, TotalCents: total}
}

func TestValidate(t *testing.T) {
	signedIn := NewCart("u1", []Item{item("vanilla", 2, 1500)})
	guest := NewCart("", []Item{item("vanilla", 2, 1500)})
	noOrders := NewHistory(nil)
	oneOrder := NewHistory([]customer.Order{completed("o1", "", 4200)})

	tests := []struct {
		name       string
		promo      func(p *Promotion)
		cart       Cart
		history    *History
		wantReason Reason
		wantError  string
		wantCents  int64
	}{
		{
			name:      "eligible",
			cart:      signedIn,
			wantCents: 300,
		},
		{
			name:       "inactive",
			promo:      func(p *Promotion) { p.Active = false },
			cart:       signedIn,
			wantReason: ReasonInactive,
			wantError:  "This promotion is no longer active",
		},
		{
			name:       "inactive wins over every other failure",
			promo:      func(p *Promotion) { p.Active = false; p.ExpiresAt = timePtr(fixedNow.Add(-time.Hour)) },
			cart:       guest,
			wantReason: ReasonInactive,
		},
		{
			name:       "not started",
			promo:      func(p *Promotion) { p.StartsAt = timePtr(fixedNow.Add(time.Minute)) },
			cart:       signedIn,
			wantReason: ReasonNotStarted,
		},
		{
			name:      "starts exactly now",
			promo:     func(p *Promotion) { p.StartsAt = timePtr(fixedNow) },
			cart:      signedIn,
			wantCents: 300,
		},
		{
			name:       "expired",
			promo:      func(p *Promotion) { p.ExpiresAt = timePtr(fixedNow.Add(-time.Second)) },
			cart:       signedIn,
			wantReason: ReasonExpired,
		},
		{
			name:      "expires exactly now",
			promo:     func(p *Promotion) { p.ExpiresAt = timePtr(fixedNow) },
			cart:      signedIn,
			wantCents: 300,
		},
		{
			name: "exhausted",
			promo: func(p *Promotion) {
				p.Restriction.MaxRedemptions = 5
				p.CurrentRedemptions = 5
			},
			cart:       signedIn,
			wantReason: ReasonExhausted,
		},
		{
			name: "below cap",
			promo: func(p *Promotion) {
				p.Restriction.MaxRedemptions = 5
				p.CurrentRedemptions = 4
			},
			cart:      signedIn,
			wantCents: 300,
		},
		{
			name:       "below minimum order amount",
			promo:      func(p *Promotion) { p.Restriction.MinOrderAmountCents = 2000 },
			cart:       NewCart("u1", []Item{item("vanilla", 1, 1500)}),
			wantReason: ReasonBelowMinimum,
			wantError:  "Minimum order amount of $20.00 required",
		},
		{
			name:       "insufficient quantity",
			promo:      func(p *Promotion) { p.Discount = QuantityDiscount{Percent: d("10"), MinQuantity: 3} },
			cart:       signedIn,
			wantReason: ReasonInsufficientQuantity,
			wantError:  "Add at least 3 items to use this promotion",
		},
		{
			name:       "not applicable to cart contents",
			promo:      func(p *Promotion) { p.Restriction.ApplicableProductSlugs = []string{"cedar", "pine"} },
			cart:       signedIn,
			wantReason: ReasonNotApplicable,
		},
		{
			name:      "applicable when one item matches",
			promo:     func(p *Promotion) { p.Restriction.ApplicableProductSlugs = []string{"cedar", "vanilla"} },
			cart:      signedIn,
			wantCents: 300,
		},
		{
			name:       "guest cannot use targeted promotion",
			promo:      func(p *Promotion) { p.Targeting = TargetReturning{} },
			cart:       guest,
			history:    oneOrder,
			wantReason: ReasonSignInRequired,
			wantError:  "Please sign in to use this promotion",
		},
		{
			name:       "unresolved history requires sign in",
			promo:      func(p *Promotion) { p.Targeting = TargetFirstTime{} },
			cart:       signedIn,
			wantReason: ReasonSignInRequired,
		},
		{
			name:       "first time rejects user with completed order",
			promo:      func(p *Promotion) { p.Targeting = TargetFirstTime{} },
			cart:       signedIn,
			history:    oneOrder,
			wantReason: ReasonFirstTimeOnly,
		},
		{
			name:      "first time accepts user without completed orders",
			promo:     func(p *Promotion) { p.Targeting = TargetFirstTime{} },
			cart:      signedIn,
			history:   noOrders,
			wantCents: 300,
		},
		{
			name:       "returning rejects new user",
			promo:      func(p *Promotion) { p.Targeting = TargetReturning{} },
			cart:       signedIn,
			history:    noOrders,
			wantReason: ReasonReturningOnly,
		},
		{
			name:       "specific users rejects others",
			promo:      func(p *Promotion) { p.Targeting = TargetSpecificUsers{UserIDs: []string{"u2"}} },
			cart:       signedIn,
			history:    noOrders,
			wantReason: ReasonNotTargeted,
		},
		{
			name:      "specific users accepts listed user",
			promo:     func(p *Promotion) { p.Targeting = TargetSpecificUsers{UserIDs: []string{"u2", "u1"}} },
			cart:      signedIn,
			history:   noOrders,
			wantCents: 300,
		},
		{
			name:       "order count below minimum",
			promo:      func(p *Promotion) { p.Targeting = TargetOrderCount{MinOrders: 2} },
			cart:       signedIn,
			history:    oneOrder,
			wantReason: ReasonOrderCount,
		},
		{
			name:       "lifetime spend below minimum",
			promo:      func(p *Promotion) { p.Targeting = TargetLifetimeSpend{MinSpendCents: 10000} },
			cart:       signedIn,
			history:    oneOrder,
			wantReason: ReasonLifetimeSpend,
			wantError:  "This promotion requires lifetime purchases of at least $100.00",
		},
		{
			name:      "lifetime spend reached",
			promo:     func(p *Promotion) { p.Targeting = TargetLifetimeSpend{MinSpendCents: 4200} },
			cart:      signedIn,
			history:   oneOrder,
			wantCents: 300,
		},
		{
			name:       "per customer cap reached",
			promo:      func(p *Promotion) { p.Restriction.MaxRedemptionsPerCustomer = 1 },
			cart:       signedIn,
			history:    NewHistory([]customer.Order{completed("o1", "p1", 3000)}),
			wantReason: ReasonCustomerLimit,
		},
		{
			name:    "per customer cap ignores other promotions and pending orders",
			promo:   func(p *Promotion) { p.Restriction.MaxRedemptionsPerCustomer = 1 },
			cart:    signedIn,
			history: NewHistory([]customer.Order{
				completed("o1", "p2", 3000),
				{ID: "o2", UserID: "u1", Status: customer.StatusPending, PromotionID: "p1", TotalCents: 3000},
			}),
			wantCents: 300,
		},
		{
			name:      "guest skips per customer cap",
			promo:     func(p *Promotion) { p.Restriction.MaxRedemptionsPerCustomer = 1 },
			cart:      guest,
			wantCents: 300,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := percentPromo("p1", "10")
			if tt.promo != nil {
				tt.promo(&p)
			}

			got := Validate(p, tt.cart, tt.history, fixedNow)
			assert.Equal(t, "p1", got.PromotionID)
			if tt.wantReason != "" {
				require.False(t, got.Valid)
				assert.Equal(t, tt.wantReason, got.Reason)
				assert.Zero(t, got.DiscountAmountCents)
				if tt.wantError != "" {
					assert.Equal(t, tt.wantError, got.Error)
				}
				return
			}
			require.True(t, got.Valid, "rejected: %s", got.Error)
			assert.Equal(t, tt.wantCents, got.DiscountAmountCents)
			assert.Empty(t, got.Error)
		})
	}
}

func TestValidate_Scenarios(t *testing.T) {
	t.Run("percentage ten off fifty dollars", func(t *testing.T) {
		got := Validate(percentPromo("a", "10"), NewCart("u1", []Item{item("vanilla", 2, 2500)}), nil, fixedNow)
		require.True(t, got.Valid)
		assert.Equal(t, int64(500), got.DiscountAmountCents)
		require.True(t, got.DiscountPercent.Valid)
		assert.True(t, d("10").Equal(got.DiscountPercent.Decimal))
	})

	t.Run("fixed fifteen capped at ten dollar subtotal", func(t *testing.T) {
		p := Promotion{ID: "b", Active: true, Discount: FixedAmount{AmountCents: 1500}}
		got := Validate(p, NewCart("u1", []Item{item("vanilla", 1, 1000)}), nil, fixedNow)
		require.True(t, got.Valid)
		assert.Equal(t, int64(1000), got.DiscountAmountCents)
		assert.False(t, got.DiscountPercent.Valid)
	})

	t.Run("buy two get one free", func(t *testing.T) {
		p := Promotion{ID: "c", Active: true, Discount: BOGO{MinQuantity: 2, ApplyToQuantity: 1}}
		cart := NewCart("u1", []Item{item("a", 3, 1000), item("b", 1, 600)})
		got := Validate(p, cart, nil, fixedNow)
		require.True(t, got.Valid)
		assert.Equal(t, int64(1600), got.DiscountAmountCents)
	})

	t.Run("minimum order amount message", func(t *testing.T) {
		p := percentPromo("d", "10")
		p.Restriction.MinOrderAmountCents = 2000
		got := Validate(p, NewCart("u1", []Item{item("a", 1, 1500)}), nil, fixedNow)
		require.False(t, got.Valid)
		assert.Contains(t, got.Error, "$20.00")
	})

	t.Run("first time targeting", func(t *testing.T) {
		p := percentPromo("e", "10")
		p.Targeting = TargetFirstTime{}
		cart := NewCart("u1", []Item{item("a", 1, 1500)})

		got := Validate(p, cart, NewHistory([]customer.Order{completed("o1", "", 1000)}), fixedNow)
		assert.False(t, got.Valid)

		got = Validate(p, cart, NewHistory(nil), fixedNow)
		assert.True(t, got.Valid)
	})

	t.Run("guest against returning", func(t *testing.T) {
		p := percentPromo("f", "10")
		p.Targeting = TargetReturning{}
		cart := Cart{IsGuest: true, Items: []Item{item("a", 1, 1500)}, SubtotalCents: 1500}

		got := Validate(p, cart, NewHistory([]customer.Order{completed("o1", "", 1000)}), fixedNow)
		require.False(t, got.Valid)
		assert.Equal(t, ReasonSignInRequired, got.Reason)
	})
}

func TestValidate_InactiveNeverValid(t *testing.T) {
	discounts := []Discount{
		Percentage{Percent: d("10")},
		FixedAmount{AmountCents: 500},
		QuantityDiscount{Percent: d("5"), MinQuantity: 1},
		BOGO{MinQuantity: 1, ApplyToQuantity: 1},
		nil,
	}
	carts := []Cart{
		NewCart("", nil),
		NewCart("u1", []Item{item("a", 10, 100)}),
	}
	for _, disc := range discounts {
		for _, cart := range carts {
			p := Promotion{ID: "x", Discount: disc, Active: false}
			got := Validate(p, cart, NewHistory(nil), fixedNow)
			assert.False(t, got.Valid)
			assert.Equal(t, ReasonInactive, got.Reason)
		}
	}
}

func TestValidate_Idempotent(t *testing.T) {
	p := Promotion{
		ID:          "p1",
		Active:      true,
		Discount:    BOGO{MinQuantity: 2, ApplyToQuantity: 1},
		Targeting:   TargetReturning{},
		Restriction: Restrictions{MaxRedemptions: 10, MaxRedemptionsPerCustomer: 2},
	}
	cart := NewCart("u1", []Item{item("a", 3, 1000), item("b", 1, 600)})
	history := NewHistory([]customer.Order{completed("o1", "p1", 5000)})

	first := Validate(p, cart, history, fixedNow)
	second := Validate(p, cart, history, fixedNow)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, history.Redemptions("p1"))
}

func TestFormatDollars(t *testing.T) {
	assert.Equal(t, "$20.00", formatDollars(2000))
	assert.Equal(t, "$0.05", formatDollars(5))
	assert.Equal(t, "$1234.50", formatDollars(123450))
}
