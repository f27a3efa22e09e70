package promotion

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Record is the flat storage and wire shape of a Promotion. Parameters that
// do not apply to the discount kind or targeting mode are zero.
type Record struct {
	ID                        string
	Code                      string
	Name                      string
	DiscountType              Kind
	Trigger                   Trigger
	DiscountPercent           decimal.Decimal
	DiscountAmountCents       int64
	MinQuantity               int
	ApplyToQuantity           int
	MinOrderAmountCents       int64
	MaxRedemptions            int
	MaxRedemptionsPerCustomer int
	ApplicableProductSlugs    []string
	StartsAt                  *time.Time
	ExpiresAt                 *time.Time
	TargetingMode             TargetMode
	TargetUserIDs             []string
	MinOrderCount             int
	MinLifetimeSpendCents     int64
	Active                    bool
	CurrentRedemptions        int
}

// FromRecord converts r into a Promotion, keeping only the parameters the
// discount kind and targeting mode read.
func FromRecord(r Record) (Promotion, error) {
	d, err := r.discount()
	if err != nil {
		return Promotion{}, err
	}
	t, err := r.targeting()
	if err != nil {
		return Promotion{}, err
	}

	trigger := r.Trigger
	switch trigger {
	case TriggerAutomatic, TriggerCodeRequired:
	case "":
		trigger = TriggerCodeRequired
	default:
		return Promotion{}, errors.Errorf("promotion %s: unknown trigger %q", r.ID, r.Trigger)
	}

	return Promotion{
		ID:        r.ID,
		Code:      r.Code,
		Name:      r.Name,
		Trigger:   trigger,
		Discount:  d,
		Targeting: t,
		Restriction: Restrictions{
			MinOrderAmountCents:       r.MinOrderAmountCents,
			MaxRedemptions:            r.MaxRedemptions,
			MaxRedemptionsPerCustomer: r.MaxRedemptionsPerCustomer,
			ApplicableProductSlugs:    r.ApplicableProductSlugs,
		},
		StartsAt:           r.StartsAt,
		ExpiresAt:          r.ExpiresAt,
		Active:             r.Active,
		CurrentRedemptions: r.CurrentRedemptions,
	}, nil
}

func (r Record) discount() (Discount, error) {
	switch r.DiscountType {
	case KindPercentage:
		return Percentage{Percent: r.DiscountPercent}, nil
	case KindFixedAmount:
		return FixedAmount{AmountCents: r.DiscountAmountCents}, nil
	case KindQuantityDiscount:
		return QuantityDiscount{Percent: r.DiscountPercent, MinQuantity: r.MinQuantity}, nil
	case KindBOGO:
		return BOGO{MinQuantity: r.MinQuantity, ApplyToQuantity: r.ApplyToQuantity}, nil
	default:
		return nil, errors.Errorf("promotion %s: unknown discount type %q", r.ID, r.DiscountType)
	}
}

func (r Record) targeting() (Targeting, error) {
	switch r.TargetingMode {
	case TargetModeAll, "":
		return TargetAll{}, nil
	case TargetModeFirstTime:
		return TargetFirstTime{}, nil
	case TargetModeReturning:
		return TargetReturning{}, nil
	case TargetModeSpecificUsers:
		return TargetSpecificUsers{UserIDs: r.TargetUserIDs}, nil
	case TargetModeOrderCount:
		return TargetOrderCount{MinOrders: r.MinOrderCount}, nil
	case TargetModeLifetimeSpend:
		return TargetLifetimeSpend{MinSpendCents: r.MinLifetimeSpendCents}, nil
	default:
		return nil, errors.Errorf("promotion %s: unknown targeting mode %q", r.ID, r.TargetingMode)
	}
}

// ToRecord flattens p.
func ToRecord(p Promotion) Record {
	r := Record{
		ID:                        p.ID,
		Code:                      p.Code,
		Name:                      p.Name,
		Trigger:                   p.Trigger,
		MinOrderAmountCents:       p.Restriction.MinOrderAmountCents,
		MaxRedemptions:            p.Restriction.MaxRedemptions,
		MaxRedemptionsPerCustomer: p.Restriction.MaxRedemptionsPerCustomer,
		ApplicableProductSlugs:    p.Restriction.ApplicableProductSlugs,
		StartsAt:                  p.StartsAt,
		ExpiresAt:                 p.ExpiresAt,
		TargetingMode:             p.TargetMode(),
		Active:                    p.Active,
		CurrentRedemptions:        p.CurrentRedemptions,
	}

	switch d := p.Discount.(type) {
	case Percentage:
		r.DiscountType = KindPercentage
		r.DiscountPercent = d.Percent
	case FixedAmount:
		r.DiscountType = KindFixedAmount
		r.DiscountAmountCents = d.AmountCents
	case QuantityDiscount:
		r.DiscountType = KindQuantityDiscount
		r.DiscountPercent = d.Percent
		r.MinQuantity = d.MinQuantity
	case BOGO:
		r.DiscountType = KindBOGO
		r.MinQuantity = d.MinQuantity
		r.ApplyToQuantity = d.ApplyToQuantity
	}

	switch t := p.Targeting.(type) {
	case TargetSpecificUsers:
		r.TargetUserIDs = t.UserIDs
	case TargetOrderCount:
		r.MinOrderCount = t.MinOrders
	case TargetLifetimeSpend:
		r.MinLifetimeSpendCents = t.MinSpendCents
	}
	return r
}
