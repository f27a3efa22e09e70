package promotion

import (
	"slices"
	"sort"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Calculate computes the discount p grants on cart. It assumes p already
// passed Validate and never fails: missing or nonsensical parameters yield a
// zero discount. The result never exceeds the cart subtotal.
func Calculate(p Promotion, cart Cart) Amount {
	switch d := p.Discount.(type) {
	case Percentage:
		return applyPercentage(d.Percent, cart.SubtotalCents)
	case FixedAmount:
		return Amount{Cents: clamp(d.AmountCents, cart.SubtotalCents)}
	case QuantityDiscount:
		if cart.TotalQuantity() < d.MinQuantity {
			return Amount{}
		}
		return applyPercentage(d.Percent, cart.SubtotalCents)
	case BOGO:
		return Amount{Cents: clamp(applyBOGO(d, cart.Items, p.Restriction.ApplicableProductSlugs), cart.SubtotalCents)}
	default:
		return Amount{}
	}
}

func applyPercentage(percent decimal.Decimal, subtotal int64) Amount {
	if !percent.IsPositive() {
		return Amount{}
	}
	cents := decimal.NewFromInt(subtotal).Mul(percent).Div(hundred).Round(0).IntPart()
	return Amount{
		Cents:   clamp(cents, subtotal),
		Percent: decimal.NewNullDecimal(percent),
	}
}

// unitLine is a cart line reduced to what the BOGO walk needs.
type unitLine struct {
	quantity  int
	unitPrice decimal.Decimal
}

// applyBOGO makes the cheapest qualifying units free: for every MinQuantity
// qualifying units, ApplyToQuantity units are discounted, lowest unit price
// first. Lines with equal unit prices keep their cart order.
func applyBOGO(d BOGO, items []Item, slugs []string) int64 {
	if d.MinQuantity <= 0 || d.ApplyToQuantity <= 0 {
		return 0
	}

	lines := make([]unitLine, 0, len(items))
	total := 0
	for _, it := range items {
		if it.Quantity <= 0 || it.PriceCents <= 0 {
			continue
		}
		if len(slugs) > 0 && !slices.Contains(slugs, it.ProductSlug) {
			continue
		}
		lines = append(lines, unitLine{
			quantity:  it.Quantity,
			unitPrice: decimal.NewFromInt(it.PriceCents),
		})
		total += it.Quantity
	}
	if total == 0 {
		return 0
	}

	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].unitPrice.LessThan(lines[j].unitPrice)
	})

	sets := total / d.MinQuantity
	free := min(sets*d.ApplyToQuantity, total)

	var discount int64
	for _, l := range lines {
		if free == 0 {
			break
		}
		units := min(free, l.quantity)
		discount += l.unitPrice.Mul(decimal.NewFromInt(int64(units))).Round(0).IntPart()
		free -= units
	}
	return discount
}

// clamp bounds v to [0, limit]. A non-positive limit yields 0.
func clamp(v, limit int64) int64 {
	return max(min(v, limit), 0)
}
