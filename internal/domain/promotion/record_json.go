package promotion

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Encode writes r as a JSON object. Unset optional fields are omitted.
func (r Record) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(r.ID)
	if r.Code != "" {
		e.FieldStart("code")
		e.Str(r.Code)
	}
	e.FieldStart("name")
	e.Str(r.Name)
	e.FieldStart("discount_type")
	e.Str(string(r.DiscountType))
	e.FieldStart("trigger")
	e.Str(string(r.Trigger))
	if !r.DiscountPercent.IsZero() {
		e.FieldStart("discount_percent")
		e.Str(r.DiscountPercent.String())
	}
	encodeInt64(e, "discount_amount_cents", r.DiscountAmountCents)
	encodeInt64(e, "min_quantity", int64(r.MinQuantity))
	encodeInt64(e, "apply_to_quantity", int64(r.ApplyToQuantity))
	encodeInt64(e, "min_order_amount_cents", r.MinOrderAmountCents)
	encodeInt64(e, "max_redemptions", int64(r.MaxRedemptions))
	encodeInt64(e, "max_redemptions_per_customer", int64(r.MaxRedemptionsPerCustomer))
	encodeStrings(e, "applicable_product_slugs", r.ApplicableProductSlugs)
	encodeTime(e, "starts_at", r.StartsAt)
	encodeTime(e, "expires_at", r.ExpiresAt)
	e.FieldStart("targeting_mode")
	e.Str(string(r.TargetingMode))
	encodeStrings(e, "target_user_ids", r.TargetUserIDs)
	encodeInt64(e, "min_order_count", int64(r.MinOrderCount))
	encodeInt64(e, "min_lifetime_spend_cents", r.MinLifetimeSpendCents)
	e.FieldStart("active")
	e.Bool(r.Active)
	e.FieldStart("current_redemptions")
	e.Int(r.CurrentRedemptions)
	e.ObjEnd()
}

// Decode reads a JSON object into r. Unknown fields are skipped and null is
// treated as unset.
func (r *Record) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		if d.Next() == jx.Null {
			return d.Null()
		}

		var err error
		switch key {
		case "id":
			r.ID, err = d.Str()
		case "code":
			r.Code, err = d.Str()
		case "name":
			r.Name, err = d.Str()
		case "discount_type":
			var s string
			s, err = d.Str()
			r.DiscountType = Kind(s)
		case "trigger":
			var s string
			s, err = d.Str()
			r.Trigger = Trigger(s)
		case "discount_percent":
			r.DiscountPercent, err = DecodeDecimal(d)
		case "discount_amount_cents":
			r.DiscountAmountCents, err = d.Int64()
		case "min_quantity":
			r.MinQuantity, err = d.Int()
		case "apply_to_quantity":
			r.ApplyToQuantity, err = d.Int()
		case "min_order_amount_cents":
			r.MinOrderAmountCents, err = d.Int64()
		case "max_redemptions":
			r.MaxRedemptions, err = d.Int()
		case "max_redemptions_per_customer":
			r.MaxRedemptionsPerCustomer, err = d.Int()
		case "applicable_product_slugs":
			r.ApplicableProductSlugs, err = DecodeStrings(d)
		case "starts_at":
			r.StartsAt, err = decodeTime(d)
		case "expires_at":
			r.ExpiresAt, err = decodeTime(d)
		case "targeting_mode":
			var s string
			s, err = d.Str()
			r.TargetingMode = TargetMode(s)
		case "target_user_ids":
			r.TargetUserIDs, err = DecodeStrings(d)
		case "min_order_count":
			r.MinOrderCount, err = d.Int()
		case "min_lifetime_spend_cents":
			r.MinLifetimeSpendCents, err = d.Int64()
		case "active":
			r.Active, err = d.Bool()
		case "current_redemptions":
			r.CurrentRedemptions, err = d.Int()
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		return nil
	})
}

// DecodeDecimal reads a decimal given either as a JSON string or number.
func DecodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(n.String())
	default:
		return decimal.Decimal{}, errors.Errorf("unexpected %s for decimal", d.Next())
	}
}

// DecodeStrings reads a JSON array of strings.
func DecodeStrings(d *jx.Decoder) ([]string, error) {
	var out []string
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

func decodeTime(d *jx.Decoder) (*time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func encodeInt64(e *jx.Encoder, name string, v int64) {
	if v == 0 {
		return
	}
	e.FieldStart(name)
	e.Int64(v)
}

func encodeStrings(e *jx.Encoder, name string, v []string) {
	if len(v) == 0 {
		return
	}
	e.FieldStart(name)
	e.ArrStart()
	for _, s := range v {
		e.Str(s)
	}
	e.ArrEnd()
}

func encodeTime(e *jx.Encoder, name string, t *time.Time) {
	if t == nil {
		return
	}
	e.FieldStart(name)
	e.Str(t.UTC().Format(time.RFC3339))
}

// EncodeRecords writes records as a JSON array.
func EncodeRecords(e *jx.Encoder, records []Record) {
	e.ArrStart()
	for _, r := range records {
		r.Encode(e)
	}
	e.ArrEnd()
}

// DecodeRecords reads a JSON array of records.
func DecodeRecords(d *jx.Decoder) ([]Record, error) {
	var out []Record
	err := d.Arr(func(d *jx.Decoder) error {
		var r Record
		if err := r.Decode(d); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}
