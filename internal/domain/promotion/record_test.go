package promotion

import (
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromRecord(t *testing.T) {
	tests := []struct {
		name          string
		record        Record
		wantDiscount  Discount
		wantTargeting Targeting
		wantErr       bool
	}{
		{
			name:          "percentage drops irrelevant fields",
			record:        Record{ID: "p1", DiscountType: KindPercentage, DiscountPercent: d("15"), DiscountAmountCents: 999, MinQuantity: 4},
			wantDiscount:  Percentage{Percent: d("15")},
			wantTargeting: TargetAll{},
		},
		{
			name:          "fixed amount",
			record:        Record{ID: "p2", DiscountType: KindFixedAmount, DiscountAmountCents: 1500, TargetingMode: TargetModeReturning},
			wantDiscount:  FixedAmount{AmountCents: 1500},
			wantTargeting: TargetReturning{},
		},
		{
			name: "quantity discount with order count",
			record: Record{
				ID: "p3", DiscountType: KindQuantityDiscount, DiscountPercent: d("5"), MinQuantity: 3,
				TargetingMode: TargetModeOrderCount, MinOrderCount: 2,
			},
			wantDiscount:  QuantityDiscount{Percent: d("5"), MinQuantity: 3},
			wantTargeting: TargetOrderCount{MinOrders: 2},
		},
		{
			name: "bogo for specific users",
			record: Record{
				ID: "p4", DiscountType: KindBOGO, MinQuantity: 2, ApplyToQuantity: 1,
				TargetingMode: TargetModeSpecificUsers, TargetUserIDs: []string{"u1"},
			},
			wantDiscount:  BOGO{MinQuantity: 2, ApplyToQuantity: 1},
			wantTargeting: TargetSpecificUsers{UserIDs: []string{"u1"}},
		},
		{
			name:    "unknown discount type",
			record:  Record{ID: "p5", DiscountType: "mystery"},
			wantErr: true,
		},
		{
			name:    "unknown targeting mode",
			record:  Record{ID: "p6", DiscountType: KindFixedAmount, TargetingMode: "vip"},
			wantErr: true,
		},
		{
			name:    "unknown trigger",
			record:  Record{ID: "p7", DiscountType: KindFixedAmount, Trigger: "sometimes"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := FromRecord(tt.record)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDiscount, p.Discount)
			assert.Equal(t, tt.wantTargeting, p.Targeting)
			assert.Equal(t, TriggerCodeRequired, p.Trigger)
		})
	}
}

func TestRecord_JSON(t *testing.T) {
	starts := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	in := Record{
		ID:                     "holiday",
		Code:                   "HOLIDAY",
		Name:                   "Holiday bundle",
		DiscountType:           KindBOGO,
		Trigger:                TriggerAutomatic,
		MinQuantity:            3,
		ApplyToQuantity:        1,
		MaxRedemptions:         500,
		ApplicableProductSlugs: []string{"pine-forest", "cinnamon"},
		StartsAt:               &starts,
		TargetingMode:          TargetModeLifetimeSpend,
		MinLifetimeSpendCents:  10000,
		Active:                 true,
		CurrentRedemptions:     12,
	}

	var e jx.Encoder
	in.Encode(&e)

	var out Record
	require.NoError(t, out.Decode(jx.DecodeBytes(e.Bytes())))
	assert.Equal(t, in, out)
}

func TestRecord_DecodeExport(t *testing.T) {
	const line = `{"id":"p1","code":"fall10","name":"Fall","discount_type":"percentage",` +
		`"trigger":"code_required","discount_percent":12.5,"expires_at":null,"legacy_field":{"x":[1,2]},` +
		`"targeting_mode":"all","active":true}`

	var r Record
	require.NoError(t, r.Decode(jx.DecodeStr(line)))
	assert.Equal(t, "fall10", r.Code)
	assert.True(t, d("12.5").Equal(r.DiscountPercent))
	assert.Nil(t, r.ExpiresAt)
	assert.True(t, r.Active)

	var bad Record
	require.Error(t, bad.Decode(jx.DecodeStr(`{"id":"p1","starts_at":"yesterday"}`)))
}
