package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/candleshop/internal/domain/customer"
	"github.com/xenking/candleshop/internal/domain/promotion"
)

type noCustomers struct{}

func (noCustomers) GetUserByID(context.Context, string) (*customer.User, error) {
	return nil, customer.ErrUserNotFound
}

func (noCustomers) GetUserOrders(context.Context, string) ([]customer.Order, error) {
	return nil, nil
}

type staticCodes struct {
	codes []string
	err   error
	calls atomic.Int32
}

func (s *staticCodes) ListCodes(_ context.Context) ([]string, error) {
	s.calls.Add(1)
	return s.codes, s.err
}

func TestCodeIndex(t *testing.T) {
	src := &staticCodes{codes: []string{"WELCOME10", "holiday20"}}
	idx := NewCodeIndex(src, 100, 0.001)

	// Unbuilt index never rejects.
	assert.True(t, idx.MayContain("ANYTHING"))
	idx.Add("IGNORED")

	require.NoError(t, idx.Rebuild(context.Background()))
	assert.True(t, idx.MayContain("welcome10"))
	assert.True(t, idx.MayContain(" HOLIDAY20 "))

	misses := 0
	for i := range 200 {
		if !idx.MayContain(fmt.Sprintf("UNKNOWN-%d", i)) {
			misses++
		}
	}
	assert.Greater(t, misses, 190)

	idx.Add("flash50")
	assert.True(t, idx.MayContain("FLASH50"))
}

func TestCodeIndex_FindsCodesCreatedAfterRebuild(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{records: []promotion.Record{{
		ID: "old", Code: "OLD", Name: "Old", DiscountType: promotion.KindFixedAmount,
		DiscountAmountCents: 100, Active: true,
	}}}
	idx := NewCodeIndex(store, 100, 0.001)
	require.NoError(t, idx.Rebuild(ctx))

	store.records = append(store.records, promotion.Record{
		ID: "new", Code: "NEW", Name: "New", DiscountType: promotion.KindFixedAmount,
		DiscountAmountCents: 300, Active: true,
	})
	require.False(t, idx.MayContain("NEW"))

	svc, err := promotion.NewService(store, noCustomers{}, promotion.WithCodeIndex(idx))
	require.NoError(t, err)

	res, err := svc.ValidateCode(ctx, "new", promotion.NewCart("", []promotion.Item{
		{ProductSlug: "vanilla-bean", Quantity: 1, PriceCents: 1600},
	}))
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, "new", res.PromotionID)
	assert.Equal(t, int64(300), res.DiscountAmountCents)
	assert.True(t, idx.MayContain("NEW"))

	_, err = svc.ValidateCode(ctx, "missing", promotion.NewCart("", nil))
	require.ErrorIs(t, err, promotion.ErrNotFound)
}

func TestCodeIndex_RebuildError(t *testing.T) {
	src := &staticCodes{err: errors.New("db down")}
	idx := NewCodeIndex(src, 0, 0)

	require.Error(t, idx.Rebuild(context.Background()))
	assert.True(t, idx.MayContain("ANY"))
}

func TestCodeIndex_Run(t *testing.T) {
	src := &staticCodes{codes: []string{"A"}}
	idx := NewCodeIndex(src, 10, 0.01)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- idx.Run(ctx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool { return src.calls.Load() > 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, idx.MayContain("a"))
	cancel()
	require.NoError(t, <-done)
}
