package cache

import (
	"context"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/candleshop/internal/domain/promotion"
)

// CodeSource lists every known promotion code.
type CodeSource interface {
	ListCodes(ctx context.Context) ([]string, error)
}

var _ promotion.CodeIndex = (*CodeIndex)(nil)

// CodeIndex is a bloom filter over normalized promotion codes. Until the
// first Rebuild it reports every code as possibly present.
type CodeIndex struct {
	source   CodeSource
	capacity uint
	fpRate   float64

	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

// NewCodeIndex creates an empty index sized for capacity codes.
func NewCodeIndex(source CodeSource, capacity uint, fpRate float64) *CodeIndex {
	if capacity == 0 {
		capacity = 10_000
	}
	if fpRate <= 0 || fpRate >= 1 {
		fpRate = 0.01
	}
	return &CodeIndex{source: source, capacity: capacity, fpRate: fpRate}
}

// MayContain reports whether code may be a known promotion code.
func (x *CodeIndex) MayContain(code string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.filter == nil {
		return true
	}
	return x.filter.TestString(promotion.NormalizeCode(code))
}

// Add records a code created after the last rebuild.
func (x *CodeIndex) Add(code string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.filter == nil {
		return
	}
	x.filter.AddString(promotion.NormalizeCode(code))
}

// Rebuild replaces the filter with one built from the source.
func (x *CodeIndex) Rebuild(ctx context.Context) error {
	codes, err := x.source.ListCodes(ctx)
	if err != nil {
		return errors.Wrap(err, "list codes")
	}

	f := bloom.NewWithEstimates(max(x.capacity, uint(len(codes))), x.fpRate)
	for _, code := range codes {
		f.AddString(promotion.NormalizeCode(code))
	}

	x.mu.Lock()
	x.filter = f
	x.mu.Unlock()

	zctx.From(ctx).Debug("Code index rebuilt", zap.Int("codes", len(codes)))
	return nil
}

// Run rebuilds the index every interval until ctx is done.
func (x *CodeIndex) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := x.Rebuild(ctx); err != nil {
				zctx.From(ctx).Error("Code index rebuild failed", zap.Error(err))
			}
		}
	}
}
