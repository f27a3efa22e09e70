package main

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/candleshop/internal/domain/customer"
	"github.com/xenking/candleshop/internal/domain/promotion"
	"github.com/xenking/candleshop/internal/repository"
)

const (
	bloomFPR      = 0.001
	progressEvery = 10_000
)

// Store receives the imported rows.
type Store interface {
	UpsertUser(ctx context.Context, u customer.User) error
	UpsertPromotion(ctx context.Context, r promotion.Record) error
	ImportOrder(ctx context.Context, o customer.Order) error
}

type pgStore struct {
	customers  *repository.CustomerRepository
	promotions *repository.PromotionRepository
}

func (s pgStore) UpsertUser(ctx context.Context, u customer.User) error {
	return s.customers.UpsertUser(ctx, u)
}

func (s pgStore) UpsertPromotion(ctx context.Context, r promotion.Record) error {
	return s.promotions.Upsert(ctx, r)
}

func (s pgStore) ImportOrder(ctx context.Context, o customer.Order) error {
	return s.customers.ImportOrder(ctx, o)
}

func run(ctx context.Context, lg *zap.Logger, dataDir, databaseURL string, workers int) error {
	exp, err := readExport(ctx, lg, dataDir)
	if err != nil {
		return err
	}

	var dups []promotion.Record
	exp.promotions, dups = dedupeCodes(exp.promotions)
	for _, r := range dups {
		lg.Warn("Skipping promotion with duplicate code", zap.String("id", r.ID), zap.String("code", r.Code))
	}

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	store := pgStore{
		customers:  repository.NewCustomerRepository(pool),
		promotions: repository.NewPromotionRepository(pool),
	}
	return load(ctx, lg, store, exp, workers)
}

// readExport parses the three files concurrently. A missing file is skipped.
func readExport(ctx context.Context, lg *zap.Logger, dataDir string) (*export, error) {
	var exp export
	g, ctx := errgroup.WithContext(ctx)

	read := func(name string, fn func(d *jx.Decoder) error) {
		path := filepath.Join(dataDir, name)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			lg.Warn("Export file missing, skipping", zap.String("file", path))
			return
		}
		g.Go(func() error {
			if err := streamNDJSON(ctx, path, fn); err != nil {
				return errors.Wrapf(err, "read %s", name)
			}
			return nil
		})
	}
	read(promotionsFile, func(d *jx.Decoder) error {
		r, err := decodePromotion(d)
		exp.promotions = append(exp.promotions, r)
		return err
	})
	read(usersFile, func(d *jx.Decoder) error {
		u, err := decodeUser(d)
		exp.users = append(exp.users, u)
		return err
	})
	read(ordersFile, func(d *jx.Decoder) error {
		o, err := decodeOrder(d)
		exp.orders = append(exp.orders, o)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	lg.Info("Export parsed",
		zap.Int("promotions", len(exp.promotions)),
		zap.Int("users", len(exp.users)),
		zap.Int("orders", len(exp.orders)),
	)
	return &exp, nil
}

// dedupeCodes keeps the first promotion per case-insensitive code. A bloom
// filter screens codes and only its hits are checked against the exact set
// of codes seen so far.
func dedupeCodes(records []promotion.Record) (kept, dups []promotion.Record) {
	filter := bloom.NewWithEstimates(uint(max(len(records), 1)), bloomFPR)
	seen := make(map[string]struct{})

	kept = make([]promotion.Record, 0, len(records))
	for _, r := range records {
		if r.Code == "" {
			kept = append(kept, r)
			continue
		}
		code := promotion.NormalizeCode(r.Code)
		if filter.TestString(code) {
			if _, ok := seen[code]; ok {
				dups = append(dups, r)
				continue
			}
		}
		filter.AddString(code)
		seen[code] = struct{}{}
		kept = append(kept, r)
	}
	return kept, dups
}

// load upserts users and promotions, then the orders that reference them.
func load(ctx context.Context, lg *zap.Logger, store Store, exp *export, workers int) error {
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return upsertAll(gCtx, lg, "users", exp.users, workers, store.UpsertUser)
	})
	g.Go(func() error {
		return upsertAll(gCtx, lg, "promotions", exp.promotions, workers, store.UpsertPromotion)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	return upsertAll(ctx, lg, "orders", exp.orders, workers, store.ImportOrder)
}

func upsertAll[T any](
	ctx context.Context,
	lg *zap.Logger,
	kind string,
	rows []T,
	workers int,
	fn func(context.Context, T) error,
) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))

	var done atomic.Int64
	for _, row := range rows {
		g.Go(func() error {
			if err := fn(ctx, row); err != nil {
				return errors.Wrapf(err, "upsert %s", kind)
			}
			if n := done.Add(1); n%progressEvery == 0 {
				lg.Info("Import progress", zap.String("kind", kind), zap.Int64("written", n))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	lg.Info("Imported", zap.String("kind", kind), zap.Int("count", len(rows)))
	return nil
}
