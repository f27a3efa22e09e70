package main

import (
	"context"
	"os"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/candleshop/internal/domain/auth"
	"github.com/xenking/candleshop/internal/domain/product"
	"github.com/xenking/candleshop/internal/domain/promotion"
	"github.com/xenking/candleshop/internal/repository"
)

func run(ctx context.Context, lg *zap.Logger, databaseURL, productsFile, apiKey, pepper string) error {
	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	products, err := readProducts(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products")
	}
	productRepo := repository.NewProductRepository(pool)
	for _, p := range products {
		if err := productRepo.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.Slug)
		}
	}
	lg.Info("Products seeded", zap.Int("count", len(products)))

	promotionRepo := repository.NewPromotionRepository(pool)
	promos := samplePromotions(time.Now().UTC())
	for _, r := range promos {
		if err := promotionRepo.Upsert(ctx, r); err != nil {
			return errors.Wrapf(err, "upsert promotion %s", r.Name)
		}
	}
	lg.Info("Promotions seeded", zap.Int("count", len(promos)))

	key := seedKey(auth.NewHasher([]byte(pepper)), apiKey)
	if err := repository.NewAPIKeyRepository(pool).Upsert(ctx, key); err != nil {
		return errors.Wrap(err, "upsert api key")
	}
	lg.Info("API key seeded", zap.String("id", key.ID), zap.Strings("scopes", key.Scopes))
	return nil
}

func readProducts(path string) ([]product.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeProducts(data)
}

func decodeProducts(data []byte) ([]product.Product, error) {
	var out []product.Product
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var p product.Product
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "slug":
				p.Slug, err = d.Str()
			case "name":
				p.Name, err = d.Str()
			case "price_cents":
				p.PriceCents, err = d.Int64()
			case "category":
				p.Category, err = d.Str()
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		if p.Slug == "" || p.PriceCents < 0 {
			return errors.Errorf("invalid product %q", p.Slug)
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

// promotionID derives a stable id so reseeding updates rows in place.
func promotionID(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("candleshop/promotion/"+name)).String()
}

func samplePromotions(now time.Time) []promotion.Record {
	yearEnd := time.Date(now.Year(), 12, 31, 23, 59, 59, 0, time.UTC)
	records := []promotion.Record{
		{
			Name:                "Save 20% on orders over $50",
			Code:                "SAVE20",
			DiscountType:        promotion.KindPercentage,
			DiscountPercent:     decimal.NewFromInt(20),
			MinOrderAmountCents: 5000,
			ExpiresAt:           &yearEnd,
		},
		{
			Name:                "$10 off your first order",
			Code:                "WELCOME10",
			DiscountType:        promotion.KindFixedAmount,
			DiscountAmountCents: 1000,
			TargetingMode:       promotion.TargetModeFirstTime,
			MaxRedemptions:      1000,
		},
		{
			Name:                      "Loyal customer 15%",
			Code:                      "THANKYOU15",
			DiscountType:              promotion.KindPercentage,
			DiscountPercent:           decimal.NewFromInt(15),
			TargetingMode:             promotion.TargetModeOrderCount,
			MinOrderCount:             3,
			MaxRedemptionsPerCustomer: 1,
		},
		{
			Name:            "Buy 2 classics, get 1 free",
			DiscountType:    promotion.KindBOGO,
			Trigger:         promotion.TriggerAutomatic,
			MinQuantity:     2,
			ApplyToQuantity: 1,
			ApplicableProductSlugs: []string{
				"vanilla-bean", "lavender-fields", "citrus-grove",
			},
		},
		{
			Name:            "10% off 5 or more candles",
			DiscountType:    promotion.KindQuantityDiscount,
			Trigger:         promotion.TriggerAutomatic,
			DiscountPercent: decimal.NewFromInt(10),
			MinQuantity:     5,
		},
	}
	for i := range records {
		records[i].ID = promotionID(records[i].Name)
		records[i].Active = true
	}
	return records
}

func seedKey(h auth.Hasher, raw string) auth.APIKey {
	return auth.APIKey{
		ID:      "storefront",
		KeyHash: h.Hash(raw),
		Name:    "Storefront backend",
		Scopes:  []string{auth.ScopePromotionsRead, auth.ScopeOrdersWrite},
	}
}
