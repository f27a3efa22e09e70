package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/candleshop/internal/domain/promotion"
)

const promotionColumns = `id, COALESCE(code, ''), name, discount_type, trigger_type,
	COALESCE(discount_percent, 0), COALESCE(discount_amount_cents, 0),
	COALESCE(min_quantity, 0), COALESCE(apply_to_quantity, 0),
	COALESCE(min_order_amount_cents, 0), COALESCE(max_redemptions, 0),
	COALESCE(max_redemptions_per_customer, 0), applicable_product_slugs,
	starts_at, expires_at, targeting_mode, target_user_ids,
	COALESCE(min_order_count, 0), COALESCE(min_lifetime_spend_cents, 0),
	active, current_redemptions`

const (
	getPromotionByIDSQL = `SELECT ` + promotionColumns + ` FROM promotions WHERE id = $1`

	getPromotionByCodeSQL = `SELECT ` + promotionColumns + ` FROM promotions WHERE UPPER(code) = UPPER($1)`

	listPromotionsSQL = `SELECT ` + promotionColumns + ` FROM promotions ORDER BY id`

	listPromotionCodesSQL = `SELECT UPPER(code) FROM promotions WHERE code IS NOT NULL`

	// Cap check and increment in one statement.
	incrementRedemptionsSQL = `UPDATE promotions
	SET current_redemptions = current_redemptions + 1, updated_at = NOW()
	WHERE id = $1 AND (max_redemptions IS NULL OR max_redemptions = 0 OR current_redemptions < max_redemptions)`

	promotionExistsSQL = `SELECT EXISTS (SELECT 1 FROM promotions WHERE id = $1)`

	upsertPromotionSQL = `INSERT INTO promotions (
		id, code, name, discount_type, trigger_type, discount_percent, discount_amount_cents,
		min_quantity, apply_to_quantity, min_order_amount_cents, max_redemptions,
		max_redemptions_per_customer, applicable_product_slugs, starts_at, expires_at,
		targeting_mode, target_user_ids, min_order_count, min_lifetime_spend_cents,
		active, current_redemptions
	) VALUES (
		$1, NULLIF($2, ''), $3, $4, $5, NULLIF($6::numeric, 0), NULLIF($7::bigint, 0),
		NULLIF($8::integer, 0), NULLIF($9::integer, 0), NULLIF($10::bigint, 0), NULLIF($11::integer, 0),
		NULLIF($12::integer, 0), $13, $14, $15,
		$16, $17, NULLIF($18::integer, 0), NULLIF($19::bigint, 0),
		$20, $21
	)
	ON CONFLICT (id) DO UPDATE SET
		code = EXCLUDED.code, name = EXCLUDED.name, discount_type = EXCLUDED.discount_type,
		trigger_type = EXCLUDED.trigger_type, discount_percent = EXCLUDED.discount_percent,
		discount_amount_cents = EXCLUDED.discount_amount_cents, min_quantity = EXCLUDED.min_quantity,
		apply_to_quantity = EXCLUDED.apply_to_quantity, min_order_amount_cents = EXCLUDED.min_order_amount_cents,
		max_redemptions = EXCLUDED.max_redemptions,
		max_redemptions_per_customer = EXCLUDED.max_redemptions_per_customer,
		applicable_product_slugs = EXCLUDED.applicable_product_slugs, starts_at = EXCLUDED.starts_at,
		expires_at = EXCLUDED.expires_at, targeting_mode = EXCLUDED.targeting_mode,
		target_user_ids = EXCLUDED.target_user_ids, min_order_count = EXCLUDED.min_order_count,
		min_lifetime_spend_cents = EXCLUDED.min_lifetime_spend_cents, active = EXCLUDED.active,
		current_redemptions = GREATEST(promotions.current_redemptions, EXCLUDED.current_redemptions),
		updated_at = NOW()`
)

var (
	_ promotion.Repository        = (*PromotionRepository)(nil)
	_ promotion.RedemptionCounter = (*PromotionRepository)(nil)
)

// PromotionRepository implements promotion.Repository and
// promotion.RedemptionCounter backed by PostgreSQL.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

// NewPromotionRepository returns a PromotionRepository that uses the given pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// GetByID returns the promotion with the given id.
func (r *PromotionRepository) GetByID(ctx context.Context, id string) (*promotion.Promotion, error) {
	return r.getOne(ctx, getPromotionByIDSQL, id)
}

// GetByCode returns the promotion whose code matches case-insensitively.
func (r *PromotionRepository) GetByCode(ctx context.Context, code string) (*promotion.Promotion, error) {
	return r.getOne(ctx, getPromotionByCodeSQL, code)
}

func (r *PromotionRepository) getOne(ctx context.Context, query, arg string) (*promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("getting promotion %q: %w", arg, err)
	}

	rec, err := pgx.CollectExactlyOneRow(rows, scanPromotionRecord)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promotion.ErrNotFound
		}
		return nil, fmt.Errorf("getting promotion %q: %w", arg, err)
	}

	p, err := promotion.FromRecord(rec)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// List returns every promotion ordered by id.
func (r *PromotionRepository) List(ctx context.Context) ([]promotion.Promotion, error) {
	records, err := r.ListRecords(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]promotion.Promotion, 0, len(records))
	for _, rec := range records {
		p, err := promotion.FromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ListRecords returns every promotion in its flat form.
func (r *PromotionRepository) ListRecords(ctx context.Context) ([]promotion.Record, error) {
	rows, err := r.pool.Query(ctx, listPromotionsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing promotions: %w", err)
	}
	records, err := pgx.CollectRows(rows, scanPromotionRecord)
	if err != nil {
		return nil, fmt.Errorf("listing promotions: %w", err)
	}
	return records, nil
}

// ListCodes returns every promotion code, upper-cased.
func (r *PromotionRepository) ListCodes(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, listPromotionCodesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing promotion codes: %w", err)
	}
	codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("listing promotion codes: %w", err)
	}
	return codes, nil
}

// IncrementRedemptions counts one redemption of the promotion. It returns
// promotion.ErrRedemptionCapReached when the promotion is already at its cap
// and promotion.ErrNotFound when it does not exist.
func (r *PromotionRepository) IncrementRedemptions(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, incrementRedemptionsSQL, id)
	if err != nil {
		return fmt.Errorf("incrementing redemptions of %q: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, promotionExistsSQL, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking promotion %q: %w", id, err)
	}
	if !exists {
		return promotion.ErrNotFound
	}
	return promotion.ErrRedemptionCapReached
}

// Upsert inserts rec or replaces the promotion with the same id. The stored
// redemption counter never moves backwards.
func (r *PromotionRepository) Upsert(ctx context.Context, rec promotion.Record) error {
	trigger := rec.Trigger
	if trigger == "" {
		trigger = promotion.TriggerCodeRequired
	}
	mode := rec.TargetingMode
	if mode == "" {
		mode = promotion.TargetModeAll
	}
	_, err := r.pool.Exec(ctx, upsertPromotionSQL,
		rec.ID, rec.Code, rec.Name, string(rec.DiscountType), string(trigger),
		rec.DiscountPercent, rec.DiscountAmountCents,
		rec.MinQuantity, rec.ApplyToQuantity, rec.MinOrderAmountCents, rec.MaxRedemptions,
		rec.MaxRedemptionsPerCustomer, nonNil(rec.ApplicableProductSlugs), rec.StartsAt, rec.ExpiresAt,
		string(mode), nonNil(rec.TargetUserIDs), rec.MinOrderCount, rec.MinLifetimeSpendCents,
		rec.Active, rec.CurrentRedemptions,
	)
	if err != nil {
		return fmt.Errorf("upserting promotion %q: %w", rec.ID, err)
	}
	return nil
}

func scanPromotionRecord(row pgx.CollectableRow) (promotion.Record, error) {
	var (
		rec                promotion.Record
		discountType, trig string
		targetingMode      string
	)
	err := row.Scan(
		&rec.ID, &rec.Code, &rec.Name, &discountType, &trig,
		&rec.DiscountPercent, &rec.DiscountAmountCents,
		&rec.MinQuantity, &rec.ApplyToQuantity,
		&rec.MinOrderAmountCents, &rec.MaxRedemptions,
		&rec.MaxRedemptionsPerCustomer, &rec.ApplicableProductSlugs,
		&rec.StartsAt, &rec.ExpiresAt, &targetingMode, &rec.TargetUserIDs,
		&rec.MinOrderCount, &rec.MinLifetimeSpendCents,
		&rec.Active, &rec.CurrentRedemptions,
	)
	rec.DiscountType = promotion.Kind(discountType)
	rec.Trigger = promotion.Trigger(trig)
	rec.TargetingMode = promotion.TargetMode(targetingMode)
	return rec, err
}

// nonNil keeps NOT NULL array columns from receiving NULL.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
