package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/broxiva/promo-engine/internal/domain/coupon"
	"github.com/broxiva/promo-engine/internal/domain/promotion"
)

const (
	// created_at breaks priority ties deterministically; the selector relies
	// on this order being stable between calls.
	listActivePromotionsSQL = `SELECT id, name, discount_type, value, tiers, priority, rules,
		included_products, excluded_products, included_categories, excluded_categories,
		max_discount, starts_at, ends_at, active, created_at
		FROM automatic_discounts
		WHERE active = TRUE AND starts_at <= $1 AND (ends_at IS NULL OR ends_at >= $1)
		ORDER BY priority DESC, created_at ASC`

	createPromotionSQL = `INSERT INTO automatic_discounts (id, name, discount_type, value, tiers, priority, rules,
		included_products, excluded_products, included_categories, excluded_categories,
		max_discount, starts_at, ends_at, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
)

var _ promotion.Repository = (*PromotionRepository)(nil)

// PromotionRepository implements promotion.Repository backed by PostgreSQL.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

// NewPromotionRepository returns a PromotionRepository that uses the given pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// ListActive returns active promotions whose validity window contains now,
// ordered by priority descending.
func (r *PromotionRepository) ListActive(ctx context.Context, now time.Time) ([]promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, listActivePromotionsSQL, now)
	if err != nil {
		return nil, fmt.Errorf("listing active promotions: %w", err)
	}
	return pgx.CollectRows(rows, scanPromotion)
}

// Create persists a new promotion. Used by seeding and admin tooling.
func (r *PromotionRepository) Create(ctx context.Context, p *promotion.Promotion) error {
	rulesJSON, err := json.Marshal(p.Rules)
	if err != nil {
		return fmt.Errorf("marshaling promotion rules: %w", err)
	}
	tiersJSON, err := json.Marshal(p.Tiers)
	if err != nil {
		return fmt.Errorf("marshaling promotion tiers: %w", err)
	}

	_, err = r.pool.Exec(ctx, createPromotionSQL,
		p.ID, p.Name, string(p.Type), p.Value, tiersJSON, p.Priority, rulesJSON,
		p.IncludedProducts, p.ExcludedProducts, p.IncludedCategories, p.ExcludedCategories,
		p.MaxDiscount, p.StartsAt, p.EndsAt, p.Active, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating promotion %q: %w", p.Name, err)
	}
	return nil
}

func scanPromotion(row pgx.CollectableRow) (promotion.Promotion, error) {
	var (
		p            promotion.Promotion
		discountType string
		endsAt       *time.Time
		tiersJSON    []byte
		rulesJSON    []byte
	)
	err := row.Scan(
		&p.ID, &p.Name, &discountType, &p.Value, &tiersJSON, &p.Priority, &rulesJSON,
		&p.IncludedProducts, &p.ExcludedProducts, &p.IncludedCategories, &p.ExcludedCategories,
		&p.MaxDiscount, &p.StartsAt, &endsAt, &p.Active, &p.CreatedAt,
	)
	if err != nil {
		return p, err
	}
	p.Type = coupon.DiscountType(discountType)
	p.EndsAt = endsAt
	if len(tiersJSON) > 0 {
		if err := json.Unmarshal(tiersJSON, &p.Tiers); err != nil {
			return p, fmt.Errorf("unmarshaling promotion tiers: %w", err)
		}
	}
	if len(rulesJSON) > 0 {
		if err := json.Unmarshal(rulesJSON, &p.Rules); err != nil {
			return p, fmt.Errorf("unmarshaling promotion rules: %w", err)
		}
	}
	return p, nil
}
