package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/broxiva/promo-engine/internal/domain/coupon"
)

const (
	couponColumns = `id, code, name, discount_type, value, starts_at, ends_at,
		total_usage_limit, usage_limit_per_user, min_order_value, max_discount,
		first_order_only, buy_quantity, get_quantity,
		included_products, excluded_products, included_categories, excluded_categories,
		tiers, times_used, active, created_at`

	// Codes are uppercase-normalized before storage and before lookup, so a
	// plain equality match is case-insensitive end to end.
	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

	createCouponSQL = `INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`

	usageCountSQL = `SELECT count(*) FROM coupon_usage WHERE coupon_id = $1 AND user_id = $2`

	completedOrderCountSQL = `SELECT count(*) FROM orders WHERE user_id = $1 AND status = 'completed'`

	// The cap guard lives inside the UPDATE: a redeem that loses the race
	// matches zero rows instead of incrementing past the limit.
	redeemCouponSQL = `UPDATE coupons SET times_used = times_used + 1
		WHERE id = $1 AND (total_usage_limit = 0 OR times_used < total_usage_limit)`

	createUsageSQL = `INSERT INTO coupon_usage (id, coupon_id, user_id, order_id, amount, used_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
)

// uniqueViolation is the PostgreSQL error code for a unique constraint breach.
const uniqueViolation = "23505"

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its normalized code.
// Returns coupon.ErrNotFound when no such coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// Create persists a new coupon. Returns coupon.ErrDuplicateCode when the code
// collides with an existing row.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	tiersJSON, err := json.Marshal(c.Tiers)
	if err != nil {
		return fmt.Errorf("marshaling coupon tiers: %w", err)
	}

	_, err = r.pool.Exec(ctx, createCouponSQL,
		c.ID, c.Code, c.Name, string(c.Type), c.Value, c.StartsAt, c.EndsAt,
		c.TotalUsageLimit, c.UsageLimitPerUser, c.MinOrderValue, c.MaxDiscount,
		c.FirstOrderOnly, c.BuyQuantity, c.GetQuantity,
		c.IncludedProducts, c.ExcludedProducts, c.IncludedCategories, c.ExcludedCategories,
		tiersJSON, c.TimesUsed, c.Active, c.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return coupon.ErrDuplicateCode
		}
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

// UsageCount returns how many times the user has redeemed the coupon.
func (r *CouponRepository) UsageCount(ctx context.Context, couponID, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, usageCountSQL, couponID, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting usage for coupon %q: %w", couponID, err)
	}
	return count, nil
}

// CompletedOrderCount returns how many completed orders the user has placed.
func (r *CouponRepository) CompletedOrderCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, completedOrderCountSQL, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting orders for user %q: %w", userID, err)
	}
	return count, nil
}

// Redeem commits one redemption: the conditional counter increment and the
// usage insert run in a single transaction, so a usage row never exists
// without its increment. Returns coupon.ErrUsageLimitReached when the cap is
// already exhausted; nothing is written in that case.
func (r *CouponRepository) Redeem(ctx context.Context, c *coupon.Coupon, u *coupon.Usage) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning redeem transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, redeemCouponSQL, c.ID)
	if err != nil {
		return fmt.Errorf("incrementing uses for coupon %q: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrUsageLimitReached
	}

	_, err = tx.Exec(ctx, createUsageSQL, u.ID, u.CouponID, u.UserID, u.OrderID, u.Amount, u.UsedAt)
	if err != nil {
		return fmt.Errorf("creating usage for coupon %q: %w", c.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing redeem for coupon %q: %w", c.ID, err)
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
		endsAt       *time.Time
		tiersJSON    []byte
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Name, &discountType, &c.Value, &c.StartsAt, &endsAt,
		&c.TotalUsageLimit, &c.UsageLimitPerUser, &c.MinOrderValue, &c.MaxDiscount,
		&c.FirstOrderOnly, &c.BuyQuantity, &c.GetQuantity,
		&c.IncludedProducts, &c.ExcludedProducts, &c.IncludedCategories, &c.ExcludedCategories,
		&tiersJSON, &c.TimesUsed, &c.Active, &c.CreatedAt,
	)
	if err != nil {
		return c, err
	}
	c.Type = coupon.DiscountType(discountType)
	c.EndsAt = endsAt
	if len(tiersJSON) > 0 {
		if err := json.Unmarshal(tiersJSON, &c.Tiers); err != nil {
			return c, fmt.Errorf("unmarshaling coupon tiers: %w", err)
		}
	}
	return c, nil
}
