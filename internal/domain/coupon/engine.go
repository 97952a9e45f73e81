package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Engine validates and applies coupons. Validate is read-only; Apply re-runs
// the full validation and commits a redemption through the repository's
// atomic Redeem, closing the race window between a caller's own validate and
// apply calls.
type Engine struct {
	repo Repository
	now  func() time.Time

	tracer      trace.Tracer
	redemptions metric.Int64Counter
}

// NewEngine creates an Engine backed by the given Repository.
func NewEngine(repo Repository) *Engine {
	redemptions, _ := otel.Meter("promo-engine").Int64Counter("coupon_redemptions_total",
		metric.WithDescription("Number of committed coupon redemptions"))

	return &Engine{
		repo:        repo,
		now:         time.Now,
		tracer:      otel.Tracer("promo-engine"),
		redemptions: redemptions,
	}
}

// Validate checks whether code is usable for the given checkout and computes
// the discount that would apply. Eligibility failures come back inside the
// Result; the error return is reserved for repository failures.
//
// Checks run in a fixed order and short-circuit at the first failure, so the
// per-user and order-count queries are only issued for coupons that are
// globally usable.
func (e *Engine) Validate(ctx context.Context, code string, chk Checkout) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "coupon.Validate")
	defer span.End()

	c, err := e.repo.FindByCode(ctx, normalizeCode(code))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &Result{Valid: false, Reason: ReasonInvalidCode}, nil
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if reason := checkState(c, e.now()); reason != "" {
		return &Result{Valid: false, Reason: reason, Coupon: c}, nil
	}

	if c.UsageLimitPerUser > 0 {
		used, err := e.repo.UsageCount(ctx, c.ID, chk.UserID)
		if err != nil {
			return nil, errors.Wrap(err, "count coupon usage")
		}
		if used >= c.UsageLimitPerUser {
			return &Result{Valid: false, Reason: ReasonPerUserLimit, Coupon: c}, nil
		}
	}

	if c.FirstOrderOnly {
		orders, err := e.repo.CompletedOrderCount(ctx, chk.UserID)
		if err != nil {
			return nil, errors.Wrap(err, "count completed orders")
		}
		if orders > 0 {
			return &Result{Valid: false, Reason: ReasonFirstOrderOnly, Coupon: c}, nil
		}
	}

	if reason := checkMinOrder(c, chk); reason != "" {
		return &Result{Valid: false, Reason: reason, Coupon: c}, nil
	}
	if reason := checkScope(c, chk); reason != "" {
		return &Result{Valid: false, Reason: reason, Coupon: c}, nil
	}

	amount, percent := Compute(c, chk.Subtotal)
	return &Result{
		Valid:        true,
		Coupon:       c,
		Discount:     amount,
		NewSubtotal:  chk.Subtotal.Sub(amount),
		Percent:      percent,
		FreeShipping: c.Type == DiscountFreeShipping,
	}, nil
}

// Apply validates code against the checkout and, on success, commits the
// redemption: one Usage row plus the atomic counter increment, in a single
// transaction. A cached Validate result is never trusted; validation re-runs
// here. Failures are *ApplyError carrying a user-facing reason.
func (e *Engine) Apply(ctx context.Context, code string, chk Checkout) (*Redemption, error) {
	ctx, span := e.tracer.Start(ctx, "coupon.Apply")
	defer span.End()

	res, err := e.Validate(ctx, code, chk)
	if err != nil {
		return nil, err
	}
	if !res.Valid {
		return nil, &ApplyError{Reason: res.Reason}
	}

	u := &Usage{
		ID:       uuid.New().String(),
		CouponID: res.Coupon.ID,
		UserID:   chk.UserID,
		OrderID:  chk.OrderID,
		Amount:   res.Discount,
		UsedAt:   e.now(),
	}
	if err := e.repo.Redeem(ctx, res.Coupon, u); err != nil {
		if errors.Is(err, ErrUsageLimitReached) {
			// Lost the race against a concurrent apply. Retryable by the
			// caller with a different coupon.
			return nil, &ApplyError{Reason: ReasonUnavailable}
		}
		return nil, errors.Wrap(err, "redeem coupon")
	}

	e.redemptions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("coupon.type", string(res.Coupon.Type)),
	))

	return &Redemption{
		Usage:       u,
		Discount:    res.Discount,
		NewSubtotal: res.NewSubtotal,
	}, nil
}

// CreateCoupon validates the structural invariants of def and persists it.
// The code is uppercase-normalized before storage so lookups can stay
// case-insensitive. Returns *DefinitionError for structural problems and
// ErrDuplicateCode when the code is taken.
func (e *Engine) CreateCoupon(ctx context.Context, def *Coupon) (*Coupon, error) {
	if err := validateDefinition(def); err != nil {
		return nil, err
	}

	c := *def
	c.Code = normalizeCode(c.Code)
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.StartsAt.IsZero() {
		c.StartsAt = e.now()
	}
	c.TimesUsed = 0
	c.CreatedAt = e.now()

	if err := e.repo.Create(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func validateDefinition(c *Coupon) error {
	if strings.TrimSpace(c.Code) == "" {
		return &DefinitionError{Field: "code", Msg: "required"}
	}
	if !c.Type.Valid() {
		return &DefinitionError{Field: "type", Msg: "unknown discount type"}
	}
	if c.Type == DiscountPercentage {
		if c.Value.IsNegative() || c.Value.GreaterThan(hundred) {
			return &DefinitionError{Field: "value", Msg: "percentage must be between 0 and 100"}
		}
	}
	if c.Value.IsNegative() {
		return &DefinitionError{Field: "value", Msg: "must not be negative"}
	}
	if c.EndsAt != nil && !c.EndsAt.After(c.StartsAt) {
		return &DefinitionError{Field: "endsAt", Msg: "must be after start date"}
	}
	if c.Type == DiscountTiered {
		if len(c.Tiers) == 0 {
			return &DefinitionError{Field: "tiers", Msg: "required for tiered discounts"}
		}
		for _, t := range c.Tiers {
			if t.Percent.IsNegative() || t.Percent.GreaterThan(hundred) {
				return &DefinitionError{Field: "tiers", Msg: "tier percentage must be between 0 and 100"}
			}
		}
	}
	if c.Type == DiscountBuyXGetY && (c.BuyQuantity <= 0 || c.GetQuantity <= 0) {
		return &DefinitionError{Field: "buyQuantity", Msg: "buy and get quantities must be positive"}
	}
	return nil
}

// normalizeCode uppercases and trims a user-supplied code. Storage holds the
// normalized form, so normalizing at both boundaries keeps lookups
// case-insensitive without any UPPER() in queries.
func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
