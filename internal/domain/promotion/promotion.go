// Package promotion implements code-less, always-on discount rules. A
// promotion carries a priority and a predicate rule set; the Selector returns
// the rules that currently apply to a cart, highest priority first.
package promotion

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/broxiva/promo-engine/internal/domain/coupon"
)

// RuleKind names a predicate type. Only RuleMinCartValue is evaluated today;
// unrecognized kinds pass (see Selector.matches).
type RuleKind string

// RuleMinCartValue compares the cart subtotal against the rule value.
const RuleMinCartValue RuleKind = "min_cart_value"

// Operator names a comparison inside a rule.
type Operator string

// OpGTE is the only comparison in use: subtotal >= value.
const OpGTE Operator = "gte"

// Rule is one predicate attached to a promotion.
type Rule struct {
	Kind     RuleKind        `json:"kind"`
	Operator Operator        `json:"operator"`
	Value    decimal.Decimal `json:"value"`
}

// Promotion is an automatic discount: structurally a coupon without a code,
// plus a priority and a predicate rule set.
type Promotion struct {
	ID   string
	Name string
	Type coupon.DiscountType

	Value decimal.Decimal
	Tiers []coupon.TierRule

	// Priority orders evaluation and presentation; higher first.
	Priority int

	Rules []Rule

	IncludedProducts   []string
	ExcludedProducts   []string
	IncludedCategories []string
	ExcludedCategories []string

	MaxDiscount decimal.Decimal

	StartsAt time.Time
	EndsAt   *time.Time
	Active   bool

	CreatedAt time.Time
}

// discountRule converts the promotion into the calculator's input shape so
// matched promotions run through the same discount computation as coupons.
func (p *Promotion) discountRule() *coupon.Coupon {
	return &coupon.Coupon{
		ID:          p.ID,
		Name:        p.Name,
		Type:        p.Type,
		Value:       p.Value,
		Tiers:       p.Tiers,
		MaxDiscount: p.MaxDiscount,
	}
}

// Repository lists promotions for evaluation.
type Repository interface {
	// ListActive returns promotions with the active flag set whose validity
	// window contains now, ordered by priority descending with creation time
	// as the stable tie-break.
	ListActive(ctx context.Context, now time.Time) ([]Promotion, error)
}
