package promotion

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/broxiva/promo-engine/internal/domain/coupon"
)

// Selector evaluates automatic discounts against a cart.
type Selector struct {
	repo Repository
	now  func() time.Time
}

// NewSelector creates a Selector backed by the given Repository.
func NewSelector(repo Repository) *Selector {
	return &Selector{repo: repo, now: time.Now}
}

// Applicable returns the promotions that currently apply to the checkout,
// ordered by priority descending. No discount amounts are computed here;
// callers feed matches through the discount calculator (see Best).
func (s *Selector) Applicable(ctx context.Context, chk coupon.Checkout) ([]Promotion, error) {
	candidates, err := s.repo.ListActive(ctx, s.now())
	if err != nil {
		return nil, errors.Wrap(err, "list active promotions")
	}

	matched := make([]Promotion, 0, len(candidates))
	for _, p := range candidates {
		if s.matches(&p, chk) {
			matched = append(matched, p)
		}
	}
	return matched, nil
}

// BestDiscount holds the single winning promotion and its computed amounts.
type BestDiscount struct {
	Promotion   Promotion
	Discount    decimal.Decimal
	NewSubtotal decimal.Decimal
	Percent     decimal.Decimal
}

// Best returns the highest-priority applicable promotion with its discount
// computed, or nil when nothing applies. Stacking is intentionally not
// supported: one winner per cart.
func (s *Selector) Best(ctx context.Context, chk coupon.Checkout) (*BestDiscount, error) {
	matched, err := s.Applicable(ctx, chk)
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return nil, nil
	}

	winner := matched[0]
	amount, percent := coupon.Compute(winner.discountRule(), chk.Subtotal)
	return &BestDiscount{
		Promotion:   winner,
		Discount:    amount,
		NewSubtotal: chk.Subtotal.Sub(amount),
		Percent:     percent,
	}, nil
}

// matches evaluates scoping lists and the predicate rules. A rule of an
// unrecognized kind (or with an unrecognized operator) passes: rule kinds are
// forward-compatible, and an engine older than a rule must not reject carts
// it cannot judge.
func (s *Selector) matches(p *Promotion, chk coupon.Checkout) bool {
	if len(chk.ProductIDs) > 0 {
		inScope, excluded := coupon.CheckScope(p.IncludedProducts, p.ExcludedProducts, chk.ProductIDs)
		if !inScope || excluded {
			return false
		}
	}
	if len(chk.CategoryIDs) > 0 {
		inScope, excluded := coupon.CheckScope(p.IncludedCategories, p.ExcludedCategories, chk.CategoryIDs)
		if !inScope || excluded {
			return false
		}
	}

	for _, r := range p.Rules {
		if !evalRule(r, chk) {
			return false
		}
	}
	return true
}

func evalRule(r Rule, chk coupon.Checkout) bool {
	switch r.Kind {
	case RuleMinCartValue:
		switch r.Operator {
		case OpGTE:
			return chk.Subtotal.GreaterThanOrEqual(r.Value)
		default:
			return true
		}
	default:
		return true
	}
}
