package coupon

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Compute calculates the discount for a coupon that already passed
// eligibility. Pure function of (coupon, subtotal): no I/O, no clock.
//
// The returned amount is capped at MaxDiscount when set, clamped to
// [0, subtotal], and rounded to 2 decimal places. percent carries the
// effective percentage for percentage-style types, zero otherwise.
func Compute(c *Coupon, subtotal decimal.Decimal) (amount, percent decimal.Decimal) {
	switch c.Type {
	case DiscountPercentage:
		amount = subtotal.Mul(c.Value).Div(hundred)
		percent = c.Value
	case DiscountFixedAmount:
		amount = c.Value
	case DiscountTiered:
		tier, ok := selectTier(c.Tiers, subtotal)
		if ok {
			amount = subtotal.Mul(tier.Percent).Div(hundred)
			percent = tier.Percent
		}
	case DiscountFreeShipping, DiscountBuyXGetY:
		// Zero at this layer. Free shipping is waived by the shipping cost
		// component; buy-X-get-Y is priced by the cart, which has line items.
	}

	if c.MaxDiscount.IsPositive() && amount.GreaterThan(c.MaxDiscount) {
		amount = c.MaxDiscount
	}
	if amount.GreaterThan(subtotal) {
		amount = subtotal
	}
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return amount.Round(2), percent
}

// selectTier returns the tier with the largest MinAmount that does not exceed
// the subtotal. Tier order in the slice is not significant. ok is false when
// the subtotal is below every tier.
func selectTier(tiers []TierRule, subtotal decimal.Decimal) (TierRule, bool) {
	var (
		best  TierRule
		found bool
	)
	for _, t := range tiers {
		if t.MinAmount.GreaterThan(subtotal) {
			continue
		}
		if !found || t.MinAmount.GreaterThan(best.MinAmount) {
			best = t
			found = true
		}
	}
	return best, found
}

// CheckScope evaluates inclusion/exclusion ID lists against the IDs present
// in a cart. When an inclusion list is set, at least one cart ID must appear
// in it. Exclusion is independent: any excluded ID in the cart fails the
// check even when inclusion passed.
func CheckScope(included, excluded, cartIDs []string) (inScope, excludedHit bool) {
	inScope = true
	if len(included) > 0 {
		inScope = false
		for _, id := range cartIDs {
			if containsID(included, id) {
				inScope = true
				break
			}
		}
	}
	for _, id := range cartIDs {
		if containsID(excluded, id) {
			excludedHit = true
			break
		}
	}
	return inScope, excludedHit
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
