package coupon

import (
	"fmt"
	"time"
)

// Eligibility failure reasons shown to customers at checkout. The engine
// reports exactly one: checks run in a fixed order and stop at the first
// failure, so a globally inactive coupon never triggers per-user queries.
const (
	ReasonInvalidCode    = "Invalid coupon code"
	ReasonInactive       = "This coupon is no longer active"
	ReasonNotYetValid    = "This coupon is not yet valid"
	ReasonExpired        = "This coupon has expired"
	ReasonTotalLimit     = "This coupon has reached its usage limit"
	ReasonPerUserLimit   = "You have already used this coupon the maximum number of times"
	ReasonFirstOrderOnly = "This coupon is only valid for first-time customers"
	ReasonNotApplicable  = "This coupon is not applicable to the products in your cart"
	ReasonExcluded       = "This coupon cannot be applied to some products in your cart"
	ReasonUnavailable    = "This coupon is no longer available"
)

// checkState verifies the coupon-global preconditions that need no extra
// queries: active flag, temporal window, total usage cap. Returns the failure
// reason or "" when all pass.
func checkState(c *Coupon, now time.Time) string {
	if !c.Active {
		return ReasonInactive
	}
	if now.Before(c.StartsAt) {
		return ReasonNotYetValid
	}
	if c.EndsAt != nil && now.After(*c.EndsAt) {
		return ReasonExpired
	}
	if c.TotalUsageLimit > 0 && c.TimesUsed >= c.TotalUsageLimit {
		return ReasonTotalLimit
	}
	return ""
}

// checkMinOrder verifies the minimum order value, formatting the configured
// threshold into the reason.
func checkMinOrder(c *Coupon, chk Checkout) string {
	if c.MinOrderValue.IsPositive() && chk.Subtotal.LessThan(c.MinOrderValue) {
		return fmt.Sprintf("Minimum order value of $%s required", c.MinOrderValue.StringFixed(2))
	}
	return ""
}

// checkScope verifies the product and category inclusion/exclusion lists.
// Only evaluated when the checkout carries the corresponding IDs; a
// subtotal-only validation skips scoping entirely.
func checkScope(c *Coupon, chk Checkout) string {
	if len(chk.ProductIDs) > 0 {
		inScope, excluded := CheckScope(c.IncludedProducts, c.ExcludedProducts, chk.ProductIDs)
		if !inScope {
			return ReasonNotApplicable
		}
		if excluded {
			return ReasonExcluded
		}
	}
	if len(chk.CategoryIDs) > 0 {
		inScope, excluded := CheckScope(c.IncludedCategories, c.ExcludedCategories, chk.CategoryIDs)
		if !inScope {
			return ReasonNotApplicable
		}
		if excluded {
			return ReasonExcluded
		}
	}
	return ""
}
