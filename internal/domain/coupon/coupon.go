package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage of the subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixedAmount applies a flat monetary discount capped at the subtotal.
	DiscountFixedAmount DiscountType = "fixed_amount"
	// DiscountFreeShipping waives shipping. The engine computes a zero amount;
	// the shipping cost component reads the type and drops the fee.
	DiscountFreeShipping DiscountType = "free_shipping"
	// DiscountTiered applies a percentage chosen by the subtotal threshold tier.
	DiscountTiered DiscountType = "tiered"
	// DiscountBuyXGetY grants free items. The engine reports a zero amount;
	// the free-item value is priced by the cart, which knows unit prices.
	DiscountBuyXGetY DiscountType = "buy_x_get_y"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	switch t {
	case DiscountPercentage, DiscountFixedAmount, DiscountFreeShipping,
		DiscountTiered, DiscountBuyXGetY:
		return true
	}
	return false
}

var (
	// ErrNotFound is returned by repositories when a code resolves to no coupon.
	ErrNotFound = errors.New("coupon not found")
	// ErrDuplicateCode is returned when creating a coupon whose code already exists.
	ErrDuplicateCode = errors.New("coupon code already exists")
	// ErrUsageLimitReached is returned by Redeem when the conditional counter
	// increment finds the total usage cap already exhausted.
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
)

// TierRule maps a minimum subtotal to a discount percentage. The rule with the
// largest MinAmount not exceeding the order subtotal wins.
type TierRule struct {
	MinAmount decimal.Decimal `json:"minAmount"`
	Percent   decimal.Decimal `json:"percent"`
}

// Coupon is a promotional code definition. Codes are stored uppercase and
// looked up case-insensitively.
type Coupon struct {
	ID   string
	Code string
	Name string
	Type DiscountType

	// Value is the percentage for DiscountPercentage or the flat amount for
	// DiscountFixedAmount. Unused by the other types.
	Value decimal.Decimal

	StartsAt time.Time
	// EndsAt nil means the coupon never expires.
	EndsAt *time.Time

	// TotalUsageLimit and UsageLimitPerUser are 0 when unlimited.
	TotalUsageLimit   int
	UsageLimitPerUser int

	// MinOrderValue zero means no minimum. MaxDiscount zero means no cap.
	MinOrderValue decimal.Decimal
	MaxDiscount   decimal.Decimal

	FirstOrderOnly bool

	// BuyQuantity/GetQuantity configure DiscountBuyXGetY.
	BuyQuantity int
	GetQuantity int

	IncludedProducts   []string
	ExcludedProducts   []string
	IncludedCategories []string
	ExcludedCategories []string

	// Tiers configure DiscountTiered. Order is not significant.
	Tiers []TierRule

	TimesUsed int
	Active    bool
	CreatedAt time.Time
}

// Usage records one successful redemption. Rows are immutable after creation
// and back the per-user usage count.
type Usage struct {
	ID       string
	CouponID string
	UserID   string
	OrderID  string
	Amount   decimal.Decimal
	UsedAt   time.Time
}

// Checkout carries the order-side inputs to a validation: who is buying, the
// cart subtotal, and what is in the cart. Product and category IDs are
// optional; scoping checks only run when they are present.
type Checkout struct {
	UserID      string
	Subtotal    decimal.Decimal
	ProductIDs  []string
	CategoryIDs []string
	OrderID     string
}

// Result is the outcome of a validation. Eligibility failures are reported
// here, not as errors, so callers can render Reason directly at checkout.
type Result struct {
	Valid  bool
	Reason string
	Coupon *Coupon

	Discount    decimal.Decimal
	NewSubtotal decimal.Decimal
	// Percent is set for percentage-style discounts (including the matched tier).
	Percent decimal.Decimal
	// FreeShipping signals the caller to waive the shipping fee.
	FreeShipping bool
}

// Redemption is the outcome of a successful Apply.
type Redemption struct {
	Usage       *Usage
	Discount    decimal.Decimal
	NewSubtotal decimal.Decimal
}

// Repository provides coupon persistence. Redeem must be atomic: the counter
// increment is conditional on the total usage cap and commits together with
// the usage row, so two concurrent applies cannot both pass a cap of one.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	Create(ctx context.Context, c *Coupon) error
	UsageCount(ctx context.Context, couponID, userID string) (int, error)
	CompletedOrderCount(ctx context.Context, userID string) (int, error)
	Redeem(ctx context.Context, c *Coupon, u *Usage) error
}

// ApplyError is returned by Engine.Apply when re-validation or the redemption
// itself fails. Reason is safe to show to the end user.
type ApplyError struct {
	Reason string
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("coupon not applied: %s", e.Reason)
}

// DefinitionError reports a structurally invalid coupon definition at
// creation time. Nothing is persisted when one is returned.
type DefinitionError struct {
	Field string
	Msg   string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("invalid coupon definition: %s: %s", e.Field, e.Msg)
}
