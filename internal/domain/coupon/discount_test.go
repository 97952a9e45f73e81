package coupon

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name        string
		coupon      *Coupon
		subtotal    decimal.Decimal
		wantAmount  decimal.Decimal
		wantPercent decimal.Decimal
	}{
		{
			name: "percentage on round subtotal",
			coupon: &Coupon{
				Type:  DiscountPercentage,
				Value: dec("10"),
			},
			subtotal:    dec("100"),
			wantAmount:  dec("10"),
			wantPercent: dec("10"),
		},
		{
			name: "percentage rounds to two decimals",
			coupon: &Coupon{
				Type:  DiscountPercentage,
				Value: dec("15"),
			},
			subtotal:    dec("33.33"),
			wantAmount:  dec("5.00"),
			wantPercent: dec("15"),
		},
		{
			name: "percentage capped at max discount",
			coupon: &Coupon{
				Type:        DiscountPercentage,
				Value:       dec("10"),
				MaxDiscount: dec("25"),
			},
			subtotal:    dec("500"),
			wantAmount:  dec("25"),
			wantPercent: dec("10"),
		},
		{
			name: "percentage exactly at max discount is not reduced",
			coupon: &Coupon{
				Type:        DiscountPercentage,
				Value:       dec("10"),
				MaxDiscount: dec("25"),
			},
			subtotal:    dec("250"),
			wantAmount:  dec("25"),
			wantPercent: dec("10"),
		},
		{
			name: "fixed amount",
			coupon: &Coupon{
				Type:  DiscountFixedAmount,
				Value: dec("20"),
			},
			subtotal:   dec("100"),
			wantAmount: dec("20"),
		},
		{
			name: "fixed amount clamped to subtotal",
			coupon: &Coupon{
				Type:  DiscountFixedAmount,
				Value: dec("150"),
			},
			subtotal:   dec("100"),
			wantAmount: dec("100"),
		},
		{
			name: "free shipping computes zero amount",
			coupon: &Coupon{
				Type: DiscountFreeShipping,
			},
			subtotal:   dec("100"),
			wantAmount: dec("0"),
		},
		{
			name: "buy x get y computes zero amount",
			coupon: &Coupon{
				Type:        DiscountBuyXGetY,
				BuyQuantity: 2,
				GetQuantity: 1,
			},
			subtotal:   dec("100"),
			wantAmount: dec("0"),
		},
		{
			name: "tiered picks largest matching tier regardless of order",
			coupon: &Coupon{
				Type: DiscountTiered,
				Tiers: []TierRule{
					{MinAmount: dec("100"), Percent: dec("5")},
					{MinAmount: dec("50"), Percent: dec("10")},
				},
			},
			subtotal:    dec("120"),
			wantAmount:  dec("6.00"),
			wantPercent: dec("5"),
		},
		{
			name: "tiered exactly at threshold matches",
			coupon: &Coupon{
				Type: DiscountTiered,
				Tiers: []TierRule{
					{MinAmount: dec("50"), Percent: dec("5")},
					{MinAmount: dec("100"), Percent: dec("10")},
				},
			},
			subtotal:    dec("100"),
			wantAmount:  dec("10.00"),
			wantPercent: dec("10"),
		},
		{
			name: "tiered below every tier gives zero",
			coupon: &Coupon{
				Type: DiscountTiered,
				Tiers: []TierRule{
					{MinAmount: dec("50"), Percent: dec("5")},
				},
			},
			subtotal:   dec("49.99"),
			wantAmount: dec("0"),
		},
		{
			name: "unknown type gives zero",
			coupon: &Coupon{
				Type:  DiscountType("mystery"),
				Value: dec("10"),
			},
			subtotal:   dec("100"),
			wantAmount: dec("0"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, percent := Compute(tt.coupon, tt.subtotal)

			assert.True(t, tt.wantAmount.Equal(amount),
				"expected amount %s, got %s", tt.wantAmount, amount)
			assert.True(t, tt.wantPercent.Equal(percent),
				"expected percent %s, got %s", tt.wantPercent, percent)
		})
	}
}

func TestComputeNeverExceedsSubtotal(t *testing.T) {
	c := &Coupon{Type: DiscountFixedAmount, Value: dec("999")}

	amount, _ := Compute(c, dec("12.34"))

	assert.True(t, amount.Equal(dec("12.34")), "got %s", amount)
}

func TestCheckScope(t *testing.T) {
	tests := []struct {
		name         string
		included     []string
		excluded     []string
		cartIDs      []string
		wantInScope  bool
		wantExcluded bool
	}{
		{
			name:        "no lists means everything in scope",
			cartIDs:     []string{"p1"},
			wantInScope: true,
		},
		{
			name:        "inclusion requires intersection",
			included:    []string{"p1", "p2"},
			cartIDs:     []string{"p2", "p9"},
			wantInScope: true,
		},
		{
			name:     "inclusion fails without intersection",
			included: []string{"p1"},
			cartIDs:  []string{"p9"},
		},
		{
			name:         "exclusion trips independently of inclusion",
			included:     []string{"p1"},
			excluded:     []string{"p9"},
			cartIDs:      []string{"p1", "p9"},
			wantInScope:  true,
			wantExcluded: true,
		},
		{
			name:         "exclusion only",
			excluded:     []string{"p3"},
			cartIDs:      []string{"p3"},
			wantInScope:  true,
			wantExcluded: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inScope, excluded := CheckScope(tt.included, tt.excluded, tt.cartIDs)

			assert.Equal(t, tt.wantInScope, inScope)
			assert.Equal(t, tt.wantExcluded, excluded)
		})
	}
}
