package promotion

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/broxiva/promo-engine/internal/domain/coupon"
)

type mockPromoRepo struct {
	promotions []Promotion
	err        error
}

func (m *mockPromoRepo) ListActive(context.Context, time.Time) ([]Promotion, error) {
	return m.promotions, m.err
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func promo(id string, priority int, rules ...Rule) Promotion {
	return Promotion{
		ID:       id,
		Name:     id,
		Type:     coupon.DiscountPercentage,
		Value:    dec("10"),
		Priority: priority,
		Rules:    rules,
		Active:   true,
	}
}

func TestSelectorApplicable(t *testing.T) {
	minCart := func(v string) Rule {
		return Rule{Kind: RuleMinCartValue, Operator: OpGTE, Value: dec(v)}
	}

	tests := []struct {
		name       string
		promotions []Promotion
		chk        coupon.Checkout
		wantIDs    []string
	}{
		{
			name: "rule-free promotion always applies",
			promotions: []Promotion{
				promo("always", 1),
			},
			chk:     coupon.Checkout{Subtotal: dec("10")},
			wantIDs: []string{"always"},
		},
		{
			name: "min cart value gte filters",
			promotions: []Promotion{
				promo("big-cart", 1, minCart("100")),
			},
			chk:     coupon.Checkout{Subtotal: dec("99.99")},
			wantIDs: []string{},
		},
		{
			name: "min cart value met exactly",
			promotions: []Promotion{
				promo("big-cart", 1, minCart("100")),
			},
			chk:     coupon.Checkout{Subtotal: dec("100")},
			wantIDs: []string{"big-cart"},
		},
		{
			name: "unknown rule kind passes",
			promotions: []Promotion{
				promo("future-rule", 1, Rule{Kind: RuleKind("loyalty_tier"), Operator: OpGTE, Value: dec("3")}),
			},
			chk:     coupon.Checkout{Subtotal: dec("10")},
			wantIDs: []string{"future-rule"},
		},
		{
			name: "unknown operator passes",
			promotions: []Promotion{
				promo("odd-op", 1, Rule{Kind: RuleMinCartValue, Operator: Operator("between"), Value: dec("100")}),
			},
			chk:     coupon.Checkout{Subtotal: dec("10")},
			wantIDs: []string{"odd-op"},
		},
		{
			name: "repo priority order is preserved",
			promotions: []Promotion{
				promo("high", 20),
				promo("low", 5),
			},
			chk:     coupon.Checkout{Subtotal: dec("10")},
			wantIDs: []string{"high", "low"},
		},
		{
			name: "all rules must pass",
			promotions: []Promotion{
				promo("two-rules", 1, minCart("50"), minCart("200")),
			},
			chk:     coupon.Checkout{Subtotal: dec("100")},
			wantIDs: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSelector(&mockPromoRepo{promotions: tt.promotions})

			matched, err := s.Applicable(context.Background(), tt.chk)

			require.NoError(t, err)
			ids := make([]string, 0, len(matched))
			for _, p := range matched {
				ids = append(ids, p.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestSelectorScoping(t *testing.T) {
	p := promo("scoped", 1)
	p.IncludedCategories = []string{"electronics"}
	p.ExcludedProducts = []string{"p-gift"}
	s := NewSelector(&mockPromoRepo{promotions: []Promotion{p}})

	t.Run("matching category applies", func(t *testing.T) {
		matched, err := s.Applicable(context.Background(), coupon.Checkout{
			Subtotal:    dec("50"),
			CategoryIDs: []string{"electronics"},
		})
		require.NoError(t, err)
		assert.Len(t, matched, 1)
	})

	t.Run("excluded product blocks", func(t *testing.T) {
		matched, err := s.Applicable(context.Background(), coupon.Checkout{
			Subtotal:    dec("50"),
			ProductIDs:  []string{"p-gift"},
			CategoryIDs: []string{"electronics"},
		})
		require.NoError(t, err)
		assert.Empty(t, matched)
	})
}

func TestSelectorBest(t *testing.T) {
	t.Run("highest priority wins and discount is computed", func(t *testing.T) {
		high := promo("high", 20)
		high.Value = dec("15")
		low := promo("low", 5)
		s := NewSelector(&mockPromoRepo{promotions: []Promotion{high, low}})

		best, err := s.Best(context.Background(), coupon.Checkout{Subtotal: dec("200")})

		require.NoError(t, err)
		require.NotNil(t, best)
		assert.Equal(t, "high", best.Promotion.ID)
		assert.True(t, best.Discount.Equal(dec("30")), "got %s", best.Discount)
		assert.True(t, best.NewSubtotal.Equal(dec("170")))
		assert.True(t, best.Percent.Equal(dec("15")))
	})

	t.Run("nil when nothing applies", func(t *testing.T) {
		s := NewSelector(&mockPromoRepo{promotions: []Promotion{
			promo("gated", 1, Rule{Kind: RuleMinCartValue, Operator: OpGTE, Value: dec("1000")}),
		}})

		best, err := s.Best(context.Background(), coupon.Checkout{Subtotal: dec("10")})

		require.NoError(t, err)
		assert.Nil(t, best)
	})

	t.Run("tiered promotion uses the matched tier", func(t *testing.T) {
		p := promo("tiered", 1)
		p.Type = coupon.DiscountTiered
		p.Value = decimal.Zero
		p.Tiers = []coupon.TierRule{
			{MinAmount: dec("100"), Percent: dec("5")},
			{MinAmount: dec("50"), Percent: dec("10")},
		}
		s := NewSelector(&mockPromoRepo{promotions: []Promotion{p}})

		best, err := s.Best(context.Background(), coupon.Checkout{Subtotal: dec("120")})

		require.NoError(t, err)
		require.NotNil(t, best)
		assert.True(t, best.Discount.Equal(dec("6")), "got %s", best.Discount)
		assert.True(t, best.Percent.Equal(dec("5")))
	})
}
