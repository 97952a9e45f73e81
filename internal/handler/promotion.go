package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/broxiva/promo-engine/internal/domain/coupon"
	"github.com/broxiva/promo-engine/internal/domain/promotion"
)

// AutomaticDiscounts returns the promotions applicable to the supplied cart,
// highest priority first, along with the single best discount already
// computed. The cart comes in as query parameters so the endpoint stays a
// cacheable GET.
func (h *Handler) AutomaticDiscounts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	subtotal, err := decimal.NewFromString(q.Get("subtotal"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "subtotal required")
		return
	}

	chk := coupon.Checkout{
		UserID:      q.Get("userId"),
		Subtotal:    subtotal,
		ProductIDs:  splitParam(q.Get("productIds")),
		CategoryIDs: splitParam(q.Get("categoryIds")),
	}

	matched, err := h.selector.Applicable(r.Context(), chk)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	best, err := h.selector.Best(r.Context(), chk)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Field("promotions", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for i := range matched {
					e.Obj(func(e *jx.Encoder) {
						encodePromotion(e, &matched[i])
					})
				}
			})
		})
		if best != nil {
			e.Field("best", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					e.Field("promotionId", func(e *jx.Encoder) { e.Str(best.Promotion.ID) })
					e.Field("discount", func(e *jx.Encoder) { encodeDecimal(e, best.Discount) })
					e.Field("newSubtotal", func(e *jx.Encoder) { encodeDecimal(e, best.NewSubtotal) })
					if best.Percent.IsPositive() {
						e.Field("percent", func(e *jx.Encoder) { encodeDecimal(e, best.Percent) })
					}
				})
			})
		}
	})
}

func encodePromotion(e *jx.Encoder, p *promotion.Promotion) {
	e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
	e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
	e.Field("type", func(e *jx.Encoder) { e.Str(string(p.Type)) })
	e.Field("value", func(e *jx.Encoder) { encodeDecimal(e, p.Value) })
	e.Field("priority", func(e *jx.Encoder) { e.Int(p.Priority) })
	if p.EndsAt != nil {
		e.Field("endsAt", func(e *jx.Encoder) { encodeTime(e, *p.EndsAt) })
	}
}

// splitParam turns a comma-separated query value into a slice, nil when empty.
func splitParam(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
