// Package handler exposes the promo engine over HTTP. Handlers are thin:
// they decode the request, call into the domain, and encode the outcome.
package handler

import (
	"net/http"

	"github.com/broxiva/promo-engine/internal/domain/auth"
	"github.com/broxiva/promo-engine/internal/domain/coupon"
	"github.com/broxiva/promo-engine/internal/domain/promotion"
)

// Handler serves the coupon and automatic-discount API.
type Handler struct {
	engine    *coupon.Engine
	selector  *promotion.Selector
	generator *coupon.Generator
	apikeys   auth.Repository
	pepper    []byte
}

// NewHandler constructs a Handler with the required domain dependencies.
// pepper keys the HMAC used to hash API keys for the admin routes.
func NewHandler(
	engine *coupon.Engine,
	selector *promotion.Selector,
	generator *coupon.Generator,
	apikeys auth.Repository,
	pepper []byte,
) *Handler {
	return &Handler{
		engine:    engine,
		selector:  selector,
		generator: generator,
		apikeys:   apikeys,
		pepper:    pepper,
	}
}

// Routes registers every endpoint on mux. Admin routes (coupon creation and
// bulk generation) sit behind API key authentication.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/coupons/validate", h.ValidateCoupon)
	mux.HandleFunc("POST /api/coupons/apply", h.ApplyCoupon)
	mux.HandleFunc("GET /api/discounts/automatic", h.AutomaticDiscounts)

	mux.Handle("POST /api/coupons", h.requireAPIKey(http.HandlerFunc(h.CreateCoupon)))
	mux.Handle("POST /api/coupons/bulk", h.requireAPIKey(http.HandlerFunc(h.BulkGenerate)))
}
