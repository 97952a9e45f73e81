package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/broxiva/promo-engine/internal/domain/coupon"
)

// ValidateCoupon checks a code against the supplied checkout without
// consuming any usage. Eligibility failures are part of the 200 response.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	code, chk, err := decodeCheckoutRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.engine.Validate(r.Context(), code, chk)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeResult(e, res)
	})
}

// ApplyCoupon re-validates the code and commits one redemption. Eligibility
// failures and lost redemption races come back as 422.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	code, chk, err := decodeCheckoutRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	red, err := h.engine.Apply(r.Context(), code, chk)
	if err != nil {
		var applyErr *coupon.ApplyError
		if errors.As(err, &applyErr) {
			writeError(w, http.StatusUnprocessableEntity, applyErr.Reason)
			return
		}
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Field("usage", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("id", func(e *jx.Encoder) { e.Str(red.Usage.ID) })
				e.Field("couponId", func(e *jx.Encoder) { e.Str(red.Usage.CouponID) })
				e.Field("userId", func(e *jx.Encoder) { e.Str(red.Usage.UserID) })
				if red.Usage.OrderID != "" {
					e.Field("orderId", func(e *jx.Encoder) { e.Str(red.Usage.OrderID) })
				}
				e.Field("amount", func(e *jx.Encoder) { encodeDecimal(e, red.Usage.Amount) })
				e.Field("usedAt", func(e *jx.Encoder) { encodeTime(e, red.Usage.UsedAt) })
			})
		})
		e.Field("discount", func(e *jx.Encoder) { encodeDecimal(e, red.Discount) })
		e.Field("newSubtotal", func(e *jx.Encoder) { encodeDecimal(e, red.NewSubtotal) })
	})
}

// CreateCoupon persists a new coupon definition. Structural problems are 400,
// a taken code is 409.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	def, err := decodeCouponDefinition(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.engine.CreateCoupon(r.Context(), def)
	if err != nil {
		var defErr *coupon.DefinitionError
		switch {
		case errors.As(err, &defErr):
			writeError(w, http.StatusBadRequest, defErr.Error())
		case errors.Is(err, coupon.ErrDuplicateCode):
			writeError(w, http.StatusConflict, "coupon code already exists")
		default:
			writeInternalError(w, r, err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeCoupon(e, created)
	})
}

// BulkGenerate mints a batch of coupons sharing one template. The response
// reports the generated codes plus the count of slots skipped after
// exhausting their collision retries.
func (h *Handler) BulkGenerate(w http.ResponseWriter, r *http.Request) {
	var params coupon.GenerateParams
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "quantity":
			n, err := d.Int()
			params.Quantity = n
			return err
		case "prefix":
			s, err := d.Str()
			params.Prefix = s
			return err
		case "codeLength":
			n, err := d.Int()
			params.CodeLength = n
			return err
		case "template":
			tmpl, err := decodeCoupon(d)
			if err != nil {
				return err
			}
			params.Template = *tmpl
			return nil
		default:
			return d.Skip()
		}
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.generator.Generate(r.Context(), params)
	if err != nil {
		var defErr *coupon.DefinitionError
		if errors.As(err, &defErr) {
			writeError(w, http.StatusBadRequest, defErr.Error())
			return
		}
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Field("generated", func(e *jx.Encoder) { e.Int(res.Generated) })
		e.Field("skipped", func(e *jx.Encoder) { e.Int(res.Skipped) })
		e.Field("codes", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, c := range res.Coupons {
					e.Str(c.Code)
				}
			})
		})
	})
}

// decodeCheckoutRequest reads the shared validate/apply body: the code plus
// the checkout context.
func decodeCheckoutRequest(r *http.Request) (string, coupon.Checkout, error) {
	var (
		code string
		chk  coupon.Checkout
	)
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			code, err = d.Str()
		case "userId":
			chk.UserID, err = d.Str()
		case "orderId":
			chk.OrderID, err = d.Str()
		case "subtotal":
			chk.Subtotal, err = decodeDecimal(d)
		case "productIds":
			chk.ProductIDs, err = decodeStrings(d)
		case "categoryIds":
			chk.CategoryIDs, err = decodeStrings(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return "", coupon.Checkout{}, err
	}
	if code == "" {
		return "", coupon.Checkout{}, errors.New("code required")
	}
	return code, chk, nil
}

func decodeCouponDefinition(r *http.Request) (*coupon.Coupon, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return nil, err
	}
	return decodeCoupon(jx.DecodeBytes(body))
}

// decodeCoupon reads a coupon definition object.
func decodeCoupon(d *jx.Decoder) (*coupon.Coupon, error) {
	var c coupon.Coupon
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			c.Code, err = d.Str()
		case "name":
			c.Name, err = d.Str()
		case "type":
			var s string
			s, err = d.Str()
			c.Type = coupon.DiscountType(s)
		case "value":
			c.Value, err = decodeDecimal(d)
		case "startsAt":
			c.StartsAt, err = decodeTimeField(d)
		case "endsAt":
			var t time.Time
			t, err = decodeTimeField(d)
			if err == nil {
				c.EndsAt = &t
			}
		case "totalUsageLimit":
			c.TotalUsageLimit, err = d.Int()
		case "usageLimitPerUser":
			c.UsageLimitPerUser, err = d.Int()
		case "minOrderValue":
			c.MinOrderValue, err = decodeDecimal(d)
		case "maxDiscount":
			c.MaxDiscount, err = decodeDecimal(d)
		case "firstOrderOnly":
			c.FirstOrderOnly, err = d.Bool()
		case "buyQuantity":
			c.BuyQuantity, err = d.Int()
		case "getQuantity":
			c.GetQuantity, err = d.Int()
		case "includedProducts":
			c.IncludedProducts, err = decodeStrings(d)
		case "excludedProducts":
			c.ExcludedProducts, err = decodeStrings(d)
		case "includedCategories":
			c.IncludedCategories, err = decodeStrings(d)
		case "excludedCategories":
			c.ExcludedCategories, err = decodeStrings(d)
		case "tiers":
			err = d.Arr(func(d *jx.Decoder) error {
				var tier coupon.TierRule
				tierErr := d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "minAmount":
						tier.MinAmount, err = decodeDecimal(d)
					case "percent":
						tier.Percent, err = decodeDecimal(d)
					default:
						err = d.Skip()
					}
					return err
				})
				if tierErr != nil {
					return tierErr
				}
				c.Tiers = append(c.Tiers, tier)
				return nil
			})
		case "active":
			c.Active, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func decodeTimeField(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, s)
}

// encodeResult writes the validation outcome fields onto the current object.
func encodeResult(e *jx.Encoder, res *coupon.Result) {
	e.Field("valid", func(e *jx.Encoder) { e.Bool(res.Valid) })
	if res.Reason != "" {
		e.Field("reason", func(e *jx.Encoder) { e.Str(res.Reason) })
	}
	e.Field("discount", func(e *jx.Encoder) { encodeDecimal(e, res.Discount) })
	e.Field("newSubtotal", func(e *jx.Encoder) { encodeDecimal(e, res.NewSubtotal) })
	if res.Percent.IsPositive() {
		e.Field("percent", func(e *jx.Encoder) { encodeDecimal(e, res.Percent) })
	}
	if res.FreeShipping {
		e.Field("freeShipping", func(e *jx.Encoder) { e.Bool(true) })
	}
}

// encodeCoupon writes a persisted coupon onto the current object.
func encodeCoupon(e *jx.Encoder, c *coupon.Coupon) {
	e.Field("id", func(e *jx.Encoder) { e.Str(c.ID) })
	e.Field("code", func(e *jx.Encoder) { e.Str(c.Code) })
	if c.Name != "" {
		e.Field("name", func(e *jx.Encoder) { e.Str(c.Name) })
	}
	e.Field("type", func(e *jx.Encoder) { e.Str(string(c.Type)) })
	e.Field("value", func(e *jx.Encoder) { encodeDecimal(e, c.Value) })
	e.Field("startsAt", func(e *jx.Encoder) { encodeTime(e, c.StartsAt) })
	if c.EndsAt != nil {
		e.Field("endsAt", func(e *jx.Encoder) { encodeTime(e, *c.EndsAt) })
	}
	e.Field("totalUsageLimit", func(e *jx.Encoder) { e.Int(c.TotalUsageLimit) })
	e.Field("usageLimitPerUser", func(e *jx.Encoder) { e.Int(c.UsageLimitPerUser) })
	e.Field("minOrderValue", func(e *jx.Encoder) { encodeDecimal(e, c.MinOrderValue) })
	e.Field("maxDiscount", func(e *jx.Encoder) { encodeDecimal(e, c.MaxDiscount) })
	e.Field("firstOrderOnly", func(e *jx.Encoder) { e.Bool(c.FirstOrderOnly) })
	if c.Type == coupon.DiscountBuyXGetY {
		e.Field("buyQuantity", func(e *jx.Encoder) { e.Int(c.BuyQuantity) })
		e.Field("getQuantity", func(e *jx.Encoder) { e.Int(c.GetQuantity) })
	}
	if len(c.IncludedProducts) > 0 {
		e.Field("includedProducts", func(e *jx.Encoder) { encodeStrings(e, c.IncludedProducts) })
	}
	if len(c.ExcludedProducts) > 0 {
		e.Field("excludedProducts", func(e *jx.Encoder) { encodeStrings(e, c.ExcludedProducts) })
	}
	if len(c.IncludedCategories) > 0 {
		e.Field("includedCategories", func(e *jx.Encoder) { encodeStrings(e, c.IncludedCategories) })
	}
	if len(c.ExcludedCategories) > 0 {
		e.Field("excludedCategories", func(e *jx.Encoder) { encodeStrings(e, c.ExcludedCategories) })
	}
	if len(c.Tiers) > 0 {
		e.Field("tiers", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, t := range c.Tiers {
					e.Obj(func(e *jx.Encoder) {
						e.Field("minAmount", func(e *jx.Encoder) { encodeDecimal(e, t.MinAmount) })
						e.Field("percent", func(e *jx.Encoder) { encodeDecimal(e, t.Percent) })
					})
				}
			})
		})
	}
	e.Field("active", func(e *jx.Encoder) { e.Bool(c.Active) })
}
