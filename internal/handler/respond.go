package handler

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// maxBodySize caps request bodies. Coupon payloads are small; anything past
// this is a client error.
const maxBodySize = 1 << 20

// writeJSON encodes a response object with the given status. build populates
// the top-level JSON object.
func writeJSON(w http.ResponseWriter, status int, build func(e *jx.Encoder)) {
	e := &jx.Encoder{}
	e.Obj(build)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError writes the {code, message} error envelope.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Int(status) })
		e.Field("message", func(e *jx.Encoder) { e.Str(message) })
	})
}

// writeInternalError logs err with the request-scoped logger and responds 500
// without leaking internals to the client.
func writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	zctx.From(r.Context()).Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

// decodeBody reads the request body and decodes its top-level object via
// field. Unknown keys are skipped so clients can evolve ahead of the server.
func decodeBody(r *http.Request, field func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return err
	}
	d := jx.DecodeBytes(body)
	return d.Obj(field)
}

// decodeDecimal reads a JSON number (or numeric string) into a decimal.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	raw, err := d.Raw()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(strings.Trim(string(raw), `"`))
}

// decodeStrings reads a JSON array of strings.
func decodeStrings(d *jx.Decoder) ([]string, error) {
	var out []string
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

// encodeDecimal writes a decimal as a JSON number.
func encodeDecimal(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.String()))
}

func encodeStrings(e *jx.Encoder, vs []string) {
	e.Arr(func(e *jx.Encoder) {
		for _, v := range vs {
			e.Str(v)
		}
	})
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}
