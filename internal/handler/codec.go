package handler

import (
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/xenking/candleshop/internal/domain/order"
)

const maxBodyBytes = 1 << 20

// cartRequest is the body shared by every cart-carrying endpoint. Code is
// read from "code" or "promotion_code".
type cartRequest struct {
	UserID string     `json:"user_id" validate:"max=64"`
	Items  []lineItem `json:"items" validate:"required,max=100,dive"`
	Code   string     `json:"code" validate:"max=64"`
}

type lineItem struct {
	ProductSlug string `json:"product_slug" validate:"required,max=128"`
	Quantity    int    `json:"quantity" validate:"max=10000"`
}

func (c cartRequest) lines() []order.LineItem {
	out := make([]order.LineItem, len(c.Items))
	for i, it := range c.Items {
		out[i] = order.LineItem{ProductSlug: it.ProductSlug, Quantity: it.Quantity}
	}
	return out
}

func (c *cartRequest) decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		if d.Next() == jx.Null {
			return d.Null()
		}
		var err error
		switch key {
		case "user_id":
			c.UserID, err = d.Str()
		case "code", "promotion_code":
			c.Code, err = d.Str()
		case "items":
			c.Items = []lineItem{}
			err = d.Arr(func(d *jx.Decoder) error {
				var it lineItem
				if err := it.decode(d); err != nil {
					return err
				}
				c.Items = append(c.Items, it)
				return nil
			})
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		return nil
	})
}

func (it *lineItem) decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product_slug":
			it.ProductSlug, err = d.Str()
		case "quantity":
			it.Quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
}

// requestError is a malformed or invalid request body.
type requestError struct {
	msg     string
	details map[string]string
}

func (e *requestError) Error() string { return e.msg }

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// decodeCart reads and validates a cartRequest body.
func (h *Handler) decodeCart(r *http.Request) (cartRequest, error) {
	var req cartRequest
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return req, &requestError{msg: "read request body"}
	}
	if len(data) > maxBodyBytes {
		return req, &requestError{msg: "request body too large"}
	}
	if err := req.decode(jx.DecodeBytes(data)); err != nil {
		return req, &requestError{
			msg:     "invalid request body",
			details: map[string]string{"error": err.Error()},
		}
	}
	if err := h.validate.Struct(req); err != nil {
		return req, validationError(err)
	}
	return req, nil
}

func validationError(err error) *requestError {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &requestError{msg: "validation failed"}
	}
	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		// Drop the struct name from "cartRequest.items[0].product_slug".
		_, field, _ := strings.Cut(fe.Namespace(), ".")
		details[field] = validationMessage(fe)
	}
	return &requestError{msg: "validation failed", details: details}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param()
	}
	return "is invalid"
}

// writeJSON writes e as the response body.
func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError writes {"code":N,"message":"...","details":{...}}.
func writeError(w http.ResponseWriter, status int, msg string, details map[string]string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(msg)
	if len(details) > 0 {
		e.FieldStart("details")
		e.ObjStart()
		for k, v := range details {
			e.FieldStart(k)
			e.Str(v)
		}
		e.ObjEnd()
	}
	e.ObjEnd()
	writeJSON(w, status, &e)
}

func encodePercent(e *jx.Encoder, field string, p decimal.NullDecimal) {
	if !p.Valid {
		return
	}
	e.FieldStart(field)
	e.Str(p.Decimal.String())
}

func encodeTime(e *jx.Encoder, field string, t *time.Time) {
	if t == nil {
		return
	}
	e.FieldStart(field)
	e.Str(t.UTC().Format(time.RFC3339))
}
