package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/candleshop/internal/domain/order"
)

func (c cartRequest) quoteRequest() order.QuoteRequest {
	return order.QuoteRequest{
		UserID:        c.UserID,
		Items:         c.lines(),
		PromotionCode: c.Code,
	}
}

// QuoteOrder handles POST /api/orders/quote.
func (h *Handler) QuoteOrder(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeCart(r)
	if err != nil {
		writeDomainError(w, r, err, http.StatusUnprocessableEntity)
		return
	}
	q, err := h.orders.Quote(r.Context(), req.quoteRequest())
	if err != nil {
		writeDomainError(w, r, err, http.StatusUnprocessableEntity)
		return
	}

	var e jx.Encoder
	encodeQuote(&e, q)
	writeJSON(w, http.StatusOK, &e)
}

// PlaceOrder handles POST /api/orders. The order is stored as pending.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeCart(r)
	if err != nil {
		writeDomainError(w, r, err, http.StatusUnprocessableEntity)
		return
	}
	res, err := h.orders.PlaceOrder(r.Context(), req.quoteRequest())
	if err != nil {
		writeDomainError(w, r, err, http.StatusUnprocessableEntity)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("order")
	encodeOrder(&e, res.Order)
	e.FieldStart("quote")
	encodeQuote(&e, res.Quote)
	e.ObjEnd()
	writeJSON(w, http.StatusCreated, &e)
}

// CompleteOrder handles POST /api/orders/{id}/complete.
func (h *Handler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.CompleteOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err, http.StatusUnprocessableEntity)
		return
	}

	var e jx.Encoder
	encodeOrder(&e, o)
	writeJSON(w, http.StatusOK, &e)
}

func encodeQuote(e *jx.Encoder, q *order.Quote) {
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for i, it := range q.Items {
		e.ObjStart()
		e.FieldStart("product_slug")
		e.Str(it.ProductSlug)
		if i < len(q.Products) {
			e.FieldStart("name")
			e.Str(q.Products[i].Name)
		}
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("unit_price_cents")
		e.Int64(it.UnitPriceCents)
		e.FieldStart("line_total_cents")
		e.Int64(int64(it.Quantity) * it.UnitPriceCents)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("subtotal_cents")
	e.Int64(q.SubtotalCents)
	e.FieldStart("discount_cents")
	e.Int64(q.DiscountCents)
	e.FieldStart("total_cents")
	e.Int64(q.TotalCents)
	if p := q.Promotion; p != nil {
		e.FieldStart("promotion")
		e.ObjStart()
		e.FieldStart("id")
		e.Str(p.ID)
		if p.Code != "" {
			e.FieldStart("code")
			e.Str(p.Code)
		}
		if p.Name != "" {
			e.FieldStart("name")
			e.Str(p.Name)
		}
		e.FieldStart("automatic")
		e.Bool(p.Automatic)
		e.FieldStart("discount_cents")
		e.Int64(p.DiscountCents)
		encodePercent(e, "discount_percent", p.DiscountPercent)
		e.ObjEnd()
	}
	e.ObjEnd()
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("status")
	e.Str(string(o.Status))
	if o.UserID != "" {
		e.FieldStart("user_id")
		e.Str(o.UserID)
	}
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("product_slug")
		e.Str(it.ProductSlug)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("unit_price_cents")
		e.Int64(it.UnitPriceCents)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("subtotal_cents")
	e.Int64(o.SubtotalCents)
	e.FieldStart("discount_cents")
	e.Int64(o.DiscountCents)
	e.FieldStart("total_cents")
	e.Int64(o.TotalCents)
	if o.PromotionID != "" {
		e.FieldStart("promotion_id")
		e.Str(o.PromotionID)
	}
	if o.PromotionCode != "" {
		e.FieldStart("promotion_code")
		e.Str(o.PromotionCode)
	}
	encodeTime(e, "created_at", &o.CreatedAt)
	encodeTime(e, "completed_at", o.CompletedAt)
	e.ObjEnd()
}
