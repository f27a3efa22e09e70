package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/candleshop/internal/domain/promotion"
)

// ValidatePromotion handles POST /api/promotions/{id}/validate.
func (h *Handler) ValidatePromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := h.decodeCart(r)
	if err != nil {
		writeDomainError(w, r, err, http.StatusNotFound)
		return
	}
	pc, err := h.orders.PriceCart(ctx, req.UserID, req.lines())
	if err != nil {
		writeDomainError(w, r, err, http.StatusNotFound)
		return
	}
	res, err := h.promotions.ValidatePromotion(ctx, chi.URLParam(r, "id"), pc.Cart)
	if err != nil {
		writeDomainError(w, r, err, http.StatusNotFound)
		return
	}
	writeResult(w, res)
}

// ValidateCode handles POST /api/promotions/validate-code.
func (h *Handler) ValidateCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := h.decodeCart(r)
	if err == nil && req.Code == "" {
		err = &requestError{msg: "validation failed", details: map[string]string{"code": "is required"}}
	}
	if err != nil {
		writeDomainError(w, r, err, http.StatusNotFound)
		return
	}
	pc, err := h.orders.PriceCart(ctx, req.UserID, req.lines())
	if err != nil {
		writeDomainError(w, r, err, http.StatusNotFound)
		return
	}
	res, err := h.promotions.ValidateCode(ctx, req.Code, pc.Cart)
	if err != nil {
		writeDomainError(w, r, err, http.StatusNotFound)
		return
	}
	writeResult(w, res)
}

// AutomaticPromotions handles POST /api/promotions/automatic. The response
// lists every applicable automatic promotion, best first.
func (h *Handler) AutomaticPromotions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := h.decodeCart(r)
	if err != nil {
		writeDomainError(w, r, err, http.StatusNotFound)
		return
	}
	pc, err := h.orders.PriceCart(ctx, req.UserID, req.lines())
	if err != nil {
		writeDomainError(w, r, err, http.StatusNotFound)
		return
	}
	ranked, err := h.promotions.AutomaticPromotions(ctx, pc.Cart)
	if err != nil {
		writeDomainError(w, r, err, http.StatusNotFound)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("promotions")
	e.ArrStart()
	for _, rp := range ranked {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(rp.Promotion.ID)
		if rp.Promotion.Code != "" {
			e.FieldStart("code")
			e.Str(rp.Promotion.Code)
		}
		e.FieldStart("name")
		e.Str(rp.Promotion.Name)
		e.FieldStart("discount_type")
		e.Str(string(rp.Promotion.Discount.Kind()))
		e.FieldStart("discount_amount_cents")
		e.Int64(rp.Amount.Cents)
		encodePercent(&e, "discount_percent", rp.Amount.Percent)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

// writeResult encodes a validation outcome. Rejections are 200 responses
// with valid=false.
func writeResult(w http.ResponseWriter, res promotion.Result) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("valid")
	e.Bool(res.Valid)
	e.FieldStart("promotion_id")
	e.Str(res.PromotionID)
	if res.Valid {
		e.FieldStart("discount_amount_cents")
		e.Int64(res.DiscountAmountCents)
		encodePercent(&e, "discount_percent", res.DiscountPercent)
	} else {
		e.FieldStart("reason")
		e.Str(string(res.Reason))
		e.FieldStart("error")
		e.Str(res.Error)
	}
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}
