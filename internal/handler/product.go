package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/candleshop/internal/domain/product"
)

// ListProducts handles GET /api/products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeDomainError(w, r, err, http.StatusNotFound)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("products")
	e.ArrStart()
	for _, p := range products {
		encodeProduct(&e, p)
	}
	e.ArrEnd()
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

func encodeProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	e.FieldStart("slug")
	e.Str(p.Slug)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("price_cents")
	e.Int64(p.PriceCents)
	if p.Category != "" {
		e.FieldStart("category")
		e.Str(p.Category)
	}
	e.ObjEnd()
}
