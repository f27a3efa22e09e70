// Package handler implements the HTTP API of the promotion server.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/xenking/candleshop/internal/domain/auth"
	"github.com/xenking/candleshop/internal/domain/order"
	"github.com/xenking/candleshop/internal/domain/product"
	"github.com/xenking/candleshop/internal/domain/promotion"
)

// PromotionService is the promotion engine as seen by the API.
type PromotionService interface {
	ValidatePromotion(ctx context.Context, id string, cart promotion.Cart) (promotion.Result, error)
	ValidateCode(ctx context.Context, code string, cart promotion.Cart) (promotion.Result, error)
	AutomaticPromotions(ctx context.Context, cart promotion.Cart) ([]promotion.Ranked, error)
}

// OrderService is the checkout workflow as seen by the API.
type OrderService interface {
	PriceCart(ctx context.Context, userID string, lines []order.LineItem) (*order.PricedCart, error)
	Quote(ctx context.Context, req order.QuoteRequest) (*order.Quote, error)
	PlaceOrder(ctx context.Context, req order.QuoteRequest) (*order.PlaceOrderResult, error)
	CompleteOrder(ctx context.Context, id string) (*order.Order, error)
}

var (
	_ PromotionService = (*promotion.Service)(nil)
	_ OrderService     = (*order.Service)(nil)
)

// Handler serves the /api routes.
type Handler struct {
	products   product.Repository
	promotions PromotionService
	orders     OrderService
	validate   *validator.Validate
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(products product.Repository, promotions PromotionService, orders OrderService) *Handler {
	return &Handler{
		products:   products,
		promotions: promotions,
		orders:     orders,
		validate:   newValidator(),
	}
}

// Mount registers the API routes on r behind authn. Promotion and catalog
// routes need the promotions:read scope, order routes orders:write.
func (h *Handler) Mount(r chi.Router, authn *Authenticator) {
	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authn.Require(auth.ScopePromotionsRead))
			r.Get("/products", h.ListProducts)
			r.Post("/promotions/{id}/validate", h.ValidatePromotion)
			r.Post("/promotions/validate-code", h.ValidateCode)
			r.Post("/promotions/automatic", h.AutomaticPromotions)
		})
		r.Group(func(r chi.Router) {
			r.Use(authn.Require(auth.ScopeOrdersWrite))
			r.Post("/orders/quote", h.QuoteOrder)
			r.Post("/orders", h.PlaceOrder)
			r.Post("/orders/{id}/complete", h.CompleteOrder)
		})
	})
}

// RoutePattern returns the chi pattern matched by r, or "" outside a chi
// router. It is meaningful once routing finished.
func RoutePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	return rctx.RoutePattern()
}
