package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/candleshop/internal/domain/auth"
	"github.com/xenking/candleshop/internal/domain/customer"
	"github.com/xenking/candleshop/internal/domain/order"
	"github.com/xenking/candleshop/internal/domain/product"
	"github.com/xenking/candleshop/internal/domain/promotion"
)

// --- Mock implementations ---

type mockKeys struct {
	keys map[string]auth.APIKey
	err  error
}

func (m *mockKeys) FindByHash(_ context.Context, hash string) (*auth.APIKey, error) {
	if m.err != nil {
		return nil, m.err
	}
	k, ok := m.keys[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return &k, nil
}

func (m *mockKeys) Upsert(_ context.Context, k auth.APIKey) error {
	m.keys[k.KeyHash] = k
	return nil
}

type mockProducts struct {
	products []product.Product
	err      error
}

func (m *mockProducts) List(context.Context) ([]product.Product, error) {
	return m.products, m.err
}

func (m *mockProducts) GetBySlug(context.Context, string) (*product.Product, error) {
	return nil, product.ErrNotFound
}

func (m *mockProducts) GetBySlugs(context.Context, []string) ([]product.Product, error) {
	return nil, nil
}

type mockPromotions struct {
	result promotion.Result
	ranked []promotion.Ranked
	err    error

	gotID   string
	gotCode string
	gotCart promotion.Cart
}

func (m *mockPromotions) ValidatePromotion(_ context.Context, id string, cart promotion.Cart) (promotion.Result, error) {
	m.gotID, m.gotCart = id, cart
	return m.result, m.err
}

func (m *mockPromotions) ValidateCode(_ context.Context, code string, cart promotion.Cart) (promotion.Result, error) {
	m.gotCode, m.gotCart = code, cart
	return m.result, m.err
}

func (m *mockPromotions) AutomaticPromotions(_ context.Context, cart promotion.Cart) ([]promotion.Ranked, error) {
	m.gotCart = cart
	return m.ranked, m.err
}

type mockOrders struct {
	priceErr    error
	quote       *order.Quote
	quoteErr    error
	placed      *order.PlaceOrderResult
	completed   *order.Order
	completeErr error

	gotReq   order.QuoteRequest
	gotLines []order.LineItem
	gotID    string
}

func (m *mockOrders) PriceCart(_ context.Context, userID string, lines []order.LineItem) (*order.PricedCart, error) {
	m.gotLines = lines
	if m.priceErr != nil {
		return nil, m.priceErr
	}
	items := make([]promotion.Item, len(lines))
	for i, l := range lines {
		items[i] = promotion.Item{ProductSlug: l.ProductSlug, Quantity: l.Quantity, PriceCents: 1000}
	}
	return &order.PricedCart{Cart: promotion.NewCart(userID, items)}, nil
}

func (m *mockOrders) Quote(_ context.Context, req order.QuoteRequest) (*order.Quote, error) {
	m.gotReq = req
	return m.quote, m.quoteErr
}

func (m *mockOrders) PlaceOrder(_ context.Context, req order.QuoteRequest) (*order.PlaceOrderResult, error) {
	m.gotReq = req
	return m.placed, m.quoteErr
}

func (m *mockOrders) CompleteOrder(_ context.Context, id string) (*order.Order, error) {
	m.gotID = id
	return m.completed, m.completeErr
}

// --- Helpers ---

const (
	readKey  = "read-key"
	writeKey = "write-key"
)

type fixture struct {
	products   *mockProducts
	promotions *mockPromotions
	orders     *mockOrders
	keys       *mockKeys
	router     chi.Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		products:   &mockProducts{},
		promotions: &mockPromotions{},
		orders:     &mockOrders{},
		keys:       &mockKeys{keys: make(map[string]auth.APIKey)},
	}
	pepper := []byte("test-pepper")
	hasher := auth.NewHasher(pepper)
	require.NoError(t, f.keys.Upsert(context.Background(), auth.APIKey{
		ID: "storefront-read", KeyHash: hasher.Hash(readKey), Scopes: []string{auth.ScopePromotionsRead},
	}))
	require.NoError(t, f.keys.Upsert(context.Background(), auth.APIKey{
		ID: "storefront", KeyHash: hasher.Hash(writeKey),
		Scopes: []string{auth.ScopePromotionsRead, auth.ScopeOrdersWrite},
	}))

	f.router = chi.NewRouter()
	NewHandler(f.products, f.promotions, f.orders).Mount(f.router, NewAuthenticator(f.keys, pepper))
	return f
}

func (f *fixture) do(method, path, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

const cartBody = `{"user_id":"u1","items":[{"product_slug":"vanilla-bean","quantity":2}]}`

// --- Tests ---

func TestAuth(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		key    string
		status int
	}{
		{name: "MissingKey", path: "/api/products", key: "", status: http.StatusUnauthorized},
		{name: "UnknownKey", path: "/api/products", key: "nope", status: http.StatusUnauthorized},
		{name: "ReadScope", path: "/api/products", key: readKey, status: http.StatusOK},
		{name: "MissingWriteScope", path: "/api/orders/o1/complete", key: readKey, status: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.orders.completed = &order.Order{ID: "o1"}
			method := http.MethodGet
			if strings.HasSuffix(tt.path, "/complete") {
				method = http.MethodPost
			}
			w := f.do(method, tt.path, tt.key, "")
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestAuth_RepositoryError(t *testing.T) {
	f := newFixture(t)
	f.keys.err = errors.New("db down")

	w := f.do(http.MethodGet, "/api/products", readKey, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestValidatePromotion(t *testing.T) {
	tests := []struct {
		name   string
		result promotion.Result
		err    error
		status int
		body   string
	}{
		{
			name: "Valid",
			result: promotion.Result{
				Valid: true, PromotionID: "p1", DiscountAmountCents: 400,
				DiscountPercent: decimal.NewNullDecimal(decimal.NewFromInt(20)),
			},
			status: http.StatusOK,
			body:   `{"valid":true,"promotion_id":"p1","discount_amount_cents":400,"discount_percent":"20"}`,
		},
		{
			name: "Rejected",
			result: promotion.Result{
				PromotionID: "p1", Reason: promotion.ReasonExpired, Error: "This promotion has expired",
			},
			status: http.StatusOK,
			body:   `{"valid":false,"promotion_id":"p1","reason":"expired","error":"This promotion has expired"}`,
		},
		{
			name:   "NotFound",
			err:    errors.Wrap(promotion.ErrNotFound, "get promotion p1"),
			status: http.StatusNotFound,
			body:   `{"code":404,"message":"promotion not found"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.promotions.result = tt.result
			f.promotions.err = tt.err

			w := f.do(http.MethodPost, "/api/promotions/p1/validate", readKey, cartBody)
			assert.Equal(t, tt.status, w.Code)
			assert.JSONEq(t, tt.body, w.Body.String())
			assert.Equal(t, "p1", f.promotions.gotID)
			assert.Equal(t, int64(2000), f.promotions.gotCart.SubtotalCents)
			assert.Equal(t, "u1", f.promotions.gotCart.UserID)
		})
	}
}

func TestValidateCode(t *testing.T) {
	f := newFixture(t)
	f.promotions.result = promotion.Result{Valid: true, PromotionID: "p2", DiscountAmountCents: 500}

	w := f.do(http.MethodPost, "/api/promotions/validate-code", readKey,
		`{"code":"save5","items":[{"product_slug":"vanilla-bean","quantity":1}]}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"valid":true,"promotion_id":"p2","discount_amount_cents":500}`, w.Body.String())
	assert.Equal(t, "save5", f.promotions.gotCode)
	assert.True(t, f.promotions.gotCart.IsGuest)
}

func TestValidateCode_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "MissingCode",
			body: `{"items":[{"product_slug":"vanilla-bean","quantity":1}]}`,
			want: `{"code":400,"message":"validation failed","details":{"code":"is required"}}`,
		},
		{
			name: "MissingItems",
			body: `{"code":"SAVE5"}`,
			want: `{"code":400,"message":"validation failed","details":{"items":"is required"}}`,
		},
		{
			name: "MissingSlug",
			body: `{"code":"SAVE5","items":[{"quantity":1}]}`,
			want: `{"code":400,"message":"validation failed","details":{"items[0].product_slug":"is required"}}`,
		},
		{
			name: "QuantityAboveCap",
			body: `{"code":"SAVE5","items":[{"product_slug":"vanilla-bean","quantity":9223372036854776}]}`,
			want: `{"code":400,"message":"validation failed","details":{"items[0].quantity":"must be at most 10000"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			w := f.do(http.MethodPost, "/api/promotions/validate-code", readKey, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.JSONEq(t, tt.want, w.Body.String())
		})
	}
}

func TestMalformedBody(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodPost, "/api/promotions/automatic", readKey, `{"items":[{"quantity":"two"}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request body")
}

func TestAutomaticPromotions(t *testing.T) {
	f := newFixture(t)
	f.promotions.ranked = []promotion.Ranked{
		{
			Promotion: promotion.Promotion{ID: "auto-1", Name: "Spring sale", Discount: promotion.Percentage{Percent: decimal.NewFromInt(10)}},
			Amount:    promotion.Amount{Cents: 200, Percent: decimal.NewNullDecimal(decimal.NewFromInt(10))},
		},
		{
			Promotion: promotion.Promotion{ID: "auto-2", Code: "BOGO", Name: "Two for one", Discount: promotion.BOGO{}},
			Amount:    promotion.Amount{Cents: 100},
		},
	}

	w := f.do(http.MethodPost, "/api/promotions/automatic", readKey, cartBody)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"promotions":[
		{"id":"auto-1","name":"Spring sale","discount_type":"percentage","discount_amount_cents":200,"discount_percent":"10"},
		{"id":"auto-2","code":"BOGO","name":"Two for one","discount_type":"bogo","discount_amount_cents":100}
	]}`, w.Body.String())
}

func TestAutomaticPromotions_Empty(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodPost, "/api/promotions/automatic", readKey, cartBody)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"promotions":[]}`, w.Body.String())
}

func TestQuoteOrder_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{
			name:   "EmptyItems",
			err:    order.ErrEmptyItems,
			status: http.StatusBadRequest,
			body:   `{"code":400,"message":"items required"}`,
		},
		{
			name:   "InvalidQuantity",
			err:    &order.InvalidQuantityError{ProductSlug: "vanilla-bean"},
			status: http.StatusUnprocessableEntity,
			body:   `{"code":422,"message":"quantity must be greater than 0 for product vanilla-bean"}`,
		},
		{
			name:   "ProductNotFound",
			err:    &order.ProductNotFoundError{ProductSlug: "ghost"},
			status: http.StatusUnprocessableEntity,
			body:   `{"code":422,"message":"product ghost not found"}`,
		},
		{
			name:   "UnknownCode",
			err:    errors.Wrap(promotion.ErrNotFound, "validate promotion code"),
			status: http.StatusUnprocessableEntity,
			body:   `{"code":422,"message":"promotion not found"}`,
		},
		{
			name: "CodeRejected",
			err: &order.PromotionRejectedError{Code: "SAVE20", Result: promotion.Result{
				Reason: promotion.ReasonBelowMinimum, Error: "Minimum order of $50.00 required",
			}},
			status: http.StatusUnprocessableEntity,
			body: `{"code":422,"message":"promotion code does not apply",
				"details":{"reason":"below_minimum","error":"Minimum order of $50.00 required"}}`,
		},
		{
			name:   "Internal",
			err:    errors.New("db down"),
			status: http.StatusInternalServerError,
			body:   `{"code":500,"message":"internal server error"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.orders.quoteErr = tt.err

			w := f.do(http.MethodPost, "/api/orders/quote", writeKey, cartBody)
			assert.Equal(t, tt.status, w.Code)
			assert.JSONEq(t, tt.body, w.Body.String())
		})
	}
}

func TestQuoteOrder(t *testing.T) {
	f := newFixture(t)
	f.orders.quote = &order.Quote{
		Items:         []order.Item{{ProductSlug: "vanilla-bean", Quantity: 2, UnitPriceCents: 1000}},
		Products:      []product.Product{{Slug: "vanilla-bean", Name: "Vanilla Bean", PriceCents: 1000}},
		SubtotalCents: 2000,
		DiscountCents: 200,
		TotalCents:    1800,
		Promotion: &order.AppliedPromotion{
			ID: "p1", Code: "SAVE10", DiscountCents: 200,
			DiscountPercent: decimal.NewNullDecimal(decimal.NewFromInt(10)),
		},
	}

	w := f.do(http.MethodPost, "/api/orders/quote", writeKey,
		`{"user_id":"u1","promotion_code":"save10","items":[{"product_slug":"vanilla-bean","quantity":2}]}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"items":[{"product_slug":"vanilla-bean","name":"Vanilla Bean","quantity":2,"unit_price_cents":1000,"line_total_cents":2000}],
		"subtotal_cents":2000,"discount_cents":200,"total_cents":1800,
		"promotion":{"id":"p1","code":"SAVE10","automatic":false,"discount_cents":200,"discount_percent":"10"}
	}`, w.Body.String())
	assert.Equal(t, order.QuoteRequest{
		UserID:        "u1",
		PromotionCode: "save10",
		Items:         []order.LineItem{{ProductSlug: "vanilla-bean", Quantity: 2}},
	}, f.orders.gotReq)
}

func TestPlaceOrder(t *testing.T) {
	f := newFixture(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.orders.placed = &order.PlaceOrderResult{
		Order: &order.Order{
			ID: "o1", UserID: "u1", Status: customer.StatusPending,
			Items:         []order.Item{{ProductSlug: "vanilla-bean", Quantity: 2, UnitPriceCents: 1000}},
			SubtotalCents: 2000, TotalCents: 2000, CreatedAt: created,
		},
		Quote: &order.Quote{SubtotalCents: 2000, TotalCents: 2000},
	}

	w := f.do(http.MethodPost, "/api/orders", writeKey, cartBody)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{
		"order":{"id":"o1","status":"pending","user_id":"u1",
			"items":[{"product_slug":"vanilla-bean","quantity":2,"unit_price_cents":1000}],
			"subtotal_cents":2000,"discount_cents":0,"total_cents":2000,"created_at":"2026-03-01T12:00:00Z"},
		"quote":{"items":[],"subtotal_cents":2000,"discount_cents":0,"total_cents":2000}
	}`, w.Body.String())
}

func TestCompleteOrder(t *testing.T) {
	completedAt := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	tests := []struct {
		name   string
		order  *order.Order
		err    error
		status int
	}{
		{
			name: "Completed",
			order: &order.Order{
				ID: "o1", Status: customer.StatusCompleted, PromotionID: "p1",
				CreatedAt: completedAt.Add(-time.Hour), CompletedAt: &completedAt,
			},
			status: http.StatusOK,
		},
		{name: "NotFound", err: errors.Wrap(order.ErrNotFound, "complete order o1"), status: http.StatusNotFound},
		{name: "NotPending", err: errors.Wrap(order.ErrNotPending, "complete order o1"), status: http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.orders.completed = tt.order
			f.orders.completeErr = tt.err

			w := f.do(http.MethodPost, "/api/orders/o1/complete", writeKey, "")
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "o1", f.orders.gotID)
			if tt.err == nil {
				assert.JSONEq(t, `{"id":"o1","status":"completed","items":[],
					"subtotal_cents":0,"discount_cents":0,"total_cents":0,"promotion_id":"p1",
					"created_at":"2026-03-02T08:30:00Z","completed_at":"2026-03-02T09:30:00Z"}`, w.Body.String())
			}
		})
	}
}

func TestListProducts(t *testing.T) {
	f := newFixture(t)
	f.products.products = []product.Product{
		{Slug: "vanilla-bean", Name: "Vanilla Bean", PriceCents: 1600, Category: "classic"},
		{Slug: "sea-salt", Name: "Sea Salt", PriceCents: 2000},
	}

	w := f.do(http.MethodGet, "/api/products", readKey, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"products":[
		{"slug":"vanilla-bean","name":"Vanilla Bean","price_cents":1600,"category":"classic"},
		{"slug":"sea-salt","name":"Sea Salt","price_cents":2000}
	]}`, w.Body.String())
}

func TestRoutePattern(t *testing.T) {
	var pattern string
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req)
			pattern = RoutePattern(req)
		})
	})
	r.Post("/api/orders/{id}/complete", func(http.ResponseWriter, *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/orders/o1/complete", nil))
	assert.Equal(t, "/api/orders/{id}/complete", pattern)
	assert.Empty(t, RoutePattern(httptest.NewRequest(http.MethodGet, "/", nil)))
}
