package order

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/candleshop/internal/domain/customer"
	"github.com/xenking/candleshop/internal/domain/product"
	"github.com/xenking/candleshop/internal/domain/promotion"
)

// ErrEmptyItems is returned for a cart without lines.
var ErrEmptyItems = errors.New("items required")

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductSlug string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductSlug)
}

// MaxLineQuantity caps the quantity of a single cart line.
const MaxLineQuantity = 10000

// InvalidQuantityError indicates a line item quantity outside
// [1, MaxLineQuantity], or a cart whose total does not fit in int64 cents.
type InvalidQuantityError struct {
	ProductSlug string
	Quantity    int
}

func (e *InvalidQuantityError) Error() string {
	if e.Quantity > 0 {
		return fmt.Sprintf("quantity %d is too large for product %s", e.Quantity, e.ProductSlug)
	}
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductSlug)
}

// PromotionRejectedError carries the validation result of an entered code
// that does not apply to the cart.
type PromotionRejectedError struct {
	Code   string
	Result promotion.Result
}

func (e *PromotionRejectedError) Error() string {
	return fmt.Sprintf("promotion %s rejected: %s", e.Code, e.Result.Reason)
}

// Promotions is the part of promotion.Service used by checkout.
type Promotions interface {
	ValidateCode(ctx context.Context, code string, cart promotion.Cart) (promotion.Result, error)
	AutomaticPromotions(ctx context.Context, cart promotion.Cart) ([]promotion.Ranked, error)
}

// QuoteRequest is a cart submitted for pricing.
type QuoteRequest struct {
	// UserID is empty for guests.
	UserID        string
	Items         []LineItem
	PromotionCode string
}

// Quote is a priced cart.
type Quote struct {
	Items         []Item
	Products      []product.Product
	SubtotalCents int64
	DiscountCents int64
	TotalCents    int64
	Promotion     *AppliedPromotion
}

// Service prices carts and runs the order lifecycle. At most one promotion
// applies to an order: the entered code if any, otherwise the best
// automatic promotion.
type Service struct {
	products   product.Repository
	promotions Promotions
	orders     Repository
	redemption promotion.RedemptionCounter
	now        func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products product.Repository,
	promotions Promotions,
	orders Repository,
	redemption promotion.RedemptionCounter,
) *Service {
	return &Service{
		products:   products,
		promotions: promotions,
		orders:     orders,
		redemption: redemption,
		now:        time.Now,
	}
}

// PricedCart is a cart priced from the catalog.
type PricedCart struct {
	Cart     promotion.Cart
	Items    []Item
	Products []product.Product
}

// PriceCart looks up catalog prices for lines and builds the promotion cart.
func (s *Service) PriceCart(ctx context.Context, userID string, lines []LineItem) (*PricedCart, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyItems
	}

	slugs := make([]string, len(lines))
	for i, item := range lines {
		switch {
		case item.Quantity <= 0:
			return nil, &InvalidQuantityError{ProductSlug: item.ProductSlug}
		case item.Quantity > MaxLineQuantity:
			return nil, &InvalidQuantityError{ProductSlug: item.ProductSlug, Quantity: item.Quantity}
		}
		slugs[i] = item.ProductSlug
	}

	fetched, err := s.products.GetBySlugs(ctx, slugs)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	bySlug := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		bySlug[p.Slug] = p
	}

	pc := &PricedCart{
		Items:    make([]Item, len(lines)),
		Products: make([]product.Product, len(lines)),
	}
	cartItems := make([]promotion.Item, len(lines))
	var subtotal int64
	for i, item := range lines {
		p, ok := bySlug[item.ProductSlug]
		if !ok {
			return nil, &ProductNotFoundError{ProductSlug: item.ProductSlug}
		}
		line, ok := lineTotal(item.Quantity, p.PriceCents)
		if !ok || subtotal > math.MaxInt64-line {
			return nil, &InvalidQuantityError{ProductSlug: item.ProductSlug, Quantity: item.Quantity}
		}
		subtotal += line
		pc.Products[i] = p
		pc.Items[i] = Item{ProductSlug: p.Slug, Quantity: item.Quantity, UnitPriceCents: p.PriceCents}
		cartItems[i] = promotion.Item{ProductSlug: p.Slug, Quantity: item.Quantity, PriceCents: p.PriceCents}
	}
	pc.Cart = promotion.NewCart(userID, cartItems)
	return pc, nil
}

// lineTotal returns quantity*price, reporting false when it overflows int64.
func lineTotal(quantity int, priceCents int64) (int64, bool) {
	if priceCents <= 0 {
		return 0, true
	}
	if int64(quantity) > math.MaxInt64/priceCents {
		return 0, false
	}
	return int64(quantity) * priceCents, true
}

// Quote prices the cart without persisting anything.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	pc, err := s.PriceCart(ctx, req.UserID, req.Items)
	if err != nil {
		return nil, err
	}

	q := &Quote{
		Items:         pc.Items,
		Products:      pc.Products,
		SubtotalCents: pc.Cart.SubtotalCents,
	}
	applied, err := s.applyPromotion(ctx, req.PromotionCode, pc.Cart)
	if err != nil {
		return nil, err
	}
	if applied != nil {
		q.Promotion = applied
		q.DiscountCents = applied.DiscountCents
	}
	q.TotalCents = max(q.SubtotalCents-q.DiscountCents, 0)
	return q, nil
}

func (s *Service) applyPromotion(ctx context.Context, code string, cart promotion.Cart) (*AppliedPromotion, error) {
	if code != "" {
		res, err := s.promotions.ValidateCode(ctx, code, cart)
		if err != nil {
			return nil, errors.Wrap(err, "validate promotion code")
		}
		if !res.Valid {
			return nil, &PromotionRejectedError{Code: code, Result: res}
		}
		return &AppliedPromotion{
			ID:              res.PromotionID,
			Code:            promotion.NormalizeCode(code),
			DiscountCents:   res.DiscountAmountCents,
			DiscountPercent: res.DiscountPercent,
		}, nil
	}

	ranked, err := s.promotions.AutomaticPromotions(ctx, cart)
	if err != nil {
		return nil, errors.Wrap(err, "automatic promotions")
	}
	if len(ranked) == 0 || ranked[0].Amount.Cents == 0 {
		return nil, nil
	}
	best := ranked[0]
	return &AppliedPromotion{
		ID:              best.Promotion.ID,
		Code:            best.Promotion.Code,
		Name:            best.Promotion.Name,
		Automatic:       true,
		DiscountCents:   best.Amount.Cents,
		DiscountPercent: best.Amount.Percent,
	}, nil
}

// PlaceOrderResult holds the output of a successfully placed order.
type PlaceOrderResult struct {
	Order *Order
	Quote *Quote
}

// PlaceOrder prices the cart and persists it as a pending order.
func (s *Service) PlaceOrder(ctx context.Context, req QuoteRequest) (*PlaceOrderResult, error) {
	q, err := s.Quote(ctx, req)
	if err != nil {
		return nil, err
	}

	o := &Order{
		ID:            uuid.New().String(),
		UserID:        req.UserID,
		Items:         q.Items,
		SubtotalCents: q.SubtotalCents,
		DiscountCents: q.DiscountCents,
		TotalCents:    q.TotalCents,
		Status:        customer.StatusPending,
		CreatedAt:     s.now().UTC(),
	}
	if q.Promotion != nil {
		o.PromotionID = q.Promotion.ID
		o.PromotionCode = q.Promotion.Code
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.Int64("total_cents", o.TotalCents),
		zap.String("promotion_id", o.PromotionID),
	)
	return &PlaceOrderResult{Order: o, Quote: q}, nil
}

// CompleteOrder marks a pending order completed and counts the redemption of
// its promotion. Losing the race for the last redemption does not undo the
// completion: the order keeps its discount and the event is logged.
func (s *Service) CompleteOrder(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.Complete(ctx, id, s.now().UTC())
	if err != nil {
		return nil, errors.Wrapf(err, "complete order %s", id)
	}
	if o.PromotionID == "" {
		return o, nil
	}

	lg := zctx.From(ctx).With(
		zap.String("order_id", o.ID),
		zap.String("promotion_id", o.PromotionID),
	)
	switch err := s.redemption.IncrementRedemptions(ctx, o.PromotionID); {
	case errors.Is(err, promotion.ErrRedemptionCapReached):
		lg.Warn("Promotion cap reached after order completed")
	case err != nil:
		return nil, errors.Wrap(err, "increment redemptions")
	default:
		lg.Debug("Redemption counted")
	}
	return o, nil
}
