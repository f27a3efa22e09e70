package promotion

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/candleshop/internal/domain/customer"
)

// CodeIndex answers whether a normalized code may exist. A false answer is
// only as fresh as the last rebuild: codes created since then are missing
// until they are Added.
type CodeIndex interface {
	MayContain(code string) bool
	Add(code string)
}

// NormalizeCode returns the canonical form used for code lookups.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Service is the entry point used by checkout. It loads promotions and the
// customer's order history, then delegates to Validate and Rank.
type Service struct {
	promotions Repository
	customers  customer.Repository
	codeIndex  CodeIndex
	now        func() time.Time

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	tracer         trace.Tracer
	validations    metric.Int64Counter
	selected       metric.Int64Counter
}

// Option configures a Service.
type Option func(*Service)

// WithCodeIndex keeps idx current with codes found after its last rebuild.
func WithCodeIndex(idx CodeIndex) Option {
	return func(s *Service) { s.codeIndex = idx }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTracerProvider sets the tracer provider. Defaults to noop.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider. Defaults to noop.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

// NewService creates a Service backed by the given repositories.
func NewService(promotions Repository, customers customer.Repository, opts ...Option) (*Service, error) {
	s := &Service{
		promotions:     promotions,
		customers:      customers,
		now:            time.Now,
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  metricnoop.NewMeterProvider(),
	}
	for _, o := range opts {
		o(s)
	}

	const name = "github.com/xenking/candleshop/internal/domain/promotion"
	s.tracer = s.tracerProvider.Tracer(name)
	meter := s.meterProvider.Meter(name)

	var err error
	if s.validations, err = meter.Int64Counter("promotion.validations",
		metric.WithDescription("Promotion validations by result and reason"),
	); err != nil {
		return nil, errors.Wrap(err, "validations counter")
	}
	if s.selected, err = meter.Int64Counter("promotion.automatic.selected",
		metric.WithDescription("Automatic promotions returned as applicable"),
	); err != nil {
		return nil, errors.Wrap(err, "selected counter")
	}
	return s, nil
}

// ValidatePromotion validates the promotion with the given id against cart.
// A missing promotion is reported as ErrNotFound, never as an invalid Result.
func (s *Service) ValidatePromotion(ctx context.Context, id string, cart Cart) (_ Result, rerr error) {
	ctx, span := s.tracer.Start(ctx, "promotion.ValidatePromotion",
		trace.WithAttributes(attribute.String("promotion.id", id)),
	)
	defer endSpan(span, &rerr)

	p, err := s.promotions.GetByID(ctx, id)
	if err != nil {
		return Result{}, errors.Wrapf(err, "get promotion %s", id)
	}
	return s.evaluate(ctx, *p, cart)
}

// ValidateCode validates the promotion with the given user-facing code
// against cart. Codes match case-insensitively.
func (s *Service) ValidateCode(ctx context.Context, code string, cart Cart) (_ Result, rerr error) {
	code = NormalizeCode(code)
	ctx, span := s.tracer.Start(ctx, "promotion.ValidateCode")
	defer endSpan(span, &rerr)

	if code == "" {
		return Result{}, ErrNotFound
	}
	indexed := s.codeIndex == nil || s.codeIndex.MayContain(code)
	if !indexed {
		span.AddEvent("code index miss")
	}

	// The store is authoritative: a miss may be a code created after the
	// last index rebuild.
	p, err := s.promotions.GetByCode(ctx, code)
	if err != nil {
		return Result{}, errors.Wrap(err, "get promotion by code")
	}
	if !indexed {
		s.codeIndex.Add(code)
		zctx.From(ctx).Debug("Code added to stale index", zap.String("code", code))
	}
	return s.evaluate(ctx, *p, cart)
}

// FindAutomaticPromotions returns the automatic promotions among all that
// apply to cart, best first.
func (s *Service) FindAutomaticPromotions(ctx context.Context, cart Cart, all []Promotion) ([]Promotion, error) {
	ranked, err := s.rank(ctx, cart, all)
	if err != nil {
		return nil, err
	}
	out := make([]Promotion, len(ranked))
	for i, r := range ranked {
		out[i] = r.Promotion
	}
	return out, nil
}

// AutomaticPromotions loads every promotion and ranks the automatic ones
// that apply to cart, best first, together with their discounts.
func (s *Service) AutomaticPromotions(ctx context.Context, cart Cart) (_ []Ranked, rerr error) {
	ctx, span := s.tracer.Start(ctx, "promotion.AutomaticPromotions")
	defer endSpan(span, &rerr)

	all, err := s.promotions.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list promotions")
	}
	return s.rank(ctx, cart, all)
}

func (s *Service) rank(ctx context.Context, cart Cart, all []Promotion) ([]Ranked, error) {
	var history *History
	if !cart.guest() && anyNeedsHistory(all) {
		h, err := s.resolveHistory(ctx, cart.UserID)
		if err != nil {
			return nil, err
		}
		history = h
	}

	ranked := Rank(all, cart, history, s.now())
	s.selected.Add(ctx, int64(len(ranked)))
	zctx.From(ctx).Debug("Ranked automatic promotions",
		zap.Int("candidates", len(all)),
		zap.Int("applicable", len(ranked)),
	)
	return ranked, nil
}

func (s *Service) evaluate(ctx context.Context, p Promotion, cart Cart) (Result, error) {
	var history *History
	if !cart.guest() && p.needsHistory() {
		h, err := s.resolveHistory(ctx, cart.UserID)
		if err != nil {
			return Result{}, err
		}
		history = h
	}

	res := Validate(p, cart, history, s.now())

	outcome := "valid"
	if !res.Valid {
		outcome = "invalid"
		zctx.From(ctx).Debug("Promotion rejected",
			zap.String("promotion_id", p.ID),
			zap.String("reason", string(res.Reason)),
		)
	}
	s.validations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", outcome),
		attribute.String("reason", string(res.Reason)),
	))
	return res, nil
}

// resolveHistory loads the user and their orders concurrently. An unknown
// user yields a nil History, which Validate treats like a guest.
func (s *Service) resolveHistory(ctx context.Context, userID string) (*History, error) {
	var (
		exists bool
		orders []customer.Order
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := s.customers.GetUserByID(gctx, userID)
		switch {
		case errors.Is(err, customer.ErrUserNotFound):
			return nil
		case err != nil:
			return errors.Wrap(err, "get user")
		}
		exists = true
		return nil
	})
	g.Go(func() error {
		var err error
		if orders, err = s.customers.GetUserOrders(gctx, userID); err != nil {
			return errors.Wrap(err, "get user orders")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, errors.Wrapf(err, "resolve history of %s", userID)
	}
	if !exists {
		zctx.From(ctx).Debug("Unknown user, evaluating as guest", zap.String("user_id", userID))
		return nil, nil
	}
	return NewHistory(orders), nil
}

func anyNeedsHistory(promotions []Promotion) bool {
	for _, p := range promotions {
		if p.Trigger == TriggerAutomatic && p.needsHistory() {
			return true
		}
	}
	return false
}

func endSpan(span trace.Span, errp *error) {
	if err := *errp; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
