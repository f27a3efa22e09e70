// Package app wires the promotion server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/candleshop/internal/cache"
	"github.com/xenking/candleshop/internal/domain/order"
	"github.com/xenking/candleshop/internal/domain/promotion"
	"github.com/xenking/candleshop/internal/handler"
	"github.com/xenking/candleshop/internal/repository"
	"github.com/xenking/candleshop/pkg/health"
	"github.com/xenking/candleshop/pkg/httpmiddleware"
)

// Telemetry provides the OpenTelemetry providers. *app.Telemetry of
// go-faster/sdk satisfies it.
type Telemetry interface {
	TracerProvider() trace.TracerProvider
	MeterProvider() metric.MeterProvider
}

// Run creates all dependencies, serves HTTP until ctx is done and then shuts
// down gracefully.
func Run(ctx context.Context, lg *zap.Logger, m Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	probes := health.New()
	probes.Add(health.Readiness, "postgres", 5*time.Second, health.PingCheck("postgres", pool))
	probes.Add(health.Liveness, "goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Left nil when Redis is not configured so the cache passes through.
	var redisClient cache.Client
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		redisClient = rdb
		probes.Add(health.Readiness, "redis", 2*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		lg.Info("Promotion cache enabled", zap.String("redis", cfg.Redis.Addr), zap.Duration("ttl", cfg.Redis.TTL))
	}

	productRepo := repository.NewProductRepository(pool)
	promotionRepo := repository.NewPromotionRepository(pool)
	customerRepo := repository.NewCustomerRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	apikeyRepo := repository.NewAPIKeyRepository(pool)

	promotions := cache.NewPromotionCache(promotionRepo, redisClient, cfg.Redis.Prefix, cfg.Redis.TTL)
	codeIndex := cache.NewCodeIndex(promotionRepo, cfg.CodeIndex.Capacity, cfg.CodeIndex.FalsePositiveRate)
	if err := codeIndex.Rebuild(ctx); err != nil {
		return errors.Wrap(err, "build code index")
	}

	promotionSvc, err := promotion.NewService(promotions, customerRepo,
		promotion.WithCodeIndex(codeIndex),
		promotion.WithTracerProvider(m.TracerProvider()),
		promotion.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create promotion service")
	}
	orderSvc := order.NewService(productRepo, promotionSvc, orderRepo, promotions)

	instrument, err := httpmiddleware.Instrument(m.MeterProvider(), handler.RoutePattern)
	if err != nil {
		return errors.Wrap(err, "instrument")
	}

	router := chi.NewRouter()
	router.Use(
		httpmiddleware.LogRequests(handler.RoutePattern),
		instrument,
	)
	router.Get("/livez", probes.Handler(health.Liveness))
	router.Get("/readyz", probes.Handler(health.Readiness))
	handler.NewHandler(productRepo, promotionSvc, orderSvc).
		Mount(router, handler.NewAuthenticator(apikeyRepo, []byte(cfg.APIKeyPepper)))

	limiter := httpmiddleware.NewLimiter(httpmiddleware.RateLimitConfig{
		Max:    cfg.RateLimit.Max,
		Window: cfg.RateLimit.Window,
	})
	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(
			otelhttp.NewHandler(router, "promo-api",
				otelhttp.WithTracerProvider(m.TracerProvider()),
				otelhttp.WithMeterProvider(m.MeterProvider()),
			),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Recovery(),
			limiter.Middleware(),
		),
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return probes.Run(gCtx, 10*time.Second) })
	g.Go(func() error { return codeIndex.Run(gCtx, cfg.CodeIndex.RefreshInterval) })
	g.Go(func() error { return limiter.Run(gCtx) })
	g.Go(func() error {
		<-gCtx.Done()
		probes.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	g.Go(func() error {
		probes.SetReady(true)
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	return g.Wait()
}
