package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/Erlan-Bam/ecommerce-prime-backend/internal/cache"
	"github.com/Erlan-Bam/ecommerce-prime-backend/internal/domain/checkout"
	"github.com/Erlan-Bam/ecommerce-prime-backend/internal/domain/coupon"
	"github.com/Erlan-Bam/ecommerce-prime-backend/internal/domain/pickup"
	"github.com/Erlan-Bam/ecommerce-prime-backend/internal/handler"
	"github.com/Erlan-Bam/ecommerce-prime-backend/internal/repository"
	"github.com/Erlan-Bam/ecommerce-prime-backend/pkg/health"
	"github.com/Erlan-Bam/ecommerce-prime-backend/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc-pause", time.Second, health.GCMaxPauseCheck(100*time.Millisecond))

	// Listing cache: Redis when configured, in-process otherwise.
	var c cache.Cache
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return errors.Wrap(err, "create redis cache")
		}
		defer redisCache.Close()
		healthSvc.AddReadinessCheck("redis", 5*time.Second, func(ctx context.Context) error {
			return redisCache.Client().Ping(ctx).Err()
		})
		c = redisCache
	} else {
		lg.Warn("Redis URL not set, using in-process cache")
		c = cache.NewMemory()
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	windowRepo := repository.NewWindowRepository(pool)
	pointRepo := repository.NewPointRepository(pool)
	couponRepo := repository.NewCouponRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)

	// Domain services.
	catalog := pickup.NewCatalog(windowRepo, pointRepo, c, lg)
	ledger := pickup.NewLedger(windowRepo, c, lg)
	validator := coupon.NewValidator(couponRepo)
	checkoutSvc := checkout.NewService(orderRepo, ledger, catalog, validator, c, lg)

	// Background reconciliation of reserved counters.
	go runReaper(ctx, ledger, cfg.Reaper, lg)

	// Mux: health endpoints + API routes on one server.
	h := handler.New(catalog, ledger, checkoutSvc)
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", http.StripPrefix("/api", h.Routes()))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "Idempotency-Key"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// runReaper periodically realigns reserved counters with committed orders.
// Crash-orphaned reservations are returned to sale here; everything else is
// released synchronously by the checkout compensation path.
func runReaper(ctx context.Context, ledger *pickup.Ledger, cfg ReaperConfig, lg *zap.Logger) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := ledger.ReapExpired(ctx, cfg.Grace); err != nil {
				lg.Error("Reserved counter reconciliation failed", zap.Error(err))
			}
		}
	}
}
