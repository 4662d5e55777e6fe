// Command server runs the Monitize API.
//
// @title                      Monitize API
// @version                    1.0
// @description                Paid creator content: listing, purchase via Razorpay, secure media, comments and withdrawals.
// @BasePath                   /api/v1
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/monitizeclub/monitize-backend/internal/access"
	"github.com/monitizeclub/monitize-backend/internal/cache"
	"github.com/monitizeclub/monitize-backend/internal/config"
	httpapi "github.com/monitizeclub/monitize-backend/internal/http"
	"github.com/monitizeclub/monitize-backend/internal/observability"
	"github.com/monitizeclub/monitize-backend/internal/payment"
	"github.com/monitizeclub/monitize-backend/internal/repo"
	"github.com/monitizeclub/monitize-backend/internal/storage"
	"github.com/monitizeclub/monitize-backend/internal/sysutil"
	"github.com/monitizeclub/monitize-backend/internal/views"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	schedulerInterval = time.Minute
	purgeInterval     = time.Hour
	shutdownTimeout   = 15 * time.Second
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	sysutil.SetLogLevel(cfg.LogLevel)
	logger := sysutil.NewLogger(os.Stdout, cfg.OTEL.ServiceName, cfg.LogPretty)
	log.Logger = logger
	zerolog.DefaultContextLogger = &logger
	gin.SetMode(cfg.GinMode)

	appVersion := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTEL, observability.BuildInfo{
		Version:     appVersion,
		Environment: os.Getenv("APP_ENV"),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("tracing setup failed")
	}

	db, err := repo.Open(&cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("database unavailable")
	}

	infra := httpapi.Infra{
		Access:  access.NewRegistry(access.GormBackend{DB: db}, access.WithLogger(logger)),
		Cache:   cache.New(cfg.RequestCacheTTL, cache.WithLogger(logger)),
		Gateway: payment.NewRazorpay(cfg.Payment.BaseURL, cfg.Payment.KeyID, cfg.Payment.KeySecret, cfg.Payment.Timeout),
		Logger:  logger,
		Views: views.New(views.GormSink{DB: db},
			views.WithThrottle(cfg.Views.Throttle),
			views.WithFlushInterval(cfg.Views.FlushInterval),
			views.WithBatchSize(cfg.Views.BatchSize),
			views.WithLogger(logger),
		),
	}
	store, err := storage.NewMinio(cfg.Storage)
	switch {
	case errors.Is(err, storage.ErrDisabled):
		logger.Warn().Msg("media storage not configured; uploads and signed URLs disabled")
	case err != nil:
		logger.Fatal().Err(err).Msg("media storage setup failed")
	default:
		infra.Store = store
	}
	if cfg.Payment.KeyID == "" || cfg.Payment.KeySecret == "" {
		logger.Warn().Msg("payment gateway credentials missing; orders will fail")
	}
	if cfg.Auth.JWTSecret == "" {
		logger.Warn().Msg("JWT_SECRET empty; every bearer token will be rejected")
	}

	svc := httpapi.NewServices(db, cfg, infra)

	// Background workers stop with ctx; wg lets the view queue drain.
	var wg sync.WaitGroup
	workers, cancelWorkers := context.WithCancel(context.Background())
	wg.Add(3)
	go func() { defer wg.Done(); infra.Views.Run(workers) }()
	go func() { defer wg.Done(); svc.Contents.RunScheduler(workers, schedulerInterval) }()
	go func() {
		defer wg.Done()
		sysutil.RunEvery(workers, purgeInterval, "purge_idempotency_keys", logger, func(ctx context.Context) error {
			n, err := svc.Purchases.PurgeExpiredKeys(ctx)
			if err == nil && n > 0 {
				logger.Info().Int64("deleted", n).Msg("expired idempotency keys purged")
			}
			return err
		})
	}()

	r := gin.New()
	httpapi.RegisterRoutes(r, db, svc, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("version", appVersion).Str("db", cfg.DBDriver).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}

	cancelWorkers()
	wg.Wait()

	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("tracing shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.Info().Msg("server stopped")
}
