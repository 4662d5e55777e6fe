// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// session verification, CORS, security headers, idempotency, and rate limiting.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/monitizeclub/monitize-backend/docs"
	"github.com/monitizeclub/monitize-backend/internal/access"
	"github.com/monitizeclub/monitize-backend/internal/cache"
	"github.com/monitizeclub/monitize-backend/internal/config"
	"github.com/monitizeclub/monitize-backend/internal/http/handlers"
	"github.com/monitizeclub/monitize-backend/internal/http/middleware"
	"github.com/monitizeclub/monitize-backend/internal/payment"
	"github.com/monitizeclub/monitize-backend/internal/repo"
	"github.com/monitizeclub/monitize-backend/internal/services"
	"github.com/monitizeclub/monitize-backend/internal/storage"
	"github.com/monitizeclub/monitize-backend/internal/views"
)

const (
	defaultBodyLimit = 1 << 20
	webhookPath      = "/webhooks/"
	ordersPath       = "/payments/orders"
)

// Infra holds the process-wide components shared by the services.
type Infra struct {
	Access  *access.Registry
	Cache   *cache.RequestCache
	Views   *views.Tracker // optional
	Store   storage.Store  // optional
	Gateway payment.Gateway
	Logger  zerolog.Logger
}

// Services is the set of application services behind the API.
type Services struct {
	Contents    *services.ContentService
	Purchases   *services.PurchaseService
	Media       *services.MediaService
	Comments    *services.CommentService
	Withdrawals *services.WithdrawalService
	Admin       *services.AdminService
}

// NewServices builds every service from db, cfg and the shared components.
func NewServices(db *gorm.DB, cfg config.Config, in Infra) *Services {
	contents := services.NewContentService(db, in.Access, in.Cache)
	contents.Views = in.Views
	contents.Store = in.Store
	contents.Logger = in.Logger

	return &Services{
		Contents: contents,
		Purchases: &services.PurchaseService{
			DB:             db,
			Gateway:        in.Gateway,
			Access:         in.Access,
			KeyID:          cfg.Payment.KeyID,
			KeySecret:      cfg.Payment.KeySecret,
			WebhookSecret:  cfg.Payment.WebhookSecret,
			Currency:       cfg.Payment.Currency,
			FeeRate:        decimal.NewFromFloat(cfg.Payment.FeeRate),
			IdempotencyTTL: cfg.IdempotencyTTL,
			Logger:         in.Logger,
		},
		Media:       services.NewMediaService(in.Access, in.Store, in.Cache, cfg.Storage.SignedURLTTL),
		Comments:    &services.CommentService{DB: db, Access: in.Access},
		Withdrawals: &services.WithdrawalService{DB: db, Logger: in.Logger},
		Admin:       services.NewAdminService(db, in.Cache),
	}
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with secret scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter (per-route overrides for uploads)
//  6. gzip
//  7. Metrics
//  8. Authenticate: resolve the session user when a bearer token is sent
//  9. Idempotency validator (before rate limiter to allow bypass on replay)
//  10. Rate limiter (per user/IP, bypass on replay, webhooks exempt)
//  11. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, svc *Services, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	apiBase := cfg.APIBasePath

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Body size limit: 1 MiB, larger for file uploads
	r.Use(limitBody(defaultBodyLimit, map[string]int64{
		joinPath(apiBase, "/contents/:id/file"): handlers.MaxUploadBytes + 1<<20,
	}))

	// 6) Response compression
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Session verification (anonymous requests pass through)
	r.Use(middleware.Authenticate(middleware.AuthOptions{Secret: []byte(cfg.Auth.JWTSecret)}))

	// 9) Idempotency validation (before rate limiting); only a create-order
	// retry for the same content can be a replay
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
			Scope:  middleware.JSONBodyScope(http.MethodPost, joinPath(apiBase, ordersPath), "content_id"),
		},
		func(ctx context.Context, userID, contentID, key string, now time.Time) (bool, error) {
			return repo.HasIdempotencyKey(ctx, db, userID, contentID, key, now)
		},
	))

	// 10) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP(),
		middleware.WithExemptPrefixes("/health", "/metrics", joinPath(apiBase, webhookPath)),
	)
	r.Use(rl.Handler())

	// 11) CORS posture and security headers
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(handlers.Deps{
		Contents:    svc.Contents,
		Purchases:   svc.Purchases,
		Media:       svc.Media,
		Comments:    svc.Comments,
		Withdrawals: svc.Withdrawals,
		Admin:       svc.Admin,
	})

	api := groupWithPrefix(r, apiBase)
	{
		// Public reads; a session only adds the access flag
		api.GET("/contents", h.ListContents)
		api.GET("/contents/search", h.SearchContents)
		api.GET("/contents/:id", h.GetContent)
		api.GET("/contents/:id/comments", h.ListComments)

		// Gateway webhook, authenticated by its signature
		api.POST("/webhooks/razorpay", h.RazorpayWebhook)
	}

	authed := api.Group("", middleware.RequireUser())
	{
		authed.POST("/contents", h.CreateContent)
		authed.PUT("/contents/:id", h.UpdateContent)
		authed.DELETE("/contents/:id", h.DeleteContent)
		authed.PUT("/contents/:id/file", h.UploadContentFile)
		authed.GET("/contents/:id/access", h.CheckAccess)
		authed.POST("/contents/:id/media-url", h.MediaURL)
		authed.POST("/contents/:id/comments", h.PostComment)
	}

	private := api.Group("", middleware.RequireUser(), middleware.NoStore())
	{
		private.GET("/me/contents", h.ListMyContents)
		private.GET("/me/purchases", h.ListPurchases)

		private.POST(ordersPath, h.CreateOrder)
		private.POST("/payments/verify", h.VerifyPayment)

		private.GET("/withdrawals", h.GetWithdrawals)
		private.POST("/withdrawals", h.PostWithdrawal)
	}

	admin := api.Group("/admin", middleware.RequireUser(), middleware.RequireAdminToken(cfg.Auth.AdminTokenPrefix), middleware.NoStore())
	{
		admin.GET("/dashboard", h.AdminDashboard)
	}
}

// corsMiddleware returns the CORS handlers. With no allowlist every origin
// is accepted without credentials.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	allowHeaders := []string{
		"Origin", "Content-Type", "Accept", "Authorization",
		middleware.HeaderIdempotencyKey, middleware.HeaderRazorpaySignature,
	}
	expose := []string{"X-Request-ID", "Content-Length", "ETag", "Idempotency-Replayed", "Retry-After"}
	methods := []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}

	if len(origins) == 0 {
		return []gin.HandlerFunc{
			// ACAO: * even without an Origin header (health checks, tests).
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(cors.Config{
				AllowAllOrigins:  true,
				AllowMethods:     methods,
				AllowHeaders:     allowHeaders,
				ExposeHeaders:    expose,
				AllowCredentials: false,
				MaxAge:           12 * time.Hour,
			}),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    expose,
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
	}
}

// limitBody caps request bodies with http.MaxBytesReader. Routes listed in
// overrides (by their full Gin path) get their own cap instead of def.
func limitBody(def int64, overrides map[string]int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := def
		if n, ok := overrides[c.FullPath()]; ok {
			limit = n
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

func joinPath(base, p string) string {
	if base == "" || base == "/" {
		return p
	}
	return base + p
}
