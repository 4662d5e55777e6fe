// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database access, payment gateway
// credentials, caching, view tracking, object storage, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/currency"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "monitize-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// AuthConfig holds session verification settings.
type AuthConfig struct {
	JWTSecret        string // JWT_SECRET (HS256 secret of the auth provider)
	AdminTokenPrefix string // ADMIN_TOKEN_PREFIX (bearer prefix required for admin routes)
}

// PaymentConfig holds payment gateway settings.
type PaymentConfig struct {
	KeyID     string        // RAZORPAY_KEY_ID (public, returned to clients)
	KeySecret string        // RAZORPAY_KEY_SECRET (never leaves the server)
	BaseURL   string        // RAZORPAY_BASE_URL
	Timeout   time.Duration // GATEWAY_TIMEOUT
	Currency  string        // CURRENCY (ISO 4217)
	FeeRate   float64       // PLATFORM_FEE_RATE in [0,1)
	// WebhookSecret verifies X-Razorpay-Signature on webhook deliveries.
	WebhookSecret string // RAZORPAY_WEBHOOK_SECRET
}

// ViewsConfig tunes the view tracking queue.
type ViewsConfig struct {
	Throttle      time.Duration // VIEW_THROTTLE
	FlushInterval time.Duration // VIEW_FLUSH_INTERVAL
	BatchSize     int           // VIEW_BATCH_SIZE
}

// StorageConfig describes the private media bucket.
type StorageConfig struct {
	Endpoint     string        // STORAGE_ENDPOINT (empty disables signed URLs)
	AccessKey    string        // STORAGE_ACCESS_KEY
	SecretKey    string        // STORAGE_SECRET_KEY
	Bucket       string        // STORAGE_BUCKET
	Region       string        // STORAGE_REGION
	UseSSL       bool          // STORAGE_USE_SSL
	SignedURLTTL time.Duration // SIGNED_URL_TTL
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Database
	DBDriver    string // sqlite|postgres
	DBPath      string // SQLite path
	DatabaseURL string // Postgres DSN

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Caching
	RequestCacheTTL time.Duration // REQUEST_CACHE_TTL

	Auth    AuthConfig
	Payment PaymentConfig
	Views   ViewsConfig
	Storage StorageConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Database
		DBDriver:    strings.ToLower(getenv("DB_DRIVER", "sqlite")),
		DBPath:      getenv("DB_PATH", "monitize.db"),
		DatabaseURL: getenv("DATABASE_URL", ""),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL:  getdur("IDEMPOTENCY_TTL", 24*time.Hour),
		RequestCacheTTL: getdur("REQUEST_CACHE_TTL", 30*time.Second),

		Auth: AuthConfig{
			JWTSecret:        getenv("JWT_SECRET", ""),
			AdminTokenPrefix: getenv("ADMIN_TOKEN_PREFIX", ""),
		},
		Payment: PaymentConfig{
			KeyID:         getenv("RAZORPAY_KEY_ID", ""),
			KeySecret:     getenv("RAZORPAY_KEY_SECRET", ""),
			BaseURL:       strings.TrimRight(getenv("RAZORPAY_BASE_URL", "https://api.razorpay.com"), "/"),
			Timeout:       getdur("GATEWAY_TIMEOUT", 5*time.Second),
			Currency:      strings.ToUpper(getenv("CURRENCY", "INR")),
			FeeRate:       getfloat("PLATFORM_FEE_RATE", 0.07),
			WebhookSecret: getenv("RAZORPAY_WEBHOOK_SECRET", ""),
		},
		Views: ViewsConfig{
			Throttle:      getdur("VIEW_THROTTLE", 60*time.Minute),
			FlushInterval: getdur("VIEW_FLUSH_INTERVAL", 2*time.Minute),
			BatchSize:     getint("VIEW_BATCH_SIZE", 50),
		},
		Storage: StorageConfig{
			Endpoint:     getenv("STORAGE_ENDPOINT", ""),
			AccessKey:    getenv("STORAGE_ACCESS_KEY", ""),
			SecretKey:    getenv("STORAGE_SECRET_KEY", ""),
			Bucket:       getenv("STORAGE_BUCKET", "content-files"),
			Region:       getenv("STORAGE_REGION", "us-east-1"),
			UseSSL:       getbool("STORAGE_USE_SSL", true),
			SignedURLTTL: getdur("SIGNED_URL_TTL", time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "monitize-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DBDriver == "postgresql" || cfg.DBDriver == "pg" {
		cfg.DBDriver = "postgres"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DBDriver {
	case "sqlite":
		if strings.TrimSpace(cfg.DBPath) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return cfg, errors.New("DATABASE_URL must be set when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.RequestCacheTTL < 0 {
		return cfg, errors.New("REQUEST_CACHE_TTL must be >= 0")
	}
	if cfg.Payment.Timeout <= 0 {
		return cfg, errors.New("GATEWAY_TIMEOUT must be > 0")
	}
	if cfg.Payment.FeeRate < 0 || cfg.Payment.FeeRate >= 1 {
		return cfg, errors.New("PLATFORM_FEE_RATE must be in [0,1)")
	}
	if _, err := currency.ParseISO(cfg.Payment.Currency); err != nil {
		return cfg, errors.New("CURRENCY must be a valid ISO 4217 code")
	}
	if cfg.Views.Throttle < 0 {
		return cfg, errors.New("VIEW_THROTTLE must be >= 0")
	}
	if cfg.Views.FlushInterval <= 0 {
		return cfg, errors.New("VIEW_FLUSH_INTERVAL must be > 0")
	}
	if cfg.Views.BatchSize < 1 {
		return cfg, errors.New("VIEW_BATCH_SIZE must be >= 1")
	}
	if cfg.Storage.SignedURLTTL <= 0 {
		return cfg, errors.New("SIGNED_URL_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
