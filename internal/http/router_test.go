package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/monitizeclub/monitize-backend/internal/access"
	"github.com/monitizeclub/monitize-backend/internal/cache"
	"github.com/monitizeclub/monitize-backend/internal/config"
	"github.com/monitizeclub/monitize-backend/internal/domain"
	"github.com/monitizeclub/monitize-backend/internal/http/middleware"
	"github.com/monitizeclub/monitize-backend/internal/payment"
	"github.com/monitizeclub/monitize-backend/internal/repo"
)

const (
	testJWTSecret     = "router-test-secret"
	testKeySecret     = "rzp-key-secret"
	testWebhookSecret = "rzp-webhook-secret"
)

func init() { gin.SetMode(gin.TestMode) }

// --- fake gateway ---
type fakeGateway struct {
	mu sync.Mutex
	n  int
}

func (g *fakeGateway) CreateOrder(_ context.Context, req payment.OrderRequest) (*payment.RemoteOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return &payment.RemoteOrder{
		ID:       fmt.Sprintf("order_fake_%d", g.n),
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
	}, nil
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath:    "/api/v1",
		RateRPS:        1000,
		RateBurst:      1000,
		IdempotencyTTL: time.Hour,
		Auth:           config.AuthConfig{JWTSecret: testJWTSecret},
		Payment: config.PaymentConfig{
			KeyID:         "rzp_test_key",
			KeySecret:     testKeySecret,
			Currency:      "INR",
			FeeRate:       0.07,
			WebhookSecret: testWebhookSecret,
		},
		Storage: config.StorageConfig{SignedURLTTL: time.Hour},
		OTEL:    config.OTELConfig{ServiceName: "test-svc"},
	}
}

type testServer struct {
	r  *gin.Engine
	db *gorm.DB
	gw *fakeGateway
}

func newTestServer(t *testing.T, cfg config.Config) *testServer {
	t.Helper()
	db := newTestDB(t)
	gw := &fakeGateway{}
	svc := NewServices(db, cfg, Infra{
		Access:  access.NewRegistry(access.GormBackend{DB: db}),
		Cache:   cache.New(0),
		Gateway: gw,
		Logger:  zerolog.Nop(),
	})
	r := gin.New()
	RegisterRoutes(r, db, svc, cfg)
	return &testServer{r: r, db: db, gw: gw}
}

func token(t *testing.T, sub string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: sub, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func (s *testServer) do(t *testing.T, method, path, user string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, user))
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := s.do(t, http.MethodGet, "/health", "", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}

	w = s.do(t, http.MethodGet, "/metrics", "", nil, nil)
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	w = s.do(t, http.MethodGet, "/nope", "", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}

	w = s.do(t, http.MethodPost, "/health", "", nil, nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := testConfig()
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"https://monitize.club"}}
	s := newTestServer(t, cfg)

	w := s.do(t, http.MethodGet, "/health", "", nil, map[string]string{"Origin": "https://monitize.club"})
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://monitize.club" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}

	w = s.do(t, http.MethodGet, "/health", "", nil, map[string]string{"Origin": "https://evil.example"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected ACAO for foreign origin: %q", got)
	}
}

func TestRegisterRoutes_AuthGates(t *testing.T) {
	s := newTestServer(t, testConfig())

	// Anonymous reads are allowed.
	if w := s.do(t, http.MethodGet, "/api/v1/contents", "", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("GET /contents anonymous = %d", w.Code)
	}

	// Writes and private reads need a session.
	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/v1/contents"},
		{http.MethodGet, "/api/v1/me/purchases"},
		{http.MethodPost, "/api/v1/payments/orders"},
		{http.MethodGet, "/api/v1/withdrawals"},
		{http.MethodGet, "/api/v1/admin/dashboard"},
	} {
		w := s.do(t, tc.method, tc.path, "", map[string]string{}, nil)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s anonymous = %d, want 401", tc.method, tc.path, w.Code)
		}
	}

	// A forged token is rejected even on public routes.
	w := s.do(t, http.MethodGet, "/api/v1/contents", "", nil, map[string]string{"Authorization": "Bearer not-a-jwt"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("forged token = %d, want 401", w.Code)
	}

	// Private responses are uncacheable.
	w = s.do(t, http.MethodGet, "/api/v1/me/purchases", "buyer", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /me/purchases = %d", w.Code)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "no-store" {
		t.Fatalf("Cache-Control = %q", cc)
	}
}

func TestRegisterRoutes_AdminDashboard(t *testing.T) {
	s := newTestServer(t, testConfig())
	if err := s.db.Create(&domain.Profile{ID: "root", IsAdmin: true}).Error; err != nil {
		t.Fatalf("seed admin: %v", err)
	}

	if w := s.do(t, http.MethodGet, "/api/v1/admin/dashboard", "someone", nil, nil); w.Code != http.StatusForbidden {
		t.Fatalf("non-admin = %d, want 403", w.Code)
	}
	w := s.do(t, http.MethodGet, "/api/v1/admin/dashboard", "root", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("admin = %d body=%s", w.Code, w.Body.String())
	}
	var d repo.Dashboard
	decode(t, w, &d)
	if d.Users != 1 {
		t.Fatalf("users = %d", d.Users)
	}
}

func TestRegisterRoutes_WebhookRejectsBadSignature(t *testing.T) {
	s := newTestServer(t, testConfig())
	w := s.do(t, http.MethodPost, "/api/v1/webhooks/razorpay", "", map[string]any{"event": "payment.captured"},
		map[string]string{middleware.HeaderRazorpaySignature: "deadbeef"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("webhook = %d, want 400", w.Code)
	}
	var er struct{ Code string }
	decode(t, w, &er)
	if er.Code != "signature_invalid" {
		t.Fatalf("code = %q", er.Code)
	}
}

// TestPurchaseFlow_EndToEnd drives a creator publishing, a buyer paying
// and unlocking the content, and the creator seeing the earnings.
func TestPurchaseFlow_EndToEnd(t *testing.T) {
	s := newTestServer(t, testConfig())
	const creator, buyer = "creator-1", "buyer-1"

	// Creator publishes a paid text post.
	w := s.do(t, http.MethodPost, "/api/v1/contents", creator, map[string]any{
		"title":        "Week 12 notes",
		"price":        "499.00",
		"content_type": "text",
		"body":         "the secret setup",
		"status":       "published",
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d body=%s", w.Code, w.Body.String())
	}
	var created domain.Content
	decode(t, w, &created)
	base := "/api/v1/contents/" + created.ID

	// Buyer sees it without the body.
	w = s.do(t, http.MethodGet, base, buyer, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get = %d", w.Code)
	}
	var detail struct {
		Body      string `json:"body"`
		HasAccess bool   `json:"has_access"`
	}
	decode(t, w, &detail)
	if detail.HasAccess || detail.Body != "" {
		t.Fatalf("locked detail leaked: %+v", detail)
	}

	// Commenting requires access.
	if w = s.do(t, http.MethodPost, base+"/comments", buyer, map[string]string{"body": "hi"}, nil); w.Code != http.StatusForbidden {
		t.Fatalf("comment before purchase = %d, want 403", w.Code)
	}

	// Order with an idempotency key, then replay it.
	idem := map[string]string{middleware.HeaderIdempotencyKey: "order-key-1"}
	w = s.do(t, http.MethodPost, "/api/v1/payments/orders", buyer, map[string]string{"content_id": created.ID}, idem)
	if w.Code != http.StatusCreated {
		t.Fatalf("order = %d body=%s", w.Code, w.Body.String())
	}
	var order struct {
		OrderID        string `json:"order_id"`
		GatewayOrderID string `json:"razorpay_order_id"`
		AmountMinor    int64  `json:"amount_minor"`
		KeyID          string `json:"key_id"`
	}
	decode(t, w, &order)
	if order.AmountMinor != 49900 || order.KeyID != "rzp_test_key" {
		t.Fatalf("unexpected order: %+v", order)
	}

	w = s.do(t, http.MethodPost, "/api/v1/payments/orders", buyer, map[string]string{"content_id": created.ID}, idem)
	if w.Code != http.StatusOK || w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay = %d hdr=%q", w.Code, w.Header().Get("Idempotency-Replayed"))
	}
	var replay struct {
		OrderID string `json:"order_id"`
	}
	decode(t, w, &replay)
	if replay.OrderID != order.OrderID || s.gw.calls() != 1 {
		t.Fatalf("replay opened a new order: %s vs %s (calls=%d)", replay.OrderID, order.OrderID, s.gw.calls())
	}

	// A tampered signature records nothing.
	verify := map[string]string{
		"razorpay_order_id":   order.GatewayOrderID,
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  "tampered",
	}
	if w = s.do(t, http.MethodPost, "/api/v1/payments/verify", buyer, verify, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("tampered verify = %d, want 400", w.Code)
	}

	verify["razorpay_signature"] = payment.Sign(testKeySecret, order.GatewayOrderID, "pay_1")
	w = s.do(t, http.MethodPost, "/api/v1/payments/verify", buyer, verify, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("verify = %d body=%s", w.Code, w.Body.String())
	}
	w = s.do(t, http.MethodPost, "/api/v1/payments/verify", buyer, verify, nil)
	var again struct {
		AlreadyRecorded bool `json:"already_recorded"`
	}
	decode(t, w, &again)
	if w.Code != http.StatusOK || !again.AlreadyRecorded {
		t.Fatalf("second verify = %d %+v", w.Code, again)
	}

	// Access is granted and the purchase is listed once.
	w = s.do(t, http.MethodGet, base+"/access", buyer, nil, nil)
	var acc struct {
		HasAccess bool `json:"has_access"`
	}
	decode(t, w, &acc)
	if !acc.HasAccess {
		t.Fatalf("access not granted after payment")
	}
	w = s.do(t, http.MethodGet, "/api/v1/me/purchases", buyer, nil, nil)
	var purchases struct {
		Purchases []domain.Transaction `json:"purchases"`
	}
	decode(t, w, &purchases)
	if len(purchases.Purchases) != 1 {
		t.Fatalf("purchases = %d", len(purchases.Purchases))
	}

	// Buying again is refused.
	w = s.do(t, http.MethodPost, "/api/v1/payments/orders", buyer, map[string]string{"content_id": created.ID}, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("second purchase = %d, want 409", w.Code)
	}

	// Comments now work, and the list honors its ETag.
	if w = s.do(t, http.MethodPost, base+"/comments", buyer, map[string]string{"body": "  worth it  "}, nil); w.Code != http.StatusCreated {
		t.Fatalf("comment = %d body=%s", w.Code, w.Body.String())
	}
	w = s.do(t, http.MethodGet, base+"/comments", buyer, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list comments = %d", w.Code)
	}
	etag := w.Header().Get("ETag")
	if !strings.HasPrefix(etag, `W/"comments:`) {
		t.Fatalf("etag = %q", etag)
	}
	if w = s.do(t, http.MethodGet, base+"/comments", buyer, nil, map[string]string{"If-None-Match": etag}); w.Code != http.StatusNotModified {
		t.Fatalf("conditional list = %d, want 304", w.Code)
	}

	// The creator's balance reflects the fee split.
	w = s.do(t, http.MethodGet, "/api/v1/withdrawals", creator, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("withdrawals = %d", w.Code)
	}
	var ov struct {
		Balance struct {
			Earnings  decimal.Decimal `json:"earnings"`
			Available decimal.Decimal `json:"available"`
		} `json:"balance"`
	}
	decode(t, w, &ov)
	want := decimal.RequireFromString("464.07")
	if !ov.Balance.Earnings.Equal(want) || !ov.Balance.Available.Equal(want) {
		t.Fatalf("balance = %+v", ov.Balance)
	}

	w = s.do(t, http.MethodPost, "/api/v1/withdrawals", creator, map[string]string{"amount": "500", "upi_id": "creator@upi"}, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("overdraw = %d, want 409", w.Code)
	}
	w = s.do(t, http.MethodPost, "/api/v1/withdrawals", creator, map[string]string{"amount": "400", "upi_id": "creator@upi"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("withdraw = %d body=%s", w.Code, w.Body.String())
	}
}

func TestRateLimit_IdempotencyBypassOnlyForOrderReplay(t *testing.T) {
	cfg := testConfig()
	cfg.RateRPS, cfg.RateBurst = 0.001, 1
	s := newTestServer(t, cfg)
	const buyer = "buyer-rl"

	for _, id := range []string{"c-rl-1", "c-rl-2"} {
		c := &domain.Content{ID: id, CreatorID: "creator-rl", Title: id, Price: decimal.RequireFromString("100"),
			ContentType: domain.ContentText, Status: domain.StatusPublished}
		if err := s.db.Create(c).Error; err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}

	idem := map[string]string{middleware.HeaderIdempotencyKey: "k1"}
	if w := s.do(t, http.MethodPost, "/api/v1/payments/orders", buyer, map[string]string{"content_id": "c-rl-1"}, idem); w.Code != http.StatusCreated {
		t.Fatalf("order = %d body=%s", w.Code, w.Body.String())
	}

	// The bucket is empty now; only a replay of that order passes.
	if w := s.do(t, http.MethodPost, "/api/v1/payments/orders", buyer, map[string]string{"content_id": "c-rl-1"}, idem); w.Code != http.StatusOK {
		t.Fatalf("replay = %d body=%s", w.Code, w.Body.String())
	}

	limited := 0
	for i := 0; i < 10; i++ {
		if w := s.do(t, http.MethodGet, "/api/v1/me/purchases", buyer, nil, idem); w.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	if limited != 10 {
		t.Fatalf("reused key on an unrelated route: %d/10 limited", limited)
	}

	if w := s.do(t, http.MethodPost, "/api/v1/payments/orders", buyer, map[string]string{"content_id": "c-rl-2"}, idem); w.Code != http.StatusTooManyRequests {
		t.Fatalf("reused key on another content = %d, want 429", w.Code)
	}
	if s.gw.calls() != 1 {
		t.Fatalf("gateway calls = %d, want 1", s.gw.calls())
	}
}

func Test_limitBody_Overrides(t *testing.T) {
	r := gin.New()
	r.Use(limitBody(10, map[string]int64{"/big": 100}))
	read := func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	}
	r.POST("/small", read)
	r.POST("/big", read)

	payload := strings.Repeat("x", 50)
	for path, want := range map[string]int{"/small": http.StatusRequestEntityTooLarge, "/big": http.StatusOK} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, strings.NewReader(payload)))
		if w.Code != want {
			t.Fatalf("POST %s = %d, want %d", path, w.Code, want)
		}
	}
}

func Test_groupWithPrefix_joinPath(t *testing.T) {
	r := gin.New()
	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, body := range map[string]string{"/one": "one", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != body {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}

	if got := joinPath("/", "/webhooks/"); got != "/webhooks/" {
		t.Fatalf("joinPath root = %q", got)
	}
	if got := joinPath("/api/v1", "/webhooks/"); got != "/api/v1/webhooks/" {
		t.Fatalf("joinPath = %q", got)
	}
}
