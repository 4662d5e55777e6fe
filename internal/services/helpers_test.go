package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/monitizeclub/monitize-backend/internal/access"
	"github.com/monitizeclub/monitize-backend/internal/domain"
	"github.com/monitizeclub/monitize-backend/internal/payment"
)

// newTestDB opens a private in-memory database with every table migrated.
// A single connection keeps transactions and reads on one SQLite handle.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
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

	if err := db.AutoMigrate(
		&domain.Content{}, &domain.Comment{}, &domain.ContentView{}, &domain.Profile{},
		&domain.Order{}, &domain.Transaction{}, &domain.WithdrawalRequest{}, &domain.Idempotency{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newRegistry(db *gorm.DB) *access.Registry {
	return access.NewRegistry(access.GormBackend{DB: db})
}

func seedContent(t *testing.T, db *gorm.DB, id, creator, price string, status domain.ContentStatus) *domain.Content {
	t.Helper()
	fp := "files/" + id + ".pdf"
	c := &domain.Content{
		ID:          id,
		CreatorID:   creator,
		Title:       "Title " + id,
		Description: "Description of " + id,
		Price:       dec(price),
		ContentType: domain.ContentDocument,
		Body:        "secret body " + id,
		FilePath:    &fp,
		Status:      status,
	}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("seed content: %v", err)
	}
	return c
}

func seedPurchase(t *testing.T, db *gorm.DB, contentID, userID, creatorID, amount string) {
	t.Helper()
	tx := &domain.Transaction{
		ID:                uuid.NewString(),
		ContentID:         contentID,
		UserID:            userID,
		CreatorID:         creatorID,
		Amount:            dec(amount),
		PlatformFee:       decimal.Zero,
		CreatorEarnings:   dec(amount),
		RazorpayOrderID:   "order_" + uuid.NewString()[:8],
		RazorpayPaymentID: "pay_" + uuid.NewString()[:8],
		Status:            domain.TxSuccess,
	}
	if err := db.Create(tx).Error; err != nil {
		t.Fatalf("seed purchase: %v", err)
	}
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

// ----- fake gateway -----

type fakeGateway struct {
	mu    sync.Mutex
	calls []payment.OrderRequest
	err   error
	n     int
}

func (g *fakeGateway) CreateOrder(_ context.Context, req payment.OrderRequest) (*payment.RemoteOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	if g.err != nil {
		return nil, g.err
	}
	g.n++
	return &payment.RemoteOrder{
		ID:       fmt.Sprintf("order_remote_%d", g.n),
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
	}, nil
}

func (g *fakeGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// ----- fake storage -----

type fakeStore struct {
	mu       sync.Mutex
	signs    int
	uploads  map[string]string
	removed  []string
	signErr  error
	uploadOK bool
}

func newFakeStore() *fakeStore { return &fakeStore{uploads: map[string]string{}, uploadOK: true} }

func (s *fakeStore) SignedURL(_ context.Context, p string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.signErr != nil {
		return "", s.signErr
	}
	s.signs++
	return fmt.Sprintf("https://media.test/%s?ttl=%d&n=%d", p, int(ttl.Seconds()), s.signs), nil
}

func (s *fakeStore) Upload(_ context.Context, p string, r io.Reader, _ int64, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.uploadOK {
		return errors.New("upload failed")
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.uploads[p] = string(b)
	return nil
}

func (s *fakeStore) Remove(_ context.Context, p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, p)
	return nil
}
