package repo

import (
	"fmt"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/monitizeclub/monitize-backend/internal/domain"
)

// newTestDB opens a private in-memory database named after the test and
// migrates the given models.
func newTestDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seedContent(t *testing.T, db *gorm.DB, id, creator string, status domain.ContentStatus, createdAt time.Time) *domain.Content {
	t.Helper()
	c := &domain.Content{
		ID:          id,
		CreatorID:   creator,
		Title:       "title " + id,
		Price:       dec("10"),
		ContentType: domain.ContentText,
		Body:        "body " + id,
		Status:      status,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("seed content %s: %v", id, err)
	}
	return c
}

func seedTx(t *testing.T, db *gorm.DB, id, contentID, userID, creatorID, paymentID string, status domain.TransactionStatus, amount string) *domain.Transaction {
	t.Helper()
	a := dec(amount)
	fee := a.Mul(dec("0.07")).Round(2)
	tx := &domain.Transaction{
		ID:                id,
		ContentID:         contentID,
		UserID:            userID,
		CreatorID:         creatorID,
		Amount:            a,
		PlatformFee:       fee,
		CreatorEarnings:   a.Sub(fee),
		RazorpayOrderID:   "order_" + id,
		RazorpayPaymentID: paymentID,
		Status:            status,
	}
	if err := db.Create(tx).Error; err != nil {
		t.Fatalf("seed tx %s: %v", id, err)
	}
	return tx
}
