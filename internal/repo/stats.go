// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer and for the admin
// dashboard.
package repo

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/monitizeclub/monitize-backend/internal/domain"
)

// PublishedStats returns the number of published contents and the greatest
// UpdatedAt among them. When nothing is published, maxUpdatedAt is nil.
func PublishedStats(ctx context.Context, db *gorm.DB) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Content{}).Where("status = ?", domain.StatusPublished)
	return countAndLatest(q)
}

// CommentsStats returns aggregate metadata for the comments of contentID:
// the row count and the greatest UpdatedAt, or nil when there are none.
func CommentsStats(ctx context.Context, db *gorm.DB, contentID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Comment{}).Where("content_id = ?", contentID)
	return countAndLatest(q)
}

func countAndLatest(q *gorm.DB) (int64, *time.Time, error) {
	var count int64
	if err := q.Session(&gorm.Session{}).Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Read the newest row instead of MAX(), which comes back as TEXT in SQLite.
	var row struct {
		UpdatedAt time.Time
	}
	if err := q.Session(&gorm.Session{}).Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// Dashboard is the platform-wide aggregate shown to administrators.
type Dashboard struct {
	Users              int64           `json:"users"`
	Creators           int64           `json:"creators"`
	Contents           int64           `json:"contents"`
	PublishedContents  int64           `json:"published_contents"`
	Transactions       int64           `json:"transactions"`
	GrossVolume        decimal.Decimal `json:"gross_volume"`
	PlatformRevenue    decimal.Decimal `json:"platform_revenue"`
	CreatorEarnings    decimal.Decimal `json:"creator_earnings"`
	PendingWithdrawals int64           `json:"pending_withdrawals"`
	Views              int64           `json:"views"`
}

// DashboardStats computes the admin dashboard aggregates in one read-only
// transaction.
func DashboardStats(ctx context.Context, db *gorm.DB) (*Dashboard, error) {
	out := &Dashboard{}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Profile{}).Count(&out.Users).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.Content{}).Distinct("creator_id").Count(&out.Creators).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.Content{}).Count(&out.Contents).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.Content{}).Where("status = ?", domain.StatusPublished).Count(&out.PublishedContents).Error; err != nil {
			return err
		}

		success := func() *gorm.DB {
			return tx.Model(&domain.Transaction{}).Where("status = ? AND is_deleted = ?", domain.TxSuccess, false)
		}
		if err := success().Count(&out.Transactions).Error; err != nil {
			return err
		}
		var err error
		if out.GrossVolume, err = sumDecimal(success(), "amount"); err != nil {
			return err
		}
		if out.PlatformRevenue, err = sumDecimal(success(), "platform_fee"); err != nil {
			return err
		}
		if out.CreatorEarnings, err = sumDecimal(success(), "creator_earnings"); err != nil {
			return err
		}

		if err := tx.Model(&domain.WithdrawalRequest{}).Where("status = ?", domain.WithdrawalPending).Count(&out.PendingWithdrawals).Error; err != nil {
			return err
		}
		return tx.Model(&domain.ContentView{}).Count(&out.Views).Error
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
