package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/monitizeclub/monitize-backend/internal/domain"
)

// GetProfile fetches the profile of userID or ErrNotFound.
func GetProfile(ctx context.Context, db *gorm.DB, userID string) (*domain.Profile, error) {
	var p domain.Profile
	if err := db.WithContext(ctx).Where("id = ?", userID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// PayoutDetails is the subset of a profile saved alongside withdrawals.
type PayoutDetails struct {
	UPIID             string `json:"upi_id"`
	BankAccountName   string `json:"bank_account_name"`
	BankAccountNumber string `json:"bank_account_number"`
	BankIFSC          string `json:"bank_ifsc"`
}

// SavePayoutDetails upserts the payout fields of userID's profile, creating
// the profile row when missing.
func SavePayoutDetails(ctx context.Context, db *gorm.DB, userID string, d PayoutDetails) error {
	now := time.Now().UTC()
	p := &domain.Profile{
		ID:                userID,
		UPIID:             d.UPIID,
		BankAccountName:   d.BankAccountName,
		BankAccountNumber: d.BankAccountNumber,
		BankIFSC:          d.BankIFSC,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"upi_id", "bank_account_name", "bank_account_number", "bank_ifsc", "updated_at"}),
	}).Create(p).Error
}

// IsAdmin reports whether userID's profile carries the admin flag. A missing
// profile is not an admin.
func IsAdmin(ctx context.Context, db *gorm.DB, userID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Profile{}).
		Where("id = ? AND is_admin = ?", userID, true).
		Count(&n).Error
	return n > 0, err
}

// LockProfile makes sure userID has a profile row and locks it FOR UPDATE
// until db's transaction ends. It serializes per-user read-then-write
// sequences such as withdrawals. SQLite has no row locks and relies on its
// single writer instead.
func LockProfile(ctx context.Context, db *gorm.DB, userID string) (*domain.Profile, error) {
	now := time.Now().UTC()
	seed := &domain.Profile{ID: userID, CreatedAt: now, UpdatedAt: now}
	if err := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(seed).Error; err != nil {
		return nil, err
	}
	var p domain.Profile
	if err := profileForUpdate(db.WithContext(ctx), userID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func profileForUpdate(db *gorm.DB, userID string) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", userID)
}
