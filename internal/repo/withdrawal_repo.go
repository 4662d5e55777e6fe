package repo

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/monitizeclub/monitize-backend/internal/domain"
)

// CreateWithdrawal inserts w.
func CreateWithdrawal(ctx context.Context, db *gorm.DB, w *domain.WithdrawalRequest) error {
	return db.WithContext(ctx).Create(w).Error
}

// ListWithdrawals returns creatorID's withdrawal requests, newest first.
func ListWithdrawals(ctx context.Context, db *gorm.DB, creatorID string) ([]domain.WithdrawalRequest, error) {
	var out []domain.WithdrawalRequest
	err := db.WithContext(ctx).
		Where("creator_id = ?", creatorID).
		Order("created_at desc, id asc").
		Find(&out).Error
	return out, err
}

// CommittedWithdrawals sums every withdrawal of creatorID that has not been
// rejected; these amounts are no longer available for a new request.
func CommittedWithdrawals(ctx context.Context, db *gorm.DB, creatorID string) (decimal.Decimal, error) {
	return sumDecimal(db.WithContext(ctx).
		Model(&domain.WithdrawalRequest{}).
		Where("creator_id = ? AND status <> ?", creatorID, domain.WithdrawalRejected),
		"amount")
}
