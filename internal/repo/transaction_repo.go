package repo

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/monitizeclub/monitize-backend/internal/domain"
)

// CreateTransaction inserts t. A second row for the same
// (razorpay_payment_id, user_id) yields ErrDuplicate.
func CreateTransaction(ctx context.Context, db *gorm.DB, t *domain.Transaction) error {
	return normalize(db.WithContext(ctx).Create(t).Error)
}

// GetTransactionByPayment returns the successful, non-deleted transaction
// recorded for a gateway payment and user, or ErrNotFound.
func GetTransactionByPayment(ctx context.Context, db *gorm.DB, paymentID, userID string) (*domain.Transaction, error) {
	var t domain.Transaction
	err := db.WithContext(ctx).
		Where("razorpay_payment_id = ? AND user_id = ? AND status = ? AND is_deleted = ?", paymentID, userID, domain.TxSuccess, false).
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTransactionByOrder returns the successful, non-deleted transaction
// recorded for a gateway order and user, or ErrNotFound.
func GetTransactionByOrder(ctx context.Context, db *gorm.DB, gatewayOrderID, userID string) (*domain.Transaction, error) {
	var t domain.Transaction
	err := db.WithContext(ctx).
		Where("razorpay_order_id = ? AND user_id = ? AND status = ? AND is_deleted = ?", gatewayOrderID, userID, domain.TxSuccess, false).
		Order("created_at asc").
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// HasSuccessfulPurchase reports whether userID holds a successful,
// non-deleted transaction for contentID.
func HasSuccessfulPurchase(ctx context.Context, db *gorm.DB, contentID, userID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("content_id = ? AND user_id = ? AND status = ? AND is_deleted = ?", contentID, userID, domain.TxSuccess, false).
		Limit(1).
		Count(&n).Error
	return n > 0, err
}

// ListPurchases returns the successful, non-deleted transactions of userID,
// newest first.
func ListPurchases(ctx context.Context, db *gorm.DB, userID string) ([]domain.Transaction, error) {
	var out []domain.Transaction
	err := db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND is_deleted = ?", userID, domain.TxSuccess, false).
		Order("created_at desc, id asc").
		Find(&out).Error
	return out, err
}

// CreatorEarnings sums creator_earnings over the creator's successful,
// non-deleted transactions.
func CreatorEarnings(ctx context.Context, db *gorm.DB, creatorID string) (decimal.Decimal, error) {
	return sumDecimal(db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("creator_id = ? AND status = ? AND is_deleted = ?", creatorID, domain.TxSuccess, false),
		"creator_earnings")
}

// sumDecimal evaluates COALESCE(SUM(column), 0) over q.
func sumDecimal(q *gorm.DB, column string) (decimal.Decimal, error) {
	var row struct {
		Total decimal.NullDecimal
	}
	if err := q.Select("COALESCE(SUM(" + column + "), 0) AS total").Scan(&row).Error; err != nil {
		return decimal.Zero, err
	}
	if !row.Total.Valid {
		return decimal.Zero, nil
	}
	return row.Total.Decimal.Round(2), nil
}
