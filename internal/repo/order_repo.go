package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/monitizeclub/monitize-backend/internal/domain"
)

// CreateOrder inserts o. A reused gateway order ID maps to ErrDuplicate.
func CreateOrder(ctx context.Context, db *gorm.DB, o *domain.Order) error {
	return normalize(db.WithContext(ctx).Create(o).Error)
}

// GetOrder fetches an order by its internal ID.
func GetOrder(ctx context.Context, db *gorm.DB, id string) (*domain.Order, error) {
	var o domain.Order
	if err := db.WithContext(ctx).Where("id = ?", id).First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

// GetOrderByGatewayID fetches the order created for a remote gateway order.
func GetOrderByGatewayID(ctx context.Context, db *gorm.DB, gatewayOrderID string) (*domain.Order, error) {
	var o domain.Order
	if err := db.WithContext(ctx).Where("razorpay_order_id = ?", gatewayOrderID).First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

// MarkOrderPaid moves an order to paid. Marking an already paid order is a
// no-op and not an error.
func MarkOrderPaid(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": domain.OrderPaid, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
