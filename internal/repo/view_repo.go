package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/monitizeclub/monitize-backend/internal/domain"
)

// InsertViews writes all rows with a single multi-row INSERT.
func InsertViews(ctx context.Context, db *gorm.DB, rows []domain.ContentView) error {
	if len(rows) == 0 {
		return nil
	}
	return db.WithContext(ctx).CreateInBatches(&rows, len(rows)).Error
}

// CountViews returns the number of recorded views of contentID.
func CountViews(ctx context.Context, db *gorm.DB, contentID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.ContentView{}).
		Where("content_id = ?", contentID).
		Count(&total).Error
	return total, err
}
