package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/monitizeclub/monitize-backend/internal/domain"
)

// CreateComment inserts a comment by userID on contentID.
func CreateComment(ctx context.Context, db *gorm.DB, contentID, userID, body string) (*domain.Comment, error) {
	now := time.Now().UTC()
	c := &domain.Comment{
		ID:        uuid.NewString(),
		ContentID: contentID,
		UserID:    userID,
		Body:      body,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// CountComments returns the number of comments on contentID.
func CountComments(ctx context.Context, db *gorm.DB, contentID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Comment{}).
		Where("content_id = ?", contentID).
		Count(&total).Error
	return total, err
}

// ListCommentsPage returns comments on contentID in chronological order
// (CreatedAt ASC, ID ASC).
func ListCommentsPage(ctx context.Context, db *gorm.DB, contentID string, offset, limit int) ([]domain.Comment, error) {
	var out []domain.Comment
	err := db.WithContext(ctx).
		Where("content_id = ?", contentID).
		Order("created_at asc, id asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
