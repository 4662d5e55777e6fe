package access

import (
	"context"

	"gorm.io/gorm"

	"github.com/monitizeclub/monitize-backend/internal/domain"
	"github.com/monitizeclub/monitize-backend/internal/repo"
)

// GormBackend reads contents and purchases through the repo package.
type GormBackend struct {
	DB *gorm.DB
}

// LoadContent implements Backend.
func (b GormBackend) LoadContent(ctx context.Context, contentID string) (*domain.Content, error) {
	return repo.GetContent(ctx, b.DB, contentID)
}

// HasSuccessfulPurchase implements Backend.
func (b GormBackend) HasSuccessfulPurchase(ctx context.Context, contentID, userID string) (bool, error) {
	return repo.HasSuccessfulPurchase(ctx, b.DB, contentID, userID)
}
