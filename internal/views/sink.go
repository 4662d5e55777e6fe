package views

import (
	"context"

	"gorm.io/gorm"

	"github.com/monitizeclub/monitize-backend/internal/domain"
	"github.com/monitizeclub/monitize-backend/internal/repo"
)

// GormSink writes view batches to the content_views table.
type GormSink struct {
	DB *gorm.DB
}

// InsertViews implements Sink.
func (s GormSink) InsertViews(ctx context.Context, rows []domain.ContentView) error {
	return repo.InsertViews(ctx, s.DB, rows)
}
