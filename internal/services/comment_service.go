package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/monitizeclub/monitize-backend/internal/access"
	"github.com/monitizeclub/monitize-backend/internal/domain"
	"github.com/monitizeclub/monitize-backend/internal/repo"
)

const defaultMaxCommentRunes = 2000

// CommentService lists and creates comments on content. Commenting requires
// access to the content; reading the thread does not.
type CommentService struct {
	DB     *gorm.DB
	Access *access.Registry

	// MaxBodyRunes caps comment length; zero uses the default of 2000.
	MaxBodyRunes int
}

// ListPage returns a page of comments on contentID, oldest first.
func (s *CommentService) ListPage(ctx context.Context, userID, contentID string, page, pageSize int) ([]domain.Comment, int64, error) {
	if _, err := s.content(ctx, userID, contentID); err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	total, err := repo.CountComments(ctx, s.DB, contentID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Comment{}, 0, nil
	}
	items, err := repo.ListCommentsPage(ctx, s.DB, contentID, (page-1)*pageSize, pageSize)
	return items, total, err
}

// Stats returns the comment count and newest update time of contentID, used
// for conditional responses.
func (s *CommentService) Stats(ctx context.Context, contentID string) (int64, *time.Time, error) {
	return repo.CommentsStats(ctx, s.DB, contentID)
}

// Create adds a comment by userID. Only callers with access may comment.
func (s *CommentService) Create(ctx context.Context, userID, contentID, body string) (*domain.Comment, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrUnauthenticated
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: comment is empty", ErrInvalidInput)
	}
	limit := s.MaxBodyRunes
	if limit <= 0 {
		limit = defaultMaxCommentRunes
	}
	if utf8.RuneCountInString(body) > limit {
		return nil, fmt.Errorf("%w: comment too long", ErrInvalidInput)
	}
	c, err := s.content(ctx, userID, contentID)
	if err != nil {
		return nil, err
	}
	if !s.Access.HasAccess(ctx, c, userID) {
		return nil, ErrForbidden
	}
	return repo.CreateComment(ctx, s.DB, c.ID, userID, body)
}

func (s *CommentService) content(ctx context.Context, userID, contentID string) (*domain.Content, error) {
	c, err := s.Access.Load(ctx, contentID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrContentNotFound
		}
		return nil, err
	}
	if c.Status != domain.StatusPublished && !c.OwnedBy(userID) {
		return nil, ErrContentNotFound
	}
	return c, nil
}
