// Package services – ContentService
//
// ContentService owns the lifecycle of creator content: create, update,
// delete, scheduled publishing, file upload, listing and search. Every write
// drops the affected entries from the access registry and the request cache
// so readers never see a stale record after the creator's change returns.
//
// Reads go through the access registry (single records) or the request
// cache (lists and the search index). The gated payload (body, file path) is
// only returned to callers with access.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/monitizeclub/monitize-backend/internal/access"
	"github.com/monitizeclub/monitize-backend/internal/cache"
	"github.com/monitizeclub/monitize-backend/internal/domain"
	"github.com/monitizeclub/monitize-backend/internal/repo"
	"github.com/monitizeclub/monitize-backend/internal/search"
	"github.com/monitizeclub/monitize-backend/internal/storage"
	"github.com/monitizeclub/monitize-backend/internal/views"
)

// Request cache tags owned by ContentService.
const (
	tagPublished   = "published_contents"
	tagSearchIndex = "search_index"
)

const (
	maxTitleRunes  = 255
	maxSearchHits  = 20
	maxIndexedDocs = 5000
	snippetRunes   = 160
)

// searchStopwords never count towards a match.
var searchStopwords = []string{
	"a", "an", "and", "are", "as", "at", "be", "by", "for", "from", "how", "in",
	"is", "it", "of", "on", "or", "the", "to", "with",
}

// ContentInput carries the fields of a create or update request. Nil fields
// are left unchanged on update.
type ContentInput struct {
	Title       *string
	Description *string
	Price       *decimal.Decimal
	ContentType *domain.ContentType
	Body        *string
	FilePath    *string
	Status      *domain.ContentStatus
	ScheduledAt *time.Time
}

// ContentDetail is a content as seen by one caller.
type ContentDetail struct {
	domain.Content
	HasAccess bool `json:"has_access"`
}

// SearchHit is one search result.
type SearchHit struct {
	Content domain.Content `json:"content"`
	Score   float64        `json:"score"`
	Snippet string         `json:"snippet"`
}

type pageArgs struct {
	Page     int
	PageSize int
}

type contentPage struct {
	Items []domain.Content
	Total int64
}

type searchSnapshot struct {
	index    search.Index
	contents map[string]domain.Content
}

// ContentService coordinates content persistence with the read caches.
type ContentService struct {
	DB     *gorm.DB
	Access *access.Registry
	Cache  *cache.RequestCache

	// Views records detail reads. Optional.
	Views *views.Tracker
	// Store holds uploaded files. Optional; uploads fail without it.
	Store storage.Store

	Logger zerolog.Logger
	Now    func() time.Time
	// MaxIndexedDocs caps the search index to the newest published
	// contents; <= 0 means 5000.
	MaxIndexedDocs int

	listPublished func(context.Context, pageArgs) (*contentPage, error)
	searchIndex   func(context.Context, struct{}) (*searchSnapshot, error)
}

// NewContentService wires a ContentService. A nil rc gets a cache that only
// de-duplicates concurrent reads.
func NewContentService(db *gorm.DB, reg *access.Registry, rc *cache.RequestCache) *ContentService {
	if rc == nil {
		rc = cache.New(0)
	}
	s := &ContentService{
		DB:     db,
		Access: reg,
		Cache:  rc,
		Logger: zerolog.Nop(),
		Now:    time.Now,
	}
	s.listPublished = cache.Wrap(rc, tagPublished, s.loadPublishedPage)
	s.searchIndex = cache.Wrap(rc, tagSearchIndex, s.buildSearchIndex)
	return s
}

func (s *ContentService) tracer() trace.Tracer { return otel.Tracer("services/ContentService") }

// Create stores a new content owned by userID.
func (s *ContentService) Create(ctx context.Context, userID string, in ContentInput) (*domain.Content, error) {
	ctx, span := s.tracer().Start(ctx, "Create", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return nil, ErrUnauthenticated
	}
	c := &domain.Content{
		ID:          uuid.NewString(),
		CreatorID:   userID,
		Price:       decimal.Zero,
		ContentType: domain.ContentText,
		Status:      domain.StatusDraft,
	}
	if err := applyInput(c, in); err != nil {
		return nil, err
	}
	if err := validateContent(c); err != nil {
		return nil, err
	}
	if err := repo.CreateContent(ctx, s.DB, c); err != nil {
		return nil, err
	}
	s.invalidate(c.ID)
	return c, nil
}

// Update applies in to the content. Only the creator may update it.
func (s *ContentService) Update(ctx context.Context, userID, contentID string, in ContentInput) (*domain.Content, error) {
	ctx, span := s.tracer().Start(ctx, "Update", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("content.id", contentID),
	))
	defer span.End()

	c, err := s.owned(ctx, userID, contentID)
	if err != nil {
		return nil, err
	}
	if err := applyInput(c, in); err != nil {
		return nil, err
	}
	if err := validateContent(c); err != nil {
		return nil, err
	}

	updates := map[string]any{
		"title":        c.Title,
		"description":  c.Description,
		"price":        c.Price,
		"content_type": c.ContentType,
		"body":         c.Body,
		"file_path":    c.FilePath,
		"status":       c.Status,
		"scheduled_at": c.ScheduledAt,
	}
	if err := repo.UpdateContent(ctx, s.DB, c.ID, userID, updates); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrContentNotFound
		}
		return nil, err
	}
	s.invalidate(c.ID)
	return repo.GetContent(ctx, s.DB, c.ID)
}

// Delete soft-deletes the content. Only the creator may delete it.
func (s *ContentService) Delete(ctx context.Context, userID, contentID string) error {
	if _, err := s.owned(ctx, userID, contentID); err != nil {
		return err
	}
	if err := repo.DeleteContent(ctx, s.DB, contentID, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrContentNotFound
		}
		return err
	}
	s.invalidate(contentID)
	return nil
}

// owned loads the content fresh from the database and checks ownership.
func (s *ContentService) owned(ctx context.Context, userID, contentID string) (*domain.Content, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrUnauthenticated
	}
	c, err := repo.GetContent(ctx, s.DB, contentID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrContentNotFound
		}
		return nil, err
	}
	if !c.OwnedBy(userID) {
		return nil, ErrForbidden
	}
	return c, nil
}

// Get returns the content as seen by userID ("" for anonymous). Drafts and
// scheduled contents are only visible to their creator. Callers without
// access receive the record without its body and file path. Views by anyone
// but the creator are tracked.
func (s *ContentService) Get(ctx context.Context, userID, contentID string) (*ContentDetail, error) {
	ctx, span := s.tracer().Start(ctx, "Get", trace.WithAttributes(attribute.String("content.id", contentID)))
	defer span.End()

	c, err := s.visible(ctx, userID, contentID)
	if err != nil {
		return nil, err
	}
	ok := s.Access.HasAccess(ctx, c, userID)
	out := &ContentDetail{Content: *c, HasAccess: ok}
	if !ok {
		out.Content = c.Redacted()
	}
	if s.Views != nil && !c.OwnedBy(userID) {
		s.Views.Track(c.ID, userID)
	}
	return out, nil
}

// CheckAccess reports whether userID may open the content.
func (s *ContentService) CheckAccess(ctx context.Context, userID, contentID string) (bool, error) {
	if strings.TrimSpace(userID) == "" {
		return false, ErrUnauthenticated
	}
	c, err := s.visible(ctx, userID, contentID)
	if err != nil {
		return false, err
	}
	return s.Access.HasAccess(ctx, c, userID), nil
}

// visible loads the content through the registry and hides unpublished
// contents from everyone but the creator.
func (s *ContentService) visible(ctx context.Context, userID, contentID string) (*domain.Content, error) {
	if strings.TrimSpace(contentID) == "" {
		return nil, ErrContentNotFound
	}
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

// ListPublished returns a page of published contents, newest first, without
// their gated payload.
func (s *ContentService) ListPublished(ctx context.Context, page, pageSize int) ([]domain.Content, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	p, err := s.listPublished(ctx, pageArgs{Page: page, PageSize: pageSize})
	if err != nil {
		return nil, 0, err
	}
	return p.Items, p.Total, nil
}

// PublishedStats returns the published count and newest update time, used to
// build list ETags.
func (s *ContentService) PublishedStats(ctx context.Context) (int64, *time.Time, error) {
	return repo.PublishedStats(ctx, s.DB)
}

func (s *ContentService) loadPublishedPage(ctx context.Context, a pageArgs) (*contentPage, error) {
	total, err := repo.CountPublished(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return &contentPage{Items: []domain.Content{}}, nil
	}
	items, err := repo.ListPublishedPage(ctx, s.DB, (a.Page-1)*a.PageSize, a.PageSize)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Content, len(items))
	for i := range items {
		out[i] = items[i].Redacted()
	}
	return &contentPage{Items: out, Total: total}, nil
}

// ListByCreator returns all contents of the caller in any status, including
// their payload.
func (s *ContentService) ListByCreator(ctx context.Context, userID string) ([]domain.Content, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrUnauthenticated
	}
	items, err := repo.ListByCreator(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Content{}
	}
	return items, nil
}

// Search ranks published contents by title and description.
func (s *ContentService) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	ctx, span := s.tracer().Start(ctx, "Search", trace.WithAttributes(attribute.String("query", query)))
	defer span.End()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrInvalidInput
	}
	if limit <= 0 || limit > maxSearchHits {
		limit = maxSearchHits
	}
	snap, err := s.searchIndex(ctx, struct{}{})
	if err != nil {
		return nil, err
	}
	results := snap.index.TopK(query, limit)
	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		c, ok := snap.contents[r.ID]
		if !ok {
			continue
		}
		hits = append(hits, SearchHit{Content: c, Score: r.Score, Snippet: r.Snippet})
	}
	return hits, nil
}

func (s *ContentService) buildSearchIndex(ctx context.Context, _ struct{}) (*searchSnapshot, error) {
	limit := s.MaxIndexedDocs
	if limit <= 0 {
		limit = maxIndexedDocs
	}
	items, err := repo.ListPublished(ctx, s.DB, limit)
	if err != nil {
		return nil, err
	}
	docs := make([]search.Document, 0, len(items))
	byID := make(map[string]domain.Content, len(items))
	for i := range items {
		c := items[i].Redacted()
		byID[c.ID] = c
		docs = append(docs, search.Document{ID: c.ID, Text: c.Title + "\n" + c.Description})
	}
	idx := search.NewIndex(docs,
		search.WithStopwords(searchStopwords),
		search.WithMaxDocs(limit),
		search.WithSnippetRunes(snippetRunes),
	)
	return &searchSnapshot{index: idx, contents: byID}, nil
}

// UploadFile stores a file for a file-backed content and points the content
// at it. A previously stored file is removed on a best-effort basis.
func (s *ContentService) UploadFile(ctx context.Context, userID, contentID, filename string, r io.Reader, size int64, mime string) (*domain.Content, error) {
	ctx, span := s.tracer().Start(ctx, "UploadFile", trace.WithAttributes(attribute.String("content.id", contentID)))
	defer span.End()

	if s.Store == nil {
		return nil, ErrStorageDisabled
	}
	c, err := s.owned(ctx, userID, contentID)
	if err != nil {
		return nil, err
	}
	if !c.ContentType.HasFile() {
		return nil, fmt.Errorf("%w: %s content has no file", ErrInvalidInput, c.ContentType)
	}
	name := path.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || name == "/" {
		return nil, fmt.Errorf("%w: file name required", ErrInvalidInput)
	}
	objectPath, err := storage.CleanPath(c.CreatorID + "/" + c.ID + "/" + name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.Store.Upload(ctx, objectPath, r, size, mime); err != nil {
		return nil, err
	}

	previous := c.FilePath
	if err := repo.UpdateContent(ctx, s.DB, c.ID, userID, map[string]any{"file_path": objectPath}); err != nil {
		return nil, err
	}
	if previous != nil && *previous != objectPath {
		if err := s.Store.Remove(ctx, *previous); err != nil {
			s.Logger.Warn().Err(err).Str("path", *previous).Msg("remove replaced file")
		}
	}
	s.invalidate(c.ID)
	return repo.GetContent(ctx, s.DB, c.ID)
}

// PublishDue promotes scheduled contents whose time has come and returns how
// many were published.
func (s *ContentService) PublishDue(ctx context.Context) (int, error) {
	ids, err := repo.PublishDue(ctx, s.DB, s.Now().UTC())
	if err != nil {
		return 0, err
	}
	if len(ids) > 0 {
		s.invalidate(ids...)
		s.Logger.Info().Int("count", len(ids)).Strs("content_ids", ids).Msg("scheduled contents published")
	}
	return len(ids), nil
}

// RunScheduler calls PublishDue every interval until ctx is done.
func (s *ContentService) RunScheduler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := s.PublishDue(ctx); err != nil && ctx.Err() == nil {
				s.Logger.Error().Err(err).Msg("publish scheduled contents")
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *ContentService) invalidate(ids ...string) {
	for _, id := range ids {
		s.Access.Invalidate(id)
	}
	s.Cache.InvalidateTag(tagPublished)
	s.Cache.InvalidateTag(tagSearchIndex)
}

func applyInput(c *domain.Content, in ContentInput) error {
	if in.Title != nil {
		c.Title = normalizeTitle(*in.Title)
	}
	if in.Description != nil {
		c.Description = strings.TrimSpace(*in.Description)
	}
	if in.Price != nil {
		c.Price = *in.Price
	}
	if in.ContentType != nil {
		c.ContentType = *in.ContentType
	}
	if in.Body != nil {
		c.Body = *in.Body
	}
	if in.FilePath != nil {
		if strings.TrimSpace(*in.FilePath) == "" {
			c.FilePath = nil
		} else {
			p, err := storage.CleanPath(*in.FilePath)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidInput, err)
			}
			c.FilePath = &p
		}
	}
	if in.Status != nil {
		c.Status = *in.Status
	}
	if in.ScheduledAt != nil {
		t := in.ScheduledAt.UTC()
		c.ScheduledAt = &t
	}
	if c.Status != domain.StatusScheduled {
		c.ScheduledAt = nil
	}
	return nil
}

func validateContent(c *domain.Content) error {
	switch {
	case c.Title == "":
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	case utf8.RuneCountInString(c.Title) > maxTitleRunes:
		return fmt.Errorf("%w: title too long", ErrInvalidInput)
	case c.Price.IsNegative():
		return fmt.Errorf("%w: price must be >= 0", ErrInvalidInput)
	case !c.Price.Equal(c.Price.Round(2)):
		return fmt.Errorf("%w: price has more than two decimals", ErrInvalidInput)
	case !c.ContentType.Valid():
		return fmt.Errorf("%w: unknown content type %q", ErrInvalidInput, c.ContentType)
	case !c.Status.Valid():
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, c.Status)
	case c.Status == domain.StatusScheduled && c.ScheduledAt == nil:
		return fmt.Errorf("%w: scheduled_at is required for scheduled content", ErrInvalidInput)
	}
	return nil
}

var whitespaceRE = regexp.MustCompile(`\s+`)

// normalizeTitle trims whitespace and collapses runs of it to one space.
func normalizeTitle(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}
