package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/monitizeclub/monitize-backend/internal/access"
	"github.com/monitizeclub/monitize-backend/internal/cache"
	"github.com/monitizeclub/monitize-backend/internal/domain"
	"github.com/monitizeclub/monitize-backend/internal/repo"
	"github.com/monitizeclub/monitize-backend/internal/storage"
)

const tagMediaURL = "media_url"

// SignedMedia is a time-limited link to a private file.
type SignedMedia struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type signedEntry struct {
	URL       string
	ExpiresAt time.Time
}

// MediaService issues signed URLs for the files behind paid content.
type MediaService struct {
	Access *access.Registry
	Store  storage.Store
	// TTL is the lifetime of issued URLs.
	TTL time.Duration

	sign func(context.Context, string) (*signedEntry, error)
}

// NewMediaService wires a MediaService. Signed URLs are reused through rc
// while they have more than half their lifetime left; when rc keeps values
// longer than that, a private cache with a shorter TTL is used instead.
func NewMediaService(reg *access.Registry, store storage.Store, rc *cache.RequestCache, ttl time.Duration) *MediaService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if rc == nil || rc.TTL() >= ttl/2 {
		rc = cache.New(ttl / 2)
	}
	s := &MediaService{Access: reg, Store: store, TTL: ttl}
	s.sign = cache.Wrap(rc, tagMediaURL, s.presign)
	return s
}

func (s *MediaService) presign(ctx context.Context, objectPath string) (*signedEntry, error) {
	exp := time.Now().UTC().Add(s.TTL)
	u, err := s.Store.SignedURL(ctx, objectPath, s.TTL)
	if err != nil {
		return nil, err
	}
	return &signedEntry{URL: u, ExpiresAt: exp}, nil
}

// SignedURL returns a link to filePath for a caller with access to the
// content. filePath must be the content's own file.
func (s *MediaService) SignedURL(ctx context.Context, userID, contentID, filePath string) (*SignedMedia, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrUnauthenticated
	}
	if s.Store == nil {
		return nil, ErrStorageDisabled
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
	if c.FilePath == nil {
		return nil, ErrFileMismatch
	}
	want, err := storage.CleanPath(*c.FilePath)
	if err != nil {
		return nil, ErrFileMismatch
	}
	if filePath != "" {
		got, err := storage.CleanPath(filePath)
		if err != nil || got != want {
			return nil, ErrFileMismatch
		}
	}
	if !s.Access.HasAccess(ctx, c, userID) {
		return nil, ErrForbidden
	}

	e, err := s.sign(ctx, want)
	if err != nil {
		return nil, err
	}
	return &SignedMedia{URL: e.URL, ExpiresAt: e.ExpiresAt}, nil
}
