package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/monitizeclub/monitize-backend/internal/cache"
	"github.com/monitizeclub/monitize-backend/internal/domain"
)

func TestMediaService_SignedURL_Errors(t *testing.T) {
	db := newTestDB(t)
	seedContent(t, db, "paid", "creator", "100", domain.StatusPublished)
	seedContent(t, db, "draft", "creator", "100", domain.StatusDraft)
	store := newFakeStore()
	svc := NewMediaService(newRegistry(db), store, nil, time.Hour)

	cases := []struct {
		name    string
		user    string
		content string
		file    string
		want    error
	}{
		{"unauthenticated", "", "paid", "", ErrUnauthenticated},
		{"missing content", "buyer", "nope", "", ErrContentNotFound},
		{"draft hidden from others", "buyer", "draft", "", ErrContentNotFound},
		{"other file", "creator", "paid", "files/other.pdf", ErrFileMismatch},
		{"traversal", "creator", "paid", "../files/paid.pdf", ErrFileMismatch},
		{"no purchase", "buyer", "paid", "files/paid.pdf", ErrForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.SignedURL(context.Background(), tc.user, tc.content, tc.file)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
	if store.signs != 0 {
		t.Fatalf("signed %d URLs on rejected requests", store.signs)
	}
}

func TestMediaService_StorageDisabled(t *testing.T) {
	db := newTestDB(t)
	seedContent(t, db, "c1", "creator", "100", domain.StatusPublished)
	svc := NewMediaService(newRegistry(db), nil, nil, time.Hour)

	if _, err := svc.SignedURL(context.Background(), "creator", "c1", ""); !errors.Is(err, ErrStorageDisabled) {
		t.Fatalf("err = %v, want ErrStorageDisabled", err)
	}
}

func TestMediaService_NoFile(t *testing.T) {
	db := newTestDB(t)
	c := seedContent(t, db, "c1", "creator", "0", domain.StatusPublished)
	if err := db.Model(c).Update("file_path", nil).Error; err != nil {
		t.Fatalf("clear file: %v", err)
	}
	svc := NewMediaService(newRegistry(db), newFakeStore(), nil, time.Hour)

	if _, err := svc.SignedURL(context.Background(), "buyer", "c1", ""); !errors.Is(err, ErrFileMismatch) {
		t.Fatalf("err = %v, want ErrFileMismatch", err)
	}
}

func TestMediaService_SignsForBuyersAndOwners(t *testing.T) {
	db := newTestDB(t)
	seedContent(t, db, "paid", "creator", "100", domain.StatusPublished)
	seedPurchase(t, db, "paid", "buyer", "creator", "100")
	store := newFakeStore()
	svc := NewMediaService(newRegistry(db), store, nil, 10*time.Minute)

	before := time.Now().UTC()
	got, err := svc.SignedURL(context.Background(), "buyer", "paid", "files/paid.pdf")
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	if !strings.HasPrefix(got.URL, "https://media.test/files/paid.pdf?ttl=600") {
		t.Fatalf("url = %q", got.URL)
	}
	if got.ExpiresAt.Before(before.Add(10*time.Minute)) || got.ExpiresAt.After(time.Now().UTC().Add(10*time.Minute)) {
		t.Fatalf("expires_at = %v", got.ExpiresAt)
	}

	// Owner and buyer resolve to the same object and share the cached link.
	again, err := svc.SignedURL(context.Background(), "creator", "paid", "")
	if err != nil {
		t.Fatalf("SignedURL owner: %v", err)
	}
	if again.URL != got.URL {
		t.Fatalf("owner url = %q, want cached %q", again.URL, got.URL)
	}
	if store.signs != 1 {
		t.Fatalf("signs = %d, want 1", store.signs)
	}
}

func TestMediaService_FreeContentNeedsNoPurchase(t *testing.T) {
	db := newTestDB(t)
	seedContent(t, db, "free", "creator", "0", domain.StatusPublished)
	svc := NewMediaService(newRegistry(db), newFakeStore(), nil, time.Hour)

	if _, err := svc.SignedURL(context.Background(), "anyone", "free", "files/free.pdf"); err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
}

func TestMediaService_SignErrorNotCached(t *testing.T) {
	db := newTestDB(t)
	seedContent(t, db, "free", "creator", "0", domain.StatusPublished)
	store := newFakeStore()
	store.signErr = errors.New("minio down")
	svc := NewMediaService(newRegistry(db), store, nil, time.Hour)

	if _, err := svc.SignedURL(context.Background(), "u", "free", ""); err == nil {
		t.Fatal("expected sign error")
	}
	store.mu.Lock()
	store.signErr = nil
	store.mu.Unlock()
	if _, err := svc.SignedURL(context.Background(), "u", "free", ""); err != nil {
		t.Fatalf("SignedURL after recovery: %v", err)
	}
}

func TestNewMediaService_CacheOutlivingURLIsReplaced(t *testing.T) {
	shared := cache.New(time.Hour)
	svc := NewMediaService(nil, newFakeStore(), shared, 10*time.Minute)
	if svc.TTL != 10*time.Minute {
		t.Fatalf("TTL = %v", svc.TTL)
	}

	db := newTestDB(t)
	seedContent(t, db, "free", "creator", "0", domain.StatusPublished)
	svc = NewMediaService(newRegistry(db), newFakeStore(), shared, 10*time.Minute)
	if _, err := svc.SignedURL(context.Background(), "u", "free", ""); err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	if shared.Len() != 0 {
		t.Fatalf("signed URL stored in a cache that outlives it")
	}

	if d := NewMediaService(nil, nil, nil, 0).TTL; d != time.Hour {
		t.Fatalf("default TTL = %v, want 1h", d)
	}
}
