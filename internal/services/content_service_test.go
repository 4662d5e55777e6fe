package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/monitizeclub/monitize-backend/internal/cache"
	"github.com/monitizeclub/monitize-backend/internal/domain"
	"github.com/monitizeclub/monitize-backend/internal/repo"
	"github.com/monitizeclub/monitize-backend/internal/views"
)

func ptr[T any](v T) *T { return &v }

func newContentSvc(t *testing.T) (*ContentService, *cache.RequestCache) {
	t.Helper()
	db := newTestDB(t)
	rc := cache.New(time.Minute)
	return NewContentService(db, newRegistry(db), rc), rc
}

func TestContentCreate_DefaultsAndValidation(t *testing.T) {
	svc, _ := newContentSvc(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "", ContentInput{Title: ptr("x")}); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("anonymous: err = %v", err)
	}

	c, err := svc.Create(ctx, "creator", ContentInput{Title: ptr("  My   first   post ")})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.Title != "My first post" || c.Status != domain.StatusDraft || c.ContentType != domain.ContentText || !c.Price.IsZero() {
		t.Fatalf("unexpected defaults: %+v", c)
	}

	bad := []ContentInput{
		{Title: ptr("   ")},
		{Title: ptr(strings.Repeat("t", maxTitleRunes+1))},
		{Title: ptr("x"), Price: ptr(dec("-1"))},
		{Title: ptr("x"), Price: ptr(dec("1.005"))},
		{Title: ptr("x"), ContentType: ptr(domain.ContentType("hologram"))},
		{Title: ptr("x"), Status: ptr(domain.ContentStatus("archived"))},
		{Title: ptr("x"), Status: ptr(domain.StatusScheduled)},
		{Title: ptr("x"), FilePath: ptr("../etc/passwd")},
	}
	for i, in := range bad {
		if _, err := svc.Create(ctx, "creator", in); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("case %d: err = %v; want ErrInvalidInput", i, err)
		}
	}
}

func TestContentUpdateDelete_OwnershipAndInvalidation(t *testing.T) {
	svc, _ := newContentSvc(t)
	ctx := context.Background()
	c, err := svc.Create(ctx, "creator", ContentInput{Title: ptr("Old"), Price: ptr(dec("5")), Status: ptr(domain.StatusPublished)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Warm the registry and the list cache.
	if _, err := svc.Get(ctx, "creator", c.ID); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if items, _, _ := svc.ListPublished(ctx, 1, 10); len(items) != 1 || items[0].Title != "Old" {
		t.Fatalf("unexpected list: %+v", items)
	}

	if _, err := svc.Update(ctx, "stranger", c.ID, ContentInput{Title: ptr("Hijack")}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger update: err = %v; want ErrForbidden", err)
	}
	if _, err := svc.Update(ctx, "creator", "missing", ContentInput{Title: ptr("x")}); !errors.Is(err, ErrContentNotFound) {
		t.Fatalf("missing update: err = %v", err)
	}

	upd, err := svc.Update(ctx, "creator", c.ID, ContentInput{Title: ptr("New"), Price: ptr(dec("7.50"))})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if upd.Title != "New" || !upd.Price.Equal(dec("7.5")) {
		t.Fatalf("unexpected update result: %+v", upd)
	}

	got, err := svc.Get(ctx, "creator", c.ID)
	if err != nil || got.Title != "New" {
		t.Fatalf("Get after update should see the change, got (%+v, %v)", got, err)
	}
	if items, _, _ := svc.ListPublished(ctx, 1, 10); len(items) != 1 || items[0].Title != "New" {
		t.Fatalf("list cache should be invalidated, got %+v", items)
	}

	if err := svc.Delete(ctx, "stranger", c.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger delete: err = %v", err)
	}
	if err := svc.Delete(ctx, "creator", c.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(ctx, "creator", c.ID); !errors.Is(err, ErrContentNotFound) {
		t.Fatalf("Get after delete: err = %v; want ErrContentNotFound", err)
	}
	if items, total, _ := svc.ListPublished(ctx, 1, 10); len(items) != 0 || total != 0 {
		t.Fatalf("deleted content still listed: %+v", items)
	}
}

func TestContentGet_RedactsWithoutAccessAndTracksViews(t *testing.T) {
	svc, _ := newContentSvc(t)
	seedContent(t, svc.DB, "c1", "creator", "20.00", domain.StatusPublished)
	seedContent(t, svc.DB, "draft", "creator", "20.00", domain.StatusDraft)
	seedPurchase(t, svc.DB, "c1", "buyer", "creator", "20.00")
	tracker := views.New(views.SinkFunc(func(context.Context, []domain.ContentView) error { return nil }))
	svc.Views = tracker
	ctx := context.Background()

	anon, err := svc.Get(ctx, "", "c1")
	if err != nil {
		t.Fatalf("Get anon: %v", err)
	}
	if anon.HasAccess || anon.Body != "" || anon.FilePath != nil {
		t.Fatalf("anonymous caller must get a redacted record: %+v", anon)
	}

	buyer, err := svc.Get(ctx, "buyer", "c1")
	if err != nil {
		t.Fatalf("Get buyer: %v", err)
	}
	if !buyer.HasAccess || buyer.Body != "secret body c1" || buyer.FilePath == nil {
		t.Fatalf("buyer should see the payload: %+v", buyer)
	}

	// Redaction must not leak into the shared registry copy.
	again, _ := svc.Get(ctx, "buyer", "c1")
	if again.Body == "" {
		t.Fatalf("cached content was mutated by redaction")
	}

	if _, err := svc.Get(ctx, "creator", "c1"); err != nil {
		t.Fatalf("Get creator: %v", err)
	}
	if got := tracker.Pending(); got != 2 {
		t.Fatalf("tracked views = %d; want 2 (anonymous + buyer, creator excluded)", got)
	}

	if _, err := svc.Get(ctx, "buyer", "draft"); !errors.Is(err, ErrContentNotFound) {
		t.Fatalf("draft must be hidden from others: err = %v", err)
	}
	if d, err := svc.Get(ctx, "creator", "draft"); err != nil || !d.HasAccess {
		t.Fatalf("creator should see own draft, got (%+v, %v)", d, err)
	}
}

func TestCheckAccess_Invariant(t *testing.T) {
	svc, _ := newContentSvc(t)
	seedContent(t, svc.DB, "paid", "creator", "50.00", domain.StatusPublished)
	seedContent(t, svc.DB, "free", "creator", "0", domain.StatusPublished)
	seedPurchase(t, svc.DB, "paid", "buyer", "creator", "50.00")
	ctx := context.Background()

	cases := []struct {
		name, user, content string
		want                bool
	}{
		{"creator", "creator", "paid", true},
		{"free content", "stranger", "free", true},
		{"purchased", "buyer", "paid", true},
		{"paid, not creator, no purchase", "stranger", "paid", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := svc.CheckAccess(ctx, tc.user, tc.content)
			if err != nil {
				t.Fatalf("CheckAccess: %v", err)
			}
			if got != tc.want {
				t.Fatalf("CheckAccess(%s, %s) = %v; want %v", tc.user, tc.content, got, tc.want)
			}
		})
	}

	if _, err := svc.CheckAccess(ctx, "", "paid"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("anonymous: err = %v", err)
	}
	if _, err := svc.CheckAccess(ctx, "buyer", "missing"); !errors.Is(err, ErrContentNotFound) {
		t.Fatalf("missing: err = %v", err)
	}
}

func TestCheckAccess_DeletedPurchaseDenied(t *testing.T) {
	svc, _ := newContentSvc(t)
	seedContent(t, svc.DB, "paid", "creator", "50.00", domain.StatusPublished)
	seedPurchase(t, svc.DB, "paid", "buyer", "creator", "50.00")
	if err := svc.DB.Model(&domain.Transaction{}).Where("user_id = ?", "buyer").Update("is_deleted", true).Error; err != nil {
		t.Fatalf("soft delete purchase: %v", err)
	}
	if ok, _ := svc.CheckAccess(context.Background(), "buyer", "paid"); ok {
		t.Fatalf("a deleted purchase must not grant access")
	}
}

func TestListPublished_PagingAndRedaction(t *testing.T) {
	svc, _ := newContentSvc(t)
	for _, id := range []string{"a", "b", "c"} {
		seedContent(t, svc.DB, id, "creator", "1.00", domain.StatusPublished)
	}
	seedContent(t, svc.DB, "d", "creator", "1.00", domain.StatusDraft)
	ctx := context.Background()

	items, total, err := svc.ListPublished(ctx, 0, 2)
	if err != nil {
		t.Fatalf("ListPublished: %v", err)
	}
	if total != 3 || len(items) != 2 {
		t.Fatalf("page 1 = %d items of %d; want 2 of 3", len(items), total)
	}
	for _, c := range items {
		if c.Body != "" || c.FilePath != nil {
			t.Fatalf("list items must be redacted: %+v", c)
		}
	}
	items, _, _ = svc.ListPublished(ctx, 2, 2)
	if len(items) != 1 {
		t.Fatalf("page 2 = %d items; want 1", len(items))
	}

	mine, err := svc.ListByCreator(ctx, "creator")
	if err != nil || len(mine) != 4 {
		t.Fatalf("ListByCreator = (%d, %v); want 4", len(mine), err)
	}
	if _, err := svc.ListByCreator(ctx, ""); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("anonymous: err = %v", err)
	}
}

func TestSearch_UsesCachedIndex(t *testing.T) {
	svc, rc := newContentSvc(t)
	ctx := context.Background()
	for _, in := range []ContentInput{
		{Title: ptr("Golang concurrency course"), Description: ptr("channels and goroutines"), Status: ptr(domain.StatusPublished), Price: ptr(dec("10"))},
		{Title: ptr("Watercolor basics"), Description: ptr("painting for beginners"), Status: ptr(domain.StatusPublished)},
		{Title: ptr("Golang draft"), Status: ptr(domain.StatusDraft)},
	} {
		if _, err := svc.Create(ctx, "creator", in); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	if _, err := svc.Search(ctx, "  ", 5); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank query: err = %v", err)
	}
	hits, err := svc.Search(ctx, "golang channels", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Content.Title != "Golang concurrency course" {
		t.Fatalf("unexpected hits: %+v", hits)
	}
	if hits[0].Content.Body != "" || hits[0].Score <= 0 {
		t.Fatalf("hit should be redacted and scored: %+v", hits[0])
	}
	if rc.Len() == 0 {
		t.Fatalf("search index should be cached")
	}

	// Publishing invalidates the index.
	if _, err := svc.Create(ctx, "creator", ContentInput{Title: ptr("Golang generics"), Status: ptr(domain.StatusPublished)}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	hits, _ = svc.Search(ctx, "golang", 5)
	if len(hits) != 2 {
		t.Fatalf("new content should be searchable, got %+v", hits)
	}
}

func TestSearch_StopwordsAndDocCap(t *testing.T) {
	svc, _ := newContentSvc(t)
	ctx := context.Background()
	for _, title := range []string{"The options playbook", "The futures playbook"} {
		if _, err := svc.Create(ctx, "creator", ContentInput{Title: ptr(title), Status: ptr(domain.StatusPublished)}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	hits, err := svc.Search(ctx, "the", 5)
	if err != nil || len(hits) != 0 {
		t.Fatalf("stopword-only query = %+v, %v; want no hits", hits, err)
	}
	if hits, _ = svc.Search(ctx, "the playbook", 5); len(hits) != 2 {
		t.Fatalf("playbook hits = %d; want 2", len(hits))
	}

	capped := NewContentService(svc.DB, newRegistry(svc.DB), cache.New(0))
	capped.MaxIndexedDocs = 1
	if hits, _ = capped.Search(ctx, "playbook", 5); len(hits) != 1 {
		t.Fatalf("capped index hits = %d; want 1", len(hits))
	}
}

func TestPublishDue_PromotesAndInvalidates(t *testing.T) {
	svc, _ := newContentSvc(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time { return now }

	due, err := svc.Create(ctx, "creator", ContentInput{Title: ptr("Due"), Status: ptr(domain.StatusScheduled), ScheduledAt: ptr(now.Add(-time.Minute))})
	if err != nil {
		t.Fatalf("Create due: %v", err)
	}
	if _, err := svc.Create(ctx, "creator", ContentInput{Title: ptr("Later"), Status: ptr(domain.StatusScheduled), ScheduledAt: ptr(now.Add(time.Hour))}); err != nil {
		t.Fatalf("Create later: %v", err)
	}

	if _, err := svc.Get(ctx, "reader", due.ID); !errors.Is(err, ErrContentNotFound) {
		t.Fatalf("scheduled content should be hidden: err = %v", err)
	}
	if _, total, _ := svc.ListPublished(ctx, 1, 10); total != 0 {
		t.Fatalf("nothing should be published yet")
	}

	n, err := svc.PublishDue(ctx)
	if err != nil || n != 1 {
		t.Fatalf("PublishDue = (%d, %v); want 1", n, err)
	}
	if got, err := svc.Get(ctx, "reader", due.ID); err != nil || got.Status != domain.StatusPublished {
		t.Fatalf("published content should be visible, got (%+v, %v)", got, err)
	}
	if _, total, _ := svc.ListPublished(ctx, 1, 10); total != 1 {
		t.Fatalf("published list should be refreshed, total=%d", total)
	}
}

func TestRunScheduler_StopsOnCancel(t *testing.T) {
	svc, _ := newContentSvc(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.RunScheduler(ctx, 5*time.Millisecond)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("RunScheduler did not stop")
	}
}

func TestUploadFile(t *testing.T) {
	svc, _ := newContentSvc(t)
	ctx := context.Background()
	seedContent(t, svc.DB, "doc", "creator", "5.00", domain.StatusPublished)
	text, err := svc.Create(ctx, "creator", ContentInput{Title: ptr("Text")})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.UploadFile(ctx, "creator", "doc", "a.pdf", strings.NewReader("x"), 1, "application/pdf"); !errors.Is(err, ErrStorageDisabled) {
		t.Fatalf("no store: err = %v", err)
	}

	store := newFakeStore()
	svc.Store = store
	if _, err := svc.UploadFile(ctx, "stranger", "doc", "a.pdf", strings.NewReader("x"), 1, "application/pdf"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger: err = %v", err)
	}
	if _, err := svc.UploadFile(ctx, "creator", text.ID, "a.pdf", strings.NewReader("x"), 1, "application/pdf"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("text content: err = %v", err)
	}

	c, err := svc.UploadFile(ctx, "creator", "doc", "../../report.pdf", strings.NewReader("%PDF"), 4, "application/pdf")
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	want := "creator/doc/report.pdf"
	if c.FilePath == nil || *c.FilePath != want {
		t.Fatalf("file path = %v; want %s", c.FilePath, want)
	}
	if store.uploads[want] != "%PDF" {
		t.Fatalf("upload not stored: %+v", store.uploads)
	}
	if len(store.removed) != 1 || store.removed[0] != "files/doc.pdf" {
		t.Fatalf("previous file should be removed, got %v", store.removed)
	}

	stored, _ := repo.GetContent(ctx, svc.DB, "doc")
	if stored.FilePath == nil || *stored.FilePath != want {
		t.Fatalf("db not updated: %+v", stored.FilePath)
	}
}

func TestApplyInput_ClearsScheduleUnlessScheduled(t *testing.T) {
	at := time.Now()
	c := &domain.Content{Status: domain.StatusScheduled, ScheduledAt: &at}
	if err := applyInput(c, ContentInput{Status: ptr(domain.StatusPublished)}); err != nil {
		t.Fatalf("applyInput: %v", err)
	}
	if c.ScheduledAt != nil {
		t.Fatalf("scheduled_at should be cleared for non-scheduled content")
	}
	if err := applyInput(c, ContentInput{FilePath: ptr("  ")}); err != nil || c.FilePath != nil {
		t.Fatalf("blank file path should clear it, got (%v, %v)", c.FilePath, err)
	}
}
