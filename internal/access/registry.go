// Package access keeps loaded content records and the set of purchases known
// to have succeeded, and answers "may this user open this content?".
//
// Loads and purchase checks are coalesced per key: concurrent callers asking
// for the same content (or the same content/user pair) share one backend
// read. Backend errors during a purchase check deny access.
package access

import (
	"context"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/monitizeclub/monitize-backend/internal/domain"
)

// Backend is the persistent source the registry reads through.
type Backend interface {
	LoadContent(ctx context.Context, contentID string) (*domain.Content, error)
	HasSuccessfulPurchase(ctx context.Context, contentID, userID string) (bool, error)
}

type purchaseKey struct {
	userID    string
	contentID string
}

// Registry caches content records and confirmed purchases for the lifetime
// of the process.
type Registry struct {
	backend Backend
	logger  zerolog.Logger

	mu        sync.RWMutex
	contents  map[string]*domain.Content
	purchased map[purchaseKey]struct{}

	// A load stores its result only if neither counter moved while it read.
	gens  map[string]uint64
	epoch uint64

	loads  singleflight.Group
	checks singleflight.Group
}

// Option customizes a Registry.
type Option func(*Registry)

// WithLogger sets the logger used to report backend failures.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry returns an empty registry reading through backend.
func NewRegistry(backend Backend, opts ...Option) *Registry {
	r := &Registry{
		backend:   backend,
		logger:    zerolog.Nop(),
		contents:  make(map[string]*domain.Content),
		purchased: make(map[purchaseKey]struct{}),
		gens:      make(map[string]uint64),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Get returns the cached content without touching the backend.
func (r *Registry) Get(contentID string) (*domain.Content, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contents[contentID]
	return c, ok
}

// Load returns the cached content or reads it from the backend. Concurrent
// loads of the same ID share one read; a failed read stores nothing, and
// neither does a read that raced with Invalidate.
func (r *Registry) Load(ctx context.Context, contentID string) (*domain.Content, error) {
	if c, ok := r.Get(contentID); ok {
		return c, nil
	}
	r.mu.RLock()
	gen, epoch := r.gens[contentID], r.epoch
	r.mu.RUnlock()

	// Loads started before an invalidation never join loads started after it.
	key := contentID + "|" + strconv.FormatUint(gen, 10) + "|" + strconv.FormatUint(epoch, 10)
	detached := context.WithoutCancel(ctx)
	ch := r.loads.DoChan(key, func() (any, error) {
		c, err := r.backend.LoadContent(detached, contentID)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		if r.gens[contentID] == gen && r.epoch == epoch {
			r.contents[contentID] = c
		}
		r.mu.Unlock()
		return c, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Content), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate forgets one cached content. A load already in flight for it
// still answers its callers but is not cached, and later loads read again.
func (r *Registry) Invalidate(contentID string) {
	r.mu.Lock()
	delete(r.contents, contentID)
	r.gens[contentID]++
	r.mu.Unlock()
}

// InvalidateAll forgets every cached content. Purchases are kept.
func (r *Registry) InvalidateAll() {
	r.mu.Lock()
	r.contents = make(map[string]*domain.Content)
	r.epoch++
	r.mu.Unlock()
}

// Len returns the number of cached contents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contents)
}

// MarkPurchased records a confirmed purchase. Once marked, CheckPurchase
// returns true for the pair without consulting the backend.
func (r *Registry) MarkPurchased(contentID, userID string) {
	if contentID == "" || userID == "" {
		return
	}
	r.mu.Lock()
	r.purchased[purchaseKey{userID: userID, contentID: contentID}] = struct{}{}
	r.mu.Unlock()
}

func (r *Registry) isPurchased(contentID, userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.purchased[purchaseKey{userID: userID, contentID: contentID}]
	return ok
}

// CheckPurchase reports whether userID may open contentID by ownership or
// purchase. It never returns an error: an anonymous caller, a backend
// failure or a cancelled context all yield false.
func (r *Registry) CheckPurchase(ctx context.Context, contentID, userID string) bool {
	if userID == "" || contentID == "" {
		return false
	}
	if r.isPurchased(contentID, userID) {
		return true
	}
	if c, ok := r.Get(contentID); ok && c.OwnedBy(userID) {
		return true
	}

	detached := context.WithoutCancel(ctx)
	ch := r.checks.DoChan(contentID+"|"+userID, func() (any, error) {
		ok, err := r.backend.HasSuccessfulPurchase(detached, contentID, userID)
		if err != nil {
			return false, err
		}
		if ok {
			r.MarkPurchased(contentID, userID)
		}
		return ok, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			r.logger.Warn().Err(res.Err).
				Str("content_id", contentID).
				Str("user_id", userID).
				Msg("purchase check failed; denying access")
			return false
		}
		return res.Val.(bool)
	case <-ctx.Done():
		return false
	}
}

// HasAccess applies the access rule: the creator, anyone for free content,
// or a user holding a successful purchase.
func (r *Registry) HasAccess(ctx context.Context, c *domain.Content, userID string) bool {
	if c == nil {
		return false
	}
	if c.OwnedBy(userID) || c.IsFree() {
		return true
	}
	return r.CheckPurchase(ctx, c.ID, userID)
}
