// Package cache provides a TTL request cache with in-flight de-duplication.
//
// A RequestCache memoizes the results of fetch functions keyed by an explicit
// tag plus a structural serialization of the call arguments. Concurrent
// callers for the same key share a single underlying call; successful results
// are kept for the configured TTL and failures are never cached.
//
// Usage:
//
//	rc := cache.New(30 * time.Second)
//	getContent := cache.Wrap(rc, "content", func(ctx context.Context, id string) (*domain.Content, error) {
//	    return repo.GetContent(ctx, db, id)
//	})
//	c, err := getContent(ctx, "c1")
//
// The cache is an explicit instance; there is no package-level state besides
// the Prometheus counters.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

var (
	cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "request_cache_hits_total", Help: "Fresh values served from the request cache."},
		[]string{"tag"},
	)
	cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "request_cache_misses_total", Help: "Calls that reached the underlying fetch function."},
		[]string{"tag"},
	)
	cacheJoins = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "request_cache_joins_total", Help: "Callers that joined an in-flight fetch."},
		[]string{"tag"},
	)
)

func init() {
	prometheus.MustRegister(cacheHits, cacheMisses, cacheJoins)
}

// RequestCache memoizes fetch results for a fixed TTL.
type RequestCache struct {
	ttl    time.Duration
	store  *gocache.Cache
	group  singleflight.Group
	logger zerolog.Logger

	// mu orders stores against invalidations. A fetch stores its value only
	// if its tag generation and the epoch are unchanged since it started.
	mu    sync.Mutex
	gens  map[string]uint64
	epoch uint64
}

// Option customizes a RequestCache.
type Option func(*RequestCache)

// WithLogger sets the logger used for debug output.
func WithLogger(l zerolog.Logger) Option {
	return func(c *RequestCache) { c.logger = l }
}

// New returns a cache that keeps successful results for ttl. A zero ttl
// disables value caching while still de-duplicating concurrent calls.
// Negative values are treated as zero.
func New(ttl time.Duration, opts ...Option) *RequestCache {
	if ttl < 0 {
		ttl = 0
	}
	cleanup := time.Duration(0)
	if ttl > 0 {
		cleanup = 2 * ttl
	}
	c := &RequestCache{
		ttl:    ttl,
		store:  gocache.New(gocache.NoExpiration, cleanup),
		logger: zerolog.Nop(),
		gens:   make(map[string]uint64),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// TTL returns the configured time-to-live.
func (c *RequestCache) TTL() time.Duration { return c.ttl }

// Key builds the cache key for tag and args. Arguments are serialized
// structurally, so equal values collide regardless of identity.
func Key(tag string, args any) (string, error) {
	b, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("cache key %s: %w", tag, err)
	}
	return tag + ":" + string(b), nil
}

// Wrap returns a memoized version of fn. Every call with structurally equal
// args within the TTL returns the same value; concurrent calls for the same
// key share one invocation of fn.
//
// fn runs with a context detached from the caller's cancellation so that a
// caller giving up does not abort the shared work; the caller itself returns
// ctx.Err() as soon as its context is done.
func Wrap[A, T any](c *RequestCache, tag string, fn func(context.Context, A) (T, error)) func(context.Context, A) (T, error) {
	return func(ctx context.Context, args A) (T, error) {
		var zero T
		key, err := Key(tag, args)
		if err != nil {
			return zero, err
		}
		v, err := c.do(ctx, tag, key, func(ctx context.Context) (any, error) {
			return fn(ctx, args)
		})
		if err != nil {
			return zero, err
		}
		out, _ := v.(T)
		return out, nil
	}
}

func (c *RequestCache) do(ctx context.Context, tag, key string, fetch func(context.Context) (any, error)) (any, error) {
	if v, ok := c.store.Get(key); ok {
		cacheHits.WithLabelValues(tag).Inc()
		return v, nil
	}

	c.mu.Lock()
	gen, epoch := c.gens[tag], c.epoch
	c.mu.Unlock()

	// Fetches started before an invalidation never join fetches started after it.
	flight := key + "#" + strconv.FormatUint(gen, 10) + "." + strconv.FormatUint(epoch, 10)
	leader := false
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(flight, func() (any, error) {
		leader = true
		// A flight that finished between our lookup and DoChan may have
		// stored the value already.
		if v, ok := c.store.Get(key); ok {
			return v, nil
		}
		cacheMisses.WithLabelValues(tag).Inc()
		v, err := fetch(detached)
		if err != nil {
			c.store.Delete(key)
			c.logger.Debug().Err(err).Str("key", key).Msg("request cache fetch failed")
			return nil, err
		}
		if c.ttl > 0 {
			c.mu.Lock()
			if c.gens[tag] == gen && c.epoch == epoch {
				c.store.Set(key, v, c.ttl)
			}
			c.mu.Unlock()
		}
		return v, nil
	})

	select {
	case res := <-ch:
		if !leader {
			cacheJoins.WithLabelValues(tag).Inc()
		}
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate drops the cached value for tag and args, if any. An in-flight
// call under tag is not interrupted, but its result is not stored.
func (c *RequestCache) Invalidate(tag string, args any) {
	key, err := Key(tag, args)
	if err != nil {
		return
	}
	c.mu.Lock()
	c.gens[tag]++
	c.store.Delete(key)
	c.mu.Unlock()
}

// InvalidateTag drops every cached value stored under tag.
func (c *RequestCache) InvalidateTag(tag string) {
	prefix := tag + ":"
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[tag]++
	for k := range c.store.Items() {
		if strings.HasPrefix(k, prefix) {
			c.store.Delete(k)
		}
	}
}

// Purge drops all cached values.
func (c *RequestCache) Purge() {
	c.mu.Lock()
	c.epoch++
	c.store.Flush()
	c.mu.Unlock()
}

// Len returns the number of cached values, including expired ones that have
// not been cleaned up yet.
func (c *RequestCache) Len() int { return c.store.ItemCount() }
