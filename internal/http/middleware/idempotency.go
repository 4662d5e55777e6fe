// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file validates the Idempotency-Key header sent with create-order
// requests. The normalized key is stashed in the Gin context for the handler.
// On the routes selected by IdempotencyOptions.Scope, a lookup tells the rate
// limiter when a request will only replay an order that already exists so
// retries are not throttled.
package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// HeaderIdempotencyKey is the request header carrying the client's key.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"
)

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the key validated by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether a live record already exists for the caller's key.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the key length; <= 0 means 200.
	MaxLen int
	// Pattern restricts allowed characters; nil means ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
	// Scope returns the resource a request's key is bound to, and false when
	// the request cannot be a replay. Nil disables the lookup.
	Scope func(c *gin.Context) (string, bool)
}

// IdempotencyLookup reports whether userID holds a live record for key on
// scope. Errors are ignored by the middleware; the handler still deduplicates.
type IdempotencyLookup func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error)

// JSONBodyScope returns a Scope matching one route (method plus full Gin
// path) that reads field from the JSON body. The body is restored for the
// handler.
func JSONBodyScope(method, fullPath, field string) func(c *gin.Context) (string, bool) {
	return func(c *gin.Context) (string, bool) {
		if c.Request.Method != method || c.FullPath() != fullPath || c.Request.Body == nil {
			return "", false
		}
		raw, err := io.ReadAll(c.Request.Body)
		c.Request.Body = io.NopCloser(bytes.NewReader(raw))
		if err != nil {
			return "", false
		}
		var m map[string]any
		if err := binding.JSON.BindBody(raw, &m); err != nil {
			return "", false
		}
		v, _ := m[field].(string)
		v = strings.TrimSpace(v)
		return v, v != ""
	}
}

// IdempotencyValidator validates the Idempotency-Key header when present.
// An invalid key is rejected with 400. Anonymous callers and requests outside
// opts.Scope are never looked up.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemPattern
	}

	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			abortJSON(c, http.StatusBadRequest, "bad_request", "invalid Idempotency-Key")
			return
		}
		c.Set(ctxKeyIdemKey, key)

		uid := UserID(c)
		if lookup == nil || opts.Scope == nil || uid == "" {
			c.Next()
			return
		}
		if scope, ok := opts.Scope(c); ok {
			if exists, err := lookup(c.Request.Context(), uid, scope, key, time.Now().UTC()); err == nil && exists {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}
