// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file verifies bearer sessions. Authenticate parses an optional
// "Authorization: Bearer <jwt>" header signed with HS256 and, when valid,
// stores the token subject under the "userID" Gin context key. Requests
// without a header continue anonymously; requests with a bad token are
// rejected so a client never silently loses its identity.
//
// RequireUser and RequireAdminToken gate individual route groups.
package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ctxKeyUserID    = "userID"
	ctxKeyAuthToken = "auth.token"

	bearerPrefix = "Bearer "
)

// AuthOptions configures Authenticate.
type AuthOptions struct {
	// Secret is the HS256 key shared with the identity provider. An empty
	// secret rejects every presented token.
	Secret []byte
	// Leeway tolerates clock skew on exp/nbf. Zero means 30 seconds.
	Leeway time.Duration
}

var errNoSecret = errors.New("auth: no verification secret configured")

// Authenticate returns a middleware that resolves the caller identity from a
// bearer JWT. The subject claim ("sub") becomes the user ID.
func Authenticate(opts AuthOptions) gin.HandlerFunc {
	leeway := opts.Leeway
	if leeway <= 0 {
		leeway = 30 * time.Second
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(leeway),
	)
	keyFn := func(*jwt.Token) (any, error) {
		if len(opts.Secret) == 0 {
			return nil, errNoSecret
		}
		return opts.Secret, nil
	}

	return func(c *gin.Context) {
		raw, present := BearerToken(c)
		if !present {
			c.Next()
			return
		}
		var claims jwt.RegisteredClaims
		tok, err := parser.ParseWithClaims(raw, &claims, keyFn)
		if err != nil || !tok.Valid || strings.TrimSpace(claims.Subject) == "" {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "invalid or expired session")
			return
		}
		c.Set(ctxKeyUserID, claims.Subject)
		c.Set(ctxKeyAuthToken, raw)
		c.Next()
	}
}

// RequireUser aborts with 401 unless Authenticate resolved a user.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserID(c) == "" {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		c.Next()
	}
}

// RequireAdminToken aborts with 403 unless the Authorization header starts
// with prefix. An empty prefix only requires a bearer token to be present.
// Whether the user is actually an administrator is decided by the service.
func RequireAdminToken(prefix string) gin.HandlerFunc {
	if strings.TrimSpace(prefix) == "" {
		prefix = bearerPrefix
	}
	return func(c *gin.Context) {
		if !strings.HasPrefix(c.GetHeader("Authorization"), prefix) {
			abortJSON(c, http.StatusForbidden, "forbidden", "admin token required")
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated user ID or "".
func UserID(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// BearerToken extracts the token from the Authorization header. The second
// value reports whether an Authorization header was sent at all.
func BearerToken(c *gin.Context) (string, bool) {
	h := strings.TrimSpace(c.GetHeader("Authorization"))
	if h == "" {
		return "", false
	}
	if len(h) < len(bearerPrefix) || !strings.EqualFold(h[:len(bearerPrefix)], bearerPrefix) {
		return "", true
	}
	return strings.TrimSpace(h[len(bearerPrefix):]), true
}

// abortJSON writes the standard error envelope from middleware that cannot
// import the handlers package.
func abortJSON(c *gin.Context, status int, code, msg string) {
	SetErrorCode(c, code)
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       code,
		"message":    msg,
	})
}
