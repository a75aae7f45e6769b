// Package handlers contains reusable HTTP middleware and health checks.
package handlers

import (
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUTHENTICATION MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// APIKeyAuth checks a request key against a bcrypt hash.
type APIKeyAuth struct {
	headerName string
	hash       []byte

	// keys that already matched the hash
	mu       sync.RWMutex
	verified map[string]struct{}
}

// NewAPIKeyAuth creates an authenticator. An empty hash disables auth.
func NewAPIKeyAuth(headerName, hash string) (*APIKeyAuth, error) {
	if headerName == "" {
		headerName = "X-API-Key"
	}
	a := &APIKeyAuth{
		headerName: headerName,
		verified:   make(map[string]struct{}),
	}
	if hash == "" {
		return a, nil
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, err
	}
	a.hash = []byte(hash)
	return a, nil
}

// HashAPIKey returns a bcrypt hash suitable for NewAPIKeyAuth.
func HashAPIKey(key string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Enabled reports whether a hash is configured.
func (a *APIKeyAuth) Enabled() bool {
	return len(a.hash) > 0
}

// IsValid checks a plaintext key.
func (a *APIKeyAuth) IsValid(key string) bool {
	if key == "" {
		return false
	}

	a.mu.RLock()
	_, ok := a.verified[key]
	a.mu.RUnlock()
	if ok {
		return true
	}

	if bcrypt.CompareHashAndPassword(a.hash, []byte(key)) != nil {
		return false
	}

	a.mu.Lock()
	a.verified[key] = struct{}{}
	a.mu.Unlock()
	return true
}

// Middleware rejects requests without a valid key.
// onFail writes the rejection; it receives the HTTP status and an error code.
func (a *APIKeyAuth) Middleware(onFail func(w http.ResponseWriter, r *http.Request, status int, code string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !a.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(a.headerName)

			// Also check Authorization header with Bearer scheme
			if key == "" {
				auth := r.Header.Get("Authorization")
				if strings.HasPrefix(auth, "Bearer ") {
					key = strings.TrimPrefix(auth, "Bearer ")
				}
			}

			if key == "" {
				onFail(w, r, http.StatusUnauthorized, "missing_api_key")
				return
			}
			if !a.IsValid(key) {
				onFail(w, r, http.StatusUnauthorized, "invalid_api_key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST SIZE LIMIT MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// RequestSizeLimitMiddleware limits the size of request bodies.
func RequestSizeLimitMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHE CONTROL MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// NoCacheMiddleware prevents caching of progression responses.
func NoCacheMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
