package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIKeyAuth(t *testing.T) {
	hash, err := HashAPIKey("open-sesame")
	require.NoError(t, err)

	auth, err := NewAPIKeyAuth("", hash)
	require.NoError(t, err)
	assert.True(t, auth.Enabled())
	assert.True(t, auth.IsValid("open-sesame"))
	assert.True(t, auth.IsValid("open-sesame"))
	assert.False(t, auth.IsValid("open-sesam"))
	assert.False(t, auth.IsValid(""))

	var codes []string
	h := auth.Middleware(func(w http.ResponseWriter, _ *http.Request, status int, code string) {
		codes = append(codes, code)
		w.WriteHeader(status)
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "open-sesame")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, []string{"missing_api_key"}, codes)
}

func TestAPIKeyAuth_Disabled(t *testing.T) {
	auth, err := NewAPIKeyAuth("X-Key", "")
	require.NoError(t, err)
	assert.False(t, auth.Enabled())

	h := auth.Middleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err = NewAPIKeyAuth("X-Key", "plaintext")
	assert.Error(t, err)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestCompositeHealthChecker(t *testing.T) {
	c := NewCompositeHealthChecker("v1")
	c.SetTimeout(50 * time.Millisecond)

	status := c.Check(context.Background())
	assert.True(t, status.Healthy)

	c.AddCheck("storage", NewPingCheck(pingFunc(func(context.Context) error { return nil })))
	c.AddCheck("cache", NewPingCheck(pingFunc(func(context.Context) error { return errors.New("connection refused") })))
	c.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	status = c.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.Equal(t, "Some checks failed: cache, slow", status.Message)
	assert.True(t, status.Checks["storage"].Healthy)
	assert.Equal(t, "connection refused", status.Checks["cache"].Message)
}

func TestRequestSizeLimitAndNoCache(t *testing.T) {
	h := NoCacheMiddleware(RequestSizeLimitMiddleware(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 16)
		_, err := r.Body.Read(buf)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}
