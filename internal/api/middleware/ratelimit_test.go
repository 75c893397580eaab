package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/air13x/air13x/internal/api/middleware"
)

func TestRateLimitByIP(t *testing.T) {
	handler := middleware.RateLimitByIP(middleware.RateLimitConfig{RequestLimit: 2, WindowLength: time.Minute})(http.HandlerFunc(okHandler))

	send := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/locations/countries", http.NoBody)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("172.16.0.1:1000").Code)
	assert.Equal(t, http.StatusOK, send("172.16.0.1:1001").Code)

	blocked := send("172.16.0.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.Equal(t, "application/problem+json", blocked.Header().Get("Content-Type"))
	assert.Equal(t, "60", blocked.Header().Get("Retry-After"))
	assert.Contains(t, blocked.Body.String(), "Rate limit exceeded")

	assert.Equal(t, http.StatusOK, send("172.16.0.2:1000").Code)
}

func TestRateLimitBySession(t *testing.T) {
	r := chi.NewRouter()
	r.With(middleware.RateLimitBySession(middleware.RateLimitConfig{RequestLimit: 1, WindowLength: 30 * time.Second})).
		Post("/v1/sessions/{sessionId}/fetch", okHandler)

	send := func(session, addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/sessions/"+session+"/fetch", http.NoBody)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("s-1", "10.0.0.1:1"))
	assert.Equal(t, http.StatusTooManyRequests, send("s-1", "10.0.0.2:1"), "same session from another address")
	assert.Equal(t, http.StatusOK, send("s-2", "10.0.0.1:1"), "other session from the same address")
}
