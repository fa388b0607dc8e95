package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/roadpulse/internal/api/middleware"
	"github.com/breatheroute/roadpulse/internal/api/models"
)

func limited(limit int, window time.Duration) http.Handler {
	return middleware.RateLimitByIP(middleware.RateLimitConfig{RequestLimit: limit, WindowLength: window})(okHandler)
}

func hit(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/v1/view", http.NoBody)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitByIP_BlocksOverLimit(t *testing.T) {
	handler := limited(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(handler, "10.0.0.1:1234").Code, "request %d", i+1)
	}

	rec := hit(handler, "10.0.0.1:1234")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var p models.Problem
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
	assert.Equal(t, models.ProblemTypeTooManyRequests, p.Type)
	assert.Equal(t, "/v1/view", p.Instance)
}

func TestRateLimitByIP_SeparateLimitsPerIP(t *testing.T) {
	handler := limited(1, time.Minute)

	assert.Equal(t, http.StatusOK, hit(handler, "172.16.0.1:1").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(handler, "172.16.0.1:2").Code)
	assert.Equal(t, http.StatusOK, hit(handler, "172.16.0.2:1").Code)
}

func TestRateLimitByIP_RetryAfterFollowsWindow(t *testing.T) {
	handler := limited(1, 90*time.Second)

	hit(handler, "192.168.5.5:1")
	rec := hit(handler, "192.168.5.5:1")
	assert.Equal(t, "90", rec.Header().Get("Retry-After"))
}

func TestDefaultRateLimitConfigs(t *testing.T) {
	assert.Greater(t, middleware.ReadRateLimit.RequestLimit, middleware.WriteRateLimit.RequestLimit)
	assert.Equal(t, time.Minute, middleware.ReadRateLimit.WindowLength)
	assert.Equal(t, time.Minute, middleware.WriteRateLimit.WindowLength)
}
