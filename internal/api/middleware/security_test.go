package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/breatheroute/roadpulse/internal/api/middleware"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	middleware.SecurityHeaders(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Contains(t, rec.Header().Get("Strict-Transport-Security"), "max-age=31536000")
	assert.Equal(t, "default-src 'none'; frame-ancestors 'none'", rec.Header().Get("Content-Security-Policy"))
	assert.NotEmpty(t, rec.Header().Get("Referrer-Policy"))
	assert.NotEmpty(t, rec.Header().Get("Permissions-Policy"))
}

func TestRequireTLS(t *testing.T) {
	tests := []struct {
		name     string
		required bool
		proto    string
		want     int
	}{
		{name: "disabled allows http", required: false, proto: "http", want: http.StatusOK},
		{name: "enabled rejects http", required: true, proto: "http", want: http.StatusForbidden},
		{name: "enabled allows https", required: true, proto: "https", want: http.StatusOK},
		{name: "enabled allows direct connections", required: true, proto: "", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/view", http.NoBody)
			if tt.proto != "" {
				req.Header.Set("X-Forwarded-Proto", tt.proto)
			}
			rec := httptest.NewRecorder()
			middleware.RequireTLS(tt.required)(okHandler).ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusForbidden {
				assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestRequireJSON(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		contentType string
		want        int
	}{
		{name: "json body", method: http.MethodPut, contentType: "application/json", want: http.StatusOK},
		{name: "json with charset", method: http.MethodPut, contentType: "application/json; charset=utf-8", want: http.StatusOK},
		{name: "no content type", method: http.MethodPost, want: http.StatusOK},
		{name: "form body", method: http.MethodPut, contentType: "application/x-www-form-urlencoded", want: http.StatusUnsupportedMediaType},
		{name: "prefix lookalike", method: http.MethodPut, contentType: "application/jsonp", want: http.StatusUnsupportedMediaType},
		{name: "get ignores header", method: http.MethodGet, contentType: "text/plain", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/v1/viewport", http.NoBody)
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			middleware.RequireJSON(okHandler).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestContentTypeJSON_DefaultsHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	middleware.ContentTypeJSON(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
