package api

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hpol369/ItsNadchos/internal/config"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Config{
		APIListenAddr: ":0",
		CronSecret:    "cron-secret",
		WebhookSecret: "webhook-secret",
	}
	return NewServer(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), nil, nil, nil, nil, nil, nil, nil, nil, nil)
}

func TestHealthIsPublic(t *testing.T) {
	srv := testServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rec.Code)
	}
}

func TestProtectedEndpointsRequireBearer(t *testing.T) {
	srv := testServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		auth   string
	}{
		{"webhook no auth", http.MethodPost, "/api/credits/add", ""},
		{"webhook wrong secret", http.MethodPost, "/api/credits/add", "Bearer nope"},
		{"webhook cron secret rejected", http.MethodPost, "/api/credits/add", "Bearer cron-secret"},
		{"cron no auth", http.MethodGet, "/api/cron/daily-push", ""},
		{"cron wrong secret", http.MethodGet, "/api/cron/daily-push", "Bearer nope"},
		{"admin no auth", http.MethodPost, "/admin/users/1/block", ""},
		{"admin malformed header", http.MethodPost, "/admin/users/1/block", "webhook-secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestValidateTokenRequiresToken(t *testing.T) {
	srv := testServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/validate-token", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
