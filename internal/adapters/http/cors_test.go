package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jobrunner/geotools/internal/config"
)

func TestExtractHost(t *testing.T) {
	tests := []struct {
		origin   string
		expected string
	}{
		{"https://example.com", "example.com"},
		{"https://example.com:8080", "example.com"},
		{"https://example.com:443/path", "example.com"},
		{"https://deep.sub.example.com", "deep.sub.example.com"},
		{"http://localhost:3000", "localhost"},
		{"http://192.168.1.1:8080", "192.168.1.1"},
		{"example.com", "example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			if got := extractHost(tt.origin); got != tt.expected {
				t.Errorf("extractHost(%q) = %q; want %q", tt.origin, got, tt.expected)
			}
		})
	}
}

func TestMatchOrigin(t *testing.T) {
	tests := []struct {
		name    string
		origin  string
		pattern string
		want    bool
	}{
		{"any origin", "https://maps.example.org", "*", true},
		{"exact", "https://example.com", "https://example.com", true},
		{"exact scheme differs", "http://example.com", "https://example.com", false},
		{"subdomain wildcard", "https://app.example.com", "*.example.com", true},
		{"deep subdomain wildcard", "https://a.b.example.com:8443", "*.example.com", true},
		{"wildcard excludes apex", "https://example.com", "*.example.com", false},
		{"wildcard suffix trick", "https://evilexample.com", "*.example.com", false},
		{"different host", "https://evil.com", "https://example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchOrigin(tt.origin, tt.pattern); got != tt.want {
				t.Errorf("matchOrigin(%q, %q) = %v; want %v", tt.origin, tt.pattern, got, tt.want)
			}
		})
	}
}

func corsServer(origins ...string) *Server {
	return &Server{
		config: config.ServerConfig{CORS: config.CORSConfig{AllowedOrigins: origins}},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		allowed    []string
		origin     string
		method     string
		wantOrigin string
		wantStatus int
		wantNext   bool
	}{
		{"allowed GET", []string{"https://example.com"}, "https://example.com", http.MethodGet, "https://example.com", http.StatusOK, true},
		{"allowed preflight", []string{"https://example.com"}, "https://example.com", http.MethodOptions, "https://example.com", http.StatusNoContent, false},
		{"wildcard", []string{"*.example.com"}, "https://app.example.com", http.MethodPost, "https://app.example.com", http.StatusOK, true},
		{"any origin", []string{"*"}, "https://tool.example.net", http.MethodPost, "https://tool.example.net", http.StatusOK, true},
		{"not allowed", []string{"https://example.com"}, "https://evil.com", http.MethodGet, "", http.StatusOK, true},
		{"no origin header", []string{"https://example.com"}, "", http.MethodGet, "", http.StatusOK, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nextCalled := false
			next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				nextCalled = true
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(tt.method, "/api/cell-site/upload", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rr := httptest.NewRecorder()
			corsServer(tt.allowed...).corsMiddleware(next).ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d; want %d", rr.Code, tt.wantStatus)
			}
			if nextCalled != tt.wantNext {
				t.Errorf("next called = %v; want %v", nextCalled, tt.wantNext)
			}
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Access-Control-Allow-Origin = %q; want %q", got, tt.wantOrigin)
			}
			if tt.wantOrigin == "" {
				return
			}
			if got := rr.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, OPTIONS" {
				t.Errorf("Access-Control-Allow-Methods = %q", got)
			}
			if got := rr.Header().Get("Vary"); got != "Origin" {
				t.Errorf("Vary = %q", got)
			}
		})
	}
}

func TestCORSPreflightThroughRouter(t *testing.T) {
	env := newTestEnv(t, nil)
	env.server.config.CORS.AllowedOrigins = []string{"*"}
	router := env.server.setupRoutes()

	req := httptest.NewRequest(http.MethodOptions, "/api/cell-site/upload", nil)
	req.Header.Set("Origin", "https://ui.example.com")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("status = %d; want 204", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://ui.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestCORSConfigEnabled(t *testing.T) {
	if (&config.CORSConfig{}).Enabled() {
		t.Error("empty origin list should disable CORS")
	}
	if !(&config.CORSConfig{AllowedOrigins: []string{"*"}}).Enabled() {
		t.Error("non-empty origin list should enable CORS")
	}
}
