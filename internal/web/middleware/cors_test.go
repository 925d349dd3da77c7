package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAllowedOrigins_FromEnv(t *testing.T) {
	t.Setenv("WEB_ALLOWED_ORIGINS", "https://office.school.example, ,https://gate.school.example")

	origins := AllowedOrigins()
	if len(origins) != 2 {
		t.Fatalf("expected 2 origins, got %d", len(origins))
	}
	if !origins.Allowed("https://gate.school.example") {
		t.Error("expected configured origin to be allowed")
	}
	if origins.Allowed("https://evil.example") {
		t.Error("expected unknown origin to be rejected")
	}
}

func TestOrigins_Allowed(t *testing.T) {
	origins := Origins{"https://office.school.example": {}}

	tests := []struct {
		origin string
		want   bool
	}{
		{"", false},
		{"http://localhost:5173", true},
		{"http://127.0.0.1:8080", true},
		{"ftp://localhost", false},
		{"https://office.school.example", true},
		{"https://office.school.example:8443", false},
		{"https://localhost.evil.example", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			if got := origins.Allowed(tt.origin); got != tt.want {
				t.Errorf("Allowed(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

func TestOrigins_CheckOrigin(t *testing.T) {
	origins := Origins{"https://office.school.example": {}}

	tests := []struct {
		name   string
		host   string
		origin string
		want   bool
	}{
		{"no origin header", "attendance.local:8080", "", true},
		{"same host", "attendance.local:8080", "http://attendance.local:8080", true},
		{"allowed dashboard", "attendance.local:8080", "https://office.school.example", true},
		{"foreign page", "attendance.local:8080", "https://evil.example", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws/attendance", nil)
			req.Host = tt.host
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := origins.CheckOrigin(req); got != tt.want {
				t.Errorf("CheckOrigin() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCORS_AllowedOriginIsEchoed(t *testing.T) {
	handler := CORS(Origins{"https://office.school.example": {}})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/attendance/today", nil)
	req.Header.Set("Origin", "https://office.school.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://office.school.example" {
		t.Errorf("expected origin to be echoed, got %q", got)
	}
	if got := rec.Header().Get("Vary"); got != "Origin" {
		t.Errorf("expected Vary: Origin, got %q", got)
	}
}

func TestCORS_UnknownOriginNotEchoed(t *testing.T) {
	handler := CORS(Origins{})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cameras", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no Access-Control-Allow-Origin, got %q", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	called := false
	handler := CORS(Origins{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/cameras/0/stop", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if called {
		t.Error("preflight should not reach the handler")
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, OPTIONS" {
		t.Errorf("unexpected Access-Control-Allow-Methods %q", got)
	}
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders()(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("expected Content-Security-Policy header")
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("expected nosniff, got %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("expected DENY, got %q", got)
	}
}
