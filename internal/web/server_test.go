package web

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/config"
)

func newTestServer(t *testing.T, snapshotDir string) *Server {
	t.Helper()
	return NewServer(&config.Config{}, 0, "127.0.0.1", Deps{SnapshotDir: snapshotDir})
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t, "")

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers on API responses")
	}
}

func TestServer_Dashboard(t *testing.T) {
	s := newTestServer(t, "")

	for _, path := range []string{"/", "/students/some-client-route"} {
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected status 200, got %d", path, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
			t.Errorf("%s: expected html, got %q", path, ct)
		}
		if !strings.Contains(rec.Body.String(), "Face Attendance") {
			t.Errorf("%s: expected dashboard page", path)
		}
	}
}

func TestServer_DashboardAssets(t *testing.T) {
	s := newTestServer(t, "")

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app.js", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/javascript; charset=utf-8" {
		t.Errorf("unexpected content type %q", ct)
	}
}

func TestServer_Snapshots(t *testing.T) {
	dir := t.TempDir()
	day := filepath.Join(dir, "time_in")
	if err := os.MkdirAll(day, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(day, "2026-10-15_123456789012.jpg"), []byte("jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := newTestServer(t, dir)

	t.Run("file", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/snapshots/time_in/2026-10-15_123456789012.jpg", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		if rec.Body.String() != "jpeg" {
			t.Errorf("unexpected body %q", rec.Body.String())
		}
	})

	t.Run("directory listing", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/snapshots/time_in/", nil))

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
	})

	t.Run("missing", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/snapshots/time_in/2026-10-15_999999999999.jpg", nil))

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
	})
}
