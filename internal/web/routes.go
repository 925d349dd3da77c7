package web

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/web/handlers"
	"github.com/kozaktomas/face-attendance/internal/web/static"
)

func (s *Server) setupRoutes() {
	// Create handlers
	camerasHandler := handlers.NewCamerasHandler(s.deps.Cameras, s.deps.Engine, s.config.Stream)
	attendanceHandler := handlers.NewAttendanceHandler(s.deps.Attendance, s.deps.Events)
	attendanceHandler.SetCheckOrigin(s.origins.CheckOrigin)
	galleryHandler := handlers.NewGalleryHandler(s.deps.Gallery)
	snapshotsHandler := handlers.NewSnapshotsHandler(s.deps.Attendance)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)

		// Long-lived responses, no request timeout
		r.Get("/cameras/{index}/stream", camerasHandler.Stream)
		r.Get("/attendance/events", attendanceHandler.Events)

		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(constants.APIRequestTimeout))

			// Cameras
			r.Get("/cameras", camerasHandler.List)
			r.Post("/cameras/{index}/stop", camerasHandler.Stop)

			// Attendance
			r.Get("/attendance/today", attendanceHandler.Today)

			// Gallery
			r.Get("/gallery", galleryHandler.List)
			r.Post("/gallery/reload", galleryHandler.Reload)
			r.Post("/students/{id}/enroll", galleryHandler.Enroll)

			// Snapshots
			r.Post("/snapshots/cleanup", snapshotsHandler.Cleanup)
		})
	})

	s.router.Get("/ws/attendance", attendanceHandler.WebSocket)

	if s.deps.SnapshotDir != "" {
		s.router.Get("/snapshots/*", snapshotFiles(s.deps.SnapshotDir))
	}

	// Serve dashboard for all other routes
	s.router.Get("/*", s.serveSPA)
}

// snapshotFiles serves attendance snapshots without directory listings.
func snapshotFiles(dir string) http.HandlerFunc {
	fileServer := http.StripPrefix("/snapshots/", http.FileServer(http.Dir(dir)))
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "no-cache")
		fileServer.ServeHTTP(w, r)
	}
}

// serveSPA serves the embedded dashboard
func (s *Server) serveSPA(w http.ResponseWriter, r *http.Request) {
	if static.HasDashboard() {
		fs := static.Dashboard()
		name := r.URL.Path
		if name == "/" {
			name = "/index.html"
		}

		f, err := fs.Open(name)
		if err == nil {
			defer f.Close()

			stat, err := f.Stat()
			if err == nil && !stat.IsDir() {
				w.Header().Set("Content-Type", static.ContentType(name))
				w.WriteHeader(http.StatusOK)
				io.Copy(w, f)
				return
			}
		}

		// Unknown paths get the dashboard so client-side links work
		indexFile, err := fs.Open("/index.html")
		if err == nil {
			defer indexFile.Close()
			w.Header().Set("Content-Type", static.ContentType("index.html"))
			w.WriteHeader(http.StatusOK)
			io.Copy(w, indexFile)
			return
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Face Attendance</title></head>
<body>
    <h1>Face Attendance</h1>
    <p>Dashboard assets are missing. API is available at <a href="/api/v1/health">/api/v1/health</a></p>
</body>
</html>`))
}
