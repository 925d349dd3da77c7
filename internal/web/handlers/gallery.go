package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/gallery"
)

// FaceGallery is the enrolled face set.
type FaceGallery interface {
	Count() int
	StudentIDs() []string
	Threshold() float64
	LoadAll(ctx context.Context, progress func(studentID string, err error)) (gallery.LoadResult, error)
	Add(ctx context.Context, studentID string) error
}

// GalleryHandler handles gallery inspection and enrollment endpoints.
type GalleryHandler struct {
	gallery FaceGallery
}

// NewGalleryHandler creates a new gallery handler.
func NewGalleryHandler(g FaceGallery) *GalleryHandler {
	return &GalleryHandler{gallery: g}
}

// GalleryResponse describes the loaded gallery.
type GalleryResponse struct {
	Count     int      `json:"count"`
	Threshold float64  `json:"threshold"`
	Students  []string `json:"students"`
}

// List returns the enrolled student IDs.
func (h *GalleryHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, GalleryResponse{
		Count:     h.gallery.Count(),
		Threshold: h.gallery.Threshold(),
		Students:  h.gallery.StudentIDs(),
	})
}

// ReloadResponse summarizes a full gallery rebuild.
type ReloadResponse struct {
	Loaded  int      `json:"loaded"`
	Cached  int      `json:"cached"`
	Skipped []string `json:"skipped"`
}

// Reload rebuilds the gallery from every reference image.
func (h *GalleryHandler) Reload(w http.ResponseWriter, r *http.Request) {
	result, err := h.gallery.LoadAll(r.Context(), nil)
	if err != nil {
		log.Printf("Failed to reload gallery: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to reload gallery")
		return
	}

	skipped := result.Skipped
	if skipped == nil {
		skipped = []string{}
	}
	respondJSON(w, http.StatusOK, ReloadResponse{
		Loaded:  result.Loaded,
		Cached:  result.Cached,
		Skipped: skipped,
	})
}

// Enroll adds or replaces one student's encoding after their reference image changed.
func (h *GalleryHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "id")
	if studentID == "" {
		respondError(w, http.StatusBadRequest, "missing student ID")
		return
	}

	err := h.gallery.Add(r.Context(), studentID)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]any{
			"student_id": studentID,
			"enrolled":   true,
			"count":      h.gallery.Count(),
		})
	case errors.Is(err, gallery.ErrInvalidStudentID):
		respondError(w, http.StatusBadRequest, "invalid student ID")
	case errors.Is(err, gallery.ErrNoImage):
		respondError(w, http.StatusNotFound, "no reference image for student")
	case errors.Is(err, gallery.ErrNoFace):
		respondError(w, http.StatusUnprocessableEntity, "no face found in reference image")
	default:
		log.Printf("Failed to enroll %s: %v", sanitizeForLog(studentID), err)
		respondError(w, http.StatusInternalServerError, "failed to enroll student")
	}
}
