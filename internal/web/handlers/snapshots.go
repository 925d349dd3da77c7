package handlers

import (
	"log"
	"net/http"
)

// SnapshotPurger removes snapshots from previous days.
type SnapshotPurger interface {
	PurgeSnapshots() (int, error)
}

// SnapshotsHandler handles snapshot maintenance.
type SnapshotsHandler struct {
	purger SnapshotPurger
}

// NewSnapshotsHandler creates a new snapshots handler.
func NewSnapshotsHandler(p SnapshotPurger) *SnapshotsHandler {
	return &SnapshotsHandler{purger: p}
}

// Cleanup deletes every snapshot not taken today.
func (h *SnapshotsHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	removed, err := h.purger.PurgeSnapshots()
	if err != nil {
		log.Printf("Snapshot cleanup failed after %d files: %v", removed, err)
		respondError(w, http.StatusInternalServerError, "snapshot cleanup failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"removed": removed,
	})
}
