package recognition

import (
	"image"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/facematch"
)

// TrackedFace is a recently detected face kept on screen between detection cycles.
type TrackedFace struct {
	Box      image.Rectangle
	Match    facematch.Match
	LastSeen time.Time
}

// Tracker holds the faces found by the latest detection cycle of one camera.
type Tracker struct {
	mu      sync.Mutex
	faces   []TrackedFace
	timeout time.Duration
}

// NewTracker creates a tracker that hides faces not seen for longer than timeout.
func NewTracker(timeout time.Duration) *Tracker {
	return &Tracker{timeout: timeout}
}

// Replace sets the faces of the latest detection cycle.
func (t *Tracker) Replace(faces []TrackedFace) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.faces = faces
}

// Active returns the faces seen within the timeout and drops the rest.
func (t *Tracker) Active(now time.Time) []TrackedFace {
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.faces[:0:0]
	for _, f := range t.faces {
		if now.Sub(f.LastSeen) <= t.timeout {
			kept = append(kept, f)
		}
	}
	t.faces = kept
	return append([]TrackedFace(nil), kept...)
}
