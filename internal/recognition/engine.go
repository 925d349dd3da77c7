// Package recognition detects and identifies faces on streamed frames and hands
// recognized students to attendance.
package recognition

import (
	"context"
	"image"
	"log"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/embedding"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"golang.org/x/time/rate"
)

// Detector finds faces and computes their encodings.
type Detector interface {
	DetectFaces(ctx context.Context, img image.Image) ([]embedding.Face, error)
}

// Matcher identifies an encoding against the enrolled gallery.
type Matcher interface {
	Query(vec []float32) facematch.Match
	Count() int
}

// Handoff receives recognized students. Submit must not block.
type Handoff interface {
	Submit(studentID string, face image.Image, mode database.Mode, at time.Time) bool
}

// Engine runs detection for stream sessions and keeps one tracker per camera.
type Engine struct {
	detector Detector
	matcher  Matcher
	handoff  Handoff
	everyN   int
	resize   float64
	timeout  time.Duration

	mu       sync.Mutex
	trackers map[int]*Tracker

	errLog  rate.Sometimes
	dropLog rate.Sometimes
	now     func() time.Time
}

// NewEngine creates an engine. handoff may be nil, in which case faces are only displayed.
func NewEngine(detector Detector, matcher Matcher, handoff Handoff, cfg config.RecognitionConfig) *Engine {
	everyN := cfg.EveryN
	if everyN < 1 {
		everyN = 1
	}
	return &Engine{
		detector: detector,
		matcher:  matcher,
		handoff:  handoff,
		everyN:   everyN,
		resize:   cfg.Resize,
		timeout:  cfg.Timeout,
		trackers: make(map[int]*Tracker),
		errLog:   rate.Sometimes{Interval: constants.CameraErrorLogInterval},
		dropLog:  rate.Sometimes{Interval: constants.CameraErrorLogInterval},
		now:      time.Now,
	}
}

// Tracker returns the tracker of a camera, creating it on first use.
func (e *Engine) Tracker(camera int) *Tracker {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.trackers[camera]
	if !ok {
		t = NewTracker(e.timeout)
		e.trackers[camera] = t
	}
	return t
}

// Session is the recognition state of one stream connection.
type Session struct {
	engine  *Engine
	camera  int
	tracker *Tracker
	enabled bool
	mode    database.Mode
	frames  int
}

// NewSession starts recognition for a stream of camera in the given mode.
func (e *Engine) NewSession(camera int, enabled bool, mode database.Mode) *Session {
	return &Session{
		engine:  e,
		camera:  camera,
		tracker: e.Tracker(camera),
		enabled: enabled,
		mode:    mode,
	}
}

// Process runs detection on every Nth frame and returns the faces to draw on img.
func (s *Session) Process(ctx context.Context, img image.Image) []TrackedFace {
	if !s.enabled {
		return nil
	}
	s.frames++
	if (s.frames-1)%s.engine.everyN == 0 && s.engine.matcher.Count() > 0 {
		s.detect(ctx, img)
	}
	return s.tracker.Active(s.engine.now())
}

func (s *Session) detect(ctx context.Context, img image.Image) {
	e := s.engine
	bounds := img.Bounds()
	if bounds.Empty() {
		return
	}
	small := embedding.Downscale(img, e.resize)
	factor := float64(small.Bounds().Dx()) / float64(bounds.Dx())

	faces, err := e.detector.DetectFaces(ctx, small)
	if err != nil {
		if ctx.Err() == nil {
			e.errLog.Do(func() { log.Printf("recognition: camera %d: detection failed: %v", s.camera, err) })
		}
		return
	}

	now := e.now()
	tracked := make([]TrackedFace, 0, len(faces))
	for _, f := range faces {
		box := facematch.ScaleBox(f.BBox, factor, bounds)
		if box.Empty() || overlapsTracked(tracked, box) {
			continue
		}
		m := e.matcher.Query(f.Embedding)
		tracked = append(tracked, TrackedFace{Box: box, Match: m, LastSeen: now})

		if m.IsMatched() && e.handoff != nil {
			if !e.handoff.Submit(m.StudentID(), embedding.Crop(img, box), s.mode, now) {
				e.dropLog.Do(func() { log.Printf("recognition: attendance queue full, dropped %s", m.StudentID()) })
			}
		}
	}
	s.tracker.Replace(tracked)
}

// overlapsTracked reports whether box is a second detection of a face already in tracked.
func overlapsTracked(tracked []TrackedFace, box image.Rectangle) bool {
	for _, t := range tracked {
		if facematch.ComputeIoU(t.Box, box) > constants.DuplicateFaceIoU {
			return true
		}
	}
	return false
}
