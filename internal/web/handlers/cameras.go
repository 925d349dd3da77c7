package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/camera"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/kozaktomas/face-attendance/internal/stream"
)

// CameraManager starts, stops and reports cameras.
type CameraManager interface {
	Start(index int) (*camera.Camera, error)
	Stop(index int) error
	Status() []camera.Status
}

// CamerasHandler serves the live video streams and camera control endpoints.
type CamerasHandler struct {
	cameras CameraManager
	engine  *recognition.Engine // nil disables recognition
	stream  config.StreamConfig
}

// NewCamerasHandler creates a new cameras handler. engine may be nil.
func NewCamerasHandler(cameras CameraManager, engine *recognition.Engine, cfg config.StreamConfig) *CamerasHandler {
	return &CamerasHandler{
		cameras: cameras,
		engine:  engine,
		stream:  cfg,
	}
}

// List returns the state of every configured camera.
func (h *CamerasHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"cameras": h.cameras.Status(),
	})
}

// Stream serves an MJPEG stream of the camera. Query parameters:
// recognition=true enables face matching, mode=arrival|departure selects the attendance mode.
// The stream ends when the client disconnects or the camera is stopped.
func (h *CamerasHandler) Stream(w http.ResponseWriter, r *http.Request) {
	index, ok := cameraIndex(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid camera index")
		return
	}

	recognize := false
	if raw := r.URL.Query().Get("recognition"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid recognition flag")
			return
		}
		recognize = b
	}

	mode, ok := modeParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid mode")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	cam, err := h.cameras.Start(index)
	if errors.Is(err, camera.ErrUnknownCamera) {
		respondError(w, http.StatusNotFound, "camera not found")
		return
	}
	if err != nil {
		log.Printf("Failed to start camera %d: %v", index, err)
		respondError(w, http.StatusInternalServerError, "failed to start camera")
		return
	}

	var processor stream.Processor
	if recognize && h.engine != nil {
		processor = h.engine.NewSession(index, true, mode)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		select {
		case <-cam.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	mw := stream.NewWriter(w)
	w.Header().Set("Content-Type", mw.ContentType())
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	streamID := uuid.NewString()
	log.Printf("Stream %s: camera %d opened (recognition=%t, mode=%s)", streamID, index, recognize, mode)

	pump := stream.NewPump(cam, processor, h.stream.JPEGQuality, h.stream.FrameRate)
	if err := pump.Run(ctx, mw, flusher.Flush); err != nil {
		log.Printf("Stream %s: client gone: %v", streamID, err)
	}
	log.Printf("Stream %s: camera %d closed", streamID, index)
}

// Stop releases the camera. Stopping a camera that is not running or not configured succeeds.
func (h *CamerasHandler) Stop(w http.ResponseWriter, r *http.Request) {
	index, ok := cameraIndex(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid camera index")
		return
	}

	if err := h.cameras.Stop(index); err != nil {
		log.Printf("Failed to stop camera %d: %v", index, err)
		respondError(w, http.StatusInternalServerError, "failed to stop camera")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "camera released"})
}
