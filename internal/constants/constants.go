// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Gallery constants
const (
	// GallerySearchCandidates is the number of HNSW neighbours re-ranked by exact distance
	GallerySearchCandidates = 8

	// GalleryExactScanLimit is the gallery size up to which queries scan linearly
	GalleryExactScanLimit = 256

	// HNSWMaxNeighbors is the M parameter of the gallery graph
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the candidate list size used while searching the gallery graph
	HNSWEfSearch = 64
)

// Recognition constants
const (
	// DuplicateFaceIoU is the overlap above which two detections in one frame are the same face
	DuplicateFaceIoU = 0.6
)

// Capture constants
const (
	// CameraReinitDelay is how long the capture loop waits before reopening a failed device
	CameraReinitDelay = 500 * time.Millisecond

	// CameraErrorLogInterval limits capture error logs per camera
	CameraErrorLogInterval = 5 * time.Second

	// CameraStopTimeout bounds how long Stop waits for the capture loop to exit
	CameraStopTimeout = 2 * time.Second
)

// Streaming constants
const (
	// MJPEGBoundary is the multipart boundary of the video stream
	MJPEGBoundary = "frame"

	// UnknownLabel is drawn over faces without a gallery match
	UnknownLabel = "Unknown"
)

// Event constants
const (
	// AttendanceChannel is the fan-out channel name for attendance updates
	AttendanceChannel = "attendance_updates"

	// EventChannelBuffer is the buffer size for event listener channels
	EventChannelBuffer = 100

	// SinkBuffer is the buffer size of each external event sink
	SinkBuffer = 256

	// EventHeartbeatInterval is how often idle SSE and WebSocket clients are pinged
	EventHeartbeatInterval = 30 * time.Second

	// WebSocketWriteTimeout bounds a single WebSocket write
	WebSocketWriteTimeout = 10 * time.Second
)

// Snapshot directories per attendance mode
const (
	TimeInDir  = "time_in"
	TimeOutDir = "time_out"
)

// DateLayout is the attendance day key format
const DateLayout = "2006-01-02"

// Server constants
const (
	// APIRequestTimeout bounds non-streaming API requests. Streams have no deadline.
	APIRequestTimeout = 2 * time.Minute

	// ShutdownTimeout bounds graceful shutdown of the HTTP server and workers
	ShutdownTimeout = 30 * time.Second
)
