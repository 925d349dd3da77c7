package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/events"
)

// AttendanceQuerier answers the daily attendance view.
type AttendanceQuerier interface {
	Today() string
	TodayAttendance(ctx context.Context, mode database.Mode) ([]attendance.Entry, error)
}

// EventSource hands out attendance update subscriptions.
type EventSource interface {
	AddListener() chan events.RecognitionEvent
	RemoveListener(ch chan events.RecognitionEvent)
}

// AttendanceHandler serves the attendance list and the live update feeds.
type AttendanceHandler struct {
	attendance AttendanceQuerier
	events     EventSource
	upgrader   websocket.Upgrader
	heartbeat  time.Duration
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(a AttendanceQuerier, source EventSource) *AttendanceHandler {
	return &AttendanceHandler{
		attendance: a,
		events:     source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		heartbeat: constants.EventHeartbeatInterval,
	}
}

// SetCheckOrigin replaces the same-origin check used for WebSocket upgrades.
func (h *AttendanceHandler) SetCheckOrigin(fn func(r *http.Request) bool) {
	h.upgrader.CheckOrigin = fn
}

// TodayResponse is the daily attendance list for one mode.
type TodayResponse struct {
	Date     string             `json:"date"`
	Mode     database.Mode      `json:"mode"`
	Students []attendance.Entry `json:"students"`
	Count    int                `json:"count"`
}

// Today lists the students recognized today in the requested mode, most recent first.
func (h *AttendanceHandler) Today(w http.ResponseWriter, r *http.Request) {
	mode, ok := modeParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid mode")
		return
	}

	entries, err := h.attendance.TodayAttendance(r.Context(), mode)
	if err != nil {
		log.Printf("Failed to query attendance: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to query attendance")
		return
	}
	if entries == nil {
		entries = []attendance.Entry{}
	}

	respondJSON(w, http.StatusOK, TodayResponse{
		Date:     h.attendance.Today(),
		Mode:     mode,
		Students: entries,
		Count:    len(entries),
	})
}

// Events streams attendance updates as server-sent events.
func (h *AttendanceHandler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := setupSSEConnection(w)
	if !ok {
		return
	}

	eventCh := h.events.AddListener()
	defer h.events.RemoveListener(eventCh)

	sendSSEEvent(w, flusher, "connected", map[string]string{"channel": constants.AttendanceChannel})

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			sendSSEEvent(w, flusher, "attendance_update", event)
		case <-ticker.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		}
	}
}

// WebSocket pushes attendance updates as JSON messages to a dashboard.
func (h *AttendanceHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client.
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	eventCh := h.events.AddListener()
	defer h.events.RemoveListener(eventCh)

	// The dashboard never sends anything; reading only detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("WebSocket error: %v", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case event, ok := <-eventCh:
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(constants.WebSocketWriteTimeout))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				log.Printf("WebSocket write failed: %v", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(constants.WebSocketWriteTimeout)); err != nil {
				return
			}
		}
	}
}
