package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/events"
)

type fakeAttendance struct {
	entries map[database.Mode][]attendance.Entry
	err     error
}

func (f *fakeAttendance) Today() string { return "2025-03-03" }

func (f *fakeAttendance) TodayAttendance(ctx context.Context, mode database.Mode) ([]attendance.Entry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.entries[mode], nil
}

func testEvent() events.RecognitionEvent {
	student := database.Student{ID: "1001", FirstName: "Juan", MiddleName: "Santos", LastName: "Dela Cruz", Grade: 7, Section: "Rizal"}
	return events.NewRecognitionEvent(student, database.ModeArrival, time.Date(2025, 3, 3, 7, 5, 0, 0, time.UTC), "/snapshots/time_in/2025-03-03_1001.jpg")
}

func TestAttendanceHandler_Today(t *testing.T) {
	in := time.Date(2025, 3, 3, 7, 5, 0, 0, time.UTC)
	out := time.Date(2025, 3, 3, 16, 0, 0, 0, time.UTC)
	fake := &fakeAttendance{entries: map[database.Mode][]attendance.Entry{
		database.ModeArrival:   {{StudentID: "1001", Name: "Juan S. Dela Cruz", TimeIn: &in}, {StudentID: "1002", TimeIn: &in}},
		database.ModeDeparture: {{StudentID: "1001", Name: "Juan S. Dela Cruz", TimeIn: &in, TimeOut: &out}},
	}}
	handler := NewAttendanceHandler(fake, events.NewHub())

	tests := []struct {
		query string
		mode  database.Mode
		count int
	}{
		{"", database.ModeArrival, 2},
		{"?mode=arrival", database.ModeArrival, 2},
		{"?mode=departure", database.ModeDeparture, 1},
	}

	for _, tc := range tests {
		t.Run(string(tc.mode)+tc.query, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			handler.Today(recorder, httptest.NewRequest("GET", "/api/v1/attendance/today"+tc.query, nil))

			assertStatusCode(t, recorder, http.StatusOK)
			var result TodayResponse
			parseJSONResponse(t, recorder, &result)
			if result.Date != "2025-03-03" || result.Mode != tc.mode {
				t.Errorf("unexpected date/mode %s/%s", result.Date, result.Mode)
			}
			if result.Count != tc.count || len(result.Students) != tc.count {
				t.Errorf("expected %d students, got count=%d len=%d", tc.count, result.Count, len(result.Students))
			}
		})
	}
}

func TestAttendanceHandler_Today_Errors(t *testing.T) {
	handler := NewAttendanceHandler(&fakeAttendance{err: errors.New("db down")}, events.NewHub())

	recorder := httptest.NewRecorder()
	handler.Today(recorder, httptest.NewRequest("GET", "/api/v1/attendance/today?mode=sideways", nil))
	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "invalid mode")

	recorder = httptest.NewRecorder()
	handler.Today(recorder, httptest.NewRequest("GET", "/api/v1/attendance/today", nil))
	assertStatusCode(t, recorder, http.StatusInternalServerError)
	assertJSONError(t, recorder, "failed to query attendance")
}

func TestAttendanceHandler_Today_EmptyListIsArray(t *testing.T) {
	handler := NewAttendanceHandler(&fakeAttendance{entries: map[database.Mode][]attendance.Entry{
		database.ModeArrival: {},
	}}, events.NewHub())

	recorder := httptest.NewRecorder()
	handler.Today(recorder, httptest.NewRequest("GET", "/api/v1/attendance/today", nil))

	if !strings.Contains(recorder.Body.String(), `"students":[]`) {
		t.Errorf("expected empty students array, got %s", recorder.Body.String())
	}
}

func TestAttendanceHandler_Events(t *testing.T) {
	hub := events.NewHub()
	handler := NewAttendanceHandler(&fakeAttendance{}, hub)

	recorder := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.Events(recorder, httptest.NewRequest("GET", "/api/v1/attendance/events", nil))
	}()

	waitFor(t, "SSE listener", func() bool { return hub.ListenerCount() == 1 })
	hub.Publish(testEvent())
	// Closing the hub ends the stream after the buffered event is written.
	hub.Close()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("SSE handler did not return after the hub closed")
	}

	assertContentType(t, recorder, "text/event-stream")
	body := recorder.Body.String()
	if !strings.HasPrefix(body, "event: connected\n") {
		t.Errorf("expected connected event first, got %q", body)
	}
	if !strings.Contains(body, "event: attendance_update\ndata: {") {
		t.Errorf("expected attendance_update event, got %q", body)
	}
	if !strings.Contains(body, `"student_id":"1001"`) || !strings.Contains(body, `"grade_section":"7 - Rizal"`) {
		t.Errorf("expected student payload, got %q", body)
	}
}

func TestAttendanceHandler_Events_ClientDisconnect(t *testing.T) {
	hub := events.NewHub()
	handler := NewAttendanceHandler(&fakeAttendance{}, hub)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", "/api/v1/attendance/events", nil).WithContext(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.Events(httptest.NewRecorder(), req)
	}()

	waitFor(t, "SSE listener", func() bool { return hub.ListenerCount() == 1 })
	cancel()
	<-done

	if n := hub.ListenerCount(); n != 0 {
		t.Errorf("expected listener removed, got %d", n)
	}
}

func TestAttendanceHandler_WebSocket(t *testing.T) {
	hub := events.NewHub()
	handler := NewAttendanceHandler(&fakeAttendance{}, hub)
	server := httptest.NewServer(http.HandlerFunc(handler.WebSocket))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	waitFor(t, "WebSocket listener", func() bool { return hub.ListenerCount() == 1 })
	hub.Publish(testEvent())

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var got events.RecognitionEvent
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got.StudentID != "1001" || got.DisplayName != "Juan S. Dela Cruz" || got.Channel != "attendance_updates" {
		t.Errorf("unexpected event %+v", got)
	}

	hub.Close()
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("expected going-away close, got %v", err)
	}
}
