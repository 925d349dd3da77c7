package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakePurger struct {
	removed int
	err     error
	calls   int
}

func (f *fakePurger) PurgeSnapshots() (int, error) {
	f.calls++
	return f.removed, f.err
}

func TestSnapshotsHandler_Cleanup(t *testing.T) {
	purger := &fakePurger{removed: 4}
	handler := NewSnapshotsHandler(purger)

	recorder := httptest.NewRecorder()
	handler.Cleanup(recorder, httptest.NewRequest("POST", "/api/v1/snapshots/cleanup", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var result struct {
		Status  string `json:"status"`
		Removed int    `json:"removed"`
	}
	parseJSONResponse(t, recorder, &result)
	if result.Status != "ok" || result.Removed != 4 {
		t.Errorf("unexpected response %+v", result)
	}
	if purger.calls != 1 {
		t.Errorf("expected one purge, got %d", purger.calls)
	}
}

func TestSnapshotsHandler_Cleanup_Error(t *testing.T) {
	handler := NewSnapshotsHandler(&fakePurger{err: errors.New("permission denied")})

	recorder := httptest.NewRecorder()
	handler.Cleanup(recorder, httptest.NewRequest("POST", "/api/v1/snapshots/cleanup", nil))

	assertStatusCode(t, recorder, http.StatusInternalServerError)
	assertJSONError(t, recorder, "snapshot cleanup failed")
}
