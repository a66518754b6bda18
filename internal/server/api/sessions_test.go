package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayusman/blinkwatch/internal/store"
)

// newTestStore creates a new Store with a temporary database for testing.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "blinkwatch-api-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() {
		os.RemoveAll(tmpDir)
	})

	s, err := store.New(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})

	return s
}

func seedSession(t *testing.T, s *store.Store, id string, start time.Time) {
	t.Helper()
	repo := s.Sessions()
	if err := repo.Begin(id, start); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := repo.AddEvent(id, start.Add(time.Second), "starting", "active(eyeOpen=false)"); err != nil {
		t.Fatalf("AddEvent() error = %v", err)
	}
	if err := repo.Finish(id, start.Add(time.Minute), "stopped", json.RawMessage(`{"frames":900}`)); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
}

func TestSessionsHandler_List(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	seedSession(t, s, "older", start)
	seedSession(t, s, "newer", start.Add(time.Hour))

	handler := NewSessionsHandler(s)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var response listSessionsResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(response.Sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(response.Sessions))
	}
	if response.Sessions[0].ID != "newer" {
		t.Errorf("expected newest session first, got %s", response.Sessions[0].ID)
	}
	if string(response.Sessions[0].Summary) != `{"frames":900}` {
		t.Errorf("unexpected summary %s", response.Sessions[0].Summary)
	}

	t.Run("limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/sessions?limit=1", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		var response listSessionsResponse
		json.NewDecoder(rec.Body).Decode(&response)
		if len(response.Sessions) != 1 {
			t.Errorf("expected 1 session, got %d", len(response.Sessions))
		}
	})

	t.Run("bad limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/sessions?limit=many", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})
}

func TestSessionsHandler_GetAndDelete(t *testing.T) {
	s := newTestStore(t)
	seedSession(t, s, "sess-1", time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC))
	handler := NewSessionsHandler(s)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/sess-1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var got sessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.EndReason != "stopped" || len(got.Events) != 1 {
		t.Errorf("unexpected session %+v", got)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/sessions/sess-1", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		req = httptest.NewRequest(method, "/api/sessions/sess-1", nil)
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s after delete: expected status %d, got %d", method, http.StatusNotFound, rec.Code)
		}
	}
}

func TestSessionsHandler_MethodNotAllowed(t *testing.T) {
	handler := NewSessionsHandler(newTestStore(t))

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/sessions"},
		{http.MethodDelete, "/api/sessions"},
		{http.MethodPut, "/api/sessions/x"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: expected status %d, got %d", tt.method, tt.path, http.StatusMethodNotAllowed, rec.Code)
		}
	}
}
