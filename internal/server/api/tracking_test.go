package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ayusman/blinkwatch/internal/blink"
	"github.com/ayusman/blinkwatch/internal/engine"
	"github.com/ayusman/blinkwatch/internal/frame"
)

type fakeTracker struct {
	startErr error
	active   bool
}

func (f *fakeTracker) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.active = true
	return nil
}

func (f *fakeTracker) Stop() { f.active = false }

func (f *fakeTracker) Status() engine.Status {
	st := engine.Status{State: blink.State{Phase: blink.PhaseInactive}}
	if f.active {
		st.State = blink.State{Phase: blink.PhaseActive}
		st.Active = true
	}
	return st
}

func TestTrackingHandler(t *testing.T) {
	tests := []struct {
		name       string
		startErr   error
		body       string
		wantStatus int
		wantActive bool
	}{
		{"start", nil, `{"active": true}`, http.StatusOK, true},
		{"stop", nil, `{"active": false}`, http.StatusOK, false},
		{"missing field", nil, `{}`, http.StatusBadRequest, false},
		{"denied", fmt.Errorf("%w: camera access denied", frame.ErrPermissionDenied), `{"active": true}`, http.StatusForbidden, false},
		{"terminated", engine.ErrTerminated, `{"active": true}`, http.StatusConflict, false},
		{"no device", frame.ErrDeviceUnavailable, `{"active": true}`, http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := &fakeTracker{startErr: tt.startErr}
			handler := NewTrackingHandler(tracker)

			req := httptest.NewRequest(http.MethodPut, "/api/tracking", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if tracker.active != tt.wantActive {
				t.Errorf("active = %v, want %v", tracker.active, tt.wantActive)
			}
		})
	}
}
