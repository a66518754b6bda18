package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ayusman/blinkwatch/internal/engine"
	"github.com/ayusman/blinkwatch/internal/frame"
)

// Tracker is the part of the engine the tracking endpoint drives.
type Tracker interface {
	Start(ctx context.Context) error
	Stop()
	Status() engine.Status
}

// TrackingHandler starts and stops tracking.
type TrackingHandler struct {
	tracker Tracker
}

// NewTrackingHandler creates a new TrackingHandler.
func NewTrackingHandler(t Tracker) *TrackingHandler {
	return &TrackingHandler{tracker: t}
}

type trackingRequest struct {
	Active *bool `json:"active"`
}

// ServeHTTP handles GET and PUT /api/tracking. A PUT with
// {"active": true} starts tracking and {"active": false} stops it.
func (h *TrackingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.tracker.Status())
	case http.MethodPut:
		h.update(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *TrackingHandler) update(w http.ResponseWriter, r *http.Request) {
	var req trackingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Active == nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if !*req.Active {
		h.tracker.Stop()
		writeJSON(w, http.StatusOK, h.tracker.Status())
		return
	}

	if err := h.tracker.Start(r.Context()); err != nil {
		switch {
		case errors.Is(err, frame.ErrPermissionDenied):
			writeError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, engine.ErrTerminated), errors.Is(err, engine.ErrBusy),
			errors.Is(err, engine.ErrStartInterrupted):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusServiceUnavailable, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, h.tracker.Status())
}
