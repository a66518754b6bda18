package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ayusman/blinkwatch/internal/eye"
	"github.com/ayusman/blinkwatch/internal/prefs"
)

// PreferencesHandler reads and updates user preferences.
type PreferencesHandler struct {
	prefs prefs.Updater
}

// NewPreferencesHandler creates a new PreferencesHandler.
func NewPreferencesHandler(p prefs.Updater) *PreferencesHandler {
	return &PreferencesHandler{prefs: p}
}

type preferencesResponse struct {
	Sensitivity           string  `json:"sensitivity"`
	BlinkThresholdSeconds float64 `json:"blink_threshold_seconds"`
}

// Fields left out of an update keep their current value.
type updatePreferencesRequest struct {
	Sensitivity           *string  `json:"sensitivity"`
	BlinkThresholdSeconds *float64 `json:"blink_threshold_seconds"`
}

func toPreferencesResponse(s prefs.Snapshot) preferencesResponse {
	return preferencesResponse{
		Sensitivity:           s.Sensitivity.String(),
		BlinkThresholdSeconds: s.BlinkThreshold.Seconds(),
	}
}

// ServeHTTP handles GET and PUT /api/preferences.
func (h *PreferencesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, toPreferencesResponse(h.prefs.Snapshot()))
	case http.MethodPut:
		h.update(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *PreferencesHandler) update(w http.ResponseWriter, r *http.Request) {
	var req updatePreferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	next := h.prefs.Snapshot()
	if req.Sensitivity != nil {
		s, err := eye.ParseSensitivity(*req.Sensitivity)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid sensitivity")
			return
		}
		next.Sensitivity = s
	}
	if req.BlinkThresholdSeconds != nil {
		next.BlinkThreshold = time.Duration(*req.BlinkThresholdSeconds * float64(time.Second))
	}

	if err := h.prefs.Update(next); err != nil {
		if errors.Is(err, prefs.ErrInvalid) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to save preferences")
		return
	}

	writeJSON(w, http.StatusOK, toPreferencesResponse(next))
}
