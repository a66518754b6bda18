package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/blinkwatch/internal/blink"
	"github.com/ayusman/blinkwatch/internal/engine"
	"github.com/ayusman/blinkwatch/internal/prefs"
	"github.com/ayusman/blinkwatch/internal/signal"
	"github.com/ayusman/blinkwatch/internal/store"
)

type fakeEngine struct {
	eyes        *signal.Bool
	active      *signal.Bool
	transitions *signal.Feed[blink.Transition]
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		eyes:        signal.NewBool(0),
		active:      signal.NewBool(0),
		transitions: signal.NewFeed[blink.Transition](),
	}
}

func (f *fakeEngine) Start(context.Context) error {
	f.active.Set(true)
	return nil
}

func (f *fakeEngine) Stop() {
	f.eyes.Set(false)
	f.active.Set(false)
}

func (f *fakeEngine) Status() engine.Status {
	return engine.Status{EyeOpen: f.eyes.Value(), Active: f.active.Value(), Operation: "idle"}
}

func (f *fakeEngine) SubscribeEyeOpen(size int) (<-chan bool, func()) {
	return f.eyes.Subscribe(size)
}

func (f *fakeEngine) SubscribeActive(size int) (<-chan bool, func()) {
	return f.active.Subscribe(size)
}

func (f *fakeEngine) SubscribeTransitions(size int) (<-chan blink.Transition, func()) {
	return f.transitions.Subscribe(size)
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return ev
}

// readUntil skips events until one matches.
func readUntil(t *testing.T, conn *websocket.Conn, match func(Event) bool) Event {
	t.Helper()
	for range 10 {
		if ev := readEvent(t, conn); match(ev) {
			return ev
		}
	}
	t.Fatal("expected event not received")
	return Event{}
}

func TestAPI_EventStream(t *testing.T) {
	eng := newFakeEngine()
	srv := New(Config{Engine: eng})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	// Every stream starts with the current signal values.
	seen := map[string]bool{}
	for range 2 {
		ev := readEvent(t, conn)
		if ev.Value == nil || *ev.Value {
			t.Fatalf("initial event %+v should carry false", ev)
		}
		seen[ev.Type] = true
	}
	if !seen[EventEyeOpen] || !seen[EventActive] {
		t.Fatalf("initial events %v, want eye_open and active", seen)
	}

	eng.eyes.Set(true)
	ev := readUntil(t, conn, func(ev Event) bool { return ev.Type == EventEyeOpen })
	if ev.Value == nil || !*ev.Value {
		t.Errorf("eye_open event %+v, want true", ev)
	}

	eng.transitions.Publish(blink.Transition{
		From: blink.State{Phase: blink.PhaseActive},
		To:   blink.State{Phase: blink.PhasePaused, Reason: blink.ReasonNoFace},
		At:   time.Now(),
	})
	ev = readUntil(t, conn, func(ev Event) bool { return ev.Type == EventTransition })
	if ev.Transition == nil || ev.Transition.To.Phase != blink.PhasePaused {
		t.Errorf("transition event %+v, want paused", ev)
	}

	srv.events.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var readErr error
	for readErr == nil {
		_, _, readErr = conn.ReadMessage()
	}
	if !websocket.IsCloseError(readErr, websocket.CloseGoingAway) {
		t.Errorf("ReadMessage() after Close = %v, want going-away close", readErr)
	}
}

func TestAPI_TrackingAndPreferences(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	eng := newFakeEngine()
	p := prefs.Load(s.Settings())
	ts := httptest.NewServer(New(Config{Store: s, Engine: eng, Preferences: p}))
	defer ts.Close()
	client := ts.Client()

	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/tracking", bytes.NewBufferString(`{"active": true}`))
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("PUT /api/tracking error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !eng.active.Value() {
		t.Fatalf("PUT /api/tracking status = %d active = %v", resp.StatusCode, eng.active.Value())
	}

	resp, err = client.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status error = %v", err)
	}
	var status struct {
		Active bool `json:"active"`
	}
	json.NewDecoder(resp.Body).Decode(&status)
	resp.Body.Close()
	if !status.Active {
		t.Error("status should report tracking active")
	}

	req, _ = http.NewRequest(http.MethodPut, ts.URL+"/api/preferences", bytes.NewBufferString(`{"sensitivity": "low"}`))
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("PUT /api/preferences error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT /api/preferences status = %d", resp.StatusCode)
	}
	if got, err := s.Settings().Get(prefs.KeySensitivity); err != nil || got != "low" {
		t.Errorf("stored sensitivity = %q, %v; want low", got, err)
	}

	resp, err = client.Get(ts.URL + "/api/sessions")
	if err != nil {
		t.Fatalf("GET /api/sessions error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /api/sessions status = %d", resp.StatusCode)
	}
}

func TestAPI_HealthCheck(t *testing.T) {
	srv := New(Config{})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var health struct {
		Status string `json:"status"`
		Uptime string `json:"uptime"`
	}
	json.NewDecoder(resp.Body).Decode(&health)

	if health.Status != "ok" {
		t.Errorf("status = %s, want ok", health.Status)
	}
}

func TestServer_ListenAndServeShutdown(t *testing.T) {
	srv := New(Config{Engine: newFakeEngine()})
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx, "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("ListenAndServe() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe did not return after cancel")
	}
}
