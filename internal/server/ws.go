package server

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/blinkwatch/internal/blink"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

const writeWait = time.Second

// Event is one message on the /api/events stream.
type Event struct {
	Type       string            `json:"type"`
	Value      *bool             `json:"value,omitempty"`
	Transition *blink.Transition `json:"transition,omitempty"`
	Timestamp  int64             `json:"timestamp"`
}

// Event types.
const (
	EventEyeOpen    = "eye_open"
	EventActive     = "active"
	EventTransition = "transition"
)

// EventsHandler streams signal changes and state transitions to WebSocket
// clients. Each connection has its own bounded subscriptions, so a slow
// client only loses its own oldest events.
type EventsHandler struct {
	engine Engine

	mu      sync.Mutex
	clients map[*websocket.Conn]chan struct{}
	closed  bool
}

// NewEventsHandler creates a new EventsHandler for engine.
func NewEventsHandler(e Engine) *EventsHandler {
	return &EventsHandler{
		engine:  e,
		clients: make(map[*websocket.Conn]chan struct{}),
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	quit := make(chan struct{})
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.clients[conn] = quit
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	eyes, cancelEyes := h.engine.SubscribeEyeOpen(8)
	defer cancelEyes()
	active, cancelActive := h.engine.SubscribeActive(8)
	defer cancelActive()
	transitions, cancelTransitions := h.engine.SubscribeTransitions(32)
	defer cancelTransitions()

	// Reads only detect the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		var ev Event
		select {
		case <-gone:
			return
		case <-quit:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(writeWait))
			return
		case v, ok := <-eyes:
			if !ok {
				return
			}
			ev = Event{Type: EventEyeOpen, Value: &v}
		case v, ok := <-active:
			if !ok {
				return
			}
			ev = Event{Type: EventActive, Value: &v}
		case t, ok := <-transitions:
			if !ok {
				return
			}
			ev = Event{Type: EventTransition, Transition: &t}
		}

		ev.Timestamp = time.Now().UnixMilli()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}

// Clients returns the number of connected clients.
func (h *EventsHandler) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *EventsHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for conn, quit := range h.clients {
		close(quit)
		delete(h.clients, conn)
	}
}
