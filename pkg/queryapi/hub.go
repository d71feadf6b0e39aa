package queryapi

import (
	"net/http"
	"sync"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"
)

// PushKind enumerates the spec §6 UI subscription events.
type PushKind string

const (
	BeliefsUpdated    PushKind = "beliefs-updated"
	PlanSelected      PushKind = "plan-selected"
	ActionCompleted   PushKind = "action-completed"
	EscalationRequired PushKind = "escalation-required"
	IncidentResolved  PushKind = "incident-resolved"
)

// PushMessage is one event broadcast to every connected UI subscriber.
type PushMessage struct {
	Type       PushKind    `json:"type"`
	IncidentID string      `json:"incident_id,omitempty"`
	Data       interface{} `json:"data,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// PushHub fans out push events to every connected WebSocket client,
// adapted from the tarsy WSHub: a register/unregister/broadcast loop
// owning the client set under one lock, run on its own goroutine.
type PushHub struct {
	log logr.Logger

	mu      sync.RWMutex
	clients map[*websocket.Conn]bool

	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan PushMessage
}

func NewPushHub(log logr.Logger) *PushHub {
	return &PushHub{
		log:        log.WithName("queryapi.pushhub"),
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		broadcast:  make(chan PushMessage, 256),
	}
}

// Run drives the hub's register/unregister/broadcast loop until stop is
// closed; callers run this on its own goroutine for the life of the
// process.
func (h *PushHub) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			h.mu.Unlock()
		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				_ = conn.Close()
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.RLock()
			for conn := range h.clients {
				if err := conn.WriteJSON(msg); err != nil {
					h.log.V(1).Info("dropping push client after write error", "error", err.Error())
					go func(c *websocket.Conn) { h.unregister <- c }(conn)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Publish broadcasts a push event to every connected client. Non-blocking
// from the caller's perspective beyond the channel send; when the buffer
// is full (256 pending) the new event is dropped and logged — the BDI
// loop must not stall on a slow UI.
func (h *PushHub) Publish(kind PushKind, incidentID string, data interface{}) {
	select {
	case h.broadcast <- PushMessage{Type: kind, IncidentID: incidentID, Data: data}:
	default:
		h.log.Info("push hub broadcast buffer full, dropping event", "type", kind, "incident_id", incidentID)
	}
}

// HandleWS upgrades the request to a WebSocket and registers it with the
// hub. The read loop exists only to detect client disconnects; this
// subscription is push-only.
func (h *PushHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error(err, "failed to upgrade websocket connection")
		return
	}
	h.register <- conn

	go func() {
		defer func() { h.unregister <- conn }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
