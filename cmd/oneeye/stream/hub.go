package stream

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/theoneeye/oneeye/engine/state"
)

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// SnapshotSource yields the current execution snapshot of a workflow
type SnapshotSource interface {
	Status(workflowID string) (state.Snapshot, error)
}

// Hub maintains active WebSocket connections per workflow and pushes
// state snapshots to them on a fixed interval.
type Hub struct {
	source   SnapshotSource
	interval time.Duration
	log      Logger

	mu      sync.Mutex
	clients map[string][]*Client
	pumps   map[string]chan struct{}
}

// NewHub creates a streaming hub
func NewHub(source SnapshotSource, interval time.Duration, log Logger) *Hub {
	if interval <= 0 {
		interval = time.Second
	}
	return &Hub{
		source:   source,
		interval: interval,
		log:      log,
		clients:  make(map[string][]*Client),
		pumps:    make(map[string]chan struct{}),
	}
}

// Client is one WebSocket subscriber
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	workflowID string
	send       chan []byte
}

// Register attaches a connection to a workflow's snapshot stream. The
// first client of a workflow starts its pump.
func (h *Hub) Register(workflowID string, conn *websocket.Conn) *Client {
	client := &Client{
		hub:        h,
		conn:       conn,
		workflowID: workflowID,
		send:       make(chan []byte, 16),
	}

	h.mu.Lock()
	h.clients[workflowID] = append(h.clients[workflowID], client)
	if _, running := h.pumps[workflowID]; !running {
		stop := make(chan struct{})
		h.pumps[workflowID] = stop
		go h.pump(workflowID, stop)
	}
	h.mu.Unlock()

	go client.writePump()
	go client.readPump()
	return client
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.clients[client.workflowID]
	for i, c := range clients {
		if c == client {
			h.clients[client.workflowID] = append(clients[:i], clients[i+1:]...)
			close(client.send)
			break
		}
	}
	if len(h.clients[client.workflowID]) == 0 {
		delete(h.clients, client.workflowID)
		if stop, running := h.pumps[client.workflowID]; running {
			close(stop)
			delete(h.pumps, client.workflowID)
		}
	}
}

// pump pushes one snapshot per tick to every client of a workflow
func (h *Hub) pump(workflowID string, stop <-chan struct{}) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			snapshot, err := h.source.Status(workflowID)
			if err != nil {
				// Run finished or never existed; tell clients and stop
				h.broadcast(workflowID, []byte(`{"status":"gone"}`))
				return
			}
			payload, err := json.Marshal(snapshot)
			if err != nil {
				h.log.Error("failed to marshal snapshot", "workflow_id", workflowID, "error", err)
				continue
			}
			h.broadcast(workflowID, payload)
		}
	}
}

func (h *Hub) broadcast(workflowID string, payload []byte) {
	h.mu.Lock()
	clients := make([]*Client, len(h.clients[workflowID]))
	copy(clients, h.clients[workflowID])
	h.mu.Unlock()

	for _, client := range clients {
		select {
		case client.send <- payload:
		default:
			// Slow consumer; drop this frame for it
			h.log.Warn("stream client send buffer full", "workflow_id", workflowID)
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func (c *Client) readPump() {
	defer c.hub.unregister(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
