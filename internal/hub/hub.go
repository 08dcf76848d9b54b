// Package hub streams onboarding events to HTTP clients as Server-Sent Events.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"netonboard/internal/service"
)

// client represents a connected SSE client
type client struct {
	id     string
	jobID  string
	events chan []byte
}

// Hub fans events out to SSE clients. A client may follow a single job.
type Hub struct {
	mu        sync.RWMutex
	clients   map[*client]struct{}
	keepalive time.Duration
	logger    *logrus.Entry
}

// New creates a new Hub
func New(logger *logrus.Entry) *Hub {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Hub{
		clients:   make(map[*client]struct{}),
		keepalive: 30 * time.Second,
		logger:    logger,
	}
}

// Forward relays every event published on bus until ctx is done.
func (h *Hub) Forward(ctx context.Context, bus *service.EventBus) {
	ch := make(chan service.Event, 256)
	bus.Subscribe(ch)
	defer bus.Unsubscribe(ch)

	for {
		select {
		case ev := <-ch:
			h.Broadcast(ev)
		case <-ctx.Done():
			return
		}
	}
}

// Broadcast sends an event to every matching client. Slow clients miss it.
func (h *Hub) Broadcast(ev service.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.WithError(err).WithField("type", ev.Type).Warn("failed to marshal event")
		return
	}
	msg := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", ev.Type, data))

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if c.jobID != "" && c.jobID != ev.JobID {
			continue
		}
		select {
		case c.events <- msg:
		default:
			h.logger.WithField("client", c.id).Debug("SSE client is slow, skipping message")
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.WithFields(logrus.Fields{"client": c.id, "job_id": c.jobID, "total": n}).Debug("SSE client connected")
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.WithFields(logrus.Fields{"client": c.id, "total": n}).Debug("SSE client disconnected")
}

// ServeHTTP handles SSE connections. The optional job query parameter limits
// the stream to one job.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	c := &client{
		id:     uuid.NewString(),
		jobID:  r.URL.Query().Get("job"),
		events: make(chan []byte, 64),
	}

	h.register(c)
	defer h.unregister(c)

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.events:
			if _, err := w.Write(msg); err != nil {
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := fmt.Fprintf(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
