package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	alertapp "property-monitor/internal/alerts/application"
	"property-monitor/internal/auth"
)

// SSEBroker fans out alert events to connected clients. Each subscriber is
// scoped to one property; an event only reaches subscribers of its property.
type SSEBroker struct {
	mu      sync.Mutex
	clients map[chan []byte]string
}

// NewSSEBroker constructs a broker.
func NewSSEBroker() *SSEBroker {
	return &SSEBroker{clients: make(map[chan []byte]string)}
}

// Notify implements AlertNotifier.
func (b *SSEBroker) Notify(_ context.Context, event alertapp.AlertEvent) {
	if b == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	b.broadcast(event.PropertyID, payload)
}

// Subscribe registers a new client channel scoped to propertyID. An empty
// propertyID subscribes to every property's events.
func (b *SSEBroker) Subscribe(propertyID string) chan []byte {
	if b == nil {
		return nil
	}
	ch := make(chan []byte, 16)
	b.mu.Lock()
	b.clients[ch] = propertyID
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a client channel. Safe to call more than once.
func (b *SSEBroker) Unsubscribe(ch chan []byte) {
	if b == nil || ch == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[ch]; !ok {
		return
	}
	delete(b.clients, ch)
	close(ch)
}

// broadcast delivers while holding the lock so Unsubscribe cannot close a
// channel mid-send. Sends never block; a full subscriber drops the event.
func (b *SSEBroker) broadcast(propertyID string, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch, scope := range b.clients {
		if scope != "" && propertyID != "" && scope != propertyID {
			continue
		}
		select {
		case ch <- payload:
		default:
		}
	}
}

// StreamHandler serves the SSE alert stream.
type StreamHandler struct {
	broker *SSEBroker
}

// NewStreamHandler constructs a stream handler.
func NewStreamHandler(broker *SSEBroker) *StreamHandler {
	return &StreamHandler{broker: broker}
}

// ServeHTTP handles GET /api/v1/alerts/stream. The stream carries only the
// caller's own property, taken from the authenticated identity.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.broker == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}

	propertyID := auth.PropertyIDFromContext(r.Context())
	if propertyID == "" {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := h.broker.Subscribe(propertyID)
	if ch == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}
	defer h.broker.Unsubscribe(ch)

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	notify := r.Context().Done()
	for {
		select {
		case payload, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write([]byte("event: alert\n"))
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-notify:
			return
		}
	}
}
