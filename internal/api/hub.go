package api

import (
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/steveyegge/stepview/internal/types"
)

// subscriberBuffer is the number of undelivered batches a subscriber may
// hold before further batches are dropped for it
const subscriberBuffer = 8

// Hub fans new-alert batches out to event-stream subscribers. Delivery is
// best-effort: a slow subscriber misses batches, it never blocks the poll.
type Hub struct {
	logger *slog.Logger

	mu          sync.RWMutex
	allowed     map[string]bool
	baseOrigin  string
	subscribers map[string]chan []byte
}

// NewHub creates a hub accepting subscribers from the given origins
func NewHub(origins []string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		logger:      logger,
		allowed:     make(map[string]bool),
		subscribers: make(map[string]chan []byte),
	}
	for _, o := range origins {
		if n := normalizeOrigin(o); n != "" {
			h.allowed[n] = true
		}
	}
	return h
}

// SetBaseURL allows the origin of the tracker base URL. The previous base
// origin is revoked.
func (h *Hub) SetBaseURL(baseURL string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.baseOrigin = normalizeOrigin(baseURL)
}

// Allowed reports whether a browser origin may subscribe
func (h *Hub) Allowed(origin string) bool {
	n := normalizeOrigin(origin)
	if n == "" {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.allowed[n] || n == h.baseOrigin
}

// Subscribe registers a subscriber. The returned cancel func must be called
// when the subscriber goes away.
func (h *Hub) Subscribe() (string, <-chan []byte, func()) {
	id := uuid.NewString()
	ch := make(chan []byte, subscriberBuffer)

	h.mu.Lock()
	h.subscribers[id] = ch
	h.mu.Unlock()

	h.logger.Debug("event subscriber added", "subscriber", id)
	return id, ch, func() {
		h.mu.Lock()
		delete(h.subscribers, id)
		h.mu.Unlock()
		h.logger.Debug("event subscriber removed", "subscriber", id)
	}
}

// Subscribers returns the number of live subscribers
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Broadcast implements alerts.Broadcaster
func (h *Hub) Broadcast(items []types.AlertItem) {
	if len(items) == 0 {
		return
	}
	data, err := json.Marshal(items)
	if err != nil {
		h.logger.Warn("failed to encode alert batch", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subscribers {
		select {
		case ch <- data:
		default:
			h.logger.Debug("dropping alert batch for slow subscriber", "subscriber", id)
		}
	}
}

// normalizeOrigin reduces a URL or origin to scheme://host[:port]
func normalizeOrigin(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}
