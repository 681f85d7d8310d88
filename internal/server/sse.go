package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/copperline/beacon/internal/config"
	"github.com/copperline/beacon/internal/model"
	"github.com/copperline/beacon/pkg/metrics"
)

// sseKeepaliveInterval is how often keepalive comments are sent to prevent
// connection timeouts on idle sites.
const sseKeepaliveInterval = 15 * time.Second

// sseClient represents one connected push subscriber for a single site.
type sseClient struct {
	siteID string
	limit  int                  // max records per delivered window
	ch     chan []*model.Event  // buffered channel of windows, newest-first
}

// sseHub fans out top-N windows to connected push subscribers, keyed by
// site. Unlike a log tail, each delivery is the site's current window, so a
// subscriber may see the same record more than once; dedup is the
// consumer's job (watermark).
type sseHub struct {
	mu      sync.RWMutex
	clients map[string]map[*sseClient]struct{} // site ID -> clients
}

func newSSEHub() *sseHub {
	return &sseHub{clients: make(map[string]map[*sseClient]struct{})}
}

// subscribe registers a new push subscriber. Call unsubscribe when done.
func (h *sseHub) subscribe(siteID string, limit int) *sseClient {
	c := &sseClient{
		siteID: siteID,
		limit:  limit,
		ch:     make(chan []*model.Event, 8),
	}
	h.mu.Lock()
	if h.clients[siteID] == nil {
		h.clients[siteID] = make(map[*sseClient]struct{})
	}
	h.clients[siteID][c] = struct{}{}
	h.mu.Unlock()
	metrics.PushClients.Inc()
	return c
}

// unsubscribe removes a client from the hub.
func (h *sseHub) unsubscribe(c *sseClient) {
	h.mu.Lock()
	if set, ok := h.clients[c.siteID]; ok {
		if _, ok := set[c]; ok {
			delete(set, c)
			metrics.PushClients.Dec()
		}
		if len(set) == 0 {
			delete(h.clients, c.siteID)
		}
	}
	h.mu.Unlock()
}

// broadcast delivers the site's current window to every subscriber of that
// site, trimmed to each client's limit. Slow clients lose the delivery
// rather than blocking the broadcaster; the next append re-sends a window
// that supersedes the lost one.
func (h *sseHub) broadcast(siteID string, window []*model.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[siteID] {
		w := window
		if len(w) > c.limit {
			w = w[:c.limit]
		}
		select {
		case c.ch <- w:
			metrics.WindowsDelivered.Inc()
		default:
			metrics.WindowsDropped.Inc()
		}
	}
}

// handleEventStream handles GET /v1/events/stream (SSE endpoint).
// Query params: site_id (required), limit (optional), api_key (accepted as
// an alternative to the Authorization header because EventSource cannot set
// headers).
func (s *BeaconServer) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	siteID := r.URL.Query().Get("site_id")
	if _, err := s.authorizeSite(r.Context(), siteID, siteCredential(r)); err != nil {
		writeServerError(w, err)
		return
	}

	limit := s.windowLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > config.MaxWindowLimit {
		limit = config.MaxWindowLimit
	}

	client := s.hub.subscribe(siteID, limit)
	defer s.hub.unsubscribe(client)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Deliver the current window immediately so a reconnecting subscriber
	// can evaluate it against its watermark without waiting for traffic.
	if window, err := s.store.ListEvents(r.Context(), siteID, time.Time{}, limit); err == nil {
		writeSSEWindow(w, window)
		flusher.Flush()
	}

	ctx := r.Context()
	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case window := <-client.ch:
			writeSSEWindow(w, window)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprintf(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

// writeSSEWindow writes one window as a single SSE event. The id field
// carries the newest timestamp in the window (UnixNano) for diagnostics;
// ordering within the window is newest-first, matching the query surface.
func writeSSEWindow(w http.ResponseWriter, window []*model.Event) {
	data, err := json.Marshal(window)
	if err != nil {
		return
	}
	if len(window) > 0 {
		fmt.Fprintf(w, "id:%d\n", window[0].Timestamp.UnixNano())
	}
	fmt.Fprintf(w, "event:window\n")
	fmt.Fprintf(w, "data:%s\n\n", data)
}
