package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/copperline/beacon/internal/model"
	"github.com/copperline/beacon/pkg/metrics"
)

// NewHTTPHandler returns an http.Handler with all routes registered. The
// admin token guards the write and admin surfaces (broadcast, sites,
// cleanup); the delivery surfaces authenticate per site via its API key.
func (s *BeaconServer) NewHTTPHandler(adminToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/broadcast", adminAuth(adminToken, s.handleBroadcast))
	mux.HandleFunc("POST /v1/sites", adminAuth(adminToken, s.handleCreateSite))
	mux.HandleFunc("GET /v1/sites", adminAuth(adminToken, s.handleListSites))
	mux.HandleFunc("POST /v1/cleanup", adminAuth(adminToken, s.handleCleanup))
	mux.HandleFunc("GET /v1/poll", s.handlePoll)
	mux.HandleFunc("OPTIONS /v1/poll", s.handlePollPreflight)
	mux.HandleFunc("GET /v1/events", s.handleListEvents)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// handleHealth handles GET /v1/health.
func (s *BeaconServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleBroadcast handles POST /v1/broadcast: the content store's internal
// call after a mutation commits.
func (s *BeaconServer) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req BroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	event, err := s.Broadcast(r.Context(), &req)
	if err != nil {
		writeServerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

// handlePoll handles GET /v1/poll?site_id= with a site bearer credential.
// CORS-enabled: browser-hosted subscribers poll this endpoint directly.
func (s *BeaconServer) handlePoll(w http.ResponseWriter, r *http.Request) {
	corsHeaders(w)
	siteID := r.URL.Query().Get("site_id")
	items, err := s.Poll(r.Context(), siteID, siteCredential(r))
	if err != nil {
		metrics.PollRequests.WithLabelValues("error").Inc()
		writeServerError(w, err)
		return
	}
	metrics.PollRequests.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"items":     items,
		"timestamp": time.Now().UTC(),
	})
}

func (s *BeaconServer) handlePollPreflight(w http.ResponseWriter, _ *http.Request) {
	corsHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleListEvents handles GET /v1/events?site_id=&since=&limit=: the
// catch-up query surface. since is nanoseconds since epoch or RFC 3339.
func (s *BeaconServer) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	siteID := q.Get("site_id")

	var since time.Time
	if v := q.Get("since"); v != "" {
		if ns, err := strconv.ParseInt(v, 10, 64); err == nil {
			since = time.Unix(0, ns)
		} else if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			since = t
		} else {
			writeError(w, http.StatusBadRequest, "invalid since value")
			return
		}
	}

	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit value")
			return
		}
		limit = n
	}

	evts, err := s.ListEvents(r.Context(), siteID, siteCredential(r), since, limit)
	if err != nil {
		writeServerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": evts})
}

// handleCleanup handles POST /v1/cleanup (internal/cron).
func (s *BeaconServer) handleCleanup(w http.ResponseWriter, r *http.Request) {
	removed, err := s.Cleanup(r.Context())
	if err != nil {
		writeServerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"removed_count": removed,
	})
}

// handleCreateSite handles POST /v1/sites.
func (s *BeaconServer) handleCreateSite(w http.ResponseWriter, r *http.Request) {
	var site model.Site
	if err := json.NewDecoder(r.Body).Decode(&site); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	created, err := s.CreateSite(r.Context(), &site)
	if err != nil {
		writeServerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleListSites handles GET /v1/sites.
func (s *BeaconServer) handleListSites(w http.ResponseWriter, r *http.Request) {
	sites, err := s.ListSites(r.Context())
	if err != nil {
		writeServerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sites": sites})
}

// writeServerError maps domain errors to HTTP status codes.
func writeServerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrUnknownSite):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case IsInputError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
