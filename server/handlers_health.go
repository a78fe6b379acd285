package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/onnwee/snitchvis/backend/indexer"
)

var errNotLive = errors.New("indexing not live yet")

// HandleHealthz responds to liveness probe requests by checking database connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz reports ready only once the database answers and the indexing
// coordinator has finished its startup backfill and drain.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		ok   func() error
	}{
		{"database", func() error { return h.db.PingContext(r.Context()) }},
		{"indexing", func() error {
			if h.coord.State() != indexer.StateLive {
				return errNotLive
			}
			return nil
		}},
	}

	for _, check := range checks {
		if err := check.ok(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// HandleStatus returns an indexing summary for dashboards.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()

	var channelCount, eventCount int64
	_ = h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snitch_channels`).Scan(&channelCount)
	_ = h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&eventCount)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"state":       h.coord.State().String(),
		"queue_depth": h.coord.QueueDepth(),
		"channels":    channelCount,
		"events":      eventCount,
	})
}
