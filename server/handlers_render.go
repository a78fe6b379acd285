package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/snitchvis/backend/export"
	"github.com/onnwee/snitchvis/backend/query"
	"github.com/onnwee/snitchvis/backend/render"
	"github.com/onnwee/snitchvis/backend/snitch"
	"github.com/onnwee/snitchvis/backend/telemetry"
	"github.com/onnwee/snitchvis/backend/usage"
)

type renderRequestJSON struct {
	GuildID         int64    `json:"guild_id"`
	UserID          int64    `json:"user_id"`
	Start           string   `json:"start,omitempty"` // RFC 3339
	End             string   `json:"end,omitempty"`
	Past            string   `json:"past,omitempty"` // Go duration or "all"
	Users           []string `json:"users,omitempty"`
	Groups          []string `json:"groups,omitempty"`
	Size            int      `json:"size"`
	FPS             int      `json:"fps"`
	DurationSeconds float64  `json:"duration_seconds"`
	Mode            string   `json:"mode,omitempty"` // "box" (default) or "line"
	FadePercent     float64  `json:"fade_percent,omitempty"`
	AllSnitches     bool     `json:"all_snitches,omitempty"`
}

// HandleRender admits and runs a render request.
func (h *Handlers) HandleRender(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.cfg.ValidateRenderReady(); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	var body renderRequestJSON
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if body.GuildID == 0 || body.UserID == 0 {
		http.Error(w, "guild_id and user_id required", http.StatusBadRequest)
		return
	}
	if body.Size <= 0 || body.FPS <= 0 || body.DurationSeconds <= 0 {
		http.Error(w, "size, fps and duration_seconds must be positive", http.StatusBadRequest)
		return
	}

	req := render.Request{
		GuildID:  body.GuildID,
		UserID:   body.UserID,
		Users:    body.Users,
		Groups:   body.Groups,
		Size:     body.Size,
		FPS:      body.FPS,
		Duration: time.Duration(body.DurationSeconds * float64(time.Second)),

		Mode:        body.Mode,
		FadePercent: body.FadePercent,
		AllSnitches: body.AllSnitches,
	}
	if body.Mode != "" && body.Mode != "box" && body.Mode != "line" {
		http.Error(w, "mode must be box or line", http.StatusBadRequest)
		return
	}
	if body.FadePercent < 0 || body.FadePercent > 100 {
		http.Error(w, "fade_percent must be between 0 and 100", http.StatusBadRequest)
		return
	}
	if body.Past == "all" {
		req.All = true
	} else if body.Past != "" {
		d, err := time.ParseDuration(body.Past)
		if err != nil || d <= 0 {
			http.Error(w, "invalid past duration", http.StatusBadRequest)
			return
		}
		req.Past = d
	}
	if body.Start != "" {
		t, err := time.Parse(time.RFC3339, body.Start)
		if err != nil {
			http.Error(w, "invalid start timestamp", http.StatusBadRequest)
			return
		}
		req.Start = &t
	}
	if body.End != "" {
		t, err := time.Parse(time.RFC3339, body.End)
		if err != nil {
			http.Error(w, "invalid end timestamp", http.StatusBadRequest)
			return
		}
		req.End = &t
	}

	res, err := h.svc.Render(r.Context(), req)
	if err != nil {
		var limitErr *usage.LimitError
		switch {
		case errors.As(err, &limitErr):
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": limitErr.Error(),
				"kind":  string(limitErr.Kind),
				"limit": limitErr.Limit,
			})
		case errors.Is(err, render.ErrNoEvents):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, query.ErrPermissionDenied):
			http.Error(w, err.Error(), http.StatusForbidden)
		case errors.Is(err, query.ErrInvalidTimeRange):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res)
}

// HandleExport streams the requester's visible events and snitches as a
// gzipped SQLite database.
func (h *Handlers) HandleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	guildID, ok := parseInt64Query(r, "guild_id")
	if !ok {
		http.Error(w, "guild_id required", http.StatusBadRequest)
		return
	}
	userID, ok := parseInt64Query(r, "user_id")
	if !ok {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	roles, err := h.roles.MemberRoles(ctx, guildID, userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	channels, err := h.visibleChannels(r, guildID, userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(channels) == 0 {
		writeQueryError(w, query.ErrPermissionDenied)
		return
	}

	events, err := query.AllEvents(ctx, h.db, guildID, channels)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	imported, err := snitch.GuildSnitches(ctx, h.db, guildID, roles)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	merged := snitch.Merge(snitch.FromEvents(events), imported)

	if err := os.MkdirAll(h.cfg.DataDir, 0o755); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	id := uuid.NewString()
	dbPath := filepath.Join(h.cfg.DataDir, "export-"+id+".db")
	gzPath := dbPath + ".gz"
	defer os.Remove(dbPath)
	defer os.Remove(gzPath)

	if err := export.ToSQLite(ctx, dbPath, events, snitch.List(merged)); err != nil {
		telemetry.LoggerWithCorr(ctx).Error("export failed", "guild_id", guildID, "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := export.GzipFile(dbPath, gzPath); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", `attachment; filename="snitchvis-export.db.gz"`)
	http.ServeFile(w, r, gzPath)
}
