package server

import (
	"encoding/json"
	"net/http"

	"github.com/onnwee/snitchvis/backend/db"
	"github.com/onnwee/snitchvis/backend/snitch"
	"github.com/onnwee/snitchvis/backend/telemetry"
)

// HandleAdminChannels manages the snitch channel registry.
// GET lists channels (optionally ?guild_id=), POST registers one,
// DELETE ?channel_id= removes one along with nothing else: indexed events
// stay until a reindex.
func (h *Handlers) HandleAdminChannels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		guildID, _ := parseInt64Query(r, "guild_id")
		channels, err := db.ListSnitchChannels(ctx, h.db, guildID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		type channelJSON struct {
			ChannelID     int64   `json:"channel_id"`
			GuildID       int64   `json:"guild_id"`
			AllowedRoles  []int64 `json:"allowed_roles"`
			LastIndexedID *int64  `json:"last_indexed_id"`
		}
		out := make([]channelJSON, len(channels))
		for i, ch := range channels {
			out[i] = channelJSON{ch.ChannelID, ch.GuildID, ch.AllowedRoles, ch.LastIndexedID}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"channels": out})

	case http.MethodPost:
		var body struct {
			ChannelID    int64   `json:"channel_id"`
			GuildID      int64   `json:"guild_id"`
			AllowedRoles []int64 `json:"allowed_roles"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if body.ChannelID == 0 || body.GuildID == 0 {
			http.Error(w, "channel_id and guild_id required", http.StatusBadRequest)
			return
		}
		err := db.AddSnitchChannel(ctx, h.db, db.SnitchChannel{
			ChannelID:    body.ChannelID,
			GuildID:      body.GuildID,
			AllowedRoles: body.AllowedRoles,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "registered", "channel_id": body.ChannelID})

	case http.MethodDelete:
		channelID, ok := parseInt64Query(r, "channel_id")
		if !ok {
			http.Error(w, "channel_id required", http.StatusBadRequest)
			return
		}
		if err := db.RemoveSnitchChannel(ctx, h.db, channelID); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "removed", "channel_id": channelID})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleAdminIndex backfills a single channel on demand.
func (h *Handlers) HandleAdminIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	channelID, ok := parseInt64Query(r, "channel_id")
	if !ok {
		http.Error(w, "channel_id required", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	ch, found, err := db.GetSnitchChannel(ctx, h.db, channelID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "channel not registered", http.StatusNotFound)
		return
	}
	added, err := h.ix.BackfillChannel(ctx, ch)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "channel_id": channelID, "events_added": added})
}

// HandleAdminReindex wipes a guild's events and cursors and backfills its
// channels from scratch.
func (h *Handlers) HandleAdminReindex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	guildID, ok := parseInt64Query(r, "guild_id")
	if !ok {
		http.Error(w, "guild_id required", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	if err := db.ResetGuild(ctx, h.db, guildID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	channels, err := db.ListSnitchChannels(ctx, h.db, guildID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	total := 0
	for _, ch := range channels {
		// cursors were nulled by the reset; scan from scratch
		ch.LastIndexedID = nil
		added, err := h.ix.BackfillChannel(ctx, ch)
		if err != nil {
			telemetry.LoggerWithCorr(ctx).Warn("reindex backfill failed", "channel_id", ch.ChannelID, "err", err)
			continue
		}
		total += added
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "guild_id": guildID, "channels": len(channels), "events_added": total})
}

// HandleAdminImportSnitches loads a SnitchMod SQLite database from a local
// path into the guild's snitch records.
func (h *Handlers) HandleAdminImportSnitches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Path    string   `json:"path"`
		GuildID int64    `json:"guild_id"`
		Groups  []string `json:"groups"`
		Roles   []int64  `json:"roles"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if body.Path == "" || body.GuildID == 0 || len(body.Groups) == 0 {
		http.Error(w, "path, guild_id and groups required", http.StatusBadRequest)
		return
	}
	added, err := snitch.ImportSnitchMod(r.Context(), h.db, body.Path, body.GuildID, body.Groups, body.Roles)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if telemetry.SnitchesImported != nil {
		telemetry.SnitchesImported.Add(float64(added))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "snitches_added": added})
}

// HandleAdminPrefix reads or sets a guild's command prefix.
func (h *Handlers) HandleAdminPrefix(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	guildID, ok := parseInt64Query(r, "guild_id")
	if !ok {
		http.Error(w, "guild_id required", http.StatusBadRequest)
		return
	}
	switch r.Method {
	case http.MethodGet:
		prefix, err := db.GetGuildPrefix(ctx, h.db, guildID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"prefix": prefix})
	case http.MethodPost:
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			http.Error(w, "prefix required", http.StatusBadRequest)
			return
		}
		if err := db.SetGuildPrefix(ctx, h.db, guildID, prefix); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "prefix": prefix})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
