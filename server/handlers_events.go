package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/onnwee/snitchvis/backend/db"
	"github.com/onnwee/snitchvis/backend/event"
	"github.com/onnwee/snitchvis/backend/query"
)

type eventJSON struct {
	MessageID      int64     `json:"message_id"`
	ChannelID      int64     `json:"channel_id"`
	Username       string    `json:"username"`
	SnitchName     string    `json:"snitch_name"`
	NamelayerGroup string    `json:"namelayer_group"`
	X              int       `json:"x"`
	Y              int       `json:"y"`
	Z              int       `json:"z"`
	T              time.Time `json:"t"`
}

func toEventJSON(events []event.Event) []eventJSON {
	out := make([]eventJSON, len(events))
	for i, ev := range events {
		out[i] = eventJSON{
			MessageID: ev.MessageID, ChannelID: ev.ChannelID,
			Username: ev.Username, SnitchName: ev.SnitchName, NamelayerGroup: ev.NamelayerGroup,
			X: ev.X, Y: ev.Y, Z: ev.Z, T: ev.T,
		}
	}
	return out
}

// visibleChannels resolves the requester's channel allow-set for a guild.
func (h *Handlers) visibleChannels(r *http.Request, guildID, userID int64) ([]int64, error) {
	roles, err := h.roles.MemberRoles(r.Context(), guildID, userID)
	if err != nil {
		return nil, err
	}
	return db.VisibleChannels(r.Context(), h.db, guildID, roles)
}

// writeQueryError maps query errors to HTTP status codes.
func writeQueryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, query.ErrPermissionDenied):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, query.ErrInvalidTimeRange):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleEvents returns events in a resolved window with optional user/group
// filters. Query params: guild_id, user_id (requester), start, end
// (RFC 3339), past (Go duration or "all"), users, groups (comma lists).
func (h *Handlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
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

	channels, err := h.visibleChannels(r, guildID, userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(channels) == 0 {
		writeQueryError(w, query.ErrPermissionDenied)
		return
	}

	win, err := h.resolveWindow(r, guildID, channels)
	if err != nil {
		writeQueryError(w, err)
		return
	}

	events, err := query.EventsInWindow(r.Context(), h.db, query.Filter{
		GuildID:  guildID,
		Window:   win,
		Users:    splitList(r.URL.Query().Get("users")),
		Groups:   splitList(r.URL.Query().Get("groups")),
		Channels: channels,
	})
	if err != nil {
		writeQueryError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"window": map[string]time.Time{"start": win.Start, "end": win.End},
		"events": toEventJSON(events),
	})
}

// resolveWindow builds the query window from request params, applying the
// default-window policy when no explicit range is given.
func (h *Handlers) resolveWindow(r *http.Request, guildID int64, channels []int64) (query.Window, error) {
	q := r.URL.Query()
	now := time.Now()

	if past := q.Get("past"); past != "" {
		if past == "all" {
			return query.AllTime(now), nil
		}
		d, err := time.ParseDuration(past)
		if err != nil || d <= 0 {
			return query.Window{}, query.ErrInvalidTimeRange
		}
		return query.Past(now, d), nil
	}

	start, err := parseTimeQuery(r, "start")
	if err != nil {
		return query.Window{}, query.ErrInvalidTimeRange
	}
	end, err := parseTimeQuery(r, "end")
	if err != nil {
		return query.Window{}, query.ErrInvalidTimeRange
	}

	if start == nil && end == nil {
		latest, ok, err := query.MostRecentEvent(r.Context(), h.db, guildID, channels)
		if err != nil {
			return query.Window{}, err
		}
		if !ok {
			// no events at all: an empty default window is fine
			return query.Window{Start: now.Add(-h.cfg.DefaultWindow), End: now}, nil
		}
		return query.ResolveWindow(nil, nil, latest.T, now, h.cfg.DefaultWindow)
	}
	return query.ResolveWindow(start, end, time.Time{}, now, h.cfg.DefaultWindow)
}

// HandleRecentEvents looks up the latest events at a named snitch or a
// coordinate. Query params: guild_id, user_id, then either name= or x= and
// z= (optionally y=), plus limit.
func (h *Handlers) HandleRecentEvents(w http.ResponseWriter, r *http.Request) {
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

	channels, err := h.visibleChannels(r, guildID, userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(channels) == 0 {
		writeQueryError(w, query.ErrPermissionDenied)
		return
	}

	limit := parseIntQuery(r, "limit", 10)
	q := r.URL.Query()

	var events []event.Event
	if name := q.Get("name"); name != "" {
		events, err = query.RecentEventsByName(r.Context(), h.db, guildID, channels, name, limit)
	} else if q.Get("x") != "" && q.Get("z") != "" {
		x := parseIntQuery(r, "x", 0)
		z := parseIntQuery(r, "z", 0)
		var y *int
		if q.Get("y") != "" {
			v := parseIntQuery(r, "y", 0)
			y = &v
		}
		events, err = query.RecentEventsByLocation(r.Context(), h.db, guildID, channels, x, y, z, limit)
	} else {
		http.Error(w, "name or x/z coordinates required", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeQueryError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"events": toEventJSON(events)})
}
