package render

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/onnwee/snitchvis/backend/db"
	"github.com/onnwee/snitchvis/backend/query"
	"github.com/onnwee/snitchvis/backend/snitch"
	"github.com/onnwee/snitchvis/backend/telemetry"
	"github.com/onnwee/snitchvis/backend/transport"
	"github.com/onnwee/snitchvis/backend/usage"
)

// Service wires visibility resolution, event querying, snitch derivation,
// throttling and the renderer into one entry point.
type Service struct {
	DB            *sql.DB
	Roles         transport.RoleResolver
	Renderer      Renderer
	Throttle      *usage.Throttle
	DefaultWindow time.Duration
	Now           func() time.Time // nil means time.Now
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Render resolves req against the requester's channel visibility, admits the
// work through the usage throttle, runs the renderer, and records the spent
// pixels. The throttle is consulted before any rendering starts; usage is
// recorded only after the renderer succeeds.
func (s *Service) Render(ctx context.Context, req Request) (Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "render", "render.Service.Render")
	defer span.End()

	roles, err := s.Roles.MemberRoles(ctx, req.GuildID, req.UserID)
	if err != nil {
		telemetry.RecordError(span, err)
		return Result{}, fmt.Errorf("resolve member roles: %w", err)
	}
	channels, err := db.VisibleChannels(ctx, s.DB, req.GuildID, roles)
	if err != nil {
		telemetry.RecordError(span, err)
		return Result{}, err
	}
	if len(channels) == 0 {
		return Result{}, query.ErrPermissionDenied
	}

	w, err := s.resolveWindow(ctx, req, channels)
	if err != nil {
		return Result{}, err
	}

	events, err := query.EventsInWindow(ctx, s.DB, query.Filter{
		GuildID:  req.GuildID,
		Window:   w,
		Users:    req.Users,
		Groups:   req.Groups,
		Channels: channels,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return Result{}, err
	}
	if len(events) == 0 {
		return Result{}, ErrNoEvents
	}

	derived := snitch.FromEvents(events)
	imported, err := snitch.GuildSnitches(ctx, s.DB, req.GuildID, roles)
	if err != nil {
		telemetry.RecordError(span, err)
		return Result{}, err
	}
	merged := snitch.Merge(derived, imported)
	shown := merged
	if !req.AllSnitches {
		// Only snitches that fired within the window; the merged entry may
		// carry metadata from an imported copy of the same snitch.
		shown = make(map[snitch.Key]snitch.Snitch, len(derived))
		for k := range derived {
			shown[k] = merged[k]
		}
	}

	pixels := req.Pixels()
	if err := s.Throttle.Admit(ctx, req.GuildID, pixels); err != nil {
		if telemetry.RendersRejected != nil {
			telemetry.RendersRejected.Inc()
		}
		return Result{}, err
	}
	if telemetry.RendersAdmitted != nil {
		telemetry.RendersAdmitted.Inc()
	}

	mode := req.Mode
	if mode != "line" {
		mode = "box"
	}
	job := Job{
		GuildID:     req.GuildID,
		Events:      events,
		Snitches:    snitch.List(shown),
		Users:       distinctUsers(events),
		Start:       w.Start,
		End:         w.End,
		Size:        req.Size,
		FPS:         req.FPS,
		Duration:    req.Duration.Seconds(),
		Mode:        mode,
		FadePercent: req.FadePercent,
	}
	var (
		path      string
		renderErr error
	)
	telemetry.TimeFunc(telemetry.RenderDuration, func() {
		path, renderErr = s.Renderer.Render(ctx, job)
	})
	if renderErr != nil {
		if telemetry.RendersFailed != nil {
			telemetry.RendersFailed.Inc()
		}
		telemetry.RecordError(span, renderErr)
		return Result{}, fmt.Errorf("render job: %w", renderErr)
	}

	if err := s.Throttle.RecordUsage(ctx, req.GuildID, pixels); err != nil {
		// The artifact exists; losing the usage record is worth a warning
		// but not a failed response.
		telemetry.LoggerWithCorr(ctx).Warn("failed to record render usage", "guild_id", req.GuildID, "err", err)
	}

	telemetry.SetSpanSuccess(span)
	return Result{Path: path, EventCount: len(events), Pixels: pixels, Window: w}, nil
}

func (s *Service) resolveWindow(ctx context.Context, req Request, channels []int64) (query.Window, error) {
	now := s.now()
	switch {
	case req.All:
		return query.AllTime(now), nil
	case req.Past > 0:
		return query.Past(now, req.Past), nil
	case req.Start == nil && req.End == nil:
		latest, ok, err := query.MostRecentEvent(ctx, s.DB, req.GuildID, channels)
		if err != nil {
			return query.Window{}, err
		}
		if !ok {
			return query.Window{}, ErrNoEvents
		}
		return query.ResolveWindow(nil, nil, latest.T, now, s.DefaultWindow)
	default:
		return query.ResolveWindow(req.Start, req.End, time.Time{}, now, s.DefaultWindow)
	}
}
