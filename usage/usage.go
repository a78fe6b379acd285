// Package usage throttles render work by tracking pixel cost over a rolling
// window, so a single guild cannot monopolize the renderer.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store persists completed render costs.
type Store interface {
	// Record logs a completed render's pixel cost.
	Record(ctx context.Context, guildID, pixels int64, at time.Time) error
	// Sum returns total pixels recorded in [start, end).
	Sum(ctx context.Context, guildID int64, start, end time.Time) (int64, error)
}

// SQLStore implements Store on the render_history table.
type SQLStore struct {
	DB *sql.DB
}

func (s *SQLStore) Record(ctx context.Context, guildID, pixels int64, at time.Time) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO render_history (guild_id, pixels, created_at) VALUES ($1, $2, $3)`,
		guildID, pixels, at)
	if err != nil {
		return fmt.Errorf("record render usage: %w", err)
	}
	return nil
}

func (s *SQLStore) Sum(ctx context.Context, guildID int64, start, end time.Time) (int64, error) {
	var total int64
	err := s.DB.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(pixels), 0) FROM render_history
		 WHERE guild_id = $1 AND created_at >= $2 AND created_at < $3`,
		guildID, start, end).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum render usage: %w", err)
	}
	return total, nil
}

// LimitKind says which limit a rejected request hit.
type LimitKind string

const (
	LimitPerRequest LimitKind = "per_request"
	LimitPerDay     LimitKind = "per_day"
)

// LimitError reports a rejected render request.
type LimitError struct {
	Kind      LimitKind
	Requested int64
	Used      int64 // rolling usage at rejection time; zero for per-request
	Limit     int64
}

func (e *LimitError) Error() string {
	if e.Kind == LimitPerRequest {
		return fmt.Sprintf("render of %d pixels exceeds per-request limit %d", e.Requested, e.Limit)
	}
	return fmt.Sprintf("render of %d pixels exceeds daily limit %d (%d already used)", e.Requested, e.Limit, e.Used)
}

// Throttle enforces per-request and rolling per-day pixel limits.
type Throttle struct {
	Store      Store
	PerRequest int64
	PerDay     int64
	Window     time.Duration    // rolling window, normally 24h
	Now        func() time.Time // nil means time.Now
}

func (t *Throttle) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

// RollingUsage returns the guild's recorded pixel total over the window
// ending now.
func (t *Throttle) RollingUsage(ctx context.Context, guildID int64) (int64, error) {
	n := t.now()
	return t.Store.Sum(ctx, guildID, n.Add(-t.Window), n)
}

// Admit checks a prospective render of the given pixel cost against both
// limits. It records nothing; only completed renders count against the
// rolling window, via RecordUsage. A rejection is a *LimitError.
func (t *Throttle) Admit(ctx context.Context, guildID, pixels int64) error {
	if pixels > t.PerRequest {
		return &LimitError{Kind: LimitPerRequest, Requested: pixels, Limit: t.PerRequest}
	}
	used, err := t.RollingUsage(ctx, guildID)
	if err != nil {
		return err
	}
	if used+pixels > t.PerDay {
		return &LimitError{Kind: LimitPerDay, Requested: pixels, Used: used, Limit: t.PerDay}
	}
	return nil
}

// RecordUsage logs a completed render against the rolling window.
func (t *Throttle) RecordUsage(ctx context.Context, guildID, pixels int64) error {
	return t.Store.Record(ctx, guildID, pixels, t.now())
}
