package usage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memUsage struct {
	mu      sync.Mutex
	records []record
}

type record struct {
	guildID int64
	pixels  int64
	at      time.Time
}

func (m *memUsage) Record(ctx context.Context, guildID, pixels int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record{guildID, pixels, at})
	return nil
}

func (m *memUsage) Sum(ctx context.Context, guildID int64, start, end time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, r := range m.records {
		if r.guildID == guildID && !r.at.Before(start) && r.at.Before(end) {
			total += r.pixels
		}
	}
	return total, nil
}

func (m *memUsage) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func fixedNow() time.Time {
	return time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
}

func TestRollingUsageExcludesOldRecords(t *testing.T) {
	store := &memUsage{}
	th := &Throttle{Store: store, PerRequest: 1000, PerDay: 10_000, Window: 24 * time.Hour, Now: fixedNow}
	ctx := context.Background()

	store.Record(ctx, 1, 10, fixedNow().Add(-time.Hour))
	store.Record(ctx, 1, 5, fixedNow().Add(-25*time.Hour)) // aged out
	store.Record(ctx, 2, 99, fixedNow().Add(-time.Hour))   // other guild

	got, err := th.RollingUsage(ctx, 1)
	if err != nil {
		t.Fatalf("RollingUsage: %v", err)
	}
	if got != 10 {
		t.Fatalf("RollingUsage = %d, want 10", got)
	}
}

func TestAdmitPerRequestLimit(t *testing.T) {
	th := &Throttle{Store: &memUsage{}, PerRequest: 100, PerDay: 10_000, Window: 24 * time.Hour, Now: fixedNow}
	err := th.Admit(context.Background(), 1, 150)
	var le *LimitError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want *LimitError", err)
	}
	if le.Kind != LimitPerRequest {
		t.Errorf("Kind = %q, want per_request", le.Kind)
	}
	if le.Limit != 100 || le.Requested != 150 {
		t.Errorf("LimitError = %+v", le)
	}
}

func TestAdmitPerDayLimit(t *testing.T) {
	store := &memUsage{}
	th := &Throttle{Store: store, PerRequest: 100, PerDay: 100, Window: 24 * time.Hour, Now: fixedNow}
	ctx := context.Background()

	if err := th.RecordUsage(ctx, 1, 60); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	before := store.count()

	err := th.Admit(ctx, 1, 50) // 60 + 50 > 100
	var le *LimitError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want *LimitError", err)
	}
	if le.Kind != LimitPerDay {
		t.Errorf("Kind = %q, want per_day", le.Kind)
	}
	if le.Used != 60 {
		t.Errorf("Used = %d, want 60", le.Used)
	}
	// rejection leaves no trace
	if store.count() != before {
		t.Error("rejected request was recorded")
	}

	// exactly reaching the limit is allowed
	if err := th.Admit(ctx, 1, 40); err != nil {
		t.Fatalf("Admit at exact limit: %v", err)
	}
}

func TestAdmitDoesNotRecord(t *testing.T) {
	store := &memUsage{}
	th := &Throttle{Store: store, PerRequest: 1000, PerDay: 10_000, Window: 24 * time.Hour, Now: fixedNow}
	ctx := context.Background()

	if err := th.Admit(ctx, 1, 500); err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if store.count() != 0 {
		t.Fatal("Admit recorded usage; only completed renders should")
	}
	if err := th.RecordUsage(ctx, 1, 500); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	if store.count() != 1 {
		t.Fatalf("records = %d, want 1", store.count())
	}
}

func TestThrottleUsesInjectedClock(t *testing.T) {
	store := &memUsage{}
	now := fixedNow()
	th := &Throttle{Store: store, PerRequest: 1000, PerDay: 100, Window: 24 * time.Hour, Now: func() time.Time { return now }}
	ctx := context.Background()

	if err := th.RecordUsage(ctx, 1, 100); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	if err := th.Admit(ctx, 1, 1); err == nil {
		t.Fatal("expected per-day rejection while record is fresh")
	}

	// the record ages out of the window
	now = now.Add(25 * time.Hour)
	if err := th.Admit(ctx, 1, 1); err != nil {
		t.Fatalf("Admit after window rolled: %v", err)
	}
}
