package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"tamasha/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// ============================================================
// Mock: DailyViewStore
// ============================================================

// mockDailyViewStore recomputes rollups from an in-memory event log, so
// repeated runs can be compared for idempotence.
type mockDailyViewStore struct {
	mu      sync.Mutex
	events  []types.WatchEvent
	rollups map[string]types.DailyViewRollup
	days    []time.Time
	failOn  map[string]error
}

func rollupKey(contentID int64, day time.Time) string {
	return fmt.Sprintf("%s/%d", day.Format(time.DateOnly), contentID)
}

func (m *mockDailyViewStore) UpsertDailyViews(_ context.Context, dayStart time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.days = append(m.days, dayStart)
	if err := m.failOn[dayStart.Format(time.DateOnly)]; err != nil {
		return 0, err
	}
	if m.rollups == nil {
		m.rollups = make(map[string]types.DailyViewRollup)
	}

	type acc struct {
		count    int
		viewers  map[int64]struct{}
		progress float64
	}
	byContent := make(map[int64]*acc)
	dayEnd := dayStart.Add(24 * time.Hour)
	for _, e := range m.events {
		if e.WatchedAt.Before(dayStart) || !e.WatchedAt.Before(dayEnd) {
			continue
		}
		a := byContent[e.ContentID]
		if a == nil {
			a = &acc{viewers: make(map[int64]struct{})}
			byContent[e.ContentID] = a
		}
		a.count++
		a.viewers[e.UserID] = struct{}{}
		a.progress += e.Progress
	}
	for id, a := range byContent {
		m.rollups[rollupKey(id, dayStart)] = types.DailyViewRollup{
			ContentID:        id,
			Date:             dayStart,
			ViewCount:        a.count,
			UniqueViewers:    len(a.viewers),
			AvgWatchDuration: a.progress / float64(a.count),
		}
	}
	return int64(len(byContent)), nil
}

func (m *mockDailyViewStore) snapshot() map[string]types.DailyViewRollup {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]types.DailyViewRollup, len(m.rollups))
	for k, v := range m.rollups {
		out[k] = v
	}
	return out
}

// ============================================================
// DailyViewAggregator Tests
// ============================================================

func TestPreviousUTCDay(t *testing.T) {
	tehran := time.FixedZone("IRST", 3*3600+1800)
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"mid-day UTC", time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC), time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)},
		{"just after midnight", time.Date(2026, 3, 15, 0, 0, 1, 0, time.UTC), time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)},
		{"month boundary", time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC), time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)},
		// 01:00 Tehran on the 15th is still the 14th in UTC.
		{"local zone input", time.Date(2026, 3, 15, 1, 0, 0, 0, tehran), time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PreviousUTCDay(tt.now); !got.Equal(tt.want) {
				t.Errorf("PreviousUTCDay(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestAggregateDay_Idempotent(t *testing.T) {
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	store := &mockDailyViewStore{events: []types.WatchEvent{
		{ContentID: 1, UserID: 10, WatchedAt: day.Add(1 * time.Hour), Progress: 0.5},
		{ContentID: 1, UserID: 10, WatchedAt: day.Add(2 * time.Hour), Progress: 1.0},
		{ContentID: 1, UserID: 11, WatchedAt: day.Add(3 * time.Hour), Progress: 0.3},
		{ContentID: 2, UserID: 12, WatchedAt: day.Add(23 * time.Hour), Progress: 0.9},
		// Outside the window on both sides.
		{ContentID: 1, UserID: 13, WatchedAt: day.Add(-time.Second), Progress: 1},
		{ContentID: 1, UserID: 13, WatchedAt: day.Add(24 * time.Hour), Progress: 1},
	}}
	agg := NewDailyViewAggregator(store, testLogger())
	now := time.Date(2026, 3, 15, 1, 0, 0, 0, time.UTC)

	n, err := agg.AggregateDay(context.Background(), now)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if n != 2 {
		t.Errorf("rows = %d, want 2", n)
	}
	first := store.snapshot()

	if _, err := agg.AggregateDay(context.Background(), now); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second := store.snapshot()

	if len(first) != len(second) {
		t.Fatalf("row count changed: %d vs %d", len(first), len(second))
	}
	for k, v := range first {
		if second[k] != v {
			t.Errorf("rollup %s changed: %+v vs %+v", k, v, second[k])
		}
	}

	r := first[rollupKey(1, day)]
	if r.ViewCount != 3 || r.UniqueViewers != 2 {
		t.Errorf("content 1 rollup = %+v, want 3 views / 2 viewers", r)
	}
}

func TestAggregateDay_PropagatesError(t *testing.T) {
	boom := types.NewAppError(types.ErrCodeInternalDB, "failed to upsert daily view rollup", errors.New("conn reset"))
	store := &mockDailyViewStore{failOn: map[string]error{"2026-03-14": boom}}
	agg := NewDailyViewAggregator(store, testLogger())

	n, err := agg.AggregateDay(context.Background(), time.Date(2026, 3, 15, 1, 0, 0, 0, time.UTC))
	if n != 0 {
		t.Errorf("rows = %d, want 0", n)
	}
	if !types.IsCode(err, types.ErrCodeInternalDB) {
		t.Fatalf("expected wrapped AppError, got %v", err)
	}
	if len(store.days) != 1 {
		t.Errorf("store called %d times, want exactly 1 (no retry)", len(store.days))
	}
}

func TestAggregateRange_Backfill(t *testing.T) {
	store := &mockDailyViewStore{}
	agg := NewDailyViewAggregator(store, testLogger())

	from := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC)
	if _, err := agg.AggregateRange(context.Background(), from, to); err != nil {
		t.Fatalf("AggregateRange: %v", err)
	}

	want := []string{"2026-03-10", "2026-03-11", "2026-03-12"}
	if len(store.days) != len(want) {
		t.Fatalf("days = %v, want %v", store.days, want)
	}
	for i, d := range store.days {
		if d.Format(time.DateOnly) != want[i] {
			t.Errorf("day[%d] = %s, want %s", i, d.Format(time.DateOnly), want[i])
		}
	}
}

func TestAggregateRange_StopsAtFirstFailure(t *testing.T) {
	store := &mockDailyViewStore{failOn: map[string]error{"2026-03-11": errors.New("boom")}}
	agg := NewDailyViewAggregator(store, testLogger())

	_, err := agg.AggregateRange(context.Background(),
		time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC))
	if err == nil {
		t.Fatal("expected error")
	}
	if len(store.days) != 2 {
		t.Errorf("store called for %d days, want 2", len(store.days))
	}
}

func TestBackfillWindow(t *testing.T) {
	now := time.Date(2026, 3, 15, 2, 30, 0, 0, time.UTC)

	from, to := BackfillWindow(now, 3)
	if want := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC); !from.Equal(want) {
		t.Errorf("from = %v, want %v", from, want)
	}
	if want := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC); !to.Equal(want) {
		t.Errorf("to = %v, want %v", to, want)
	}
}

func TestTaskPayloadValidate(t *testing.T) {
	tests := []struct {
		name    string
		payload TaskPayload
		wantErr bool
	}{
		{"plain task", TaskPayload{Task: TaskHousekeeping}, false},
		{"backfill on rollup", TaskPayload{Task: TaskAggregateDailyViews, BackfillDays: 7}, false},
		{"backfill on other task", TaskPayload{Task: TaskDailyAnalytics, BackfillDays: 7}, true},
		{"negative backfill", TaskPayload{Task: TaskAggregateDailyViews, BackfillDays: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !types.IsCode(err, types.ErrCodeValidationTask) {
				t.Errorf("code = %v, want %s", err, types.ErrCodeValidationTask)
			}
		})
	}
}
