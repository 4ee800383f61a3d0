package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hamed0406/uptimewatch/internal/domain"
	"github.com/hamed0406/uptimewatch/internal/repo"
)

func TestMemoryStore_UpsertAndListMonitors(t *testing.T) {
	ctx := context.Background()
	s := New()

	mon := &domain.Monitor{
		OwnerID:          "u1",
		Name:             "example",
		URL:              "https://example.com",
		FrequencySeconds: 60,
		IsActive:         true,
	}
	if err := s.UpsertMonitor(ctx, mon); err != nil {
		t.Fatalf("UpsertMonitor: %v", err)
	}
	if mon.ID == "" {
		t.Fatalf("expected monitor ID to be set")
	}
	if mon.Status != domain.StatusPending {
		t.Fatalf("new monitor should start PENDING, got %s", mon.Status)
	}

	paused := &domain.Monitor{OwnerID: "u1", URL: "https://b.example", FrequencySeconds: 60}
	if err := s.UpsertMonitor(ctx, paused); err != nil {
		t.Fatalf("UpsertMonitor paused: %v", err)
	}

	active, err := s.ListActiveMonitors(ctx)
	if err != nil {
		t.Fatalf("ListActiveMonitors: %v", err)
	}
	if len(active) != 1 || active[0].ID != mon.ID {
		t.Fatalf("expected only the active monitor, got %+v", active)
	}

	owned, _ := s.ListMonitorsByOwner(ctx, "u1")
	if len(owned) != 2 {
		t.Fatalf("expected 2 monitors for owner, got %d", len(owned))
	}
}

func TestMemoryStore_UpdateStateAndNotFound(t *testing.T) {
	ctx := context.Background()
	s := New()
	mon := &domain.Monitor{ID: "m1", URL: "https://example.com", FrequencySeconds: 60, IsActive: true}
	_ = s.UpsertMonitor(ctx, mon)

	now := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)
	st := domain.MonitorState{Status: domain.StatusDown, LastCheck: now, NextCheck: now.Add(time.Minute)}
	if err := s.UpdateMonitorState(ctx, "m1", st); err != nil {
		t.Fatalf("UpdateMonitorState: %v", err)
	}
	got, err := s.GetMonitor(ctx, "m1")
	if err != nil {
		t.Fatalf("GetMonitor: %v", err)
	}
	if got.Status != domain.StatusDown || got.LastCheck == nil || !got.LastCheck.Equal(now) || !got.NextCheck.Equal(now.Add(time.Minute)) {
		t.Fatalf("state not applied: %+v", got)
	}

	if err := s.UpdateMonitorState(ctx, "missing", st); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if _, err := s.GetMonitor(ctx, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_ResultsOrderedAndSince(t *testing.T) {
	ctx := context.Background()
	s := New()
	t0 := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)

	// append out of order on purpose
	for _, off := range []int{0, 120, 60, 180} {
		res := &domain.CheckResult{
			MonitorID: "m1",
			Timestamp: t0.Add(time.Duration(off) * time.Second),
			Success:   domain.Bool(true),
		}
		if err := s.AppendResult(ctx, res); err != nil {
			t.Fatalf("AppendResult: %v", err)
		}
		if res.ID == "" {
			t.Fatalf("expected result ID to be set")
		}
	}

	all, _ := s.ListResultsForMonitor(ctx, "m1", nil)
	if len(all) != 4 {
		t.Fatalf("want 4 results, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Timestamp.Before(all[i-1].Timestamp) {
			t.Fatalf("results not ascending at %d", i)
		}
	}

	since := t0.Add(60 * time.Second)
	tail, _ := s.ListResultsForMonitor(ctx, "m1", &since)
	if len(tail) != 3 || !tail[0].Timestamp.Equal(since) {
		t.Fatalf("since filter wrong: %+v", tail)
	}
}

func TestMemoryStore_DeleteCascadesResults(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.UpsertMonitor(ctx, &domain.Monitor{ID: "m1", URL: "https://example.com", FrequencySeconds: 60})
	_ = s.AppendResult(ctx, &domain.CheckResult{MonitorID: "m1", Success: domain.Bool(false)})

	if err := s.DeleteMonitor(ctx, "m1"); err != nil {
		t.Fatalf("DeleteMonitor: %v", err)
	}
	rows, _ := s.ListResultsForMonitor(ctx, "m1", nil)
	if len(rows) != 0 {
		t.Fatalf("results should be gone, got %d", len(rows))
	}
	if err := s.DeleteMonitor(ctx, "m1"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("second delete should be ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_UpsertLeavesSchedulerState(t *testing.T) {
	ctx := context.Background()
	s := New()
	mon := &domain.Monitor{ID: "m1", URL: "https://example.com", FrequencySeconds: 60, IsActive: true}
	if err := s.UpsertMonitor(ctx, mon); err != nil {
		t.Fatal(err)
	}
	now := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)
	if err := s.UpdateMonitorState(ctx, "m1", domain.MonitorState{Status: domain.StatusDown, LastCheck: now, NextCheck: now.Add(time.Minute)}); err != nil {
		t.Fatal(err)
	}

	// stale copy carrying PENDING and an old schedule
	edit := &domain.Monitor{ID: "m1", Name: "renamed", URL: "https://example.com", FrequencySeconds: 120, IsActive: true,
		Status: domain.StatusPending, NextCheck: now.Add(-time.Hour)}
	if err := s.UpsertMonitor(ctx, edit); err != nil {
		t.Fatal(err)
	}
	if edit.Status != domain.StatusDown || !edit.NextCheck.Equal(now.Add(time.Minute)) {
		t.Fatalf("caller should get the stored state back: %+v", edit)
	}
	got, _ := s.GetMonitor(ctx, "m1")
	if got.Name != "renamed" || got.FrequencySeconds != 120 || got.Status != domain.StatusDown || got.LastCheck == nil {
		t.Fatalf("upsert overwrote scheduler state: %+v", got)
	}

	// a zero LastCheck resets to never checked
	if err := s.UpdateMonitorState(ctx, "m1", domain.MonitorState{Status: domain.StatusPending, NextCheck: now}); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetMonitor(ctx, "m1")
	if got.Status != domain.StatusPending || got.LastCheck != nil {
		t.Fatalf("reset not applied: %+v", got)
	}
}
