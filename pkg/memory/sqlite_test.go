package memory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mendsys/mend/pkg/incident"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "mend.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store := openTestSQLite(t)
	ctx := context.Background()

	got, err := store.Retrieve(ctx, Query{Category: "network"})
	if err != nil {
		t.Fatalf("retrieve on empty store failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %d", len(got))
	}

	exp := makeExperience(t, incident.CategoryNetwork, "packet loss between tiers", 0.87)
	if err := store.Store(ctx, exp); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	got, err = store.Retrieve(ctx, Query{Category: "network"})
	if err != nil {
		t.Fatalf("retrieve failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 experience, got %d", len(got))
	}
	if got[0].ID != exp.ID {
		t.Errorf("expected id %q, got %q", exp.ID, got[0].ID)
	}
	if got[0].Task != exp.Task {
		t.Errorf("expected task %q, got %q", exp.Task, got[0].Task)
	}
	if got[0].Critique.Composite != exp.Critique.Composite {
		t.Errorf("expected composite %v, got %v", exp.Critique.Composite, got[0].Critique.Composite)
	}
	if got[0].Outcome != incident.OutcomeQualityAchieved {
		t.Errorf("unexpected outcome %v", got[0].Outcome)
	}
}

func TestSQLiteStoreStatsAndClear(t *testing.T) {
	store := openTestSQLite(t)
	ctx := context.Background()

	_ = store.Store(ctx, makeExperience(t, incident.CategoryCPU, "first", 0.7))
	_ = store.Store(ctx, makeExperience(t, incident.CategoryCPU, "second", 0.9))

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.TotalResolutions != 2 {
		t.Errorf("expected 2, got %d", stats.TotalResolutions)
	}
	if stats.OverallAverage != 0.8 {
		t.Errorf("expected average 0.8, got %v", stats.OverallAverage)
	}

	entries, err := store.Timeline(ctx)
	if err != nil {
		t.Fatalf("timeline failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	stats, _ = store.Stats(ctx)
	if stats.TotalResolutions != 0 {
		t.Errorf("expected empty after clear, got %d", stats.TotalResolutions)
	}
}
