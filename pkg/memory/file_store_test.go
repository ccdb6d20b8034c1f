package memory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mendsys/mend/pkg/incident"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "experiences.jsonl")
	store := NewFileStore(path)
	ctx := context.Background()

	got, err := store.Retrieve(ctx, Query{Category: "cpu"})
	if err != nil {
		t.Fatalf("retrieve on missing file should not fail: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %d", len(got))
	}

	exp := makeExperience(t, incident.CategoryMemory, "heap growth on api-gateway-01", 0.92)
	if err := store.Store(ctx, exp); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	got, err = store.Retrieve(ctx, Query{Category: "memory"})
	if err != nil {
		t.Fatalf("retrieve failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 experience, got %d", len(got))
	}
	if got[0].ID != exp.ID {
		t.Errorf("expected id %q, got %q", exp.ID, got[0].ID)
	}
	if got[0].Score() != exp.Score() {
		t.Errorf("expected score %v, got %v", exp.Score(), got[0].Score())
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "experiences.jsonl")
	ctx := context.Background()

	first := NewFileStore(path)
	_ = first.Store(ctx, makeExperience(t, incident.CategorySSL, "cert expiring", 0.88))

	second := NewFileStore(path)
	stats, err := second.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.TotalResolutions != 1 {
		t.Errorf("expected persisted record visible to new store, got %d", stats.TotalResolutions)
	}
}

func TestFileStoreClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "experiences.jsonl")
	store := NewFileStore(path)
	ctx := context.Background()

	_ = store.Store(ctx, makeExperience(t, incident.CategoryDisk, "disk full", 0.9))
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	got, err := store.Retrieve(ctx, Query{})
	if err != nil {
		t.Fatalf("retrieve after clear failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty after clear, got %d", len(got))
	}

	// Clearing an already-empty store is fine.
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("second clear failed: %v", err)
	}
}
