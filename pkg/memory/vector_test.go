package memory

import (
	"context"
	"testing"

	"github.com/mendsys/mend/pkg/incident"
)

// fakeVectorStore keeps points in a map and returns them all on search.
type fakeVectorStore struct {
	collections map[string]uint64
	points      map[string]Point
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{
		collections: make(map[string]uint64),
		points:      make(map[string]Point),
	}
}

func (f *fakeVectorStore) CreateCollection(_ context.Context, name string, size uint64) error {
	f.collections[name] = size
	return nil
}

func (f *fakeVectorStore) DeleteCollection(_ context.Context, name string) error {
	delete(f.collections, name)
	f.points = make(map[string]Point)
	return nil
}

func (f *fakeVectorStore) Upsert(_ context.Context, _ string, points []Point) error {
	for _, p := range points {
		f.points[p.ID] = p
	}
	return nil
}

func (f *fakeVectorStore) Search(_ context.Context, _ string, _ []float32, limit int, _ float32) ([]SearchResult, error) {
	var results []SearchResult
	for _, p := range f.points {
		results = append(results, SearchResult{ID: p.ID, Score: 0.9, Point: p})
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1, 0}, nil
}

func TestVectorMemoryStoreAndRetrieve(t *testing.T) {
	vs := newFakeVectorStore()
	vm := NewVectorMemory(vs, fakeEmbedder{}, NewInMemory(), "experiences")
	ctx := context.Background()

	if err := vm.Initialize(ctx); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	if vs.collections["experiences"] != 3 {
		t.Errorf("expected collection with embedder dimension 3, got %d", vs.collections["experiences"])
	}

	exp := makeExperience(t, incident.CategoryDatabase, "replication lag on db-replica-02", 0.91)
	if err := vm.Store(ctx, exp); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	got, err := vm.Retrieve(ctx, Query{Text: "replication lag", TopK: 3})
	if err != nil {
		t.Fatalf("retrieve failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 result, got %d", len(got))
	}
	if got[0].ID != exp.ID {
		t.Errorf("expected id %q, got %q", exp.ID, got[0].ID)
	}

	// Stats come from the delegate record store.
	stats, err := vm.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.TotalResolutions != 1 {
		t.Errorf("expected 1 resolution in stats, got %d", stats.TotalResolutions)
	}
}

func TestVectorMemoryCategoryFilter(t *testing.T) {
	vm := NewVectorMemory(newFakeVectorStore(), fakeEmbedder{}, NewInMemory(), "experiences")
	ctx := context.Background()

	_ = vm.Store(ctx, makeExperience(t, incident.CategoryDatabase, "replication lag", 0.9))

	got, err := vm.Retrieve(ctx, Query{Text: "lag", Category: "cpu"})
	if err != nil {
		t.Fatalf("retrieve failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected category filter to drop mismatches, got %d", len(got))
	}
}

func TestVectorMemoryFallsBackWithoutText(t *testing.T) {
	vm := NewVectorMemory(newFakeVectorStore(), fakeEmbedder{}, NewInMemory(), "experiences")
	ctx := context.Background()

	_ = vm.Store(ctx, makeExperience(t, incident.CategoryCPU, "cpu spike", 0.9))

	got, err := vm.Retrieve(ctx, Query{Category: "cpu"})
	if err != nil {
		t.Fatalf("retrieve failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected delegate ranking without query text, got %d", len(got))
	}
}

func TestVectorMemoryClear(t *testing.T) {
	vs := newFakeVectorStore()
	vm := NewVectorMemory(vs, fakeEmbedder{}, NewInMemory(), "experiences")
	ctx := context.Background()

	_ = vm.Initialize(ctx)
	_ = vm.Store(ctx, makeExperience(t, incident.CategoryCPU, "cpu spike", 0.9))

	if err := vm.Clear(ctx); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if len(vs.points) != 0 {
		t.Error("expected vector points removed")
	}
	stats, _ := vm.Stats(ctx)
	if stats.TotalResolutions != 0 {
		t.Error("expected delegate cleared")
	}
}
