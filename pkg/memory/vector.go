package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mendsys/mend/pkg/incident"
)

// VectorStore defines the interface for a vector database.
type VectorStore interface {
	// Upsert adds or updates points in the vector store.
	Upsert(ctx context.Context, collection string, points []Point) error
	// Search searches for the nearest vectors to the given vector.
	Search(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float32) ([]SearchResult, error)
	// CreateCollection creates a new collection if it doesn't exist.
	CreateCollection(ctx context.Context, name string, vectorSize uint64) error
	// DeleteCollection removes a collection and its points.
	DeleteCollection(ctx context.Context, name string) error
}

// Point represents a data point in the vector store.
type Point struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload"`
}

// SearchResult represents a result from a vector search.
type SearchResult struct {
	ID    string  `json:"id"`
	Score float32 `json:"score"`
	Point Point   `json:"point"`
}

// Embedder defines the interface for converting text to vectors.
type Embedder interface {
	// Embed converts a text string into a vector.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// minSimilarity is the score floor for vector retrieval.
const minSimilarity = 0.6

// VectorMemory is a similarity-retrieval experience store. Records live
// in a delegate Store (which also answers Stats/Timeline); the vector
// index holds their embeddings so Retrieve can rank by task similarity
// rather than category substring.
type VectorMemory struct {
	store      VectorStore
	embedder   Embedder
	records    Store
	collection string
}

// NewVectorMemory creates a vector-indexed experience store on top of a
// record-keeping delegate.
func NewVectorMemory(store VectorStore, embedder Embedder, records Store, collection string) *VectorMemory {
	return &VectorMemory{
		store:      store,
		embedder:   embedder,
		records:    records,
		collection: collection,
	}
}

// Initialize ensures the collection exists with the embedder's dimension.
func (vm *VectorMemory) Initialize(ctx context.Context) error {
	vec, err := vm.embedder.Embed(ctx, "probe")
	if err != nil {
		return fmt.Errorf("failed to get embedding dimension: %w", err)
	}

	if err := vm.store.CreateCollection(ctx, vm.collection, uint64(len(vec))); err != nil {
		// A search succeeding means the collection already exists.
		if _, searchErr := vm.store.Search(ctx, vm.collection, vec, 1, 0.0); searchErr == nil {
			return nil
		}
		return err
	}
	return nil
}

// Store appends the record and indexes its embedding.
func (vm *VectorMemory) Store(ctx context.Context, exp *incident.Experience) error {
	if err := vm.records.Store(ctx, exp); err != nil {
		return err
	}

	text := embeddingText(exp)
	vector, err := vm.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to embed experience: %w", err)
	}

	payload, err := experiencePayload(exp)
	if err != nil {
		return err
	}

	point := Point{
		ID:      exp.ID,
		Vector:  vector,
		Payload: payload,
	}
	if err := vm.store.Upsert(ctx, vm.collection, []Point{point}); err != nil {
		return fmt.Errorf("failed to index experience: %w", err)
	}
	return nil
}

// Retrieve ranks experiences by embedding similarity to the query text.
// If the query has no text, it falls back to the delegate's ranking.
func (vm *VectorMemory) Retrieve(ctx context.Context, q Query) ([]*incident.Experience, error) {
	if q.Text == "" {
		return vm.records.Retrieve(ctx, q)
	}

	vector, err := vm.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := vm.store.Search(ctx, vm.collection, vector, q.limit(), minSimilarity)
	if err != nil {
		return nil, fmt.Errorf("failed to search experiences: %w", err)
	}

	matches := make([]*incident.Experience, 0, len(results))
	for _, r := range results {
		exp, err := experienceFromPayload(r.Point.Payload)
		if err != nil {
			continue
		}
		if q.Category != "" && string(exp.Category) != q.Category {
			continue
		}
		matches = append(matches, exp)
	}
	return matches, nil
}

// Stats delegates to the record store.
func (vm *VectorMemory) Stats(ctx context.Context) (*Stats, error) {
	return vm.records.Stats(ctx)
}

// Timeline delegates to the record store.
func (vm *VectorMemory) Timeline(ctx context.Context) ([]TimelineEntry, error) {
	return vm.records.Timeline(ctx)
}

// Clear drops the vector collection and the delegate records.
func (vm *VectorMemory) Clear(ctx context.Context) error {
	if err := vm.store.DeleteCollection(ctx, vm.collection); err != nil {
		return err
	}
	return vm.records.Clear(ctx)
}

func embeddingText(exp *incident.Experience) string {
	return string(exp.Category) + ": " + exp.Task + "\n" + exp.Resolution.Summary
}

func experiencePayload(exp *incident.Experience) (map[string]interface{}, error) {
	encoded, err := json.Marshal(exp)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"experience": string(encoded),
		"category":   string(exp.Category),
	}, nil
}

func experienceFromPayload(payload map[string]interface{}) (*incident.Experience, error) {
	raw, ok := payload["experience"].(string)
	if !ok {
		return nil, fmt.Errorf("payload missing experience field")
	}
	var exp incident.Experience
	if err := json.Unmarshal([]byte(raw), &exp); err != nil {
		return nil, err
	}
	return &exp, nil
}

var _ Store = (*VectorMemory)(nil)
