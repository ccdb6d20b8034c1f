package memory

import (
	"context"
	"sync"

	"github.com/mendsys/mend/pkg/incident"
)

// InMemory is a process-local experience store. Default for tests and
// one-shot runs.
type InMemory struct {
	mu   sync.RWMutex
	data []*incident.Experience
}

// NewInMemory creates an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{}
}

// Store appends an experience record.
func (m *InMemory) Store(_ context.Context, exp *incident.Experience) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append(m.data, exp)
	return nil
}

// Retrieve returns ranked matches for the query.
func (m *InMemory) Retrieve(_ context.Context, q Query) ([]*incident.Experience, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return rank(m.data, q), nil
}

// Stats summarizes all stored records.
func (m *InMemory) Stats(_ context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return computeStats(m.data), nil
}

// Timeline returns chart entries in insertion order.
func (m *InMemory) Timeline(_ context.Context) ([]TimelineEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return computeTimeline(m.data), nil
}

// Clear removes all records.
func (m *InMemory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	return nil
}

var _ Store = (*InMemory)(nil)
