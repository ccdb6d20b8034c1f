package memory

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/mendsys/mend/pkg/incident"
)

// FileStore persists experience records as JSON lines in a file, so the
// memory survives process restarts.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a file-backed experience store.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Store appends a JSON-encoded record to the file.
func (f *FileStore) Store(_ context.Context, exp *incident.Experience) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	return enc.Encode(exp)
}

// Retrieve re-reads the file and returns ranked matches. Reloading on
// every call keeps concurrent writers visible, the same way the store is
// shared between a serving process and one-shot CLI runs.
func (f *FileStore) Retrieve(ctx context.Context, q Query) ([]*incident.Experience, error) {
	all, err := f.load()
	if err != nil {
		return nil, err
	}
	return rank(all, q), nil
}

// Stats summarizes all stored records.
func (f *FileStore) Stats(_ context.Context) (*Stats, error) {
	all, err := f.load()
	if err != nil {
		return nil, err
	}
	return computeStats(all), nil
}

// Timeline returns chart entries in insertion order.
func (f *FileStore) Timeline(_ context.Context) ([]TimelineEntry, error) {
	all, err := f.load()
	if err != nil {
		return nil, err
	}
	return computeTimeline(all), nil
}

// Clear truncates the file.
func (f *FileStore) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (f *FileStore) load() ([]*incident.Experience, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.Open(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var all []*incident.Experience
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var exp incident.Experience
		if err := json.Unmarshal(line, &exp); err != nil {
			return nil, err
		}
		all = append(all, &exp)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return all, nil
}

var _ Store = (*FileStore)(nil)
