package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mendsys/mend/pkg/incident"
)

// SQLiteStore persists experience records in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) a SQLite database at path and ensures
// the experience schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return NewSQLiteStore(db)
}

// NewSQLiteStore creates a SQLite-backed experience store and ensures schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := ensureExperienceSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Store appends an experience record.
func (s *SQLiteStore) Store(ctx context.Context, exp *incident.Experience) error {
	resolution, err := json.Marshal(exp.Resolution)
	if err != nil {
		return err
	}
	critique, err := json.Marshal(exp.Critique)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO experiences (
			id, created_at, category, fingerprint, task, resolution_json, critique_json, score, outcome
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		exp.ID,
		exp.Timestamp.UTC().Format(time.RFC3339Nano),
		string(exp.Category),
		exp.Fingerprint,
		exp.Task,
		string(resolution),
		string(critique),
		exp.Score(),
		string(exp.Outcome),
	)
	return err
}

// Retrieve returns ranked matches for the query.
func (s *SQLiteStore) Retrieve(ctx context.Context, q Query) ([]*incident.Experience, error) {
	all, err := s.list(ctx)
	if err != nil {
		return nil, err
	}
	return rank(all, q), nil
}

// Stats summarizes all stored records.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	all, err := s.list(ctx)
	if err != nil {
		return nil, err
	}
	return computeStats(all), nil
}

// Timeline returns chart entries in insertion order.
func (s *SQLiteStore) Timeline(ctx context.Context) ([]TimelineEntry, error) {
	all, err := s.list(ctx)
	if err != nil {
		return nil, err
	}
	return computeTimeline(all), nil
}

// Clear removes all stored experiences.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM experiences`)
	return err
}

func (s *SQLiteStore) list(ctx context.Context) ([]*incident.Experience, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, category, fingerprint, task, resolution_json, critique_json, outcome
		FROM experiences
		ORDER BY created_at ASC, rowid ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var all []*incident.Experience
	for rows.Next() {
		var (
			exp            incident.Experience
			createdAt      string
			category       string
			resolutionJSON string
			critiqueJSON   string
			outcome        string
		)
		if err := rows.Scan(
			&exp.ID,
			&createdAt,
			&category,
			&exp.Fingerprint,
			&exp.Task,
			&resolutionJSON,
			&critiqueJSON,
			&outcome,
		); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			exp.Timestamp = ts
		}
		exp.Category = incident.Category(category)
		exp.Outcome = incident.Outcome(outcome)
		if err := json.Unmarshal([]byte(resolutionJSON), &exp.Resolution); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(critiqueJSON), &exp.Critique); err != nil {
			return nil, err
		}
		all = append(all, &exp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return all, nil
}

func ensureExperienceSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS experiences (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			created_at TEXT NOT NULL,
			category TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			task TEXT NOT NULL,
			resolution_json TEXT NOT NULL,
			critique_json TEXT NOT NULL,
			score REAL NOT NULL,
			outcome TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_experiences_category ON experiences(category);
		CREATE INDEX IF NOT EXISTS idx_experiences_fingerprint ON experiences(fingerprint);
		CREATE INDEX IF NOT EXISTS idx_experiences_score ON experiences(score);
	`)
	return err
}

var _ Store = (*SQLiteStore)(nil)
