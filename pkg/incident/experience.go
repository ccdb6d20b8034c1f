package incident

import (
	"time"

	"github.com/google/uuid"
)

// Outcome records how an improvement loop ended.
type Outcome string

const (
	// OutcomeQualityAchieved means the critic accepted the resolution.
	OutcomeQualityAchieved Outcome = "quality_achieved"

	// OutcomeExhausted means the iteration budget ran out and the
	// best-scoring candidate was kept.
	OutcomeExhausted Outcome = "exhausted"
)

// Experience is one persisted (task, resolution, critique) tuple.
// Append-only; written exactly once per completed loop.
type Experience struct {
	ID          string     `json:"id"`
	Timestamp   time.Time  `json:"timestamp"`
	Category    Category   `json:"category"`
	Fingerprint string     `json:"fingerprint"`
	Task        string     `json:"task"`
	Resolution  Resolution `json:"resolution"`
	Critique    Critique   `json:"critique"`
	Outcome     Outcome    `json:"outcome"`
}

// NewExperience builds an experience record for a completed loop.
func NewExperience(task Task, res Resolution, crit Critique, outcome Outcome) *Experience {
	return &Experience{
		ID:          uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		Category:    task.Category,
		Fingerprint: task.Fingerprint,
		Task:        task.Statement,
		Resolution:  res,
		Critique:    crit,
		Outcome:     outcome,
	}
}

// Score returns the stored composite score.
func (e *Experience) Score() float64 {
	return e.Critique.Composite
}
