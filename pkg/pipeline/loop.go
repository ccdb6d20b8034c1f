package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mendsys/mend/pkg/errors"
	"github.com/mendsys/mend/pkg/incident"
	"github.com/mendsys/mend/pkg/memory"
)

// State names a phase of the improvement loop.
type State string

const (
	StateProposing  State = "proposing"
	StateCritiquing State = "critiquing"
	StateRefining   State = "refining"
	StateDone       State = "done"
	StateExhausted  State = "exhausted"
)

// DefaultMaxIterations is the critic pass budget per loop. The refiner
// runs at most DefaultMaxIterations-1 times.
const DefaultMaxIterations = 5

// Loop drives the critic and refiner until the composite score clears
// the threshold or the iteration budget runs out.
type Loop struct {
	critic  *Critic
	refiner *Refiner
	memory  memory.Store
	logger  *slog.Logger

	mu            sync.RWMutex
	threshold     float64
	maxIterations int
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithThreshold overrides the acceptance threshold.
func WithThreshold(threshold float64) LoopOption {
	return func(l *Loop) {
		if threshold > 0 {
			l.threshold = threshold
		}
	}
}

// WithMaxIterations overrides the critic pass budget.
func WithMaxIterations(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.maxIterations = n
		}
	}
}

// WithLoopLogger sets the loop logger.
func WithLoopLogger(logger *slog.Logger) LoopOption {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoop builds an improvement loop storing its outcome in store.
func NewLoop(critic *Critic, refiner *Refiner, store memory.Store, opts ...LoopOption) *Loop {
	l := &Loop{
		critic:        critic,
		refiner:       refiner,
		memory:        store,
		threshold:     incident.QualityThreshold,
		maxIterations: DefaultMaxIterations,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Tune adjusts the quality gate for subsequent runs; a run already in
// flight keeps the settings it started with. Non-positive values leave
// the current setting in place.
func (l *Loop) Tune(threshold float64, maxIterations int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if threshold > 0 {
		l.threshold = threshold
	}
	if maxIterations > 0 {
		l.maxIterations = maxIterations
	}
}

// LoopResult is the outcome of one improvement loop.
type LoopResult struct {
	Resolution *incident.Resolution `json:"resolution"`
	Critique   *incident.Critique   `json:"critique"`
	Outcome    incident.Outcome     `json:"outcome"`
	Iterations int                  `json:"iterations"`
	State      State                `json:"state"`
	Experience *incident.Experience `json:"experience,omitempty"`
}

// Run iterates critic and refiner over the candidate. Exactly one
// experience record is stored per completed loop, carrying the critique
// the loop ended with.
func (l *Loop) Run(ctx context.Context, task incident.Task, report *incident.TriageReport, candidate *incident.Resolution) (*LoopResult, error) {
	if candidate == nil {
		return nil, errors.New(errors.CodeInvalidInput, "loop requires a candidate resolution", nil)
	}

	l.mu.RLock()
	threshold, maxIterations := l.threshold, l.maxIterations
	l.mu.RUnlock()

	var bestRes *incident.Resolution
	var bestCrit *incident.Critique

	for iteration := 1; iteration <= maxIterations; iteration++ {
		critique, err := l.critic.Run(ctx, report, candidate, iteration)
		if err != nil {
			l.logger.Error("critic pass failed", "iteration", iteration, "error", err)
			if bestCrit != nil {
				return l.finish(ctx, task, bestRes, bestCrit, incident.OutcomeExhausted, iteration-1, StateExhausted)
			}
			return nil, err
		}

		if bestCrit == nil || critique.Composite > bestCrit.Composite {
			bestRes, bestCrit = candidate, critique
		}

		l.logger.Info("critic pass",
			"iteration", iteration,
			"composite", critique.Composite,
			"threshold", threshold,
		)

		if critique.Composite >= threshold {
			return l.finish(ctx, task, candidate, critique, incident.OutcomeQualityAchieved, iteration, StateDone)
		}

		if iteration == maxIterations {
			break
		}

		refined, err := l.refiner.Run(ctx, task, candidate, critique, iteration)
		if err != nil {
			l.logger.Error("refiner pass failed", "iteration", iteration, "error", err)
			return l.finish(ctx, task, bestRes, bestCrit, incident.OutcomeExhausted, iteration, StateExhausted)
		}
		candidate = refined
	}

	return l.finish(ctx, task, bestRes, bestCrit, incident.OutcomeExhausted, maxIterations, StateExhausted)
}

func (l *Loop) finish(ctx context.Context, task incident.Task, res *incident.Resolution, crit *incident.Critique, outcome incident.Outcome, iterations int, state State) (*LoopResult, error) {
	result := &LoopResult{
		Resolution: res,
		Critique:   crit,
		Outcome:    outcome,
		Iterations: iterations,
		State:      state,
	}

	exp := incident.NewExperience(task, *res, *crit, outcome)
	if l.memory != nil {
		if err := l.memory.Store(ctx, exp); err != nil {
			// The incident is still resolved; losing the record only
			// costs future retrieval.
			me := errors.New(errors.CodeMemoryError, "experience store failed", err)
			l.logger.Error("experience store failed", "error", me)
		} else {
			result.Experience = exp
		}
	}
	return result, nil
}
