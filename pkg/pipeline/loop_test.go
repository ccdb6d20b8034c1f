package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/mendsys/mend/pkg/incident"
	"github.com/mendsys/mend/pkg/llm"
	"github.com/mendsys/mend/pkg/memory"
	"github.com/mendsys/mend/pkg/resilience"
)

func newTestStage(t *testing.T, name string, provider llm.Provider) *Collaborator {
	t.Helper()
	c, err := NewCollaborator(name, provider,
		WithRetry(resilience.DefaultRetryConfig().WithMaxAttempts(1)),
	)
	if err != nil {
		t.Fatalf("NewCollaborator(%s): %v", name, err)
	}
	return c
}

func critiqueJSON(score float64) string {
	return fmt.Sprintf(`{"scores":{"completeness":%[1]f,"specificity":%[1]f,"safety":%[1]f,"efficiency":%[1]f,"learning":%[1]f},"feedback":{"specificity":"add concrete commands"},"rationale":"scored %[1]f"}`, score)
}

func planJSON(summary string, confidence float64) string {
	return fmt.Sprintf(`{"steps":["check logs","restart service"],"rollback":["revert restart"],"summary":%q,"confidence":%f}`, summary, confidence)
}

func testTask() (incident.Task, *incident.TriageReport) {
	inc := incident.NewIncident("api latency is spiking on checkout")
	report := &incident.TriageReport{
		Priority:    incident.PriorityHigh,
		Category:    incident.CategoryApplication,
		BlastRadius: incident.BlastService,
		Symptoms:    []string{"p99 latency 4s"},
		Summary:     "checkout latency spike",
	}
	return incident.NewTask(inc, report.Summary, report.Category), report
}

func TestLoop_QualityAchievedFirstPass(t *testing.T) {
	criticProvider := llm.NewScriptedMockProvider(critiqueJSON(0.9))
	store := memory.NewInMemory()
	loop := NewLoop(
		NewCritic(newTestStage(t, "critic", criticProvider)),
		NewRefiner(newTestStage(t, "refiner", llm.NewScriptedMockProvider()), nil),
		store,
	)

	task, report := testTask()
	candidate := &incident.Resolution{Summary: "restart checkout pods", Steps: []string{"kubectl rollout restart"}, Confidence: 0.8}

	result, err := loop.Run(context.Background(), task, report, candidate)
	if err != nil {
		t.Fatalf("loop failed: %v", err)
	}

	if result.Outcome != incident.OutcomeQualityAchieved {
		t.Errorf("outcome = %s, want quality_achieved", result.Outcome)
	}
	if result.State != StateDone {
		t.Errorf("state = %s, want done", result.State)
	}
	if result.Iterations != 1 {
		t.Errorf("iterations = %d, want 1", result.Iterations)
	}
	if result.Resolution.Summary != "restart checkout pods" {
		t.Errorf("unexpected resolution %q", result.Resolution.Summary)
	}
	if criticProvider.CallCount != 1 {
		t.Errorf("critic called %d times, want 1", criticProvider.CallCount)
	}

	stats, _ := store.Stats(context.Background())
	if stats.TotalResolutions != 1 {
		t.Fatalf("expected exactly one experience stored, got %d", stats.TotalResolutions)
	}
	if result.Experience == nil {
		t.Fatal("expected experience on result")
	}
	if result.Experience.Score() != result.Critique.Composite {
		t.Errorf("experience score %v != critique composite %v",
			result.Experience.Score(), result.Critique.Composite)
	}
}

func TestLoop_RefinesUntilThreshold(t *testing.T) {
	criticProvider := llm.NewScriptedMockProvider(critiqueJSON(0.6), critiqueJSON(0.9))
	refinerProvider := llm.NewScriptedMockProvider(planJSON("refined plan", 0.85))
	store := memory.NewInMemory()
	loop := NewLoop(
		NewCritic(newTestStage(t, "critic", criticProvider)),
		NewRefiner(newTestStage(t, "refiner", refinerProvider), store),
		store,
	)

	task, report := testTask()
	candidate := &incident.Resolution{Summary: "initial plan", Confidence: 0.6}

	result, err := loop.Run(context.Background(), task, report, candidate)
	if err != nil {
		t.Fatalf("loop failed: %v", err)
	}

	if result.Outcome != incident.OutcomeQualityAchieved {
		t.Errorf("outcome = %s, want quality_achieved", result.Outcome)
	}
	if result.Iterations != 2 {
		t.Errorf("iterations = %d, want 2", result.Iterations)
	}
	if result.Resolution.Summary != "refined plan" {
		t.Errorf("expected refined resolution, got %q", result.Resolution.Summary)
	}
	if result.Resolution.Iteration != 1 {
		t.Errorf("resolution iteration = %d, want 1", result.Resolution.Iteration)
	}
	if refinerProvider.CallCount != 1 {
		t.Errorf("refiner called %d times, want 1", refinerProvider.CallCount)
	}
}

func TestLoop_ExhaustionKeepsBestCandidate(t *testing.T) {
	// Five critic passes, none clearing the threshold; the second
	// candidate scores best and must win.
	criticProvider := llm.NewScriptedMockProvider(
		critiqueJSON(0.5),
		critiqueJSON(0.7),
		critiqueJSON(0.6),
		critiqueJSON(0.65),
		critiqueJSON(0.55),
	)
	refinerProvider := llm.NewScriptedMockProvider(
		planJSON("revision 1", 0.6),
		planJSON("revision 2", 0.6),
		planJSON("revision 3", 0.6),
		planJSON("revision 4", 0.6),
	)
	store := memory.NewInMemory()
	loop := NewLoop(
		NewCritic(newTestStage(t, "critic", criticProvider)),
		NewRefiner(newTestStage(t, "refiner", refinerProvider), nil),
		store,
	)

	task, report := testTask()
	candidate := &incident.Resolution{Summary: "initial plan", Confidence: 0.6}

	result, err := loop.Run(context.Background(), task, report, candidate)
	if err != nil {
		t.Fatalf("loop failed: %v", err)
	}

	if result.Outcome != incident.OutcomeExhausted {
		t.Errorf("outcome = %s, want exhausted", result.Outcome)
	}
	if result.State != StateExhausted {
		t.Errorf("state = %s, want exhausted", result.State)
	}
	if result.Iterations != DefaultMaxIterations {
		t.Errorf("iterations = %d, want %d", result.Iterations, DefaultMaxIterations)
	}
	if criticProvider.CallCount != 5 {
		t.Errorf("critic called %d times, want 5", criticProvider.CallCount)
	}
	if refinerProvider.CallCount != 4 {
		t.Errorf("refiner called %d times, want 4", refinerProvider.CallCount)
	}
	// Best composite was 0.7, scored against "revision 1".
	if result.Critique.Composite != 0.7 {
		t.Errorf("composite = %v, want 0.7", result.Critique.Composite)
	}
	if result.Resolution.Summary != "revision 1" {
		t.Errorf("best resolution = %q, want revision 1", result.Resolution.Summary)
	}

	stats, _ := store.Stats(context.Background())
	if stats.TotalResolutions != 1 {
		t.Errorf("expected exactly one experience stored, got %d", stats.TotalResolutions)
	}
}

func TestLoop_CriticFailureWithoutCritiqueFails(t *testing.T) {
	store := memory.NewInMemory()
	loop := NewLoop(
		NewCritic(newTestStage(t, "critic", &llm.FailingMockProvider{})),
		NewRefiner(newTestStage(t, "refiner", llm.NewScriptedMockProvider()), nil),
		store,
	)

	task, report := testTask()
	candidate := &incident.Resolution{Summary: "initial plan"}

	_, err := loop.Run(context.Background(), task, report, candidate)
	if err == nil {
		t.Fatal("expected error when critic fails on first pass")
	}

	stats, _ := store.Stats(context.Background())
	if stats.TotalResolutions != 0 {
		t.Errorf("expected no experience stored, got %d", stats.TotalResolutions)
	}
}

func TestLoop_RefinerFailureFallsBackToBest(t *testing.T) {
	criticProvider := llm.NewScriptedMockProvider(critiqueJSON(0.6))
	store := memory.NewInMemory()
	loop := NewLoop(
		NewCritic(newTestStage(t, "critic", criticProvider)),
		NewRefiner(newTestStage(t, "refiner", &llm.FailingMockProvider{}), nil),
		store,
	)

	task, report := testTask()
	candidate := &incident.Resolution{Summary: "initial plan", Confidence: 0.6}

	result, err := loop.Run(context.Background(), task, report, candidate)
	if err != nil {
		t.Fatalf("loop failed: %v", err)
	}
	if result.Outcome != incident.OutcomeExhausted {
		t.Errorf("outcome = %s, want exhausted", result.Outcome)
	}
	if result.Resolution.Summary != "initial plan" {
		t.Errorf("expected best candidate kept, got %q", result.Resolution.Summary)
	}
	if result.Critique.Composite != 0.6 {
		t.Errorf("composite = %v, want 0.6", result.Critique.Composite)
	}

	stats, _ := store.Stats(context.Background())
	if stats.TotalResolutions != 1 {
		t.Errorf("expected exactly one experience stored, got %d", stats.TotalResolutions)
	}
}

func TestLoop_TuneChangesGate(t *testing.T) {
	// 0.7 fails the default 0.85 gate but clears a tuned 0.65 one.
	criticProvider := llm.NewScriptedMockProvider(critiqueJSON(0.7))
	store := memory.NewInMemory()
	loop := NewLoop(
		NewCritic(newTestStage(t, "critic", criticProvider)),
		NewRefiner(newTestStage(t, "refiner", llm.NewScriptedMockProvider()), nil),
		store,
	)
	loop.Tune(0.65, 2)

	task, report := testTask()
	candidate := &incident.Resolution{Summary: "drain node", Confidence: 0.8}

	result, err := loop.Run(context.Background(), task, report, candidate)
	if err != nil {
		t.Fatalf("loop failed: %v", err)
	}
	if result.Outcome != incident.OutcomeQualityAchieved {
		t.Errorf("outcome = %s, want quality_achieved after tuning", result.Outcome)
	}
	if result.Iterations != 1 {
		t.Errorf("iterations = %d, want 1", result.Iterations)
	}

	// Non-positive values leave settings alone.
	loop.Tune(0, 0)
	loop.mu.RLock()
	threshold, maxIterations := loop.threshold, loop.maxIterations
	loop.mu.RUnlock()
	if threshold != 0.65 || maxIterations != 2 {
		t.Errorf("settings = %v/%d, want 0.65/2", threshold, maxIterations)
	}
}
