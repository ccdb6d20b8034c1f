package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/mendsys/mend/pkg/incident"
	"github.com/mendsys/mend/pkg/memory"
	"github.com/mendsys/mend/pkg/resilience"
)

// Triage classifies an incident by priority, category, and blast radius.
type Triage struct {
	collab *Collaborator
	memory memory.Store
}

// NewTriage builds the triage stage.
func NewTriage(collab *Collaborator, store memory.Store) *Triage {
	return &Triage{collab: collab, memory: store}
}

// Run produces a triage report for the incident.
func (t *Triage) Run(ctx context.Context, inc *incident.Incident) (*incident.TriageReport, error) {
	patterns := consultMemory(ctx, t.memory, memory.Query{Text: inc.Description})

	var b strings.Builder
	b.WriteString("Incident report:\n")
	b.WriteString(inc.Description)
	if inc.System != "" {
		fmt.Fprintf(&b, "\nAffected system: %s", inc.System)
	}
	if inc.Severity != "" {
		fmt.Fprintf(&b, "\nReported severity: %s", inc.Severity)
	}
	writePatterns(&b, patterns)

	raw, err := t.collab.Run(ctx, b.String())
	if err != nil {
		return nil, err
	}

	var out triageOutput
	if err := decodeStageJSON(t.collab.Name(), raw, &out); err != nil {
		return nil, err
	}

	return &incident.TriageReport{
		Priority:     incident.ParsePriority(out.Priority),
		Category:     incident.ParseCategory(out.Category),
		BlastRadius:  incident.ParseBlastRadius(out.BlastRadius),
		Symptoms:     out.Symptoms,
		Summary:      out.Summary,
		PastPatterns: patterns,
	}, nil
}

// Resolver proposes a candidate resolution for a triaged incident.
type Resolver struct {
	collab *Collaborator
	memory memory.Store
}

// NewResolver builds the resolver stage.
func NewResolver(collab *Collaborator, store memory.Store) *Resolver {
	return &Resolver{collab: collab, memory: store}
}

// Run proposes the first candidate resolution.
func (r *Resolver) Run(ctx context.Context, task incident.Task, report *incident.TriageReport) (*incident.Resolution, error) {
	patterns := consultMemory(ctx, r.memory, memory.Query{
		Category: string(report.Category),
		Text:     task.Statement,
	})

	var b strings.Builder
	b.WriteString("Triage report:\n")
	writeTriage(&b, report)
	fmt.Fprintf(&b, "\nProblem statement: %s\n", task.Statement)
	writePatterns(&b, patterns)

	raw, err := r.collab.Run(ctx, b.String())
	if err != nil {
		return nil, err
	}

	var out planOutput
	if err := decodeStageJSON(r.collab.Name(), raw, &out); err != nil {
		return nil, err
	}
	return planToResolution(out, 0), nil
}

// Critic scores a candidate resolution on the five quality dimensions.
type Critic struct {
	collab *Collaborator
}

// NewCritic builds the critic stage.
func NewCritic(collab *Collaborator) *Critic {
	return &Critic{collab: collab}
}

// Run evaluates a candidate against the triage report.
func (c *Critic) Run(ctx context.Context, report *incident.TriageReport, res *incident.Resolution, iteration int) (*incident.Critique, error) {
	var b strings.Builder
	b.WriteString("Triage report:\n")
	writeTriage(&b, report)
	b.WriteString("\nResolution proposal:\n")
	writeResolution(&b, res)

	raw, err := c.collab.Run(ctx, b.String())
	if err != nil {
		return nil, err
	}

	var out critiqueOutput
	if err := decodeStageJSON(c.collab.Name(), raw, &out); err != nil {
		return nil, err
	}
	return out.toCritique(iteration), nil
}

// Refiner revises a resolution using critic feedback.
type Refiner struct {
	collab *Collaborator
	memory memory.Store
}

// NewRefiner builds the refiner stage.
func NewRefiner(collab *Collaborator, store memory.Store) *Refiner {
	return &Refiner{collab: collab, memory: store}
}

// Run produces a revised resolution addressing the critique.
func (r *Refiner) Run(ctx context.Context, task incident.Task, res *incident.Resolution, crit *incident.Critique, iteration int) (*incident.Resolution, error) {
	patterns := consultMemory(ctx, r.memory, memory.Query{
		Category: string(task.Category),
		Text:     task.Statement,
	})

	var b strings.Builder
	b.WriteString("Current resolution:\n")
	writeResolution(&b, res)
	b.WriteString("\nCritic evaluation:\n")
	fmt.Fprintf(&b, "composite score: %.3f\n", crit.Composite)
	for _, dim := range incident.Dimensions {
		fmt.Fprintf(&b, "- %s: %.2f", dim, crit.Scores[dim])
		if fb := crit.Feedback[dim]; fb != "" {
			fmt.Fprintf(&b, " (%s)", fb)
		}
		b.WriteByte('\n')
	}
	if crit.Rationale != "" {
		fmt.Fprintf(&b, "rationale: %s\n", crit.Rationale)
	}
	writePatterns(&b, patterns)

	raw, err := r.collab.Run(ctx, b.String())
	if err != nil {
		return nil, err
	}

	var out planOutput
	if err := decodeStageJSON(r.collab.Name(), raw, &out); err != nil {
		return nil, err
	}
	return planToResolution(out, iteration), nil
}

// Narrator summarizes the finished resolution for delivery, optionally
// speaking it through a text-to-speech tool.
type Narrator struct {
	collab *Collaborator
}

// NewNarrator builds the narrator stage.
func NewNarrator(collab *Collaborator) *Narrator {
	return &Narrator{collab: collab}
}

// Run composes the closing narration.
func (n *Narrator) Run(ctx context.Context, report *incident.TriageReport, res *incident.Resolution, crit *incident.Critique) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Incident: %s (%s, %s)\n", report.Summary, report.Category, report.Priority)
	fmt.Fprintf(&b, "Resolution: %s\n", res.Summary)
	fmt.Fprintf(&b, "Quality score: %.3f\n", crit.Composite)
	return n.collab.Run(ctx, b.String())
}

func planToResolution(out planOutput, iteration int) *incident.Resolution {
	return &incident.Resolution{
		Steps:      out.Steps,
		Rollback:   out.Rollback,
		Summary:    out.Summary,
		Confidence: out.Confidence,
		Iteration:  iteration,
	}
}

// consultMemory retrieves past patterns, degrading to none when the
// memory backend is down. Stages work without history rather than fail.
func consultMemory(ctx context.Context, store memory.Store, q memory.Query) []string {
	if store == nil {
		return nil
	}
	result, _ := resilience.WithFallback(ctx, func() (interface{}, error) {
		return store.Retrieve(ctx, q)
	}, &resilience.StaticFallback{Value: []*incident.Experience(nil)})

	experiences, _ := result.([]*incident.Experience)
	patterns := make([]string, 0, len(experiences))
	for _, exp := range experiences {
		patterns = append(patterns, fmt.Sprintf("[%s, score %.3f] %s: %s",
			exp.Category, exp.Score(), exp.Task, exp.Resolution.Summary))
	}
	return patterns
}

func writePatterns(b *strings.Builder, patterns []string) {
	if len(patterns) == 0 {
		return
	}
	b.WriteString("\nPast resolution patterns:\n")
	for _, p := range patterns {
		fmt.Fprintf(b, "- %s\n", p)
	}
}

func writeTriage(b *strings.Builder, report *incident.TriageReport) {
	fmt.Fprintf(b, "priority: %s\ncategory: %s\nblast radius: %s\nsummary: %s\n",
		report.Priority, report.Category, report.BlastRadius, report.Summary)
	if len(report.Symptoms) > 0 {
		b.WriteString("symptoms:\n")
		for _, s := range report.Symptoms {
			fmt.Fprintf(b, "- %s\n", s)
		}
	}
}

func writeResolution(b *strings.Builder, res *incident.Resolution) {
	fmt.Fprintf(b, "summary: %s\nconfidence: %.2f\n", res.Summary, res.Confidence)
	b.WriteString("steps:\n")
	for i, s := range res.Steps {
		fmt.Fprintf(b, "%d. %s\n", i+1, s)
	}
	if len(res.Rollback) > 0 {
		b.WriteString("rollback:\n")
		for i, s := range res.Rollback {
			fmt.Fprintf(b, "%d. %s\n", i+1, s)
		}
	}
}
