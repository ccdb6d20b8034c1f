// Package pipeline runs incidents through the staged resolution flow:
// triage, resolver, and the critic/refiner improvement loop, with an
// optional narrator closing stage.
package pipeline

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mendsys/mend/pkg/incident"
	"github.com/mendsys/mend/pkg/redact"
)

// Recorder receives loop outcome measurements. The telemetry package
// provides an OTel-backed implementation; the zero value of the pipeline
// records nothing.
type Recorder interface {
	RecordLoop(ctx context.Context, iterations int, composite float64, outcome incident.Outcome)
	RecordStageError(ctx context.Context, stage string)
}

type nopRecorder struct{}

func (nopRecorder) RecordLoop(context.Context, int, float64, incident.Outcome) {}
func (nopRecorder) RecordStageError(context.Context, string)                   {}

// Pipeline wires the stages together.
type Pipeline struct {
	triage   *Triage
	resolver *Resolver
	loop     *Loop
	narrator *Narrator
	scrubber *redact.Scrubber
	recorder Recorder
	logger   *slog.Logger
	tracer   trace.Tracer
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithNarrator adds the optional narrator closing stage.
func WithNarrator(n *Narrator) PipelineOption {
	return func(p *Pipeline) { p.narrator = n }
}

// WithScrubber redacts credentials and personal data from the incident
// description before any stage sees it.
func WithScrubber(s *redact.Scrubber) PipelineOption {
	return func(p *Pipeline) { p.scrubber = s }
}

// WithRecorder sets the loop outcome recorder.
func WithRecorder(r Recorder) PipelineOption {
	return func(p *Pipeline) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithPipelineLogger sets the pipeline logger.
func WithPipelineLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New assembles a pipeline from its stages.
func New(triage *Triage, resolver *Resolver, loop *Loop, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		triage:   triage,
		resolver: resolver,
		loop:     loop,
		recorder: nopRecorder{},
		logger:   slog.Default(),
		tracer:   otel.Tracer("mend/pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Result is the full outcome of resolving one incident.
type Result struct {
	RunID      string                 `json:"run_id"`
	Incident   *incident.Incident     `json:"incident"`
	Task       incident.Task          `json:"task"`
	Triage     *incident.TriageReport `json:"triage"`
	Resolution *incident.Resolution   `json:"resolution"`
	Critique   *incident.Critique     `json:"critique"`
	Outcome    incident.Outcome       `json:"outcome"`
	Iterations int                    `json:"iterations"`
	Narration  string                 `json:"narration,omitempty"`
}

// NeedsHumanReview reports whether the final resolution carries low
// confidence and should be checked before execution.
func (r *Result) NeedsHumanReview() bool {
	return r.Resolution.NeedsHumanReview()
}

// Tune adjusts the improvement loop's quality gate at runtime.
func (p *Pipeline) Tune(threshold float64, maxIterations int) {
	if p.loop != nil {
		p.loop.Tune(threshold, maxIterations)
	}
}

// Resolve runs an incident through every stage and returns the final
// resolution with its critique.
func (p *Pipeline) Resolve(ctx context.Context, inc *incident.Incident) (*Result, error) {
	ctx, runID := incident.EnsureRunID(ctx)
	ctx, span := p.tracer.Start(ctx, "Pipeline.Resolve", trace.WithAttributes(
		attribute.String("incident.id", inc.ID),
	))
	defer span.End()

	p.logger.Info("pipeline.start",
		slog.String("run_id", runID),
		slog.String("incident_id", inc.ID),
	)

	if p.scrubber != nil {
		scrubbed := p.scrubber.Apply(ctx, inc.Description)
		if scrubbed.Modified {
			p.logger.Warn("redacted sensitive data from incident description",
				slog.String("run_id", runID),
				slog.Int("redactions", len(scrubbed.Redactions)),
			)
			clean := *inc
			clean.Description = scrubbed.Content
			inc = &clean
		}
	}

	report, err := p.runTriage(ctx, inc)
	if err != nil {
		p.recorder.RecordStageError(ctx, "triage")
		return nil, err
	}

	statement := report.Summary
	if statement == "" {
		statement = inc.Description
	}
	task := incident.NewTask(inc, statement, report.Category)

	candidate, err := p.runResolver(ctx, task, report)
	if err != nil {
		p.recorder.RecordStageError(ctx, "resolver")
		return nil, err
	}

	loopCtx, loopSpan := p.tracer.Start(ctx, "Pipeline.Loop", trace.WithAttributes(
		attribute.String("task.fingerprint", task.Fingerprint),
	))
	loopResult, err := p.loop.Run(loopCtx, task, report, candidate)
	loopSpan.End()
	if err != nil {
		p.recorder.RecordStageError(ctx, "loop")
		return nil, err
	}
	p.recorder.RecordLoop(ctx, loopResult.Iterations, loopResult.Critique.Composite, loopResult.Outcome)

	result := &Result{
		RunID:      runID,
		Incident:   inc,
		Task:       task,
		Triage:     report,
		Resolution: loopResult.Resolution,
		Critique:   loopResult.Critique,
		Outcome:    loopResult.Outcome,
		Iterations: loopResult.Iterations,
	}

	if p.narrator != nil {
		narration, err := p.narrator.Run(ctx, report, result.Resolution, result.Critique)
		if err != nil {
			// Narration is a delivery nicety; the resolution stands.
			p.logger.Warn("narrator failed", "run_id", runID, "error", err)
			p.recorder.RecordStageError(ctx, "narrator")
		} else {
			result.Narration = narration
		}
	}

	p.logger.Info("pipeline.complete",
		slog.String("run_id", runID),
		slog.String("incident_id", inc.ID),
		slog.String("outcome", string(result.Outcome)),
		slog.Int("iterations", result.Iterations),
		slog.Float64("composite", result.Critique.Composite),
	)
	return result, nil
}

func (p *Pipeline) runTriage(ctx context.Context, inc *incident.Incident) (*incident.TriageReport, error) {
	ctx, span := p.tracer.Start(ctx, "Pipeline.Triage")
	defer span.End()
	return p.triage.Run(ctx, inc)
}

func (p *Pipeline) runResolver(ctx context.Context, task incident.Task, report *incident.TriageReport) (*incident.Resolution, error) {
	ctx, span := p.tracer.Start(ctx, "Pipeline.Resolver", trace.WithAttributes(
		attribute.String("incident.category", string(report.Category)),
	))
	defer span.End()
	return p.resolver.Run(ctx, task, report)
}
