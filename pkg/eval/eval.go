// SPDX-License-Identifier: Apache-2.0

// Package eval measures whether accumulated experience actually improves
// resolution quality. It runs a fixed incident dataset through the
// pipeline and scores each plan against an expected resolution, so a run
// before and a run after experience accumulation can be compared.
package eval

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mendsys/mend/pkg/incident"
	"github.com/mendsys/mend/pkg/pipeline"
)

// Scenario is one incident with its expected resolution.
type Scenario struct {
	Name     string `json:"name"`
	Input    string `json:"input"`
	Expected string `json:"expected"`
}

// Dataset returns the built-in incident scenarios.
func Dataset() []Scenario {
	return []Scenario{
		{
			Name: "cpu",
			Input: "High CPU utilization at 98% on web-prod-03. " +
				"Deployment v2.4.1 rolled out 2 hours ago. " +
				"Response times degraded from 200ms to 3s.",
			Expected: "Check recent deployment v2.4.1 for resource-intensive changes. " +
				"Run top/htop to identify the offending process. " +
				"Check auto-scaling status. If deployment-related, rollback with " +
				"kubectl rollout undo. Restart service with graceful drain. " +
				"Monitor for 15 minutes post-fix.",
		},
		{
			Name: "memory",
			Input: "Memory leak detected in api-gateway-01. " +
				"Heap at 94% and growing steadily. " +
				"Connection pool exhaustion warnings in logs.",
			Expected: "Capture heap dump with jmap. Compare with baseline. " +
				"Check connection pool configuration and recent code changes. " +
				"Apply memory limit. Schedule restart during low-traffic window. " +
				"Investigate connection pool leaks.",
		},
		{
			Name: "disk",
			Input: "Disk space critical at 95% on db-replica-02. " +
				"Log files consuming 40GB. Database temp files growing.",
			Expected: "Identify largest directories with du -sh. " +
				"Rotate and compress old logs. Clear application caches. " +
				"Check for orphaned temp files. " +
				"Update logrotate to keep max 7 days. " +
				"Set monitoring alert at 80% threshold.",
		},
		{
			Name: "network",
			Input: "Network latency spike to 500ms between app-tier and db-tier. " +
				"Packet loss at 2%. Started after network maintenance window.",
			Expected: "Run traceroute and mtr between tiers. " +
				"Check switch/router interface errors. " +
				"Compare routing tables pre/post maintenance. " +
				"Check for MTU mismatches. Engage network team if " +
				"infrastructure change detected.",
		},
		{
			Name: "ssl",
			Input: "SSL certificate expiring in 48 hours for *.prod.company.com. " +
				"Auto-renewal via Let's Encrypt failed. " +
				"ACME challenge returning 404.",
			Expected: "Check certbot logs for ACME failure reason. " +
				"Verify DNS records and web server .well-known path. " +
				"Manually trigger renewal with certbot --dry-run. " +
				"If blocked, use DNS challenge as fallback. " +
				"Update monitoring to alert at 30 days.",
		},
	}
}

// Resolver runs one incident through the full pipeline.
type Resolver interface {
	Resolve(ctx context.Context, inc *incident.Incident) (*pipeline.Result, error)
}

// ScenarioScore is the outcome of one scenario run.
type ScenarioScore struct {
	Name       string           `json:"name"`
	Score      float64          `json:"score"`
	Composite  float64          `json:"composite"`
	Outcome    incident.Outcome `json:"outcome,omitempty"`
	Iterations int              `json:"iterations"`
	Error      string           `json:"error,omitempty"`
}

// Report aggregates one full dataset run.
type Report struct {
	Scores  []ScenarioScore `json:"scores"`
	Average float64         `json:"average"`
}

// Delta compares a baseline run against a later run.
type Delta struct {
	Baseline float64 `json:"baseline"`
	Improved float64 `json:"improved"`
	Change   float64 `json:"change"`
}

// Runner drives scenarios through a resolver.
type Runner struct {
	resolver Resolver
	dataset  []Scenario
	logger   *slog.Logger
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithDataset replaces the built-in scenarios.
func WithDataset(scenarios []Scenario) RunnerOption {
	return func(r *Runner) {
		if len(scenarios) > 0 {
			r.dataset = scenarios
		}
	}
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner creates an eval runner over the built-in dataset.
func NewRunner(resolver Resolver, opts ...RunnerOption) *Runner {
	r := &Runner{
		resolver: resolver,
		dataset:  Dataset(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run resolves every scenario and scores the produced plan against the
// expected resolution. A scenario failure is recorded, not fatal, so one
// bad run does not void the whole report.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	report := &Report{Scores: make([]ScenarioScore, 0, len(r.dataset))}
	sum := 0.0
	scored := 0

	for _, sc := range r.dataset {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		result, err := r.resolver.Resolve(ctx, incident.NewIncident(sc.Input))
		if err != nil {
			r.logger.Warn("eval scenario failed", "scenario", sc.Name, "error", err)
			report.Scores = append(report.Scores, ScenarioScore{Name: sc.Name, Error: err.Error()})
			continue
		}

		score := OverlapScore(sc.Expected, resolutionText(result.Resolution))
		entry := ScenarioScore{
			Name:       sc.Name,
			Score:      score,
			Outcome:    result.Outcome,
			Iterations: result.Iterations,
		}
		if result.Critique != nil {
			entry.Composite = result.Critique.Composite
		}
		report.Scores = append(report.Scores, entry)

		r.logger.Info("eval scenario scored",
			"scenario", sc.Name,
			"score", score,
			"iterations", result.Iterations)

		sum += score
		scored++
	}

	if scored > 0 {
		report.Average = sum / float64(scored)
	}
	return report, nil
}

// Compare returns the improvement between two runs of the same dataset.
func Compare(baseline, improved *Report) Delta {
	return Delta{
		Baseline: baseline.Average,
		Improved: improved.Average,
		Change:   improved.Average - baseline.Average,
	}
}

// OverlapScore measures what fraction of the expected resolution's
// keywords appear in the actual plan. It is a rough factuality proxy:
// 1.0 means every expected keyword was covered.
func OverlapScore(expected, actual string) float64 {
	want := keywords(expected)
	if len(want) == 0 {
		return 0
	}
	have := make(map[string]struct{})
	for _, kw := range keywords(actual) {
		have[kw] = struct{}{}
	}
	hit := 0
	for _, kw := range want {
		if _, ok := have[kw]; ok {
			hit++
		}
	}
	return float64(hit) / float64(len(want))
}

func resolutionText(res *incident.Resolution) string {
	if res == nil {
		return ""
	}
	var b strings.Builder
	for _, step := range res.Steps {
		b.WriteString(step)
		b.WriteString(" ")
	}
	for _, step := range res.Rollback {
		b.WriteString(step)
		b.WriteString(" ")
	}
	b.WriteString(res.Summary)
	return b.String()
}

// stopwords are common words that carry no resolution signal.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "with": {}, "for": {}, "from": {},
	"check": {}, "that": {}, "this": {}, "into": {}, "your": {},
	"then": {}, "them": {}, "when": {}, "each": {}, "have": {},
}

// keywords tokenizes text into lowercase terms of 4+ characters,
// deduplicated, with stopwords removed.
func keywords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z':
			return false
		case r >= '0' && r <= '9':
			return false
		case r == '-' || r == '.' || r == '/':
			return false
		default:
			return true
		}
	})

	seen := make(map[string]struct{})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "-./")
		if len(f) < 4 {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
