// Package incident defines the core domain types for the incident
// resolution pipeline: incidents, triage reports, candidate resolutions,
// critiques, and experience records.
package incident

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Priority classifies incident urgency.
type Priority string

const (
	PriorityCritical Priority = "P1"
	PriorityHigh     Priority = "P2"
	PriorityMedium   Priority = "P3"
	PriorityLow      Priority = "P4"
)

// Category classifies the failing subsystem.
type Category string

const (
	CategoryCPU         Category = "cpu"
	CategoryMemory      Category = "memory"
	CategoryDisk        Category = "disk"
	CategoryNetwork     Category = "network"
	CategorySSL         Category = "ssl"
	CategoryApplication Category = "application"
	CategoryDatabase    Category = "database"
	CategorySecurity    Category = "security"
)

// Categories lists every valid incident category.
var Categories = []Category{
	CategoryCPU, CategoryMemory, CategoryDisk, CategoryNetwork,
	CategorySSL, CategoryApplication, CategoryDatabase, CategorySecurity,
}

// ParseCategory normalizes a free-form category string. Unknown values
// map to CategoryApplication.
func ParseCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return known
		}
	}
	return CategoryApplication
}

// ParsePriority normalizes a free-form priority string. Unknown values
// map to PriorityMedium.
func ParsePriority(s string) Priority {
	p := Priority(strings.ToUpper(strings.TrimSpace(s)))
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return p
	}
	return PriorityMedium
}

// BlastRadius estimates the scope of impact.
type BlastRadius string

const (
	BlastSingleServer BlastRadius = "single server"
	BlastService      BlastRadius = "service"
	BlastRegion       BlastRadius = "region"
	BlastGlobal       BlastRadius = "global"
)

// ParseBlastRadius normalizes a free-form blast radius string. Unknown
// values map to BlastService.
func ParseBlastRadius(s string) BlastRadius {
	b := BlastRadius(strings.ToLower(strings.TrimSpace(s)))
	switch b {
	case BlastSingleServer, BlastService, BlastRegion, BlastGlobal:
		return b
	}
	return BlastService
}

// Incident is an external incident report. Immutable input to triage.
type Incident struct {
	ID          string            `json:"id"`
	Description string            `json:"description"`
	System      string            `json:"system,omitempty"`
	Severity    string            `json:"severity,omitempty"`
	ReportedAt  time.Time         `json:"reported_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// NewIncident creates an incident with a generated ID.
func NewIncident(description string) *Incident {
	return &Incident{
		ID:          uuid.NewString(),
		Description: description,
		ReportedAt:  time.Now().UTC(),
	}
}

// Task is the normalized problem statement derived from an incident.
// Created once per incident by the triage stage.
type Task struct {
	IncidentID  string   `json:"incident_id"`
	Statement   string   `json:"statement"`
	Category    Category `json:"category"`
	Fingerprint string   `json:"fingerprint"`
}

// NewTask derives a task from an incident and its triage classification.
func NewTask(inc *Incident, statement string, category Category) Task {
	return Task{
		IncidentID:  inc.ID,
		Statement:   statement,
		Category:    category,
		Fingerprint: Fingerprint(category, statement),
	}
}

// Fingerprint produces a stable identifier for a (category, statement)
// pair, used to correlate experience records across runs.
func Fingerprint(category Category, statement string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(statement)), " ")
	sum := sha256.Sum256([]byte(string(category) + "|" + norm))
	return string(category) + "-" + hex.EncodeToString(sum[:8])
}

// TriageReport is the output of the triage stage.
type TriageReport struct {
	Priority    Priority    `json:"priority"`
	Category    Category    `json:"category"`
	BlastRadius BlastRadius `json:"blast_radius"`
	Symptoms    []string    `json:"symptoms"`
	Summary     string      `json:"summary"`
	// PastPatterns summarizes experience records consulted during triage.
	PastPatterns []string `json:"past_patterns,omitempty"`
}

// Resolution is a candidate action plan. Replaced wholesale by each
// refiner pass; Iteration records which loop pass produced it.
type Resolution struct {
	Steps      []string `json:"steps"`
	Rollback   []string `json:"rollback,omitempty"`
	Summary    string   `json:"summary"`
	Confidence float64  `json:"confidence"`
	Iteration  int      `json:"iteration"`
}

// NeedsHumanReview reports whether the resolver flagged low confidence.
func (r *Resolution) NeedsHumanReview() bool {
	return r.Confidence < 0.7
}
