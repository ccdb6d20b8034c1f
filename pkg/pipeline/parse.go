package pipeline

import (
	"encoding/json"
	"strings"

	"github.com/mendsys/mend/pkg/errors"
	"github.com/mendsys/mend/pkg/incident"
)

// triageOutput is the JSON shape the triage stage is instructed to emit.
type triageOutput struct {
	Priority    string   `json:"priority"`
	Category    string   `json:"category"`
	BlastRadius string   `json:"blast_radius"`
	Symptoms    []string `json:"symptoms"`
	Summary     string   `json:"summary"`
}

// planOutput is the JSON shape the resolver and refiner stages emit.
type planOutput struct {
	Steps      []string `json:"steps"`
	Rollback   []string `json:"rollback"`
	Summary    string   `json:"summary"`
	Confidence float64  `json:"confidence"`
}

// critiqueOutput is the JSON shape the critic stage emits.
type critiqueOutput struct {
	Scores    map[string]float64 `json:"scores"`
	Feedback  map[string]string  `json:"feedback"`
	Rationale string             `json:"rationale"`
}

func (o critiqueOutput) toCritique(iteration int) *incident.Critique {
	scores := make(map[incident.Dimension]float64, len(incident.Dimensions))
	for _, dim := range incident.Dimensions {
		scores[dim] = o.Scores[string(dim)]
	}
	c := incident.NewCritique(scores)
	for dim, text := range o.Feedback {
		c.Feedback[incident.Dimension(dim)] = text
	}
	c.Rationale = o.Rationale
	c.Iteration = iteration
	return c
}

// decodeStageJSON extracts the first JSON object from model output and
// unmarshals it. Models wrap JSON in code fences or prose often enough
// that a plain Unmarshal is not good enough.
func decodeStageJSON(stage, raw string, v interface{}) error {
	payload, ok := extractJSON(raw)
	if !ok {
		return errors.New(errors.CodeParseError, "no JSON object in model output", nil).
			WithContext("stage", stage)
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return errors.New(errors.CodeParseError, "malformed JSON in model output", err).
			WithContext("stage", stage)
	}
	return nil
}

// extractJSON returns the first balanced JSON object in s. String
// literals and escapes are respected so braces inside values don't
// truncate the scan.
func extractJSON(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
