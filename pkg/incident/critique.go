package incident

import "math"

// Acceptance threshold for the improvement loop composite score.
const QualityThreshold = 0.85

// Dimension names a critic scoring axis.
type Dimension string

const (
	DimCompleteness Dimension = "completeness"
	DimSpecificity  Dimension = "specificity"
	DimSafety       Dimension = "safety"
	DimEfficiency   Dimension = "efficiency"
	DimLearning     Dimension = "learning"
)

// Dimensions lists the five critic axes in scoring order.
var Dimensions = []Dimension{
	DimCompleteness, DimSpecificity, DimSafety, DimEfficiency, DimLearning,
}

// Critique is the critic's evaluation of a candidate resolution.
// Produced fresh on each critic pass; never mutated after creation.
type Critique struct {
	Scores    map[Dimension]float64 `json:"scores"`
	Composite float64               `json:"composite"`
	Feedback  map[Dimension]string  `json:"feedback,omitempty"`
	Rationale string                `json:"rationale,omitempty"`
	Iteration int                   `json:"iteration"`
}

// NewCritique builds a critique, clamping dimension scores to [0,1] and
// computing the composite as the mean of the five dimensions.
func NewCritique(scores map[Dimension]float64) *Critique {
	c := &Critique{
		Scores:   make(map[Dimension]float64, len(Dimensions)),
		Feedback: make(map[Dimension]string),
	}
	var sum float64
	for _, dim := range Dimensions {
		s := clamp01(scores[dim])
		c.Scores[dim] = s
		sum += s
	}
	c.Composite = Round3(sum / float64(len(Dimensions)))
	return c
}

// MeetsThreshold reports whether the composite score is acceptable.
func (c *Critique) MeetsThreshold() bool {
	return c.Composite >= QualityThreshold
}

// Round3 rounds to three decimal places, the precision experience
// records are stored with.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
