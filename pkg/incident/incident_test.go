package incident

import (
	"context"
	"testing"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in   string
		want Category
	}{
		{"cpu", CategoryCPU},
		{"  SSL ", CategorySSL},
		{"Database", CategoryDatabase},
		{"kernel", CategoryApplication},
		{"", CategoryApplication},
	}
	for _, tt := range tests {
		if got := ParseCategory(tt.in); got != tt.want {
			t.Errorf("ParseCategory(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFingerprintStable(t *testing.T) {
	a := Fingerprint(CategoryCPU, "High CPU on web-prod-03")
	b := Fingerprint(CategoryCPU, "high   cpu on WEB-PROD-03")
	if a != b {
		t.Errorf("fingerprint should normalize whitespace and case: %q != %q", a, b)
	}
	c := Fingerprint(CategoryMemory, "High CPU on web-prod-03")
	if a == c {
		t.Error("different categories should produce different fingerprints")
	}
}

func TestNewCritiqueComposite(t *testing.T) {
	crit := NewCritique(map[Dimension]float64{
		DimCompleteness: 0.9,
		DimSpecificity:  0.8,
		DimSafety:       1.0,
		DimEfficiency:   0.7,
		DimLearning:     0.6,
	})
	if crit.Composite != 0.8 {
		t.Errorf("expected composite 0.8, got %v", crit.Composite)
	}
	if crit.MeetsThreshold() {
		t.Error("0.8 should not meet the 0.85 threshold")
	}

	crit = NewCritique(map[Dimension]float64{
		DimCompleteness: 0.9,
		DimSpecificity:  0.9,
		DimSafety:       0.9,
		DimEfficiency:   0.8,
		DimLearning:     0.85,
	})
	if !crit.MeetsThreshold() {
		t.Errorf("expected composite %v to meet threshold", crit.Composite)
	}
}

func TestNewCritiqueClamps(t *testing.T) {
	crit := NewCritique(map[Dimension]float64{
		DimCompleteness: 1.5,
		DimSpecificity:  -0.3,
		DimSafety:       0.5,
		DimEfficiency:   0.5,
		DimLearning:     0.5,
	})
	if crit.Scores[DimCompleteness] != 1.0 {
		t.Errorf("expected completeness clamped to 1.0, got %v", crit.Scores[DimCompleteness])
	}
	if crit.Scores[DimSpecificity] != 0.0 {
		t.Errorf("expected specificity clamped to 0.0, got %v", crit.Scores[DimSpecificity])
	}
}

func TestResolutionNeedsHumanReview(t *testing.T) {
	r := Resolution{Confidence: 0.65}
	if !r.NeedsHumanReview() {
		t.Error("confidence below 0.7 should flag human review")
	}
	r.Confidence = 0.7
	if r.NeedsHumanReview() {
		t.Error("confidence at 0.7 should not flag human review")
	}
}

func TestEnsureRunID(t *testing.T) {
	ctx, id := EnsureRunID(context.Background())
	if id == "" {
		t.Fatal("expected non-empty run id")
	}
	ctx2, id2 := EnsureRunID(ctx)
	if id2 != id {
		t.Errorf("expected stable run id, got %q then %q", id, id2)
	}
	if ctx2 != ctx {
		t.Error("expected context to be reused when run id present")
	}
}

func TestNewExperience(t *testing.T) {
	inc := NewIncident("disk at 95% on db-replica-02")
	task := NewTask(inc, "disk space critical on db-replica-02", CategoryDisk)
	crit := NewCritique(map[Dimension]float64{
		DimCompleteness: 0.9, DimSpecificity: 0.9, DimSafety: 0.9,
		DimEfficiency: 0.9, DimLearning: 0.9,
	})
	exp := NewExperience(task, Resolution{Summary: "rotate logs"}, *crit, OutcomeQualityAchieved)

	if exp.ID == "" {
		t.Error("expected generated id")
	}
	if exp.Category != CategoryDisk {
		t.Errorf("expected disk category, got %v", exp.Category)
	}
	if exp.Score() != crit.Composite {
		t.Errorf("expected score %v, got %v", crit.Composite, exp.Score())
	}
	if exp.Fingerprint != task.Fingerprint {
		t.Error("expected task fingerprint carried onto experience")
	}
}
