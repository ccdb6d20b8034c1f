package pipeline

import (
	"testing"

	"github.com/mendsys/mend/pkg/errors"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{
			name: "bare object",
			in:   `{"a":1}`,
			want: `{"a":1}`,
			ok:   true,
		},
		{
			name: "code fence",
			in:   "Here is the result:\n```json\n{\"a\":1}\n```\n",
			want: `{"a":1}`,
			ok:   true,
		},
		{
			name: "braces inside strings",
			in:   `answer: {"cmd":"awk '{print $1}'","n":2} trailing`,
			want: `{"cmd":"awk '{print $1}'","n":2}`,
			ok:   true,
		},
		{
			name: "escaped quote in string",
			in:   `{"msg":"say \"hi\" {now}"}`,
			want: `{"msg":"say \"hi\" {now}"}`,
			ok:   true,
		},
		{
			name: "nested objects",
			in:   `{"scores":{"a":1},"b":2}`,
			want: `{"scores":{"a":1},"b":2}`,
			ok:   true,
		},
		{
			name: "no object",
			in:   "plain prose answer",
			ok:   false,
		},
		{
			name: "unbalanced",
			in:   `{"a":1`,
			ok:   false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := extractJSON(tc.in)
			if ok != tc.ok {
				t.Fatalf("extractJSON ok = %v, want %v", ok, tc.ok)
			}
			if ok && got != tc.want {
				t.Errorf("extractJSON = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDecodeStageJSON_ParseError(t *testing.T) {
	var out planOutput

	err := decodeStageJSON("resolver", "no json here", &out)
	if err == nil {
		t.Fatal("expected error for missing JSON")
	}
	me := errors.AsMendError(err)
	if me == nil || me.Code != errors.CodeParseError {
		t.Errorf("expected CodeParseError, got %v", err)
	}

	err = decodeStageJSON("resolver", `{"confidence":"high"}`, &out)
	if err == nil {
		t.Fatal("expected error for type mismatch")
	}
	me = errors.AsMendError(err)
	if me == nil || me.Code != errors.CodeParseError {
		t.Errorf("expected CodeParseError, got %v", err)
	}
}

func TestCritiqueOutputToCritique(t *testing.T) {
	out := critiqueOutput{
		Scores: map[string]float64{
			"completeness": 0.9,
			"specificity":  0.8,
			"safety":       0.7,
			"efficiency":   0.85,
			"learning":     0.75,
		},
		Feedback:  map[string]string{"safety": "add rollback steps"},
		Rationale: "solid but risky",
	}

	crit := out.toCritique(2)
	if crit.Iteration != 2 {
		t.Errorf("iteration = %d, want 2", crit.Iteration)
	}
	if crit.Composite != 0.8 {
		t.Errorf("composite = %v, want 0.8", crit.Composite)
	}
	if crit.Feedback["safety"] != "add rollback steps" {
		t.Errorf("feedback not carried over: %v", crit.Feedback)
	}
	if crit.Rationale != "solid but risky" {
		t.Errorf("rationale = %q", crit.Rationale)
	}
}
