// SPDX-License-Identifier: Apache-2.0
package errors

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("connection refused")
	me := New(CodeLLMError, "critic call failed", cause)

	if me.Code != CodeLLMError {
		t.Errorf("expected CodeLLMError, got %v", me.Code)
	}
	if me.Message != "critic call failed" {
		t.Errorf("expected message 'critic call failed', got %q", me.Message)
	}
	if me.Err != cause {
		t.Errorf("expected cause to be preserved")
	}
	if !errors.Is(me, cause) {
		t.Errorf("expected errors.Is to work with wrapped error")
	}
}

func TestWithContext(t *testing.T) {
	me := New(CodeToolFailure, "tool failed", nil)
	me.WithContext("tool", "search_knowledge_base").
		WithContext("args", map[string]interface{}{"query": "cpu"})

	if me.Context["tool"] != "search_knowledge_base" {
		t.Errorf("expected context tool to be 'search_knowledge_base'")
	}
	if me.Context["args"] == nil {
		t.Errorf("expected context args to be set")
	}
}

func TestWithRecoverable(t *testing.T) {
	me := New(CodeToolFailure, "network error", nil)
	if me.Recoverable {
		t.Errorf("expected recoverable to be false by default")
	}

	me.WithRecoverable(true)
	if !me.Recoverable {
		t.Errorf("expected recoverable to be true after WithRecoverable")
	}
}

func TestError(t *testing.T) {
	tests := []struct {
		name     string
		me       *MendError
		expected string
	}{
		{
			name:     "with cause",
			me:       New(CodeTimeout, "operation timed out", errors.New("deadline exceeded")),
			expected: "[TIMEOUT] operation timed out: deadline exceeded",
		},
		{
			name:     "without cause",
			me:       New(CodeNotFound, "experience not found", nil),
			expected: "[NOT_FOUND] experience not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.me.Error()
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestAsMendError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorCode
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: "",
		},
		{
			name:     "already MendError",
			err:      New(CodeParseError, "failed", nil),
			expected: CodeParseError,
		},
		{
			name:     "generic error",
			err:      errors.New("generic error"),
			expected: CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			me := AsMendError(tt.err)
			if tt.expected == "" {
				if me != nil {
					t.Errorf("expected nil for nil error")
				}
			} else {
				if me == nil {
					t.Errorf("expected non-nil MendError")
				} else if me.Code != tt.expected {
					t.Errorf("expected %v, got %v", tt.expected, me.Code)
				}
			}
		})
	}
}

func TestMarshalJSON(t *testing.T) {
	me := New(CodeLLMError, "refiner failed", errors.New("network error"))
	me.WithContext("iteration", 3).
		WithRecoverable(true)

	data, err := json.Marshal(me)
	if err != nil {
		t.Fatalf("unexpected error marshaling: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unexpected error unmarshaling: %v", err)
	}

	if result["code"] != "LLM_ERROR" {
		t.Errorf("expected code 'LLM_ERROR', got %v", result["code"])
	}
	if result["recoverable"] != true {
		t.Errorf("expected recoverable true")
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected int
	}{
		{CodeNotFound, 404},
		{CodeInvalidInput, 400},
		{CodeTimeout, 408},
		{CodeRateLimit, 429},
		{CodeInternal, 500},
		{CodeLLMError, 500},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			me := New(tt.code, "test", nil)
			if me.StatusCode != tt.expected {
				t.Errorf("expected status %d, got %d", tt.expected, me.StatusCode)
			}
		})
	}
}
