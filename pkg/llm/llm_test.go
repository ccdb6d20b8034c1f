package llm

import (
	"context"
	"testing"
)

func TestMockProvider(t *testing.T) {
	mock := &MockProvider{Response: "triage report"}
	resp, err := mock.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "incident"}},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "triage report" {
		t.Errorf("Expected 'triage report', got '%s'", resp.Content)
	}
}

func TestScriptedMockProvider(t *testing.T) {
	mock := NewScriptedMockProvider("first", "second")

	resp, err := mock.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "first" {
		t.Errorf("expected 'first', got %q", resp.Content)
	}

	resp, err = mock.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "second" {
		t.Errorf("expected 'second', got %q", resp.Content)
	}

	if _, err := mock.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Error("expected error when responses exhausted")
	}
	if mock.CallCount != 3 {
		t.Errorf("expected 3 calls, got %d", mock.CallCount)
	}
}

func TestFailingMockProvider(t *testing.T) {
	mock := &FailingMockProvider{}
	if _, err := mock.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Fatal("expected error")
	}
}
