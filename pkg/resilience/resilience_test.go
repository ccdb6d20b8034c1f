// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	merrors "github.com/mendsys/mend/pkg/errors"
)

func TestRetrySuccess(t *testing.T) {
	attempts := 0
	config := DefaultRetryConfig().WithInitialDelay(time.Millisecond)
	err := config.Do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected success, got error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryMaxAttemptsExceeded(t *testing.T) {
	attempts := 0
	config := DefaultRetryConfig().WithMaxAttempts(2).WithInitialDelay(time.Millisecond)
	err := config.Do(context.Background(), func() error {
		attempts++
		return errors.New("always fails")
	})

	if err == nil {
		t.Errorf("expected error after max attempts")
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestRetryNonRecoverable(t *testing.T) {
	attempts := 0
	config := DefaultRetryConfig().WithIsRecoverable(func(err error) bool {
		return false
	})
	err := config.Do(context.Background(), func() error {
		attempts++
		return errors.New("non-recoverable error")
	})

	if err == nil {
		t.Errorf("expected error")
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestRetryHonorsMendErrorRecoverable(t *testing.T) {
	attempts := 0
	config := DefaultRetryConfig().WithInitialDelay(time.Millisecond)
	err := config.Do(context.Background(), func() error {
		attempts++
		return merrors.New(merrors.CodeInvalidInput, "bad incident payload", nil)
	})

	if err == nil {
		t.Errorf("expected error")
	}
	if attempts != 1 {
		t.Errorf("non-recoverable MendError should not be retried, got %d attempts", attempts)
	}
}

func TestRetryContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	config := DefaultRetryConfig().WithInitialDelay(100 * time.Millisecond)

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	attempts := 0
	err := config.Do(ctx, func() error {
		attempts++
		return errors.New("transient error")
	})

	if err == nil {
		t.Errorf("expected context error")
	}
	if attempts < 1 {
		t.Errorf("expected at least 1 attempt, got %d", attempts)
	}
}

func TestRetryWithResult(t *testing.T) {
	attempts := 0
	config := DefaultRetryConfig().WithInitialDelay(time.Millisecond)
	result, err := config.DoWithResult(context.Background(), func() (interface{}, error) {
		attempts++
		if attempts < 2 {
			return nil, errors.New("transient")
		}
		return "success", nil
	})

	if err != nil {
		t.Fatalf("expected success, got: %v", err)
	}
	if result != "success" {
		t.Errorf("expected result 'success', got %v", result)
	}
}

func TestTimeoutExceeded(t *testing.T) {
	err := WithTimeout(context.Background(), TimeoutConfig{Duration: 10 * time.Millisecond}, func() error {
		time.Sleep(200 * time.Millisecond)
		return nil
	})

	if err == nil {
		t.Fatal("expected timeout error")
	}
	me := merrors.AsMendError(err)
	if me.Code != merrors.CodeTimeout {
		t.Errorf("expected CodeTimeout, got %v", me.Code)
	}
}

func TestTimeoutZeroDisables(t *testing.T) {
	called := false
	err := WithTimeout(context.Background(), TimeoutConfig{}, func() error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("expected fn to be called")
	}
}

func TestCircuitBreakerOpens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		Name:             "llm",
	})

	fail := func() error { return errors.New("provider down") }

	_ = cb.Call(context.Background(), fail)
	_ = cb.Call(context.Background(), fail)

	if cb.State() != StateOpen {
		t.Fatalf("expected open state, got %v", cb.State())
	}

	err := cb.Call(context.Background(), func() error { return nil })
	if err == nil {
		t.Fatal("expected rejection while open")
	}
}

func TestCircuitBreakerRecovers(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          time.Millisecond,
		Name:             "llm",
	})

	_ = cb.Call(context.Background(), func() error { return errors.New("down") })
	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %v", cb.State())
	}

	time.Sleep(5 * time.Millisecond)

	if err := cb.Call(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("expected half-open call to pass: %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after recovery, got %v", cb.State())
	}
}

func TestWithFallbackStatic(t *testing.T) {
	value, err := WithFallback(context.Background(),
		func() (interface{}, error) { return nil, errors.New("memory down") },
		&StaticFallback{Value: []string{}},
	)
	if err != nil {
		t.Fatalf("expected fallback value, got error: %v", err)
	}
	if _, ok := value.([]string); !ok {
		t.Fatalf("expected []string fallback, got %T", value)
	}
}
