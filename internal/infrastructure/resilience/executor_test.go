package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/grading-assistant/internal/core/domain"
)

func TestExecuteRetriesTemporaryFailure(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})

	attempts := 0
	errTemp := errors.New("temporary")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, func(err error) ErrorClassification {
		return ErrorClassification{
			Retryable:     errors.Is(err, errTemp),
			RecordFailure: true,
		}
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})

	attempts := 0
	errPermanent := errors.New("permanent")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return errPermanent
	}, func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:        1,
		RetryInitialBackoff:     1 * time.Millisecond,
		RetryMaxBackoff:         1 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
	})

	errTemp := errors.New("temporary")
	classifier := func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: true,
		}
	}

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "op", func(context.Context) error {
			return errTemp
		}, classifier)
		if !errors.Is(err, errTemp) {
			t.Fatalf("expected temporary error on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, classifier)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("open circuit must surface as a temporary failure, got %v", err)
	}
}

type recordingHooks struct {
	retries     int
	transitions []string
}

func (h *recordingHooks) RetryAttempt(string) { h.retries++ }

func (h *recordingHooks) BreakerStateChanged(_ string, to string) {
	h.transitions = append(h.transitions, to)
}

func TestExecuteAttemptTimeoutIsRetried(t *testing.T) {
	hooks := &recordingHooks{}
	exec := NewExecutor(Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     2,
		AttemptTimeout:      5 * time.Millisecond,
		BreakerEnabled:      false,
	}).WithHooks(hooks)

	attempts := 0
	value, err := Do(context.Background(), exec, "slow", func(ctx context.Context) (string, error) {
		attempts++
		if attempts == 1 {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "ok", nil
	}, nil)
	if err != nil || value != "ok" {
		t.Fatalf("expected ok after a timed out attempt, got %q, %v", value, err)
	}
	if attempts != 2 || hooks.retries != 1 {
		t.Fatalf("expected 2 attempts and 1 retry hook, got %d/%d", attempts, hooks.retries)
	}
}

func TestDomainClassifier(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorClassification
	}{
		{name: "temporary", err: domain.WrapError(domain.ErrTemporary, "op", errors.New("503")), want: ErrorClassification{Retryable: true, RecordFailure: true}},
		{name: "invalid", err: domain.WrapError(domain.ErrInvalidInput, "op", errors.New("400")), want: ErrorClassification{}},
		{name: "canceled", err: context.Canceled, want: ErrorClassification{}},
		{name: "other", err: errors.New("boom"), want: ErrorClassification{RecordFailure: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DomainClassifier(tc.err); got != tc.want {
				t.Fatalf("DomainClassifier(%v) = %+v, want %+v", tc.err, got, tc.want)
			}
		})
	}
}

func TestBreakerHooksSeeStateChanges(t *testing.T) {
	hooks := &recordingHooks{}
	exec := NewExecutor(Config{
		RetryMaxAttempts:        1,
		BreakerEnabled:          true,
		BreakerMinRequests:      1,
		BreakerFailureRatio:     1,
		BreakerOpenTimeout:      time.Minute,
		BreakerHalfOpenMaxCalls: 1,
	}).WithHooks(hooks)

	_ = exec.Execute(context.Background(), "op", func(context.Context) error {
		return errors.New("boom")
	}, nil)
	if len(hooks.transitions) != 1 || hooks.transitions[0] != gobreaker.StateOpen.String() {
		t.Fatalf("expected open transition, got %v", hooks.transitions)
	}
}
