package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestRunFallbackFirstSuccessWins(t *testing.T) {
	var attempts []string
	result, winner, err := RunFallback(context.Background(), []string{"a", "b", "c"},
		func(s string) bool { return s != "" },
		func(ctx context.Context, id string) (string, error) {
			attempts = append(attempts, id)
			return "reply from " + id, nil
		})
	if err != nil {
		t.Fatalf("RunFallback error: %v", err)
	}
	if winner != "a" {
		t.Fatalf("expected winner a, got %s", winner)
	}
	if result != "reply from a" {
		t.Fatalf("unexpected result %q", result)
	}
	if len(attempts) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(attempts))
	}
}

func TestRunFallbackWalksQueueInOrder(t *testing.T) {
	var attempts []string
	result, winner, err := RunFallback(context.Background(), []string{"a", "b", "c"},
		func(s string) bool { return s != "" },
		func(ctx context.Context, id string) (string, error) {
			attempts = append(attempts, id)
			if id != "c" {
				return "", &TransportError{Provider: id, Err: errors.New("down")}
			}
			return "ok", nil
		})
	if err != nil {
		t.Fatalf("RunFallback error: %v", err)
	}
	if winner != "c" {
		t.Fatalf("expected winner c, got %s", winner)
	}
	if result != "ok" {
		t.Fatalf("unexpected result %q", result)
	}
	want := []string{"a", "b", "c"}
	if fmt.Sprint(attempts) != fmt.Sprint(want) {
		t.Fatalf("attempts %v, want %v", attempts, want)
	}
}

func TestRunFallbackEmptyResultMovesOn(t *testing.T) {
	_, winner, err := RunFallback(context.Background(), []string{"a", "b"},
		func(s string) bool { return s != "" },
		func(ctx context.Context, id string) (string, error) {
			if id == "a" {
				return "", nil
			}
			return "filled", nil
		})
	if err != nil {
		t.Fatalf("RunFallback error: %v", err)
	}
	if winner != "b" {
		t.Fatalf("expected empty reply to be skipped, winner %s", winner)
	}
}

func TestRunFallbackExhausted(t *testing.T) {
	attempts := 0
	_, _, err := RunFallback(context.Background(), []string{"a", "b", "c"},
		func(s string) bool { return s != "" },
		func(ctx context.Context, id string) (string, error) {
			attempts++
			return "", errors.New("boom")
		})
	if err == nil {
		t.Fatalf("expected error when all providers fail")
	}
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %T", err)
	}
	if exhausted.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", exhausted.Attempts)
	}
	if attempts != 3 {
		t.Fatalf("each provider should be tried exactly once, got %d", attempts)
	}
}

func TestRunFallbackCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := RunFallback(ctx, []string{"a"},
		func(s string) bool { return true },
		func(ctx context.Context, id string) (string, error) {
			t.Fatalf("attempt should not run with canceled context")
			return "", nil
		})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
