package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	out, err := WithRetry(context.Background(), RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond},
		func(_ context.Context) (string, error) {
			calls++
			return "ok", nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "ok" {
		t.Errorf("expected ok, got %q", out)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestWithRetry_RecoversAfterTransientFailure(t *testing.T) {
	calls := 0
	out, err := WithRetry(context.Background(), RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond},
		func(_ context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, newProviderError("openai", 503, errors.New("overloaded"))
			}
			return 42, nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != 42 {
		t.Errorf("expected 42, got %d", out)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestWithRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	wantErr := newProviderError("openai", 500, errors.New("boom"))
	_, err := WithRetry(context.Background(), RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond},
		func(_ context.Context) (string, error) {
			calls++
			return "", wantErr
		})
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if !errors.Is(err, wantErr) {
		t.Errorf("expected last error to surface, got %v", err)
	}
}

func TestWithRetry_AuthErrorAbortsImmediately(t *testing.T) {
	calls := 0
	_, err := WithRetry(context.Background(), RetryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond},
		func(_ context.Context) (string, error) {
			calls++
			return "", newProviderError("openai", 401, errors.New("bad key"))
		})
	if calls != 1 {
		t.Errorf("auth errors must not be retried, got %d calls", calls)
	}
	if !IsAuthError(err) {
		t.Errorf("expected auth error, got %v", err)
	}
}

func TestWithRetry_ContextCancelsBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := WithRetry(ctx, RetryConfig{MaxAttempts: 3, BaseDelay: time.Hour},
			func(_ context.Context) (string, error) {
				calls++
				return "", newProviderError("openai", 500, errors.New("boom"))
			})
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WithRetry did not return after cancellation")
	}
	if calls != 1 {
		t.Errorf("expected 1 call before cancellation, got %d", calls)
	}
}
