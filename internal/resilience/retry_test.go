package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sells-group/vis2attr/internal/apperr"
)

func fastConfig(max int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    max,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestRetry_SuccessOnFirstAttempt(t *testing.T) {
	val, attempts, err := Retry(context.Background(), DefaultRetryConfig(), func(_ context.Context) (string, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "ok" || attempts != 1 {
		t.Errorf("got (%q, %d), want (\"ok\", 1)", val, attempts)
	}
}

func TestRetry_RateLimitedTwiceThenSuccess(t *testing.T) {
	calls := 0
	val, attempts, err := Retry(context.Background(), fastConfig(3), func(_ context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, apperr.New(apperr.KindRateLimit, "429")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != 42 || attempts != 3 {
		t.Errorf("got (%d, %d), want (42, 3)", val, attempts)
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	_, attempts, err := Retry(context.Background(), fastConfig(3), func(_ context.Context) (int, error) {
		return 0, apperr.New(apperr.KindTimeout, "slow")
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if !apperr.Is(err, apperr.KindTimeout) {
		t.Errorf("expected timeout kind, got %s", apperr.KindOf(err))
	}
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	for _, kind := range []apperr.Kind{apperr.KindAPI, apperr.KindConfig, apperr.KindMalformedJSON} {
		_, attempts, err := Retry(context.Background(), fastConfig(5), func(_ context.Context) (int, error) {
			return 0, apperr.New(kind, "nope")
		})
		if err == nil || attempts != 1 {
			t.Errorf("%s: expected 1 attempt with error, got %d (%v)", kind, attempts, err)
		}
	}

	_, attempts, _ := Retry(context.Background(), fastConfig(5), func(_ context.Context) (int, error) {
		return 0, errors.New("untagged")
	})
	if attempts != 1 {
		t.Errorf("untagged error: expected 1 attempt, got %d", attempts)
	}
}

func TestRetry_ContextCancelledStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig(10)
	cfg.InitialBackoff = 50 * time.Millisecond

	_, attempts, err := Retry(ctx, cfg, func(_ context.Context) (int, error) {
		cancel()
		return 0, apperr.New(apperr.KindRateLimit, "429")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt after cancel, got %d", attempts)
	}
}

func TestRetry_OnRetryCallback(t *testing.T) {
	var seen []int
	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, _ error) { seen = append(seen, attempt) }

	_ = Do(context.Background(), cfg, func(_ context.Context) error {
		return apperr.New(apperr.KindTimeout, "slow")
	})
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("expected retry callbacks [1 2], got %v", seen)
	}
}

func TestRetry_CustomShouldRetry(t *testing.T) {
	cfg := fastConfig(3)
	cfg.ShouldRetry = func(err error) bool { return err.Error() == "again" }

	calls := 0
	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("again")
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Errorf("expected success after 2 calls, got %d (%v)", calls, err)
	}
}

func TestComputeBackoff(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, Multiplier: 2}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second}
	for i, w := range want {
		if got := computeBackoff(i, cfg); got != w {
			t.Errorf("attempt %d: got %v, want %v", i, got, w)
		}
	}

	cfg.JitterFraction = 0.5
	for i := 0; i < 20; i++ {
		d := computeBackoff(0, cfg)
		if d < 50*time.Millisecond || d > 150*time.Millisecond {
			t.Fatalf("jittered delay %v out of range", d)
		}
	}
}

func TestFromSettings(t *testing.T) {
	cfg := FromSettings(5, 100, 2000, 3, 0)
	if cfg.MaxAttempts != 5 || cfg.InitialBackoff != 100*time.Millisecond || cfg.MaxBackoff != 2*time.Second {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.Multiplier != 3 || cfg.JitterFraction != 0 {
		t.Errorf("unexpected multiplier/jitter: %+v", cfg)
	}

	def := FromSettings(0, 0, 0, 0, -1)
	if def.MaxAttempts != 3 || def.JitterFraction != 0.25 {
		t.Errorf("expected defaults, got %+v", def)
	}
}
