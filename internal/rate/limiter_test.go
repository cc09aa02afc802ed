package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	return New(rdb, cfg), mr, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func TestLoginBudgetExhausts(t *testing.T) {
	limiter, _, done := newTestLimiter(t, Config{
		MaxLoginAttempts:      3,
		LoginCooldownDuration: 15 * time.Minute,
	})
	defer done()

	ctx := context.Background()

	// The budget tolerates MaxLoginAttempts failures; the check trips
	// once the counter moves past the cap.
	for i := 0; i < 3; i++ {
		if err := limiter.CheckLogin(ctx, "alice@example.com", ""); err != nil {
			t.Fatalf("attempt %d unexpectedly limited: %v", i, err)
		}
		_ = limiter.IncrementLogin(ctx, "alice@example.com", "")
	}
	if err := limiter.CheckLogin(ctx, "alice@example.com", ""); err != nil {
		t.Fatalf("attempt at the cap unexpectedly limited: %v", err)
	}
	_ = limiter.IncrementLogin(ctx, "alice@example.com", "")

	if err := limiter.CheckLogin(ctx, "alice@example.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited after budget exhaustion, got %v", err)
	}
}

func TestLoginCounterExpiresWithCooldown(t *testing.T) {
	limiter, mr, done := newTestLimiter(t, Config{
		MaxLoginAttempts:      1,
		LoginCooldownDuration: time.Minute,
	})
	defer done()

	ctx := context.Background()

	_ = limiter.IncrementLogin(ctx, "alice@example.com", "")
	_ = limiter.IncrementLogin(ctx, "alice@example.com", "")

	if err := limiter.CheckLogin(ctx, "alice@example.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if err := limiter.CheckLogin(ctx, "alice@example.com", ""); err != nil {
		t.Fatalf("expected the counter to expire with the cooldown, got %v", err)
	}
}

func TestResetLoginClearsBudget(t *testing.T) {
	limiter, _, done := newTestLimiter(t, Config{
		MaxLoginAttempts:      1,
		LoginCooldownDuration: time.Minute,
	})
	defer done()

	ctx := context.Background()

	_ = limiter.IncrementLogin(ctx, "alice@example.com", "")
	_ = limiter.IncrementLogin(ctx, "alice@example.com", "")

	if err := limiter.ResetLogin(ctx, "alice@example.com", ""); err != nil {
		t.Fatalf("ResetLogin failed: %v", err)
	}
	if err := limiter.CheckLogin(ctx, "alice@example.com", ""); err != nil {
		t.Fatalf("expected a fresh budget after reset, got %v", err)
	}

	attempts, err := limiter.GetLoginAttempts(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("GetLoginAttempts failed: %v", err)
	}
	if attempts != 0 {
		t.Fatalf("expected zero attempts after reset, got %d", attempts)
	}
}

func TestIPThrottleIsIndependent(t *testing.T) {
	limiter, _, done := newTestLimiter(t, Config{
		EnableIPThrottle:      true,
		MaxLoginAttempts:      1,
		LoginCooldownDuration: time.Minute,
	})
	defer done()

	ctx := context.Background()

	// Two identifiers behind one IP: the IP counter accumulates both.
	_ = limiter.IncrementLogin(ctx, "alice@example.com", "203.0.113.7")
	_ = limiter.IncrementLogin(ctx, "bob@example.com", "203.0.113.7")

	if err := limiter.CheckLogin(ctx, "carol@example.com", "203.0.113.7"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected IP throttle to trip, got %v", err)
	}
	if err := limiter.CheckLogin(ctx, "carol@example.com", "198.51.100.9"); err != nil {
		t.Fatalf("expected a different IP to pass, got %v", err)
	}
}

func TestResendCooldown(t *testing.T) {
	limiter, mr, done := newTestLimiter(t, Config{
		ResendCooldown: 60 * time.Second,
	})
	defer done()

	ctx := context.Background()

	if err := limiter.CheckResend(ctx, "acct-1"); err != nil {
		t.Fatalf("first CheckResend failed: %v", err)
	}
	if err := limiter.MarkResend(ctx, "acct-1"); err != nil {
		t.Fatalf("MarkResend failed: %v", err)
	}
	if err := limiter.CheckResend(ctx, "acct-1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited inside the cooldown, got %v", err)
	}
	if err := limiter.CheckResend(ctx, "acct-2"); err != nil {
		t.Fatalf("cooldown must be per account, got %v", err)
	}

	mr.FastForward(61 * time.Second)

	if err := limiter.CheckResend(ctx, "acct-1"); err != nil {
		t.Fatalf("expected cooldown to expire, got %v", err)
	}
}

func TestResendCooldownDisabled(t *testing.T) {
	limiter, _, done := newTestLimiter(t, Config{})
	defer done()

	ctx := context.Background()

	if err := limiter.MarkResend(ctx, "acct-1"); err != nil {
		t.Fatalf("MarkResend failed: %v", err)
	}
	if err := limiter.CheckResend(ctx, "acct-1"); err != nil {
		t.Fatalf("zero cooldown must never limit, got %v", err)
	}
}
