package limiters

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/medAuth/internal/rate"
)

func TestNilLimitersAllow(t *testing.T) {
	ctx := context.Background()
	var login *LoginLimiter
	var reg *RegistrationLimiter
	var reset *PasswordResetLimiter
	if login.Check(ctx, "a", "ip") != nil || login.Reset(ctx, "a") != nil {
		t.Fatal("nil login limiter must allow")
	}
	if reg.Check(ctx, "ip") != nil {
		t.Fatal("nil registration limiter must allow")
	}
	if reset.CheckRequest(ctx, "a", "ip") != nil || reset.CheckConfirm(ctx, "ip") != nil {
		t.Fatal("nil reset limiter must allow")
	}
}

func TestLoginLimiterPerIdentifierNormalizes(t *testing.T) {
	ctx := context.Background()
	l := NewLoginLimiter(nil, rate.NewLocal(1, time.Hour, 2))

	if err := l.Check(ctx, "Doc@Example.org", ""); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	if err := l.Check(ctx, " doc@example.org ", ""); err != nil {
		t.Fatalf("second attempt: %v", err)
	}
	if err := l.Check(ctx, "DOC@EXAMPLE.ORG", ""); !IsLimited(err) {
		t.Fatalf("expected limit, got %v", err)
	}
	if err := l.Reset(ctx, "doc@example.org"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := l.Check(ctx, "doc@example.org", ""); err != nil {
		t.Fatalf("after reset: %v", err)
	}
}

func TestLoginLimiterPerIP(t *testing.T) {
	ctx := context.Background()
	l := NewLoginLimiter(rate.NewLocal(1, time.Hour, 1), nil)
	if err := l.Check(ctx, "a@x.org", "10.1.1.1"); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	if err := l.Check(ctx, "b@x.org", "10.1.1.1"); !IsLimited(err) {
		t.Fatalf("expected IP limit, got %v", err)
	}
	if err := l.Check(ctx, "b@x.org", "10.1.1.2"); err != nil {
		t.Fatalf("other IP should pass: %v", err)
	}
}

func TestPasswordResetLimiter(t *testing.T) {
	ctx := context.Background()
	l := NewPasswordResetLimiter(rate.NewLocal(1, time.Hour, 1))
	if err := l.CheckRequest(ctx, "p@x.org", "10.0.0.9"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if err := l.CheckRequest(ctx, "p@x.org", "10.0.0.10"); !IsLimited(err) {
		t.Fatalf("expected identifier limit, got %v", err)
	}
	if err := l.CheckConfirm(ctx, "10.0.0.9"); err != nil {
		t.Fatalf("confirm budget is separate: %v", err)
	}
	if err := l.CheckConfirm(ctx, "10.0.0.9"); !IsLimited(err) {
		t.Fatalf("expected confirm limit, got %v", err)
	}
}

func TestRegistrationLimiter(t *testing.T) {
	ctx := context.Background()
	l := NewRegistrationLimiter(rate.NewLocal(1, time.Hour, 1))
	if err := l.Check(ctx, "10.0.0.1"); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := l.Check(ctx, "10.0.0.1"); !IsLimited(err) {
		t.Fatalf("expected limit, got %v", err)
	}
	if err := l.Check(ctx, ""); err != nil {
		t.Fatalf("missing ip should pass: %v", err)
	}
}
