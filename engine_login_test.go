package medAuth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/medAuth"
	"github.com/MrEthical07/medAuth/lockout"
	"github.com/MrEthical07/medAuth/permission"
	"github.com/MrEthical07/medAuth/store/memory"
)

func TestLoginSuccess(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "u1", "doctor@hospital.org", permission.Doctor, medAuth.StatusActive)

	res, err := h.engine.Login(context.Background(), medAuth.LoginRequest{
		Email:    "  Doctor@Hospital.org",
		Password: testPassword,
		IP:       "10.0.0.1",
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Tokens.AccessToken == "" || res.Tokens.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if res.Tokens.TokenType != "Bearer" || res.Tokens.ExpiresIn != int64((15*time.Minute).Seconds()) {
		t.Fatalf("unexpected token metadata %+v", res.Tokens)
	}
	if res.Account.ID != "u1" || res.Account.LastLoginAt == nil {
		t.Fatalf("unexpected account %+v", res.Account)
	}

	ev := h.waitAudit(t, "LOGIN")
	if !ev.Success || ev.UserID != "u1" || ev.IPAddress != "10.0.0.1" || ev.UserRole != "DOCTOR" {
		t.Fatalf("unexpected audit event %+v", ev)
	}
	if ev.Metadata["sessionId"] != res.Tokens.SessionID {
		t.Fatalf("sessionId metadata = %q", ev.Metadata["sessionId"])
	}

	p, err := h.engine.Authenticate(context.Background(), res.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if p.ID != "u1" || p.Role != permission.Doctor {
		t.Fatalf("unexpected principal %+v", p)
	}
}

func TestLoginLockoutSequence(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "u1", "nurse@hospital.org", permission.Nurse, medAuth.StatusActive)
	ctx := context.Background()
	bad := medAuth.LoginRequest{Email: "nurse@hospital.org", Password: "Wrong1Password"}

	for want := 4; want >= 1; want-- {
		_, err := h.engine.Login(ctx, bad)
		var le *medAuth.LoginError
		if !errors.As(err, &le) || !errors.Is(err, medAuth.ErrInvalidCredentials) {
			t.Fatalf("expected credential LoginError, got %v", err)
		}
		if le.RemainingAttempts != want {
			t.Fatalf("remaining = %d, want %d", le.RemainingAttempts, want)
		}
	}

	_, err := h.engine.Login(ctx, bad)
	if !errors.Is(err, medAuth.ErrInvalidCredentials) {
		t.Fatalf("fifth failure should still read as invalid credentials, got %v", err)
	}
	if err.Error() != "Invalid credentials. Account locked for 2 hours" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	h.waitAudit(t, "ACCOUNT_LOCKED")

	_, err = h.engine.Login(ctx, medAuth.LoginRequest{Email: "nurse@hospital.org", Password: testPassword})
	if !errors.Is(err, medAuth.ErrAccountLocked) {
		t.Fatalf("correct password during lock: %v", err)
	}

	acc, _ := h.accounts.GetByID(ctx, "u1")
	if acc.Status != medAuth.StatusLocked || acc.FailedLoginCount != 5 {
		t.Fatalf("unexpected stored state %+v", acc)
	}

	h.clock.Advance(2*time.Hour + time.Second)
	if _, err := h.engine.Login(ctx, medAuth.LoginRequest{Email: "nurse@hospital.org", Password: testPassword}); err != nil {
		t.Fatalf("login after lock expiry: %v", err)
	}
	h.waitAudit(t, "ACCOUNT_LOCK_EXPIRED")

	acc, _ = h.accounts.GetByID(ctx, "u1")
	if acc.Status != medAuth.StatusActive || acc.FailedLoginCount != 0 || !acc.LockedUntil.IsZero() {
		t.Fatalf("lock state not cleared: %+v", acc)
	}

	snap := h.engine.MetricsSnapshot()
	if snap.Counters[medAuth.MetricLoginLocked] != 2 {
		t.Fatalf("MetricLoginLocked = %d", snap.Counters[medAuth.MetricLoginLocked])
	}
}

func TestLoginUnknownEmailMatchesFirstWrongPassword(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "u1", "nurse@hospital.org", permission.Nurse, medAuth.StatusActive)
	ctx := context.Background()

	_, unknown := h.engine.Login(ctx, medAuth.LoginRequest{Email: "ghost@hospital.org", Password: "Wrong1Password"})
	_, wrong := h.engine.Login(ctx, medAuth.LoginRequest{Email: "nurse@hospital.org", Password: "Wrong1Password"})

	if unknown == nil || wrong == nil {
		t.Fatal("expected both logins to fail")
	}
	if unknown.Error() != wrong.Error() {
		t.Fatalf("messages differ: %q vs %q", unknown.Error(), wrong.Error())
	}
	if !errors.Is(unknown, medAuth.ErrInvalidCredentials) {
		t.Fatalf("unknown email kind: %v", unknown)
	}

	ev := h.waitAudit(t, "LOGIN_FAILED")
	if ev.Metadata["reason"] != "USER_NOT_FOUND" {
		t.Fatalf("reason = %q", ev.Metadata["reason"])
	}
}

func TestLoginInactiveStatuses(t *testing.T) {
	tests := []struct {
		status medAuth.AccountStatus
		msg    string
	}{
		{medAuth.StatusPendingApproval, "Account is pending approval"},
		{medAuth.StatusSuspended, "Account has been suspended"},
		{medAuth.StatusInactive, "Account is inactive"},
	}
	for _, tc := range tests {
		t.Run(string(tc.status), func(t *testing.T) {
			h := newHarness(t)
			h.seed(t, "u1", "staff@hospital.org", permission.Receptionist, tc.status)

			_, err := h.engine.Login(context.Background(), medAuth.LoginRequest{Email: "staff@hospital.org", Password: "Wrong1Password"})
			if !errors.Is(err, medAuth.ErrAccountInactive) {
				t.Fatalf("expected ErrAccountInactive, got %v", err)
			}
			if err.Error() != tc.msg {
				t.Fatalf("message = %q", err.Error())
			}

			acc, _ := h.accounts.GetByID(context.Background(), "u1")
			if acc.FailedLoginCount != 0 {
				t.Fatal("inactive accounts must not accumulate failures")
			}
		})
	}
}

// racingAccounts runs afterRead once, right after the login looks the
// account up, to land a concurrent change between read and write.
type racingAccounts struct {
	*memory.Accounts
	afterRead func()
}

func (r *racingAccounts) GetByEmail(ctx context.Context, email string) (*medAuth.Account, error) {
	acc, err := r.Accounts.GetByEmail(ctx, email)
	if fn := r.afterRead; fn != nil {
		r.afterRead = nil
		fn()
	}
	return acc, err
}

func TestLoginDoesNotUndoConcurrentChanges(t *testing.T) {
	tests := []struct {
		name       string
		change     func(h *harness)
		wantKind   error
		wantStatus medAuth.AccountStatus
	}{
		{
			name: "suspension",
			change: func(h *harness) {
				_ = h.accounts.SetStatus(context.Background(), "u1", medAuth.StatusSuspended, h.clock.Now())
			},
			wantKind:   medAuth.ErrAccountInactive,
			wantStatus: medAuth.StatusSuspended,
		},
		{
			name: "lockout",
			change: func(h *harness) {
				for i := 0; i < lockout.DefaultThreshold; i++ {
					_, _ = h.accounts.RecordLoginFailure(context.Background(), "u1", h.clock.Now(), lockout.DefaultPolicy())
				}
			},
			wantKind:   medAuth.ErrAccountLocked,
			wantStatus: medAuth.StatusLocked,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			racing := &racingAccounts{}
			h := newHarness(t, func(b *medAuth.Builder, _ *medAuth.Config) { b.WithAccountStore(racing) })
			racing.Accounts = h.accounts
			h.seed(t, "u1", "doc@hospital.org", permission.Doctor, medAuth.StatusActive)
			racing.afterRead = func() { tc.change(h) }

			res, err := h.engine.Login(context.Background(), medAuth.LoginRequest{Email: "doc@hospital.org", Password: testPassword})
			if res != nil || !errors.Is(err, tc.wantKind) {
				t.Fatalf("login = %v, %v; want %v", res, err, tc.wantKind)
			}

			acc, _ := h.accounts.GetByID(context.Background(), "u1")
			if acc.Status != tc.wantStatus {
				t.Fatalf("status = %s, want %s", acc.Status, tc.wantStatus)
			}
			if tc.wantStatus == medAuth.StatusLocked && (acc.FailedLoginCount != lockout.DefaultThreshold || acc.LockedUntil.IsZero()) {
				t.Fatalf("lock erased: %+v", acc)
			}
		})
	}
}

func TestLoginRateLimited(t *testing.T) {
	h := newHarness(t, withConfig(func(c *medAuth.Config) {
		c.RateLimit.Enabled = true
		c.RateLimit.LoginPerMinute = 2
		c.RateLimit.Burst = 2
	}))
	ctx := context.Background()
	req := medAuth.LoginRequest{Email: "ghost@hospital.org", Password: "Wrong1Password", IP: "10.0.0.9"}

	var limited bool
	for i := 0; i < 5; i++ {
		_, err := h.engine.Login(ctx, req)
		if errors.Is(err, medAuth.ErrLoginRateLimited) {
			limited = true
			break
		}
	}
	if !limited {
		t.Fatal("expected the login limiter to reject")
	}
	h.waitAudit(t, "LOGIN_RATE_LIMITED")
}

func TestEngineNotReady(t *testing.T) {
	var e *medAuth.Engine
	if _, err := e.Login(context.Background(), medAuth.LoginRequest{}); !errors.Is(err, medAuth.ErrEngineNotReady) {
		t.Fatalf("nil engine Login err = %v", err)
	}
}

func TestBuilderRequiresStores(t *testing.T) {
	_, err := medAuth.New().WithConfig(testConfig()).Build()
	if err == nil {
		t.Fatal("expected error without stores")
	}

	b := medAuth.New().WithConfig(testConfig()).
		WithAccountStore(memory.NewAccounts()).
		WithRevocationStore(memory.NewRevocations(nil))
	if _, err := b.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, err := b.Build(); err == nil {
		t.Fatal("a builder must not build twice")
	}
}
