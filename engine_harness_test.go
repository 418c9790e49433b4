package medAuth_test

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/medAuth"
	"github.com/MrEthical07/medAuth/password"
	"github.com/MrEthical07/medAuth/permission"
	"github.com/MrEthical07/medAuth/store/memory"
)

const (
	testPassword = "Correct1Horse"
	testAccess   = "access-secret-0123456789abcdef0123"
	testRefresh  = "refresh-secret-0123456789abcdef012"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	engine      *medAuth.Engine
	accounts    *memory.Accounts
	revocations *memory.Revocations
	sink        *medAuth.ChannelSink
	clock       *fakeClock
}

type harnessOption func(*medAuth.Builder, *medAuth.Config)

func withNotifier(n medAuth.Notifier) harnessOption {
	return func(b *medAuth.Builder, _ *medAuth.Config) { b.WithNotifier(n) }
}

func withConfig(fn func(*medAuth.Config)) harnessOption {
	return func(_ *medAuth.Builder, cfg *medAuth.Config) { fn(cfg) }
}

func testConfig() medAuth.Config {
	cfg := medAuth.DefaultConfig()
	cfg.JWT.AccessSecret = testAccess
	cfg.JWT.RefreshSecret = testRefresh
	cfg.Password.Cost = 4
	cfg.Password.AllowLowCost = true
	cfg.Store.RetryBackoff = 0
	return cfg
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	clock := &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	h := &harness{
		accounts:    memory.NewAccounts(),
		revocations: memory.NewRevocations(clock.Now),
		sink:        medAuth.NewChannelSink(256),
		clock:       clock,
	}

	cfg := testConfig()
	b := medAuth.New().
		WithAccountStore(h.accounts).
		WithRevocationStore(h.revocations).
		WithAuditSink(h.sink).
		WithClock(clock.Now).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	for _, opt := range opts {
		opt(b, &cfg)
	}

	engine, err := b.WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	h.engine = engine
	return h
}

var (
	hashOnce   sync.Once
	hashedTest string
)

func testPasswordHash(t *testing.T) string {
	t.Helper()
	hashOnce.Do(func() {
		h, err := password.New(password.Config{Cost: 4})
		if err != nil {
			panic(err)
		}
		hashedTest, err = h.Hash(testPassword)
		if err != nil {
			panic(err)
		}
	})
	return hashedTest
}

// seed stores an account with testPassword.
func (h *harness) seed(t *testing.T, id, email string, role permission.Role, status medAuth.AccountStatus) {
	t.Helper()
	now := h.clock.Now()
	h.accounts.Put(medAuth.Account{
		ID:           id,
		Email:        email,
		FirstName:    "Test",
		LastName:     role.String(),
		PasswordHash: testPasswordHash(t),
		Role:         role,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

func (h *harness) principal(t *testing.T, id string) *medAuth.Principal {
	t.Helper()
	acc, err := h.accounts.GetByID(t.Context(), id)
	if err != nil {
		t.Fatalf("GetByID(%s): %v", id, err)
	}
	return &medAuth.Principal{ID: acc.ID, Email: acc.Email, Role: acc.Role, Status: acc.Status}
}

// waitAudit returns the next event with action, skipping others.
func (h *harness) waitAudit(t *testing.T, action string) medAuth.AuditEvent {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-h.sink.Events():
			if ev.Action == action {
				return ev
			}
		case <-timeout:
			t.Fatalf("audit event %s not emitted", action)
			return medAuth.AuditEvent{}
		}
	}
}
