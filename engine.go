package medAuth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/MrEthical07/medAuth/internal/audit"
	"github.com/MrEthical07/medAuth/internal/flows"
	"github.com/MrEthical07/medAuth/internal/limiters"
	"github.com/MrEthical07/medAuth/internal/notify"
	"github.com/MrEthical07/medAuth/jwt"
	"github.com/MrEthical07/medAuth/lockout"
	"github.com/MrEthical07/medAuth/password"
	"github.com/MrEthical07/medAuth/permission"
)

// Engine is the authentication and authorization core. It is safe for
// concurrent use once built; call Close on shutdown to drain audit and
// notification queues.
type Engine struct {
	config      Config
	catalog     *permission.Catalog
	accounts    AccountStore
	revocations RevocationStore
	tokens      *jwt.Manager
	hasher      *password.Hasher
	pool        *password.Pool
	audit       *audit.Dispatcher
	notify      *notify.Dispatcher
	notifier    Notifier
	metrics     *Metrics
	logger      *slog.Logger
	clock       func() time.Time

	loginLimiter    *limiters.LoginLimiter
	registerLimiter *limiters.RegistrationLimiter
	resetLimiter    *limiters.PasswordResetLimiter

	distributedLimits bool

	flows flows.Service
}

// Close drains pending notifications, then pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.notify != nil {
		e.notify.Close()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events discarded because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// NotificationsDropped returns the number of notifications discarded because
// the queue was full.
func (e *Engine) NotificationsDropped() uint64 {
	if e == nil || e.notify == nil {
		return 0
	}
	return e.notify.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Catalog returns the role/permission catalog the engine authorizes against.
func (e *Engine) Catalog() *permission.Catalog {
	return e.catalog
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	return e.config
}

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}

func (e *Engine) ready() error {
	if e == nil || e.accounts == nil || e.tokens == nil || !e.flows.Initialized() {
		return ErrEngineNotReady
	}
	return nil
}

func (e *Engine) readCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.config.Store.ReadTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.config.Store.ReadTimeout)
}

// writeCtx detaches from caller cancellation so that a client disconnect
// cannot drop a lockout or revocation write halfway.
func (e *Engine) writeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if e.config.Store.WriteTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.config.Store.WriteTimeout)
}

// loadAccount fetches by id, retrying transient store failures. Not-found and
// caller cancellation are returned immediately.
func (e *Engine) loadAccount(ctx context.Context, id string) (*Account, error) {
	var acc *Account
	op := func() error {
		rctx, cancel := e.readCtx(ctx)
		defer cancel()

		found, err := e.accounts.GetByID(rctx, id)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		acc = found
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(e.config.Store.RetryBackoff), uint64(e.config.Store.MaxRetries)),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return acc, nil
}

func (e *Engine) findByEmail(ctx context.Context, email string) (*Account, error) {
	rctx, cancel := e.readCtx(ctx)
	defer cancel()
	return e.accounts.GetByEmail(rctx, email)
}

// storeErr maps a store failure to the public error space. Not-found passes
// through; anything else is an upstream failure.
func storeErr(err error) error {
	if err == nil || errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrDuplicateEmail) {
		return err
	}
	return upstream(err)
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound)
}

func isStateChanged(err error) bool {
	return errors.Is(err, ErrAccountStateChanged)
}

func toFlowAccount(a *Account) flows.Account {
	return flows.Account{
		ID:           a.ID,
		Email:        a.Email,
		PasswordHash: a.PasswordHash,
		Role:         a.Role,
		Status:       string(a.Status),
		LockedUntil:  a.LockedUntil,
	}
}

func (e *Engine) subjectFor(a flows.Account) jwt.Subject {
	perms := e.catalog.RolePermissions(a.Role)
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = string(p)
	}
	return jwt.Subject{ID: a.ID, Email: a.Email, Role: a.Role.String(), Permissions: names}
}

func (e *Engine) buildFlows() flows.Service {
	loadFlowAccount := func(ctx context.Context, id string) (flows.Account, error) {
		acc, err := e.loadAccount(ctx, id)
		if err != nil {
			return flows.Account{}, err
		}
		return toFlowAccount(acc), nil
	}
	revocation := flows.RevocationDeps{
		IsRevoked: func(ctx context.Context, jti string) (bool, error) {
			rctx, cancel := e.readCtx(ctx)
			defer cancel()
			return e.revocations.IsRevoked(rctx, jti)
		},
		RevokedBefore: func(ctx context.Context, accountID string) (time.Time, error) {
			rctx, cancel := e.readCtx(ctx)
			defer cancel()
			return e.revocations.RevokedBefore(rctx, accountID)
		},
	}
	revokeAll := func(ctx context.Context, accountID string, cutoff time.Time, ttl time.Duration) error {
		wctx, cancel := e.writeCtx(ctx)
		defer cancel()
		return e.revocations.RevokeAllBefore(wctx, accountID, cutoff, ttl)
	}
	policy := e.config.lockoutPolicy()
	refreshTTL := e.tokens.RefreshTTL()

	return flows.New(flows.Deps{
		Login: flows.LoginDeps{
			Now:    e.now,
			Policy: policy,
			FindByEmail: func(ctx context.Context, email string) (flows.Account, error) {
				acc, err := e.findByEmail(ctx, email)
				if err != nil {
					return flows.Account{}, err
				}
				return toFlowAccount(acc), nil
			},
			IsNotFound:     isNotFound,
			IsStateChanged: isStateChanged,
			VerifyPassword: e.pool.Verify,
			ClearExpiredLock: func(ctx context.Context, id string, now time.Time) (bool, error) {
				wctx, cancel := e.writeCtx(ctx)
				defer cancel()
				return e.accounts.ClearExpiredLock(wctx, id, now)
			},
			RecordFailure: func(ctx context.Context, id string, now time.Time) (lockout.Outcome, error) {
				wctx, cancel := e.writeCtx(ctx)
				defer cancel()
				return e.accounts.RecordLoginFailure(wctx, id, now, policy)
			},
			RecordSuccess: func(ctx context.Context, id string, now time.Time) error {
				wctx, cancel := e.writeCtx(ctx)
				defer cancel()
				return e.accounts.RecordLoginSuccess(wctx, id, now)
			},
		},
		Refresh: flows.RefreshDeps{
			VerifyRefresh: e.tokens.VerifyRefresh,
			Revocation:    revocation,
			LoadAccount:   loadFlowAccount,
			IsNotFound:    isNotFound,
			SignAccess: func(a flows.Account) (string, error) {
				return e.tokens.SignAccess(e.subjectFor(a))
			},
		},
		Authenticate: flows.AuthenticateDeps{
			VerifyAccess: e.tokens.VerifyAccess,
			Revocation:   flows.RevocationDeps{RevokedBefore: revocation.RevokedBefore},
			LoadAccount:  loadFlowAccount,
			IsNotFound:   isNotFound,
		},
		Logout: flows.LogoutDeps{
			Now:           e.now,
			RefreshTTL:    refreshTTL,
			VerifyRefresh: e.tokens.VerifyRefresh,
			RevokeToken: func(ctx context.Context, jti string, ttl time.Duration) error {
				wctx, cancel := e.writeCtx(ctx)
				defer cancel()
				return e.revocations.RevokeToken(wctx, jti, ttl)
			},
			RevokeAllBefore: revokeAll,
		},
		Status: flows.StatusDeps{
			Now:         e.now,
			RefreshTTL:  refreshTTL,
			LoadAccount: loadFlowAccount,
			IsNotFound:  isNotFound,
			CanManage:   e.catalog.CanCreateRole,
			SetStatus: func(ctx context.Context, id, status string, now time.Time) error {
				wctx, cancel := e.writeCtx(ctx)
				defer cancel()
				return e.accounts.SetStatus(wctx, id, AccountStatus(status), now)
			},
			Unlock: func(ctx context.Context, id string, now time.Time) error {
				wctx, cancel := e.writeCtx(ctx)
				defer cancel()
				return e.accounts.Unlock(wctx, id, now)
			},
			RevokeAllBefore: revokeAll,
		},
	})
}

// limited converts a limiter result. Throttle rejections return true;
// backend failures are logged and the request proceeds.
func (e *Engine) limited(ctx context.Context, name string, err error) bool {
	if err == nil {
		return false
	}
	if limiters.IsLimited(err) {
		return true
	}
	e.logger.WarnContext(ctx, "rate limiter unavailable", "limiter", name, "error", err)
	return false
}

func (e *Engine) sendNotification(name string, fn func(ctx context.Context, n Notifier) error) {
	if e.notify == nil || e.notifier == nil {
		return
	}
	n := e.notifier
	e.notify.Go(name, func(ctx context.Context) error {
		return fn(ctx, n)
	})
}
