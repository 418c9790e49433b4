package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/medAuth/lockout"
)

var errStateRace = errors.New("account state changed during login")

// LoginKind classifies a login attempt.
type LoginKind int

const (
	LoginOK LoginKind = iota
	LoginUnknownEmail
	LoginInactive
	LoginLocked
	LoginBadPassword
	LoginLockTripped
	LoginUpstream
)

// LoginOutcome carries everything the engine needs to answer and audit.
type LoginOutcome struct {
	Kind    LoginKind
	Account Account
	// Lock is the failed-attempt transition; set for BadPassword, LockTripped
	// and a concurrent Locked.
	Lock lockout.Outcome
	// LockCleared is true when an expired lock was cleared before evaluation.
	LockCleared bool
	Now         time.Time
	Err         error
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	Now    func() time.Time
	Policy lockout.Policy

	FindByEmail      func(ctx context.Context, email string) (Account, error)
	IsNotFound       func(error) bool
	VerifyPassword   func(ctx context.Context, plain, digest string) (bool, error)
	ClearExpiredLock func(ctx context.Context, id string, now time.Time) (bool, error)
	RecordFailure    func(ctx context.Context, id string, now time.Time) (lockout.Outcome, error)
	RecordSuccess    func(ctx context.Context, id string, now time.Time) error

	// IsStateChanged matches the RecordSuccess error for an account that
	// stopped being ACTIVE and unlocked after FindByEmail read it.
	IsStateChanged func(error) bool
}

// RunLogin evaluates one login attempt. The lock state is settled (expired
// lock cleared, failure recorded) before it returns.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) LoginOutcome {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	now := deps.Now()
	out := LoginOutcome{Now: now}

	acc, err := deps.FindByEmail(ctx, email)
	if err != nil {
		if deps.IsNotFound(err) {
			out.Kind = LoginUnknownEmail
			return out
		}
		out.Kind, out.Err = LoginUpstream, err
		return out
	}
	out.Account = acc

	if !acc.LockedUntil.IsZero() && !now.Before(acc.LockedUntil) {
		cleared, err := deps.ClearExpiredLock(ctx, acc.ID, now)
		if err != nil {
			out.Kind, out.Err = LoginUpstream, err
			return out
		}
		if cleared {
			out.LockCleared = true
			acc.LockedUntil = time.Time{}
			if acc.Status == StatusLocked {
				acc.Status = StatusActive
			}
			out.Account = acc
		}
	}

	switch {
	case acc.Status == StatusLocked, now.Before(acc.LockedUntil):
		out.Kind = LoginLocked
		return out
	case !acc.Active():
		out.Kind = LoginInactive
		return out
	}

	ok, err := deps.VerifyPassword(ctx, password, acc.PasswordHash)
	if err != nil {
		out.Kind, out.Err = LoginUpstream, err
		return out
	}
	if !ok {
		lock, err := deps.RecordFailure(ctx, acc.ID, now)
		if err != nil {
			out.Kind, out.Err = LoginUpstream, err
			return out
		}
		out.Lock = lock
		out.Account.LockedUntil = lock.State.LockedUntil
		switch {
		case lock.AlreadyLocked:
			out.Kind = LoginLocked
		case lock.Tripped:
			out.Kind = LoginLockTripped
			out.Account.Status = StatusLocked
		default:
			out.Kind = LoginBadPassword
		}
		return out
	}

	if err := deps.RecordSuccess(ctx, acc.ID, now); err != nil {
		if deps.IsStateChanged != nil && deps.IsStateChanged(err) {
			return settleChanged(ctx, email, now, out, deps)
		}
		out.Kind, out.Err = LoginUpstream, err
		return out
	}
	out.Account.Status = StatusActive
	out.Account.LockedUntil = time.Time{}
	out.Kind = LoginOK
	return out
}

// settleChanged classifies a login whose success write lost a race with a
// lock or a status change. No tokens are issued either way.
func settleChanged(ctx context.Context, email string, now time.Time, out LoginOutcome, deps LoginDeps) LoginOutcome {
	acc, err := deps.FindByEmail(ctx, email)
	if err != nil {
		if deps.IsNotFound(err) {
			out.Kind = LoginUnknownEmail
			return out
		}
		out.Kind, out.Err = LoginUpstream, err
		return out
	}
	out.Account = acc
	switch {
	case acc.Status == StatusLocked, now.Before(acc.LockedUntil):
		out.Kind = LoginLocked
	case !acc.Active():
		out.Kind = LoginInactive
	default:
		out.Kind, out.Err = LoginUpstream, errStateRace
	}
	return out
}
