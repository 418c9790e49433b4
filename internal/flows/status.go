package flows

import (
	"context"
	"slices"
	"time"

	"github.com/MrEthical07/medAuth/permission"
)

// StatusChange is an administrative status transition.
type StatusChange struct {
	ActorRole permission.Role
	TargetID  string
	// From lists the statuses the transition applies to. Empty means any.
	From []string
	To   string
	// RevokeSessions ends every refresh token of the target.
	RevokeSessions bool
}

// StatusFailureKind classifies status transition failures.
type StatusFailureKind int

const (
	StatusFailureNone StatusFailureKind = iota
	StatusFailureNotFound
	StatusFailureForbidden
	StatusFailureInvalidState
	StatusFailureUpstream
)

// StatusOutcome reports the transition result. Unchanged is true when the
// target already had the requested status.
type StatusOutcome struct {
	Failure   StatusFailureKind
	Err       error
	Account   Account
	Previous  string
	Unchanged bool
	// RevokeErr is a best-effort session revocation failure.
	RevokeErr error
}

// StatusDeps captures status transition dependencies.
type StatusDeps struct {
	Now             func() time.Time
	RefreshTTL      time.Duration
	LoadAccount     func(ctx context.Context, id string) (Account, error)
	IsNotFound      func(error) bool
	CanManage       func(actor, target permission.Role) bool
	SetStatus       func(ctx context.Context, id, status string, now time.Time) error
	Unlock          func(ctx context.Context, id string, now time.Time) error
	RevokeAllBefore func(ctx context.Context, accountID string, cutoff time.Time, ttl time.Duration) error
}

// RunStatusChange loads the target, checks the actor outranks it and that the
// current status allows the transition, then persists it.
func RunStatusChange(ctx context.Context, in StatusChange, deps StatusDeps) StatusOutcome {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	now := deps.Now()

	acc, err := deps.LoadAccount(ctx, in.TargetID)
	if err != nil {
		if deps.IsNotFound(err) {
			return StatusOutcome{Failure: StatusFailureNotFound, Err: err}
		}
		return StatusOutcome{Failure: StatusFailureUpstream, Err: err}
	}
	out := StatusOutcome{Account: acc, Previous: acc.Status}

	if !deps.CanManage(in.ActorRole, acc.Role) {
		out.Failure = StatusFailureForbidden
		return out
	}
	if acc.Status == in.To && in.To != StatusActive {
		out.Unchanged = true
		return out
	}
	if len(in.From) > 0 && !slices.Contains(in.From, acc.Status) {
		out.Failure = StatusFailureInvalidState
		return out
	}

	if acc.Status == StatusLocked && in.To == StatusActive && deps.Unlock != nil {
		err = deps.Unlock(ctx, acc.ID, now)
	} else {
		err = deps.SetStatus(ctx, acc.ID, in.To, now)
	}
	if err != nil {
		out.Failure, out.Err = StatusFailureUpstream, err
		return out
	}
	out.Account.Status = in.To
	if in.To == StatusActive {
		out.Account.LockedUntil = time.Time{}
	}

	if in.RevokeSessions && deps.RevokeAllBefore != nil {
		out.RevokeErr = deps.RevokeAllBefore(ctx, acc.ID, now, deps.RefreshTTL)
	}
	return out
}
