// Package lockout implements the account lockout state machine.
//
// An account is UNLOCKED while its failure count is under the policy
// threshold. The failure that reaches the threshold locks it until
// now+Duration. A lock whose deadline has passed is cleared before the next
// attempt is evaluated, and any successful authentication resets the state.
//
// The functions here are pure. Account stores apply the same transitions
// atomically against their backend.
package lockout

import (
	"errors"
	"time"
)

const (
	// DefaultThreshold is the number of consecutive failures that locks an account.
	DefaultThreshold = 5
	// DefaultDuration is how long a tripped lock lasts.
	DefaultDuration = 2 * time.Hour
)

// Policy holds lockout tuning.
type Policy struct {
	Threshold int
	Duration  time.Duration
}

// DefaultPolicy returns the 5 attempts / 2 hours policy.
func DefaultPolicy() Policy {
	return Policy{Threshold: DefaultThreshold, Duration: DefaultDuration}
}

// Validate rejects non-positive thresholds and durations.
func (p Policy) Validate() error {
	if p.Threshold < 1 {
		return errors.New("lockout threshold must be >= 1")
	}
	if p.Duration <= 0 {
		return errors.New("lockout duration must be > 0")
	}
	return nil
}

// State is the lockout-relevant slice of an account. A zero LockedUntil means
// no lock is recorded.
type State struct {
	FailedCount int
	LockedUntil time.Time
}

// Locked reports whether the lock is in force at now.
func (s State) Locked(now time.Time) bool {
	return !s.LockedUntil.IsZero() && now.Before(s.LockedUntil)
}

// Expired reports whether a recorded lock has passed its deadline.
func (s State) Expired(now time.Time) bool {
	return !s.LockedUntil.IsZero() && !now.Before(s.LockedUntil)
}

// Outcome describes the result of a failed-attempt transition.
type Outcome struct {
	State State
	// Tripped is true when this failure locked the account.
	Tripped bool
	// AlreadyLocked is true when the account was locked before this attempt;
	// the counter is left untouched.
	AlreadyLocked bool
	// Cleared is true when an expired lock was cleared before counting.
	Cleared bool
}

// Remaining returns how many failures are left before the lock trips.
func (o Outcome) Remaining(p Policy) int {
	return Remaining(o.State.FailedCount, p)
}

// ClearIfExpired resets a lock whose deadline has passed. The counter is
// reset with it so only attempts after expiry count.
func ClearIfExpired(s State, now time.Time) (State, bool) {
	if !s.Expired(now) {
		return s, false
	}
	return State{}, true
}

// RecordFailure applies a failed attempt at now.
func RecordFailure(s State, now time.Time, p Policy) Outcome {
	s, cleared := ClearIfExpired(s, now)
	if s.Locked(now) {
		return Outcome{State: s, AlreadyLocked: true}
	}

	s.FailedCount++
	out := Outcome{State: s, Cleared: cleared}
	if s.FailedCount >= p.Threshold {
		out.State.LockedUntil = now.Add(p.Duration)
		out.Tripped = true
	}
	return out
}

// RecordSuccess returns the state after a successful authentication.
func RecordSuccess() State {
	return State{}
}

// Remaining returns threshold minus failures, floored at zero.
func Remaining(failed int, p Policy) int {
	if n := p.Threshold - failed; n > 0 {
		return n
	}
	return 0
}

// HoursLeft rounds the remaining lock time up to whole hours. It is zero once
// the lock has passed.
func HoursLeft(lockedUntil, now time.Time) int {
	d := lockedUntil.Sub(now)
	if d <= 0 {
		return 0
	}
	h := int(d / time.Hour)
	if d%time.Hour != 0 {
		h++
	}
	return h
}
