package medAuth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/medAuth/lockout"
)

var (
	// ErrInvalidCredentials is an exported constant or variable used by the authentication engine.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is an exported constant or variable used by the authentication engine.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountInactive is an exported constant or variable used by the authentication engine.
	ErrAccountInactive = errors.New("account inactive")
	// ErrAccountNotFound is returned by AccountStore lookups that match nothing.
	// Login collapses it into ErrInvalidCredentials.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInvalidToken is an exported constant or variable used by the authentication engine.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is an exported constant or variable used by the authentication engine.
	ErrTokenExpired = errors.New("token expired")
	// ErrNoToken is an exported constant or variable used by the authentication engine.
	ErrNoToken = errors.New("no token provided")
	// ErrDuplicateEmail is returned by AccountStore.Create and RegisterUser.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrInvalidEmail is an exported constant or variable used by the authentication engine.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrWeakPassword is wrapped by *WeakPasswordError.
	ErrWeakPassword = errors.New("password does not meet requirements")
	// ErrSamePassword is an exported constant or variable used by the authentication engine.
	ErrSamePassword = errors.New("new password must differ from current password")
	// ErrInvalidOrExpiredResetToken is an exported constant or variable used by the authentication engine.
	ErrInvalidOrExpiredResetToken = errors.New("invalid or expired reset token")
	// ErrInsufficientPermissions is an exported constant or variable used by the authentication engine.
	ErrInsufficientPermissions = errors.New("insufficient permissions")
	// ErrInvalidRole is an exported constant or variable used by the authentication engine.
	ErrInvalidRole = errors.New("invalid role")
	// ErrInvalidAccountState is returned when an administrative transition does
	// not apply to the account's current status.
	ErrInvalidAccountState = errors.New("invalid account state for operation")
	// ErrAccountStateChanged is returned by AccountStore.RecordLoginSuccess
	// when the account stopped being ACTIVE and unlocked after the login read
	// it. Login reports the current state instead of issuing tokens.
	ErrAccountStateChanged = errors.New("account state changed during login")
	// ErrUpstreamUnavailable wraps persistence and backend failures.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrLoginRateLimited is an exported constant or variable used by the authentication engine.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrRateLimited is returned by throttled registration and password reset calls.
	ErrRateLimited = errors.New("rate limited")
	// ErrInternal wraps failures with no client-facing cause, such as token
	// signing errors.
	ErrInternal = errors.New("internal error")
	// ErrEngineNotReady is an exported constant or variable used by the authentication engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

func upstream(err error) error {
	return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
}

func internalErr(err error) error {
	return fmt.Errorf("%w: %v", ErrInternal, err)
}

// LoginError is returned by Login for credential and lockout failures. Its
// Error text is safe to show to the end user; errors.Is matches Kind.
type LoginError struct {
	Kind error
	// RemainingAttempts is set while the account is still under the threshold.
	RemainingAttempts int
	// LockedFor is set when the account is locked.
	LockedFor time.Duration
	message   string
}

func (e *LoginError) Error() string {
	if e.message != "" {
		return e.message
	}
	return e.Kind.Error()
}

func (e *LoginError) Unwrap() error { return e.Kind }

func invalidCredentials(remaining int) *LoginError {
	msg := "Invalid credentials"
	if remaining > 0 {
		msg = fmt.Sprintf("Invalid credentials. %d attempt%s remaining", remaining, plural(remaining))
	}
	return &LoginError{Kind: ErrInvalidCredentials, RemainingAttempts: remaining, message: msg}
}

// lockTripped is the response to the failure that locks the account. Its
// kind stays ErrInvalidCredentials so callers see one status code for every
// wrong-password attempt.
func lockTripped(lockedUntil, now time.Time) *LoginError {
	h := lockout.HoursLeft(lockedUntil, now)
	return &LoginError{
		Kind:      ErrInvalidCredentials,
		LockedFor: lockedUntil.Sub(now),
		message:   fmt.Sprintf("Invalid credentials. Account locked for %d hour%s", h, plural(h)),
	}
}

func accountLocked(lockedUntil, now time.Time) *LoginError {
	if lockedUntil.IsZero() {
		return &LoginError{Kind: ErrAccountLocked, message: "Account is locked. Contact an administrator"}
	}
	h := lockout.HoursLeft(lockedUntil, now)
	return &LoginError{
		Kind:      ErrAccountLocked,
		LockedFor: lockedUntil.Sub(now),
		message:   fmt.Sprintf("Account is locked. Try again in %d hour%s", h, plural(h)),
	}
}

func accountInactive(status AccountStatus) *LoginError {
	var msg string
	switch status {
	case StatusPendingApproval:
		msg = "Account is pending approval"
	case StatusSuspended:
		msg = "Account has been suspended"
	default:
		msg = "Account is inactive"
	}
	return &LoginError{Kind: ErrAccountInactive, message: msg}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// WeakPasswordError lists every password rule a candidate violated.
type WeakPasswordError struct {
	Violations []string
}

func (e *WeakPasswordError) Error() string {
	return ErrWeakPassword.Error() + ": " + strings.Join(e.Violations, "; ")
}

func (e *WeakPasswordError) Unwrap() error { return ErrWeakPassword }
