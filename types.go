package medAuth

import (
	"context"
	"strings"
	"time"

	"github.com/MrEthical07/medAuth/lockout"
	"github.com/MrEthical07/medAuth/permission"
)

// AccountStatus represents the lifecycle state of an account.
type AccountStatus string

const (
	// StatusActive is the only status allowed to authenticate.
	StatusActive AccountStatus = "ACTIVE"
	// StatusInactive is an exported constant or variable used by the authentication engine.
	StatusInactive AccountStatus = "INACTIVE"
	// StatusSuspended is an exported constant or variable used by the authentication engine.
	StatusSuspended AccountStatus = "SUSPENDED"
	// StatusLocked is set when the lockout threshold trips.
	StatusLocked AccountStatus = "LOCKED"
	// StatusPendingApproval is the initial status of self-registered staff.
	StatusPendingApproval AccountStatus = "PENDING_APPROVAL"
)

// Valid reports whether s is one of the known statuses.
func (s AccountStatus) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended, StatusLocked, StatusPendingApproval:
		return true
	}
	return false
}

// Account is the persisted account record. It never leaves the engine;
// callers receive [PublicAccount] values.
type Account struct {
	ID                  string
	Email               string
	FirstName           string
	LastName            string
	PasswordHash        string
	Role                permission.Role
	Status              AccountStatus
	FailedLoginCount    int
	LockedUntil         time.Time
	LastLoginAt         time.Time
	ResetTokenHash      string
	ResetTokenExpiresAt time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsActive reports Status == ACTIVE.
func (a *Account) IsActive() bool {
	return a != nil && a.Status == StatusActive
}

// LockState returns the lockout-relevant fields.
func (a *Account) LockState() lockout.State {
	return lockout.State{FailedCount: a.FailedLoginCount, LockedUntil: a.LockedUntil}
}

// Sanitize strips the password hash, reset token fields and lockout counters.
func (a *Account) Sanitize() *PublicAccount {
	if a == nil {
		return nil
	}
	out := &PublicAccount{
		ID:        a.ID,
		Email:     a.Email,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Role:      a.Role,
		Status:    a.Status,
		IsActive:  a.IsActive(),
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
	if !a.LastLoginAt.IsZero() {
		t := a.LastLoginAt
		out.LastLoginAt = &t
	}
	return out
}

// PublicAccount is the account view returned to callers.
type PublicAccount struct {
	ID          string          `json:"id"`
	Email       string          `json:"email"`
	FirstName   string          `json:"firstName"`
	LastName    string          `json:"lastName"`
	Role        permission.Role `json:"role"`
	Status      AccountStatus   `json:"status"`
	IsActive    bool            `json:"isActive"`
	LastLoginAt *time.Time      `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Principal is the authenticated caller attached to a request.
type Principal struct {
	ID     string          `json:"id"`
	Email  string          `json:"email"`
	Role   permission.Role `json:"role"`
	Status AccountStatus   `json:"status"`
}

// NormalizeEmail lower-cases and trims an email for lookup and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// AccountStore is the persistence boundary for accounts. Lookups return
// ErrAccountNotFound when nothing matches; Create returns ErrDuplicateEmail
// on a unique violation. Emails passed in are already normalized.
//
// The lockout methods must each be a single atomic operation per account so
// concurrent failures cannot under-count.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	Create(ctx context.Context, acc *Account) error
	SetStatus(ctx context.Context, id string, status AccountStatus, now time.Time) error
	UpdatePassword(ctx context.Context, id, hash string, now time.Time) error

	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt, now time.Time) error
	// GetByResetToken matches only tokens whose expiry is after now.
	GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (*Account, error)
	// CompletePasswordReset stores hash, clears the reset token and lockout
	// state and forces status ACTIVE. It applies only while tokenHash is still
	// the stored reset token and returns ErrAccountNotFound otherwise.
	CompletePasswordReset(ctx context.Context, id, tokenHash, hash string, now time.Time) error

	// RecordLoginFailure applies lockout.RecordFailure; a trip also sets
	// status LOCKED.
	RecordLoginFailure(ctx context.Context, id string, now time.Time, policy lockout.Policy) (lockout.Outcome, error)
	// ClearExpiredLock resets counters and restores ACTIVE when a recorded lock
	// has passed. It reports whether anything was cleared.
	ClearExpiredLock(ctx context.Context, id string, now time.Time) (bool, error)
	// RecordLoginSuccess resets the failure counter and stamps LastLoginAt.
	// It applies only to an ACTIVE account with no lock in force at now and
	// returns ErrAccountStateChanged otherwise.
	RecordLoginSuccess(ctx context.Context, id string, now time.Time) error
	// Unlock resets lockout state and restores ACTIVE for a LOCKED account.
	Unlock(ctx context.Context, id string, now time.Time) error
}

// RevocationStore records revoked refresh tokens. Tokens are identified by
// their jti; "log out everywhere" records a per-account cutoff instead.
type RevocationStore interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	RevokeAllBefore(ctx context.Context, accountID string, cutoff time.Time, ttl time.Duration) error
	// RevokedBefore returns the cutoff, or the zero time when none is set.
	RevokedBefore(ctx context.Context, accountID string) (time.Time, error)
}

//go:generate mockgen -source=types.go -destination=internal/mocks/notifier.go -package=mocks Notifier

// Notifier delivers account notifications. Calls run off the request path;
// returned errors are logged, never propagated.
type Notifier interface {
	SendWelcome(ctx context.Context, acc PublicAccount) error
	SendPasswordReset(ctx context.Context, acc PublicAccount, token string, expiresAt time.Time) error
	SendPasswordChanged(ctx context.Context, acc PublicAccount) error
}

// RequestMeta carries client details recorded in audit events.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// LoginRequest is the input to [Engine.Login].
type LoginRequest struct {
	Email     string
	Password  string
	IP        string
	UserAgent string
}

// TokenPair is issued on successful login.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64  `json:"expiresIn"`
	TokenType string `json:"tokenType"`
	// SessionID identifies the refresh token for targeted logout.
	SessionID string `json:"sessionId"`
}

// LoginResult is returned by [Engine.Login].
type LoginResult struct {
	Account *PublicAccount `json:"user"`
	Tokens  TokenPair      `json:"tokens"`
}

// RefreshResult is returned by [Engine.RefreshToken].
type RefreshResult struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
	TokenType   string `json:"tokenType"`
}

// LogoutRequest is the input to [Engine.Logout]. With neither RefreshToken nor
// SessionID every refresh token of the account is revoked.
type LogoutRequest struct {
	AccountID    string
	RefreshToken string
	SessionID    string
	IP           string
	UserAgent    string
}

// RegisterRequest is the input to [Engine.RegisterUser]. A zero Role means
// PATIENT.
type RegisterRequest struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      permission.Role
	IP        string
	UserAgent string
}

const tokenTypeBearer = "Bearer"

// ForgotPasswordMessage is returned by ForgotPassword whether or not the
// account exists.
const ForgotPasswordMessage = "If an account with that email exists, password reset instructions have been sent"
