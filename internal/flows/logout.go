package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/medAuth/jwt"
)

// LogoutScope says what a logout revoked.
type LogoutScope int

const (
	LogoutNothing LogoutScope = iota
	LogoutToken
	LogoutSession
	LogoutAll
)

// LogoutInput names the account and, optionally, the refresh token or session
// to end.
type LogoutInput struct {
	AccountID    string
	RefreshToken string
	SessionID    string
}

// LogoutOutcome reports the effective scope. Err is set when the revocation
// store failed; logout itself never fails.
type LogoutOutcome struct {
	Scope     LogoutScope
	AccountID string
	SessionID string
	Err       error
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Now             func() time.Time
	RefreshTTL      time.Duration
	VerifyRefresh   func(token string) (*jwt.Claims, error)
	RevokeToken     func(ctx context.Context, jti string, ttl time.Duration) error
	RevokeAllBefore func(ctx context.Context, accountID string, cutoff time.Time, ttl time.Duration) error
}

// RunLogout revokes the supplied refresh token or session id, or every
// refresh token of the account when neither is given. A refresh token that
// fails verification or belongs to another account revokes nothing.
func RunLogout(ctx context.Context, in LogoutInput, deps LogoutDeps) LogoutOutcome {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	now := deps.Now()
	out := LogoutOutcome{AccountID: in.AccountID}

	switch {
	case in.RefreshToken != "":
		claims, err := deps.VerifyRefresh(in.RefreshToken)
		if err != nil {
			return out
		}
		if in.AccountID != "" && claims.Subject != in.AccountID {
			return out
		}
		out.AccountID = claims.Subject
		out.SessionID = claims.ID
		ttl := deps.RefreshTTL
		if claims.ExpiresAt != nil {
			ttl = claims.ExpiresAt.Time.Sub(now)
		}
		if ttl <= 0 {
			return out
		}
		out.Scope = LogoutToken
		out.Err = deps.RevokeToken(ctx, claims.ID, ttl)
	case in.SessionID != "":
		out.Scope = LogoutSession
		out.SessionID = in.SessionID
		out.Err = deps.RevokeToken(ctx, in.SessionID, deps.RefreshTTL)
	case in.AccountID != "":
		out.Scope = LogoutAll
		out.Err = deps.RevokeAllBefore(ctx, in.AccountID, now, deps.RefreshTTL)
	}
	return out
}
