package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/medAuth/jwt"
)

// AuthenticateFailureKind classifies bearer-token authentication failures.
type AuthenticateFailureKind int

const (
	AuthenticateFailureNone AuthenticateFailureKind = iota
	AuthenticateFailureNoToken
	AuthenticateFailureInvalid
	AuthenticateFailureExpired
	AuthenticateFailureRevoked
	AuthenticateFailureNotFound
	AuthenticateFailureInactive
	AuthenticateFailureUpstream
)

// AuthenticateOutcome carries the live account or the failure.
type AuthenticateOutcome struct {
	Failure AuthenticateFailureKind
	Err     error
	Claims  *jwt.Claims
	Account Account
}

// AuthenticateDeps captures access-token validation dependencies.
type AuthenticateDeps struct {
	VerifyAccess func(token string) (*jwt.Claims, error)
	Revocation   RevocationDeps
	LoadAccount  func(ctx context.Context, id string) (Account, error)
	IsNotFound   func(error) bool
}

// RunAuthenticate verifies an access token and re-loads the account it names.
// The token is never the sole source of account state.
func RunAuthenticate(ctx context.Context, accessToken string, deps AuthenticateDeps) AuthenticateOutcome {
	if accessToken == "" {
		return AuthenticateOutcome{Failure: AuthenticateFailureNoToken}
	}
	claims, err := deps.VerifyAccess(accessToken)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return AuthenticateOutcome{Failure: AuthenticateFailureExpired, Err: err}
		}
		return AuthenticateOutcome{Failure: AuthenticateFailureInvalid, Err: err}
	}
	out := AuthenticateOutcome{Claims: claims}

	// Only the account-wide cutoff applies; access tokens are not revoked
	// individually.
	revoked, err := checkRevoked(ctx, claims, RevocationDeps{RevokedBefore: deps.Revocation.RevokedBefore})
	if err != nil {
		out.Failure, out.Err = AuthenticateFailureUpstream, err
		return out
	}
	if revoked {
		out.Failure = AuthenticateFailureRevoked
		return out
	}

	acc, err := deps.LoadAccount(ctx, claims.Subject)
	if err != nil {
		if deps.IsNotFound(err) {
			out.Failure = AuthenticateFailureNotFound
			return out
		}
		out.Failure, out.Err = AuthenticateFailureUpstream, err
		return out
	}
	out.Account = acc
	if !acc.Active() {
		out.Failure = AuthenticateFailureInactive
	}
	return out
}
