package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/medAuth/jwt"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureInvalid
	RefreshFailureExpired
	RefreshFailureRevoked
	RefreshFailureAccountGone
	RefreshFailureAccountInactive
	RefreshFailureUpstream
	RefreshFailureIssueAccess
)

// RefreshOutcome carries either the new access token or failure metadata.
type RefreshOutcome struct {
	Failure     RefreshFailureKind
	Err         error
	Claims      *jwt.Claims
	Account     Account
	AccessToken string
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	VerifyRefresh func(token string) (*jwt.Claims, error)
	Revocation    RevocationDeps
	LoadAccount   func(ctx context.Context, id string) (Account, error)
	IsNotFound    func(error) bool
	// SignAccess mints an access token carrying the live role's permissions.
	SignAccess func(Account) (string, error)
}

// RunRefresh verifies a refresh token, re-reads the live account and mints a
// new access token from its current role.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshOutcome {
	claims, err := deps.VerifyRefresh(refreshToken)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return RefreshOutcome{Failure: RefreshFailureExpired, Err: err}
		}
		return RefreshOutcome{Failure: RefreshFailureInvalid, Err: err}
	}
	out := RefreshOutcome{Claims: claims}

	revoked, err := checkRevoked(ctx, claims, deps.Revocation)
	if err != nil {
		out.Failure, out.Err = RefreshFailureUpstream, err
		return out
	}
	if revoked {
		out.Failure = RefreshFailureRevoked
		return out
	}

	acc, err := deps.LoadAccount(ctx, claims.Subject)
	if err != nil {
		if deps.IsNotFound(err) {
			out.Failure = RefreshFailureAccountGone
			return out
		}
		out.Failure, out.Err = RefreshFailureUpstream, err
		return out
	}
	out.Account = acc
	if !acc.Active() {
		out.Failure = RefreshFailureAccountInactive
		return out
	}

	token, err := deps.SignAccess(acc)
	if err != nil {
		out.Failure, out.Err = RefreshFailureIssueAccess, err
		return out
	}
	out.AccessToken = token
	return out
}
