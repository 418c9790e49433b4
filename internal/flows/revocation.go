package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/medAuth/jwt"
)

// RevocationDeps reads the revocation store. Either function may be nil.
type RevocationDeps struct {
	IsRevoked     func(ctx context.Context, jti string) (bool, error)
	RevokedBefore func(ctx context.Context, accountID string) (time.Time, error)
}

// checkRevoked reports whether claims were revoked individually or by an
// account-wide cutoff. A token issued in the same second as the cutoff counts
// as revoked.
func checkRevoked(ctx context.Context, claims *jwt.Claims, deps RevocationDeps) (bool, error) {
	if deps.IsRevoked != nil && claims.ID != "" {
		revoked, err := deps.IsRevoked(ctx, claims.ID)
		if err != nil || revoked {
			return revoked, err
		}
	}
	if deps.RevokedBefore != nil {
		cutoff, err := deps.RevokedBefore(ctx, claims.Subject)
		if err != nil {
			return false, err
		}
		if !cutoff.IsZero() && claims.IssuedAt != nil && !claims.IssuedAt.Time.After(cutoff) {
			return true, nil
		}
	}
	return false, nil
}
