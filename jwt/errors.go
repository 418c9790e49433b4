package jwt

import "errors"

var (
	// ErrTokenInvalid covers malformed tokens, bad signatures, wrong
	// algorithms, wrong issuer or audience, and type mismatches.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired is returned for correctly signed tokens past expiry.
	ErrTokenExpired = errors.New("token expired")
)
