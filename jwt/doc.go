// Package jwt issues and verifies the engine's access and refresh tokens.
//
// Access and refresh tokens are HS256 JWTs signed with distinct secrets and
// carry a "type" claim, so a refresh token is never accepted where an access
// token is expected. Verification performs no I/O.
package jwt
