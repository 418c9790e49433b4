package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/medAuth"
)

type principalContextKey struct{}
type emergencyContextKey struct{}

// Gate inspects an authenticated request. It returns the request to pass on,
// possibly enriched, or an error that stops the chain.
type Gate func(r *http.Request, p medAuth.Principal) (*http.Request, error)

// PrincipalFrom returns the principal attached by Authenticate.
func PrincipalFrom(ctx context.Context) (medAuth.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(medAuth.Principal)
	return p, ok
}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p medAuth.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// IsEmergency reports whether RequirePatientDataAccess granted the request
// through the emergency override.
func IsEmergency(ctx context.Context) bool {
	v, _ := ctx.Value(emergencyContextKey{}).(bool)
	return v
}

// Authenticate rejects requests without a valid bearer access token for an
// existing ACTIVE account.
func Authenticate(engine *medAuth.Engine) func(http.Handler) http.Handler {
	return Protect(engine)
}

// Protect authenticates the request and then applies gates in order.
func Protect(engine *medAuth.Engine, gates ...Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteError(w, medAuth.ErrEngineNotReady)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				WriteError(w, medAuth.ErrNoToken)
				return
			}

			ctx := medAuth.WithUserAgent(medAuth.WithClientIP(r.Context(), clientIP(r)), r.UserAgent())
			p, err := engine.Authenticate(ctx, token)
			if err != nil {
				WriteError(w, err)
				return
			}

			r = r.WithContext(WithPrincipal(ctx, *p))
			for _, gate := range gates {
				r, err = gate(r, *p)
				if err != nil {
					WriteError(w, err)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Optional attaches a principal when the request carries a bearer token and
// passes anonymous requests through unchanged. A present but invalid token is
// still rejected.
func Optional(engine *medAuth.Engine) func(http.Handler) http.Handler {
	protect := Protect(engine)
	return func(next http.Handler) http.Handler {
		guarded := protect(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}
			guarded.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the host part of r.RemoteAddr.
func ClientIP(r *http.Request) string {
	return clientIP(r)
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

// clientIP prefers the address chi's RealIP middleware leaves in RemoteAddr.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
