package medAuth

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. Engine operations
// fall back to it when a request struct leaves IP empty, and audit events
// record it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx for audit events.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

// requestMeta prefers explicit values and falls back to ctx.
func requestMeta(ctx context.Context, ip, userAgent string) RequestMeta {
	if ip == "" {
		ip = clientIPFromContext(ctx)
	}
	if userAgent == "" {
		userAgent = userAgentFromContext(ctx)
	}
	return RequestMeta{IP: ip, UserAgent: userAgent}
}
