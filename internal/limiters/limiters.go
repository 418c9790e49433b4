package limiters

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/medAuth/internal/rate"
)

// ErrLimited is returned when any throttle rejects the attempt.
var ErrLimited = rate.ErrRateLimited

// IsLimited reports whether err is a throttle rejection rather than a
// backend failure.
func IsLimited(err error) bool {
	return errors.Is(err, rate.ErrRateLimited)
}

// LoginLimiter throttles login attempts per client IP and per identifier.
type LoginLimiter struct {
	byIP         rate.Limiter
	byIdentifier rate.Limiter
}

// NewLoginLimiter builds a login throttle. Either limiter may be nil.
func NewLoginLimiter(byIP, byIdentifier rate.Limiter) *LoginLimiter {
	return &LoginLimiter{byIP: byIP, byIdentifier: byIdentifier}
}

// Check records a login attempt and returns ErrLimited when over budget.
func (l *LoginLimiter) Check(ctx context.Context, identifier, ip string) error {
	if l == nil {
		return nil
	}
	if l.byIP != nil && ip != "" {
		if err := l.byIP.Allow(ctx, "ip:"+ip); err != nil {
			return err
		}
	}
	if l.byIdentifier != nil && identifier != "" {
		if err := l.byIdentifier.Allow(ctx, "id:"+normalize(identifier)); err != nil {
			return err
		}
	}
	return nil
}

// Reset clears the identifier budget after a successful login.
func (l *LoginLimiter) Reset(ctx context.Context, identifier string) error {
	if l == nil || l.byIdentifier == nil || identifier == "" {
		return nil
	}
	return l.byIdentifier.Reset(ctx, "id:"+normalize(identifier))
}

// RegistrationLimiter throttles sign-ups per client IP.
type RegistrationLimiter struct {
	byIP rate.Limiter
}

// NewRegistrationLimiter builds a sign-up throttle.
func NewRegistrationLimiter(byIP rate.Limiter) *RegistrationLimiter {
	return &RegistrationLimiter{byIP: byIP}
}

// Check records a sign-up attempt.
func (l *RegistrationLimiter) Check(ctx context.Context, ip string) error {
	if l == nil || l.byIP == nil || ip == "" {
		return nil
	}
	return l.byIP.Allow(ctx, "reg:"+ip)
}

// PasswordResetLimiter throttles reset requests and confirmations.
type PasswordResetLimiter struct {
	limiter rate.Limiter
}

// NewPasswordResetLimiter builds a reset throttle.
func NewPasswordResetLimiter(limiter rate.Limiter) *PasswordResetLimiter {
	return &PasswordResetLimiter{limiter: limiter}
}

// CheckRequest records a forgot-password request for identifier and ip.
func (l *PasswordResetLimiter) CheckRequest(ctx context.Context, identifier, ip string) error {
	if l == nil || l.limiter == nil {
		return nil
	}
	if identifier != "" {
		if err := l.limiter.Allow(ctx, "req:"+normalize(identifier)); err != nil {
			return err
		}
	}
	if ip != "" {
		if err := l.limiter.Allow(ctx, "reqip:"+ip); err != nil {
			return err
		}
	}
	return nil
}

// CheckConfirm records a reset confirmation attempt from ip.
func (l *PasswordResetLimiter) CheckConfirm(ctx context.Context, ip string) error {
	if l == nil || l.limiter == nil || ip == "" {
		return nil
	}
	return l.limiter.Allow(ctx, "confip:"+ip)
}

func normalize(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
