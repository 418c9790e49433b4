package medAuth

import (
	"time"

	"github.com/MrEthical07/medAuth/permission"
)

// SecurityReport summarizes the security posture of a built Engine. It holds
// no secrets and is safe to log at startup.
type SecurityReport struct {
	SigningAlgorithm   string
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	SeparateSecrets    bool
	BcryptCost         int
	LockoutAttempts    int
	LockoutDuration    time.Duration
	ResetTokenTTL      time.Duration
	RateLimitingActive bool
	// DistributedLimits is true when rate limit windows live in Redis and are
	// shared between replicas.
	DistributedLimits  bool
	AuditActive        bool
	NotifierActive     bool
	Roles              int
	Permissions        int
}

// SecurityReport returns the posture of e. A nil Engine reports zero values.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	report := SecurityReport{
		SigningAlgorithm:   "HS256",
		AccessTTL:          e.config.JWT.AccessTTL,
		RefreshTTL:         e.config.JWT.RefreshTTL,
		SeparateSecrets:    e.config.JWT.AccessSecret != e.config.JWT.RefreshSecret,
		BcryptCost:         e.hasher.Cost(),
		LockoutAttempts:    e.config.Lockout.MaxAttempts,
		LockoutDuration:    e.config.Lockout.Duration,
		ResetTokenTTL:      e.config.Reset.TokenTTL,
		RateLimitingActive: e.loginLimiter != nil,
		DistributedLimits:  e.loginLimiter != nil && e.distributedLimits,
		AuditActive:        e.config.Audit.Enabled,
		NotifierActive:     e.notifier != nil,
		Roles:              len(permission.Roles()),
	}
	if e.catalog != nil {
		report.Permissions = len(e.catalog.Permissions())
	}
	return report
}
