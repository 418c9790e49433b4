package medAuth_test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/medAuth"
)

func TestSecurityReportDefaults(t *testing.T) {
	h := newHarness(t)

	r := h.engine.SecurityReport()
	if r.SigningAlgorithm != "HS256" || !r.SeparateSecrets {
		t.Fatalf("signing posture: %+v", r)
	}
	if r.AccessTTL != 15*time.Minute || r.RefreshTTL != 7*24*time.Hour {
		t.Fatalf("ttls: %s %s", r.AccessTTL, r.RefreshTTL)
	}
	if r.BcryptCost != 4 || r.LockoutAttempts != 5 || r.ResetTokenTTL != time.Hour {
		t.Fatalf("credential posture: %+v", r)
	}
	if r.RateLimitingActive || r.DistributedLimits || r.NotifierActive {
		t.Fatalf("optional features reported active: %+v", r)
	}
	if !r.AuditActive || r.Roles != 9 || r.Permissions == 0 {
		t.Fatalf("audit/catalog posture: %+v", r)
	}
}

func TestSecurityReportDistributedLimits(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := newHarness(t,
		withConfig(func(cfg *medAuth.Config) { cfg.RateLimit.Enabled = true }),
		func(b *medAuth.Builder, _ *medAuth.Config) { b.WithRedis(rdb) },
	)

	r := h.engine.SecurityReport()
	if !r.RateLimitingActive || !r.DistributedLimits {
		t.Fatalf("expected redis-backed limits: %+v", r)
	}
}

func TestSecurityReportNilEngine(t *testing.T) {
	var e *medAuth.Engine
	if r := e.SecurityReport(); r != (medAuth.SecurityReport{}) {
		t.Fatalf("nil engine report = %+v", r)
	}
}
