package internaldefs

import (
	"github.com/MrEthical07/medAuth"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   medAuth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram.
type HistogramDef struct {
	ID   medAuth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: medAuth.MetricLoginSuccess, Name: "medauth_login_success_total", Help: "Successful login attempts."},
	{ID: medAuth.MetricLoginFailure, Name: "medauth_login_failure_total", Help: "Failed login attempts."},
	{ID: medAuth.MetricLoginLocked, Name: "medauth_login_locked_total", Help: "Login attempts rejected by or tripping an account lock."},
	{ID: medAuth.MetricLoginRateLimited, Name: "medauth_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: medAuth.MetricRefreshSuccess, Name: "medauth_refresh_success_total", Help: "Successful refresh operations."},
	{ID: medAuth.MetricRefreshFailure, Name: "medauth_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: medAuth.MetricLogout, Name: "medauth_logout_total", Help: "Single-session logout operations."},
	{ID: medAuth.MetricLogoutAll, Name: "medauth_logout_all_total", Help: "Logout-all operations."},
	{ID: medAuth.MetricRegistrationSuccess, Name: "medauth_registration_success_total", Help: "Successful account registrations."},
	{ID: medAuth.MetricRegistrationDuplicate, Name: "medauth_registration_duplicate_total", Help: "Registrations rejected as duplicate email."},
	{ID: medAuth.MetricRegistrationRejected, Name: "medauth_registration_rejected_total", Help: "Registrations refused by role, permission or password policy."},
	{ID: medAuth.MetricPasswordResetRequest, Name: "medauth_password_reset_request_total", Help: "Password reset requests."},
	{ID: medAuth.MetricPasswordResetConfirmSuccess, Name: "medauth_password_reset_confirm_success_total", Help: "Successful password reset confirmations."},
	{ID: medAuth.MetricPasswordResetConfirmFailure, Name: "medauth_password_reset_confirm_failure_total", Help: "Failed password reset confirmations."},
	{ID: medAuth.MetricPasswordChangeSuccess, Name: "medauth_password_change_success_total", Help: "Successful password changes."},
	{ID: medAuth.MetricPasswordChangeFailure, Name: "medauth_password_change_failure_total", Help: "Failed password changes."},
	{ID: medAuth.MetricAccountStatusChange, Name: "medauth_account_status_change_total", Help: "Administrative account status transitions."},
	{ID: medAuth.MetricEmergencyAccess, Name: "medauth_emergency_access_total", Help: "Patient-data access granted through the emergency override."},
	{ID: medAuth.MetricAuthorizationDenied, Name: "medauth_authorization_denied_total", Help: "Denied patient-data decisions."},
	{ID: medAuth.MetricUpstreamUnavailable, Name: "medauth_upstream_unavailable_total", Help: "Operations failed by an unavailable store."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: medAuth.MetricAuthenticateLatency, Name: "medauth_authenticate_latency_seconds", Help: "Access token authentication latency."},
}

// AuditDroppedName is the counter for events lost to dispatcher backpressure.
const AuditDroppedName = "medauth_audit_dropped_total"

// NotificationsDroppedName is the counter for notices lost to a full
// notification queue.
const NotificationsDroppedName = "medauth_notifications_dropped_total"

// HistogramUpperBounds are the finite bucket bounds in seconds. The engine
// keeps one further +Inf bucket.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// flatten buckets into gauges.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed eight-bucket array.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
