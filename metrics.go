package medAuth

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter or histogram.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts wrong passwords and unknown emails.
	MetricLoginFailure
	// MetricLoginLocked counts attempts rejected because the account is locked
	// and failures that trip a lock.
	MetricLoginLocked
	MetricLoginRateLimited
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricLogout
	// MetricLogoutAll counts logouts that revoked every refresh token of an account.
	MetricLogoutAll
	MetricRegistrationSuccess
	MetricRegistrationDuplicate
	// MetricRegistrationRejected counts registrations refused for role,
	// permission or password policy.
	MetricRegistrationRejected
	MetricPasswordResetRequest
	MetricPasswordResetConfirmSuccess
	MetricPasswordResetConfirmFailure
	MetricPasswordChangeSuccess
	MetricPasswordChangeFailure
	// MetricAccountStatusChange counts approve, suspend, deactivate and unlock.
	MetricAccountStatusChange
	// MetricEmergencyAccess counts patient-data decisions granted through the
	// emergency override.
	MetricEmergencyAccess
	// MetricAuthorizationDenied counts gate and patient-data denials.
	MetricAuthorizationDenied
	// MetricUpstreamUnavailable counts store failures surfaced as ErrUpstreamUnavailable.
	MetricUpstreamUnavailable
	// MetricAuthenticateLatency is the only histogram; it records
	// Engine.Authenticate duration.
	MetricAuthenticateLatency
	metricIDCount
)

const cacheLineSize = 64

// latencyBoundsMs are the inclusive upper bounds of the latency buckets. The
// last bucket is unbounded.
var latencyBoundsMs = [...]int64{5, 10, 25, 50, 100, 250, 500}

const histBucketCount = len(latencyBoundsMs) + 1

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free engine counters. A disabled or nil Metrics ignores
// every update.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters. Histograms holds
// per-bucket (non-cumulative) counts.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns counters configured by cfg. Latency histograms require
// cfg.Enabled as well.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter id. Unknown ids are ignored.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram for id. Only MetricAuthenticateLatency
// has a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricAuthenticateLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

// Value returns the current count for id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter, and the latency histogram when enabled.
// A disabled Metrics yields empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricAuthenticateLatency].buckets[i])
		}
		s.Histograms[MetricAuthenticateLatency] = buckets
	}
	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()
	for i, bound := range latencyBoundsMs {
		if ms <= bound {
			return i
		}
	}
	return len(latencyBoundsMs)
}
