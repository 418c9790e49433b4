package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/MrEthical07/medAuth"
)

type fakeSource struct {
	snapshot      medAuth.MetricsSnapshot
	dropped       uint64
	notifyDropped uint64
}

func (f fakeSource) MetricsSnapshot() medAuth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                     { return f.dropped }
func (f fakeSource) NotificationsDropped() uint64             { return f.notifyDropped }

func TestCollectEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: medAuth.MetricsSnapshot{
			Counters:   map[medAuth.MetricID]uint64{},
			Histograms: map[medAuth.MetricID][]uint64{},
		},
	})

	if got := testutil.CollectAndCount(exp); got != 0 {
		t.Fatalf("expected no series for disabled metrics, got %d", got)
	}
}

func TestCollectCountersAndHistogram(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: medAuth.MetricsSnapshot{
			Counters: map[medAuth.MetricID]uint64{
				medAuth.MetricLoginSuccess:    7,
				medAuth.MetricEmergencyAccess: 2,
			},
			Histograms: map[medAuth.MetricID][]uint64{
				medAuth.MetricAuthenticateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped:       2,
		notifyDropped: 4,
	})

	expected := `
# HELP medauth_emergency_access_total Patient-data access granted through the emergency override.
# TYPE medauth_emergency_access_total counter
medauth_emergency_access_total 2
# HELP medauth_audit_dropped_total Dropped audit events due to dispatcher backpressure.
# TYPE medauth_audit_dropped_total counter
medauth_audit_dropped_total 2
# HELP medauth_notifications_dropped_total Notifications dropped because the delivery queue was full.
# TYPE medauth_notifications_dropped_total counter
medauth_notifications_dropped_total 4
`
	if err := testutil.CollectAndCompare(exp, strings.NewReader(expected),
		"medauth_emergency_access_total", "medauth_audit_dropped_total", "medauth_notifications_dropped_total"); err != nil {
		t.Fatal(err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(exp)
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var found bool
	for _, mf := range families {
		if mf.GetName() != "medauth_authenticate_latency_seconds" {
			continue
		}
		found = true
		h := mf.GetMetric()[0].GetHistogram()
		if h.GetSampleCount() != 36 {
			t.Fatalf("sample count = %d, want 36", h.GetSampleCount())
		}
		if first := h.GetBucket()[0]; first.GetUpperBound() != 0.005 || first.GetCumulativeCount() != 1 {
			t.Fatalf("unexpected first bucket %v", first)
		}
	}
	if !found {
		t.Fatal("latency histogram not exported")
	}
}

func TestHandlerServesEngineMetrics(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: medAuth.MetricsSnapshot{
			Counters:   map[medAuth.MetricID]uint64{medAuth.MetricLoginSuccess: 1},
			Histograms: map[medAuth.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "medauth_login_success_total 1") {
		t.Fatalf("login counter missing:\n%s", rec.Body.String())
	}
}

func BenchmarkCollect(b *testing.B) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: medAuth.MetricsSnapshot{
			Counters: map[medAuth.MetricID]uint64{
				medAuth.MetricLoginSuccess:                1000,
				medAuth.MetricLoginFailure:                40,
				medAuth.MetricRefreshSuccess:              800,
				medAuth.MetricRefreshFailure:              10,
				medAuth.MetricLogout:                      800,
				medAuth.MetricPasswordResetConfirmFailure: 3,
			},
			Histograms: map[medAuth.MetricID][]uint64{
				medAuth.MetricAuthenticateLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = testutil.CollectAndCount(exp)
	}
}
