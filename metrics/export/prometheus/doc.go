// Package prometheus exposes engine metrics as a prometheus.Collector.
//
// [NewExporter] reads [medAuth.Engine.MetricsSnapshot] on each scrape. Counter
// names are prefixed medauth_ and end in _total; the single histogram is
// medauth_authenticate_latency_seconds. Callers either register the Exporter
// in their own registry or mount [Exporter.Handler].
package prometheus
