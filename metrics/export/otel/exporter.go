package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrEthical07/medAuth"
	"github.com/MrEthical07/medAuth/metrics/export/internaldefs"
)

// Constructor errors.
var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() medAuth.MetricsSnapshot
	AuditDropped() uint64
	NotificationsDropped() uint64
}

type observedCounter struct {
	id         medAuth.MetricID
	instrument metric.Int64ObservableCounter
}

// observedHistogram mirrors one engine histogram as cumulative bucket gauges
// plus a total count gauge.
type observedHistogram struct {
	id      medAuth.MetricID
	buckets []metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// Exporter publishes engine metrics as OTel observable instruments. One
// callback reads a snapshot per collection.
type Exporter struct {
	source        metricsSource
	registration  metric.Registration
	counters      []observedCounter
	histograms    []observedHistogram
	auditDropped  metric.Int64ObservableCounter
	notifyDropped metric.Int64ObservableCounter

	observables []metric.Observable
}

// NewExporter registers instruments for engine on meter.
func NewExporter(meter metric.Meter, engine *medAuth.Engine) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewExporterFromSource(meter, engine)
}

// NewExporterFromSource registers instruments for any snapshot source.
func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source}
	if err := e.registerCounters(meter); err != nil {
		return nil, err
	}
	for _, def := range internaldefs.HistogramDefs {
		if err := e.registerHistogram(meter, def); err != nil {
			return nil, err
		}
	}

	var err error
	e.auditDropped, err = e.counter(meter, internaldefs.AuditDroppedName, "Dropped audit events due to dispatcher backpressure.")
	if err != nil {
		return nil, err
	}
	e.notifyDropped, err = e.counter(meter, internaldefs.NotificationsDroppedName, "Notifications dropped because the delivery queue was full.")
	if err != nil {
		return nil, err
	}

	e.registration, err = meter.RegisterCallback(e.observe, e.observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *Exporter) counter(meter metric.Meter, name, help string) (metric.Int64ObservableCounter, error) {
	ins, err := meter.Int64ObservableCounter(name, metric.WithDescription(help))
	if err != nil {
		return nil, fmt.Errorf("create observable counter %s: %w", name, err)
	}
	e.observables = append(e.observables, ins)
	return ins, nil
}

func (e *Exporter) gauge(meter metric.Meter, name, help string) (metric.Int64ObservableGauge, error) {
	ins, err := meter.Int64ObservableGauge(name, metric.WithDescription(help))
	if err != nil {
		return nil, fmt.Errorf("create observable gauge %s: %w", name, err)
	}
	e.observables = append(e.observables, ins)
	return ins, nil
}

func (e *Exporter) registerCounters(meter metric.Meter) error {
	e.counters = make([]observedCounter, 0, len(internaldefs.CounterDefs))
	for _, def := range internaldefs.CounterDefs {
		ins, err := e.counter(meter, def.Name, def.Help)
		if err != nil {
			return err
		}
		e.counters = append(e.counters, observedCounter{id: def.ID, instrument: ins})
	}
	return nil
}

func (e *Exporter) registerHistogram(meter metric.Meter, def internaldefs.HistogramDef) error {
	h := observedHistogram{
		id:      def.ID,
		buckets: make([]metric.Int64ObservableGauge, len(internaldefs.HistogramBoundSuffix)),
	}
	for i, suffix := range internaldefs.HistogramBoundSuffix {
		ins, err := e.gauge(meter, def.Name+"_bucket_le_"+suffix, "Cumulative histogram bucket count.")
		if err != nil {
			return err
		}
		h.buckets[i] = ins
	}
	count, err := e.gauge(meter, def.Name+"_count", "Histogram total sample count.")
	if err != nil {
		return err
	}
	h.count = count
	e.histograms = append(e.histograms, h)
	return nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, c := range e.counters {
		o.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
	}
	for _, h := range e.histograms {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[h.id]))
		for i, ins := range h.buckets {
			o.ObserveInt64(ins, int64(cumulative[i]))
		}
		o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	o.ObserveInt64(e.notifyDropped, int64(e.source.NotificationsDropped()))
	return nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
