package otel

import (
	"context"
	"errors"
	"fmt"

	stepauth "github.com/nvidela/stepauth"
	"github.com/nvidela/stepauth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() stepauth.MetricsSnapshot
	AuditDropped() uint64
}

// boundCounter ties a core counter ID to its registered instrument.
type boundCounter struct {
	id stepauth.MetricID
	ob metric.Int64ObservableCounter
}

// boundHistogram holds one gauge per cumulative bucket plus the sample
// count for a core histogram.
type boundHistogram struct {
	id      stepauth.MetricID
	buckets [8]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// OTelExporter publishes core counters and histograms through an OTel
// Meter. A single callback reads one snapshot per collection cycle, so
// every instrument observes a consistent point in time.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	counters     []boundCounter
	histograms   []boundHistogram
	auditDropped metric.Int64ObservableCounter
}

// NewOTelExporter registers instruments for every core metric on the
// given meter, reading from the given [stepauth.Core].
func NewOTelExporter(meter metric.Meter, core *stepauth.Core) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, core)
}

// NewOTelExporterFromSource registers instruments reading from a custom
// metrics source.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}

	var observables []metric.Observable
	var err error

	if observables, err = e.bindCounters(meter, observables); err != nil {
		return nil, err
	}
	if observables, err = e.bindHistograms(meter, observables); err != nil {
		return nil, err
	}

	e.auditDropped, err = meter.Int64ObservableCounter(
		"stepauth_audit_dropped_total",
		metric.WithDescription("Dropped audit events due to dispatcher backpressure."),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	observables = append(observables, e.auditDropped)

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *OTelExporter) bindCounters(meter metric.Meter, observables []metric.Observable) ([]metric.Observable, error) {
	e.counters = make([]boundCounter, 0, len(internaldefs.CounterDefs))
	for _, def := range internaldefs.CounterDefs {
		ob, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		e.counters = append(e.counters, boundCounter{id: def.ID, ob: ob})
		observables = append(observables, ob)
	}
	return observables, nil
}

func (e *OTelExporter) bindHistograms(meter metric.Meter, observables []metric.Observable) ([]metric.Observable, error) {
	e.histograms = make([]boundHistogram, 0, len(internaldefs.HistogramDefs))
	for _, def := range internaldefs.HistogramDefs {
		h := boundHistogram{id: def.ID}
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			name := def.Name + "_bucket_le_" + suffix
			ob, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative histogram bucket count."))
			if err != nil {
				return nil, fmt.Errorf("create histogram bucket gauge %s: %w", name, err)
			}
			h.buckets[i] = ob
			observables = append(observables, ob)
		}

		var err error
		h.count, err = meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription("Histogram total sample count."))
		if err != nil {
			return nil, fmt.Errorf("create histogram count gauge %s_count: %w", def.Name, err)
		}
		observables = append(observables, h.count)
		e.histograms = append(e.histograms, h)
	}
	return observables, nil
}

// observe is the registered collection callback.
func (e *OTelExporter) observe(_ context.Context, observer metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()

	for _, c := range e.counters {
		observer.ObserveInt64(c.ob, int64(snapshot.Counters[c.id]))
	}
	for _, h := range e.histograms {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[h.id]))
		for i, v := range cumulative {
			observer.ObserveInt64(h.buckets[i], int64(v))
		}
		observer.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}
	observer.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
