// Package metrics counts authentication operations with OpenTelemetry
// instruments and serves them in Prometheus text exposition format.
package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/dmitrijs2005/sso"

// Outcome values recorded with each operation.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

// latencyBounds are in seconds; password hashing dominates.
var latencyBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// Metrics owns a private MeterProvider backed by a ManualReader, so the
// /metrics handler collects on demand.
type Metrics struct {
	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider
	meter    metric.Meter

	operations metric.Int64Counter
	latency    metric.Float64Histogram
}

func New() (*Metrics, error) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithView(sdkmetric.NewView(
			sdkmetric.Instrument{Name: "sso_operation_duration_seconds"},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: latencyBounds}},
		)),
	)
	meter := provider.Meter(meterName)

	ops, err := meter.Int64Counter("sso_operations_total",
		metric.WithDescription("Authentication operations by operation and outcome."))
	if err != nil {
		return nil, fmt.Errorf("create operations counter: %w", err)
	}
	lat, err := meter.Float64Histogram("sso_operation_duration_seconds",
		metric.WithDescription("Authentication operation latency."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create latency histogram: %w", err)
	}

	return &Metrics{
		reader:     reader,
		provider:   provider,
		meter:      meter,
		operations: ops,
		latency:    lat,
	}, nil
}

// Record counts one operation. A nil *Metrics records nothing.
func (m *Metrics) Record(ctx context.Context, operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
	m.latency.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("operation", operation),
	))
}

// ObserveAuditDropped exports the audit dispatcher's dropped-event count.
func (m *Metrics) ObserveAuditDropped(dropped func() uint64) error {
	counter, err := m.meter.Int64ObservableCounter("sso_audit_dropped_total",
		metric.WithDescription("Dropped audit events due to dispatcher backpressure."))
	if err != nil {
		return fmt.Errorf("create audit dropped counter: %w", err)
	}
	_, err = m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(counter, int64(dropped()))
		return nil
	}, counter)
	if err != nil {
		return fmt.Errorf("register callback: %w", err)
	}
	return nil
}

func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
