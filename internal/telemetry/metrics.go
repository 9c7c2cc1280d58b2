package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/fluxkit/accountvendor"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Worker metrics
	TicksTotal          metric.Int64Counter
	TickDuration        metric.Float64Histogram
	TransitionsTotal    metric.Int64Counter
	RequestsFailedTotal metric.Int64Counter
	StuckRequestsTotal  metric.Int64Counter

	// External client metrics
	OrgCallsTotal       metric.Int64Counter
	GuardrailCallsTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.TicksTotal, _ = meter.Int64Counter(
		"accountvendor.worker.ticks.total",
		metric.WithDescription("Total number of reconciliation ticks"),
		metric.WithUnit("{tick}"),
	)

	m.TickDuration, _ = meter.Float64Histogram(
		"accountvendor.worker.tick.duration",
		metric.WithDescription("Duration of a reconciliation tick"),
		metric.WithUnit("ms"),
	)

	m.TransitionsTotal, _ = meter.Int64Counter(
		"accountvendor.worker.transitions.total",
		metric.WithDescription("Total number of request status transitions"),
		metric.WithUnit("{transition}"),
	)

	m.RequestsFailedTotal, _ = meter.Int64Counter(
		"accountvendor.worker.requests_failed.total",
		metric.WithDescription("Total number of requests moved to FAILED"),
		metric.WithUnit("{request}"),
	)

	m.StuckRequestsTotal, _ = meter.Int64Counter(
		"accountvendor.worker.stuck_requests.total",
		metric.WithDescription("Total number of requests skipped due to missing provisioning metadata"),
		metric.WithUnit("{request}"),
	)

	m.OrgCallsTotal, _ = meter.Int64Counter(
		"accountvendor.orgs.calls.total",
		metric.WithDescription("Total number of organization client calls"),
		metric.WithUnit("{call}"),
	)

	m.GuardrailCallsTotal, _ = meter.Int64Counter(
		"accountvendor.guardrail.calls.total",
		metric.WithDescription("Total number of guardrail client calls"),
		metric.WithUnit("{call}"),
	)

	return m
}
