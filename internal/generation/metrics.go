package generation

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "vidgen/internal/generation"

// Metrics holds the orchestrator's OpenTelemetry instruments. Without a
// configured MeterProvider every instrument is a noop.
type Metrics struct {
	submissions     metric.Int64Counter
	rateLimited     metric.Int64Counter
	callbacks       metric.Int64Counter
	refunds         metric.Int64Counter
	reconciled      metric.Int64Counter
	providerLatency metric.Float64Histogram
}

// NewMetrics creates instruments on meter, or on the global provider when
// meter is nil.
func NewMetrics(meter metric.Meter) *Metrics {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	// Instrument constructors return noop instruments alongside any error.
	submissions, _ := meter.Int64Counter("vidgen.jobs.submissions",
		metric.WithDescription("Submission attempts by outcome"),
		metric.WithUnit("{submission}"))
	rateLimited, _ := meter.Int64Counter("vidgen.ratelimit.denied",
		metric.WithDescription("Submissions denied by the rate limiter"),
		metric.WithUnit("{request}"))
	callbacks, _ := meter.Int64Counter("vidgen.callbacks",
		metric.WithDescription("Provider callbacks by outcome"),
		metric.WithUnit("{callback}"))
	refunds, _ := meter.Int64Counter("vidgen.credits.refunds",
		metric.WithDescription("Refund rows written"),
		metric.WithUnit("{refund}"))
	reconciled, _ := meter.Int64Counter("vidgen.reconciler.actions",
		metric.WithDescription("Jobs changed by the reconciler by action"),
		metric.WithUnit("{job}"))
	providerLatency, _ := meter.Float64Histogram("vidgen.provider.submit.duration",
		metric.WithDescription("Provider task creation latency in seconds"),
		metric.WithUnit("s"))
	return &Metrics{
		submissions:     submissions,
		rateLimited:     rateLimited,
		callbacks:       callbacks,
		refunds:         refunds,
		reconciled:      reconciled,
		providerLatency: providerLatency,
	}
}

func (m *Metrics) submission(ctx context.Context, outcome string) {
	m.submissions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) denied(ctx context.Context) {
	m.rateLimited.Add(ctx, 1)
}

func (m *Metrics) callback(ctx context.Context, outcome CallbackOutcome) {
	m.callbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcome))))
}

func (m *Metrics) refund(ctx context.Context) {
	m.refunds.Add(ctx, 1)
}

func (m *Metrics) reconcile(ctx context.Context, action string, n int) {
	if n > 0 {
		m.reconciled.Add(ctx, int64(n), metric.WithAttributes(attribute.String("action", action)))
	}
}

func (m *Metrics) providerCall(ctx context.Context, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.providerLatency.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("status", status)))
}
