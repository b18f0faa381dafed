package observability

import (
	"context"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"

	"teed-waitlist/internal/common/logger"
)

// Observability records admin request counts and latencies through an
// OpenTelemetry meter exported to Prometheus.
type Observability struct {
	meterProvider   *metric.MeterProvider
	meter           otelmetric.Meter
	requestCounter  otelmetric.Int64Counter
	requestDuration otelmetric.Float64Histogram
	log             logger.Logger
}

// New registers the exporter with reg. A nil reg uses the default registerer.
// Exporter failures degrade to a no-op recorder.
func New(serviceName string, reg promclient.Registerer, log logger.Logger) *Observability {
	var opts []prometheus.Option
	if reg != nil {
		opts = append(opts, prometheus.WithRegisterer(reg))
	}
	exporter, err := prometheus.New(opts...)
	if err != nil {
		log.Warn("Failed to create Prometheus exporter", map[string]interface{}{"error": err.Error()})
		return &Observability{log: log}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	requestCounter, err := meter.Int64Counter(
		"admin.requests",
		otelmetric.WithDescription("Number of admin scoring requests handled"),
	)
	if err != nil {
		log.Warn("Failed to create admin request counter", map[string]interface{}{"error": err.Error()})
	}

	requestDuration, err := meter.Float64Histogram(
		"admin.request.duration",
		otelmetric.WithDescription("Admin scoring request duration"),
		otelmetric.WithUnit("ms"),
	)
	if err != nil {
		log.Warn("Failed to create admin request histogram", map[string]interface{}{"error": err.Error()})
	}

	return &Observability{
		meterProvider:   provider,
		meter:           meter,
		requestCounter:  requestCounter,
		requestDuration: requestDuration,
		log:             log,
	}
}

// NewNoop returns a recorder that drops everything.
func NewNoop() *Observability {
	return &Observability{}
}

func (o *Observability) RecordAdminRequest(ctx context.Context, operation string, status int, duration time.Duration) {
	attrs := otelmetric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Int("status", status),
	)
	if o.requestCounter != nil {
		o.requestCounter.Add(ctx, 1, attrs)
	}
	if o.requestDuration != nil {
		o.requestDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

func (o *Observability) Shutdown() {
	if o.meterProvider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.meterProvider.Shutdown(ctx); err != nil && o.log != nil {
		o.log.Warn("Meter provider shutdown failed", map[string]interface{}{"error": err.Error()})
	}
}
