package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// Completion outcomes recorded on chat.completions
const (
	OutcomeOK        = "ok"
	OutcomeFailed    = "failed"
	OutcomeDiscarded = "discarded"
	OutcomeRejected  = "rejected"
)

// Options configures telemetry
type Options struct {
	ServiceName string
	// TraceStdout pretty-prints spans to stdout
	TraceStdout bool
}

// Telemetry owns the meter and tracer providers of the process
type Telemetry struct {
	MeterProvider  *metric.MeterProvider
	TracerProvider *trace.TracerProvider
	registry       *promclient.Registry
	Metrics        *Metrics
}

// Setup installs global otel providers backed by a private Prometheus registry
func Setup(opts Options) (*Telemetry, error) {
	res := resource.NewSchemaless(semconv.ServiceName(opts.ServiceName))

	registry := promclient.NewRegistry()
	exp, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize prometheus exporter: %w", err)
	}
	mp := metric.NewMeterProvider(metric.WithReader(exp), metric.WithResource(res))

	tpOpts := []trace.TracerProviderOption{trace.WithResource(res)}
	if opts.TraceStdout {
		texp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize stdouttrace exporter: %w", err)
		}
		tpOpts = append(tpOpts, trace.WithBatcher(texp))
	}
	tp := trace.NewTracerProvider(tpOpts...)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	metrics, err := NewMetrics(mp.Meter("adichat/chat"))
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		MeterProvider:  mp,
		TracerProvider: tp,
		registry:       registry,
		Metrics:        metrics,
	}, nil
}

// Handler serves the Prometheus exposition format
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops both providers
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(t.TracerProvider.Shutdown(ctx), t.MeterProvider.Shutdown(ctx))
}

// Metrics are the chat server's own instruments
type Metrics struct {
	completions otelmetric.Int64Counter
	latency     otelmetric.Float64Histogram
}

// NewMetrics creates the instruments on meter
func NewMetrics(meter otelmetric.Meter) (*Metrics, error) {
	completions, err := meter.Int64Counter("chat.completions",
		otelmetric.WithDescription("Completion requests by outcome"))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("chat.completion.duration",
		otelmetric.WithDescription("Completion round trip to the gateway"),
		otelmetric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &Metrics{completions: completions, latency: latency}, nil
}

// RecordCompletion counts one completion attempt. A nil receiver is a no-op.
func (m *Metrics) RecordCompletion(ctx context.Context, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	attrs := otelmetric.WithAttributes(attribute.String("outcome", outcome))
	m.completions.Add(ctx, 1, attrs)
	if outcome == OutcomeOK || outcome == OutcomeFailed {
		m.latency.Record(ctx, took.Seconds(), attrs)
	}
}
