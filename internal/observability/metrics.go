// Package observability exposes pipeline metrics through OpenTelemetry, with
// a Prometheus exporter when metrics are enabled.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/joseph-ayodele/docproc"

// Recorder is what the processor reports to.
type Recorder interface {
	RecordStep(ctx context.Context, step, status string, duration time.Duration)
	RecordDocument(ctx context.Context, strategy, status string, duration time.Duration)
}

// Metrics holds the pipeline instruments.
type Metrics struct {
	stepDuration metric.Float64Histogram
	stepsTotal   metric.Int64Counter
	docDuration  metric.Float64Histogram
	docsTotal    metric.Int64Counter
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	stepDuration, err := meter.Float64Histogram(
		"docproc_step_duration_seconds",
		metric.WithDescription("Step duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create step duration histogram: %w", err)
	}

	stepsTotal, err := meter.Int64Counter(
		"docproc_steps_total",
		metric.WithDescription("Total step attempts by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create steps counter: %w", err)
	}

	docDuration, err := meter.Float64Histogram(
		"docproc_document_duration_seconds",
		metric.WithDescription("Whole-document processing duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create document duration histogram: %w", err)
	}

	docsTotal, err := meter.Int64Counter(
		"docproc_documents_total",
		metric.WithDescription("Total documents processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create documents counter: %w", err)
	}

	return &Metrics{
		stepDuration: stepDuration,
		stepsTotal:   stepsTotal,
		docDuration:  docDuration,
		docsTotal:    docsTotal,
	}, nil
}

// Noop returns instruments that record nothing.
func Noop() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter(meterName))
	return m
}

func (m *Metrics) RecordStep(ctx context.Context, step, status string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("step", step),
		attribute.String("status", status),
	)
	m.stepDuration.Record(ctx, duration.Seconds(), attrs)
	m.stepsTotal.Add(ctx, 1, attrs)
}

func (m *Metrics) RecordDocument(ctx context.Context, strategy, status string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.String("status", status),
	)
	m.docDuration.Record(ctx, duration.Seconds(), attrs)
	m.docsTotal.Add(ctx, 1, attrs)
}

// Prometheus is an enabled metrics setup: the instruments plus the scrape
// handler and the provider to shut down.
type Prometheus struct {
	*Metrics
	provider *sdkmetric.MeterProvider
	handler  http.Handler
}

// InitPrometheus wires an OpenTelemetry meter provider to a private
// Prometheus registry.
func InitPrometheus() (*Prometheus, error) {
	reg := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))

	m, err := NewMetrics(provider.Meter(meterName))
	if err != nil {
		return nil, err
	}
	return &Prometheus{
		Metrics:  m,
		provider: provider,
		handler:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}, nil
}

// Handler serves the registry in the Prometheus text format.
func (p *Prometheus) Handler() http.Handler { return p.handler }

func (p *Prometheus) Shutdown(ctx context.Context) error {
	return p.provider.Shutdown(ctx)
}
