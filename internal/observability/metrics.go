// Package observability provides OpenTelemetry instrumentation for tracing and metrics.
package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics is an OpenTelemetry meter provider backed by a dedicated Prometheus registry.
type Metrics struct {
	Registry *prometheus.Registry
	// Handler serves the registry in the Prometheus exposition format.
	Handler http.Handler
	// Shutdown should be called on application exit for graceful cleanup.
	Shutdown func(context.Context) error
}

// InitMetrics initializes the OpenTelemetry metrics provider with a Prometheus exporter
// and installs it as the global MeterProvider.
func InitMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	return &Metrics{
		Registry: registry,
		Handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Shutdown: provider.Shutdown,
	}, nil
}

// WriteTextfile writes the current metrics to path for the node exporter's
// textfile collector. Batch commands exit before they could be scraped.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// Instruments are the counters recorded by hpcbench commands.
type Instruments struct {
	// Submissions counts submission attempts by status.
	Submissions metric.Int64Counter
	// SubmitDuration records how long the scheduler command took, in seconds.
	SubmitDuration metric.Float64Histogram
	// Results counts collected output files by outcome kind.
	Results metric.Int64Counter
}

// NewInstruments creates the hpcbench instruments on the given meter.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	submissions, err := meter.Int64Counter("hpcbench.submissions",
		metric.WithDescription("Number of batch job submissions by status"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create submissions counter: %w", err)
	}

	duration, err := meter.Float64Histogram("hpcbench.submit.duration",
		metric.WithDescription("Time spent in the scheduler submission command"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create submit duration histogram: %w", err)
	}

	results, err := meter.Int64Counter("hpcbench.results",
		metric.WithDescription("Number of collected output files by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create results counter: %w", err)
	}

	return &Instruments{
		Submissions:    submissions,
		SubmitDuration: duration,
		Results:        results,
	}, nil
}
