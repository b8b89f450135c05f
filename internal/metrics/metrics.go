// Package metrics wires the OTEL meter provider with Prometheus and OTLP
// exporters.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
)

// MetricProvider exposes meters and controlled shutdown.
type MetricProvider interface {
	Meter(name string, options ...metric.MeterOption) metric.Meter
	Shutdown(ctx context.Context) error
}

// ExporterKind selects a metrics exporter.
type ExporterKind string

const (
	ExporterPrometheus ExporterKind = "prometheus"
	ExporterOTLP       ExporterKind = "otlp"
)

// ExporterConfig configures one metrics exporter.
type ExporterConfig struct {
	Kind     ExporterKind
	Endpoint string
	Headers  map[string]string
	Insecure bool
}

// Config holds meter provider configuration.
type Config struct {
	ServiceName string
	Exporters   []ExporterConfig
}

// Option configures the meter provider.
type Option func(Config) Config

// WithServiceName sets the service.name resource attribute.
func WithServiceName(name string) Option {
	return func(cfg Config) Config {
		cfg.ServiceName = name
		return cfg
	}
}

// WithExporter adds an exporter to the provider.
func WithExporter(exp ExporterConfig) Option {
	return func(cfg Config) Config {
		cfg.Exporters = append(cfg.Exporters, exp)
		return cfg
	}
}

// NewMeterProvider builds a meter provider, installs it as the OTEL global
// and returns it. With no exporters configured only a Prometheus reader is
// attached.
func NewMeterProvider(ctx context.Context, options ...Option) (MetricProvider, error) {
	var cfg Config
	for _, opt := range options {
		cfg = opt(cfg)
	}

	if len(cfg.Exporters) == 0 {
		cfg.Exporters = []ExporterConfig{{Kind: ExporterPrometheus}}
	}

	var readers []sdkmetric.Reader
	for _, exp := range cfg.Exporters {
		switch exp.Kind {
		case ExporterPrometheus:
			promExporter, err := prometheus.New()
			if err != nil {
				return nil, fmt.Errorf("prometheus exporter: %w", err)
			}
			readers = append(readers, promExporter)

		case ExporterOTLP:
			opts := []otlpmetricgrpc.Option{
				otlpmetricgrpc.WithEndpointURL(exp.Endpoint),
				otlpmetricgrpc.WithHeaders(exp.Headers),
			}
			if exp.Insecure {
				opts = append(opts, otlpmetricgrpc.WithInsecure())
			}
			exporter, err := otlpmetricgrpc.New(ctx, opts...)
			if err != nil {
				return nil, fmt.Errorf("otlp exporter: %w", err)
			}
			readers = append(readers, sdkmetric.NewPeriodicReader(exporter))

		default:
			return nil, fmt.Errorf("unknown metrics exporter: %s", exp.Kind)
		}
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = os.Getenv("OTEL_SERVICE_NAME")
	}

	providerOpts := []sdkmetric.Option{
		sdkmetric.WithResource(
			resource.NewSchemaless(semconv.ServiceNameKey.String(serviceName)),
		),
	}
	for _, reader := range readers {
		providerOpts = append(providerOpts, sdkmetric.WithReader(reader))
	}

	meterProvider := sdkmetric.NewMeterProvider(providerOpts...)
	otel.SetMeterProvider(meterProvider)

	return meterProvider, nil
}

// ServePrometheus serves /metrics on the given port. It blocks until the
// server fails or the context is cancelled.
func ServePrometheus(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
