// Package telemetry exports invocation metrics over OTLP.
package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	noopm "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
)

// InstrumentName is the instrumentation scope of calcmate meters
const InstrumentName = "github.com/hession/calcmate"

var (
	// Meter is the process meter; a noop until Start succeeds
	Meter metric.Meter = noopm.Meter{}
)

// Start installs an OTLP/HTTP meter provider and points Meter at it.
// The returned clean func flushes and shuts the provider down.
func Start(ctx context.Context, opts ...Option) (clean func() error, err error) {
	options := &options{
		endpoint:       "localhost:4318",
		serviceName:    "calcmate",
		serviceVersion: "dev",
		interval:       30 * time.Second,
	}
	for _, opt := range opts {
		opt(options)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(options.serviceName),
			semconv.ServiceVersion(options.serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlpmetrichttp.New(ctx, options.exporterOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(options.interval))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	Meter = otel.Meter(InstrumentName)
	return func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown MeterProvider: %w", err)
		}
		return nil
	}, nil
}

// Option is a function that configures the exporter.
type Option func(*options)

type options struct {
	endpoint       string
	serviceName    string
	serviceVersion string
	insecure       bool
	headers        map[string]string
	interval       time.Duration
}

func (o *options) exporterOptions() []otlpmetrichttp.Option {
	var opts []otlpmetrichttp.Option
	if strings.Contains(o.endpoint, "://") {
		opts = append(opts, otlpmetrichttp.WithEndpointURL(o.endpoint))
	} else {
		opts = append(opts, otlpmetrichttp.WithEndpoint(o.endpoint))
	}
	if o.insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	if len(o.headers) > 0 {
		opts = append(opts, otlpmetrichttp.WithHeaders(o.headers))
	}
	return opts
}

// WithEndpoint sets the collector as "host:port" or a full URL.
func WithEndpoint(endpoint string) Option {
	return func(opts *options) {
		if endpoint != "" {
			opts.endpoint = endpoint
		}
	}
}

// WithServiceName sets the service.name resource attribute.
func WithServiceName(name string) Option {
	return func(opts *options) {
		if name != "" {
			opts.serviceName = name
		}
	}
}

// WithServiceVersion sets the service.version resource attribute.
func WithServiceVersion(version string) Option {
	return func(opts *options) {
		if version != "" {
			opts.serviceVersion = version
		}
	}
}

// WithInsecure disables TLS to the collector.
func WithInsecure(insecure bool) Option {
	return func(opts *options) {
		opts.insecure = insecure
	}
}

// WithHeaders adds headers to every export request.
func WithHeaders(headers map[string]string) Option {
	return func(opts *options) {
		opts.headers = headers
	}
}

// WithInterval sets the export interval.
func WithInterval(interval time.Duration) Option {
	return func(opts *options) {
		if interval > 0 {
			opts.interval = interval
		}
	}
}
