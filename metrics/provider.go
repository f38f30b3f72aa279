package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Provider owns the SDK meter provider a hosting application needs before
// it can instrument consumers: build one, pass Meter() to NewHooks, and
// call the cleanup on exit so buffered measurements flush.
type Provider struct {
	provider *sdkmetric.MeterProvider
	meter    metric.Meter
}

type providerOptions struct {
	serviceName      string
	serviceNamespace string
	serviceVersion   string
	environment      string
	otlpEndpoint     string
	otlpGRPCEndpoint string
	exportInterval   time.Duration
}

// ProviderOption configures NewProvider.
type ProviderOption func(*providerOptions)

// WithServiceName sets the service name resource attribute, which also
// names the meter. "streambridge" by default.
func WithServiceName(name string) ProviderOption {
	return func(o *providerOptions) {
		if name != "" {
			o.serviceName = name
		}
	}
}

// WithServiceNamespace sets the service namespace resource attribute.
func WithServiceNamespace(namespace string) ProviderOption {
	return func(o *providerOptions) {
		o.serviceNamespace = namespace
	}
}

// WithServiceVersion sets the service version resource attribute.
func WithServiceVersion(version string) ProviderOption {
	return func(o *providerOptions) {
		o.serviceVersion = version
	}
}

// WithEnvironment sets the deployment environment resource attribute.
func WithEnvironment(env string) ProviderOption {
	return func(o *providerOptions) {
		o.environment = env
	}
}

// WithOTLPEndpoint sets the OTLP HTTP endpoint. localhost:4318 by default;
// setting it empty disables the HTTP path.
func WithOTLPEndpoint(endpoint string) ProviderOption {
	return func(o *providerOptions) {
		o.otlpEndpoint = endpoint
	}
}

// WithOTLPGRPCEndpoint sets the OTLP gRPC endpoint. When set it takes
// precedence over the HTTP endpoint.
func WithOTLPGRPCEndpoint(endpoint string) ProviderOption {
	return func(o *providerOptions) {
		o.otlpGRPCEndpoint = endpoint
	}
}

// WithExportInterval sets how often collected metrics are exported. 10s by
// default.
func WithExportInterval(interval time.Duration) ProviderOption {
	return func(o *providerOptions) {
		if interval > 0 {
			o.exportInterval = interval
		}
	}
}

// NewProvider builds an OTLP-exporting meter provider and registers it as
// the global one. The returned cleanup shuts the provider down, flushing
// anything not yet exported.
func NewProvider(ctx context.Context, opts ...ProviderOption) (*Provider, func(), error) {
	o := providerOptions{
		serviceName:      "streambridge",
		serviceNamespace: "default",
		serviceVersion:   "1.0.0",
		environment:      "development",
		otlpEndpoint:     "localhost:4318",
		exportInterval:   10 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.otlpGRPCEndpoint == "" && o.otlpEndpoint == "" {
		return nil, nil, errors.New("metrics: an OTLP endpoint is required")
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(o.serviceName),
			semconv.ServiceNamespace(o.serviceNamespace),
			semconv.ServiceVersion(o.serviceVersion),
			semconv.DeploymentEnvironment(o.environment),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("metrics: create resource: %w", err)
	}

	var exporter sdkmetric.Exporter
	if o.otlpGRPCEndpoint != "" {
		exporter, err = otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(o.otlpGRPCEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("metrics: create OTLP gRPC exporter: %w", err)
		}
	} else {
		exporter, err = otlpmetrichttp.New(ctx,
			otlpmetrichttp.WithEndpoint(o.otlpEndpoint),
			otlpmetrichttp.WithInsecure(),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("metrics: create OTLP HTTP exporter: %w", err)
		}
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(o.exportInterval),
		)),
	)
	otel.SetMeterProvider(provider)

	p := &Provider{
		provider: provider,
		meter:    provider.Meter(o.serviceName),
	}
	cleanup := func() {
		_ = p.provider.Shutdown(context.Background())
	}
	return p, cleanup, nil
}

// Meter returns the meter instruments are created from.
func (p *Provider) Meter() metric.Meter { return p.meter }

// Shutdown flushes and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.provider.Shutdown(ctx)
}
