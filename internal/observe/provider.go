package observe

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig names the service in exported telemetry.
type ProviderConfig struct {
	ServiceName    string // default "aura"
	ServiceVersion string
}

// Telemetry owns the SDK providers installed by [InitProvider].
type Telemetry struct {
	// MetricsHandler serves the Prometheus exposition of the aura.*
	// instruments. Mount it on /metrics.
	MetricsHandler http.Handler

	meters *sdkmetric.MeterProvider
	tracer *sdktrace.TracerProvider
}

// Shutdown flushes and stops both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(t.meters.Shutdown(ctx), t.tracer.Shutdown(ctx))
}

// InitProvider installs global meter and tracer providers. Metrics are
// exported into a private Prometheus registry, so collectors registered by
// libraries on the default registry stay off the endpoint. Spans are sampled
// but not exported; they feed trace ids into the logs.
func InitProvider(ctx context.Context, cfg ProviderConfig) (*Telemetry, error) {
	res, err := resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithFromEnv(),
		resource.WithAttributes(
			semconv.ServiceName(cmp.Or(cfg.ServiceName, "aura")),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observe: resource: %w", err)
	}

	reg := prometheus.NewRegistry()
	exp, err := promexporter.New(promexporter.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}

	t := &Telemetry{
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		meters:         sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(exp)),
		tracer:         sdktrace.NewTracerProvider(sdktrace.WithResource(res)),
	}
	otel.SetMeterProvider(t.meters)
	otel.SetTracerProvider(t.tracer)
	return t, nil
}
