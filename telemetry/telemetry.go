// Package telemetry wires OpenTelemetry providers for services using the
// rqlite client: Prometheus-backed metrics and, optionally, OTLP traces.
//
// Example:
//
//	reg := prometheus.NewRegistry()
//	tel, err := telemetry.Setup(ctx, telemetry.Config{
//	    ServiceName: "orders",
//	    Registerer:  reg,
//	})
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	client, err := httpclient.New(hosts, tel.ClientOptions()...)
//
//	mux.Handle("/metrics", telemetry.Handler(reg))
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/kroma-labs/rqlite-go/httpclient"
)

// Config selects where telemetry goes.
type Config struct {
	// ServiceName and ServiceVersion identify the process in the resource
	// and name the client in spans and metrics.
	ServiceName    string
	ServiceVersion string

	// Registerer receives the Prometheus collector.
	// Default: prometheus.DefaultRegisterer
	Registerer prometheus.Registerer

	// OTLPEndpoint is the host:port of an OTLP gRPC collector. Traces are
	// sampled but not exported when empty.
	OTLPEndpoint string

	// OTLPInsecure disables TLS towards the collector.
	OTLPInsecure bool

	// SetGlobal installs the providers and W3C propagators as the otel
	// globals.
	SetGlobal bool
}

// Provider holds the configured SDK providers.
type Provider struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider

	serviceName string
}

// Setup builds the tracer and meter providers described by cfg.
func Setup(ctx context.Context, cfg Config) (*Provider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	mp, err := NewMeterProvider(cfg.Registerer, sdkmetric.WithResource(res))
	if err != nil {
		return nil, err
	}

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.OTLPEndpoint != "" {
		exporterOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
		}

		exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
		if err != nil {
			_ = mp.Shutdown(ctx)
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	if cfg.SetGlobal {
		otel.SetTracerProvider(tp)
		otel.SetMeterProvider(mp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	}

	return &Provider{
		TracerProvider: tp,
		MeterProvider:  mp,
		serviceName:    cfg.ServiceName,
	}, nil
}

// NewMeterProvider returns a MeterProvider whose metrics are collected by
// reg. A nil reg means prometheus.DefaultRegisterer.
func NewMeterProvider(reg prometheus.Registerer, opts ...sdkmetric.Option) (*sdkmetric.MeterProvider, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	return sdkmetric.NewMeterProvider(append([]sdkmetric.Option{sdkmetric.WithReader(exporter)}, opts...)...), nil
}

// ClientOptions returns the httpclient options routing the client's spans
// and metrics to p.
func (p *Provider) ClientOptions() []httpclient.Option {
	opts := []httpclient.Option{
		httpclient.WithTracerProvider(p.TracerProvider),
		httpclient.WithMeterProvider(p.MeterProvider),
	}
	if p.serviceName != "" {
		opts = append(opts, httpclient.WithServiceName(p.serviceName))
	}
	return opts
}

// Shutdown flushes and stops both providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	return errors.Join(
		p.TracerProvider.Shutdown(ctx),
		p.MeterProvider.Shutdown(ctx),
	)
}

// Handler serves the metrics gathered by g in the Prometheus text format.
// A nil g serves the default registry.
//
// Example:
//
//	mux.Handle("/metrics", telemetry.Handler(reg))
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
