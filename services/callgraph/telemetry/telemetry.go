// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package telemetry bootstraps OpenTelemetry for the callgraph service.
//
// Traces go to an OTLP collector when an endpoint is configured, or to
// stdout in dev mode. Metrics always flow into the Prometheus registry
// behind /metrics, with an optional periodic stdout dump for dev use.
// The W3C trace-context propagator is installed unconditionally so
// incoming request headers thread through all handlers.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const serviceName = "javatrace"

// Config holds telemetry bootstrap settings.
type Config struct {
	// OTLPEndpoint is the gRPC address of an OTLP trace collector.
	// Traces are dropped when empty and no stdout mode is active.
	// Env: CALLGRAPH_OTLP_ENDPOINT (default: "")
	OTLPEndpoint string

	// SampleRatio is the head-sampling ratio for root spans, in [0, 1].
	// Env: CALLGRAPH_TRACE_SAMPLE_RATIO (default: 1.0)
	SampleRatio float64

	// Stdout enables pretty-printed stdout exporters for local runs.
	// Env: CALLGRAPH_STDOUT_TELEMETRY (default: "false")
	Stdout bool

	// MetricIntervalSeconds is the stdout metric dump interval.
	// Env: CALLGRAPH_STDOUT_METRIC_INTERVAL_SECONDS (default: 60)
	MetricIntervalSeconds int
}

// LoadConfig reads telemetry configuration from environment variables.
func LoadConfig() *Config {
	return &Config{
		OTLPEndpoint:          envStr("CALLGRAPH_OTLP_ENDPOINT", ""),
		SampleRatio:           envFloat("CALLGRAPH_TRACE_SAMPLE_RATIO", 1.0),
		Stdout:                envBool("CALLGRAPH_STDOUT_TELEMETRY", false),
		MetricIntervalSeconds: envInt("CALLGRAPH_STDOUT_METRIC_INTERVAL_SECONDS", 60),
	}
}

func (c *Config) validate() error {
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return fmt.Errorf("sample ratio %v outside [0, 1]", c.SampleRatio)
	}
	if c.MetricIntervalSeconds <= 0 {
		return errors.New("metric interval must be positive")
	}
	return nil
}

// Option adjusts Setup behavior.
type Option func(*settings)

type settings struct {
	writer     io.Writer
	registerer prometheus.Registerer
}

// WithWriter redirects the stdout exporters, mainly for tests.
func WithWriter(w io.Writer) Option {
	return func(s *settings) { s.writer = w }
}

// WithPrometheusRegisterer overrides the registry the metric bridge
// registers with, mainly for tests. Defaults to the process-wide registry
// that backs /metrics.
func WithPrometheusRegisterer(r prometheus.Registerer) Option {
	return func(s *settings) { s.registerer = r }
}

// Setup installs the global OpenTelemetry providers.
//
// Description:
//
//	Builds the service resource, wires the configured trace exporter
//	behind a batching processor with parent-based ratio sampling, bridges
//	OTel metrics into the Prometheus registry, and installs the W3C
//	propagator. A constant service-info gauge carries the version through
//	the metric pipeline.
//
// Inputs:
//   - ctx: Bounds exporter construction.
//   - version: Build version stamped onto the resource and info gauge.
//   - cfg: Bootstrap settings. Must not be nil.
//   - logger: Startup progress destination. Must not be nil.
//   - opts: Test seams; production callers pass none.
//
// Outputs:
//   - func(context.Context) error: Shutdown hook flushing both pipelines.
//   - error: Validation or exporter-construction failure.
func Setup(ctx context.Context, version string, cfg *Config, logger *slog.Logger, opts ...Option) (func(context.Context) error, error) {
	if cfg == nil {
		return nil, errors.New("config must not be nil")
	}
	if logger == nil {
		return nil, errors.New("logger must not be nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	s := &settings{writer: os.Stdout, registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(s)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", version),
	))
	if err != nil {
		return nil, fmt.Errorf("building resource: %w", err)
	}

	var shutdowns []func(context.Context) error

	tp, conn, err := buildTracerProvider(ctx, cfg, res, s)
	if err != nil {
		return nil, err
	}
	if tp != nil {
		otel.SetTracerProvider(tp)
		shutdowns = append(shutdowns, tp.Shutdown)
	}
	if conn != nil {
		shutdowns = append(shutdowns, func(context.Context) error { return conn.Close() })
	}

	mp, err := buildMeterProvider(cfg, res, s)
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(mp)
	shutdowns = append(shutdowns, mp.Shutdown)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if err := registerServiceInfo(version); err != nil {
		return nil, err
	}

	logger.Info("telemetry ready",
		"otlp_endpoint", cfg.OTLPEndpoint,
		"sample_ratio", cfg.SampleRatio,
		"stdout", cfg.Stdout)

	shutdown := func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdowns {
			if err := fn(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
	return shutdown, nil
}

// buildTracerProvider wires the configured span exporter. Returns a nil
// provider when no exporter is configured; spans then fall back to the
// no-op default.
func buildTracerProvider(ctx context.Context, cfg *Config, res *resource.Resource, s *settings) (*sdktrace.TracerProvider, *grpc.ClientConn, error) {
	var (
		exporter sdktrace.SpanExporter
		conn     *grpc.ClientConn
		err      error
	)
	switch {
	case cfg.OTLPEndpoint != "":
		conn, err = grpc.NewClient(cfg.OTLPEndpoint,
			grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, nil, fmt.Errorf("dialing OTLP endpoint: %w", err)
		}
		exporter, err = otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("creating OTLP trace exporter: %w", err)
		}
	case cfg.Stdout:
		exporter, err = stdouttrace.New(
			stdouttrace.WithWriter(s.writer),
			stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, nil, fmt.Errorf("creating stdout trace exporter: %w", err)
		}
	default:
		return nil, nil, nil
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	return tp, conn, nil
}

// buildMeterProvider bridges OTel metrics into Prometheus, plus an
// optional periodic stdout reader in dev mode.
func buildMeterProvider(cfg *Config, res *resource.Resource, s *settings) (*sdkmetric.MeterProvider, error) {
	bridge, err := otelprom.New(otelprom.WithRegisterer(s.registerer))
	if err != nil {
		return nil, fmt.Errorf("creating prometheus bridge: %w", err)
	}

	mpOpts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(bridge),
	}
	if cfg.Stdout {
		dump, err := stdoutmetric.New(stdoutmetric.WithWriter(s.writer))
		if err != nil {
			return nil, fmt.Errorf("creating stdout metric exporter: %w", err)
		}
		mpOpts = append(mpOpts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(dump,
			sdkmetric.WithInterval(time.Duration(cfg.MetricIntervalSeconds)*time.Second))))
	}

	return sdkmetric.NewMeterProvider(mpOpts...), nil
}

// registerServiceInfo publishes a constant gauge carrying the service
// version, the OTel counterpart of a build-info metric.
func registerServiceInfo(version string) error {
	meter := otel.Meter(serviceName)
	_, err := meter.Int64ObservableGauge("callgraph.service.info",
		metric.WithDescription("Constant gauge carrying service identity attributes."),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(1, metric.WithAttributes(attribute.String("version", version)))
			return nil
		}))
	if err != nil {
		return fmt.Errorf("registering service info gauge: %w", err)
	}
	return nil
}

func envStr(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func envBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func envInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func envFloat(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return f
}
