// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package index

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const indexTracerName = "callgraph.index"

var (
	buildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "callgraph",
			Subsystem: "index",
			Name:      "build_duration_seconds",
			Help:      "Time to build the project index from a source tree.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"status"},
	)

	filesIndexedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "callgraph",
			Subsystem: "index",
			Name:      "files_total",
			Help:      "Source files seen by index builds, by outcome.",
		},
		[]string{"outcome"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "callgraph",
			Subsystem: "index",
			Name:      "operation_duration_seconds",
			Help:      "Duration of index operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
		[]string{"operation"},
	)
)

// classifyBuildStatus maps a build error to a low-cardinality status label.
func classifyBuildStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, ErrIndexCapacity):
		return "capacity"
	default:
		return "error"
	}
}

// recordBuildMetrics records one build outcome.
func recordBuildMetrics(duration time.Duration, parsed, skipped int, err error) {
	buildDuration.WithLabelValues(classifyBuildStatus(err)).Observe(duration.Seconds())
	filesIndexedTotal.WithLabelValues("parsed").Add(float64(parsed))
	filesIndexedTotal.WithLabelValues("skipped").Add(float64(skipped))
}

// startBuildSpan begins a trace span for a source-tree build.
func startBuildSpan(ctx context.Context, root string) (context.Context, trace.Span) {
	tracer := otel.Tracer(indexTracerName)
	return tracer.Start(ctx, "index.Build",
		trace.WithAttributes(
			attribute.String("index.root", root),
		))
}

// setBuildSpanResult records build outcome attributes on the span.
func setBuildSpanResult(span trace.Span, classes, methods, skipped int) {
	span.SetAttributes(
		attribute.Int("index.classes", classes),
		attribute.Int("index.methods", methods),
		attribute.Int("index.files_skipped", skipped),
	)
}

// startOperationSpan begins a trace span for a single index operation.
func startOperationSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	tracer := otel.Tracer(indexTracerName)
	return tracer.Start(ctx, "index."+operation)
}

// recordOperationMetrics records the duration of one index operation.
func recordOperationMetrics(operation string, duration time.Duration) {
	operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
