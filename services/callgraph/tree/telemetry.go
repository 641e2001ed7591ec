// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tree

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

const treeTracerName = "callgraph.tree"

var (
	buildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "callgraph",
			Subsystem: "tree",
			Name:      "build_duration_seconds",
			Help:      "Time to build one call tree from an entry method.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"status"},
	)

	nodesBuiltTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "callgraph",
			Subsystem: "tree",
			Name:      "nodes_total",
			Help:      "Call-tree nodes produced across all builds.",
		},
	)

	treeDepthReached = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "callgraph",
			Subsystem: "tree",
			Name:      "depth_reached",
			Help:      "Deepest level reached per build.",
			Buckets:   prometheus.LinearBuckets(0, 1, 12),
		},
	)
)

// classifyBuildStatus maps a build error to a low-cardinality status label.
func classifyBuildStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, ErrMissingEntry):
		return "missing_entry"
	default:
		return "error"
	}
}

// recordBuildMetrics records one build outcome.
func recordBuildMetrics(duration time.Duration, stats RunStats, err error) {
	buildDuration.WithLabelValues(classifyBuildStatus(err)).Observe(duration.Seconds())
	nodesBuiltTotal.Add(float64(stats.TotalNodes))
	treeDepthReached.Observe(float64(stats.MaxDepth))
}

// startBuildSpan begins a trace span for one call-tree build.
func startBuildSpan(ctx context.Context, entry string, maxDepth int) (context.Context, trace.Span) {
	tracer := otel.Tracer(treeTracerName)
	return tracer.Start(ctx, "tree.Build",
		trace.WithAttributes(
			attribute.String("tree.entry", entry),
			attribute.Int("tree.max_depth", maxDepth),
		))
}

// setBuildSpanResult records build outcome attributes on the span.
func setBuildSpanResult(span trace.Span, stats RunStats) {
	span.SetAttributes(
		attribute.Int("tree.nodes", stats.TotalNodes),
		attribute.Int("tree.depth_reached", stats.MaxDepth),
		attribute.Int("tree.jar_resolved", stats.JarResolved),
		attribute.Int("tree.unresolved", stats.Unresolved),
	)
}
