// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package java

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

// parserTracerName is the shared OTel tracer name for all Parser implementations.
const parserTracerName = "callgraph.java"

// Package-level Prometheus metrics for Java parsing.
// Auto-registered via promauto so no explicit registry wiring is needed.
var (
	// parseDuration measures the duration of Parse calls.
	//
	// Labels:
	//   - parser: "regex", "treesitter"
	//   - status: "success" or "error"
	parseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "callgraph",
			Subsystem: "parser",
			Name:      "duration_seconds",
			Help:      "Duration of Java source parses in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"parser", "status"},
	)

	// parsesTotal counts the total number of Parse calls.
	//
	// Labels:
	//   - parser: "regex", "treesitter"
	//   - status: "success" or "error"
	parsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "callgraph",
			Subsystem: "parser",
			Name:      "parses_total",
			Help:      "Total number of Java source parses.",
		},
		[]string{"parser", "status"},
	)

	// parseErrorsTotal counts parse failures by type.
	//
	// Labels:
	//   - parser: "regex", "treesitter"
	//   - error_type: "too_large", "encoding", "canceled", "syntax", "unknown"
	parseErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "callgraph",
			Subsystem: "parser",
			Name:      "errors_total",
			Help:      "Total Java parse failures by type.",
		},
		[]string{"parser", "error_type"},
	)

	// classesExtracted counts type declarations produced by successful parses.
	//
	// Labels:
	//   - parser: "regex", "treesitter"
	classesExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "callgraph",
			Subsystem: "parser",
			Name:      "classes_total",
			Help:      "Total Java type declarations extracted.",
		},
		[]string{"parser"},
	)
)

// classifyParseError maps a parse error to a label-safe error type string.
//
// Description:
//
//	Categorizes errors into a small fixed set so Prometheus labels stay
//	low-cardinality.
//
// Inputs:
//
//	err - The error to classify. May be nil.
//
// Outputs:
//
//	string - One of: "too_large", "encoding", "canceled", "syntax",
//	         "unknown". Returns empty string for nil error.
//
// Thread Safety: Safe for concurrent use.
func classifyParseError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrFileTooLarge):
		return "too_large"
	case errors.Is(err, ErrInvalidContent):
		return "encoding"
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "unknown"
	}
}

// recordParseMetrics records Prometheus metrics for a completed parse.
//
// Inputs:
//
//	parser - Parser name ("regex", "treesitter").
//	duration - How long the parse took.
//	classes - Number of type declarations extracted. Ignored on error.
//	err - The error, if any. Nil means success.
//
// Thread Safety: Safe for concurrent use.
func recordParseMetrics(parser string, duration time.Duration, classes int, err error) {
	status := "success"
	if err != nil {
		status = "error"
		parseErrorsTotal.WithLabelValues(parser, classifyParseError(err)).Inc()
	} else if classes > 0 {
		classesExtracted.WithLabelValues(parser).Add(float64(classes))
	}

	parseDuration.WithLabelValues(parser, status).Observe(duration.Seconds())
	parsesTotal.WithLabelValues(parser, status).Inc()
}

// startParseSpan opens a tracing span for one Parse call.
func startParseSpan(ctx context.Context, parser, filePath string, sizeBytes int) (context.Context, trace.Span) {
	tracer := otel.Tracer(parserTracerName)
	return tracer.Start(ctx, "java.Parse",
		trace.WithAttributes(
			attribute.String("parser", parser),
			attribute.String("file", filePath),
			attribute.Int("size_bytes", sizeBytes),
		))
}

// setParseSpanResult attaches result counts to a parse span.
func setParseSpanResult(span trace.Span, classes, callSites, parseErrors int) {
	span.SetAttributes(
		attribute.Int("classes", classes),
		attribute.Int("call_sites", callSites),
		attribute.Int("parse_errors", parseErrors),
	)
}
