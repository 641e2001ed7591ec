// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package callgraph

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	analysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "callgraph",
			Subsystem: "engine",
			Name:      "analyses_total",
			Help:      "Analyze calls by outcome.",
		},
		[]string{"status"},
	)

	analyzeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "callgraph",
			Subsystem: "engine",
			Name:      "analyze_duration_seconds",
			Help:      "End-to-end duration of Analyze calls.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		},
	)

	watchStreamsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "callgraph",
			Subsystem: "http",
			Name:      "watch_streams_active",
			Help:      "Open websocket watch streams.",
		},
	)

	exportBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "callgraph",
			Subsystem: "http",
			Name:      "export_bytes_total",
			Help:      "Bytes written by export downloads, by format.",
		},
		[]string{"format"},
	)
)

// classifyAnalyzeStatus maps an analyze error to a low-cardinality label.
func classifyAnalyzeStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrEntryFileNotFound), errors.Is(err, ErrEntryMethodNotFound):
		return "not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

// recordAnalysis records one Analyze outcome.
func recordAnalysis(duration time.Duration, err error) {
	analysesTotal.WithLabelValues(classifyAnalyzeStatus(err)).Inc()
	analyzeDuration.Observe(duration.Seconds())
}
