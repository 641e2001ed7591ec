// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package watch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rebuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "callgraph",
			Subsystem: "watch",
			Name:      "rebuilds_total",
			Help:      "Watched index rebuilds, by outcome.",
		},
		[]string{"status"},
	)

	rebuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "callgraph",
			Subsystem: "watch",
			Name:      "rebuild_duration_seconds",
			Help:      "Time to apply a change batch to the index.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)
)

// recordRebuild records one rebuild attempt. Deferred attempts carry no
// meaningful duration and skip the histogram.
func recordRebuild(duration time.Duration, status string) {
	rebuildsTotal.WithLabelValues(status).Inc()
	if status == "ok" {
		rebuildDuration.Observe(duration.Seconds())
	}
}
