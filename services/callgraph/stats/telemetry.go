// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsQueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "callgraph",
		Subsystem: "stats",
		Name:      "runs_queued_total",
		Help:      "Analysis runs queued for InfluxDB delivery.",
	})

	writeErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "callgraph",
		Subsystem: "stats",
		Name:      "write_errors_total",
		Help:      "Asynchronous InfluxDB write failures.",
	})
)

func recordRunQueued() {
	runsQueuedTotal.Inc()
}

func recordWriteError() {
	writeErrorsTotal.Inc()
}
