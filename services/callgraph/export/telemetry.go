// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package export

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	graphExportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "callgraph",
		Subsystem: "export",
		Name:      "graph_exports_total",
		Help:      "Completed Neo4j run exports by status (ok, error).",
	}, []string{"status"})

	archiveUploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "callgraph",
		Subsystem: "export",
		Name:      "archive_uploads_total",
		Help:      "Completed Cloud Storage run uploads by status (ok, error).",
	}, []string{"status"})
)

// recordGraphExport counts one finished Neo4j export attempt.
func recordGraphExport(status string) {
	graphExportsTotal.WithLabelValues(status).Inc()
}

// recordArchiveUpload counts one finished archive upload attempt.
func recordArchiveUpload(status string) {
	archiveUploadsTotal.WithLabelValues(status).Inc()
}
