// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resolve

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Resolution runs per call site and is far too hot for per-call spans;
// counters are the observability surface here.
var (
	resolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "callgraph",
			Subsystem: "resolve",
			Name:      "resolutions_total",
			Help:      "Resolved call sites by resolution kind.",
		},
		[]string{"kind"},
	)

	frameworkLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "callgraph",
			Subsystem: "resolve",
			Name:      "framework_lookups_total",
			Help:      "Framework catalog lookups by matching rung.",
		},
		[]string{"rung"},
	)
)

// Framework lookup rung labels.
const (
	lookupDirect    = "direct"
	lookupInherited = "inherited"
	lookupInterface = "interface"
	lookupPattern   = "pattern"
	lookupMiss      = "miss"
)

// recordResolution counts one resolution outcome. Known-external sites are
// counted under their own label since they produce no candidates.
func recordResolution(res Resolution) {
	if res.KnownExternal {
		resolutionsTotal.WithLabelValues("known_external").Inc()
		return
	}
	for _, c := range res.Candidates {
		resolutionsTotal.WithLabelValues(string(c.Kind)).Inc()
	}
}

// recordFrameworkLookup counts one catalog lookup outcome.
func recordFrameworkLookup(rung string) {
	frameworkLookupsTotal.WithLabelValues(rung).Inc()
}
