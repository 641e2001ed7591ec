// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/Morizady/javatrace/services/callgraph"
)

// Recorder streams one InfluxDB point per completed analysis run.
//
// Description:
//
//	Implements the engine's RunRecorder using the client's non-blocking
//	write API, so recording never delays an analysis response. Write
//	failures surface on the client's error channel and are logged, not
//	returned; losing a stats point must never fail a run.
//
// Thread Safety: Safe for concurrent use. The write API batches
// internally.
type Recorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	log      *slog.Logger
	drained  chan struct{}
}

var _ callgraph.RunRecorder = (*Recorder)(nil)

// NewRecorder builds an InfluxDB client and returns a ready-to-use
// recorder.
//
// Description:
//
//	Construction does not dial the server; the first flush does. A
//	background goroutine drains the write API's error channel into the
//	logger until Close.
//
// Inputs:
//   - cfg: Connection settings. The token must be sealed already.
//   - logger: Destination for write failures. Must not be nil.
//
// Outputs:
//   - *Recorder: Ready recorder. Callers own Close.
//   - error: Configuration failure.
func NewRecorder(cfg *InfluxConfig, logger *slog.Logger) (*Recorder, error) {
	if cfg == nil {
		return nil, errors.New("config must not be nil")
	}
	if logger == nil {
		return nil, errors.New("logger must not be nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid influx config: %w", err)
	}

	tok, err := cfg.openToken()
	if err != nil {
		return nil, err
	}
	opts := influxdb2.DefaultOptions().SetBatchSize(uint(cfg.BatchSize))
	client := influxdb2.NewClientWithOptions(cfg.URL, tok, opts)
	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)

	r := &Recorder{
		client:   client,
		writeAPI: writeAPI,
		log:      logger,
		drained:  make(chan struct{}),
	}
	go r.drainErrors()
	return r, nil
}

// drainErrors logs asynchronous write failures until the client closes
// the error channel.
func (r *Recorder) drainErrors() {
	defer close(r.drained)
	for err := range r.writeAPI.Errors() {
		recordWriteError()
		r.log.Warn("influx write failed", "error", err)
	}
}

// RecordRun queues one point for a completed analysis. Never blocks and
// never fails the run; malformed results are logged and dropped.
func (r *Recorder) RecordRun(ctx context.Context, result *callgraph.AnalyzeResult) {
	_ = ctx
	if result == nil || result.Root == nil {
		r.log.Warn("dropping stats point for incomplete result")
		return
	}
	r.writeAPI.WritePoint(runPoint(result, time.Now()))
	recordRunQueued()
}

// Close flushes buffered points and releases the client. Blocks until the
// error drain finishes.
func (r *Recorder) Close() {
	r.writeAPI.Flush()
	r.client.Close()
	<-r.drained
}

// runPoint renders one analysis result as an InfluxDB point.
//
// Tags stay low-cardinality: the entry method and the resolution outcome
// class of the run. Everything per-run lands in fields.
func runPoint(result *callgraph.AnalyzeResult, at time.Time) *write.Point {
	entry := result.Root.Class + "." + result.Root.Method
	return influxdb2.NewPoint(
		"analysis_run",
		map[string]string{
			"entry": entry,
		},
		map[string]any{
			"run_id":           result.RunID,
			"entry_file":       result.Request.EntryFile,
			"requested_depth":  result.Request.MaxDepth,
			"total_nodes":      result.Stats.TotalNodes,
			"max_depth":        result.Stats.MaxDepth,
			"distinct_classes": result.Stats.DistinctClasses,
			"jar_resolved":     result.Stats.JarResolved,
			"unresolved":       result.Stats.Unresolved,
			"mappings":         result.Stats.Mappings,
			"duration_ms":      result.Stats.DurationMillis,
		},
		at,
	)
}
