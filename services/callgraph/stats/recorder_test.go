// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stats

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/Morizady/javatrace/services/callgraph"
	"github.com/Morizady/javatrace/services/callgraph/resolve"
	"github.com/Morizady/javatrace/services/callgraph/tree"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func fakeResult() *callgraph.AnalyzeResult {
	return &callgraph.AnalyzeResult{
		RunID: "run-42",
		Request: callgraph.AnalyzeRequest{
			EntryFile:   "src/com/shop/OrderController.java",
			EntryMethod: "getOrder",
			MaxDepth:    3,
		},
		Root: &tree.Node{
			Method: "getOrder",
			Class:  "OrderController",
			Kind:   resolve.KindRoot,
		},
		Stats: tree.RunStats{
			TotalNodes:      7,
			MaxDepth:        2,
			DistinctClasses: 4,
			JarResolved:     1,
			Unresolved:      1,
			Mappings:        2,
			DurationMillis:  12,
		},
	}
}

func TestRunPoint_TagsAndFields(t *testing.T) {
	at := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	p := runPoint(fakeResult(), at)

	if p.Name() != "analysis_run" {
		t.Errorf("measurement = %q", p.Name())
	}
	if !p.Time().Equal(at) {
		t.Errorf("time = %v", p.Time())
	}

	tags := make(map[string]string)
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["entry"] != "OrderController.getOrder" {
		t.Errorf("entry tag = %q", tags["entry"])
	}

	fields := make(map[string]any)
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	if fields["run_id"] != "run-42" || fields["entry_file"] != "src/com/shop/OrderController.java" {
		t.Errorf("identity fields = %v", fields)
	}
	if fields["total_nodes"] != int64(7) || fields["requested_depth"] != int64(3) {
		t.Errorf("count fields = %v", fields)
	}
	if fields["duration_ms"] != int64(12) || fields["unresolved"] != int64(1) {
		t.Errorf("outcome fields = %v", fields)
	}
}

func TestNewRecorder_Validation(t *testing.T) {
	log := testLogger()

	if _, err := NewRecorder(nil, log); err == nil {
		t.Error("nil config accepted")
	}

	cfg := &InfluxConfig{URL: "http://localhost:8086", Org: "o", Bucket: "b", BatchSize: 20}
	if _, err := NewRecorder(cfg, nil); err == nil {
		t.Error("nil logger accepted")
	}
	if _, err := NewRecorder(cfg, log); err == nil {
		t.Error("missing token accepted")
	}

	cfg.SetToken("tok")
	cfg.BatchSize = 0
	if _, err := NewRecorder(cfg, log); err == nil {
		t.Error("zero batch size accepted")
	}
}

// Client construction is offline; only flushes dial the server.
func TestRecorder_OfflineLifecycle(t *testing.T) {
	cfg := &InfluxConfig{URL: "http://127.0.0.1:1", Org: "o", Bucket: "b", BatchSize: 20}
	cfg.SetToken("tok")

	r, err := NewRecorder(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	// Incomplete results are dropped without queuing.
	r.RecordRun(context.Background(), nil)
	r.RecordRun(context.Background(), &callgraph.AnalyzeResult{RunID: "no-root"})

	r.Close()

	select {
	case <-r.drained:
	default:
		t.Error("error drain still running after Close")
	}
}
