// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Morizady/javatrace/services/callgraph/tree"
)

// GraphExporter loads analysis runs into Neo4j using batch UNWIND queries.
//
// Description:
//
//	Each exported run becomes one AnalysisRun node, one JavaMethod node per
//	distinct method in the call tree, and one CALLS relationship per
//	caller/callee pair. Method nodes are keyed by their qualified
//	signature, so repeated exports of overlapping trees converge on a
//	single shared graph.
//
// Thread Safety: Safe for concurrent use. The underlying driver pools
// connections.
type GraphExporter struct {
	driver   neo4j.DriverWithContext
	database string
	log      *slog.Logger
}

// NewGraphExporter connects to Neo4j and returns a ready-to-use exporter.
//
// Description:
//
//	Validates the configuration, decrypts the sealed credential for the
//	driver handshake, and constructs the driver. Construction does not
//	dial the server; the first query does.
//
// Inputs:
//   - ctx: Unused during construction, reserved for future handshakes.
//   - cfg: Connection settings. The password must be sealed already.
//   - logger: Destination for export progress. Must not be nil.
//
// Outputs:
//   - *GraphExporter: Ready exporter. Callers own Close.
//   - error: Configuration or driver-construction failure.
func NewGraphExporter(ctx context.Context, cfg *Neo4jConfig, logger *slog.Logger) (*GraphExporter, error) {
	_ = ctx
	if cfg == nil {
		return nil, errors.New("config must not be nil")
	}
	if logger == nil {
		return nil, errors.New("logger must not be nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid neo4j config: %w", err)
	}

	pw, err := cfg.openPassword()
	if err != nil {
		return nil, err
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, pw, ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}

	return &GraphExporter{
		driver:   driver,
		database: cfg.Database,
		log:      logger,
	}, nil
}

// Close releases the underlying driver resources.
func (g *GraphExporter) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}

// runCypher runs a single Cypher statement with optional parameters.
func (g *GraphExporter) runCypher(ctx context.Context, cypher string, params map[string]any) error {
	_, err := neo4j.ExecuteQuery(ctx, g.driver, cypher, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(g.database))
	return err
}

// Clean removes all previously exported nodes and relationships.
func (g *GraphExporter) Clean(ctx context.Context) error {
	g.log.Info("cleaning existing call-graph data")
	queries := []string{
		"MATCH ()-[r:CALLS]->() DELETE r",
		"MATCH ()-[r:ENTERED_AT]->() DELETE r",
		"MATCH (n:JavaMethod) DETACH DELETE n",
		"MATCH (n:AnalysisRun) DETACH DELETE n",
	}
	for _, q := range queries {
		if err := g.runCypher(ctx, q, nil); err != nil {
			return err
		}
	}
	return nil
}

// EnsureIndexes creates the required Neo4j indexes if they do not exist.
func (g *GraphExporter) EnsureIndexes(ctx context.Context) error {
	indexes := []string{
		"CREATE INDEX java_method_key IF NOT EXISTS FOR (n:JavaMethod) ON (n.key)",
		"CREATE INDEX analysis_run_id IF NOT EXISTS FOR (n:AnalysisRun) ON (n.run_id)",
	}
	for _, q := range indexes {
		if err := g.runCypher(ctx, q, nil); err != nil {
			return err
		}
	}
	return nil
}

// ExportRun upserts one analysis run into the graph.
//
// Description:
//
//	Walks the call tree into method and call batches, upserts them with
//	UNWIND queries, then records the AnalysisRun node and its ENTERED_AT
//	edge to the entry method. Re-exporting the same run is idempotent.
//
// Inputs:
//   - ctx: Cancels in-flight queries.
//   - runID: The run's UUID, the AnalysisRun merge key.
//   - ana: Completed analysis. Root must not be nil.
//
// Outputs:
//   - error: Validation or query failure. Partial exports are possible on
//     failure; rerunning converges.
func (g *GraphExporter) ExportRun(ctx context.Context, runID string, ana *tree.Analysis) error {
	if runID == "" {
		return errors.New("run ID must not be empty")
	}
	if ana == nil || ana.Root == nil {
		return errors.New("analysis root must not be nil")
	}

	methods := methodRows(ana.Root)
	calls := callRows(ana.Root)

	if err := g.runCypher(ctx,
		`UNWIND $batch AS row
		 MERGE (m:JavaMethod {key: row.key})
		 SET m.class = row.class, m.package = row.package, m.method = row.method,
		     m.file = row.file, m.line = row.line, m.return_type = row.return_type,
		     m.signature = row.signature`,
		map[string]any{"batch": methods},
	); err != nil {
		recordGraphExport("error")
		return fmt.Errorf("loading method nodes: %w", err)
	}

	if len(calls) > 0 {
		if err := g.runCypher(ctx,
			`UNWIND $batch AS row
			 MERGE (caller:JavaMethod {key: row.caller})
			 MERGE (callee:JavaMethod {key: row.callee})
			 MERGE (caller)-[r:CALLS]->(callee)
			 SET r.kind = row.kind, r.line = row.line, r.depth = row.depth`,
			map[string]any{"batch": calls},
		); err != nil {
			recordGraphExport("error")
			return fmt.Errorf("loading call edges: %w", err)
		}
	}

	if err := g.runCypher(ctx,
		`MERGE (run:AnalysisRun {run_id: $run_id})
		 SET run.entry = $entry, run.created_at_milli = $created_at_milli,
		     run.total_nodes = $total_nodes, run.distinct_classes = $distinct_classes,
		     run.unresolved = $unresolved, run.mappings = $mappings
		 WITH run
		 MATCH (m:JavaMethod {key: $entry_key})
		 MERGE (run)-[:ENTERED_AT]->(m)`,
		map[string]any{
			"run_id":           runID,
			"entry":            ana.Root.Class + "." + ana.Root.Method,
			"created_at_milli": time.Now().UnixMilli(),
			"total_nodes":      ana.Stats.TotalNodes,
			"distinct_classes": ana.Stats.DistinctClasses,
			"unresolved":       ana.Stats.Unresolved,
			"mappings":         ana.Stats.Mappings,
			"entry_key":        methodKey(ana.Root),
		},
	); err != nil {
		recordGraphExport("error")
		return fmt.Errorf("recording analysis run: %w", err)
	}

	recordGraphExport("ok")
	g.log.Info("graph export complete",
		"run_id", runID,
		"methods", len(methods),
		"calls", len(calls))
	return nil
}

// methodKey renders a node's stable merge key as
// package.Class.method(param,param). The package segment is omitted for
// default-package classes.
func methodKey(n *tree.Node) string {
	qualified := n.Class
	if n.Package != "" {
		qualified = n.Package + "." + n.Class
	}
	return fmt.Sprintf("%s.%s(%s)", qualified, n.Method, strings.Join(n.Params, ","))
}

// methodRows flattens a call tree into one row per distinct method, first
// occurrence wins. Row order follows the pre-order walk so batches are
// deterministic.
func methodRows(root *tree.Node) []map[string]any {
	seen := make(map[string]bool)
	rows := make([]map[string]any, 0)
	root.Walk(func(n *tree.Node) {
		key := methodKey(n)
		if seen[key] {
			return
		}
		seen[key] = true
		rows = append(rows, map[string]any{
			"key":         key,
			"class":       n.Class,
			"package":     n.Package,
			"method":      n.Method,
			"file":        n.File,
			"line":        n.Line,
			"return_type": n.ReturnType,
			"signature":   strings.Join(n.Params, ", "),
		})
	})
	return rows
}

// callRows flattens a call tree into one row per distinct caller/callee
// pair. The first occurrence's kind, line, and depth win; deeper repeats
// of the same edge are dropped.
func callRows(root *tree.Node) []map[string]any {
	seen := make(map[string]bool)
	rows := make([]map[string]any, 0)
	var walk func(parent *tree.Node)
	walk = func(parent *tree.Node) {
		callerKey := methodKey(parent)
		for _, child := range parent.Children {
			edge := callerKey + "->" + methodKey(child)
			if !seen[edge] {
				seen[edge] = true
				rows = append(rows, map[string]any{
					"caller": callerKey,
					"callee": methodKey(child),
					"kind":   string(child.Kind),
					"line":   child.Line,
					"depth":  child.Depth,
				})
			}
			walk(child)
		}
	}
	walk(root)
	return rows
}
