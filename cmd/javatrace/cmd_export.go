// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Morizady/javatrace/services/callgraph"
	"github.com/Morizady/javatrace/services/callgraph/export"
	"github.com/Morizady/javatrace/services/callgraph/tree"
)

// Flag values for export neo4j.
var (
	neo4jURI      string
	neo4jUser     string
	neo4jDatabase string
	neo4jClean    bool
	neo4jDepth    int
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export analyses to external systems",
	}
	cmd.AddCommand(newExportNeo4jCmd())
	return cmd
}

func newExportNeo4jCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "neo4j <entry-file> <entry-method>",
		Short: "Analyze an entry and load the call graph into Neo4j",
		Long: `Run one analysis and upsert its call tree into Neo4j as JavaMethod
nodes with CALLS relationships, plus an AnalysisRun node recording the
run. Re-exporting overlapping trees converges on a shared graph.

The password is read from CALLGRAPH_NEO4J_PASSWORD; it is never a flag,
so it stays out of shell history and process listings.

Examples:
  CALLGRAPH_NEO4J_PASSWORD=secret javatrace export neo4j OrderController.java getOrder
  CALLGRAPH_NEO4J_PASSWORD=secret javatrace export neo4j OrderController.java getOrder \
      --uri bolt://graph.internal:7687 --clean`,
		Args: cobra.ExactArgs(2),
		RunE: runExportNeo4jCommand,
	}

	cmd.Flags().StringVar(&neo4jURI, "uri", "", "bolt URI (default from CALLGRAPH_NEO4J_URI)")
	cmd.Flags().StringVar(&neo4jUser, "user", "", "username (default from CALLGRAPH_NEO4J_USER)")
	cmd.Flags().StringVar(&neo4jDatabase, "database", "", "database name (default from CALLGRAPH_NEO4J_DATABASE)")
	cmd.Flags().BoolVar(&neo4jClean, "clean", false, "delete previously exported graph data first")
	cmd.Flags().IntVarP(&neo4jDepth, "depth", "d", 0, "maximum tree depth (0 = config default)")

	return cmd
}

func runExportNeo4jCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg := export.LoadNeo4jConfig()
	if neo4jURI != "" {
		cfg.URI = neo4jURI
	}
	if neo4jUser != "" {
		cfg.Username = neo4jUser
	}
	if neo4jDatabase != "" {
		cfg.Database = neo4jDatabase
	}
	if !cfg.HasPassword() {
		return fmt.Errorf("set CALLGRAPH_NEO4J_PASSWORD to authenticate")
	}

	// Analyze before connecting so a bad entry never touches the database.
	proj, err := openProject(ctx)
	if err != nil {
		return err
	}
	eng, err := proj.NewEngine()
	if err != nil {
		return err
	}
	depth := neo4jDepth
	if depth == 0 {
		depth = eng.DefaultDepth()
	}
	result, err := eng.Analyze(ctx, callgraph.AnalyzeRequest{
		EntryFile:   args[0],
		EntryMethod: args[1],
		MaxDepth:    depth,
	})
	if err != nil {
		return err
	}
	fmt.Printf("analyzed %s: %d nodes, %d classes\n",
		result.Root.Label(), result.Stats.TotalNodes, result.Stats.DistinctClasses)

	exporter, err := export.NewGraphExporter(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer exporter.Close(ctx)

	if neo4jClean {
		if err := exporter.Clean(ctx); err != nil {
			return fmt.Errorf("cleaning graph: %w", err)
		}
	}
	if err := exporter.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("creating indexes: %w", err)
	}

	ana := &tree.Analysis{Root: result.Root, Mappings: result.Mappings, Stats: result.Stats}
	if err := exporter.ExportRun(ctx, result.RunID, ana); err != nil {
		return fmt.Errorf("exporting run: %w", err)
	}

	fmt.Printf("exported run %s to %s\n", result.RunID, cfg.URI)
	fmt.Println()
	fmt.Println("Useful Cypher queries:")
	fmt.Println("  // Methods with the most outgoing calls")
	fmt.Println("  MATCH (m:JavaMethod)-[:CALLS]->(callee) RETURN m.key, count(callee) AS calls ORDER BY calls DESC LIMIT 20")
	fmt.Println()
	fmt.Println("  // Who calls a specific method")
	fmt.Println("  MATCH (caller:JavaMethod)-[:CALLS]->(m:JavaMethod {method: 'getOrder'}) RETURN caller.key")
	fmt.Println()
	fmt.Println("  // Unresolved edges in the latest runs")
	fmt.Println("  MATCH (a)-[r:CALLS {kind: 'unresolved'}]->(b) RETURN a.key, b.key, r.line")
	fmt.Println()
	fmt.Println("  // Entry points of recorded runs")
	fmt.Println("  MATCH (run:AnalysisRun)-[:ENTERED_AT]->(m) RETURN run.run_id, run.entry, run.total_nodes")
	return nil
}
