// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command javatrace is the call-graph CLI.
//
// It indexes a Java source tree in-process and runs analyses locally, so no
// server is needed for day-to-day use. The long-running HTTP deployment with
// telemetry and watch mode lives in cmd/callgraph.
//
// Usage:
//
//	javatrace analyze OrderController.java getOrder
//	javatrace analyze --interactive
//	javatrace analyze OrderController.java getOrder --browse
//	javatrace index --root /path/to/project
//	javatrace snapshot save --label baseline
//	javatrace snapshot diff <snapshot-id>
//	javatrace impact --patch changes.diff --entry OrderController.java:getOrder
//	javatrace watch
//	javatrace export neo4j OrderController.java getOrder --clean
//	javatrace archive OrderController.java getOrder
//	javatrace serve --port 8080
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Morizady/javatrace/services/callgraph"
	"github.com/Morizady/javatrace/services/callgraph/config"
	"github.com/Morizady/javatrace/services/callgraph/index"
	"github.com/Morizady/javatrace/services/callgraph/java"
	"github.com/Morizady/javatrace/services/callgraph/resolve"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

// Persistent flags shared by every subcommand.
var (
	rootFlag    string
	configFlag  string
	verboseFlag bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "javatrace",
		Short:   "Heuristic call-graph analysis for Java source trees",
		Version: version,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			// Keep indexing chatter off the terminal unless asked for.
			level := slog.LevelWarn
			if verboseFlag {
				level = slog.LevelInfo
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr,
				&slog.HandlerOptions{Level: level})))
		},
	}

	rootCmd.PersistentFlags().StringVar(&rootFlag, "root", ".", "Java project root")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "project config file (default: <root>/callgraph.yml)")
	rootCmd.PersistentFlags().BoolVar(&verboseFlag, "verbose", false, "log indexing and analysis progress")

	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newIndexCmd())
	rootCmd.AddCommand(newSnapshotCmd())
	rootCmd.AddCommand(newImpactCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newArchiveCmd())
	rootCmd.AddCommand(newServeCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// project bundles everything a command needs once the source tree has been
// indexed: the absolute root, the effective configuration, the builder, and
// the build result. The builder is kept so watch mode can re-run it.
type project struct {
	Root    string
	Config  *config.Config
	Builder *index.Builder
	Build   *index.BuildResult
}

// openProject resolves the root and config flags, indexes the source tree,
// and reports how the build went.
//
// Description:
//
//	The config file is optional; a missing file keeps the embedded
//	defaults and a broken one degrades to them with a warning, the same
//	policy the server follows. Index builds never fail on individual
//	files, so the returned build may be partial; per-file skips are
//	summarized on stderr.
//
// Outputs:
//   - *project: Ready project. Build.Index is frozen.
//   - error: Root resolution or walk failure.
func openProject(ctx context.Context) (*project, error) {
	root, err := filepath.Abs(rootFlag)
	if err != nil {
		return nil, fmt.Errorf("resolving --root: %w", err)
	}

	cfg := loadCLIConfig(root)

	builder := index.NewBuilder(builderOptions(root, cfg)...)
	start := time.Now()
	res, err := builder.Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("indexing %s: %w", root, err)
	}
	if len(res.Skipped) > 0 {
		fmt.Fprintf(os.Stderr, "skipped %d unparsable files (rerun with --verbose for details)\n", len(res.Skipped))
	}
	if res.Incomplete {
		fmt.Fprintln(os.Stderr, "warning: class capacity reached, the index is partial")
	}
	slog.Info("index built",
		slog.Int("classes", res.Stats.Classes),
		slog.Int("methods", res.Stats.Methods),
		slog.Duration("duration", time.Since(start)))

	return &project{Root: root, Config: cfg, Builder: builder, Build: res}, nil
}

// NewEngine constructs an analysis engine over the project's index with the
// configured depth, ignore list, suppressions, and framework catalog.
func (p *project) NewEngine() (*callgraph.Engine, error) {
	return newEngineFor(p.Config, p.Build.Index)
}

// newEngineFor builds an engine over any index with the given config. The
// serve command reuses it as the rebuild factory for watch mode.
func newEngineFor(cfg *config.Config, idx *index.ProjectIndex) (*callgraph.Engine, error) {
	opts := []callgraph.EngineOption{
		callgraph.WithDefaultDepth(cfg.Analysis.MaxDepth),
		callgraph.WithBaseIgnore(cfg.Analysis.Ignore),
		callgraph.WithAccessorSuppression(cfg.Analysis.SuppressAccessors),
		callgraph.WithConstructorSuppression(cfg.Analysis.SuppressConstructors),
	}
	if cfg.Analysis.FrameworkCatalog != "" {
		fr, err := resolve.NewFrameworkResolver(
			resolve.WithCatalogFile(cfg.Analysis.FrameworkCatalog))
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: framework catalog %s unusable, using built-ins: %v\n",
				cfg.Analysis.FrameworkCatalog, err)
		} else {
			opts = append(opts, callgraph.WithResolver(
				resolve.NewResolver(idx, resolve.WithFrameworkResolver(fr))))
		}
	}
	return callgraph.NewEngine(idx, opts...)
}

// loadCLIConfig loads the project config for the resolved root, degrading
// to embedded defaults when the file is absent or broken.
func loadCLIConfig(root string) *config.Config {
	path := configFlag
	if path == "" {
		path = filepath.Join(root, config.DefaultProjectFile)
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: config %s unusable, using defaults: %v\n", path, err)
		cfg, err = config.Default()
		if err != nil {
			// The embedded defaults parse or nothing does.
			fmt.Fprintf(os.Stderr, "broken embedded defaults: %v\n", err)
			os.Exit(1)
		}
	}
	return cfg
}

// builderOptions translates the parsing config into index builder options.
func builderOptions(root string, cfg *config.Config) []index.BuilderOption {
	opts := []index.BuilderOption{
		index.WithRoot(root),
		index.WithExcludedGlobs(cfg.Parsing.EffectiveExcludeGlobs()),
	}
	if cfg.Parsing.Extractor == config.ExtractorTreeSitter {
		opts = append(opts, index.WithParser(java.NewSitterParser()))
	}
	return opts
}
