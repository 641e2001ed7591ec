// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command callgraph starts the javatrace call-graph API server.
//
// The server indexes a Java source tree at startup and serves heuristic
// call-graph analyses over HTTP:
//   - Depth-bounded call trees from any entry method
//   - Interface, inheritance, and framework-catalog resolution
//   - Change-impact mapping from unified diffs
//   - Index snapshots, diffs, and a websocket rebuild stream
//
// Usage:
//
//	go run ./cmd/callgraph -root /path/to/java/project
//	go run ./cmd/callgraph -root . -port 9090 -watch
//
// With InfluxDB run stats:
//
//	CALLGRAPH_INFLUX_TOKEN=... CALLGRAPH_INFLUX_URL=http://localhost:8086 \
//	  go run ./cmd/callgraph -root .
//
// With OTLP tracing:
//
//	CALLGRAPH_OTLP_ENDPOINT=localhost:4317 go run ./cmd/callgraph -root .
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/v1/callgraph/health
//
//	# Build a call tree
//	curl -X POST http://localhost:8080/v1/callgraph/analyze \
//	  -H "Content-Type: application/json" \
//	  -d '{"entry_file": "OrderController.java", "entry_method": "getOrder", "max_depth": 5}'
//
//	# Search methods
//	curl 'http://localhost:8080/v1/callgraph/search?q=findOne'
//
//	# Save a snapshot
//	curl -X POST http://localhost:8080/v1/callgraph/snapshots \
//	  -H "Content-Type: application/json" -d '{"label": "baseline"}'
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/Morizady/javatrace/services/callgraph"
	"github.com/Morizady/javatrace/services/callgraph/config"
	"github.com/Morizady/javatrace/services/callgraph/index"
	"github.com/Morizady/javatrace/services/callgraph/java"
	"github.com/Morizady/javatrace/services/callgraph/resolve"
	"github.com/Morizady/javatrace/services/callgraph/snapshot"
	"github.com/Morizady/javatrace/services/callgraph/stats"
	"github.com/Morizady/javatrace/services/callgraph/telemetry"
	"github.com/Morizady/javatrace/services/callgraph/watch"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	port := flag.Int("port", 8080, "Port to listen on")
	debug := flag.Bool("debug", false, "Enable debug mode")
	root := flag.String("root", ".", "Java project root to index")
	configPath := flag.String("config", "", "Project config file (default: <root>/callgraph.yml)")
	watchMode := flag.Bool("watch", false, "Rebuild the index when sources change")
	flag.Parse()

	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Telemetry first: traces to OTLP when configured, metrics on /metrics,
	// W3C trace context propagation for all handlers.
	shutdownTelemetry, err := telemetry.Setup(context.Background(), version,
		telemetry.LoadConfig(), slog.Default())
	if err != nil {
		slog.Error("Telemetry setup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	projectRoot, err := filepath.Abs(*root)
	if err != nil {
		slog.Error("Resolving project root failed",
			slog.String("root", *root),
			slog.String("error", err.Error()))
		os.Exit(1)
	}

	cfg := loadProjectConfig(*configPath, projectRoot)

	// Build the index up front; the server never serves an empty tree.
	builder := index.NewBuilder(builderOptions(projectRoot, cfg)...)
	buildStart := time.Now()
	res, err := builder.Build(context.Background())
	if err != nil {
		slog.Error("Index build failed",
			slog.String("root", projectRoot),
			slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("Index built",
		slog.String("root", projectRoot),
		slog.Int("files", res.Stats.FilesParsed),
		slog.Int("classes", res.Stats.Classes),
		slog.Int("methods", res.Stats.Methods),
		slog.Int("skipped", res.Stats.FilesSkipped),
		slog.Duration("duration", time.Since(buildStart)),
	)
	if res.Incomplete {
		slog.Warn("Index build stopped early, results are partial")
	}

	// InfluxDB run stats: enabled only when a token is configured.
	var recorder *stats.Recorder
	if influxCfg := stats.LoadInfluxConfig(); influxCfg.HasToken() {
		recorder, err = stats.NewRecorder(influxCfg, slog.Default())
		if err != nil {
			slog.Warn("Run stats recorder unavailable, continuing without it",
				slog.String("error", err.Error()))
		} else {
			slog.Info("Run stats recorder enabled",
				slog.String("url", influxCfg.URL),
				slog.String("bucket", influxCfg.Bucket))
		}
	}

	engineFactory := newEngineFactory(cfg, recorder)
	engine, err := engineFactory(res.Index)
	if err != nil {
		slog.Error("Engine construction failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Snapshot store. Graceful degradation: if the store cannot open, the
	// snapshot endpoints answer 503 and everything else keeps working.
	var store *snapshot.Store
	var storeDB *badger.DB
	if cfg.Snapshot.Enabled {
		db, dbErr := snapshot.OpenDB(cfg.Snapshot.Dir)
		if dbErr != nil {
			slog.Warn("Snapshot store unavailable, snapshot endpoints disabled",
				slog.String("dir", cfg.Snapshot.Dir),
				slog.String("error", dbErr.Error()))
		} else {
			storeDB = db
			store, err = snapshot.NewStore(db, slog.Default())
			if err != nil {
				slog.Warn("Snapshot store unavailable, snapshot endpoints disabled",
					slog.String("error", err.Error()))
				db.Close()
				storeDB = nil
			} else {
				slog.Info("Snapshot store opened", slog.String("dir", cfg.Snapshot.Dir))
			}
		}
	}

	// Watch mode: the handlers rebuild their engine whenever the watcher
	// swaps in a freshly indexed tree.
	var watcher *watch.Watcher
	if *watchMode {
		watcher, err = watch.New(projectRoot, res.Index, builder,
			watch.WithDebounce(time.Duration(cfg.Watch.DebounceMillis)*time.Millisecond),
			watch.WithMaxRebuildsPerMinute(cfg.Watch.MaxRebuildsPerMinute),
		)
		if err != nil {
			slog.Error("Watcher setup failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		watcher.Start()
		slog.Info("Watch mode enabled", slog.String("root", projectRoot))
	}

	handlers, err := callgraph.NewHandlers(callgraph.HandlersConfig{
		Engine:        engine,
		Store:         store,
		Watcher:       watcher,
		ProjectRoot:   projectRoot,
		EngineFactory: engineFactory,
	})
	if err != nil {
		slog.Error("Handler setup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("javatrace"))
	if *debug {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	callgraph.RegisterRoutes(v1, handlers)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	printBanner(*port, res.Stats.Classes, *watchMode, store != nil)

	// Handle graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		slog.Info("Shutting down javatrace server")
		if watcher != nil {
			if err := watcher.Close(); err != nil {
				slog.Warn("Failed to close watcher", slog.String("error", err.Error()))
			}
		}
		if recorder != nil {
			recorder.Close()
		}
		if storeDB != nil {
			if err := storeDB.Close(); err != nil {
				slog.Warn("Failed to close snapshot store", slog.String("error", err.Error()))
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			slog.Warn("Telemetry shutdown failed", slog.String("error", err.Error()))
		}
		os.Exit(0)
	}()

	addr := fmt.Sprintf(":%d", *port)
	slog.Info("Starting javatrace server", slog.String("address", addr))
	if err := router.Run(addr); err != nil {
		slog.Error("Failed to start server", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// loadProjectConfig loads the project config, falling back to defaults
// when the file is absent or broken. A bad config file must not take the
// server down; the defaults always work.
func loadProjectConfig(explicit, projectRoot string) *config.Config {
	path := explicit
	if path == "" {
		path = filepath.Join(projectRoot, config.DefaultProjectFile)
	}
	cfg, err := config.Load(path)
	if err != nil {
		slog.Warn("Project config unusable, using defaults",
			slog.String("path", path),
			slog.String("error", err.Error()))
		cfg, err = config.Default()
		if err != nil {
			slog.Error("Embedded defaults broken", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}
	return cfg
}

// builderOptions translates the parsing config into index builder options.
func builderOptions(projectRoot string, cfg *config.Config) []index.BuilderOption {
	opts := []index.BuilderOption{
		index.WithRoot(projectRoot),
		index.WithExcludedGlobs(cfg.Parsing.EffectiveExcludeGlobs()),
	}
	if cfg.Parsing.Extractor == config.ExtractorTreeSitter {
		opts = append(opts, index.WithParser(java.NewSitterParser()))
	}
	return opts
}

// newEngineFactory returns the engine constructor used at boot and after
// every watcher rebuild, so rebuilt engines keep the configured depth,
// ignore list, suppressions, framework catalog, and stats recorder.
func newEngineFactory(cfg *config.Config, recorder *stats.Recorder) func(*index.ProjectIndex) (*callgraph.Engine, error) {
	return func(idx *index.ProjectIndex) (*callgraph.Engine, error) {
		opts := []callgraph.EngineOption{
			callgraph.WithDefaultDepth(cfg.Analysis.MaxDepth),
			callgraph.WithBaseIgnore(cfg.Analysis.Ignore),
			callgraph.WithAccessorSuppression(cfg.Analysis.SuppressAccessors),
			callgraph.WithConstructorSuppression(cfg.Analysis.SuppressConstructors),
		}
		if recorder != nil {
			opts = append(opts, callgraph.WithRunRecorder(recorder))
		}
		if cfg.Analysis.FrameworkCatalog != "" {
			fr, err := resolve.NewFrameworkResolver(
				resolve.WithCatalogFile(cfg.Analysis.FrameworkCatalog))
			if err != nil {
				slog.Warn("Framework catalog unusable, using built-ins only",
					slog.String("path", cfg.Analysis.FrameworkCatalog),
					slog.String("error", err.Error()))
			} else {
				opts = append(opts, callgraph.WithResolver(
					resolve.NewResolver(idx, resolve.WithFrameworkResolver(fr))))
			}
		}
		return callgraph.NewEngine(idx, opts...)
	}
}

func printBanner(port, classes int, watching, snapshots bool) {
	onOff := func(b bool) string {
		if b {
			return "ENABLED"
		}
		return "disabled"
	}

	banner := `
╔═══════════════════════════════════════════════════════════════════╗
║                        JAVATRACE SERVER                           ║
╠═══════════════════════════════════════════════════════════════════╣
║                                                                   ║
║  Heuristic Java call-graph analysis over HTTP.                    ║
║  Indexed classes: %-6d  Watch: %-8s  Snapshots: %-8s    ║
║                                                                   ║
║  Quick Start:                                                     ║
║  ┌─────────────────────────────────────────────────────────────┐  ║
║  │ # Health check                                              │  ║
║  │ curl http://localhost:%d/v1/callgraph/health           │  ║
║  │                                                             │  ║
║  │ # Build a call tree                                         │  ║
║  │ curl -X POST http://localhost:%d/v1/callgraph/analyze \│  ║
║  │   -H "Content-Type: application/json" \                     │  ║
║  │   -d '{"entry_file": "App.java", "entry_method": "main"}'   │  ║
║  │                                                             │  ║
║  │ # Search methods                                            │  ║
║  │ curl 'http://localhost:%d/v1/callgraph/search?q=save'  │  ║
║  └─────────────────────────────────────────────────────────────┘  ║
║                                                                   ║
║  Endpoints:                                                       ║
║  ├── Analysis: /analyze, /analyze/batch, /impact                  ║
║  ├── Browse: /classes/:name, /search, /index/stats                ║
║  ├── Snapshots: /snapshots, /snapshots/diff, /snapshots/:id       ║
║  └── Watch: /watch/stream (websocket)                             ║
║                                                                   ║
║  Press Ctrl+C to stop                                             ║
╚═══════════════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, classes, onOff(watching), onOff(snapshots), port, port, port)
}
