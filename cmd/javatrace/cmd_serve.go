// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Morizady/javatrace/services/callgraph"
	"github.com/Morizady/javatrace/services/callgraph/index"
	"github.com/Morizady/javatrace/services/callgraph/snapshot"
	"github.com/Morizady/javatrace/services/callgraph/watch"
)

// Flag values for the serve command.
var (
	servePort  int
	serveWatch bool
	serveDebug bool
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis API for this project",
		Long: `Index the project and serve the call-graph HTTP API locally. This is
the quick way to browse a tree from other tools; the fully instrumented
deployment binary with tracing and run stats is cmd/callgraph.

Examples:
  javatrace serve
  javatrace serve --port 9090 --watch
  curl -X POST http://localhost:8080/v1/callgraph/analyze \
      -H "Content-Type: application/json" \
      -d '{"entry_file": "OrderController.java", "entry_method": "getOrder"}'`,
		Args: cobra.NoArgs,
		RunE: runServeCommand,
	}

	cmd.Flags().IntVarP(&servePort, "port", "p", 8080, "port to listen on")
	cmd.Flags().BoolVarP(&serveWatch, "watch", "w", false, "re-index when sources change")
	cmd.Flags().BoolVar(&serveDebug, "debug", false, "gin debug mode with request logging")

	return cmd
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	if serveDebug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	proj, err := openProject(ctx)
	if err != nil {
		return err
	}
	eng, err := proj.NewEngine()
	if err != nil {
		return err
	}

	// Snapshot endpoints work when the store opens; otherwise they answer
	// 503 and the rest of the API still serves.
	var store *snapshot.Store
	var closeStore func()
	if proj.Config.Snapshot.Enabled {
		store, closeStore, err = openSnapshotStore(effectiveSnapshotDir(proj.Config.Snapshot.Dir, proj.Root))
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: snapshot store unavailable, snapshot endpoints disabled: %v\n", err)
		}
	}

	var watcher *watch.Watcher
	if serveWatch {
		watcher, err = watch.New(proj.Root, proj.Build.Index, proj.Builder,
			watch.WithDebounce(time.Duration(proj.Config.Watch.DebounceMillis)*time.Millisecond),
			watch.WithMaxRebuildsPerMinute(proj.Config.Watch.MaxRebuildsPerMinute),
		)
		if err != nil {
			return fmt.Errorf("starting watcher: %w", err)
		}
		watcher.Start()
	}

	handlers, err := callgraph.NewHandlers(callgraph.HandlersConfig{
		Engine:      eng,
		Store:       store,
		Watcher:     watcher,
		ProjectRoot: proj.Root,
		EngineFactory: func(idx *index.ProjectIndex) (*callgraph.Engine, error) {
			return newEngineFor(proj.Config, idx)
		},
	})
	if err != nil {
		return err
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if serveDebug {
		router.Use(gin.Logger())
	}
	callgraph.RegisterRoutes(router.Group("/v1"), handlers)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		if watcher != nil {
			watcher.Close()
		}
		if closeStore != nil {
			closeStore()
		}
		os.Exit(0)
	}()

	stats := proj.Build.Index.Stats()
	addr := fmt.Sprintf(":%d", servePort)
	fmt.Printf("serving %d classes from %s on http://localhost%s/v1/callgraph (Ctrl+C to stop)\n",
		stats.TotalClasses, proj.Root, addr)
	if err := router.Run(addr); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
