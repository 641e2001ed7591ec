// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package callgraph

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the call-graph API on the given router group,
// usually /v1.
//
// Endpoints:
//
//	POST   /callgraph/analyze                          Build one call tree
//	POST   /callgraph/analyze/batch                    Build several call trees
//	POST   /callgraph/impact                           Map a diff onto entry points
//	GET    /callgraph/classes/:name                    Class declaration view
//	GET    /callgraph/classes/:name/implementations    Interface implementations
//	GET    /callgraph/classes/:name/subclasses         Direct subclasses
//	GET    /callgraph/search                           Ranked method search
//	GET    /callgraph/index/stats                      Index counters
//	GET    /callgraph/index/export                     Index JSON download
//	POST   /callgraph/snapshots                        Save the current index
//	GET    /callgraph/snapshots                        List snapshots
//	GET    /callgraph/snapshots/diff                   Diff two snapshots
//	GET    /callgraph/snapshots/:id                    Load one snapshot
//	DELETE /callgraph/snapshots/:id                    Delete one snapshot
//	GET    /callgraph/watch/stream                     Websocket rebuild stream
//	GET    /callgraph/health                           Liveness
//	GET    /callgraph/ready                            Readiness
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	callgraph := rg.Group("/callgraph")
	{
		// Analysis
		callgraph.POST("/analyze", handlers.HandleAnalyze)
		callgraph.POST("/analyze/batch", handlers.HandleAnalyzeBatch)
		callgraph.POST("/impact", handlers.HandleImpact)

		// Index browsing
		callgraph.GET("/classes/:name", handlers.HandleGetClass)
		callgraph.GET("/classes/:name/implementations", handlers.HandleGetImplementations)
		callgraph.GET("/classes/:name/subclasses", handlers.HandleGetSubclasses)
		callgraph.GET("/search", handlers.HandleSearch)
		callgraph.GET("/index/stats", handlers.HandleIndexStats)
		callgraph.GET("/index/export", handlers.HandleIndexExport)

		// Snapshots. diff must be registered before the :id wildcard.
		callgraph.POST("/snapshots", handlers.HandleSaveSnapshot)
		callgraph.GET("/snapshots", handlers.HandleListSnapshots)
		callgraph.GET("/snapshots/diff", handlers.HandleDiffSnapshots)
		callgraph.GET("/snapshots/:id", handlers.HandleGetSnapshot)
		callgraph.DELETE("/snapshots/:id", handlers.HandleDeleteSnapshot)

		// Watch mode
		callgraph.GET("/watch/stream", handlers.HandleWatchStream)

		// Probes
		callgraph.GET("/health", handlers.HandleHealth)
		callgraph.GET("/ready", handlers.HandleReady)
	}
}

// RegisterRoutesWithMiddleware is RegisterRoutes with a middleware, for
// deployments that gate the API behind auth.
func RegisterRoutesWithMiddleware(rg *gin.RouterGroup, handlers *Handlers, middleware gin.HandlerFunc) {
	group := rg.Group("")
	group.Use(middleware)
	RegisterRoutes(group, handlers)
}
