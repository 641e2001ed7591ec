// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package callgraph assembles the Java call-graph analysis engine: a frozen
// project index, the call-site resolver and the tree builder behind one
// Analyze operation, plus the HTTP surface that serves it.
package callgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Morizady/javatrace/services/callgraph/index"
	"github.com/Morizady/javatrace/services/callgraph/java"
	"github.com/Morizady/javatrace/services/callgraph/resolve"
	"github.com/Morizady/javatrace/services/callgraph/tree"
)

// DefaultAnalyzeLimit bounds parallel analyses when AnalyzeAll is called
// without a limit.
const DefaultAnalyzeLimit = 4

// AnalyzeRequest names one entry method to analyze.
type AnalyzeRequest struct {
	// EntryFile is the path of the file declaring the entry method, as
	// indexed or as a unique path suffix.
	EntryFile string `json:"entry_file" binding:"required"`

	// EntryMethod is the method name to analyze within EntryFile.
	EntryMethod string `json:"entry_method" binding:"required"`

	// MaxDepth bounds the tree depth. Zero yields a root-only tree.
	MaxDepth int `json:"max_depth" binding:"gte=0"`

	// Ignore lists method and class names excluded from the tree, on top
	// of the engine's configured ignore list.
	Ignore []string `json:"ignore,omitempty"`
}

// validate rejects a request before any analysis work starts.
func (r AnalyzeRequest) validate() error {
	if strings.TrimSpace(r.EntryFile) == "" {
		return fmt.Errorf("%w: entry_file is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.EntryMethod) == "" {
		return fmt.Errorf("%w: entry_method is required", ErrInvalidRequest)
	}
	if r.MaxDepth < 0 {
		return fmt.Errorf("%w: max_depth %d is negative", ErrInvalidRequest, r.MaxDepth)
	}
	for _, name := range r.Ignore {
		if strings.TrimSpace(name) == "" || strings.ContainsAny(name, " \t") {
			return fmt.Errorf("%w: malformed ignore entry %q", ErrInvalidRequest, name)
		}
	}
	return nil
}

// AnalyzeResult is one completed analysis run.
type AnalyzeResult struct {
	// RunID uniquely identifies this run in logs, stats and exports.
	RunID string `json:"run_id"`

	// Request echoes the analyzed request.
	Request AnalyzeRequest `json:"request"`

	// Root is the call tree starting at the entry method.
	Root *tree.Node `json:"call_tree"`

	// Mappings is the run-scoped cross-reference list.
	Mappings []tree.MethodMapping `json:"method_mappings"`

	// Stats summarizes the run.
	Stats tree.RunStats `json:"stats"`
}

// Serializable returns the schema-versioned envelope used by snapshots,
// exports and HTTP downloads.
func (r *AnalyzeResult) Serializable() *tree.SerializableAnalysis {
	ana := &tree.Analysis{Root: r.Root, Mappings: r.Mappings, Stats: r.Stats}
	return ana.ToSerializable(r.Request.MaxDepth)
}

// RunRecorder receives completed analyses for out-of-band recording, such
// as a time-series stats sink. Implementations must not block.
type RunRecorder interface {
	RecordRun(ctx context.Context, result *AnalyzeResult)
}

// Engine runs call-graph analyses over a frozen project index.
//
// Description:
//
//	The engine owns the run-independent pieces: the index, the resolver
//	with its framework catalog, default suppression settings and the base
//	ignore list. Each Analyze call builds its own tree with run-local
//	state, so concurrent calls only share read-only structures.
//
// Thread Safety:
//
//	Safe for concurrent use after construction.
type Engine struct {
	idx      *index.ProjectIndex
	resolver *resolve.Resolver
	log      *slog.Logger
	recorder RunRecorder

	defaultDepth         int
	ignore               []string
	suppressAccessors    bool
	suppressConstructors bool
}

// EngineOption is a functional option for NewEngine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) EngineOption {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithResolver replaces the default resolver, letting callers supply one
// built with an external framework catalog.
func WithResolver(r *resolve.Resolver) EngineOption {
	return func(e *Engine) {
		e.resolver = r
	}
}

// WithDefaultDepth sets the depth boundary layers fall back to when a
// request leaves max_depth unset.
func WithDefaultDepth(depth int) EngineOption {
	return func(e *Engine) {
		e.defaultDepth = depth
	}
}

// WithBaseIgnore sets method and class names excluded from every run.
func WithBaseIgnore(names []string) EngineOption {
	return func(e *Engine) {
		e.ignore = append([]string(nil), names...)
	}
}

// WithAccessorSuppression drops getter/setter calls whose bodies make no
// further calls.
func WithAccessorSuppression(on bool) EngineOption {
	return func(e *Engine) {
		e.suppressAccessors = on
	}
}

// WithConstructorSuppression drops constructor call sites from trees.
func WithConstructorSuppression(on bool) EngineOption {
	return func(e *Engine) {
		e.suppressConstructors = on
	}
}

// WithRunRecorder registers a sink for completed run stats.
func WithRunRecorder(r RunRecorder) EngineOption {
	return func(e *Engine) {
		e.recorder = r
	}
}

// NewEngine builds an engine over a frozen project index.
func NewEngine(idx *index.ProjectIndex, opts ...EngineOption) (*Engine, error) {
	if idx == nil {
		return nil, errors.New("project index is required")
	}
	e := &Engine{
		idx:          idx,
		log:          slog.Default(),
		defaultDepth: tree.DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.defaultDepth < 0 {
		return nil, fmt.Errorf("%w: default depth %d is negative", ErrInvalidRequest, e.defaultDepth)
	}
	if e.resolver == nil {
		e.resolver = resolve.NewResolver(idx)
	}
	return e, nil
}

// Index exposes the engine's project index for lookups and stats handlers.
func (e *Engine) Index() *index.ProjectIndex {
	return e.idx
}

// DefaultDepth returns the depth used when a caller leaves max_depth unset.
func (e *Engine) DefaultDepth() int {
	return e.defaultDepth
}

// Analyze runs one analysis.
//
// Description:
//
//	Locates the entry method in the entry file, builds the depth-bounded
//	call tree and returns it with the run-scoped mappings and stats.
//	Resolution misses inside the tree are tagged leaves; the only hard
//	failures are a rejected request and an entry file or method that
//	cannot be found.
//
// Outputs:
//   - *AnalyzeResult: The completed run. Nil on error.
//   - error: ErrInvalidRequest, ErrEntryFileNotFound,
//     ErrEntryMethodNotFound, or the context's error.
func (e *Engine) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error) {
	start := time.Now()
	if err := req.validate(); err != nil {
		recordAnalysis(time.Since(start), err)
		return nil, err
	}
	method, scope, err := e.findEntry(req.EntryFile, req.EntryMethod)
	if err != nil {
		recordAnalysis(time.Since(start), err)
		return nil, err
	}

	runID := uuid.NewString()
	log := e.log.With(
		slog.String("run_id", runID),
		slog.String("entry", scope.Class.Name+"."+req.EntryMethod),
	)
	log.Debug("analysis starting",
		slog.String("file", scope.File.Path),
		slog.Int("max_depth", req.MaxDepth),
	)

	opts := []tree.Option{
		tree.WithMaxDepth(req.MaxDepth),
		tree.WithResolver(e.resolver),
		tree.WithAccessorSuppression(e.suppressAccessors),
		tree.WithConstructorSuppression(e.suppressConstructors),
	}
	if names := append(append([]string(nil), e.ignore...), req.Ignore...); len(names) > 0 {
		opts = append(opts, tree.WithIgnoreNames(names))
	}

	ana, err := tree.NewBuilder(e.idx, opts...).Build(ctx, method, scope)
	recordAnalysis(time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("analyzing %s.%s: %w", scope.Class.Name, req.EntryMethod, err)
	}

	log.Info("analysis complete",
		slog.Int("nodes", ana.Stats.TotalNodes),
		slog.Int("depth_reached", ana.Stats.MaxDepth),
		slog.Int("mappings", len(ana.Mappings)),
		slog.Int64("duration_ms", ana.Stats.DurationMillis),
	)

	result := &AnalyzeResult{
		RunID:    runID,
		Request:  req,
		Root:     ana.Root,
		Mappings: ana.Mappings,
		Stats:    ana.Stats,
	}
	if e.recorder != nil {
		e.recorder.RecordRun(ctx, result)
	}
	return result, nil
}

// AnalyzeAll runs several analyses in parallel over the shared index.
//
// Description:
//
//	Tree construction for different entry methods is independent and
//	read-only with respect to the index, so runs fan out across an
//	errgroup. The first failure cancels the remaining runs.
//
// Inputs:
//   - reqs: The entry methods to analyze.
//   - limit: Maximum concurrent runs; DefaultAnalyzeLimit when <= 0.
//
// Outputs:
//   - []*AnalyzeResult: One result per request, in request order.
//   - error: The first run error, annotated with the request position.
func (e *Engine) AnalyzeAll(ctx context.Context, reqs []AnalyzeRequest, limit int) ([]*AnalyzeResult, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultAnalyzeLimit
	}

	results := make([]*AnalyzeResult, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, req := range reqs {
		g.Go(func() error {
			res, err := e.Analyze(gctx, req)
			if err != nil {
				return fmt.Errorf("request %d (%s %s): %w", i, req.EntryFile, req.EntryMethod, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// findEntry locates the entry method, trying the exact indexed path first
// and a unique path suffix second.
func (e *Engine) findEntry(path, methodName string) (*java.MethodModel, resolve.Scope, error) {
	file, ok := e.idx.File(path)
	if !ok {
		file, ok = e.fileBySuffix(path)
	}
	if !ok {
		return nil, resolve.Scope{}, fmt.Errorf("%w: %s", ErrEntryFileNotFound, path)
	}

	for _, cls := range e.idx.ClassesInFile(file.Path) {
		if m := cls.Method(methodName); m != nil {
			return m, resolve.Scope{Class: cls, File: file}, nil
		}
	}
	return nil, resolve.Scope{}, fmt.Errorf("%w: %s in %s", ErrEntryMethodNotFound, methodName, file.Path)
}

// fileBySuffix matches a path against indexed paths by suffix. Ambiguous
// suffixes do not match; the caller reports not-found.
func (e *Engine) fileBySuffix(path string) (*java.SourceFile, bool) {
	suffix := "/" + strings.TrimPrefix(path, "/")
	var match *java.SourceFile
	for _, indexed := range e.idx.FilePaths() {
		if indexed != path && !strings.HasSuffix(indexed, suffix) {
			continue
		}
		f, ok := e.idx.File(indexed)
		if !ok {
			continue
		}
		if match != nil {
			e.log.Debug("entry file suffix is ambiguous",
				slog.String("path", path),
			)
			return nil, false
		}
		match = f
	}
	return match, match != nil
}
