// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Morizady/javatrace/services/callgraph/java"
)

// Directory names pruned from every walk. Build outputs and VCS metadata
// never hold project sources.
var defaultExcludedDirs = []string{
	"target", "build", "out", "bin",
	".git", ".svn", ".idea", ".gradle", ".mvn",
	"node_modules", "generated-sources",
}

// DefaultExcludedDirs returns a copy of the directory names pruned from
// walks by default.
func DefaultExcludedDirs() []string {
	return append([]string(nil), defaultExcludedDirs...)
}

// BuildPhase indicates which phase of an index build is in progress.
type BuildPhase int

const (
	// PhaseWalking indicates source files are being discovered.
	PhaseWalking BuildPhase = iota

	// PhaseParsing indicates files are being parsed.
	PhaseParsing

	// PhaseLinking indicates parsed files are being indexed and frozen.
	PhaseLinking
)

// String returns the string representation of the BuildPhase.
func (p BuildPhase) String() string {
	switch p {
	case PhaseWalking:
		return "walking"
	case PhaseParsing:
		return "parsing"
	case PhaseLinking:
		return "linking"
	default:
		return "unknown"
	}
}

// BuildProgress contains progress information during a build.
type BuildProgress struct {
	// Phase is the current build phase.
	Phase BuildPhase

	// FilesTotal is the number of files discovered by the walk.
	FilesTotal int

	// FilesProcessed is the number of files parsed so far.
	FilesProcessed int
}

// ProgressFunc is a callback for build progress updates. It may be called
// from parser worker goroutines; implementations must be quick and safe.
type ProgressFunc func(progress BuildProgress)

// FileError records one file that could not be used.
type FileError struct {
	// Path is the file that failed.
	Path string

	// Err is the cause.
	Err error
}

// BuildStats summarizes one index build.
type BuildStats struct {
	// FilesWalked is the number of candidate source files discovered.
	FilesWalked int

	// FilesParsed is the number of files successfully parsed and indexed.
	FilesParsed int

	// FilesSkipped is the number of files skipped because they could not
	// be read or parsed.
	FilesSkipped int

	// Classes, Methods, and CallSites mirror the final index counters.
	Classes   int
	Methods   int
	CallSites int

	// DurationMilli is the wall-clock build time in milliseconds.
	DurationMilli int64
}

// BuildResult contains the built index and everything the build skipped.
type BuildResult struct {
	// Index is the frozen project index. Never nil, possibly partial.
	Index *ProjectIndex

	// Stats summarizes the build.
	Stats BuildStats

	// Skipped lists files that could not be read or parsed. Skips are
	// expected in real trees and do not fail the build.
	Skipped []FileError

	// Incomplete is true when the build stopped early: canceled context
	// or index capacity reached.
	Incomplete bool
}

// BuilderOptions configures Builder behavior.
type BuilderOptions struct {
	// Root is the directory to scan for Java sources.
	Root string

	// Parser extracts the source model. Default: java.NewRegexParser().
	Parser java.Parser

	// ExcludedDirs are directory names pruned from the walk, matched
	// against the directory base name. Defaults cover build outputs and
	// VCS metadata.
	ExcludedDirs []string

	// ExcludedGlobs are filepath.Match patterns applied to each file's
	// path relative to Root. Matching files are skipped.
	ExcludedGlobs []string

	// WorkerCount is the number of parallel parser workers.
	// Default: runtime.NumCPU().
	WorkerCount int

	// MaxClasses caps the built index (passed to ProjectIndex).
	MaxClasses int

	// ProgressCallback is called as files complete. May be nil.
	ProgressCallback ProgressFunc
}

// DefaultBuilderOptions returns sensible defaults.
func DefaultBuilderOptions() BuilderOptions {
	return BuilderOptions{
		Parser:       java.NewRegexParser(),
		ExcludedDirs: defaultExcludedDirs,
		WorkerCount:  runtime.NumCPU(),
		MaxClasses:   DefaultMaxClasses,
	}
}

// BuilderOption is a functional option for configuring Builder.
type BuilderOption func(*BuilderOptions)

// WithRoot sets the directory to scan.
func WithRoot(root string) BuilderOption {
	return func(o *BuilderOptions) {
		o.Root = root
	}
}

// WithParser sets the parser used for every source file.
func WithParser(p java.Parser) BuilderOption {
	return func(o *BuilderOptions) {
		if p != nil {
			o.Parser = p
		}
	}
}

// WithExcludedDirs replaces the pruned directory names.
func WithExcludedDirs(names []string) BuilderOption {
	return func(o *BuilderOptions) {
		o.ExcludedDirs = names
	}
}

// WithExcludedGlobs sets path patterns for files to skip.
func WithExcludedGlobs(globs []string) BuilderOption {
	return func(o *BuilderOptions) {
		o.ExcludedGlobs = globs
	}
}

// WithWorkerCount sets the number of parallel parser workers.
func WithWorkerCount(n int) BuilderOption {
	return func(o *BuilderOptions) {
		o.WorkerCount = n
	}
}

// WithBuilderMaxClasses caps the built index.
func WithBuilderMaxClasses(n int) BuilderOption {
	return func(o *BuilderOptions) {
		o.MaxClasses = n
	}
}

// WithProgressCallback sets the progress callback function.
func WithProgressCallback(fn ProgressFunc) BuilderOption {
	return func(o *BuilderOptions) {
		o.ProgressCallback = fn
	}
}

// Builder constructs project indexes from Java source trees.
//
// The builder is stateless and can be reused across builds. Each Build
// call creates a new index.
//
// Thread Safety:
//
//	Builder is safe for concurrent use. Each Build call operates
//	independently with its own internal state.
type Builder struct {
	options BuilderOptions
}

// NewBuilder creates a new Builder with the given options.
//
// Example:
//
//	builder := NewBuilder(
//	    WithRoot("/path/to/project"),
//	    WithParser(java.NewSitterParser()),
//	)
func NewBuilder(opts ...BuilderOption) *Builder {
	options := DefaultBuilderOptions()
	for _, opt := range opts {
		opt(&options)
	}

	if options.Parser == nil {
		options.Parser = java.NewRegexParser()
	}
	if options.WorkerCount <= 0 {
		options.WorkerCount = runtime.NumCPU()
	}

	return &Builder{options: options}
}

// Build scans the source tree, parses every Java file, and returns a
// frozen index.
//
// Description:
//
//	Three phases: walk the tree collecting candidate files with the
//	exclusion rules applied, parse the files in parallel, then index
//	the parse results in walk order and freeze. Files that cannot be
//	read or parsed are skipped with a debug log entry and listed in
//	BuildResult.Skipped; a broken file never fails the build.
//
// Inputs:
//   - ctx: Context for cancellation. Checked between files; a canceled
//     build returns the partial result with Incomplete set.
//
// Outputs:
//   - *BuildResult: The frozen index plus build statistics. Never nil.
//   - error: Non-nil only when the root directory itself is unusable.
//
// Thread Safety:
//
//	This method is safe for concurrent use.
func (b *Builder) Build(ctx context.Context) (*BuildResult, error) {
	ctx, span := startBuildSpan(ctx, b.options.Root)
	defer span.End()
	start := time.Now()

	result := &BuildResult{
		Index: NewProjectIndex(WithMaxClasses(b.options.MaxClasses)),
	}

	paths, err := b.walk(result)
	if err != nil {
		recordBuildMetrics(time.Since(start), 0, 0, err)
		return result, err
	}
	result.Stats.FilesWalked = len(paths)
	b.report(PhaseWalking, len(paths), 0)

	parsed := b.parseAll(ctx, paths, result)

	b.report(PhaseLinking, len(paths), len(paths))
	incomplete := b.indexAll(ctx, parsed, result)
	result.Index.Freeze()

	stats := result.Index.Stats()
	result.Stats.Classes = stats.TotalClasses
	result.Stats.Methods = stats.TotalMethods
	result.Stats.CallSites = stats.TotalCallSites
	result.Stats.FilesSkipped = len(result.Skipped)
	result.Stats.DurationMilli = time.Since(start).Milliseconds()
	result.Incomplete = incomplete || ctx.Err() != nil

	setBuildSpanResult(span, stats.TotalClasses, stats.TotalMethods, len(result.Skipped))
	recordBuildMetrics(time.Since(start), result.Stats.FilesParsed, len(result.Skipped), ctx.Err())

	slog.Info("index build complete",
		slog.String("root", b.options.Root),
		slog.Int("files", result.Stats.FilesParsed),
		slog.Int("classes", stats.TotalClasses),
		slog.Int("skipped", len(result.Skipped)),
		slog.Int64("duration_ms", result.Stats.DurationMilli))

	return result, nil
}

// walk discovers candidate source files in lexical order.
func (b *Builder) walk(result *BuildResult) ([]string, error) {
	excluded := make(map[string]struct{}, len(b.options.ExcludedDirs))
	for _, name := range b.options.ExcludedDirs {
		excluded[name] = struct{}{}
	}

	var paths []string
	err := filepath.WalkDir(b.options.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtree: record and keep walking.
			if path != b.options.Root {
				result.Skipped = append(result.Skipped, FileError{Path: path, Err: err})
				return nil
			}
			return err
		}
		if d.IsDir() {
			if _, skip := excluded[d.Name()]; skip && path != b.options.Root {
				return filepath.SkipDir
			}
			return nil
		}
		if !b.handles(path) {
			return nil
		}
		if b.globExcluded(path) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", b.options.Root, err)
	}
	return paths, nil
}

// handles reports whether the configured parser accepts this file.
func (b *Builder) handles(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range b.options.Parser.Extensions() {
		if ext == e {
			return true
		}
	}
	return false
}

// globExcluded reports whether any excluded glob matches the path
// relative to the root. Invalid patterns never match.
func (b *Builder) globExcluded(path string) bool {
	if len(b.options.ExcludedGlobs) == 0 {
		return false
	}
	rel, err := filepath.Rel(b.options.Root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range b.options.ExcludedGlobs {
		if ok, err := filepath.Match(pattern, rel); err == nil && ok {
			return true
		}
		if ok, err := filepath.Match(pattern, filepath.Base(rel)); err == nil && ok {
			return true
		}
	}
	return false
}

// parseAll parses all files in parallel, preserving walk order in the
// returned slice. Failed files land in result.Skipped.
func (b *Builder) parseAll(ctx context.Context, paths []string, result *BuildResult) []*java.SourceFile {
	parsed := make([]*java.SourceFile, len(paths))

	var mu sync.Mutex
	processed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.options.WorkerCount)

	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			file, err := b.parseOne(gctx, path)

			mu.Lock()
			if err != nil {
				slog.Debug("skipping unparsable file",
					slog.String("file", path),
					slog.String("error", err.Error()))
				result.Skipped = append(result.Skipped, FileError{Path: path, Err: err})
			} else {
				parsed[i] = file
			}
			processed++
			done := processed
			mu.Unlock()

			b.report(PhaseParsing, len(paths), done)
			return nil
		})
	}

	// Workers only return context errors; the partial slice is the result
	// either way.
	_ = g.Wait()
	return parsed
}

// parseOne reads and parses a single file.
func (b *Builder) parseOne(ctx context.Context, path string) (*java.SourceFile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	file, err := b.options.Parser.Parse(ctx, content, filepath.ToSlash(path))
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return file, nil
}

// Accepts reports whether the builder's rules admit this path: the parser
// handles its extension and no exclusion glob matches. The file watcher
// uses this to filter change events with the same rules a full build
// applies.
func (b *Builder) Accepts(path string) bool {
	return b.handles(path) && !b.globExcluded(path)
}

// ParseFile reads and parses one file with the builder's parser. The
// returned file carries the slash-normalized path, matching the keys a
// full build indexes under.
func (b *Builder) ParseFile(ctx context.Context, path string) (*java.SourceFile, error) {
	return b.parseOne(ctx, path)
}

// indexAll adds parse results to the index in walk order. Returns true
// when the build stopped early at capacity.
func (b *Builder) indexAll(ctx context.Context, parsed []*java.SourceFile, result *BuildResult) bool {
	for _, file := range parsed {
		if file == nil {
			continue
		}
		if ctx.Err() != nil {
			return true
		}

		if err := result.Index.AddFile(file); err != nil {
			if errors.Is(err, ErrIndexCapacity) {
				slog.Warn("index capacity reached, remaining files ignored",
					slog.Int("max_classes", b.options.MaxClasses))
				return true
			}
			result.Skipped = append(result.Skipped, FileError{Path: file.Path, Err: err})
			continue
		}
		result.Stats.FilesParsed++
	}
	return false
}

// report invokes the progress callback if one is configured.
func (b *Builder) report(phase BuildPhase, total, processed int) {
	if b.options.ProgressCallback == nil {
		return
	}
	b.options.ProgressCallback(BuildProgress{
		Phase:          phase,
		FilesTotal:     total,
		FilesProcessed: processed,
	})
}

// BuildFromFiles indexes already-parsed files, in the given order.
//
// Description:
//
//	The incremental re-index path: the file watcher parses changed
//	files itself and hands them here. Same skip semantics as Build.
//
// Inputs:
//   - ctx: Context for cancellation.
//   - files: Parsed source files. Nil entries are ignored.
//
// Outputs:
//   - *BuildResult: The frozen index. Never nil.
//   - error: Always nil today; kept in the signature so callers treat
//     this like Build.
func (b *Builder) BuildFromFiles(ctx context.Context, files []*java.SourceFile) (*BuildResult, error) {
	start := time.Now()

	result := &BuildResult{
		Index: NewProjectIndex(WithMaxClasses(b.options.MaxClasses)),
	}
	result.Stats.FilesWalked = len(files)

	incomplete := b.indexAll(ctx, files, result)
	result.Index.Freeze()

	stats := result.Index.Stats()
	result.Stats.Classes = stats.TotalClasses
	result.Stats.Methods = stats.TotalMethods
	result.Stats.CallSites = stats.TotalCallSites
	result.Stats.FilesSkipped = len(result.Skipped)
	result.Stats.DurationMilli = time.Since(start).Milliseconds()
	result.Incomplete = incomplete || ctx.Err() != nil

	return result, nil
}
