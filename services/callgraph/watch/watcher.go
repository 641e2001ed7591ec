// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package watch keeps a project index current while sources change on disk.
//
// File events are debounced into batches, each batch is applied to a clone
// of the live index (remove, reparse, add), and the frozen clone is swapped
// in. Rebuild frequency is rate limited so editor save storms cannot pin a
// core. Subscribers receive rebuild and error events, which the websocket
// stream and the CLI watch command fan out.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/Morizady/javatrace/services/callgraph/index"
)

const (
	// DefaultDebounce is how long after the last event a rebuild waits.
	DefaultDebounce = 400 * time.Millisecond

	// DefaultMaxRebuildsPerMinute caps rebuild frequency.
	DefaultMaxRebuildsPerMinute = 30

	subscriberBuffer = 16
)

// EventKind classifies watcher events.
type EventKind string

const (
	// EventRebuild reports a completed index rebuild.
	EventRebuild EventKind = "rebuild"

	// EventError reports a watcher failure that did not stop watching.
	EventError EventKind = "error"
)

// RebuildStats are the index counters after a rebuild.
type RebuildStats struct {
	Files     int `json:"files"`
	Classes   int `json:"classes"`
	Methods   int `json:"methods"`
	CallSites int `json:"call_sites"`
}

// Event is one watcher notification.
type Event struct {
	Kind EventKind `json:"kind"`

	// AtMilli is when the event was published (Unix milliseconds).
	AtMilli int64 `json:"at_milli"`

	// Files lists the changed paths behind a rebuild, sorted.
	Files []string `json:"files,omitempty"`

	// Stats carries the post-rebuild index counters.
	Stats *RebuildStats `json:"stats,omitempty"`

	// DurationMillis is the rebuild wall time.
	DurationMillis int64 `json:"duration_millis,omitempty"`

	// Error carries the failure text for error events.
	Error string `json:"error,omitempty"`
}

// Watcher maintains a live project index over a watched source tree.
//
// Thread Safety:
//
//	All exported methods are safe for concurrent use. Current may be
//	called freely while rebuilds run; it returns the last frozen index.
type Watcher struct {
	root    string
	builder *index.Builder
	fsw     *fsnotify.Watcher
	log     *slog.Logger

	debounce time.Duration
	limiter  *rate.Limiter
	excluded map[string]struct{}

	onRebuild func(*index.ProjectIndex)

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer

	idxMu sync.RWMutex
	idx   *index.ProjectIndex

	rebuildMu sync.Mutex

	subMu sync.Mutex
	subs  map[chan Event]struct{}

	done      chan struct{}
	closeOnce sync.Once
}

// Option is a functional option for New.
type Option func(*Watcher)

// WithLogger sets the watcher logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(w *Watcher) {
		if log != nil {
			w.log = log
		}
	}
}

// WithDebounce sets how long after the last event a rebuild starts.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithMaxRebuildsPerMinute caps rebuild frequency. Batches arriving over
// the cap are deferred, not dropped.
func WithMaxRebuildsPerMinute(n int) Option {
	return func(w *Watcher) {
		if n > 0 {
			w.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
		}
	}
}

// WithExcludedDirs replaces the directory names skipped when registering
// watches. Defaults to the index builder's excluded directories.
func WithExcludedDirs(names []string) Option {
	return func(w *Watcher) {
		w.excluded = make(map[string]struct{}, len(names))
		for _, name := range names {
			w.excluded[name] = struct{}{}
		}
	}
}

// WithOnRebuild registers a callback invoked with each new frozen index,
// before subscribers are notified. Used to swap the serving engine.
func WithOnRebuild(fn func(*index.ProjectIndex)) Option {
	return func(w *Watcher) {
		w.onRebuild = fn
	}
}

// New creates a watcher over a source tree.
//
// Description:
//
//	Registers filesystem watches on every non-excluded directory under
//	root. The builder supplies the parser and exclusion rules, so a
//	watched rebuild indexes exactly what a full build would; it must be
//	configured with the same root. Call Start to begin watching and
//	Close to release the filesystem watches.
//
// Inputs:
//
//	root - The watched source root. Must not be empty.
//	initial - The current frozen index for the tree. Must not be nil.
//	builder - The builder used to reparse changed files. Must not be nil.
//	opts - Optional configuration.
//
// Outputs:
//
//	*Watcher - The configured watcher, not yet started.
//	error - Non-nil if arguments are invalid or watches cannot be added.
func New(root string, initial *index.ProjectIndex, builder *index.Builder, opts ...Option) (*Watcher, error) {
	if root == "" {
		return nil, fmt.Errorf("root must not be empty")
	}
	if initial == nil {
		return nil, fmt.Errorf("initial index must not be nil")
	}
	if builder == nil {
		return nil, fmt.Errorf("builder must not be nil")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating filesystem watcher: %w", err)
	}

	w := &Watcher{
		root:     root,
		builder:  builder,
		fsw:      fsw,
		log:      slog.Default(),
		debounce: DefaultDebounce,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/DefaultMaxRebuildsPerMinute), 1),
		pending:  make(map[string]struct{}),
		idx:      initial,
		subs:     make(map[chan Event]struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.excluded == nil {
		w.excluded = make(map[string]struct{})
		for _, name := range index.DefaultExcludedDirs() {
			w.excluded[name] = struct{}{}
		}
	}

	if _, err := w.watchTree(root); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", root, err)
	}
	return w, nil
}

// watchTree registers watches on dir and every non-excluded directory
// below it, returning the accepted source files it encountered.
func (w *Watcher) watchTree(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtree: keep watching the rest.
			if path != dir {
				w.log.Debug("skipping unreadable path", slog.String("path", path))
				return nil
			}
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != dir {
				if _, skip := w.excluded[name]; skip || strings.HasPrefix(name, ".") {
					return filepath.SkipDir
				}
			}
			return w.fsw.Add(path)
		}
		if w.builder.Accepts(path) {
			files = append(files, filepath.ToSlash(path))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// Start begins processing filesystem events.
func (w *Watcher) Start() {
	go w.eventLoop()
}

// Close stops watching and releases filesystem watches. Subscriber
// channels are closed. Safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()

		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()

		w.subMu.Lock()
		for ch := range w.subs {
			delete(w.subs, ch)
			close(ch)
		}
		w.subMu.Unlock()
	})
	return err
}

// Current returns the latest frozen index.
func (w *Watcher) Current() *index.ProjectIndex {
	w.idxMu.RLock()
	defer w.idxMu.RUnlock()
	return w.idx
}

// Subscribe registers for watcher events. The returned cancel removes the
// subscription and closes the channel. Events are dropped, not queued,
// when a subscriber falls behind.
func (w *Watcher) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	w.subMu.Lock()
	w.subs[ch] = struct{}{}
	w.subMu.Unlock()

	cancel := func() {
		w.subMu.Lock()
		defer w.subMu.Unlock()
		if _, ok := w.subs[ch]; ok {
			delete(w.subs, ch)
			close(ch)
		}
	}
	return ch, cancel
}

// eventLoop drains filesystem events until Close.
func (w *Watcher) eventLoop() {
	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("filesystem watch error", slog.Any("error", err))
			w.publish(Event{
				Kind:    EventError,
				AtMilli: time.Now().UnixMilli(),
				Error:   err.Error(),
			})
		}
	}
}

// handleEvent filters one filesystem event and schedules a rebuild.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	// A created directory needs its own watch; files already inside it
	// arrived before the watch did, so pick them up too.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			files, err := w.watchTree(event.Name)
			if err != nil {
				w.log.Warn("cannot watch created directory",
					slog.String("dir", event.Name), slog.Any("error", err))
				return
			}
			if len(files) > 0 {
				w.enqueue(files...)
			}
			return
		}
	}

	if !w.builder.Accepts(event.Name) {
		return
	}
	w.enqueue(filepath.ToSlash(event.Name))
}

// enqueue adds paths to the pending batch and resets the debounce timer.
func (w *Watcher) enqueue(paths ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, p := range paths {
		w.pending[p] = struct{}{}
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.rebuild)
}

// rebuild applies the pending batch to a clone of the live index and
// swaps the frozen result in.
func (w *Watcher) rebuild() {
	w.rebuildMu.Lock()
	defer w.rebuildMu.Unlock()

	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	if !w.limiter.Allow() {
		// Over the rebuild cap: keep the batch and try again later.
		w.timer = time.AfterFunc(w.debounce, w.rebuild)
		w.mu.Unlock()
		recordRebuild(0, "deferred")
		w.log.Debug("rebuild deferred by rate limit")
		return
	}
	files := make([]string, 0, len(w.pending))
	for p := range w.pending {
		files = append(files, p)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()
	sort.Strings(files)

	start := time.Now()
	clone := w.Current().Clone()
	failed := 0
	for _, path := range files {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			if _, err := clone.RemoveFile(path); err != nil {
				w.log.Warn("cannot drop deleted file from index",
					slog.String("file", path), slog.Any("error", err))
				failed++
			}
			continue
		}

		parsed, err := w.builder.ParseFile(context.Background(), path)
		if err != nil {
			// Likely a half-written save; the previous version stays
			// indexed until the next event.
			w.log.Debug("skipping unparsable change",
				slog.String("file", path), slog.String("error", err.Error()))
			failed++
			continue
		}
		if _, err := clone.RemoveFile(path); err != nil {
			w.log.Warn("cannot replace file in index",
				slog.String("file", path), slog.Any("error", err))
			failed++
			continue
		}
		if err := clone.AddFile(parsed); err != nil {
			w.log.Warn("cannot index changed file",
				slog.String("file", path), slog.Any("error", err))
			failed++
		}
	}
	clone.Freeze()

	w.idxMu.Lock()
	w.idx = clone
	w.idxMu.Unlock()

	duration := time.Since(start)
	stats := clone.Stats()
	recordRebuild(duration, "ok")
	w.log.Info("index rebuilt",
		slog.Int("changed_files", len(files)),
		slog.Int("failed_files", failed),
		slog.Int("classes", stats.TotalClasses),
		slog.Int64("duration_ms", duration.Milliseconds()),
	)

	if w.onRebuild != nil {
		w.onRebuild(clone)
	}
	w.publish(Event{
		Kind:    EventRebuild,
		AtMilli: time.Now().UnixMilli(),
		Files:   files,
		Stats: &RebuildStats{
			Files:     stats.FileCount,
			Classes:   stats.TotalClasses,
			Methods:   stats.TotalMethods,
			CallSites: stats.TotalCallSites,
		},
		DurationMillis: duration.Milliseconds(),
	})
}

// publish fans an event out to subscribers without blocking.
func (w *Watcher) publish(ev Event) {
	w.subMu.Lock()
	defer w.subMu.Unlock()

	for ch := range w.subs {
		select {
		case ch <- ev:
		default:
			w.log.Debug("dropping event for slow subscriber",
				slog.String("kind", string(ev.Kind)))
		}
	}
}
