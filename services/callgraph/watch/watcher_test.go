// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Morizady/javatrace/services/callgraph/index"
)

const greeterSource = `package com.demo;

public class Greeter {
    public String greet() {
        return format("hello");
    }

    private String format(String text) {
        return text;
    }
}
`

const greeterWithFarewell = `package com.demo;

public class Greeter {
    public String greet() {
        return format("hello");
    }

    public String farewell() {
        return format("bye");
    }

    private String format(String text) {
        return text;
    }
}
`

const partingSource = `package com.demo;

public class Parting {
    public String wave() {
        return "o/";
    }
}
`

func writeJava(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
	return path
}

func buildTree(t *testing.T, root string) (*index.ProjectIndex, *index.Builder) {
	t.Helper()
	builder := index.NewBuilder(index.WithRoot(root))
	res, err := builder.Build(context.Background())
	if err != nil {
		t.Fatalf("initial build: %v", err)
	}
	return res.Index, builder
}

func startWatcher(t *testing.T, root string, idx *index.ProjectIndex, builder *index.Builder, opts ...Option) *Watcher {
	t.Helper()
	base := []Option{
		WithDebounce(30 * time.Millisecond),
		WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))),
	}
	w, err := New(root, idx, builder, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func waitEvent(t *testing.T, ch <-chan Event, kind EventKind) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatal("event channel closed before the expected event")
			}
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

func TestWatcher_RebuildOnWrite(t *testing.T) {
	root := t.TempDir()
	path := writeJava(t, root, "src/com/demo/Greeter.java", greeterSource)
	initial, builder := buildTree(t, root)

	w := startWatcher(t, root, initial, builder)
	events, cancel := w.Subscribe()
	defer cancel()
	w.Start()

	if err := os.WriteFile(path, []byte(greeterWithFarewell), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	ev := waitEvent(t, events, EventRebuild)
	if ev.Stats == nil || ev.Stats.Classes != 1 {
		t.Errorf("event stats = %+v", ev.Stats)
	}
	if len(ev.Files) != 1 || filepath.Base(ev.Files[0]) != "Greeter.java" {
		t.Errorf("event files = %v", ev.Files)
	}

	current := w.Current()
	if current == initial {
		t.Error("index pointer did not swap")
	}
	cls, ok := current.Class("com.demo.Greeter")
	if !ok {
		t.Fatal("Greeter missing after rebuild")
	}
	if !cls.HasMethod("farewell") {
		t.Error("rebuilt class missing new method")
	}
}

func TestWatcher_NewFileIndexed(t *testing.T) {
	root := t.TempDir()
	writeJava(t, root, "src/com/demo/Greeter.java", greeterSource)
	initial, builder := buildTree(t, root)

	w := startWatcher(t, root, initial, builder)
	events, cancel := w.Subscribe()
	defer cancel()
	w.Start()

	writeJava(t, root, "src/com/demo/Parting.java", partingSource)

	waitEvent(t, events, EventRebuild)
	if _, ok := w.Current().Class("com.demo.Parting"); !ok {
		t.Error("new class missing after rebuild")
	}
}

func TestWatcher_DeletedFileDropped(t *testing.T) {
	root := t.TempDir()
	writeJava(t, root, "src/com/demo/Greeter.java", greeterSource)
	parting := writeJava(t, root, "src/com/demo/Parting.java", partingSource)
	initial, builder := buildTree(t, root)
	if _, ok := initial.Class("com.demo.Parting"); !ok {
		t.Fatal("fixture class missing from initial build")
	}

	w := startWatcher(t, root, initial, builder)
	events, cancel := w.Subscribe()
	defer cancel()
	w.Start()

	if err := os.Remove(parting); err != nil {
		t.Fatalf("remove: %v", err)
	}

	waitEvent(t, events, EventRebuild)
	if _, ok := w.Current().Class("com.demo.Parting"); ok {
		t.Error("deleted class still indexed")
	}
	if _, ok := w.Current().Class("com.demo.Greeter"); !ok {
		t.Error("untouched class lost in rebuild")
	}
}

func TestWatcher_IgnoresUnhandledFiles(t *testing.T) {
	root := t.TempDir()
	writeJava(t, root, "src/com/demo/Greeter.java", greeterSource)
	initial, builder := buildTree(t, root)

	w := startWatcher(t, root, initial, builder)
	events, cancel := w.Subscribe()
	defer cancel()
	w.Start()

	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case ev := <-events:
		t.Errorf("unexpected event for non-source file: %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_RateLimitKeepsBatch(t *testing.T) {
	root := t.TempDir()
	path := writeJava(t, root, "src/com/demo/Greeter.java", greeterSource)
	initial, builder := buildTree(t, root)

	// One rebuild per minute and a debounce long enough that only the
	// direct rebuild calls below run.
	w := startWatcher(t, root, initial, builder,
		WithDebounce(time.Hour),
		WithMaxRebuildsPerMinute(1),
	)

	w.enqueue(filepath.ToSlash(path))
	w.rebuild()
	w.mu.Lock()
	drained := len(w.pending)
	w.mu.Unlock()
	if drained != 0 {
		t.Fatalf("first rebuild left %d pending", drained)
	}

	w.enqueue(filepath.ToSlash(path))
	w.rebuild()
	w.mu.Lock()
	kept := len(w.pending)
	w.mu.Unlock()
	if kept != 1 {
		t.Errorf("deferred rebuild kept %d pending files, want 1", kept)
	}
}

func TestWatcher_SubscribeCancelClosesChannel(t *testing.T) {
	root := t.TempDir()
	writeJava(t, root, "src/com/demo/Greeter.java", greeterSource)
	initial, builder := buildTree(t, root)

	w := startWatcher(t, root, initial, builder)
	events, cancel := w.Subscribe()
	cancel()
	if _, ok := <-events; ok {
		t.Error("channel still open after cancel")
	}
	// Second cancel is a no-op.
	cancel()
}

func TestNew_Validation(t *testing.T) {
	root := t.TempDir()
	writeJava(t, root, "src/com/demo/Greeter.java", greeterSource)
	idx, builder := buildTree(t, root)

	if _, err := New("", idx, builder); err == nil {
		t.Error("expected error for empty root")
	}
	if _, err := New(root, nil, builder); err == nil {
		t.Error("expected error for nil index")
	}
	if _, err := New(root, idx, nil); err == nil {
		t.Error("expected error for nil builder")
	}
	if _, err := New(filepath.Join(root, "missing"), idx, builder); err == nil {
		t.Error("expected error for nonexistent root")
	}
}
