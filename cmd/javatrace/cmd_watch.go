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
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Morizady/javatrace/services/callgraph/watch"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Re-index the project as sources change",
		Long: `Watch the project root for Java source changes and re-index on every
debounced batch, printing one line per rebuild. The debounce window and
rebuild rate limit come from the project config (watch section).

Press Ctrl+C to stop.`,
		Args: cobra.NoArgs,
		RunE: runWatchCommand,
	}
}

func runWatchCommand(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	proj, err := openProject(ctx)
	if err != nil {
		return err
	}

	watcher, err := watch.New(proj.Root, proj.Build.Index, proj.Builder,
		watch.WithDebounce(time.Duration(proj.Config.Watch.DebounceMillis)*time.Millisecond),
		watch.WithMaxRebuildsPerMinute(proj.Config.Watch.MaxRebuildsPerMinute),
	)
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer watcher.Close()

	events, cancel := watcher.Subscribe()
	defer cancel()
	watcher.Start()

	stats := proj.Build.Index.Stats()
	fmt.Printf("watching %s (%d classes; Ctrl+C to stop)\n", proj.Root, stats.TotalClasses)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			printWatchEvent(ev)
		case <-sig:
			fmt.Println("\nstopped")
			return watcher.Close()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// printWatchEvent renders one watcher event as a single line.
func printWatchEvent(ev watch.Event) {
	at := time.UnixMilli(ev.AtMilli).Format("15:04:05")
	switch ev.Kind {
	case watch.EventRebuild:
		names := make([]string, len(ev.Files))
		for i, f := range ev.Files {
			names[i] = filepath.Base(f)
		}
		line := fmt.Sprintf("%s  rebuild  %s", at, strings.Join(names, ", "))
		if ev.Stats != nil {
			line += fmt.Sprintf("  (%d classes, %d methods)", ev.Stats.Classes, ev.Stats.Methods)
		}
		if ev.DurationMillis > 0 {
			line += fmt.Sprintf("  %dms", ev.DurationMillis)
		}
		fmt.Println(line)
	case watch.EventError:
		fmt.Printf("%s  error    %s\n", at, ev.Error)
	default:
		fmt.Printf("%s  %s\n", at, ev.Kind)
	}
}
