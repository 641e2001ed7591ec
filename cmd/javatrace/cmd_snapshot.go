// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Morizady/javatrace/services/callgraph/index"
	"github.com/Morizady/javatrace/services/callgraph/snapshot"
)

// Flag values for the snapshot subcommands.
var (
	snapshotDir string
	saveLabel   string
	listLimit   int
	listAll     bool
)

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Save, list, and diff index snapshots",
		Long: `Persist the current index to the snapshot store, list what has been
saved, and diff snapshots against each other or the live source tree.

The store location comes from the project config (snapshot.dir, default
.callgraph/snapshots) and can be overridden with --dir.`,
	}

	cmd.PersistentFlags().StringVar(&snapshotDir, "dir", "", "snapshot store directory (default from config)")

	cmd.AddCommand(newSnapshotSaveCmd())
	cmd.AddCommand(newSnapshotListCmd())
	cmd.AddCommand(newSnapshotDiffCmd())

	return cmd
}

func newSnapshotSaveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Index the project and save a snapshot",
		Args:  cobra.NoArgs,
		RunE:  runSnapshotSaveCommand,
	}
	cmd.Flags().StringVarP(&saveLabel, "label", "l", "", "label for the snapshot")
	return cmd
}

func runSnapshotSaveCommand(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	proj, err := openProject(ctx)
	if err != nil {
		return err
	}

	store, closeStore, err := openSnapshotStore(effectiveSnapshotDir(proj.Config.Snapshot.Dir, proj.Root))
	if err != nil {
		return err
	}
	defer closeStore()

	meta, err := store.Save(ctx, proj.Build.Index, proj.Root, saveLabel)
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}

	fmt.Printf("saved snapshot %s%s\n", meta.SnapshotID, labelSuffix(meta.Label))
	fmt.Printf("  %d files, %d classes, %d methods, %d call sites\n",
		meta.Files, meta.Classes, meta.Methods, meta.CallSites)
	fmt.Printf("  %s compressed, sha256 %s\n", formatBytes(meta.CompressedSize), meta.ContentHash[:12])
	return nil
}

func newSnapshotListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved snapshots for this project",
		Args:  cobra.NoArgs,
		RunE:  runSnapshotListCommand,
	}
	cmd.Flags().IntVar(&listLimit, "limit", 50, "maximum snapshots to list")
	cmd.Flags().BoolVar(&listAll, "all", false, "list snapshots across all projects")
	return cmd
}

func runSnapshotListCommand(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	// Listing never indexes; only the root path is needed for the hash.
	root, err := filepath.Abs(rootFlag)
	if err != nil {
		return fmt.Errorf("resolving --root: %w", err)
	}
	cfg := loadCLIConfig(root)

	store, closeStore, err := openSnapshotStore(effectiveSnapshotDir(cfg.Snapshot.Dir, root))
	if err != nil {
		return err
	}
	defer closeStore()

	projectHash := snapshot.ProjectHash(root)
	if listAll {
		projectHash = ""
	}
	metas, err := store.List(ctx, projectHash, listLimit)
	if err != nil {
		return fmt.Errorf("listing snapshots: %w", err)
	}
	if len(metas) == 0 {
		fmt.Println("no snapshots saved")
		return nil
	}

	fmt.Printf("%-18s  %-16s  %-19s  %7s  %7s  %9s\n",
		"ID", "LABEL", "CREATED", "CLASSES", "METHODS", "SIZE")
	for _, m := range metas {
		label := m.Label
		if label == "" {
			label = "-"
		}
		created := time.UnixMilli(m.CreatedAtMilli).Format("2006-01-02 15:04:05")
		fmt.Printf("%-18s  %-16s  %-19s  %7d  %7d  %9s\n",
			m.SnapshotID, label, created, m.Classes, m.Methods, formatBytes(m.CompressedSize))
	}
	return nil
}

func newSnapshotDiffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <base-snapshot> [target-snapshot]",
		Short: "Diff a snapshot against another or the live tree",
		Long: `Compare two snapshots at class level. With one argument the base
snapshot is compared against a fresh index of the live source tree.

Examples:
  javatrace snapshot diff 8f14e45fceea167a
  javatrace snapshot diff 8f14e45fceea167a 45c48cce2e2d7fbd`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runSnapshotDiffCommand,
	}
	return cmd
}

func runSnapshotDiffCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	root, err := filepath.Abs(rootFlag)
	if err != nil {
		return fmt.Errorf("resolving --root: %w", err)
	}
	cfg := loadCLIConfig(root)

	store, closeStore, err := openSnapshotStore(effectiveSnapshotDir(cfg.Snapshot.Dir, root))
	if err != nil {
		return err
	}
	defer closeStore()

	baseIdx, baseMeta, err := loadSnapshot(ctx, store, args[0])
	if err != nil {
		return err
	}

	var targetIdx *index.ProjectIndex
	targetName := "current"
	if len(args) == 2 {
		var targetMeta *snapshot.Metadata
		targetIdx, targetMeta, err = loadSnapshot(ctx, store, args[1])
		if err != nil {
			return err
		}
		targetName = describeSnapshot(targetMeta)
	} else {
		proj, err := openProject(ctx)
		if err != nil {
			return err
		}
		targetIdx = proj.Build.Index
	}

	diff := snapshot.Diff(baseIdx, targetIdx)

	fmt.Printf("base    %s\n", describeSnapshot(baseMeta))
	fmt.Printf("target  %s\n\n", targetName)
	fmt.Println(diff.Summary())
	if diff.Empty() {
		return nil
	}

	styled := stdoutIsTTY()
	for _, name := range diff.Added {
		fmt.Println(diffLine("+", name, "2", styled))
	}
	for _, name := range diff.Removed {
		fmt.Println(diffLine("-", name, "1", styled))
	}
	for _, change := range diff.Modified {
		fmt.Println(diffLine("~", fmt.Sprintf("%s (%s)", change.Class, change.Kind), "3", styled))
		for _, m := range change.AddedMethods {
			fmt.Println(diffLine("  +", m, "2", styled))
		}
		for _, m := range change.RemovedMethods {
			fmt.Println(diffLine("  -", m, "1", styled))
		}
	}
	return nil
}

// loadSnapshot fetches a snapshot by ID with a friendly not-found message.
func loadSnapshot(ctx context.Context, store *snapshot.Store, id string) (*index.ProjectIndex, *snapshot.Metadata, error) {
	idx, meta, err := store.Load(ctx, id)
	if errors.Is(err, snapshot.ErrSnapshotNotFound) {
		return nil, nil, fmt.Errorf("snapshot %q not found (try 'javatrace snapshot list')", id)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("loading snapshot %s: %w", id, err)
	}
	return idx, meta, nil
}

// openSnapshotStore opens the Badger-backed store at dir. The returned
// close function releases the database.
func openSnapshotStore(dir string) (*snapshot.Store, func(), error) {
	db, err := snapshot.OpenDB(dir)
	if err != nil {
		return nil, nil, err
	}
	store, err := snapshot.NewStore(db, slog.Default())
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, func() {
		if err := db.Close(); err != nil {
			slog.Warn("closing snapshot store", slog.String("error", err.Error()))
		}
	}, nil
}

// effectiveSnapshotDir resolves the store directory: the --dir flag wins,
// then the config value, made absolute against the project root when
// relative.
func effectiveSnapshotDir(configured, root string) string {
	dir := configured
	if snapshotDir != "" {
		dir = snapshotDir
	}
	if dir != "" && !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	return dir
}

// describeSnapshot renders "id (label, created)" for diff headers.
func describeSnapshot(m *snapshot.Metadata) string {
	created := time.UnixMilli(m.CreatedAtMilli).Format("2006-01-02 15:04:05")
	if m.Label != "" {
		return fmt.Sprintf("%s (%s, %s)", m.SnapshotID, m.Label, created)
	}
	return fmt.Sprintf("%s (%s)", m.SnapshotID, created)
}

// diffLine renders one diff row, colored on terminals.
func diffLine(marker, text, color string, styled bool) string {
	line := marker + " " + text
	if !styled {
		return line
	}
	return lipglossColor(color).Render(line)
}

func labelSuffix(label string) string {
	if label == "" {
		return ""
	}
	return " (" + label + ")"
}

// formatBytes renders a byte count with a binary unit suffix.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for x := n / unit; x >= unit; x /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
