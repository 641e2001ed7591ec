// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// snapshot_dump inspects a snapshot store without going through the server
// or the CLI.
//
// Snapshots are gzip-compressed serialized indexes in BadgerDB, grouped by
// a hash of the project root, each project carrying a "latest" pointer.
// This tool opens the store read-only and prints a human-readable summary:
// every project group, its snapshots with metadata and payload integrity,
// and dangling keys left behind by interrupted deletes.
//
// Usage:
//
//	snapshot_dump [--path /path/to/snapshots]
//
// If --path is not given, reads CALLGRAPH_SNAPSHOT_DIR from the
// environment, falling back to ./.callgraph/snapshots.
//
// Exit codes:
//
//	0 — success (including "empty store" which prints a message and exits 0)
//	1 — error opening or reading the database
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"

	"github.com/Morizady/javatrace/services/callgraph/snapshot"
)

// Key schema constants must match snapshot/store.go exactly.
const (
	snapKeyPrefix   = "index:snap:"
	snapIDKeyPrefix = "index:snap:id:"
	dataKeySuffix   = ":data"
	metaKeySuffix   = ":meta"
	latestKeySuffix = ":latest"
)

// snapshotRow aggregates everything stored under one snapshot ID.
type snapshotRow struct {
	projectHash string
	id          string
	meta        *snapshot.Metadata
	metaErr     error
	hasData     bool
	dataSize    int
	dataHash    string
}

func main() {
	pathFlag := flag.String("path", "", "Path to snapshot BadgerDB directory (overrides CALLGRAPH_SNAPSHOT_DIR env var)")
	flag.Parse()

	dbPath := *pathFlag
	if dbPath == "" {
		dbPath = os.Getenv("CALLGRAPH_SNAPSHOT_DIR")
	}
	if dbPath == "" {
		dbPath = ".callgraph/snapshots"
	}

	fmt.Printf("Snapshot store path: %s\n", dbPath)

	// Check existence before trying to open. A missing directory gets a
	// cleaner message than BadgerDB's "no such file or directory" buried in
	// a long error.
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("Store directory does not exist. No snapshots have been saved yet.")
		fmt.Println("Run 'javatrace snapshot save' or POST /v1/callgraph/snapshots to create one.")
		os.Exit(0)
	}

	// Open read-only; only reads are performed.
	opts := dgbadger.DefaultOptions(dbPath).
		WithLogger(nil). // suppress BadgerDB internal logs
		WithReadOnly(true)

	db, err := dgbadger.Open(opts)
	if err != nil {
		fatalf("open BadgerDB at %s: %v", dbPath, err)
	}
	defer func() { _ = db.Close() }()

	rows := make(map[string]*snapshotRow) // projectHash:snapshotID → row
	latest := make(map[string]string)     // projectHash → snapshotID
	reverse := make(map[string]string)    // snapshotID → projectHash

	row := func(projectHash, id string) *snapshotRow {
		k := projectHash + ":" + id
		r, ok := rows[k]
		if !ok {
			r = &snapshotRow{projectHash: projectHash, id: id}
			rows[k] = r
		}
		return r
	}

	err = db.View(func(txn *dgbadger.Txn) error {
		iterOpts := dgbadger.DefaultIteratorOptions
		iterOpts.PrefetchValues = true
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		prefix := []byte(snapKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.Key())

			switch {
			case strings.HasPrefix(key, snapIDKeyPrefix):
				id := strings.TrimPrefix(key, snapIDKeyPrefix)
				raw, err := item.ValueCopy(nil)
				if err != nil {
					return fmt.Errorf("copy value of %s: %w", key, err)
				}
				reverse[id] = string(raw)

			case strings.HasSuffix(key, latestKeySuffix):
				projectHash := strings.TrimSuffix(strings.TrimPrefix(key, snapKeyPrefix), latestKeySuffix)
				raw, err := item.ValueCopy(nil)
				if err != nil {
					return fmt.Errorf("copy value of %s: %w", key, err)
				}
				latest[projectHash] = string(raw)

			case strings.HasSuffix(key, metaKeySuffix):
				projectHash, id, ok := splitSnapshotKey(key, metaKeySuffix)
				if !ok {
					continue
				}
				r := row(projectHash, id)
				raw, err := item.ValueCopy(nil)
				if err != nil {
					r.metaErr = fmt.Errorf("copy value: %w", err)
					continue
				}
				var meta snapshot.Metadata
				if err := json.Unmarshal(raw, &meta); err != nil {
					r.metaErr = fmt.Errorf("decode metadata: %w", err)
					continue
				}
				r.meta = &meta

			case strings.HasSuffix(key, dataKeySuffix):
				projectHash, id, ok := splitSnapshotKey(key, dataKeySuffix)
				if !ok {
					continue
				}
				r := row(projectHash, id)
				raw, err := item.ValueCopy(nil)
				if err != nil {
					r.metaErr = fmt.Errorf("copy payload: %w", err)
					continue
				}
				r.hasData = true
				r.dataSize = len(raw)
				sum := sha256.Sum256(raw)
				r.dataHash = hex.EncodeToString(sum[:])
			}
		}
		return nil
	})
	if err != nil {
		fatalf("read BadgerDB: %v", err)
	}

	if len(rows) == 0 {
		fmt.Println("\nNo snapshots found in the store.")
		fmt.Println("Run 'javatrace snapshot save' or POST /v1/callgraph/snapshots to create one.")
		os.Exit(0)
	}

	// Group rows by project, newest snapshot first within each group.
	byProject := make(map[string][]*snapshotRow)
	for _, r := range rows {
		byProject[r.projectHash] = append(byProject[r.projectHash], r)
	}
	projectHashes := make([]string, 0, len(byProject))
	for h := range byProject {
		projectHashes = append(projectHashes, h)
	}
	sort.Strings(projectHashes)

	fmt.Printf("\nFound %d snapshot%s across %d project%s:\n",
		len(rows), plural(len(rows), "", "s"),
		len(byProject), plural(len(byProject), "", "s"))
	fmt.Println(strings.Repeat("─", 80))

	for _, projectHash := range projectHashes {
		group := byProject[projectHash]
		sort.Slice(group, func(i, j int) bool {
			ci, cj := createdAt(group[i]), createdAt(group[j])
			if ci != cj {
				return ci > cj
			}
			return group[i].id < group[j].id
		})

		fmt.Printf("\nProject %s%s\n", projectHash, projectRootSuffix(group))
		if id, ok := latest[projectHash]; ok {
			fmt.Printf("  latest → %s\n", id)
		} else {
			fmt.Printf("  latest → (no pointer)\n")
		}

		for i, r := range group {
			fmt.Printf("\n  [%d] ID:       %s\n", i+1, r.id)
			printSnapshotRow(r, reverse)
		}
	}

	dangling := danglingReverseEntries(reverse, rows)
	if len(dangling) > 0 {
		fmt.Printf("\nDangling reverse-index entries (snapshot deleted mid-transaction?):\n")
		for _, id := range dangling {
			fmt.Printf("  %s%s → %s\n", snapIDKeyPrefix, id, reverse[id])
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("─", 80))
	fmt.Printf("Summary: %d snapshot%s, %d project%s, store path: %s\n",
		len(rows), plural(len(rows), "", "s"),
		len(byProject), plural(len(byProject), "", "s"), dbPath)
}

// printSnapshotRow prints metadata, payload, and integrity for one snapshot.
func printSnapshotRow(r *snapshotRow, reverse map[string]string) {
	if r.metaErr != nil {
		fmt.Printf("      READ ERROR: %v\n", r.metaErr)
	}
	if r.meta == nil {
		if r.hasData {
			fmt.Printf("      Payload:  %s, sha256 %s\n", formatBytes(r.dataSize), shortHash(r.dataHash))
			fmt.Printf("      Metadata: MISSING (payload without metadata)\n")
		}
		return
	}

	m := r.meta
	if m.Label != "" {
		fmt.Printf("      Label:    %s\n", m.Label)
	}
	fmt.Printf("      Created:  %s\n", time.UnixMilli(m.CreatedAtMilli).Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("      Index:    %d files, %d classes, %d methods, %d call sites\n",
		m.Files, m.Classes, m.Methods, m.CallSites)
	fmt.Printf("      Schema:   %s\n", m.SchemaVersion)

	switch {
	case !r.hasData:
		fmt.Printf("      Payload:  MISSING (metadata without payload)\n")
	case m.ContentHash == "":
		fmt.Printf("      Payload:  %s, sha256 %s (no stored hash to verify)\n",
			formatBytes(r.dataSize), shortHash(r.dataHash))
	case m.ContentHash == r.dataHash:
		fmt.Printf("      Payload:  %s, sha256 %s OK\n", formatBytes(r.dataSize), shortHash(r.dataHash))
	default:
		fmt.Printf("      Payload:  %s, sha256 %s MISMATCH (metadata says %s)\n",
			formatBytes(r.dataSize), shortHash(r.dataHash), shortHash(m.ContentHash))
	}

	if stored, ok := reverse[r.id]; !ok {
		fmt.Printf("      Reverse:  MISSING ('javatrace snapshot diff %s' will not find it)\n", r.id)
	} else if stored != r.projectHash {
		fmt.Printf("      Reverse:  points at project %s, stored under %s\n", stored, r.projectHash)
	}
}

// splitSnapshotKey extracts (projectHash, snapshotID) from a data or meta key.
func splitSnapshotKey(key, suffix string) (string, string, bool) {
	middle := strings.TrimSuffix(strings.TrimPrefix(key, snapKeyPrefix), suffix)
	parts := strings.SplitN(middle, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// createdAt returns the metadata timestamp, 0 when metadata is missing.
func createdAt(r *snapshotRow) int64 {
	if r.meta == nil {
		return 0
	}
	return r.meta.CreatedAtMilli
}

// projectRootSuffix renders "  (/path/to/root)" when any snapshot in the
// group carries metadata naming the root.
func projectRootSuffix(group []*snapshotRow) string {
	for _, r := range group {
		if r.meta != nil && r.meta.ProjectRoot != "" {
			return "  (" + r.meta.ProjectRoot + ")"
		}
	}
	return ""
}

// danglingReverseEntries lists reverse-index IDs with no surviving snapshot.
func danglingReverseEntries(reverse map[string]string, rows map[string]*snapshotRow) []string {
	var dangling []string
	for id, projectHash := range reverse {
		if _, ok := rows[projectHash+":"+id]; !ok {
			dangling = append(dangling, id)
		}
	}
	sort.Strings(dangling)
	return dangling
}

// shortHash truncates a hex digest for display.
func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12] + "..."
	}
	return h
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(n int) string {
	switch {
	case n >= 1024*1024:
		return fmt.Sprintf("%.1f MB (%d bytes)", float64(n)/1024/1024, n)
	case n >= 1024:
		return fmt.Sprintf("%.1f KB (%d bytes)", float64(n)/1024, n)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

// plural returns singular or plural suffix based on count.
func plural(n int, singular, pluralSuffix string) string {
	if n == 1 {
		return singular
	}
	return pluralSuffix
}

// fatalf prints to stderr and exits 1.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "snapshot_dump: "+format+"\n", args...)
	os.Exit(1)
}
