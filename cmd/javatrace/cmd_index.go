// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Flag values for the index command.
var indexOutput string

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index the project and report what was found",
		Long: `Walk the project root, parse every Java source file, and print index
statistics. With --output the full serialized index is written as JSON,
the same schema-versioned form snapshots and the HTTP export use.

Examples:
  javatrace index
  javatrace index --root /path/to/project
  javatrace index --output index.json`,
		Args: cobra.NoArgs,
		RunE: runIndexCommand,
	}

	cmd.Flags().StringVarP(&indexOutput, "output", "o", "", "write the serialized index to a file")

	return cmd
}

func runIndexCommand(cmd *cobra.Command, _ []string) error {
	proj, err := openProject(cmd.Context())
	if err != nil {
		return err
	}

	build := proj.Build.Stats
	stats := proj.Build.Index.Stats()

	fmt.Printf("Indexed %s\n", proj.Root)
	fmt.Printf("  files       %d parsed, %d skipped (of %d walked)\n",
		build.FilesParsed, build.FilesSkipped, build.FilesWalked)
	fmt.Printf("  classes     %d (%d interfaces)\n", stats.TotalClasses, stats.InterfaceCount)
	fmt.Printf("  methods     %d\n", stats.TotalMethods)
	fmt.Printf("  call sites  %d\n", stats.TotalCallSites)
	if stats.DuplicateClasses > 0 {
		fmt.Printf("  duplicates  %d classes shadowed by earlier declarations\n", stats.DuplicateClasses)
	}

	if indexOutput == "" {
		return nil
	}

	data, err := json.MarshalIndent(proj.Build.Index.ToSerializable(), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(indexOutput, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", indexOutput, err)
	}
	fmt.Printf("wrote %s (%d bytes)\n", indexOutput, len(data))
	return nil
}
