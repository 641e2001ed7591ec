// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Morizady/javatrace/services/callgraph"
	"github.com/Morizady/javatrace/services/callgraph/export"
)

// Flag values for the archive command.
var (
	archiveBucket string
	archivePrefix string
	archiveDepth  int
)

func newArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive <entry-file> <entry-method>",
		Short: "Analyze an entry and archive the run to GCS",
		Long: `Run one analysis and upload its serialized envelope, gzip-compressed,
to a Google Cloud Storage bucket under a date-partitioned object name.

Credentials come from CALLGRAPH_GCS_CREDENTIALS_FILE or application
default credentials.

Examples:
  CALLGRAPH_GCS_BUCKET=my-callgraphs javatrace archive OrderController.java getOrder
  javatrace archive OrderController.java getOrder --bucket my-callgraphs --prefix audits`,
		Args: cobra.ExactArgs(2),
		RunE: runArchiveCommand,
	}

	cmd.Flags().StringVar(&archiveBucket, "bucket", "", "destination bucket (default from CALLGRAPH_GCS_BUCKET)")
	cmd.Flags().StringVar(&archivePrefix, "prefix", "", "object name prefix (default from CALLGRAPH_GCS_PREFIX)")
	cmd.Flags().IntVarP(&archiveDepth, "depth", "d", 0, "maximum tree depth (0 = config default)")

	return cmd
}

func runArchiveCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg := export.LoadGCSConfig()
	if archiveBucket != "" {
		cfg.Bucket = archiveBucket
	}
	if archivePrefix != "" {
		cfg.Prefix = archivePrefix
	}
	if cfg.Bucket == "" {
		return fmt.Errorf("set CALLGRAPH_GCS_BUCKET or --bucket to pick a destination")
	}

	proj, err := openProject(ctx)
	if err != nil {
		return err
	}
	eng, err := proj.NewEngine()
	if err != nil {
		return err
	}
	depth := archiveDepth
	if depth == 0 {
		depth = eng.DefaultDepth()
	}
	result, err := eng.Analyze(ctx, callgraph.AnalyzeRequest{
		EntryFile:   args[0],
		EntryMethod: args[1],
		MaxDepth:    depth,
	})
	if err != nil {
		return err
	}

	archiver, err := export.NewArchiver(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer archiver.Close()

	object, err := archiver.ArchiveRun(ctx, result.RunID, result.Serializable())
	if err != nil {
		return fmt.Errorf("archiving run: %w", err)
	}

	fmt.Printf("archived run %s to gs://%s/%s\n", result.RunID, cfg.Bucket, object)
	return nil
}
