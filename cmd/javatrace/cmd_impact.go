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
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Morizady/javatrace/services/callgraph"
)

// Flag values for the impact command.
var (
	impactPatch    string
	impactEntries  []string
	impactParallel int
	impactJSON     bool
)

func newImpactCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "impact",
		Short: "Report which entry points a diff impacts",
		Long: `Parse a unified diff, map its changed lines to indexed methods, and
re-run the given entry analyses to report which call trees reach the
changed code.

Entries are given as file:method pairs; the file part accepts the same
exact-path-or-suffix forms analyze accepts. The patch comes from a file
or from stdin with --patch -.

Examples:
  javatrace impact --patch changes.diff --entry OrderController.java:getOrder
  git diff | javatrace impact --patch - \
      --entry OrderController.java:getOrder \
      --entry AdminController.java:rebuildCaches`,
		Args: cobra.NoArgs,
		RunE: runImpactCommand,
	}

	cmd.Flags().StringVarP(&impactPatch, "patch", "p", "", "unified diff file, or - for stdin (required)")
	cmd.Flags().StringArrayVarP(&impactEntries, "entry", "e", nil, "entry as file:method, repeatable (required)")
	cmd.Flags().IntVar(&impactParallel, "parallel", 0, "concurrent entry analyses (0 = one per CPU)")
	cmd.Flags().BoolVar(&impactJSON, "json", false, "emit the report as JSON")
	cobra.CheckErr(cmd.MarkFlagRequired("patch"))
	cobra.CheckErr(cmd.MarkFlagRequired("entry"))

	return cmd
}

func runImpactCommand(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	patch, err := readPatch(impactPatch)
	if err != nil {
		return err
	}

	proj, err := openProject(ctx)
	if err != nil {
		return err
	}
	eng, err := proj.NewEngine()
	if err != nil {
		return err
	}

	entries := make([]callgraph.AnalyzeRequest, 0, len(impactEntries))
	for _, spec := range impactEntries {
		file, method, err := parseEntrySpec(spec)
		if err != nil {
			return err
		}
		entries = append(entries, callgraph.AnalyzeRequest{
			EntryFile:   file,
			EntryMethod: method,
			MaxDepth:    eng.DefaultDepth(),
		})
	}

	report, err := eng.Impact(ctx, patch, entries, impactParallel)
	if err != nil {
		return err
	}

	if impactJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	styled := stdoutIsTTY()
	fmt.Println(report.Summary())
	if len(report.ChangedMethods) > 0 {
		fmt.Println("\nchanged methods:")
		for _, m := range report.ChangedMethods {
			fmt.Printf("  %s.%s (%s:%d)\n", m.Class, m.Method, m.File, m.Line)
		}
	}
	if len(report.Impacted) > 0 {
		fmt.Println("\nimpacted entries:")
		for _, e := range report.Impacted {
			fmt.Println(diffLine("  !", fmt.Sprintf("%s reaches %s", e.Entry, strings.Join(e.Touched, ", ")), "1", styled))
		}
	}
	if len(report.Clean) > 0 {
		fmt.Println("\nclean entries:")
		for _, e := range report.Clean {
			fmt.Println(diffLine("  ok", e, "2", styled))
		}
	}
	return nil
}

// readPatch loads the diff from a file or stdin when path is "-".
func readPatch(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading patch from stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading patch: %w", err)
	}
	return data, nil
}

// parseEntrySpec splits "File.java:method" into its parts. The split is on
// the last colon so directory prefixes keep working.
func parseEntrySpec(spec string) (string, string, error) {
	i := strings.LastIndexByte(spec, ':')
	if i <= 0 || i == len(spec)-1 {
		return "", "", fmt.Errorf("entry %q must be file:method", spec)
	}
	return spec[:i], spec[i+1:], nil
}
