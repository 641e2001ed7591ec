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

	"github.com/Morizady/javatrace/services/callgraph"
)

// Flag values for the analyze command.
var (
	analyzeDepth       int
	analyzeIgnore      []string
	analyzeJSON        bool
	analyzeOutput      string
	analyzeInteractive bool
	analyzeBrowse      bool
	analyzeNoColor     bool
)

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [entry-file] [entry-method]",
		Short: "Build a call tree from an entry method",
		Long: `Build a depth-bounded call tree from an entry method.

The entry file may be an exact path or a unique path suffix such as
"OrderController.java". With --interactive (or when the entry arguments are
omitted on a terminal) the entry is picked from a list of indexed classes
and methods.

Examples:
  javatrace analyze OrderController.java getOrder
  javatrace analyze controller/OrderController.java getOrder --depth 8
  javatrace analyze --interactive
  javatrace analyze OrderController.java getOrder --browse
  javatrace analyze OrderController.java getOrder --json > tree.json`,
		Args: cobra.MaximumNArgs(2),
		RunE: runAnalyzeCommand,
	}

	cmd.Flags().IntVarP(&analyzeDepth, "depth", "d", 0, "maximum tree depth (0 = config default)")
	cmd.Flags().StringSliceVar(&analyzeIgnore, "ignore", nil, "method or class names to exclude")
	cmd.Flags().BoolVar(&analyzeJSON, "json", false, "emit the serialized analysis as JSON")
	cmd.Flags().StringVarP(&analyzeOutput, "output", "o", "", "write JSON to a file instead of stdout")
	cmd.Flags().BoolVarP(&analyzeInteractive, "interactive", "i", false, "pick the entry method from a list")
	cmd.Flags().BoolVarP(&analyzeBrowse, "browse", "b", false, "open the tree in an interactive browser")
	cmd.Flags().BoolVar(&analyzeNoColor, "no-color", false, "disable styled output")

	return cmd
}

func runAnalyzeCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	proj, err := openProject(ctx)
	if err != nil {
		return err
	}

	entryFile, entryMethod, err := resolveEntry(proj, args, analyzeInteractive)
	if err != nil {
		return err
	}

	eng, err := proj.NewEngine()
	if err != nil {
		return err
	}

	depth := analyzeDepth
	if depth == 0 {
		depth = eng.DefaultDepth()
	}
	result, err := eng.Analyze(ctx, callgraph.AnalyzeRequest{
		EntryFile:   entryFile,
		EntryMethod: entryMethod,
		MaxDepth:    depth,
		Ignore:      analyzeIgnore,
	})
	if err != nil {
		return err
	}

	switch {
	case analyzeJSON || analyzeOutput != "":
		return writeAnalysisJSON(result, analyzeOutput)
	case analyzeBrowse:
		if !stdoutIsTTY() {
			return fmt.Errorf("--browse needs a terminal")
		}
		return browseTree(result)
	default:
		styled := stdoutIsTTY() && !analyzeNoColor
		fmt.Print(renderStyledTree(result.Root, styled))
		printRunStats(result)
		return nil
	}
}

// resolveEntry returns the entry file and method from positional arguments,
// or from the interactive picker when asked for or when arguments are
// missing on a terminal.
func resolveEntry(proj *project, args []string, interactive bool) (string, string, error) {
	if !interactive && len(args) == 2 {
		return args[0], args[1], nil
	}
	if !interactive && !stdoutIsTTY() {
		return "", "", fmt.Errorf("entry file and method are required (or run with --interactive on a terminal)")
	}
	if len(args) == 1 {
		// A lone file argument narrows the picker to that file's classes.
		return pickEntryInFile(proj.Build.Index, args[0])
	}
	return pickEntry(proj.Build.Index)
}

// writeAnalysisJSON emits the schema-versioned analysis envelope, indented,
// to the given path or stdout.
func writeAnalysisJSON(result *callgraph.AnalyzeResult, path string) error {
	env := result.Serializable()
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding analysis: %w", err)
	}
	data = append(data, '\n')
	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Printf("wrote %s (%d bytes)\n", path, len(data))
	return nil
}

// printRunStats prints the run summary line the tree view ends with.
func printRunStats(result *callgraph.AnalyzeResult) {
	s := result.Stats
	fmt.Printf("\n%d calls, depth %d, %d classes, %d mappings",
		s.TotalNodes-1, s.MaxDepth, s.DistinctClasses, s.Mappings)
	if s.JarResolved > 0 {
		fmt.Printf(", %d framework", s.JarResolved)
	}
	if s.Unresolved > 0 {
		fmt.Printf(", %d unresolved", s.Unresolved)
	}
	fmt.Printf("  (%dms)\n", s.DurationMillis)
}
