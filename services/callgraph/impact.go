// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package callgraph

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Morizady/javatrace/services/callgraph/impact"
)

// Impact checks which entry points a patch affects.
//
// Description:
//
//	Parses the unified diff against the engine's index, analyzes every
//	entry in parallel, and splits the entries into those whose call trees
//	reach a changed method and those untouched. When the patch changes no
//	indexed method the analyses are skipped; entries are still resolved so
//	bad requests fail the same way.
//
// Inputs:
//   - patch: A unified diff for the indexed tree. Must not be empty.
//   - entries: The entry methods to check. Must not be empty.
//   - limit: Maximum concurrent analyses; DefaultAnalyzeLimit when <= 0.
//
// Outputs:
//   - *impact.Report: The changed files and methods plus the impacted and
//     clean entry lists. Nil on error.
//   - error: ErrInvalidRequest for a bad patch or entry list, or the first
//     analysis error.
func (e *Engine) Impact(ctx context.Context, patch []byte, entries []AnalyzeRequest, limit int) (*impact.Report, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: at least one entry is required", ErrInvalidRequest)
	}
	changes, err := impact.ChangedMethods(patch, e.idx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	report := &impact.Report{
		ChangedFiles:   changes.Files,
		ChangedMethods: changes.Methods,
		Impacted:       []impact.EntryImpact{},
		Clean:          []string{},
	}

	if changes.Empty() {
		for _, req := range entries {
			if err := req.validate(); err != nil {
				return nil, err
			}
			_, scope, err := e.findEntry(req.EntryFile, req.EntryMethod)
			if err != nil {
				return nil, err
			}
			report.Clean = append(report.Clean, scope.Class.Name+"."+req.EntryMethod)
		}
		sort.Strings(report.Clean)
		return report, nil
	}

	results, err := e.AnalyzeAll(ctx, entries, limit)
	if err != nil {
		return nil, err
	}
	for _, res := range results {
		entry := res.Root.Class + "." + res.Root.Method
		touched := changes.Touched(res.Root)
		if len(touched) == 0 {
			report.Clean = append(report.Clean, entry)
			continue
		}
		report.Impacted = append(report.Impacted, impact.EntryImpact{
			Entry:   entry,
			File:    res.Request.EntryFile,
			Touched: touched,
		})
	}
	sort.Slice(report.Impacted, func(i, j int) bool {
		return report.Impacted[i].Entry < report.Impacted[j].Entry
	})
	sort.Strings(report.Clean)

	e.log.Info("impact analysis complete",
		slog.Int("changed_files", len(report.ChangedFiles)),
		slog.Int("changed_methods", len(report.ChangedMethods)),
		slog.Int("impacted", len(report.Impacted)),
		slog.Int("clean", len(report.Clean)),
	)
	return report, nil
}
