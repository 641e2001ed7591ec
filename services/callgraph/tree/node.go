// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tree

import (
	"fmt"

	"github.com/Morizady/javatrace/services/callgraph/resolve"
)

// Node is one method in a resolved call tree.
//
// Description:
//
//	The root node carries the entry method's declared parameters and return
//	type; child nodes carry placeholder parameters derived from the call
//	site's argument count, or the catalog's parameter names for framework
//	methods. Children are exclusively owned by their parent and ordered by
//	call-site position, so a frozen tree serializes identically across runs.
type Node struct {
	Method  string `json:"method"`
	Class   string `json:"class"`
	Package string `json:"package,omitempty"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`

	Kind resolve.ResolutionKind `json:"kind"`

	Params     []string `json:"params,omitempty"`
	ReturnType string   `json:"return_type,omitempty"`

	// ChainText holds the full rendered chain for chain-call nodes.
	ChainText string `json:"chain_text,omitempty"`

	// Framework carries catalog detail for jar-resolved nodes.
	Framework *resolve.FrameworkMethod `json:"framework,omitempty"`

	Depth    int     `json:"depth"`
	Children []*Node `json:"children,omitempty"`
}

// Label renders the node as Class.method() display text. Chain nodes render
// their full chain instead.
func (n *Node) Label() string {
	if n.ChainText != "" {
		return n.ChainText
	}
	return fmt.Sprintf("%s.%s()", n.Class, n.Method)
}

// Walk visits the node and every descendant in depth-first pre-order.
func (n *Node) Walk(fn func(*Node)) {
	if n == nil {
		return
	}
	fn(n)
	for _, child := range n.Children {
		child.Walk(fn)
	}
}

// MethodMapping cross-references one resolved call site: how the caller
// writes the call, which class actually receives it, and the import that
// connects them. Field names follow the mapping report format.
type MethodMapping struct {
	InterfaceCall      string                 `json:"interface_call"`
	ImplementationCall string                 `json:"implementation_call"`
	ImportStatement    string                 `json:"import_statement"`
	Kind               resolve.ResolutionKind `json:"call_type"`
	Line               int                    `json:"line_number"`
	File               string                 `json:"file_path"`
}

// RunStats summarizes one analysis run.
type RunStats struct {
	TotalNodes      int   `json:"total_nodes"`
	MaxDepth        int   `json:"max_depth"`
	DistinctClasses int   `json:"distinct_classes"`
	JarResolved     int   `json:"jar_resolved"`
	Unresolved      int   `json:"unresolved"`
	Mappings        int   `json:"mappings"`
	DurationMillis  int64 `json:"duration_millis,omitempty"`
}

// Analysis is the result of one tree build: the root node, the run-scoped
// mapping list, and summary statistics.
type Analysis struct {
	Root     *Node           `json:"root"`
	Mappings []MethodMapping `json:"mappings"`
	Stats    RunStats        `json:"stats"`
}

// collectStats walks a finished tree and tallies the run statistics.
func collectStats(root *Node, mappings int) RunStats {
	stats := RunStats{Mappings: mappings}
	classes := make(map[string]struct{})
	root.Walk(func(n *Node) {
		stats.TotalNodes++
		if n.Depth > stats.MaxDepth {
			stats.MaxDepth = n.Depth
		}
		classes[n.Class] = struct{}{}
		switch n.Kind {
		case resolve.KindJarResolved:
			stats.JarResolved++
		case resolve.KindUnresolved:
			stats.Unresolved++
		}
	})
	stats.DistinctClasses = len(classes)
	return stats
}
