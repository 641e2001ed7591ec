// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/Morizady/javatrace/services/callgraph/resolve"
	"github.com/Morizady/javatrace/services/callgraph/tree"
)

// Styles for the tree view. Resolution kinds get stable colors so a tree
// can be scanned for unresolved (red) and framework (gray) nodes at a
// glance.
var (
	entryStyle = lipgloss.NewStyle().Bold(true)
	badgeStyle = lipgloss.NewStyle().Faint(true)

	kindStyles = map[resolve.ResolutionKind]lipgloss.Style{
		resolve.KindDirect:       lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		resolve.KindStatic:       lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		resolve.KindStaticImport: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		resolve.KindInterface:    lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		resolve.KindServiceImpl:  lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		resolve.KindInheritance:  lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
		resolve.KindConstructor:  lipgloss.NewStyle().Foreground(lipgloss.Color("5")),
		resolve.KindChainCall:    lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		resolve.KindJarResolved:  lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		resolve.KindUnresolved:   lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	}
)

// stdoutIsTTY reports whether stdout is an interactive terminal.
func stdoutIsTTY() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// lipglossColor returns a foreground style for an ANSI color code.
func lipglossColor(c string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(c))
}

// renderStyledTree renders a call tree with box-drawing connectors. With
// styled false the output is plain text with no escape sequences, which is
// what piped output and --no-color get.
func renderStyledTree(root *tree.Node, styled bool) string {
	if root == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(nodeText(root, styled))
	b.WriteByte('\n')
	renderChildren(&b, root, "", styled)
	return b.String()
}

func renderChildren(b *strings.Builder, n *tree.Node, prefix string, styled bool) {
	for i, child := range n.Children {
		connector, childPrefix := "├── ", prefix+"│   "
		if i == len(n.Children)-1 {
			connector, childPrefix = "└── ", prefix+"    "
		}
		b.WriteString(prefix)
		b.WriteString(connector)
		b.WriteString(nodeText(child, styled))
		b.WriteByte('\n')
		renderChildren(b, child, childPrefix, styled)
	}
}

// nodeText renders one node's label and kind badge.
func nodeText(n *tree.Node, styled bool) string {
	label := n.Label()
	if n.Kind == resolve.KindRoot {
		if styled {
			return entryStyle.Render(label)
		}
		return label
	}

	badge := "[" + string(n.Kind) + "]"
	if !styled {
		return label + " " + badge
	}
	if style, ok := kindStyles[n.Kind]; ok {
		label = style.Render(label)
	}
	return label + " " + badgeStyle.Render(badge)
}
