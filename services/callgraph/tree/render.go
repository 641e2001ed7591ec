// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tree

import (
	"strings"

	"github.com/Morizady/javatrace/services/callgraph/resolve"
)

// Render returns the tree as box-drawing text, one node per line.
//
// Description:
//
//	Each node renders as "├── Class.method() [kind]" under its parent's
//	prefix; the root carries no kind marker. Chain nodes show their full
//	chain text instead of Class.method().
func (n *Node) Render() string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	renderNode(&b, n, "")
	return b.String()
}

func renderNode(b *strings.Builder, n *Node, prefix string) {
	b.WriteString(prefix)
	b.WriteString("├── ")
	b.WriteString(n.Label())
	if n.Kind != resolve.KindRoot {
		b.WriteString(" [")
		b.WriteString(string(n.Kind))
		b.WriteString("]")
	}
	b.WriteByte('\n')
	for i, child := range n.Children {
		childPrefix := prefix + "│   "
		if i == len(n.Children)-1 {
			childPrefix = prefix + "    "
		}
		renderNode(b, child, childPrefix)
	}
}
