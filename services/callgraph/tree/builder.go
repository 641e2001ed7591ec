// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tree builds depth-bounded call trees over a frozen project index.
//
// A Builder holds run-independent configuration and is safe to share; each
// Build call keeps its own visited set and mapping list, so parallel builds
// for different entry methods only share the read-only index.
package tree

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Morizady/javatrace/services/callgraph/index"
	"github.com/Morizady/javatrace/services/callgraph/java"
	"github.com/Morizady/javatrace/services/callgraph/resolve"
)

// DefaultMaxDepth bounds recursion when no depth is configured. Six levels
// reach DAO code from a controller entry in a typical layered service.
const DefaultMaxDepth = 6

// ErrMissingEntry reports a Build call without an entry method or class.
var ErrMissingEntry = errors.New("tree: entry method and class are required")

// Builder turns an entry method into a call tree.
//
// Description:
//
//	For every call site in the current method body the builder asks the
//	resolver for candidate callees, creates one child node per surviving
//	candidate, and recurses into each child's body looked up in the index.
//	A method expands at most once per (class, method, depth) key; repeat
//	occurrences stay in the tree as childless notes. Expansion stops at the
//	configured depth.
//
// Thread Safety:
//
//	Safe for concurrent Build calls; per-run state lives in the run value.
type Builder struct {
	idx      *index.ProjectIndex
	resolver *resolve.Resolver

	maxDepth             int
	ignore               map[string]struct{}
	suppressAccessors    bool
	suppressConstructors bool
}

// Option is a functional option for NewBuilder.
type Option func(*Builder)

// WithMaxDepth caps the tree depth. Depth zero yields a root-only tree.
func WithMaxDepth(depth int) Option {
	return func(b *Builder) {
		b.maxDepth = depth
	}
}

// WithIgnoreNames drops call sites whose method name, and candidates whose
// simple or qualified class name, appear in the list.
func WithIgnoreNames(names []string) Option {
	return func(b *Builder) {
		for _, name := range names {
			if name = strings.TrimSpace(name); name != "" {
				b.ignore[name] = struct{}{}
			}
		}
	}
}

// WithAccessorSuppression drops getter/setter calls whose resolved body
// makes no further calls.
func WithAccessorSuppression(on bool) Option {
	return func(b *Builder) {
		b.suppressAccessors = on
	}
}

// WithConstructorSuppression drops constructor call sites entirely.
func WithConstructorSuppression(on bool) Option {
	return func(b *Builder) {
		b.suppressConstructors = on
	}
}

// WithResolver replaces the default call resolver, letting callers share
// one resolver (and its framework catalog) across builders.
func WithResolver(r *resolve.Resolver) Option {
	return func(b *Builder) {
		b.resolver = r
	}
}

// NewBuilder creates a Builder over a frozen index.
func NewBuilder(idx *index.ProjectIndex, opts ...Option) *Builder {
	b := &Builder{
		idx:      idx,
		maxDepth: DefaultMaxDepth,
		ignore:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.resolver == nil {
		b.resolver = resolve.NewResolver(idx)
	}
	return b
}

// Build analyzes one entry method into a call tree.
//
// Description:
//
//	The root node carries the entry method itself at depth zero; children
//	follow call-site order, then candidate order, so the output is
//	deterministic for a frozen index. Resolution misses become tagged
//	leaves, never errors.
//
// Outputs:
//   - *Analysis: Root node, run-scoped mappings, and stats. On context
//     cancellation the partial tree built so far is returned alongside the
//     error.
//   - error: ErrMissingEntry for nil inputs, or the context's error.
func (b *Builder) Build(ctx context.Context, method *java.MethodModel, scope resolve.Scope) (*Analysis, error) {
	if method == nil || scope.Class == nil {
		return nil, ErrMissingEntry
	}

	start := time.Now()
	ctx, span := startBuildSpan(ctx, scope.Class.Name+"."+method.Name, b.maxDepth)
	defer span.End()

	root := &Node{
		Method:     method.Name,
		Class:      scope.Class.Name,
		Package:    scope.Class.Package,
		File:       method.SourcePath,
		Line:       method.Line,
		Kind:       resolve.KindRoot,
		Params:     append([]string(nil), method.Parameters...),
		ReturnType: method.ReturnType,
	}

	r := &run{
		builder: b,
		ctx:     ctx,
		visited: make(map[string]struct{}),
	}
	err := r.expand(root, method, scope)

	mappings := r.mappings
	if mappings == nil {
		mappings = []MethodMapping{}
	}
	stats := collectStats(root, len(mappings))
	stats.DurationMillis = time.Since(start).Milliseconds()

	recordBuildMetrics(time.Since(start), stats, err)
	setBuildSpanResult(span, stats)

	return &Analysis{Root: root, Mappings: mappings, Stats: stats}, err
}

// run holds the state scoped to a single Build call.
type run struct {
	builder  *Builder
	ctx      context.Context
	visited  map[string]struct{}
	mappings []MethodMapping
}

// pending pairs a created child with the site that produced it and the
// looked-up target body, held until chain de-duplication decides which
// siblings survive.
type pending struct {
	node   *Node
	site   java.CallSite
	target *java.MethodModel
	scope  resolve.Scope
}

// expand resolves the node's call sites into children and recurses.
func (r *run) expand(node *Node, method *java.MethodModel, scope resolve.Scope) error {
	if err := r.ctx.Err(); err != nil {
		return err
	}
	if node.Depth >= r.builder.maxDepth {
		return nil
	}
	key := fmt.Sprintf("%s.%s:%d", node.Class, node.Method, node.Depth)
	if _, seen := r.visited[key]; seen {
		// Already expanded at this depth; the node stands as a childless
		// note of the repeat occurrence.
		return nil
	}
	r.visited[key] = struct{}{}

	var children []pending
	for _, site := range method.CallSites {
		if r.builder.skipsSite(site) {
			continue
		}
		res := r.builder.resolver.Resolve(site, scope)
		if res.KnownExternal {
			continue
		}
		for _, cand := range res.Candidates {
			if r.builder.skipsClass(cand) {
				continue
			}
			target, targetScope := r.target(cand)
			if r.builder.skipsAccessor(site.Method, target) {
				continue
			}
			children = append(children, pending{
				node:   newChild(site, cand, node.Depth+1),
				site:   site,
				target: target,
				scope:  targetScope,
			})
		}
	}

	for _, p := range dedupeChains(children) {
		node.Children = append(node.Children, p.node)
		r.record(p.site, p.node, method.SourcePath)

		// Enum accessors are value lookups; expanding their bodies adds
		// noise without call-flow information.
		if p.target == nil || p.site.Kind == java.CallEnumConstant {
			continue
		}
		if err := r.expand(p.node, p.target, p.scope); err != nil {
			return err
		}
	}
	return nil
}

// target looks up the candidate's method body in the index. Chain,
// jar-resolved and unresolved candidates have no in-project body.
func (r *run) target(cand resolve.Candidate) (*java.MethodModel, resolve.Scope) {
	switch cand.Kind {
	case resolve.KindChainCall, resolve.KindJarResolved, resolve.KindUnresolved:
		return nil, resolve.Scope{}
	}
	cls, ok := r.builder.idx.Class(cand.QualifiedName())
	if !ok {
		return nil, resolve.Scope{}
	}
	method := cls.Method(cand.Method)
	if method == nil {
		return nil, resolve.Scope{}
	}
	file, _ := r.builder.idx.FileOf(cls)
	return method, resolve.Scope{Class: cls, File: file}
}

// record emits the cross-reference mapping for one surviving child. Bare
// and constructor sites produce none; mappings explain object-qualified
// calls to the reporting layer.
func (r *run) record(site java.CallSite, node *Node, callerFile string) {
	if site.Receiver == "" || site.Kind == java.CallConstructor {
		return
	}
	receiver := strings.TrimPrefix(site.Receiver, "this.")
	interfaceCall := receiver + "." + site.Method + "()"
	if site.ChainText != "" {
		interfaceCall = site.ChainText
	}
	importStmt := "import " + node.Class + ";"
	if node.Package != "" {
		importStmt = "import " + node.Package + "." + node.Class + ";"
	}
	r.mappings = append(r.mappings, MethodMapping{
		InterfaceCall:      interfaceCall,
		ImplementationCall: node.Class + "." + site.Method + "()",
		ImportStatement:    importStmt,
		Kind:               node.Kind,
		Line:               site.Line,
		File:               callerFile,
	})
}

// newChild builds the node for one resolved candidate.
func newChild(site java.CallSite, cand resolve.Candidate, depth int) *Node {
	n := &Node{
		Method:    cand.Method,
		Class:     cand.Class,
		Package:   cand.Package,
		File:      cand.SourcePath,
		Line:      site.Line,
		Kind:      cand.Kind,
		ChainText: cand.ChainText,
		Framework: cand.Framework,
		Params:    placeholderParams(site.ArgCount),
		Depth:     depth,
	}
	switch {
	case cand.Kind == resolve.KindConstructor:
		n.ReturnType = cand.Class
	case cand.Framework != nil:
		// The catalog knows real parameter names and the return type.
		n.Params = append([]string(nil), cand.Framework.Parameters...)
		n.ReturnType = cand.Framework.ReturnType
	}
	return n
}

// placeholderParams renders an argument count as arg0..argN placeholders.
func placeholderParams(count int) []string {
	if count <= 0 {
		return nil
	}
	params := make([]string, count)
	for i := range params {
		params[i] = fmt.Sprintf("arg%d", i)
	}
	return params
}

// dedupeChains keeps the longest chain per family: a chain-call sibling
// whose rendered text is a strict prefix of another chain sibling is
// dropped. Non-chain siblings always survive, so running the pass on an
// already-deduplicated list changes nothing.
func dedupeChains(children []pending) []pending {
	if len(children) < 2 {
		return children
	}
	out := make([]pending, 0, len(children))
	for i, c := range children {
		if c.node.Kind == resolve.KindChainCall && shadowedByLongerChain(children, i) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// shadowedByLongerChain reports whether another chain sibling's rendered
// text strictly extends this one's.
func shadowedByLongerChain(children []pending, i int) bool {
	text := children[i].site.Render()
	for j, other := range children {
		if j == i || other.node.Kind != resolve.KindChainCall {
			continue
		}
		otherText := other.site.Render()
		if len(otherText) > len(text) && strings.HasPrefix(otherText, text) {
			return true
		}
	}
	return false
}

// skipsSite applies the pre-resolution ignore rules.
func (b *Builder) skipsSite(site java.CallSite) bool {
	if b.suppressConstructors && site.Kind == java.CallConstructor {
		return true
	}
	_, ignored := b.ignore[site.Method]
	return ignored
}

// skipsClass applies the ignore list to a resolved candidate's class.
func (b *Builder) skipsClass(cand resolve.Candidate) bool {
	if _, ignored := b.ignore[cand.Class]; ignored {
		return true
	}
	if cand.Package != "" {
		if _, ignored := b.ignore[cand.QualifiedName()]; ignored {
			return true
		}
	}
	return false
}

// skipsAccessor suppresses getter/setter calls whose resolved body makes no
// further calls. Accessors that cannot be resolved in-project suppress on
// the name alone.
func (b *Builder) skipsAccessor(method string, target *java.MethodModel) bool {
	if !b.suppressAccessors || !isAccessorName(method) {
		return false
	}
	return target == nil || len(target.CallSites) == 0
}

// isAccessorName matches the getX/setX/isX naming convention.
func isAccessorName(name string) bool {
	for _, prefix := range []string{"get", "set", "is"} {
		rest, ok := strings.CutPrefix(name, prefix)
		if ok && rest != "" && rest[0] >= 'A' && rest[0] <= 'Z' {
			return true
		}
	}
	return false
}
