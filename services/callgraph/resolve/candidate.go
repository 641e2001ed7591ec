// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package resolve turns extracted call sites into candidate callees.
//
// The resolver works against the frozen project index and never fails: a
// call it cannot place is returned as a tagged best-guess candidate rather
// than an error, so tree construction always has a leaf to attach. Each
// candidate carries a ResolutionKind explaining why it was chosen, which
// downstream reports surface verbatim.
package resolve

// ResolutionKind tags a candidate with the rule that produced it.
type ResolutionKind string

const (
	// KindRoot marks the entry method of an analysis run.
	KindRoot ResolutionKind = "root"

	// KindDirect marks a call resolved to a class that declares the method
	// itself, either the receiver's declared type or the caller's own class
	// for bare calls.
	KindDirect ResolutionKind = "direct"

	// KindStatic marks a class-qualified static call resolved in the index.
	KindStatic ResolutionKind = "static"

	// KindConstructor marks an object creation.
	KindConstructor ResolutionKind = "constructor"

	// KindInterface marks a candidate found through the
	// interface-to-implementation map.
	KindInterface ResolutionKind = "interface"

	// KindInheritance marks a candidate found through the
	// parent-to-subclass map.
	KindInheritance ResolutionKind = "inheritance"

	// KindServiceImpl marks a candidate found by the Service-to-Impl
	// naming convention.
	KindServiceImpl ResolutionKind = "service_impl"

	// KindChainCall marks a chained or dotted receiver kept as text.
	KindChainCall ResolutionKind = "chain_call"

	// KindStaticImport marks a bare call matched to a static import.
	KindStaticImport ResolutionKind = "static_import"

	// KindJarResolved marks a candidate inferred from the framework
	// method catalog rather than project source.
	KindJarResolved ResolutionKind = "jar_resolved"

	// KindUnresolved marks the best-guess fallback when every other rule
	// missed. The candidate still names a class so reports have a leaf.
	KindUnresolved ResolutionKind = "unresolved"
)

// Candidate is one possible callee for a call site.
//
// Description:
//
//	A single site may yield several candidates when the receiver type is
//	an interface or a parent class with multiple implementations; the tree
//	builder fans those out into sibling nodes. The zero value is not
//	meaningful; candidates are only produced by Resolver.Resolve.
type Candidate struct {
	// Class is the simple name of the target class.
	Class string `json:"class"`

	// Package is the target's package when known, "" otherwise.
	Package string `json:"package,omitempty"`

	// SourcePath is the defining file when the target is indexed.
	SourcePath string `json:"source_path,omitempty"`

	// Method is the invoked method name, ConstructorName for constructors.
	Method string `json:"method"`

	Kind ResolutionKind `json:"kind"`

	// ChainText carries the rendered chain for chain_call candidates.
	ChainText string `json:"chain_text,omitempty"`

	// Framework is the catalog entry backing a jar_resolved candidate.
	Framework *FrameworkMethod `json:"framework,omitempty"`
}

// QualifiedName returns Package.Class, or Class when the package is unknown.
func (c Candidate) QualifiedName() string {
	if c.Package == "" {
		return c.Class
	}
	return c.Package + "." + c.Class
}

// Resolution is the outcome of resolving one call site.
type Resolution struct {
	// Candidates holds the possible callees, empty only for known-external
	// receivers.
	Candidates []Candidate

	// KnownExternal marks a receiver recognized as standard-library or
	// utility code. Such calls are considered resolved outside the project
	// and produce no candidates and no tree nodes.
	KnownExternal bool

	// TypeName is the receiver type the resolution settled on, "" when the
	// ladder never reached a type.
	TypeName string
}
