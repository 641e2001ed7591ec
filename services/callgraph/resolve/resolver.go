// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resolve

import (
	"log/slog"
	"strings"

	"github.com/Morizady/javatrace/services/callgraph/index"
	"github.com/Morizady/javatrace/services/callgraph/java"
)

// Scope identifies the lexical surroundings of a call site: the class whose
// method body contained it and the file that declared the class.
type Scope struct {
	Class *java.ClassModel
	File  *java.SourceFile
}

// importTable returns the scope file's import table, nil when absent.
func (s Scope) importTable() *java.ImportTable {
	if s.File == nil {
		return nil
	}
	return s.File.Imports
}

// Option is a functional option for NewResolver.
type Option func(*Resolver)

// WithFrameworkResolver replaces the default framework catalog resolver,
// letting callers supply one built with an external catalog file.
func WithFrameworkResolver(fr *FrameworkResolver) Option {
	return func(r *Resolver) {
		r.framework = fr
	}
}

// Resolver maps call sites to candidate callees using the project index,
// the generic-type substitution rules and the framework method catalog.
//
// Description:
//
//	Receiver handling runs a fixed ladder. Constructors resolve to their
//	created type. Recognized utility and standard-library receivers are
//	marked known-external and dropped. Variable receivers resolve their
//	type through field lookup, generic substitution, the Service naming
//	convention and the import table, then fan out across every indexed
//	class that could implement the call. Dotted receivers are kept as
//	chain text. Bare calls try static imports before the declaring class.
//	Whatever misses everything falls through to the framework catalog and
//	finally to a tagged best-guess candidate, so resolution never fails.
//
// Thread Safety:
//
// Safe for concurrent use once built; the resolver only reads the frozen
// index and the immutable catalog.
type Resolver struct {
	idx       *index.ProjectIndex
	framework *FrameworkResolver
}

// NewResolver builds a resolver over a frozen project index.
//
// Inputs:
//   - idx: The project index. Must be non-nil; Freeze should have been
//     called so lookups are deterministic.
//   - opts: Optional configuration.
func NewResolver(idx *index.ProjectIndex, opts ...Option) *Resolver {
	r := &Resolver{idx: idx}
	for _, opt := range opts {
		opt(r)
	}
	if r.framework == nil {
		fr, err := NewFrameworkResolver()
		if err != nil {
			// Only reachable when the embedded catalog is broken at build
			// time. Resolution degrades to index-only candidates.
			slog.Error("framework catalog unavailable, continuing without it",
				slog.String("error", err.Error()),
			)
			fr = &FrameworkResolver{
				byClass: make(map[string][]FrameworkMethod),
				chains:  make(map[string]string),
			}
		}
		r.framework = fr
	}
	return r
}

// Resolve maps one call site to its candidate callees.
//
// Description:
//
//	Never returns an error: sites that cannot be placed produce a single
//	unresolved candidate carrying the best-guess type name, and receivers
//	recognized as external utility code produce an empty candidate list
//	flagged KnownExternal. Candidate order is deterministic for a frozen
//	index, so repeated runs build identical trees.
//
// Inputs:
//   - site: The call site to resolve.
//   - scope: The class and file the site was extracted from.
func (r *Resolver) Resolve(site java.CallSite, scope Scope) Resolution {
	res := r.resolve(site, scope)
	recordResolution(res)
	return res
}

func (r *Resolver) resolve(site java.CallSite, scope Scope) Resolution {
	switch site.Kind {
	case java.CallConstructor:
		return r.resolveConstructor(site, scope)

	case java.CallChain:
		return chainResolution(site.Receiver, site)

	case java.CallStaticImport, java.CallDirect:
		return r.resolveDirect(site, scope)

	case java.CallEnumConstant:
		enum := site.EnumClass
		if enum == "" {
			enum = site.Receiver
		}
		if java.IsKnownExternal(enum) {
			return Resolution{KnownExternal: true, TypeName: enum}
		}
		return r.resolveWithType(site, scope, enum, KindDirect)

	default: // CallInstance, CallStatic
		return r.resolveObject(site, scope)
	}
}

// resolveObject handles instance and class-qualified receivers.
func (r *Resolver) resolveObject(site java.CallSite, scope Scope) Resolution {
	receiver := strings.TrimPrefix(site.Receiver, "this.")
	if receiver == "" {
		return r.resolveDirect(site, scope)
	}

	// Dotted receivers carry an expression, not a name. The rendered text
	// is the most precise answer available without data-flow analysis.
	if strings.Contains(receiver, ".") {
		return chainResolution(receiver, site)
	}

	if java.IsKnownExternal(receiver) {
		return Resolution{KnownExternal: true, TypeName: receiver}
	}

	if site.Kind == java.CallStatic {
		return r.resolveWithType(site, scope, receiver, KindStatic)
	}

	typeName := r.variableType(receiver, scope)
	if typeName == "" {
		return r.fallback(site, scope, receiver)
	}
	return r.resolveWithType(site, scope, typeName, KindDirect)
}

// resolveWithType fans a call out across the indexed classes that could
// receive it, falling back to the catalog when none can.
func (r *Resolver) resolveWithType(site java.CallSite, scope Scope, typeName string, directKind ResolutionKind) Resolution {
	cands := r.collectCandidates(typeName, site.Method, directKind)
	if len(cands) > 0 {
		return Resolution{Candidates: cands, TypeName: typeName}
	}
	return r.fallback(site, scope, typeName)
}

// variableType resolves a field or variable receiver to a type name, "" on
// miss. The rungs run in fixed order: declared field type, generic
// parameter substitution, the Service naming convention, then an import
// whose class name prefixes the variable.
func (r *Resolver) variableType(name string, scope Scope) string {
	imports := scope.importTable()

	if scope.Class != nil {
		if f := scope.Class.Field(name); f != nil && f.DeclaredType != "" && !IsTypeParameter(f.DeclaredType) {
			return f.DeclaredType
		}
		if t, ok := ResolveGenericFieldType(scope.Class, name, imports); ok {
			return t
		}
	}

	// orderService resolves to OrderService.
	if name != "Service" && strings.HasSuffix(name, "Service") {
		return capitalize(name)
	}

	if imports != nil {
		for _, imp := range imports.Plain {
			simple := simpleClassName(imp)
			base := strings.TrimSuffix(strings.ToLower(simple), "impl")
			if base != "" && strings.HasPrefix(strings.ToLower(name), base) {
				return simple
			}
		}
	}
	return ""
}

// collectCandidates gathers every indexed class that could receive the
// call: the type itself when it is a class declaring the method, every
// registered implementation of it, every subclass of it, and its Impl
// counterpart under the Service naming convention. Candidates are unique
// per class; the first matching rule tags the kind.
func (r *Resolver) collectCandidates(typeName, method string, directKind ResolutionKind) []Candidate {
	key := simpleClassName(typeName)

	var out []Candidate
	seen := make(map[string]struct{})
	add := func(cls *java.ClassModel, kind ResolutionKind) {
		qualified := cls.QualifiedName()
		if _, dup := seen[qualified]; dup {
			return
		}
		seen[qualified] = struct{}{}
		out = append(out, Candidate{
			Class:      cls.Name,
			Package:    cls.Package,
			SourcePath: cls.SourcePath,
			Method:     method,
			Kind:       kind,
		})
	}

	// Interfaces never receive the call themselves; their implementations
	// are collected below.
	if cls, ok := r.idx.Class(typeName); ok && !cls.IsInterface && cls.HasMethod(method) {
		add(cls, directKind)
	}
	for _, impl := range r.idx.Implementations(key) {
		if impl.HasMethod(method) {
			add(impl, KindInterface)
		}
	}
	for _, sub := range r.idx.Subclasses(key) {
		if sub.HasMethod(method) {
			add(sub, KindInheritance)
		}
	}
	if strings.HasSuffix(key, "Service") {
		if impl, ok := r.idx.Class(key + "Impl"); ok && impl.HasMethod(method) {
			add(impl, KindServiceImpl)
		}
	}
	return out
}

// resolveConstructor emits the single candidate for an object creation.
func (r *Resolver) resolveConstructor(site java.CallSite, scope Scope) Resolution {
	name := simpleClassName(site.Receiver)
	cand := Candidate{
		Class:  name,
		Method: java.ConstructorName,
		Kind:   KindConstructor,
	}
	if cls, ok := r.idx.Class(site.Receiver); ok {
		cand.Class = cls.Name
		cand.Package = cls.Package
		cand.SourcePath = cls.SourcePath
	} else if t := scope.importTable(); t != nil {
		cand.Package = packageOf(t.Resolve(name))
	}
	return Resolution{Candidates: []Candidate{cand}, TypeName: name}
}

// resolveDirect handles receiverless calls: a static-import target wins
// over the declaring class even when both define the name.
func (r *Resolver) resolveDirect(site java.CallSite, scope Scope) Resolution {
	if target, ok := scope.importTable().StaticTarget(site.Method); ok {
		cand := Candidate{
			Class:   simpleClassName(target),
			Package: packageOf(target),
			Method:  site.Method,
			Kind:    KindStaticImport,
		}
		if cls, found := r.idx.Class(target); found {
			cand.Class = cls.Name
			cand.Package = cls.Package
			cand.SourcePath = cls.SourcePath
		}
		return Resolution{Candidates: []Candidate{cand}, TypeName: cand.Class}
	}

	if own := scope.Class; own != nil && own.HasMethod(site.Method) {
		return Resolution{
			Candidates: []Candidate{{
				Class:      own.Name,
				Package:    own.Package,
				SourcePath: own.SourcePath,
				Method:     site.Method,
				Kind:       KindDirect,
			}},
			TypeName: own.Name,
		}
	}

	typeName := ""
	if scope.Class != nil {
		typeName = scope.Class.Name
	}
	return r.fallback(site, scope, typeName)
}

// fallback consults the framework catalog, then emits the tagged best
// guess. Resolution never returns an empty, unflagged result.
func (r *Resolver) fallback(site java.CallSite, scope Scope, typeName string) Resolution {
	var imports []string
	if t := scope.importTable(); t != nil {
		imports = t.Plain
	}

	simple := simpleClassName(typeName)
	q := Lookup{Class: simple, Method: site.Method, Imports: imports, Index: r.idx}
	if fm := r.framework.Resolve(q); fm != nil {
		return Resolution{
			Candidates: []Candidate{{
				Class:     simple,
				Package:   fm.Package,
				Method:    site.Method,
				Kind:      KindJarResolved,
				Framework: fm,
			}},
			TypeName: typeName,
		}
	}

	return Resolution{
		Candidates: []Candidate{{
			Class:  simple,
			Method: site.Method,
			Kind:   KindUnresolved,
		}},
		TypeName: typeName,
	}
}

// chainResolution keeps a chained or dotted receiver as rendered text.
func chainResolution(receiver string, site java.CallSite) Resolution {
	return Resolution{
		Candidates: []Candidate{{
			Class:     receiver,
			Method:    site.Method,
			Kind:      KindChainCall,
			ChainText: site.Render(),
		}},
		TypeName: receiver,
	}
}

// packageOf returns the package portion of a dotted type path.
func packageOf(path string) string {
	if dot := strings.LastIndexByte(path, '.'); dot > 0 {
		return path[:dot]
	}
	return ""
}

// capitalize upper-cases the first byte of an ASCII identifier.
func capitalize(name string) string {
	if name == "" || name[0] < 'a' || name[0] > 'z' {
		return name
	}
	return string(name[0]-'a'+'A') + name[1:]
}
