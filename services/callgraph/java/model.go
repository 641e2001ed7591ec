// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package java defines the source model for analyzed Java projects: classes,
// fields, methods, call sites, and per-file import tables, plus the two
// extractor front-ends (regex and tree-sitter) that produce them.
//
// Models are built once during indexing and treated as immutable afterward.
//
// Thread Safety:
//
//	All model types are plain data. They are safe for concurrent reads after
//	indexing completes; they must not be mutated once handed to an index.
package java

import (
	"fmt"
	"strings"
)

// ConstructorName is the marker method name recorded for constructor call
// sites and constructor declarations.
const ConstructorName = "<init>"

// CallKind classifies how a call site invokes its target.
type CallKind int

const (
	// CallDirect is a bare call with no receiver: method().
	CallDirect CallKind = iota

	// CallInstance is a call through a variable or field receiver: obj.method().
	CallInstance

	// CallStatic is a call through a class-name receiver: ClassName.method().
	CallStatic

	// CallConstructor is an object creation: new ClassName(...).
	CallConstructor

	// CallChain is one hop of a multi-hop chained expression:
	// expr.first().second() produces one CallChain site per hop.
	CallChain

	// CallEnumConstant is a call through an enum constant:
	// EnumType.CONSTANT.method().
	CallEnumConstant

	// CallStaticImport is a bare call whose name matches a static import.
	CallStaticImport
)

// String returns the wire name of the call kind.
func (k CallKind) String() string {
	switch k {
	case CallDirect:
		return "direct"
	case CallInstance:
		return "instance"
	case CallStatic:
		return "static"
	case CallConstructor:
		return "constructor"
	case CallChain:
		return "chain"
	case CallEnumConstant:
		return "enum_constant"
	case CallStaticImport:
		return "static_import"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ParseCallKind maps a wire name produced by String back to its CallKind.
func ParseCallKind(name string) (CallKind, error) {
	switch name {
	case "direct":
		return CallDirect, nil
	case "instance":
		return CallInstance, nil
	case "static":
		return CallStatic, nil
	case "constructor":
		return CallConstructor, nil
	case "chain":
		return CallChain, nil
	case "enum_constant":
		return CallEnumConstant, nil
	case "static_import":
		return CallStaticImport, nil
	default:
		return 0, fmt.Errorf("unknown call kind %q", name)
	}
}

// Priority orders call kinds for de-duplication when several patterns match
// the same receiver.method at the same line. Higher wins.
func (k CallKind) Priority() int {
	switch k {
	case CallStatic, CallEnumConstant, CallStaticImport:
		return 4
	case CallConstructor:
		return 3
	case CallInstance, CallChain:
		return 2
	case CallDirect:
		return 1
	default:
		return 0
	}
}

// ClassModel describes one top-level class or interface declaration.
//
// Description:
//
//	Built once per source file by an extractor. SuperClass and Interfaces
//	keep the raw declaration text, which may include generic arguments
//	(e.g. "ServiceImpl<OrderMapper, Order>"); downstream resolution strips
//	or substitutes those as needed.
type ClassModel struct {
	Name       string
	Package    string
	SourcePath string

	// SuperClass is the raw extends reference, "" when absent.
	SuperClass string

	// Interfaces holds raw implements references in declaration order.
	Interfaces []string

	Fields  []FieldModel
	Methods []MethodModel

	IsInterface bool
	IsAbstract  bool
}

// QualifiedName returns package.Name, or Name for the default package.
func (c *ClassModel) QualifiedName() string {
	if c.Package == "" {
		return c.Name
	}
	return c.Package + "." + c.Name
}

// RawSuperName returns the superclass reference with any generic argument
// list removed: "ServiceImpl<OrderMapper, Order>" yields "ServiceImpl".
func (c *ClassModel) RawSuperName() string {
	return StripGenerics(c.SuperClass)
}

// Method returns the first declared method with the given name, or nil.
func (c *ClassModel) Method(name string) *MethodModel {
	for i := range c.Methods {
		if c.Methods[i].Name == name {
			return &c.Methods[i]
		}
	}
	return nil
}

// HasMethod reports whether the class declares a method with the given name.
func (c *ClassModel) HasMethod(name string) bool {
	return c.Method(name) != nil
}

// Field returns the declared field with the given name, or nil.
func (c *ClassModel) Field(name string) *FieldModel {
	for i := range c.Fields {
		if c.Fields[i].Name == name {
			return &c.Fields[i]
		}
	}
	return nil
}

// FieldModel describes one field declaration.
//
// DeclaredType is the simple type name as written, with generic arguments
// removed. It may be a bare generic parameter letter such as "M" or "T" when
// the field is declared against a type parameter of a generic base class.
type FieldModel struct {
	Name         string
	DeclaredType string
}

// MethodModel describes one method or constructor declaration together with
// the call sites extracted from its body.
type MethodModel struct {
	Name       string
	Class      string
	SourcePath string
	Line       int

	// Parameters holds declared parameter types in order.
	Parameters []string

	ReturnType string

	CallSites []CallSite

	IsConstructor bool
}

// Signature renders Class.Name for logs and visited keys.
func (m *MethodModel) Signature() string {
	return m.Class + "." + m.Name
}

// CallSite is one syntactic method invocation found in a method body.
//
// Produced by an extractor, consumed exactly once by the call resolver.
type CallSite struct {
	// Receiver is the expression the call is applied to: empty for bare
	// calls, an identifier, "this.field", a dotted chain, or a class name.
	Receiver string

	Method   string
	Kind     CallKind
	Line     int
	ArgCount int

	// EnumClass tags enum-constant calls with the declaring enum type.
	EnumClass string

	// ChainText carries the full rendered chain for chain hops,
	// e.g. "wrapper.eq().orderBy()". Empty for non-chain sites.
	ChainText string
}

// Key identifies a site for intra-body de-duplication.
func (s CallSite) Key() string {
	return fmt.Sprintf("%s.%s@%d", s.Receiver, s.Method, s.Line)
}

// Render returns the site as receiver.method() text, matching how call sites
// appear in mapping output. Chain hops render their full accumulated chain so
// that sibling de-duplication can compare prefixes.
func (s CallSite) Render() string {
	if s.ChainText != "" {
		return s.ChainText
	}
	if s.Kind == CallConstructor {
		return "new " + s.Receiver + "()"
	}
	if s.Receiver == "" {
		return s.Method + "()"
	}
	return s.Receiver + "." + s.Method + "()"
}

// ImportTable records the import section of one source file.
type ImportTable struct {
	// Plain holds non-static imports in source order.
	Plain []string

	// Static maps a static-import simple name to the declaring type path:
	// "import static org.apache.commons.lang3.StringUtils.isBlank" records
	// "isBlank" -> "org.apache.commons.lang3.StringUtils".
	Static map[string]string

	// Lines maps import text to its source line for report back-references.
	Lines map[string]int
}

// NewImportTable returns an empty table with allocated maps.
func NewImportTable() *ImportTable {
	return &ImportTable{
		Static: make(map[string]string),
		Lines:  make(map[string]int),
	}
}

// AddPlain records a non-static import.
func (t *ImportTable) AddPlain(path string, line int) {
	t.Plain = append(t.Plain, path)
	t.Lines[path] = line
}

// AddStatic records a static import of the form declaringType.member.
func (t *ImportTable) AddStatic(path string, line int) {
	t.Lines[path] = line
	dot := strings.LastIndexByte(path, '.')
	if dot <= 0 || dot == len(path)-1 {
		return
	}
	member := path[dot+1:]
	declaring := path[:dot]
	// A trailing * imports every static member; keep the declaring type
	// under the wildcard key so lookups can still report the source type.
	if member == "*" {
		t.Static["*"] = declaring
		return
	}
	t.Static[member] = declaring
}

// StaticTarget returns the declaring type for a statically imported simple
// name. Wildcard static imports match any name.
func (t *ImportTable) StaticTarget(name string) (string, bool) {
	if t == nil {
		return "", false
	}
	if declaring, ok := t.Static[name]; ok {
		return declaring, true
	}
	if declaring, ok := t.Static["*"]; ok {
		return declaring, true
	}
	return "", false
}

// Resolve maps a simple class name to its fully-qualified import, returning
// the simple name unchanged when no import matches (same-package types need
// no import).
func (t *ImportTable) Resolve(simple string) string {
	if t == nil || simple == "" {
		return simple
	}
	suffix := "." + simple
	for _, imp := range t.Plain {
		if strings.HasSuffix(imp, suffix) {
			return imp
		}
	}
	return simple
}

// StripGenerics removes a trailing generic argument list from a type
// reference: "Base<M, T>" yields "Base". Nested angle brackets are handled.
func StripGenerics(ref string) string {
	ref = strings.TrimSpace(ref)
	if i := strings.IndexByte(ref, '<'); i >= 0 {
		return strings.TrimSpace(ref[:i])
	}
	return ref
}

// SplitTypeArguments splits the angle-bracket argument list of a generic
// reference, respecting nested brackets:
// "Base<Map<String, Long>, Order>" yields ["Map<String, Long>", "Order"].
// Returns nil when the reference carries no argument list.
func SplitTypeArguments(ref string) []string {
	open := strings.IndexByte(ref, '<')
	end := strings.LastIndexByte(ref, '>')
	if open < 0 || end <= open {
		return nil
	}
	inner := ref[open+1 : end]
	var args []string
	depth := 0
	start := 0
	for i := 0; i < len(inner); i++ {
		switch inner[i] {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(inner[start:i]))
				start = i + 1
			}
		}
	}
	if tail := strings.TrimSpace(inner[start:]); tail != "" {
		args = append(args, tail)
	}
	return args
}
