// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package snapshot

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Morizady/javatrace/services/callgraph/index"
	"github.com/Morizady/javatrace/services/callgraph/java"
)

// ChangeKind classifies what changed in a modified class.
type ChangeKind string

const (
	// ChangeSignature means declared methods or fields changed.
	ChangeSignature ChangeKind = "signature"

	// ChangeRelations means the superclass, implemented interfaces, or
	// the interface/abstract flags changed.
	ChangeRelations ChangeKind = "relations"

	// ChangeBoth means both signature and relations changed.
	ChangeBoth ChangeKind = "both"
)

// ClassChange describes one modified class between two snapshots.
type ClassChange struct {
	// Class is the qualified class name.
	Class string `json:"class"`

	// Kind classifies the change.
	Kind ChangeKind `json:"kind"`

	// AddedMethods and RemovedMethods list method names present in only
	// one side, sorted. Parameter-only changes do not appear here; they
	// still mark the class as modified.
	AddedMethods   []string `json:"added_methods,omitempty"`
	RemovedMethods []string `json:"removed_methods,omitempty"`
}

// IndexDiff is the class-level difference between two project indexes.
//
// Description:
//
//	Added and Removed hold qualified class names present in only one
//	index, sorted. Modified holds classes present in both whose declared
//	shape differs, sorted by class name.
type IndexDiff struct {
	Added    []string      `json:"added"`
	Removed  []string      `json:"removed"`
	Modified []ClassChange `json:"modified"`
}

// Empty reports whether the two indexes were identical at class level.
func (d *IndexDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// Summary renders a one-line count, e.g. "3 added, 1 removed, 2 modified".
func (d *IndexDiff) Summary() string {
	return fmt.Sprintf("%d added, %d removed, %d modified",
		len(d.Added), len(d.Removed), len(d.Modified))
}

// Diff compares two project indexes at class level.
//
// Description:
//
//	Classes are matched by qualified name. A matched class counts as
//	modified when its method signatures, fields, superclass, interface
//	list, or interface/abstract flags differ. Call sites and line numbers
//	are ignored, so formatting-only edits produce an empty diff.
//
// Inputs:
//
//	before - The older index. May be nil, treated as empty.
//	after - The newer index. May be nil, treated as empty.
//
// Outputs:
//
//	*IndexDiff - The difference, never nil.
func Diff(before, after *index.ProjectIndex) *IndexDiff {
	beforeClasses := classMap(before)
	afterClasses := classMap(after)

	diff := &IndexDiff{
		Added:    []string{},
		Removed:  []string{},
		Modified: []ClassChange{},
	}

	for name := range afterClasses {
		if _, ok := beforeClasses[name]; !ok {
			diff.Added = append(diff.Added, name)
		}
	}
	for name := range beforeClasses {
		if _, ok := afterClasses[name]; !ok {
			diff.Removed = append(diff.Removed, name)
		}
	}
	sort.Strings(diff.Added)
	sort.Strings(diff.Removed)

	for name, b := range beforeClasses {
		a, ok := afterClasses[name]
		if !ok {
			continue
		}
		if change := compareClass(name, b, a); change != nil {
			diff.Modified = append(diff.Modified, *change)
		}
	}
	sort.Slice(diff.Modified, func(i, j int) bool {
		return diff.Modified[i].Class < diff.Modified[j].Class
	})

	return diff
}

// compareClass returns the change between two versions of one class, or
// nil when their declared shapes match.
func compareClass(name string, before, after *java.ClassModel) *ClassChange {
	sigChanged := !equalStrings(methodProfile(before), methodProfile(after)) ||
		!equalStrings(fieldProfile(before), fieldProfile(after))
	relChanged := before.SuperClass != after.SuperClass ||
		!equalStrings(before.Interfaces, after.Interfaces) ||
		before.IsInterface != after.IsInterface ||
		before.IsAbstract != after.IsAbstract

	if !sigChanged && !relChanged {
		return nil
	}

	change := &ClassChange{Class: name}
	switch {
	case sigChanged && relChanged:
		change.Kind = ChangeBoth
	case sigChanged:
		change.Kind = ChangeSignature
	default:
		change.Kind = ChangeRelations
	}

	if sigChanged {
		beforeNames := methodNames(before)
		afterNames := methodNames(after)
		change.AddedMethods = namesOnlyIn(afterNames, beforeNames)
		change.RemovedMethods = namesOnlyIn(beforeNames, afterNames)
	}
	return change
}

// classMap indexes every class by qualified name. A nil index yields an
// empty map.
func classMap(idx *index.ProjectIndex) map[string]*java.ClassModel {
	classes := make(map[string]*java.ClassModel)
	if idx == nil {
		return classes
	}
	idx.EachClass(func(class *java.ClassModel) bool {
		classes[class.QualifiedName()] = class
		return true
	})
	return classes
}

// methodProfile renders each declared method as "name(p1,p2) ret", sorted.
func methodProfile(c *java.ClassModel) []string {
	profile := make([]string, 0, len(c.Methods))
	for i := range c.Methods {
		m := &c.Methods[i]
		profile = append(profile, fmt.Sprintf("%s(%s) %s",
			m.Name, strings.Join(m.Parameters, ","), m.ReturnType))
	}
	sort.Strings(profile)
	return profile
}

// fieldProfile renders each declared field as "name type", sorted.
func fieldProfile(c *java.ClassModel) []string {
	profile := make([]string, 0, len(c.Fields))
	for _, f := range c.Fields {
		profile = append(profile, f.Name+" "+f.DeclaredType)
	}
	sort.Strings(profile)
	return profile
}

func methodNames(c *java.ClassModel) map[string]struct{} {
	names := make(map[string]struct{}, len(c.Methods))
	for i := range c.Methods {
		names[c.Methods[i].Name] = struct{}{}
	}
	return names
}

// namesOnlyIn returns the names in a but not in b, sorted. Empty input
// yields nil so the JSON field stays omitted.
func namesOnlyIn(a, b map[string]struct{}) []string {
	var only []string
	for name := range a {
		if _, ok := b[name]; !ok {
			only = append(only, name)
		}
	}
	sort.Strings(only)
	return only
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
