// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/Morizady/javatrace/services/callgraph/index"
	"github.com/Morizady/javatrace/services/callgraph/java"
)

// pickerHeight caps the visible rows of a selection list; longer lists
// scroll inside the form.
const pickerHeight = 15

// pickEntry interactively selects an entry method from the whole index.
//
// Description:
//
//	Two selects run in sequence: first the class, then one of its
//	methods. Classes without methods never appear. Aborting either form
//	cancels the command without an error trace.
//
// Outputs:
//   - string: Source path of the picked class.
//   - string: Picked method name.
//   - error: Empty index, or the user aborted.
func pickEntry(idx *index.ProjectIndex) (string, string, error) {
	opts := entryClassOptions(idx)
	if len(opts) == 0 {
		return "", "", errors.New("no classes with methods in the index")
	}

	var qualified string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Entry class").
			Description("Class declaring the entry method").
			Options(opts...).
			Height(pickerHeight).
			Value(&qualified),
	))
	if err := form.Run(); err != nil {
		return "", "", pickerError(err)
	}

	class, ok := idx.Class(qualified)
	if !ok {
		return "", "", fmt.Errorf("class %q vanished from the index", qualified)
	}
	return pickMethodOf(class)
}

// pickEntryInFile narrows the picker to the classes of one file. The file
// argument accepts the same exact-path-or-unique-suffix forms the engine
// accepts.
func pickEntryInFile(idx *index.ProjectIndex, fileArg string) (string, string, error) {
	hits := matchFiles(idx, fileArg)
	switch len(hits) {
	case 0:
		return "", "", fmt.Errorf("entry file %q not found in the index", fileArg)
	case 1:
	default:
		return "", "", fmt.Errorf("entry file %q is ambiguous: %s", fileArg, strings.Join(hits, ", "))
	}

	classes := idx.ClassesInFile(hits[0])
	withMethods := classes[:0]
	for _, c := range classes {
		if len(c.Methods) > 0 {
			withMethods = append(withMethods, c)
		}
	}
	switch len(withMethods) {
	case 0:
		return "", "", fmt.Errorf("no methods declared in %s", hits[0])
	case 1:
		return pickMethodOf(withMethods[0])
	}

	opts := make([]huh.Option[string], len(withMethods))
	for i, c := range withMethods {
		opts[i] = huh.NewOption(classLabel(c), c.QualifiedName())
	}
	var qualified string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Entry class").
			Options(opts...).
			Height(pickerHeight).
			Value(&qualified),
	))
	if err := form.Run(); err != nil {
		return "", "", pickerError(err)
	}
	for _, c := range withMethods {
		if c.QualifiedName() == qualified {
			return pickMethodOf(c)
		}
	}
	return "", "", fmt.Errorf("class %q vanished from the index", qualified)
}

// pickMethodOf selects one of the class's methods.
func pickMethodOf(class *java.ClassModel) (string, string, error) {
	opts := methodOptions(class)
	if len(opts) == 0 {
		return "", "", fmt.Errorf("no methods declared on %s", class.QualifiedName())
	}

	var method string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title(fmt.Sprintf("Entry method of %s", class.Name)).
			Options(opts...).
			Height(pickerHeight).
			Value(&method),
	))
	if err := form.Run(); err != nil {
		return "", "", pickerError(err)
	}
	return class.SourcePath, method, nil
}

// entryClassOptions lists every class carrying at least one method, in
// qualified-name order.
func entryClassOptions(idx *index.ProjectIndex) []huh.Option[string] {
	var opts []huh.Option[string]
	idx.EachClass(func(c *java.ClassModel) bool {
		if len(c.Methods) > 0 {
			opts = append(opts, huh.NewOption(classLabel(c), c.QualifiedName()))
		}
		return true
	})
	return opts
}

// methodOptions lists a class's methods in declaration order. Constructors
// are marked; overloads share a value since analyses address methods by
// name.
func methodOptions(class *java.ClassModel) []huh.Option[string] {
	opts := make([]huh.Option[string], 0, len(class.Methods))
	for i := range class.Methods {
		m := &class.Methods[i]
		opts = append(opts, huh.NewOption(methodLabel(m), m.Name))
	}
	return opts
}

// classLabel renders one class row: qualified name plus method count.
func classLabel(c *java.ClassModel) string {
	kind := ""
	if c.IsInterface {
		kind = " [interface]"
	}
	return fmt.Sprintf("%s%s (%d methods)", c.QualifiedName(), kind, len(c.Methods))
}

// methodLabel renders one method row: name, parameter types, and line.
func methodLabel(m *java.MethodModel) string {
	label := fmt.Sprintf("%s(%s)", m.Name, strings.Join(m.Parameters, ", "))
	if m.IsConstructor {
		label += " [constructor]"
	}
	if m.Line > 0 {
		label += fmt.Sprintf("  line %d", m.Line)
	}
	return label
}

// matchFiles returns the indexed paths matching an exact path or a
// path-segment suffix, the same matching analyses use for entry files.
func matchFiles(idx *index.ProjectIndex, arg string) []string {
	var hits []string
	for _, p := range idx.FilePaths() {
		if p == arg || strings.HasSuffix(p, "/"+arg) {
			hits = append(hits, p)
		}
	}
	return hits
}

// pickerError keeps a user abort quiet and wraps anything else.
func pickerError(err error) error {
	if errors.Is(err, huh.ErrUserAborted) {
		return errors.New("selection canceled")
	}
	return fmt.Errorf("selection failed: %w", err)
}
