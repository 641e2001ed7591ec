// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package java parses Java source files into the models consumed by the
// project index and call-tree builder: class declarations, fields, method
// declarations, per-file import tables, and the call sites inside each
// method body.
//
// Two parsers implement the same interface. RegexParser is the default: a
// heuristic, dependency-free line scanner that tolerates any input.
// SitterParser uses tree-sitter for a precise syntax tree and is selected
// by configuration when accuracy matters more than speed.
//
// Thread Safety:
//
//	All parsers in this package are safe for concurrent use. Each Parse
//	call keeps its state on the stack or in freshly allocated values.
package java

import (
	"context"
	"errors"
)

// DefaultMaxFileSize is the parse limit applied when no option overrides it.
const DefaultMaxFileSize int64 = 10 * 1024 * 1024 // 10MB

// WarnFileSize is the size beyond which a parse logs a warning but proceeds.
const WarnFileSize = 1 * 1024 * 1024 // 1MB

// MaxChainHops caps how many hops of a single chained expression are
// recorded. Longer chains are truncated, not rejected.
const MaxChainHops = 12

var (
	// ErrFileTooLarge is returned when content exceeds the configured size limit.
	ErrFileTooLarge = errors.New("file exceeds maximum size")

	// ErrInvalidContent is returned when content is not valid UTF-8.
	ErrInvalidContent = errors.New("content is not valid UTF-8")
)

// SourceFile is the parse result for one Java file.
//
// Description:
//
//	Holds the package declaration, the import table, and every type
//	declared in the file with its fields, methods, and extracted call
//	sites. Parsers return partial results with Errors populated rather
//	than failing on syntactically broken input.
type SourceFile struct {
	// Path is the file path as given to Parse, forward slashes.
	Path string

	// Package is the declared package, empty for the default package.
	Package string

	// Hash is the hex SHA-256 of the raw content, used for change detection.
	Hash string

	// ParsedAtMilli records when the parse completed (Unix milliseconds).
	ParsedAtMilli int64

	// Imports is the file's import table. Never nil after a successful parse.
	Imports *ImportTable

	// Classes holds every class, interface, enum, or record declared in the
	// file, outermost first.
	Classes []ClassModel

	// Errors collects non-fatal parse problems (syntax errors, truncated
	// declarations). A non-empty slice does not invalidate the result.
	Errors []string
}

// PrimaryClass returns the first declared type, which by convention matches
// the file name. Returns nil for files with no type declaration.
func (f *SourceFile) PrimaryClass() *ClassModel {
	if f == nil || len(f.Classes) == 0 {
		return nil
	}
	return &f.Classes[0]
}

// Class returns the declared type with the given simple name, or nil.
func (f *SourceFile) Class(name string) *ClassModel {
	if f == nil {
		return nil
	}
	for i := range f.Classes {
		if f.Classes[i].Name == name {
			return &f.Classes[i]
		}
	}
	return nil
}

// Parser extracts declarations and call sites from Java source.
//
// Description:
//
//	Implementations must be safe for concurrent use and must return
//	partial results (with SourceFile.Errors populated) for syntactically
//	invalid input rather than erroring. Hard errors are reserved for
//	oversized files, invalid encodings, and canceled contexts.
type Parser interface {
	// Parse extracts a SourceFile from raw Java source.
	Parse(ctx context.Context, content []byte, filePath string) (*SourceFile, error)

	// Name returns the parser's stable identifier for logs and metrics.
	Name() string

	// Extensions returns the file extensions this parser handles.
	Extensions() []string
}
