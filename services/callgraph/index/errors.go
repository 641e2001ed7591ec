// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package index

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidClass is returned when a class model fails validation.
	ErrInvalidClass = errors.New("invalid class model")

	// ErrDuplicateClass is returned when a class with the same qualified
	// name is already indexed.
	ErrDuplicateClass = errors.New("duplicate class")

	// ErrDuplicateFile is returned when a source file path is already
	// indexed. Use RemoveFile first when re-indexing a changed file.
	ErrDuplicateFile = errors.New("file already indexed")

	// ErrIndexCapacity is returned when adding would exceed the configured
	// maximum number of classes.
	ErrIndexCapacity = errors.New("index capacity exceeded")

	// ErrIndexFrozen is returned when a mutation is attempted after Freeze.
	ErrIndexFrozen = errors.New("index is frozen")
)

// BatchError aggregates the individual errors of a batch add.
type BatchError struct {
	Errors []error
}

// Error returns a summary of the batch failure with up to three details.
func (e *BatchError) Error() string {
	if len(e.Errors) == 0 {
		return "batch add failed"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "batch add failed with %d error(s): ", len(e.Errors))
	for i, err := range e.Errors {
		if i >= 3 {
			fmt.Fprintf(&b, "; and %d more", len(e.Errors)-i)
			break
		}
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap exposes the wrapped errors for errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	return e.Errors
}
