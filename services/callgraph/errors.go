// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package callgraph

import "errors"

var (
	// ErrEntryFileNotFound is returned when the requested entry file is not
	// in the project index, not even by path suffix.
	ErrEntryFileNotFound = errors.New("entry file not found in index")

	// ErrEntryMethodNotFound is returned when no class in the entry file
	// declares the requested method. This is the engine's only hard
	// analysis failure; everything below a resolved root degrades to
	// tagged leaves.
	ErrEntryMethodNotFound = errors.New("entry method not found in entry file")

	// ErrInvalidRequest is returned for analyze requests rejected before
	// analysis starts: negative depth, missing entry coordinates, or
	// malformed ignore entries.
	ErrInvalidRequest = errors.New("invalid analyze request")
)
