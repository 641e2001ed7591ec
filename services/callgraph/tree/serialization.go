// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tree

import (
	"encoding/json"
	"fmt"
)

// TreeSchemaVersion is the version of the serialization schema.
// Increment when the serialization format changes in a breaking way.
const TreeSchemaVersion = "1.0"

// SerializableAnalysis is the JSON envelope for one analysis run.
//
// Description:
//
//	Contains the call tree, the run-scoped mappings, and the stats under a
//	schema version, suitable for snapshot storage and diffing. Child order
//	inside the tree follows call-site order, so two runs over the same
//	frozen index marshal to identical bytes.
//
// Thread Safety: SerializableAnalysis is a value type with no internal state.
type SerializableAnalysis struct {
	// SchemaVersion identifies the serialization format version.
	SchemaVersion string `json:"schema_version"`

	// Entry names the analyzed method as Class.method.
	Entry string `json:"entry"`

	// MaxDepth is the configured recursion bound for the run.
	MaxDepth int `json:"max_depth"`

	// Root is the call tree starting at the entry method.
	Root *Node `json:"call_tree"`

	// Mappings lists the run's cross-reference mappings; empty, never null.
	Mappings []MethodMapping `json:"method_mappings"`

	// Stats summarizes the run. DurationMillis is zeroed so the envelope
	// stays byte-identical across runs of the same input.
	Stats RunStats `json:"stats"`
}

// ToSerializable converts an Analysis to its JSON envelope.
func (a *Analysis) ToSerializable(maxDepth int) *SerializableAnalysis {
	if a == nil || a.Root == nil {
		return &SerializableAnalysis{
			SchemaVersion: TreeSchemaVersion,
			MaxDepth:      maxDepth,
			Mappings:      []MethodMapping{},
		}
	}
	mappings := a.Mappings
	if mappings == nil {
		mappings = []MethodMapping{}
	}
	stats := a.Stats
	stats.DurationMillis = 0
	return &SerializableAnalysis{
		SchemaVersion: TreeSchemaVersion,
		Entry:         a.Root.Class + "." + a.Root.Method,
		MaxDepth:      maxDepth,
		Root:          a.Root,
		Mappings:      mappings,
		Stats:         stats,
	}
}

// Marshal renders the envelope as indented JSON.
func (s *SerializableAnalysis) Marshal() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// ParseAnalysis reads a serialized envelope back, rejecting unknown schema
// versions so stale snapshots fail loudly instead of decoding half-right.
func ParseAnalysis(data []byte) (*SerializableAnalysis, error) {
	var s SerializableAnalysis
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing analysis envelope: %w", err)
	}
	if s.SchemaVersion != TreeSchemaVersion {
		return nil, fmt.Errorf("unsupported schema version %q (expected %q)", s.SchemaVersion, TreeSchemaVersion)
	}
	return &s, nil
}
