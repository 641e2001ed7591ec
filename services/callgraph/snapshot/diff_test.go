// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package snapshot

import (
	"fmt"
	"testing"

	"github.com/Morizady/javatrace/services/callgraph/index"
	"github.com/Morizady/javatrace/services/callgraph/java"
)

func diffIndex(t *testing.T, files ...*java.SourceFile) *index.ProjectIndex {
	t.Helper()
	idx := index.NewProjectIndex()
	for _, f := range files {
		if err := idx.AddFile(f); err != nil {
			t.Fatalf("adding %s: %v", f.Path, err)
		}
	}
	return idx
}

func TestDiff_Identical(t *testing.T) {
	build := func() *index.ProjectIndex {
		return diffIndex(t, snapshotSourceFile("src/A.java", "p",
			java.ClassModel{Name: "A", Methods: []java.MethodModel{{Name: "run", Line: 3}}}))
	}

	d := Diff(build(), build())
	if !d.Empty() {
		t.Errorf("diff of identical indexes not empty: %s", d.Summary())
	}
	if got := d.Summary(); got != "0 added, 0 removed, 0 modified" {
		t.Errorf("summary = %q", got)
	}
}

func TestDiff_LineNumbersIgnored(t *testing.T) {
	before := diffIndex(t, snapshotSourceFile("src/A.java", "p",
		java.ClassModel{Name: "A", Methods: []java.MethodModel{{Name: "run", Line: 3, CallSites: []java.CallSite{
			{Receiver: "svc", Method: "go", Kind: java.CallInstance, Line: 4},
		}}}}))
	after := diffIndex(t, snapshotSourceFile("src/A.java", "p",
		java.ClassModel{Name: "A", Methods: []java.MethodModel{{Name: "run", Line: 17}}}))

	if d := Diff(before, after); !d.Empty() {
		t.Errorf("formatting-only change produced diff: %s", d.Summary())
	}
}

func TestDiff_AddedAndRemoved(t *testing.T) {
	before := diffIndex(t,
		snapshotSourceFile("src/A.java", "p", java.ClassModel{Name: "A"}),
		snapshotSourceFile("src/B.java", "p", java.ClassModel{Name: "B"}),
	)
	after := diffIndex(t,
		snapshotSourceFile("src/B.java", "p", java.ClassModel{Name: "B"}),
		snapshotSourceFile("src/C.java", "p", java.ClassModel{Name: "C"}),
	)

	d := Diff(before, after)
	if fmt.Sprint(d.Added) != "[p.C]" {
		t.Errorf("added = %v, want [p.C]", d.Added)
	}
	if fmt.Sprint(d.Removed) != "[p.A]" {
		t.Errorf("removed = %v, want [p.A]", d.Removed)
	}
	if len(d.Modified) != 0 {
		t.Errorf("modified = %v, want none", d.Modified)
	}
	if got := d.Summary(); got != "1 added, 1 removed, 0 modified" {
		t.Errorf("summary = %q", got)
	}
}

func TestDiff_ModifiedSignature(t *testing.T) {
	before := diffIndex(t, snapshotSourceFile("src/A.java", "p",
		java.ClassModel{Name: "A", Methods: []java.MethodModel{
			{Name: "run", Line: 3},
			{Name: "stop", Line: 8},
		}}))
	after := diffIndex(t, snapshotSourceFile("src/A.java", "p",
		java.ClassModel{Name: "A", Methods: []java.MethodModel{
			{Name: "run", Line: 3},
			{Name: "restart", Line: 8},
		}}))

	d := Diff(before, after)
	if len(d.Modified) != 1 {
		t.Fatalf("modified = %v, want one entry", d.Modified)
	}
	change := d.Modified[0]
	if change.Class != "p.A" || change.Kind != ChangeSignature {
		t.Errorf("change = %+v, want p.A signature", change)
	}
	if fmt.Sprint(change.AddedMethods) != "[restart]" {
		t.Errorf("added methods = %v, want [restart]", change.AddedMethods)
	}
	if fmt.Sprint(change.RemovedMethods) != "[stop]" {
		t.Errorf("removed methods = %v, want [stop]", change.RemovedMethods)
	}
}

func TestDiff_ParameterChangeKeepsMethodLists(t *testing.T) {
	before := diffIndex(t, snapshotSourceFile("src/A.java", "p",
		java.ClassModel{Name: "A", Methods: []java.MethodModel{
			{Name: "run", Line: 3, Parameters: []string{"String"}},
		}}))
	after := diffIndex(t, snapshotSourceFile("src/A.java", "p",
		java.ClassModel{Name: "A", Methods: []java.MethodModel{
			{Name: "run", Line: 3, Parameters: []string{"String", "int"}},
		}}))

	d := Diff(before, after)
	if len(d.Modified) != 1 {
		t.Fatalf("modified = %v, want one entry", d.Modified)
	}
	change := d.Modified[0]
	if change.Kind != ChangeSignature {
		t.Errorf("kind = %q, want %q", change.Kind, ChangeSignature)
	}
	// Same method names on both sides, so the name lists stay empty.
	if len(change.AddedMethods) != 0 || len(change.RemovedMethods) != 0 {
		t.Errorf("method lists = %v / %v, want empty", change.AddedMethods, change.RemovedMethods)
	}
}

func TestDiff_ModifiedRelations(t *testing.T) {
	before := diffIndex(t, snapshotSourceFile("src/A.java", "p",
		java.ClassModel{Name: "A", Interfaces: []string{"Runnable"},
			Methods: []java.MethodModel{{Name: "run", Line: 3}}}))
	after := diffIndex(t, snapshotSourceFile("src/A.java", "p",
		java.ClassModel{Name: "A", Interfaces: []string{"Runnable", "Closeable"},
			Methods: []java.MethodModel{{Name: "run", Line: 3}}}))

	d := Diff(before, after)
	if len(d.Modified) != 1 {
		t.Fatalf("modified = %v, want one entry", d.Modified)
	}
	change := d.Modified[0]
	if change.Kind != ChangeRelations {
		t.Errorf("kind = %q, want %q", change.Kind, ChangeRelations)
	}
	if len(change.AddedMethods) != 0 || len(change.RemovedMethods) != 0 {
		t.Errorf("relation change carries method lists: %v / %v", change.AddedMethods, change.RemovedMethods)
	}
}

func TestDiff_ModifiedBoth(t *testing.T) {
	before := diffIndex(t, snapshotSourceFile("src/A.java", "p",
		java.ClassModel{Name: "A", SuperClass: "Base",
			Methods: []java.MethodModel{{Name: "run", Line: 3}}}))
	after := diffIndex(t, snapshotSourceFile("src/A.java", "p",
		java.ClassModel{Name: "A", SuperClass: "OtherBase",
			Methods: []java.MethodModel{{Name: "run", Line: 3}, {Name: "stop", Line: 9}}}))

	d := Diff(before, after)
	if len(d.Modified) != 1 || d.Modified[0].Kind != ChangeBoth {
		t.Fatalf("diff = %+v, want single both-kind change", d.Modified)
	}
}

func TestDiff_FieldChangeIsSignature(t *testing.T) {
	before := diffIndex(t, snapshotSourceFile("src/A.java", "p",
		java.ClassModel{Name: "A", Fields: []java.FieldModel{{Name: "mapper", DeclaredType: "OrderMapper"}}}))
	after := diffIndex(t, snapshotSourceFile("src/A.java", "p",
		java.ClassModel{Name: "A", Fields: []java.FieldModel{{Name: "mapper", DeclaredType: "UserMapper"}}}))

	d := Diff(before, after)
	if len(d.Modified) != 1 || d.Modified[0].Kind != ChangeSignature {
		t.Fatalf("diff = %+v, want single signature change", d.Modified)
	}
}

func TestDiff_NilIndexes(t *testing.T) {
	idx := diffIndex(t, snapshotSourceFile("src/A.java", "p", java.ClassModel{Name: "A"}))

	if d := Diff(nil, idx); fmt.Sprint(d.Added) != "[p.A]" || len(d.Removed) != 0 {
		t.Errorf("Diff(nil, idx) = %s", d.Summary())
	}
	if d := Diff(idx, nil); fmt.Sprint(d.Removed) != "[p.A]" || len(d.Added) != 0 {
		t.Errorf("Diff(idx, nil) = %s", d.Summary())
	}
	if d := Diff(nil, nil); !d.Empty() {
		t.Errorf("Diff(nil, nil) = %s", d.Summary())
	}
}
