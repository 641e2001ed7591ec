// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package impact

import (
	"fmt"
	"testing"

	"github.com/Morizady/javatrace/services/callgraph/index"
	"github.com/Morizady/javatrace/services/callgraph/java"
	"github.com/Morizady/javatrace/services/callgraph/tree"
)

func impactSourceFile(path, pkg string, classes ...java.ClassModel) *java.SourceFile {
	for i := range classes {
		classes[i].Package = pkg
		classes[i].SourcePath = path
		for j := range classes[i].Methods {
			classes[i].Methods[j].Class = classes[i].Name
			classes[i].Methods[j].SourcePath = path
		}
	}
	return &java.SourceFile{
		Path:    path,
		Package: pkg,
		Imports: java.NewImportTable(),
		Classes: classes,
	}
}

func impactIndex(t *testing.T) *index.ProjectIndex {
	t.Helper()
	idx := index.NewProjectIndex()
	files := []*java.SourceFile{
		impactSourceFile("src/com/shop/OrderService.java", "com.shop",
			java.ClassModel{Name: "OrderService", Methods: []java.MethodModel{
				{Name: "findOne", Line: 10},
				{Name: "search", Line: 25},
			}}),
		impactSourceFile("src/com/shop/UserService.java", "com.shop",
			java.ClassModel{Name: "UserService", Methods: []java.MethodModel{
				{Name: "login", Line: 12},
			}}),
	}
	for _, f := range files {
		if err := idx.AddFile(f); err != nil {
			t.Fatalf("AddFile(%s): %v", f.Path, err)
		}
	}
	idx.Freeze()
	return idx
}

func TestChangedMethods_AttributesHunksToMethods(t *testing.T) {
	idx := impactIndex(t)
	patch := []byte(`--- a/src/com/shop/OrderService.java
+++ b/src/com/shop/OrderService.java
@@ -11,2 +11,3 @@
 Order o = load(id);
+audit(id);
 return o;
@@ -26,2 +27,2 @@
 Query q = parse(text);
-return run(q);
+return runSafe(q);
--- a/src/com/shop/UserService.java
+++ b/src/com/shop/UserService.java
@@ -13,1 +13,2 @@
 check(name);
+meter(name);
`)

	cs, err := ChangedMethods(patch, idx)
	if err != nil {
		t.Fatalf("ChangedMethods: %v", err)
	}
	if fmt.Sprint(cs.Files) != "[src/com/shop/OrderService.java src/com/shop/UserService.java]" {
		t.Errorf("files = %v", cs.Files)
	}
	if len(cs.Methods) != 3 {
		t.Fatalf("methods = %+v, want 3", cs.Methods)
	}
	want := []string{"OrderService.findOne", "OrderService.search", "UserService.login"}
	for i, m := range cs.Methods {
		if m.key() != want[i] {
			t.Errorf("method[%d] = %s, want %s", i, m.key(), want[i])
		}
	}
	if cs.Methods[0].Line != 10 || cs.Methods[0].Package != "com.shop" {
		t.Errorf("method[0] = %+v", cs.Methods[0])
	}
	if cs.Empty() {
		t.Error("change set reported empty")
	}
}

func TestChangedMethods_DeduplicatesWithinMethod(t *testing.T) {
	idx := impactIndex(t)
	// Two added lines inside findOne's range collapse to one entry.
	patch := []byte(`--- a/src/com/shop/OrderService.java
+++ b/src/com/shop/OrderService.java
@@ -11,2 +11,4 @@
 Order o = load(id);
+audit(id);
+trace(id);
 return o;
`)

	cs, err := ChangedMethods(patch, idx)
	if err != nil {
		t.Fatalf("ChangedMethods: %v", err)
	}
	if len(cs.Methods) != 1 || cs.Methods[0].Method != "findOne" {
		t.Errorf("methods = %+v, want findOne only", cs.Methods)
	}
}

func TestChangedMethods_SuffixPathMatch(t *testing.T) {
	idx := index.NewProjectIndex()
	file := impactSourceFile("/home/ci/checkout/src/App.java", "app",
		java.ClassModel{Name: "App", Methods: []java.MethodModel{{Name: "main", Line: 5}}})
	if err := idx.AddFile(file); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	idx.Freeze()

	patch := []byte(`--- a/src/App.java
+++ b/src/App.java
@@ -6,1 +6,2 @@
 run();
+report();
`)

	cs, err := ChangedMethods(patch, idx)
	if err != nil {
		t.Fatalf("ChangedMethods: %v", err)
	}
	if len(cs.Methods) != 1 || cs.Methods[0].File != "/home/ci/checkout/src/App.java" {
		t.Errorf("methods = %+v, want indexed absolute path", cs.Methods)
	}
}

func TestChangedMethods_UnindexedFileOnlyListed(t *testing.T) {
	idx := impactIndex(t)
	patch := []byte(`--- a/pom.xml
+++ b/pom.xml
@@ -4,1 +4,1 @@
-<version>1.0</version>
+<version>1.1</version>
`)

	cs, err := ChangedMethods(patch, idx)
	if err != nil {
		t.Fatalf("ChangedMethods: %v", err)
	}
	if fmt.Sprint(cs.Files) != "[pom.xml]" {
		t.Errorf("files = %v", cs.Files)
	}
	if !cs.Empty() {
		t.Errorf("methods = %+v, want none", cs.Methods)
	}
}

func TestChangedMethods_DeletedFileContributesNoMethods(t *testing.T) {
	idx := impactIndex(t)
	patch := []byte(`--- a/src/com/shop/Legacy.java
+++ /dev/null
@@ -1,2 +0,0 @@
-class Legacy {
-}
`)

	cs, err := ChangedMethods(patch, idx)
	if err != nil {
		t.Fatalf("ChangedMethods: %v", err)
	}
	if fmt.Sprint(cs.Files) != "[src/com/shop/Legacy.java]" {
		t.Errorf("files = %v", cs.Files)
	}
	if !cs.Empty() {
		t.Errorf("methods = %+v, want none", cs.Methods)
	}
}

func TestChangedMethods_HeaderLinesAboveFirstMethodIgnored(t *testing.T) {
	idx := impactIndex(t)
	// findOne starts at line 10; an import edit at line 3 maps to nothing.
	patch := []byte(`--- a/src/com/shop/OrderService.java
+++ b/src/com/shop/OrderService.java
@@ -2,2 +2,3 @@
 import java.util.List;
+import java.util.Map;
 import java.util.Set;
`)

	cs, err := ChangedMethods(patch, idx)
	if err != nil {
		t.Fatalf("ChangedMethods: %v", err)
	}
	if !cs.Empty() {
		t.Errorf("methods = %+v, want none", cs.Methods)
	}
}

func TestChangedMethods_Validation(t *testing.T) {
	idx := impactIndex(t)

	if _, err := ChangedMethods([]byte("--- a/x\n"), nil); err == nil {
		t.Error("expected error for nil index")
	}
	if _, err := ChangedMethods([]byte("  \n"), idx); err == nil {
		t.Error("expected error for empty patch")
	}
	if _, err := ChangedMethods([]byte("this is not a diff\n"), idx); err == nil {
		t.Error("expected error for non-diff input")
	}
}

func TestChangeSet_Touched(t *testing.T) {
	idx := impactIndex(t)
	patch := []byte(`--- a/src/com/shop/OrderService.java
+++ b/src/com/shop/OrderService.java
@@ -11,2 +11,3 @@
 Order o = load(id);
+audit(id);
 return o;
`)
	cs, err := ChangedMethods(patch, idx)
	if err != nil {
		t.Fatalf("ChangedMethods: %v", err)
	}

	reaching := &tree.Node{
		Class: "OrderController", Method: "getOrder",
		Children: []*tree.Node{
			{Class: "OrderService", Method: "findOne", Depth: 1},
			{Class: "AuditLog", Method: "write", Depth: 1},
		},
	}
	if got := cs.Touched(reaching); fmt.Sprint(got) != "[OrderService.findOne]" {
		t.Errorf("touched = %v", got)
	}

	missing := &tree.Node{
		Class: "UserController", Method: "login",
		Children: []*tree.Node{{Class: "UserService", Method: "login", Depth: 1}},
	}
	if got := cs.Touched(missing); got != nil {
		t.Errorf("touched = %v, want nil", got)
	}

	if got := cs.Touched(nil); got != nil {
		t.Errorf("touched(nil) = %v, want nil", got)
	}
}
