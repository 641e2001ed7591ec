// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package callgraph

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Morizady/javatrace/services/callgraph/index"
	"github.com/Morizady/javatrace/services/callgraph/java"
)

// impactIndex extends the layered shop project with declaration lines, so
// hunks can be attributed, and an unrelated ping entry.
func impactIndex(t *testing.T) *index.ProjectIndex {
	t.Helper()
	return buildIndex(t,
		classFile("src/com/shop/OrderController.java", "com.shop",
			java.ClassModel{
				Name:   "OrderController",
				Fields: []java.FieldModel{{Name: "orders", DeclaredType: "OrderService"}},
				Methods: []java.MethodModel{{
					Name: "getOrder",
					Line: 14,
					CallSites: []java.CallSite{
						{Receiver: "orders", Method: "findOne", Kind: java.CallInstance, Line: 16},
					},
				}},
			}),
		classFile("src/com/shop/OrderService.java", "com.shop",
			java.ClassModel{Name: "OrderService", IsInterface: true,
				Methods: []java.MethodModel{{Name: "findOne", Line: 6}}}),
		classFile("src/com/shop/OrderServiceImpl.java", "com.shop",
			java.ClassModel{Name: "OrderServiceImpl", Interfaces: []string{"OrderService"},
				Methods: []java.MethodModel{
					{Name: "findOne", Line: 20, CallSites: []java.CallSite{
						{Method: "validate", Kind: java.CallDirect, Line: 22},
					}},
					{Name: "validate", Line: 30},
				}}),
		classFile("src/com/shop/PingController.java", "com.shop",
			java.ClassModel{Name: "PingController",
				Methods: []java.MethodModel{{Name: "ping", Line: 8}}}),
	)
}

const implPatch = `--- a/src/com/shop/OrderServiceImpl.java
+++ b/src/com/shop/OrderServiceImpl.java
@@ -21,2 +21,3 @@
 validate(id);
+audit(id);
 return repo.load(id);
`

func TestEngine_Impact_SplitsImpactedAndClean(t *testing.T) {
	e := newEngine(t, impactIndex(t))

	entries := []AnalyzeRequest{
		{EntryFile: "src/com/shop/OrderController.java", EntryMethod: "getOrder", MaxDepth: 4},
		{EntryFile: "src/com/shop/PingController.java", EntryMethod: "ping", MaxDepth: 4},
	}
	report, err := e.Impact(context.Background(), []byte(implPatch), entries, 0)
	if err != nil {
		t.Fatalf("Impact: %v", err)
	}

	if fmt.Sprint(report.ChangedFiles) != "[src/com/shop/OrderServiceImpl.java]" {
		t.Errorf("changed files = %v", report.ChangedFiles)
	}
	if len(report.ChangedMethods) != 1 || report.ChangedMethods[0].Method != "findOne" {
		t.Fatalf("changed methods = %+v", report.ChangedMethods)
	}
	if len(report.Impacted) != 1 {
		t.Fatalf("impacted = %+v", report.Impacted)
	}
	hit := report.Impacted[0]
	if hit.Entry != "OrderController.getOrder" {
		t.Errorf("impacted entry = %q", hit.Entry)
	}
	if fmt.Sprint(hit.Touched) != "[OrderServiceImpl.findOne]" {
		t.Errorf("touched = %v", hit.Touched)
	}
	if fmt.Sprint(report.Clean) != "[PingController.ping]" {
		t.Errorf("clean = %v", report.Clean)
	}
	if got := report.Summary(); got != "1 of 2 entries impacted by 1 changed methods" {
		t.Errorf("summary = %q", got)
	}
}

func TestEngine_Impact_NoIndexedChangeSkipsAnalyses(t *testing.T) {
	e := newEngine(t, impactIndex(t))

	patch := []byte(`--- a/pom.xml
+++ b/pom.xml
@@ -4,1 +4,1 @@
-<version>1.0</version>
+<version>1.1</version>
`)
	entries := []AnalyzeRequest{
		{EntryFile: "src/com/shop/OrderController.java", EntryMethod: "getOrder"},
		{EntryFile: "src/com/shop/PingController.java", EntryMethod: "ping"},
	}
	report, err := e.Impact(context.Background(), patch, entries, 0)
	if err != nil {
		t.Fatalf("Impact: %v", err)
	}
	if len(report.Impacted) != 0 {
		t.Errorf("impacted = %+v, want none", report.Impacted)
	}
	if fmt.Sprint(report.Clean) != "[OrderController.getOrder PingController.ping]" {
		t.Errorf("clean = %v", report.Clean)
	}
	if fmt.Sprint(report.ChangedFiles) != "[pom.xml]" {
		t.Errorf("changed files = %v", report.ChangedFiles)
	}
}

func TestEngine_Impact_NoIndexedChangeStillValidatesEntries(t *testing.T) {
	e := newEngine(t, impactIndex(t))

	patch := []byte(`--- a/pom.xml
+++ b/pom.xml
@@ -4,1 +4,1 @@
-<version>1.0</version>
+<version>1.1</version>
`)
	_, err := e.Impact(context.Background(), patch, []AnalyzeRequest{
		{EntryFile: "src/com/shop/Missing.java", EntryMethod: "run"},
	}, 0)
	if !errors.Is(err, ErrEntryFileNotFound) {
		t.Errorf("error = %v, want ErrEntryFileNotFound", err)
	}
}

func TestEngine_Impact_Validation(t *testing.T) {
	e := newEngine(t, impactIndex(t))
	ctx := context.Background()
	entries := []AnalyzeRequest{
		{EntryFile: "src/com/shop/PingController.java", EntryMethod: "ping"},
	}

	if _, err := e.Impact(ctx, []byte(implPatch), nil, 0); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("empty entries error = %v, want ErrInvalidRequest", err)
	}
	if _, err := e.Impact(ctx, []byte("  \n"), entries, 0); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("empty patch error = %v, want ErrInvalidRequest", err)
	}
	if _, err := e.Impact(ctx, []byte("garbage\n"), entries, 0); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("garbage patch error = %v, want ErrInvalidRequest", err)
	}
}

func TestEngine_Impact_AnalysisErrorPropagates(t *testing.T) {
	e := newEngine(t, impactIndex(t))

	_, err := e.Impact(context.Background(), []byte(implPatch), []AnalyzeRequest{
		{EntryFile: "src/com/shop/OrderController.java", EntryMethod: "noSuchMethod"},
	}, 0)
	if !errors.Is(err, ErrEntryMethodNotFound) {
		t.Errorf("error = %v, want ErrEntryMethodNotFound", err)
	}
}
