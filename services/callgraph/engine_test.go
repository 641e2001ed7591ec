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
	"strings"
	"testing"

	"github.com/Morizady/javatrace/services/callgraph/index"
	"github.com/Morizady/javatrace/services/callgraph/java"
	"github.com/Morizady/javatrace/services/callgraph/resolve"
)

func classFile(path, pkg string, classes ...java.ClassModel) *java.SourceFile {
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

func buildIndex(t *testing.T, files ...*java.SourceFile) *index.ProjectIndex {
	t.Helper()
	idx := index.NewProjectIndex()
	for _, f := range files {
		if err := idx.AddFile(f); err != nil {
			t.Fatalf("AddFile(%s): %v", f.Path, err)
		}
	}
	idx.Freeze()
	return idx
}

// shopIndex indexes a small layered project: controller -> service
// interface -> implementation.
func shopIndex(t *testing.T) *index.ProjectIndex {
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
				Methods: []java.MethodModel{{Name: "findOne"}}}),
		classFile("src/com/shop/OrderServiceImpl.java", "com.shop",
			java.ClassModel{Name: "OrderServiceImpl", Interfaces: []string{"OrderService"},
				Methods: []java.MethodModel{
					{Name: "findOne", CallSites: []java.CallSite{
						{Method: "validate", Kind: java.CallDirect, Line: 22},
					}},
					{Name: "validate"},
				}}),
	)
}

func newEngine(t *testing.T, idx *index.ProjectIndex, opts ...EngineOption) *Engine {
	t.Helper()
	e, err := NewEngine(idx, opts...)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestEngine_Analyze_EndToEnd(t *testing.T) {
	e := newEngine(t, shopIndex(t))

	res, err := e.Analyze(context.Background(), AnalyzeRequest{
		EntryFile:   "src/com/shop/OrderController.java",
		EntryMethod: "getOrder",
		MaxDepth:    3,
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.RunID == "" {
		t.Error("run ID missing")
	}
	if res.Root.Class != "OrderController" || res.Root.Method != "getOrder" {
		t.Errorf("root = %+v", res.Root)
	}
	if len(res.Root.Children) != 1 || res.Root.Children[0].Class != "OrderServiceImpl" {
		t.Fatalf("children = %+v", res.Root.Children)
	}
	impl := res.Root.Children[0]
	if impl.Kind != resolve.KindInterface {
		t.Errorf("impl kind = %s", impl.Kind)
	}
	if len(impl.Children) != 1 || impl.Children[0].Method != "validate" {
		t.Errorf("impl children = %+v", impl.Children)
	}
	if len(res.Mappings) != 1 || res.Mappings[0].InterfaceCall != "orders.findOne()" {
		t.Errorf("mappings = %+v", res.Mappings)
	}
	if res.Stats.TotalNodes != 3 || res.Stats.MaxDepth != 2 {
		t.Errorf("stats = %+v", res.Stats)
	}
	if res.Request.EntryMethod != "getOrder" {
		t.Errorf("request echo = %+v", res.Request)
	}

	env := res.Serializable()
	if env.Entry != "OrderController.getOrder" || env.MaxDepth != 3 {
		t.Errorf("envelope = %+v", env)
	}
}

func TestEngine_Analyze_RootOnlyAtDepthZero(t *testing.T) {
	e := newEngine(t, shopIndex(t))

	res, err := e.Analyze(context.Background(), AnalyzeRequest{
		EntryFile:   "src/com/shop/OrderController.java",
		EntryMethod: "getOrder",
		MaxDepth:    0,
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(res.Root.Children) != 0 || res.Stats.TotalNodes != 1 {
		t.Errorf("root-only run = %+v", res.Stats)
	}
}

func TestEngine_Analyze_EntryFileNotFound(t *testing.T) {
	e := newEngine(t, shopIndex(t))

	_, err := e.Analyze(context.Background(), AnalyzeRequest{
		EntryFile:   "src/com/shop/Missing.java",
		EntryMethod: "getOrder",
	})
	if !errors.Is(err, ErrEntryFileNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestEngine_Analyze_EntryMethodNotFound(t *testing.T) {
	e := newEngine(t, shopIndex(t))

	_, err := e.Analyze(context.Background(), AnalyzeRequest{
		EntryFile:   "src/com/shop/OrderController.java",
		EntryMethod: "nope",
	})
	if !errors.Is(err, ErrEntryMethodNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestEngine_Analyze_SuffixMatch(t *testing.T) {
	e := newEngine(t, shopIndex(t))

	res, err := e.Analyze(context.Background(), AnalyzeRequest{
		EntryFile:   "OrderController.java",
		EntryMethod: "getOrder",
		MaxDepth:    1,
	})
	if err != nil {
		t.Fatalf("suffix lookup: %v", err)
	}
	if res.Root.File != "src/com/shop/OrderController.java" {
		t.Errorf("root file = %q", res.Root.File)
	}
}

func TestEngine_Analyze_AmbiguousSuffixNotFound(t *testing.T) {
	idx := buildIndex(t,
		classFile("src/a/Util.java", "com.a",
			java.ClassModel{Name: "AUtil", Methods: []java.MethodModel{{Name: "run"}}}),
		classFile("src/b/Util.java", "com.b",
			java.ClassModel{Name: "BUtil", Methods: []java.MethodModel{{Name: "run"}}}))
	e := newEngine(t, idx)

	_, err := e.Analyze(context.Background(), AnalyzeRequest{
		EntryFile:   "Util.java",
		EntryMethod: "run",
	})
	if !errors.Is(err, ErrEntryFileNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestAnalyzeRequest_Validate(t *testing.T) {
	base := AnalyzeRequest{EntryFile: "A.java", EntryMethod: "f"}

	cases := []struct {
		name string
		req  AnalyzeRequest
		ok   bool
	}{
		{"valid", base, true},
		{"valid with ignore", AnalyzeRequest{EntryFile: "A.java", EntryMethod: "f", Ignore: []string{"toString", "com.shop.B"}}, true},
		{"missing file", AnalyzeRequest{EntryMethod: "f"}, false},
		{"missing method", AnalyzeRequest{EntryFile: "A.java"}, false},
		{"negative depth", AnalyzeRequest{EntryFile: "A.java", EntryMethod: "f", MaxDepth: -1}, false},
		{"empty ignore entry", AnalyzeRequest{EntryFile: "A.java", EntryMethod: "f", Ignore: []string{""}}, false},
		{"ignore entry with spaces", AnalyzeRequest{EntryFile: "A.java", EntryMethod: "f", Ignore: []string{"to String"}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.validate()
			if tc.ok && err != nil {
				t.Errorf("validate() = %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("validate() = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestEngine_Analyze_BaseIgnoreMerged(t *testing.T) {
	e := newEngine(t, shopIndex(t), WithBaseIgnore([]string{"findOne"}))

	res, err := e.Analyze(context.Background(), AnalyzeRequest{
		EntryFile:   "src/com/shop/OrderController.java",
		EntryMethod: "getOrder",
		MaxDepth:    3,
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(res.Root.Children) != 0 || len(res.Mappings) != 0 {
		t.Errorf("ignored call produced output: %+v", res.Root.Children)
	}
}

type capturingRecorder struct {
	results []*AnalyzeResult
}

func (c *capturingRecorder) RecordRun(_ context.Context, result *AnalyzeResult) {
	c.results = append(c.results, result)
}

func TestEngine_Analyze_RecorderInvoked(t *testing.T) {
	rec := &capturingRecorder{}
	e := newEngine(t, shopIndex(t), WithRunRecorder(rec))

	res, err := e.Analyze(context.Background(), AnalyzeRequest{
		EntryFile:   "src/com/shop/OrderController.java",
		EntryMethod: "getOrder",
		MaxDepth:    2,
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(rec.results) != 1 || rec.results[0].RunID != res.RunID {
		t.Errorf("recorded = %+v", rec.results)
	}
}

func TestEngine_AnalyzeAll_ResultsInRequestOrder(t *testing.T) {
	e := newEngine(t, shopIndex(t))

	reqs := []AnalyzeRequest{
		{EntryFile: "src/com/shop/OrderServiceImpl.java", EntryMethod: "findOne", MaxDepth: 2},
		{EntryFile: "src/com/shop/OrderController.java", EntryMethod: "getOrder", MaxDepth: 2},
	}
	results, err := e.AnalyzeAll(context.Background(), reqs, 2)
	if err != nil {
		t.Fatalf("AnalyzeAll: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d", len(results))
	}
	if results[0].Root.Class != "OrderServiceImpl" || results[1].Root.Class != "OrderController" {
		t.Errorf("order = %s, %s", results[0].Root.Class, results[1].Root.Class)
	}
}

func TestEngine_AnalyzeAll_FirstErrorWins(t *testing.T) {
	e := newEngine(t, shopIndex(t))

	reqs := []AnalyzeRequest{
		{EntryFile: "src/com/shop/OrderController.java", EntryMethod: "getOrder"},
		{EntryFile: "src/com/shop/Missing.java", EntryMethod: "getOrder"},
	}
	_, err := e.AnalyzeAll(context.Background(), reqs, 1)
	if !errors.Is(err, ErrEntryFileNotFound) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(err.Error(), "request 1") {
		t.Errorf("err = %v, want request position", err)
	}
}

func TestNewEngine_Validation(t *testing.T) {
	if _, err := NewEngine(nil); err == nil {
		t.Error("nil index accepted")
	}
	if _, err := NewEngine(shopIndex(t), WithDefaultDepth(-1)); !errors.Is(err, ErrInvalidRequest) {
		t.Error("negative default depth accepted")
	}
	e := newEngine(t, shopIndex(t), WithDefaultDepth(9))
	if e.DefaultDepth() != 9 {
		t.Errorf("default depth = %d", e.DefaultDepth())
	}
}
