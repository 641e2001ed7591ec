// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tree

import (
	"bytes"
	"context"
	"errors"
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

func entryOf(t *testing.T, idx *index.ProjectIndex, class, method string) (*java.MethodModel, resolve.Scope) {
	t.Helper()
	cls, ok := idx.Class(class)
	if !ok {
		t.Fatalf("class %s not indexed", class)
	}
	m := cls.Method(method)
	if m == nil {
		t.Fatalf("method %s.%s not indexed", class, method)
	}
	file, ok := idx.FileOf(cls)
	if !ok {
		t.Fatalf("no file recorded for %s", class)
	}
	return m, resolve.Scope{Class: cls, File: file}
}

// fanOutIndex is the canonical interface fan-out fixture: A.f calls b.g()
// where b is declared as interface B with implementations B1 and B2.
func fanOutIndex(t *testing.T) *index.ProjectIndex {
	t.Helper()
	return buildIndex(t,
		classFile("src/A.java", "com.shop",
			java.ClassModel{
				Name:   "A",
				Fields: []java.FieldModel{{Name: "b", DeclaredType: "B"}},
				Methods: []java.MethodModel{{
					Name: "f",
					Line: 3,
					CallSites: []java.CallSite{
						{Receiver: "b", Method: "g", Kind: java.CallInstance, Line: 5},
					},
				}},
			}),
		classFile("src/B.java", "com.shop",
			java.ClassModel{Name: "B", IsInterface: true,
				Methods: []java.MethodModel{{Name: "g"}}}),
		classFile("src/B1.java", "com.shop",
			java.ClassModel{Name: "B1", Interfaces: []string{"B"},
				Methods: []java.MethodModel{{Name: "g"}}}),
		classFile("src/B2.java", "com.shop",
			java.ClassModel{Name: "B2", Interfaces: []string{"B"},
				Methods: []java.MethodModel{{Name: "g"}}}),
	)
}

func TestBuilder_Build_RootCarriesEntryDeclaration(t *testing.T) {
	idx := buildIndex(t, classFile("src/Order.java", "com.shop",
		java.ClassModel{Name: "Order", Methods: []java.MethodModel{{
			Name:       "total",
			Line:       17,
			Parameters: []string{"String id", "int qty"},
			ReturnType: "BigDecimal",
		}}}))
	entry, scope := entryOf(t, idx, "Order", "total")

	ana, err := NewBuilder(idx).Build(context.Background(), entry, scope)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	root := ana.Root
	if root.Class != "Order" || root.Method != "total" || root.Kind != resolve.KindRoot {
		t.Errorf("root = %+v", root)
	}
	if root.Depth != 0 || root.Line != 17 || root.Package != "com.shop" {
		t.Errorf("root = %+v", root)
	}
	if len(root.Params) != 2 || root.Params[0] != "String id" {
		t.Errorf("root params = %v", root.Params)
	}
	if root.ReturnType != "BigDecimal" {
		t.Errorf("root return type = %q", root.ReturnType)
	}
	if ana.Stats.TotalNodes != 1 || ana.Stats.MaxDepth != 0 {
		t.Errorf("stats = %+v", ana.Stats)
	}
}

func TestBuilder_Build_InterfaceFanOutLeaves(t *testing.T) {
	idx := fanOutIndex(t)
	entry, scope := entryOf(t, idx, "A", "f")

	ana, err := NewBuilder(idx, WithMaxDepth(2)).Build(context.Background(), entry, scope)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(ana.Root.Children) != 2 {
		t.Fatalf("children = %d, want 2", len(ana.Root.Children))
	}
	for i, want := range []string{"B1", "B2"} {
		child := ana.Root.Children[i]
		if child.Class != want || child.Method != "g" {
			t.Errorf("child[%d] = %s.%s", i, child.Class, child.Method)
		}
		if child.Kind != resolve.KindInterface {
			t.Errorf("child[%d] kind = %s", i, child.Kind)
		}
		if child.Depth != 1 || len(child.Children) != 0 {
			t.Errorf("child[%d] depth=%d children=%d", i, child.Depth, len(child.Children))
		}
	}
	if ana.Stats.TotalNodes != 3 || ana.Stats.MaxDepth != 1 || ana.Stats.DistinctClasses != 3 {
		t.Errorf("stats = %+v", ana.Stats)
	}
}

func TestBuilder_Build_MappingsRecordObjectCalls(t *testing.T) {
	idx := fanOutIndex(t)
	entry, scope := entryOf(t, idx, "A", "f")

	ana, err := NewBuilder(idx).Build(context.Background(), entry, scope)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(ana.Mappings) != 2 {
		t.Fatalf("mappings = %+v", ana.Mappings)
	}
	first := ana.Mappings[0]
	if first.InterfaceCall != "b.g()" || first.ImplementationCall != "B1.g()" {
		t.Errorf("mapping = %+v", first)
	}
	if first.ImportStatement != "import com.shop.B1;" {
		t.Errorf("import = %q", first.ImportStatement)
	}
	if first.Kind != resolve.KindInterface || first.Line != 5 || first.File != "src/A.java" {
		t.Errorf("mapping = %+v", first)
	}
	if ana.Mappings[1].ImplementationCall != "B2.g()" {
		t.Errorf("mapping = %+v", ana.Mappings[1])
	}
}

func TestBuilder_Build_ThisQualifiedReceiverTrimmedInMapping(t *testing.T) {
	idx := buildIndex(t,
		classFile("src/Gateway.java", "com.shop",
			java.ClassModel{
				Name:   "Gateway",
				Fields: []java.FieldModel{{Name: "codec", DeclaredType: "Codec"}},
				Methods: []java.MethodModel{{
					Name: "send",
					CallSites: []java.CallSite{
						{Receiver: "this.codec", Method: "encode", Kind: java.CallInstance, Line: 8},
					},
				}},
			}),
		classFile("src/Codec.java", "com.shop",
			java.ClassModel{Name: "Codec", Methods: []java.MethodModel{{Name: "encode"}}}))
	entry, scope := entryOf(t, idx, "Gateway", "send")

	ana, err := NewBuilder(idx).Build(context.Background(), entry, scope)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(ana.Mappings) != 1 {
		t.Fatalf("mappings = %+v", ana.Mappings)
	}
	if got := ana.Mappings[0].InterfaceCall; got != "codec.encode()" {
		t.Errorf("interface call = %q", got)
	}
}

func TestBuilder_Build_DepthBound(t *testing.T) {
	link := func(class, method, nextClass, nextMethod string) *java.SourceFile {
		return classFile("src/"+class+".java", "com.shop",
			java.ClassModel{
				Name:   class,
				Fields: []java.FieldModel{{Name: "next", DeclaredType: nextClass}},
				Methods: []java.MethodModel{{
					Name: method,
					CallSites: []java.CallSite{
						{Receiver: "next", Method: nextMethod, Kind: java.CallInstance, Line: 4},
					},
				}},
			})
	}
	idx := buildIndex(t,
		link("Alpha", "a", "Beta", "b"),
		link("Beta", "b", "Gamma", "c"),
		link("Gamma", "c", "Delta", "d"),
		link("Delta", "d", "Epsilon", "e"),
		classFile("src/Epsilon.java", "com.shop",
			java.ClassModel{Name: "Epsilon", Methods: []java.MethodModel{{Name: "e"}}}))
	entry, scope := entryOf(t, idx, "Alpha", "a")

	ana, err := NewBuilder(idx, WithMaxDepth(2)).Build(context.Background(), entry, scope)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if ana.Stats.TotalNodes != 3 || ana.Stats.MaxDepth != 2 {
		t.Fatalf("stats = %+v", ana.Stats)
	}
	ana.Root.Walk(func(n *Node) {
		if n.Depth > 2 {
			t.Errorf("node %s exceeds depth bound at %d", n.Label(), n.Depth)
		}
	})
	deepest := ana.Root.Children[0].Children[0]
	if deepest.Class != "Gamma" || len(deepest.Children) != 0 {
		t.Errorf("deepest = %+v", deepest)
	}
}

func TestBuilder_Build_RepeatVisitStandsChildless(t *testing.T) {
	idx := buildIndex(t,
		classFile("src/Hub.java", "com.shop",
			java.ClassModel{
				Name:   "Hub",
				Fields: []java.FieldModel{{Name: "w", DeclaredType: "Worker"}},
				Methods: []java.MethodModel{{
					Name: "process",
					CallSites: []java.CallSite{
						{Receiver: "w", Method: "run", Kind: java.CallInstance, Line: 5},
						{Receiver: "w", Method: "run", Kind: java.CallInstance, Line: 8},
					},
				}},
			}),
		classFile("src/Worker.java", "com.shop",
			java.ClassModel{Name: "Worker", Methods: []java.MethodModel{
				{Name: "run", CallSites: []java.CallSite{
					{Method: "validate", Kind: java.CallDirect, Line: 12},
				}},
				{Name: "validate"},
			}}))
	entry, scope := entryOf(t, idx, "Hub", "process")

	ana, err := NewBuilder(idx).Build(context.Background(), entry, scope)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(ana.Root.Children) != 2 {
		t.Fatalf("children = %d, want 2", len(ana.Root.Children))
	}
	first, second := ana.Root.Children[0], ana.Root.Children[1]
	if len(first.Children) != 1 || first.Children[0].Method != "validate" {
		t.Errorf("first occurrence children = %+v", first.Children)
	}
	// The second occurrence at the same depth stays in the tree but does
	// not expand again.
	if len(second.Children) != 0 {
		t.Errorf("second occurrence children = %+v", second.Children)
	}
}

func TestBuilder_Build_ChainSiblingsKeepLongest(t *testing.T) {
	idx := buildIndex(t, classFile("src/Dao.java", "com.shop",
		java.ClassModel{Name: "Dao", Methods: []java.MethodModel{
			{Name: "query", CallSites: []java.CallSite{
				{Receiver: "wrapper", Method: "eq", Kind: java.CallChain, Line: 12, ChainText: "wrapper.eq()"},
				{Receiver: "wrapper.eq()", Method: "eq", Kind: java.CallChain, Line: 12, ChainText: "wrapper.eq().eq()"},
				{Receiver: "wrapper.eq().eq()", Method: "orderBy", Kind: java.CallChain, Line: 12, ChainText: "wrapper.eq().eq().orderBy()"},
				{Receiver: "wrapper.eq().eq().orderBy()", Method: "last", Kind: java.CallChain, Line: 12, ChainText: "wrapper.eq().eq().orderBy().last()"},
				{Method: "save", Kind: java.CallDirect, Line: 13},
			}},
			{Name: "save"},
		}}))
	entry, scope := entryOf(t, idx, "Dao", "query")

	ana, err := NewBuilder(idx).Build(context.Background(), entry, scope)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(ana.Root.Children) != 2 {
		t.Fatalf("children = %+v", ana.Root.Children)
	}
	chain := ana.Root.Children[0]
	if chain.Kind != resolve.KindChainCall {
		t.Fatalf("chain kind = %s", chain.Kind)
	}
	if chain.ChainText != "wrapper.eq().eq().orderBy().last()" {
		t.Errorf("surviving chain = %q", chain.ChainText)
	}
	if len(chain.Children) != 0 {
		t.Errorf("chain children = %+v", chain.Children)
	}
	if direct := ana.Root.Children[1]; direct.Method != "save" || direct.Kind != resolve.KindDirect {
		t.Errorf("non-chain sibling = %+v", direct)
	}
}

func TestDedupeChains_Idempotent(t *testing.T) {
	chainOf := func(text, method string) pending {
		return pending{
			node: &Node{Kind: resolve.KindChainCall, ChainText: text},
			site: java.CallSite{Kind: java.CallChain, Method: method, ChainText: text},
		}
	}
	in := []pending{
		chainOf("w.eq()", "eq"),
		chainOf("w.eq().ne()", "ne"),
		{node: &Node{Kind: resolve.KindDirect, Method: "save"}, site: java.CallSite{Method: "save"}},
	}

	once := dedupeChains(in)
	if len(once) != 2 {
		t.Fatalf("after dedup: %d siblings, want 2", len(once))
	}
	if once[0].node.ChainText != "w.eq().ne()" || once[1].node.Method != "save" {
		t.Errorf("survivors = %+v", once)
	}

	twice := dedupeChains(once)
	if len(twice) != len(once) {
		t.Fatalf("second pass changed the list: %d -> %d", len(once), len(twice))
	}
	for i := range twice {
		if twice[i].node != once[i].node {
			t.Errorf("second pass reordered sibling %d", i)
		}
	}
}

func TestBuilder_Build_IgnoredMethodContributesNothing(t *testing.T) {
	idx := buildIndex(t,
		classFile("src/Printer.java", "com.shop",
			java.ClassModel{
				Name:   "Printer",
				Fields: []java.FieldModel{{Name: "x", DeclaredType: "Widget"}},
				Methods: []java.MethodModel{{
					Name: "print",
					CallSites: []java.CallSite{
						{Receiver: "x", Method: "toString", Kind: java.CallInstance, Line: 6},
					},
				}},
			}),
		classFile("src/Widget.java", "com.shop",
			java.ClassModel{Name: "Widget", Methods: []java.MethodModel{
				{Name: "toString", CallSites: []java.CallSite{
					{Method: "format", Kind: java.CallDirect, Line: 3},
				}},
				{Name: "format"},
			}}))
	entry, scope := entryOf(t, idx, "Printer", "print")

	ana, err := NewBuilder(idx, WithIgnoreNames([]string{"toString"})).Build(context.Background(), entry, scope)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(ana.Root.Children) != 0 {
		t.Errorf("children = %+v", ana.Root.Children)
	}
	if len(ana.Mappings) != 0 {
		t.Errorf("mappings = %+v", ana.Mappings)
	}
	if ana.Stats.TotalNodes != 1 {
		t.Errorf("stats = %+v", ana.Stats)
	}
}

func TestBuilder_Build_IgnoredClassDropsCandidate(t *testing.T) {
	entryFor := func(t *testing.T) (*index.ProjectIndex, *java.MethodModel, resolve.Scope) {
		idx := fanOutIndex(t)
		entry, scope := entryOf(t, idx, "A", "f")
		return idx, entry, scope
	}

	idx, entry, scope := entryFor(t)
	ana, err := NewBuilder(idx, WithIgnoreNames([]string{"B2"})).Build(context.Background(), entry, scope)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(ana.Root.Children) != 1 || ana.Root.Children[0].Class != "B1" {
		t.Errorf("children = %+v", ana.Root.Children)
	}

	// Qualified names match too.
	idx, entry, scope = entryFor(t)
	ana, err = NewBuilder(idx, WithIgnoreNames([]string{"com.shop.B1"})).Build(context.Background(), entry, scope)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(ana.Root.Children) != 1 || ana.Root.Children[0].Class != "B2" {
		t.Errorf("children = %+v", ana.Root.Children)
	}
}

func TestBuilder_Build_ConstructorExpandsAndSuppresses(t *testing.T) {
	files := func() []*java.SourceFile {
		return []*java.SourceFile{
			classFile("src/Shop.java", "com.shop",
				java.ClassModel{Name: "Shop", Methods: []java.MethodModel{{
					Name: "open",
					CallSites: []java.CallSite{
						{Receiver: "Invoice", Method: "Invoice", Kind: java.CallConstructor, Line: 7, ArgCount: 2},
					},
				}}}),
			classFile("src/Invoice.java", "com.shop",
				java.ClassModel{Name: "Invoice", Methods: []java.MethodModel{
					{Name: java.ConstructorName, IsConstructor: true, CallSites: []java.CallSite{
						{Method: "init", Kind: java.CallDirect, Line: 3},
					}},
					{Name: "init"},
				}}),
		}
	}

	idx := buildIndex(t, files()...)
	entry, scope := entryOf(t, idx, "Shop", "open")
	ana, err := NewBuilder(idx).Build(context.Background(), entry, scope)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(ana.Root.Children) != 1 {
		t.Fatalf("children = %+v", ana.Root.Children)
	}
	ctor := ana.Root.Children[0]
	if ctor.Method != java.ConstructorName || ctor.Kind != resolve.KindConstructor {
		t.Errorf("constructor node = %+v", ctor)
	}
	if ctor.ReturnType != "Invoice" {
		t.Errorf("constructor return type = %q", ctor.ReturnType)
	}
	if len(ctor.Params) != 2 || ctor.Params[0] != "arg0" || ctor.Params[1] != "arg1" {
		t.Errorf("constructor params = %v", ctor.Params)
	}
	// The constructor body expands like any other method.
	if len(ctor.Children) != 1 || ctor.Children[0].Method != "init" {
		t.Errorf("constructor children = %+v", ctor.Children)
	}
	// Constructor sites never produce mappings.
	if len(ana.Mappings) != 0 {
		t.Errorf("mappings = %+v", ana.Mappings)
	}

	idx = buildIndex(t, files()...)
	entry, scope = entryOf(t, idx, "Shop", "open")
	ana, err = NewBuilder(idx, WithConstructorSuppression(true)).Build(context.Background(), entry, scope)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(ana.Root.Children) != 0 {
		t.Errorf("suppressed children = %+v", ana.Root.Children)
	}
}

func TestBuilder_Build_AccessorSuppression(t *testing.T) {
	idx := buildIndex(t,
		classFile("src/Cart.java", "com.shop",
			java.ClassModel{
				Name:   "Cart",
				Fields: []java.FieldModel{{Name: "w", DeclaredType: "Worker"}},
				Methods: []java.MethodModel{{
					Name: "checkout",
					CallSites: []java.CallSite{
						{Receiver: "w", Method: "getName", Kind: java.CallInstance, Line: 4},
						{Receiver: "w", Method: "getTotal", Kind: java.CallInstance, Line: 5},
						{Receiver: "w", Method: "computeTax", Kind: java.CallInstance, Line: 6},
						{Receiver: "ghost", Method: "getId", Kind: java.CallInstance, Line: 7},
					},
				}},
			}),
		classFile("src/Worker.java", "com.shop",
			java.ClassModel{Name: "Worker", Methods: []java.MethodModel{
				{Name: "getName"},
				{Name: "getTotal", CallSites: []java.CallSite{
					{Method: "computeTax", Kind: java.CallDirect, Line: 20},
				}},
				{Name: "computeTax"},
			}}))

	entry, scope := entryOf(t, idx, "Cart", "checkout")
	ana, err := NewBuilder(idx, WithAccessorSuppression(true)).Build(context.Background(), entry, scope)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	var methods []string
	for _, child := range ana.Root.Children {
		methods = append(methods, child.Method)
	}
	// getName has an empty body and getId resolves nowhere; both are
	// suppressed. getTotal calls onward and computeTax is not an accessor.
	if len(methods) != 2 || methods[0] != "getTotal" || methods[1] != "computeTax" {
		t.Errorf("children = %v", methods)
	}

	entry, scope = entryOf(t, idx, "Cart", "checkout")
	ana, err = NewBuilder(idx).Build(context.Background(), entry, scope)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(ana.Root.Children) != 4 {
		t.Errorf("unsuppressed children = %d, want 4", len(ana.Root.Children))
	}
}

func TestBuilder_Build_EnumConstantSiteNotExpanded(t *testing.T) {
	idx := buildIndex(t,
		classFile("src/Audit.java", "com.shop",
			java.ClassModel{Name: "Audit", Methods: []java.MethodModel{{
				Name: "log",
				CallSites: []java.CallSite{
					{Receiver: "OrderStatus.ACTIVE", Method: "getCode", Kind: java.CallEnumConstant, EnumClass: "OrderStatus", Line: 9},
				},
			}}}),
		classFile("src/OrderStatus.java", "com.shop",
			java.ClassModel{Name: "OrderStatus", Methods: []java.MethodModel{
				{Name: "getCode", CallSites: []java.CallSite{
					{Method: "helper", Kind: java.CallDirect, Line: 30},
				}},
				{Name: "helper"},
			}}))
	entry, scope := entryOf(t, idx, "Audit", "log")

	ana, err := NewBuilder(idx).Build(context.Background(), entry, scope)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(ana.Root.Children) != 1 {
		t.Fatalf("children = %+v", ana.Root.Children)
	}
	child := ana.Root.Children[0]
	if child.Class != "OrderStatus" || child.Method != "getCode" {
		t.Errorf("child = %+v", child)
	}
	if len(child.Children) != 0 {
		t.Errorf("enum accessor expanded: %+v", child.Children)
	}
}

func TestBuilder_Build_JarResolvedEnrichment(t *testing.T) {
	idx := buildIndex(t,
		classFile("src/OrderServiceImpl.java", "com.shop.service",
			java.ClassModel{
				Name:       "OrderServiceImpl",
				SuperClass: "ServiceImpl<OrderMapper, Order>",
				Methods: []java.MethodModel{{
					Name: "find",
					CallSites: []java.CallSite{
						{Receiver: "baseMapper", Method: "selectById", Kind: java.CallInstance, Line: 21, ArgCount: 1},
					},
				}},
			}),
		classFile("src/OrderMapper.java", "com.shop.mapper",
			java.ClassModel{Name: "OrderMapper", IsInterface: true, SuperClass: "BaseMapper<Order>"}))
	entry, scope := entryOf(t, idx, "OrderServiceImpl", "find")

	ana, err := NewBuilder(idx).Build(context.Background(), entry, scope)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(ana.Root.Children) != 1 {
		t.Fatalf("children = %+v", ana.Root.Children)
	}
	child := ana.Root.Children[0]
	if child.Kind != resolve.KindJarResolved || child.Class != "OrderMapper" {
		t.Fatalf("child = %+v", child)
	}
	// The catalog entry overrides the argN placeholders.
	if len(child.Params) != 1 || child.Params[0] != "id" {
		t.Errorf("params = %v", child.Params)
	}
	if child.ReturnType != "T" {
		t.Errorf("return type = %q", child.ReturnType)
	}
	if child.Framework == nil || child.Framework.Framework != "MyBatis-Plus" {
		t.Errorf("framework = %+v", child.Framework)
	}
	if len(child.Children) != 0 {
		t.Errorf("jar-resolved node expanded: %+v", child.Children)
	}
	if ana.Stats.JarResolved != 1 {
		t.Errorf("stats = %+v", ana.Stats)
	}
}

func TestBuilder_Build_KnownExternalProducesNoNode(t *testing.T) {
	idx := buildIndex(t, classFile("src/Checker.java", "com.shop",
		java.ClassModel{Name: "Checker", Methods: []java.MethodModel{{
			Name: "validate",
			CallSites: []java.CallSite{
				{Receiver: "StringUtils", Method: "isBlank", Kind: java.CallStatic, Line: 5},
			},
		}}}))
	entry, scope := entryOf(t, idx, "Checker", "validate")

	ana, err := NewBuilder(idx).Build(context.Background(), entry, scope)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(ana.Root.Children) != 0 || len(ana.Mappings) != 0 {
		t.Errorf("children = %+v mappings = %+v", ana.Root.Children, ana.Mappings)
	}
}

func TestBuilder_Build_UnresolvedLeaf(t *testing.T) {
	idx := buildIndex(t, classFile("src/Prober.java", "com.shop",
		java.ClassModel{Name: "Prober", Methods: []java.MethodModel{{
			Name: "probe",
			CallSites: []java.CallSite{
				{Receiver: "mystery", Method: "poke", Kind: java.CallInstance, Line: 4},
			},
		}}}))
	entry, scope := entryOf(t, idx, "Prober", "probe")

	ana, err := NewBuilder(idx).Build(context.Background(), entry, scope)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(ana.Root.Children) != 1 {
		t.Fatalf("children = %+v", ana.Root.Children)
	}
	child := ana.Root.Children[0]
	if child.Kind != resolve.KindUnresolved || len(child.Children) != 0 {
		t.Errorf("child = %+v", child)
	}
	if ana.Stats.Unresolved != 1 {
		t.Errorf("stats = %+v", ana.Stats)
	}
}

func TestBuilder_Build_MissingEntry(t *testing.T) {
	idx := buildIndex(t, classFile("src/A.java", "com.shop", java.ClassModel{Name: "A"}))
	b := NewBuilder(idx)

	if _, err := b.Build(context.Background(), nil, resolve.Scope{}); !errors.Is(err, ErrMissingEntry) {
		t.Errorf("nil method err = %v", err)
	}
	if _, err := b.Build(context.Background(), &java.MethodModel{Name: "f"}, resolve.Scope{}); !errors.Is(err, ErrMissingEntry) {
		t.Errorf("nil scope class err = %v", err)
	}
}

func TestBuilder_Build_CanceledContextReturnsPartial(t *testing.T) {
	idx := fanOutIndex(t)
	entry, scope := entryOf(t, idx, "A", "f")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ana, err := NewBuilder(idx).Build(ctx, entry, scope)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if ana == nil || ana.Root == nil {
		t.Fatal("partial analysis missing")
	}
	if len(ana.Root.Children) != 0 {
		t.Errorf("children = %+v", ana.Root.Children)
	}
}

func TestBuilder_Build_Deterministic(t *testing.T) {
	idx := fanOutIndex(t)
	entry, scope := entryOf(t, idx, "A", "f")
	b := NewBuilder(idx, WithMaxDepth(2))

	var payloads [][]byte
	for range 2 {
		ana, err := b.Build(context.Background(), entry, scope)
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		data, err := ana.ToSerializable(2).Marshal()
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		payloads = append(payloads, data)
	}
	if !bytes.Equal(payloads[0], payloads[1]) {
		t.Error("repeated runs produced different serializations")
	}
}

func TestIsAccessorName(t *testing.T) {
	for name, want := range map[string]bool{
		"getName":    true,
		"setName":    true,
		"isActive":   true,
		"get":        false,
		"getter":     false,
		"issue":      false,
		"computeTax": false,
		"":           false,
	} {
		if got := isAccessorName(name); got != want {
			t.Errorf("isAccessorName(%q) = %v, want %v", name, got, want)
		}
	}
}
