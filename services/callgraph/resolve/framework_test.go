// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resolve

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Morizady/javatrace/services/callgraph/java"
)

// fakeHierarchy satisfies Hierarchy for tests that need project-local
// inheritance without a full index.
type fakeHierarchy map[string]*java.ClassModel

func (h fakeHierarchy) Class(name string) (*java.ClassModel, bool) {
	cls, ok := h[java.StripGenerics(name)]
	return cls, ok
}

func newFrameworkResolver(t *testing.T, opts ...FrameworkOption) *FrameworkResolver {
	t.Helper()
	r, err := NewFrameworkResolver(opts...)
	if err != nil {
		t.Fatalf("NewFrameworkResolver: %v", err)
	}
	return r
}

func TestFrameworkResolver_Resolve_DirectCatalogHit(t *testing.T) {
	r := newFrameworkResolver(t)

	m := r.Resolve(Lookup{Class: "ServiceImpl", Method: "selectById"})
	if m == nil {
		t.Fatal("expected a catalog hit")
	}
	if m.Framework != "MyBatis-Plus" || m.Version != "3.x" {
		t.Errorf("framework = %s %s", m.Framework, m.Version)
	}
	if m.ReturnType != "T" || m.Package != "com.baomidou.mybatisplus.service.impl" {
		t.Errorf("entry = %+v", m)
	}
	if !m.IsInherited || m.ParentClass != "IService" {
		t.Errorf("inheritance tags = %v %q", m.IsInherited, m.ParentClass)
	}
}

func TestFrameworkResolver_Resolve_BuiltinChainWalk(t *testing.T) {
	r := newFrameworkResolver(t)

	// BaseServiceImpl has no entries of its own; the built-in chain table
	// leads to ServiceImpl.
	m := r.Resolve(Lookup{Class: "BaseServiceImpl", Method: "insert"})
	if m == nil {
		t.Fatal("expected a hit through the inheritance chain")
	}
	if m.ClassName != "BaseServiceImpl" {
		t.Errorf("class = %q, want the queried class", m.ClassName)
	}
	if !m.IsInherited || m.ParentClass != "ServiceImpl" {
		t.Errorf("inheritance tags = %v %q", m.IsInherited, m.ParentClass)
	}
	if !strings.HasPrefix(m.Description, "Inherited from ServiceImpl: ") {
		t.Errorf("description = %q", m.Description)
	}
}

func TestFrameworkResolver_Resolve_ProjectParentWalk(t *testing.T) {
	r := newFrameworkResolver(t)
	h := fakeHierarchy{
		"BootContext": {Name: "BootContext", SuperClass: "ApplicationContext"},
	}

	m := r.Resolve(Lookup{Class: "BootContext", Method: "getBean", Index: h})
	if m == nil {
		t.Fatal("expected a hit through the project hierarchy")
	}
	if m.ClassName != "BootContext" || m.ParentClass != "ApplicationContext" {
		t.Errorf("entry = %+v", m)
	}
	if !m.IsInherited || m.Framework != "Spring" {
		t.Errorf("tags = %v %q", m.IsInherited, m.Framework)
	}
}

func TestFrameworkResolver_Resolve_InterfaceWalk(t *testing.T) {
	r := newFrameworkResolver(t)
	h := fakeHierarchy{
		"CachingContext": {Name: "CachingContext", Interfaces: []string{"ApplicationContext"}},
	}

	m := r.Resolve(Lookup{Class: "CachingContext", Method: "getBean", Index: h})
	if m == nil {
		t.Fatal("expected a hit through a declared interface")
	}
	if m.ClassName != "CachingContext" || m.ParentClass != "ApplicationContext" {
		t.Errorf("entry = %+v", m)
	}
	if !strings.HasPrefix(m.Description, "Implements ApplicationContext: ") {
		t.Errorf("description = %q", m.Description)
	}
}

func TestFrameworkResolver_Resolve_StdlibConcreteClass(t *testing.T) {
	r := newFrameworkResolver(t)

	// Concrete collection classes resolve through their interface entries.
	m := r.Resolve(Lookup{Class: "HashMap", Method: "put"})
	if m == nil {
		t.Fatal("expected a core-library hit")
	}
	if m.ClassName != "HashMap" || m.ParentClass != "Map" || !m.IsInherited {
		t.Errorf("entry = %+v", m)
	}
	if m.ReturnType != "V" || m.Package != "java.util" {
		t.Errorf("entry = %+v", m)
	}

	// The caller's spelling survives, qualifiers included.
	m = r.Resolve(Lookup{Class: "java.util.HashMap", Method: "get"})
	if m == nil || m.ClassName != "java.util.HashMap" {
		t.Fatalf("qualified lookup = %+v", m)
	}
}

func TestFrameworkResolver_Resolve_StdlibDirectEntry(t *testing.T) {
	r := newFrameworkResolver(t)

	m := r.Resolve(Lookup{Class: "String", Method: "length"})
	if m == nil {
		t.Fatal("expected a core-library hit")
	}
	if m.IsInherited || m.ClassName != "String" {
		t.Errorf("entry = %+v", m)
	}
	if m.ReturnType != "int" || m.Package != "java.lang" {
		t.Errorf("entry = %+v", m)
	}
}

func TestFrameworkResolver_Resolve_MyBatisVerbInference(t *testing.T) {
	r := newFrameworkResolver(t)

	m := r.Resolve(Lookup{Class: "SysUserMapper", Method: "selectPage"})
	if m == nil {
		t.Fatal("expected a verb-pattern hit")
	}
	if m.Framework != "MyBatis-Plus" || m.ClassName != "SysUserMapper" {
		t.Errorf("entry = %+v", m)
	}
	if m.ReturnType != "IPage<T>" {
		t.Errorf("return type = %q", m.ReturnType)
	}
	if len(m.Parameters) != 2 || m.Parameters[0] != "page" || m.Parameters[1] != "wrapper" {
		t.Errorf("parameters = %v", m.Parameters)
	}
	if !m.IsInherited || m.ParentClass != "ServiceImpl" {
		t.Errorf("inheritance tags = %v %q", m.IsInherited, m.ParentClass)
	}
}

func TestFrameworkResolver_Resolve_MyBatisParentIndicator(t *testing.T) {
	r := newFrameworkResolver(t)
	h := fakeHierarchy{
		"UserDao": {Name: "UserDao", SuperClass: "BaseServiceImpl<UserMapper, User>"},
	}

	// The class name says nothing, but its recorded parent does.
	m := r.Resolve(Lookup{Class: "UserDao", Method: "baseListQuery", Index: h})
	if m == nil {
		t.Fatal("expected a verb-pattern hit via parent indicator")
	}
	if m.Framework != "MyBatis-Plus" || m.ReturnType != "List<T>" {
		t.Errorf("entry = %+v", m)
	}
}

func TestFrameworkResolver_Resolve_SpringImportIndicator(t *testing.T) {
	r := newFrameworkResolver(t)

	m := r.Resolve(Lookup{
		Class:   "BeanHolder",
		Method:  "getBean",
		Imports: []string{"org.springframework.context.annotation.Configuration"},
	})
	if m == nil {
		t.Fatal("expected a container-pattern hit")
	}
	if m.Framework != "Spring" || m.ReturnType != "Object" {
		t.Errorf("entry = %+v", m)
	}
	if m.IsInherited || m.ParentClass != "" {
		t.Errorf("inheritance tags = %v %q", m.IsInherited, m.ParentClass)
	}
}

func TestFrameworkResolver_Resolve_UnknownReturnsNil(t *testing.T) {
	r := newFrameworkResolver(t)

	if m := r.Resolve(Lookup{Class: "Widget", Method: "frobnicate"}); m != nil {
		t.Errorf("expected nil, got %+v", m)
	}
	if m := r.Resolve(Lookup{Class: "", Method: "getBean"}); m != nil {
		t.Errorf("empty class resolved to %+v", m)
	}
	if m := r.Resolve(Lookup{Class: "ServiceImpl", Method: ""}); m != nil {
		t.Errorf("empty method resolved to %+v", m)
	}
}

func TestFrameworkResolver_Resolve_CyclicChainTerminates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	cyclic := `
inheritance_chains:
  Alpha: Beta
  Beta: Alpha
`
	if err := os.WriteFile(path, []byte(cyclic), 0o644); err != nil {
		t.Fatal(err)
	}

	r := newFrameworkResolver(t, WithCatalogFile(path))
	if m := r.Resolve(Lookup{Class: "Alpha", Method: "spin"}); m != nil {
		t.Errorf("expected nil, got %+v", m)
	}
}

func TestNewFrameworkResolver_MissingCatalogFileTolerated(t *testing.T) {
	r := newFrameworkResolver(t, WithCatalogFile(filepath.Join(t.TempDir(), "absent.yaml")))

	if m := r.Resolve(Lookup{Class: "ServiceImpl", Method: "selectById"}); m == nil {
		t.Fatal("built-in catalog lost when the external file is missing")
	}
}

func TestNewFrameworkResolver_MalformedCatalogFileTolerated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte("framework_methods: ["), 0o644); err != nil {
		t.Fatal(err)
	}

	r := newFrameworkResolver(t, WithCatalogFile(path))
	if m := r.Resolve(Lookup{Class: "ServiceImpl", Method: "selectById"}); m == nil {
		t.Fatal("built-in catalog lost when the external file is malformed")
	}
}

func TestNewFrameworkResolver_ExternalFileOverridesBuiltin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	override := `
framework_methods:
  MyBatis-Plus:
    ServiceImpl:
      - method_name: selectById
        description: Select through the tenant-scoped base
        parameters: [id]
        return_type: Order
        version: "3.5"
        is_inherited: true
        parent_class: IService
`
	if err := os.WriteFile(path, []byte(override), 0o644); err != nil {
		t.Fatal(err)
	}

	r := newFrameworkResolver(t, WithCatalogFile(path))
	m := r.Resolve(Lookup{Class: "ServiceImpl", Method: "selectById"})
	if m == nil {
		t.Fatal("expected a catalog hit")
	}
	if m.ReturnType != "Order" || m.Version != "3.5" {
		t.Errorf("external entry did not win: %+v", m)
	}

	// Methods the override file does not define still come from built-ins.
	if m := r.Resolve(Lookup{Class: "ServiceImpl", Method: "deleteById"}); m == nil {
		t.Error("built-in entries lost after merge")
	}
}

func TestNewFrameworkResolver_ProgrammaticCatalog(t *testing.T) {
	r := newFrameworkResolver(t, WithCatalog(map[string][]FrameworkMethod{
		"PayClient": {{
			MethodName:  "charge",
			Description: "Charge a card through the payment gateway",
			Parameters:  []string{"card", "amount"},
			ReturnType:  "Receipt",
		}},
	}))

	m := r.Resolve(Lookup{Class: "PayClient", Method: "charge"})
	if m == nil {
		t.Fatal("expected a hit on the supplied entry")
	}
	if m.ClassName != "PayClient" || m.ReturnType != "Receipt" {
		t.Errorf("entry = %+v", m)
	}
}
