// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package index

import (
	"fmt"

	"golang.org/x/mod/semver"

	"github.com/Morizady/javatrace/services/callgraph/java"
)

// IndexSchemaVersion is the serialization schema version for persisted
// indexes. Bump the major version when a change breaks older readers;
// snapshots are accepted across minor and patch revisions.
const IndexSchemaVersion = "v1.0.0"

// SerializableIndex is the JSON form of a ProjectIndex.
//
// Description:
//
//	Files appear sorted by path and carry everything needed to rebuild
//	the index: package, imports, classes, methods, and call sites. The
//	derived lookup maps (hierarchy, simple-name, counters) are not
//	serialized; reconstruction rebuilds them.
type SerializableIndex struct {
	SchemaVersion string             `json:"schema_version"`
	Files         []SerializableFile `json:"files"`
}

// SerializableFile is the JSON form of one indexed source file.
type SerializableFile struct {
	Path          string              `json:"path"`
	Package       string              `json:"package,omitempty"`
	Hash          string              `json:"hash,omitempty"`
	ParsedAtMilli int64               `json:"parsed_at_milli,omitempty"`
	Imports       []string            `json:"imports,omitempty"`
	StaticImports map[string]string   `json:"static_imports,omitempty"`
	ImportLines   map[string]int      `json:"import_lines,omitempty"`
	Classes       []SerializableClass `json:"classes"`
	Errors        []string            `json:"errors,omitempty"`
}

// SerializableClass is the JSON form of one declared type. The source path
// is not repeated here; it is restored from the owning file on load.
type SerializableClass struct {
	Name        string               `json:"name"`
	Package     string               `json:"package,omitempty"`
	SuperClass  string               `json:"super_class,omitempty"`
	Interfaces  []string             `json:"interfaces,omitempty"`
	Fields      []SerializableField  `json:"fields,omitempty"`
	Methods     []SerializableMethod `json:"methods,omitempty"`
	IsInterface bool                 `json:"is_interface,omitempty"`
	IsAbstract  bool                 `json:"is_abstract,omitempty"`
}

// SerializableField is the JSON form of one field declaration.
type SerializableField struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// SerializableMethod is the JSON form of one method declaration.
type SerializableMethod struct {
	Name          string             `json:"name"`
	Line          int                `json:"line,omitempty"`
	Parameters    []string           `json:"parameters,omitempty"`
	ReturnType    string             `json:"return_type,omitempty"`
	IsConstructor bool               `json:"is_constructor,omitempty"`
	CallSites     []SerializableSite `json:"call_sites,omitempty"`
}

// SerializableSite is the JSON form of one extracted call site. Kind uses
// the wire names of java.CallKind.
type SerializableSite struct {
	Receiver  string `json:"receiver,omitempty"`
	Method    string `json:"method"`
	Kind      string `json:"kind"`
	Line      int    `json:"line,omitempty"`
	ArgCount  int    `json:"arg_count,omitempty"`
	EnumClass string `json:"enum_class,omitempty"`
	ChainText string `json:"chain_text,omitempty"`
}

// ToSerializable converts the index to its serializable form.
//
// Description:
//
//	Produces a deterministic representation: files sorted by path,
//	declarations in parse order. Two indexes built from the same sources
//	serialize to identical bytes.
//
// Outputs:
//
//	*SerializableIndex - The serializable form. Never nil.
//
// Thread Safety: Safe for concurrent use.
func (idx *ProjectIndex) ToSerializable() *SerializableIndex {
	s := &SerializableIndex{
		SchemaVersion: IndexSchemaVersion,
		Files:         []SerializableFile{},
	}

	for _, path := range idx.FilePaths() {
		file, ok := idx.File(path)
		if !ok {
			continue
		}
		s.Files = append(s.Files, serializeFile(file))
	}

	return s
}

// FromSerializable reconstructs a frozen ProjectIndex.
//
// Description:
//
//	Rejects snapshots whose schema major version differs from
//	IndexSchemaVersion; minor and patch differences load normally. The
//	returned index is frozen and ready for lookups.
//
// Inputs:
//
//	s - The serialized index. Must not be nil.
//	opts - Index options, e.g. WithMaxClasses.
//
// Outputs:
//
//	*ProjectIndex - The rebuilt, frozen index.
//	error - Non-nil for schema mismatches or invalid content.
func FromSerializable(s *SerializableIndex, opts ...Option) (*ProjectIndex, error) {
	if s == nil {
		return nil, fmt.Errorf("serialized index is nil")
	}
	if !semver.IsValid(s.SchemaVersion) {
		return nil, fmt.Errorf("invalid schema version %q", s.SchemaVersion)
	}
	if semver.Major(s.SchemaVersion) != semver.Major(IndexSchemaVersion) {
		return nil, fmt.Errorf("unsupported schema version %q (expected %s.x)",
			s.SchemaVersion, semver.Major(IndexSchemaVersion))
	}

	files := make([]*java.SourceFile, 0, len(s.Files))
	for i := range s.Files {
		file, err := deserializeFile(&s.Files[i])
		if err != nil {
			return nil, fmt.Errorf("file %s: %w", s.Files[i].Path, err)
		}
		files = append(files, file)
	}

	idx := NewProjectIndex(opts...)
	if err := idx.AddBatch(files); err != nil {
		return nil, fmt.Errorf("rebuilding index: %w", err)
	}
	idx.Freeze()
	return idx, nil
}

func serializeFile(file *java.SourceFile) SerializableFile {
	sf := SerializableFile{
		Path:          file.Path,
		Package:       file.Package,
		Hash:          file.Hash,
		ParsedAtMilli: file.ParsedAtMilli,
		Classes:       make([]SerializableClass, 0, len(file.Classes)),
		Errors:        file.Errors,
	}

	if file.Imports != nil {
		sf.Imports = file.Imports.Plain
		if len(file.Imports.Static) > 0 {
			sf.StaticImports = file.Imports.Static
		}
		if len(file.Imports.Lines) > 0 {
			sf.ImportLines = file.Imports.Lines
		}
	}

	for i := range file.Classes {
		sf.Classes = append(sf.Classes, serializeClass(&file.Classes[i]))
	}

	return sf
}

func serializeClass(class *java.ClassModel) SerializableClass {
	sc := SerializableClass{
		Name:        class.Name,
		Package:     class.Package,
		SuperClass:  class.SuperClass,
		Interfaces:  class.Interfaces,
		IsInterface: class.IsInterface,
		IsAbstract:  class.IsAbstract,
	}

	for _, field := range class.Fields {
		sc.Fields = append(sc.Fields, SerializableField{
			Name: field.Name,
			Type: field.DeclaredType,
		})
	}

	for i := range class.Methods {
		method := &class.Methods[i]
		sm := SerializableMethod{
			Name:          method.Name,
			Line:          method.Line,
			Parameters:    method.Parameters,
			ReturnType:    method.ReturnType,
			IsConstructor: method.IsConstructor,
		}
		for _, site := range method.CallSites {
			sm.CallSites = append(sm.CallSites, SerializableSite{
				Receiver:  site.Receiver,
				Method:    site.Method,
				Kind:      site.Kind.String(),
				Line:      site.Line,
				ArgCount:  site.ArgCount,
				EnumClass: site.EnumClass,
				ChainText: site.ChainText,
			})
		}
		sc.Methods = append(sc.Methods, sm)
	}

	return sc
}

func deserializeFile(sf *SerializableFile) (*java.SourceFile, error) {
	file := &java.SourceFile{
		Path:          sf.Path,
		Package:       sf.Package,
		Hash:          sf.Hash,
		ParsedAtMilli: sf.ParsedAtMilli,
		Imports:       java.NewImportTable(),
		Errors:        sf.Errors,
	}

	file.Imports.Plain = sf.Imports
	for member, declaring := range sf.StaticImports {
		file.Imports.Static[member] = declaring
	}
	for text, line := range sf.ImportLines {
		file.Imports.Lines[text] = line
	}

	for i := range sf.Classes {
		class, err := deserializeClass(&sf.Classes[i], sf.Path)
		if err != nil {
			return nil, err
		}
		file.Classes = append(file.Classes, class)
	}

	return file, nil
}

func deserializeClass(sc *SerializableClass, path string) (java.ClassModel, error) {
	class := java.ClassModel{
		Name:        sc.Name,
		Package:     sc.Package,
		SourcePath:  path,
		SuperClass:  sc.SuperClass,
		Interfaces:  sc.Interfaces,
		IsInterface: sc.IsInterface,
		IsAbstract:  sc.IsAbstract,
	}

	for _, field := range sc.Fields {
		class.Fields = append(class.Fields, java.FieldModel{
			Name:         field.Name,
			DeclaredType: field.Type,
		})
	}

	for i := range sc.Methods {
		sm := &sc.Methods[i]
		method := java.MethodModel{
			Name:          sm.Name,
			Class:         sc.Name,
			SourcePath:    path,
			Line:          sm.Line,
			Parameters:    sm.Parameters,
			ReturnType:    sm.ReturnType,
			IsConstructor: sm.IsConstructor,
		}
		for _, site := range sm.CallSites {
			kind, err := java.ParseCallKind(site.Kind)
			if err != nil {
				return java.ClassModel{}, fmt.Errorf("class %s method %s: %w", sc.Name, sm.Name, err)
			}
			method.CallSites = append(method.CallSites, java.CallSite{
				Receiver:  site.Receiver,
				Method:    site.Method,
				Kind:      kind,
				Line:      site.Line,
				ArgCount:  site.ArgCount,
				EnumClass: site.EnumClass,
				ChainText: site.ChainText,
			})
		}
		class.Methods = append(class.Methods, method)
	}

	return class, nil
}
