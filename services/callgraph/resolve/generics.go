// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resolve

import (
	"strings"

	"github.com/Morizady/javatrace/services/callgraph/java"
)

// genericParamTable maps recognized generic base classes to the parameter
// names they declare, in declaration order. Matching is by fragment so that
// project-local subclasses like MyServiceImpl or SysBaseMapper still hit.
var genericParamTable = []struct {
	fragment string
	params   []string
}{
	{"ServiceImpl", []string{"M", "T"}},
	{"BaseService", []string{"M", "T"}},
	{"BaseMapper", []string{"T"}},
	{"IService", []string{"T"}},
}

// arityParams returns the conventional parameter names for a generic base
// class that the table does not know, keyed by argument count.
func arityParams(n int) []string {
	switch n {
	case 1:
		return []string{"T"}
	case 2:
		return []string{"M", "T"}
	case 3:
		return []string{"M", "T", "E"}
	default:
		return nil
	}
}

// IsTypeParameter reports whether a declared type reference is a bare
// generic parameter such as "M", "T" or "ID" rather than a class name.
func IsTypeParameter(ref string) bool {
	if len(ref) == 0 || len(ref) > 2 {
		return false
	}
	for i := 0; i < len(ref); i++ {
		if ref[i] < 'A' || ref[i] > 'Z' {
			return false
		}
	}
	return true
}

// inheritedFieldParameter maps well-known framework fields that subclasses
// use without declaring them to the generic parameter they are typed
// against in the base class. The MyBatis-Plus ServiceImpl base declares
// "protected M baseMapper", so a reference to baseMapper on a subclass
// resolves through the M argument.
func inheritedFieldParameter(fieldName string) string {
	if fieldName == "baseMapper" {
		return "M"
	}
	return ""
}

// ResolveGenericFieldType resolves a field reference whose declared type is
// a generic parameter of the owning class's superclass.
//
// Description:
//
//	For "class OrderServiceImpl extends ServiceImpl<OrderMapper, Order>"
//	a field declared as "M" resolves to OrderMapper and a field declared
//	as "T" resolves to Order. The superclass's parameter names come from a
//	small table of recognized base classes, falling back to the
//	conventional names for one, two or three arguments. Fields that the
//	subclass never declares but inherits from a known framework base
//	(baseMapper) resolve the same way.
//
// Inputs:
//   - owner: The class declaring (or inheriting) the field. Must be non-nil.
//   - fieldName: The referenced field or variable name.
//   - imports: The owning file's import table, may be nil.
//
// Outputs:
//   - string: The concrete type, qualified through the import table when an
//     import matches.
//   - bool: False when the field is not generic or the superclass carries
//     no resolvable argument list; callers fall through to ordinary lookup.
func ResolveGenericFieldType(owner *java.ClassModel, fieldName string, imports *java.ImportTable) (string, bool) {
	if owner == nil {
		return "", false
	}

	letter := ""
	if f := owner.Field(fieldName); f != nil {
		if IsTypeParameter(f.DeclaredType) {
			letter = f.DeclaredType
		}
	} else {
		letter = inheritedFieldParameter(fieldName)
	}
	if letter == "" {
		return "", false
	}
	return SubstituteTypeParameter(owner, letter, imports)
}

// SubstituteTypeParameter maps a bare type parameter declared by the
// owner's superclass to the concrete argument the owner supplies.
//
// Outputs:
//   - string: The substituted type, qualified through the import table when
//     an import matches, with nested generic arguments stripped.
//   - bool: False when the superclass has no argument list, the argument
//     count has no known parameter naming, or the parameter is not bound.
func SubstituteTypeParameter(owner *java.ClassModel, param string, imports *java.ImportTable) (string, bool) {
	if owner == nil || param == "" {
		return "", false
	}
	args := java.SplitTypeArguments(owner.SuperClass)
	if len(args) == 0 {
		return "", false
	}

	params := paramNamesFor(owner.RawSuperName(), len(args))
	if params == nil {
		return "", false
	}

	for i, name := range params {
		if name != param {
			continue
		}
		concrete := java.StripGenerics(args[i])
		if concrete == "" {
			return "", false
		}
		if imports != nil {
			return imports.Resolve(concrete), true
		}
		return concrete, true
	}
	return "", false
}

// paramNamesFor returns the generic parameter names a base class declares.
// Table entries only apply when their arity matches the actual argument
// count; a ServiceImpl subtype instantiated with one argument falls back to
// the arity convention instead of misaligning the map.
func paramNamesFor(base string, arity int) []string {
	for _, entry := range genericParamTable {
		if len(entry.params) == arity && strings.Contains(base, entry.fragment) {
			return entry.params
		}
	}
	return arityParams(arity)
}
