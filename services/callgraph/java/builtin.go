// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package java

import "strings"

// standardLibraryClasses holds simple names of JDK types that are never
// present in an analyzed project. Calls through these receivers are classed
// as known-external and excluded from recursion rather than reported as
// unresolved.
var standardLibraryClasses = map[string]struct{}{
	// java.lang
	"Object": {}, "Class": {}, "String": {}, "StringBuilder": {}, "StringBuffer": {},
	"Integer": {}, "Long": {}, "Double": {}, "Float": {}, "Boolean": {},
	"Character": {}, "Byte": {}, "Short": {}, "Number": {}, "Void": {},
	"Math": {}, "System": {}, "Thread": {}, "Runtime": {}, "Enum": {},
	"Exception": {}, "RuntimeException": {}, "Throwable": {}, "Error": {},
	"IllegalArgumentException": {}, "IllegalStateException": {},
	"NullPointerException": {}, "IndexOutOfBoundsException": {},

	// java.util
	"List": {}, "ArrayList": {}, "LinkedList": {}, "Vector": {}, "Stack": {},
	"Map": {}, "HashMap": {}, "LinkedHashMap": {}, "TreeMap": {}, "Hashtable": {},
	"ConcurrentHashMap": {}, "Set": {}, "HashSet": {}, "LinkedHashSet": {},
	"TreeSet": {}, "Collection": {}, "Collections": {}, "Arrays": {},
	"Iterator": {}, "Iterable": {}, "Queue": {}, "Deque": {}, "Properties": {},
	"Optional": {}, "Objects": {}, "Random": {}, "Scanner": {}, "UUID": {},
	"Date": {}, "Calendar": {},

	// java.time
	"LocalDate": {}, "LocalDateTime": {}, "LocalTime": {}, "Instant": {},
	"Duration": {}, "Period": {}, "ZonedDateTime": {}, "DateTimeFormatter": {},

	// java.util.stream / function
	"Stream": {}, "Collectors": {}, "Comparator": {}, "Comparable": {},
	"Function": {}, "Supplier": {}, "Consumer": {}, "Predicate": {},

	// java.math / io / concurrent
	"BigDecimal": {}, "BigInteger": {}, "File": {}, "Files": {}, "Paths": {},
	"Executors": {}, "CompletableFuture": {}, "Future": {}, "Callable": {}, "Runnable": {},
}

// utilityClasses holds common helper classes (JDK and Apache-commons style)
// whose static methods appear constantly in business code. They get the same
// known-external treatment as the standard library.
var utilityClasses = map[string]struct{}{
	"StringUtils": {}, "CollectionUtils": {}, "MapUtils": {}, "NumberUtils": {},
	"DateUtils": {}, "FileUtils": {}, "IOUtils": {}, "ObjectUtils": {},
	"BeanUtils": {}, "ArrayUtils": {}, "Assert": {}, "JSON": {}, "JSONObject": {},
	"JSONArray": {}, "Logger": {}, "LoggerFactory": {},
}

// primitiveTypes holds Java primitive type names, filtered out of declared
// field/parameter type handling.
var primitiveTypes = map[string]struct{}{
	"int": {}, "long": {}, "double": {}, "float": {},
	"boolean": {}, "byte": {}, "short": {}, "char": {}, "void": {},
}

// IsStandardLibraryClass reports whether the simple (or dotted java.*) name
// refers to a JDK type. Generic arguments are stripped before matching.
func IsStandardLibraryClass(name string) bool {
	if strings.HasPrefix(name, "java.") || strings.HasPrefix(name, "javax.") {
		return true
	}
	simple := StripGenerics(name)
	if dot := strings.LastIndexByte(simple, '.'); dot >= 0 {
		simple = simple[dot+1:]
	}
	_, ok := standardLibraryClasses[simple]
	return ok
}

// IsUtilityClass reports whether the name matches a known helper class.
func IsUtilityClass(name string) bool {
	_, ok := utilityClasses[StripGenerics(name)]
	return ok
}

// IsKnownExternal reports whether calls through this receiver should be
// treated as resolved-outside-the-project without recursion.
func IsKnownExternal(name string) bool {
	return IsStandardLibraryClass(name) || IsUtilityClass(name)
}

// IsPrimitive reports whether the name is a Java primitive type.
func IsPrimitive(name string) bool {
	_, ok := primitiveTypes[name]
	return ok
}

// javaKeywords are identifiers that can precede '(' without being calls.
var javaKeywords = map[string]struct{}{
	"if": {}, "for": {}, "while": {}, "switch": {}, "catch": {},
	"new": {}, "return": {}, "synchronized": {}, "super": {}, "this": {},
	"assert": {}, "do": {}, "else": {}, "try": {}, "throw": {},
}

// isKeyword reports whether the identifier is a Java control keyword.
func isKeyword(ident string) bool {
	_, ok := javaKeywords[ident]
	return ok
}

// looksLikeClassName applies the camel-case heuristic used to tell static
// receivers from variables: an identifier starting with an uppercase letter
// whose remainder is not all uppercase (all-caps identifiers are constants).
func looksLikeClassName(ident string) bool {
	if ident == "" {
		return false
	}
	first := ident[0]
	if first < 'A' || first > 'Z' {
		return false
	}
	if len(ident) == 1 {
		return true
	}
	rest := ident[1:]
	if strings.ToUpper(rest) == rest && strings.ContainsAny(rest, "ABCDEFGHIJKLMNOPQRSTUVWXYZ_") {
		// SCREAMING_CASE: a constant, not a class.
		return false
	}
	return true
}
