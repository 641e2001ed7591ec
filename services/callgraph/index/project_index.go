// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package index builds and serves the project-wide source model: every
// parsed Java file, every declared class keyed by qualified and simple
// name, the interface-to-implementation map, and the parent-to-subclass
// map. The call resolver reads these maps; nothing writes to them after
// Freeze.
package index

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Morizady/javatrace/services/callgraph/java"
)

// Default configuration values.
const (
	// DefaultMaxClasses is the default maximum number of classes the index
	// can hold.
	DefaultMaxClasses = 250_000

	// searchCheckInterval is how often Search checks for context cancellation.
	searchCheckInterval = 1000
)

// Options configures ProjectIndex behavior and limits.
type Options struct {
	// MaxClasses is the maximum number of classes the index can hold.
	// Attempting to add more returns ErrIndexCapacity.
	// Default: 250,000
	MaxClasses int
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		MaxClasses: DefaultMaxClasses,
	}
}

// Option is a functional option for configuring ProjectIndex.
type Option func(*Options)

// WithMaxClasses sets the maximum number of classes the index can hold.
func WithMaxClasses(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxClasses = n
		}
	}
}

// Stats contains statistics about the project index.
type Stats struct {
	// TotalClasses is the number of indexed classes, interfaces, enums,
	// and records.
	TotalClasses int

	// TotalMethods is the number of indexed method declarations.
	TotalMethods int

	// TotalCallSites is the number of call sites extracted across all
	// method bodies.
	TotalCallSites int

	// InterfaceCount is the number of indexed interface declarations.
	InterfaceCount int

	// FileCount is the number of indexed source files.
	FileCount int

	// DuplicateClasses counts classes skipped because their qualified
	// name was already taken.
	DuplicateClasses int

	// MaxClasses is the configured capacity.
	MaxClasses int

	// Frozen reports whether the index has been frozen.
	Frozen bool
}

// MethodRef identifies one method declaration in the index.
type MethodRef struct {
	// Class is the declaring class. Never nil.
	Class *java.ClassModel

	// Method is the declaration. Never nil.
	Method *java.MethodModel
}

// ProjectIndex provides fast lookups over the parsed source model.
//
// Description:
//
//	The index maintains several maps for the access patterns the call
//	resolver needs:
//	  - byQualified: package.Class → class, the primary index
//	  - bySimple: simple class name → classes (packages can collide)
//	  - byFile: file path → classes declared in that file
//	  - implementations: interface name → classes implementing it
//	  - subclasses: parent class name → classes extending it
//
//	Hierarchy maps are keyed by the simple name of the referenced type
//	with generics stripped, because that is all a heuristic parse of the
//	declaring file can know.
//
// Thread Safety:
//
//	ProjectIndex is safe for concurrent use. Multiple goroutines can
//	call any combination of methods simultaneously.
//
// Ownership:
//
//	The index stores pointers into SourceFile values but does NOT own
//	them. Parsed files MUST NOT be mutated after being added.
type ProjectIndex struct {
	mu     sync.RWMutex
	frozen bool

	// Primary index: qualified name → class.
	byQualified map[string]*java.ClassModel

	// Secondary indexes.
	bySimple        map[string][]*java.ClassModel
	byFile          map[string][]*java.ClassModel
	files           map[string]*java.SourceFile
	implementations map[string][]*java.ClassModel
	subclasses      map[string][]*java.ClassModel

	// Maintained counters for O(1) stats.
	classCount     int
	methodCount    int
	siteCount      int
	interfaceCount int
	duplicateCount int

	options Options
}

// NewProjectIndex creates a new empty project index with the given options.
//
// Example:
//
//	// Default options
//	idx := NewProjectIndex()
//
//	// Custom capacity
//	idx := NewProjectIndex(WithMaxClasses(50_000))
func NewProjectIndex(opts ...Option) *ProjectIndex {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &ProjectIndex{
		byQualified:     make(map[string]*java.ClassModel),
		bySimple:        make(map[string][]*java.ClassModel),
		byFile:          make(map[string][]*java.ClassModel),
		files:           make(map[string]*java.SourceFile),
		implementations: make(map[string][]*java.ClassModel),
		subclasses:      make(map[string][]*java.ClassModel),
		options:         options,
	}
}

// AddFile indexes every class declared in one parsed source file.
//
// Description:
//
//	Registers the file, its classes under both qualified and simple
//	names, and the hierarchy edges its extends/implements clauses
//	declare. Classes whose qualified name is already taken are skipped
//	and counted, not errored, because a heuristic scan of a large tree
//	will meet generated and duplicated sources.
//
// Inputs:
//   - file: A parsed source file. Must be non-nil with a non-empty path.
//
// Outputs:
//   - error: ErrIndexFrozen, ErrDuplicateFile, ErrIndexCapacity, or
//     ErrInvalidClass for a nil or pathless file.
//
// Thread Safety:
//
//	This method is safe for concurrent use.
func (idx *ProjectIndex) AddFile(file *java.SourceFile) error {
	if file == nil || file.Path == "" {
		return fmt.Errorf("%w: file is nil or has no path", ErrInvalidClass)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.frozen {
		return ErrIndexFrozen
	}
	if _, exists := idx.files[file.Path]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateFile, file.Path)
	}
	if idx.classCount+len(file.Classes) > idx.options.MaxClasses {
		return ErrIndexCapacity
	}

	idx.addFileLocked(file)
	return nil
}

// AddBatch indexes multiple parsed files atomically.
//
// Description:
//
//	Validates all files first, both against each other and against the
//	existing index, then adds everything. If any validation fails, NO
//	files are added.
//
// Inputs:
//   - files: The parsed files to add.
//
// Outputs:
//   - error: *BatchError with every validation problem found,
//     ErrIndexFrozen, or ErrIndexCapacity.
//
// Thread Safety:
//
//	This method is safe for concurrent use.
func (idx *ProjectIndex) AddBatch(files []*java.SourceFile) error {
	if len(files) == 0 {
		return nil
	}

	var errs []error
	seen := make(map[string]int)
	newClasses := 0

	for i, f := range files {
		if f == nil || f.Path == "" {
			errs = append(errs, fmt.Errorf("file[%d]: %w: file is nil or has no path", i, ErrInvalidClass))
			continue
		}
		if first, exists := seen[f.Path]; exists {
			errs = append(errs, fmt.Errorf("file[%d]: duplicate path in batch (same as file[%d]): %s",
				i, first, f.Path))
			continue
		}
		seen[f.Path] = i
		newClasses += len(f.Classes)
	}

	if len(errs) > 0 {
		return &BatchError{Errors: errs}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.frozen {
		return ErrIndexFrozen
	}
	if idx.classCount+newClasses > idx.options.MaxClasses {
		return ErrIndexCapacity
	}

	for i, f := range files {
		if _, exists := idx.files[f.Path]; exists {
			errs = append(errs, fmt.Errorf("file[%d]: %w: %s", i, ErrDuplicateFile, f.Path))
		}
	}
	if len(errs) > 0 {
		return &BatchError{Errors: errs}
	}

	for _, f := range files {
		idx.addFileLocked(f)
	}
	return nil
}

// addFileLocked adds one file to all indexes. Caller must hold idx.mu.
func (idx *ProjectIndex) addFileLocked(file *java.SourceFile) {
	idx.files[file.Path] = file

	for i := range file.Classes {
		class := &file.Classes[i]
		if class.Name == "" {
			continue
		}

		qualified := class.QualifiedName()
		if _, exists := idx.byQualified[qualified]; exists {
			idx.duplicateCount++
			continue
		}

		idx.byQualified[qualified] = class
		idx.bySimple[class.Name] = append(idx.bySimple[class.Name], class)
		idx.byFile[file.Path] = append(idx.byFile[file.Path], class)

		if class.IsInterface {
			idx.interfaceCount++
			// An interface extending others is a hierarchy edge, not an
			// implementation.
			for _, ref := range class.Interfaces {
				if key := hierarchyKey(ref); key != "" {
					idx.subclasses[key] = append(idx.subclasses[key], class)
				}
			}
		} else {
			if key := hierarchyKey(class.SuperClass); key != "" {
				idx.subclasses[key] = append(idx.subclasses[key], class)
			}
			for _, ref := range class.Interfaces {
				if key := hierarchyKey(ref); key != "" {
					idx.implementations[key] = append(idx.implementations[key], class)
				}
			}
		}

		idx.classCount++
		idx.methodCount += len(class.Methods)
		for j := range class.Methods {
			idx.siteCount += len(class.Methods[j].CallSites)
		}
	}
}

// hierarchyKey normalizes a type reference to the simple name hierarchy
// maps are keyed by: generics stripped, package prefix dropped.
func hierarchyKey(ref string) string {
	ref = java.StripGenerics(strings.TrimSpace(ref))
	if dot := strings.LastIndexByte(ref, '.'); dot >= 0 {
		ref = ref[dot+1:]
	}
	return ref
}

// Freeze marks the index immutable and fixes lookup order.
//
// Description:
//
//	Sorts every multi-valued entry by qualified name so that all
//	lookups after the build are deterministic regardless of the order
//	files were added in. Mutating calls return ErrIndexFrozen once
//	frozen. Freeze is idempotent.
//
// Thread Safety:
//
//	This method is safe for concurrent use.
func (idx *ProjectIndex) Freeze() {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.frozen {
		return
	}

	for _, m := range []map[string][]*java.ClassModel{idx.bySimple, idx.byFile, idx.implementations, idx.subclasses} {
		for _, classes := range m {
			sort.Slice(classes, func(i, j int) bool {
				qi, qj := classes[i].QualifiedName(), classes[j].QualifiedName()
				if qi != qj {
					return qi < qj
				}
				return classes[i].SourcePath < classes[j].SourcePath
			})
		}
	}

	idx.frozen = true
}

// Frozen reports whether the index has been frozen.
func (idx *ProjectIndex) Frozen() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.frozen
}

// Class resolves a class name to its model.
//
// Description:
//
//	A dotted name is looked up as a qualified name first. A simple name
//	returns the first indexed class with that name in deterministic
//	order. Generic arguments in the name are ignored.
//
// Inputs:
//   - name: Simple ("OrderService") or qualified ("com.x.OrderService")
//     class name, optionally with generic arguments.
//
// Outputs:
//   - *java.ClassModel: The class, or nil.
//   - bool: True if found.
func (idx *ProjectIndex) Class(name string) (*java.ClassModel, bool) {
	name = java.StripGenerics(strings.TrimSpace(name))
	if name == "" {
		return nil, false
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if class, ok := idx.byQualified[name]; ok {
		return class, true
	}
	if dot := strings.LastIndexByte(name, '.'); dot >= 0 {
		name = name[dot+1:]
	}

	classes := idx.bySimple[name]
	if len(classes) == 0 {
		return nil, false
	}
	return minByQualified(classes), true
}

// minByQualified returns the entry with the smallest qualified name, so
// pre-Freeze lookups are deterministic too.
func minByQualified(classes []*java.ClassModel) *java.ClassModel {
	best := classes[0]
	for _, c := range classes[1:] {
		if c.QualifiedName() < best.QualifiedName() {
			best = c
		}
	}
	return best
}

// ClassesNamed returns all classes with the given simple name.
//
// The returned slice is a copy and can be modified by the caller.
func (idx *ProjectIndex) ClassesNamed(simple string) []*java.ClassModel {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return copyClasses(idx.bySimple[simple])
}

// ClassesInFile returns all classes declared in the given file.
func (idx *ProjectIndex) ClassesInFile(path string) []*java.ClassModel {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return copyClasses(idx.byFile[path])
}

// File returns the parsed source file for a path.
func (idx *ProjectIndex) File(path string) (*java.SourceFile, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	f, ok := idx.files[path]
	return f, ok
}

// FileOf returns the parsed source file declaring the given class.
func (idx *ProjectIndex) FileOf(class *java.ClassModel) (*java.SourceFile, bool) {
	if class == nil {
		return nil, false
	}
	return idx.File(class.SourcePath)
}

// Implementations returns the classes implementing the named interface.
//
// Inputs:
//   - iface: Interface name, simple or qualified, generics ignored.
//
// Outputs:
//   - []*java.ClassModel: Copy of the implementing classes, nil if none.
func (idx *ProjectIndex) Implementations(iface string) []*java.ClassModel {
	key := hierarchyKey(iface)

	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return copyClasses(idx.implementations[key])
}

// Subclasses returns the classes directly extending the named type.
func (idx *ProjectIndex) Subclasses(parent string) []*java.ClassModel {
	key := hierarchyKey(parent)

	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return copyClasses(idx.subclasses[key])
}

// copyClasses returns a defensive copy of the given slice.
func copyClasses(src []*java.ClassModel) []*java.ClassModel {
	if len(src) == 0 {
		return nil
	}
	out := make([]*java.ClassModel, len(src))
	copy(out, src)
	return out
}

// FilePaths returns every indexed file path in sorted order.
func (idx *ProjectIndex) FilePaths() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	paths := make([]string, 0, len(idx.files))
	for p := range idx.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// QualifiedNames returns every indexed qualified class name in sorted order.
func (idx *ProjectIndex) QualifiedNames() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	names := make([]string, 0, len(idx.byQualified))
	for n := range idx.byQualified {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// EachClass calls fn for every indexed class in qualified-name order.
// Iteration stops when fn returns false.
func (idx *ProjectIndex) EachClass(fn func(*java.ClassModel) bool) {
	for _, name := range idx.QualifiedNames() {
		class, ok := idx.Class(name)
		if !ok {
			continue
		}
		if !fn(class) {
			return
		}
	}
}

// RemoveFile removes a file and all its classes from every index.
//
// Description:
//
//	Used by incremental re-indexing: remove the old parse of a changed
//	file, then AddFile the new one. Counters and hierarchy maps are
//	kept consistent.
//
// Inputs:
//   - path: The file path to remove.
//
// Outputs:
//   - int: Number of classes removed.
//   - error: ErrIndexFrozen if the index is frozen.
//
// Thread Safety:
//
//	This method is safe for concurrent use.
func (idx *ProjectIndex) RemoveFile(path string) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.frozen {
		return 0, ErrIndexFrozen
	}

	classes := idx.byFile[path]
	for _, class := range classes {
		qualified := class.QualifiedName()
		// Skip shadowed duplicates owned by another file.
		if idx.byQualified[qualified] != class {
			continue
		}
		delete(idx.byQualified, qualified)

		idx.bySimple[class.Name] = removeClass(idx.bySimple[class.Name], class)
		if len(idx.bySimple[class.Name]) == 0 {
			delete(idx.bySimple, class.Name)
		}

		if class.IsInterface {
			idx.interfaceCount--
			for _, ref := range class.Interfaces {
				idx.dropHierarchyLocked(idx.subclasses, ref, class)
			}
		} else {
			idx.dropHierarchyLocked(idx.subclasses, class.SuperClass, class)
			for _, ref := range class.Interfaces {
				idx.dropHierarchyLocked(idx.implementations, ref, class)
			}
		}

		idx.classCount--
		idx.methodCount -= len(class.Methods)
		for j := range class.Methods {
			idx.siteCount -= len(class.Methods[j].CallSites)
		}
	}

	removed := len(classes)
	delete(idx.byFile, path)
	delete(idx.files, path)
	return removed, nil
}

// dropHierarchyLocked removes one class from a hierarchy map entry.
func (idx *ProjectIndex) dropHierarchyLocked(m map[string][]*java.ClassModel, ref string, class *java.ClassModel) {
	key := hierarchyKey(ref)
	if key == "" {
		return
	}
	m[key] = removeClass(m[key], class)
	if len(m[key]) == 0 {
		delete(m, key)
	}
}

// removeClass removes the given class from the slice by pointer equality,
// preserving order.
func removeClass(slice []*java.ClassModel, class *java.ClassModel) []*java.ClassModel {
	for i, c := range slice {
		if c == class {
			return append(slice[:i:i], slice[i+1:]...)
		}
	}
	return slice
}

// Stats returns statistics about the index using maintained counters.
func (idx *ProjectIndex) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return Stats{
		TotalClasses:     idx.classCount,
		TotalMethods:     idx.methodCount,
		TotalCallSites:   idx.siteCount,
		InterfaceCount:   idx.interfaceCount,
		FileCount:        len(idx.files),
		DuplicateClasses: idx.duplicateCount,
		MaxClasses:       idx.options.MaxClasses,
		Frozen:           idx.frozen,
	}
}

// Clone creates an independent, unfrozen copy of the index.
//
// Description:
//
//	Used for copy-on-write incremental updates: clone the live index,
//	apply RemoveFile/AddFile for the changed files, Freeze the clone,
//	and swap it in. Class and file pointers are shared because parsed
//	values are immutable after add; all maps are deep copied.
//
// Thread Safety:
//
//	Safe to call concurrently on the source index. The returned clone
//	is independent.
func (idx *ProjectIndex) Clone() *ProjectIndex {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	clone := &ProjectIndex{
		byQualified:     make(map[string]*java.ClassModel, len(idx.byQualified)),
		bySimple:        make(map[string][]*java.ClassModel, len(idx.bySimple)),
		byFile:          make(map[string][]*java.ClassModel, len(idx.byFile)),
		files:           make(map[string]*java.SourceFile, len(idx.files)),
		implementations: make(map[string][]*java.ClassModel, len(idx.implementations)),
		subclasses:      make(map[string][]*java.ClassModel, len(idx.subclasses)),
		classCount:      idx.classCount,
		methodCount:     idx.methodCount,
		siteCount:       idx.siteCount,
		interfaceCount:  idx.interfaceCount,
		duplicateCount:  idx.duplicateCount,
		options:         idx.options,
	}

	for k, v := range idx.byQualified {
		clone.byQualified[k] = v
	}
	for k, v := range idx.files {
		clone.files[k] = v
	}
	copyMulti(idx.bySimple, clone.bySimple)
	copyMulti(idx.byFile, clone.byFile)
	copyMulti(idx.implementations, clone.implementations)
	copyMulti(idx.subclasses, clone.subclasses)

	return clone
}

// copyMulti deep-copies the slices of a multi-valued index map.
func copyMulti(src, dst map[string][]*java.ClassModel) {
	for k, v := range src {
		cloned := make([]*java.ClassModel, len(v))
		copy(cloned, v)
		dst[k] = cloned
	}
}

// Search finds methods matching the query string.
//
// Description:
//
//	Ranks every indexed method against the query: exact name matches
//	first, then prefix matches, then camel-case word-boundary matches,
//	then substring matches, then fuzzy matches within a small edit
//	distance. Ties break on qualified class name, then method name, so
//	results are deterministic. The entry-point pickers in the CLI and
//	the HTTP search endpoint sit on top of this.
//
// Performance:
//
//	O(n) over all methods. The context is checked periodically so a
//	slow search can be canceled.
//
// Inputs:
//   - ctx: Context for cancellation.
//   - query: Search string, case-insensitive. Empty returns nil.
//   - limit: Maximum results. 0 means no limit.
//
// Outputs:
//   - []MethodRef: Matching methods, best first.
//   - error: Non-nil if the context was canceled.
//
// Thread Safety:
//
//	This method is safe for concurrent use.
func (idx *ProjectIndex) Search(ctx context.Context, query string, limit int) ([]MethodRef, error) {
	_, span := startOperationSpan(ctx, "Search")
	defer span.End()
	start := time.Now()
	defer func() { recordOperationMetrics("search", time.Since(start)) }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if query == "" {
		return nil, nil
	}
	queryLower := strings.ToLower(query)

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	type scored struct {
		ref   MethodRef
		score int
	}
	var results []scored

	count := 0
	for _, class := range idx.byQualified {
		count++
		if count%searchCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		for i := range class.Methods {
			method := &class.Methods[i]
			score := methodMatchScore(query, queryLower, method)
			if score < 0 {
				continue
			}
			results = append(results, scored{
				ref:   MethodRef{Class: class, Method: method},
				score: score,
			})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score < results[j].score
		}
		qi, qj := results[i].ref.Class.QualifiedName(), results[j].ref.Class.QualifiedName()
		if qi != qj {
			return qi < qj
		}
		return results[i].ref.Method.Name < results[j].ref.Method.Name
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	refs := make([]MethodRef, len(results))
	for i, r := range results {
		refs[i] = r.ref
	}
	return refs, nil
}

// methodMatchScore ranks one method against a query. Lower is better;
// -1 means no match.
//
// Score layout: base*10000 + position*100 + lengthDiff*10 + kind, where
// base is 0 exact, 1 prefix, 2 camel-case word, 3 substring, 4 fuzzy.
func methodMatchScore(query, queryLower string, method *java.MethodModel) int {
	name := method.Name
	nameLower := strings.ToLower(name)

	base := -1
	pos := 0
	switch {
	case nameLower == queryLower:
		base = 0
	case strings.HasPrefix(nameLower, queryLower):
		base = 1
	default:
		if p := camelWordMatch(name, query); p >= 0 {
			base = 2
			pos = p
		} else if p := strings.Index(nameLower, queryLower); p >= 0 {
			base = 3
			pos = p
		} else {
			threshold := max(2, len(queryLower)/3)
			if editDistance(nameLower, queryLower) <= threshold {
				base = 4
			}
		}
	}
	if base < 0 {
		return -1
	}

	positionPenalty := 0
	if len(name) > 0 && pos > 0 {
		positionPenalty = min(99, (pos*100)/len(name))
	}
	lengthDiff := len(name) - len(query)
	if lengthDiff < 0 {
		lengthDiff = -lengthDiff
	}
	lengthPenalty := min(99, lengthDiff)

	kindPenalty := 0
	if method.IsConstructor {
		kindPenalty = 5
	}

	return base*10000 + positionPenalty*100 + lengthPenalty*10 + kindPenalty
}

// camelWordMatch reports the position where query matches a camel-case
// word boundary in name, or -1.
//
// Examples: "select" matches "doSelectPage" at 2; "page" does not match
// "repageAll" because "page" there is not a word start.
func camelWordMatch(name, query string) int {
	if query == "" || name == "" {
		return -1
	}
	queryLower := strings.ToLower(query)

	for i := 0; i < len(name); i++ {
		boundary := i == 0 || (isUpperByte(name[i]) && !isUpperByte(name[i-1]))
		if !boundary || i+len(query) > len(name) {
			continue
		}
		if strings.ToLower(name[i:i+len(query)]) != queryLower {
			continue
		}
		end := i + len(query)
		if end == len(name) || isUpperByte(name[end]) || !isLetterByte(name[end]) {
			return i
		}
	}
	return -1
}

func isUpperByte(c byte) bool {
	return c >= 'A' && c <= 'Z'
}

func isLetterByte(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// editDistance computes the Levenshtein distance between two strings
// using two rolling rows.
func editDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}
