// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resolve

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/Morizady/javatrace/services/callgraph/java"
)

//go:embed framework_catalog.yaml
var defaultCatalogYAML []byte

// maxInheritanceHops bounds the catalog inheritance walk. Deep enough for
// any real layering, small enough that a cyclic hierarchy cannot spin.
const maxInheritanceHops = 10

// FrameworkMethod describes one method whose declaration lives outside the
// analyzed source tree, inferred from the catalog instead of found.
type FrameworkMethod struct {
	MethodName  string   `yaml:"method_name" json:"method_name"`
	ClassName   string   `yaml:"class_name" json:"class_name"`
	Package     string   `yaml:"package" json:"package"`
	Description string   `yaml:"description" json:"description"`
	Parameters  []string `yaml:"parameters" json:"parameters"`
	ReturnType  string   `yaml:"return_type" json:"return_type"`
	Framework   string   `yaml:"framework" json:"framework"`
	Version     string   `yaml:"version" json:"version"`

	// IsInherited is set when the method was found on an ancestor or
	// interface of the queried class rather than the class itself.
	IsInherited bool `yaml:"is_inherited" json:"is_inherited"`

	// ParentClass records where an inherited method actually lives.
	ParentClass string `yaml:"parent_class" json:"parent_class"`
}

// catalogFile mirrors the YAML layout of a framework method catalog.
type catalogFile struct {
	// FrameworkMethods maps framework tag to declaring-class simple name
	// to method entries.
	FrameworkMethods map[string]map[string][]FrameworkMethod `yaml:"framework_methods"`

	// InheritanceChains maps a class to its parent for classes whose
	// declarations never appear in analyzed source.
	InheritanceChains map[string]string `yaml:"inheritance_chains"`
}

var (
	builtinCatalogOnce sync.Once
	builtinCatalog     *catalogFile
	builtinCatalogErr  error
)

// loadBuiltinCatalog parses the embedded catalog once and caches it.
func loadBuiltinCatalog() (*catalogFile, error) {
	builtinCatalogOnce.Do(func() {
		var parsed catalogFile
		if err := yaml.Unmarshal(defaultCatalogYAML, &parsed); err != nil {
			builtinCatalogErr = fmt.Errorf("parsing framework_catalog.yaml: %w", err)
			return
		}
		builtinCatalog = &parsed
	})
	return builtinCatalog, builtinCatalogErr
}

// Hierarchy exposes the class relationship lookups the catalog walk needs.
// *index.ProjectIndex satisfies it.
type Hierarchy interface {
	Class(name string) (*java.ClassModel, bool)
}

// Lookup carries the context for one catalog query.
type Lookup struct {
	// Class is the receiver class name. Package qualifiers and generic
	// arguments are tolerated.
	Class string

	Method string

	// Imports holds the calling file's plain imports, consulted by the
	// naming-pattern inference.
	Imports []string

	// Index supplies project-local inheritance, may be nil.
	Index Hierarchy
}

// frameworkOptions collects construction options.
type frameworkOptions struct {
	catalogPath string
	extra       map[string][]FrameworkMethod
}

// FrameworkOption is a functional option for NewFrameworkResolver.
type FrameworkOption func(*frameworkOptions)

// WithCatalogFile merges an external YAML catalog in front of the built-in
// entries so its definitions win direct lookups. A missing file is not an
// error; the resolver starts with the built-in catalog alone.
func WithCatalogFile(path string) FrameworkOption {
	return func(o *frameworkOptions) {
		o.catalogPath = path
	}
}

// WithCatalog merges caller-supplied entries, keyed by declaring-class
// simple name, in front of the built-in catalog.
func WithCatalog(methods map[string][]FrameworkMethod) FrameworkOption {
	return func(o *frameworkOptions) {
		o.extra = methods
	}
}

// FrameworkResolver infers methods of classes that live in jars rather
// than analyzed source.
//
// Description:
//
//	Resolution runs four rungs: exact class+method lookup, a walk up the
//	inheritance chain, a walk across declared interfaces, and finally
//	naming-pattern inference for the persistence, container and core
//	library families. A miss is the expected outcome for genuinely
//	unknown third-party code and is reported as nil, never an error.
//
// Thread Safety:
//
// Safe for concurrent use after construction; the catalog is immutable.
type FrameworkResolver struct {
	// byClass maps declaring-class simple name to catalog entries in
	// lookup priority order: caller-supplied first, then external file,
	// then built-ins.
	byClass map[string][]FrameworkMethod

	// chains maps class to parent for bases never seen in source.
	chains map[string]string
}

// NewFrameworkResolver builds a resolver from the embedded catalog plus any
// configured augmentations.
//
// Outputs:
//   - *FrameworkResolver: Ready for concurrent use.
//   - error: Non-nil only when the embedded catalog fails to parse, which
//     indicates a build problem rather than a runtime condition.
func NewFrameworkResolver(opts ...FrameworkOption) (*FrameworkResolver, error) {
	var options frameworkOptions
	for _, opt := range opts {
		opt(&options)
	}

	r := &FrameworkResolver{
		byClass: make(map[string][]FrameworkMethod),
		chains:  make(map[string]string),
	}

	if options.extra != nil {
		r.mergeByClass(options.extra, "")
	}
	if options.catalogPath != "" {
		r.mergeFile(options.catalogPath)
	}

	builtin, err := loadBuiltinCatalog()
	if err != nil {
		return nil, err
	}
	r.mergeCatalog(builtin)

	slog.Debug("framework catalog ready",
		slog.Int("classes", len(r.byClass)),
		slog.Int("chains", len(r.chains)),
	)
	return r, nil
}

// mergeFile loads and merges an external catalog file. Missing or malformed
// files degrade to the built-in catalog with a log line, matching how an
// optional config overlay should behave.
func (r *FrameworkResolver) mergeFile(path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("framework catalog file not found, using built-in catalog",
				slog.String("path", path),
			)
		} else {
			slog.Warn("framework catalog file unreadable",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	var parsed catalogFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		slog.Warn("framework catalog file malformed, using built-in catalog",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return
	}
	r.mergeCatalog(&parsed)
}

// mergeCatalog appends a parsed catalog's entries and chains. Framework
// tags are visited in sorted order so the lookup order is deterministic.
func (r *FrameworkResolver) mergeCatalog(c *catalogFile) {
	if c == nil {
		return
	}
	tags := make([]string, 0, len(c.FrameworkMethods))
	for tag := range c.FrameworkMethods {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	for _, tag := range tags {
		r.mergeByClass(c.FrameworkMethods[tag], tag)
	}
	for class, parent := range c.InheritanceChains {
		// First definition wins so external chains can redirect built-ins.
		if _, exists := r.chains[class]; !exists {
			r.chains[class] = parent
		}
	}
}

// mergeByClass appends entries for each class, filling the fields the YAML
// derives from its map keys.
func (r *FrameworkResolver) mergeByClass(methods map[string][]FrameworkMethod, framework string) {
	classes := make([]string, 0, len(methods))
	for class := range methods {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	for _, class := range classes {
		for _, m := range methods[class] {
			if m.ClassName == "" {
				m.ClassName = class
			}
			if m.Framework == "" {
				m.Framework = framework
			}
			r.byClass[class] = append(r.byClass[class], m)
		}
	}
}

// Resolve infers the given class+method pair from the catalog.
//
// Description:
//
//	Tries, in order: an exact catalog entry on the class itself; a catalog
//	entry on any ancestor reached through the project hierarchy or the
//	built-in chain table; a catalog entry on any declared interface; and
//	naming-pattern inference keyed on class name fragments and imports.
//	Inherited and interface hits return a copy tagged with the ancestor so
//	reports can show where the method actually lives.
//
// Outputs:
//   - *FrameworkMethod: The inferred method, or nil when nothing matched.
//     nil is the normal outcome for unknown third-party code.
func (r *FrameworkResolver) Resolve(q Lookup) *FrameworkMethod {
	if q.Class == "" || q.Method == "" {
		return nil
	}

	// Exact lookup uses the name as given; the naming rung below retries
	// with qualifiers and generics stripped.
	if m := r.direct(q.Class, q.Method); m != nil {
		recordFrameworkLookup(lookupDirect)
		return m
	}

	for _, ancestor := range r.inheritanceChain(simpleClassName(q.Class), q.Index) {
		if m := r.direct(ancestor, q.Method); m != nil {
			recordFrameworkLookup(lookupInherited)
			return inheritedCopy(m, q.Class, ancestor, "Inherited from")
		}
	}

	for _, iface := range r.declaredInterfaces(simpleClassName(q.Class), q.Index) {
		if m := r.direct(iface, q.Method); m != nil {
			recordFrameworkLookup(lookupInterface)
			return inheritedCopy(m, q.Class, iface, "Implements")
		}
	}

	if m := r.inferFromNaming(q); m != nil {
		recordFrameworkLookup(lookupPattern)
		return m
	}
	recordFrameworkLookup(lookupMiss)
	return nil
}

// direct returns a copy of the exact catalog entry for class+method, nil
// when absent.
func (r *FrameworkResolver) direct(class, method string) *FrameworkMethod {
	for _, m := range r.byClass[class] {
		if m.MethodName == method {
			entry := m
			return &entry
		}
	}
	return nil
}

// inheritanceChain walks upward from the class, preferring project-local
// parents over the built-in chain table at every hop.
func (r *FrameworkResolver) inheritanceChain(class string, h Hierarchy) []string {
	var chain []string
	current := class
	for len(chain) < maxInheritanceHops {
		parent := r.parentOf(current, h)
		if parent == "" || parent == current || slices.Contains(chain, parent) {
			break
		}
		chain = append(chain, parent)
		current = parent
	}
	return chain
}

// parentOf returns the simple name of the class's parent. Interfaces treat
// their first extended interface as the parent, matching how the source
// model records interface extension.
func (r *FrameworkResolver) parentOf(class string, h Hierarchy) string {
	if h != nil {
		if cls, ok := h.Class(class); ok {
			if p := cls.RawSuperName(); p != "" {
				return simpleClassName(p)
			}
			if cls.IsInterface && len(cls.Interfaces) > 0 {
				return simpleClassName(java.StripGenerics(cls.Interfaces[0]))
			}
		}
	}
	return r.chains[class]
}

// declaredInterfaces returns the simple names of the class's declared
// interfaces, empty when the class is not in the index.
func (r *FrameworkResolver) declaredInterfaces(class string, h Hierarchy) []string {
	if h == nil {
		return nil
	}
	cls, ok := h.Class(class)
	if !ok {
		return nil
	}
	names := make([]string, 0, len(cls.Interfaces))
	for _, ref := range cls.Interfaces {
		names = append(names, simpleClassName(java.StripGenerics(ref)))
	}
	return names
}

// inheritedCopy clones a catalog entry onto the queried class, recording
// the ancestor it was actually found on.
func inheritedCopy(m *FrameworkMethod, class, ancestor, how string) *FrameworkMethod {
	entry := *m
	entry.ClassName = class
	entry.IsInherited = true
	entry.ParentClass = ancestor
	entry.Description = fmt.Sprintf("%s %s: %s", how, ancestor, m.Description)
	return &entry
}

// verbPattern is one naming-convention inference rule.
type verbPattern struct {
	description string
	parameters  []string
	returnType  string
}

// myBatisIndicators flag a class as persistence-layer when any fragment
// appears in its name or its parent's name.
var myBatisIndicators = []string{"ServiceImpl", "BaseServiceImpl", "BaseMapper", "Mapper"}

// springIndicators flag a class as container-managed by stereotype suffix.
var springIndicators = []string{"Controller", "Service", "Repository", "Component"}

// myBatisVerbPatterns covers the base CRUD surface that MyBatis-Plus
// mappers and service bases expose without project-local declarations.
var myBatisVerbPatterns = map[string]verbPattern{
	"insertOrUpdate": {"Insert a new record or update an existing one by primary key", []string{"entity"}, "boolean"},
	"selectById":     {"Select a record by primary key", []string{"id"}, "T"},
	"selectList":     {"Select the records matching a wrapper condition", []string{"wrapper"}, "List<T>"},
	"selectOne":      {"Select a single record matching a wrapper condition", []string{"wrapper"}, "T"},
	"insert":         {"Insert a new record", []string{"entity"}, "boolean"},
	"updateById":     {"Update a record by primary key", []string{"entity"}, "boolean"},
	"deleteById":     {"Delete a record by primary key", []string{"id"}, "boolean"},
	"selectPage":     {"Select a page of records matching a wrapper condition", []string{"page", "wrapper"}, "IPage<T>"},
	"count":          {"Count the records matching a wrapper condition", []string{"wrapper"}, "int"},
	"baseListQuery":  {"List query through the shared base implementation", []string{"param"}, "List<T>"},
	"baseCountQuery": {"Count query through the shared base implementation", []string{"param"}, "int"},
}

// springVerbPatterns covers container interactions inferred for classes
// that look Spring-managed.
var springVerbPatterns = map[string]verbPattern{
	"getBean":  {"Fetch a bean instance from the container", []string{"name"}, "Object"},
	"autowire": {"Autowire a bean instance outside the container lifecycle", []string{"existingBean"}, "void"},
}

// stdlibInterfaceOf maps concrete collection classes to the interface whose
// catalog entries describe their methods.
var stdlibInterfaceOf = map[string]string{
	"ArrayList": "List", "LinkedList": "List", "Vector": "List",
	"HashSet": "Set", "LinkedHashSet": "Set", "TreeSet": "Set",
	"HashMap": "Map", "LinkedHashMap": "Map", "TreeMap": "Map",
	"ConcurrentHashMap": "Map",
}

// inferFromNaming applies the pattern rungs in fixed order: core library
// first, then persistence, then container.
func (r *FrameworkResolver) inferFromNaming(q Lookup) *FrameworkMethod {
	if java.IsStandardLibraryClass(q.Class) {
		if m := r.inferStdlib(q); m != nil {
			return m
		}
	}
	if looksMyBatis(q) {
		if m := inferFromVerbs(q, myBatisVerbPatterns, "MyBatis-Plus", "com.baomidou.mybatisplus.service.impl", "3.x", "ServiceImpl"); m != nil {
			return m
		}
	}
	if looksSpring(q) {
		if m := inferFromVerbs(q, springVerbPatterns, "Spring", "org.springframework.context", "5.x", ""); m != nil {
			return m
		}
	}
	return nil
}

// inferStdlib matches the class against the core-library catalog, following
// the concrete-class-to-interface mapping for the common collections.
func (r *FrameworkResolver) inferStdlib(q Lookup) *FrameworkMethod {
	simple := simpleClassName(q.Class)

	if m := r.direct(simple, q.Method); m != nil {
		entry := *m
		// Keep the caller's spelling, which may carry generics.
		entry.ClassName = q.Class
		return &entry
	}

	iface, ok := stdlibInterfaceOf[simple]
	if !ok {
		return nil
	}
	if m := r.direct(iface, q.Method); m != nil {
		return inheritedCopy(m, q.Class, iface, "Inherited from")
	}
	return nil
}

// inferFromVerbs resolves a method name against a verb pattern table.
func inferFromVerbs(q Lookup, patterns map[string]verbPattern, framework, pkg, version, parent string) *FrameworkMethod {
	p, ok := patterns[q.Method]
	if !ok {
		return nil
	}
	return &FrameworkMethod{
		MethodName:  q.Method,
		ClassName:   q.Class,
		Package:     pkg,
		Description: p.description,
		Parameters:  p.parameters,
		ReturnType:  p.returnType,
		Framework:   framework,
		Version:     version,
		IsInherited: parent != "",
		ParentClass: parent,
	}
}

// looksMyBatis reports whether the class name, its recorded parent, or the
// file's imports indicate the MyBatis-Plus persistence layer.
func looksMyBatis(q Lookup) bool {
	for _, ind := range myBatisIndicators {
		if strings.Contains(q.Class, ind) {
			return true
		}
	}
	if q.Index != nil {
		if cls, ok := q.Index.Class(simpleClassName(q.Class)); ok {
			parent := cls.RawSuperName()
			for _, ind := range myBatisIndicators {
				if parent != "" && strings.Contains(parent, ind) {
					return true
				}
			}
		}
	}
	for _, imp := range q.Imports {
		if strings.Contains(imp, "com.baomidou.mybatisplus") {
			return true
		}
	}
	return false
}

// looksSpring reports whether the class name or the file's imports indicate
// a Spring-managed class.
func looksSpring(q Lookup) bool {
	for _, ind := range springIndicators {
		if strings.Contains(q.Class, ind) {
			return true
		}
	}
	for _, imp := range q.Imports {
		if strings.Contains(imp, "org.springframework") {
			return true
		}
	}
	return false
}

// simpleClassName reduces a possibly qualified, possibly generic reference
// to its simple class name.
func simpleClassName(ref string) string {
	ref = java.StripGenerics(ref)
	if dot := strings.LastIndexByte(ref, '.'); dot >= 0 {
		ref = ref[dot+1:]
	}
	return ref
}
