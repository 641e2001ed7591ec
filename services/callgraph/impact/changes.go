// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package impact maps unified diffs onto the project index.
//
// A patch is parsed into changed line ranges, the ranges are attributed to
// the method declarations covering them, and call trees can then be tested
// for whether they reach any changed method.
package impact

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/Morizady/javatrace/services/callgraph/index"
	"github.com/Morizady/javatrace/services/callgraph/tree"
)

// ChangedMethod is one method declaration whose body a patch touches.
type ChangedMethod struct {
	// Class is the simple name of the declaring class.
	Class string `json:"class"`

	// Package is the declaring class's package, "" for the default package.
	Package string `json:"package,omitempty"`

	// Method is the method name.
	Method string `json:"method"`

	// File is the indexed path of the declaring file.
	File string `json:"file"`

	// Line is the declaration line.
	Line int `json:"line"`
}

// key renders the match key used against call-tree nodes.
func (m ChangedMethod) key() string {
	return m.Class + "." + m.Method
}

// ChangeSet is the indexed view of one patch: the files it names and the
// methods its hunks land in.
//
// Matching against call trees is by simple class name plus method name, the
// same identity tree nodes carry. Two same-named classes in different
// packages therefore over-report rather than miss an impact.
type ChangeSet struct {
	// Files lists every path the patch names, sorted. Paths that are not
	// indexed (non-Java files, excluded trees) still appear here.
	Files []string `json:"files"`

	// Methods lists the changed method declarations, sorted by file then
	// declaration line.
	Methods []ChangedMethod `json:"methods"`

	keys map[string]struct{}
}

// Empty reports whether the patch touched no indexed method.
func (cs *ChangeSet) Empty() bool {
	return len(cs.Methods) == 0
}

// Touched walks a call tree and returns the changed-method keys it reaches,
// sorted. An empty result means the tree is unaffected by the patch.
func (cs *ChangeSet) Touched(root *tree.Node) []string {
	if root == nil || len(cs.keys) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	root.Walk(func(n *tree.Node) {
		key := n.Class + "." + n.Method
		if _, ok := cs.keys[key]; ok {
			seen[key] = struct{}{}
		}
	})
	if len(seen) == 0 {
		return nil
	}
	touched := make([]string, 0, len(seen))
	for key := range seen {
		touched = append(touched, key)
	}
	sort.Strings(touched)
	return touched
}

// ChangedMethods parses a unified diff and attributes its hunks to indexed
// method declarations.
//
// Description:
//
//	Each file diff is matched to an indexed source file, exactly or by
//	unique path suffix, since patch paths are repo-relative while the index
//	may hold absolute paths. Changed new-side lines are attributed to the
//	nearest preceding method declaration; the model records no end lines,
//	so edits between methods attach to the method above them. Deleted files
//	contribute no methods because the index reflects the post-patch tree.
//
// Inputs:
//
//	patch - A unified diff, git-style prefixes accepted. Must not be empty.
//	idx - The project index for the post-patch tree. Must not be nil.
//
// Outputs:
//
//	*ChangeSet - The parsed change set. Never nil on success.
//	error - Non-nil for an empty or unparseable patch or a nil index.
func ChangedMethods(patch []byte, idx *index.ProjectIndex) (*ChangeSet, error) {
	if idx == nil {
		return nil, fmt.Errorf("index must not be nil")
	}
	if len(bytes.TrimSpace(patch)) == 0 {
		return nil, fmt.Errorf("patch must not be empty")
	}

	fileDiffs, err := diff.ParseMultiFileDiff(patch)
	if err != nil {
		return nil, fmt.Errorf("parsing diff: %w", err)
	}
	if len(fileDiffs) == 0 {
		return nil, fmt.Errorf("diff names no files")
	}

	cs := &ChangeSet{keys: make(map[string]struct{})}
	fileSet := make(map[string]struct{})
	methodSet := make(map[string]struct{})

	for _, fd := range fileDiffs {
		name := trimGitPrefix(fd.NewName, "b/")
		if name == "" {
			// Deleted file: record the old path, nothing to attribute.
			if orig := trimGitPrefix(fd.OrigName, "a/"); orig != "" {
				fileSet[orig] = struct{}{}
			}
			continue
		}
		fileSet[name] = struct{}{}

		path, ok := indexedPath(idx, name)
		if !ok {
			continue
		}
		spans := methodSpans(idx, path)
		if len(spans) == 0 {
			continue
		}

		for _, hunk := range fd.Hunks {
			for _, line := range changedNewLines(hunk) {
				span, ok := spanAt(spans, line)
				if !ok {
					continue
				}
				dedup := fmt.Sprintf("%s:%s.%s:%d", path, span.class, span.method, span.start)
				if _, seen := methodSet[dedup]; seen {
					continue
				}
				methodSet[dedup] = struct{}{}
				changed := ChangedMethod{
					Class:   span.class,
					Package: span.pkg,
					Method:  span.method,
					File:    path,
					Line:    span.start,
				}
				cs.Methods = append(cs.Methods, changed)
				cs.keys[changed.key()] = struct{}{}
			}
		}
	}

	cs.Files = make([]string, 0, len(fileSet))
	for f := range fileSet {
		cs.Files = append(cs.Files, f)
	}
	sort.Strings(cs.Files)
	sort.Slice(cs.Methods, func(i, j int) bool {
		if cs.Methods[i].File != cs.Methods[j].File {
			return cs.Methods[i].File < cs.Methods[j].File
		}
		return cs.Methods[i].Line < cs.Methods[j].Line
	})
	return cs, nil
}

// trimGitPrefix strips the git diff side prefix. "/dev/null" yields "".
func trimGitPrefix(name, prefix string) string {
	if name == "" || name == "/dev/null" {
		return ""
	}
	return strings.TrimPrefix(name, prefix)
}

// indexedPath matches a patch path to an indexed file path, exactly first
// and then by unique "/"-anchored suffix. Ambiguous suffixes do not match.
func indexedPath(idx *index.ProjectIndex, path string) (string, bool) {
	if _, ok := idx.File(path); ok {
		return path, true
	}
	suffix := "/" + strings.TrimPrefix(path, "/")
	match := ""
	for _, indexed := range idx.FilePaths() {
		if !strings.HasSuffix(indexed, suffix) {
			continue
		}
		if match != "" {
			return "", false
		}
		match = indexed
	}
	return match, match != ""
}

// methodSpan locates one method declaration for line attribution.
type methodSpan struct {
	start  int
	class  string
	pkg    string
	method string
}

// methodSpans collects every method declaration in a file, sorted by line.
// Declarations without a recorded line cannot be attributed and are skipped.
func methodSpans(idx *index.ProjectIndex, path string) []methodSpan {
	var spans []methodSpan
	for _, cls := range idx.ClassesInFile(path) {
		for i := range cls.Methods {
			m := &cls.Methods[i]
			if m.Line <= 0 {
				continue
			}
			spans = append(spans, methodSpan{
				start:  m.Line,
				class:  cls.Name,
				pkg:    cls.Package,
				method: m.Name,
			})
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	return spans
}

// spanAt returns the nearest declaration at or before the line. Lines above
// the first declaration belong to no method.
func spanAt(spans []methodSpan, line int) (methodSpan, bool) {
	i := sort.Search(len(spans), func(i int) bool { return spans[i].start > line })
	if i == 0 {
		return methodSpan{}, false
	}
	return spans[i-1], true
}

// changedNewLines extracts the new-side line numbers a hunk changes.
// Deletions attach to the new-side position they occurred at.
func changedNewLines(hunk *diff.Hunk) []int {
	if hunk == nil {
		return nil
	}
	var lines []int
	seen := make(map[int]struct{})
	record := func(line int) {
		if _, ok := seen[line]; ok {
			return
		}
		seen[line] = struct{}{}
		lines = append(lines, line)
	}

	newLine := int(hunk.NewStartLine)
	for _, body := range bytes.Split(hunk.Body, []byte("\n")) {
		if len(body) == 0 {
			continue
		}
		switch body[0] {
		case '+':
			record(newLine)
			newLine++
		case '-':
			record(newLine)
		case ' ':
			newLine++
		}
		// "\ No newline at end of file" markers carry no position.
	}
	return lines
}
