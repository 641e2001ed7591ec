// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package java

import (
	"sort"
	"strings"
)

// stripComments replaces line and block comments with spaces, preserving
// newlines and byte offsets so that line numbers computed on the stripped
// text match the original source.
//
// Description:
//
//	A small scanner that understands string literals ("..."), char
//	literals ('c'), and escape sequences, so comment markers inside
//	literals are left alone. Text blocks (""" ... """) are treated as
//	ordinary strings; their content is preserved.
//
// Inputs:
//   - src: Raw source text.
//
// Outputs:
//   - string: Same length as src, with comment bytes blanked.
func stripComments(src string) string {
	out := []byte(src)

	const (
		stateCode = iota
		stateLineComment
		stateBlockComment
		stateString
		stateChar
	)

	state := stateCode
	for i := 0; i < len(out); i++ {
		c := out[i]
		switch state {
		case stateCode:
			switch {
			case c == '/' && i+1 < len(out) && out[i+1] == '/':
				state = stateLineComment
				out[i] = ' '
			case c == '/' && i+1 < len(out) && out[i+1] == '*':
				state = stateBlockComment
				out[i] = ' '
			case c == '"':
				state = stateString
			case c == '\'':
				state = stateChar
			}
		case stateLineComment:
			if c == '\n' {
				state = stateCode
			} else {
				out[i] = ' '
			}
		case stateBlockComment:
			if c == '*' && i+1 < len(out) && out[i+1] == '/' {
				out[i] = ' '
				out[i+1] = ' '
				i++
				state = stateCode
			} else if c != '\n' {
				out[i] = ' '
			}
		case stateString:
			if c == '\\' {
				i++ // skip escaped char
			} else if c == '"' {
				state = stateCode
			}
		case stateChar:
			if c == '\\' {
				i++
			} else if c == '\'' {
				state = stateCode
			}
		}
	}

	return string(out)
}

// blankStrings replaces the contents of string and char literals with
// spaces. Applied after stripComments so call-site patterns cannot match
// inside literal text such as log messages.
func blankStrings(src string) string {
	out := []byte(src)

	inString := false
	inChar := false
	for i := 0; i < len(out); i++ {
		c := out[i]
		switch {
		case inString:
			if c == '\\' && i+1 < len(out) {
				out[i] = ' '
				out[i+1] = ' '
				i++
			} else if c == '"' {
				inString = false
			} else if c != '\n' {
				out[i] = ' '
			}
		case inChar:
			if c == '\\' && i+1 < len(out) {
				out[i] = ' '
				out[i+1] = ' '
				i++
			} else if c == '\'' {
				inChar = false
			} else if c != '\n' {
				out[i] = ' '
			}
		case c == '"':
			inString = true
		case c == '\'':
			inChar = true
		}
	}

	return string(out)
}

// lineIndex maps byte offsets to 1-based line numbers.
type lineIndex struct {
	starts []int
}

// newLineIndex scans src once and records the start offset of every line.
func newLineIndex(src string) *lineIndex {
	starts := []int{0}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &lineIndex{starts: starts}
}

// lineOf returns the 1-based line containing the given byte offset.
func (x *lineIndex) lineOf(offset int) int {
	if offset < 0 {
		return 1
	}
	n := sort.Search(len(x.starts), func(i int) bool {
		return x.starts[i] > offset
	})
	return n
}

// countArguments counts top-level commas in a parenthesized argument text.
// Commas nested inside (), <>, [], {} or literals do not separate arguments.
// Empty or whitespace-only text yields zero arguments.
func countArguments(argText string) int {
	trimmed := strings.TrimSpace(argText)
	if trimmed == "" {
		return 0
	}

	depth := 0
	count := 1
	inString := false
	inChar := false
	for i := 0; i < len(argText); i++ {
		c := argText[i]
		switch {
		case inString:
			if c == '\\' {
				i++
			} else if c == '"' {
				inString = false
			}
		case inChar:
			if c == '\\' {
				i++
			} else if c == '\'' {
				inChar = false
			}
		case c == '"':
			inString = true
		case c == '\'':
			inChar = true
		case c == '(' || c == '[' || c == '{' || c == '<':
			depth++
		case c == ')' || c == ']' || c == '}' || c == '>':
			depth--
		case c == ',' && depth == 0:
			count++
		}
	}
	return count
}

// matchParen returns the offset of the ')' matching the '(' at openIdx,
// or -1 when the parenthesis never closes. Literals are skipped.
func matchParen(src string, openIdx int) int {
	if openIdx < 0 || openIdx >= len(src) || src[openIdx] != '(' {
		return -1
	}

	depth := 0
	inString := false
	inChar := false
	for i := openIdx; i < len(src); i++ {
		c := src[i]
		switch {
		case inString:
			if c == '\\' {
				i++
			} else if c == '"' {
				inString = false
			}
		case inChar:
			if c == '\\' {
				i++
			} else if c == '\'' {
				inChar = false
			}
		case c == '"':
			inString = true
		case c == '\'':
			inChar = true
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// matchBrace returns the offset of the '}' matching the '{' at openIdx,
// or -1 when the body never closes (truncated source).
func matchBrace(src string, openIdx int) int {
	if openIdx < 0 || openIdx >= len(src) || src[openIdx] != '{' {
		return -1
	}

	depth := 0
	inString := false
	inChar := false
	for i := openIdx; i < len(src); i++ {
		c := src[i]
		switch {
		case inString:
			if c == '\\' {
				i++
			} else if c == '"' {
				inString = false
			}
		case inChar:
			if c == '\\' {
				i++
			} else if c == '\'' {
				inChar = false
			}
		case c == '"':
			inString = true
		case c == '\'':
			inChar = true
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// siteAccumulator collects call sites with positional de-duplication.
//
// Description:
//
//	Pattern passes overlap: a chained call also matches the instance
//	pattern, a static call also matches the instance pattern, and so on.
//	Sites are keyed by receiver.method@line; when two passes produce the
//	same key, the higher-priority kind wins and the site keeps its
//	first-seen position so output order stays deterministic.
type siteAccumulator struct {
	keys    []string
	sites   map[string]CallSite
	offsets map[string]int

	// claimed marks byte spans already consumed by a higher-priority
	// pattern so later passes skip them.
	claimed []span
}

type span struct {
	start, end int
}

func newSiteAccumulator() *siteAccumulator {
	return &siteAccumulator{
		sites:   make(map[string]CallSite),
		offsets: make(map[string]int),
	}
}

// claim records a matched byte span so later, lower-priority passes skip it.
func (a *siteAccumulator) claim(start, end int) {
	a.claimed = append(a.claimed, span{start: start, end: end})
}

// overlapsClaimed reports whether any part of [start, end) was already
// consumed by an earlier pattern pass.
func (a *siteAccumulator) overlapsClaimed(start, end int) bool {
	for _, s := range a.claimed {
		if start < s.end && end > s.start {
			return true
		}
	}
	return false
}

// add inserts a site found at the given byte offset, keeping the
// higher-priority kind on key collisions.
func (a *siteAccumulator) add(site CallSite, offset int) {
	key := site.Key()
	existing, ok := a.sites[key]
	if !ok {
		a.keys = append(a.keys, key)
		a.sites[key] = site
		a.offsets[key] = offset
		return
	}
	if site.Kind.Priority() > existing.Kind.Priority() {
		a.sites[key] = site
	}
	if offset < a.offsets[key] {
		a.offsets[key] = offset
	}
}

// result returns the collected sites in source order.
func (a *siteAccumulator) result() []CallSite {
	sort.SliceStable(a.keys, func(i, j int) bool {
		return a.offsets[a.keys[i]] < a.offsets[a.keys[j]]
	})
	out := make([]CallSite, 0, len(a.keys))
	for _, key := range a.keys {
		out = append(out, a.sites[key])
	}
	return out
}
