// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "callgraph.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg.Analysis.MaxDepth != 6 {
		t.Errorf("MaxDepth = %d, want 6", cfg.Analysis.MaxDepth)
	}
	if len(cfg.Analysis.Ignore) != 0 {
		t.Errorf("Ignore = %v, want empty", cfg.Analysis.Ignore)
	}
	if cfg.Parsing.Extractor != ExtractorRegex {
		t.Errorf("Extractor = %q, want %q", cfg.Parsing.Extractor, ExtractorRegex)
	}
	if cfg.Parsing.IncludeTests {
		t.Error("IncludeTests = true, want false")
	}
	if !cfg.Snapshot.Enabled {
		t.Error("Snapshot.Enabled = false, want true")
	}
	if cfg.Snapshot.Dir != ".callgraph/snapshots" {
		t.Errorf("Snapshot.Dir = %q", cfg.Snapshot.Dir)
	}
	if cfg.Watch.DebounceMillis != 400 {
		t.Errorf("DebounceMillis = %d, want 400", cfg.Watch.DebounceMillis)
	}
	if cfg.Watch.MaxRebuildsPerMinute != 30 {
		t.Errorf("MaxRebuildsPerMinute = %d, want 30", cfg.Watch.MaxRebuildsPerMinute)
	}
}

func TestLoad_MissingFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "callgraph.yml"))
	if err != nil {
		t.Fatalf("Load error for missing file: %v", err)
	}
	if cfg.Analysis.MaxDepth != 6 {
		t.Errorf("MaxDepth = %d, want default 6", cfg.Analysis.MaxDepth)
	}
}

func TestLoad_OverlayKeepsUnsetDefaults(t *testing.T) {
	path := writeConfig(t, `
analysis:
  max_depth: 3
  ignore: [toString, hashCode]
  suppress_accessors: true
parsing:
  extractor: treesitter
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Analysis.MaxDepth != 3 {
		t.Errorf("MaxDepth = %d, want 3", cfg.Analysis.MaxDepth)
	}
	if fmt.Sprint(cfg.Analysis.Ignore) != "[toString hashCode]" {
		t.Errorf("Ignore = %v", cfg.Analysis.Ignore)
	}
	if !cfg.Analysis.SuppressAccessors {
		t.Error("SuppressAccessors = false, want true")
	}
	if cfg.Parsing.Extractor != ExtractorTreeSitter {
		t.Errorf("Extractor = %q, want treesitter", cfg.Parsing.Extractor)
	}

	// Everything the file does not mention keeps its default.
	if cfg.Analysis.SuppressConstructors {
		t.Error("SuppressConstructors flipped without being set")
	}
	if cfg.Snapshot.Dir != ".callgraph/snapshots" {
		t.Errorf("Snapshot.Dir = %q, want default", cfg.Snapshot.Dir)
	}
	if cfg.Watch.DebounceMillis != 400 {
		t.Errorf("DebounceMillis = %d, want default 400", cfg.Watch.DebounceMillis)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"malformed yaml", "analysis: [not, a, map"},
		{"unknown extractor", "parsing:\n  extractor: antlr\n"},
		{"negative depth", "analysis:\n  max_depth: -1\n"},
		{"ignore entry with space", "analysis:\n  ignore: [\"to String\"]\n"},
		{"blank ignore entry", "analysis:\n  ignore: [\"  \"]\n"},
		{"bad exclude glob", "parsing:\n  exclude_patterns: [\"[unterminated\"]\n"},
		{"snapshot dir empty while enabled", "snapshot:\n  enabled: true\n  dir: \"\"\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			if err == nil {
				t.Fatal("Load accepted an invalid configuration")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestLoad_OversizeFileFails(t *testing.T) {
	path := writeConfig(t, strings.Repeat("# filler\n", MaxConfigFileSize/9+1))
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load accepted an oversized file")
	}
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("error = %v, want ErrInvalidConfig", err)
	}
}

func TestDefault_MatchesEmbeddedValues(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default error: %v", err)
	}
	if cfg.Analysis.MaxDepth != 6 {
		t.Errorf("MaxDepth = %d, want 6", cfg.Analysis.MaxDepth)
	}
	if cfg.Parsing.Extractor != ExtractorRegex {
		t.Errorf("Extractor = %q, want regex", cfg.Parsing.Extractor)
	}
}

func TestParsingConfig_EffectiveExcludeGlobs(t *testing.T) {
	cfg := ParsingConfig{ExcludePatterns: []string{"*/generated/*"}}

	got := cfg.EffectiveExcludeGlobs()
	if fmt.Sprint(got) != "[*/generated/* *Test.java *Tests.java]" {
		t.Errorf("globs = %v", got)
	}

	got[0] = "mutated"
	if cfg.ExcludePatterns[0] != "*/generated/*" {
		t.Error("EffectiveExcludeGlobs returned a view of the config slice")
	}

	cfg.IncludeTests = true
	if withTests := cfg.EffectiveExcludeGlobs(); fmt.Sprint(withTests) != "[*/generated/*]" {
		t.Errorf("globs with tests = %v", withTests)
	}
}
