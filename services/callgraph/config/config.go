// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the analyzer configuration: embedded defaults
// overlaid with an optional per-project YAML file.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Embedded Defaults
// =============================================================================

//go:embed defaults.yaml
var defaultConfigYAML []byte

// =============================================================================
// Constants
// =============================================================================

// DefaultProjectFile is the override file name looked up next to the
// analyzed sources when the caller gives no explicit path.
const DefaultProjectFile = "callgraph.yml"

// MaxConfigFileSize caps project config reads.
const MaxConfigFileSize = 1 << 20

// Extractor front-end names accepted by parsing.extractor.
const (
	// ExtractorRegex selects the line-oriented extractor.
	ExtractorRegex = "regex"

	// ExtractorTreeSitter selects the full-parse extractor.
	ExtractorTreeSitter = "treesitter"
)

// Globs appended to the exclusion set while include_tests is false.
var testFileGlobs = []string{"*Test.java", "*Tests.java"}

// ErrInvalidConfig reports a configuration that parsed but cannot be used.
// Analysis never starts on a half-applied configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// =============================================================================
// Configuration Types
// =============================================================================

// Config is the full analyzer configuration.
//
// Description:
//
//	Populated from the embedded defaults, then overlaid with any keys the
//	per-project file carries. Keys absent from the project file keep their
//	default values.
//
// Thread Safety: Immutable after Load; safe for concurrent use.
type Config struct {
	Analysis AnalysisConfig `yaml:"analysis"`
	Parsing  ParsingConfig  `yaml:"parsing"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Watch    WatchConfig    `yaml:"watch"`
}

// AnalysisConfig bounds call-tree construction.
type AnalysisConfig struct {
	// MaxDepth is the tree depth used for requests that carry none.
	MaxDepth int `yaml:"max_depth" validate:"gte=0,lte=64"`

	// Ignore lists method or class names excluded from every analysis.
	// Matching call sites produce no nodes and no method mappings.
	Ignore []string `yaml:"ignore"`

	// SuppressAccessors drops getter/setter leaves whose bodies make no
	// further calls.
	SuppressAccessors bool `yaml:"suppress_accessors"`

	// SuppressConstructors drops constructor invocation nodes.
	SuppressConstructors bool `yaml:"suppress_constructors"`

	// FrameworkCatalog optionally points at a YAML catalog merged over
	// the built-in framework methods. Empty means built-in only.
	FrameworkCatalog string `yaml:"framework_catalog"`
}

// ParsingConfig selects the extractor front-end and the files it sees.
type ParsingConfig struct {
	// Extractor is "regex" or "treesitter".
	Extractor string `yaml:"extractor" validate:"oneof=regex treesitter"`

	// IncludeTests keeps *Test.java sources in the index.
	IncludeTests bool `yaml:"include_tests"`

	// ExcludePatterns are filepath.Match globs applied to each file's
	// root-relative path and to its base name.
	ExcludePatterns []string `yaml:"exclude_patterns"`
}

// SnapshotConfig controls index persistence between runs.
type SnapshotConfig struct {
	// Enabled persists the index between runs.
	Enabled bool `yaml:"enabled"`

	// Dir is the snapshot store location. Required while Enabled.
	Dir string `yaml:"dir" validate:"required_if=Enabled true"`
}

// WatchConfig paces filesystem-triggered re-indexing.
type WatchConfig struct {
	// DebounceMillis is the quiet period after an event before rebuilding.
	DebounceMillis int `yaml:"debounce_millis" validate:"gte=0"`

	// MaxRebuildsPerMinute bounds rebuild frequency.
	MaxRebuildsPerMinute int `yaml:"max_rebuilds_per_minute" validate:"gte=1,lte=600"`
}

// =============================================================================
// Loading
// =============================================================================

var structValidator = validator.New()

// Default returns the embedded default configuration.
//
// Outputs:
//
//	*Config - The parsed defaults. Never nil on success.
//	error - Non-nil only if the embedded defaults themselves are broken.
func Default() (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultConfigYAML, &cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("embedded defaults: %w", err)
	}
	return &cfg, nil
}

// Load returns the defaults overlaid with the project file at path.
//
// Description:
//
//	A missing project file is not an error: the defaults stand and a
//	notice is logged. An unreadable, oversized, or malformed file is an
//	error, as is any file that fails validation.
//
// Inputs:
//
//	path - Project config file. Empty means defaults only.
//
// Outputs:
//
//	*Config - The effective configuration. Never nil on success.
//	error - Wraps ErrInvalidConfig for content problems.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultConfigYAML, &cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			slog.Info("project config not found, using defaults",
				slog.String("path", path))
		case err != nil:
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		default:
			if len(data) > MaxConfigFileSize {
				return nil, fmt.Errorf("%w: %s exceeds maximum size (%d > %d)",
					ErrInvalidConfig, path, len(data), MaxConfigFileSize)
			}
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
			}
			slog.Info("project config loaded", slog.String("path", path))
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate applies struct tags plus the checks tags cannot express.
func (c *Config) validate() error {
	if err := structValidator.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	for i, name := range c.Analysis.Ignore {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: analysis.ignore[%d] is empty", ErrInvalidConfig, i)
		}
		if strings.ContainsAny(name, " \t") {
			return fmt.Errorf("%w: analysis.ignore[%d] (%q) contains whitespace",
				ErrInvalidConfig, i, name)
		}
	}

	for i, pattern := range c.Parsing.ExcludePatterns {
		if pattern == "" {
			return fmt.Errorf("%w: parsing.exclude_patterns[%d] is empty", ErrInvalidConfig, i)
		}
		if _, err := filepath.Match(pattern, "probe"); err != nil {
			return fmt.Errorf("%w: parsing.exclude_patterns[%d] (%q): %v",
				ErrInvalidConfig, i, pattern, err)
		}
	}

	return nil
}

// =============================================================================
// Derived Settings
// =============================================================================

// EffectiveExcludeGlobs returns the configured exclusion globs, extended
// with the test-file globs when include_tests is false.
//
// Outputs:
//
//	[]string - A fresh slice; callers may append to it freely.
func (c *ParsingConfig) EffectiveExcludeGlobs() []string {
	globs := append([]string(nil), c.ExcludePatterns...)
	if !c.IncludeTests {
		globs = append(globs, testFileGlobs...)
	}
	return globs
}
