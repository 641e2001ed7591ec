// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package export ships completed analyses to external systems: call trees
// become Neo4j graphs, serialized runs become compressed Cloud Storage
// objects.
package export

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/awnumar/memguard"
)

// Neo4jConfig holds connection settings for the graph exporter.
//
// Description:
//
//	Loaded from environment variables via LoadNeo4jConfig(). The password
//	is sealed into a memguard enclave at load time and only decrypted for
//	the moment the driver is constructed; it never sits in a plain struct
//	field.
//
// Thread Safety: Safe to share after loading. The enclave handles its own
// synchronization.
type Neo4jConfig struct {
	// URI is the bolt or neo4j scheme address of the database.
	// Env: CALLGRAPH_NEO4J_URI (default: "bolt://localhost:7687")
	URI string

	// Username authenticates the exporter.
	// Env: CALLGRAPH_NEO4J_USER (default: "neo4j")
	Username string

	// Database selects the target database on multi-database servers.
	// Env: CALLGRAPH_NEO4J_DATABASE (default: "neo4j")
	Database string

	// password is the sealed credential. Set via LoadNeo4jConfig or
	// SetPassword; read via openPassword during driver construction.
	password *memguard.Enclave
}

// LoadNeo4jConfig reads graph-export configuration from environment
// variables.
//
// Description:
//
//	Reads CALLGRAPH_NEO4J_URI, CALLGRAPH_NEO4J_USER,
//	CALLGRAPH_NEO4J_DATABASE, and CALLGRAPH_NEO4J_PASSWORD. The password
//	variable is unset from the process environment after sealing so it
//	does not leak through /proc or child processes.
//
// Outputs:
//   - *Neo4jConfig: Populated configuration. Call validate before use.
func LoadNeo4jConfig() *Neo4jConfig {
	cfg := &Neo4jConfig{
		URI:      envStr("CALLGRAPH_NEO4J_URI", "bolt://localhost:7687"),
		Username: envStr("CALLGRAPH_NEO4J_USER", "neo4j"),
		Database: envStr("CALLGRAPH_NEO4J_DATABASE", "neo4j"),
	}
	if pw := os.Getenv("CALLGRAPH_NEO4J_PASSWORD"); pw != "" {
		cfg.SetPassword(pw)
		os.Unsetenv("CALLGRAPH_NEO4J_PASSWORD")
	}
	return cfg
}

// SetPassword seals a credential obtained outside the environment, such as
// a CLI flag or a prompt.
func (c *Neo4jConfig) SetPassword(pw string) {
	c.password = memguard.NewEnclave([]byte(pw))
}

// HasPassword reports whether a credential has been sealed.
func (c *Neo4jConfig) HasPassword() bool {
	return c.password != nil
}

// openPassword decrypts the sealed credential into a transient string.
// The driver keeps its own copy for connection handshakes, so the locked
// buffer is destroyed before returning.
func (c *Neo4jConfig) openPassword() (string, error) {
	if c.password == nil {
		return "", errors.New("no password configured")
	}
	buf, err := c.password.Open()
	if err != nil {
		return "", fmt.Errorf("opening credential enclave: %w", err)
	}
	pw := string(buf.Bytes())
	buf.Destroy()
	return pw, nil
}

// validate checks that the configuration can produce a working driver.
func (c *Neo4jConfig) validate() error {
	if c.URI == "" {
		return errors.New("neo4j URI is required")
	}
	if c.Username == "" {
		return errors.New("neo4j username is required")
	}
	if c.password == nil {
		return errors.New("neo4j password is required")
	}
	return nil
}

// GCSConfig holds settings for the run archiver.
//
// Description:
//
//	Loaded from environment variables via LoadGCSConfig(). Credentials
//	come from a service-account key file when CredentialsFile is set,
//	otherwise from application default credentials.
//
// Thread Safety: GCSConfig is a value type. Safe to copy and share after
// loading.
type GCSConfig struct {
	// Bucket is the destination bucket name. Archiving is disabled when
	// empty.
	// Env: CALLGRAPH_GCS_BUCKET (default: "")
	Bucket string

	// Prefix is the object-name prefix under which runs are stored.
	// Env: CALLGRAPH_GCS_PREFIX (default: "callgraph/runs")
	Prefix string

	// CredentialsFile points at a service-account JSON key. Empty means
	// application default credentials.
	// Env: CALLGRAPH_GCS_CREDENTIALS_FILE (default: "")
	CredentialsFile string

	// UploadTimeoutSeconds bounds a single object upload.
	// Env: CALLGRAPH_GCS_UPLOAD_TIMEOUT_SECONDS (default: 30)
	UploadTimeoutSeconds int
}

// LoadGCSConfig reads archiver configuration from environment variables.
func LoadGCSConfig() *GCSConfig {
	return &GCSConfig{
		Bucket:               envStr("CALLGRAPH_GCS_BUCKET", ""),
		Prefix:               envStr("CALLGRAPH_GCS_PREFIX", "callgraph/runs"),
		CredentialsFile:      envStr("CALLGRAPH_GCS_CREDENTIALS_FILE", ""),
		UploadTimeoutSeconds: envInt("CALLGRAPH_GCS_UPLOAD_TIMEOUT_SECONDS", 30),
	}
}

// validate checks that the configuration names a destination.
func (c *GCSConfig) validate() error {
	if c.Bucket == "" {
		return errors.New("gcs bucket is required")
	}
	if c.UploadTimeoutSeconds <= 0 {
		return errors.New("gcs upload timeout must be positive")
	}
	return nil
}

// envStr reads a string environment variable with a default value.
func envStr(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// envInt reads an integer environment variable with a default value.
func envInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}
