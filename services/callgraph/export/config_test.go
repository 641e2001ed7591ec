// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package export

import (
	"os"
	"testing"
)

func TestLoadNeo4jConfig_Defaults(t *testing.T) {
	t.Setenv("CALLGRAPH_NEO4J_URI", "")
	t.Setenv("CALLGRAPH_NEO4J_USER", "")
	t.Setenv("CALLGRAPH_NEO4J_DATABASE", "")
	t.Setenv("CALLGRAPH_NEO4J_PASSWORD", "")

	cfg := LoadNeo4jConfig()
	if cfg.URI != "bolt://localhost:7687" {
		t.Errorf("URI = %q", cfg.URI)
	}
	if cfg.Username != "neo4j" || cfg.Database != "neo4j" {
		t.Errorf("Username = %q, Database = %q", cfg.Username, cfg.Database)
	}
	if cfg.HasPassword() {
		t.Error("password sealed from empty environment")
	}
}

func TestLoadNeo4jConfig_SealsAndScrubsPassword(t *testing.T) {
	t.Setenv("CALLGRAPH_NEO4J_URI", "neo4j://graph.internal:7687")
	t.Setenv("CALLGRAPH_NEO4J_USER", "exporter")
	t.Setenv("CALLGRAPH_NEO4J_DATABASE", "callgraphs")
	t.Setenv("CALLGRAPH_NEO4J_PASSWORD", "hunter2")

	cfg := LoadNeo4jConfig()
	if cfg.URI != "neo4j://graph.internal:7687" || cfg.Username != "exporter" ||
		cfg.Database != "callgraphs" {
		t.Errorf("cfg = %+v", cfg)
	}
	if !cfg.HasPassword() {
		t.Fatal("password not sealed")
	}
	if got := os.Getenv("CALLGRAPH_NEO4J_PASSWORD"); got != "" {
		t.Errorf("password still in environment: %q", got)
	}

	pw, err := cfg.openPassword()
	if err != nil {
		t.Fatalf("openPassword: %v", err)
	}
	if pw != "hunter2" {
		t.Errorf("password = %q", pw)
	}
}

// The enclave survives repeated opens, so retried handshakes work.
func TestNeo4jConfig_OpenPasswordTwice(t *testing.T) {
	cfg := &Neo4jConfig{}
	cfg.SetPassword("secret")

	for i := 0; i < 2; i++ {
		pw, err := cfg.openPassword()
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		if pw != "secret" {
			t.Errorf("open %d = %q", i, pw)
		}
	}
}

func TestNeo4jConfig_Validate(t *testing.T) {
	full := func() *Neo4jConfig {
		cfg := &Neo4jConfig{URI: "bolt://localhost:7687", Username: "neo4j", Database: "neo4j"}
		cfg.SetPassword("pw")
		return cfg
	}

	if err := full().validate(); err != nil {
		t.Errorf("complete config rejected: %v", err)
	}

	cfg := full()
	cfg.URI = ""
	if cfg.validate() == nil {
		t.Error("empty URI accepted")
	}

	cfg = full()
	cfg.Username = ""
	if cfg.validate() == nil {
		t.Error("empty username accepted")
	}

	cfg = full()
	cfg.password = nil
	if cfg.validate() == nil {
		t.Error("missing password accepted")
	}
}

func TestLoadGCSConfig_Defaults(t *testing.T) {
	t.Setenv("CALLGRAPH_GCS_BUCKET", "")
	t.Setenv("CALLGRAPH_GCS_PREFIX", "")
	t.Setenv("CALLGRAPH_GCS_CREDENTIALS_FILE", "")
	t.Setenv("CALLGRAPH_GCS_UPLOAD_TIMEOUT_SECONDS", "")

	cfg := LoadGCSConfig()
	if cfg.Bucket != "" || cfg.Prefix != "callgraph/runs" || cfg.CredentialsFile != "" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.UploadTimeoutSeconds != 30 {
		t.Errorf("UploadTimeoutSeconds = %d", cfg.UploadTimeoutSeconds)
	}
}

func TestLoadGCSConfig_Overrides(t *testing.T) {
	t.Setenv("CALLGRAPH_GCS_BUCKET", "acme-callgraphs")
	t.Setenv("CALLGRAPH_GCS_PREFIX", "archives/v2")
	t.Setenv("CALLGRAPH_GCS_CREDENTIALS_FILE", "/etc/gcs/key.json")
	t.Setenv("CALLGRAPH_GCS_UPLOAD_TIMEOUT_SECONDS", "120")

	cfg := LoadGCSConfig()
	if cfg.Bucket != "acme-callgraphs" || cfg.Prefix != "archives/v2" ||
		cfg.CredentialsFile != "/etc/gcs/key.json" || cfg.UploadTimeoutSeconds != 120 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadGCSConfig_MalformedTimeoutFallsBack(t *testing.T) {
	t.Setenv("CALLGRAPH_GCS_UPLOAD_TIMEOUT_SECONDS", "soon")

	if cfg := LoadGCSConfig(); cfg.UploadTimeoutSeconds != 30 {
		t.Errorf("UploadTimeoutSeconds = %d", cfg.UploadTimeoutSeconds)
	}
}

func TestGCSConfig_Validate(t *testing.T) {
	ok := &GCSConfig{Bucket: "b", Prefix: "p", UploadTimeoutSeconds: 30}
	if err := ok.validate(); err != nil {
		t.Errorf("complete config rejected: %v", err)
	}
	if (&GCSConfig{UploadTimeoutSeconds: 30}).validate() == nil {
		t.Error("empty bucket accepted")
	}
	if (&GCSConfig{Bucket: "b"}).validate() == nil {
		t.Error("zero timeout accepted")
	}
}
