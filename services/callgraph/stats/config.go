// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stats streams analysis-run statistics to InfluxDB.
package stats

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/awnumar/memguard"
)

// InfluxConfig holds connection settings for the run-stats sink.
//
// The token is sealed into a memguard enclave at load time, the same
// handling the graph exporter gives the Neo4j password.
type InfluxConfig struct {
	// URL is the InfluxDB server address.
	// Env: CALLGRAPH_INFLUX_URL (default: "http://localhost:8086")
	URL string

	// Org is the InfluxDB organization.
	// Env: CALLGRAPH_INFLUX_ORG (default: "javatrace")
	Org string

	// Bucket receives the run measurements.
	// Env: CALLGRAPH_INFLUX_BUCKET (default: "analysis_runs")
	Bucket string

	// BatchSize is the non-blocking write API's batch size.
	// Env: CALLGRAPH_INFLUX_BATCH_SIZE (default: 20)
	BatchSize int

	token *memguard.Enclave
}

// LoadInfluxConfig reads sink configuration from environment variables.
// The token variable is unset from the process environment after sealing.
func LoadInfluxConfig() *InfluxConfig {
	cfg := &InfluxConfig{
		URL:       envStr("CALLGRAPH_INFLUX_URL", "http://localhost:8086"),
		Org:       envStr("CALLGRAPH_INFLUX_ORG", "javatrace"),
		Bucket:    envStr("CALLGRAPH_INFLUX_BUCKET", "analysis_runs"),
		BatchSize: envInt("CALLGRAPH_INFLUX_BATCH_SIZE", 20),
	}
	if tok := os.Getenv("CALLGRAPH_INFLUX_TOKEN"); tok != "" {
		cfg.SetToken(tok)
		os.Unsetenv("CALLGRAPH_INFLUX_TOKEN")
	}
	return cfg
}

// SetToken seals a token obtained outside the environment.
func (c *InfluxConfig) SetToken(tok string) {
	c.token = memguard.NewEnclave([]byte(tok))
}

// HasToken reports whether a token has been sealed.
func (c *InfluxConfig) HasToken() bool {
	return c.token != nil
}

// openToken decrypts the sealed token into a transient string for client
// construction.
func (c *InfluxConfig) openToken() (string, error) {
	if c.token == nil {
		return "", errors.New("no token configured")
	}
	buf, err := c.token.Open()
	if err != nil {
		return "", fmt.Errorf("opening token enclave: %w", err)
	}
	tok := string(buf.Bytes())
	buf.Destroy()
	return tok, nil
}

func (c *InfluxConfig) validate() error {
	if c.URL == "" {
		return errors.New("influx URL is required")
	}
	if c.Org == "" || c.Bucket == "" {
		return errors.New("influx org and bucket are required")
	}
	if c.token == nil {
		return errors.New("influx token is required")
	}
	if c.BatchSize <= 0 {
		return errors.New("influx batch size must be positive")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

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
