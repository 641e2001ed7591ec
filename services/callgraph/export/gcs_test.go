// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package export

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/Morizady/javatrace/services/callgraph/tree"
)

func TestObjectName_DatePartitioned(t *testing.T) {
	at := time.Date(2026, 8, 23, 10, 30, 0, 0, time.UTC)

	got := objectName("callgraph/runs", "run-1", at)
	if got != "callgraph/runs/2026/08/23/run-1.json.gz" {
		t.Errorf("objectName = %q", got)
	}
}

func TestObjectName_EmptyPrefix(t *testing.T) {
	at := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	if got := objectName("", "run-9", at); got != "2026/01/02/run-9.json.gz" {
		t.Errorf("objectName = %q", got)
	}
}

func TestArchivePayload_CompressedEnvelope(t *testing.T) {
	ana := &tree.Analysis{Root: exportTree()}
	env := ana.ToSerializable(3)

	payload, err := archivePayload(env)
	if err != nil {
		t.Fatalf("archivePayload: %v", err)
	}

	gr, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("payload is not gzip: %v", err)
	}
	raw, err := io.ReadAll(gr)
	if err != nil {
		t.Fatalf("decompressing: %v", err)
	}

	var got tree.SerializableAnalysis
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got.Entry != "OrderController.getOrder" || got.MaxDepth != 3 {
		t.Errorf("envelope = %q maxDepth=%d", got.Entry, got.MaxDepth)
	}
	if got.Root == nil || got.Root.Method != "getOrder" {
		t.Errorf("root lost in payload: %+v", got.Root)
	}
}

func TestNewArchiver_Validation(t *testing.T) {
	ctx := context.Background()
	log := testLogger()

	if _, err := NewArchiver(ctx, nil, log); err == nil {
		t.Error("nil config accepted")
	}

	cfg := &GCSConfig{Bucket: "b", Prefix: "p", UploadTimeoutSeconds: 30}
	if _, err := NewArchiver(ctx, cfg, nil); err == nil {
		t.Error("nil logger accepted")
	}

	if _, err := NewArchiver(ctx, &GCSConfig{UploadTimeoutSeconds: 30}, log); err == nil {
		t.Error("empty bucket accepted")
	}
	if _, err := NewArchiver(ctx, &GCSConfig{Bucket: "b"}, log); err == nil {
		t.Error("zero timeout accepted")
	}
}
