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
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/Morizady/javatrace/services/callgraph/tree"
)

// Archiver uploads serialized analysis runs to Google Cloud Storage.
//
// Description:
//
//	Each run becomes one gzip-compressed JSON object under
//	{prefix}/{yyyy}/{mm}/{dd}/{runID}.json.gz. The date partitioning
//	matches how retention policies and batch consumers usually slice
//	archives.
//
// Thread Safety: Safe for concurrent use. The storage client pools
// connections.
type Archiver struct {
	client  *storage.Client
	bucket  string
	prefix  string
	timeout time.Duration
	log     *slog.Logger
}

// NewArchiver builds a storage client and returns a ready-to-use archiver.
//
// Description:
//
//	Uses the configured service-account key file when set, otherwise
//	application default credentials.
//
// Inputs:
//   - ctx: Bounds credential discovery.
//   - cfg: Destination settings. Bucket must be set.
//   - logger: Destination for upload progress. Must not be nil.
//
// Outputs:
//   - *Archiver: Ready archiver. Callers own Close.
//   - error: Configuration or client-construction failure.
func NewArchiver(ctx context.Context, cfg *GCSConfig, logger *slog.Logger) (*Archiver, error) {
	if cfg == nil {
		return nil, errors.New("config must not be nil")
	}
	if logger == nil {
		return nil, errors.New("logger must not be nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid gcs config: %w", err)
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}

	return &Archiver{
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  cfg.Prefix,
		timeout: time.Duration(cfg.UploadTimeoutSeconds) * time.Second,
		log:     logger,
	}, nil
}

// Close releases the underlying storage client.
func (a *Archiver) Close() error {
	return a.client.Close()
}

// ArchiveRun uploads one serialized run and returns its object name.
//
// Description:
//
//	Compresses the run envelope, then writes it with content headers and
//	run metadata. The upload is bounded by the configured timeout. A
//	failed upload leaves no committed object.
//
// Inputs:
//   - ctx: Cancels the upload. Combined with the configured timeout.
//   - runID: The run's UUID, used in the object name and metadata.
//   - env: Serialized analysis envelope. Must not be nil.
//
// Outputs:
//   - string: The object name within the bucket.
//   - error: Validation, compression, or upload failure.
func (a *Archiver) ArchiveRun(ctx context.Context, runID string, env *tree.SerializableAnalysis) (string, error) {
	if runID == "" {
		return "", errors.New("run ID must not be empty")
	}
	if env == nil {
		return "", errors.New("envelope must not be nil")
	}

	payload, err := archivePayload(env)
	if err != nil {
		return "", err
	}
	name := objectName(a.prefix, runID, time.Now().UTC())

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	w := a.client.Bucket(a.bucket).Object(name).NewWriter(ctx)
	w.ContentType = "application/json"
	w.ContentEncoding = "gzip"
	w.Metadata = map[string]string{
		"run_id": runID,
		"entry":  env.Entry,
	}
	if _, err := w.Write(payload); err != nil {
		recordArchiveUpload("error")
		return "", fmt.Errorf("uploading %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		recordArchiveUpload("error")
		return "", fmt.Errorf("committing %s: %w", name, err)
	}

	recordArchiveUpload("ok")
	a.log.Info("run archived",
		"bucket", a.bucket,
		"object", name,
		"bytes", len(payload))
	return name, nil
}

// objectName renders the date-partitioned object name for a run.
func objectName(prefix, runID string, now time.Time) string {
	return path.Join(prefix, now.Format("2006/01/02"), runID+".json.gz")
}

// archivePayload renders the envelope as gzip-compressed JSON.
func archivePayload(env *tree.SerializableAnalysis) ([]byte, error) {
	jsonData, err := env.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshaling envelope: %w", err)
	}
	var buf bytes.Buffer
	gw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gw.Write(jsonData); err != nil {
		return nil, fmt.Errorf("compressing envelope: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}
