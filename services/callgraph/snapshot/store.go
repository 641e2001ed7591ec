// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package snapshot persists project indexes to BadgerDB and diffs them.
//
// A snapshot is the serialized index, gzip-compressed and content-hashed,
// stored alongside metadata for listing. Projects are grouped by a hash of
// their root path; each project keeps a "latest" pointer.
package snapshot

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/Morizady/javatrace/services/callgraph/index"
)

// BadgerDB key schema.
//
//	index:snap:{projectHash}:{snapshotID}:data → gzip(JSON(SerializableIndex))
//	index:snap:{projectHash}:{snapshotID}:meta → JSON(Metadata)
//	index:snap:{projectHash}:latest            → snapshotID
//	index:snap:id:{snapshotID}                 → projectHash
const (
	keyPrefixSnap    = "index:snap:"
	keyPrefixSnapID  = "index:snap:id:"
	keySuffixData    = ":data"
	keySuffixMeta    = ":meta"
	keySuffixLatest  = ":latest"
	defaultListLimit = 100
)

// ErrSnapshotNotFound is returned when no snapshot matches the requested
// ID or project.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Metadata describes one saved index snapshot.
type Metadata struct {
	// SnapshotID identifies the snapshot. Derived from
	// SHA256(ProjectRoot:CreatedAtMilli)[:16].
	SnapshotID string `json:"snapshot_id"`

	// ProjectRoot is the analyzed source tree's root path.
	ProjectRoot string `json:"project_root"`

	// ProjectHash is SHA256(ProjectRoot)[:16], the key grouping prefix.
	ProjectHash string `json:"project_hash"`

	// Label is an optional human-readable label.
	Label string `json:"label,omitempty"`

	// CreatedAtMilli is when the snapshot was saved (Unix milliseconds).
	CreatedAtMilli int64 `json:"created_at_milli"`

	// Files, Classes, Methods, and CallSites mirror the index counters.
	Files     int `json:"files"`
	Classes   int `json:"classes"`
	Methods   int `json:"methods"`
	CallSites int `json:"call_sites"`

	// SchemaVersion is the index serialization schema version.
	SchemaVersion string `json:"schema_version"`

	// CompressedSize is the gzip payload size in bytes.
	CompressedSize int64 `json:"compressed_size"`

	// ContentHash is the SHA-256 of the compressed payload.
	ContentHash string `json:"content_hash"`
}

// Store saves and loads index snapshots in BadgerDB.
//
// Description:
//
//	Snapshots are written in a single transaction: payload, metadata, the
//	project's latest pointer, and a reverse index from snapshot ID to
//	project. Loads verify the content hash before decompressing.
//
// Thread Safety: Safe for concurrent use; BadgerDB handles concurrency.
type Store struct {
	db  *badger.DB
	log *slog.Logger
}

// OpenDB opens the snapshot BadgerDB at dir with internal logging silenced.
// The caller owns the returned handle and must Close it.
func OpenDB(dir string) (*badger.DB, error) {
	if dir == "" {
		return nil, fmt.Errorf("snapshot dir must not be empty")
	}
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("opening snapshot store at %s: %w", dir, err)
	}
	return db, nil
}

// NewStore creates a Store over an opened BadgerDB.
//
// Inputs:
//
//	db - An opened BadgerDB. Must not be nil. The caller closes it.
//	logger - Logger for diagnostics. Must not be nil.
//
// Outputs:
//
//	*Store - The configured store.
//	error - Non-nil if db or logger is nil.
func NewStore(db *badger.DB, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("badger db must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &Store{db: db, log: logger}, nil
}

// Save persists an index snapshot.
//
// Description:
//
//	Serializes the index, compresses it, and stores payload plus metadata
//	in one transaction. The project's latest pointer moves to the new
//	snapshot.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//	idx - The index to snapshot. Must not be nil; snapshot frozen indexes.
//	projectRoot - The analyzed tree's root path. Must not be empty.
//	label - Optional human-readable label.
//
// Outputs:
//
//	*Metadata - Metadata for the saved snapshot.
//	error - Non-nil if serialization or storage fails.
func (s *Store) Save(ctx context.Context, idx *index.ProjectIndex, projectRoot, label string) (*Metadata, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if idx == nil {
		return nil, fmt.Errorf("index must not be nil")
	}
	if projectRoot == "" {
		return nil, fmt.Errorf("project root must not be empty")
	}

	jsonData, err := json.Marshal(idx.ToSerializable())
	if err != nil {
		return nil, fmt.Errorf("marshaling index: %w", err)
	}

	var compressed bytes.Buffer
	gw, err := gzip.NewWriterLevel(&compressed, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gw.Write(jsonData); err != nil {
		return nil, fmt.Errorf("compressing index: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}
	payload := compressed.Bytes()

	stats := idx.Stats()
	createdAt := time.Now().UnixMilli()
	projectHash := ProjectHash(projectRoot)
	snapshotID := hashString(fmt.Sprintf("%s:%d", projectRoot, createdAt))[:16]

	meta := &Metadata{
		SnapshotID:     snapshotID,
		ProjectRoot:    projectRoot,
		ProjectHash:    projectHash,
		Label:          label,
		CreatedAtMilli: createdAt,
		Files:          stats.FileCount,
		Classes:        stats.TotalClasses,
		Methods:        stats.TotalMethods,
		CallSites:      stats.TotalCallSites,
		SchemaVersion:  index.IndexSchemaVersion,
		CompressedSize: int64(len(payload)),
		ContentHash:    hashBytes(payload),
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}

	dataKey := keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixData
	metaKey := keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixMeta
	latestKey := keyPrefixSnap + projectHash + keySuffixLatest
	idKey := keyPrefixSnapID + snapshotID

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(dataKey), payload); err != nil {
			return fmt.Errorf("storing data: %w", err)
		}
		if err := txn.Set([]byte(metaKey), metaJSON); err != nil {
			return fmt.Errorf("storing metadata: %w", err)
		}
		if err := txn.Set([]byte(latestKey), []byte(snapshotID)); err != nil {
			return fmt.Errorf("updating latest pointer: %w", err)
		}
		if err := txn.Set([]byte(idKey), []byte(projectHash)); err != nil {
			return fmt.Errorf("storing reverse index: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("writing snapshot: %w", err)
	}

	s.log.Info("index snapshot saved",
		slog.String("snapshot_id", snapshotID),
		slog.String("project_root", projectRoot),
		slog.Int("classes", meta.Classes),
		slog.Int("files", meta.Files),
		slog.Int64("compressed_size", meta.CompressedSize),
	)

	return meta, nil
}

// Load retrieves a snapshot by ID and rebuilds its index.
//
// Outputs:
//
//	*index.ProjectIndex - The rebuilt, frozen index.
//	*Metadata - The snapshot metadata.
//	error - Wraps ErrSnapshotNotFound for unknown IDs; other errors for
//	  corruption or schema mismatches.
func (s *Store) Load(ctx context.Context, snapshotID string) (*index.ProjectIndex, *Metadata, error) {
	if ctx == nil {
		return nil, nil, fmt.Errorf("ctx must not be nil")
	}
	if snapshotID == "" {
		return nil, nil, fmt.Errorf("snapshot ID must not be empty")
	}

	projectHash, err := s.projectHashOf(snapshotID)
	if err != nil {
		return nil, nil, err
	}
	return s.loadByKeys(projectHash, snapshotID)
}

// LoadLatest loads the most recent snapshot for a project hash.
func (s *Store) LoadLatest(ctx context.Context, projectHash string) (*index.ProjectIndex, *Metadata, error) {
	if ctx == nil {
		return nil, nil, fmt.Errorf("ctx must not be nil")
	}
	if projectHash == "" {
		return nil, nil, fmt.Errorf("project hash must not be empty")
	}

	latestKey := keyPrefixSnap + projectHash + keySuffixLatest
	var snapshotID string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(latestKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			snapshotID = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil, fmt.Errorf("%w: no snapshots for project %s", ErrSnapshotNotFound, projectHash)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading latest pointer for %s: %w", projectHash, err)
	}

	return s.loadByKeys(projectHash, snapshotID)
}

// List returns snapshot metadata, newest first.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//	projectHash - Optional filter; empty lists every project.
//	limit - Maximum results; values <= 0 mean 100.
func (s *Store) List(ctx context.Context, projectHash string, limit int) ([]*Metadata, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	prefix := keyPrefixSnap
	if projectHash != "" {
		prefix = keyPrefixSnap + projectHash + ":"
	}

	var results []*Metadata
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(prefix)); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			if !isMetaKey(key) {
				continue
			}

			var meta Metadata
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &meta)
			})
			if err != nil {
				s.log.Warn("skipping corrupt snapshot metadata",
					slog.String("key", key), slog.Any("error", err))
				continue
			}
			results = append(results, &meta)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].CreatedAtMilli != results[j].CreatedAtMilli {
			return results[i].CreatedAtMilli > results[j].CreatedAtMilli
		}
		return results[i].SnapshotID < results[j].SnapshotID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Delete removes a snapshot and, when it was the project's latest, the
// latest pointer with it.
func (s *Store) Delete(ctx context.Context, snapshotID string) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}
	if snapshotID == "" {
		return fmt.Errorf("snapshot ID must not be empty")
	}

	projectHash, err := s.projectHashOf(snapshotID)
	if err != nil {
		return err
	}

	dataKey := keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixData
	metaKey := keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixMeta
	latestKey := keyPrefixSnap + projectHash + keySuffixLatest
	idKey := keyPrefixSnapID + snapshotID

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, key := range []string{dataKey, metaKey, idKey} {
			if err := txn.Delete([]byte(key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("deleting %s: %w", key, err)
			}
		}

		item, err := txn.Get([]byte(latestKey))
		if err == nil {
			var currentLatest string
			_ = item.Value(func(val []byte) error {
				currentLatest = string(val)
				return nil
			})
			if currentLatest == snapshotID {
				if err := txn.Delete([]byte(latestKey)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
					return fmt.Errorf("deleting latest pointer: %w", err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting snapshot %s: %w", snapshotID, err)
	}

	s.log.Info("index snapshot deleted", slog.String("snapshot_id", snapshotID))
	return nil
}

// loadByKeys reads, verifies, and rebuilds one snapshot.
func (s *Store) loadByKeys(projectHash, snapshotID string) (*index.ProjectIndex, *Metadata, error) {
	dataKey := keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixData
	metaKey := keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixMeta

	var payload, metaJSON []byte
	err := s.db.View(func(txn *badger.Txn) error {
		dataItem, err := txn.Get([]byte(dataKey))
		if err != nil {
			return fmt.Errorf("reading data for %s: %w", snapshotID, err)
		}
		payload, err = dataItem.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("copying data for %s: %w", snapshotID, err)
		}

		metaItem, err := txn.Get([]byte(metaKey))
		if err != nil {
			return fmt.Errorf("reading metadata for %s: %w", snapshotID, err)
		}
		metaJSON, err = metaItem.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("copying metadata for %s: %w", snapshotID, err)
		}
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, snapshotID)
	}
	if err != nil {
		return nil, nil, err
	}

	var meta Metadata
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, nil, fmt.Errorf("unmarshaling metadata for %s: %w", snapshotID, err)
	}
	if meta.ContentHash != "" && meta.ContentHash != hashBytes(payload) {
		return nil, nil, fmt.Errorf("integrity check failed for %s: stored hash %s does not match payload",
			snapshotID, meta.ContentHash)
	}

	gr, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("decompressing snapshot %s: %w", snapshotID, err)
	}
	defer gr.Close()

	jsonData, err := io.ReadAll(gr)
	if err != nil {
		return nil, nil, fmt.Errorf("reading decompressed data for %s: %w", snapshotID, err)
	}

	var serial index.SerializableIndex
	if err := json.Unmarshal(jsonData, &serial); err != nil {
		return nil, nil, fmt.Errorf("unmarshaling index for %s: %w", snapshotID, err)
	}

	idx, err := index.FromSerializable(&serial)
	if err != nil {
		return nil, nil, fmt.Errorf("rebuilding index for %s: %w", snapshotID, err)
	}
	return idx, &meta, nil
}

// projectHashOf resolves a snapshot ID to its project hash.
func (s *Store) projectHashOf(snapshotID string) (string, error) {
	idKey := keyPrefixSnapID + snapshotID
	var projectHash string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(idKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			projectHash = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", fmt.Errorf("%w: %s", ErrSnapshotNotFound, snapshotID)
	}
	if err != nil {
		return "", fmt.Errorf("looking up snapshot %s: %w", snapshotID, err)
	}
	return projectHash, nil
}

// ProjectHash returns SHA256(projectRoot)[:16], the grouping key for a
// project's snapshots. Exported so boundaries can translate a root path
// into the stored hash.
func ProjectHash(projectRoot string) string {
	return hashString(projectRoot)[:16]
}

func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// isMetaKey reports whether the key is a metadata entry.
func isMetaKey(key string) bool {
	return len(key) > len(keySuffixMeta) && key[len(key)-len(keySuffixMeta):] == keySuffixMeta
}
