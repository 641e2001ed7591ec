// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package snapshot

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/Morizady/javatrace/services/callgraph/index"
	"github.com/Morizady/javatrace/services/callgraph/java"
)

func newTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("opening in-memory badger: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	store, err := NewStore(newTestDB(t), logger)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	return store
}

func snapshotSourceFile(path, pkg string, classes ...java.ClassModel) *java.SourceFile {
	for i := range classes {
		classes[i].Package = pkg
		classes[i].SourcePath = path
		for j := range classes[i].Methods {
			classes[i].Methods[j].Class = classes[i].Name
			classes[i].Methods[j].SourcePath = path
		}
	}
	return &java.SourceFile{
		Path:    path,
		Package: pkg,
		Imports: java.NewImportTable(),
		Classes: classes,
	}
}

func orderIndex(t *testing.T) *index.ProjectIndex {
	t.Helper()
	idx := index.NewProjectIndex()
	files := []*java.SourceFile{
		snapshotSourceFile("src/OrderService.java", "com.example.order",
			java.ClassModel{
				Name:       "OrderService",
				Interfaces: []string{"IOrderService"},
				Methods: []java.MethodModel{
					{Name: "loadOrder", Line: 10, CallSites: []java.CallSite{
						{Receiver: "orderMapper", Method: "selectById", Kind: java.CallInstance, Line: 11},
					}},
				},
			}),
		snapshotSourceFile("src/IOrderService.java", "com.example.order",
			java.ClassModel{
				Name:        "IOrderService",
				IsInterface: true,
				Methods:     []java.MethodModel{{Name: "loadOrder", Line: 5}},
			}),
	}
	if err := idx.AddBatch(files); err != nil {
		t.Fatalf("building index: %v", err)
	}
	idx.Freeze()
	return idx
}

func TestNewStore_Validation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if _, err := NewStore(nil, logger); err == nil {
		t.Error("expected error for nil db")
	}
	if _, err := NewStore(newTestDB(t), nil); err == nil {
		t.Error("expected error for nil logger")
	}
}

func TestStore_Save_Validation(t *testing.T) {
	store := newTestStore(t)
	idx := orderIndex(t)

	if _, err := store.Save(nil, idx, "/repo/shop", ""); err == nil { //nolint:staticcheck // testing nil ctx
		t.Error("expected error for nil ctx")
	}
	if _, err := store.Save(context.Background(), nil, "/repo/shop", ""); err == nil {
		t.Error("expected error for nil index")
	}
	if _, err := store.Save(context.Background(), idx, "", ""); err == nil {
		t.Error("expected error for empty project root")
	}
}

func TestStore_SaveLoad_Roundtrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	idx := orderIndex(t)

	meta, err := store.Save(ctx, idx, "/repo/shop", "baseline")
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if len(meta.SnapshotID) != 16 {
		t.Errorf("snapshot ID length = %d, want 16", len(meta.SnapshotID))
	}
	if meta.ProjectHash != ProjectHash("/repo/shop") {
		t.Errorf("project hash = %q, want %q", meta.ProjectHash, ProjectHash("/repo/shop"))
	}
	if meta.Label != "baseline" {
		t.Errorf("label = %q, want baseline", meta.Label)
	}
	if meta.SchemaVersion != index.IndexSchemaVersion {
		t.Errorf("schema version = %q, want %q", meta.SchemaVersion, index.IndexSchemaVersion)
	}
	stats := idx.Stats()
	if meta.Files != stats.FileCount || meta.Classes != stats.TotalClasses ||
		meta.Methods != stats.TotalMethods || meta.CallSites != stats.TotalCallSites {
		t.Errorf("counters = %d/%d/%d/%d, want %d/%d/%d/%d",
			meta.Files, meta.Classes, meta.Methods, meta.CallSites,
			stats.FileCount, stats.TotalClasses, stats.TotalMethods, stats.TotalCallSites)
	}
	if meta.ContentHash == "" || meta.CompressedSize <= 0 {
		t.Errorf("payload fields not populated: hash=%q size=%d", meta.ContentHash, meta.CompressedSize)
	}

	loaded, loadedMeta, err := store.Load(ctx, meta.SnapshotID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loadedMeta.SnapshotID != meta.SnapshotID {
		t.Errorf("loaded snapshot ID = %q, want %q", loadedMeta.SnapshotID, meta.SnapshotID)
	}
	if _, ok := loaded.Class("com.example.order.OrderService"); !ok {
		t.Error("loaded index missing OrderService")
	}
	if _, ok := loaded.Class("com.example.order.IOrderService"); !ok {
		t.Error("loaded index missing IOrderService")
	}
	loadedStats := loaded.Stats()
	if loadedStats.TotalCallSites != stats.TotalCallSites {
		t.Errorf("loaded call sites = %d, want %d", loadedStats.TotalCallSites, stats.TotalCallSites)
	}

	// Rebuilt snapshots come back frozen.
	err = loaded.AddFile(snapshotSourceFile("src/X.java", "p", java.ClassModel{Name: "X"}))
	if !errors.Is(err, index.ErrIndexFrozen) {
		t.Errorf("AddFile on loaded index = %v, want ErrIndexFrozen", err)
	}
}

func TestStore_Load_UnknownID(t *testing.T) {
	store := newTestStore(t)
	_, _, err := store.Load(context.Background(), "deadbeefdeadbeef")
	if !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("error = %v, want ErrSnapshotNotFound", err)
	}
}

func TestStore_LoadLatest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	idx := orderIndex(t)

	first, err := store.Save(ctx, idx, "/repo/shop", "first")
	if err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	second, err := store.Save(ctx, idx, "/repo/shop", "second")
	if err != nil {
		t.Fatalf("second save failed: %v", err)
	}
	if first.SnapshotID == second.SnapshotID {
		t.Fatal("expected distinct snapshot IDs")
	}

	_, meta, err := store.LoadLatest(ctx, ProjectHash("/repo/shop"))
	if err != nil {
		t.Fatalf("load latest failed: %v", err)
	}
	if meta.SnapshotID != second.SnapshotID {
		t.Errorf("latest = %q, want %q", meta.SnapshotID, second.SnapshotID)
	}
}

func TestStore_LoadLatest_UnknownProject(t *testing.T) {
	store := newTestStore(t)
	_, _, err := store.LoadLatest(context.Background(), ProjectHash("/repo/nowhere"))
	if !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("error = %v, want ErrSnapshotNotFound", err)
	}
}

func TestStore_List(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	idx := orderIndex(t)

	var shopIDs []string
	for _, label := range []string{"a", "b"} {
		meta, err := store.Save(ctx, idx, "/repo/shop", label)
		if err != nil {
			t.Fatalf("save %s failed: %v", label, err)
		}
		shopIDs = append(shopIDs, meta.SnapshotID)
		time.Sleep(2 * time.Millisecond)
	}
	if _, err := store.Save(ctx, idx, "/repo/billing", ""); err != nil {
		t.Fatalf("save billing failed: %v", err)
	}

	all, err := store.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("list all failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("list all returned %d entries, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].CreatedAtMilli < all[i].CreatedAtMilli {
			t.Errorf("list not sorted newest first at %d", i)
		}
	}

	shop, err := store.List(ctx, ProjectHash("/repo/shop"), 0)
	if err != nil {
		t.Fatalf("list shop failed: %v", err)
	}
	if len(shop) != 2 {
		t.Fatalf("list shop returned %d entries, want 2", len(shop))
	}
	if shop[0].SnapshotID != shopIDs[1] || shop[1].SnapshotID != shopIDs[0] {
		t.Errorf("shop order = [%s %s], want [%s %s]",
			shop[0].SnapshotID, shop[1].SnapshotID, shopIDs[1], shopIDs[0])
	}

	limited, err := store.List(ctx, "", 1)
	if err != nil {
		t.Fatalf("list limited failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limited list returned %d entries, want 1", len(limited))
	}
}

func TestStore_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	idx := orderIndex(t)

	older, err := store.Save(ctx, idx, "/repo/shop", "older")
	if err != nil {
		t.Fatalf("save older failed: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	latest, err := store.Save(ctx, idx, "/repo/shop", "latest")
	if err != nil {
		t.Fatalf("save latest failed: %v", err)
	}

	// Deleting a non-latest snapshot keeps the latest pointer.
	if err := store.Delete(ctx, older.SnapshotID); err != nil {
		t.Fatalf("delete older failed: %v", err)
	}
	if _, _, err := store.Load(ctx, older.SnapshotID); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("load deleted = %v, want ErrSnapshotNotFound", err)
	}
	_, meta, err := store.LoadLatest(ctx, ProjectHash("/repo/shop"))
	if err != nil {
		t.Fatalf("load latest after partial delete failed: %v", err)
	}
	if meta.SnapshotID != latest.SnapshotID {
		t.Errorf("latest after delete = %q, want %q", meta.SnapshotID, latest.SnapshotID)
	}

	// Deleting the latest snapshot clears the pointer.
	if err := store.Delete(ctx, latest.SnapshotID); err != nil {
		t.Fatalf("delete latest failed: %v", err)
	}
	if _, _, err := store.LoadLatest(ctx, ProjectHash("/repo/shop")); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("load latest after full delete = %v, want ErrSnapshotNotFound", err)
	}
}

func TestStore_Delete_Unknown(t *testing.T) {
	store := newTestStore(t)
	err := store.Delete(context.Background(), "deadbeefdeadbeef")
	if !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("error = %v, want ErrSnapshotNotFound", err)
	}
}

func TestStore_Load_CorruptPayload(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	meta, err := store.Save(ctx, orderIndex(t), "/repo/shop", "")
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	dataKey := keyPrefixSnap + meta.ProjectHash + ":" + meta.SnapshotID + keySuffixData
	err = store.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(dataKey), []byte("not gzip data"))
	})
	if err != nil {
		t.Fatalf("corrupting payload failed: %v", err)
	}

	_, _, err = store.Load(ctx, meta.SnapshotID)
	if err == nil {
		t.Fatal("expected error for corrupt payload")
	}
	if !strings.Contains(err.Error(), "integrity check failed") {
		t.Errorf("error = %v, want integrity check failure", err)
	}
}
