// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package callgraph

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Morizady/javatrace/services/callgraph/index"
	"github.com/Morizady/javatrace/services/callgraph/snapshot"
)

// requireStore writes the 503 response when snapshots are not configured
// and reports whether the caller may proceed.
func (h *Handlers) requireStore(c *gin.Context) bool {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "snapshot store not configured",
			Code:  "SNAPSHOTS_NOT_AVAILABLE",
		})
		return false
	}
	return true
}

// SaveSnapshotRequest names the snapshot being saved.
type SaveSnapshotRequest struct {
	// Label is an optional human-readable label, e.g. "pre-refactor".
	Label string `json:"label"`
}

// HandleSaveSnapshot handles POST /v1/callgraph/snapshots.
//
// Description:
//
//	Persists the current index under the server's project root and
//	returns the snapshot metadata.
//
// Request Body:
//
//	SaveSnapshotRequest (label optional; an empty body is accepted)
//
// Response:
//
//	201 Created: snapshot.Metadata
//	503 Service Unavailable: Snapshot store not configured
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleSaveSnapshot(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.log.With("request_id", requestID, "handler", "HandleSaveSnapshot")

	if !h.requireStore(c) {
		return
	}

	var req SaveSnapshotRequest
	if c.Request.Body != nil && c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "invalid request body: " + err.Error(),
				Code:  "INVALID_BODY",
			})
			return
		}
	}

	meta, err := h.store.Save(c.Request.Context(), h.liveIndex(), h.root, req.Label)
	if err != nil {
		logger.Error("snapshot save failed", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "SNAPSHOT_SAVE_FAILED",
		})
		return
	}

	logger.Info("snapshot saved",
		slog.String("snapshot_id", meta.SnapshotID),
		slog.String("label", meta.Label),
		slog.Int("classes", meta.Classes),
	)
	c.JSON(http.StatusCreated, meta)
}

// ListSnapshotsResponse carries snapshot metadata, newest first.
type ListSnapshotsResponse struct {
	Snapshots []*snapshot.Metadata `json:"snapshots"`
}

// HandleListSnapshots handles GET /v1/callgraph/snapshots.
//
// Description:
//
//	Lists stored snapshots, newest first. Without project_root the
//	server's own project is assumed; pass project_root=all to list every
//	project's snapshots.
//
// Query Parameters:
//
//	project_root: Project to list, or "all" (default: the server's root)
//	limit: Maximum results, default 50
//
// Response:
//
//	200 OK: ListSnapshotsResponse
//	503 Service Unavailable: Snapshot store not configured
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleListSnapshots(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.log.With("request_id", requestID, "handler", "HandleListSnapshots")

	if !h.requireStore(c) {
		return
	}

	limit := queryInt(c, "limit", 50)

	projectHash := ""
	switch root := c.Query("project_root"); root {
	case "all":
		// Empty hash lists across projects.
	case "":
		if h.root != "" {
			projectHash = snapshot.ProjectHash(h.root)
		}
	default:
		projectHash = snapshot.ProjectHash(root)
	}

	metas, err := h.store.List(c.Request.Context(), projectHash, limit)
	if err != nil {
		logger.Error("snapshot list failed", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "SNAPSHOT_LIST_FAILED",
		})
		return
	}
	if metas == nil {
		metas = []*snapshot.Metadata{}
	}

	logger.Info("snapshots listed", slog.Int("count", len(metas)))
	c.JSON(http.StatusOK, ListSnapshotsResponse{Snapshots: metas})
}

// SnapshotDetailResponse pairs snapshot metadata with the restored
// index's counters.
type SnapshotDetailResponse struct {
	Metadata *snapshot.Metadata `json:"metadata"`
	Stats    IndexStatsResponse `json:"stats"`
}

// HandleGetSnapshot handles GET /v1/callgraph/snapshots/:id.
//
// Description:
//
//	Loads one snapshot and returns its metadata plus the counters of the
//	restored index, proving the payload still decodes.
//
// Path Parameters:
//
//	id: Snapshot ID (required)
//
// Response:
//
//	200 OK: SnapshotDetailResponse
//	404 Not Found: Unknown snapshot ID
//	503 Service Unavailable: Snapshot store not configured
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleGetSnapshot(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.log.With("request_id", requestID, "handler", "HandleGetSnapshot")

	if !h.requireStore(c) {
		return
	}

	snapshotID := c.Param("id")
	idx, meta, err := h.store.Load(c.Request.Context(), snapshotID)
	if err != nil {
		if errors.Is(err, snapshot.ErrSnapshotNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: "snapshot not found: " + snapshotID,
				Code:  "SNAPSHOT_NOT_FOUND",
			})
			return
		}
		logger.Error("snapshot load failed", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "SNAPSHOT_LOAD_FAILED",
		})
		return
	}

	stats := idx.Stats()
	logger.Info("snapshot served",
		slog.String("snapshot_id", meta.SnapshotID),
		slog.Int("classes", stats.TotalClasses),
	)
	c.JSON(http.StatusOK, SnapshotDetailResponse{
		Metadata: meta,
		Stats: IndexStatsResponse{
			TotalClasses:     stats.TotalClasses,
			TotalMethods:     stats.TotalMethods,
			TotalCallSites:   stats.TotalCallSites,
			InterfaceCount:   stats.InterfaceCount,
			FileCount:        stats.FileCount,
			DuplicateClasses: stats.DuplicateClasses,
			MaxClasses:       stats.MaxClasses,
			Frozen:           stats.Frozen,
		},
	})
}

// HandleDeleteSnapshot handles DELETE /v1/callgraph/snapshots/:id.
//
// Response:
//
//	200 OK: {"deleted": "<id>"}
//	404 Not Found: Unknown snapshot ID
//	503 Service Unavailable: Snapshot store not configured
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleDeleteSnapshot(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.log.With("request_id", requestID, "handler", "HandleDeleteSnapshot")

	if !h.requireStore(c) {
		return
	}

	snapshotID := c.Param("id")
	if err := h.store.Delete(c.Request.Context(), snapshotID); err != nil {
		if errors.Is(err, snapshot.ErrSnapshotNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: "snapshot not found: " + snapshotID,
				Code:  "SNAPSHOT_NOT_FOUND",
			})
			return
		}
		logger.Error("snapshot delete failed", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "SNAPSHOT_DELETE_FAILED",
		})
		return
	}

	logger.Info("snapshot deleted", slog.String("snapshot_id", snapshotID))
	c.JSON(http.StatusOK, gin.H{"deleted": snapshotID})
}

// DiffSnapshotsResponse carries the class-level diff between two
// snapshots, base first.
type DiffSnapshotsResponse struct {
	Base    string              `json:"base"`
	Target  string              `json:"target"`
	Summary string              `json:"summary"`
	Diff    *snapshot.IndexDiff `json:"diff"`
}

// HandleDiffSnapshots handles GET /v1/callgraph/snapshots/diff.
//
// Description:
//
//	Loads two snapshots and returns the class-level difference from base
//	to target: classes added, removed, and modified.
//
// Query Parameters:
//
//	base: Snapshot ID of the older side (required)
//	target: Snapshot ID of the newer side, or "current" for the live
//	        index (default: current)
//
// Response:
//
//	200 OK: DiffSnapshotsResponse
//	400 Bad Request: Missing base parameter
//	404 Not Found: Unknown snapshot ID
//	503 Service Unavailable: Snapshot store not configured
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleDiffSnapshots(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.log.With("request_id", requestID, "handler", "HandleDiffSnapshots")

	if !h.requireStore(c) {
		return
	}

	baseID := c.Query("base")
	if baseID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "base parameter is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}

	baseIdx, ok := h.loadSnapshotIndex(c, logger, baseID)
	if !ok {
		return
	}

	targetID := c.Query("target")
	targetLabel := targetID
	var targetIdx = h.liveIndex()
	if targetID != "" && targetID != "current" {
		targetIdx, ok = h.loadSnapshotIndex(c, logger, targetID)
		if !ok {
			return
		}
	} else {
		targetLabel = "current"
	}

	diff := snapshot.Diff(baseIdx, targetIdx)
	logger.Info("snapshot diff served",
		slog.String("base", baseID),
		slog.String("target", targetLabel),
		slog.String("summary", diff.Summary()),
	)
	c.JSON(http.StatusOK, DiffSnapshotsResponse{
		Base:    baseID,
		Target:  targetLabel,
		Summary: diff.Summary(),
		Diff:    diff,
	})
}

// loadSnapshotIndex loads one snapshot's index, writing the error
// response itself on failure.
func (h *Handlers) loadSnapshotIndex(c *gin.Context, logger *slog.Logger, snapshotID string) (*index.ProjectIndex, bool) {
	idx, _, err := h.store.Load(c.Request.Context(), snapshotID)
	if err != nil {
		if errors.Is(err, snapshot.ErrSnapshotNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: "snapshot not found: " + snapshotID,
				Code:  "SNAPSHOT_NOT_FOUND",
			})
			return nil, false
		}
		logger.Error("snapshot load failed",
			slog.String("snapshot_id", snapshotID),
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "SNAPSHOT_LOAD_FAILED",
		})
		return nil, false
	}
	return idx, true
}
