// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package callgraph

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Morizady/javatrace/services/callgraph/index"
	"github.com/Morizady/javatrace/services/callgraph/java"
	"github.com/Morizady/javatrace/services/callgraph/snapshot"
	"github.com/Morizady/javatrace/services/callgraph/tree"
	"github.com/Morizady/javatrace/services/callgraph/watch"
)

// ErrorResponse is the uniform error body for all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HandlersConfig wires the HTTP layer to its subsystems.
//
// Engine is required. Store and Watcher are optional; endpoints that need
// them answer 503 when absent. EngineFactory is consulted when the
// watcher swaps the index so rebuilt engines keep the boot-time options;
// it defaults to NewEngine with no options.
type HandlersConfig struct {
	Engine        *Engine
	Store         *snapshot.Store
	Watcher       *watch.Watcher
	ProjectRoot   string
	EngineFactory func(*index.ProjectIndex) (*Engine, error)
	Logger        *slog.Logger
}

// Handlers serves the /v1/callgraph API.
//
// Description:
//
//	Holds the current engine plus the optional snapshot store and
//	watcher. In watch mode the engine is rebuilt lazily whenever the
//	watcher has swapped in a new index; requests between swaps share one
//	engine.
//
// Thread Safety: Safe for concurrent use.
type Handlers struct {
	mu      sync.RWMutex
	engine  *Engine
	store   *snapshot.Store
	watcher *watch.Watcher
	root    string
	factory func(*index.ProjectIndex) (*Engine, error)
	log     *slog.Logger
	started time.Time
}

// NewHandlers validates the wiring and returns the handler set.
func NewHandlers(cfg HandlersConfig) (*Handlers, error) {
	if cfg.Engine == nil {
		return nil, errors.New("engine must not be nil")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	factory := cfg.EngineFactory
	if factory == nil {
		factory = func(idx *index.ProjectIndex) (*Engine, error) {
			return NewEngine(idx)
		}
	}
	return &Handlers{
		engine:  cfg.Engine,
		store:   cfg.Store,
		watcher: cfg.Watcher,
		root:    cfg.ProjectRoot,
		factory: factory,
		log:     log,
		started: time.Now(),
	}, nil
}

// liveEngine returns the engine for the watcher's current index,
// rebuilding it after a swap. Without a watcher the boot engine is
// permanent.
func (h *Handlers) liveEngine() (*Engine, error) {
	if h.watcher == nil {
		return h.engine, nil
	}
	idx := h.watcher.Current()

	h.mu.RLock()
	cur := h.engine
	h.mu.RUnlock()
	if cur.Index() == idx {
		return cur, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.engine.Index() == idx {
		return h.engine, nil
	}
	eng, err := h.factory(idx)
	if err != nil {
		return nil, err
	}
	h.engine = eng
	return eng, nil
}

// liveIndex returns the index requests should read.
func (h *Handlers) liveIndex() *index.ProjectIndex {
	if h.watcher != nil {
		return h.watcher.Current()
	}
	return h.engine.Index()
}

// getOrCreateRequestID returns the caller's X-Request-ID or mints one,
// echoing it on the response either way.
func getOrCreateRequestID(c *gin.Context) string {
	id := c.GetHeader("X-Request-ID")
	if id == "" {
		id = uuid.NewString()
	}
	c.Header("X-Request-ID", id)
	return id
}

// writeEngineError maps engine sentinels onto HTTP statuses.
func writeEngineError(c *gin.Context, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_REQUEST",
		})
	case errors.Is(err, ErrEntryFileNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: err.Error(),
			Code:  "ENTRY_FILE_NOT_FOUND",
		})
	case errors.Is(err, ErrEntryMethodNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: err.Error(),
			Code:  "ENTRY_METHOD_NOT_FOUND",
		})
	default:
		logger.Error("request failed", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "INTERNAL_ERROR",
		})
	}
}

// queryInt parses a positive integer query parameter with a default.
func queryInt(c *gin.Context, key string, defaultVal int) int {
	if raw := c.Query(key); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultVal
}

// AnalyzeResponse wraps one completed run for the wire.
type AnalyzeResponse struct {
	RunID    string                     `json:"run_id"`
	Analysis *tree.SerializableAnalysis `json:"analysis"`
}

// BatchAnalyzeRequest runs several analyses in one call.
type BatchAnalyzeRequest struct {
	// Requests lists the entry points to analyze.
	Requests []AnalyzeRequest `json:"requests" binding:"required,min=1,dive"`

	// Parallelism bounds concurrent tree builds. Zero means the number
	// of requests.
	Parallelism int `json:"parallelism" binding:"omitempty,min=1,max=64"`
}

// BatchAnalyzeResponse carries results in request order.
type BatchAnalyzeResponse struct {
	Results []AnalyzeResponse `json:"results"`
}

// HandleAnalyze handles POST /v1/callgraph/analyze.
//
// Description:
//
//	Builds one call tree for the requested entry method and returns the
//	serialized analysis envelope.
//
// Request Body:
//
//	AnalyzeRequest (entry_file and entry_method required)
//
// Response:
//
//	200 OK: AnalyzeResponse
//	400 Bad Request: Malformed body or invalid request
//	404 Not Found: Entry file or method not found
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleAnalyze(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.log.With("request_id", requestID, "handler", "HandleAnalyze")

	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Code:  "INVALID_BODY",
		})
		return
	}

	eng, err := h.liveEngine()
	if err != nil {
		writeEngineError(c, logger, err)
		return
	}
	if req.MaxDepth == 0 {
		req.MaxDepth = eng.DefaultDepth()
	}
	res, err := eng.Analyze(c.Request.Context(), req)
	if err != nil {
		writeEngineError(c, logger, err)
		return
	}

	logger.Info("analysis served",
		slog.String("run_id", res.RunID),
		slog.String("entry", res.Root.Class+"."+res.Root.Method),
		slog.Int("nodes", res.Stats.TotalNodes),
	)

	c.JSON(http.StatusOK, AnalyzeResponse{
		RunID:    res.RunID,
		Analysis: res.Serializable(),
	})
}

// HandleAnalyzeBatch handles POST /v1/callgraph/analyze/batch.
//
// Description:
//
//	Runs the requested analyses concurrently and returns results in
//	request order. The whole batch fails on the first error, identifying
//	the offending request.
//
// Request Body:
//
//	BatchAnalyzeRequest
//
// Response:
//
//	200 OK: BatchAnalyzeResponse
//	400 Bad Request: Malformed body or invalid request
//	404 Not Found: An entry file or method was not found
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleAnalyzeBatch(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.log.With("request_id", requestID, "handler", "HandleAnalyzeBatch")

	var req BatchAnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Code:  "INVALID_BODY",
		})
		return
	}

	eng, err := h.liveEngine()
	if err != nil {
		writeEngineError(c, logger, err)
		return
	}
	for i := range req.Requests {
		if req.Requests[i].MaxDepth == 0 {
			req.Requests[i].MaxDepth = eng.DefaultDepth()
		}
	}
	results, err := eng.AnalyzeAll(c.Request.Context(), req.Requests, req.Parallelism)
	if err != nil {
		writeEngineError(c, logger, err)
		return
	}

	resp := BatchAnalyzeResponse{Results: make([]AnalyzeResponse, 0, len(results))}
	for _, res := range results {
		resp.Results = append(resp.Results, AnalyzeResponse{
			RunID:    res.RunID,
			Analysis: res.Serializable(),
		})
	}

	logger.Info("batch served", slog.Int("analyses", len(resp.Results)))
	c.JSON(http.StatusOK, resp)
}

// ImpactRequest maps a unified diff onto entry points.
type ImpactRequest struct {
	// Patch is the unified diff text, usually git diff output.
	Patch string `json:"patch" binding:"required"`

	// Entries lists the entry points to test against the change.
	Entries []AnalyzeRequest `json:"entries" binding:"required,min=1,dive"`

	// Parallelism bounds concurrent tree builds. Zero means the number
	// of entries.
	Parallelism int `json:"parallelism" binding:"omitempty,min=1,max=64"`
}

// HandleImpact handles POST /v1/callgraph/impact.
//
// Description:
//
//	Resolves the patch to changed methods, analyzes every entry point,
//	and splits them into impacted and clean sets.
//
// Request Body:
//
//	ImpactRequest
//
// Response:
//
//	200 OK: impact.Report
//	400 Bad Request: Malformed body, unparsable patch, or invalid entry
//	404 Not Found: An entry file or method was not found
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleImpact(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.log.With("request_id", requestID, "handler", "HandleImpact")

	var req ImpactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Code:  "INVALID_BODY",
		})
		return
	}

	eng, err := h.liveEngine()
	if err != nil {
		writeEngineError(c, logger, err)
		return
	}
	for i := range req.Entries {
		if req.Entries[i].MaxDepth == 0 {
			req.Entries[i].MaxDepth = eng.DefaultDepth()
		}
	}
	report, err := eng.Impact(c.Request.Context(), []byte(req.Patch), req.Entries, req.Parallelism)
	if err != nil {
		writeEngineError(c, logger, err)
		return
	}

	logger.Info("impact served",
		slog.Int("changed_methods", len(report.ChangedMethods)),
		slog.Int("impacted", len(report.Impacted)),
	)
	c.JSON(http.StatusOK, report)
}

// ClassRef points at one indexed class.
type ClassRef struct {
	Name    string `json:"name"`
	Package string `json:"package,omitempty"`
	File    string `json:"file"`
}

// FieldSummary is one declared field.
type FieldSummary struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// MethodSummary is one declared method.
type MethodSummary struct {
	Name        string   `json:"name"`
	Line        int      `json:"line"`
	Parameters  []string `json:"parameters,omitempty"`
	ReturnType  string   `json:"return_type,omitempty"`
	Constructor bool     `json:"constructor,omitempty"`
	CallSites   int      `json:"call_sites"`
}

// ClassResponse is the full view of one indexed class.
type ClassResponse struct {
	Name            string          `json:"name"`
	Package         string          `json:"package,omitempty"`
	File            string          `json:"file"`
	SuperClass      string          `json:"super_class,omitempty"`
	Interfaces      []string        `json:"interfaces,omitempty"`
	IsInterface     bool            `json:"is_interface"`
	IsAbstract      bool            `json:"is_abstract"`
	Fields          []FieldSummary  `json:"fields,omitempty"`
	Methods         []MethodSummary `json:"methods"`
	Implementations []ClassRef      `json:"implementations,omitempty"`
	Subclasses      []ClassRef      `json:"subclasses,omitempty"`
}

// classRef renders the pointer view of a class.
func classRef(cls *java.ClassModel) ClassRef {
	return ClassRef{Name: cls.Name, Package: cls.Package, File: cls.SourcePath}
}

// classRefs renders a slice of classes sorted by qualified name.
func classRefs(classes []*java.ClassModel) []ClassRef {
	if len(classes) == 0 {
		return nil
	}
	refs := make([]ClassRef, 0, len(classes))
	for _, cls := range classes {
		refs = append(refs, classRef(cls))
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Package != refs[j].Package {
			return refs[i].Package < refs[j].Package
		}
		return refs[i].Name < refs[j].Name
	})
	return refs
}

// HandleGetClass handles GET /v1/callgraph/classes/:name.
//
// Description:
//
//	Looks up a class by qualified or simple name and returns its
//	declaration view plus hierarchy neighbors: implementations when it
//	is an interface, subclasses when it is a class.
//
// Path Parameters:
//
//	name: Class name, qualified or simple (required)
//
// Response:
//
//	200 OK: ClassResponse
//	404 Not Found: No class by that name
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleGetClass(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.log.With("request_id", requestID, "handler", "HandleGetClass")

	name := c.Param("name")
	idx := h.liveIndex()
	cls, ok := idx.Class(name)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "class not found: " + name,
			Code:  "CLASS_NOT_FOUND",
		})
		return
	}

	resp := ClassResponse{
		Name:        cls.Name,
		Package:     cls.Package,
		File:        cls.SourcePath,
		SuperClass:  cls.SuperClass,
		Interfaces:  cls.Interfaces,
		IsInterface: cls.IsInterface,
		IsAbstract:  cls.IsAbstract,
		Methods:     make([]MethodSummary, 0, len(cls.Methods)),
	}
	for _, f := range cls.Fields {
		resp.Fields = append(resp.Fields, FieldSummary{Name: f.Name, Type: f.DeclaredType})
	}
	for i := range cls.Methods {
		m := &cls.Methods[i]
		resp.Methods = append(resp.Methods, MethodSummary{
			Name:        m.Name,
			Line:        m.Line,
			Parameters:  m.Parameters,
			ReturnType:  m.ReturnType,
			Constructor: m.IsConstructor,
			CallSites:   len(m.CallSites),
		})
	}
	if cls.IsInterface {
		resp.Implementations = classRefs(idx.Implementations(cls.Name))
	} else {
		resp.Subclasses = classRefs(idx.Subclasses(cls.Name))
	}

	logger.Info("class served",
		slog.String("class", cls.QualifiedName()),
		slog.Int("methods", len(resp.Methods)),
	)
	c.JSON(http.StatusOK, resp)
}

// ImplementationsResponse lists the classes implementing an interface.
type ImplementationsResponse struct {
	Interface       string     `json:"interface"`
	Implementations []ClassRef `json:"implementations"`
}

// HandleGetImplementations handles GET /v1/callgraph/classes/:name/implementations.
//
// Response:
//
//	200 OK: ImplementationsResponse (empty list when none)
//	404 Not Found: No class by that name
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleGetImplementations(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.log.With("request_id", requestID, "handler", "HandleGetImplementations")

	name := c.Param("name")
	idx := h.liveIndex()
	cls, ok := idx.Class(name)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "class not found: " + name,
			Code:  "CLASS_NOT_FOUND",
		})
		return
	}

	impls := classRefs(idx.Implementations(cls.Name))
	if impls == nil {
		impls = []ClassRef{}
	}

	logger.Info("implementations served",
		slog.String("interface", cls.QualifiedName()),
		slog.Int("count", len(impls)),
	)
	c.JSON(http.StatusOK, ImplementationsResponse{
		Interface:       cls.QualifiedName(),
		Implementations: impls,
	})
}

// SubclassesResponse lists the direct and transitive subclasses of a class.
type SubclassesResponse struct {
	Class      string     `json:"class"`
	Subclasses []ClassRef `json:"subclasses"`
}

// HandleGetSubclasses handles GET /v1/callgraph/classes/:name/subclasses.
//
// Response:
//
//	200 OK: SubclassesResponse (empty list when none)
//	404 Not Found: No class by that name
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleGetSubclasses(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.log.With("request_id", requestID, "handler", "HandleGetSubclasses")

	name := c.Param("name")
	idx := h.liveIndex()
	cls, ok := idx.Class(name)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "class not found: " + name,
			Code:  "CLASS_NOT_FOUND",
		})
		return
	}

	subs := classRefs(idx.Subclasses(cls.Name))
	if subs == nil {
		subs = []ClassRef{}
	}

	logger.Info("subclasses served",
		slog.String("class", cls.QualifiedName()),
		slog.Int("count", len(subs)),
	)
	c.JSON(http.StatusOK, SubclassesResponse{
		Class:      cls.QualifiedName(),
		Subclasses: subs,
	})
}

// SearchResult is one ranked method match.
type SearchResult struct {
	Class      string   `json:"class"`
	Package    string   `json:"package,omitempty"`
	Method     string   `json:"method"`
	File       string   `json:"file"`
	Line       int      `json:"line"`
	Parameters []string `json:"parameters,omitempty"`
	ReturnType string   `json:"return_type,omitempty"`
}

// SearchResponse carries ranked matches for a query.
type SearchResponse struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
}

// HandleSearch handles GET /v1/callgraph/search.
//
// Description:
//
//	Ranked method search over the index: exact, prefix, camel-case
//	initials, substring, then fuzzy.
//
// Query Parameters:
//
//	q: Search query (required)
//	limit: Maximum results, default 20
//
// Response:
//
//	200 OK: SearchResponse
//	400 Bad Request: Missing query
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleSearch(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.log.With("request_id", requestID, "handler", "HandleSearch")

	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "q parameter is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}
	limit := queryInt(c, "limit", 20)

	refs, err := h.liveIndex().Search(c.Request.Context(), query, limit)
	if err != nil {
		writeEngineError(c, logger, err)
		return
	}

	resp := SearchResponse{Query: query, Results: make([]SearchResult, 0, len(refs))}
	for _, ref := range refs {
		resp.Results = append(resp.Results, SearchResult{
			Class:      ref.Class.Name,
			Package:    ref.Class.Package,
			Method:     ref.Method.Name,
			File:       ref.Method.SourcePath,
			Line:       ref.Method.Line,
			Parameters: ref.Method.Parameters,
			ReturnType: ref.Method.ReturnType,
		})
	}

	logger.Info("search served", slog.String("query", query), slog.Int("results", len(resp.Results)))
	c.JSON(http.StatusOK, resp)
}

// IndexStatsResponse mirrors the index counters for the wire.
type IndexStatsResponse struct {
	TotalClasses     int  `json:"total_classes"`
	TotalMethods     int  `json:"total_methods"`
	TotalCallSites   int  `json:"total_call_sites"`
	InterfaceCount   int  `json:"interface_count"`
	FileCount        int  `json:"file_count"`
	DuplicateClasses int  `json:"duplicate_classes"`
	MaxClasses       int  `json:"max_classes"`
	Frozen           bool `json:"frozen"`
	Watching         bool `json:"watching"`
}

// HandleIndexStats handles GET /v1/callgraph/index/stats.
//
// Response:
//
//	200 OK: IndexStatsResponse
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleIndexStats(c *gin.Context) {
	getOrCreateRequestID(c)

	stats := h.liveIndex().Stats()
	c.JSON(http.StatusOK, IndexStatsResponse{
		TotalClasses:     stats.TotalClasses,
		TotalMethods:     stats.TotalMethods,
		TotalCallSites:   stats.TotalCallSites,
		InterfaceCount:   stats.InterfaceCount,
		FileCount:        stats.FileCount,
		DuplicateClasses: stats.DuplicateClasses,
		MaxClasses:       stats.MaxClasses,
		Frozen:           stats.Frozen,
		Watching:         h.watcher != nil,
	})
}

// countingWriter tracks bytes written through it.
type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// HandleIndexExport handles GET /v1/callgraph/index/export.
//
// Description:
//
//	Streams the serialized index as a JSON download. The encoder writes
//	straight to the response so large indexes are never buffered whole.
//
// Response:
//
//	200 OK: SerializableIndex (Content-Disposition: attachment)
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleIndexExport(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.log.With("request_id", requestID, "handler", "HandleIndexExport")

	idx := h.liveIndex()
	serial := idx.ToSerializable()

	name := "callgraph_index"
	if h.root != "" {
		name += "_" + snapshot.ProjectHash(h.root)
	}
	c.Header("Content-Disposition", "attachment; filename="+name+".json")
	c.Header("Content-Type", "application/json")

	cw := &countingWriter{w: c.Writer}
	encoder := json.NewEncoder(cw)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(serial); err != nil {
		logger.Error("index export failed mid-stream", slog.Any("error", err))
		// The status line is already gone; nothing else to write.
	}
	exportBytesTotal.WithLabelValues("json").Add(float64(cw.n))

	logger.Info("index exported",
		slog.Int("files", len(serial.Files)),
		slog.Int64("bytes", cw.n),
	)
}

// HealthResponse is the liveness view.
type HealthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Classes       int    `json:"classes"`
	Files         int    `json:"files"`
}

// HandleHealth handles GET /v1/callgraph/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	stats := h.liveIndex().Stats()
	c.JSON(http.StatusOK, HealthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Classes:       stats.TotalClasses,
		Files:         stats.FileCount,
	})
}

// HandleReady handles GET /v1/callgraph/ready. Ready means a frozen,
// non-empty index is serving.
func (h *Handlers) HandleReady(c *gin.Context) {
	stats := h.liveIndex().Stats()
	if !stats.Frozen || stats.TotalClasses == 0 {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "index not ready",
			Code:  "INDEX_NOT_READY",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}
