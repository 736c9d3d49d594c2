package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/deskdata/deskdata/internal/ingest"
	"github.com/deskdata/deskdata/internal/model"
	"github.com/deskdata/deskdata/internal/tenantdb"
)

// Asker answers a retrieval question. *retrieval.Orchestrator satisfies it.
type Asker interface {
	Ask(ctx context.Context, q model.RetrievalQuestion) (model.RetrievalAnswer, error)
}

// TableReader is the slice of the query layer the table endpoints use.
// *tenantdb.Adapter satisfies it.
type TableReader interface {
	ListTables(ctx context.Context, tenantID string) ([]string, error)
	PreviewTable(ctx context.Context, tenantID, table string, limit int) (*model.QueryResult, error)
	QueryTable(ctx context.Context, tenantID, table string, limit, offset int) (*model.QueryResult, error)
	TestConnection(ctx context.Context, tenantID string) tenantdb.TestResult
	TestConfig(ctx context.Context, tenantID string, cfg model.DatabaseConfig) tenantdb.TestResult
	Invalidate(tenantID string)
}

// TenantConfigurer writes tenant database configurations.
// *service.TenantService satisfies it.
type TenantConfigurer interface {
	Configure(ctx context.Context, tenantID string, cfg model.DatabaseConfig) (*model.TenantPlugin, error)
	Remove(ctx context.Context, tenantID string) error
}

// Ingester copies tenant tables into the knowledge base.
// *ingest.Pipeline satisfies it.
type Ingester interface {
	Run(ctx context.Context, tenantID string, limitPerTable int) (*ingest.Stats, error)
}

// TenantDeps wires a TenantHandler. Asker and Ingester may be nil, in which
// case their endpoints answer 503.
type TenantDeps struct {
	Asker    Asker
	Tables   TableReader
	Tenants  TenantConfigurer
	Ingester Ingester
	// UserOf returns the caller's contact id, used when an ask request
	// names no user.
	UserOf func(ctx context.Context) string
	Logger *slog.Logger
}

// TenantHandler serves the per-tenant API under /api/v1/tenants/{tenantID}.
type TenantHandler struct {
	deps   TenantDeps
	logger *slog.Logger
}

// NewTenantHandler creates a new TenantHandler.
func NewTenantHandler(deps TenantDeps) *TenantHandler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantHandler{deps: deps, logger: logger}
}

type askRequest struct {
	Query    string `json:"query"`
	UserID   string `json:"userId"`
	Page     int    `json:"page"`
	PageSize int    `json:"pageSize"`
}

// Ask handles POST /ask.
func (h *TenantHandler) Ask(w http.ResponseWriter, r *http.Request) {
	if h.deps.Asker == nil {
		writeError(w, http.StatusServiceUnavailable, "Retrieval is not configured")
		return
	}
	tenantID := chi.URLParam(r, "tenantID")

	var req askRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.UserID == "" && h.deps.UserOf != nil {
		req.UserID = h.deps.UserOf(r.Context())
	}

	answer, err := h.deps.Asker.Ask(r.Context(), model.RetrievalQuestion{
		TenantID: tenantID,
		UserID:   req.UserID,
		Text:     req.Query,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
	if err != nil {
		writeTenantError(w, err, "Failed to answer question")
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// ListTables handles GET /tables.
func (h *TenantHandler) ListTables(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	tenantID := chi.URLParam(r, "tenantID")

	tables, err := h.deps.Tables.ListTables(r.Context(), tenantID)
	if err != nil {
		writeTenantError(w, err, "Failed to list tables")
		return
	}

	resources := make([]map[string]interface{}, len(tables))
	for i, name := range tables {
		resources[i] = map[string]interface{}{"name": name}
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: resources,
		Meta: &model.ResponseMeta{
			Count:  len(tables),
			TookMs: tookMs(start),
		},
	})
}

// QueryTable handles GET /tables/{tableName}?limit=&offset=.
func (h *TenantHandler) QueryTable(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	tenantID := chi.URLParam(r, "tenantID")
	tableName := chi.URLParam(r, "tableName")
	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)

	res, err := h.deps.Tables.QueryTable(r.Context(), tenantID, tableName, limit, offset)
	if err != nil {
		writeTenantError(w, err, "Failed to query table")
		return
	}
	writeRows(w, res, limit, start)
}

// PreviewTable handles GET /tables/{tableName}/preview?limit=.
func (h *TenantHandler) PreviewTable(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	tenantID := chi.URLParam(r, "tenantID")
	tableName := chi.URLParam(r, "tableName")
	limit := queryInt(r, "limit", 0)

	res, err := h.deps.Tables.PreviewTable(r.Context(), tenantID, tableName, limit)
	if err != nil {
		writeTenantError(w, err, "Failed to preview table")
		return
	}
	writeRows(w, res, limit, start)
}

// ConfigureDatabase handles PUT /database. The body is the secret document
// ({"provider": ..., ...}). With ?test=true the config is tested first and
// only stored when the test succeeds.
func (h *TenantHandler) ConfigureDatabase(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	var doc model.DatabaseSecret
	if err := readJSON(r, &doc); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	cfg, err := doc.Config()
	if err != nil {
		writeTenantError(w, err, "Invalid database configuration")
		return
	}

	if queryBool(r, "test") {
		if res := h.deps.Tables.TestConfig(r.Context(), tenantID, cfg); !res.Success {
			writeError(w, http.StatusUnprocessableEntity, "Connection test failed: "+res.Message)
			return
		}
	}

	plugin, err := h.deps.Tenants.Configure(r.Context(), tenantID, cfg)
	if err != nil {
		writeTenantError(w, err, "Failed to store database configuration")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tenantId":  plugin.TenantID,
		"provider":  plugin.Provider,
		"backend":   model.RedactedDescription(cfg),
		"updatedAt": plugin.UpdatedAt,
	})
}

// RemoveDatabase handles DELETE /database.
func (h *TenantHandler) RemoveDatabase(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	if err := h.deps.Tenants.Remove(r.Context(), tenantID); err != nil {
		writeTenantError(w, err, "Failed to remove database configuration")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TestDatabase handles POST /database/test. A body, when present, is tested
// instead of the stored configuration.
func (h *TenantHandler) TestDatabase(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	if r.ContentLength > 0 {
		var doc model.DatabaseSecret
		if err := readJSON(r, &doc); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}
		cfg, err := doc.Config()
		if err != nil {
			writeJSON(w, http.StatusOK, tenantdb.TestResult{Message: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, h.deps.Tables.TestConfig(r.Context(), tenantID, cfg))
		return
	}

	writeJSON(w, http.StatusOK, h.deps.Tables.TestConnection(r.Context(), tenantID))
}

// InvalidateCache handles DELETE /database/cache.
func (h *TenantHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	h.deps.Tables.Invalidate(tenantID)
	h.logger.Info("tenant cache invalidated", "tenant", tenantID)
	w.WriteHeader(http.StatusNoContent)
}

// Ingest handles POST /ingest?limit=.
func (h *TenantHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	if h.deps.Ingester == nil {
		writeError(w, http.StatusServiceUnavailable, "Knowledge base is not configured")
		return
	}
	tenantID := chi.URLParam(r, "tenantID")

	stats, err := h.deps.Ingester.Run(r.Context(), tenantID, queryInt(r, "limit", 0))
	if err != nil {
		writeTenantError(w, err, "Ingestion failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeRows(w http.ResponseWriter, res *model.QueryResult, limit int, start time.Time) {
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: res.Rows,
		Meta: &model.ResponseMeta{
			Count:  res.RowCount,
			Limit:  limit,
			TookMs: tookMs(start),
		},
	})
}

func tookMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
