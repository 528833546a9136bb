package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-commerce/kestrel/internal/collect"
	"github.com/opensource-commerce/kestrel/internal/domain"
	"github.com/opensource-commerce/kestrel/internal/rfm"
	"github.com/opensource-commerce/kestrel/internal/segment"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	service  *collect.Service
	cache    domain.Cache
	repo     domain.Repository
	bus      domain.EventBus
	segments *segment.Engine
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(service *collect.Service, cache domain.Cache, repo domain.Repository, bus domain.EventBus, segments *segment.Engine, version string) *Handler {
	return &Handler{
		service:  service,
		cache:    cache,
		repo:     repo,
		bus:      bus,
		segments: segments,
		version:  version,
	}
}

const dateLayout = "2006-01-02"

// parseWindow reads the from/to query params. Both are required.
func parseWindow(r *http.Request) (time.Time, time.Time, bool) {
	from, err := time.Parse(dateLayout, r.URL.Query().Get("from"))
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	to, err := time.Parse(dateLayout, r.URL.Query().Get("to"))
	if err != nil || to.Before(from) {
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

// GetOrders handles GET /orders?from=&to=.
// Returns the merged, deduplicated order set for the window, with fetch
// metadata so clients can flag partial data.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	from, to, ok := parseWindow(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "from and to are required as YYYY-MM-DD, with to >= from",
		})
		return
	}

	set, err := h.service.CollectOrders(ctx, tenantID, from, to)
	if err != nil {
		slog.Error("order collection failed", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "order collection failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, set)
}

// RFMResponse is the response for GET /analytics/rfm.
type RFMResponse struct {
	Records []domain.RFMRecord `json:"records"`
	AsOf    time.Time          `json:"asOf"`

	// Fetch metadata: partial data must be distinguishable from zero data.
	ChunksAttempted int `json:"chunksAttempted"`
	ChunksFailed    int `json:"chunksFailed"`
}

// GetRFM handles GET /analytics/rfm?from=&to=[&asOf=][&sort=monetary].
func (h *Handler) GetRFM(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	from, to, ok := parseWindow(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "from and to are required as YYYY-MM-DD, with to >= from",
		})
		return
	}

	asOf := time.Now().UTC()
	if s := r.URL.Query().Get("asOf"); s != "" {
		parsed, err := time.Parse(dateLayout, s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "asOf must be YYYY-MM-DD",
			})
			return
		}
		asOf = parsed
	}

	records, set, err := h.service.AnalyzeRFM(ctx, tenantID, from, to, asOf)
	if err != nil {
		slog.Error("rfm analysis failed", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "rfm analysis failed",
		})
		return
	}

	if r.URL.Query().Get("sort") == "monetary" {
		rfm.SortByMonetary(records)
	}
	if records == nil {
		records = []domain.RFMRecord{}
	}

	writeJSON(w, http.StatusOK, RFMResponse{
		Records:         records,
		AsOf:            asOf,
		ChunksAttempted: set.ChunksAttempted,
		ChunksFailed:    set.ChunksFailed,
	})
}

// RevenueResponse is the response for GET /analytics/revenue.
type RevenueResponse struct {
	domain.RevenueBreakdown

	ChunksAttempted int `json:"chunksAttempted"`
	ChunksFailed    int `json:"chunksFailed"`
}

// GetRevenue handles
// GET /analytics/revenue?from=&to=[&historyFrom=][&historyComplete=true].
//
// historyFrom widens the fetch window backwards so first-order detection has
// history to work with; historyComplete is the caller's claim that it reaches
// the tenant's first-ever order. Without either, the split is computed over
// the period alone and flagged approximate.
func (h *Handler) GetRevenue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	from, to, ok := parseWindow(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "from and to are required as YYYY-MM-DD, with to >= from",
		})
		return
	}

	var historyFrom time.Time
	if s := r.URL.Query().Get("historyFrom"); s != "" {
		parsed, err := time.Parse(dateLayout, s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "historyFrom must be YYYY-MM-DD",
			})
			return
		}
		historyFrom = parsed
	}
	historyComplete := r.URL.Query().Get("historyComplete") == "true"

	breakdown, set, err := h.service.AnalyzeRevenue(ctx, tenantID, from, to, historyFrom, historyComplete)
	if err != nil {
		slog.Error("revenue analysis failed", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "revenue analysis failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, RevenueResponse{
		RevenueBreakdown: breakdown,
		ChunksAttempted:  set.ChunksAttempted,
		ChunksFailed:     set.ChunksFailed,
	})
}

// RefreshRequestBody is the request body for POST /refresh.
type RefreshRequestBody struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Force bool   `json:"force,omitempty"`
}

// Refresh handles POST /refresh: publishes a refresh request for the worker
// to warm the order cache asynchronously.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req RefreshRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if _, err := time.Parse(dateLayout, req.From); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "from must be YYYY-MM-DD"})
		return
	}
	if _, err := time.Parse(dateLayout, req.To); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "to must be YYYY-MM-DD"})
		return
	}

	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	payload, _ := json.Marshal(domain.RefreshRequest{
		TenantID: tenantID,
		From:     req.From,
		To:       req.To,
		Force:    req.Force,
	})
	if err := h.bus.Publish(ctx, tenantID, domain.TopicRefreshRequested, payload); err != nil {
		slog.Error("failed to publish refresh request", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to publish refresh request",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
	})
}

// ListSegments handles GET /segments.
func (h *Handler) ListSegments(w http.ResponseWriter, r *http.Request) {
	configs := h.segments.Segments()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"segments": configs,
		"count":    len(configs),
	})
}

// ReplaceSegments handles PUT /segments: replaces the loaded segment set.
// An invalid expression rejects the whole set; the previous set stays active.
func (h *Handler) ReplaceSegments(w http.ResponseWriter, r *http.Request) {
	var configs []*domain.SegmentConfig
	if err := json.NewDecoder(r.Body).Decode(&configs); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if err := h.segments.LoadSegments(configs); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "loaded",
		"count":  len(h.segments.Segments()),
	})
}

// ReloadSegments handles POST /segments/reload: restores the builtin set.
func (h *Handler) ReloadSegments(w http.ResponseWriter, r *http.Request) {
	if err := h.segments.LoadSegments(segment.BuiltinSegments()); err != nil {
		slog.Error("failed to reload builtin segments", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload builtin segments",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "reloaded",
		"count":  len(h.segments.Segments()),
	})
}

// CacheStats handles GET /cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cache.Stats(r.Context()))
}

// InvalidateRequest is the request body for POST /cache/invalidate.
type InvalidateRequest struct {
	// Key is a key fragment; entries whose key contains it are removed from
	// the in-process tier, and the exact key is deleted from the primary
	// store. Empty means flush everything.
	Key string `json:"key,omitempty"`
}

// InvalidateCache handles POST /cache/invalidate.
func (h *Handler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req InvalidateRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid JSON request body",
			})
			return
		}
	}

	var err error
	if req.Key == "" {
		err = h.cache.Flush(ctx)
	} else {
		err = h.cache.Invalidate(ctx, tenantID, req.Key)
	}
	if err != nil {
		slog.Error("cache invalidation failed", "key", req.Key, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "cache invalidation failed",
		})
		return
	}

	if h.bus != nil {
		payload, _ := json.Marshal(map[string]string{"key": req.Key})
		_ = h.bus.Publish(ctx, tenantID, domain.TopicCacheInvalidated, payload)
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "invalidated",
	})
}

// ListRuns handles GET /runs?limit=.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	runs, err := h.repo.ListRuns(ctx, tenantID, limit)
	if err != nil {
		slog.Error("failed to list runs", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list runs",
		})
		return
	}
	if runs == nil {
		runs = []*domain.AnalysisRun{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRun handles GET /runs/{id}.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	runID := chi.URLParam(r, "id")

	if runID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "run id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	run, err := h.repo.GetRun(ctx, tenantID, runID)
	if err != nil {
		slog.Error("failed to get run", "id", runID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "run not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// GetRunOrders handles GET /runs/{id}/orders: the archived merged set.
func (h *Handler) GetRunOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	runID := chi.URLParam(r, "id")

	if runID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "run id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	orders, err := h.repo.GetArchivedOrders(ctx, tenantID, runID)
	if err != nil {
		slog.Error("failed to get archived orders", "id", runID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get archived orders",
		})
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"orders": orders,
		"count":  len(orders),
	})
}

// Health returns overall health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
