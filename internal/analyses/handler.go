package analyses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"onboarding-backend/internal/shared/server/middleware"
	"onboarding-backend/internal/shared/server/respond"
	"onboarding-backend/internal/shared/telemetry"
)

// Analyzer produces the opaque analysis payload for a repository.
type Analyzer interface {
	Analyze(ctx context.Context, repoURL string) (json.RawMessage, Optional[TokenUsage], error)
}

// MetadataSource looks up repository facts to store alongside an analysis.
type MetadataSource interface {
	Lookup(ctx context.Context, repoURL string) (Metadata, error)
}

// Handler wires HTTP handlers to the analyses service.
type Handler struct {
	Svc      *Service
	Analyzer Analyzer
	Metadata MetadataSource

	bg sync.WaitGroup
}

// NewHandler constructs a Handler. analyzer and meta may be nil.
func NewHandler(svc *Service, analyzer Analyzer, meta MetadataSource) *Handler {
	return &Handler{Svc: svc, Analyzer: analyzer, Metadata: meta}
}

// RegisterRoutes attaches analysis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/analyses", h.createAnalysis)
	rg.POST("/analyses/submit", h.submitAnalysis)
	rg.GET("/analyses", h.listAnalyses)
	rg.GET("/analyses/:id", h.getAnalysis)
	rg.DELETE("/analyses/:id", h.deleteAnalysis)
	rg.PUT("/analyses/:id/favorite", h.setFavorite)
	rg.POST("/analyses/:id/access", h.touchAnalysis)
}

// Wait blocks until background last-accessed updates have finished.
func (h *Handler) Wait() {
	h.bg.Wait()
}

type createRequest struct {
	RepoURL    string               `json:"repoUrl"`
	RepoName   string               `json:"repoName"`
	Data       json.RawMessage      `json:"data"`
	Metadata   Optional[Metadata]   `json:"metadata"`
	TokenUsage Optional[TokenUsage] `json:"tokenUsage"`
}

type submitRequest struct {
	RepoURL  string `json:"repoUrl"`
	RepoName string `json:"repoName"`
}

type favoriteRequest struct {
	IsFavorite *bool `json:"isFavorite"`
}

type submitResponse struct {
	Analysis  Record `json:"analysis"`
	Persisted bool   `json:"persisted"`
}

func (h *Handler) client(c *gin.Context) *Client {
	return h.Svc.ForSession(middleware.SessionFromContext(c))
}

func (h *Handler) createAnalysis(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "invalid json body", nil)
		return
	}
	if len(req.Data) == 0 {
		respond.Invalid(c, "data is required", "data", "required")
		return
	}

	rec, err := h.client(c).CreateRecord(c.Request.Context(), req.RepoURL, Payload{
		RepoName:   req.RepoName,
		Data:       req.Data,
		Metadata:   req.Metadata,
		TokenUsage: req.TokenUsage,
	})
	if err != nil {
		WriteStoreError(c, err, "failed to save analysis")
		return
	}
	c.Set("analysisId", rec.ID)
	respond.Created(c, rec)
}

// submitAnalysis runs the Analysis API for a repository, enriches the result and
// saves it. When the store is unavailable the unsaved result is still returned.
func (h *Handler) submitAnalysis(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "invalid json body", nil)
		return
	}
	repoURL := strings.TrimSpace(req.RepoURL)
	if repoURL == "" {
		respond.Invalid(c, "repoUrl is required", "repoUrl", "required")
		return
	}
	client := h.client(c)
	if client.Session().Anonymous() {
		respond.Unauthorized(c)
		return
	}
	if h.Analyzer == nil {
		respond.Error(c, http.StatusServiceUnavailable, "analysis_unavailable", "analysis service not configured", nil)
		return
	}

	ctx := c.Request.Context()
	data, tokens, err := h.Analyzer.Analyze(ctx, repoURL)
	if err != nil {
		telemetry.Error("analysis.api_failed", map[string]any{
			"repo_url":   repoURL,
			"user_id":    client.Session().UserID,
			"request_id": telemetry.RequestID(ctx),
			"error":      err.Error(),
		})
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			respond.Canceled(c)
		default:
			respond.Error(c, http.StatusBadGateway, "analysis_failed", "repository analysis failed", nil)
		}
		return
	}

	metadata := None[Metadata]()
	if h.Metadata != nil {
		md, err := h.Metadata.Lookup(ctx, repoURL)
		if err != nil {
			telemetry.Warn("analysis.enrich_failed", map[string]any{
				"repo_url":   repoURL,
				"request_id": telemetry.RequestID(ctx),
				"error":      err.Error(),
			})
		} else {
			metadata = Some(md)
		}
	}

	rec, persisted, err := client.CreateOrFallback(ctx, repoURL, Payload{
		RepoName:   req.RepoName,
		Data:       data,
		Metadata:   metadata,
		TokenUsage: tokens,
	})
	if err != nil {
		WriteStoreError(c, err, "failed to save analysis")
		return
	}
	c.Set("analysisId", rec.ID)
	status := http.StatusCreated
	if !persisted {
		status = http.StatusOK
	}
	respond.JSON(c, status, submitResponse{Analysis: rec, Persisted: persisted})
}

func (h *Handler) listAnalyses(c *gin.Context) {
	sortBy := strings.ToLower(strings.TrimSpace(c.DefaultQuery("sort", "created")))
	if sortBy != "created" && sortBy != "accessed" {
		respond.Invalid(c, "sort must be created or accessed", "sort", "invalid")
		return
	}

	client := h.client(c)
	ctx := c.Request.Context()
	var (
		records []Record
		err     error
	)
	if repoURL := strings.TrimSpace(c.Query("repoUrl")); repoURL != "" {
		records, err = client.Get(ctx, repoURL)
	} else {
		records, err = client.GetAll(ctx)
	}
	if err != nil {
		WriteStoreError(c, err, "failed to list analyses")
		return
	}

	if c.Query("favorite") == "true" {
		favorites := make([]Record, 0, len(records))
		for _, rec := range records {
			if rec.IsFavorite {
				favorites = append(favorites, rec)
			}
		}
		records = favorites
	}
	if sortBy == "accessed" {
		SortByLastAccessedDesc(records)
	} else {
		SortByCreatedDesc(records)
	}
	respond.OK(c, records)
}

func (h *Handler) getAnalysis(c *gin.Context) {
	analysisID := c.Param("id")
	c.Set("analysisId", analysisID)
	rec, err := h.client(c).GetByID(c.Request.Context(), analysisID)
	if err != nil {
		WriteStoreError(c, err, "failed to fetch analysis")
		return
	}
	respond.OK(c, rec)
}

func (h *Handler) deleteAnalysis(c *gin.Context) {
	analysisID := c.Param("id")
	c.Set("analysisId", analysisID)
	err := h.client(c).Delete(c.Request.Context(), analysisID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		WriteStoreError(c, err, "failed to delete analysis")
		return
	}
	respond.NoContent(c)
}

func (h *Handler) setFavorite(c *gin.Context) {
	analysisID := c.Param("id")
	c.Set("analysisId", analysisID)
	var req favoriteRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsFavorite == nil {
		respond.Invalid(c, "isFavorite is required", "isFavorite", "required")
		return
	}
	rec, err := h.client(c).ToggleFavorite(c.Request.Context(), analysisID, *req.IsFavorite)
	if err != nil {
		WriteStoreError(c, err, "failed to update favorite")
		return
	}
	respond.OK(c, rec)
}

// touchAnalysis records a view without making the caller wait for the store.
func (h *Handler) touchAnalysis(c *gin.Context) {
	analysisID := c.Param("id")
	c.Set("analysisId", analysisID)
	client := h.client(c)
	if client.Session().Anonymous() {
		respond.Unauthorized(c)
		return
	}
	ctx := telemetry.Detach(c.Request.Context())
	h.bg.Add(1)
	go func() {
		defer h.bg.Done()
		client.TouchLastAccessed(ctx, analysisID)
	}()
	respond.Accepted(c)
}

// WriteStoreError maps a store client error to the standard error response.
func WriteStoreError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, ErrAuthRequired):
		respond.Unauthorized(c)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, respond.CodeNotFound, "analysis not found", nil)
	case errors.Is(err, ErrValidation):
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, err.Error(), nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respond.Canceled(c)
	case IsPersistence(err):
		respond.Error(c, http.StatusServiceUnavailable, respond.CodePersistence, msg, nil)
	default:
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, msg, nil)
	}
}
