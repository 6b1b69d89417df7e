package selection

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"onboarding-backend/internal/analyses"
	"onboarding-backend/internal/shared/server/middleware"
	"onboarding-backend/internal/shared/server/respond"
)

// Handler exposes the session's selection over HTTP.
type Handler struct {
	Registry *Registry
}

// NewHandler constructs a Handler.
func NewHandler(registry *Registry) *Handler {
	return &Handler{Registry: registry}
}

// RegisterRoutes attaches selection routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/selection", h.get)
	rg.PUT("/selection", h.put)
	rg.DELETE("/selection", h.clear)
	rg.GET("/selection/events", h.events)
	rg.POST("/repositories/refresh", h.refresh)
	rg.POST("/session/logout", h.logout)
}

type selectRequest struct {
	ID string `json:"id"`
}

type selectionResponse struct {
	Selected   *analyses.Record   `json:"selected"`
	RepoURL    *string            `json:"repoUrl"`
	RepoName   *string            `json:"repoName"`
	AnalysisID *string            `json:"analysisId"`
	Metadata   *analyses.Metadata `json:"metadata"`
}

func (h *Handler) contextFor(c *gin.Context) (*Context, bool) {
	sctx, err := h.Registry.For(middleware.SessionFromContext(c))
	if err != nil {
		respond.Unauthorized(c)
		return nil, false
	}
	return sctx, true
}

func (h *Handler) get(c *gin.Context) {
	sctx, ok := h.contextFor(c)
	if !ok {
		return
	}
	respond.OK(c, view(sctx))
}

func (h *Handler) put(c *gin.Context) {
	sctx, ok := h.contextFor(c)
	if !ok {
		return
	}
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ID) == "" {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "id is required", nil)
		return
	}
	if _, err := sctx.SelectByID(c.Request.Context(), strings.TrimSpace(req.ID)); err != nil {
		analyses.WriteStoreError(c, err, "failed to select analysis")
		return
	}
	c.Set("analysisId", req.ID)
	respond.OK(c, view(sctx))
}

func (h *Handler) clear(c *gin.Context) {
	sctx, ok := h.contextFor(c)
	if !ok {
		return
	}
	sctx.Deselect()
	respond.NoContent(c)
}

func (h *Handler) refresh(c *gin.Context) {
	sctx, ok := h.contextFor(c)
	if !ok {
		return
	}
	sctx.Refresh(c.Request.Context())
	respond.OK(c, sctx.Snapshot())
}

func (h *Handler) logout(c *gin.Context) {
	sess := middleware.SessionFromContext(c)
	if sess.Anonymous() {
		respond.Unauthorized(c)
		return
	}
	h.Registry.Logout(sess.ID)
	respond.NoContent(c)
}

// events streams snapshots as server-sent events until the client leaves or the
// session logs out.
func (h *Handler) events(c *gin.Context) {
	sctx, ok := h.contextFor(c)
	if !ok {
		return
	}
	ch, cancel := sctx.Subscribe()
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.SSEvent("snapshot", sctx.Snapshot())
	c.Writer.Flush()

	streamSnapshots(c.Request.Context(), ch, func(snap Snapshot) {
		c.SSEvent("snapshot", snap)
		c.Writer.Flush()
	})
}

func streamSnapshots(ctx context.Context, ch <-chan Snapshot, emit func(Snapshot)) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-ch:
			if !ok {
				return
			}
			emit(snap)
		}
	}
}

func view(sctx *Context) selectionResponse {
	rec, ok := sctx.Selected()
	if !ok {
		return selectionResponse{}
	}
	resp := selectionResponse{
		Selected:   &rec,
		RepoURL:    &rec.RepoURL,
		RepoName:   &rec.RepoName,
		AnalysisID: &rec.ID,
	}
	if md, ok := rec.Metadata.Get(); ok {
		resp.Metadata = &md
	}
	return resp
}
