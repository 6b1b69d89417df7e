package export

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"onboarding-backend/internal/analyses"
	"onboarding-backend/internal/shared/server/middleware"
	"onboarding-backend/internal/shared/server/respond"
	"onboarding-backend/internal/shared/storage/object"
	"onboarding-backend/internal/shared/telemetry"
)

const archiveTimeLayout = "20060102T150405Z"

// Handler serves spreadsheet exports of the caller's analyses. Archive is
// optional; without it only direct downloads are available.
type Handler struct {
	Svc     *analyses.Service
	Archive object.Store
	Now     func() time.Time
}

// NewHandler constructs a Handler.
func NewHandler(svc *analyses.Service, archive object.Store) *Handler {
	return &Handler{Svc: svc, Archive: archive, Now: time.Now}
}

// RegisterRoutes attaches export routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/analyses/export.xlsx", h.download)
	rg.POST("/exports", h.archive)
	rg.GET("/exports/:name", h.openArchived)
}

type archivedExport struct {
	Name      string    `json:"name"`
	SizeBytes int64     `json:"sizeBytes"`
	Records   int       `json:"records"`
	CreatedAt time.Time `json:"createdAt"`
	URL       string    `json:"url"`
}

func (h *Handler) download(c *gin.Context) {
	sess := middleware.SessionFromContext(c)
	buf, _, err := h.build(c)
	if err != nil {
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, FileName(sess.UserID, h.Now())))
	c.Data(http.StatusOK, ContentType, buf.Bytes())
}

// archive stores a snapshot of the caller's export in object storage.
func (h *Handler) archive(c *gin.Context) {
	if h.Archive == nil {
		respond.Error(c, http.StatusServiceUnavailable, "archive_unavailable", "export archive not configured", nil)
		return
	}
	sess := middleware.SessionFromContext(c)
	buf, count, err := h.build(c)
	if err != nil {
		return
	}

	now := h.Now().UTC()
	name := archiveName(now)
	key, err := object.UserKey(sess.UserID, name)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "failed to archive export", nil)
		return
	}
	size, err := h.Archive.Save(c.Request.Context(), key, ContentType, buf)
	if err != nil {
		telemetry.Error("export.archive_failed", map[string]any{
			"user_id":    sess.UserID,
			"request_id": middleware.RequestIDFromContext(c),
			"error":      err.Error(),
		})
		respond.Error(c, http.StatusServiceUnavailable, respond.CodePersistence, "failed to archive export", nil)
		return
	}
	respond.Created(c, archivedExport{
		Name:      name,
		SizeBytes: size,
		Records:   count,
		CreatedAt: now,
		URL:       "/api/v1/exports/" + name,
	})
}

func (h *Handler) openArchived(c *gin.Context) {
	if h.Archive == nil {
		respond.Error(c, http.StatusServiceUnavailable, "archive_unavailable", "export archive not configured", nil)
		return
	}
	sess := middleware.SessionFromContext(c)
	if sess.Anonymous() {
		respond.Unauthorized(c)
		return
	}
	name := c.Param("name")
	key, err := object.UserKey(sess.UserID, name)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "invalid export name", nil)
		return
	}
	rc, err := h.Archive.Open(c.Request.Context(), key)
	switch {
	case errors.Is(err, object.ErrNotFound):
		respond.Error(c, http.StatusNotFound, respond.CodeNotFound, "export not found", nil)
		return
	case errors.Is(err, object.ErrInvalidKey):
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "invalid export name", nil)
		return
	case err != nil:
		respond.Error(c, http.StatusServiceUnavailable, respond.CodePersistence, "failed to open export", nil)
		return
	}
	defer rc.Close()
	c.DataFromReader(http.StatusOK, -1, ContentType, rc, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, name),
	})
}

// build renders the caller's records, newest first. On failure the error
// response has already been written.
func (h *Handler) build(c *gin.Context) (*bytes.Buffer, int, error) {
	sess := middleware.SessionFromContext(c)
	ctx := c.Request.Context()
	records, err := h.Svc.ForSession(sess).GetAll(ctx)
	if err != nil {
		analyses.WriteStoreError(c, err, "failed to export analyses")
		return nil, 0, err
	}
	analyses.SortByCreatedDesc(records)

	var buf bytes.Buffer
	if err := WriteXLSX(&buf, records); err != nil {
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "failed to build spreadsheet", nil)
		return nil, 0, err
	}
	return &buf, len(records), nil
}

// archiveName is unique per call so archives made in the same second do not overwrite each other.
func archiveName(at time.Time) string {
	return fmt.Sprintf("analyses-%s-%s.xlsx", at.Format(archiveTimeLayout), uuid.NewString()[:8])
}
