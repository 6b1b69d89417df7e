package export

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"onboarding-backend/internal/analyses"
	"onboarding-backend/internal/identity"
	"onboarding-backend/internal/shared/auth"
	"onboarding-backend/internal/shared/server/middleware"
	"onboarding-backend/internal/shared/storage/object/local"
)

func TestDownloadReturnsCallersRecords(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m, err := auth.NewManager("test-secret", "onboarding-backend", "test")
	require.NoError(t, err)
	token, err := m.Sign(auth.Claims{Sub: "u1"})
	require.NoError(t, err)

	svc := analyses.NewService(analyses.NewMemoryRepo(), nil)
	ctx := context.Background()
	_, err = svc.ForSession(identity.New("u1", "", "", token)).Create(ctx, "https://github.com/acme/widgets", analyses.Payload{Data: json.RawMessage(`{}`)})
	require.NoError(t, err)
	_, err = svc.ForSession(identity.New("u2", "", "", "other")).Create(ctx, "https://github.com/acme/secret", analyses.Payload{Data: json.RawMessage(`{}`)})
	require.NoError(t, err)

	h := NewHandler(svc, nil)
	h.Now = func() time.Time { return time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC) }
	router := gin.New()
	h.RegisterRoutes(router.Group("/api/v1", middleware.Auth(m)))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analyses/export.xlsx", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, ContentType, resp.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="analyses-u1-20260402.xlsx"`, resp.Header().Get("Content-Disposition"))

	f, err := excelize.OpenReader(bytes.NewReader(resp.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "https://github.com/acme/widgets", rows[1][1])
}

type archiveFixture struct {
	router *gin.Engine
	token  string
	other  string
}

func newArchiveFixture(t *testing.T, withArchive bool) archiveFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	m, err := auth.NewManager("test-secret", "onboarding-backend", "test")
	require.NoError(t, err)
	token, err := m.Sign(auth.Claims{Sub: "u1"})
	require.NoError(t, err)
	other, err := m.Sign(auth.Claims{Sub: "u2"})
	require.NoError(t, err)

	svc := analyses.NewService(analyses.NewMemoryRepo(), nil)
	_, err = svc.ForSession(identity.New("u1", "", "", token)).Create(context.Background(), "https://github.com/acme/widgets", analyses.Payload{Data: json.RawMessage(`{}`)})
	require.NoError(t, err)

	h := NewHandler(svc, nil)
	if withArchive {
		h.Archive = local.New(t.TempDir())
	}
	h.Now = func() time.Time { return time.Date(2026, 4, 2, 10, 30, 0, 0, time.UTC) }
	router := gin.New()
	h.RegisterRoutes(router.Group("/api/v1", middleware.Auth(m)))
	return archiveFixture{router: router, token: token, other: other}
}

func (f archiveFixture) do(method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)
	return resp
}

func TestArchiveStoresAndServesExport(t *testing.T) {
	f := newArchiveFixture(t, true)

	resp := f.do(http.MethodPost, "/api/v1/exports", f.token)
	require.Equal(t, http.StatusCreated, resp.Code)
	var body archivedExport
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Regexp(t, `^analyses-20260402T103000Z-[0-9a-f]{8}\.xlsx$`, body.Name)
	assert.Equal(t, 1, body.Records)
	assert.Positive(t, body.SizeBytes)
	assert.Equal(t, "/api/v1/exports/"+body.Name, body.URL)

	got := f.do(http.MethodGet, body.URL, f.token)
	require.Equal(t, http.StatusOK, got.Code)
	assert.Equal(t, ContentType, got.Header().Get("Content-Type"))
	wb, err := excelize.OpenReader(bytes.NewReader(got.Body.Bytes()))
	require.NoError(t, err)
	defer wb.Close()
	rows, err := wb.GetRows(SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	// Archived exports are namespaced per user.
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, body.URL, f.other).Code)
}

func TestArchivesInSameSecondDoNotCollide(t *testing.T) {
	f := newArchiveFixture(t, true)

	var urls []string
	for i := 0; i < 2; i++ {
		resp := f.do(http.MethodPost, "/api/v1/exports", f.token)
		require.Equal(t, http.StatusCreated, resp.Code)
		var body archivedExport
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
		urls = append(urls, body.URL)
	}

	assert.NotEqual(t, urls[0], urls[1])
	for _, u := range urls {
		assert.Equal(t, http.StatusOK, f.do(http.MethodGet, u, f.token).Code)
	}
}

func TestArchiveUnavailable(t *testing.T) {
	f := newArchiveFixture(t, false)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodPost, "/api/v1/exports", f.token).Code)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodGet, "/api/v1/exports/x.xlsx", f.token).Code)
}

func TestArchivedExportRejectsBadName(t *testing.T) {
	f := newArchiveFixture(t, true)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/v1/exports/bad..name.xlsx", f.token).Code)
}
