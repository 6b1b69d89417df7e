package respond

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboarding-backend/internal/shared/telemetry"
)

func serve(t *testing.T, h gin.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", h)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/x", nil))
	return resp
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return body.Error
}

func TestInvalidIncludesFieldIssue(t *testing.T) {
	resp := serve(t, func(c *gin.Context) { Invalid(c, "repoUrl is required", "repoUrl", "required") })

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	body := decodeError(t, resp)
	assert.Equal(t, CodeValidation, body.Code)
	assert.Equal(t, "repoUrl is required", body.Message)
	assert.Equal(t, []any{map[string]any{"field": "repoUrl", "issue": "required"}}, body.Details)
}

func TestUnauthorizedAndCanceled(t *testing.T) {
	resp := serve(t, Unauthorized)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, CodeUnauthorized, decodeError(t, resp).Code)

	resp = serve(t, Canceled)
	assert.Equal(t, http.StatusRequestTimeout, resp.Code)
	assert.Equal(t, CodeTimeout, decodeError(t, resp).Code)
}

func TestErrorLogLevelFollowsStatus(t *testing.T) {
	var buf bytes.Buffer
	telemetry.SetOutput(&buf)
	t.Cleanup(func() { telemetry.Configure(nil, "") })

	serve(t, func(c *gin.Context) { Error(c, http.StatusServiceUnavailable, CodePersistence, "down", nil) })
	serve(t, Unauthorized)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	var first, second map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &first))
	require.NoError(t, json.Unmarshal(lines[1], &second))
	assert.Equal(t, "error", first["level"])
	assert.Equal(t, "warning", second["level"])
}

func TestStatusHelpers(t *testing.T) {
	assert.Equal(t, http.StatusNoContent, serve(t, NoContent).Code)
	assert.Equal(t, http.StatusAccepted, serve(t, Accepted).Code)
	resp := serve(t, func(c *gin.Context) { Created(c, gin.H{"id": "a1"}) })
	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.JSONEq(t, `{"id":"a1"}`, resp.Body.String())
}
