package export

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"onboarding-backend/internal/analyses"
)

func TestWriteXLSXRows(t *testing.T) {
	created := time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)
	records := []analyses.Record{
		{
			ID:             "a1",
			RepoURL:        "https://github.com/acme/widgets",
			RepoName:       "acme/widgets",
			Data:           json.RawMessage(`{}`),
			Metadata:       analyses.Some(analyses.Metadata{Language: "Go", Complexity: analyses.ComplexityLow}),
			TokenUsage:     analyses.Some(analyses.TokenUsage{TotalTokens: 1234}),
			Status:         analyses.StatusCompleted,
			IsFavorite:     true,
			CreatedAt:      created,
			LastAccessedAt: created.Add(time.Hour),
		},
		{
			ID:        "a2",
			RepoURL:   "https://github.com/acme/gadgets",
			RepoName:  "acme/gadgets",
			Data:      json.RawMessage(`{}`),
			Status:    analyses.StatusCompleted,
			CreatedAt: created,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, records))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "ID", rows[0][0])
	assert.Equal(t, []string{
		"a1", "https://github.com/acme/widgets", "acme/widgets", "completed", "yes",
		"Go", "low", "1234", "2026-04-02T08:30:00Z", "2026-04-02T09:30:00Z",
	}, rows[1])
	assert.Equal(t, "a2", rows[2][0])
	assert.Equal(t, "no", rows[2][4])
	assert.Equal(t, "", rows[2][5])
}

func TestWriteXLSXEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestFileName(t *testing.T) {
	now := time.Date(2026, 4, 2, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "analyses-u1-20260402.xlsx", FileName("u1", now))
	assert.Equal(t, "analyses-20260402.xlsx", FileName("", now))
	assert.Equal(t, "analyses-github_42-20260402.xlsx", FileName("github/42", now))
	assert.Equal(t, "analyses-20260402.xlsx", FileName("../x", now))
}
