package usage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceRecordAnalysisAccumulates(t *testing.T) {
	svc := NewService()
	ctx := context.Background()
	first := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, svc.RecordAnalysis(ctx, "u1", 1200, first))
	require.NoError(t, svc.RecordAnalysis(ctx, "u1", 300, first.Add(time.Hour)))
	require.NoError(t, svc.RecordAnalysis(ctx, "u2", 50, first))

	u, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), u.AnalysesCreated)
	assert.Equal(t, int64(1500), u.TotalTokens)
	require.NotNil(t, u.LastAnalysisAt)
	assert.True(t, u.LastAnalysisAt.Equal(first.Add(time.Hour)))
}

func TestServiceLastAnalysisNeverMovesBackwards(t *testing.T) {
	svc := NewService()
	ctx := context.Background()
	late := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, svc.RecordAnalysis(ctx, "u1", 0, late))
	require.NoError(t, svc.RecordAnalysis(ctx, "u1", 0, late.Add(-time.Hour)))

	u, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, u.LastAnalysisAt.Equal(late))
}

func TestServiceUnknownUserHasZeroCounters(t *testing.T) {
	u, err := NewService().Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, Usage{UserID: "nobody"}, u)
}

func TestServiceRejectsMissingUser(t *testing.T) {
	svc := NewService()
	_, err := svc.Get(context.Background(), " ")
	assert.ErrorIs(t, err, ErrUserRequired)
	assert.ErrorIs(t, svc.RecordAnalysis(context.Background(), "", 1, time.Now()), ErrUserRequired)
}

func TestServiceClampsNegativeTokens(t *testing.T) {
	svc := NewService()
	ctx := context.Background()
	require.NoError(t, svc.RecordAnalysis(ctx, "u1", -10, time.Now()))
	u, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), u.TotalTokens)
	assert.Equal(t, int64(1), u.AnalysesCreated)
}
