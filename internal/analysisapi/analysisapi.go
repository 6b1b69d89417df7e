// Package analysisapi calls the external Analysis API that turns a repository
// reference into an opaque JSON analysis payload.
package analysisapi

import (
	"context"
	"encoding/json"
	"errors"

	"onboarding-backend/internal/analyses"
)

// ErrNotConfigured is returned by the placeholder client.
var ErrNotConfigured = errors.New("analysis api not configured")

// PlaceholderClient stands in when ANALYSIS_API_URL is unset.
type PlaceholderClient struct{}

// Analyze always fails with ErrNotConfigured.
func (PlaceholderClient) Analyze(ctx context.Context, repoURL string) (json.RawMessage, analyses.Optional[analyses.TokenUsage], error) {
	return nil, analyses.None[analyses.TokenUsage](), ErrNotConfigured
}
