package analysisapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"onboarding-backend/internal/analyses"
	"onboarding-backend/internal/identity"
	"onboarding-backend/internal/shared/telemetry"
)

const maxResponseBytes = 16 << 20

// StatusError reports a non-2xx answer from the Analysis API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("analysis api status %d: %s", e.Code, e.Body)
}

// Client posts repository references to the Analysis API.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient constructs a Client for endpoint. A zero timeout means 90s.
func NewClient(endpoint string, timeout time.Duration) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("ANALYSIS_API_URL is required")
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type analyzeRequest struct {
	RepoURL string `json:"repoUrl"`
}

// usageEnvelope picks token counts out of the payload without interpreting anything else.
type usageEnvelope struct {
	Usage *struct {
		TotalTokens *int64 `json:"totalTokens"`
	} `json:"usage"`
}

// Analyze runs an analysis for repoURL. The response body is returned verbatim.
// The caller's bearer token, if the context carries a session, is forwarded.
func (c *Client) Analyze(ctx context.Context, repoURL string) (json.RawMessage, analyses.Optional[analyses.TokenUsage], error) {
	none := analyses.None[analyses.TokenUsage]()
	payload, err := json.Marshal(analyzeRequest{RepoURL: strings.TrimSpace(repoURL)})
	if err != nil {
		return nil, none, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, none, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if sess := identity.FromContext(ctx); sess.Token != "" {
		req.Header.Set("Authorization", "Bearer "+sess.Token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return nil, none, fmt.Errorf("analysis api request timeout: %w", err)
		}
		return nil, none, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, none, err
	}
	telemetry.Info("analysisapi.response", map[string]any{
		"repo_url":    repoURL,
		"status":      resp.StatusCode,
		"bytes":       len(body),
		"duration_ms": float64(time.Since(start).Microseconds()) / 1000.0,
	})
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, none, &StatusError{Code: resp.StatusCode, Body: truncate(string(body), 512)}
	}
	body = bytes.TrimSpace(body)
	if !json.Valid(body) {
		return nil, none, fmt.Errorf("analysis api returned invalid json")
	}

	var env usageEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Usage != nil && env.Usage.TotalTokens != nil {
		return json.RawMessage(body), analyses.Some(analyses.TokenUsage{TotalTokens: *env.Usage.TotalTokens}), nil
	}
	return json.RawMessage(body), none, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
