package analyses

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"onboarding-backend/internal/identity"
	"onboarding-backend/internal/shared/metrics"
	"onboarding-backend/internal/shared/telemetry"
)

// UsageRecorder receives per-user counters after a record is persisted.
type UsageRecorder interface {
	RecordAnalysis(ctx context.Context, userID string, tokens int64, at time.Time) error
}

// Service holds the dependencies shared by every session's Client.
type Service struct {
	Repo  Repo
	Usage UsageRecorder
	Now   func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repo, usage UsageRecorder) *Service {
	return &Service{Repo: repo, Usage: usage}
}

// ForSession returns the store client acting for sess.
func (s *Service) ForSession(sess identity.Session) *Client {
	return &Client{svc: s, session: sess}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC().Truncate(time.Microsecond)
	}
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Client performs remote CRUD over a single user's records. It caches nothing.
type Client struct {
	svc     *Service
	session identity.Session
}

// Session returns the session the client acts for.
func (c *Client) Session() identity.Session {
	return c.session
}

func (c *Client) userID() (string, error) {
	if c == nil || c.svc == nil || c.svc.Repo == nil {
		return "", errors.New("analyses client not configured")
	}
	if c.session.Anonymous() {
		return "", ErrAuthRequired
	}
	return c.session.UserID, nil
}

// Create saves a new completed analysis and returns its id.
func (c *Client) Create(ctx context.Context, repoURL string, payload Payload) (string, error) {
	rec, err := c.create(ctx, repoURL, payload)
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

// CreateRecord is Create returning the stored record.
func (c *Client) CreateRecord(ctx context.Context, repoURL string, payload Payload) (Record, error) {
	return c.create(ctx, repoURL, payload)
}

// CreateOrFallback saves the analysis, or on persistence failure returns an unsaved
// record with a local id so the result stays usable. The bool reports durability.
// The local record is never reconciled with the store later.
func (c *Client) CreateOrFallback(ctx context.Context, repoURL string, payload Payload) (Record, bool, error) {
	rec, err := c.create(ctx, repoURL, payload)
	if err == nil {
		return rec, true, nil
	}
	if !IsPersistence(err) {
		return Record{}, false, err
	}
	telemetry.Warn("analysis.persist_fallback", map[string]any{
		"user_id":    c.session.UserID,
		"repo_url":   repoURL,
		"request_id": telemetry.RequestID(ctx),
		"error":      err.Error(),
	})
	local, buildErr := c.buildRecord(repoURL, payload)
	if buildErr != nil {
		return Record{}, false, buildErr
	}
	local.ID = LocalIDPrefix + uuid.NewString()
	return local, false, nil
}

func (c *Client) buildRecord(repoURL string, payload Payload) (Record, error) {
	userID, err := c.userID()
	if err != nil {
		return Record{}, err
	}
	repoURL = strings.TrimSpace(repoURL)
	if repoURL == "" {
		return Record{}, validationErr("repoUrl is required")
	}
	data := payload.Data
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	if !json.Valid(data) {
		return Record{}, validationErr("data must be valid JSON")
	}
	if tu, ok := payload.TokenUsage.Get(); ok && tu.TotalTokens < 0 {
		return Record{}, validationErr("tokenUsage.totalTokens must be non-negative")
	}
	name := strings.TrimSpace(payload.RepoName)
	if name == "" {
		name = RepoNameFromURL(repoURL)
	}
	now := c.svc.now()
	return Record{
		ID:             uuid.NewString(),
		UserID:         userID,
		RepoURL:        repoURL,
		RepoName:       name,
		Data:           append(json.RawMessage(nil), data...),
		Metadata:       payload.Metadata,
		TokenUsage:     payload.TokenUsage,
		Status:         StatusCompleted,
		IsFavorite:     false,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastAccessedAt: now,
	}, nil
}

func (c *Client) create(ctx context.Context, repoURL string, payload Payload) (Record, error) {
	rec, err := c.buildRecord(repoURL, payload)
	if err != nil {
		return Record{}, err
	}
	start := time.Now()
	err = c.svc.Repo.Create(ctx, rec)
	metrics.ObserveStoreDurationMs(float64(time.Since(start).Microseconds()) / 1000.0)
	if err != nil {
		metrics.IncPersistFailed()
		return Record{}, persistErr("create", err)
	}
	metrics.IncRecordsCreated()
	telemetry.Info("analysis.created", map[string]any{
		"analysis_id": rec.ID,
		"user_id":     rec.UserID,
		"repo_url":    rec.RepoURL,
		"request_id":  telemetry.RequestID(ctx),
	})
	if c.svc.Usage != nil {
		tokens := rec.TokenUsage.OrElse(TokenUsage{}).TotalTokens
		if err := c.svc.Usage.RecordAnalysis(ctx, rec.UserID, tokens, rec.CreatedAt); err != nil {
			telemetry.Warn("usage.record_failed", map[string]any{"user_id": rec.UserID, "error": err.Error()})
		}
	}
	return rec, nil
}

// GetAll returns every record owned by the session user, in no guaranteed order.
func (c *Client) GetAll(ctx context.Context) ([]Record, error) {
	userID, err := c.userID()
	if err != nil {
		return nil, err
	}
	records, err := c.svc.Repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, persistErr("list", err)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// Get returns the session user's records for repoURL. Repeat analyses of a repo all match.
func (c *Client) Get(ctx context.Context, repoURL string) ([]Record, error) {
	userID, err := c.userID()
	if err != nil {
		return nil, err
	}
	records, err := c.svc.Repo.ListByUserAndRepo(ctx, userID, strings.TrimSpace(repoURL))
	if err != nil {
		return nil, persistErr("list", err)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// GetByID returns one record owned by the session user.
func (c *Client) GetByID(ctx context.Context, id string) (Record, error) {
	userID, err := c.userID()
	if err != nil {
		return Record{}, err
	}
	rec, err := c.svc.Repo.GetByID(ctx, userID, id)
	if err != nil {
		return Record{}, persistErr("get", err)
	}
	return rec, nil
}

// Delete removes the record permanently. A missing id yields ErrNotFound, which callers
// should treat as already deleted.
func (c *Client) Delete(ctx context.Context, id string) error {
	userID, err := c.userID()
	if err != nil {
		return err
	}
	if err := c.svc.Repo.Delete(ctx, userID, id); err != nil {
		return persistErr("delete", err)
	}
	metrics.IncRecordsDeleted()
	telemetry.Info("analysis.deleted", map[string]any{
		"analysis_id": id,
		"user_id":     userID,
		"request_id":  telemetry.RequestID(ctx),
	})
	return nil
}

// ToggleFavorite sets isFavorite to value and refreshes updatedAt.
func (c *Client) ToggleFavorite(ctx context.Context, id string, value bool) (Record, error) {
	userID, err := c.userID()
	if err != nil {
		return Record{}, err
	}
	rec, err := c.svc.Repo.SetFavorite(ctx, userID, id, value, c.svc.now())
	if err != nil {
		return Record{}, persistErr("favorite", err)
	}
	metrics.IncFavoriteToggled()
	return rec, nil
}

// TouchLastAccessed records a view of the analysis. Failures are logged and dropped.
func (c *Client) TouchLastAccessed(ctx context.Context, id string) {
	userID, err := c.userID()
	if err == nil {
		err = c.svc.Repo.TouchLastAccessed(ctx, userID, id, c.svc.now())
	}
	if err != nil {
		metrics.IncTouchFailed()
		telemetry.Warn("analysis.touch_failed", map[string]any{
			"analysis_id": id,
			"user_id":     c.session.UserID,
			"request_id":  telemetry.RequestID(ctx),
			"error":       err.Error(),
		})
	}
}

// SortByCreatedDesc orders records newest first.
func SortByCreatedDesc(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}

// SortByLastAccessedDesc orders records most recently viewed first.
func SortByLastAccessedDesc(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].LastAccessedAt.After(records[j].LastAccessedAt)
	})
}
