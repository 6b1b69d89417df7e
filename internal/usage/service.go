package usage

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrUserRequired is returned when a call has no user id.
var ErrUserRequired = errors.New("user id required")

type store interface {
	Get(ctx context.Context, userID string) (Usage, error)
	Add(ctx context.Context, userID string, tokens int64, at time.Time) error
}

// Service manages usage data via an underlying store.
type Service struct {
	store store
}

// NewService constructs a Service with in-memory store.
func NewService() *Service {
	return &Service{store: newMemoryStore()}
}

// NewSQLService constructs a Service backed by the user_usage table.
func NewSQLService(sqlStore *SQLStore) *Service {
	return &Service{store: sqlStore}
}

// Get returns the counters for a user. Users with no analyses get zero values.
func (s *Service) Get(ctx context.Context, userID string) (Usage, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Usage{}, ErrUserRequired
	}
	return s.store.Get(ctx, userID)
}

// RecordAnalysis counts one saved analysis and its token spend.
func (s *Service) RecordAnalysis(ctx context.Context, userID string, tokens int64, at time.Time) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrUserRequired
	}
	if tokens < 0 {
		tokens = 0
	}
	return s.store.Add(ctx, userID, tokens, at.UTC())
}
