package usage

import (
	"context"
	"sync"
	"time"
)

type memoryStore struct {
	mu   sync.RWMutex
	data map[string]Usage
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string]Usage)}
}

func (s *memoryStore) Get(ctx context.Context, userID string) (Usage, error) {
	if err := ctx.Err(); err != nil {
		return Usage{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.data[userID]
	if !ok {
		return Usage{UserID: userID}, nil
	}
	if u.LastAnalysisAt != nil {
		at := *u.LastAnalysisAt
		u.LastAnalysisAt = &at
	}
	return u, nil
}

func (s *memoryStore) Add(ctx context.Context, userID string, tokens int64, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.data[userID]
	u.UserID = userID
	u.AnalysesCreated++
	u.TotalTokens += tokens
	if u.LastAnalysisAt == nil || at.After(*u.LastAnalysisAt) {
		u.LastAnalysisAt = &at
	}
	s.data[userID] = u
	return nil
}
