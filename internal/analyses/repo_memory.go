package analyses

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo stores analyses in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu       sync.RWMutex
	byID     map[string]Record
	byUser   map[string][]string
	failWith error
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID:   make(map[string]Record),
		byUser: make(map[string][]string),
	}
}

// FailWith makes every later call return err until it is called with nil.
// Used to simulate an unreachable store.
func (r *MemoryRepo) FailWith(err error) {
	r.mu.Lock()
	r.failWith = err
	r.mu.Unlock()
}

func (r *MemoryRepo) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.failWith
}

// Create stores the record. Ids are never reused, even after deletion.
func (r *MemoryRepo) Create(ctx context.Context, record Record) error {
	if err := r.check(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[record.ID]; exists {
		return validationErr("duplicate id")
	}
	r.byID[record.ID] = record.Clone()
	r.byUser[record.UserID] = append(r.byUser[record.UserID], record.ID)
	return nil
}

// GetByID returns a record owned by userID.
func (r *MemoryRepo) GetByID(ctx context.Context, userID, id string) (Record, error) {
	if err := r.check(ctx); err != nil {
		return Record{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.byID[id]
	if !ok || record.UserID != userID {
		return Record{}, ErrNotFound
	}
	return record.Clone(), nil
}

// ListByUser returns all records owned by userID in insertion order.
func (r *MemoryRepo) ListByUser(ctx context.Context, userID string) ([]Record, error) {
	return r.list(ctx, userID, func(Record) bool { return true })
}

// ListByUserAndRepo returns records owned by userID for repoURL.
func (r *MemoryRepo) ListByUserAndRepo(ctx context.Context, userID, repoURL string) ([]Record, error) {
	return r.list(ctx, userID, func(rec Record) bool { return rec.RepoURL == repoURL })
}

func (r *MemoryRepo) list(ctx context.Context, userID string, keep func(Record) bool) ([]Record, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, 0, len(r.byUser[userID]))
	for _, id := range r.byUser[userID] {
		rec, ok := r.byID[id]
		if ok && keep(rec) {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

// Delete removes the record permanently.
func (r *MemoryRepo) Delete(ctx context.Context, userID, id string) error {
	if err := r.check(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok || rec.UserID != userID {
		return ErrNotFound
	}
	delete(r.byID, id)
	ids := r.byUser[userID]
	for i := range ids {
		if ids[i] == id {
			r.byUser[userID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

// SetFavorite updates the favorite flag and updatedAt.
func (r *MemoryRepo) SetFavorite(ctx context.Context, userID, id string, value bool, updatedAt time.Time) (Record, error) {
	if err := r.check(ctx); err != nil {
		return Record{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok || rec.UserID != userID {
		return Record{}, ErrNotFound
	}
	rec.IsFavorite = value
	rec.UpdatedAt = nextUpdatedAt(rec.UpdatedAt, updatedAt)
	r.byID[id] = rec
	return rec.Clone(), nil
}

// TouchLastAccessed sets lastAccessedAt. updatedAt is left alone.
func (r *MemoryRepo) TouchLastAccessed(ctx context.Context, userID, id string, at time.Time) error {
	if err := r.check(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok || rec.UserID != userID {
		return ErrNotFound
	}
	rec.LastAccessedAt = at
	r.byID[id] = rec
	return nil
}

// nextUpdatedAt keeps updatedAt strictly increasing per record even when the clock stalls.
func nextUpdatedAt(prev, now time.Time) time.Time {
	if now.After(prev) {
		return now
	}
	return prev.Add(time.Microsecond)
}

var _ Repo = (*MemoryRepo)(nil)
