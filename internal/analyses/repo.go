package analyses

import (
	"context"
	"time"
)

// Repo defines persistence operations for the analyses collection.
// Implementations must scope every read by owner and report missing ids as ErrNotFound.
type Repo interface {
	Create(ctx context.Context, record Record) error
	GetByID(ctx context.Context, userID, id string) (Record, error)
	ListByUser(ctx context.Context, userID string) ([]Record, error)
	ListByUserAndRepo(ctx context.Context, userID, repoURL string) ([]Record, error)
	Delete(ctx context.Context, userID, id string) error
	SetFavorite(ctx context.Context, userID, id string, value bool, updatedAt time.Time) (Record, error)
	TouchLastAccessed(ctx context.Context, userID, id string, at time.Time) error
}
