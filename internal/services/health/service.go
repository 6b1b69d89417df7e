package health

import (
	"context"
	"database/sql"
	"time"

	"onboarding-backend/internal/shared/storage/db"
)

// Report is the result of a health check.
type Report struct {
	OK       bool           `json:"ok"`
	Storage  string         `json:"storage"`
	Database string         `json:"db"`
	Pool     map[string]any `json:"pool,omitempty"`
}

// Service encapsulates health-related checks.
type Service struct {
	DB      *sql.DB
	Storage string
}

// NewService constructs a health service. db may be nil for in-memory storage.
func NewService(db *sql.DB, storage string) *Service {
	return &Service{DB: db, Storage: storage}
}

// Check pings the database, if any.
func (s *Service) Check(ctx context.Context) Report {
	r := Report{OK: true, Storage: s.Storage, Database: "n/a"}
	if s.DB == nil {
		return r
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.DB.PingContext(ctx); err != nil {
		r.OK = false
		r.Database = "down"
		return r
	}
	r.Database = "up"
	r.Pool = db.PoolStats(s.DB)
	return r
}
