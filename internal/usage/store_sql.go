package usage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
)

const usageTable = "user_usage"

// SQLStore keeps usage counters in the user_usage table (Postgres or SQLite).
type SQLStore struct {
	DB     *sql.DB
	sqlite bool
	maxFn  string
}

// NewSQLStore constructs a SQL-backed usage store. dialect is "postgres" or "sqlite".
func NewSQLStore(db *sql.DB, dialect string) *SQLStore {
	s := &SQLStore{DB: db, sqlite: dialect == "sqlite", maxFn: "GREATEST"}
	if s.sqlite {
		s.maxFn = "MAX"
	}
	return s
}

func (s *SQLStore) builder() sq.StatementBuilderType {
	if s.sqlite {
		return sq.StatementBuilder.PlaceholderFormat(sq.Question)
	}
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

// Get returns the counters for userID, or zero values when no row exists.
func (s *SQLStore) Get(ctx context.Context, userID string) (Usage, error) {
	query, args, err := s.builder().
		Select("analyses_created", "total_tokens", "last_analysis_at").
		From(usageTable).
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return Usage{}, err
	}
	u := Usage{UserID: userID}
	var last sql.NullTime
	err = s.DB.QueryRowContext(ctx, query, args...).Scan(&u.AnalysesCreated, &u.TotalTokens, &last)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return u, nil
		}
		return Usage{}, err
	}
	if last.Valid {
		at := last.Time.UTC()
		u.LastAnalysisAt = &at
	}
	return u, nil
}

// Add upserts the user's row, incrementing the counters in a single statement.
func (s *SQLStore) Add(ctx context.Context, userID string, tokens int64, at time.Time) error {
	query, args, err := s.builder().
		Insert(usageTable).
		Columns("user_id", "analyses_created", "total_tokens", "last_analysis_at").
		Values(userID, 1, tokens, at).
		Suffix("ON CONFLICT (user_id) DO UPDATE SET " +
			"analyses_created = " + usageTable + ".analyses_created + 1, " +
			"total_tokens = " + usageTable + ".total_tokens + excluded.total_tokens, " +
			"last_analysis_at = " + s.maxFn + "(COALESCE(" + usageTable + ".last_analysis_at, excluded.last_analysis_at), excluded.last_analysis_at)").
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, query, args...)
	return err
}
