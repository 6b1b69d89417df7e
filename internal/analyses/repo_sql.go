package analyses

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Dialect selects SQL flavor details for SQLRepo.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

const analysesTable = "analyses"

var recordColumns = []string{
	"id", "user_id", "repo_url", "repo_name", "data", "metadata", "token_usage",
	"status", "is_favorite", "created_at", "updated_at", "last_accessed_at",
}

// SQLRepo implements Repo on database/sql for Postgres (pgx) and SQLite.
type SQLRepo struct {
	DB      *sql.DB
	Dialect Dialect
}

// NewSQLRepo constructs a SQLRepo.
func NewSQLRepo(db *sql.DB, dialect Dialect) *SQLRepo {
	return &SQLRepo{DB: db, Dialect: dialect}
}

func (r *SQLRepo) builder() sq.StatementBuilderType {
	if r.Dialect == DialectSQLite {
		return sq.StatementBuilder.PlaceholderFormat(sq.Question)
	}
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

// Create inserts a new record.
func (r *SQLRepo) Create(ctx context.Context, record Record) error {
	metadata, err := marshalOptional(record.Metadata)
	if err != nil {
		return err
	}
	tokenUsage, err := marshalOptional(record.TokenUsage)
	if err != nil {
		return err
	}
	query, args, err := r.builder().
		Insert(analysesTable).
		Columns(recordColumns...).
		Values(
			record.ID,
			record.UserID,
			record.RepoURL,
			record.RepoName,
			string(record.Data),
			metadata,
			tokenUsage,
			record.Status,
			record.IsFavorite,
			record.CreatedAt,
			record.UpdatedAt,
			record.LastAccessedAt,
		).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, query, args...)
	return err
}

// GetByID returns a record by id for its owner.
func (r *SQLRepo) GetByID(ctx context.Context, userID, id string) (Record, error) {
	return r.getOne(ctx, r.DB, userID, id, false)
}

// ListByUser lists every record owned by userID.
func (r *SQLRepo) ListByUser(ctx context.Context, userID string) ([]Record, error) {
	return r.list(ctx, sq.Eq{"user_id": userID})
}

// ListByUserAndRepo lists records owned by userID for repoURL.
func (r *SQLRepo) ListByUserAndRepo(ctx context.Context, userID, repoURL string) ([]Record, error) {
	return r.list(ctx, sq.Eq{"user_id": userID, "repo_url": repoURL})
}

func (r *SQLRepo) list(ctx context.Context, where sq.Eq) ([]Record, error) {
	query, args, err := r.builder().
		Select(recordColumns...).
		From(analysesTable).
		Where(where).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Delete removes a record permanently.
func (r *SQLRepo) Delete(ctx context.Context, userID, id string) error {
	query, args, err := r.builder().
		Delete(analysesTable).
		Where(sq.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetFavorite updates is_favorite and bumps updated_at inside a transaction so it stays strictly increasing.
func (r *SQLRepo) SetFavorite(ctx context.Context, userID, id string, value bool, updatedAt time.Time) (Record, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, err
	}
	defer tx.Rollback()

	rec, err := r.getOne(ctx, tx, userID, id, r.Dialect == DialectPostgres)
	if err != nil {
		return Record{}, err
	}
	rec.IsFavorite = value
	rec.UpdatedAt = nextUpdatedAt(rec.UpdatedAt, updatedAt)

	query, args, err := r.builder().
		Update(analysesTable).
		Set("is_favorite", rec.IsFavorite).
		Set("updated_at", rec.UpdatedAt).
		Where(sq.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return Record{}, err
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return Record{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Record{}, ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// TouchLastAccessed sets last_accessed_at.
func (r *SQLRepo) TouchLastAccessed(ctx context.Context, userID, id string, at time.Time) error {
	query, args, err := r.builder().
		Update(analysesTable).
		Set("last_accessed_at", at).
		Where(sq.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *SQLRepo) getOne(ctx context.Context, q queryer, userID, id string, forUpdate bool) (Record, error) {
	b := r.builder().
		Select(recordColumns...).
		From(analysesTable).
		Where(sq.Eq{"id": id, "user_id": userID}).
		Limit(1)
	if forUpdate {
		b = b.Suffix("FOR UPDATE")
	}
	query, args, err := b.ToSql()
	if err != nil {
		return Record{}, err
	}
	rec, err := scanRecord(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var data string
	var metadata sql.NullString
	var tokenUsage sql.NullString
	if err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.RepoURL,
		&rec.RepoName,
		&data,
		&metadata,
		&tokenUsage,
		&rec.Status,
		&rec.IsFavorite,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&rec.LastAccessedAt,
	); err != nil {
		return Record{}, err
	}
	rec.Data = json.RawMessage(data)
	if metadata.Valid {
		if err := json.Unmarshal([]byte(metadata.String), &rec.Metadata); err != nil {
			return Record{}, fmt.Errorf("decode metadata for %s: %w", rec.ID, err)
		}
	}
	if tokenUsage.Valid {
		if err := json.Unmarshal([]byte(tokenUsage.String), &rec.TokenUsage); err != nil {
			return Record{}, fmt.Errorf("decode token usage for %s: %w", rec.ID, err)
		}
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	rec.LastAccessedAt = rec.LastAccessedAt.UTC()
	return rec, nil
}

func marshalOptional[T any](o Optional[T]) (any, error) {
	if !o.Present() {
		return nil, nil
	}
	b, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

var _ Repo = (*SQLRepo)(nil)
