// Package sessions provides the PostgreSQL-backed session repository. The
// sessions table is the only record of refresh token state; revoking a
// session deletes its row.
package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/dbx"
	"github.com/dmitrijs2005/authcore/internal/server/models"
)

const columns = `id, account_id, access_token_hash, refresh_token_hash, issued_at, expires_at, last_used_at, ip, user_agent`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*models.Session, error) {
	s := &models.Session{}
	err := row.Scan(&s.ID, &s.AccountID, &s.AccessTokenHash, &s.RefreshTokenHash,
		&s.IssuedAt, &s.ExpiresAt, &s.LastUsedAt, &s.IP, &s.UserAgent)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create inserts s. Uniqueness of both handles is enforced by the table;
// a collision yields common.ErrDuplicateToken.
func (r *PostgresRepository) Create(ctx context.Context, s *models.Session) error {
	query :=
		`INSERT INTO sessions (` + columns + `)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.AccountID, s.AccessTokenHash, s.RefreshTokenHash,
		s.IssuedAt, s.ExpiresAt, s.LastUsedAt, s.IP, s.UserAgent)
	if err != nil {
		if _, ok := dbx.IsUniqueViolation(err); ok {
			return common.ErrDuplicateToken
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ValidateAndTouch bumps last_used_at on the unexpired session owning
// accessHash in a single statement. When nothing was updated a read-only
// lookup tells a missing session from an expired one.
func (r *PostgresRepository) ValidateAndTouch(ctx context.Context, accessHash string, now time.Time) (*models.Session, error) {
	query :=
		`UPDATE sessions SET last_used_at = $2
		 WHERE access_token_hash = $1 AND expires_at > $2
		 RETURNING ` + columns

	s, err := scanSession(r.db.QueryRowContext(ctx, query, accessHash, now))
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return nil, r.explainMiss(ctx, `access_token_hash`, accessHash)
}

// explainMiss explains a zero-row conditional update. It never mutates.
func (r *PostgresRepository) explainMiss(ctx context.Context, column, handle string) error {
	query := `SELECT expires_at FROM sessions WHERE ` + column + ` = $1`

	var expiresAt time.Time
	err := r.db.QueryRowContext(ctx, query, handle).Scan(&expiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return common.ErrSessionNotFound
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	default:
		return common.ErrSessionExpired
	}
}

func (r *PostgresRepository) FindByRefresh(ctx context.Context, refreshHash string) (*models.Session, error) {
	query := `SELECT ` + columns + ` FROM sessions WHERE refresh_token_hash = $1`

	s, err := scanSession(r.db.QueryRowContext(ctx, query, refreshHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrSessionNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

// Rotate swaps the access handle of the session owning refreshHash, provided
// its current access handle is still prevAccessHash and it has not expired.
// A lost compare-and-swap yields common.ErrAlreadyRotated.
func (r *PostgresRepository) Rotate(ctx context.Context, refreshHash, prevAccessHash, newAccessHash string, newExpiresAt, now time.Time) (*models.Session, error) {
	query :=
		`UPDATE sessions SET access_token_hash = $3, expires_at = $4, last_used_at = $5
		 WHERE refresh_token_hash = $1 AND access_token_hash = $2 AND expires_at > $5
		 RETURNING ` + columns

	s, err := scanSession(r.db.QueryRowContext(ctx, query, refreshHash, prevAccessHash, newAccessHash, newExpiresAt, now))
	if err == nil {
		return s, nil
	}
	if _, ok := dbx.IsUniqueViolation(err); ok {
		return nil, common.ErrDuplicateToken
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("db error: %w", err)
	}

	current, err := r.FindByRefresh(ctx, refreshHash)
	if err != nil {
		return nil, err
	}
	if !current.Valid(now) {
		return nil, common.ErrSessionExpired
	}
	return nil, common.ErrAlreadyRotated
}

func (r *PostgresRepository) DeleteByAccess(ctx context.Context, accessHash string) (int64, error) {
	return r.exec(ctx, `DELETE FROM sessions WHERE access_token_hash = $1`, accessHash)
}

func (r *PostgresRepository) DeleteByAccount(ctx context.Context, accountID string) (int64, error) {
	return r.exec(ctx, `DELETE FROM sessions WHERE account_id = $1`, accountID)
}

// DeleteExpired is idempotent and only touches rows that are already invalid.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// ListByAccount returns the unexpired sessions of accountID, newest first.
func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID string, now time.Time) ([]models.Session, error) {
	query :=
		`SELECT ` + columns + ` FROM sessions
		 WHERE account_id = $1 AND expires_at > $2
		 ORDER BY issued_at DESC`

	rows, err := r.db.QueryContext(ctx, query, accountID, now)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}
