// Package resettokens provides the PostgreSQL-backed store of single-use
// password reset grants.
package resettokens

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

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, t *models.ResetToken) error {
	query :=
		`INSERT INTO reset_tokens (token_hash, account_id, expires_at)
		 VALUES ($1, $2, $3)`

	if _, err := r.db.ExecContext(ctx, query, t.TokenHash, t.AccountID, t.ExpiresAt); err != nil {
		if _, ok := dbx.IsUniqueViolation(err); ok {
			return common.ErrDuplicateToken
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Consume marks the grant used and returns its account in one statement.
// Unknown, used and expired grants all yield common.ErrInvalidResetToken.
func (r *PostgresRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (string, error) {
	query :=
		`UPDATE reset_tokens SET used = TRUE, used_at = $2
		 WHERE token_hash = $1 AND used = FALSE AND expires_at > $2
		 RETURNING account_id`

	var accountID string
	if err := r.db.QueryRowContext(ctx, query, tokenHash, now).Scan(&accountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", common.ErrInvalidResetToken
		}
		return "", fmt.Errorf("db error: %w", err)
	}
	return accountID, nil
}

// DeleteUnusedForAccount drops every outstanding grant of accountID.
func (r *PostgresRepository) DeleteUnusedForAccount(ctx context.Context, accountID string) (int64, error) {
	return r.exec(ctx, `DELETE FROM reset_tokens WHERE account_id = $1 AND used = FALSE`, accountID)
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.exec(ctx, `DELETE FROM reset_tokens WHERE expires_at <= $1`, now)
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
