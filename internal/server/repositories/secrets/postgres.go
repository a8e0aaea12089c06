package secrets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

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

func (r *PostgresRepository) Put(ctx context.Context, s *models.LinkedSecret) error {
	query :=
		`INSERT INTO linked_secrets (account_id, provider, ciphertext)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (account_id, provider)
		 DO UPDATE SET ciphertext = EXCLUDED.ciphertext, updated_at = now()
		 RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query, s.AccountID, s.Provider, s.Ciphertext).
		Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, accountID, provider string) (*models.LinkedSecret, error) {
	query :=
		`SELECT account_id, provider, ciphertext, created_at, updated_at FROM linked_secrets
		 WHERE account_id = $1 AND provider = $2`

	s := &models.LinkedSecret{}
	err := r.db.QueryRowContext(ctx, query, accountID, provider).
		Scan(&s.AccountID, &s.Provider, &s.Ciphertext, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

// Delete is idempotent.
func (r *PostgresRepository) Delete(ctx context.Context, accountID, provider string) error {
	query := `DELETE FROM linked_secrets WHERE account_id = $1 AND provider = $2`

	if _, err := r.db.ExecContext(ctx, query, accountID, provider); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
