// Package accounts provides the PostgreSQL-backed account repository.
package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/dbx"
	"github.com/dmitrijs2005/authcore/internal/server/models"
)

// PostgresRepository works over dbx.DBTX, so it can run inside a transaction.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts account and fills in the generated id and timestamps.
// A duplicate email yields common.ErrAccountExists.
func (r *PostgresRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	query :=
		`INSERT INTO accounts (email, password_hash, role, active)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		account.Email, account.PasswordHash, account.Role, account.Active).
		Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)

	if err != nil {
		if _, ok := dbx.IsUniqueViolation(err); ok {
			return nil, common.ErrAccountExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return account, nil
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query :=
		`SELECT id, email, password_hash, role, active, created_at, updated_at FROM accounts
		 WHERE lower(email) = lower($1)`

	return r.getOne(ctx, query, email)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query :=
		`SELECT id, email, password_hash, role, active, created_at, updated_at FROM accounts
		 WHERE id = $1`

	return r.getOne(ctx, query, id)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*models.Account, error) {
	a := &models.Account{}
	err := r.db.QueryRowContext(ctx, query, arg).
		Scan(&a.ID, &a.Email, &a.PasswordHash, &a.Role, &a.Active, &a.CreatedAt, &a.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return a, nil
}

func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, id string, hash string) error {
	query :=
		`UPDATE accounts SET password_hash = $2, updated_at = now()
		 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, hash)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
