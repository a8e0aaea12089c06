// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/authcore/internal/dbx"
	"github.com/dmitrijs2005/authcore/internal/server/migrations"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/resettokens"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/secrets"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/sessions"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook.
type PostgresRepositoryManager struct {
	// secrets overrides the linked secret backend; nil means PostgreSQL.
	secrets secrets.Repository
}

// Option customizes a PostgresRepositoryManager.
type Option func(*PostgresRepositoryManager)

// WithSecretsBackend stores linked secrets outside the database, e.g. in S3.
// The backend is not transactional and ignores the DBTX passed to Secrets.
func WithSecretsBackend(r secrets.Repository) Option {
	return func(m *PostgresRepositoryManager) { m.secrets = r }
}

// Accounts returns an accounts.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Accounts(db dbx.DBTX) accounts.Repository {
	return accounts.NewPostgresRepository(db)
}

// Sessions returns a sessions.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Sessions(db dbx.DBTX) sessions.Repository {
	return sessions.NewPostgresRepository(db)
}

// ResetTokens returns a resettokens.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) ResetTokens(db dbx.DBTX) resettokens.Repository {
	return resettokens.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Secrets(db dbx.DBTX) secrets.Repository {
	if m.secrets != nil {
		return m.secrets
	}
	return secrets.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager(opts ...Option) RepositoryManager {
	m := &PostgresRepositoryManager{}
	for _, o := range opts {
		o(m)
	}
	return m
}
