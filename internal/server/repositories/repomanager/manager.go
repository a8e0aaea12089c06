package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/authcore/internal/dbx"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/resettokens"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/secrets"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/sessions"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	ResetTokens(db dbx.DBTX) resettokens.Repository
	Secrets(db dbx.DBTX) secrets.Repository
}
