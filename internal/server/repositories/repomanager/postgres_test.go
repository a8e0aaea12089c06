package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/resettokens"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/secrets"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/sessions"
	"github.com/pressly/goose/v3"
)

func newDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func TestFactories_ReturnConcreteRepos(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	m := NewPostgresRepositoryManager()

	if _, ok := m.Accounts(db).(*accounts.PostgresRepository); !ok {
		t.Fatal("Accounts() is not the postgres repository")
	}
	if _, ok := m.Sessions(db).(*sessions.PostgresRepository); !ok {
		t.Fatal("Sessions() is not the postgres repository")
	}
	if _, ok := m.ResetTokens(db).(*resettokens.PostgresRepository); !ok {
		t.Fatal("ResetTokens() is not the postgres repository")
	}
	if _, ok := m.Secrets(db).(*secrets.PostgresRepository); !ok {
		t.Fatal("Secrets() is not the postgres repository")
	}
}

func TestWithSecretsBackend(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	s3repo := secrets.NewS3Repository(nil, "bucket")
	m := NewPostgresRepositoryManager(WithSecretsBackend(s3repo))
	if got := m.Secrets(db); got != s3repo {
		t.Fatalf("expected configured backend, got %T", got)
	}
}

func TestRunMigrations_Success(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		if dir != "." {
			return errors.New("unexpected dir")
		}
		if len(opts) != 0 {
			return errors.New("unexpected opts")
		}
		return nil
	}
	defer func() { gooseUpContext = orig }()

	m := &PostgresRepositoryManager{}
	if err := m.RunMigrations(context.Background(), db); err != nil {
		t.Fatalf("RunMigrations error: %v", err)
	}
}

func TestRunMigrations_Error(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	defer func() { gooseUpContext = orig }()

	m := &PostgresRepositoryManager{}
	if err := m.RunMigrations(context.Background(), db); err == nil || err.Error() != "boom" {
		t.Fatalf("expected boom, got %v", err)
	}
}
