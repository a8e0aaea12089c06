package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/cryptox"
	"github.com/dmitrijs2005/authcore/internal/dbx"
	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/auth"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/repomanager"
)

// Notifier delivers a raw reset token to the account owner. It is the only
// place the raw token goes after issuance.
type Notifier interface {
	SendPasswordReset(ctx context.Context, account *models.Account, token string, expiresAt time.Time) error
}

// LogNotifier records that a reset was requested without the token itself.
// It stands in until a mail transport is configured.
type LogNotifier struct {
	Log logging.Logger
}

func (n LogNotifier) SendPasswordReset(ctx context.Context, account *models.Account, _ string, expiresAt time.Time) error {
	n.Log.Info(ctx, "password reset issued", "account_id", account.ID, "expires_at", expiresAt)
	return nil
}

// PasswordResetFlow issues and consumes single-use reset grants.
type PasswordResetFlow struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	tokens      *auth.TokenService
	hasher      *cryptox.PasswordHasher
	notifier    Notifier
	ttl         time.Duration
	timeout     time.Duration
	log         logging.Logger
	now         func() time.Time
}

func NewPasswordResetFlow(db *sql.DB, m repomanager.RepositoryManager, tokens *auth.TokenService,
	hasher *cryptox.PasswordHasher, notifier Notifier, ttl, timeout time.Duration, log logging.Logger) *PasswordResetFlow {
	return &PasswordResetFlow{
		db:          db,
		repomanager: m,
		tokens:      tokens,
		hasher:      hasher,
		notifier:    notifier,
		ttl:         ttl,
		timeout:     timeout,
		log:         log.With("module", "passwordreset"),
		now:         time.Now,
	}
}

// RequestReset issues a grant when email belongs to an active account. The
// caller cannot tell whether it did; only store failures are returned.
func (f *PasswordResetFlow) RequestReset(ctx context.Context, email string) error {
	email = NormalizeEmail(email)

	var account *models.Account
	err := dbx.WithTimeout(ctx, f.timeout, func(ctx context.Context) error {
		var err error
		account, err = f.repomanager.Accounts(f.db).GetByEmail(ctx, email)
		return err
	})
	if errors.Is(err, common.ErrorNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !account.Active {
		return nil
	}

	token, err := f.tokens.Issue(account.ID, account.Role, auth.TypeReset, f.ttl)
	if err != nil {
		return fmt.Errorf("issue reset token: %w", err)
	}
	rec := &models.ResetToken{
		TokenHash: common.TokenHandle(token),
		AccountID: account.ID,
		ExpiresAt: f.now().Add(f.ttl),
	}

	err = dbx.WithTimeout(ctx, f.timeout, func(ctx context.Context) error {
		return f.repomanager.ResetTokens(f.db).Create(ctx, rec)
	})
	if err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	if err := f.notifier.SendPasswordReset(ctx, account, token, rec.ExpiresAt); err != nil {
		f.log.Error(ctx, "reset notification failed", "account_id", account.ID, "error", err)
	}
	return nil
}

// ConsumeReset sets a new password using token. It succeeds at most once per
// token; unknown, expired, used and forged tokens all yield
// common.ErrInvalidResetToken. The password change, the grant consumption and
// the revocation of every session of the account commit together or not at all.
func (f *PasswordResetFlow) ConsumeReset(ctx context.Context, token, newPassword string) error {
	// Password rules are checked before the token is looked at.
	if len(newPassword) < cryptox.MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", common.ErrorValidation, cryptox.MinPasswordLength)
	}

	claims, err := f.tokens.Verify(token, auth.TypeReset)
	if err != nil {
		return common.ErrInvalidResetToken
	}

	hash, err := f.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	var revoked int64
	err = dbx.WithTimeout(ctx, f.timeout, func(ctx context.Context) error {
		return dbx.WithTx(ctx, f.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			n, err := f.repomanager.Sessions(tx).DeleteByAccount(ctx, claims.AccountID)
			if err != nil {
				return fmt.Errorf("revoke sessions: %w", err)
			}
			id, err := f.repomanager.ResetTokens(tx).Consume(ctx, common.TokenHandle(token), f.now())
			if err != nil {
				return err
			}
			if id != claims.AccountID {
				return common.ErrInvalidResetToken
			}
			if err := f.repomanager.Accounts(tx).UpdatePasswordHash(ctx, id, hash); err != nil {
				if errors.Is(err, common.ErrorNotFound) {
					return common.ErrInvalidResetToken
				}
				return err
			}
			if _, err := f.repomanager.ResetTokens(tx).DeleteUnusedForAccount(ctx, id); err != nil {
				return err
			}
			revoked = n
			return nil
		})
	})
	if err != nil {
		if !errors.Is(err, common.ErrInvalidResetToken) {
			f.log.Error(ctx, "password reset rolled back", "account_id", claims.AccountID, "error", err)
		}
		return err
	}

	f.log.Info(ctx, "password reset completed", "account_id", claims.AccountID, "sessions_revoked", revoked)
	return nil
}

// SweepExpired removes expired grants.
func (f *PasswordResetFlow) SweepExpired(ctx context.Context) (int64, error) {
	var n int64
	err := dbx.WithTimeout(ctx, f.timeout, func(ctx context.Context) error {
		var err error
		n, err = f.repomanager.ResetTokens(f.db).DeleteExpired(ctx, f.now())
		return err
	})
	return n, err
}
