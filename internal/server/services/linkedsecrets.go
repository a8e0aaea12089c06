package services

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/cryptox"
	"github.com/dmitrijs2005/authcore/internal/dbx"
	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/repomanager"
)

var providerPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// LinkedSecretService keeps third-party credentials encrypted at rest.
// Plaintext exists only inside Store and the callback passed to Use.
type LinkedSecretService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	cipher      *cryptox.SecretCipher
	timeout     time.Duration
	log         logging.Logger
}

func NewLinkedSecretService(db *sql.DB, m repomanager.RepositoryManager, cipher *cryptox.SecretCipher, timeout time.Duration, log logging.Logger) *LinkedSecretService {
	return &LinkedSecretService{
		db:          db,
		repomanager: m,
		cipher:      cipher,
		timeout:     timeout,
		log:         log.With("module", "linkedsecrets"),
	}
}

func validateProvider(provider string) error {
	if !providerPattern.MatchString(provider) {
		return fmt.Errorf("%w: invalid provider", common.ErrorValidation)
	}
	return nil
}

// Store encrypts plaintext and replaces any previous value for provider.
func (s *LinkedSecretService) Store(ctx context.Context, accountID, provider string, plaintext []byte) error {
	if err := validateProvider(provider); err != nil {
		return err
	}
	if len(plaintext) == 0 {
		return fmt.Errorf("%w: empty credential", common.ErrorValidation)
	}

	ct, err := s.cipher.Encrypt(plaintext)
	if err != nil {
		return fmt.Errorf("encrypt credential: %w", err)
	}

	err = dbx.WithTimeout(ctx, s.timeout, func(ctx context.Context) error {
		return s.repomanager.Secrets(s.db).Put(ctx, &models.LinkedSecret{AccountID: accountID, Provider: provider, Ciphertext: ct})
	})
	if err != nil {
		return err
	}
	s.log.Info(ctx, "linked credential stored", "account_id", accountID, "provider", provider)
	return nil
}

// Use decrypts the credential for provider and hands it to fn. The buffer is
// wiped when fn returns and must not be retained. It is the read path for
// outbound institution clients that call a provider on the account's behalf;
// no HTTP or gRPC handler returns the plaintext.
func (s *LinkedSecretService) Use(ctx context.Context, accountID, provider string, fn func(plaintext []byte) error) error {
	if err := validateProvider(provider); err != nil {
		return err
	}

	var rec *models.LinkedSecret
	err := dbx.WithTimeout(ctx, s.timeout, func(ctx context.Context) error {
		var err error
		rec, err = s.repomanager.Secrets(s.db).Get(ctx, accountID, provider)
		return err
	})
	if err != nil {
		return err
	}

	pt, err := s.cipher.Decrypt(rec.Ciphertext)
	if err != nil {
		s.log.Error(ctx, "linked credential failed to decrypt", "account_id", accountID, "provider", provider)
		return err
	}
	defer common.WipeByteArray(pt)

	return fn(pt)
}

// Delete forgets the credential for provider. Missing credentials are not an error.
func (s *LinkedSecretService) Delete(ctx context.Context, accountID, provider string) error {
	if err := validateProvider(provider); err != nil {
		return err
	}
	return dbx.WithTimeout(ctx, s.timeout, func(ctx context.Context) error {
		return s.repomanager.Secrets(s.db).Delete(ctx, accountID, provider)
	})
}
