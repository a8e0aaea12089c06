// Package secrets stores SecretCipher output for linked third-party
// credentials, one value per (account, provider). Two backends exist:
// PostgreSQL and S3-compatible object storage.
package secrets

import (
	"context"

	"github.com/dmitrijs2005/authcore/internal/server/models"
)

// Repository never sees plaintext. Put replaces any previous value.
type Repository interface {
	Put(ctx context.Context, s *models.LinkedSecret) error
	Get(ctx context.Context, accountID, provider string) (*models.LinkedSecret, error)
	Delete(ctx context.Context, accountID, provider string) error
}
