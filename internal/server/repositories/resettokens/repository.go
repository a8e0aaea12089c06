package resettokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authcore/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, t *models.ResetToken) error
	Consume(ctx context.Context, tokenHash string, now time.Time) (string, error)
	DeleteUnusedForAccount(ctx context.Context, accountID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
