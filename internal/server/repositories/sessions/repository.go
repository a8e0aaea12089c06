package sessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authcore/internal/server/models"
)

// Repository persists sessions keyed by token handles. All methods take
// handles, never raw tokens.
type Repository interface {
	Create(ctx context.Context, s *models.Session) error
	ValidateAndTouch(ctx context.Context, accessHash string, now time.Time) (*models.Session, error)
	FindByRefresh(ctx context.Context, refreshHash string) (*models.Session, error)
	Rotate(ctx context.Context, refreshHash, prevAccessHash, newAccessHash string, newExpiresAt, now time.Time) (*models.Session, error)
	DeleteByAccess(ctx context.Context, accessHash string) (int64, error)
	DeleteByAccount(ctx context.Context, accountID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	ListByAccount(ctx context.Context, accountID string, now time.Time) ([]models.Session, error)
}
