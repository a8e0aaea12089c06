package accounts

import (
	"context"

	"github.com/dmitrijs2005/authcore/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	UpdatePasswordHash(ctx context.Context, id string, hash string) error
}
