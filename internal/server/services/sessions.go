// Package services contains server-side business logic. This file implements
// SessionStore, the persistent record of issued sessions keyed by token
// handles.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/dbx"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/sessions"
	"github.com/google/uuid"
)

// SessionStore takes raw tokens and stores only their handles. Every call
// runs under the store timeout; a timeout surfaces as
// common.ErrStoreUnavailable and must fail the request.
type SessionStore struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	timeout     time.Duration
	now         func() time.Time
}

func NewSessionStore(db *sql.DB, m repomanager.RepositoryManager, timeout time.Duration) *SessionStore {
	return &SessionStore{
		db:          db,
		repomanager: m,
		timeout:     timeout,
		now:         time.Now,
	}
}

func (s *SessionStore) repo() sessions.Repository {
	return s.repomanager.Sessions(s.db)
}

// CreateSession records a new session for the token pair.
func (s *SessionStore) CreateSession(ctx context.Context, accountID, accessToken, refreshToken string, meta models.ClientMeta, expiresAt time.Time) (*models.Session, error) {
	now := s.now()
	if !expiresAt.After(now) {
		return nil, errors.New("session expiry must be in the future")
	}

	sess := &models.Session{
		ID:               uuid.NewString(),
		AccountID:        accountID,
		AccessTokenHash:  common.TokenHandle(accessToken),
		RefreshTokenHash: common.TokenHandle(refreshToken),
		IssuedAt:         now,
		ExpiresAt:        expiresAt,
		LastUsedAt:       now,
		IP:               meta.IP,
		UserAgent:        meta.UserAgent,
	}

	err := dbx.WithTimeout(ctx, s.timeout, func(ctx context.Context) error {
		return s.repo().Create(ctx, sess)
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// ValidateAndTouch returns the unexpired session owning accessToken and
// bumps its last use in the same statement.
func (s *SessionStore) ValidateAndTouch(ctx context.Context, accessToken string) (*models.Session, error) {
	var sess *models.Session
	err := dbx.WithTimeout(ctx, s.timeout, func(ctx context.Context) error {
		var err error
		sess, err = s.repo().ValidateAndTouch(ctx, common.TokenHandle(accessToken), s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// FindByRefresh looks a session up by its refresh token without mutating it.
func (s *SessionStore) FindByRefresh(ctx context.Context, refreshToken string) (*models.Session, error) {
	var sess *models.Session
	err := dbx.WithTimeout(ctx, s.timeout, func(ctx context.Context) error {
		var err error
		sess, err = s.repo().FindByRefresh(ctx, common.TokenHandle(refreshToken))
		return err
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Rotate replaces the access half of the session owning refreshToken in
// place. The update is a compare-and-swap on the access handle read just
// before it, so of two concurrent rotations exactly one succeeds and the
// other gets common.ErrAlreadyRotated.
func (s *SessionStore) Rotate(ctx context.Context, refreshToken, newAccessToken string, newExpiresAt time.Time) (*models.Session, error) {
	refreshHash := common.TokenHandle(refreshToken)

	var sess *models.Session
	err := dbx.WithTimeout(ctx, s.timeout, func(ctx context.Context) error {
		repo := s.repo()
		current, err := repo.FindByRefresh(ctx, refreshHash)
		if err != nil {
			return err
		}
		now := s.now()
		if !current.Valid(now) {
			return common.ErrSessionExpired
		}
		sess, err = repo.Rotate(ctx, refreshHash, current.AccessTokenHash, common.TokenHandle(newAccessToken), newExpiresAt, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Revoke deletes the session owning accessToken.
func (s *SessionStore) Revoke(ctx context.Context, accessToken string) error {
	return dbx.WithTimeout(ctx, s.timeout, func(ctx context.Context) error {
		n, err := s.repo().DeleteByAccess(ctx, common.TokenHandle(accessToken))
		if err != nil {
			return err
		}
		if n == 0 {
			return common.ErrSessionNotFound
		}
		return nil
	})
}

// RevokeAll deletes every session of accountID and returns how many there were.
func (s *SessionStore) RevokeAll(ctx context.Context, accountID string) (int64, error) {
	var n int64
	err := dbx.WithTimeout(ctx, s.timeout, func(ctx context.Context) error {
		var err error
		n, err = s.repo().DeleteByAccount(ctx, accountID)
		return err
	})
	return n, err
}

// SweepExpired deletes every session past expiry. It is idempotent.
func (s *SessionStore) SweepExpired(ctx context.Context) (int64, error) {
	var n int64
	err := dbx.WithTimeout(ctx, s.timeout, func(ctx context.Context) error {
		var err error
		n, err = s.repo().DeleteExpired(ctx, s.now())
		return err
	})
	return n, err
}

// ListForAccount returns the live sessions of accountID.
func (s *SessionStore) ListForAccount(ctx context.Context, accountID string) ([]models.Session, error) {
	var out []models.Session
	err := dbx.WithTimeout(ctx, s.timeout, func(ctx context.Context) error {
		var err error
		out, err = s.repo().ListByAccount(ctx, accountID, s.now())
		return err
	})
	return out, err
}
