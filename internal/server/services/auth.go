package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/cryptox"
	"github.com/dmitrijs2005/authcore/internal/dbx"
	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/auth"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/repomanager"
)

var (
	errAccountInactive = fmt.Errorf("%w: account inactive", common.ErrInvalidSession)
	errSessionOwner    = fmt.Errorf("%w: session owner mismatch", common.ErrInvalidSession)
)

// TokenPair is handed to the client once; only handles are stored.
type TokenPair struct {
	SessionID        string
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Identity is all the rest of the application learns about a caller.
type Identity struct {
	AccountID string
	Role      string
	SessionID string
}

// AuthOptions configures AuthService.
type AuthOptions struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Timeout    time.Duration
}

// AuthService orchestrates registration, login, refresh and logout on top of
// TokenService and SessionStore.
type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	tokens      *auth.TokenService
	sessions    *SessionStore
	hasher      *cryptox.PasswordHasher
	opts        AuthOptions
	log         logging.Logger
	now         func() time.Time
}

func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, tokens *auth.TokenService, sessions *SessionStore,
	hasher *cryptox.PasswordHasher, opts AuthOptions, log logging.Logger) *AuthService {
	return &AuthService{
		db:          db,
		repomanager: m,
		tokens:      tokens,
		sessions:    sessions,
		hasher:      hasher,
		opts:        opts,
		log:         log.With("module", "auth"),
		now:         time.Now,
	}
}

// NormalizeEmail lower-cases and trims an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return fmt.Errorf("%w: invalid email", common.ErrorValidation)
	}
	return nil
}

// Register creates an active account and opens its first session.
func (s *AuthService) Register(ctx context.Context, email, password string, meta models.ClientMeta) (*models.Account, *TokenPair, error) {
	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, cryptox.ErrPasswordTooShort) {
			return nil, nil, fmt.Errorf("%w: password must be at least %d characters", common.ErrorValidation, cryptox.MinPasswordLength)
		}
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	account := &models.Account{Email: email, PasswordHash: hash, Role: models.RoleUser, Active: true}
	err = dbx.WithTimeout(ctx, s.opts.Timeout, func(ctx context.Context) error {
		var err error
		account, err = s.repomanager.Accounts(s.db).Create(ctx, account)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	s.log.Info(ctx, "account registered", "account_id", account.ID)

	pair, err := s.openSession(ctx, account, meta)
	if err != nil {
		return nil, nil, err
	}
	return account, pair, nil
}

// Login checks credentials and opens a new session. Unknown emails, wrong
// passwords and inactive accounts are indistinguishable to the caller, and
// an unknown email still costs one password hash.
func (s *AuthService) Login(ctx context.Context, email, password string, meta models.ClientMeta) (*TokenPair, error) {
	email = NormalizeEmail(email)

	var account *models.Account
	err := dbx.WithTimeout(ctx, s.opts.Timeout, func(ctx context.Context) error {
		var err error
		account, err = s.repomanager.Accounts(s.db).GetByEmail(ctx, email)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.VerifyDummy(password)
			return nil, common.ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := s.hasher.Verify(password, account.PasswordHash)
	if err != nil {
		s.log.Error(ctx, "stored password hash unreadable", "account_id", account.ID, "error", err)
		return nil, common.ErrInvalidCredentials
	}
	if !ok || !account.Active {
		return nil, common.ErrInvalidCredentials
	}

	return s.openSession(ctx, account, meta)
}

func (s *AuthService) openSession(ctx context.Context, account *models.Account, meta models.ClientMeta) (*TokenPair, error) {
	now := s.now()
	access, err := s.tokens.Issue(account.ID, account.Role, auth.TypeAccess, s.opts.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.tokens.Issue(account.ID, account.Role, auth.TypeRefresh, s.opts.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	refreshExp := now.Add(s.opts.RefreshTTL)
	sess, err := s.sessions.CreateSession(ctx, account.ID, access, refresh, meta, refreshExp)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		SessionID:        sess.ID,
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  now.Add(s.opts.AccessTTL),
		RefreshExpiresAt: sess.ExpiresAt,
	}, nil
}

// Refresh re-issues the access half of the session owning refreshToken.
// The refresh token and session id stay the same; the previous access token
// stops working immediately.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.Verify(refreshToken, auth.TypeRefresh)
	if err != nil {
		return nil, invalidSession(err)
	}

	var account *models.Account
	err = dbx.WithTimeout(ctx, s.opts.Timeout, func(ctx context.Context) error {
		var err error
		account, err = s.repomanager.Accounts(s.db).GetByID(ctx, claims.AccountID)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, invalidSession(err)
		}
		return nil, err
	}
	if !account.Active {
		return nil, errAccountInactive
	}

	access, err := s.tokens.Issue(account.ID, account.Role, auth.TypeAccess, s.opts.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	sess, err := s.sessions.Rotate(ctx, refreshToken, access, claims.ExpiresAt.Time)
	if err != nil {
		if errors.Is(err, common.ErrAlreadyRotated) {
			s.log.Warn(ctx, "concurrent refresh rejected", "account_id", account.ID)
		}
		return nil, invalidSession(err)
	}
	if sess.AccountID != account.ID {
		return nil, errSessionOwner
	}

	return &TokenPair{
		SessionID:        sess.ID,
		AccessToken:      access,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  s.now().Add(s.opts.AccessTTL),
		RefreshExpiresAt: sess.ExpiresAt,
	}, nil
}

// Authenticate verifies accessToken and the session behind it. Only the
// decoded identity leaves this method.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*Identity, error) {
	claims, err := s.tokens.Verify(accessToken, auth.TypeAccess)
	if err != nil {
		return nil, invalidSession(err)
	}

	sess, err := s.sessions.ValidateAndTouch(ctx, accessToken)
	if err != nil {
		return nil, invalidSession(err)
	}
	if sess.AccountID != claims.AccountID {
		return nil, errSessionOwner
	}

	return &Identity{AccountID: claims.AccountID, Role: claims.Role, SessionID: sess.ID}, nil
}

// Logout revokes the session of accessToken.
func (s *AuthService) Logout(ctx context.Context, accessToken string) error {
	if err := s.sessions.Revoke(ctx, accessToken); err != nil {
		return invalidSession(err)
	}
	return nil
}

// LogoutAll revokes every session of accountID.
func (s *AuthService) LogoutAll(ctx context.Context, accountID string) (int64, error) {
	n, err := s.sessions.RevokeAll(ctx, accountID)
	if err != nil {
		return 0, err
	}
	s.log.Info(ctx, "all sessions revoked", "account_id", accountID, "count", n)
	return n, nil
}

// Sessions lists the live sessions of accountID.
func (s *AuthService) Sessions(ctx context.Context, accountID string) ([]models.Session, error) {
	return s.sessions.ListForAccount(ctx, accountID)
}

// Account returns the account behind an authenticated identity.
func (s *AuthService) Account(ctx context.Context, accountID string) (*models.Account, error) {
	var account *models.Account
	err := dbx.WithTimeout(ctx, s.opts.Timeout, func(ctx context.Context) error {
		var err error
		account, err = s.repomanager.Accounts(s.db).GetByID(ctx, accountID)
		return err
	})
	return account, err
}

// invalidSession folds token and session failures into
// common.ErrInvalidSession. Store failures pass through unchanged so they
// are never mistaken for an authentication answer.
func invalidSession(err error) error {
	if errors.Is(err, common.ErrStoreUnavailable) {
		return err
	}
	switch {
	case errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrSessionNotFound),
		errors.Is(err, common.ErrSessionExpired),
		errors.Is(err, common.ErrAlreadyRotated),
		errors.Is(err, common.ErrorNotFound):
		return fmt.Errorf("%w: %w", common.ErrInvalidSession, err)
	}
	return err
}
