package httpapi

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/dmitrijs2005/authcore/internal/server/services"
)

type fakeAuth struct {
	mu            sync.Mutex
	registerCalls int
	loginCalls    int
	password      string
	authErr       error
	loggedOut     []string
	sessions      []models.Session
}

var testIdentity = &services.Identity{AccountID: "acc-1", Role: models.RoleUser, SessionID: "sess-1"}

const validAccess = "valid-access-token"

func testPair() *services.TokenPair {
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	return &services.TokenPair{
		SessionID:        "sess-1",
		AccessToken:      validAccess,
		RefreshToken:     "valid-refresh-token",
		AccessExpiresAt:  now.Add(15 * time.Minute),
		RefreshExpiresAt: now.Add(7 * 24 * time.Hour),
	}
}

func (f *fakeAuth) Register(ctx context.Context, email, password string, meta models.ClientMeta) (*models.Account, *services.TokenPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registerCalls++
	if email == "taken@example.com" {
		return nil, nil, common.ErrAccountExists
	}
	return &models.Account{ID: "acc-1", Email: email, Role: models.RoleUser, Active: true}, testPair(), nil
}

func (f *fakeAuth) Login(ctx context.Context, email, password string, meta models.ClientMeta) (*services.TokenPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginCalls++
	if password != f.password {
		return nil, common.ErrInvalidCredentials
	}
	return testPair(), nil
}

func (f *fakeAuth) Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error) {
	if refreshToken != "valid-refresh-token" {
		return nil, common.ErrInvalidSession
	}
	return testPair(), nil
}

func (f *fakeAuth) Authenticate(ctx context.Context, accessToken string) (*services.Identity, error) {
	if f.authErr != nil {
		return nil, f.authErr
	}
	if accessToken != validAccess {
		return nil, common.ErrInvalidSession
	}
	return testIdentity, nil
}

func (f *fakeAuth) Logout(ctx context.Context, accessToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loggedOut = append(f.loggedOut, accessToken)
	return nil
}

func (f *fakeAuth) LogoutAll(ctx context.Context, accountID string) (int64, error) {
	return 3, nil
}

func (f *fakeAuth) Sessions(ctx context.Context, accountID string) ([]models.Session, error) {
	return f.sessions, nil
}

func (f *fakeAuth) Account(ctx context.Context, accountID string) (*models.Account, error) {
	return &models.Account{ID: accountID, Email: "alice@example.com", Role: models.RoleUser, Active: true}, nil
}

type fakeReset struct {
	requested []string
}

func (f *fakeReset) RequestReset(ctx context.Context, email string) error {
	f.requested = append(f.requested, email)
	return nil
}

func (f *fakeReset) ConsumeReset(ctx context.Context, token, newPassword string) error {
	if token != "good-reset-token" {
		return common.ErrInvalidResetToken
	}
	if len(newPassword) < 10 {
		return common.ErrorValidation
	}
	return nil
}

type fakeVault struct {
	stored  map[string]string
	deleted []string
}

func (f *fakeVault) Store(ctx context.Context, accountID, provider string, plaintext []byte) error {
	if provider == "Bad Provider" {
		return common.ErrorValidation
	}
	if f.stored == nil {
		f.stored = map[string]string{}
	}
	f.stored[accountID+"/"+provider] = string(plaintext)
	return nil
}

func (f *fakeVault) Delete(ctx context.Context, accountID, provider string) error {
	f.deleted = append(f.deleted, accountID+"/"+provider)
	return nil
}

type failingStore struct{}

func (failingStore) Increment(context.Context, string, time.Time, time.Duration) (int, time.Time, error) {
	return 0, time.Time{}, context.DeadlineExceeded
}

func (failingStore) Delete(context.Context, string) error { return context.DeadlineExceeded }
