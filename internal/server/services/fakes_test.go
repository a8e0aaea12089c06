package services

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/cryptox"
	"github.com/dmitrijs2005/authcore/internal/dbx"
	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/auth"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/resettokens"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/secrets"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/sessions"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// --- in-memory repositories with the same conditional-update semantics as
// the SQL ones ---

type memStore struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
	sessions map[string]*models.Session
	resets   map[string]*models.ResetToken
	secrets  map[string]*models.LinkedSecret

	// findBarrier, when set, holds FindByRefresh callers until all have read.
	findBarrier *sync.WaitGroup
	// block makes every call wait for ctx to end.
	block bool
	// revokeErr, when set, fails DeleteByAccount.
	revokeErr error
}

func newMemStore() *memStore {
	return &memStore{
		accounts: map[string]*models.Account{},
		sessions: map[string]*models.Session{},
		resets:   map[string]*models.ResetToken{},
		secrets:  map[string]*models.LinkedSecret{},
	}
}

func (m *memStore) wait(ctx context.Context) error {
	if !m.block {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

type memAccounts struct{ *memStore }

func (r memAccounts) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.accounts {
		if strings.EqualFold(existing.Email, a.Email) {
			return nil, common.ErrAccountExists
		}
	}
	cp := *a
	cp.ID = uuid.NewString()
	r.accounts[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r memAccounts) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if strings.EqualFold(a.Email, email) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r memAccounts) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *a
	return &cp, nil
}

func (r memAccounts) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return common.ErrorNotFound
	}
	a.PasswordHash = hash
	return nil
}

type memSessions struct{ *memStore }

func (r memSessions) Create(ctx context.Context, s *models.Session) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.sessions {
		if existing.AccessTokenHash == s.AccessTokenHash || existing.RefreshTokenHash == s.RefreshTokenHash {
			return common.ErrDuplicateToken
		}
	}
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r memSessions) ValidateAndTouch(ctx context.Context, accessHash string, now time.Time) (*models.Session, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.AccessTokenHash == accessHash {
			if !s.Valid(now) {
				return nil, common.ErrSessionExpired
			}
			s.LastUsedAt = now
			cp := *s
			return &cp, nil
		}
	}
	return nil, common.ErrSessionNotFound
}

func (r memSessions) FindByRefresh(ctx context.Context, refreshHash string) (*models.Session, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	var out *models.Session
	for _, s := range r.sessions {
		if s.RefreshTokenHash == refreshHash {
			cp := *s
			out = &cp
		}
	}
	barrier := r.findBarrier
	r.mu.Unlock()

	if barrier != nil {
		barrier.Done()
		barrier.Wait()
	}
	if out == nil {
		return nil, common.ErrSessionNotFound
	}
	return out, nil
}

func (r memSessions) Rotate(ctx context.Context, refreshHash, prevAccessHash, newAccessHash string, newExpiresAt, now time.Time) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.RefreshTokenHash != refreshHash {
			continue
		}
		if !s.Valid(now) {
			return nil, common.ErrSessionExpired
		}
		if s.AccessTokenHash != prevAccessHash {
			return nil, common.ErrAlreadyRotated
		}
		s.AccessTokenHash = newAccessHash
		s.ExpiresAt = newExpiresAt
		s.LastUsedAt = now
		cp := *s
		return &cp, nil
	}
	return nil, common.ErrSessionNotFound
}

func (r memSessions) DeleteByAccess(ctx context.Context, accessHash string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.AccessTokenHash == accessHash {
			delete(r.sessions, id)
			return 1, nil
		}
	}
	return 0, nil
}

func (r memSessions) DeleteByAccount(ctx context.Context, accountID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.revokeErr != nil {
		return 0, r.revokeErr
	}
	var n int64
	for id, s := range r.sessions {
		if s.AccountID == accountID {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r memSessions) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if !s.Valid(now) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r memSessions) ListByAccount(ctx context.Context, accountID string, now time.Time) ([]models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Session
	for _, s := range r.sessions {
		if s.AccountID == accountID && s.Valid(now) {
			out = append(out, *s)
		}
	}
	return out, nil
}

type memResets struct{ *memStore }

func (r memResets) Create(ctx context.Context, t *models.ResetToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.resets[t.TokenHash]; ok {
		return common.ErrDuplicateToken
	}
	cp := *t
	r.resets[t.TokenHash] = &cp
	return nil
}

func (r memResets) Consume(ctx context.Context, tokenHash string, now time.Time) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.resets[tokenHash]
	if !ok || t.Used || !now.Before(t.ExpiresAt) {
		return "", common.ErrInvalidResetToken
	}
	t.Used = true
	t.UsedAt = &now
	return t.AccountID, nil
}

func (r memResets) DeleteUnusedForAccount(ctx context.Context, accountID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, t := range r.resets {
		if t.AccountID == accountID && !t.Used {
			delete(r.resets, k)
			n++
		}
	}
	return n, nil
}

func (r memResets) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, t := range r.resets {
		if !now.Before(t.ExpiresAt) {
			delete(r.resets, k)
			n++
		}
	}
	return n, nil
}

type memSecrets struct{ *memStore }

func (r memSecrets) Put(ctx context.Context, s *models.LinkedSecret) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.secrets[s.AccountID+"/"+s.Provider] = &cp
	return nil
}

func (r memSecrets) Get(ctx context.Context, accountID, provider string) (*models.LinkedSecret, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.secrets[accountID+"/"+provider]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *s
	return &cp, nil
}

func (r memSecrets) Delete(ctx context.Context, accountID, provider string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.secrets, accountID+"/"+provider)
	return nil
}

type memRepoManager struct{ store *memStore }

func (m *memRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *memRepoManager) Accounts(dbx.DBTX) accounts.Repository        { return memAccounts{m.store} }
func (m *memRepoManager) Sessions(dbx.DBTX) sessions.Repository        { return memSessions{m.store} }
func (m *memRepoManager) ResetTokens(dbx.DBTX) resettokens.Repository  { return memResets{m.store} }
func (m *memRepoManager) Secrets(dbx.DBTX) secrets.Repository          { return memSecrets{m.store} }

// --- wiring ---

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type captureNotifier struct {
	mu     sync.Mutex
	tokens []string
}

func (n *captureNotifier) SendPasswordReset(_ context.Context, _ *models.Account, token string, _ time.Time) error {
	n.mu.Lock()
	n.tokens = append(n.tokens, token)
	n.mu.Unlock()
	return nil
}

func (n *captureNotifier) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.tokens) == 0 {
		return ""
	}
	return n.tokens[len(n.tokens)-1]
}

const (
	accessTTL  = 15 * time.Minute
	refreshTTL = 7 * 24 * time.Hour
	resetTTL   = 30 * time.Minute
)

type testEnv struct {
	clk      *testClock
	store    *memStore
	db       *sql.DB
	mock     sqlmock.Sqlmock
	tokens   *auth.TokenService
	hasher   *cryptox.PasswordHasher
	sessions *SessionStore
	auth     *AuthService
	reset    *PasswordResetFlow
	notifier *captureNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clk := &testClock{t: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
	tokens, err := auth.NewTokenService(auth.Options{
		AccessSecret:  []byte(strings.Repeat("a", 32)),
		RefreshSecret: []byte(strings.Repeat("r", 32)),
		Issuer:        "authcore",
		Audience:      "authcore-api",
		Now:           clk.Now,
	})
	require.NoError(t, err)

	hasher, err := cryptox.NewPasswordHasher(cryptox.PasswordParams{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	require.NoError(t, err)

	store := newMemStore()
	rm := &memRepoManager{store: store}

	ss := NewSessionStore(db, rm, time.Second)
	ss.now = clk.Now

	as := NewAuthService(db, rm, tokens, ss, hasher, AuthOptions{AccessTTL: accessTTL, RefreshTTL: refreshTTL, Timeout: time.Second}, logging.Nop{})
	as.now = clk.Now

	notifier := &captureNotifier{}
	rf := NewPasswordResetFlow(db, rm, tokens, hasher, notifier, resetTTL, time.Second, logging.Nop{})
	rf.now = clk.Now

	return &testEnv{
		clk: clk, store: store, db: db, mock: mock, tokens: tokens, hasher: hasher,
		sessions: ss, auth: as, reset: rf, notifier: notifier,
	}
}

var meta = models.ClientMeta{IP: "203.0.113.5", UserAgent: "test-agent"}

func (e *testEnv) register(t *testing.T, email, password string) (*models.Account, *TokenPair) {
	t.Helper()
	a, p, err := e.auth.Register(context.Background(), email, password, meta)
	require.NoError(t, err)
	return a, p
}
