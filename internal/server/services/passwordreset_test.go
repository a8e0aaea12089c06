package services

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/auth"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordReset_SucceedsExactlyOnce(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	_, pair := e.register(t, "alice@example.com", "correct horse battery")

	require.NoError(t, e.reset.RequestReset(ctx, "ALICE@example.com"))
	token := e.notifier.last()
	require.NotEmpty(t, token)

	for h := range e.store.resets {
		assert.Equal(t, common.TokenHandle(token), h)
	}

	e.mock.ExpectBegin()
	e.mock.ExpectCommit()
	require.NoError(t, e.reset.ConsumeReset(ctx, token, "a brand new passphrase"))

	_, err := e.auth.Authenticate(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, common.ErrInvalidSession)

	_, err = e.auth.Login(ctx, "alice@example.com", "correct horse battery", meta)
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)
	_, err = e.auth.Login(ctx, "alice@example.com", "a brand new passphrase", meta)
	assert.NoError(t, err)

	e.mock.ExpectBegin()
	e.mock.ExpectRollback()
	err = e.reset.ConsumeReset(ctx, token, "yet another passphrase")
	assert.ErrorIs(t, err, common.ErrInvalidResetToken)

	require.NoError(t, e.mock.ExpectationsWereMet())
}

func TestPasswordReset_UnknownEmailIsSilent(t *testing.T) {
	e := newTestEnv(t)

	require.NoError(t, e.reset.RequestReset(context.Background(), "ghost@example.com"))
	assert.Empty(t, e.notifier.last())
	assert.Empty(t, e.store.resets)
}

func TestPasswordReset_InactiveAccountIsSilent(t *testing.T) {
	e := newTestEnv(t)
	a, _ := e.register(t, "bob@example.com", "correct horse battery")
	e.store.accounts[a.ID].Active = false

	require.NoError(t, e.reset.RequestReset(context.Background(), "bob@example.com"))
	assert.Empty(t, e.notifier.last())
}

func TestPasswordReset_ExpiredToken(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.register(t, "carol@example.com", "correct horse battery")
	require.NoError(t, e.reset.RequestReset(ctx, "carol@example.com"))

	e.clk.Advance(resetTTL + time.Second)
	err := e.reset.ConsumeReset(ctx, e.notifier.last(), "a brand new passphrase")
	assert.ErrorIs(t, err, common.ErrInvalidResetToken)
	assert.Equal(t, common.ErrInvalidResetToken.Error(), err.Error())
}

func TestPasswordReset_WrongTokenTypes(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a, pair := e.register(t, "dave@example.com", "correct horse battery")

	for _, tok := range []string{pair.AccessToken, pair.RefreshToken, "garbage"} {
		err := e.reset.ConsumeReset(ctx, tok, "a brand new passphrase")
		assert.ErrorIs(t, err, common.ErrInvalidResetToken)
	}

	// A correctly signed reset token that was never stored.
	unstored, err := e.tokens.Issue(a.ID, a.Role, auth.TypeReset, resetTTL)
	require.NoError(t, err)
	e.mock.ExpectBegin()
	e.mock.ExpectRollback()
	err = e.reset.ConsumeReset(ctx, unstored, "a brand new passphrase")
	assert.ErrorIs(t, err, common.ErrInvalidResetToken)
}

func TestPasswordReset_ShortPasswordKeepsToken(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.register(t, "erin@example.com", "correct horse battery")
	require.NoError(t, e.reset.RequestReset(ctx, "erin@example.com"))
	token := e.notifier.last()

	err := e.reset.ConsumeReset(ctx, token, "short")
	assert.ErrorIs(t, err, common.ErrorValidation)

	e.mock.ExpectBegin()
	e.mock.ExpectCommit()
	assert.NoError(t, e.reset.ConsumeReset(ctx, token, "long enough passphrase"))
}

func TestPasswordReset_ShortPasswordCheckedBeforeToken(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	for _, tok := range []string{"garbage", ""} {
		err := e.reset.ConsumeReset(ctx, tok, "short")
		assert.ErrorIs(t, err, common.ErrorValidation)
		assert.NotErrorIs(t, err, common.ErrInvalidResetToken)
	}
}

func TestPasswordReset_RevokeFailureRollsBack(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a, pair := e.register(t, "hana@example.com", "correct horse battery")
	oldHash := e.store.accounts[a.ID].PasswordHash
	require.NoError(t, e.reset.RequestReset(ctx, "hana@example.com"))
	token := e.notifier.last()

	e.store.revokeErr = errors.New("connection reset")
	e.mock.ExpectBegin()
	e.mock.ExpectRollback()
	err := e.reset.ConsumeReset(ctx, token, "a brand new passphrase")
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrInvalidResetToken)
	require.NoError(t, e.mock.ExpectationsWereMet())

	assert.Equal(t, oldHash, e.store.accounts[a.ID].PasswordHash)
	assert.False(t, e.store.resets[common.TokenHandle(token)].Used)
	_, err = e.auth.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)

	e.store.revokeErr = nil
	e.mock.ExpectBegin()
	e.mock.ExpectCommit()
	require.NoError(t, e.reset.ConsumeReset(ctx, token, "a brand new passphrase"))

	_, err = e.auth.Authenticate(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, common.ErrInvalidSession)
	_, err = e.auth.Login(ctx, "hana@example.com", "a brand new passphrase", meta)
	assert.NoError(t, err)
}

func TestPasswordReset_NewRequestSupersedesOutstanding(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.register(t, "frank@example.com", "correct horse battery")

	require.NoError(t, e.reset.RequestReset(ctx, "frank@example.com"))
	first := e.notifier.last()
	e.clk.Advance(time.Second)
	require.NoError(t, e.reset.RequestReset(ctx, "frank@example.com"))
	second := e.notifier.last()
	require.NotEqual(t, first, second)

	e.mock.ExpectBegin()
	e.mock.ExpectCommit()
	require.NoError(t, e.reset.ConsumeReset(ctx, second, "a brand new passphrase"))

	e.mock.ExpectBegin()
	e.mock.ExpectRollback()
	assert.ErrorIs(t, e.reset.ConsumeReset(ctx, first, "another passphrase!"), common.ErrInvalidResetToken)
}

func TestPasswordReset_SweepExpired(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.register(t, "gina@example.com", "correct horse battery")
	require.NoError(t, e.reset.RequestReset(ctx, "gina@example.com"))

	n, err := e.reset.SweepExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	e.clk.Advance(resetTTL)
	n, err = e.reset.SweepExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestLogNotifier_NeverLogsToken(t *testing.T) {
	var buf bytes.Buffer
	n := LogNotifier{Log: logging.New(&buf, "json", "debug")}
	err := n.SendPasswordReset(context.Background(), &models.Account{ID: "a-1"}, "secret-token", time.Now())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"account_id":"a-1"`)
	assert.NotContains(t, buf.String(), "secret-token")
}
