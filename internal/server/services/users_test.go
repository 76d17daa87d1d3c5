package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/healthvault/internal/common"
	"github.com/dmitrijs2005/healthvault/internal/server/filestore"
	"github.com/dmitrijs2005/healthvault/internal/server/repositories/repomanager"
)

func TestRegister(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	u, pair, err := e.users.Register(ctx, " Alice@Example.com ", "pw", "Alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.NotEqual(t, "pw", u.PasswordHash)
	require.NotNil(t, pair)

	id, err := e.users.Authenticate(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, id.UserID)
	assert.Equal(t, "alice@example.com", id.Email)

	_, _, err = e.users.Register(ctx, "ALICE@example.com", "pw2", "Other")
	assert.ErrorIs(t, err, common.ErrConflict)
}

func TestRegister_Validation(t *testing.T) {
	e := newTestEnv(t)
	cases := []struct{ email, password, name, field string }{
		{"", "pw", "A", "email"},
		{"nope", "pw", "A", "email"},
		{"a@example.com", "", "A", "password"},
		{"a@example.com", "pw", "  ", "fullName"},
	}
	for _, c := range cases {
		_, _, err := e.users.Register(context.Background(), c.email, c.password, c.name)
		var ve *common.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, c.field, ve.Field)
	}
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	e.register(t, "alice@example.com", "Alice")

	u, pair, err := e.users.Login(ctx, "ALICE@example.com", "password")
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.FullName)
	assert.NotEmpty(t, pair.RefreshToken)

	_, _, err = e.users.Login(ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
	_, _, err = e.users.Login(ctx, "nobody@example.com", "password")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestRefreshToken_Rotates(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	_, pair, err := e.users.Register(ctx, "alice@example.com", "pw", "Alice")
	require.NoError(t, err)

	next, err := e.users.RefreshToken(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	_, err = e.users.RefreshToken(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrInvalidToken, "a spent token cannot be reused")

	_, err = e.users.RefreshToken(ctx, "unknown")
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestRefreshToken_Expired(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	e.users.refreshTokenValidityDuration = -time.Hour
	_, pair, err := e.users.Register(ctx, "alice@example.com", "pw", "Alice")
	require.NoError(t, err)

	_, err = e.users.RefreshToken(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrRefreshTokenExpired)

	n, err := e.users.PurgeExpiredTokens(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestDeleteAccount(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	alice := e.register(t, "alice@example.com", "Alice")
	bob := e.register(t, "bob@example.com", "Bob")

	aliceReport := e.upload(t, alice, "CBC")
	bobReport := e.upload(t, bob, "MRI")
	toBob, err := e.sharing.ShareReport(ctx, alice, aliceReport.ID, bob.Email)
	require.NoError(t, err)
	_, err = e.sharing.ShareReport(ctx, bob, bobReport.ID, alice.Email)
	require.NoError(t, err)

	require.NoError(t, e.users.DeleteAccount(ctx, bob))

	ok, err := e.files.Exists(ctx, bobReport.FilePath)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = e.reports.GetReport(ctx, bobReport.ID, bob)
	assert.ErrorIs(t, err, common.ErrNotFoundOrForbidden)

	recv, err := e.sharing.ListReceivedShares(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, recv, "grants sent by the deleted user are gone")

	sent, err := e.sharing.ListSharesForReport(ctx, aliceReport.ID, alice)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, toBob.ID, sent[0].Grant.ID)
	assert.Empty(t, sent[0].Grant.RecipientUserID, "grant degrades to email-only")
	assert.Equal(t, "bob@example.com", sent[0].Grant.RecipientEmail)

	_, _, err = e.users.Login(ctx, bob.Email, "password")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
	assert.ErrorIs(t, e.users.DeleteAccount(ctx, bob), common.ErrNotFoundOrForbidden)
}

// failingRemoveStore fails the failOn-th Remove call (1-based).
type failingRemoveStore struct {
	*filestore.LocalStore
	failOn int
	calls  int
}

func (s *failingRemoveStore) Remove(ctx context.Context, ref string) (bool, error) {
	s.calls++
	if s.calls == s.failOn {
		return false, errors.New("disk I/O error")
	}
	return s.LocalStore.Remove(ctx, ref)
}

func newFailingRemoveEnv(t *testing.T, failOn int) (*testEnv, *failingRemoveStore) {
	t.Helper()
	local, err := filestore.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	files := &failingRemoveStore{LocalStore: local, failOn: failOn}
	return newTestEnvWith(t, repomanager.NewMemoryRepositoryManager(), files), files
}

func TestDeleteAccount_PartialFileRemovalIsFatal(t *testing.T) {
	ctx := context.Background()
	e, files := newFailingRemoveEnv(t, 2)
	log := &recordingLogger{}
	e.users.logger = log

	alice := e.register(t, "alice@example.com", "Alice")
	first := e.upload(t, alice, "CBC")
	second := e.upload(t, alice, "MRI")

	err := e.users.DeleteAccount(ctx, alice)
	require.ErrorIs(t, err, common.ErrFatal)
	var fe *common.FatalError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, alice.UserID, fe.Ref)
	assert.ErrorContains(t, err, "disk I/O error")

	errs := log.levels("error")
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].args, []string{first.FilePath})

	// first file gone, every row still present
	ok, err := files.Exists(ctx, first.FilePath)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = files.Exists(ctx, second.FilePath)
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = e.reports.GetReport(ctx, first.ID, alice)
	require.NoError(t, err)
}

func TestDeleteAccount_FirstRemoveFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	e, files := newFailingRemoveEnv(t, 1)

	alice := e.register(t, "alice@example.com", "Alice")
	rep := e.upload(t, alice, "CBC")

	err := e.users.DeleteAccount(ctx, alice)
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrFatal)

	ok, err := files.Exists(ctx, rep.FilePath)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestResolveEmail(t *testing.T) {
	e := newTestEnv(t)
	alice := e.register(t, "alice@example.com", "Alice")

	id, ok, err := e.users.ResolveEmail(context.Background(), "ALICE@example.com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, alice.UserID, id)

	_, ok, err = e.users.ResolveEmail(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}
