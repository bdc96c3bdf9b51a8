package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/advisorhub/internal/model"
	"github.com/hitoshi/advisorhub/internal/testutil"
)

func newUserWithIdentity(email, providerUserID string) (*model.User, *model.Identity) {
	now := time.Now().UTC()
	user := &model.User{
		ID:               uuid.New().String(),
		Email:            email,
		Name:             "Test User",
		AvailableInvites: model.DefaultInviteQuota,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	identity := &model.Identity{
		ID:             uuid.New().String(),
		UserID:         user.ID,
		Provider:       "google",
		ProviderUserID: providerUserID,
		CreatedAt:      now,
	}
	return user, identity
}

func TestPostgresUserRepo_CreateWithIdentity_AndFind(t *testing.T) {
	db := testutil.SetupTestDB(t)
	users := NewPostgresUserRepo(db)
	identities := NewPostgresIdentityRepo(db)
	ctx := context.Background()

	user, identity := newUserWithIdentity("alice@example.com", "google-alice")
	require.NoError(t, users.CreateWithIdentity(ctx, user, identity))

	found, err := users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "alice@example.com", found.Email)
	assert.Equal(t, model.DefaultInviteQuota, found.AvailableInvites)

	foundIdentity, err := identities.FindByProviderAndProviderUserID(ctx, "google", "google-alice")
	require.NoError(t, err)
	require.NotNil(t, foundIdentity)
	assert.Equal(t, user.ID, foundIdentity.UserID)

	missing, err := identities.FindByProviderAndProviderUserID(ctx, "google", "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPostgresUserRepo_CreateWithIdentity_DuplicateIdentity(t *testing.T) {
	db := testutil.SetupTestDB(t)
	users := NewPostgresUserRepo(db)
	ctx := context.Background()

	first, firstIdentity := newUserWithIdentity("first@example.com", "google-dup")
	require.NoError(t, users.CreateWithIdentity(ctx, first, firstIdentity))

	second, secondIdentity := newUserWithIdentity("second@example.com", "google-dup")
	err := users.CreateWithIdentity(ctx, second, secondIdentity)
	require.ErrorIs(t, err, ErrDuplicateIdentity)

	// 失敗したトランザクションのユーザーは残らない
	found, err := users.FindByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestPostgresUserRepo_FindByID_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	users := NewPostgresUserRepo(db)

	found, err := users.FindByID(context.Background(), uuid.New().String())
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestPostgresUserRepo_Withdraw_DeletesUserWithoutHistory(t *testing.T) {
	db := testutil.SetupTestDB(t)
	users := NewPostgresUserRepo(db)
	ctx := context.Background()

	user, identity := newUserWithIdentity("plain@example.com", "google-plain")
	require.NoError(t, users.CreateWithIdentity(ctx, user, identity))

	anonymized, err := users.Withdraw(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, anonymized)

	found, err := users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestPostgresUserRepo_Withdraw_AnonymizesUserWithHistory(t *testing.T) {
	db := testutil.SetupTestDB(t)
	users := NewPostgresUserRepo(db)
	invites := NewPostgresInviteRepo(db)
	identities := NewPostgresIdentityRepo(db)
	ctx := context.Background()

	user, identity := newUserWithIdentity("issuer@example.com", "google-issuer")
	require.NoError(t, users.CreateWithIdentity(ctx, user, identity))
	_, err := invites.CreateWithQuotaDebit(ctx, newInviteCode(user.ID, "HISTORY23456"))
	require.NoError(t, err)

	anonymized, err := users.Withdraw(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, anonymized)

	found, err := users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Empty(t, found.Email)
	assert.Empty(t, found.Name)
	assert.Zero(t, found.AvailableInvites)

	gone, err := identities.FindByProviderAndProviderUserID(ctx, "google", "google-issuer")
	require.NoError(t, err)
	assert.Nil(t, gone)

	// 台帳は保持される
	code, err := invites.FindByCode(ctx, "HISTORY23456")
	require.NoError(t, err)
	require.NotNil(t, code)
}

func TestPostgresUserRepo_Withdraw_UnknownUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	users := NewPostgresUserRepo(db)

	_, err := users.Withdraw(context.Background(), uuid.New().String())
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestPostgresSessionRepo_Lifecycle(t *testing.T) {
	db := testutil.SetupTestDB(t)
	sessions := NewPostgresSessionRepo(db)
	ctx := context.Background()

	userID := testutil.SeedUser(t, db, "session@example.com", 5)
	now := time.Now().UTC()

	active := &model.Session{ID: "sess-active", UserID: userID, ExpiresAt: now.Add(time.Hour), CreatedAt: now}
	expired := &model.Session{ID: "sess-expired", UserID: userID, ExpiresAt: now.Add(-time.Hour), CreatedAt: now.Add(-2 * time.Hour)}
	require.NoError(t, sessions.Create(ctx, active))
	require.NoError(t, sessions.Create(ctx, expired))

	found, err := sessions.FindByID(ctx, "sess-active")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, userID, found.UserID)

	notFound, err := sessions.FindByID(ctx, "sess-expired")
	require.NoError(t, err)
	assert.Nil(t, notFound, "期限切れセッションは返さない")

	deleted, err := sessions.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	require.NoError(t, sessions.DeleteByUserID(ctx, userID))
	found, err = sessions.FindByID(ctx, "sess-active")
	require.NoError(t, err)
	assert.Nil(t, found)
}
