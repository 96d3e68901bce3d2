package users

import (
	"context"
	"errors"
	"testing"

	"github.com/dmitrijs2005/assistauth/internal/common"
	"github.com/dmitrijs2005/assistauth/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository_CreateAndFind(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()

	u, err := r.Create(ctx, &models.User{Email: "Mixed@Case.com", Name: "M", Role: models.RoleUser, Status: models.StatusActive})
	require.NoError(t, err)
	require.NotEmpty(t, u.ID)
	assert.Equal(t, "mixed@case.com", u.Email)

	byEmail, err := r.FindByEmail(ctx, "MIXED@case.COM")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	byID, err := r.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "M", byID.Name)

	_, err = r.Create(ctx, &models.User{Email: "mixed@case.com"})
	assert.True(t, errors.Is(err, common.ErrorAlreadyExists))
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()

	u, err := r.Create(ctx, &models.User{Email: "a@x.com", PasswordHash: "h1"})
	require.NoError(t, err)

	got, err := r.FindByID(ctx, u.ID)
	require.NoError(t, err)
	got.PasswordHash = "tampered"

	again, err := r.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "h1", again.PasswordHash)
}

func TestMemoryRepository_Updates(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()

	u, err := r.Create(ctx, &models.User{Email: "a@x.com", PasswordHash: "h1", Status: models.StatusActive})
	require.NoError(t, err)

	require.NoError(t, r.UpdatePasswordHash(ctx, u.ID, "h2"))
	require.NoError(t, r.UpdateStatus(ctx, u.ID, models.StatusSuspended))

	got, err := r.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "h2", got.PasswordHash)
	assert.Equal(t, models.StatusSuspended, got.Status)

	assert.True(t, errors.Is(r.UpdateStatus(ctx, "missing", models.StatusActive), common.ErrorNotFound))
	_, err = r.FindByEmail(ctx, "missing@x.com")
	assert.True(t, errors.Is(err, common.ErrorNotFound))
}

func TestMemoryRepository_SnapshotRestore(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()

	u, err := r.Create(ctx, &models.User{Email: "a@x.com", PasswordHash: "h1"})
	require.NoError(t, err)

	snap := r.Snapshot()
	require.NoError(t, r.UpdatePasswordHash(ctx, u.ID, "h2"))
	_, err = r.Create(ctx, &models.User{Email: "b@x.com"})
	require.NoError(t, err)

	r.Restore(snap)

	got, err := r.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "h1", got.PasswordHash)
	_, err = r.FindByEmail(ctx, "b@x.com")
	assert.True(t, errors.Is(err, common.ErrorNotFound))
}
