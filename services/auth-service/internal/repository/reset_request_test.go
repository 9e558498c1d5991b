package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasapolrittideah/crm-identity-api/services/auth-service/internal/model"
)

func TestResetRequestMongoRepository(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()
	repo := NewResetRequestMongoRepository(ctx, nopLogger(), db, 5*time.Second)

	now := time.Now().UTC().Truncate(time.Millisecond)

	fresh, err := repo.Insert(ctx, &model.ResetRequest{
		Email: "a@x.com", TokenHash: "h-fresh", IPHash: "ip-1",
		CreatedAt: now, ExpiresAt: now.Add(30 * time.Minute),
	})
	require.NoError(t, err)

	_, err = repo.Insert(ctx, &model.ResetRequest{
		Email: "a@x.com", TokenHash: "h-expired", IPHash: "ip-1",
		CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-90 * time.Minute),
	})
	require.NoError(t, err)

	t.Run("counts use the window", func(t *testing.T) {
		n, err := repo.CountByEmailSince(ctx, "a@x.com", now.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = repo.CountByIPHashSince(ctx, "ip-1", now.Add(-3*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})

	t.Run("release claim", func(t *testing.T) {
		claimed, err := repo.Insert(ctx, &model.ResetRequest{
			Email: "b@x.com", TokenHash: "h-release", IPHash: "ip-2",
			CreatedAt: now, ExpiresAt: now.Add(30 * time.Minute),
		})
		require.NoError(t, err)

		require.NoError(t, repo.MarkUsed(ctx, claimed.ID, now))
		assert.ErrorIs(t, repo.ReleaseClaim(ctx, claimed.ID, now.Add(time.Second)), ErrNotFound)
		require.NoError(t, repo.ReleaseClaim(ctx, claimed.ID, now))

		got, err := repo.FindByTokenHash(ctx, "h-release")
		require.NoError(t, err)
		assert.Nil(t, got.UsedAt)
		assert.True(t, got.IsValid(now))
	})

	t.Run("mark used once", func(t *testing.T) {
		require.NoError(t, repo.MarkUsed(ctx, fresh.ID, now))
		assert.ErrorIs(t, repo.MarkUsed(ctx, fresh.ID, now), ErrAlreadyUsed)

		got, err := repo.FindByTokenHash(ctx, "h-fresh")
		require.NoError(t, err)
		require.NotNil(t, got.UsedAt)
		assert.False(t, got.IsValid(now))
	})

	t.Run("sweep", func(t *testing.T) {
		n, err := repo.DeleteExpiredUnused(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = repo.DeleteUsedOlderThan(ctx, now.Add(-7*24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)

		n, err = repo.DeleteUsedOlderThan(ctx, now.Add(time.Second))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = repo.FindByTokenHash(ctx, "h-fresh")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
