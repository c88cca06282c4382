package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"screencast/internal/core/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient connects to SCREENCAST_TEST_REDIS_ADDR or skips.
func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("SCREENCAST_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SCREENCAST_TEST_REDIS_ADDR not set")
	}

	client, err := NewRedisClient(addr, "", 15, 5, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		_ = CloseRedisClient(client)
	})
	return client
}

func TestRedisRecordingRepository(t *testing.T) {
	client := newTestClient(t)
	repo := NewRedisRecordingRepository(client)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	older := &domain.Recording{ID: domain.RecordingID(uuid.NewString()), Title: "older", Filename: "a.webm", CreatedAt: base}
	newer := &domain.Recording{ID: domain.RecordingID(uuid.NewString()), Title: "newer", Filename: "b.mp4", CreatedAt: base.Add(time.Second)}

	require.NoError(t, repo.Create(ctx, older))
	require.NoError(t, repo.Create(ctx, newer))
	assert.Error(t, repo.Create(ctx, older))

	got, err := repo.GetByID(ctx, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, "newer", got.Title)
	assert.True(t, newer.CreatedAt.Equal(got.CreatedAt))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, older.ID, list[1].ID)

	require.NoError(t, repo.Delete(ctx, older.ID))
	assert.ErrorIs(t, repo.Delete(ctx, older.ID), domain.ErrRecordingNotFound)
	_, err = repo.GetByID(ctx, older.ID)
	assert.ErrorIs(t, err, domain.ErrRecordingNotFound)
}
