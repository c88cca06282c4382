package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"screencast/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestRepo(t *testing.T) *SQLiteRecordingRepository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "data", "recordings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSQLiteRecordingRepository_CRUD(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	created := time.Date(2024, 2, 3, 4, 5, 6, 789, time.UTC)

	rec := &domain.Recording{
		ID:            "rec-1",
		Title:         "Screen Recording",
		Filename:      "screen-recording-1.mp4",
		FileSize:      4500,
		Duration:      12,
		Format:        "mp4",
		Quality:       "1080p",
		FrameRate:     30,
		HasAudio:      true,
		HasMicrophone: false,
		CreatedAt:     created,
	}
	require.NoError(t, repo.Create(ctx, rec))
	assert.Error(t, repo.Create(ctx, rec))

	got, err := repo.GetByID(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, rec.Filename, got.Filename)
	assert.Equal(t, int64(4500), got.FileSize)
	assert.True(t, got.HasAudio)
	assert.False(t, got.HasMicrophone)
	assert.True(t, created.Equal(got.CreatedAt))

	require.NoError(t, repo.Delete(ctx, "rec-1"))
	assert.ErrorIs(t, repo.Delete(ctx, "rec-1"), domain.ErrRecordingNotFound)
	_, err = repo.GetByID(ctx, "rec-1")
	assert.ErrorIs(t, err, domain.ErrRecordingNotFound)
}

func TestSQLiteRecordingRepository_ListNewestFirst(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"first", "second", "third"} {
		require.NoError(t, repo.Create(ctx, &domain.Recording{
			ID:        domain.RecordingID(id),
			Title:     id,
			Filename:  id + ".webm",
			Format:    "webm",
			Quality:   "720p",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, domain.RecordingID("third"), list[0].ID)
	assert.Equal(t, domain.RecordingID("first"), list[2].ID)
}

func TestSQLiteRecordingRepository_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recordings.db")
	repo, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), &domain.Recording{
		ID: "kept", Title: "kept", Filename: "kept.webm", Format: "webm", Quality: "720p", CreatedAt: time.Now(),
	}))
	require.NoError(t, repo.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	list, err := reopened.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
