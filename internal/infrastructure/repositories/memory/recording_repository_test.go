package memory

import (
	"context"
	"testing"
	"time"

	"screencast/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecording(id string, createdAt time.Time) *domain.Recording {
	return &domain.Recording{
		ID:        domain.RecordingID(id),
		Title:     "Screen Recording " + id,
		Filename:  "screen-recording-" + id + ".webm",
		Format:    "webm",
		Quality:   "720p",
		FrameRate: 30,
		CreatedAt: createdAt,
	}
}

func TestMemoryRecordingRepository_CRUD(t *testing.T) {
	repo := NewMemoryRecordingRepository()
	ctx := context.Background()
	rec := newRecording("a", time.Now())

	require.NoError(t, repo.Create(ctx, rec))
	assert.Error(t, repo.Create(ctx, rec))

	got, err := repo.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, rec.Filename, got.Filename)

	got.Title = "mutated"
	again, err := repo.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, rec.Title, again.Title)

	require.NoError(t, repo.Delete(ctx, "a"))
	_, err = repo.GetByID(ctx, "a")
	assert.ErrorIs(t, err, domain.ErrRecordingNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "a"), domain.ErrRecordingNotFound)
}

func TestMemoryRecordingRepository_ListNewestFirst(t *testing.T) {
	repo := NewMemoryRecordingRepository()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, newRecording("old", base)))
	require.NoError(t, repo.Create(ctx, newRecording("new", base.Add(time.Hour))))
	require.NoError(t, repo.Create(ctx, newRecording("mid", base.Add(time.Minute))))
	require.NoError(t, repo.Create(ctx, newRecording("tie", base.Add(time.Hour))))

	list, err := repo.List(ctx)
	require.NoError(t, err)

	ids := make([]domain.RecordingID, 0, len(list))
	for _, r := range list {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []domain.RecordingID{"tie", "new", "mid", "old"}, ids)
}

func TestMemoryRecordingRepository_ListEmpty(t *testing.T) {
	list, err := NewMemoryRecordingRepository().List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NotNil(t, list)
}
