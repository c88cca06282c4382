package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"screencast/internal/core/domain"
	"screencast/internal/core/ports"
)

type storedRecording struct {
	recording domain.Recording
	seq       uint64
}

type MemoryRecordingRepository struct {
	recordings map[domain.RecordingID]storedRecording
	seq        uint64
	mu         sync.RWMutex
}

func NewMemoryRecordingRepository() ports.RecordingRepository {
	return &MemoryRecordingRepository{
		recordings: make(map[domain.RecordingID]storedRecording),
	}
}

func (r *MemoryRecordingRepository) Create(ctx context.Context, recording *domain.Recording) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.recordings[recording.ID]; exists {
		return fmt.Errorf("recording already exists: %s", recording.ID)
	}

	r.seq++
	r.recordings[recording.ID] = storedRecording{recording: *recording, seq: r.seq}
	return nil
}

func (r *MemoryRecordingRepository) GetByID(ctx context.Context, id domain.RecordingID) (*domain.Recording, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, exists := r.recordings[id]
	if !exists {
		return nil, domain.ErrRecordingNotFound
	}

	recording := stored.recording
	return &recording, nil
}

func (r *MemoryRecordingRepository) Delete(ctx context.Context, id domain.RecordingID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.recordings[id]; !exists {
		return domain.ErrRecordingNotFound
	}

	delete(r.recordings, id)
	return nil
}

func (r *MemoryRecordingRepository) List(ctx context.Context) ([]*domain.Recording, error) {
	r.mu.RLock()
	stored := make([]storedRecording, 0, len(r.recordings))
	for _, s := range r.recordings {
		stored = append(stored, s)
	}
	r.mu.RUnlock()

	// Newest first; insertion order breaks ties.
	sort.Slice(stored, func(i, j int) bool {
		a, b := stored[i], stored[j]
		if !a.recording.CreatedAt.Equal(b.recording.CreatedAt) {
			return a.recording.CreatedAt.After(b.recording.CreatedAt)
		}
		return a.seq > b.seq
	})

	recordings := make([]*domain.Recording, 0, len(stored))
	for _, s := range stored {
		recording := s.recording
		recordings = append(recordings, &recording)
	}
	return recordings, nil
}
