package services

import (
	"context"
	"time"

	"screencast/internal/core/domain"
	"screencast/internal/core/ports"
	"screencast/pkg/cache"
)

const (
	recordingKeyPrefix = "recording:"
	recordingListKey   = "recordings:list"
)

// CachedRecordingService wraps RecordingService with a TTL read cache.
// Writes through this instance invalidate it; writes elsewhere show up after
// the TTL or an explicit Invalidate.
type CachedRecordingService struct {
	base  ports.RecordingService
	items *cache.Cache[*domain.Recording]
	lists *cache.Cache[[]*domain.Recording]
}

func NewCachedRecordingService(base ports.RecordingService, ttl time.Duration) *CachedRecordingService {
	return &CachedRecordingService{
		base:  base,
		items: cache.New[*domain.Recording](ttl),
		lists: cache.New[[]*domain.Recording](ttl),
	}
}

func (s *CachedRecordingService) ListRecordings(ctx context.Context) ([]*domain.Recording, error) {
	return s.lists.GetOrSet(ctx, recordingListKey, s.base.ListRecordings)
}

func (s *CachedRecordingService) GetRecording(ctx context.Context, id domain.RecordingID) (*domain.Recording, error) {
	return s.items.GetOrSet(ctx, recordingKeyPrefix+string(id), func(ctx context.Context) (*domain.Recording, error) {
		return s.base.GetRecording(ctx, id)
	})
}

func (s *CachedRecordingService) CreateRecording(ctx context.Context, input domain.RecordingInput) (*domain.Recording, error) {
	recording, err := s.base.CreateRecording(ctx, input)
	if err != nil {
		return nil, err
	}
	s.lists.Delete(recordingListKey)
	return recording, nil
}

func (s *CachedRecordingService) DeleteRecording(ctx context.Context, id domain.RecordingID) error {
	if err := s.base.DeleteRecording(ctx, id); err != nil {
		return err
	}
	s.Invalidate(id)
	return nil
}

// Invalidate drops cached state for id and the list. It is also driven by
// store events from other instances.
func (s *CachedRecordingService) Invalidate(id domain.RecordingID) {
	s.items.Delete(recordingKeyPrefix + string(id))
	s.lists.Delete(recordingListKey)
}

func (s *CachedRecordingService) Stop() {
	s.items.Stop()
	s.lists.Stop()
}
