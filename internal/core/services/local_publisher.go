package services

import (
	"context"

	"screencast/internal/core/domain"
	"screencast/internal/core/ports"
)

// LocalPublisher stores artifact descriptors in the in-process recording store.
type LocalPublisher struct {
	recordings ports.RecordingService
}

func NewLocalPublisher(recordings ports.RecordingService) *LocalPublisher {
	return &LocalPublisher{recordings: recordings}
}

func (p *LocalPublisher) Publish(ctx context.Context, input domain.RecordingInput) (*domain.Recording, error) {
	return p.recordings.CreateRecording(ctx, input)
}
