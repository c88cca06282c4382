package ports

import (
	"context"

	"screencast/internal/core/domain"
)

type RecordingRepository interface {
	Create(ctx context.Context, recording *domain.Recording) error
	GetByID(ctx context.Context, id domain.RecordingID) (*domain.Recording, error)
	Delete(ctx context.Context, id domain.RecordingID) error
	// List returns all recordings, newest first.
	List(ctx context.Context) ([]*domain.Recording, error)
}
