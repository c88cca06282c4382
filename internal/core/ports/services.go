package ports

import (
	"context"
	"time"

	"screencast/internal/core/domain"
)

type RecordingService interface {
	ListRecordings(ctx context.Context) ([]*domain.Recording, error)
	GetRecording(ctx context.Context, id domain.RecordingID) (*domain.Recording, error)
	CreateRecording(ctx context.Context, input domain.RecordingInput) (*domain.Recording, error)
	DeleteRecording(ctx context.Context, id domain.RecordingID) error
}

// MetadataPublisher stores the descriptor of a finalized artifact.
type MetadataPublisher interface {
	Publish(ctx context.Context, input domain.RecordingInput) (*domain.Recording, error)
}

// ArtifactExporter is the local-save path for finalized artifacts. It returns
// the name the artifact was saved under.
type ArtifactExporter interface {
	Export(ctx context.Context, artifact *domain.Artifact) (string, error)
}

// Notifier receives user-facing notifications. Implementations must not block.
type Notifier interface {
	Notify(n domain.Notification)
}

// RecordingEventPublisher broadcasts store changes to other instances.
type RecordingEventPublisher interface {
	PublishRecordingEvent(ctx context.Context, eventType domain.RecordingEventType, id domain.RecordingID) error
}

// SessionMetrics observes the recording session.
type SessionMetrics interface {
	StateChanged(from, to domain.SessionState)
	ChunkAppended(sizeBytes int64)
	StallDetected()
	ArtifactFinalized(sizeBytes int64, durationSeconds int)
	NoDataCaptured()
	PublishFailed()
}

// StoreMetrics observes recording store calls.
type StoreMetrics interface {
	StoreOperation(operation string, duration time.Duration, err error)
}
