package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"screencast/internal/core/domain"
	"screencast/internal/core/ports"
	"screencast/pkg/tracing"
	"screencast/pkg/validation"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SupportedFormats are the container extensions a recording may declare.
var SupportedFormats = []string{"mp4", "webm", "mov", "ivf"}

const maxTextLength = 255

type recordingService struct {
	repo    ports.RecordingRepository
	events  ports.RecordingEventPublisher
	metrics ports.StoreMetrics
	logger  *zap.SugaredLogger
	now     func() time.Time
}

// NewRecordingService builds the recording store service. events and metrics
// may be nil.
func NewRecordingService(
	repo ports.RecordingRepository,
	events ports.RecordingEventPublisher,
	metrics ports.StoreMetrics,
	logger *zap.SugaredLogger,
) ports.RecordingService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &recordingService{
		repo:    repo,
		events:  events,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *recordingService) ListRecordings(ctx context.Context) (recordings []*domain.Recording, err error) {
	ctx, span := tracing.TraceStoreOperation(ctx, "list")
	defer span.End()
	defer s.observe("list", time.Now(), &err)

	recordings, err = s.repo.List(ctx)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}
	return recordings, nil
}

func (s *recordingService) GetRecording(ctx context.Context, id domain.RecordingID) (recording *domain.Recording, err error) {
	ctx, span := tracing.TraceStoreOperation(ctx, "get")
	span.SetAttributes(tracing.RecordingIDKey.String(string(id)))
	defer span.End()
	defer s.observe("get", time.Now(), &err)

	recording, err = s.repo.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, domain.ErrRecordingNotFound) {
			tracing.RecordError(ctx, err)
		}
		return nil, err
	}
	return recording, nil
}

func (s *recordingService) CreateRecording(ctx context.Context, input domain.RecordingInput) (recording *domain.Recording, err error) {
	ctx, span := tracing.TraceStoreOperation(ctx, "create")
	defer span.End()
	defer s.observe("create", time.Now(), &err)

	if err := ValidateRecordingInput(input); err != nil {
		return nil, err
	}

	recording = &domain.Recording{
		ID:            domain.RecordingID(uuid.NewString()),
		Title:         input.Title,
		Filename:      input.Filename,
		FileSize:      input.FileSize,
		Duration:      input.Duration,
		Format:        input.Format,
		Quality:       input.Quality,
		FrameRate:     input.FrameRate,
		HasAudio:      input.HasAudio,
		HasMicrophone: input.HasMicrophone,
		CreatedAt:     s.now().UTC(),
	}
	span.SetAttributes(tracing.RecordingIDKey.String(string(recording.ID)))

	if err := s.repo.Create(ctx, recording); err != nil {
		tracing.RecordError(ctx, err)
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}

	s.logger.Infow("recording created",
		"recording_id", recording.ID,
		"filename", recording.Filename,
		"file_size", recording.FileSize,
		"duration", recording.Duration,
	)
	s.publishEvent(ctx, domain.EventRecordingCreated, recording.ID)
	return recording, nil
}

func (s *recordingService) DeleteRecording(ctx context.Context, id domain.RecordingID) (err error) {
	ctx, span := tracing.TraceStoreOperation(ctx, "delete")
	span.SetAttributes(tracing.RecordingIDKey.String(string(id)))
	defer span.End()
	defer s.observe("delete", time.Now(), &err)

	if err := s.repo.Delete(ctx, id); err != nil {
		if !errors.Is(err, domain.ErrRecordingNotFound) {
			tracing.RecordError(ctx, err)
		}
		return err
	}

	s.logger.Infow("recording deleted", "recording_id", id)
	s.publishEvent(ctx, domain.EventRecordingDeleted, id)
	return nil
}

// publishEvent is best effort: the store change already happened.
func (s *recordingService) publishEvent(ctx context.Context, eventType domain.RecordingEventType, id domain.RecordingID) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishRecordingEvent(ctx, eventType, id); err != nil {
		s.logger.Warnw("failed to publish recording event",
			"event", eventType,
			"recording_id", id,
			"error", err,
		)
	}
}

func (s *recordingService) observe(operation string, start time.Time, err *error) {
	if s.metrics == nil {
		return
	}
	var opErr error
	if err != nil && *err != nil && !errors.Is(*err, domain.ErrRecordingNotFound) {
		opErr = *err
	}
	s.metrics.StoreOperation(operation, time.Since(start), opErr)
}

// ValidateRecordingInput checks a RecordingInput against the store schema.
func ValidateRecordingInput(input domain.RecordingInput) error {
	v := validation.New().
		Required("title", input.Title).
		MaxLength("title", input.Title, maxTextLength).
		Required("filename", input.Filename).
		MaxLength("filename", input.Filename, maxTextLength).
		Required("format", input.Format).
		OneOf("format", input.Format, SupportedFormats...).
		Required("quality", input.Quality).
		NonNegative("fileSize", input.FileSize).
		NonNegative("duration", int64(input.Duration)).
		NonNegative("frameRate", int64(input.FrameRate))
	if input.Filename != "" {
		if err := validation.ValidateFilename(input.Filename); err != nil {
			v.Check(false, "filename", "must not contain path separators")
		}
	}

	if v.Valid() {
		return nil
	}
	fields := make([]domain.FieldError, 0, len(v.Errors()))
	for _, fe := range v.Errors() {
		fields = append(fields, domain.FieldError{Field: fe.Field, Message: fe.Message})
	}
	return &domain.ValidationError{Fields: fields}
}
