package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"screencast/internal/core/domain"
	"screencast/internal/core/ports"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultTimeslice      = 5 * time.Second
	DefaultGraceDelay     = 2 * time.Second
	DefaultPublishTimeout = 30 * time.Second

	tickInterval     = time.Second
	progressLogEvery = 100
)

type stopReason string

const (
	reasonExplicit      stopReason = "explicit"
	reasonStall         stopReason = "stall"
	reasonRecorderError stopReason = "recorder_error"
	reasonTeardown      stopReason = "teardown"
)

// Config holds recording session tuning.
type Config struct {
	Profiles       []domain.ProfileCandidate
	Timeslice      time.Duration
	GraceDelay     time.Duration
	PublishTimeout time.Duration
	Watchdog       WatchdogConfig
}

func DefaultConfig() Config {
	return Config{
		Profiles:       domain.DefaultProfileCandidates(),
		Timeslice:      DefaultTimeslice,
		GraceDelay:     DefaultGraceDelay,
		PublishTimeout: DefaultPublishTimeout,
		Watchdog:       DefaultWatchdogConfig(),
	}
}

// Dependencies are the collaborators a Session drives. Source and Platform are
// required; the rest are optional.
type Dependencies struct {
	Source    ports.CaptureSource
	Platform  ports.Platform
	Publisher ports.MetadataPublisher
	Exporter  ports.ArtifactExporter
	Notifier  ports.Notifier
	Metrics   ports.SessionMetrics
	Logger    *zap.SugaredLogger
	Now       func() time.Time
}

// Session is the recording session controller. Transitions are serialized by
// ops; mu guards the fields that recorder and timer callbacks touch.
type Session struct {
	cfg       Config
	source    ports.CaptureSource
	platform  ports.Platform
	publisher ports.MetadataPublisher
	exporter  ports.ArtifactExporter
	notifier  ports.Notifier
	metrics   ports.SessionMetrics
	logger    *zap.SugaredLogger
	now       func() time.Time

	ops sync.Mutex

	mu           sync.Mutex
	id           domain.SessionID
	state        domain.SessionState
	stream       ports.Stream
	settings     domain.StreamSettings
	videoQuality string
	shareGen     uint64
	graceTimer   *time.Timer

	recorder     ports.Recorder
	profile      *domain.ProfileCandidate
	buffer       *ChunkBuffer
	watchdog     *Watchdog
	cycle        uint64
	startedAt    *time.Time
	elapsed      int
	lastDuration int
	tickerStop   chan struct{}
}

func New(cfg Config, deps Dependencies) *Session {
	if len(cfg.Profiles) == 0 {
		cfg.Profiles = domain.DefaultProfileCandidates()
	}
	if cfg.Timeslice <= 0 {
		cfg.Timeslice = DefaultTimeslice
	}
	if cfg.GraceDelay <= 0 {
		cfg.GraceDelay = DefaultGraceDelay
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultPublishTimeout
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Session{
		cfg:       cfg,
		source:    deps.Source,
		platform:  deps.Platform,
		publisher: deps.Publisher,
		exporter:  deps.Exporter,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		logger:    logger,
		now:       now,
		state:     domain.StateIdle,
		buffer:    NewChunkBuffer(),
		watchdog:  NewWatchdog(cfg.Watchdog, now, logger),
	}
}

// State returns the current state tag.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastDuration is the elapsed seconds of the most recently finalized recording.
func (s *Session) LastDuration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDuration
}

// Status returns a read-only view of the session.
func (s *Session) Status() domain.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := domain.SessionStatus{
		SessionID:      s.id,
		State:          s.state,
		ElapsedSeconds: s.elapsed,
		SizeBytes:      s.buffer.TotalSizeBytes(),
		SizeMB:         math.Round(float64(s.buffer.TotalSizeBytes())/1024/1024*100) / 100,
		Chunks:         s.buffer.Len(),
		VideoQuality:   s.videoQuality,
	}
	if s.startedAt != nil {
		t := *s.startedAt
		status.StartedAt = &t
	}
	if s.profile != nil {
		p := *s.profile
		status.Profile = &p
	}
	if last := s.buffer.LastArrival(); !last.IsZero() {
		status.LastChunkAt = &last
	}
	return status
}

// StartShare acquires a capture stream and moves Idle → Sharing.
func (s *Session) StartShare(ctx context.Context, constraints domain.CaptureConstraints) (domain.StreamSettings, error) {
	s.ops.Lock()
	defer s.ops.Unlock()

	s.mu.Lock()
	if s.state != domain.StateIdle {
		s.mu.Unlock()
		s.misuse(domain.ErrAlreadySharing)
		return domain.StreamSettings{}, domain.ErrAlreadySharing
	}
	lingering := s.detachStreamLocked()
	s.mu.Unlock()
	if lingering != nil {
		lingering.Release()
	}

	stream, err := s.source.Acquire(ctx, constraints)
	if err != nil {
		acqErr := &domain.AcquisitionError{Cause: err}
		s.logger.Errorw("error starting screen share", "error", err)
		s.mu.Lock()
		s.routeThroughErrorLocked()
		s.mu.Unlock()
		s.notify(domain.NotifyShareFailed, domain.SeverityDestructive, "Error", acqErr.Error(), acqErr)
		return domain.StreamSettings{}, acqErr
	}

	settings := stream.Settings()

	s.mu.Lock()
	s.shareGen++
	gen := s.shareGen
	s.id = domain.SessionID(uuid.NewString())
	s.stream = stream
	s.settings = settings
	s.videoQuality = formatVideoQuality(settings)
	s.setStateLocked(domain.StateSharing)
	s.mu.Unlock()

	stream.OnTrackEnded(func() { go s.handleTrackEnded(gen) })

	s.logger.Infow("screen sharing started",
		"session_id", s.id,
		"video_quality", s.videoQuality,
		"has_audio", settings.HasAudio,
	)
	s.notify(domain.NotifyShareStarted, domain.SeverityInfo, "Screen sharing started", "Screen capture is now active.", nil)
	return settings, nil
}

// StartRecord moves Sharing → Recording.
func (s *Session) StartRecord(ctx context.Context) error {
	s.ops.Lock()
	defer s.ops.Unlock()

	s.mu.Lock()
	switch s.state {
	case domain.StateRecording, domain.StateFinalizing:
		s.mu.Unlock()
		s.misuse(domain.ErrAlreadyRecording)
		return domain.ErrAlreadyRecording
	case domain.StateSharing:
	default:
		s.mu.Unlock()
		s.misuse(domain.ErrNotSharing)
		return domain.ErrNotSharing
	}

	profile, ok := s.selectProfile()
	if !ok {
		s.mu.Unlock()
		s.notify(domain.NotifyRecordingFailed, domain.SeverityDestructive, "Error",
			"Failed to start recording: no supported encoding profile.", domain.ErrNoSupportedProfile)
		return domain.ErrNoSupportedProfile
	}

	s.buffer.Clear()
	s.cycle++
	cycle := s.cycle
	stream := s.stream
	s.mu.Unlock()

	recorder, err := s.platform.NewRecorder(stream, profile, &cycleSink{session: s, cycle: cycle})
	if err != nil {
		return s.failStart(fmt.Errorf("create recorder: %w", err))
	}

	s.mu.Lock()
	startedAt := s.now()
	s.recorder = recorder
	s.profile = &profile
	s.startedAt = &startedAt
	s.elapsed = 0
	s.setStateLocked(domain.StateRecording)
	s.watchdog.Arm(func() { s.handleStall(cycle) })
	s.startTickerLocked(cycle)
	s.mu.Unlock()

	if err := recorder.Start(s.cfg.Timeslice); err != nil {
		s.mu.Lock()
		s.watchdog.Disarm()
		s.stopTickerLocked()
		s.recorder = nil
		s.profile = nil
		s.startedAt = nil
		s.cycle++
		s.setStateLocked(domain.StateSharing)
		s.mu.Unlock()
		return s.failStart(fmt.Errorf("start recorder: %w", err))
	}

	s.logger.Infow("recording started",
		"session_id", s.id,
		"mime_type", profile.MimeType,
		"bits_per_second", profile.BitsPerSecond(),
		"timeslice", s.cfg.Timeslice,
	)
	s.notify(domain.NotifyRecordingStarted, domain.SeverityInfo, "Recording started", "Screen recording is now active.", nil)
	return nil
}

// StopRecord finalizes the active recording. The returned artifact is non-nil
// whenever data was captured, even if delivery partly failed.
func (s *Session) StopRecord(ctx context.Context) (*domain.Artifact, error) {
	s.ops.Lock()
	defer s.ops.Unlock()

	if s.State() != domain.StateRecording {
		s.misuse(domain.ErrNotRecording)
		return nil, domain.ErrNotRecording
	}
	return s.finalize(ctx, reasonExplicit)
}

// StopAll finalizes any active recording, releases the stream and resets the
// session. It is a no-op in Idle and never fails; finalize problems are
// reported through the notifier.
func (s *Session) StopAll(ctx context.Context) *domain.Artifact {
	s.ops.Lock()
	defer s.ops.Unlock()

	return s.teardown(ctx)
}

func (s *Session) teardown(ctx context.Context) *domain.Artifact {
	s.mu.Lock()
	state := s.state
	hasStream := s.stream != nil
	s.mu.Unlock()

	if state == domain.StateIdle && !hasStream {
		return nil
	}

	var artifact *domain.Artifact
	if state == domain.StateRecording {
		artifact, _ = s.finalize(ctx, reasonTeardown)
	}

	s.mu.Lock()
	stream := s.detachStreamLocked()
	s.resetLocked()
	s.mu.Unlock()

	if stream != nil {
		stream.Release()
	}

	if state == domain.StateSharing || state == domain.StateRecording {
		s.logger.Infow("session ended")
		s.notify(domain.NotifySessionEnded, domain.SeverityInfo, "Session ended",
			"Screen sharing and recording have been stopped.", nil)
	}
	return artifact
}

// finalize runs Recording → Finalizing → Idle. Callers hold ops and have
// checked that the session is Recording.
func (s *Session) finalize(ctx context.Context, reason stopReason) (*domain.Artifact, error) {
	s.mu.Lock()
	s.setStateLocked(domain.StateFinalizing)
	s.watchdog.Disarm()
	s.stopTickerLocked()
	recorder := s.recorder
	s.recorder = nil
	s.mu.Unlock()

	// Stop may deliver trailing segments; the sink accepts them while Finalizing.
	if recorder != nil {
		if err := recorder.Stop(); err != nil {
			s.logger.Warnw("error stopping recorder", "error", err, "reason", reason)
		}
	}

	s.mu.Lock()
	snapshot := s.buffer.Snapshot()
	duration := s.elapsed
	s.lastDuration = duration
	mimeType := ""
	if s.profile != nil {
		mimeType = s.profile.MimeType
	}
	settings := s.settings
	s.cycle++
	s.startedAt = nil
	s.setStateLocked(domain.StateIdle)
	s.mu.Unlock()

	s.logger.Infow("recording stopped, processing data",
		"reason", reason,
		"chunks", snapshot.Len(),
		"size_bytes", snapshot.SizeBytes(),
		"duration_seconds", duration,
	)

	if snapshot.Empty() {
		if s.metrics != nil {
			s.metrics.NoDataCaptured()
		}
		s.notify(domain.NotifyNoData, domain.SeverityDestructive, "No Data", "No recording data was captured.", domain.ErrNoDataCaptured)
		return nil, domain.ErrNoDataCaptured
	}

	artifact := &domain.Artifact{
		Bytes:           snapshot.Concat(),
		MimeType:        mimeType,
		DurationSeconds: duration,
		SizeBytes:       snapshot.SizeBytes(),
		CreatedAt:       s.now(),
		Settings:        settings,
	}
	if s.metrics != nil {
		s.metrics.ArtifactFinalized(artifact.SizeBytes, artifact.DurationSeconds)
	}
	s.notify(domain.NotifyRecordingStopped, domain.SeverityInfo, "Recording stopped", "Your screen recording is being saved.", nil)

	return artifact, s.deliver(context.WithoutCancel(ctx), artifact)
}

// deliver hands the artifact to the local-save path and the publisher
// independently, so a publish failure never loses the exported file.
func (s *Session) deliver(ctx context.Context, artifact *domain.Artifact) error {
	var errs []error

	if s.exporter != nil {
		name, err := s.exporter.Export(ctx, artifact)
		if err != nil {
			exportErr := &domain.ExportError{Filename: name, Cause: err}
			s.logger.Errorw("failed to export recording", "error", err)
			s.notify(domain.NotifyExportFailed, domain.SeverityDestructive, "Error", "Failed to save recording locally.", exportErr)
			errs = append(errs, exportErr)
		} else {
			s.logger.Infow("recording exported", "filename", name, "size_bytes", artifact.SizeBytes)
		}
	}

	if s.publisher != nil {
		input := DescribeArtifact(artifact)
		publishCtx, cancel := context.WithTimeout(ctx, s.cfg.PublishTimeout)
		recording, err := s.publisher.Publish(publishCtx, input)
		cancel()
		if err != nil {
			publishErr := &domain.PublishError{Filename: input.Filename, Cause: err}
			if s.metrics != nil {
				s.metrics.PublishFailed()
			}
			s.logger.Errorw("failed to publish recording metadata", "error", err, "filename", input.Filename)
			s.notify(domain.NotifyPublishFailed, domain.SeverityDestructive, "Error", "Failed to save recording.", publishErr)
			errs = append(errs, publishErr)
		} else {
			s.logger.Infow("recording metadata saved", "recording_id", recording.ID)
			s.notify(domain.NotifyRecordingSaved, domain.SeverityInfo, "Recording saved",
				"Your screen recording has been saved successfully.", nil)
		}
	}

	return errors.Join(errs...)
}

func (s *Session) handleStall(cycle uint64) {
	s.ops.Lock()
	defer s.ops.Unlock()

	s.mu.Lock()
	current := s.cycle == cycle && s.state == domain.StateRecording
	s.mu.Unlock()
	if !current {
		return
	}

	if s.metrics != nil {
		s.metrics.StallDetected()
	}
	s.notify(domain.NotifyStallRecovery, domain.SeverityDestructive, "Recording Issue Detected",
		"Recording may have stalled. Attempting to save current progress...", nil)
	_, _ = s.finalize(context.Background(), reasonStall)
}

func (s *Session) handleRecorderError(cycle uint64, recErr error) {
	s.ops.Lock()
	defer s.ops.Unlock()

	s.mu.Lock()
	current := s.cycle == cycle && s.state == domain.StateRecording
	s.mu.Unlock()
	if !current {
		s.logger.Debugw("ignoring recorder error from finished cycle", "error", recErr)
		return
	}

	s.logger.Errorw("recorder error", "error", recErr)
	s.notify(domain.NotifyRecorderError, domain.SeverityDestructive, "Recording Error",
		"Recording encountered an error. Trying to save what was recorded...", recErr)
	_, _ = s.finalize(context.Background(), reasonRecorderError)
}

func (s *Session) handleTrackEnded(gen uint64) {
	s.ops.Lock()
	defer s.ops.Unlock()

	s.mu.Lock()
	if gen != s.shareGen || s.stream == nil {
		s.mu.Unlock()
		return
	}
	if s.state == domain.StateRecording {
		if s.graceTimer == nil {
			s.graceTimer = time.AfterFunc(s.cfg.GraceDelay, func() { s.handleGraceExpired(gen) })
		}
		s.mu.Unlock()
		s.logger.Infow("screen share ended by user while recording", "grace_delay", s.cfg.GraceDelay)
		s.notify(domain.NotifyShareEnded, domain.SeverityInfo, "Screen share ended",
			"Recording will continue to save. Please wait...", nil)
		return
	}
	s.mu.Unlock()

	s.logger.Infow("screen share ended by user")
	s.teardown(context.Background())
}

func (s *Session) handleGraceExpired(gen uint64) {
	s.ops.Lock()
	defer s.ops.Unlock()

	s.mu.Lock()
	current := gen == s.shareGen
	s.graceTimer = nil
	s.mu.Unlock()
	if !current {
		return
	}
	s.teardown(context.Background())
}

// onData appends a segment produced by the recorder of the given cycle.
func (s *Session) onData(cycle uint64, payload []byte) {
	if len(payload) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cycle != s.cycle || (s.state != domain.StateRecording && s.state != domain.StateFinalizing) {
		s.logger.Debugw("dropping segment outside of recording", "size_bytes", len(payload), "state", s.state)
		return
	}

	total := s.buffer.Append(domain.Chunk{
		Payload:     payload,
		SizeBytes:   int64(len(payload)),
		ArrivalTime: s.now(),
	})
	s.watchdog.RecordActivity()
	if s.metrics != nil {
		s.metrics.ChunkAppended(int64(len(payload)))
	}

	if n := s.buffer.Len(); n%progressLogEvery == 0 {
		s.logger.Infow("recording progress",
			"chunks", n,
			"size_mb", math.Round(float64(total)/1024/1024),
		)
	}
}

func (s *Session) tick(cycle uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cycle == s.cycle && s.state == domain.StateRecording {
		s.elapsed++
	}
}

func (s *Session) startTickerLocked(cycle uint64) {
	stop := make(chan struct{})
	s.tickerStop = stop
	go func() {
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.tick(cycle)
			}
		}
	}()
}

func (s *Session) stopTickerLocked() {
	if s.tickerStop != nil {
		close(s.tickerStop)
		s.tickerStop = nil
	}
}

func (s *Session) selectProfile() (domain.ProfileCandidate, bool) {
	for _, candidate := range s.cfg.Profiles {
		if s.platform.IsTypeSupported(candidate.MimeType) {
			return candidate, true
		}
	}
	return domain.ProfileCandidate{}, false
}

func (s *Session) failStart(err error) error {
	s.logger.Errorw("error starting recording", "error", err)
	s.notify(domain.NotifyRecordingFailed, domain.SeverityDestructive, "Error",
		fmt.Sprintf("Failed to start recording: %v", err), err)
	return err
}

// detachStreamLocked unregisters the track-ended hook and hands the stream to
// the caller for release outside the lock.
func (s *Session) detachStreamLocked() ports.Stream {
	stream := s.stream
	s.stream = nil
	s.shareGen++
	if s.graceTimer != nil {
		s.graceTimer.Stop()
		s.graceTimer = nil
	}
	if stream != nil {
		stream.OnTrackEnded(nil)
	}
	return stream
}

func (s *Session) resetLocked() {
	s.watchdog.Disarm()
	s.stopTickerLocked()
	s.buffer.Clear()
	s.id = ""
	s.settings = domain.StreamSettings{}
	s.videoQuality = ""
	s.recorder = nil
	s.profile = nil
	s.startedAt = nil
	s.elapsed = 0
	s.cycle++
	s.setStateLocked(domain.StateIdle)
}

// routeThroughErrorLocked records a failure that leaves the session Idle.
func (s *Session) routeThroughErrorLocked() {
	s.setStateLocked(domain.StateError)
	s.setStateLocked(domain.StateIdle)
}

func (s *Session) setStateLocked(to domain.SessionState) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	if s.metrics != nil {
		s.metrics.StateChanged(from, to)
	}
	s.logger.Debugw("session state changed", "from", from, "to", to)
}

func (s *Session) misuse(err error) {
	s.notify(domain.NotifyMisuse, domain.SeverityDestructive, "Error", err.Error(), err)
}

func (s *Session) notify(kind domain.NotificationKind, severity domain.Severity, title, message string, err error) {
	if s.notifier == nil {
		return
	}
	s.mu.Lock()
	id := s.id
	s.mu.Unlock()

	n := domain.Notification{
		Kind:      kind,
		Severity:  severity,
		Title:     title,
		Message:   message,
		SessionID: id,
		At:        s.now(),
	}
	if err != nil {
		n.Error = err.Error()
	}
	s.notifier.Notify(n)
}

func formatVideoQuality(settings domain.StreamSettings) string {
	width, height := "unknown", "unknown"
	if settings.Width > 0 {
		width = fmt.Sprint(settings.Width)
	}
	if settings.Height > 0 {
		height = fmt.Sprint(settings.Height)
	}
	fps := settings.FrameRate
	if fps <= 0 {
		fps = 24
	}
	return fmt.Sprintf("%sx%s • %dfps", width, height, fps)
}

// cycleSink binds recorder output to one recording cycle.
type cycleSink struct {
	session *Session
	cycle   uint64
}

func (c *cycleSink) OnData(payload []byte) {
	c.session.onData(c.cycle, payload)
}

// OnError hands off to a goroutine: recorders may report errors from inside
// Stop, while finalize holds ops.
func (c *cycleSink) OnError(err error) {
	go c.session.handleRecorderError(c.cycle, err)
}
