package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"screencast/internal/bootstrap"
	"screencast/internal/core/domain"
	"screencast/internal/core/services"
	"screencast/internal/core/session"
	"screencast/internal/infrastructure/notify"
	"screencast/internal/infrastructure/repositories"
	"screencast/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	duration := flag.Duration("duration", 0, "stop after this long (0 records until interrupted)")
	display := flag.String("display", "", "display or screen to capture, platform specific")
	microphone := flag.Bool("microphone", false, "also capture the microphone")
	flag.Parse()

	cfg, err := bootstrap.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	// a browser offer is needed for webrtc, so the CLI always grabs locally
	cfg.Capture.Platform = "ffmpeg"
	if *display != "" {
		cfg.Capture.FFmpeg.Display = *display
	}

	zapLogger, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()
	recordings := services.NewRecordingService(repoFactory.CreateRecordingRepository(), nil, nil, log)

	source, platform, err := bootstrap.Capture(cfg, log)
	if err != nil {
		log.Fatalw("failed to create capture platform", "error", err)
	}
	exporter, err := bootstrap.Exporter(cfg, log)
	if err != nil {
		log.Fatalw("failed to create exporter", "error", err)
	}

	sess := session.New(bootstrap.SessionConfig(cfg), session.Dependencies{
		Source:    source,
		Platform:  platform,
		Publisher: bootstrap.Publisher(cfg, recordings, log),
		Exporter:  exporter,
		Notifier:  notify.NewLogNotifier(log),
		Logger:    log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	constraints := bootstrap.CaptureConstraints(cfg)
	constraints.Microphone = *microphone
	if _, err := sess.StartShare(ctx, constraints); err != nil {
		log.Fatalw("failed to start screen share", "error", err)
	}
	if err := sess.StartRecord(ctx); err != nil {
		sess.StopAll(context.Background())
		log.Fatalw("failed to start recording", "error", err)
	}

	var deadline <-chan time.Time
	if *duration > 0 {
		timer := time.NewTimer(*duration)
		defer timer.Stop()
		deadline = timer.C
	}

	// The session finalizes on its own when the capture ends or stalls.
	poll := time.NewTicker(500 * time.Millisecond)
	defer poll.Stop()
wait:
	for {
		select {
		case <-ctx.Done():
			break wait
		case <-deadline:
			break wait
		case <-poll.C:
			if sess.State() != domain.StateRecording {
				break wait
			}
		}
	}

	finishCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+cfg.Session.PublishTimeout)
	defer cancel()

	endedEarly := sess.State() != domain.StateRecording
	artifact := sess.StopAll(finishCtx)
	switch {
	case artifact != nil:
		log.Infow("recording finished",
			"mime_type", artifact.MimeType,
			"size_bytes", artifact.SizeBytes,
			"duration_seconds", artifact.DurationSeconds,
		)
	case endedEarly:
		// already finalized and delivered by the session
		log.Infow("recording ended by the capture source", "duration_seconds", sess.LastDuration())
	default:
		log.Warnw("recording ended without an artifact", "state", sess.State())
		os.Exit(1)
	}
}
