// Package bootstrap turns configuration into the components shared by the
// screencast binaries.
package bootstrap

import (
	"fmt"
	"os"
	"strings"

	"screencast/internal/core/domain"
	"screencast/internal/core/ports"
	"screencast/internal/core/services"
	"screencast/internal/core/session"
	"screencast/internal/infrastructure/capture/fake"
	"screencast/internal/infrastructure/capture/ffmpeg"
	webrtccapture "screencast/internal/infrastructure/capture/webrtc"
	"screencast/internal/infrastructure/export"
	"screencast/internal/infrastructure/publisher"
	"screencast/pkg/circuitbreaker"
	"screencast/pkg/config"
	"screencast/pkg/retry"
	"screencast/pkg/tracing"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

const ivfProfile = webrtccapture.MimeTypeIVF + ";codecs=vp8"

var configPaths = []string{
	"configs/config.yaml",
	"/etc/screencast/config.yaml",
	"config.yaml",
}

// LoadConfig reads path, or the first well-known config file that exists.
// Without any file the defaults and environment overrides apply.
func LoadConfig(path string) (*config.Config, error) {
	if path == "" {
		for _, candidate := range configPaths {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	return config.Load(path)
}

// SessionConfig maps the session section. The webrtc platform only encodes
// IVF, so an IVF candidate is added when none is configured.
func SessionConfig(cfg *config.Config) session.Config {
	profiles := make([]domain.ProfileCandidate, 0, len(cfg.Session.Profiles)+1)
	hasIVF := false
	for _, p := range cfg.Session.Profiles {
		profiles = append(profiles, domain.ProfileCandidate{
			MimeType:           p.MimeType,
			VideoBitsPerSecond: p.VideoBitsPerSecond,
			AudioBitsPerSecond: p.AudioBitsPerSecond,
		})
		if strings.HasPrefix(p.MimeType, webrtccapture.MimeTypeIVF) {
			hasIVF = true
		}
	}
	if cfg.Capture.Platform == "webrtc" && !hasIVF {
		profiles = append(profiles, domain.ProfileCandidate{
			MimeType:           ivfProfile,
			VideoBitsPerSecond: 1_500_000,
		})
	}

	return session.Config{
		Profiles:       profiles,
		Timeslice:      cfg.Session.Timeslice,
		GraceDelay:     cfg.Session.GraceDelay,
		PublishTimeout: cfg.Session.PublishTimeout,
		Watchdog: session.WatchdogConfig{
			IdleThreshold: cfg.Session.IdleThreshold,
			PollInterval:  cfg.Session.PollInterval,
		},
	}
}

// CaptureConstraints are the defaults used when a share request carries none.
func CaptureConstraints(cfg *config.Config) domain.CaptureConstraints {
	c := cfg.Session.Constraints
	return domain.CaptureConstraints{
		Width:      domain.Range{Ideal: c.Width.Ideal, Max: c.Width.Max},
		Height:     domain.Range{Ideal: c.Height.Ideal, Max: c.Height.Max},
		FrameRate:  domain.Range{Ideal: c.FrameRate.Ideal, Max: c.FrameRate.Max},
		Audio:      c.Audio,
		SampleRate: c.SampleRate,
		Microphone: c.Microphone,
	}
}

// Capture builds the configured capture platform.
func Capture(cfg *config.Config, logger *zap.SugaredLogger) (ports.CaptureSource, ports.Platform, error) {
	switch cfg.Capture.Platform {
	case "ffmpeg":
		source := ffmpeg.NewSource(ffmpeg.Config{
			Path:        cfg.Capture.FFmpeg.Path,
			InputFormat: cfg.Capture.FFmpeg.InputFormat,
			Display:     cfg.Capture.FFmpeg.Display,
			AudioInput:  cfg.Capture.FFmpeg.AudioInput,
		}, logger)
		return source, source, nil

	case "webrtc":
		wcfg := webrtccapture.Config{AnswerTimeout: cfg.Capture.WebRTC.AnswerTimeout}
		for _, s := range cfg.Capture.WebRTC.ICEServers {
			wcfg.ICEServers = append(wcfg.ICEServers, webrtc.ICEServer{
				URLs:       s.URLs,
				Username:   s.Username,
				Credential: s.Credential,
			})
		}
		wcfg.PortRange.Min = cfg.Capture.WebRTC.PortRange.Min
		wcfg.PortRange.Max = cfg.Capture.WebRTC.PortRange.Max
		source, err := webrtccapture.NewSource(wcfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return source, source, nil

	case "fake":
		settings := domain.StreamSettings{
			Width:     cfg.Session.Constraints.Width.Ideal,
			Height:    cfg.Session.Constraints.Height.Ideal,
			FrameRate: cfg.Session.Constraints.FrameRate.Ideal,
			HasAudio:  cfg.Session.Constraints.Audio,
		}
		mimes := make([]string, 0, len(cfg.Session.Profiles))
		for _, p := range cfg.Session.Profiles {
			mimes = append(mimes, p.MimeType)
		}
		return fake.NewSource(settings), fake.NewPlatform(mimes...), nil

	default:
		return nil, nil, fmt.Errorf("unknown capture platform %q", cfg.Capture.Platform)
	}
}

// Exporter returns nil when local export is disabled.
func Exporter(cfg *config.Config, logger *zap.SugaredLogger) (ports.ArtifactExporter, error) {
	if !cfg.Export.Enabled {
		return nil, nil
	}
	storage, err := export.NewFileStorage(cfg.Export.Directory)
	if err != nil {
		return nil, err
	}
	return export.NewExporter(storage, logger), nil
}

// Publisher stores descriptors in recordings directly, or posts them to a
// remote instance in http mode.
func Publisher(cfg *config.Config, recordings ports.RecordingService, logger *zap.SugaredLogger) ports.MetadataPublisher {
	if cfg.Publisher.Mode != "http" {
		return services.NewLocalPublisher(recordings)
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.Publisher.Retry.MaxAttempts
	retryCfg.InitialDelay = cfg.Publisher.Retry.InitialDelay
	retryCfg.MaxDelay = cfg.Publisher.Retry.MaxDelay

	breakerCfg := circuitbreaker.DefaultConfig()
	breakerCfg.FailureThreshold = cfg.Publisher.CircuitBreaker.MaxFailures
	breakerCfg.Timeout = cfg.Publisher.CircuitBreaker.ResetTimeout

	return publisher.NewHTTPPublisher(publisher.Config{
		BaseURL: cfg.Publisher.URL,
		Token:   cfg.Publisher.Token,
		Timeout: cfg.Publisher.Timeout,
		Retry:   retryCfg,
		Breaker: breakerCfg,
	}, logger)
}

func Tracing(cfg *config.Config, serviceName string) tracing.Config {
	return tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: serviceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	}
}
