// Package ffmpeg captures the local display by running ffmpeg and reading the
// encoded container from its stdout.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"screencast/internal/core/domain"
	"screencast/internal/core/ports"

	"go.uber.org/zap"
)

var ErrNotInstalled = errors.New("ffmpeg not found")

// Config selects the ffmpeg binary and capture devices. Empty InputFormat and
// Display pick the platform default.
type Config struct {
	Path        string
	InputFormat string
	Display     string
	AudioInput  string
}

type commandFunc func(name string, args ...string) *exec.Cmd

// Source implements ports.CaptureSource and ports.Platform.
type Source struct {
	cfg     Config
	logger  *zap.SugaredLogger
	command commandFunc
}

func NewSource(cfg Config, logger *zap.SugaredLogger) *Source {
	if cfg.Path == "" {
		cfg.Path = "ffmpeg"
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = defaultInputFormat(runtime.GOOS)
	}
	if cfg.Display == "" {
		cfg.Display = defaultDisplay(cfg.InputFormat)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Source{cfg: cfg, logger: logger, command: exec.Command}
}

func defaultInputFormat(goos string) string {
	switch goos {
	case "darwin":
		return "avfoundation"
	case "windows":
		return "gdigrab"
	default:
		return "x11grab"
	}
}

func defaultDisplay(inputFormat string) string {
	switch inputFormat {
	case "avfoundation":
		return "1"
	case "gdigrab":
		return "desktop"
	default:
		return ":0.0"
	}
}

// Acquire checks that ffmpeg is available and returns a stream describing
// what will be captured. The process itself runs per recording.
func (s *Source) Acquire(ctx context.Context, constraints domain.CaptureConstraints) (ports.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := exec.LookPath(s.cfg.Path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotInstalled, s.cfg.Path)
	}

	settings := domain.StreamSettings{
		Width:         pick(constraints.Width, 1280),
		Height:        pick(constraints.Height, 720),
		FrameRate:     pick(constraints.FrameRate, 24),
		HasAudio:      constraints.Audio && s.cfg.AudioInput != "",
		HasMicrophone: constraints.Microphone && s.cfg.AudioInput != "",
	}
	s.logger.Infow("ffmpeg capture acquired",
		"input_format", s.cfg.InputFormat,
		"display", s.cfg.Display,
		"width", settings.Width,
		"height", settings.Height,
		"frame_rate", settings.FrameRate,
	)
	return &Stream{settings: settings, sampleRate: constraints.SampleRate}, nil
}

func pick(r domain.Range, fallback int) int {
	v := r.Ideal
	if v <= 0 {
		v = r.Max
	}
	if r.Max > 0 && v > r.Max {
		v = r.Max
	}
	if v <= 0 {
		v = fallback
	}
	return v
}

type encoding struct {
	container  string
	videoCodec string
	audioCodec string
}

func parseMimeType(mimeType string) (encoding, bool) {
	base, params, _ := strings.Cut(mimeType, ";")
	var enc encoding
	switch strings.TrimSpace(base) {
	case "video/webm":
		enc = encoding{container: "webm", videoCodec: "libvpx-vp9", audioCodec: "libopus"}
	case "video/mp4":
		enc = encoding{container: "mp4", videoCodec: "libx264", audioCodec: "aac"}
	default:
		return encoding{}, false
	}

	_, codecs, found := strings.Cut(params, "codecs=")
	if !found {
		return enc, true
	}
	for _, codec := range strings.Split(strings.Trim(codecs, `"`), ",") {
		codec = strings.ToLower(strings.TrimSpace(codec))
		switch {
		case codec == "vp9":
			enc.videoCodec = "libvpx-vp9"
		case codec == "vp8":
			enc.videoCodec = "libvpx"
		case strings.HasPrefix(codec, "avc1"), codec == "h264":
			enc.videoCodec = "libx264"
		case codec == "opus":
			enc.audioCodec = "libopus"
		case strings.HasPrefix(codec, "mp4a"), codec == "aac":
			enc.audioCodec = "aac"
		default:
			return encoding{}, false
		}
	}
	if enc.container == "webm" && (enc.videoCodec == "libx264" || enc.audioCodec == "aac") {
		return encoding{}, false
	}
	return enc, true
}

func (s *Source) IsTypeSupported(mimeType string) bool {
	_, ok := parseMimeType(mimeType)
	return ok
}

func (s *Source) NewRecorder(stream ports.Stream, profile domain.ProfileCandidate, sink ports.RecorderSink) (ports.Recorder, error) {
	st, ok := stream.(*Stream)
	if !ok {
		return nil, fmt.Errorf("ffmpeg recorder needs an ffmpeg stream, got %T", stream)
	}
	enc, ok := parseMimeType(profile.MimeType)
	if !ok {
		return nil, fmt.Errorf("unsupported mime type %q", profile.MimeType)
	}
	return &Recorder{
		source:    s,
		stream:    st,
		args:      s.buildArgs(st, enc, profile),
		sink:      sink,
		logger:    s.logger.With("mime_type", profile.MimeType),
		stopFlush: make(chan struct{}),
		stopped:   make(chan struct{}),
	}, nil
}

func (s *Source) buildArgs(stream *Stream, enc encoding, profile domain.ProfileCandidate) []string {
	settings := stream.settings
	args := []string{"-hide_banner", "-loglevel", "error", "-nostats"}

	input := s.cfg.Display
	if s.cfg.InputFormat == "avfoundation" && settings.HasAudio {
		input = s.cfg.Display + ":" + s.cfg.AudioInput
	}
	args = append(args,
		"-f", s.cfg.InputFormat,
		"-framerate", strconv.Itoa(settings.FrameRate),
		"-video_size", fmt.Sprintf("%dx%d", settings.Width, settings.Height),
		"-i", input,
	)
	if settings.HasAudio && s.cfg.InputFormat == "x11grab" {
		args = append(args, "-f", "pulse", "-i", s.cfg.AudioInput)
	}

	args = append(args, "-c:v", enc.videoCodec)
	if profile.VideoBitsPerSecond > 0 {
		args = append(args, "-b:v", strconv.Itoa(profile.VideoBitsPerSecond))
	}
	if enc.videoCodec == "libvpx-vp9" || enc.videoCodec == "libvpx" {
		args = append(args, "-deadline", "realtime", "-cpu-used", "8")
	} else {
		args = append(args, "-preset", "veryfast", "-pix_fmt", "yuv420p")
	}

	if settings.HasAudio {
		args = append(args, "-c:a", enc.audioCodec)
		if profile.AudioBitsPerSecond > 0 {
			args = append(args, "-b:a", strconv.Itoa(profile.AudioBitsPerSecond))
		}
		if stream.sampleRate > 0 && enc.audioCodec == "aac" {
			args = append(args, "-ar", strconv.Itoa(stream.sampleRate))
		}
	} else {
		args = append(args, "-an")
	}

	args = append(args, "-f", enc.container)
	if enc.container == "mp4" {
		args = append(args, "-movflags", "frag_keyframe+empty_moov+default_base_moof")
	}
	return append(args, "pipe:1")
}

// Stream is an acquired display. It ends when a recording process exits on
// its own.
type Stream struct {
	settings   domain.StreamSettings
	sampleRate int

	mu       sync.Mutex
	onEnded  func()
	ended    bool
	released bool
	active   *Recorder
}

func (s *Stream) Settings() domain.StreamSettings {
	return s.settings
}

func (s *Stream) OnTrackEnded(fn func()) {
	s.mu.Lock()
	s.onEnded = fn
	s.mu.Unlock()
}

// Release kills any running capture process.
func (s *Stream) Release() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	s.onEnded = nil
	active := s.active
	s.active = nil
	s.mu.Unlock()

	if active != nil {
		active.kill()
	}
}

func (s *Stream) attach(r *Recorder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released || s.ended {
		return errors.New("stream is no longer live")
	}
	s.active = r
	return nil
}

func (s *Stream) detach(r *Recorder) {
	s.mu.Lock()
	if s.active == r {
		s.active = nil
	}
	s.mu.Unlock()
}

func (s *Stream) endTrack() {
	s.mu.Lock()
	if s.released || s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	fn := s.onEnded
	s.onEnded = nil
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}
