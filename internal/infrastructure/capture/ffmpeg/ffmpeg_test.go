package ffmpeg

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"sync"
	"testing"
	"time"

	"screencast/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// TestHelperProcess stands in for ffmpeg when re-executed by helperCommand.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)

	switch os.Getenv("FFMPEG_HELPER_MODE") {
	case "crash":
		os.Stdout.Write([]byte("partial"))
		time.Sleep(20 * time.Millisecond)
		os.Exit(1)
	default:
		quit := make(chan struct{})
		go func() {
			buf := make([]byte, 1)
			os.Stdin.Read(buf)
			close(quit)
		}()
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				os.Stdout.Write([]byte("tail"))
				return
			case <-ticker.C:
				os.Stdout.Write([]byte("data"))
			}
		}
	}
}

func helperCommand(mode string) commandFunc {
	return func(name string, args ...string) *exec.Cmd {
		cs := append([]string{"-test.run=TestHelperProcess", "--", name}, args...)
		cmd := exec.Command(os.Args[0], cs...)
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "FFMPEG_HELPER_MODE="+mode)
		return cmd
	}
}

type collectSink struct {
	mu     sync.Mutex
	data   [][]byte
	errors []error
}

func (s *collectSink) OnData(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append(s.data, payload)
}

func (s *collectSink) OnError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, err)
}

func (s *collectSink) segments() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

func (s *collectSink) joined() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Join(s.data, nil)
}

func (s *collectSink) errorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errors)
}

func newTestSource(t *testing.T, mode string) *Source {
	src := NewSource(Config{Path: os.Args[0], InputFormat: "x11grab", Display: ":99"}, zaptest.NewLogger(t).Sugar())
	src.command = helperCommand(mode)
	return src
}

func TestRecorder_SegmentsAndTrailingData(t *testing.T) {
	src := newTestSource(t, "stream")
	stream, err := src.Acquire(context.Background(), domain.DefaultCaptureConstraints())
	require.NoError(t, err)

	sink := &collectSink{}
	rec, err := src.NewRecorder(stream, domain.ProfileCandidate{MimeType: "video/webm;codecs=vp9,opus"}, sink)
	require.NoError(t, err)
	require.NoError(t, rec.Start(20*time.Millisecond))

	require.Eventually(t, func() bool { return sink.segments() >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, rec.Stop())

	assert.True(t, bytes.HasSuffix(sink.joined(), []byte("tail")))
	assert.Zero(t, sink.errorCount())

	after := sink.segments()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, sink.segments(), "no data after Stop")
}

func TestRecorder_UnexpectedExitEndsTrack(t *testing.T) {
	src := newTestSource(t, "crash")
	stream, err := src.Acquire(context.Background(), domain.DefaultCaptureConstraints())
	require.NoError(t, err)

	ended := make(chan struct{})
	stream.OnTrackEnded(func() { close(ended) })

	sink := &collectSink{}
	rec, err := src.NewRecorder(stream, domain.ProfileCandidate{MimeType: "video/mp4"}, sink)
	require.NoError(t, err)
	require.NoError(t, rec.Start(time.Hour))

	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatal("track ended hook not called")
	}
	assert.Equal(t, "partial", string(sink.joined()))
	assert.Equal(t, 1, sink.errorCount())
	assert.NoError(t, rec.Stop())
}

func TestStream_ReleaseKillsWithoutEnding(t *testing.T) {
	src := newTestSource(t, "stream")
	stream, err := src.Acquire(context.Background(), domain.DefaultCaptureConstraints())
	require.NoError(t, err)

	endedCalled := false
	stream.OnTrackEnded(func() { endedCalled = true })

	sink := &collectSink{}
	rec, err := src.NewRecorder(stream, domain.ProfileCandidate{MimeType: "video/webm"}, sink)
	require.NoError(t, err)
	require.NoError(t, rec.Start(time.Hour))

	stream.Release()
	stream.Release()
	require.NoError(t, rec.Stop())

	assert.False(t, endedCalled)
	assert.Zero(t, sink.errorCount())
}

func TestAcquire_MissingBinary(t *testing.T) {
	src := NewSource(Config{Path: "/nonexistent/ffmpeg"}, nil)
	_, err := src.Acquire(context.Background(), domain.DefaultCaptureConstraints())
	assert.ErrorIs(t, err, ErrNotInstalled)
}

func TestAcquire_Settings(t *testing.T) {
	src := NewSource(Config{Path: os.Args[0], AudioInput: "default"}, nil)
	constraints := domain.DefaultCaptureConstraints()
	constraints.Microphone = true

	stream, err := src.Acquire(context.Background(), constraints)
	require.NoError(t, err)
	assert.Equal(t, domain.StreamSettings{
		Width:         1280,
		Height:        720,
		FrameRate:     24,
		HasAudio:      true,
		HasMicrophone: true,
	}, stream.Settings())
}

func TestIsTypeSupported(t *testing.T) {
	src := NewSource(Config{}, nil)

	tests := []struct {
		mime string
		want bool
	}{
		{"video/webm;codecs=vp9,opus", true},
		{"video/webm;codecs=vp8,opus", true},
		{"video/webm", true},
		{"video/mp4;codecs=avc1.42E01E,mp4a.40.2", true},
		{"video/mp4", true},
		{"video/webm;codecs=h264", false},
		{"video/x-matroska", false},
		{"video/webm;codecs=av1", false},
	}
	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			assert.Equal(t, tt.want, src.IsTypeSupported(tt.mime))
		})
	}
}

func TestBuildArgs(t *testing.T) {
	src := NewSource(Config{Path: "ffmpeg", InputFormat: "x11grab", Display: ":1.0", AudioInput: "default"}, nil)
	stream := &Stream{settings: domain.StreamSettings{Width: 1920, Height: 1080, FrameRate: 30, HasAudio: true}, sampleRate: 44100}

	enc, ok := parseMimeType("video/mp4;codecs=avc1,mp4a.40.2")
	require.True(t, ok)
	args := src.buildArgs(stream, enc, domain.ProfileCandidate{VideoBitsPerSecond: 2_000_000, AudioBitsPerSecond: 128_000})

	assert.Subset(t, args, []string{"-f", "x11grab", "-video_size", "1920x1080", "-i", ":1.0", "pulse", "default"})
	assert.Subset(t, args, []string{"-c:v", "libx264", "-b:v", "2000000", "-c:a", "aac", "-ar", "44100"})
	assert.Contains(t, args, "frag_keyframe+empty_moov+default_base_moof")
	assert.Equal(t, "pipe:1", args[len(args)-1])

	stream.settings.HasAudio = false
	enc, _ = parseMimeType("video/webm;codecs=vp8")
	args = src.buildArgs(stream, enc, domain.ProfileCandidate{})
	assert.Contains(t, args, "-an")
	assert.Contains(t, args, "libvpx")
	assert.NotContains(t, args, "-movflags")
}
