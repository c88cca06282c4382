package domain

import (
	"strings"
	"time"
)

type SessionID string

// SessionState is the current tag of the recording state machine.
type SessionState string

const (
	StateIdle       SessionState = "idle"
	StateSharing    SessionState = "sharing"
	StateRecording  SessionState = "recording"
	StateFinalizing SessionState = "finalizing"
	// StateError is transient: a failure is surfaced and the session routes to idle.
	StateError SessionState = "error"
)

// ProfileCandidate is one container/codec pair with its target bitrates.
type ProfileCandidate struct {
	MimeType           string `json:"mime_type" yaml:"mime_type"`
	VideoBitsPerSecond int    `json:"video_bits_per_second" yaml:"video_bits_per_second"`
	AudioBitsPerSecond int    `json:"audio_bits_per_second" yaml:"audio_bits_per_second"`
}

// BitsPerSecond is the combined target bitrate.
func (p ProfileCandidate) BitsPerSecond() int {
	return p.VideoBitsPerSecond + p.AudioBitsPerSecond
}

// Extension returns the file extension used for artifacts of this mime type.
func Extension(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "mp4"):
		return "mp4"
	case strings.Contains(mimeType, "x-ivf"):
		return "ivf"
	default:
		return "webm"
	}
}

// DefaultProfileCandidates lists candidates in preference order: formats with
// better seeking first.
func DefaultProfileCandidates() []ProfileCandidate {
	mimes := []string{
		"video/mp4;codecs=h264,aac",
		"video/mp4",
		"video/webm;codecs=vp9,opus",
		"video/webm;codecs=vp8,opus",
		"video/webm;codecs=h264,opus",
		"video/webm",
	}
	candidates := make([]ProfileCandidate, 0, len(mimes))
	for _, m := range mimes {
		candidates = append(candidates, ProfileCandidate{
			MimeType:           m,
			VideoBitsPerSecond: 1_500_000,
			AudioBitsPerSecond: 96_000,
		})
	}
	return candidates
}

// Range is an ideal/max pair for a capture dimension.
type Range struct {
	Ideal int `json:"ideal" yaml:"ideal"`
	Max   int `json:"max" yaml:"max"`
}

// CaptureConstraints describe what the capture platform should acquire.
type CaptureConstraints struct {
	Width     Range `json:"width" yaml:"width"`
	Height    Range `json:"height" yaml:"height"`
	FrameRate Range `json:"frame_rate" yaml:"frame_rate"`

	Audio            bool `json:"audio" yaml:"audio"`
	EchoCancellation bool `json:"echo_cancellation" yaml:"echo_cancellation"`
	NoiseSuppression bool `json:"noise_suppression" yaml:"noise_suppression"`
	SampleRate       int  `json:"sample_rate" yaml:"sample_rate"`
	Microphone       bool `json:"microphone" yaml:"microphone"`

	// Offer carries a remote SDP offer for platforms that negotiate the stream.
	Offer string `json:"offer,omitempty" yaml:"-"`
}

// DefaultCaptureConstraints targets 720p at 24fps with unprocessed system audio.
func DefaultCaptureConstraints() CaptureConstraints {
	return CaptureConstraints{
		Width:      Range{Ideal: 1280, Max: 1920},
		Height:     Range{Ideal: 720, Max: 1080},
		FrameRate:  Range{Ideal: 24, Max: 30},
		Audio:      true,
		SampleRate: 44100,
	}
}

// StreamSettings are the values the platform actually granted.
type StreamSettings struct {
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	FrameRate     int    `json:"frame_rate"`
	HasAudio      bool   `json:"has_audio"`
	HasMicrophone bool   `json:"has_microphone"`
	Answer        string `json:"answer,omitempty"`
}

// Chunk is one arrival-ordered segment of recorded data.
type Chunk struct {
	Payload     []byte
	SizeBytes   int64
	ArrivalTime time.Time
}

// Artifact is the finalized, immutable output of one recording.
type Artifact struct {
	Bytes           []byte
	MimeType        string
	DurationSeconds int
	SizeBytes       int64
	CreatedAt       time.Time
	Settings        StreamSettings
}

// Extension returns the artifact's file extension.
func (a *Artifact) Extension() string {
	return Extension(a.MimeType)
}

// SessionStatus is a read-only view of the session for the UI.
type SessionStatus struct {
	SessionID      SessionID         `json:"session_id,omitempty"`
	State          SessionState      `json:"state"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	ElapsedSeconds int               `json:"elapsed_seconds"`
	SizeBytes      int64             `json:"size_bytes"`
	SizeMB         float64           `json:"size_mb"`
	Chunks         int               `json:"chunks"`
	VideoQuality   string            `json:"video_quality"`
	Profile        *ProfileCandidate `json:"profile,omitempty"`
	LastChunkAt    *time.Time        `json:"last_chunk_at,omitempty"`
}
