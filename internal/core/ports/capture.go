package ports

import (
	"context"
	"time"

	"screencast/internal/core/domain"
)

// CaptureSource acquires live streams from the capture platform.
type CaptureSource interface {
	Acquire(ctx context.Context, constraints domain.CaptureConstraints) (Stream, error)
}

// Stream is a live capture stream owned by exactly one session.
type Stream interface {
	Settings() domain.StreamSettings
	// OnTrackEnded registers a one-shot callback fired when the video track is
	// terminated externally. Release never fires it and a nil fn unregisters.
	OnTrackEnded(fn func())
	// Release stops all tracks. Safe to call more than once.
	Release()
}

// Platform exposes the encoder side of the capture platform.
type Platform interface {
	IsTypeSupported(mimeType string) bool
	NewRecorder(stream Stream, profile domain.ProfileCandidate, sink RecorderSink) (Recorder, error)
}

// Recorder encodes a stream into segments delivered to a RecorderSink.
type Recorder interface {
	Start(timeslice time.Duration) error
	// Stop flushes any pending segment to the sink and returns once no further
	// sink calls will be made.
	Stop() error
}

// RecorderSink receives recorder output in production order.
type RecorderSink interface {
	OnData(payload []byte)
	OnError(err error)
}
