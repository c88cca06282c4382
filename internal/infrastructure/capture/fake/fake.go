// Package fake is a scripted in-memory capture platform used by tests and the
// demo mode of the server.
package fake

import (
	"context"
	"errors"
	"sync"
	"time"

	"screencast/internal/core/domain"
	"screencast/internal/core/ports"
)

var ErrPermissionDenied = errors.New("permission denied")

// Source hands out fake streams. Setting Err makes the next Acquire fail.
type Source struct {
	mu       sync.Mutex
	Settings domain.StreamSettings
	Err      error
	streams  []*Stream
}

func NewSource(settings domain.StreamSettings) *Source {
	return &Source{Settings: settings}
}

func (s *Source) Acquire(ctx context.Context, constraints domain.CaptureConstraints) (ports.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		err := s.Err
		s.Err = nil
		return nil, err
	}

	settings := s.Settings
	if constraints.Microphone {
		settings.HasMicrophone = true
	}
	stream := &Stream{settings: settings}
	s.streams = append(s.streams, stream)
	return stream, nil
}

// Last returns the most recently acquired stream.
func (s *Source) Last() *Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.streams) == 0 {
		return nil
	}
	return s.streams[len(s.streams)-1]
}

// Acquired reports how many streams were handed out.
func (s *Source) Acquired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams)
}

// Stream is a fake live stream.
type Stream struct {
	mu       sync.Mutex
	settings domain.StreamSettings
	onEnded  func()
	ended    bool
	released int
}

func (s *Stream) Settings() domain.StreamSettings {
	return s.settings
}

func (s *Stream) OnTrackEnded(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEnded = fn
}

func (s *Stream) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released++
	s.onEnded = nil
}

// EndTrack simulates the user ending the share from outside the application.
func (s *Stream) EndTrack() {
	s.mu.Lock()
	if s.ended || s.released > 0 {
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

func (s *Stream) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released > 0
}

// HasHook reports whether a track-ended callback is registered.
func (s *Stream) HasHook() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onEnded != nil
}

// Platform reports a fixed set of supported mime types and builds recorders
// that only emit data when told to.
type Platform struct {
	mu        sync.Mutex
	supported map[string]bool
	recorders []*Recorder

	// StartErr is returned by the next recorder's Start.
	StartErr error
	// Trailing is delivered by each recorder on Stop.
	Trailing []byte
}

func NewPlatform(supported ...string) *Platform {
	p := &Platform{supported: make(map[string]bool, len(supported))}
	for _, m := range supported {
		p.supported[m] = true
	}
	return p
}

func (p *Platform) IsTypeSupported(mimeType string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.supported[mimeType]
}

func (p *Platform) NewRecorder(stream ports.Stream, profile domain.ProfileCandidate, sink ports.RecorderSink) (ports.Recorder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	r := &Recorder{
		Profile:  profile,
		sink:     sink,
		startErr: p.StartErr,
		trailing: p.Trailing,
	}
	p.StartErr = nil
	p.recorders = append(p.recorders, r)
	return r, nil
}

// Last returns the most recently created recorder.
func (p *Platform) Last() *Recorder {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.recorders) == 0 {
		return nil
	}
	return p.recorders[len(p.recorders)-1]
}

// Created reports how many recorders were built.
func (p *Platform) Created() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.recorders)
}

// Recorder forwards whatever the test emits to its sink.
type Recorder struct {
	Profile domain.ProfileCandidate

	mu        sync.Mutex
	sink      ports.RecorderSink
	startErr  error
	trailing  []byte
	started   bool
	stopped   bool
	timeslice time.Duration
}

func (r *Recorder) Start(timeslice time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return r.startErr
	}
	r.started = true
	r.timeslice = timeslice
	return nil
}

func (r *Recorder) Stop() error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	trailing := r.trailing
	sink := r.sink
	r.mu.Unlock()

	if len(trailing) > 0 {
		sink.OnData(trailing)
	}
	return nil
}

// Emit delivers one segment to the sink, as the encoder would at a timeslice
// boundary.
func (r *Recorder) Emit(payload []byte) {
	r.mu.Lock()
	sink := r.sink
	r.mu.Unlock()
	sink.OnData(payload)
}

// EmitSize emits a segment of n bytes.
func (r *Recorder) EmitSize(n int) {
	r.Emit(make([]byte, n))
}

// Fail reports an encoder error.
func (r *Recorder) Fail(err error) {
	r.mu.Lock()
	sink := r.sink
	r.mu.Unlock()
	sink.OnError(err)
}

func (r *Recorder) Started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

func (r *Recorder) Stopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

func (r *Recorder) Timeslice() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timeslice
}
