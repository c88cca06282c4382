package webrtc

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"screencast/internal/core/ports"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3/pkg/media/ivfwriter"
	"go.uber.org/zap"
)

// Recorder writes the video track into an IVF container and hands the bytes
// to the sink once per timeslice.
type Recorder struct {
	stream           *Stream
	sink             ports.RecorderSink
	logger           *zap.SugaredLogger
	keyframeInterval time.Duration

	mu      sync.Mutex
	writer  *ivfwriter.IVFWriter
	started bool
	stopped bool
	packets int

	pending segmentBuffer

	flushMu  sync.Mutex
	loops    sync.WaitGroup
	done     chan struct{}
	haltOnce sync.Once
}

func newRecorder(stream *Stream, sink ports.RecorderSink, keyframeInterval time.Duration, logger *zap.SugaredLogger) *Recorder {
	return &Recorder{
		stream:           stream,
		sink:             sink,
		logger:           logger,
		keyframeInterval: keyframeInterval,
		done:             make(chan struct{}),
	}
}

func (r *Recorder) Start(timeslice time.Duration) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return errors.New("recorder already started")
	}
	r.started = true
	writer, err := ivfwriter.NewWith(&r.pending)
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("ivf writer: %w", err)
	}
	r.writer = writer
	r.mu.Unlock()

	if err := r.stream.attach(r); err != nil {
		r.mu.Lock()
		r.stopped = true
		r.mu.Unlock()
		return err
	}
	r.stream.requestKeyframe()

	r.loops.Add(1)
	go r.loop(timeslice)

	r.logger.Infow("webrtc recording started", "timeslice", timeslice)
	return nil
}

func (r *Recorder) loop(timeslice time.Duration) {
	defer r.loops.Done()

	keyframes := time.NewTicker(r.keyframeInterval)
	defer keyframes.Stop()

	var flushes <-chan time.Time
	if timeslice > 0 {
		ticker := time.NewTicker(timeslice)
		defer ticker.Stop()
		flushes = ticker.C
	}

	for {
		select {
		case <-flushes:
			r.flush()
		case <-keyframes.C:
			r.stream.requestKeyframe()
		case <-r.done:
			return
		}
	}
}

func (r *Recorder) writeRTP(packet *rtp.Packet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped || r.writer == nil {
		return
	}
	if err := r.writer.WriteRTP(packet); err != nil {
		r.logger.Debugw("dropping RTP packet", "sequence", packet.SequenceNumber, "error", err)
		return
	}
	r.packets++
}

func (r *Recorder) flush() {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	if data := r.pending.take(); len(data) > 0 {
		r.sink.OnData(data)
	}
}

// Stop delivers what has been written so far. No sink calls happen after it
// returns.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	if !r.started || r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	writer := r.writer
	packets := r.packets
	r.mu.Unlock()

	r.stream.detach(r)
	r.haltOnce.Do(func() { close(r.done) })
	r.loops.Wait()

	if err := writer.Close(); err != nil {
		r.logger.Warnw("failed to close ivf writer", "error", err)
	}
	r.flush()
	r.logger.Infow("webrtc recording stopped", "packets", packets)
	return nil
}

// segmentBuffer collects writer output between flushes.
type segmentBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *segmentBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	b.buf = append(b.buf, p...)
	b.mu.Unlock()
	return len(p), nil
}

func (b *segmentBuffer) take() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	data := b.buf
	b.buf = nil
	return data
}
