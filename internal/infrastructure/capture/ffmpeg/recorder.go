package ffmpeg

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"screencast/internal/core/ports"

	"go.uber.org/zap"
)

const (
	readBufferSize = 32 << 10
	stopTimeout    = 10 * time.Second
	stderrLimit    = 4 << 10
)

// Recorder runs one ffmpeg process and slices its output into timeslice
// segments for the sink.
type Recorder struct {
	source *Source
	stream *Stream
	args   []string
	sink   ports.RecorderSink
	logger *zap.SugaredLogger

	mu       sync.Mutex
	pending  []byte
	started  bool
	stopping bool
	stderr   tailBuffer

	process *os.Process
	stdin   io.WriteCloser

	flushMu   sync.Mutex
	tickers   sync.WaitGroup
	stopFlush chan struct{}
	haltOnce  sync.Once
	stopped   chan struct{}
}

func (r *Recorder) Start(timeslice time.Duration) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return errors.New("recorder already started")
	}
	r.started = true
	r.mu.Unlock()

	cmd := r.source.command(r.source.cfg.Path, r.args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout: %w", err)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdin: %w", err)
	}
	cmd.Stderr = &r.stderr

	if err := r.stream.attach(r); err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		r.stream.detach(r)
		return fmt.Errorf("start ffmpeg: %w", err)
	}
	r.mu.Lock()
	r.process = cmd.Process
	r.stdin = stdin
	released := r.stopping
	r.mu.Unlock()
	if released {
		cmd.Process.Kill()
	}

	r.logger.Infow("ffmpeg started", "pid", cmd.Process.Pid, "timeslice", timeslice)

	if timeslice > 0 {
		r.tickers.Add(1)
		go r.flushLoop(timeslice)
	}

	readDone := make(chan struct{})
	go r.readLoop(stdout, readDone)
	go func() {
		<-readDone
		waitErr := cmd.Wait()
		r.exited(waitErr)
	}()
	return nil
}

func (r *Recorder) readLoop(stdout io.Reader, done chan<- struct{}) {
	defer close(done)
	buf := make([]byte, readBufferSize)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			r.mu.Lock()
			r.pending = append(r.pending, buf[:n]...)
			r.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

func (r *Recorder) flushLoop(timeslice time.Duration) {
	defer r.tickers.Done()
	ticker := time.NewTicker(timeslice)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.flush()
		case <-r.stopFlush:
			return
		}
	}
}

// flush hands everything read so far to the sink as one segment.
func (r *Recorder) flush() {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	r.mu.Lock()
	data := r.pending
	r.pending = nil
	r.mu.Unlock()

	if len(data) > 0 {
		r.sink.OnData(data)
	}
}

// exited runs once the process is gone and its output fully read. An exit
// nobody asked for ends the stream.
func (r *Recorder) exited(waitErr error) {
	defer close(r.stopped)
	r.stream.detach(r)
	r.haltFlushLoop()

	r.mu.Lock()
	expected := r.stopping
	r.mu.Unlock()
	if expected {
		return
	}

	r.flush()
	if waitErr != nil {
		r.logger.Warnw("ffmpeg exited unexpectedly", "error", waitErr, "stderr", r.stderr.String())
		r.sink.OnError(fmt.Errorf("ffmpeg exited: %w: %s", waitErr, r.stderr.String()))
	} else {
		r.logger.Infow("ffmpeg finished")
	}
	r.stream.endTrack()
}

func (r *Recorder) haltFlushLoop() {
	r.haltOnce.Do(func() { close(r.stopFlush) })
	r.tickers.Wait()
}

// kill terminates the process without delivering pending output.
func (r *Recorder) kill() {
	r.mu.Lock()
	r.stopping = true
	process := r.process
	r.mu.Unlock()
	if process != nil {
		process.Kill()
	}
}

// Stop asks ffmpeg to finish the container, waits for it and delivers the
// remaining output. No sink calls happen after Stop returns.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	if !r.started || r.process == nil {
		r.mu.Unlock()
		return nil
	}
	alreadyStopping := r.stopping
	r.stopping = true
	stdin := r.stdin
	r.mu.Unlock()

	if !alreadyStopping {
		// ffmpeg quits cleanly on 'q'
		if _, err := io.WriteString(stdin, "q"); err != nil {
			r.logger.Debugw("ffmpeg stdin closed", "error", err)
		}
		stdin.Close()
	}

	select {
	case <-r.stopped:
	case <-time.After(stopTimeout):
		r.logger.Warnw("ffmpeg did not exit in time, killing")
		r.kill()
		<-r.stopped
	}

	r.flush()
	return nil
}

// tailBuffer keeps the last stderrLimit bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > stderrLimit {
		t.buf = t.buf[len(t.buf)-stderrLimit:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
