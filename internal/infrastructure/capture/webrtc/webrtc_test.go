package webrtc

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"screencast/internal/core/domain"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

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

func (s *collectSink) joined() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Join(s.data, nil)
}

// vp8Packet builds a single-packet VP8 frame. A zero low bit in the frame
// tag marks a keyframe.
func vp8Packet(seq uint16, keyframe bool) *rtp.Packet {
	tag := byte(0x51)
	if keyframe {
		tag = 0x50
	}
	return &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    96,
			SequenceNumber: seq,
			Timestamp:      uint32(seq) * 3000,
			SSRC:           1234,
			Marker:         true,
		},
		Payload: []byte{0x10, tag, 0x00, 0x00, 0x9d, 0x01, 0x2a, 0x80, 0x02, 0xe0, 0x01},
	}
}

func newTestSource(t *testing.T) *Source {
	t.Helper()
	source, err := NewSource(Config{AnswerTimeout: 5 * time.Second}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	return source
}

func TestIsTypeSupported(t *testing.T) {
	source := newTestSource(t)

	tests := []struct {
		mime string
		want bool
	}{
		{"video/x-ivf", true},
		{"video/x-ivf;codecs=vp8", true},
		{`video/x-ivf; codecs="VP8"`, true},
		{"video/x-ivf;codecs=vp9", false},
		{"video/webm", false},
		{"video/mp4;codecs=h264,aac", false},
	}
	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			assert.Equal(t, tt.want, source.IsTypeSupported(tt.mime))
		})
	}
}

func TestAcquire_RequiresOffer(t *testing.T) {
	source := newTestSource(t)

	_, err := source.Acquire(context.Background(), domain.DefaultCaptureConstraints())
	assert.ErrorIs(t, err, ErrMissingOffer)
}

func TestAcquire_RejectsMalformedOffer(t *testing.T) {
	source := newTestSource(t)

	constraints := domain.DefaultCaptureConstraints()
	constraints.Offer = "not sdp"
	_, err := source.Acquire(context.Background(), constraints)
	assert.Error(t, err)
}

func TestAcquire_AnswersBrowserOffer(t *testing.T) {
	source := newTestSource(t)

	browser, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	defer browser.Close()

	screen, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "screen")
	require.NoError(t, err)
	_, err = browser.AddTrack(screen)
	require.NoError(t, err)

	offer, err := browser.CreateOffer(nil)
	require.NoError(t, err)
	gathered := webrtc.GatheringCompletePromise(browser)
	require.NoError(t, browser.SetLocalDescription(offer))
	select {
	case <-gathered:
	case <-time.After(5 * time.Second):
		t.Fatal("offerer did not finish gathering")
	}

	constraints := domain.DefaultCaptureConstraints()
	constraints.Offer = browser.LocalDescription().SDP
	stream, err := source.Acquire(context.Background(), constraints)
	require.NoError(t, err)
	defer stream.Release()

	settings := stream.Settings()
	assert.Equal(t, 1280, settings.Width)
	assert.Equal(t, 720, settings.Height)
	assert.False(t, settings.HasAudio)
	assert.Contains(t, settings.Answer, "m=video")
	assert.Contains(t, settings.Answer, "VP8")

	err = browser.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: settings.Answer})
	assert.NoError(t, err)
}

func TestRecorder_WritesIVF(t *testing.T) {
	source := newTestSource(t)
	stream := newStream(nil, domain.StreamSettings{Width: 1280, Height: 720}, zaptest.NewLogger(t).Sugar())
	sink := &collectSink{}

	rec, err := source.NewRecorder(stream, domain.ProfileCandidate{MimeType: MimeTypeIVF}, sink)
	require.NoError(t, err)
	require.NoError(t, rec.Start(time.Hour))

	r := rec.(*Recorder)
	r.writeRTP(vp8Packet(1, true))
	r.writeRTP(vp8Packet(2, false))
	require.NoError(t, rec.Stop())

	data := sink.joined()
	require.Greater(t, len(data), 32)
	assert.Equal(t, "DKIF", string(data[:4]))
	assert.Empty(t, sink.errors)

	// packets after Stop are ignored and produce no further sink calls
	segments := len(sink.data)
	r.writeRTP(vp8Packet(3, true))
	require.NoError(t, rec.Stop())
	assert.Len(t, sink.data, segments)
}

func TestRecorder_FlushesPerTimeslice(t *testing.T) {
	source := newTestSource(t)
	stream := newStream(nil, domain.StreamSettings{}, zaptest.NewLogger(t).Sugar())
	sink := &collectSink{}

	rec, err := source.NewRecorder(stream, domain.ProfileCandidate{MimeType: MimeTypeIVF}, sink)
	require.NoError(t, err)
	require.NoError(t, rec.Start(10*time.Millisecond))

	// the header alone is flushed on the first tick
	assert.Eventually(t, func() bool {
		return len(sink.joined()) >= 32
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, rec.Stop())
}

func TestRecorder_RejectsReleasedStream(t *testing.T) {
	source := newTestSource(t)
	stream := newStream(nil, domain.StreamSettings{}, zaptest.NewLogger(t).Sugar())
	stream.Release()

	rec, err := source.NewRecorder(stream, domain.ProfileCandidate{MimeType: MimeTypeIVF}, &collectSink{})
	require.NoError(t, err)
	assert.Error(t, rec.Start(time.Second))
	assert.NoError(t, rec.Stop())
}

func TestNewRecorder_RejectsUnsupportedProfile(t *testing.T) {
	source := newTestSource(t)
	stream := newStream(nil, domain.StreamSettings{}, zaptest.NewLogger(t).Sugar())

	_, err := source.NewRecorder(stream, domain.ProfileCandidate{MimeType: "video/webm"}, &collectSink{})
	assert.Error(t, err)
}

func TestStream_ConnectionFailureEndsTrackOnce(t *testing.T) {
	stream := newStream(nil, domain.StreamSettings{}, zaptest.NewLogger(t).Sugar())

	calls := 0
	stream.OnTrackEnded(func() { calls++ })

	stream.handleConnectionState(webrtc.PeerConnectionStateConnected)
	assert.Equal(t, 0, calls)

	stream.handleConnectionState(webrtc.PeerConnectionStateFailed)
	stream.handleConnectionState(webrtc.PeerConnectionStateClosed)
	assert.Equal(t, 1, calls)
}

func TestStream_ReleaseDoesNotEndTrack(t *testing.T) {
	stream := newStream(nil, domain.StreamSettings{}, zaptest.NewLogger(t).Sugar())

	called := false
	stream.OnTrackEnded(func() { called = true })
	stream.Release()
	stream.Release()
	stream.handleConnectionState(webrtc.PeerConnectionStateClosed)

	assert.False(t, called)
}
