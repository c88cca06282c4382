// Package webrtc captures a screen shared by a browser over a WebRTC peer
// connection. The browser sends the offer, the source answers and records
// the incoming VP8 track as IVF.
package webrtc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"screencast/internal/core/domain"
	"screencast/internal/core/ports"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

const (
	MimeTypeIVF = "video/x-ivf"

	defaultAnswerTimeout    = 10 * time.Second
	defaultKeyframeInterval = 3 * time.Second
)

var (
	ErrMissingOffer  = errors.New("webrtc capture needs an SDP offer")
	ErrAnswerTimeout = errors.New("ICE gathering did not complete in time")
)

// Config holds the peer connection settings.
type Config struct {
	ICEServers []webrtc.ICEServer
	PortRange  struct {
		Min uint16
		Max uint16
	}
	AnswerTimeout    time.Duration
	KeyframeInterval time.Duration
}

// Source implements ports.CaptureSource and ports.Platform.
type Source struct {
	cfg    Config
	api    *webrtc.API
	logger *zap.SugaredLogger
}

func NewSource(cfg Config, logger *zap.SugaredLogger) (*Source, error) {
	if cfg.AnswerTimeout <= 0 {
		cfg.AnswerTimeout = defaultAnswerTimeout
	}
	if cfg.KeyframeInterval <= 0 {
		cfg.KeyframeInterval = defaultKeyframeInterval
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		PayloadType:        96,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("register vp8: %w", err)
	}
	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		PayloadType:        111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register opus: %w", err)
	}

	settingEngine := webrtc.SettingEngine{}
	if cfg.PortRange.Min > 0 && cfg.PortRange.Max > 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(cfg.PortRange.Min, cfg.PortRange.Max); err != nil {
			return nil, fmt.Errorf("port range: %w", err)
		}
	}

	return &Source{
		cfg:    cfg,
		api:    webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithSettingEngine(settingEngine)),
		logger: logger,
	}, nil
}

// Acquire answers the browser's offer. The answer, with all ICE candidates
// gathered, is returned in the stream settings.
func (s *Source) Acquire(ctx context.Context, constraints domain.CaptureConstraints) (ports.Stream, error) {
	if strings.TrimSpace(constraints.Offer) == "" {
		return nil, ErrMissingOffer
	}

	pc, err := s.api.NewPeerConnection(webrtc.Configuration{
		ICEServers:   s.cfg.ICEServers,
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlanWithFallback,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	stream := newStream(pc, domain.StreamSettings{
		Width:     pick(constraints.Width, 1280),
		Height:    pick(constraints.Height, 720),
		FrameRate: pick(constraints.FrameRate, 24),
	}, s.logger)
	pc.OnTrack(stream.handleTrack)
	pc.OnConnectionStateChange(stream.handleConnectionState)

	answer, err := s.negotiate(ctx, pc, constraints.Offer)
	if err != nil {
		pc.Close()
		return nil, err
	}
	stream.settings.Answer = answer

	s.logger.Infow("webrtc capture acquired",
		"width", stream.settings.Width,
		"height", stream.settings.Height,
		"frame_rate", stream.settings.FrameRate,
	)
	return stream, nil
}

func (s *Source) negotiate(ctx context.Context, pc *webrtc.PeerConnection, offer string) (string, error) {
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer}); err != nil {
		return "", fmt.Errorf("set remote description: %w", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}

	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}

	timer := time.NewTimer(s.cfg.AnswerTimeout)
	defer timer.Stop()
	select {
	case <-gathered:
	case <-timer.C:
		return "", ErrAnswerTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return pc.LocalDescription().SDP, nil
}

func pick(r domain.Range, fallback int) int {
	v := r.Ideal
	if r.Max > 0 && (v <= 0 || v > r.Max) {
		v = r.Max
	}
	if v <= 0 {
		v = fallback
	}
	return v
}

// IsTypeSupported accepts IVF, optionally with an explicit vp8 codec.
func (s *Source) IsTypeSupported(mimeType string) bool {
	base, params, _ := strings.Cut(mimeType, ";")
	if strings.TrimSpace(base) != MimeTypeIVF {
		return false
	}
	_, codecs, found := strings.Cut(params, "codecs=")
	if !found {
		return true
	}
	return strings.EqualFold(strings.Trim(strings.TrimSpace(codecs), `"`), "vp8")
}

func (s *Source) NewRecorder(stream ports.Stream, profile domain.ProfileCandidate, sink ports.RecorderSink) (ports.Recorder, error) {
	st, ok := stream.(*Stream)
	if !ok {
		return nil, fmt.Errorf("webrtc recorder needs a webrtc stream, got %T", stream)
	}
	if !s.IsTypeSupported(profile.MimeType) {
		return nil, fmt.Errorf("unsupported mime type %q", profile.MimeType)
	}
	return newRecorder(st, sink, s.cfg.KeyframeInterval, s.logger.With("mime_type", profile.MimeType)), nil
}

// Stream is one negotiated peer connection. Its track ends when the
// connection fails or the browser closes it.
type Stream struct {
	pc       *webrtc.PeerConnection
	settings domain.StreamSettings
	logger   *zap.SugaredLogger

	mu        sync.Mutex
	onEnded   func()
	ended     bool
	released  bool
	active    *Recorder
	videoSSRC webrtc.SSRC
}

func newStream(pc *webrtc.PeerConnection, settings domain.StreamSettings, logger *zap.SugaredLogger) *Stream {
	return &Stream{pc: pc, settings: settings, logger: logger}
}

func (s *Stream) Settings() domain.StreamSettings {
	return s.settings
}

func (s *Stream) OnTrackEnded(fn func()) {
	s.mu.Lock()
	s.onEnded = fn
	s.mu.Unlock()
}

// Release closes the peer connection.
func (s *Stream) Release() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	s.onEnded = nil
	s.mu.Unlock()

	if s.pc != nil {
		if err := s.pc.Close(); err != nil {
			s.logger.Warnw("failed to close peer connection", "error", err)
		}
	}
}

func (s *Stream) handleTrack(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	s.logger.Infow("browser started streaming track",
		"track_id", track.ID(),
		"kind", track.Kind().String(),
		"codec", track.Codec().MimeType,
	)

	go s.drainRTCP(receiver)

	if track.Kind() != webrtc.RTPCodecTypeVideo {
		// IVF carries video only
		go s.discard(track)
		return
	}

	s.mu.Lock()
	s.videoSSRC = track.SSRC()
	active := s.active
	s.mu.Unlock()
	if active != nil {
		s.requestKeyframe()
	}

	for {
		packet, _, err := track.ReadRTP()
		if err != nil {
			s.logger.Infow("video track finished", "track_id", track.ID(), "error", err)
			s.endTrack()
			return
		}
		s.mu.Lock()
		active := s.active
		s.mu.Unlock()
		if active != nil {
			active.writeRTP(packet)
		}
	}
}

func (s *Stream) drainRTCP(receiver *webrtc.RTPReceiver) {
	for {
		if _, _, err := receiver.ReadRTCP(); err != nil {
			return
		}
	}
}

func (s *Stream) discard(track *webrtc.TrackRemote) {
	for {
		if _, _, err := track.ReadRTP(); err != nil {
			return
		}
	}
}

func (s *Stream) handleConnectionState(state webrtc.PeerConnectionState) {
	s.logger.Infow("peer connection state changed", "state", state.String())
	if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
		s.endTrack()
	}
}

// requestKeyframe sends a PLI so the next frame can start a decodable file.
func (s *Stream) requestKeyframe() {
	s.mu.Lock()
	ssrc := s.videoSSRC
	s.mu.Unlock()
	if s.pc == nil || ssrc == 0 {
		return
	}
	err := s.pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(ssrc)}})
	if err != nil {
		s.logger.Debugw("failed to send PLI", "error", err)
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
