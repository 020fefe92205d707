package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
)

var errNoAnswer = errors.New("no answer created yet")

// endpoint is one side of a pipeline: the PeerConnection facing one client.
type endpoint struct {
	role   core.EndpointRole
	pc     *webrtc.PeerConnection
	logger zerolog.Logger

	mu        sync.Mutex
	onICE     func(domain.ICECandidate)
	pending   []webrtc.ICECandidateInit
	remoteSet bool
	answer    *webrtc.SessionDescription
	locals    map[webrtc.RTPCodecType]*webrtc.TrackLocalStaticRTP
}

func newEndpoint(api *webrtc.API, cfg webrtc.Configuration, role core.EndpointRole, logger zerolog.Logger) (*endpoint, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &endpoint{
		role:   role,
		pc:     pc,
		logger: logger.With().Str("role", role.String()).Logger(),
		locals: make(map[webrtc.RTPCodecType]*webrtc.TrackLocalStaticRTP),
	}, nil
}

func (e *endpoint) start(ctx context.Context, onTrack func(ctx context.Context, track *webrtc.TrackRemote), onICEState func(webrtc.ICEConnectionState)) {
	e.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		e.logger.Info().Str("ice_state", s.String()).Msg("ICE state")
		onICEState(s)
	})
	e.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		e.logger.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
	})
	e.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		e.mu.Lock()
		fn := e.onICE
		e.mu.Unlock()
		if fn != nil {
			fn(fromInit(c.ToJSON()))
		}
	})
	e.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		e.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("codec", track.Codec().MimeType).
			Msg("OnTrack received")
		onTrack(ctx, track)
	})
}

func (e *endpoint) setOnICE(fn func(domain.ICECandidate)) {
	e.mu.Lock()
	e.onICE = fn
	e.mu.Unlock()
}

// prepareAnswer applies the client's offer and creates an answer with one
// send track per offered media kind. The answer is not applied locally until
// gather, so no candidates are produced before the client has it.
func (e *endpoint) prepareAnswer(offer string) (string, error) {
	kinds, err := offeredKinds(offer)
	if err != nil {
		return "", err
	}
	for _, kind := range kinds {
		if err := e.addLocalTrack(kind); err != nil {
			return "", err
		}
	}

	if err := e.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer}); err != nil {
		return "", fmt.Errorf("set remote description: %w", err)
	}
	answer, err := e.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.answer = &answer
	e.remoteSet = true
	pending := e.pending
	e.pending = nil
	for _, c := range pending {
		if err := e.pc.AddICECandidate(c); err != nil {
			return "", fmt.Errorf("add queued candidate: %w", err)
		}
	}
	return answer.SDP, nil
}

func (e *endpoint) gather() error {
	e.mu.Lock()
	answer := e.answer
	e.mu.Unlock()
	if answer == nil {
		return errNoAnswer
	}
	if err := e.pc.SetLocalDescription(*answer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	return nil
}

// addRemoteCandidate applies c, or queues it until the offer is applied.
// Queued and direct candidates are applied in arrival order.
func (e *endpoint) addRemoteCandidate(c domain.ICECandidate) error {
	ci := toInit(c)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.remoteSet {
		e.pending = append(e.pending, ci)
		return nil
	}
	return e.pc.AddICECandidate(ci)
}

func (e *endpoint) addLocalTrack(kind webrtc.RTPCodecType) error {
	e.mu.Lock()
	_, exists := e.locals[kind]
	e.mu.Unlock()
	if exists {
		return nil
	}

	capability := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}
	if kind == webrtc.RTPCodecTypeVideo {
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}
	}
	track, err := webrtc.NewTrackLocalStaticRTP(capability, kind.String(), "call-"+e.role.String())
	if err != nil {
		return fmt.Errorf("new %s track: %w", kind, err)
	}
	sender, err := e.pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("add %s track: %w", kind, err)
	}
	go drainRTCP(sender)

	e.mu.Lock()
	e.locals[kind] = track
	e.mu.Unlock()
	return nil
}

func (e *endpoint) localTrack(kind webrtc.RTPCodecType) (*webrtc.TrackLocalStaticRTP, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.locals[kind]
	return t, ok
}

func (e *endpoint) close() error {
	if err := e.pc.Close(); err != nil {
		e.logger.Error().Err(err).Msg("close error")
		return err
	}
	e.logger.Info().Msg("closed")
	return nil
}

// drainRTCP reads incoming RTCP so that interceptors keep running.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// offeredKinds lists the audio and video sections of an SDP offer.
func offeredKinds(offer string) ([]webrtc.RTPCodecType, error) {
	var sd sdp.SessionDescription
	if err := sd.Unmarshal([]byte(offer)); err != nil {
		return nil, fmt.Errorf("parse offer: %w", err)
	}
	var kinds []webrtc.RTPCodecType
	seen := make(map[webrtc.RTPCodecType]bool)
	for _, md := range sd.MediaDescriptions {
		kind := webrtc.NewRTPCodecType(md.MediaName.Media)
		if kind == webrtc.RTPCodecTypeUnknown || seen[kind] {
			continue
		}
		seen[kind] = true
		kinds = append(kinds, kind)
	}
	if len(kinds) == 0 {
		return nil, errors.New("offer has no audio or video section")
	}
	return kinds, nil
}

func toInit(c domain.ICECandidate) webrtc.ICECandidateInit {
	mid := c.SDPMid
	idx := c.SDPMLineIndex
	return webrtc.ICECandidateInit{Candidate: c.Candidate, SDPMid: &mid, SDPMLineIndex: &idx}
}

func fromInit(c webrtc.ICECandidateInit) domain.ICECandidate {
	out := domain.ICECandidate{Candidate: c.Candidate}
	if c.SDPMid != nil {
		out.SDPMid = *c.SDPMid
	}
	if c.SDPMLineIndex != nil {
		out.SDPMLineIndex = *c.SDPMLineIndex
	}
	return out
}
