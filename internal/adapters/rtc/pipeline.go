package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/Call/internal/app/sfu"
	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
)

const pliInterval = 3 * time.Second

// pipeline bridges two endpoints back to back: what one client sends is
// written to the tracks the other client receives.
type pipeline struct {
	id     domain.PipelineID
	caller *endpoint
	callee *endpoint
	relays *sfu.RelayManager
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	once       sync.Once
	releaseErr error
}

func newPipeline(parent context.Context, id domain.PipelineID, caller, callee *endpoint, logger zerolog.Logger) *pipeline {
	ctx, cancel := context.WithCancel(parent)
	p := &pipeline{
		id:     id,
		caller: caller,
		callee: callee,
		relays: sfu.NewRelayManager(string(id)),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
	caller.start(ctx,
		func(ctx context.Context, t *webrtc.TrackRemote) { p.forward(ctx, caller, callee, t) },
		func(s webrtc.ICEConnectionState) { p.onICEState(caller, callee, s) })
	callee.start(ctx,
		func(ctx context.Context, t *webrtc.TrackRemote) { p.forward(ctx, callee, caller, t) },
		func(s webrtc.ICEConnectionState) { p.onICEState(callee, caller, s) })
	return p
}

func (p *pipeline) ID() domain.PipelineID { return p.id }

func (p *pipeline) endpoint(role core.EndpointRole) *endpoint {
	if role == core.RoleCaller {
		return p.caller
	}
	return p.callee
}

func (p *pipeline) AnswerForCaller(offer string) (string, error) {
	return p.caller.prepareAnswer(offer)
}

func (p *pipeline) AnswerForCallee(offer string) (string, error) {
	return p.callee.prepareAnswer(offer)
}

func (p *pipeline) OnICECandidate(role core.EndpointRole, fn func(domain.ICECandidate)) {
	p.endpoint(role).setOnICE(fn)
}

func (p *pipeline) AddRemoteCandidate(role core.EndpointRole, c domain.ICECandidate) error {
	return p.endpoint(role).addRemoteCandidate(c)
}

func (p *pipeline) BeginGathering(role core.EndpointRole) error {
	return p.endpoint(role).gather()
}

// Release closes both endpoints. Later calls return the first result.
func (p *pipeline) Release() error {
	p.once.Do(func() {
		p.cancel()
		p.relays.StopAll()

		var callerErr, calleeErr error
		var wg conc.WaitGroup
		wg.Go(func() { callerErr = p.caller.close() })
		wg.Go(func() { calleeErr = p.callee.close() })
		wg.Wait()

		if err := errors.Join(callerErr, calleeErr); err != nil {
			p.releaseErr = fmt.Errorf("release pipeline %s: %w", p.id, err)
		}
	})
	return p.releaseErr
}

// forward relays track, received on from, to the matching local track of to.
func (p *pipeline) forward(ctx context.Context, from, to *endpoint, track *webrtc.TrackRemote) {
	kind := track.Kind()
	src, dst := relayKey(from, kind), relayKey(to, kind)

	relay := p.relays.StartRelay(ctx, src, track)
	go func() {
		<-relay.Done()
		if p.relays.StopRelay(src, relay) {
			p.logger.Info().Str("src", string(src)).Msg("remote track ended")
		}
	}()

	local, ok := to.localTrack(kind)
	if !ok || !p.relays.AddSubscriber(src, dst, local) {
		p.logger.Warn().Str("src", string(src)).Msg("no receiving track for relay")
		return
	}

	if kind == webrtc.RTPCodecTypeVideo {
		go p.requestKeyframes(ctx, from, uint32(track.SSRC()))
	}
}

// onICEState gates what is relayed to recv while its transport is
// interrupted, and drops it once the transport has failed.
func (p *pipeline) onICEState(recv, peer *endpoint, s webrtc.ICEConnectionState) {
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		src, dst := relayKey(peer, kind), relayKey(recv, kind)
		switch s {
		case webrtc.ICEConnectionStateDisconnected:
			p.relays.SetSubscriberMuted(src, dst, true)
		case webrtc.ICEConnectionStateConnected:
			p.relays.SetSubscriberMuted(src, dst, false)
		case webrtc.ICEConnectionStateFailed:
			p.relays.MarkSubscriberDelete(src, dst)
		}
	}
}

func relayKey(e *endpoint, kind webrtc.RTPCodecType) sfu.Key {
	return sfu.Key(e.role.String() + "/" + kind.String())
}

// requestKeyframes sends a PLI to the video sender every pliInterval.
func (p *pipeline) requestKeyframes(ctx context.Context, from *endpoint, ssrc uint32) {
	ticker := time.NewTicker(pliInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := from.pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: ssrc}}); err != nil {
				p.logger.Debug().Err(err).Msg("PLI write failed")
				return
			}
		}
	}
}
