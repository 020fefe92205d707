package rtc

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
)

type Options struct {
	ICEServers []string
	UDPPortMin uint16
	UDPPortMax uint16
	Logger     zerolog.Logger
}

// Engine is an in-process media engine: every pipeline is a pair of
// PeerConnections with media relayed between them.
type Engine struct {
	api    *webrtc.API
	config webrtc.Configuration
	logger zerolog.Logger
}

func NewEngine(opts Options) (*Engine, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	se.LoggerFactory = NewLoggerFactory(opts.Logger)
	if opts.UDPPortMin != 0 && opts.UDPPortMax != 0 {
		if err := se.SetEphemeralUDPPortRange(opts.UDPPortMin, opts.UDPPortMax); err != nil {
			return nil, fmt.Errorf("udp port range: %w", err)
		}
	}

	cfg := webrtc.Configuration{}
	if len(opts.ICEServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: opts.ICEServers}}
	}

	return &Engine{
		api:    webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(ir), webrtc.WithSettingEngine(se)),
		config: cfg,
		logger: opts.Logger,
	}, nil
}

// AllocatePipeline creates both endpoints of a new pipeline.
func (e *Engine) AllocatePipeline(ctx context.Context) (core.Pipeline, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := domain.PipelineID(uuid.NewString())
	logger := e.logger.With().Str("module", "rtc").Str("pipeline", string(id)).Logger()

	caller, err := newEndpoint(e.api, e.config, core.RoleCaller, logger)
	if err != nil {
		return nil, fmt.Errorf("caller endpoint: %w", err)
	}
	callee, err := newEndpoint(e.api, e.config, core.RoleCallee, logger)
	if err != nil {
		_ = caller.close()
		return nil, fmt.Errorf("callee endpoint: %w", err)
	}

	p := newPipeline(context.WithoutCancel(ctx), id, caller, callee, logger)
	log.Debug().Str("module", "rtc").Str("pipeline", string(id)).Msg("pipeline allocated")
	return p, nil
}
