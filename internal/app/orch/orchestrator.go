package orch

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/panics"

	"github.com/dkeye/Call/internal/app"
	"github.com/dkeye/Call/internal/core"
)

// Orchestrator drives the call state machine. Transports hand it raw frames
// via OnMessage and report disconnects via OnClosed.
type Orchestrator struct {
	Registry  *app.Registry
	Pipelines *app.Pipelines
	Policy    app.Policy
}

// OnMessage handles one inbound frame. A panic in a handler is logged and
// swallowed so the connection keeps serving.
func (o *Orchestrator) OnMessage(ctx context.Context, conn core.SignalConnection, data []byte) {
	var pc panics.Catcher
	pc.Try(func() { o.dispatch(ctx, conn, data) })
	if r := pc.Recovered(); r != nil {
		log.Error().Err(r.AsError()).Str("module", "orch").Str("conn", string(conn.ID())).
			Bytes("stack", r.Stack).Msg("handler panic")
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, conn core.SignalConnection, data []byte) {
	id, err := core.DecodeEnvelope(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("conn", string(conn.ID())).Msg("drop frame")
		return
	}
	if id == core.MsgRegister {
		o.register(conn, data)
		return
	}

	s, ok := o.Registry.ByConn(conn.ID())
	if !ok {
		log.Debug().Str("module", "orch").Str("conn", string(conn.ID())).Str("id", id).Msg("unregistered connection")
		return
	}

	switch id {
	case core.MsgCall:
		o.call(s, data)
	case core.MsgIncomingCallResponse:
		o.incomingCallResponse(ctx, s, data)
	case core.MsgOnIceCandidate:
		o.onIceCandidate(s, data)
	case core.MsgStop:
		o.stop(s)
	default:
		log.Warn().Str("module", "orch").Str("session", s.String()).Str("id", id).Msg("unknown message")
	}
}

// OnClosed tears down any call of the connection and frees its name.
func (o *Orchestrator) OnClosed(_ context.Context, conn core.SignalConnection) {
	var pc panics.Catcher
	pc.Try(func() {
		if s, ok := o.Registry.ByConn(conn.ID()); ok {
			o.stop(s)
		}
		if s, ok := o.Registry.RemoveByConn(conn.ID()); ok {
			s.Reset()
		}
	})
	if r := pc.Recovered(); r != nil {
		log.Error().Err(r.AsError()).Str("module", "orch").Str("conn", string(conn.ID())).Msg("close panic")
	}
}

func (o *Orchestrator) send(s *core.Session, msg any) {
	err := s.Send(msg)
	if err == nil {
		return
	}
	if !errors.Is(err, core.ErrBackpressure) || o.Policy == nil {
		log.Warn().Err(err).Str("module", "orch").Str("session", s.String()).Msg("send failed")
		return
	}
	action := o.Policy.OnBackPressure(s)
	log.Warn().Str("module", "orch").Str("session", s.String()).Stringer("action", action).Msg("backpressure")
	switch action {
	case app.KickMember:
		s.Conn().Close()
	case app.DropFrame, app.NoAction:
	}
}
