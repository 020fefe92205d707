package orch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
)

func (o *Orchestrator) register(conn core.SignalConnection, data []byte) {
	var m core.RegisterMessage
	if err := core.Decode(data, &m); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("conn", string(conn.ID())).Msg("drop register")
		return
	}

	name, err := domain.NewUsername(m.Name)
	if err != nil {
		reason := "empty user name"
		if len(strings.TrimSpace(m.Name)) > domain.MaxUsernameLen {
			reason = fmt.Sprintf("user name longer than %d bytes", domain.MaxUsernameLen)
		}
		o.replyRegister(conn, core.Rejected(reason))
		return
	}

	s, err := o.Registry.Register(name, conn)
	switch {
	case errors.Is(err, domain.ErrDuplicateIdentity):
		o.replyRegister(conn, core.Rejected(fmt.Sprintf("user '%s' already registered", name)))
	case err != nil:
		// ErrAlreadyRegistered reads "connection already registered as '<name>'".
		o.replyRegister(conn, core.Rejected(err.Error()))
	default:
		o.send(s, core.NewRegisterResponse(core.ResponseAccepted))
	}
}

// replyRegister goes through the session when the connection already has one
// so that its sends stay serialized.
func (o *Orchestrator) replyRegister(conn core.SignalConnection, response string) {
	msg := core.NewRegisterResponse(response)
	if s, ok := o.Registry.ByConn(conn.ID()); ok {
		o.send(s, msg)
		return
	}
	f, err := core.EncodeMessage(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode registerResponse")
		return
	}
	if err := conn.TrySend(f); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("conn", string(conn.ID())).Msg("send registerResponse")
	}
}

func (o *Orchestrator) call(caller *core.Session, data []byte) {
	var m core.CallMessage
	if err := core.Decode(data, &m); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("session", caller.String()).Msg("drop call")
		return
	}

	to := domain.Username(strings.TrimSpace(m.To))
	callee, err := o.ring(caller, to, m.SDPOffer)
	if err != nil {
		reason := rejectReason(err, to)
		o.send(caller, core.NewCallResponse(core.Rejected(reason)))
		log.Info().Str("module", "orch").Str("session", caller.String()).Str("to", string(to)).Str("reason", reason).Msg("call rejected")
		return
	}

	o.send(callee, core.NewIncomingCall(caller.Name()))
	log.Info().Str("module", "orch").Str("caller", caller.String()).Str("callee", callee.String()).Msg("ringing")
}

// ring moves caller to Calling and the callee to BeingCalled.
func (o *Orchestrator) ring(caller *core.Session, to domain.Username, offer string) (*core.Session, error) {
	if to == caller.Name() {
		return nil, domain.ErrSelfCall
	}
	callee, ok := o.Registry.ByName(to)
	if !ok {
		return nil, domain.ErrPeerNotFound
	}
	o.clearDeclined(caller)
	o.clearDeclined(callee)

	if !caller.Transition(isIdle, domain.Calling{Peer: to, Offer: offer}) {
		return nil, domain.ErrAlreadyInCall
	}
	if !callee.Transition(isIdle, domain.BeingCalled{Peer: caller.Name()}) {
		caller.ResetIf(isCalling(to))
		return nil, domain.ErrPeerBusy
	}
	return callee, nil
}

// clearDeclined resets s when it is left BeingCalled by a caller that is no
// longer calling it, as after a decline without a stop.
func (o *Orchestrator) clearDeclined(s *core.Session) {
	st, ok := s.State().(domain.BeingCalled)
	if !ok {
		return
	}
	if peer, ok := o.Registry.ByName(st.Peer); ok && isCalling(s.Name())(peer.State()) {
		return
	}
	if s.ResetIf(isBeingCalled(st.Peer)) {
		log.Debug().Str("module", "orch").Str("session", s.String()).Str("from", string(st.Peer)).Msg("cleared declined call")
	}
}

func rejectReason(err error, to domain.Username) string {
	switch {
	case errors.Is(err, domain.ErrSelfCall):
		return "cannot call yourself"
	case errors.Is(err, domain.ErrPeerNotFound):
		return fmt.Sprintf("user '%s' is not registered", to)
	case errors.Is(err, domain.ErrAlreadyInCall):
		return "already in a call"
	case errors.Is(err, domain.ErrPeerBusy):
		return fmt.Sprintf("user '%s' is busy", to)
	default:
		return err.Error()
	}
}

// stop ends whatever call s takes part in. The registration survives.
func (o *Orchestrator) stop(s *core.Session) {
	state := s.State()
	if _, ok := state.(domain.Idle); ok {
		// Late candidates of an ended call must not reach the next one.
		s.ResetIf(isIdle)
		return
	}
	o.Pipelines.Release(s.ConnID())

	if peerName, ok := domain.PeerOf(state); ok {
		if peer, ok := o.Registry.ByName(peerName); ok && peer != s && releasePeer(peer, s.Name(), state) {
			o.send(peer, core.NewStopCommunication())
		}
	}
	// A concurrent stop of the peer may already have reset s, and s may have
	// been rung since.
	s.ResetIf(func(cur domain.CallState) bool { return cur == state })
	log.Info().Str("module", "orch").Str("session", s.String()).Str("from", state.Kind()).Msg("stopped")
}

// releasePeer resets peer if its state still points back at self.
func releasePeer(peer *core.Session, self domain.Username, selfState domain.CallState) bool {
	if st, ok := selfState.(domain.InCall); ok {
		return peer.ResetIfInCall(st.Pipeline)
	}
	return peer.ResetIf(func(cur domain.CallState) bool {
		switch cur.(type) {
		case domain.Calling, domain.BeingCalled:
			p, _ := domain.PeerOf(cur)
			return p == self
		default:
			return false
		}
	})
}

func isIdle(s domain.CallState) bool {
	_, ok := s.(domain.Idle)
	return ok
}

func isCalling(peer domain.Username) func(domain.CallState) bool {
	return func(s domain.CallState) bool {
		st, ok := s.(domain.Calling)
		return ok && st.Peer == peer
	}
}

func isBeingCalled(peer domain.Username) func(domain.CallState) bool {
	return func(s domain.CallState) bool {
		st, ok := s.(domain.BeingCalled)
		return ok && st.Peer == peer
	}
}
