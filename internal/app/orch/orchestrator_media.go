package orch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/panics"

	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
)

func (o *Orchestrator) incomingCallResponse(ctx context.Context, callee *core.Session, data []byte) {
	var m core.IncomingCallResponseMessage
	if err := core.Decode(data, &m); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("session", callee.String()).Msg("drop incomingCallResponse")
		return
	}

	caller, ok := o.Registry.ByName(domain.Username(m.From))
	if !ok || caller == callee {
		log.Debug().Str("module", "orch").Str("session", callee.String()).Str("from", m.From).Msg("response for unknown caller")
		return
	}
	if !isCalling(callee.Name())(caller.State()) || !isBeingCalled(caller.Name())(callee.State()) {
		log.Debug().Str("module", "orch").Str("caller", caller.String()).Str("callee", callee.String()).Msg("response does not match a pending call")
		return
	}

	if !m.Accepted() {
		if caller.ResetIf(isCalling(callee.Name())) {
			o.send(caller, core.NewCallResponse(core.ResponseRejected))
		}
		log.Info().Str("module", "orch").Str("caller", caller.String()).Str("callee", callee.String()).Msg("call declined")
		return
	}

	if err := o.accept(ctx, caller, callee, m.SDPOffer); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("caller", caller.String()).Str("callee", callee.String()).Msg("call setup failed")
	}
}

// accept wires a pipeline between caller and callee. On any failure, a
// panicking media engine included, the call is rolled back and both parties
// are notified.
func (o *Orchestrator) accept(ctx context.Context, caller, callee *core.Session, calleeOffer string) error {
	var (
		id  domain.PipelineID
		err error
		pc  panics.Catcher
	)
	pc.Try(func() { err = o.connect(ctx, caller, callee, calleeOffer, &id) })
	if r := pc.Recovered(); r != nil {
		log.Error().Str("module", "orch").Str("caller", caller.String()).Str("callee", callee.String()).
			Bytes("stack", r.Stack).Msg("media engine panic")
		err = fmt.Errorf("%w: panic: %v", domain.ErrMediaEngine, r.Value)
	}
	if err != nil {
		o.rollback(caller, callee, id, err)
		return err
	}
	log.Info().Str("module", "orch").Str("pipeline", string(id)).
		Str("caller", caller.String()).Str("callee", callee.String()).Msg("call established")
	return nil
}

// connect allocates the pipeline, moves both parties to InCall and runs the
// media setup. id is set as soon as the pipeline exists.
func (o *Orchestrator) connect(ctx context.Context, caller, callee *core.Session, calleeOffer string, id *domain.PipelineID) error {
	pl, err := o.Pipelines.Create(ctx, caller.ConnID(), callee.ConnID())
	if err != nil {
		return err
	}
	*id = pl.ID()

	var callerOffer string
	moved := caller.Transition(func(s domain.CallState) bool {
		st, ok := s.(domain.Calling)
		if ok && st.Peer == callee.Name() {
			callerOffer = st.Offer
		}
		return ok && st.Peer == callee.Name()
	}, domain.InCall{Peer: callee.Name(), Pipeline: *id})
	if !moved {
		return fmt.Errorf("caller %s left the call before setup", caller)
	}
	if !callee.Transition(isBeingCalled(caller.Name()), domain.InCall{Peer: caller.Name(), Pipeline: *id}) {
		return fmt.Errorf("callee %s left the call before setup", callee)
	}
	return o.setup(pl, caller, callee, callerOffer, calleeOffer)
}

func (o *Orchestrator) setup(pl core.Pipeline, caller, callee *core.Session, callerOffer, calleeOffer string) error {
	if err := o.bind(pl, callee, core.RoleCallee); err != nil {
		return err
	}
	if err := o.bind(pl, caller, core.RoleCaller); err != nil {
		return err
	}

	answer, err := pl.AnswerForCallee(calleeOffer)
	if err != nil {
		return fmt.Errorf("%w: callee answer: %v", domain.ErrMediaEngine, err)
	}
	o.send(callee, core.NewStartCommunication(answer))
	if err := pl.BeginGathering(core.RoleCallee); err != nil {
		return fmt.Errorf("%w: callee gathering: %v", domain.ErrMediaEngine, err)
	}

	answer, err = pl.AnswerForCaller(callerOffer)
	if err != nil {
		return fmt.Errorf("%w: caller answer: %v", domain.ErrMediaEngine, err)
	}
	resp := core.NewCallResponse(core.ResponseAccepted)
	resp.SDPAnswer = answer
	o.send(caller, resp)
	if err := pl.BeginGathering(core.RoleCaller); err != nil {
		return fmt.Errorf("%w: caller gathering: %v", domain.ErrMediaEngine, err)
	}
	return nil
}

// bind attaches s to its side of pl and relays locally gathered candidates
// back to it.
func (o *Orchestrator) bind(pl core.Pipeline, s *core.Session, role core.EndpointRole) error {
	if err := s.BindEndpoint(core.Endpoint{Pipeline: pl, Role: role}); err != nil {
		return fmt.Errorf("%w: bind %s: %v", domain.ErrMediaEngine, role, err)
	}
	pl.OnICECandidate(role, func(c domain.ICECandidate) {
		o.send(s, core.NewIceCandidate(c))
	})
	return nil
}

func (o *Orchestrator) rollback(caller, callee *core.Session, id domain.PipelineID, cause error) {
	o.Pipelines.Release(caller.ConnID())
	o.Pipelines.Release(callee.ConnID())

	if !caller.ResetIfInCall(id) {
		caller.ResetIf(isCalling(callee.Name()))
	}
	if !callee.ResetIfInCall(id) {
		callee.ResetIf(isBeingCalled(caller.Name()))
	}

	resp := core.NewCallResponse(core.ResponseRejected)
	resp.Message = cause.Error()
	o.send(caller, resp)
	o.send(callee, core.NewStopCommunication())
}

func (o *Orchestrator) onIceCandidate(s *core.Session, data []byte) {
	var m core.OnIceCandidateMessage
	if err := core.Decode(data, &m); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("session", s.String()).Msg("drop onIceCandidate")
		return
	}
	forwarded, err := s.AddCandidate(*m.Candidate)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("session", s.String()).Msg("add candidate")
		return
	}
	log.Debug().Str("module", "orch").Str("session", s.String()).Bool("forwarded", forwarded).Msg("candidate")
}
