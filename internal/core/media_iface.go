package core

//go:generate mockgen -source=media_iface.go -destination=mocks/mock_media.go -package=mocks

import (
	"context"

	"github.com/dkeye/Call/internal/domain"
)

// EndpointRole selects one side of a pipeline.
type EndpointRole int

const (
	RoleCaller EndpointRole = iota
	RoleCallee
)

func (r EndpointRole) String() string {
	if r == RoleCaller {
		return "caller"
	}
	return "callee"
}

// MediaEngine allocates pipelines. Implementations may block.
type MediaEngine interface {
	AllocatePipeline(ctx context.Context) (Pipeline, error)
}

// Pipeline pairs the caller's and the callee's media endpoints for one call.
type Pipeline interface {
	ID() domain.PipelineID
	// AnswerForCaller applies the caller's offer and returns the SDP answer.
	AnswerForCaller(offer string) (string, error)
	// AnswerForCallee applies the callee's offer and returns the SDP answer.
	AnswerForCallee(offer string) (string, error)
	// OnICECandidate sets a callback for locally gathered candidates of role.
	// The callback may run on any goroutine.
	OnICECandidate(role EndpointRole, fn func(domain.ICECandidate))
	AddRemoteCandidate(role EndpointRole, c domain.ICECandidate) error
	// BeginGathering starts local candidate gathering for role.
	BeginGathering(role EndpointRole) error
	// Release stops all underlying media resources.
	Release() error
}

// Endpoint is a non-owning reference to one side of a pipeline.
type Endpoint struct {
	Pipeline Pipeline
	Role     EndpointRole
}

func (e Endpoint) AddRemoteCandidate(c domain.ICECandidate) error {
	return e.Pipeline.AddRemoteCandidate(e.Role, c)
}
