package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
)

type trackedPipeline struct {
	pipeline core.Pipeline
	caller   core.ConnID
	callee   core.ConnID
	once     sync.Once
}

func (t *trackedPipeline) release() {
	t.once.Do(func() {
		if err := t.pipeline.Release(); err != nil {
			log.Error().Err(err).Str("module", "app.pipelines").Str("pipeline", string(t.pipeline.ID())).Msg("release failed")
			return
		}
		log.Info().Str("module", "app.pipelines").Str("pipeline", string(t.pipeline.ID())).Msg("released")
	})
}

// Pipelines tracks which media pipeline each in-call session holds. Both
// parties of a call map to the same entry.
type Pipelines struct {
	engine core.MediaEngine

	mu      sync.Mutex
	entries map[core.ConnID]*trackedPipeline
}

func NewPipelines(engine core.MediaEngine) *Pipelines {
	return &Pipelines{engine: engine, entries: make(map[core.ConnID]*trackedPipeline)}
}

// Create allocates a pipeline and records it for both parties. Any pipeline
// either party still held is released first.
func (p *Pipelines) Create(ctx context.Context, caller, callee core.ConnID) (core.Pipeline, error) {
	pl, err := p.engine.AllocatePipeline(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: allocate pipeline: %v", domain.ErrMediaEngine, err)
	}
	entry := &trackedPipeline{pipeline: pl, caller: caller, callee: callee}

	p.mu.Lock()
	var stale []*trackedPipeline
	for _, id := range []core.ConnID{caller, callee} {
		if prev, ok := p.entries[id]; ok {
			stale = append(stale, prev)
			p.dropLocked(prev)
		}
	}
	p.entries[caller] = entry
	p.entries[callee] = entry
	p.mu.Unlock()

	for _, prev := range stale {
		prev.release()
	}
	log.Info().Str("module", "app.pipelines").Str("pipeline", string(pl.ID())).
		Str("caller", string(caller)).Str("callee", string(callee)).Msg("created")
	return pl, nil
}

func (p *Pipelines) Get(id core.ConnID) (core.Pipeline, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[id]
	if !ok {
		return nil, false
	}
	return e.pipeline, true
}

// Release drops the entry held by id and its peer, then releases the
// pipeline. Releasing an absent entry is a no-op.
func (p *Pipelines) Release(id core.ConnID) {
	p.mu.Lock()
	e, ok := p.entries[id]
	if ok {
		p.dropLocked(e)
	}
	p.mu.Unlock()
	if ok {
		e.release()
	}
}

func (p *Pipelines) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

func (p *Pipelines) dropLocked(e *trackedPipeline) {
	for _, id := range []core.ConnID{e.caller, e.callee} {
		if p.entries[id] == e {
			delete(p.entries, id)
		}
	}
}
