package app

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
)

// Registry is the presence table: user name <-> session, indexed both ways.
type Registry struct {
	mu     sync.RWMutex
	byName map[domain.Username]*core.Session
	byConn map[core.ConnID]*core.Session
}

func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[domain.Username]*core.Session),
		byConn: make(map[core.ConnID]*core.Session),
	}
}

// Register binds name to conn. A name is unique across the registry, and a
// connection may hold one name at a time.
func (r *Registry) Register(name domain.Username, conn core.SignalConnection) (*core.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byConn[conn.ID()]; ok {
		return nil, fmt.Errorf("%w as '%s'", domain.ErrAlreadyRegistered, prev.Name())
	}
	if _, ok := r.byName[name]; ok {
		return nil, fmt.Errorf("%w: '%s'", domain.ErrDuplicateIdentity, name)
	}

	s := core.NewSession(name, conn)
	r.byName[name] = s
	r.byConn[conn.ID()] = s
	log.Info().Str("module", "app.registry").Str("user", string(name)).Str("conn", string(conn.ID())).Msg("registered")
	return s, nil
}

func (r *Registry) Exists(name domain.Username) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byName[name]
	return ok
}

func (r *Registry) ByName(name domain.Username) (*core.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byName[name]
	return s, ok
}

func (r *Registry) ByConn(id core.ConnID) (*core.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byConn[id]
	return s, ok
}

// RemoveByConn drops the session bound to id and frees its name.
func (r *Registry) RemoveByConn(id core.ConnID) (*core.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byConn[id]
	if !ok {
		return nil, false
	}
	delete(r.byConn, id)
	if r.byName[s.Name()] == s {
		delete(r.byName, s.Name())
	}
	log.Info().Str("module", "app.registry").Str("user", string(s.Name())).Str("conn", string(id)).Msg("unregistered")
	return s, true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// Snapshot lists registered users sorted by name.
func (r *Registry) Snapshot() []core.PresenceDTO {
	r.mu.RLock()
	out := make([]core.PresenceDTO, 0, len(r.byName))
	sessions := make([]*core.Session, 0, len(r.byName))
	for _, s := range r.byName {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		out = append(out, core.PresenceDTO{Name: s.Name(), State: s.State().Kind()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
