package core

import (
	"fmt"
	"sync"

	"github.com/dkeye/Call/internal/domain"
)

// Session is the server-side state of one registered connection.
// Call fields are guarded by mu; outbound frames are serialized by sendMu.
type Session struct {
	name domain.Username
	conn SignalConnection

	sendMu sync.Mutex

	mu         sync.Mutex
	state      domain.CallState
	endpoint   *Endpoint
	candidates []domain.ICECandidate
}

func NewSession(name domain.Username, conn SignalConnection) *Session {
	return &Session{name: name, conn: conn, state: domain.Idle{}}
}

func (s *Session) Name() domain.Username  { return s.name }
func (s *Session) Conn() SignalConnection { return s.conn }
func (s *Session) ConnID() ConnID         { return s.conn.ID() }
func (s *Session) String() string         { return fmt.Sprintf("%s(%s)", s.name, s.conn.ID()) }

func (s *Session) State() domain.CallState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transition moves to next only if the current state satisfies cond.
func (s *Session) Transition(cond func(domain.CallState) bool, next domain.CallState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !cond(s.state) {
		return false
	}
	s.state = next
	return true
}

// Reset drops every call-related field and returns the state it replaced.
func (s *Session) Reset() domain.CallState {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state
	s.resetLocked()
	return prev
}

// ResetIf resets the session only if the current state satisfies cond.
// Unlike Transition it also drops the endpoint and buffered candidates.
func (s *Session) ResetIf(cond func(domain.CallState) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !cond(s.state) {
		return false
	}
	s.resetLocked()
	return true
}

// ResetIfInCall resets the session only while it is still in the call on
// pipeline id.
func (s *Session) ResetIfInCall(id domain.PipelineID) bool {
	return s.ResetIf(func(st domain.CallState) bool {
		c, ok := st.(domain.InCall)
		return ok && c.Pipeline == id
	})
}

func (s *Session) resetLocked() {
	s.state = domain.Idle{}
	s.endpoint = nil
	s.candidates = nil
}

// BindEndpoint attaches the media endpoint and flushes buffered candidates
// to it in arrival order. The flush runs under mu so that a concurrently
// arriving candidate cannot overtake buffered ones.
func (s *Session) BindEndpoint(ep Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoint = &ep
	pending := s.candidates
	s.candidates = nil
	for i, c := range pending {
		if err := ep.AddRemoteCandidate(c); err != nil {
			return fmt.Errorf("flush candidate %d/%d: %w", i+1, len(pending), err)
		}
	}
	return nil
}

// AddCandidate forwards c to the bound endpoint, or buffers it until one is
// bound. It reports whether c was forwarded.
func (s *Session) AddCandidate(c domain.ICECandidate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.endpoint == nil {
		s.candidates = append(s.candidates, c)
		return false, nil
	}
	return true, s.endpoint.AddRemoteCandidate(c)
}

func (s *Session) Endpoint() (Endpoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.endpoint == nil {
		return Endpoint{}, false
	}
	return *s.endpoint, true
}

func (s *Session) BufferedCandidates() []domain.ICECandidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ICECandidate(nil), s.candidates...)
}

// Send encodes msg and hands it to the connection. Sends to one session
// never interleave, whichever goroutine triggers them.
func (s *Session) Send(msg any) error {
	f, err := EncodeMessage(msg)
	if err != nil {
		return err
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.conn.TrySend(f)
}
