package sfu

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RelayManager owns the relays of one pipeline, keyed by source flow.
type RelayManager struct {
	logger zerolog.Logger

	mu     sync.RWMutex
	relays map[Key]*Relay
}

func NewRelayManager(pipeline string) *RelayManager {
	return &RelayManager{
		logger: log.With().Str("module", "relay").Str("pipeline", pipeline).Logger(),
		relays: make(map[Key]*Relay),
	}
}

// StartRelay creates a relay reading from src and starts its loop. A relay
// already running under key is replaced.
func (m *RelayManager) StartRelay(ctx context.Context, key Key, src RTPSource) *Relay {
	logger := m.logger.With().Str("src", string(key)).Logger()

	relayCtx, cancel := context.WithCancel(ctx)
	relay := NewRelay(src, cancel)

	m.mu.Lock()
	if old, ok := m.relays[key]; ok {
		logger.Info().Msg("replacing existing relay")
		old.markAllDelete()
		old.cancel()
	}
	m.relays[key] = relay
	m.mu.Unlock()

	logger.Info().Msg("starting relay loop")
	go relay.loop(relayCtx, &logger)
	return relay
}

// AddSubscriber attaches dst to the relay of src.
func (m *RelayManager) AddSubscriber(src, dst Key, w RTPWriter) bool {
	m.mu.RLock()
	relay, ok := m.relays[src]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	relay.AddOutTrack(dst, NewOutTrack(w))
	return true
}

// MarkSubscriberDelete detaches dst from the relay of src on its next packet.
func (m *RelayManager) MarkSubscriberDelete(src, dst Key) {
	if ot, ok := m.subscriber(src, dst); ok {
		ot.MarkDelete()
	}
}

// SetSubscriberMuted pauses or resumes delivery to dst. A subscriber already
// marked for delete stays deleted.
func (m *RelayManager) SetSubscriberMuted(src, dst Key, muted bool) {
	ot, ok := m.subscriber(src, dst)
	if !ok || ot.GetState() == TrackStateDelete {
		return
	}
	if muted {
		ot.MarkMuted()
	} else {
		ot.MarkOk()
	}
}

func (m *RelayManager) SubscriberState(src, dst Key) (TrackState, bool) {
	ot, ok := m.subscriber(src, dst)
	if !ok {
		return TrackStateDelete, false
	}
	return ot.GetState(), true
}

func (m *RelayManager) subscriber(src, dst Key) (*OutTrack, bool) {
	m.mu.RLock()
	relay, ok := m.relays[src]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return relay.outTrack(dst)
}

// StopRelay stops r and removes it from the manager if it is still the relay
// registered under src. It reports whether r was removed.
func (m *RelayManager) StopRelay(src Key, r *Relay) bool {
	m.mu.Lock()
	cur, ok := m.relays[src]
	if ok && cur == r {
		delete(m.relays, src)
	}
	m.mu.Unlock()
	r.markAllDelete()
	r.cancel()
	return ok && cur == r
}

// StopAll stops every relay.
func (m *RelayManager) StopAll() {
	m.mu.Lock()
	relays := m.relays
	m.relays = make(map[Key]*Relay)
	m.mu.Unlock()
	for _, r := range relays {
		r.markAllDelete()
		r.cancel()
	}
}

func (m *RelayManager) HasRelay(src Key) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.relays[src]
	return ok
}

func (m *RelayManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.relays)
}
