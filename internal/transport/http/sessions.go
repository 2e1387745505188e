package http

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/synctalk/relay/internal/relay"
)

// ErrSessionGone is returned when pushing to a session whose connection has
// already been torn down.
var ErrSessionGone = errors.New("session transport closed")

// SessionTable owns the outbound event queue of every live connection and
// implements relay.Transport on top of it. Each queue is drained by exactly
// one write loop, so pushes to the same session arrive in push order.
type SessionTable struct {
	mu       sync.RWMutex
	sessions map[string]chan relay.Event
	buffer   int
	log      *zerolog.Logger
}

// NewSessionTable builds a table with the given per-session queue size.
func NewSessionTable(buffer int, logger *zerolog.Logger) *SessionTable {
	if buffer <= 0 {
		buffer = 32
	}
	return &SessionTable{
		sessions: make(map[string]chan relay.Event),
		buffer:   buffer,
		log:      logger,
	}
}

func (t *SessionTable) add(sessionID string) chan relay.Event {
	ch := make(chan relay.Event, t.buffer)

	t.mu.Lock()
	t.sessions[sessionID] = ch
	t.mu.Unlock()
	return ch
}

func (t *SessionTable) remove(sessionID string) {
	t.mu.Lock()
	delete(t.sessions, sessionID)
	t.mu.Unlock()
}

// PushToSession queues an event for delivery. Best-effort: a session whose
// queue is full loses the event (slow consumer), a removed session returns
// ErrSessionGone.
func (t *SessionTable) PushToSession(sessionID string, ev relay.Event) error {
	t.mu.RLock()
	ch, ok := t.sessions[sessionID]
	t.mu.RUnlock()

	if !ok {
		return ErrSessionGone
	}

	select {
	case ch <- ev:
	default:
		t.log.Warn().Str("session_id", sessionID).Msg("event dropped for slow consumer")
	}
	return nil
}
