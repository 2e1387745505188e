package relay

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/synctalk/relay/internal/log"
)

// fakeTransport records pushed events per session and can simulate closed
// connections.
type fakeTransport struct {
	mu     sync.Mutex
	pushes map[string][]Event
	closed map[string]bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		pushes: make(map[string][]Event),
		closed: make(map[string]bool),
	}
}

func (t *fakeTransport) PushToSession(sessionID string, ev Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed[sessionID] {
		return errors.New("transport closed")
	}
	t.pushes[sessionID] = append(t.pushes[sessionID], ev)
	return nil
}

func (t *fakeTransport) close(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed[sessionID] = true
}

func (t *fakeTransport) eventsOf(sessionID string, kind EventKind) []Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Event
	for _, ev := range t.pushes[sessionID] {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// fakeAuthorizer allows membership per user and room.
type fakeAuthorizer struct {
	mu      sync.Mutex
	members map[string]map[int64]bool
	err     error
}

func newFakeAuthorizer() *fakeAuthorizer {
	return &fakeAuthorizer{members: make(map[string]map[int64]bool)}
}

func (a *fakeAuthorizer) allow(userID int64, roomID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.members[roomID] == nil {
		a.members[roomID] = make(map[int64]bool)
	}
	a.members[roomID][userID] = true
}

func (a *fakeAuthorizer) IsMember(_ context.Context, userID int64, roomID string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return false, a.err
	}
	return a.members[roomID][userID], nil
}

func newTestRelay(t *testing.T) (*Relay, *fakeTransport, *fakeAuthorizer) {
	t.Helper()

	transport := newFakeTransport()
	authz := newFakeAuthorizer()
	return New(transport, authz, log.Nop()), transport, authz
}

// connect registers and authenticates a session in one step.
func connect(t *testing.T, r *Relay, sessionID string, userID int64, username string) {
	t.Helper()

	if err := r.OnConnect(sessionID); err != nil {
		t.Fatalf("connect %s: %v", sessionID, err)
	}
	if err := r.OnAuthenticate(sessionID, userID, username); err != nil {
		t.Fatalf("authenticate %s: %v", sessionID, err)
	}
}
