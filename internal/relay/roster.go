package relay

import "sync"

// Roster tracks which live sessions are subscribed to which rooms. It fuses
// the room membership table and the connection registry behind one mutex so
// the two views can never disagree: every mutation updates both maps before
// the lock is released, and readers only ever get copies.
type Roster struct {
	mu       sync.Mutex
	rooms    map[string]map[string]struct{}
	sessions map[string]*sessionState
}

type sessionState struct {
	userID   int64
	username string
	authed   bool
	rooms    map[string]struct{}
}

// NewRoster returns an empty roster.
func NewRoster() *Roster {
	return &Roster{
		rooms:    make(map[string]map[string]struct{}),
		sessions: make(map[string]*sessionState),
	}
}

// Register creates an entry for a newly connected session with no identity
// and no rooms. Registering the same session twice is a logic error upstream
// and fails with ErrSessionExists.
func (r *Roster) Register(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[sessionID]; exists {
		return ErrSessionExists
	}
	r.sessions[sessionID] = &sessionState{rooms: make(map[string]struct{})}
	return nil
}

// AttachIdentity records the authenticated user behind a session.
func (r *Roster) AttachIdentity(sessionID string, userID int64, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	s.userID = userID
	s.username = username
	s.authed = true
	return nil
}

// Identity reports the user behind a session. authed is false until
// AttachIdentity succeeds; registered is false for unknown sessions.
func (r *Roster) Identity(sessionID string) (userID int64, username string, authed, registered bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return 0, "", false, false
	}
	return s.userID, s.username, s.authed, true
}

// Subscribe adds the session to the room, creating the room entry on first
// join. Idempotent. Both sides of the mapping are updated under one lock.
func (r *Roster) Subscribe(roomID, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[roomID] = members
	}
	members[sessionID] = struct{}{}
	s.rooms[roomID] = struct{}{}
	return nil
}

// Unsubscribe removes the session from the room. Idempotent: a missing room
// or a session that never joined is a no-op. Empty rooms are pruned so churn
// does not leak entries.
func (r *Roster) Unsubscribe(roomID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.unsubscribeLocked(roomID, sessionID)
}

func (r *Roster) unsubscribeLocked(roomID, sessionID string) {
	if members, ok := r.rooms[roomID]; ok {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}
	if s, ok := r.sessions[sessionID]; ok {
		delete(s.rooms, roomID)
	}
}

// MembersOf returns a point-in-time copy of the sessions subscribed to the
// room; nil for an unknown room. Callers iterate the copy without holding
// the roster lock.
func (r *Roster) MembersOf(roomID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	snapshot := make([]string, 0, len(members))
	for id := range members {
		snapshot = append(snapshot, id)
	}
	return snapshot
}

// Joined reports whether the session is currently subscribed to the room.
func (r *Roster) Joined(roomID, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	_, joined := s.rooms[roomID]
	return joined
}

// Remove deletes the session and drops it from every room it was joined to,
// all under one lock, and returns the rooms it left. Safe to call more than
// once: removing an unknown session returns nil.
func (r *Roster) Remove(sessionID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}

	left := make([]string, 0, len(s.rooms))
	for roomID := range s.rooms {
		left = append(left, roomID)
	}
	for _, roomID := range left {
		r.unsubscribeLocked(roomID, sessionID)
	}
	delete(r.sessions, sessionID)
	return left
}
