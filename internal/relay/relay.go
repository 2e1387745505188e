package relay

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

// Transport pushes events to a session's outbound queue. Implemented by the
// WebSocket gateway. Best-effort: pushing to a session whose connection is
// already gone returns an error and the relay moves on.
type Transport interface {
	PushToSession(sessionID string, ev Event) error
}

// Authorizer answers whether a user may subscribe to a room. Implemented by
// the durable store over conversation participants.
type Authorizer interface {
	IsMember(ctx context.Context, userID int64, roomID string) (bool, error)
}

// Relay owns the live fan-out state for one server process. It drives a
// session through connect, authenticate, join/leave/send and disconnect,
// keeping the roster consistent the whole way.
//
// The relay never persists anything: callers store messages durably first
// and hand the relay the already-persisted envelope.
//
// Echo policy: the sender receives its own newMessage iff it is subscribed
// to the room at send time, which is what lets clients reconcile optimistic
// updates against the durable message ID.
type Relay struct {
	roster    *Roster
	transport Transport
	authz     Authorizer
	log       *zerolog.Logger
}

// New constructs a relay around the given collaborators.
func New(transport Transport, authz Authorizer, logger *zerolog.Logger) *Relay {
	return &Relay{
		roster:    NewRoster(),
		transport: transport,
		authz:     authz,
		log:       logger,
	}
}

// Roster exposes the membership state for read-only inspection.
func (r *Relay) Roster() *Roster {
	return r.roster
}

// OnConnect registers a freshly accepted connection. The session starts
// unauthenticated; every command except hello is rejected until
// OnAuthenticate succeeds.
func (r *Relay) OnConnect(sessionID string) error {
	if err := r.roster.Register(sessionID); err != nil {
		r.log.Error().Str("session_id", sessionID).Msg("duplicate session register")
		return err
	}
	r.log.Debug().Str("session_id", sessionID).Msg("session connected")
	return nil
}

// OnAuthenticate attaches the validated identity to the session.
func (r *Relay) OnAuthenticate(sessionID string, userID int64, username string) error {
	if err := r.roster.AttachIdentity(sessionID, userID, username); err != nil {
		r.log.Warn().Str("session_id", sessionID).Msg("authenticate on unknown session")
		return err
	}
	r.log.Debug().Str("session_id", sessionID).Int64("user_id", userID).Msg("session authenticated")
	return nil
}

// OnJoin subscribes the session to a room after checking that its user is a
// participant of the underlying conversation.
func (r *Relay) OnJoin(ctx context.Context, sessionID, roomID string) error {
	if roomID == "" {
		return ErrRoomRequired
	}

	userID, _, authed, registered := r.roster.Identity(sessionID)
	if !registered {
		r.log.Warn().Str("session_id", sessionID).Str("room_id", roomID).Msg("join on unknown session")
		return ErrSessionNotFound
	}
	if !authed {
		return ErrNotAuthenticated
	}

	ok, err := r.authz.IsMember(ctx, userID, roomID)
	if err != nil {
		r.log.Error().Err(err).Int64("user_id", userID).Str("room_id", roomID).Msg("membership check failed")
		return ErrNotAMember
	}
	if !ok {
		return ErrNotAMember
	}

	if err := r.roster.Subscribe(roomID, sessionID); err != nil {
		// Session vanished between the identity read and the subscribe;
		// disconnect cleanup already ran, so do not resurrect it.
		r.log.Warn().Str("session_id", sessionID).Str("room_id", roomID).Msg("join raced disconnect")
		return ErrSessionNotFound
	}

	r.log.Debug().Str("session_id", sessionID).Str("room_id", roomID).Msg("joined room")
	r.push(sessionID, Event{Kind: EventJoinedRoom, Room: roomID})
	return nil
}

// OnLeave unsubscribes the session from a room. Leaving a room the session
// never joined is a no-op, not an error.
func (r *Relay) OnLeave(sessionID, roomID string) error {
	if roomID == "" {
		return ErrRoomRequired
	}

	_, _, authed, registered := r.roster.Identity(sessionID)
	if !registered {
		r.log.Warn().Str("session_id", sessionID).Str("room_id", roomID).Msg("leave on unknown session")
		return ErrSessionNotFound
	}
	if !authed {
		return ErrNotAuthenticated
	}

	r.roster.Unsubscribe(roomID, sessionID)
	r.log.Debug().Str("session_id", sessionID).Str("room_id", roomID).Msg("left room")
	r.push(sessionID, Event{Kind: EventLeftRoom, Room: roomID})
	return nil
}

// OnSend validates a send command from a live session and fans the persisted
// envelope out to the room. The sender does not have to be subscribed; it
// only receives the echo if it is.
func (r *Relay) OnSend(sessionID string, env Envelope) error {
	if env.Room == "" {
		return ErrRoomRequired
	}
	if strings.TrimSpace(env.Text) == "" && env.Media == "" {
		return ErrEmptyMessage
	}

	_, _, authed, registered := r.roster.Identity(sessionID)
	if !registered {
		r.log.Warn().Str("session_id", sessionID).Str("room_id", env.Room).Msg("send on unknown session")
		return ErrSessionNotFound
	}
	if !authed {
		return ErrNotAuthenticated
	}

	return r.Broadcast(env)
}

// Broadcast delivers a persisted envelope to every session subscribed to its
// room at this instant. It is the entry point for server-side senders such
// as the REST message handler. Delivery is best-effort: a failed push to one
// recipient never aborts the rest, and the snapshot-then-deliver order means
// a join racing the broadcast may or may not see the message.
func (r *Relay) Broadcast(env Envelope) error {
	if env.Room == "" {
		return ErrRoomRequired
	}

	for _, sessionID := range r.roster.MembersOf(env.Room) {
		r.push(sessionID, Event{Kind: EventNewMessage, Room: env.Room, Envelope: env})
	}
	return nil
}

// OnDisconnect tears the session down, dropping it from every room. It is
// triggered by the transport's own close notification, runs from any state,
// and is safe to call repeatedly; the session identifier is dead afterwards.
func (r *Relay) OnDisconnect(sessionID string) {
	left := r.roster.Remove(sessionID)
	if len(left) > 0 {
		r.log.Debug().Str("session_id", sessionID).Strs("rooms", left).Msg("session disconnected")
	}
}

// ReportError pushes a structured error event to the issuing session only.
// Internal not_found rejections stay in the logs and are not surfaced.
func (r *Relay) ReportError(sessionID string, cmdErr error) {
	relayErr, ok := cmdErr.(*Error)
	if !ok {
		relayErr = &Error{Code: ErrCodeInvalidArgument, Message: cmdErr.Error()}
	}
	if relayErr.Code == ErrCodeNotFound {
		return
	}
	r.push(sessionID, Event{Kind: EventError, Error: relayErr})
}

func (r *Relay) push(sessionID string, ev Event) {
	if err := r.transport.PushToSession(sessionID, ev); err != nil {
		// Transport already closed but not yet pruned; skip.
		r.log.Debug().Err(err).Str("session_id", sessionID).Msg("push skipped")
	}
}
