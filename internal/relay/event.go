package relay

// EventKind is a notification the relay emits to sessions.
type EventKind int

const (
	// EventNewMessage carries a persisted envelope to a room subscriber.
	EventNewMessage EventKind = iota
	// EventJoinedRoom acknowledges a successful join to the issuing session.
	EventJoinedRoom
	// EventLeftRoom acknowledges a leave to the issuing session.
	EventLeftRoom
	// EventError reports a rejected command to the issuing session.
	EventError
)

// Event is pushed to a session to describe what happened.
type Event struct {
	Kind     EventKind
	Room     string
	Envelope Envelope
	Error    *Error
}
