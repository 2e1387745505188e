package relay

// Error codes reported back to the originating client.
const (
	ErrCodeUnauthorized    = "unauthorized"
	ErrCodeForbidden       = "forbidden"
	ErrCodeInvalidArgument = "invalid_argument"
	ErrCodeNotFound        = "not_found"
)

// Error wraps a code and human-readable message.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	// ErrNotAuthenticated rejects commands issued before a successful hello.
	ErrNotAuthenticated = &Error{Code: ErrCodeUnauthorized, Message: "authenticate before issuing commands"}
	// ErrNotAMember rejects a join by a user who is not a participant of the room.
	ErrNotAMember = &Error{Code: ErrCodeForbidden, Message: "not a member of this room"}
	// ErrRoomRequired rejects commands with a missing room identifier.
	ErrRoomRequired = &Error{Code: ErrCodeInvalidArgument, Message: "room is required"}
	// ErrEmptyMessage rejects a send with neither text nor media.
	ErrEmptyMessage = &Error{Code: ErrCodeInvalidArgument, Message: "message is empty"}
	// ErrSessionNotFound marks operations on an unregistered session. Internal
	// only: the lifecycle manager logs it and never surfaces it to clients.
	ErrSessionNotFound = &Error{Code: ErrCodeNotFound, Message: "session not registered"}
	// ErrSessionExists marks a duplicate register, a logic error upstream.
	ErrSessionExists = &Error{Code: ErrCodeNotFound, Message: "session already registered"}
)
