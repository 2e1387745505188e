package relay

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoin subscribes the session to a room.
	CommandJoin CommandKind = iota
	// CommandLeave unsubscribes the session from a room.
	CommandLeave
	// CommandSend delivers a chat message to room subscribers.
	CommandSend
)

// Command is an action requested by a connected client. The transport maps
// wire frames onto this closed set so that dispatch stays exhaustive.
type Command struct {
	Kind  CommandKind
	Room  string
	Text  string
	Media string
}
