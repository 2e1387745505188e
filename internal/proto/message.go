package proto

import "encoding/json"

// Inbound is the envelope for frames coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeHello = "hello"
	InboundTypeJoin  = "joinRoom"
	InboundTypeLeave = "leaveRoom"
	InboundTypeSend  = "sendMessage"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventNewMessage = "newMessage"
	EventJoined     = "joinedRoom"
	EventLeft       = "leftRoom"
)

// HelloData authenticates the connection with a previously issued token.
type HelloData struct {
	Token string `json:"token"`
}

// RoomData addresses a join or leave at a room.
type RoomData struct {
	Room string `json:"room"`
}

// SendData is a chat message from the client.
type SendData struct {
	Room  string `json:"room"`
	Text  string `json:"text"`
	Media string `json:"media,omitempty"`
}

// Outbound is the envelope for frames sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// MessageData is the newMessage payload delivered to room subscribers. ID is
// the durable store identifier, which clients use to reconcile optimistic
// updates.
type MessageData struct {
	ID     int64  `json:"id"`
	Room   string `json:"room"`
	Sender string `json:"sender"`
	UserID int64  `json:"user_id"`
	Text   string `json:"text"`
	Media  string `json:"media,omitempty"`
	TS     int64  `json:"ts"`
}

// RoomAck acknowledges a joinedRoom/leftRoom to the issuing client.
type RoomAck struct {
	Room string `json:"room"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
