package http

import (
	"encoding/json"
	"errors"

	"github.com/synctalk/relay/internal/proto"
	"github.com/synctalk/relay/internal/relay"
)

func unmarshalData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errors.New("missing data")
	}
	return json.Unmarshal(data, v)
}

// inboundToCommand maps a client frame onto the relay's closed command set.
// A malformed-but-parseable frame yields a proto.Error for the client; a
// frame that cannot be parsed at all yields a hard error and the connection
// is dropped.
func inboundToCommand(inbound proto.Inbound) (*relay.Command, *proto.Error, error) {
	switch inbound.Type {
	case proto.InboundTypeJoin:
		var join proto.RoomData
		if err := json.Unmarshal(inbound.Data, &join); err != nil {
			return nil, nil, err
		}
		if join.Room == "" {
			return nil, &proto.Error{Code: relay.ErrCodeInvalidArgument, Msg: "room is required"}, nil
		}
		return &relay.Command{Kind: relay.CommandJoin, Room: join.Room}, nil, nil
	case proto.InboundTypeLeave:
		var leave proto.RoomData
		if err := json.Unmarshal(inbound.Data, &leave); err != nil {
			return nil, nil, err
		}
		if leave.Room == "" {
			return nil, &proto.Error{Code: relay.ErrCodeInvalidArgument, Msg: "room is required"}, nil
		}
		return &relay.Command{Kind: relay.CommandLeave, Room: leave.Room}, nil, nil
	case proto.InboundTypeSend:
		var send proto.SendData
		if err := json.Unmarshal(inbound.Data, &send); err != nil {
			return nil, nil, err
		}
		if send.Room == "" {
			return nil, &proto.Error{Code: relay.ErrCodeInvalidArgument, Msg: "room is required"}, nil
		}
		return &relay.Command{
			Kind:  relay.CommandSend,
			Room:  send.Room,
			Text:  send.Text,
			Media: send.Media,
		}, nil, nil
	default:
		return nil, &proto.Error{Code: "invalid_message", Msg: "unknown message type"}, nil
	}
}

func outboundFromEvent(event relay.Event) proto.Outbound {
	switch event.Kind {
	case relay.EventNewMessage:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNewMessage,
			Data: proto.MessageData{
				ID:     event.Envelope.ID,
				Room:   event.Envelope.Room,
				Sender: event.Envelope.Sender,
				UserID: event.Envelope.SenderID,
				Text:   event.Envelope.Text,
				Media:  event.Envelope.Media,
				TS:     event.Envelope.SentAt.Unix(),
			},
		}
	case relay.EventJoinedRoom:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventJoined,
			Data:  proto.RoomAck{Room: event.Room},
		}
	case relay.EventLeftRoom:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventLeft,
			Data:  proto.RoomAck{Room: event.Room},
		}
	case relay.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}
