package http

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/vovakirdan/roomcast/internal/core"
	"github.com/vovakirdan/roomcast/internal/proto"
)

type opKind int

const (
	opJoin opKind = iota
	opLeave
	opSend
	opEdit
	opDelete
)

// op is a validated client request ready for the coordinator.
type op struct {
	kind      opKind
	room      string
	messageID string
	text      string
}

func badRequest(msg string) *proto.Error {
	return &proto.Error{Code: core.ErrCodeBadRequest, Msg: msg}
}

// inboundToOp validates an inbound envelope. Malformed requests come back as a
// protocol error and never reach the coordinator.
func inboundToOp(inbound proto.Inbound) (*op, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeJoin, proto.InboundTypeLeave:
		var data proto.JoinData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, badRequest("invalid payload")
		}
		if strings.TrimSpace(data.Room) == "" {
			return nil, badRequest("room is required")
		}
		kind := opJoin
		if inbound.Type == proto.InboundTypeLeave {
			kind = opLeave
		}
		return &op{kind: kind, room: data.Room}, nil
	case proto.InboundTypeMsg:
		var data proto.MsgData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, badRequest("invalid payload")
		}
		if strings.TrimSpace(data.Room) == "" {
			return nil, badRequest("room is required")
		}
		return &op{kind: opSend, room: data.Room, text: data.Text}, nil
	case proto.InboundTypeEdit:
		var data proto.EditData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, badRequest("invalid payload")
		}
		if strings.TrimSpace(data.Room) == "" || data.MessageID == "" {
			return nil, badRequest("room and message_id are required")
		}
		return &op{kind: opEdit, room: data.Room, messageID: data.MessageID, text: data.Text}, nil
	case proto.InboundTypeDelete:
		var data proto.DeleteData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, badRequest("invalid payload")
		}
		if strings.TrimSpace(data.Room) == "" || data.MessageID == "" {
			return nil, badRequest("room and message_id are required")
		}
		return &op{kind: opDelete, room: data.Room, messageID: data.MessageID}, nil
	default:
		return nil, badRequest("unknown message type")
	}
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func eventMessage(m core.Message) proto.EventMessage {
	return proto.EventMessage{
		ID:       m.ID,
		Room:     m.Room,
		User:     m.From,
		Text:     m.Text,
		TS:       unixOrZero(m.CreatedAt),
		EditedTS: unixOrZero(m.EditedAt),
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventReceiveMessage, core.EventMessageEdited:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: event.Kind.String(),
			Data:  eventMessage(event.Message),
		}
	case core.EventMessageDeleted:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNameMessageDeleted,
			Data:  proto.EventMessageDeleted{ID: event.Message.ID, Room: event.Room},
		}
	case core.EventMessageRejected, core.EventEditRejected:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: event.Kind.String(),
			Data:  proto.EventRejected{ID: event.Message.ID, Room: event.Room, Reason: event.Reason},
		}
	case core.EventUserJoined:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNameUserJoined,
			Data:  proto.EventUserJoined{Room: event.Room, User: event.User},
		}
	case core.EventUserLeft:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNameUserLeft,
			Data:  proto.EventUserLeft{Room: event.Room, User: event.User},
		}
	case core.EventError:
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
