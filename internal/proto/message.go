package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeHello  = "hello"
	InboundTypeJoin   = "join"
	InboundTypeLeave  = "leave"
	InboundTypeMsg    = "msg"
	InboundTypeEdit   = "edit"
	InboundTypeDelete = "delete"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// Event names carried in Outbound.Event.
const (
	EventNameReceiveMessage  = "ReceiveMessage"
	EventNameMessageEdited   = "MessageEdited"
	EventNameMessageDeleted  = "MessageDeleted"
	EventNameMessageRejected = "MessageRejected"
	EventNameEditRejected    = "EditRejected"
	EventNameUserJoined      = "UserJoined"
	EventNameUserLeft        = "UserLeft"
)

// HelloData is sent by the client to introduce itself.
type HelloData struct {
	User     string `json:"user"`
	Token    string `json:"token,omitempty"`
	Protocol int    `json:"protocol,omitempty"`
}

// JoinData requests to join or leave a specific room.
type JoinData struct {
	Room string `json:"room"`
}

// MsgData is a chat message from the client.
type MsgData struct {
	Room string `json:"room"`
	Text string `json:"text"`
}

// EditData replaces the text of an existing message.
type EditData struct {
	Room      string `json:"room"`
	MessageID string `json:"messageId"`
	Text      string `json:"text"`
}

// DeleteData tombstones an existing message.
type DeleteData struct {
	Room      string `json:"room"`
	MessageID string `json:"messageId"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// EventMessage carries a new or edited message.
type EventMessage struct {
	ID       string `json:"messageId"`
	Room     string `json:"room"`
	User     string `json:"sender"`
	Text     string `json:"message"`
	TS       int64  `json:"timestamp"`
	EditedTS int64  `json:"editedTimestamp,omitempty"`
}

// EventMessageDeleted announces a committed tombstone.
type EventMessageDeleted struct {
	ID   string `json:"messageId"`
	Room string `json:"room"`
}

// EventRejected retracts an optimistic send or edit.
type EventRejected struct {
	ID     string `json:"messageId"`
	Room   string `json:"room"`
	Reason string `json:"reason"`
}

// EventUserJoined notifies that a user joined a room.
type EventUserJoined struct {
	Room string `json:"room"`
	User string `json:"user"`
}

// EventUserLeft notifies that a user left a room.
type EventUserLeft struct {
	Room string `json:"room"`
	User string `json:"user"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
