package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventReceiveMessage announces a new chat message in a room.
	EventReceiveMessage EventKind = iota
	// EventMessageEdited announces replaced message content.
	EventMessageEdited
	// EventMessageDeleted announces a tombstoned message.
	EventMessageDeleted
	// EventMessageRejected retracts a message the store refused to commit.
	EventMessageRejected
	// EventEditRejected retracts an edit the store refused to commit.
	EventEditRejected
	// EventUserJoined notifies clients about a user joining a room.
	EventUserJoined
	// EventUserLeft notifies clients about a user leaving a room.
	EventUserLeft
	// EventError notifies a single client about a domain error.
	EventError
)

var eventNames = [...]string{
	EventReceiveMessage:  "ReceiveMessage",
	EventMessageEdited:   "MessageEdited",
	EventMessageDeleted:  "MessageDeleted",
	EventMessageRejected: "MessageRejected",
	EventEditRejected:    "EditRejected",
	EventUserJoined:      "UserJoined",
	EventUserLeft:        "UserLeft",
	EventError:           "Error",
}

// String returns the wire name of the event.
func (k EventKind) String() string {
	if k < 0 || int(k) >= len(eventNames) {
		return "Unknown"
	}
	return eventNames[k]
}

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind    EventKind
	Room    string
	User    string
	Message Message
	Reason  string
	Error   *CoreError
}
