package core

import (
	"context"
	"time"
)

// ActionKind identifies a mutating client action.
type ActionKind int

const (
	// ActionSend creates a new message.
	ActionSend ActionKind = iota
	// ActionEdit replaces the body of an existing message.
	ActionEdit
	// ActionDelete tombstones an existing message.
	ActionDelete
)

func (k ActionKind) String() string {
	switch k {
	case ActionSend:
		return "send"
	case ActionEdit:
		return "edit"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Action is the unit of work submitted to the coordinator and the command processor.
type Action struct {
	Kind      ActionKind
	Room      string
	MessageID string
	Body      string
	Actor     string
	ConnID    string
	At        time.Time
}

// Result is the outcome of applying an action against durable state.
// OK=false is an expected validation failure and Reason says why.
type Result struct {
	OK     bool
	Reason string
	Record Message
}

// Rejected builds a validation failure result.
func Rejected(reason string) Result {
	return Result{Reason: reason}
}

// Committed builds a success result carrying the canonical record.
func Committed(record Message) Result {
	return Result{OK: true, Record: record}
}

// CommandProcessor validates and commits actions.
//
// Apply returns a non-nil error only for infrastructure faults; validation
// failures come back as a Result with OK=false.
type CommandProcessor interface {
	Apply(ctx context.Context, act Action) (Result, error)
}

// Ordering decides which path of an action runs first.
type Ordering int

const (
	// BroadcastFirst announces optimistically, then commits in the background.
	BroadcastFirst Ordering = iota
	// CommitFirst commits in the background and announces only on success.
	CommitFirst
)

// policy is the per-kind orchestration contract.
type policy struct {
	ordering Ordering
	announce func(act Action) *Event
	// compensate is nil when a failed commit is only logged.
	compensate func(act Action, reason string) *Event
}

func announceSend(act Action) *Event {
	return &Event{
		Kind: EventReceiveMessage,
		Room: act.Room,
		User: act.Actor,
		Message: Message{
			ID:        act.MessageID,
			Room:      act.Room,
			From:      act.Actor,
			Text:      act.Body,
			CreatedAt: act.At,
		},
	}
}

func announceEdit(act Action) *Event {
	return &Event{
		Kind: EventMessageEdited,
		Room: act.Room,
		User: act.Actor,
		Message: Message{
			ID:       act.MessageID,
			Room:     act.Room,
			From:     act.Actor,
			Text:     act.Body,
			EditedAt: act.At,
		},
	}
}

func announceDelete(act Action) *Event {
	return &Event{
		Kind:    EventMessageDeleted,
		Room:    act.Room,
		User:    act.Actor,
		Message: Message{ID: act.MessageID, Room: act.Room, Deleted: true},
	}
}

func retract(kind EventKind) func(Action, string) *Event {
	return func(act Action, reason string) *Event {
		return &Event{
			Kind:    kind,
			Room:    act.Room,
			User:    act.Actor,
			Message: Message{ID: act.MessageID, Room: act.Room},
			Reason:  reason,
		}
	}
}

func policies(compensateEdits bool) map[ActionKind]policy {
	edit := policy{ordering: BroadcastFirst, announce: announceEdit}
	if compensateEdits {
		edit.compensate = retract(EventEditRejected)
	}
	return map[ActionKind]policy{
		ActionSend:   {ordering: BroadcastFirst, announce: announceSend, compensate: retract(EventMessageRejected)},
		ActionEdit:   edit,
		ActionDelete: {ordering: CommitFirst, announce: announceDelete},
	}
}
