package messages

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/vovakirdan/roomcast/internal/core"
	"github.com/vovakirdan/roomcast/internal/store"
)

// DefaultMaxBodyRunes caps message bodies when no limit is configured.
const DefaultMaxBodyRunes = 4000

// Validation reasons returned in core.Result.
const (
	ReasonEmptyBody   = "message body is empty"
	ReasonBodyTooLong = "message body is too long"
	ReasonDuplicateID = "duplicate message id"
	ReasonNotFound    = "message not found"
	ReasonDeleted     = "message already deleted"
	ReasonNotAuthor   = "only the author can change a message"
	ReasonWrongRoom   = "message belongs to another room"
	ReasonUnknownKind = "unknown action"
)

// Service applies chat actions against the message store.
// It implements core.CommandProcessor.
type Service struct {
	store        store.MessageStore
	maxBodyRunes int
}

// New creates a message command processor.
func New(st store.MessageStore, maxBodyRunes int) *Service {
	if maxBodyRunes <= 0 {
		maxBodyRunes = DefaultMaxBodyRunes
	}
	return &Service{store: st, maxBodyRunes: maxBodyRunes}
}

// Apply validates and commits the action. Expected validation failures are
// reported in the result; only storage faults return an error.
func (s *Service) Apply(ctx context.Context, act core.Action) (core.Result, error) {
	switch act.Kind {
	case core.ActionSend:
		return s.send(ctx, act)
	case core.ActionEdit:
		return s.edit(ctx, act)
	case core.ActionDelete:
		return s.delete(ctx, act)
	default:
		return core.Rejected(ReasonUnknownKind), nil
	}
}

func (s *Service) checkBody(body string) (string, bool) {
	if strings.TrimSpace(body) == "" {
		return ReasonEmptyBody, false
	}
	if utf8.RuneCountInString(body) > s.maxBodyRunes {
		return ReasonBodyTooLong, false
	}
	return "", true
}

func (s *Service) send(ctx context.Context, act core.Action) (core.Result, error) {
	if reason, ok := s.checkBody(act.Body); !ok {
		return core.Rejected(reason), nil
	}

	msg := &store.Message{
		ID:        act.MessageID,
		Room:      act.Room,
		Sender:    act.Actor,
		Body:      act.Body,
		CreatedAt: act.At,
	}
	if err := s.store.InsertMessage(ctx, msg); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return core.Rejected(ReasonDuplicateID), nil
		}
		return core.Result{}, fmt.Errorf("insert message: %w", err)
	}
	return core.Committed(toCore(msg)), nil
}

// authorize loads the target and checks it may be changed by the actor.
func (s *Service) authorize(ctx context.Context, act core.Action) (string, error) {
	msg, err := s.store.GetMessage(ctx, act.MessageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ReasonNotFound, nil
		}
		return "", fmt.Errorf("load message: %w", err)
	}
	switch {
	case msg.Room != act.Room:
		return ReasonWrongRoom, nil
	case msg.Deleted():
		return ReasonDeleted, nil
	case msg.Sender != act.Actor:
		return ReasonNotAuthor, nil
	}
	return "", nil
}

func (s *Service) edit(ctx context.Context, act core.Action) (core.Result, error) {
	if reason, ok := s.checkBody(act.Body); !ok {
		return core.Rejected(reason), nil
	}
	if reason, err := s.authorize(ctx, act); err != nil || reason != "" {
		return core.Rejected(reason), err
	}

	msg, err := s.store.UpdateMessageBody(ctx, act.MessageID, act.Body, act.At)
	return s.mutation(msg, err)
}

func (s *Service) delete(ctx context.Context, act core.Action) (core.Result, error) {
	if reason, err := s.authorize(ctx, act); err != nil || reason != "" {
		return core.Rejected(reason), err
	}

	msg, err := s.store.TombstoneMessage(ctx, act.MessageID, act.At)
	return s.mutation(msg, err)
}

// mutation maps store errors that can still race past authorize.
func (s *Service) mutation(msg *store.Message, err error) (core.Result, error) {
	switch {
	case err == nil:
		return core.Committed(toCore(msg)), nil
	case errors.Is(err, store.ErrDeleted):
		return core.Rejected(ReasonDeleted), nil
	case errors.Is(err, store.ErrNotFound):
		return core.Rejected(ReasonNotFound), nil
	default:
		return core.Result{}, fmt.Errorf("update message: %w", err)
	}
}

// History returns up to limit messages of a room, oldest first.
func (s *Service) History(ctx context.Context, room string, limit int, beforeID string) ([]core.Message, error) {
	msgs, err := s.store.ListMessages(ctx, room, limit, beforeID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	out := make([]core.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toCore(m))
	}
	return out, nil
}

func toCore(m *store.Message) core.Message {
	out := core.Message{
		ID:        m.ID,
		Room:      m.Room,
		From:      m.Sender,
		Text:      m.Body,
		CreatedAt: m.CreatedAt,
		Deleted:   m.Deleted(),
	}
	if m.EditedAt != nil {
		out.EditedAt = *m.EditedAt
	}
	if out.Deleted {
		out.Text = ""
	}
	return out
}

var _ core.CommandProcessor = (*Service)(nil)
