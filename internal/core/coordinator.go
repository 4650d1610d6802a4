package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomcast/internal/observability"
)

const (
	presenceTimeout = 2 * time.Second
	auditTimeout    = 5 * time.Second
)

// PresenceTracker mirrors room presence outside the process.
type PresenceTracker interface {
	Add(ctx context.Context, room, identity string) error
	Remove(ctx context.Context, room, identity string) error
}

// OutcomeSink receives a record of every settled action.
type OutcomeSink interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// OutcomeRecord is what the coordinator publishes to the OutcomeSink.
type OutcomeRecord struct {
	Kind      string    `json:"kind"`
	State     string    `json:"state"`
	Room      string    `json:"room"`
	MessageID string    `json:"message_id"`
	Actor     string    `json:"actor"`
	Reason    string    `json:"reason,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// CoordinatorConfig wires a Coordinator to its collaborators.
type CoordinatorConfig struct {
	Registry   *Registry
	Transport  Transport
	Identities IdentityResolver
	Processor  CommandProcessor
	Presence   PresenceTracker
	Outcomes   OutcomeSink

	// CommitTimeout bounds each commit; zero means unbounded.
	CommitTimeout time.Duration
	// CompensateEdits broadcasts EditRejected when an edit fails to commit.
	// Off by default: the optimistic edit stays visible.
	CompensateEdits bool

	Logger *zerolog.Logger
	// NewID and Now are overridable for tests.
	NewID func() string
	Now   func() time.Time
}

// Coordinator orders optimistic broadcasts against durable commits.
type Coordinator struct {
	registry   *Registry
	fanout     *Broadcaster
	identities IdentityResolver
	processor  CommandProcessor
	presence   PresenceTracker
	outcomes   OutcomeSink
	policies   map[ActionKind]policy
	tasks      taskGroup

	commitTimeout time.Duration
	newID         func() string
	now           func() time.Time
	log           *zerolog.Logger
}

// NewCoordinator creates a coordinator from cfg.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	newID := cfg.NewID
	if newID == nil {
		newID = newMessageID
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		registry:      registry,
		fanout:        NewBroadcaster(registry, cfg.Transport, logger),
		identities:    cfg.Identities,
		processor:     cfg.Processor,
		presence:      cfg.Presence,
		outcomes:      cfg.Outcomes,
		policies:      policies(cfg.CompensateEdits),
		commitTimeout: cfg.CommitTimeout,
		newID:         newID,
		now:           now,
		log:           logger,
	}
}

func newMessageID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// Registry exposes the membership registry.
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// Pending returns the number of commits still in flight.
func (c *Coordinator) Pending() int64 {
	return c.tasks.Pending()
}

// SendMessage announces a new message and commits it in the background.
// The message id and timestamp are fixed here and shared by both paths.
func (c *Coordinator) SendMessage(connID, room, body string) (*Task, error) {
	return c.dispatch(Action{
		Kind:      ActionSend,
		Room:      room,
		MessageID: c.newID(),
		Body:      body,
		Actor:     c.resolve(connID),
		ConnID:    connID,
		At:        c.now().UTC(),
	})
}

// EditMessage announces new content and commits it in the background.
func (c *Coordinator) EditMessage(connID, room, messageID, body string) (*Task, error) {
	return c.dispatch(Action{
		Kind:      ActionEdit,
		Room:      room,
		MessageID: messageID,
		Body:      body,
		Actor:     c.resolve(connID),
		ConnID:    connID,
		At:        c.now().UTC(),
	})
}

// DeleteMessage commits a tombstone and announces it only on success.
func (c *Coordinator) DeleteMessage(connID, room, messageID string) (*Task, error) {
	return c.dispatch(Action{
		Kind:      ActionDelete,
		Room:      room,
		MessageID: messageID,
		Actor:     c.resolve(connID),
		ConnID:    connID,
		At:        c.now().UTC(),
	})
}

func (c *Coordinator) dispatch(act Action) (*Task, error) {
	p, ok := c.policies[act.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown action kind %d", act.Kind)
	}
	task := newTask(act)

	var before func()
	if p.ordering == BroadcastFirst {
		before = func() {
			c.fanout.Publish(act.Room, p.announce(act))
			task.advance(StateBroadcasted)
		}
	}

	err := c.tasks.Go(before, func() {
		observability.IncTasksInFlight()
		defer observability.DecTasksInFlight()
		c.run(task, p)
	})
	if err != nil {
		c.log.Warn().Err(err).Str("kind", act.Kind.String()).Str("room", act.Room).Msg("action refused")
		return nil, err
	}
	return task, nil
}

func (c *Coordinator) run(task *Task, p policy) {
	act := task.Action
	task.advance(StateCommitting)

	started := time.Now()
	res, err := c.commit(act)
	observability.ObserveCommit(act.Kind.String(), commitLabel(res, err), time.Since(started))

	out := Outcome{Result: res, Err: err}
	reason := res.Reason
	if err != nil {
		reason = "storage unavailable"
	}

	switch {
	case err == nil && res.OK:
		if p.ordering == CommitFirst {
			c.fanout.Publish(act.Room, p.announce(act))
			task.advance(StateBroadcasted)
		}
		out.State = StateConfirmed
	case p.ordering == BroadcastFirst && p.compensate != nil:
		c.fanout.Publish(act.Room, p.compensate(act, reason))
		observability.IncCompensation(act.Kind.String())
		out.State = StateCompensationSent
	default:
		out.State = StateRejected
	}

	c.logOutcome(act, out)
	task.settle(out)
	c.publishOutcome(act, out)
}

func (c *Coordinator) commit(act Action) (res Result, err error) {
	ctx := context.Background()
	if c.commitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.commitTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			res = Result{}
			err = fmt.Errorf("%w: %v", ErrCommitPanic, r)
		}
	}()
	return c.processor.Apply(ctx, act)
}

func commitLabel(res Result, err error) string {
	switch {
	case err != nil:
		return "error"
	case res.OK:
		return "ok"
	default:
		return "rejected"
	}
}

func (c *Coordinator) logOutcome(act Action, out Outcome) {
	var ev *zerolog.Event
	switch {
	case out.Err != nil:
		ev = c.log.Error().Err(out.Err)
	case out.State == StateConfirmed:
		ev = c.log.Debug()
	default:
		ev = c.log.Warn().Str("reason", out.Result.Reason)
	}
	ev = ev.Str("kind", act.Kind.String()).
		Str("room", act.Room).
		Str("message_id", act.MessageID).
		Str("actor", act.Actor).
		Str("state", out.State.String())
	if act.Kind == ActionEdit && out.State == StateRejected {
		ev = ev.Bool("stale_broadcast", true)
	}
	ev.Msg("action settled")
}

func (c *Coordinator) publishOutcome(act Action, out Outcome) {
	if c.outcomes == nil {
		return
	}
	rec := OutcomeRecord{
		Kind:      act.Kind.String(),
		State:     out.State.String(),
		Room:      act.Room,
		MessageID: act.MessageID,
		Actor:     act.Actor,
		Reason:    out.Result.Reason,
		At:        c.now().UTC(),
	}
	if out.Err != nil {
		rec.Error = out.Err.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()
	routingKey := "messages." + rec.Kind + "." + rec.State
	if err := c.outcomes.Publish(ctx, routingKey, rec); err != nil {
		c.log.Warn().Err(err).Str("routing_key", routingKey).Msg("publish outcome")
	}
}

// JoinRoom adds the connection to the room and announces it. Failures are
// logged and never surface to the transport.
func (c *Coordinator) JoinRoom(connID, room string) {
	defer c.recoverPresence("join", connID, room)

	identity := c.resolve(connID)
	if !c.registry.Join(connID, room, identity) {
		c.log.Debug().Str("conn_id", connID).Str("room", room).Msg("already in room")
		return
	}
	c.fanout.Publish(room, &Event{Kind: EventUserJoined, Room: room, User: identity})
	c.mirror(room, identity, true)
	c.log.Info().Str("conn_id", connID).Str("room", room).Str("user", identity).Msg("joined room")
}

// LeaveRoom removes the connection from the room and announces it.
func (c *Coordinator) LeaveRoom(connID, room string) {
	defer c.recoverPresence("leave", connID, room)

	identity, ok := c.registry.Leave(connID, room)
	if !ok {
		c.log.Debug().Str("conn_id", connID).Str("room", room).Msg("not in room")
		return
	}
	c.fanout.Publish(room, &Event{Kind: EventUserLeft, Room: room, User: identity})
	c.mirror(room, identity, false)
	c.log.Info().Str("conn_id", connID).Str("room", room).Str("user", identity).Msg("left room")
}

// Disconnected drops the connection from every room it was in. Each UserLeft
// names the identity that room was joined under.
func (c *Coordinator) Disconnected(connID string) {
	defer c.recoverPresence("disconnect", connID, "")

	left := c.registry.Drop(connID)
	rooms := make([]string, 0, len(left))
	for _, m := range left {
		c.fanout.Publish(m.Room, &Event{Kind: EventUserLeft, Room: m.Room, User: m.Identity})
		c.mirror(m.Room, m.Identity, false)
		rooms = append(rooms, m.Room)
	}
	c.log.Debug().Str("conn_id", connID).Strs("rooms", rooms).Msg("connection cleaned up")
}

// Drain stops accepting actions and waits for in-flight commits.
func (c *Coordinator) Drain(ctx context.Context) error {
	c.log.Info().Int64("pending", c.tasks.Pending()).Msg("draining commits")
	recovered, err := c.tasks.Drain(ctx)
	if recovered != nil {
		c.log.Error().Interface("panic", recovered).Msg("commit task panicked")
	}
	if err != nil {
		return fmt.Errorf("drain commits: %w", err)
	}
	return nil
}

func (c *Coordinator) resolve(connID string) string {
	if c.identities == nil {
		return AnonymousIdentity
	}
	if id := c.identities.Resolve(connID); id != "" {
		return id
	}
	return AnonymousIdentity
}

func (c *Coordinator) mirror(room, identity string, joined bool) {
	if c.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()

	var err error
	if joined {
		err = c.presence.Add(ctx, room, identity)
	} else {
		err = c.presence.Remove(ctx, room, identity)
	}
	if err != nil {
		c.log.Warn().Err(err).Str("room", room).Str("user", identity).Msg("presence mirror failed")
	}
}

func (c *Coordinator) recoverPresence(op, connID, room string) {
	if r := recover(); r != nil {
		c.log.Error().Interface("panic", r).Str("op", op).Str("conn_id", connID).Str("room", room).Msg("presence update failed")
	}
}
