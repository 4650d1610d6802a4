package http

import (
	"context"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/roomcast/internal/auth"
	"github.com/vovakirdan/roomcast/internal/config"
	"github.com/vovakirdan/roomcast/internal/core"
	"github.com/vovakirdan/roomcast/internal/proto"
	"github.com/vovakirdan/roomcast/internal/service/messages"
)

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := env.ts.Client().Get(env.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
}

func TestWebSocketSendBroadcastsAndPersists(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := env.dial(t, ctx)
	connB := env.dial(t, ctx)
	hello(t, ctx, connA, "alice")
	hello(t, ctx, connB, "bob")

	join(t, ctx, connA, "general")
	var joined proto.EventUserJoined
	readEvent(t, ctx, connA, proto.EventNameUserJoined, &joined)
	require.Equal(t, "alice", joined.User)

	join(t, ctx, connB, "general")
	readEvent(t, ctx, connA, proto.EventNameUserJoined, &joined)
	require.Equal(t, "bob", joined.User)

	send(t, ctx, connA, proto.InboundTypeMsg, proto.MsgData{Room: "general", Text: "hi there"})

	var msg proto.EventMessage
	readEvent(t, ctx, connB, proto.EventNameReceiveMessage, &msg)
	require.Equal(t, "alice", msg.User)
	require.Equal(t, "hi there", msg.Text)
	require.Equal(t, "general", msg.Room)
	require.NotEmpty(t, msg.ID)

	require.Eventually(t, func() bool {
		var history []MessageResponse
		status := env.getJSON(t, "/api/rooms/general/messages", "", &history)
		return status == 200 && len(history) == 1 && history[0].ID == msg.ID
	}, 2*time.Second, 10*time.Millisecond, "history must hold the broadcast id")
}

func TestWebSocketRejectedSendIsRetracted(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(t, ctx)
	hello(t, ctx, conn, "alice")
	join(t, ctx, conn, "general")
	readEvent(t, ctx, conn, proto.EventNameUserJoined, nil)

	send(t, ctx, conn, proto.InboundTypeMsg, proto.MsgData{Room: "general", Text: "   "})

	var msg proto.EventMessage
	readEvent(t, ctx, conn, proto.EventNameReceiveMessage, &msg)
	var rej proto.EventRejected
	readEvent(t, ctx, conn, proto.EventNameMessageRejected, &rej)
	require.Equal(t, msg.ID, rej.ID)
	require.Equal(t, messages.ReasonEmptyBody, rej.Reason)
}

func TestWebSocketDeleteOnlyAnnouncedWhenCommitted(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := env.dial(t, ctx)
	connB := env.dial(t, ctx)
	hello(t, ctx, connA, "alice")
	hello(t, ctx, connB, "bob")
	join(t, ctx, connA, "general")
	readEvent(t, ctx, connA, proto.EventNameUserJoined, nil)
	join(t, ctx, connB, "general")
	readEvent(t, ctx, connA, proto.EventNameUserJoined, nil)

	send(t, ctx, connA, proto.InboundTypeMsg, proto.MsgData{Room: "general", Text: "mine"})
	var msg proto.EventMessage
	readEvent(t, ctx, connB, proto.EventNameReceiveMessage, &msg)
	require.Eventually(t, func() bool {
		var history []MessageResponse
		return env.getJSON(t, "/api/rooms/general/messages", "", &history) == 200 && len(history) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Bob is not the author: the delete fails and nobody hears about it.
	send(t, ctx, connB, proto.InboundTypeDelete, proto.DeleteData{Room: "general", MessageID: msg.ID})

	send(t, ctx, connA, proto.InboundTypeDelete, proto.DeleteData{Room: "general", MessageID: msg.ID})
	var deleted proto.EventMessageDeleted
	readEvent(t, ctx, connB, proto.EventNameMessageDeleted, &deleted)
	require.Equal(t, msg.ID, deleted.ID)

	send(t, ctx, connA, proto.InboundTypeMsg, proto.MsgData{Room: "general", Text: "marker"})
	frame := readFrame(t, ctx, connB)
	require.Equal(t, proto.EventNameReceiveMessage, frame.Event, "exactly one MessageDeleted is delivered")

	var history []MessageResponse
	require.Equal(t, 200, env.getJSON(t, "/api/rooms/general/messages", "", &history))
	require.True(t, history[0].Deleted)
	require.Empty(t, history[0].Text)
}

func TestWebSocketEditBroadcastsBeforeCommit(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(t, ctx)
	hello(t, ctx, conn, "alice")
	join(t, ctx, conn, "general")
	readEvent(t, ctx, conn, proto.EventNameUserJoined, nil)

	send(t, ctx, conn, proto.InboundTypeEdit, proto.EditData{Room: "general", MessageID: "missing", Text: "changed"})

	var edited proto.EventMessage
	readEvent(t, ctx, conn, proto.EventNameMessageEdited, &edited)
	require.Equal(t, "missing", edited.ID)
	require.Equal(t, "changed", edited.Text)
}

func TestWebSocketEditRejectedWhenCompensating(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.CompensateEdits = true })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(t, ctx)
	hello(t, ctx, conn, "alice")
	join(t, ctx, conn, "general")
	readEvent(t, ctx, conn, proto.EventNameUserJoined, nil)

	send(t, ctx, conn, proto.InboundTypeEdit, proto.EditData{Room: "general", MessageID: "missing", Text: "changed"})
	var rej proto.EventRejected
	readEvent(t, ctx, conn, proto.EventNameEditRejected, &rej)
	require.Equal(t, messages.ReasonNotFound, rej.Reason)
}

func TestWebSocketRequiresMembership(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(t, ctx)
	hello(t, ctx, conn, "alice")
	send(t, ctx, conn, proto.InboundTypeMsg, proto.MsgData{Room: "general", Text: "hi"})

	perr := readError(t, ctx, conn)
	require.Equal(t, core.ErrCodeBadRequest, perr.Code)
}

func TestWebSocketRejectsMalformedInbound(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(t, ctx)
	send(t, ctx, conn, "shout", map[string]string{"room": "general"})
	require.Equal(t, core.ErrCodeBadRequest, readError(t, ctx, conn).Code)

	send(t, ctx, conn, proto.InboundTypeJoin, proto.JoinData{})
	require.Equal(t, core.ErrCodeBadRequest, readError(t, ctx, conn).Code)
}

func TestProtocolVersionMismatch(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn := env.dial(t, ctx)
	send(t, ctx, conn, proto.InboundTypeHello, proto.HelloData{User: "alice", Protocol: proto.ProtocolVersion + 1})

	require.Equal(t, core.ErrCodeUnsupportedVersion, readError(t, ctx, conn).Code)
}

func TestAnonymousIdentityWithoutHello(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn := env.dial(t, ctx)
	join(t, ctx, conn, "general")

	var joined proto.EventUserJoined
	readEvent(t, ctx, conn, proto.EventNameUserJoined, &joined)
	require.Equal(t, core.AnonymousIdentity, joined.User)
}

func TestHelloBindsIdentityOnce(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := env.dial(t, ctx)
	hello(t, ctx, connA, "alice")
	join(t, ctx, connA, "general")
	readEvent(t, ctx, connA, proto.EventNameUserJoined, nil)

	hello(t, ctx, connA, "mallory")
	require.Equal(t, core.ErrCodeBadRequest, readError(t, ctx, connA).Code)

	connB := env.dial(t, ctx)
	join(t, ctx, connB, "general")
	var joined proto.EventUserJoined
	readEvent(t, ctx, connB, proto.EventNameUserJoined, &joined)
	require.Equal(t, core.AnonymousIdentity, joined.User)

	hello(t, ctx, connB, "bob")
	require.Equal(t, core.ErrCodeBadRequest, readError(t, ctx, connB).Code)

	send(t, ctx, connA, proto.InboundTypeMsg, proto.MsgData{Room: "general", Text: "still me"})
	var msg proto.EventMessage
	readEvent(t, ctx, connB, proto.EventNameReceiveMessage, &msg)
	require.Equal(t, "alice", msg.User)

	var online struct {
		Users []string `json:"users"`
	}
	require.Equal(t, 200, env.getJSON(t, "/api/rooms/general/presence", "", &online))
	require.ElementsMatch(t, []string{"alice", core.AnonymousIdentity}, online.Users)
}

func TestWebSocketJWT(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.JWTRequired = true })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(t, ctx)

	join(t, ctx, conn, "general")
	require.Equal(t, core.ErrCodeUnauthorized, readError(t, ctx, conn).Code)

	send(t, ctx, conn, proto.InboundTypeHello, proto.HelloData{User: "mallory"})
	require.Equal(t, core.ErrCodeUnauthorized, readError(t, ctx, conn).Code)

	send(t, ctx, conn, proto.InboundTypeHello, proto.HelloData{Token: "invalid"})
	require.Equal(t, core.ErrCodeUnauthorized, readError(t, ctx, conn).Code)

	token, err := auth.GenerateToken(&auth.JWTConfig{
		Secret:   []byte(testSecret),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Minute,
	}, 7, "alice", false)
	require.NoError(t, err)

	send(t, ctx, conn, proto.InboundTypeHello, proto.HelloData{User: "ignored", Token: token})
	join(t, ctx, conn, "general")
	var joined proto.EventUserJoined
	readEvent(t, ctx, conn, proto.EventNameUserJoined, &joined)
	require.Equal(t, "alice", joined.User)
}

func TestDisconnectAnnouncesLeave(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := env.dial(t, ctx)
	connB := env.dial(t, ctx)
	hello(t, ctx, connA, "alice")
	hello(t, ctx, connB, "bob")
	join(t, ctx, connA, "general")
	readEvent(t, ctx, connA, proto.EventNameUserJoined, nil)
	join(t, ctx, connB, "general")
	readEvent(t, ctx, connA, proto.EventNameUserJoined, nil)

	require.NoError(t, connB.Close(websocket.StatusNormalClosure, "bye"))

	var left proto.EventUserLeft
	readEvent(t, ctx, connA, proto.EventNameUserLeft, &left)
	require.Equal(t, "bob", left.User)
	require.Equal(t, "general", left.Room)
}
