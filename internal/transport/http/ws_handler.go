package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomcast/internal/auth"
	"github.com/vovakirdan/roomcast/internal/config"
	"github.com/vovakirdan/roomcast/internal/core"
	"github.com/vovakirdan/roomcast/internal/observability"
	"github.com/vovakirdan/roomcast/internal/proto"
)

// WSHandler upgrades HTTP connections and bridges them to the coordinator.
type WSHandler struct {
	coord *core.Coordinator
	conns *core.Connections
	auth  *auth.Service
	cfg   *config.Config
	log   *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler. authService may be nil when
// tokens are not in use.
func NewWSHandler(coord *core.Coordinator, conns *core.Connections, authService *auth.Service, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{coord: coord, conns: conns, auth: authService, cfg: cfg, log: logger}
}

// session is the per-connection state owned by the read loop.
type session struct {
	client  *core.Client
	hello   bool
	limiter *rateLimiter
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	client := core.NewClient(uuid.NewString(), "", h.cfg.EventBuffer)
	h.conns.Connect(client)
	observability.IncWSActive()
	defer func() {
		// Rooms are dropped while the identity still resolves.
		h.coord.Disconnected(client.ID)
		h.conns.Disconnect(client.ID)
		observability.DecWSActive()
	}()
	h.log.Debug().Str("conn_id", client.ID).Msg("ws connected")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sess := &session{client: client, limiter: newRateLimiter(h.cfg.RateLimit)}

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, sess)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, sess *session) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		if !sess.limiter.allow() {
			h.reply(sess.client, core.ErrCodeRateLimited, "too many requests")
			continue
		}

		if inbound.Type == proto.InboundTypeHello {
			h.handleHello(sess, inbound.Data)
			continue
		}
		if h.cfg.JWTRequired && !sess.hello {
			h.reply(sess.client, core.ErrCodeUnauthorized, "hello with token required")
			continue
		}

		req, protoErr := inboundToOp(inbound)
		if protoErr != nil {
			h.log.Debug().Str("conn_id", sess.client.ID).Str("type", inbound.Type).Str("error", protoErr.Msg).Msg("rejected inbound")
			h.reply(sess.client, protoErr.Code, protoErr.Msg)
			continue
		}
		h.dispatch(sess.client, req)
	}
}

func (h *WSHandler) handleHello(sess *session, raw json.RawMessage) {
	// Memberships carry the identity they were joined under, so it is fixed
	// once the connection introduced itself or entered a room.
	if sess.hello || len(h.coord.Registry().RoomsOf(sess.client.ID)) > 0 {
		h.reply(sess.client, core.ErrCodeBadRequest, "identity already bound")
		return
	}

	var hello proto.HelloData
	if err := json.Unmarshal(raw, &hello); err != nil {
		h.reply(sess.client, core.ErrCodeBadRequest, "invalid hello payload")
		return
	}
	if hello.Protocol != 0 && hello.Protocol != proto.ProtocolVersion {
		h.reply(sess.client, core.ErrCodeUnsupportedVersion, "unsupported protocol version")
		return
	}

	name := hello.User
	switch {
	case hello.Token != "":
		if h.auth == nil {
			h.reply(sess.client, core.ErrCodeUnauthorized, "tokens are not accepted")
			return
		}
		identity, err := h.auth.Identity(hello.Token)
		if err != nil {
			h.log.Debug().Err(err).Str("conn_id", sess.client.ID).Msg("invalid token")
			h.reply(sess.client, core.ErrCodeUnauthorized, "invalid token")
			return
		}
		name = identity
	case h.cfg.JWTRequired:
		h.reply(sess.client, core.ErrCodeUnauthorized, "token required")
		return
	}

	sess.client.SetName(name)
	sess.hello = true
	h.log.Debug().Str("conn_id", sess.client.ID).Str("user", name).Msg("hello")
}

func (h *WSHandler) dispatch(client *core.Client, req *op) {
	switch req.kind {
	case opJoin:
		h.coord.JoinRoom(client.ID, req.room)
		return
	case opLeave:
		h.coord.LeaveRoom(client.ID, req.room)
		return
	}

	if !h.coord.Registry().IsMember(client.ID, req.room) {
		h.reply(client, core.ErrCodeBadRequest, "join the room first")
		return
	}

	var err error
	switch req.kind {
	case opSend:
		_, err = h.coord.SendMessage(client.ID, req.room, req.text)
	case opEdit:
		_, err = h.coord.EditMessage(client.ID, req.room, req.messageID, req.text)
	case opDelete:
		_, err = h.coord.DeleteMessage(client.ID, req.room, req.messageID)
	}
	if errors.Is(err, core.ErrDraining) {
		h.reply(client, core.ErrCodeUnavailable, "server is shutting down")
	} else if err != nil {
		h.log.Error().Err(err).Str("conn_id", client.ID).Msg("dispatch failed")
		h.reply(client, core.ErrCodeBadRequest, "request not accepted")
	}
}

// reply queues an error for the connection behind any pending events.
func (h *WSHandler) reply(client *core.Client, code, msg string) {
	if err := h.conns.SendToConnection(client.ID, core.ErrorEvent(code, msg)); err != nil {
		h.log.Debug().Err(err).Str("conn_id", client.ID).Str("code", code).Msg("error reply dropped")
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event := <-client.Events:
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("conn_id", client.ID).Msg("write ws event")
				return err
			}
		case <-client.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
