package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/roomcast/internal/proto"
)

type smokeOptions struct {
	addr    string
	user    string
	token   string
	room    string
	text    string
	delete  bool
	timeout time.Duration
}

func newSmokeCmd() *cobra.Command {
	opts := smokeOptions{}

	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Send one message through a running server and wait for it to come back",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			return runSmoke(ctx, cmd.OutOrStdout(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.addr, "addr", "ws://localhost:8080/ws", "WebSocket address")
	flags.StringVar(&opts.user, "user", "tester", "username to announce with hello")
	flags.StringVar(&opts.token, "token", "", "JWT to announce with hello")
	flags.StringVar(&opts.room, "room", "general", "room name")
	flags.StringVar(&opts.text, "text", "hello from smoke test", "message text to send")
	flags.BoolVar(&opts.delete, "delete", false, "delete the message after it arrives")
	flags.DurationVar(&opts.timeout, "timeout", 5*time.Second, "total timeout for the run")
	return cmd
}

func runSmoke(ctx context.Context, out io.Writer, opts smokeOptions) error {
	conn, _, err := websocket.Dial(ctx, opts.addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(typ string, data any) error {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", typ, err)
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
			return fmt.Errorf("send %s: %w", typ, err)
		}
		return nil
	}

	if err := send(proto.InboundTypeHello, proto.HelloData{User: opts.user, Token: opts.token, Protocol: proto.ProtocolVersion}); err != nil {
		return err
	}
	if err := send(proto.InboundTypeJoin, proto.JoinData{Room: opts.room}); err != nil {
		return err
	}
	if err := send(proto.InboundTypeMsg, proto.MsgData{Room: opts.room, Text: opts.text}); err != nil {
		return err
	}

	var sent string
	for {
		var frame struct {
			Type  string          `json:"type"`
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
			Error *proto.Error    `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if frame.Type == proto.OutboundTypeError && frame.Error != nil {
			return fmt.Errorf("server error %s: %s", frame.Error.Code, frame.Error.Msg)
		}

		switch frame.Event {
		case proto.EventNameUserJoined:
			var evt proto.EventUserJoined
			if err := json.Unmarshal(frame.Data, &evt); err == nil {
				fmt.Fprintf(out, "Join: room=%s user=%s\n", evt.Room, evt.User)
			}
		case proto.EventNameReceiveMessage:
			var evt proto.EventMessage
			if err := json.Unmarshal(frame.Data, &evt); err != nil {
				return fmt.Errorf("unmarshal message: %w", err)
			}
			fmt.Fprintf(out, "Message: id=%s room=%s user=%s text=%q ts=%d\n", evt.ID, evt.Room, evt.User, evt.Text, evt.TS)
			if !opts.delete {
				return nil
			}
			sent = evt.ID
			// The delete commits against the stored row, so give the send a
			// moment to land first.
			time.Sleep(200 * time.Millisecond)
			if err := send(proto.InboundTypeDelete, proto.DeleteData{Room: opts.room, MessageID: sent}); err != nil {
				return err
			}
		case proto.EventNameMessageRejected:
			var evt proto.EventRejected
			if err := json.Unmarshal(frame.Data, &evt); err == nil {
				return fmt.Errorf("message %s rejected: %s", evt.ID, evt.Reason)
			}
		case proto.EventNameMessageDeleted:
			var evt proto.EventMessageDeleted
			if err := json.Unmarshal(frame.Data, &evt); err == nil && evt.ID == sent {
				fmt.Fprintf(out, "Deleted: id=%s\n", evt.ID)
				return nil
			}
		}
	}
}
