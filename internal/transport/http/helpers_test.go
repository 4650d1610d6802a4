package http

import (
	"bytes"
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/roomcast/internal/auth"
	"github.com/vovakirdan/roomcast/internal/config"
	"github.com/vovakirdan/roomcast/internal/core"
	"github.com/vovakirdan/roomcast/internal/presence"
	"github.com/vovakirdan/roomcast/internal/proto"
	"github.com/vovakirdan/roomcast/internal/service/messages"
	"github.com/vovakirdan/roomcast/internal/store/sqlite"
)

const testSecret = "test-secret"

type testEnv struct {
	ts    *httptest.Server
	coord *core.Coordinator
	auth  *auth.Service
	cfg   config.Config
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.JWTSecret = testSecret
	cfg.JWTIssuer = "test"
	cfg.JWTAudience = "test"
	if mutate != nil {
		mutate(&cfg)
	}

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	})
	msgs := messages.New(st, cfg.MaxBodyRunes)
	conns := core.NewConnections()
	tracker := presence.NewLocal()
	coord := core.NewCoordinator(core.CoordinatorConfig{
		Transport:       conns,
		Identities:      conns,
		Processor:       msgs,
		Presence:        tracker,
		CommitTimeout:   cfg.CommitTimeout,
		CompensateEdits: cfg.CompensateEdits,
	})

	router := NewRouter(Deps{
		Coordinator: coord,
		Connections: conns,
		Auth:        authService,
		Messages:    msgs,
		Users:       st,
		Presence:    tracker,
	}, &cfg, nil)

	ts := httptest.NewServer(router)
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = coord.Drain(ctx)
		_ = st.Close()
	})

	return &testEnv{ts: ts, coord: coord, auth: authService, cfg: cfg}
}

func (e *testEnv) dial(t *testing.T, ctx context.Context) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func (e *testEnv) getJSON(t *testing.T, path, token string, out any) int {
	t.Helper()

	req, err := stdhttp.NewRequest(stdhttp.MethodGet, e.ts.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == stdhttp.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (e *testEnv) postJSON(t *testing.T, path string, body any, out any) int {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := e.ts.Client().Post(e.ts.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}))
}

// received is an outbound frame with the data kept raw.
type received struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn) received {
	t.Helper()

	var frame received
	require.NoError(t, wsjson.Read(ctx, conn, &frame))
	return frame
}

// readEvent skips frames until the named event arrives.
func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, event string, out any) {
	t.Helper()

	for {
		frame := readFrame(t, ctx, conn)
		if frame.Type == proto.OutboundTypeEvent && frame.Event == event {
			if out != nil {
				require.NoError(t, json.Unmarshal(frame.Data, out))
			}
			return
		}
	}
}

// readError skips events until an error frame arrives.
func readError(t *testing.T, ctx context.Context, conn *websocket.Conn) *proto.Error {
	t.Helper()

	for {
		frame := readFrame(t, ctx, conn)
		if frame.Type == proto.OutboundTypeError {
			require.NotNil(t, frame.Error)
			return frame.Error
		}
	}
}

func hello(t *testing.T, ctx context.Context, conn *websocket.Conn, user string) {
	t.Helper()
	send(t, ctx, conn, proto.InboundTypeHello, proto.HelloData{User: user, Protocol: proto.ProtocolVersion})
}

func join(t *testing.T, ctx context.Context, conn *websocket.Conn, room string) {
	t.Helper()
	send(t, ctx, conn, proto.InboundTypeJoin, proto.JoinData{Room: room})
}
