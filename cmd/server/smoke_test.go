package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/roomcast/internal/config"
	"github.com/vovakirdan/roomcast/internal/core"
	"github.com/vovakirdan/roomcast/internal/presence"
	"github.com/vovakirdan/roomcast/internal/service/messages"
	"github.com/vovakirdan/roomcast/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/roomcast/internal/transport/http"
)

func startServer(t *testing.T) string {
	t.Helper()

	st, err := sqlite.New(filepath.Join(t.TempDir(), "smoke.db"))
	require.NoError(t, err)

	cfg := config.Default()
	msgs := messages.New(st, cfg.MaxBodyRunes)
	conns := core.NewConnections()
	coord := core.NewCoordinator(core.CoordinatorConfig{
		Transport:     conns,
		Identities:    conns,
		Processor:     msgs,
		CommitTimeout: cfg.CommitTimeout,
	})
	nop := zerolog.Nop()
	router := transporthttp.NewRouter(transporthttp.Deps{
		Coordinator: coord,
		Connections: conns,
		Messages:    msgs,
		Presence:    presence.NewLocal(),
	}, &cfg, &nop)

	ts := httptest.NewServer(router)
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = coord.Drain(ctx)
		_ = st.Close()
	})
	return strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
}

func TestSmokeRoundTrip(t *testing.T) {
	addr := startServer(t)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"smoke", "--addr", addr, "--user", "alice", "--text", "ping", "--delete"})
	require.NoError(t, cmd.Execute())

	require.Contains(t, out.String(), "Join: room=general user=alice")
	require.Contains(t, out.String(), `text="ping"`)
	require.Contains(t, out.String(), "Deleted: id=")
}

func TestSmokeReportsRejection(t *testing.T) {
	addr := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := runSmoke(ctx, &bytes.Buffer{}, smokeOptions{addr: addr, user: "alice", room: "general", text: " ", delete: true})
	require.ErrorContains(t, err, messages.ReasonEmptyBody)
}
