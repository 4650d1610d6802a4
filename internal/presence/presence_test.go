package presence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var (
	_ Tracker = (*RedisTracker)(nil)
	_ Tracker = (*Local)(nil)
)

func TestLocalCountsConnections(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()

	require.NoError(t, l.Add(ctx, "r1", "bob"))
	require.NoError(t, l.Add(ctx, "r1", "alice"))
	require.NoError(t, l.Add(ctx, "r1", "alice"))

	users, err := l.Online(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "bob"}, users)

	require.NoError(t, l.Remove(ctx, "r1", "alice"))
	users, _ = l.Online(ctx, "r1")
	require.Equal(t, []string{"alice", "bob"}, users, "alice still has a connection")

	require.NoError(t, l.Remove(ctx, "r1", "alice"))
	require.NoError(t, l.Remove(ctx, "r1", "bob"))
	users, _ = l.Online(ctx, "r1")
	require.Empty(t, users)

	require.NoError(t, l.Remove(ctx, "nowhere", "ghost"))
}

func TestOnlineSkipsStaleCounters(t *testing.T) {
	got := online(map[string]string{"alice": "2", "bob": "0", "carol": "-1", "dave": "x", "erin": "1"})
	require.Equal(t, []string{"alice", "erin"}, got)
}

func TestKey(t *testing.T) {
	require.Equal(t, "room:general:users", Key("general"))
}

func TestRedisUnavailable(t *testing.T) {
	tr := NewRedis("127.0.0.1:1")
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.Error(t, tr.Add(ctx, "r1", "alice"))
	_, err := tr.Online(ctx, "r1")
	require.Error(t, err)
}
