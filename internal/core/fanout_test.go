package core

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type panicTransport struct {
	*recordingTransport
	bad string
}

func (p panicTransport) SendToConnection(connID string, ev *Event) error {
	if connID == p.bad {
		panic("broken connection")
	}
	return p.recordingTransport.SendToConnection(connID, ev)
}

func TestPublishDeliversToSnapshotOnly(t *testing.T) {
	r := NewRegistry()
	tr := newRecordingTransport()
	b := NewBroadcaster(r, tr, nil)

	r.Join("c1", "r1", "u")
	r.Join("c2", "r1", "u")
	r.Join("c3", "r2", "u")

	n := b.Publish("r1", &Event{Kind: EventUserJoined, User: "alice"})
	require.Equal(t, 2, n)

	r.Join("c4", "r1", "u")
	require.Len(t, tr.received("c1", EventUserJoined), 1)
	require.Len(t, tr.received("c2", EventUserJoined), 1)
	require.Empty(t, tr.received("c3", EventUserJoined))
	require.Empty(t, tr.received("c4", EventUserJoined), "late joiners must not receive earlier events")
}

func TestPublishIsolatesFailingConnections(t *testing.T) {
	r := NewRegistry()
	tr := newRecordingTransport()
	b := NewBroadcaster(r, panicTransport{recordingTransport: tr, bad: "c2"}, nil)

	r.Join("c1", "r1", "u")
	r.Join("c2", "r1", "u")
	r.Join("c3", "r1", "u")
	tr.failFor("c3", ErrSlowConsumer)

	require.Equal(t, 1, b.Publish("r1", &Event{Kind: EventReceiveMessage}))
	require.Len(t, tr.received("c1", EventReceiveMessage), 1)
}

func TestPublishDoesNotBlockOnSlowClient(t *testing.T) {
	r := NewRegistry()
	conns := NewConnections()
	b := NewBroadcaster(r, conns, nil)

	slow := NewClient("slow", "slow", 1)
	fast := NewClient("fast", "fast", 8)
	conns.Connect(slow)
	conns.Connect(fast)
	r.Join("slow", "r1", "u")
	r.Join("fast", "r1", "u")

	done := make(chan struct{})
	go func() {
		for range 4 {
			b.Publish("r1", &Event{Kind: EventReceiveMessage})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow consumer")
	}
	require.Len(t, fast.Events, 4)
	require.Len(t, slow.Events, 1)
}

func TestPublishPreservesOrderPerConnection(t *testing.T) {
	r := NewRegistry()
	tr := newRecordingTransport()
	b := NewBroadcaster(r, tr, nil)
	r.Join("c1", "r1", "u")

	b.Publish("r1", &Event{Kind: EventReceiveMessage})
	b.Publish("r1", &Event{Kind: EventMessageRejected})

	require.Equal(t, []EventKind{EventReceiveMessage, EventMessageRejected}, tr.kinds("c1"))
}

func TestPublishToleratesConcurrentLeave(t *testing.T) {
	r := NewRegistry()
	conns := NewConnections()
	b := NewBroadcaster(r, conns, nil)

	for i := range 50 {
		id := fmt.Sprintf("c%d", i)
		conns.Connect(NewClient(id, id, 256))
		r.Join(id, "r1", "u")
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for range 100 {
			b.Publish("r1", &Event{Kind: EventReceiveMessage})
		}
	}()
	go func() {
		defer wg.Done()
		for i := range 50 {
			id := fmt.Sprintf("c%d", i)
			r.Drop(id)
			conns.Disconnect(id)
		}
	}()
	wg.Wait()

	require.Empty(t, r.Members("r1"))
	require.Equal(t, 0, b.Publish("r1", &Event{Kind: EventReceiveMessage}))
}
