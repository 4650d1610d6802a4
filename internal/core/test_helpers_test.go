package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
)

// recordingTransport captures every delivery per connection.
type recordingTransport struct {
	mu     sync.Mutex
	events map[string][]*Event
	fail   map[string]error
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{events: make(map[string][]*Event), fail: make(map[string]error)}
}

func (r *recordingTransport) SendToConnection(connID string, ev *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail[connID]; err != nil {
		return err
	}
	r.events[connID] = append(r.events[connID], ev)
	return nil
}

func (r *recordingTransport) failFor(connID string, err error) {
	r.mu.Lock()
	r.fail[connID] = err
	r.mu.Unlock()
}

func (r *recordingTransport) received(connID string, kind EventKind) []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Event
	for _, ev := range r.events[connID] {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recordingTransport) kinds(connID string) []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, 0, len(r.events[connID]))
	for _, ev := range r.events[connID] {
		out = append(out, ev.Kind)
	}
	return out
}

// staticIdentities resolves from a fixed map.
type staticIdentities map[string]string

func (s staticIdentities) Resolve(connID string) string {
	return s[connID]
}

// ProcessorMock is a testify mock of CommandProcessor.
type ProcessorMock struct {
	mock.Mock
}

func (m *ProcessorMock) Apply(ctx context.Context, act Action) (Result, error) {
	args := m.Called(ctx, act)
	return args.Get(0).(Result), args.Error(1)
}

func ofKind(kind ActionKind) any {
	return mock.MatchedBy(func(act Action) bool { return act.Kind == kind })
}

type fixture struct {
	coord     *Coordinator
	transport *recordingTransport
	processor *ProcessorMock
}

func newFixture(t *testing.T, mutate func(*CoordinatorConfig)) *fixture {
	t.Helper()

	transport := newRecordingTransport()
	processor := new(ProcessorMock)
	cfg := CoordinatorConfig{
		Transport:     transport,
		Identities:    staticIdentities{"c-alice": "alice", "c-bob": "bob"},
		Processor:     processor,
		CommitTimeout: time.Second,
		NewID:         func() string { return "X" },
		Now:           func() time.Time { return time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC) },
	}
	if mutate != nil {
		mutate(&cfg)
	}
	f := &fixture{coord: NewCoordinator(cfg), transport: transport, processor: processor}
	f.coord.Registry().Join("c-alice", "r1", "alice")
	f.coord.Registry().Join("c-bob", "r1", "bob")
	return f
}

func mustSettle(t *testing.T, task *Task) Outcome {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := task.Wait(ctx)
	if err != nil {
		t.Fatalf("task did not settle: %v", err)
	}
	return out
}

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("expected event kind %v not received", kind)
			return nil
		}
	}
}
