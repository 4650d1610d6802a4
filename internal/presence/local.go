package presence

import (
	"context"
	"sort"
	"sync"
)

// Local is an in-process Tracker used when redis is not configured.
type Local struct {
	mu    sync.Mutex
	rooms map[string]map[string]int
}

// NewLocal creates an empty in-process tracker.
func NewLocal() *Local {
	return &Local{rooms: make(map[string]map[string]int)}
}

func (l *Local) Add(_ context.Context, room, identity string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	users, ok := l.rooms[room]
	if !ok {
		users = make(map[string]int)
		l.rooms[room] = users
	}
	users[identity]++
	return nil
}

func (l *Local) Remove(_ context.Context, room, identity string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	users := l.rooms[room]
	if users == nil {
		return nil
	}
	if users[identity]--; users[identity] <= 0 {
		delete(users, identity)
	}
	if len(users) == 0 {
		delete(l.rooms, room)
	}
	return nil
}

func (l *Local) Online(_ context.Context, room string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.rooms[room]))
	for identity := range l.rooms[room] {
		out = append(out, identity)
	}
	sort.Strings(out)
	return out, nil
}

func (*Local) Close() error {
	return nil
}
