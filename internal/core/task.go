package core

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc"
)

// State is the position of an action in the coordination state machine.
type State int32

const (
	StateReceived State = iota
	StateBroadcasted
	StateCommitting
	// StateConfirmed means the commit succeeded.
	StateConfirmed
	// StateCompensationSent means the commit failed and a correction was broadcast.
	StateCompensationSent
	// StateRejected means the commit failed and clients were not told.
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateBroadcasted:
		return "broadcasted"
	case StateCommitting:
		return "committing"
	case StateConfirmed:
		return "confirmed"
	case StateCompensationSent:
		return "compensation_sent"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of a task.
type Outcome struct {
	State  State
	Result Result
	Err    error
}

// Task is a handle on one in-flight action.
type Task struct {
	Action Action

	state   atomic.Int32
	done    chan struct{}
	outcome Outcome
}

func newTask(act Action) *Task {
	return &Task{Action: act, done: make(chan struct{})}
}

// State returns the current state.
func (t *Task) State() State {
	return State(t.state.Load())
}

// Done is closed when the task reaches a terminal state.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task settles or ctx ends.
func (t *Task) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-t.done:
		return t.outcome, nil
	case <-ctx.Done():
		return Outcome{State: t.State()}, ctx.Err()
	}
}

func (t *Task) advance(s State) {
	t.state.Store(int32(s))
}

func (t *Task) settle(out Outcome) {
	t.outcome = out
	t.advance(out.State)
	close(t.done)
}

// taskGroup tracks background commits so shutdown can drain them.
type taskGroup struct {
	mu       sync.RWMutex
	draining bool
	wg       conc.WaitGroup
	inFlight atomic.Int64
}

// Go runs before synchronously and then fn in the background, unless the
// group is draining. before runs under the same guard so a drain never
// observes a broadcast whose commit was not scheduled.
func (g *taskGroup) Go(before, fn func()) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.draining {
		return ErrDraining
	}
	if before != nil {
		before()
	}
	g.inFlight.Add(1)
	g.wg.Go(func() {
		defer g.inFlight.Add(-1)
		fn()
	})
	return nil
}

// Pending returns the number of tasks still running.
func (g *taskGroup) Pending() int64 {
	return g.inFlight.Load()
}

// Drain refuses new tasks and waits for running ones or ctx.
func (g *taskGroup) Drain(ctx context.Context) (recovered any, err error) {
	g.mu.Lock()
	g.draining = true
	g.mu.Unlock()

	done := make(chan any, 1)
	go func() {
		if r := g.wg.WaitAndRecover(); r != nil {
			done <- r.Value
			return
		}
		done <- nil
	}()

	select {
	case r := <-done:
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
