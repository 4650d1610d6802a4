package core

import "sync"

// DefaultEventBuffer is the outbound queue size used when none is configured.
const DefaultEventBuffer = 64

// Client is a chat participant as seen by the core layer.
type Client struct {
	ID     string
	Events chan *Event

	mu   sync.RWMutex
	name string

	done chan struct{}
	once sync.Once
}

// NewClient constructs a client with initialized channels.
func NewClient(id, name string, buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	return &Client{
		ID:     id,
		Events: make(chan *Event, buffer),
		name:   name,
		done:   make(chan struct{}),
	}
}

// Name returns the identity bound to the client, possibly empty.
func (c *Client) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// SetName binds an identity to the client.
func (c *Client) SetName(name string) {
	c.mu.Lock()
	c.name = name
	c.mu.Unlock()
}

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close marks the client as gone. Events is left open so that racing
// senders never panic; readers should select on Done.
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

// deliver enqueues an event without blocking.
func (c *Client) deliver(ev *Event) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.Events <- ev:
		return nil
	default:
		return ErrSlowConsumer
	}
}
