package core

import "sync"

// AnonymousIdentity is used when a connection has no resolvable identity.
const AnonymousIdentity = "Anonymous"

// Transport delivers a single event to a single connection.
type Transport interface {
	SendToConnection(connID string, ev *Event) error
}

// IdentityResolver maps a connection to the identity it acts as.
// Resolve never fails; unknown connections resolve to AnonymousIdentity.
type IdentityResolver interface {
	Resolve(connID string) string
}

// Connections is the directory of live transport connections. It is the
// Transport and IdentityResolver used by the coordinator in production.
type Connections struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewConnections creates an empty directory.
func NewConnections() *Connections {
	return &Connections{clients: make(map[string]*Client)}
}

// Connect registers a client under its ID.
func (c *Connections) Connect(client *Client) {
	c.mu.Lock()
	c.clients[client.ID] = client
	c.mu.Unlock()
}

// Disconnect removes and closes the client. Unknown IDs are ignored.
func (c *Connections) Disconnect(connID string) {
	c.mu.Lock()
	client, ok := c.clients[connID]
	delete(c.clients, connID)
	c.mu.Unlock()
	if ok {
		client.Close()
	}
}

// Get returns the client registered under connID.
func (c *Connections) Get(connID string) (*Client, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	client, ok := c.clients[connID]
	return client, ok
}

// Count returns the number of live connections.
func (c *Connections) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.clients)
}

// SendToConnection implements Transport.
func (c *Connections) SendToConnection(connID string, ev *Event) error {
	client, ok := c.Get(connID)
	if !ok {
		return ErrConnectionClosed
	}
	return client.deliver(ev)
}

// Resolve implements IdentityResolver.
func (c *Connections) Resolve(connID string) string {
	client, ok := c.Get(connID)
	if !ok {
		return AnonymousIdentity
	}
	if name := client.Name(); name != "" {
		return name
	}
	return AnonymousIdentity
}
