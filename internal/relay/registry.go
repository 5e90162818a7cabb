package relay

import "sync"

// Conn is the subset of the websocket connection the relay touches.
// Satisfied by *websocket.Conn; tests substitute a fake.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// client is one live user connection with its outgoing queue.
type client struct {
	id     string
	userID string
	conn   Conn
	send   chan []byte

	once sync.Once
	done chan struct{}
}

// shutdown closes the connection and releases the pumps. Safe to call more
// than once.
func (c *client) shutdown() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Registry tracks the single live connection per user. A new connection for
// a user replaces the previous one; two live connections for the same user
// would double-deliver every event.
type Registry struct {
	mu      sync.Mutex
	clients map[string]*client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*client)}
}

// add stores the client and returns the connection it replaced, if any.
func (r *Registry) add(c *client) *client {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.clients[c.userID]
	r.clients[c.userID] = c
	return old
}

// remove deletes the client, but only while it is still the user's current
// connection; a replacement must not be evicted by its predecessor's
// teardown.
func (r *Registry) remove(c *client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.clients[c.userID] == c {
		delete(r.clients, c.userID)
	}
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
