package chat

import "sync"

// Message is one chat message as seen by this client. Immutable once
// created. Timestamp is Unix milliseconds.
type Message struct {
	FromID    string
	ToID      string
	Content   string
	Timestamp int64
}

// Channel holds the state of one open conversation: the ordered message log
// and the counterpart's typing flag. A channel exists only while its
// conversation view is open; it is created by Center.Open and discarded on
// close. The log is append-only in arrival order.
type Channel struct {
	counterpartID string

	mu       sync.Mutex
	messages []Message
	typing   bool
}

// NewChannel creates an empty channel for the given counterpart.
func NewChannel(counterpartID string) *Channel {
	return &Channel{counterpartID: counterpartID}
}

// CounterpartID returns the id of the conversation partner.
func (c *Channel) CounterpartID() string {
	return c.counterpartID
}

// Append adds a message to the log. Local optimistic sends and remote
// arrivals share this path; they have disjoint senders so no deduplication
// is needed.
func (c *Channel) Append(msg Message) {
	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.mu.Unlock()
}

// Messages returns a snapshot of the log in arrival order.
func (c *Channel) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// CounterpartTyping reports whether the counterpart is currently composing.
// Advisory UI state only.
func (c *Channel) CounterpartTyping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typing
}

func (c *Channel) setTyping(v bool) {
	c.mu.Lock()
	c.typing = v
	c.mu.Unlock()
}
