package chat

import (
	"fmt"
	"sync"
	"time"

	"github.com/47anjan/tinderfood-sub000/pkg/protocol"
)

// Transport is the session surface the chat core depends on. Satisfied by
// *session.Session; tests substitute a fake.
type Transport interface {
	JoinConversation(counterpartID string) error
	Emit(ev protocol.Event) error
	On(kind protocol.EventKind, h func(protocol.Event))
	Off(kind protocol.EventKind)
}

// Directory resolves a user id to a display name. Backed by the
// connection-graph read results; a miss returns the empty string.
type Directory interface {
	Name(id string) string
}

// MapDirectory is a Directory over a fixed id-to-name map.
type MapDirectory map[string]string

// Name implements Directory.
func (m MapDirectory) Name(id string) string { return m[id] }

// Center routes every inbound event to exactly one destination: the open
// conversation channel when the sender is the active counterpart, the
// unread ledger otherwise. It owns the ledger, the single open channel and
// that channel's typing debouncer.
type Center struct {
	transport Transport
	localID   string
	localName string
	dir       Directory
	ledger    *Ledger
	quiet     time.Duration

	mu        sync.Mutex
	open      *Channel
	debouncer *Debouncer
	render    func()
}

// NewCenter wires a center to the transport and registers its inbound
// handlers. The transport delivers events one at a time, so dispatch never
// interleaves with itself.
func NewCenter(t Transport, localID, localName string, dir Directory) *Center {
	c := &Center{
		transport: t,
		localID:   localID,
		localName: localName,
		dir:       dir,
		ledger:    NewLedger(),
		quiet:     DefaultQuietPeriod,
	}
	t.On(protocol.EventReceiveMessage, c.handleReceive)
	t.On(protocol.EventStartTyping, c.handleStartTyping)
	t.On(protocol.EventStopTyping, c.handleStopTyping)
	return c
}

// SetQuietPeriod overrides the typing quiet period. Takes effect on the
// next Open.
func (c *Center) SetQuietPeriod(d time.Duration) {
	c.mu.Lock()
	c.quiet = d
	c.mu.Unlock()
}

// SetRenderSignal registers a hook invoked after any inbound event mutates
// visible state, so the presentation layer knows to re-read it. The hook
// runs on the dispatch path and must be cheap.
func (c *Center) SetRenderSignal(fn func()) {
	c.mu.Lock()
	c.render = fn
	c.mu.Unlock()
}

func (c *Center) signalRender() {
	c.mu.Lock()
	fn := c.render
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Ledger returns the unread notification ledger.
func (c *Center) Ledger() *Ledger {
	return c.ledger
}

// ActiveChannel returns the open conversation channel, or nil.
func (c *Center) ActiveChannel() *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Open makes the conversation with counterpartID the active one: any
// previously open conversation is closed first (flushing its typing state),
// interest is announced to the relay, and the counterpart's unread entry is
// cleared in the same step that marks it active.
func (c *Center) Open(counterpartID string) (*Channel, error) {
	if counterpartID == "" {
		return nil, fmt.Errorf("counterpart id is empty")
	}
	if counterpartID == c.localID {
		return nil, fmt.Errorf("cannot open a conversation with yourself")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeActiveLocked()

	if err := c.transport.JoinConversation(counterpartID); err != nil {
		return nil, fmt.Errorf("failed to join conversation with %s: %w", counterpartID, err)
	}

	ch := NewChannel(counterpartID)
	c.open = ch
	c.debouncer = NewDebouncer(c.quiet,
		func() {
			_ = c.transport.Emit(protocol.StartTyping{FromUserID: c.localID, ToUserID: counterpartID})
		},
		func() {
			_ = c.transport.Emit(protocol.StopTyping{FromUserID: c.localID, ToUserID: counterpartID})
		},
	)
	c.ledger.SetActiveConversation(counterpartID)
	return ch, nil
}

// CloseActive closes the open conversation, if any: pending typing state is
// flushed (emitting stop if composing), the active conversation is cleared
// and the channel is discarded.
func (c *Center) CloseActive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeActiveLocked()
}

func (c *Center) closeActiveLocked() {
	if c.debouncer != nil {
		c.debouncer.Flush()
		c.debouncer = nil
	}
	if c.open != nil {
		c.open = nil
		c.ledger.SetActiveConversation("")
	}
}

// SendActive sends content to the active counterpart. The message is
// appended to the local log before the transport send; there is no rollback
// if the send fails, only the returned error.
func (c *Center) SendActive(content string) error {
	c.mu.Lock()
	open := c.open
	c.mu.Unlock()

	if open == nil {
		return fmt.Errorf("no open conversation")
	}

	msg := Message{
		FromID:    c.localID,
		ToID:      open.CounterpartID(),
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
	}
	open.Append(msg)

	return c.transport.Emit(protocol.SendMessage{
		FromUserID: msg.FromID,
		ToUserID:   msg.ToID,
		Content:    msg.Content,
		Timestamp:  msg.Timestamp,
	})
}

// KeystrokeActive records a local keystroke in the active conversation,
// driving the typing protocol. No-op when no conversation is open.
func (c *Center) KeystrokeActive() {
	c.mu.Lock()
	deb := c.debouncer
	c.mu.Unlock()

	if deb != nil {
		deb.Keystroke()
	}
}

// Shutdown is the logout path: the active conversation is closed, the
// ledger is cleared and the inbound handlers are removed. The caller owns
// the session and disconnects it separately.
func (c *Center) Shutdown() {
	c.CloseActive()
	c.ledger.MarkAllRead()
	c.transport.Off(protocol.EventReceiveMessage)
	c.transport.Off(protocol.EventStartTyping)
	c.transport.Off(protocol.EventStopTyping)
}

// handleReceive routes one inbound message to exactly one of the open
// channel or the unread ledger, never both, never neither.
func (c *Center) handleReceive(ev protocol.Event) {
	msg, ok := ev.(protocol.ReceiveMessage)
	if !ok {
		return
	}
	if msg.ToUserID != c.localID {
		return
	}

	c.mu.Lock()
	open := c.open
	c.mu.Unlock()

	if open != nil && open.CounterpartID() == msg.FromUserID {
		open.Append(Message{
			FromID:    msg.FromUserID,
			ToID:      msg.ToUserID,
			Content:   msg.Content,
			Timestamp: msg.Timestamp,
		})
	} else {
		c.ledger.RecordUnread(msg.FromUserID, c.senderName(msg.FromUserID), msg.Content, msg.Timestamp)
	}
	c.signalRender()
}

func (c *Center) senderName(id string) string {
	if c.dir != nil {
		if name := c.dir.Name(id); name != "" {
			return name
		}
	}
	return id
}

func (c *Center) handleStartTyping(ev protocol.Event) {
	t, ok := ev.(protocol.StartTyping)
	if !ok {
		return
	}
	c.setCounterpartTyping(t.FromUserID, t.ToUserID, true)
}

func (c *Center) handleStopTyping(ev protocol.Event) {
	t, ok := ev.(protocol.StopTyping)
	if !ok {
		return
	}
	c.setCounterpartTyping(t.FromUserID, t.ToUserID, false)
}

// setCounterpartTyping flips the typing flag of the open channel when the
// signal comes from its counterpart. Typing signals never touch the ledger.
func (c *Center) setCounterpartTyping(fromID, toID string, v bool) {
	if toID != c.localID {
		return
	}

	c.mu.Lock()
	open := c.open
	c.mu.Unlock()

	if open != nil && open.CounterpartID() == fromID {
		open.setTyping(v)
		c.signalRender()
	}
}
