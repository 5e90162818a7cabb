package chat_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/47anjan/tinderfood-sub000/internal/chat"
	"github.com/47anjan/tinderfood-sub000/pkg/protocol"
)

// fakeTransport records emissions and lets tests deliver inbound events to
// the registered handlers, the way the session's read loop would.
type fakeTransport struct {
	mu       sync.Mutex
	handlers map[protocol.EventKind]func(protocol.Event)
	emitted  []protocol.Event
	joined   []string
	emitErr  error
	joinErr  error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[protocol.EventKind]func(protocol.Event))}
}

func (f *fakeTransport) JoinConversation(counterpartID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.joinErr != nil {
		return f.joinErr
	}
	f.joined = append(f.joined, counterpartID)
	return nil
}

func (f *fakeTransport) Emit(ev protocol.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitted = append(f.emitted, ev)
	return f.emitErr
}

func (f *fakeTransport) On(kind protocol.EventKind, h func(protocol.Event)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[kind] = h
}

func (f *fakeTransport) Off(kind protocol.EventKind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, kind)
}

func (f *fakeTransport) deliver(ev protocol.Event) {
	f.mu.Lock()
	h := f.handlers[ev.Kind()]
	f.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

func (f *fakeTransport) emissions() []protocol.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.Event, len(f.emitted))
	copy(out, f.emitted)
	return out
}

func newTestCenter(t *testing.T) (*chat.Center, *fakeTransport) {
	t.Helper()
	tr := newFakeTransport()
	dir := chat.MapDirectory{"u1": "Alice", "u2": "Bob"}
	c := chat.NewCenter(tr, "me", "Me", dir)
	return c, tr
}

func TestCenter_InboundForActiveConversationGoesToChannel(t *testing.T) {
	c, tr := newTestCenter(t)
	ch, err := c.Open("u1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	tr.deliver(protocol.ReceiveMessage{FromUserID: "u1", ToUserID: "me", Content: "hi", Timestamp: 100})

	msgs := ch.Messages()
	if len(msgs) != 1 {
		t.Fatalf("len(Messages()) = %d, want 1", len(msgs))
	}
	want := chat.Message{FromID: "u1", ToID: "me", Content: "hi", Timestamp: 100}
	if msgs[0] != want {
		t.Errorf("message = %#v, want %#v", msgs[0], want)
	}
	if got := c.Ledger().TotalUnread(); got != 0 {
		t.Errorf("TotalUnread() = %d, want 0", got)
	}
}

func TestCenter_InboundForOtherSenderGoesToLedger(t *testing.T) {
	c, tr := newTestCenter(t)
	ch, err := c.Open("u1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	tr.deliver(protocol.ReceiveMessage{FromUserID: "u2", ToUserID: "me", Content: "yo", Timestamp: 200})

	if got := len(ch.Messages()); got != 0 {
		t.Errorf("len(Messages()) = %d, want 0", got)
	}
	entries := c.Ledger().Entries()
	if len(entries) != 1 {
		t.Fatalf("len(Entries()) = %d, want 1", len(entries))
	}
	want := chat.Unread{SenderID: "u2", SenderName: "Bob", Count: 1, LastText: "yo", LastTimestamp: 200}
	if entries[0] != want {
		t.Errorf("entry = %#v, want %#v", entries[0], want)
	}
	if got := c.Ledger().TotalUnread(); got != 1 {
		t.Errorf("TotalUnread() = %d, want 1", got)
	}
}

func TestCenter_InboundWithNoOpenConversation(t *testing.T) {
	c, tr := newTestCenter(t)

	tr.deliver(protocol.ReceiveMessage{FromUserID: "u1", ToUserID: "me", Content: "hi", Timestamp: 100})

	if got := c.Ledger().TotalUnread(); got != 1 {
		t.Errorf("TotalUnread() = %d, want 1", got)
	}
}

func TestCenter_InboundForOtherRecipientIsDropped(t *testing.T) {
	c, tr := newTestCenter(t)
	ch, err := c.Open("u1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	tr.deliver(protocol.ReceiveMessage{FromUserID: "u1", ToUserID: "someone-else", Content: "hi", Timestamp: 100})

	if got := len(ch.Messages()); got != 0 {
		t.Errorf("len(Messages()) = %d, want 0", got)
	}
	if got := c.Ledger().TotalUnread(); got != 0 {
		t.Errorf("TotalUnread() = %d, want 0", got)
	}
}

func TestCenter_UnknownSenderFallsBackToID(t *testing.T) {
	c, tr := newTestCenter(t)

	tr.deliver(protocol.ReceiveMessage{FromUserID: "stranger", ToUserID: "me", Content: "hi", Timestamp: 100})

	entries := c.Ledger().Entries()
	if len(entries) != 1 {
		t.Fatalf("len(Entries()) = %d, want 1", len(entries))
	}
	if got := entries[0].SenderName; got != "stranger" {
		t.Errorf("SenderName = %q, want fallback to sender id", got)
	}
}

func TestCenter_OpenJoinsAndClearsUnread(t *testing.T) {
	c, tr := newTestCenter(t)

	tr.deliver(protocol.ReceiveMessage{FromUserID: "u1", ToUserID: "me", Content: "hi", Timestamp: 100})
	tr.deliver(protocol.ReceiveMessage{FromUserID: "u1", ToUserID: "me", Content: "there", Timestamp: 200})
	if got := c.Ledger().TotalUnread(); got != 2 {
		t.Fatalf("TotalUnread() before Open = %d, want 2", got)
	}

	if _, err := c.Open("u1"); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	tr.mu.Lock()
	joined := append([]string(nil), tr.joined...)
	tr.mu.Unlock()
	if len(joined) != 1 || joined[0] != "u1" {
		t.Errorf("joined = %v, want [u1]", joined)
	}
	if got := c.Ledger().ActiveConversation(); got != "u1" {
		t.Errorf("ActiveConversation() = %q, want %q", got, "u1")
	}
	if got := c.Ledger().TotalUnread(); got != 0 {
		t.Errorf("TotalUnread() after Open = %d, want 0", got)
	}
}

func TestCenter_OpenSelf(t *testing.T) {
	c, _ := newTestCenter(t)

	if _, err := c.Open("me"); err == nil {
		t.Error("expected error opening a conversation with yourself")
	}
}

func TestCenter_OpenJoinFailure(t *testing.T) {
	c, tr := newTestCenter(t)
	tr.joinErr = errors.New("relay unreachable")

	if _, err := c.Open("u1"); err == nil {
		t.Error("expected error when join fails")
	}
	if got := c.ActiveChannel(); got != nil {
		t.Error("expected no active channel after failed Open")
	}
}

func TestCenter_OpenReplacesPreviousConversation(t *testing.T) {
	c, tr := newTestCenter(t)

	first, err := c.Open("u1")
	if err != nil {
		t.Fatalf("Open(u1) error = %v", err)
	}
	second, err := c.Open("u2")
	if err != nil {
		t.Fatalf("Open(u2) error = %v", err)
	}

	if got := c.ActiveChannel(); got != second {
		t.Error("ActiveChannel() should be the most recently opened channel")
	}

	// Messages from the old counterpart now count as unread.
	tr.deliver(protocol.ReceiveMessage{FromUserID: "u1", ToUserID: "me", Content: "late", Timestamp: 300})
	if got := len(first.Messages()); got != 0 {
		t.Errorf("old channel received %d messages, want 0", got)
	}
	if got := c.Ledger().TotalUnread(); got != 1 {
		t.Errorf("TotalUnread() = %d, want 1", got)
	}
}

func TestCenter_SendActive(t *testing.T) {
	c, tr := newTestCenter(t)
	ch, err := c.Open("u1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := c.SendActive("dinner?"); err != nil {
		t.Fatalf("SendActive() error = %v", err)
	}

	msgs := ch.Messages()
	if len(msgs) != 1 {
		t.Fatalf("len(Messages()) = %d, want 1", len(msgs))
	}
	if msgs[0].FromID != "me" || msgs[0].ToID != "u1" || msgs[0].Content != "dinner?" {
		t.Errorf("optimistic append = %#v", msgs[0])
	}
	if msgs[0].Timestamp <= 0 {
		t.Errorf("Timestamp = %d, want > 0", msgs[0].Timestamp)
	}

	var sent *protocol.SendMessage
	for _, ev := range tr.emissions() {
		if m, ok := ev.(protocol.SendMessage); ok {
			sent = &m
			break
		}
	}
	if sent == nil {
		t.Fatal("no sendMessage emitted")
	}
	if sent.FromUserID != "me" || sent.ToUserID != "u1" || sent.Content != "dinner?" {
		t.Errorf("emitted = %#v", sent)
	}
}

func TestCenter_SendActive_TransportFailureKeepsLocalAppend(t *testing.T) {
	c, tr := newTestCenter(t)
	ch, err := c.Open("u1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	tr.emitErr = errors.New("disconnected")

	if err := c.SendActive("lost"); err == nil {
		t.Error("expected transport error to surface")
	}
	// Best-effort contract: the optimistic append stays, nothing is
	// rolled back or retried.
	if got := len(ch.Messages()); got != 1 {
		t.Errorf("len(Messages()) = %d, want 1", got)
	}
}

func TestCenter_SendActive_NoOpenConversation(t *testing.T) {
	c, _ := newTestCenter(t)

	if err := c.SendActive("hello?"); err == nil {
		t.Error("expected error with no open conversation")
	}
}

func TestCenter_TypingFlagFollowsCounterpart(t *testing.T) {
	c, tr := newTestCenter(t)
	ch, err := c.Open("u1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	tr.deliver(protocol.StartTyping{FromUserID: "u1", ToUserID: "me"})
	if !ch.CounterpartTyping() {
		t.Error("expected CounterpartTyping() after startTyping")
	}

	tr.deliver(protocol.StopTyping{FromUserID: "u1", ToUserID: "me"})
	if ch.CounterpartTyping() {
		t.Error("expected not CounterpartTyping() after stopTyping")
	}

	// Typing signals from someone else do not touch the open channel.
	tr.deliver(protocol.StartTyping{FromUserID: "u2", ToUserID: "me"})
	if ch.CounterpartTyping() {
		t.Error("typing signal from another sender flipped the flag")
	}
	if got := c.Ledger().TotalUnread(); got != 0 {
		t.Errorf("typing signals must not touch the ledger, TotalUnread() = %d", got)
	}
}

func TestCenter_KeystrokeEmitsTypingProtocol(t *testing.T) {
	c, tr := newTestCenter(t)
	c.SetQuietPeriod(50 * time.Millisecond)
	if _, err := c.Open("u1"); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	c.KeystrokeActive()

	var starts, stops int
	for _, ev := range tr.emissions() {
		switch ev.(type) {
		case protocol.StartTyping:
			starts++
		case protocol.StopTyping:
			stops++
		}
	}
	if starts != 1 || stops != 0 {
		t.Fatalf("after keystroke: starts = %d, stops = %d, want 1, 0", starts, stops)
	}

	deadline := time.After(time.Second)
	for {
		stops = 0
		for _, ev := range tr.emissions() {
			if _, ok := ev.(protocol.StopTyping); ok {
				stops++
			}
		}
		if stops == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timeout waiting for stopTyping, got %d", stops)
		default:
			time.Sleep(time.Millisecond)
		}
	}

	want := protocol.StartTyping{FromUserID: "me", ToUserID: "u1"}
	found := false
	for _, ev := range tr.emissions() {
		if ev == protocol.Event(want) {
			found = true
		}
	}
	if !found {
		t.Errorf("emissions missing %#v", want)
	}
}

func TestCenter_CloseWhileComposingFlushesStopTyping(t *testing.T) {
	c, tr := newTestCenter(t)
	c.SetQuietPeriod(time.Minute)
	if _, err := c.Open("u1"); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	c.KeystrokeActive()
	c.CloseActive()

	var stops int
	for _, ev := range tr.emissions() {
		if st, ok := ev.(protocol.StopTyping); ok {
			stops++
			if st.ToUserID != "u1" {
				t.Errorf("stopTyping to %q, want u1", st.ToUserID)
			}
		}
	}
	if stops != 1 {
		t.Errorf("stops = %d, want exactly 1 emitted synchronously on close", stops)
	}

	if got := c.ActiveChannel(); got != nil {
		t.Error("expected no active channel after CloseActive")
	}
	if got := c.Ledger().ActiveConversation(); got != "" {
		t.Errorf("ActiveConversation() = %q, want empty", got)
	}

	// The cancelled timer must not emit later.
	time.Sleep(50 * time.Millisecond)
	var lateStops int
	for _, ev := range tr.emissions() {
		if _, ok := ev.(protocol.StopTyping); ok {
			lateStops++
		}
	}
	if lateStops != 1 {
		t.Errorf("late stops = %d, want 1", lateStops)
	}
}

func TestCenter_RenderSignalFiresOnInbound(t *testing.T) {
	c, tr := newTestCenter(t)
	var signals atomic.Int32
	c.SetRenderSignal(func() { signals.Add(1) })

	tr.deliver(protocol.ReceiveMessage{FromUserID: "u1", ToUserID: "me", Content: "hi", Timestamp: 100})
	if got := signals.Load(); got != 1 {
		t.Errorf("signals after inbound message = %d, want 1", got)
	}

	// A discarded event (wrong recipient) must not signal.
	tr.deliver(protocol.ReceiveMessage{FromUserID: "u1", ToUserID: "other", Content: "hi", Timestamp: 100})
	if got := signals.Load(); got != 1 {
		t.Errorf("signals after discarded message = %d, want 1", got)
	}

	if _, err := c.Open("u1"); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	tr.deliver(protocol.StartTyping{FromUserID: "u1", ToUserID: "me"})
	if got := signals.Load(); got != 2 {
		t.Errorf("signals after typing = %d, want 2", got)
	}
}

func TestCenter_ShutdownClearsStateAndHandlers(t *testing.T) {
	c, tr := newTestCenter(t)
	if _, err := c.Open("u1"); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	tr.deliver(protocol.ReceiveMessage{FromUserID: "u2", ToUserID: "me", Content: "yo", Timestamp: 100})

	c.Shutdown()

	if got := c.Ledger().TotalUnread(); got != 0 {
		t.Errorf("TotalUnread() after Shutdown = %d, want 0", got)
	}

	// Handlers are gone: a delivery after shutdown changes nothing.
	tr.deliver(protocol.ReceiveMessage{FromUserID: "u2", ToUserID: "me", Content: "again", Timestamp: 200})
	if got := c.Ledger().TotalUnread(); got != 0 {
		t.Errorf("TotalUnread() after post-shutdown delivery = %d, want 0", got)
	}
}
