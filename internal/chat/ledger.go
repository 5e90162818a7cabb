// Package chat implements the in-memory messaging core: the unread
// notification ledger, the per-conversation channel, the typing debouncer
// and the inbound dispatch that ties them to the transport session.
package chat

import (
	"sort"
	"sync"
)

// Unread is the aggregate of unread messages from one sender. Count is
// always at least 1 while the entry exists; only the latest message text is
// kept as a preview.
type Unread struct {
	SenderID      string
	SenderName    string
	Count         int
	LastText      string
	LastTimestamp int64
}

// Ledger tracks unread counts per sender across all conversations, plus the
// currently active conversation. One mutex covers every operation so the
// total always equals the sum of the entry counts, and no entry can exist
// for the active conversation.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]*Unread
	total   int
	active  string // empty when no conversation is open
}

// NewLedger creates an empty ledger with no active conversation.
func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string]*Unread)}
}

// RecordUnread counts one unread message from the sender, creating the
// entry on first sight. Messages from the active conversation are never
// recorded; they belong in the open channel, not here.
func (l *Ledger) RecordUnread(senderID, senderName, text string, timestamp int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if senderID == "" || senderID == l.active {
		return
	}

	if e, ok := l.entries[senderID]; ok {
		e.Count++
		e.LastText = text
		e.LastTimestamp = timestamp
		if senderName != "" {
			e.SenderName = senderName
		}
	} else {
		l.entries[senderID] = &Unread{
			SenderID:      senderID,
			SenderName:    senderName,
			Count:         1,
			LastText:      text,
			LastTimestamp: timestamp,
		}
	}
	l.total++
}

// MarkRead removes the sender's entry and its contribution to the total.
// Idempotent; unknown senders are a no-op.
func (l *Ledger) MarkRead(senderID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.markReadLocked(senderID)
}

func (l *Ledger) markReadLocked(senderID string) {
	if e, ok := l.entries[senderID]; ok {
		l.total -= e.Count
		delete(l.entries, senderID)
	}
}

// MarkAllRead clears every entry.
func (l *Ledger) MarkAllRead() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string]*Unread)
	l.total = 0
}

// SetActiveConversation records which conversation is being viewed. Opening
// a conversation clears its unread entry in the same step, so the badge and
// the visible log can never disagree. Empty id means no conversation open.
func (l *Ledger) SetActiveConversation(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.active = id
	if id != "" {
		l.markReadLocked(id)
	}
}

// ActiveConversation returns the id of the conversation being viewed, or
// empty when none is open.
func (l *Ledger) ActiveConversation() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// TotalUnread returns the count shown on the bell badge.
func (l *Ledger) TotalUnread() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Entries returns a snapshot of the unread entries, newest activity first,
// for the notification list view.
func (l *Ledger) Entries() []Unread {
	l.mu.Lock()
	defer l.mu.Unlock()

	list := make([]Unread, 0, len(l.entries))
	for _, e := range l.entries {
		list = append(list, *e)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].LastTimestamp != list[j].LastTimestamp {
			return list[i].LastTimestamp > list[j].LastTimestamp
		}
		return list[i].SenderID < list[j].SenderID
	})
	return list
}
