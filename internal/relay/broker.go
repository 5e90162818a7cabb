// Package relay implements the websocket relay that forwards chat events
// between connected clients.
package relay

import "sync"

// Broker fans encoded frames out to a user's subscribers. The memory broker
// serves a single relay instance; the JetStream broker spans several.
type Broker interface {
	// Publish delivers a frame to every subscriber of the user.
	Publish(toUserID string, frame []byte) error

	// Subscribe registers fn for frames addressed to the user and returns
	// an unsubscribe func.
	Subscribe(toUserID string, fn func(frame []byte)) (func(), error)

	// Close releases broker resources.
	Close()
}

// MemoryBroker is an in-process Broker for single-instance deployments and
// tests.
type MemoryBroker struct {
	mu   sync.RWMutex
	subs map[string]map[int]func([]byte)
	next int
}

// NewMemoryBroker creates an empty in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[int]func([]byte))}
}

// Publish implements Broker.
func (b *MemoryBroker) Publish(toUserID string, frame []byte) error {
	b.mu.RLock()
	fns := make([]func([]byte), 0, len(b.subs[toUserID]))
	for _, fn := range b.subs[toUserID] {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(frame)
	}
	return nil
}

// Subscribe implements Broker.
func (b *MemoryBroker) Subscribe(toUserID string, fn func(frame []byte)) (func(), error) {
	b.mu.Lock()
	if b.subs[toUserID] == nil {
		b.subs[toUserID] = make(map[int]func([]byte))
	}
	id := b.next
	b.next++
	b.subs[toUserID][id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[toUserID], id)
		if len(b.subs[toUserID]) == 0 {
			delete(b.subs, toUserID)
		}
	}, nil
}

// Close implements Broker.
func (b *MemoryBroker) Close() {
	b.mu.Lock()
	b.subs = make(map[string]map[int]func([]byte))
	b.mu.Unlock()
}
