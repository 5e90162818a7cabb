// Package session owns the single live relay connection for an
// authenticated user and exposes a typed send/receive surface to the chat
// core.
package session

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/47anjan/tinderfood-sub000/pkg/protocol"
)

// Identity is the local user as issued by the identity provider.
type Identity struct {
	UserID string
	Name   string
}

// Handler consumes one inbound event. Handlers run on the session's single
// read loop, one event at a time, in arrival order.
type Handler = func(protocol.Event)

// Session is the transport session: one websocket connection per login,
// created at login and torn down at logout. It holds no business state;
// inbound events surface only through registered handlers.
type Session struct {
	url  string
	self Identity

	mu       sync.RWMutex
	conn     net.Conn
	done     chan struct{}
	handlers map[protocol.EventKind]Handler
	notify   func(connected bool)

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

// New creates a disconnected session for the given relay URL and local user.
func New(url string, self Identity) *Session {
	return &Session{
		url:      url,
		self:     self,
		handlers: make(map[protocol.EventKind]Handler),
	}
}

// Self returns the local user identity.
func (s *Session) Self() Identity {
	return s.self
}

// NotifyState registers a hook invoked when connectivity changes. Intended
// for the UI's connectivity badge; may be nil.
func (s *Session) NotifyState(fn func(connected bool)) {
	s.mu.Lock()
	s.notify = fn
	s.mu.Unlock()
}

// Connect dials the relay and starts the read loop. Calling Connect while
// already connected is a no-op, so a second live connection can never be
// created for the same session.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		return nil
	}

	conn, br, _, err := ws.Dial(ctx, s.url)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to connect to relay: %w", err)
	}

	s.conn = conn
	s.done = make(chan struct{})
	done := s.done
	notify := s.notify
	s.mu.Unlock()

	if notify != nil {
		notify(true)
	}

	s.wg.Add(1)
	go s.readLoop(conn, br, done)

	return nil
}

// Connected reports whether the session currently holds a live connection.
func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn != nil
}

// JoinConversation announces interest in the conversation with the given
// counterpart. Must be called before messages for that conversation are
// guaranteed to reach this client.
func (s *Session) JoinConversation(counterpartID string) error {
	return s.Emit(protocol.Join{
		Name:       s.self.Name,
		FromUserID: s.self.UserID,
		ToUserID:   counterpartID,
	})
}

// Emit sends an event to the relay, fire and forget. No acknowledgment is
// awaited and nothing is retried on failure.
func (s *Session) Emit(ev protocol.Event) error {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("not connected to relay")
	}

	frame, err := protocol.Encode(ev)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := wsutil.WriteClientText(conn, frame); err != nil {
		return fmt.Errorf("failed to send %s: %w", ev.Kind(), err)
	}
	return nil
}

// On registers the handler for an event kind, replacing any previous one.
// Exactly one handler per kind is ever active, so a remounted conversation
// view cannot cause duplicate delivery.
func (s *Session) On(kind protocol.EventKind, h Handler) {
	s.mu.Lock()
	s.handlers[kind] = h
	s.mu.Unlock()
}

// Off removes the handler for an event kind.
func (s *Session) Off(kind protocol.EventKind) {
	s.mu.Lock()
	delete(s.handlers, kind)
	s.mu.Unlock()
}

// Disconnect tears down the connection. After it returns no handler is
// invoked again. Safe to call when already disconnected.
func (s *Session) Disconnect() {
	s.mu.Lock()
	conn := s.conn
	done := s.done
	notify := s.notify
	s.conn = nil
	s.done = nil
	s.mu.Unlock()

	if conn == nil {
		return
	}

	close(done)
	_ = wsutil.WriteClientMessage(conn, ws.OpClose, nil)
	_ = conn.Close()
	s.wg.Wait()

	if notify != nil {
		notify(false)
	}
}

// readWriter pairs the frame source with the conn, for wsutil's control
// replies written during reads.
type readWriter struct {
	io.Reader
	io.Writer
}

func (s *Session) readLoop(conn net.Conn, br *bufio.Reader, done chan struct{}) {
	defer s.wg.Done()

	// The dialer hands back a non-nil reader when the relay sent frames
	// together with the handshake response; those bytes must be consumed
	// before reading from the conn directly.
	rw := readWriter{Reader: conn, Writer: conn}
	if br != nil {
		rw.Reader = br
	}

	for {
		data, err := wsutil.ReadServerText(rw)
		if err != nil {
			select {
			case <-done:
			default:
				log.Printf("session: connection lost: %v", err)
				s.dropConn(conn)
			}
			return
		}

		if br != nil && br.Buffered() == 0 {
			ws.PutReader(br)
			br = nil
			rw.Reader = conn
		}

		ev, err := protocol.Decode(data)
		if err != nil {
			log.Printf("session: dropping undecodable frame: %v", err)
			continue
		}

		s.mu.RLock()
		h := s.handlers[ev.Kind()]
		s.mu.RUnlock()

		if h == nil {
			continue
		}

		select {
		case <-done:
			return
		default:
			h(ev)
		}
	}
}

// dropConn clears the connection after an unexpected read failure so the
// session becomes observably disconnected.
func (s *Session) dropConn(conn net.Conn) {
	s.mu.Lock()
	var notify func(bool)
	if s.conn == conn {
		s.conn = nil
		s.done = nil
		notify = s.notify
	}
	s.mu.Unlock()

	_ = conn.Close()
	if notify != nil {
		notify(false)
	}
}
