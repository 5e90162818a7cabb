// Package protocol defines the wire events exchanged between messaging
// clients and the relay.
package protocol

import (
	"encoding/json"
	"fmt"
)

// EventKind identifies one of the five wire event types.
type EventKind int

const (
	EventJoinChat EventKind = iota
	EventSendMessage
	EventReceiveMessage
	EventStartTyping
	EventStopTyping
)

// String returns the wire name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventJoinChat:
		return "joinChat"
	case EventSendMessage:
		return "sendMessage"
	case EventReceiveMessage:
		return "receiveMessage"
	case EventStartTyping:
		return "startTyping"
	case EventStopTyping:
		return "stopTyping"
	default:
		return "unknown"
	}
}

// ParseEventKind maps a wire name back to its EventKind.
func ParseEventKind(name string) (EventKind, error) {
	switch name {
	case "joinChat":
		return EventJoinChat, nil
	case "sendMessage":
		return EventSendMessage, nil
	case "receiveMessage":
		return EventReceiveMessage, nil
	case "startTyping":
		return EventStartTyping, nil
	case "stopTyping":
		return EventStopTyping, nil
	default:
		return 0, fmt.Errorf("unknown event %q", name)
	}
}

// Event is implemented by every payload in the closed event set.
type Event interface {
	Kind() EventKind
}

// Join announces interest in a conversation so the relay scopes delivery
// to this client.
type Join struct {
	Name       string `json:"name"`
	FromUserID string `json:"fromUserId"`
	ToUserID   string `json:"toUserId"`
}

// Kind implements Event.
func (Join) Kind() EventKind { return EventJoinChat }

// Message is the shared payload shape of sendMessage and receiveMessage.
// Timestamp is Unix milliseconds.
type Message struct {
	FromUserID string `json:"fromUserId"`
	ToUserID   string `json:"toUserId"`
	Content    string `json:"content"`
	Timestamp  int64  `json:"timestamp"`
}

// SendMessage is an outbound chat message (client to relay).
type SendMessage Message

// Kind implements Event.
func (SendMessage) Kind() EventKind { return EventSendMessage }

// ReceiveMessage is an inbound chat message (relay to client).
type ReceiveMessage Message

// Kind implements Event.
func (ReceiveMessage) Kind() EventKind { return EventReceiveMessage }

// Typing is the shared payload shape of startTyping and stopTyping.
type Typing struct {
	FromUserID string `json:"fromUserId"`
	ToUserID   string `json:"toUserId"`
}

// StartTyping signals the counterpart began composing.
type StartTyping Typing

// Kind implements Event.
func (StartTyping) Kind() EventKind { return EventStartTyping }

// StopTyping signals the counterpart stopped composing.
type StopTyping Typing

// Kind implements Event.
func (StopTyping) Kind() EventKind { return EventStopTyping }

// envelope is the wire framing: the event name tags the payload.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Encode encodes the event into its JSON envelope.
func Encode(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", ev.Kind(), err)
	}
	frame, err := json.Marshal(envelope{Event: ev.Kind().String(), Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s envelope: %w", ev.Kind(), err)
	}
	return frame, nil
}

// Decode decodes a JSON envelope into its typed event. Unknown event names
// are an error so the dispatch switch stays exhaustive.
func Decode(frame []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	kind, err := ParseEventKind(env.Event)
	if err != nil {
		return nil, err
	}
	switch kind {
	case EventJoinChat:
		var ev Join
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", kind, err)
		}
		return ev, nil
	case EventSendMessage:
		var ev SendMessage
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", kind, err)
		}
		return ev, nil
	case EventReceiveMessage:
		var ev ReceiveMessage
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", kind, err)
		}
		return ev, nil
	case EventStartTyping:
		var ev StartTyping
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", kind, err)
		}
		return ev, nil
	case EventStopTyping:
		var ev StopTyping
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", kind, err)
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("unhandled event kind %d", kind)
	}
}
