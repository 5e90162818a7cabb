package relay

import (
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/47anjan/tinderfood-sub000/pkg/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendQueueSize  = 64
)

// Relay accepts one websocket connection per user and forwards chat events
// between them through a Broker.
type Relay struct {
	broker   Broker
	registry *Registry
}

// New creates a relay over the given broker.
func New(broker Broker) *Relay {
	return &Relay{broker: broker, registry: NewRegistry()}
}

// Registry exposes the live-connection registry, for health reporting.
func (r *Relay) Registry() *Registry {
	return r.registry
}

// Register mounts the websocket route on the fiber app.
func (r *Relay) Register(app *fiber.App) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/:userID", websocket.New(func(conn *websocket.Conn) {
		userID := conn.Params("userID")
		conn.SetReadLimit(maxMessageSize)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		r.serve(userID, conn)
	}))
}

// serve runs the connection lifecycle: registration, broker subscription,
// write pump, and the blocking read pump.
func (r *Relay) serve(userID string, conn Conn) {
	if userID == "" {
		_ = conn.Close()
		return
	}

	c := &client{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
	}

	if old := r.registry.add(c); old != nil {
		log.Printf("relay: replacing live connection for user %s", userID)
		old.shutdown()
	}

	unsubscribe, err := r.broker.Subscribe(userID, func(frame []byte) {
		select {
		case c.send <- frame:
		case <-c.done:
		default:
			log.Printf("relay: dropping frame for slow consumer %s", userID)
		}
	})
	if err != nil {
		log.Printf("relay: failed to subscribe user %s: %v", userID, err)
		r.registry.remove(c)
		c.shutdown()
		return
	}

	defer func() {
		unsubscribe()
		r.registry.remove(c)
		c.shutdown()
		log.Printf("relay: connection %s closed for user %s", c.id, userID)
	}()

	go r.writePump(c)
	r.readPump(c)
}

func (r *Relay) readPump(c *client) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		r.route(c, data)
	}
}

// route forwards one inbound frame. Outbound chat messages are re-tagged as
// receiveMessage for the recipient; typing signals pass through; joins are
// presence scoping only. The relay stamps the sender on everything it
// forwards so a client cannot speak for another user.
func (r *Relay) route(c *client, data []byte) {
	ev, err := protocol.Decode(data)
	if err != nil {
		log.Printf("relay: dropping undecodable frame from %s: %v", c.userID, err)
		return
	}

	switch ev := ev.(type) {
	case protocol.Join:
		log.Printf("relay: %s (%s) joined conversation with %s", ev.Name, c.userID, ev.ToUserID)

	case protocol.SendMessage:
		if ev.ToUserID == "" {
			return
		}
		ev.FromUserID = c.userID
		if ev.Timestamp == 0 {
			ev.Timestamp = time.Now().UnixMilli()
		}
		r.publish(ev.ToUserID, protocol.ReceiveMessage(ev))

	case protocol.StartTyping:
		if ev.ToUserID == "" {
			return
		}
		ev.FromUserID = c.userID
		r.publish(ev.ToUserID, ev)

	case protocol.StopTyping:
		if ev.ToUserID == "" {
			return
		}
		ev.FromUserID = c.userID
		r.publish(ev.ToUserID, ev)

	case protocol.ReceiveMessage:
		log.Printf("relay: dropping relay-only event %s from %s", ev.Kind(), c.userID)
	}
}

func (r *Relay) publish(toUserID string, ev protocol.Event) {
	frame, err := protocol.Encode(ev)
	if err != nil {
		log.Printf("relay: failed to encode %s: %v", ev.Kind(), err)
		return
	}
	if err := r.broker.Publish(toUserID, frame); err != nil {
		log.Printf("relay: failed to publish %s to %s: %v", ev.Kind(), toUserID, err)
	}
}

func (r *Relay) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.shutdown()
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}

		case <-c.done:
			return
		}
	}
}
