package relay

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	streamName    = "TINDERFOOD_CHAT"
	subjectPrefix = "chat.deliver"
)

// JetStreamBroker fans frames out over NATS JetStream so several relay
// instances can serve one user population.
type JetStreamBroker struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// NewJetStreamBroker connects to NATS and ensures the delivery stream
// exists.
func NewJetStreamBroker(url string) (*JetStreamBroker, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := js.Stream(ctx, streamName); err != nil {
		log.Printf("relay: stream %q not found, creating", streamName)
		_, err = js.CreateStream(ctx, jetstream.StreamConfig{
			Name:        streamName,
			Description: "Chat frames awaiting delivery",
			Subjects:    []string{fmt.Sprintf("%s.*", subjectPrefix)},
			MaxAge:      time.Hour,
			Storage:     jetstream.MemoryStorage,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to create stream %q: %w", streamName, err)
		}
	}

	return &JetStreamBroker{nc: nc, js: js}, nil
}

func subject(userID string) string {
	return fmt.Sprintf("%s.%s", subjectPrefix, userID)
}

// Publish implements Broker.
func (b *JetStreamBroker) Publish(toUserID string, frame []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := b.js.Publish(ctx, subject(toUserID), frame); err != nil {
		return fmt.Errorf("failed to publish to %q: %w", subject(toUserID), err)
	}
	return nil
}

// Subscribe implements Broker. The consumer is ephemeral and starts at new
// messages only; frames published while a user had no live connection are
// not replayed.
func (b *JetStreamBroker) Subscribe(toUserID string, fn func(frame []byte)) (func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cons, err := b.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		FilterSubject: subject(toUserID),
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckNonePolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer for %q: %w", subject(toUserID), err)
	}

	consumeCtx, err := cons.Consume(func(msg jetstream.Msg) {
		fn(msg.Data())
	})
	if err != nil {
		return nil, fmt.Errorf("failed to consume from %q: %w", subject(toUserID), err)
	}

	return consumeCtx.Stop, nil
}

// Close implements Broker.
func (b *JetStreamBroker) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
}
