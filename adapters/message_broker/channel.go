package message_broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/gateway/domain"
	"github.com/satriahrh/cocoa-fruit/gateway/utils/log"
)

const defaultTopicBuffer = 100

// ChannelMessageBroker implements MessageBroker using Go channels. Each
// topic/routing key pair is one buffered channel shared by its subscribers.
type ChannelMessageBroker struct {
	topics map[string]chan domain.BrokerMessage
	buffer int
	mu     sync.RWMutex
	closed bool
}

// NewChannelMessageBroker creates a new channel-based message broker. A
// non-positive buffer uses the default capacity.
func NewChannelMessageBroker(buffer int) *ChannelMessageBroker {
	if buffer <= 0 {
		buffer = defaultTopicBuffer
	}
	return &ChannelMessageBroker{
		topics: make(map[string]chan domain.BrokerMessage),
		buffer: buffer,
	}
}

func makeKey(topic, routingKey string) string {
	return topic + ":" + routingKey
}

// channelFor returns the channel for key, creating it under the write lock.
// Callers must hold b.mu for writing.
func (b *ChannelMessageBroker) channelFor(key string) chan domain.BrokerMessage {
	channel, exists := b.topics[key]
	if !exists {
		channel = make(chan domain.BrokerMessage, b.buffer)
		b.topics[key] = channel
	}
	return channel
}

// Publish sends a message to a specific topic and routing key. It never blocks:
// a full topic is reported as an error.
func (b *ChannelMessageBroker) Publish(ctx context.Context, topic string, routingKey string, message []byte) error {
	// Sending happens under the lock so Close cannot close the channel mid-send.
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("message broker is closed")
	}

	channel := b.channelFor(makeKey(topic, routingKey))
	msg := domain.BrokerMessage{
		Topic:      topic,
		RoutingKey: routingKey,
		Payload:    message,
		Timestamp:  time.Now(),
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	select {
	case channel <- msg:
		log.WithCtx(ctx).Debug("📤 Message published to topic",
			zap.String("topic", topic),
			zap.String("routingKey", routingKey),
			zap.Int("payload_size", len(message)))
		return nil
	default:
		return fmt.Errorf("topic channel is full: %s:%s", topic, routingKey)
	}
}

// Subscribe listens for messages on a specific topic and routing key
func (b *ChannelMessageBroker) Subscribe(ctx context.Context, topic string, routingKey string) (<-chan domain.BrokerMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("message broker is closed")
	}

	channel := b.channelFor(makeKey(topic, routingKey))
	log.WithCtx(ctx).Info("📡 Subscribed to topic", zap.String("topic", topic), zap.String("routingKey", routingKey))
	return channel, nil
}

// Close closes the message broker and all topic channels
func (b *ChannelMessageBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	for key, channel := range b.topics {
		close(channel)
		log.L().Debug("🔒 Closed topic channel", zap.String("key", key))
	}
	b.topics = make(map[string]chan domain.BrokerMessage)

	log.L().Info("🔒 Message broker closed")
	return nil
}

// GetTopicCount returns the number of active topics
func (b *ChannelMessageBroker) GetTopicCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics)
}

func (b *ChannelMessageBroker) IsClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}
