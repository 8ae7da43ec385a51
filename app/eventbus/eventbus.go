// Package eventbus provides the watermill publisher and subscriber that the
// change feed and presence channels run on.
package eventbus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Black-And-White-Club/frolf-guesser/config"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	nc "github.com/nats-io/nats.go"
)

// EventBus bundles a publisher and a subscriber over the same transport.
// It satisfies both message.Publisher and message.Subscriber.
type EventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *slog.Logger
	transport  string
}

var (
	_ message.Publisher  = (*EventBus)(nil)
	_ message.Subscriber = (*EventBus)(nil)
)

// New builds the bus for the configured transport.
func New(cfg *config.Config, logger *slog.Logger) (*EventBus, error) {
	switch cfg.EventBus.Transport {
	case config.TransportMemory:
		return NewInMemory(logger), nil
	case config.TransportNATS, "":
		return NewNATS(cfg.NATS.URL, logger)
	default:
		return nil, fmt.Errorf("unknown event bus transport %q", cfg.EventBus.Transport)
	}
}

// NewNATS creates a bus on core NATS subjects. Feed and presence traffic is
// ephemeral, so JetStream persistence is disabled.
func NewNATS(natsURL string, logger *slog.Logger) (*EventBus, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// Create a Watermill logger that wraps slog
	watermillLogger := watermill.NewSlogLogger(logger)

	marshaler := &nats.NATSMarshaler{}
	jsConfig := nats.JetStreamConfig{Disabled: true}

	publisher, err := nats.NewPublisher(
		nats.PublisherConfig{
			URL:       natsURL,
			Marshaler: marshaler,
			NatsOptions: []nc.Option{
				nc.RetryOnFailedConnect(true),
			},
			JetStream: jsConfig,
		},
		watermillLogger,
	)
	if err != nil {
		logger.Error("Failed to create Watermill publisher", slog.Any("error", err))
		return nil, fmt.Errorf("failed to create Watermill publisher: %w", err)
	}

	subscriber, err := nats.NewSubscriber(
		nats.SubscriberConfig{
			URL:         natsURL,
			Unmarshaler: marshaler,
			NatsOptions: []nc.Option{
				nc.RetryOnFailedConnect(true),
			},
			JetStream: jsConfig,
		},
		watermillLogger,
	)
	if err != nil {
		publisher.Close()
		logger.Error("Failed to create Watermill subscriber", slog.Any("error", err))
		return nil, fmt.Errorf("failed to create Watermill subscriber: %w", err)
	}

	return &EventBus{
		publisher:  publisher,
		subscriber: subscriber,
		logger:     logger,
		transport:  config.TransportNATS,
	}, nil
}

// NewInMemory creates a process-local bus backed by a watermill GoChannel.
func NewInMemory(logger *slog.Logger) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
	}, watermill.NewSlogLogger(logger))

	return &EventBus{
		publisher:  pubsub,
		subscriber: pubsub,
		logger:     logger,
		transport:  config.TransportMemory,
	}
}

// Transport names the underlying transport.
func (eb *EventBus) Transport() string {
	return eb.transport
}

func (eb *EventBus) Publish(topic string, msgs ...*message.Message) error {
	for _, msg := range msgs {
		if msg.UUID == "" {
			msg.UUID = watermill.NewUUID()
		}
	}
	if err := eb.publisher.Publish(topic, msgs...); err != nil {
		eb.logger.Error("Failed to publish message", slog.String("topic", topic), slog.Any("error", err))
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

func (eb *EventBus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	messages, err := eb.subscriber.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	eb.logger.DebugContext(ctx, "Subscription started", slog.String("topic", topic))
	return messages, nil
}

// Close closes the publisher and the subscriber. For the in-memory bus both
// are the same GoChannel and it is closed once.
func (eb *EventBus) Close() error {
	var firstErr error
	if eb.publisher != nil {
		if err := eb.publisher.Close(); err != nil {
			eb.logger.Error("Error closing publisher", "error", err)
			firstErr = err
		}
	}
	if eb.subscriber != nil && eb.transport != config.TransportMemory {
		if err := eb.subscriber.Close(); err != nil {
			eb.logger.Error("Error closing subscriber", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
