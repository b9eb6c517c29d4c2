// Package pubsub publishes task events on a watermill message.Publisher.
// The in-process GoChannel serves a single replica; any other watermill
// backend (Kafka, NATS, SQL) plugs in the same way.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/ports"
)

// Topic carries every task event.
const Topic = "espalier.task.submitted"

// Metadata keys set on every message.
const (
	MetadataInstanceID = "instance_id"
	MetadataGraphID    = "graph_id"
	MetadataAction     = "action"
)

var _ ports.EventPublisher = (*Publisher)(nil)

// Publisher adapts a watermill publisher to ports.EventPublisher.
type Publisher struct {
	publisher message.Publisher
	topic     string
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithTopic publishes on topic instead of Topic.
func WithTopic(topic string) Option {
	return func(p *Publisher) {
		if topic != "" {
			p.topic = topic
		}
	}
}

// NewPublisher publishes on Topic unless WithTopic is given.
func NewPublisher(pub message.Publisher, opts ...Option) *Publisher {
	p := &Publisher{publisher: pub, topic: Topic}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PublishTaskEvent sends the event as a JSON message.
func (p *Publisher) PublishTaskEvent(ctx context.Context, ev *domain.TaskEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode task event: %w", err)
	}

	msg := message.NewMessage("msg-"+watermill.NewULID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(MetadataInstanceID, ev.InstanceID)
	msg.Metadata.Set(MetadataGraphID, ev.GraphID)
	msg.Metadata.Set(MetadataAction, ev.Action)

	return p.publisher.Publish(p.topic, msg)
}

// Decode reads a task event back from a message.
func Decode(msg *message.Message) (*domain.TaskEvent, error) {
	var ev domain.TaskEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode task event %s: %w", msg.UUID, err)
	}
	return &ev, nil
}

// NewGoChannel creates an in-memory pub/sub, both publisher and subscriber.
func NewGoChannel(logger *slog.Logger) *gochannel.GoChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer: 1000,
		},
		watermill.NewSlogLogger(logger),
	)
}
