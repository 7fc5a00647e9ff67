package mq

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/brazeiro63/vovo-achados-portal/config"
	"google.golang.org/api/option"
)

const (
	pubsubAckDeadline = 60 * time.Second
	pubsubMinBackoff  = 10 * time.Second
	pubsubMaxBackoff  = 10 * time.Minute
)

// PubSubClient maps each channel to a topic of the same name, consumed
// through the subscription channel+suffix. Topics, subscriptions and the
// dead-letter topic are created on first use. Redelivery and dead-lettering
// are left to Pub/Sub.
type PubSubClient struct {
	client         *pubsub.Client
	suffix         string
	maxOutstanding int
	logger         *slog.Logger

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

func NewPubSubClient(ctx context.Context, cfg config.PubSubConfig) (*PubSubClient, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("pubsub project id is required")
	}

	var opts []option.ClientOption
	if strings.TrimSpace(cfg.CredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, err
	}

	return &PubSubClient{
		client:         client,
		suffix:         cfg.SubscriptionSuffix,
		maxOutstanding: cfg.MaxOutstanding,
		logger:         slog.Default(),
		topics:         make(map[string]*pubsub.Topic),
	}, nil
}

func (p *PubSubClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("pubsub channel is required")
	}
	topic, err := p.topic(ctx, channel)
	if err != nil {
		return "", err
	}
	return topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx)
}

// Subscribe receives channel until ctx ends. Failed messages are nacked and
// come back after the retry backoff.
func (p *PubSubClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("pubsub channel is required")
	}
	sub, err := p.subscription(ctx, channel)
	if err != nil {
		return err
	}
	if p.maxOutstanding > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = p.maxOutstanding
	}

	return sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		msg := fromPubSub(m)
		if err := handler(ctx, msg); err != nil {
			p.logger.Warn("message failed",
				slog.String("channel", channel),
				slog.String("message_id", msg.ID),
				slog.Int("attempt", msg.Attempt()+1),
				slog.String("error", err.Error()),
			)
			m.Nack()
			return
		}
		m.Ack()
	})
}

func (p *PubSubClient) Close() error {
	p.mu.Lock()
	for _, topic := range p.topics {
		topic.Stop()
	}
	p.topics = make(map[string]*pubsub.Topic)
	p.mu.Unlock()
	return p.client.Close()
}

func (p *PubSubClient) topic(ctx context.Context, name string) (*pubsub.Topic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if topic, ok := p.topics[name]; ok {
		return topic, nil
	}

	topic := p.client.Topic(name)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		if topic, err = p.client.CreateTopic(ctx, name); err != nil {
			return nil, err
		}
	}
	p.topics[name] = topic
	return topic, nil
}

func (p *PubSubClient) subscription(ctx context.Context, channel string) (*pubsub.Subscription, error) {
	name := channel + p.suffix
	sub := p.client.Subscription(name)
	exists, err := sub.Exists(ctx)
	if err != nil || exists {
		return sub, err
	}

	topic, err := p.topic(ctx, channel)
	if err != nil {
		return nil, err
	}
	dead, err := p.topic(ctx, DeadLetter(channel))
	if err != nil {
		return nil, err
	}
	return p.client.CreateSubscription(ctx, name, pubsub.SubscriptionConfig{
		Topic:       topic,
		AckDeadline: pubsubAckDeadline,
		RetryPolicy: &pubsub.RetryPolicy{
			MinimumBackoff: pubsubMinBackoff,
			MaximumBackoff: pubsubMaxBackoff,
		},
		DeadLetterPolicy: &pubsub.DeadLetterPolicy{
			DeadLetterTopic:     dead.String(),
			MaxDeliveryAttempts: MaxAttempts,
		},
	})
}

// fromPubSub converts a received message. DeliveryAttempt counts the current
// delivery and is only set on subscriptions with a dead-letter policy.
func fromPubSub(m *pubsub.Message) Message {
	msg := Message{ID: m.ID, Data: m.Data, Attributes: m.Attributes}
	if m.DeliveryAttempt != nil && *m.DeliveryAttempt > 1 {
		attrs := make(map[string]string, len(m.Attributes)+1)
		for k, v := range m.Attributes {
			attrs[k] = v
		}
		attrs[AttrAttempt] = strconv.Itoa(*m.DeliveryAttempt - 1)
		msg.Attributes = attrs
	}
	return msg
}
