// Package mq carries background work (auth emails) between the web server
// and the worker over a pluggable broker.
package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/brazeiro63/vovo-achados-portal/config"
)

const (
	// AttrContentType carries the payload encoding.
	AttrContentType = "content-type"
	// AttrAttempt counts failed deliveries of a message so far.
	AttrAttempt = "attempt"

	// MaxAttempts is how many times a handler may fail a message before it
	// is moved to the dead-letter channel.
	MaxAttempts = 5
)

// DeadLetter names the channel collecting messages of channel that kept
// failing.
func DeadLetter(channel string) string {
	return channel + ".dead"
}

// Message is a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Attempt returns how many deliveries of msg already failed.
func (msg Message) Attempt() int {
	n, err := strconv.Atoi(msg.Attributes[AttrAttempt])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// retried returns a copy of msg for its next delivery and whether it has
// attempts left.
func (msg Message) retried() (Message, bool) {
	attempt := msg.Attempt() + 1
	attrs := make(map[string]string, len(msg.Attributes)+1)
	for k, v := range msg.Attributes {
		attrs[k] = v
	}
	attrs[AttrAttempt] = strconv.Itoa(attempt)
	msg.Attributes = attrs
	return msg, attempt < MaxAttempts
}

// Handler processes a message. Return an error to have it redelivered.
type Handler func(ctx context.Context, msg Message) error

// Backend is implemented by the memory, RabbitMQ and Pub/Sub clients.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// MQ wraps a backend with JSON helpers.
type MQ struct {
	backend Backend
	name    string
}

func New(backend Backend, name string) *MQ {
	return &MQ{backend: backend, name: name}
}

// Open builds the backend selected by cfg.MQ.Backend.
func Open(ctx context.Context, cfg config.Config) (*MQ, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.MQ.Backend)) {
	case "", "memory":
		return New(NewMemory(), "memory"), nil
	case "rabbitmq":
		client, err := NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, fmt.Errorf("rabbitmq: %w", err)
		}
		return New(client, "rabbitmq"), nil
	case "pubsub":
		client, err := NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, fmt.Errorf("pubsub: %w", err)
		}
		return New(client, "pubsub"), nil
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.MQ.Backend)
	}
}

// Name is the backend name, for logs.
func (m *MQ) Name() string {
	return m.name
}

func (m *MQ) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	return m.backend.Publish(ctx, channel, data, attrs)
}

// PublishJSON encodes v and publishes it with a content-type attribute.
func (m *MQ) PublishJSON(ctx context.Context, channel string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode %s message: %w", channel, err)
	}
	return m.backend.Publish(ctx, channel, data, map[string]string{AttrContentType: "application/json"})
}

// Subscribe blocks consuming channel until ctx ends or the backend fails.
func (m *MQ) Subscribe(ctx context.Context, channel string, handler Handler) error {
	return m.backend.Subscribe(ctx, channel, handler)
}

func (m *MQ) Close() error {
	return m.backend.Close()
}
