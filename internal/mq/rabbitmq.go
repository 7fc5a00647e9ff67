package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/brazeiro63/vovo-achados-portal/config"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQClient maps channels to queues on the default exchange. Publishes
// share one amqp channel behind a mutex; every subscription gets its own
// amqp channel with the configured prefetch.
type RabbitMQClient struct {
	conn     *amqp.Connection
	cfg      config.RabbitMQConfig
	logger   *slog.Logger
	mu       sync.Mutex
	pub      *amqp.Channel
	declared map[string]bool
}

func NewRabbitMQClient(cfg config.RabbitMQConfig) (*RabbitMQClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rabbitmq url is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}
	pub, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &RabbitMQClient{
		conn:     conn,
		cfg:      cfg,
		logger:   slog.Default(),
		pub:      pub,
		declared: make(map[string]bool),
	}, nil
}

func (r *RabbitMQClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("rabbitmq channel is required")
	}
	msg := Message{ID: uuid.NewString(), Data: data, Attributes: attrs}
	if err := r.publish(ctx, channel, msg); err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (r *RabbitMQClient) publish(ctx context.Context, queue string, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.declare(r.pub, queue); err != nil {
		return err
	}
	return r.pub.PublishWithContext(ctx, "", queue, false, false, toPublishing(msg))
}

// Subscribe consumes the queue of channel. A failed message is acked and
// published again with its attempt count raised, or to the dead-letter
// queue once MaxAttempts is reached.
func (r *RabbitMQClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("rabbitmq channel is required")
	}

	ch, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if r.cfg.PrefetchCount > 0 {
		if err := ch.Qos(r.cfg.PrefetchCount, 0, false); err != nil {
			return err
		}
	}
	r.mu.Lock()
	err = r.declare(ch, channel)
	r.mu.Unlock()
	if err != nil {
		return err
	}

	deliveries, err := ch.Consume(channel, "vovo-"+uuid.NewString(), false, false, false, false, nil)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			msg := fromDelivery(delivery)
			if err := handler(ctx, msg); err != nil {
				r.retry(ctx, channel, delivery, msg, err)
				continue
			}
			_ = delivery.Ack(false)
		}
	}
}

func (r *RabbitMQClient) retry(ctx context.Context, channel string, delivery amqp.Delivery, msg Message, cause error) {
	next, ok := msg.retried()
	target := channel
	if !ok {
		target = DeadLetter(channel)
	}
	if err := r.publish(ctx, target, next); err != nil {
		// Leave it to the broker when the republish fails.
		_ = delivery.Nack(false, true)
		return
	}
	_ = delivery.Ack(false)
	r.logger.Warn("message failed",
		slog.String("channel", channel),
		slog.String("message_id", msg.ID),
		slog.Int("attempt", next.Attempt()),
		slog.String("requeued_to", target),
		slog.String("error", cause.Error()),
	)
}

func (r *RabbitMQClient) Close() error {
	if r.pub != nil {
		_ = r.pub.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// declare must be called with r.mu held.
func (r *RabbitMQClient) declare(ch *amqp.Channel, queue string) error {
	if r.declared[queue] {
		return nil
	}
	if _, err := ch.QueueDeclare(queue, r.cfg.QueueDurable, r.cfg.QueueAutoDelete, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	r.declared[queue] = true
	return nil
}

func toPublishing(msg Message) amqp.Publishing {
	p := amqp.Publishing{
		ContentType:  "application/octet-stream",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Headers:      amqp.Table{},
		Body:         msg.Data,
	}
	for key, value := range msg.Attributes {
		if key == AttrContentType {
			p.ContentType = value
			continue
		}
		p.Headers[key] = value
	}
	return p
}

func fromDelivery(d amqp.Delivery) Message {
	msg := Message{ID: d.MessageId, Data: d.Body, Attributes: headersToAttributes(d.Headers)}
	if d.ContentType != "" {
		if msg.Attributes == nil {
			msg.Attributes = map[string]string{}
		}
		msg.Attributes[AttrContentType] = d.ContentType
	}
	return msg
}

func headersToAttributes(headers amqp.Table) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(headers))
	for key, value := range headers {
		switch typed := value.(type) {
		case string:
			attrs[key] = typed
		case []byte:
			attrs[key] = string(typed)
		default:
			attrs[key] = fmt.Sprint(value)
		}
	}
	return attrs
}
