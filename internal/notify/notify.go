// Package notify moves recovery and confirmation links from the web server
// to the worker that delivers them.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/brazeiro63/vovo-achados-portal/internal/mq"
	"github.com/brazeiro63/vovo-achados-portal/types"
)

// LinksChannel is the queue/topic carrying types.AuthLink messages.
const LinksChannel = "auth.links"

// Publisher is the part of *mq.MQ the outbox needs.
type Publisher interface {
	PublishJSON(ctx context.Context, channel string, v any) (string, error)
}

// Outbox queues links for delivery. It satisfies identity.LinkSender.
type Outbox struct {
	publisher Publisher
	logger    *slog.Logger
}

func NewOutbox(publisher Publisher, logger *slog.Logger) *Outbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Outbox{publisher: publisher, logger: logger}
}

func (o *Outbox) SendLink(ctx context.Context, link types.AuthLink) error {
	id, err := o.publisher.PublishJSON(ctx, LinksChannel, link)
	if err != nil {
		return err
	}
	o.logger.Debug("auth link queued", slog.String("message_id", id), slog.String("kind", string(link.Kind)))
	return nil
}

// Mailer delivers a link to its recipient.
type Mailer interface {
	Deliver(ctx context.Context, link types.AuthLink) error
}

// LogMailer writes links to the log instead of sending email. It is the
// delivery used in development.
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) Deliver(ctx context.Context, link types.AuthLink) error {
	m.Logger.InfoContext(ctx, "auth link",
		slog.String("kind", string(link.Kind)),
		slog.String("email", link.Email),
		slog.String("url", link.URL),
		slog.Time("expires_at", link.ExpiresAt),
	)
	return nil
}

// Handler decodes queued links and hands them to mailer. Undecodable
// messages are logged and acknowledged.
func Handler(mailer Mailer, logger *slog.Logger) mq.Handler {
	return func(ctx context.Context, msg mq.Message) error {
		var link types.AuthLink
		if err := json.Unmarshal(msg.Data, &link); err != nil {
			logger.Error("drop malformed auth link", slog.String("message_id", msg.ID), slog.String("error", err.Error()))
			return nil
		}
		if err := mailer.Deliver(ctx, link); err != nil {
			return fmt.Errorf("deliver %s link: %w", link.Kind, err)
		}
		return nil
	}
}
