// Package worker runs the background side of the portal: auth link delivery
// and periodic cleanup of expired sessions.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/brazeiro63/vovo-achados-portal/internal/mq"
	"github.com/brazeiro63/vovo-achados-portal/internal/notify"
	"github.com/brazeiro63/vovo-achados-portal/types"
	"github.com/robfig/cron/v3"
)

// DefaultPurgeSchedule runs the cleanup at minute 7 of every hour.
const DefaultPurgeSchedule = "7 * * * *"

// Purger removes expired sessions and link tokens.
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (sessions, tokens int64, err error)
}

// Subscriber is the part of *mq.MQ the worker consumes from.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler mq.Handler) error
}

type Worker struct {
	bus      Subscriber
	mailer   notify.Mailer
	purger   Purger
	schedule string
	logger   *slog.Logger
}

func New(bus Subscriber, mailer notify.Mailer, purger Purger, schedule string, logger *slog.Logger) *Worker {
	if schedule == "" {
		schedule = DefaultPurgeSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{bus: bus, mailer: mailer, purger: purger, schedule: schedule, logger: logger}
}

// Run consumes auth links until ctx is cancelled. The purge job runs on its
// own schedule meanwhile.
func (w *Worker) Run(ctx context.Context) error {
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(w.schedule, func() { w.Purge(ctx) }); err != nil {
		return err
	}
	scheduler.Start()
	defer func() {
		<-scheduler.Stop().Done()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w.logger.Info("worker started", slog.String("channel", notify.LinksChannel), slog.String("purge_schedule", w.schedule))
	errs := make(chan error, 2)
	go func() {
		errs <- w.bus.Subscribe(ctx, notify.LinksChannel, notify.Handler(w.mailer, w.logger))
	}()
	go func() {
		errs <- w.bus.Subscribe(ctx, mq.DeadLetter(notify.LinksChannel), w.abandoned)
	}()

	// The first consumer to stop takes the other one down.
	err := <-errs
	cancel()
	<-errs
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// abandoned records links that could not be delivered after every attempt.
func (w *Worker) abandoned(ctx context.Context, msg mq.Message) error {
	var link types.AuthLink
	if err := json.Unmarshal(msg.Data, &link); err != nil {
		w.logger.ErrorContext(ctx, "undeliverable message", slog.String("message_id", msg.ID))
		return nil
	}
	w.logger.ErrorContext(ctx, "auth link abandoned",
		slog.String("message_id", msg.ID),
		slog.String("kind", string(link.Kind)),
		slog.String("email", link.Email),
		slog.Int("attempts", msg.Attempt()),
	)
	return nil
}

// Purge runs one cleanup pass.
func (w *Worker) Purge(ctx context.Context) {
	sessions, tokens, err := w.purger.PurgeExpired(ctx, time.Now())
	if err != nil {
		w.logger.Error("purge expired auth data", slog.String("error", err.Error()))
		return
	}
	w.logger.Info("purged expired auth data", slog.Int64("sessions", sessions), slog.Int64("tokens", tokens))
}
