// Package reminders pushes a notification for tasks about to hit their
// deadline, once per task.
package reminders

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"studylock-backend/internal/analytics"
	"studylock-backend/internal/logging"
	"studylock-backend/internal/notify"
	"studylock-backend/internal/tasks"
)

// Horizon is how far ahead a deadline must be to trigger a reminder.
const Horizon = time.Hour

type TaskStore interface {
	DueForReminder(ctx context.Context, from, to time.Time) ([]tasks.Task, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID) error
}

type SubscriptionStore interface {
	ForUser(ctx context.Context, userID uuid.UUID) ([]notify.Subscription, error)
	Prune(ctx context.Context, endpoint string) error
}

type Sender interface {
	Send(ctx context.Context, sub notify.Subscription, msg notify.Message) error
}

type Reminder struct {
	tasks     TaskStore
	subs      SubscriptionStore
	sender    Sender
	analytics *analytics.Recorder
	log       logging.Logger
	now       func() time.Time
}

func New(ts TaskStore, subs SubscriptionStore, sender Sender, rec *analytics.Recorder, log logging.Logger) *Reminder {
	return &Reminder{
		tasks:     ts,
		subs:      subs,
		sender:    sender,
		analytics: rec,
		log:       log,
		now:       time.Now,
	}
}

// Message is the notification shown for t at now.
func Message(t tasks.Task, now time.Time) notify.Message {
	minutes := int(math.Round(t.Deadline.Sub(now).Minutes()))
	return notify.Message{
		Title: "⏰ Deadline Approaching!",
		Body:  fmt.Sprintf("\"%s\" is due in %d minutes. Don't forget to complete it!", t.Title, minutes),
		Icon:  "/favicon.ico",
		Tag:   "deadline-" + t.ID.String(),
	}
}

// Run sends one round of reminders and returns how many tasks were
// reminded. Per-subscription delivery failures never abort the round.
func (r *Reminder) Run(ctx context.Context) (int, error) {
	if r.sender == nil {
		return 0, notify.ErrNotConfigured
	}

	now := r.now()
	due, err := r.tasks.DueForReminder(ctx, now, now.Add(Horizon))
	if err != nil {
		return 0, fmt.Errorf("load tasks due for reminder: %w", err)
	}
	r.log.Info("tasks needing reminders", "count", len(due))

	sent := 0
	for _, t := range due {
		subs, err := r.subs.ForUser(ctx, t.UserID)
		if err != nil {
			r.log.Error("load push subscriptions failed", "task", t.ID, "user", t.UserID, "error", err)
			continue
		}

		msg := Message(t, now)
		delivered := 0
		for _, sub := range subs {
			if err := r.sender.Send(ctx, sub, msg); err != nil {
				r.handleFailure(ctx, t, sub, err)
				continue
			}
			delivered++
		}

		if err := r.tasks.MarkReminderSent(ctx, t.ID); err != nil {
			r.log.Error("mark reminder sent failed", "task", t.ID, "error", err)
			continue
		}
		sent++

		r.analytics.Log(ctx, analytics.Envelope{UserID: t.UserID}, analytics.EventReminderSent, map[string]any{
			"task_id":       t.ID,
			"subscriptions": len(subs),
			"delivered":     delivered,
		}, "reminder:"+t.ID.String())
	}
	return sent, nil
}

func (r *Reminder) handleFailure(ctx context.Context, t tasks.Task, sub notify.Subscription, err error) {
	if !errors.Is(err, notify.ErrSubscriptionGone) {
		r.log.Warn("push delivery failed", "task", t.ID, "error", err)
		return
	}
	if err := r.subs.Prune(ctx, sub.Endpoint); err != nil {
		r.log.Warn("prune expired subscription failed", "error", err)
		return
	}
	r.log.Info("pruned expired push subscription", "user", t.UserID)
}
