// Package realtime turns Postgres task-change notifications into lock events.
package realtime

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"studylock-backend/internal/lock"
	"studylock-backend/internal/logging"
)

// Channel is the NOTIFY channel written by the tasks trigger. The payload
// is the owning user's id.
const Channel = "task_changes"

const (
	minReconnect = 2 * time.Second
	maxReconnect = time.Minute
	pingEvery    = 90 * time.Second
)

// Listener is the part of *pq.Listener the feed reads from.
type Listener interface {
	Listen(channel string) error
	NotificationChannel() <-chan *pq.Notification
	Ping() error
	Close() error
}

type Feed struct {
	listener Listener
	log      logging.Logger
}

// Dial opens a dedicated LISTEN connection.
func Dial(connString string, log logging.Logger) (*Feed, error) {
	l := pq.NewListener(connString, minReconnect, maxReconnect, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventDisconnected:
			log.Warn("realtime listener disconnected", "error", err)
		case pq.ListenerEventReconnected:
			log.Info("realtime listener reconnected")
		case pq.ListenerEventConnectionAttemptFailed:
			log.Warn("realtime listener connect failed", "error", err)
		}
	})
	return New(l, log)
}

func New(l Listener, log logging.Logger) (*Feed, error) {
	if err := l.Listen(Channel); err != nil {
		_ = l.Close()
		return nil, err
	}
	return &Feed{listener: l, log: log}, nil
}

// Events yields EventTasksChanged whenever one of userID's tasks changes.
// After a reconnect pq delivers a nil notification; that is forwarded too,
// since changes may have been missed while disconnected. The channel is
// closed when ctx is done.
func (f *Feed) Events(ctx context.Context, userID uuid.UUID) <-chan lock.Event {
	out := make(chan lock.Event, 1)
	want := userID.String()

	go func() {
		defer close(out)
		ping := time.NewTicker(pingEvery)
		defer ping.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-f.listener.NotificationChannel():
				if !ok {
					return
				}
				if n != nil && !strings.EqualFold(strings.TrimSpace(n.Extra), want) {
					continue
				}
				select {
				case out <- lock.EventTasksChanged:
				default:
					// a change is already queued; one refetch covers both
				}
			case <-ping.C:
				if err := f.listener.Ping(); err != nil {
					f.log.Warn("realtime listener ping failed", "error", err)
				}
			}
		}
	}()
	return out
}

func (f *Feed) Close() error {
	return f.listener.Close()
}
