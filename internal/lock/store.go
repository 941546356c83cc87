package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"studylock-backend/internal/logging"
	"studylock-backend/internal/tasks"
)

// PollInterval is the safety-net refetch period.
const PollInterval = 60 * time.Second

// Source yields the user's open tasks. *tasks.Service implements it.
type Source interface {
	ListOpen(ctx context.Context, userID uuid.UUID) ([]tasks.Task, error)
}

type Event int

const (
	EventTasksChanged Event = iota + 1
	EventForeground
	EventBackground
)

func (e Event) String() string {
	switch e {
	case EventTasksChanged:
		return "tasks_changed"
	case EventForeground:
		return "foreground"
	case EventBackground:
		return "background"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// Store owns one user's lock session: the task snapshot, the submission
// flags and the derived state. Every trigger ends in Recompute.
type Store struct {
	source Source
	userID uuid.UUID
	log    logging.Logger
	focus  *FocusTracker
	now    func() time.Time
	poll   time.Duration

	mu       sync.Mutex
	snapshot []tasks.Task
	flags    Flags
	state    State
	subs     map[int]chan State
	nextSub  int
	warnings chan Warning
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithPollInterval(d time.Duration) Option {
	return func(s *Store) { s.poll = d }
}

func WithFocusTracker(f *FocusTracker) Option {
	return func(s *Store) { s.focus = f }
}

func NewStore(source Source, userID uuid.UUID, log logging.Logger, opts ...Option) *Store {
	s := &Store{
		source:   source,
		userID:   userID,
		log:      log,
		now:      time.Now,
		poll:     PollInterval,
		subs:     map[int]chan State{},
		warnings: make(chan Warning, 1),
	}
	for _, o := range opts {
		o(s)
	}
	s.state = Recompute(nil, s.now(), Flags{})
	return s
}

// State returns the last computed state without recomputing.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Refresh refetches the snapshot and recomputes. On a fetch error the
// previous snapshot stays in place and the error is returned.
func (s *Store) Refresh(ctx context.Context) (State, error) {
	snapshot, err := s.source.ListOpen(ctx, s.userID)
	if err != nil {
		return s.Evaluate(), fmt.Errorf("refresh lock snapshot: %w", err)
	}

	s.mu.Lock()
	s.snapshot = snapshot
	st := s.recomputeLocked()
	s.mu.Unlock()
	return st, nil
}

// Evaluate recomputes against the current snapshot and clock.
func (s *Store) Evaluate() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recomputeLocked()
}

// UnlockForProof lifts the lock so the proof flow can be shown.
func (s *Store) UnlockForProof() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags.UnlockedForProof = true
	return s.recomputeLocked()
}

func (s *Store) SetSubmitting(submitting bool) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags.SubmittingProof = submitting
	return s.recomputeLocked()
}

// Relock closes the submission flow: both flags are cleared and the
// snapshot refetched, so the lock returns if anything is still overdue.
func (s *Store) Relock(ctx context.Context) (State, error) {
	s.mu.Lock()
	s.flags = Flags{}
	s.mu.Unlock()
	return s.Refresh(ctx)
}

// Subscribe delivers every state change. Slow readers only ever see the
// latest state. Call the returned func to unsubscribe.
func (s *Store) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan State, 1)
	ch <- s.state
	s.subs[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// Warnings carries focus-break warnings raised on foreground transitions.
func (s *Store) Warnings() <-chan Warning {
	return s.warnings
}

func (s *Store) recomputeLocked() State {
	prev := s.state
	s.state = Recompute(s.snapshot, s.now(), s.flags)

	if s.focus != nil && prev.Locked && !s.state.Locked {
		s.focus.Unlocked()
	}
	if !s.state.Same(prev) {
		for _, ch := range s.subs {
			select {
			case <-ch:
			default:
			}
			ch <- s.state
		}
	}
	return s.state
}

// Run drives the store until ctx is done. Triggers: the poll ticker, a
// timer at the next upcoming deadline, realtime change events and app
// lifecycle events. A foreground transition always refetches.
func (s *Store) Run(ctx context.Context, events <-chan Event) error {
	if _, err := s.Refresh(ctx); err != nil {
		s.log.Warn("initial lock refresh failed", "user", s.userID, "error", err)
	}

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	wake := time.NewTimer(time.Hour)
	wake.Stop()
	defer wake.Stop()
	armed := s.arm(wake, time.Time{})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			s.refresh(ctx, "poll")

		case <-wake.C:
			s.Evaluate()
			armed = time.Time{}

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.handle(ctx, ev)
		}
		armed = s.arm(wake, armed)
	}
}

func (s *Store) handle(ctx context.Context, ev Event) {
	switch ev {
	case EventTasksChanged:
		s.refresh(ctx, ev.String())
	case EventBackground:
		if s.focus != nil {
			s.focus.Background(s.State().Locked)
		}
	case EventForeground:
		st := s.refresh(ctx, ev.String())
		if s.focus == nil {
			return
		}
		if w := s.focus.Foreground(st.Locked); w != nil {
			select {
			case s.warnings <- *w:
			default:
			}
		}
	}
}

func (s *Store) refresh(ctx context.Context, trigger string) State {
	st, err := s.Refresh(ctx)
	if err != nil {
		s.log.Warn("lock refresh failed, keeping previous snapshot", "trigger", trigger, "error", err)
		return st
	}
	s.log.Debug("lock evaluated", "trigger", trigger, "locked", st.Locked, "overdue", len(st.Overdue))
	return st
}

// arm points the wake timer at the current NextWake if it moved.
func (s *Store) arm(t *time.Timer, armed time.Time) time.Time {
	next := s.State().NextWake
	if next.Equal(armed) {
		return armed
	}
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	if next.IsZero() {
		return next
	}
	d := next.Sub(s.now())
	if d < 0 {
		d = 0
	}
	// fire just past the deadline so Overdue's "deadline <= now" holds
	t.Reset(d + time.Millisecond)
	return next
}
