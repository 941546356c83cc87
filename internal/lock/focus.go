package lock

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"studylock-backend/internal/logging"
)

const (
	// AwayThreshold is how long the app may be backgrounded before a
	// return counts against the user.
	AwayThreshold = 3 * time.Second
	// PenaltyGrace delays the penalty after the warning is shown.
	PenaltyGrace = 5 * time.Second
	// SessionPenaltyPoints accrue locally per applied penalty.
	SessionPenaltyPoints = 5
	// StreakResetBreaks is the break count at which the streak is lost.
	StreakResetBreaks = 3
)

type Penalty struct {
	Breaks      int
	Away        time.Duration
	ResetStreak bool
}

// Penalizer persists a focus penalty (reliability and streak).
type Penalizer interface {
	Penalize(ctx context.Context, p Penalty) error
}

type Warning struct {
	Breaks  int           `json:"breaks"`
	Away    time.Duration `json:"away"`
	Message string        `json:"message"`
}

type stopper interface {
	Stop() bool
}

// FocusTracker watches lifecycle transitions while the lock is up.
// It is a best-effort signal: nothing is enforced while the app stays
// in the background.
type FocusTracker struct {
	mu        sync.Mutex
	penalizer Penalizer
	log       logging.Logger
	now       func() time.Time
	afterFunc func(d time.Duration, f func()) stopper

	breaks  int
	leftAt  time.Time
	points  int
	pending stopper
	gen     int
}

func NewFocusTracker(p Penalizer, log logging.Logger) *FocusTracker {
	return &FocusTracker{
		penalizer: p,
		log:       log,
		now:       time.Now,
		afterFunc: func(d time.Duration, f func()) stopper { return time.AfterFunc(d, f) },
	}
}

// Background records a break when the app leaves the foreground while locked.
func (f *FocusTracker) Background(locked bool) {
	if !locked {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.breaks++
	f.leftAt = f.now()
}

// Foreground closes an away period. If the user was gone longer than
// AwayThreshold and the lock is still up, a warning is returned and a
// penalty is scheduled after PenaltyGrace.
func (f *FocusTracker) Foreground(locked bool) *Warning {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.leftAt.IsZero() {
		return nil
	}
	away := f.now().Sub(f.leftAt)
	f.leftAt = time.Time{}
	if !locked || away <= AwayThreshold {
		return nil
	}

	p := Penalty{Breaks: f.breaks, Away: away, ResetStreak: f.breaks >= StreakResetBreaks}
	if f.pending != nil {
		f.pending.Stop()
	}
	f.gen++
	gen := f.gen
	f.pending = f.afterFunc(PenaltyGrace, func() { f.apply(p, gen) })

	return &Warning{
		Breaks:  f.breaks,
		Away:    away,
		Message: fmt.Sprintf("You left the app for %ds. Complete your task to avoid penalties!", int(math.Round(away.Seconds()))),
	}
}

func (f *FocusTracker) apply(p Penalty, gen int) {
	f.mu.Lock()
	if f.pending == nil || gen != f.gen {
		f.mu.Unlock()
		return
	}
	f.pending = nil
	f.points += SessionPenaltyPoints
	f.mu.Unlock()

	if f.penalizer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := f.penalizer.Penalize(ctx, p); err != nil {
		f.log.Warn("focus penalty not recorded", "breaks", p.Breaks, "error", err)
		return
	}
	f.log.Info("focus penalty applied", "breaks", p.Breaks, "away", p.Away, "reset_streak", p.ResetStreak)
}

// Unlocked cancels a penalty that has not fired yet.
func (f *FocusTracker) Unlocked() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending != nil {
		f.pending.Stop()
		f.pending = nil
	}
	f.leftAt = time.Time{}
}

// Reset clears the session: breaks, points and any pending penalty.
func (f *FocusTracker) Reset() {
	f.Unlocked()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.breaks = 0
	f.points = 0
}

func (f *FocusTracker) Breaks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.breaks
}

func (f *FocusTracker) SessionPoints() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.points
}
