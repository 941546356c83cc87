package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studylock-backend/internal/logging"
	"studylock-backend/internal/tasks"
)

type recordingPenalizer struct {
	mu        sync.Mutex
	penalties []Penalty
}

func (p *recordingPenalizer) Penalize(_ context.Context, pen Penalty) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.penalties = append(p.penalties, pen)
	return nil
}

// manualTimer runs its callback only when fired by the test.
type manualTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (m *manualTimer) Stop() bool {
	was := !m.stopped
	m.stopped = true
	return was
}

func (m *manualTimer) fire() {
	if !m.stopped {
		m.stopped = true
		m.f()
	}
}

func newTracker(t *testing.T) (*FocusTracker, *recordingPenalizer, *fakeClock, *[]*manualTimer) {
	t.Helper()
	pen := &recordingPenalizer{}
	clock := &fakeClock{now: t0}
	timers := &[]*manualTimer{}

	ft := NewFocusTracker(pen, logging.Discard())
	ft.now = clock.Now
	ft.afterFunc = func(d time.Duration, f func()) stopper {
		mt := &manualTimer{d: d, f: f}
		*timers = append(*timers, mt)
		return mt
	}
	return ft, pen, clock, timers
}

func TestFocus_ShortAbsenceIsFree(t *testing.T) {
	ft, pen, clock, timers := newTracker(t)

	ft.Background(true)
	clock.Advance(AwayThreshold)
	assert.Nil(t, ft.Foreground(true))
	assert.Equal(t, 1, ft.Breaks())
	assert.Empty(t, *timers)
	assert.Empty(t, pen.penalties)
}

func TestFocus_LongAbsenceWarnsThenPenalizes(t *testing.T) {
	ft, pen, clock, timers := newTracker(t)

	ft.Background(true)
	clock.Advance(8 * time.Second)
	w := ft.Foreground(true)
	require.NotNil(t, w)
	assert.Equal(t, 1, w.Breaks)
	assert.Equal(t, 8*time.Second, w.Away)
	assert.Contains(t, w.Message, "8s")

	require.Len(t, *timers, 1)
	assert.Equal(t, PenaltyGrace, (*timers)[0].d)
	(*timers)[0].fire()

	require.Len(t, pen.penalties, 1)
	assert.False(t, pen.penalties[0].ResetStreak)
	assert.Equal(t, SessionPenaltyPoints, ft.SessionPoints())
}

func TestFocus_ThirdBreakResetsStreak(t *testing.T) {
	ft, pen, clock, timers := newTracker(t)

	for i := 0; i < StreakResetBreaks; i++ {
		ft.Background(true)
		clock.Advance(10 * time.Second)
		require.NotNil(t, ft.Foreground(true))
		(*timers)[len(*timers)-1].fire()
	}

	require.Len(t, pen.penalties, 3)
	assert.False(t, pen.penalties[1].ResetStreak)
	assert.True(t, pen.penalties[2].ResetStreak)
	assert.Equal(t, 3*SessionPenaltyPoints, ft.SessionPoints())
}

func TestFocus_UnlockCancelsPendingPenalty(t *testing.T) {
	ft, pen, clock, timers := newTracker(t)

	ft.Background(true)
	clock.Advance(10 * time.Second)
	require.NotNil(t, ft.Foreground(true))

	ft.Unlocked()
	(*timers)[0].fire()
	assert.Empty(t, pen.penalties)
	assert.Zero(t, ft.SessionPoints())
}

func TestFocus_NotLocked(t *testing.T) {
	ft, _, clock, timers := newTracker(t)

	ft.Background(false)
	clock.Advance(time.Minute)
	assert.Nil(t, ft.Foreground(false))
	assert.Zero(t, ft.Breaks())

	ft.Background(true)
	clock.Advance(time.Minute)
	assert.Nil(t, ft.Foreground(false), "lock lifted while away")
	assert.Empty(t, *timers)
}

func TestFocus_Reset(t *testing.T) {
	ft, pen, clock, timers := newTracker(t)

	ft.Background(true)
	clock.Advance(10 * time.Second)
	ft.Foreground(true)
	ft.Reset()
	(*timers)[0].fire()

	assert.Zero(t, ft.Breaks())
	assert.Zero(t, ft.SessionPoints())
	assert.Empty(t, pen.penalties)
}

func TestStore_RelockCancelsFocusPenaltyWhenUnlocked(t *testing.T) {
	ft, pen, clock, timers := newTracker(t)
	src := &fakeSource{}
	src.set(task("Essay", t0.Add(-time.Minute), tasks.StatusPending))
	s := NewStore(src, user, logging.Discard(), WithClock(clock.Now), WithFocusTracker(ft))

	_, err := s.Refresh(context.Background())
	require.NoError(t, err)

	ft.Background(true)
	clock.Advance(10 * time.Second)
	require.NotNil(t, ft.Foreground(true))

	s.UnlockForProof()
	(*timers)[0].fire()
	assert.Empty(t, pen.penalties)
}
