// Package lock derives whether the app must be locked from the user's
// open tasks and the clock. The decision is a pure function; everything
// else in the package only decides when to call it again.
package lock

import (
	"sort"
	"time"

	"studylock-backend/internal/tasks"
)

// WakeHorizon bounds how far ahead a deadline timer is armed.
const WakeHorizon = 24 * time.Hour

// Flags are the submission-flow overrides that suppress the lock.
type Flags struct {
	UnlockedForProof bool
	SubmittingProof  bool
}

type Phase string

const (
	PhaseUnlocked            Phase = "unlocked"
	PhaseLocked              Phase = "locked"
	PhaseTemporarilyUnlocked Phase = "temporarily_unlocked"
)

type State struct {
	Locked           bool         `json:"locked"`
	Phase            Phase        `json:"phase"`
	LockingTask      *tasks.Task  `json:"locking_task"`
	Overdue          []tasks.Task `json:"overdue"`
	Upcoming         []tasks.Task `json:"upcoming"`
	UnlockedForProof bool         `json:"unlocked_for_proof"`
	SubmittingProof  bool         `json:"submitting_proof"`
	NextWake         time.Time    `json:"next_wake,omitzero"`
	EvaluatedAt      time.Time    `json:"evaluated_at"`
}

// Recompute derives the lock state from scratch. It never looks at a
// previous state, so calling it twice with the same inputs is harmless.
func Recompute(snapshot []tasks.Task, now time.Time, flags Flags) State {
	var open []tasks.Task
	for _, t := range snapshot {
		if t.Status.Open() {
			open = append(open, t)
		}
	}
	sort.SliceStable(open, func(i, j int) bool {
		return open[i].Deadline.Before(open[j].Deadline)
	})

	s := State{
		Overdue:          []tasks.Task{},
		Upcoming:         []tasks.Task{},
		UnlockedForProof: flags.UnlockedForProof,
		SubmittingProof:  flags.SubmittingProof,
		EvaluatedAt:      now,
	}
	for _, t := range open {
		if t.Overdue(now) {
			s.Overdue = append(s.Overdue, t)
		} else {
			s.Upcoming = append(s.Upcoming, t)
		}
	}

	if len(s.Overdue) > 0 {
		lt := s.Overdue[0]
		s.LockingTask = &lt
	}
	s.Locked = len(s.Overdue) > 0 && !flags.UnlockedForProof && !flags.SubmittingProof

	switch {
	case s.Locked:
		s.Phase = PhaseLocked
	case len(s.Overdue) > 0:
		s.Phase = PhaseTemporarilyUnlocked
	default:
		s.Phase = PhaseUnlocked
	}

	if len(s.Upcoming) > 0 {
		if next := s.Upcoming[0].Deadline; next.Sub(now) <= WakeHorizon {
			s.NextWake = next
		}
	}
	return s
}

// Same reports whether two states would render identically.
func (s State) Same(o State) bool {
	if s.Locked != o.Locked || s.Phase != o.Phase ||
		s.UnlockedForProof != o.UnlockedForProof || s.SubmittingProof != o.SubmittingProof ||
		!s.NextWake.Equal(o.NextWake) ||
		len(s.Overdue) != len(o.Overdue) || len(s.Upcoming) != len(o.Upcoming) {
		return false
	}
	if (s.LockingTask == nil) != (o.LockingTask == nil) {
		return false
	}
	if s.LockingTask != nil && s.LockingTask.ID != o.LockingTask.ID {
		return false
	}
	for i := range s.Overdue {
		if s.Overdue[i].ID != o.Overdue[i].ID {
			return false
		}
	}
	for i := range s.Upcoming {
		if s.Upcoming[i].ID != o.Upcoming[i].ID {
			return false
		}
	}
	return true
}
