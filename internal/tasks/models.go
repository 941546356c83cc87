package tasks

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeAssignment Type = "assignment"
	TypeExamPrep   Type = "exam_prep"
	TypeProject    Type = "project"
	TypePersonal   Type = "personal"
)

func (t Type) Valid() bool {
	switch t {
	case TypeAssignment, TypeExamPrep, TypeProject, TypePersonal:
		return true
	}
	return false
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusMissed    Status = "missed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSubmitted, StatusApproved, StatusRejected, StatusMissed:
		return true
	}
	return false
}

// Open statuses still owe proof; only these can become overdue.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusRejected
}

// CanTransition reports whether the lifecycle allows moving from s to next.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusSubmitted || next == StatusMissed
	case StatusRejected:
		return next == StatusSubmitted
	case StatusSubmitted:
		return next == StatusApproved || next == StatusRejected
	}
	return false
}

type Task struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	BuddyID      *uuid.UUID `json:"buddy_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Type         Type       `json:"task_type"`
	Deadline     time.Time  `json:"deadline"`
	Status       Status     `json:"status"`
	ProofText    string     `json:"proof_text,omitempty"`
	ProofURL     string     `json:"proof_url,omitempty"`
	ProofHash    string     `json:"proof_hash,omitempty"`
	AIVerified   bool       `json:"ai_verified"`
	AIFeedback   string     `json:"ai_feedback,omitempty"`
	AIConfidence *int       `json:"ai_confidence,omitempty"`
	ReminderSent bool       `json:"reminder_sent"`
	PointsEarned int        `json:"points_earned"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	SubmittedAt  *time.Time `json:"submitted_at"`
	ApprovedAt   *time.Time `json:"approved_at"`
}

// Overdue is derived, never stored: an open task whose deadline has passed.
func (t Task) Overdue(now time.Time) bool {
	return t.Status.Open() && !t.Deadline.After(now)
}

func (t Task) VisibleTo(userID uuid.UUID) bool {
	if t.UserID == userID {
		return true
	}
	return t.BuddyID != nil && *t.BuddyID == userID
}
