package tasks

import (
	"time"

	"github.com/google/uuid"
)

type CreateInput struct {
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=2000"`
	Type        Type       `json:"task_type" validate:"required,oneof=assignment exam_prep project personal"`
	Deadline    time.Time  `json:"deadline" validate:"required"`
	BuddyID     *uuid.UUID `json:"buddy_id"`
}

// ProofInput is one submission: free text, an uploaded artifact, or both.
type ProofInput struct {
	Text        string
	File        []byte
	FileName    string
	ContentType string
}

// proofUpdate moves a task from pending/rejected to submitted.
type proofUpdate struct {
	Text        string
	URL         string
	Hash        string
	SubmittedAt time.Time
}

// verdict moves a submitted task to approved or rejected.
type verdict struct {
	Status     Status
	Feedback   string
	Confidence int
	Points     int
	ApprovedAt *time.Time
}
