// Package verification judges whether submitted proof genuinely shows a
// task was completed. The model is treated as a noisy classifier: its
// verdict passes through a parse fallback and a confidence floor before
// it reaches the caller.
package verification

import "errors"

// ConfidenceFloor is the lowest confidence an approval may carry.
const ConfidenceFloor = 60

var ErrInvalidRequest = errors.New("taskTitle is required")

type Request struct {
	TaskTitle       string `json:"taskTitle" validate:"required"`
	TaskDescription string `json:"taskDescription,omitempty"`
	TaskType        string `json:"taskType"`
	ProofText       string `json:"proofText,omitempty"`
	ProofURL        string `json:"proofUrl,omitempty"`
}

type Result struct {
	Approved        bool     `json:"approved"`
	Confidence      float64  `json:"confidence"`
	Feedback        string   `json:"feedback"`
	MatchedKeywords []string `json:"matchedKeywords"`
	Concerns        []string `json:"concerns"`
}
