package profiles

import (
	"time"

	"github.com/google/uuid"
)

const (
	// ReliabilityPenalty is taken off reliability_score per penalized focus break.
	ReliabilityPenalty = 2
	// StreakResetBreaks is the break count at which the streak is lost.
	StreakResetBreaks = 3
)

type Profile struct {
	UserID           uuid.UUID `json:"user_id"`
	Username         string    `json:"username,omitempty"`
	StreakCount      int       `json:"streak_count"`
	TotalCompleted   int       `json:"total_completed"`
	ReliabilityScore int       `json:"reliability_score"`
	Points           int       `json:"points"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type FocusBreakInput struct {
	Breaks      int     `json:"breaks" validate:"min=1"`
	AwaySeconds float64 `json:"away_seconds" validate:"gte=0"`
}
