package profiles

import (
	"context"

	txStdLib "github.com/Thiht/transactor/stdlib"
	"github.com/google/uuid"
)

// points is derived, never stored: the sum earned by approved tasks.
const returningProfile = `
	RETURNING user_id, COALESCE(username, ''), streak_count, total_completed,
		reliability_score,
		(SELECT COALESCE(SUM(t.points_earned), 0) FROM tasks t
		 WHERE t.user_id = profiles.user_id AND t.status = 'approved'),
		created_at, updated_at`

type Repo struct {
	dbGetter txStdLib.DBGetter
}

func NewRepo(dbGetter txStdLib.DBGetter) *Repo {
	return &Repo{dbGetter: dbGetter}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (Profile, error) {
	var p Profile
	err := row.Scan(&p.UserID, &p.Username, &p.StreakCount, &p.TotalCompleted,
		&p.ReliabilityScore, &p.Points, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// Get returns the user's profile, creating it on first access.
func (r *Repo) Get(ctx context.Context, userID uuid.UUID) (Profile, error) {
	// the no-op update makes RETURNING yield the existing row too
	return scanProfile(r.dbGetter(ctx).QueryRowContext(ctx, `
		INSERT INTO profiles (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
	`+returningProfile, userID))
}

// RecordApproval counts one approved task and extends the streak.
func (r *Repo) RecordApproval(ctx context.Context, userID uuid.UUID) error {
	_, err := r.dbGetter(ctx).ExecContext(ctx, `
		INSERT INTO profiles (user_id, total_completed, streak_count)
		VALUES ($1, 1, 1)
		ON CONFLICT (user_id) DO UPDATE SET
			total_completed = profiles.total_completed + 1,
			streak_count = profiles.streak_count + 1,
			updated_at = now()
	`, userID)
	return err
}

// ApplyFocusPenalty lowers reliability (never below zero) and optionally
// resets the streak.
func (r *Repo) ApplyFocusPenalty(ctx context.Context, userID uuid.UUID, resetStreak bool) (Profile, error) {
	return scanProfile(r.dbGetter(ctx).QueryRowContext(ctx, `
		INSERT INTO profiles (user_id, reliability_score)
		VALUES ($1, GREATEST(100 - $2, 0))
		ON CONFLICT (user_id) DO UPDATE SET
			reliability_score = GREATEST(profiles.reliability_score - $2, 0),
			streak_count = CASE WHEN $3 THEN 0 ELSE profiles.streak_count END,
			updated_at = now()
	`+returningProfile, userID, ReliabilityPenalty, resetStreak))
}
