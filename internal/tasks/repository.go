package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	txStdLib "github.com/Thiht/transactor/stdlib"
	"github.com/google/uuid"
)

const selectTask = `
	SELECT
		id, user_id, buddy_id, title, COALESCE(description, ''),
		task_type, deadline, status,
		COALESCE(proof_text, ''), COALESCE(proof_url, ''), COALESCE(proof_hash, ''),
		ai_verified, COALESCE(ai_feedback, ''), ai_confidence,
		reminder_sent, points_earned,
		created_at, updated_at, submitted_at, approved_at
	FROM tasks`

// Repo is the Postgres-backed task store. Every method resolves its
// connection through dbGetter so calls join an open transaction.
type Repo struct {
	dbGetter txStdLib.DBGetter
}

func NewRepo(dbGetter txStdLib.DBGetter) *Repo {
	return &Repo{dbGetter: dbGetter}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (Task, error) {
	var (
		t          Task
		buddy      uuid.NullUUID
		confidence sql.NullInt64
		submitted  sql.NullTime
		approved   sql.NullTime
		taskType   string
		status     string
	)

	err := row.Scan(
		&t.ID, &t.UserID, &buddy, &t.Title, &t.Description,
		&taskType, &t.Deadline, &status,
		&t.ProofText, &t.ProofURL, &t.ProofHash,
		&t.AIVerified, &t.AIFeedback, &confidence,
		&t.ReminderSent, &t.PointsEarned,
		&t.CreatedAt, &t.UpdatedAt, &submitted, &approved,
	)
	if err != nil {
		return Task{}, err
	}

	t.Type = Type(taskType)
	t.Status = Status(status)
	if buddy.Valid {
		id := buddy.UUID
		t.BuddyID = &id
	}
	if confidence.Valid {
		c := int(confidence.Int64)
		t.AIConfidence = &c
	}
	if submitted.Valid {
		ts := submitted.Time
		t.SubmittedAt = &ts
	}
	if approved.Valid {
		ts := approved.Time
		t.ApprovedAt = &ts
	}
	return t, nil
}

func (r *Repo) queryTasks(ctx context.Context, query string, args ...any) ([]Task, error) {
	rows, err := r.dbGetter(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (r *Repo) Insert(ctx context.Context, t Task) (Task, error) {
	var buddy any
	if t.BuddyID != nil {
		buddy = *t.BuddyID
	}

	err := r.dbGetter(ctx).QueryRowContext(ctx, `
		INSERT INTO tasks (id, user_id, buddy_id, title, description, task_type, deadline, status)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, 'pending')
		RETURNING status, created_at, updated_at
	`, t.ID, t.UserID, buddy, t.Title, t.Description, string(t.Type), t.Deadline,
	).Scan((*string)(&t.Status), &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return Task{}, err
	}
	return t, nil
}

func (r *Repo) Get(ctx context.Context, id uuid.UUID) (Task, error) {
	row := r.dbGetter(ctx).QueryRowContext(ctx, selectTask+` WHERE id = $1`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	return t, err
}

// ListVisible returns tasks the user owns or is the buddy of.
func (r *Repo) ListVisible(ctx context.Context, userID uuid.UUID) ([]Task, error) {
	return r.queryTasks(ctx,
		selectTask+` WHERE user_id = $1 OR buddy_id = $1 ORDER BY deadline ASC, created_at ASC`,
		userID,
	)
}

// ListOpen returns the user's own pending/rejected tasks, earliest deadline first.
func (r *Repo) ListOpen(ctx context.Context, userID uuid.UUID) ([]Task, error) {
	return r.queryTasks(ctx,
		selectTask+` WHERE user_id = $1 AND status IN ('pending', 'rejected') ORDER BY deadline ASC, created_at ASC`,
		userID,
	)
}

func (r *Repo) Delete(ctx context.Context, userID, id uuid.UUID) (bool, error) {
	res, err := r.dbGetter(ctx).ExecContext(ctx,
		`DELETE FROM tasks WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// HashUsedByOtherUser reports whether any other user's task carries hash.
func (r *Repo) HashUsedByOtherUser(ctx context.Context, hash string, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.dbGetter(ctx).QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM tasks WHERE proof_hash = $1 AND user_id <> $2
		)
	`, hash, userID).Scan(&exists)
	return exists, err
}

func (r *Repo) AttachProof(ctx context.Context, id uuid.UUID, p proofUpdate) error {
	res, err := r.dbGetter(ctx).ExecContext(ctx, `
		UPDATE tasks
		SET status = 'submitted',
			proof_text = NULLIF($2, ''),
			proof_url = NULLIF($3, ''),
			proof_hash = NULLIF($4, ''),
			submitted_at = $5,
			updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'rejected')
	`, id, p.Text, p.URL, p.Hash, p.SubmittedAt)
	return expectOne(res, err)
}

func (r *Repo) RecordVerdict(ctx context.Context, id uuid.UUID, v verdict) error {
	var approvedAt any
	if v.ApprovedAt != nil {
		approvedAt = *v.ApprovedAt
	}

	res, err := r.dbGetter(ctx).ExecContext(ctx, `
		UPDATE tasks
		SET status = $2,
			ai_verified = TRUE,
			ai_feedback = $3,
			ai_confidence = $4,
			points_earned = $5,
			approved_at = $6,
			updated_at = now()
		WHERE id = $1 AND status = 'submitted'
	`, id, string(v.Status), v.Feedback, v.Confidence, v.Points, approvedAt)
	return expectOne(res, err)
}

// DueForReminder lists pending tasks whose deadline falls in [from, to]
// and that have not been reminded yet.
func (r *Repo) DueForReminder(ctx context.Context, from, to time.Time) ([]Task, error) {
	return r.queryTasks(ctx,
		selectTask+`
		WHERE status = 'pending' AND reminder_sent = FALSE
		  AND deadline >= $1 AND deadline <= $2
		ORDER BY deadline ASC`,
		from, to,
	)
}

func (r *Repo) MarkReminderSent(ctx context.Context, id uuid.UUID) error {
	_, err := r.dbGetter(ctx).ExecContext(ctx,
		`UPDATE tasks SET reminder_sent = TRUE, updated_at = now() WHERE id = $1`, id)
	return err
}

func expectOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInvalidTransition
	}
	return nil
}
