package notify

import (
	"context"

	txStdLib "github.com/Thiht/transactor/stdlib"
	"github.com/google/uuid"
)

type Repo struct {
	dbGetter txStdLib.DBGetter
}

func NewRepo(dbGetter txStdLib.DBGetter) *Repo {
	return &Repo{dbGetter: dbGetter}
}

// Upsert registers an endpoint; re-registering moves it to userID.
func (r *Repo) Upsert(ctx context.Context, sub Subscription) error {
	_, err := r.dbGetter(ctx).ExecContext(ctx, `
		INSERT INTO push_subscriptions (endpoint, user_id, p256dh, auth)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (endpoint) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			p256dh = EXCLUDED.p256dh,
			auth = EXCLUDED.auth
	`, sub.Endpoint, sub.UserID, sub.Keys.P256dh, sub.Keys.Auth)
	return err
}

func (r *Repo) Delete(ctx context.Context, userID uuid.UUID, endpoint string) error {
	_, err := r.dbGetter(ctx).ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE endpoint = $1 AND user_id = $2`, endpoint, userID)
	return err
}

// Prune drops an endpoint the push service reported as gone.
func (r *Repo) Prune(ctx context.Context, endpoint string) error {
	_, err := r.dbGetter(ctx).ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint)
	return err
}

func (r *Repo) ForUser(ctx context.Context, userID uuid.UUID) ([]Subscription, error) {
	rows, err := r.dbGetter(ctx).QueryContext(ctx, `
		SELECT endpoint, user_id, p256dh, auth
		FROM push_subscriptions
		WHERE user_id = $1
		ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []Subscription{}
	for rows.Next() {
		var s Subscription
		if err := rows.Scan(&s.Endpoint, &s.UserID, &s.Keys.P256dh, &s.Keys.Auth); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
