package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	txStdLib "github.com/Thiht/transactor/stdlib"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	ErrEmailTaken = errors.New("email already registered")
	ErrNoUser     = errors.New("user not found")
)

type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
}

type Store struct {
	dbGetter txStdLib.DBGetter
}

func NewStore(dbGetter txStdLib.DBGetter) *Store {
	return &Store{dbGetter: dbGetter}
}

// Create inserts the user and its empty profile.
func (s *Store) Create(ctx context.Context, email, passwordHash string) (User, error) {
	u := User{Email: normalizeEmail(email), PasswordHash: passwordHash}
	err := s.dbGetter(ctx).QueryRowContext(ctx, `
		INSERT INTO users (email, password_hash)
		VALUES ($1, $2)
		RETURNING id
	`, u.Email, u.PasswordHash).Scan(&u.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return User{}, ErrEmailTaken
		}
		return User{}, err
	}

	_, err = s.dbGetter(ctx).ExecContext(ctx,
		`INSERT INTO profiles (user_id, username) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING`,
		u.ID, strings.SplitN(u.Email, "@", 2)[0])
	return u, err
}

func (s *Store) ByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := s.dbGetter(ctx).QueryRowContext(ctx,
		`SELECT id, email, password_hash FROM users WHERE email = $1`, normalizeEmail(email),
	).Scan(&u.ID, &u.Email, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNoUser
	}
	return u, err
}

func (s *Store) ByID(ctx context.Context, id uuid.UUID) (User, error) {
	var u User
	err := s.dbGetter(ctx).QueryRowContext(ctx,
		`SELECT id, email, password_hash FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNoUser
	}
	return u, err
}

// Delete removes everything the user owns. Call inside a transaction.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	db := s.dbGetter(ctx)

	if _, err := db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE user_id = $1`, id); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `UPDATE tasks SET buddy_id = NULL WHERE buddy_id = $1`, id); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM tasks WHERE user_id = $1`, id); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM profiles WHERE user_id = $1`, id); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM analytics_events WHERE user_id = $1`, id); err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNoUser
	}
	return nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
