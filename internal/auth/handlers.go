package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"studylock-backend/internal/httpx"
	"studylock-backend/internal/logging"
)

// Users is the account storage the handlers need. *Store implements it.
type Users interface {
	Create(ctx context.Context, email, passwordHash string) (User, error)
	ByEmail(ctx context.Context, email string) (User, error)
	ByID(ctx context.Context, id uuid.UUID) (User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(context.Context) error) error
}

type credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

func RegisterHandler(users Users, secret []byte, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body credentials
		if err := httpx.DecodeJSON(r, &body); err != nil {
			httpx.Error(w, http.StatusBadRequest, err.Error())
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
		if err != nil {
			httpx.Error(w, http.StatusInternalServerError, "could not hash password")
			return
		}

		u, err := users.Create(r.Context(), body.Email, string(hash))
		if errors.Is(err, ErrEmailTaken) {
			httpx.Error(w, http.StatusConflict, err.Error())
			return
		}
		if err != nil {
			log.Error("register failed", "error", err)
			httpx.Error(w, http.StatusInternalServerError, "could not create user")
			return
		}

		writeToken(w, secret, u, http.StatusCreated)
	}
}

func LoginHandler(users Users, secret []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body credentials
		if err := httpx.DecodeJSON(r, &body); err != nil {
			httpx.Error(w, http.StatusBadRequest, err.Error())
			return
		}

		u, err := users.ByEmail(r.Context(), body.Email)
		if err != nil || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(body.Password)) != nil {
			httpx.Error(w, http.StatusUnauthorized, "invalid login")
			return
		}

		writeToken(w, secret, u, http.StatusOK)
	}
}

func writeToken(w http.ResponseWriter, secret []byte, u User, status int) {
	token, err := GenerateToken(secret, u.ID)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	httpx.WriteJSON(w, status, map[string]any{
		"user_id": u.ID,
		"token":   token,
	})
}

func MeHandler(users Users) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := UserIDFromContext(r.Context())
		if !ok {
			httpx.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		u, err := users.ByID(r.Context(), uid)
		if errors.Is(err, ErrNoUser) {
			httpx.Error(w, http.StatusNotFound, err.Error())
			return
		}
		if err != nil {
			httpx.Error(w, http.StatusInternalServerError, "could not load user")
			return
		}

		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"user_id": u.ID,
			"email":   u.Email,
		})
	}
}
