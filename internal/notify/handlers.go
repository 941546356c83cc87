package notify

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"studylock-backend/internal/auth"
	"studylock-backend/internal/httpx"
	"studylock-backend/internal/logging"
)

type SubscriptionStore interface {
	Upsert(ctx context.Context, sub Subscription) error
	Delete(ctx context.Context, userID uuid.UUID, endpoint string) error
}

func SubscribeHandler(store SubscriptionStore, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			httpx.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		var body Subscription
		if err := httpx.DecodeJSON(r, &body); err != nil {
			httpx.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		body.UserID = uid

		if err := store.Upsert(r.Context(), body); err != nil {
			log.Error("save push subscription failed", "user", uid, "error", err)
			httpx.Error(w, http.StatusInternalServerError, "db error")
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, map[string]any{"ok": true})
	}
}

func UnsubscribeHandler(store SubscriptionStore, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			httpx.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		var body struct {
			Endpoint string `json:"endpoint" validate:"required"`
		}
		if err := httpx.DecodeJSON(r, &body); err != nil {
			httpx.Error(w, http.StatusBadRequest, err.Error())
			return
		}

		if err := store.Delete(r.Context(), uid, body.Endpoint); err != nil {
			log.Error("delete push subscription failed", "user", uid, "error", err)
			httpx.Error(w, http.StatusInternalServerError, "db error")
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

// PublicKeyHandler hands the VAPID application server key to clients.
func PublicKeyHandler(publicKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if publicKey == "" {
			httpx.Error(w, http.StatusServiceUnavailable, ErrNotConfigured.Error())
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"publicKey": publicKey})
	}
}
